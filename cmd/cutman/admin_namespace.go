package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cutmanhq/cutman/internal/core"
	"github.com/cutmanhq/cutman/internal/repostore"
	"github.com/cutmanhq/cutman/internal/store"
)

func newAdminNamespaceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "namespace",
		Short: "Manage shared namespaces",
	}

	cmd.AddCommand(
		newAdminNamespaceCreateCmd(),
		newAdminNamespaceRemoveCmd(),
		newAdminNamespaceListCmd(),
	)

	return cmd
}

func newAdminNamespaceCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create <name>",
		Short: "Create a shared namespace",
		Args:  cobra.ExactArgs(1),
		RunE:  runAdminNamespaceCreate,
	}
	cmd.Flags().Int("repo-limit", 0, "maximum repos in the namespace (0 = unlimited)")
	return cmd
}

func newAdminNamespaceRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>",
		Short: "Delete a shared namespace and everything in it",
		Args:  cobra.ExactArgs(1),
		RunE:  runAdminNamespaceRemove,
	}
}

func newAdminNamespaceListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all namespaces",
		RunE:  runAdminNamespaceList,
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func runAdminNamespaceCreate(cmd *cobra.Command, args []string) error {
	name := core.CanonicalizeName(args[0])
	if err := core.ValidateSlug(name); err != nil {
		return fmt.Errorf("invalid namespace name: %w", err)
	}

	ctx, err := loadContext(cmd)
	if err != nil {
		return err
	}
	defer ctx.Close()

	ns := &store.Namespace{
		ID:        core.NewID(),
		Name:      name,
		Kind:      store.NamespaceKindShared,
		CreatedAt: time.Now().UTC(),
	}
	if limit, _ := cmd.Flags().GetInt("repo-limit"); limit > 0 {
		ns.RepoLimit = &limit
	}

	if err := ctx.store.CreateNamespace(ns); err != nil {
		return fmt.Errorf("create namespace: %w", err)
	}

	fmt.Printf("Created namespace %s (id %s)\n", name, ns.ID)
	return nil
}

func runAdminNamespaceRemove(cmd *cobra.Command, args []string) error {
	ctx, err := loadContext(cmd)
	if err != nil {
		return err
	}
	defer ctx.Close()

	ns, err := ctx.store.GetNamespaceByName(core.CanonicalizeName(args[0]))
	if err != nil {
		return fmt.Errorf("look up namespace: %w", err)
	}
	if ns == nil {
		return fmt.Errorf("namespace %q: %w", args[0], store.ErrNotFound)
	}
	if ns.Kind == store.NamespaceKindPersonal {
		return fmt.Errorf("namespace %q is personal; remove its user instead", args[0])
	}

	refs, err := ctx.store.ListAllRepoRefs()
	if err != nil {
		return fmt.Errorf("list repos: %w", err)
	}

	if err := ctx.store.DeleteNamespace(ns.ID); err != nil {
		return fmt.Errorf("delete namespace: %w", err)
	}

	repos := repostore.New(ctx.cfg.DataDir, ctx.log)
	for _, ref := range refs {
		if ref.NamespaceID == ns.ID {
			repos.Remove(ref.NamespaceID, ref.RepoID)
		}
	}

	fmt.Printf("Deleted namespace %s\n", args[0])
	return nil
}

func runAdminNamespaceList(cmd *cobra.Command, args []string) error {
	ctx, err := loadContext(cmd)
	if err != nil {
		return err
	}
	defer ctx.Close()

	namespaces, err := ctx.store.ListNamespaces(1000, 0)
	if err != nil {
		return fmt.Errorf("list namespaces: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(namespaces)
	}

	for _, ns := range namespaces {
		fmt.Printf("%s  %s  %s\n", ns.ID, ns.Name, ns.Kind)
	}
	return nil
}
