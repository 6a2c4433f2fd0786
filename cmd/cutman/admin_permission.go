package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/cutmanhq/cutman/internal/core"
	"github.com/cutmanhq/cutman/internal/store"
)

func newAdminPermissionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "permission",
		Short: "Manage namespace grants",
	}

	cmd.AddCommand(
		newAdminPermissionGrantCmd(),
		newAdminPermissionRevokeCmd(),
		newAdminPermissionListCmd(),
	)

	return cmd
}

func newAdminPermissionGrantCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "grant <username> <namespace> <scope>...",
		Short: "Grant scopes on a namespace, replacing any existing grant",
		Long:  "Scopes: namespace:read, namespace:write, repo:read, repo:write, repo:admin.\nNo scope implies another; list every scope the user should hold.",
		Args:  cobra.MinimumNArgs(3),
		RunE:  runAdminPermissionGrant,
	}
}

func newAdminPermissionRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <username> <namespace>",
		Short: "Remove a user's grant on a namespace",
		Args:  cobra.ExactArgs(2),
		RunE:  runAdminPermissionRevoke,
	}
}

func newAdminPermissionListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <username>",
		Short: "List a user's namespace grants",
		Args:  cobra.ExactArgs(1),
		RunE:  runAdminPermissionList,
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func lookupUserAndNamespace(ctx *cliContext, username, nsName string) (*store.User, *store.Namespace, error) {
	user, err := ctx.store.GetUserByName(core.CanonicalizeName(username))
	if err != nil {
		return nil, nil, fmt.Errorf("look up user: %w", err)
	}
	if user == nil {
		return nil, nil, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
	}

	ns, err := ctx.store.GetNamespaceByName(core.CanonicalizeName(nsName))
	if err != nil {
		return nil, nil, fmt.Errorf("look up namespace: %w", err)
	}
	if ns == nil {
		return nil, nil, fmt.Errorf("namespace %q: %w", nsName, store.ErrNotFound)
	}

	return user, ns, nil
}

func runAdminPermissionGrant(cmd *cobra.Command, args []string) error {
	scopes, err := store.ParseScopes(args[2:])
	if err != nil {
		return err
	}

	ctx, err := loadContext(cmd)
	if err != nil {
		return err
	}
	defer ctx.Close()

	user, ns, err := lookupUserAndNamespace(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	grant := &store.NamespaceGrant{
		UserID:      user.ID,
		NamespaceID: ns.ID,
		Scopes:      scopes,
		GrantedAt:   time.Now().UTC(),
	}
	if err := ctx.store.UpsertNamespaceGrant(grant); err != nil {
		return fmt.Errorf("save grant: %w", err)
	}

	fmt.Printf("Granted %s on %s to %s\n", scopes, args[1], args[0])
	return nil
}

func runAdminPermissionRevoke(cmd *cobra.Command, args []string) error {
	ctx, err := loadContext(cmd)
	if err != nil {
		return err
	}
	defer ctx.Close()

	user, ns, err := lookupUserAndNamespace(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	if err := ctx.store.DeleteNamespaceGrant(user.ID, ns.ID); err != nil {
		return fmt.Errorf("delete grant: %w", err)
	}

	fmt.Printf("Revoked grant on %s from %s\n", args[1], args[0])
	return nil
}

func runAdminPermissionList(cmd *cobra.Command, args []string) error {
	ctx, err := loadContext(cmd)
	if err != nil {
		return err
	}
	defer ctx.Close()

	user, err := ctx.store.GetUserByName(core.CanonicalizeName(args[0]))
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user %q: %w", args[0], store.ErrNotFound)
	}

	grants, err := ctx.store.ListUserNamespaceGrants(user.ID)
	if err != nil {
		return fmt.Errorf("list grants: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		type grantOut struct {
			NamespaceID string    `json:"namespace_id"`
			Allow       []string  `json:"allow"`
			GrantedAt   time.Time `json:"granted_at"`
		}
		out := make([]grantOut, 0, len(grants))
		for _, g := range grants {
			out = append(out, grantOut{
				NamespaceID: g.NamespaceID,
				Allow:       g.Scopes.Strings(),
				GrantedAt:   g.GrantedAt,
			})
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for _, g := range grants {
		ns, err := ctx.store.GetNamespace(g.NamespaceID)
		if err != nil {
			return fmt.Errorf("load namespace: %w", err)
		}
		name := g.NamespaceID
		if ns != nil {
			name = ns.Name
		}
		fmt.Printf("%s  %s\n", name, g.Scopes)
	}
	return nil
}
