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

func newAdminUserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage users",
	}

	cmd.AddCommand(
		newAdminUserAddCmd(),
		newAdminUserListCmd(),
		newAdminUserRemoveCmd(),
	)

	return cmd
}

func newAdminUserAddCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <username>",
		Short: "Create a user with their personal namespace",
		Args:  cobra.ExactArgs(1),
		RunE:  runAdminUserAdd,
	}
	cmd.Flags().Bool("admin", false, "grant the user admin rights")
	return cmd
}

func newAdminUserListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all users",
		RunE:  runAdminUserList,
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func newAdminUserRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <username>",
		Short: "Delete a user, their personal namespace, and its repos",
		Args:  cobra.ExactArgs(1),
		RunE:  runAdminUserRemove,
	}
}

func runAdminUserAdd(cmd *cobra.Command, args []string) error {
	name := core.CanonicalizeName(args[0])
	if err := core.ValidateSlug(name); err != nil {
		return fmt.Errorf("invalid username: %w", err)
	}

	ctx, err := loadContext(cmd)
	if err != nil {
		return err
	}
	defer ctx.Close()

	isAdmin, _ := cmd.Flags().GetBool("admin")

	now := time.Now().UTC()
	user := &store.User{
		ID:        core.NewID(),
		IsAdmin:   isAdmin,
		CreatedAt: now,
	}
	userID := user.ID
	ns := &store.Namespace{
		ID:          core.NewID(),
		Name:        name,
		Kind:        store.NamespaceKindPersonal,
		OwnerUserID: &userID,
		CreatedAt:   now,
	}
	user.PrimaryNamespaceID = ns.ID

	if err := ctx.store.CreateUserWithNamespace(user, ns); err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	fmt.Printf("Created user %s (id %s, namespace %s)\n", name, user.ID, ns.ID)
	return nil
}

func runAdminUserList(cmd *cobra.Command, args []string) error {
	ctx, err := loadContext(cmd)
	if err != nil {
		return err
	}
	defer ctx.Close()

	users, err := ctx.store.ListUsers(1000, 0)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(users)
	}

	for _, user := range users {
		ns, err := ctx.store.GetNamespace(user.PrimaryNamespaceID)
		if err != nil {
			return fmt.Errorf("load namespace: %w", err)
		}
		name := user.PrimaryNamespaceID
		if ns != nil {
			name = ns.Name
		}
		flag := ""
		if user.IsAdmin {
			flag = " (admin)"
		}
		fmt.Printf("%s  %s%s\n", user.ID, name, flag)
	}
	return nil
}

func runAdminUserRemove(cmd *cobra.Command, args []string) error {
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

	if err := ctx.store.DeleteUser(user.ID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}

	fmt.Printf("Deleted user %s\n", args[0])
	return nil
}
