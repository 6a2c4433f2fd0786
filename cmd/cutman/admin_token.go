package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cutmanhq/cutman/internal/core"
	"github.com/cutmanhq/cutman/internal/store"
)

func newAdminTokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage access tokens",
	}

	cmd.AddCommand(
		newAdminTokenCreateCmd(),
		newAdminTokenRevokeCmd(),
		newAdminTokenListCmd(),
	)

	return cmd
}

func newAdminTokenCreateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create --user <username>",
		Short: "Mint a token for a user",
		RunE:  runAdminTokenCreate,
	}
	cmd.Flags().String("user", "", "username the token authenticates as")
	cmd.Flags().String("description", "", "optional token description")
	cmd.MarkFlagRequired("user")
	return cmd
}

func newAdminTokenRevokeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "revoke <token-id>",
		Short: "Revoke a token",
		Args:  cobra.ExactArgs(1),
		RunE:  runAdminTokenRevoke,
	}
}

func newAdminTokenListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all tokens",
		RunE:  runAdminTokenList,
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func runAdminTokenCreate(cmd *cobra.Command, args []string) error {
	ctx, err := loadContext(cmd)
	if err != nil {
		return err
	}
	defer ctx.Close()

	username, _ := cmd.Flags().GetString("user")
	user, err := ctx.store.GetUserByName(core.CanonicalizeName(username))
	if err != nil {
		return fmt.Errorf("look up user: %w", err)
	}
	if user == nil {
		return fmt.Errorf("user %q: %w", username, store.ErrNotFound)
	}

	var description *string
	if d, _ := cmd.Flags().GetString("description"); d != "" {
		description = &d
	}

	plaintext, token, err := ctx.store.GenerateToken(&user.ID, description)
	if err != nil {
		return fmt.Errorf("generate token: %w", err)
	}

	fmt.Printf("Token %s for %s (save it, it is not shown again):\n%s\n", token.ID, username, plaintext)
	return nil
}

func runAdminTokenRevoke(cmd *cobra.Command, args []string) error {
	ctx, err := loadContext(cmd)
	if err != nil {
		return err
	}
	defer ctx.Close()

	if err := ctx.store.RevokeToken(args[0]); err != nil {
		return fmt.Errorf("revoke token %s: %w", args[0], err)
	}

	fmt.Printf("Revoked token %s\n", args[0])
	return nil
}

func runAdminTokenList(cmd *cobra.Command, args []string) error {
	ctx, err := loadContext(cmd)
	if err != nil {
		return err
	}
	defer ctx.Close()

	tokens, err := ctx.store.ListTokens(1000, 0)
	if err != nil {
		return fmt.Errorf("list tokens: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(tokens)
	}

	for _, token := range tokens {
		owner := "admin"
		if token.UserID != nil {
			owner = *token.UserID
		}
		state := "active"
		if token.RevokedAt != nil {
			state = "revoked"
		}
		description := ""
		if token.Description != nil {
			description = "  " + *token.Description
		}
		fmt.Printf("%s  %s  %s%s\n", token.ID, owner, state, description)
	}
	return nil
}
