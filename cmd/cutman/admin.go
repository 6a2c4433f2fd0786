package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

func newAdminCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administer a Cutman installation directly",
	}

	cmd.AddCommand(
		newAdminInitCmd(),
		newAdminUserCmd(),
		newAdminTokenCmd(),
		newAdminNamespaceCmd(),
		newAdminPermissionCmd(),
	)

	return cmd
}

func newAdminInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize the data directory and mint the admin token",
		RunE:  runAdminInit,
	}
}

// runAdminInit creates the database and the admin-root token. It
// refuses to run twice; a lost admin token means restoring from backup
// or starting over, never silently minting a second root.
func runAdminInit(cmd *cobra.Command, args []string) error {
	ctx, err := loadContext(cmd)
	if err != nil {
		return err
	}
	defer ctx.Close()

	hasAdmin, err := ctx.store.HasAdminToken()
	if err != nil {
		return fmt.Errorf("check admin token: %w", err)
	}
	if hasAdmin {
		return fmt.Errorf("%w: admin token already exists in %s", errAlreadyInitialized, ctx.cfg.DataDir)
	}

	description := "admin root token"
	plaintext, _, err := ctx.store.GenerateToken(nil, &description)
	if err != nil {
		return fmt.Errorf("generate admin token: %w", err)
	}

	tokenPath := filepath.Join(ctx.cfg.DataDir, ".admin_token")
	if err := os.WriteFile(tokenPath, []byte(plaintext+"\n"), 0o600); err != nil {
		return fmt.Errorf("write admin token file: %w", err)
	}

	fmt.Println(strings.Repeat("=", 60))
	fmt.Println("ADMIN TOKEN (also written to " + tokenPath + "):")
	fmt.Println(plaintext)
	fmt.Println(strings.Repeat("=", 60))
	return nil
}
