package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cutmanhq/cutman/internal/store"
)

// Exit codes: 0 success, 1 generic failure, 2 usage, 3 not found,
// 4 permission or authentication.
const (
	exitOK         = 0
	exitFailure    = 1
	exitUsage      = 2
	exitNotFound   = 3
	exitPermission = 4
)

var errAlreadyInitialized = errors.New("already initialized")

func main() {
	rootCmd := &cobra.Command{
		Use:           "cutman",
		Short:         "Self-hostable Git hosting server",
		Long:          "Cutman is a self-hostable Git hosting server with token authentication,\nnamespace permissions, smart-HTTP Git transport, and LFS.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().String("config", "", "path to TOML config file")
	rootCmd.PersistentFlags().String("data-dir", "", "data directory (overrides config)")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")

	rootCmd.AddCommand(
		newServeCmd(),
		newAdminCmd(),
	)

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitUsage)
		return nil
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound):
		return exitNotFound
	case errors.Is(err, errAlreadyInitialized):
		return exitPermission
	default:
		return exitFailure
	}
}
