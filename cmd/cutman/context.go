package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cutmanhq/cutman/internal/config"
	"github.com/cutmanhq/cutman/internal/store"
)

// cliContext bundles what every admin command needs: the resolved
// config and an open, migrated store.
type cliContext struct {
	cfg   config.Config
	store store.Store
	log   *logrus.Logger
}

func (c *cliContext) Close() {
	c.store.Close()
}

// resolveConfig layers defaults, the TOML file, environment, and
// finally command-line flags.
func resolveConfig(cmd *cobra.Command) (config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
			path = filepath.Join(dataDir, "cutman.toml")
		} else {
			path = filepath.Join(config.Default().DataDir, "cutman.toml")
		}
	}

	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}

	if dataDir, _ := cmd.Flags().GetString("data-dir"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if cmd.Flags().Changed("host") {
		cfg.Host, _ = cmd.Flags().GetString("host")
	}
	if cmd.Flags().Changed("port") {
		cfg.Port, _ = cmd.Flags().GetInt("port")
	}

	return cfg, nil
}

func newLogger(level string) (*logrus.Logger, error) {
	log := logrus.New()
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(parsed)
	return log, nil
}

// loadContext opens the store for a CLI command, creating the data
// directory and applying pending migrations.
func loadContext(cmd *cobra.Command) (*cliContext, error) {
	cfg, err := resolveConfig(cmd)
	if err != nil {
		return nil, err
	}

	log, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data directory: %w", err)
	}

	st, err := store.NewSQLiteStore(filepath.Join(cfg.DataDir, "cutman.db"))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := st.Migrate(); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	return &cliContext{cfg: cfg, store: st, log: log}, nil
}
