// Package config layers server configuration from defaults, an
// optional TOML file, CUTMAN_* environment variables, and finally
// command-line flags applied by the CLI.
package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	env "github.com/caarlos0/env/v6"
)

type Config struct {
	DataDir  string `toml:"data_dir" env:"CUTMAN_DATA_DIR"`
	Host     string `toml:"host" env:"CUTMAN_HOST"`
	Port     int    `toml:"port" env:"CUTMAN_PORT"`
	LogLevel string `toml:"log_level" env:"CUTMAN_LOG_LEVEL"`

	Auth AuthConfig `toml:"auth"`
	LFS  LFSConfig  `toml:"lfs"`
	HTTP HTTPConfig `toml:"http"`
}

type AuthConfig struct {
	// AllowUserTokens lets authenticated users mint their own tokens
	// via POST /api/v1/tokens. Off by default; token issuance is
	// admin-driven.
	AllowUserTokens bool `toml:"allow_user_tokens" env:"CUTMAN_ALLOW_USER_TOKENS"`
}

type LFSConfig struct {
	// MaxObjectBytes caps a single LFS object. Zero means unlimited.
	MaxObjectBytes int64 `toml:"max_object_bytes" env:"CUTMAN_LFS_MAX_OBJECT_BYTES"`
}

type HTTPConfig struct {
	// IdleTimeoutSeconds closes idle keep-alive connections.
	IdleTimeoutSeconds int `toml:"idle_timeout_seconds" env:"CUTMAN_HTTP_IDLE_TIMEOUT"`
	// DrainTimeoutSeconds bounds graceful shutdown.
	DrainTimeoutSeconds int `toml:"drain_timeout_seconds" env:"CUTMAN_HTTP_DRAIN_TIMEOUT"`
	// MaxBodyBytes caps JSON request bodies.
	MaxBodyBytes int64 `toml:"max_body_bytes" env:"CUTMAN_HTTP_MAX_BODY_BYTES"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		DataDir:  "./data",
		Host:     "127.0.0.1",
		Port:     8080,
		LogLevel: "info",
		LFS: LFSConfig{
			MaxObjectBytes: 0,
		},
		HTTP: HTTPConfig{
			IdleTimeoutSeconds:  120,
			DrainTimeoutSeconds: 10,
			MaxBodyBytes:        1 << 20,
		},
	}
}

// Load builds the config from defaults, then the TOML file at path if
// it exists, then environment variables. Flags are applied afterwards
// by the caller and take precedence over everything here.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if _, err := toml.DecodeFile(path, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("stat config file %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse environment: %w", err)
	}

	return cfg, nil
}
