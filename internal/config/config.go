package config

import (
	"fmt"
	"path/filepath"

	"github.com/maxiofs/ps3/internal/sandbox"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Config holds all configuration for ps3.
type Config struct {
	Listen   string `mapstructure:"listen"`
	LogLevel string `mapstructure:"log_level"`

	Storage StorageConfig `mapstructure:"storage"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Backend string `mapstructure:"backend"` // filesystem or memory
	Root    string `mapstructure:"root"`    // filesystem backend only
}

// SandboxConfig configures the sandbox registry the Memory backend resolves
// containers against. Mode is one of off/auto/manual at startup; shared
// mode names a specific checked-out owner and can only be entered at
// runtime (Registry.SetShared or StartOwner(shared: true)), never from
// static configuration.
//
// With the default mode (auto) and no x-ps3-sandbox-owner header, every
// request mints its own throwaway owner: a PUT and a later GET from two
// separate requests will not see each other. Clients that want the memory
// backend to behave like a single shared bucket across requests should
// either configure mode "off", or send a sandbox owner header obtained
// from Registry.Checkout/StartOwner on every request.
type SandboxConfig struct {
	Mode string `mapstructure:"mode"` // off, auto, manual
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// Load merges flags, environment variables (PS3_ prefixed), an optional
// config file, and defaults, in that order of precedence.
func Load(cmd *cobra.Command) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if err := bindFlags(cmd, v); err != nil {
		return nil, fmt.Errorf("failed to bind flags: %w", err)
	}

	if configFile, _ := cmd.Flags().GetString("config"); configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("PS3")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen", ":8080")
	v.SetDefault("log_level", "info")

	v.SetDefault("storage.backend", "filesystem")
	v.SetDefault("storage.root", "./data/objects")

	v.SetDefault("sandbox.mode", string(sandbox.DefaultMode))

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")
}

func bindFlags(cmd *cobra.Command, v *viper.Viper) error {
	flags := map[string]string{
		"listen":         "listen",
		"log-level":      "log_level",
		"storage-backend": "storage.backend",
		"storage-root":   "storage.root",
		"sandbox-mode":   "sandbox.mode",
	}

	for flag, key := range flags {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return err
			}
		}
	}

	return nil
}

func validate(cfg *Config) error {
	switch cfg.Storage.Backend {
	case "filesystem", "memory":
	default:
		return fmt.Errorf("storage.backend must be 'filesystem' or 'memory', got %q", cfg.Storage.Backend)
	}

	if cfg.Storage.Backend == "filesystem" {
		if cfg.Storage.Root == "" {
			return fmt.Errorf("storage.root is required for the filesystem backend")
		}
		if !filepath.IsAbs(cfg.Storage.Root) {
			abs, err := filepath.Abs(cfg.Storage.Root)
			if err == nil {
				cfg.Storage.Root = abs
			}
		}
	}

	// shared(owner) is deliberately excluded here: it names a specific
	// checked-out owner, which does not exist yet at config-load time. It
	// is only reachable at runtime via Registry.SetShared or
	// StartOwner(shared: true).
	switch sandbox.Mode(cfg.Sandbox.Mode) {
	case sandbox.ModeOff, sandbox.ModeAuto, sandbox.ModeManual:
	default:
		return fmt.Errorf("sandbox.mode must be one of off/auto/manual, got %q", cfg.Sandbox.Mode)
	}

	return nil
}
