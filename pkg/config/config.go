// Package config loads the daemon configuration from an optional YAML file
// with environment-variable overrides on top.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const (
	DefaultBindAddress = "127.0.0.1:4777"
	DefaultNATSURL     = ""

	EnvBindAddress = "GALYNX_BIND_ADDRESS"
	EnvDataDir     = "GALYNX_DATA_DIR"
	EnvNATSURL     = "GALYNX_NATS_URL"
)

// Config is the daemon's complete configuration.
type Config struct {
	// BindAddress is the IPC listen address. Loopback by default; the
	// daemon serves the local frontend, not the network.
	BindAddress string `yaml:"bind_address"`

	// DataDir holds the secure store and log files.
	DataDir string `yaml:"data_dir"`

	// APIBase is the raw API base override. It participates in bootstrap
	// priority the same way the GALYNX_API_BASE environment variable does;
	// the environment wins when both are set.
	APIBase string `yaml:"api_base"`

	// NATSURL, when set, mirrors bus events to an external NATS server.
	NATSURL string `yaml:"nats_url"`

	// LogLevel is the minimum level written to the run log.
	LogLevel string `yaml:"log_level"`
}

// Default returns the configuration used when no file and no environment
// overrides are present.
func Default() Config {
	return Config{
		BindAddress: DefaultBindAddress,
		DataDir:     defaultDataDir(),
		LogLevel:    "info",
	}
}

// Load reads path (if non-empty and present), then applies environment
// overrides. A missing file at an explicitly given path is an error; an
// empty path means file-less defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parsing config: %w", err)
		}
		if cfg.BindAddress == "" {
			cfg.BindAddress = DefaultBindAddress
		}
		if cfg.DataDir == "" {
			cfg.DataDir = defaultDataDir()
		}
		if cfg.LogLevel == "" {
			cfg.LogLevel = "info"
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvBindAddress); v != "" {
		cfg.BindAddress = v
	}
	if v := os.Getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv(EnvNATSURL); v != "" {
		cfg.NATSURL = v
	}
}

func defaultDataDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".galynx")
	}
	return ".galynx"
}
