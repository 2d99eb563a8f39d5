package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	pkgconfig "github.com/tokenwatch/transferscan/pkg/config"
	"gopkg.in/yaml.v3"
)

// Environment variables recognized by the indexer. They override values from
// the configuration file.
const (
	EnvRPCURL          = "ETHEREUM_RPC_URL"
	EnvDatabaseURL     = "DATABASE_URL"
	EnvBlocksPerReq    = "BLOCKS_PER_REQUEST"
	EnvFinalityBlocks  = "FINALITY_BLOCKS"
	EnvContractAddress = "TOKEN_CONTRACT_ADDRESS"
	EnvLogLevel        = "LOG_LEVEL"
)

// Load builds the effective configuration: the optional file (path may be
// empty), overridden by environment variables, completed with defaults and
// validated.
func Load(path string) (*pkgconfig.Config, error) {
	cfg := &pkgconfig.Config{}

	if path != "" {
		loaded, err := LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a file, auto-detecting the format by
// extension. Supported formats: .yaml, .yml, .json, .toml. Defaults and
// validation are left to the caller so environment overrides can be applied
// in between.
func LoadFromFile(path string) (*pkgconfig.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg pkgconfig.Config

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s (supported: .yaml, .yml, .json, .toml)", ext)
	}

	return &cfg, nil
}

// applyEnv overrides configuration fields from the process environment.
func applyEnv(cfg *pkgconfig.Config) error {
	if v := os.Getenv(EnvRPCURL); v != "" {
		cfg.RPC.URL = v
	}

	if v := os.Getenv(EnvDatabaseURL); v != "" {
		// Accept sqlx-style URLs like "sqlite:./transfers.db".
		cfg.Database.Path = strings.TrimPrefix(v, "sqlite:")
	}

	if v := os.Getenv(EnvBlocksPerReq); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvBlocksPerReq, err)
		}
		cfg.Scanner.BatchSize = n
	}

	if v := os.Getenv(EnvFinalityBlocks); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvFinalityBlocks, err)
		}
		cfg.Scanner.FinalityBlocks = n
	}

	if v := os.Getenv(EnvContractAddress); v != "" {
		cfg.Token.ContractAddress = v
	}

	if v := os.Getenv(EnvLogLevel); v != "" {
		if cfg.Logging == nil {
			cfg.Logging = &pkgconfig.LoggingConfig{}
		}
		cfg.Logging.Level = v
	}

	return nil
}
