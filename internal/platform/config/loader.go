package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// LoadWithEnv loads configuration from a file (or the defaults when path is
// empty) and applies environment variable overrides.
func LoadWithEnv(path string) (*Config, error) {
	var (
		cfg *Config
		err error
	)
	if path == "" {
		cfg = Default()
	} else {
		cfg, err = Load(path)
		if err != nil {
			return nil, err
		}
	}

	if addr := os.Getenv("CERTLEDGER_LISTEN_ADDR"); addr != "" {
		cfg.Server.ListenAddr = addr
	}
	if dbURL := os.Getenv("CERTLEDGER_DATABASE_URL"); dbURL != "" {
		cfg.Database.URL = dbURL
	}
	if secret := os.Getenv("CERTLEDGER_JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if baseURL := os.Getenv("CERTLEDGER_VERIFY_BASE_URL"); baseURL != "" {
		cfg.Verify.BaseURL = baseURL
	}
	if level := os.Getenv("CERTLEDGER_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration after env overrides: %w", err)
	}
	return cfg, nil
}
