// Package config holds all runtime configuration for the service.
package config

import (
	"fmt"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Verify   VerifyConfig   `yaml:"verify"`
	Logging  LoggingConfig  `yaml:"logging"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	ListenAddr string `yaml:"listen_addr"`
}

// DatabaseConfig contains database configuration. An empty URL selects the
// in-memory stores, which is the development and test default.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// AuthConfig contains issuer token configuration.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// VerifyConfig contains the public verification endpoint configuration.
type VerifyConfig struct {
	BaseURL string `yaml:"base_url"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c.Server.ListenAddr == "" {
		return fmt.Errorf("server.listen_addr is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Verify.BaseURL == "" {
		return fmt.Errorf("verify.base_url is required")
	}

	validLogLevels := map[string]bool{"": true, "debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format != "" && c.Logging.Format != "json" && c.Logging.Format != "text" {
		return fmt.Errorf("logging.format must be 'json' or 'text'")
	}
	return nil
}

// Default returns the development configuration used when no config file is
// given.
func Default() *Config {
	return &Config{
		Server:  ServerConfig{ListenAddr: ":8080"},
		Auth:    AuthConfig{JWTSecret: "dev-secret-change-me"},
		Verify:  VerifyConfig{BaseURL: "http://localhost:8080/verify"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}
