package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Config represents the application configuration
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Music    MusicConfig    `toml:"music"`
	Session  SessionConfig  `toml:"session"`
	Logging  LoggingConfig  `toml:"logging"`
	Tunnel   TunnelConfig   `toml:"tunnel"`
}

// ServerConfig contains server-related configuration
type ServerConfig struct {
	Port        string `toml:"port"`
	Host        string `toml:"host"`
	StaticDir   string `toml:"static_dir"`
	EnableCORS  bool   `toml:"enable_cors"`
	ReadTimeout int    `toml:"read_timeout_seconds"`
}

// DatabaseConfig contains database-related configuration
type DatabaseConfig struct {
	Path           string `toml:"path"`
	MaxConnections int    `toml:"max_connections"`
}

// MusicConfig contains song catalog configuration
type MusicConfig struct {
	LibraryPath      string   `toml:"library_path"`
	CoversDir        string   `toml:"covers_dir"`
	SupportedFormats []string `toml:"supported_formats"`
	WatchForChanges  bool     `toml:"watch_for_changes"`
	ScanOnStartup    bool     `toml:"scan_on_startup"`
}

// SessionConfig contains session cookie configuration
type SessionConfig struct {
	// Secret signs the session cookie. Required in production; the default
	// is only suitable for local development.
	Secret        string `toml:"secret"`
	Duration      string `toml:"duration"`
	SecureCookies bool   `toml:"secure_cookies"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level          string `toml:"level"`
	Format         string `toml:"format"`
	RequestLogging bool   `toml:"request_logging"`
}

// TunnelConfig contains the optional ngrok tunnel configuration
type TunnelConfig struct {
	Enabled   bool   `toml:"enabled"`
	AuthToken string `toml:"auth_token"`
	Domain    string `toml:"domain"`
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        "8080",
			Host:        "0.0.0.0",
			StaticDir:   "./public",
			EnableCORS:  true,
			ReadTimeout: 30,
		},
		Database: DatabaseConfig{
			Path:           "./nasheedpro.db",
			MaxConnections: 5,
		},
		Music: MusicConfig{
			LibraryPath:      "./songs",
			CoversDir:        "./public/covers",
			SupportedFormats: []string{".mp3", ".flac", ".wav", ".m4a"},
			WatchForChanges:  true,
			ScanOnStartup:    true,
		},
		Session: SessionConfig{
			Secret:        "nasheedpro_secret_2025",
			Duration:      "720h", // 30 days, sliding
			SecureCookies: false,
		},
		Logging: LoggingConfig{
			Level:          "info",
			Format:         "text",
			RequestLogging: true,
		},
		Tunnel: TunnelConfig{
			Enabled:   false,
			AuthToken: "",
			Domain:    "",
		},
	}
}

// LoadConfig loads configuration from a TOML file, creating it with defaults
// when missing, then applies environment variable overrides.
func LoadConfig(configPath string) (*Config, error) {
	// Start with defaults
	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Config file doesn't exist, create it with defaults
		if err := cfg.SaveToFile(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config file: %w", err)
		}
		fmt.Printf("Created default configuration file at: %s\n", configPath)
	} else {
		if _, err := toml.DecodeFile(configPath, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides lets deployment-sensitive settings be supplied without
// touching the config file. Environment values take precedence.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("NASHEEDPRO_PORT"); v != "" {
		c.Server.Port = v
	}
	if v := os.Getenv("NASHEEDPRO_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("NASHEEDPRO_DB_PATH"); v != "" {
		c.Database.Path = v
	}
	if v := os.Getenv("NASHEEDPRO_SESSION_SECRET"); v != "" {
		c.Session.Secret = v
	}
	if v := os.Getenv("NASHEEDPRO_LIBRARY_PATH"); v != "" {
		c.Music.LibraryPath = v
	}
	if v := os.Getenv("NGROK_AUTHTOKEN"); v != "" && c.Tunnel.AuthToken == "" {
		c.Tunnel.AuthToken = v
	}
}

// SaveToFile saves the configuration to a TOML file
func (c *Config) SaveToFile(configPath string) error {
	// Create directory if it doesn't exist
	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	file, err := os.Create(configPath)
	if err != nil {
		return fmt.Errorf("failed to create config file: %w", err)
	}
	defer file.Close()

	// Write header comment
	header := `# NasheedPro Server Configuration
# This file contains all configuration options for the NasheedPro streaming server.
# Deployment-sensitive values (port, database path, session secret) may also be
# supplied via NASHEEDPRO_* environment variables, which take precedence.

`
	if _, err := file.WriteString(header); err != nil {
		return fmt.Errorf("failed to write config header: %w", err)
	}

	encoder := toml.NewEncoder(file)
	if err := encoder.Encode(c); err != nil {
		return fmt.Errorf("failed to encode config to TOML: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port cannot be empty")
	}
	if c.Server.Host == "" {
		return fmt.Errorf("server host cannot be empty")
	}
	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if c.Music.LibraryPath == "" {
		return fmt.Errorf("music library path cannot be empty")
	}
	if len(c.Music.SupportedFormats) == 0 {
		return fmt.Errorf("at least one supported audio format must be specified")
	}

	if c.Session.Secret == "" {
		return fmt.Errorf("session secret cannot be empty")
	}
	if c.Session.Duration == "" {
		return fmt.Errorf("session duration cannot be empty")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"text": true, "json": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}

// GetAddress returns the full server address
func (c *Config) GetAddress() string {
	return c.Server.Host + ":" + c.Server.Port
}

// IsFormatSupported checks if an audio format is supported
func (c *Config) IsFormatSupported(format string) bool {
	for _, supported := range c.Music.SupportedFormats {
		if supported == format {
			return true
		}
	}
	return false
}
