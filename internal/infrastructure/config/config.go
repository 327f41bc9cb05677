package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the archk server.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
	Roles    []RoleConfig   `yaml:"roles"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host     string              `yaml:"host"`
	Port     int                 `yaml:"port"`
	Timeouts ServerTimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig          `yaml:"cors"`
}

// ServerTimeoutConfig contains HTTP timeout settings in seconds.
type ServerTimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains authentication policy settings.
type SecurityConfig struct {
	// TokenMaxAge is the maximum age of a personal bearer token before it is
	// rejected as expired. Zero disables the expiry policy entirely; tokens
	// then remain valid until explicitly revoked.
	TokenMaxAge time.Duration `yaml:"token_max_age"`

	// PasswordMinLength and PasswordMaxLength bound accepted password
	// lengths at registration and password change.
	PasswordMinLength int `yaml:"password_min_length"`
	PasswordMaxLength int `yaml:"password_max_length"`
}

// UnmarshalYAML accepts token_max_age as a Go duration string ("720h").
// yaml.v3 has no native duration support; fields left out keep the values
// already present on the receiver.
func (s *SecurityConfig) UnmarshalYAML(value *yaml.Node) error {
	var raw struct {
		TokenMaxAge       string `yaml:"token_max_age"`
		PasswordMinLength *int   `yaml:"password_min_length"`
		PasswordMaxLength *int   `yaml:"password_max_length"`
	}
	if err := value.Decode(&raw); err != nil {
		return err
	}

	if raw.TokenMaxAge != "" {
		d, err := time.ParseDuration(raw.TokenMaxAge)
		if err != nil {
			return fmt.Errorf("parsing token_max_age: %w", err)
		}
		s.TokenMaxAge = d
	}
	if raw.PasswordMinLength != nil {
		s.PasswordMinLength = *raw.PasswordMinLength
	}
	if raw.PasswordMaxLength != nil {
		s.PasswordMaxLength = *raw.PasswordMaxLength
	}
	return nil
}

// RoleConfig describes a single permission tier. A user's effective tier is
// the configured entry with the greatest level not exceeding the user's
// access level.
type RoleConfig struct {
	Name        string   `yaml:"name"`
	Level       int64    `yaml:"level"`
	Permissions []string `yaml:"permissions"`
}

// Load reads configuration from a YAML file and applies environment variable
// overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: ARCHK_SECTION_KEY
// For example: ARCHK_DATABASE_PATH, ARCHK_SERVER_PORT
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults. The default role
// table grants space creation above the bottom tier and reserves user and
// service management for admins.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: ServerTimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/archk.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			TokenMaxAge:       0,
			PasswordMinLength: 8,
			PasswordMaxLength: 32,
		},
		Roles: []RoleConfig{
			{Name: "Admin", Level: 100, Permissions: []string{
				"promote", "wave", "manage",
				"spaces", "spaces_manage",
				"services", "services_manage",
			}},
			{Name: "Moderator", Level: 90, Permissions: []string{
				"promote", "manage", "spaces", "spaces_manage",
			}},
			{Name: "Spaces", Level: 10, Permissions: []string{
				"spaces", "services",
			}},
			{Name: "Default", Level: 0, Permissions: nil},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ARCHK_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("ARCHK_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("ARCHK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("ARCHK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ARCHK_TOKEN_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Security.TokenMaxAge = d
		}
	}
}

// Validate checks the configuration for errors.
//
// The role table is validated strictly: a malformed table is a fatal startup
// error, never a per-request condition.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}

	if c.Security.TokenMaxAge < 0 {
		errs = append(errs, "security.token_max_age must not be negative")
	}
	if c.Security.PasswordMinLength < 1 {
		errs = append(errs, "security.password_min_length must be at least 1")
	}
	if c.Security.PasswordMaxLength < c.Security.PasswordMinLength {
		errs = append(errs, "security.password_max_length must not be less than password_min_length")
	}

	if len(c.Roles) == 0 {
		errs = append(errs, "roles: at least one tier is required")
	} else {
		seen := make(map[int64]string, len(c.Roles))
		for _, r := range c.Roles {
			if r.Name == "" {
				errs = append(errs, "roles: tier name is required")
			}
			if prev, ok := seen[r.Level]; ok {
				errs = append(errs, fmt.Sprintf("roles: tiers %q and %q share level %d", prev, r.Name, r.Level))
			}
			seen[r.Level] = r.Name
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ReadTimeout returns the HTTP read timeout as a Duration.
func (c *Config) ReadTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Read) * time.Second
}

// WriteTimeout returns the HTTP write timeout as a Duration.
func (c *Config) WriteTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Write) * time.Second
}

// IdleTimeout returns the HTTP idle timeout as a Duration.
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Server.Timeouts.Idle) * time.Second
}

// ListenAddr returns the host:port address the HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}
