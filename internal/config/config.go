/*
 * Copyright 2025 Cong Wang
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package config

import (
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	TLS        TLSConfig        `yaml:"tls"`
	Resolver   ResolverConfig   `yaml:"resolver"`
	Storage    StorageConfig    `yaml:"storage"`
	Validation ValidationConfig `yaml:"validation"`
	Bypass     BypassConfig     `yaml:"bypass"`
	Auth       AuthConfig       `yaml:"auth"`
	Logging    LoggingConfig    `yaml:"logging"`
	Metrics    *MetricsConfig   `yaml:"metrics,omitempty"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Address        string        `yaml:"address"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxRequestSize int64         `yaml:"max_request_size"`
}

// TLSConfig holds TLS configuration
type TLSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	CertFile   string `yaml:"cert_file"`
	KeyFile    string `yaml:"key_file"`
	MinVersion string `yaml:"min_version"`
}

// ResolverConfig holds schema resolution configuration. CacheTTL of zero
// disables caching.
type ResolverConfig struct {
	CacheTTL      time.Duration      `yaml:"cache_ttl"`
	CacheSize     int                `yaml:"cache_size"`
	ConfigFile    string             `yaml:"config_file"` // self-describing resolver JSON, overrides the fields above
	SkipBootstrap bool               `yaml:"skip_bootstrap"`
	Repositories  []RepositoryConfig `yaml:"repositories"`
}

// RepositoryConfig describes one schema repository
type RepositoryConfig struct {
	Name           string   `yaml:"name"`
	Type           string   `yaml:"type"` // embedded, local, http or store
	Priority       int      `yaml:"priority"`
	VendorPrefixes []string `yaml:"vendor_prefixes"`

	// embedded and local
	Path string `yaml:"path"`
	Dir  string `yaml:"dir"`

	// http
	URI                string            `yaml:"uri"`
	APIKey             string            `yaml:"api_key"`
	ConnectTimeout     time.Duration     `yaml:"connect_timeout"`
	ReadTimeout        time.Duration     `yaml:"read_timeout"`
	Headers            map[string]string `yaml:"headers"`
	InsecureSkipVerify bool              `yaml:"insecure_skip_verify"`
	CAFile             string            `yaml:"ca_file"`
}

// StorageConfig holds configuration for the published schema store
type StorageConfig struct {
	Type       string         `yaml:"type"` // memory, database or none
	MaxSchemas int            `yaml:"max_schemas"`
	Database   DatabaseConfig `yaml:"database"`
}

// DatabaseConfig holds database storage configuration
type DatabaseConfig struct {
	Driver           string `yaml:"driver"`
	ConnectionString string `yaml:"connection_string"`
	MaxConnections   int    `yaml:"max_connections"`
	MaxIdleTime      int    `yaml:"max_idle_time"`
	AutoMigrate      bool   `yaml:"auto_migrate"`
}

// ValidationConfig holds instance validation configuration
type ValidationConfig struct {
	AssertFormat   bool  `yaml:"assert_format"`
	MaxPayloadSize int64 `yaml:"max_payload_size"`
}

// BypassConfig holds configuration for passing through instances whose
// schema cannot be found
type BypassConfig struct {
	Enabled        bool     `yaml:"enabled"`
	TrustedVendors []string `yaml:"trusted_vendors"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	RequireAuth       bool   `yaml:"require_auth"`
	APIKeyHeader      string `yaml:"api_key_header"`
	APIKeyFile        string `yaml:"api_key_file"`         // Path to read API key file
	AdminKeyFile      string `yaml:"admin_key_file"`       // Path to admin API key file
	AdminAPIKeyHeader string `yaml:"admin_api_key_header"` // Header for admin API key
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics configuration
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load loads configuration from the process arguments, YAML file and environment variables
func Load() (*Config, error) {
	return LoadFromArgs(os.Args[1:])
}

// LoadFromArgs loads configuration using the given command line arguments.
// Command line flags take precedence over environment variables, which take
// precedence over YAML file values.
func LoadFromArgs(args []string) (*Config, error) {
	flags := flag.NewFlagSet("schema-resolver", flag.ContinueOnError)
	configFile := flags.String("config", "", "Path to configuration file (YAML)")
	adminKeyFile := flags.String("admin-key-file", "", "Path to admin API key file")
	resolverFile := flags.String("resolver-config", "", "Path to self-describing resolver configuration (JSON)")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	cfg := getDefaultConfig()

	path := *configFile
	if path == "" {
		path = os.Getenv("RESOLVER_CONFIG_FILE")
	}
	if err := loadFromYAML(cfg, path); err != nil {
		return nil, fmt.Errorf("failed to load YAML config: %w", err)
	}

	loadFromEnv(cfg)

	if *adminKeyFile != "" {
		cfg.Auth.AdminKeyFile = *adminKeyFile
	}
	if *resolverFile != "" {
		cfg.Resolver.ConfigFile = *resolverFile
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// getDefaultConfig returns a configuration with default values
func getDefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Address:        ":8080",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			IdleTimeout:    120 * time.Second,
			MaxRequestSize: 10 * 1024 * 1024, // 10MB
		},
		TLS: TLSConfig{
			Enabled:    false,
			MinVersion: "1.3",
		},
		Resolver: ResolverConfig{
			CacheTTL:  600 * time.Second,
			CacheSize: 500,
		},
		Storage: StorageConfig{
			Type: "memory",
		},
		Validation: ValidationConfig{
			AssertFormat:   false,
			MaxPayloadSize: 10 * 1024 * 1024, // 10MB
		},
		Auth: AuthConfig{
			RequireAuth:       false,
			APIKeyHeader:      "apikey",
			AdminKeyFile:      "",            // No admin key file by default
			AdminAPIKeyHeader: "X-Admin-Key", // Header for admin authentication
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// loadFromYAML loads configuration from a YAML file
func loadFromYAML(cfg *Config, configFile string) error {
	if configFile == "" {
		return nil
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", configFile, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse YAML config file %s: %w", configFile, err)
	}

	return nil
}

// loadFromEnv overrides configuration with environment variables
func loadFromEnv(cfg *Config) {
	// Server configuration
	if val := getEnv("RESOLVER_SERVER_ADDRESS", ""); val != "" {
		cfg.Server.Address = val
	}
	if val := getDurationEnv("RESOLVER_READ_TIMEOUT", 0); val != 0 {
		cfg.Server.ReadTimeout = val
	}
	if val := getDurationEnv("RESOLVER_WRITE_TIMEOUT", 0); val != 0 {
		cfg.Server.WriteTimeout = val
	}
	if val := getDurationEnv("RESOLVER_IDLE_TIMEOUT", 0); val != 0 {
		cfg.Server.IdleTimeout = val
	}
	if val := getInt64Env("RESOLVER_MAX_REQUEST_SIZE", 0); val != 0 {
		cfg.Server.MaxRequestSize = val
	}

	// TLS configuration
	cfg.TLS.Enabled = getBoolEnv("RESOLVER_TLS_ENABLED", cfg.TLS.Enabled)
	if val := getEnv("RESOLVER_TLS_CERT_FILE", ""); val != "" {
		cfg.TLS.CertFile = val
	}
	if val := getEnv("RESOLVER_TLS_KEY_FILE", ""); val != "" {
		cfg.TLS.KeyFile = val
	}
	if val := getEnv("RESOLVER_TLS_MIN_VERSION", ""); val != "" {
		cfg.TLS.MinVersion = val
	}

	// Resolver configuration
	loadResolverFromEnv(cfg)

	// Storage configuration
	if val := getEnv("RESOLVER_STORAGE_TYPE", ""); val != "" {
		cfg.Storage.Type = val
	}
	if val := getEnv("RESOLVER_DATABASE_URL", ""); val != "" {
		cfg.Storage.Database.ConnectionString = val
	}
	cfg.Storage.Database.AutoMigrate = getBoolEnv("RESOLVER_DATABASE_AUTO_MIGRATE", cfg.Storage.Database.AutoMigrate)

	// Validation configuration
	cfg.Validation.AssertFormat = getBoolEnv("RESOLVER_VALIDATION_ASSERT_FORMAT", cfg.Validation.AssertFormat)
	if val := getInt64Env("RESOLVER_VALIDATION_MAX_PAYLOAD_SIZE", 0); val != 0 {
		cfg.Validation.MaxPayloadSize = val
	}

	// Bypass configuration
	cfg.Bypass.Enabled = getBoolEnv("RESOLVER_BYPASS_ENABLED", cfg.Bypass.Enabled)
	if val := getEnv("RESOLVER_BYPASS_TRUSTED_VENDORS", ""); val != "" {
		cfg.Bypass.TrustedVendors = splitList(val)
	}

	// Auth configuration
	cfg.Auth.RequireAuth = getBoolEnv("RESOLVER_AUTH_REQUIRED", cfg.Auth.RequireAuth)
	if val := getEnv("RESOLVER_AUTH_API_KEY_HEADER", ""); val != "" {
		cfg.Auth.APIKeyHeader = val
	}
	if val := getEnv("RESOLVER_API_KEY_FILE", ""); val != "" {
		cfg.Auth.APIKeyFile = val
	}
	if val := getEnv("RESOLVER_ADMIN_KEY_FILE", ""); val != "" {
		cfg.Auth.AdminKeyFile = val
	}
	if val := getEnv("RESOLVER_ADMIN_API_KEY_HEADER", ""); val != "" {
		cfg.Auth.AdminAPIKeyHeader = val
	}

	// Logging configuration
	if val := getEnv("RESOLVER_LOG_LEVEL", ""); val != "" {
		cfg.Logging.Level = val
	}
	if val := getEnv("RESOLVER_LOG_FORMAT", ""); val != "" {
		cfg.Logging.Format = val
	}

	// Metrics configuration
	loadMetricsFromEnv(cfg)
}

// loadResolverFromEnv loads resolver configuration from environment variables.
// RESOLVER_REPOSITORY_URI adds a single HTTP repository, which is enough to
// point an instance at an upstream registry without a config file.
func loadResolverFromEnv(cfg *Config) {
	if val, ok := os.LookupEnv("RESOLVER_CACHE_TTL"); ok {
		if parsed, err := time.ParseDuration(val); err == nil {
			cfg.Resolver.CacheTTL = parsed
		} else {
			log.Printf("WARNING: ignoring invalid RESOLVER_CACHE_TTL %q: %v", val, err)
		}
	}
	if val := getEnv("RESOLVER_CACHE_SIZE", ""); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			cfg.Resolver.CacheSize = parsed
		}
	}
	if val := getEnv("RESOLVER_CONFIG_JSON", ""); val != "" {
		cfg.Resolver.ConfigFile = val
	}

	uri := getEnv("RESOLVER_REPOSITORY_URI", "")
	if uri == "" {
		return
	}

	repo := RepositoryConfig{
		Name:           getEnv("RESOLVER_REPOSITORY_NAME", "Upstream"),
		Type:           "http",
		Priority:       0,
		VendorPrefixes: []string{"*"},
		URI:            uri,
		APIKey:         getEnv("RESOLVER_REPOSITORY_API_KEY", ""),
	}
	if val := getEnv("RESOLVER_REPOSITORY_VENDOR_PREFIXES", ""); val != "" {
		repo.VendorPrefixes = splitList(val)
	}

	log.Printf("INFO: HTTP repository %s configured from environment at %s", repo.Name, uri)
	cfg.Resolver.Repositories = append(cfg.Resolver.Repositories, repo)
}

// loadMetricsFromEnv loads metrics configuration from environment variables
func loadMetricsFromEnv(cfg *Config) {
	if getBoolEnv("RESOLVER_METRICS_ENABLED", false) {
		if cfg.Metrics == nil {
			cfg.Metrics = &MetricsConfig{}
		}
		cfg.Metrics.Enabled = true
	}
}

// validate validates the configuration
func (c *Config) validate() error {
	if c.TLS.Enabled && (c.TLS.CertFile == "" || c.TLS.KeyFile == "") {
		return fmt.Errorf("TLS cert and key files are required when TLS is enabled")
	}

	if c.Server.MaxRequestSize <= 0 {
		return fmt.Errorf("max request size must be positive")
	}

	if c.Resolver.CacheTTL < 0 {
		return fmt.Errorf("resolver cache TTL must not be negative")
	}
	if c.Resolver.CacheSize < 0 {
		return fmt.Errorf("resolver cache size must not be negative")
	}
	if c.Resolver.ConfigFile != "" {
		if _, err := os.Stat(c.Resolver.ConfigFile); err != nil {
			return fmt.Errorf("resolver config file not found: %s", c.Resolver.ConfigFile)
		}
	}

	if err := c.validateRepositories(); err != nil {
		return err
	}

	switch strings.ToLower(c.Storage.Type) {
	case "", "memory", "none":
	case "database", "postgres":
		if c.Storage.Database.ConnectionString == "" {
			return fmt.Errorf("database connection string is required for database storage")
		}
	default:
		return fmt.Errorf("unsupported storage type: %s", c.Storage.Type)
	}

	if c.Auth.APIKeyFile != "" {
		if _, err := os.Stat(c.Auth.APIKeyFile); err != nil {
			return fmt.Errorf("api key file not found: %s", c.Auth.APIKeyFile)
		}
	}
	if c.Auth.RequireAuth && c.Auth.APIKeyFile == "" {
		return fmt.Errorf("api key file is required when auth is required")
	}

	if c.Auth.AdminKeyFile != "" {
		if _, err := os.Stat(c.Auth.AdminKeyFile); err != nil {
			return fmt.Errorf("admin key file not found: %s", c.Auth.AdminKeyFile)
		}
	}

	return nil
}

// validateRepositories validates each configured repository
func (c *Config) validateRepositories() error {
	seen := make(map[string]bool)
	for i, repo := range c.Resolver.Repositories {
		if strings.TrimSpace(repo.Name) == "" {
			return fmt.Errorf("repository %d: name is required", i)
		}
		if seen[repo.Name] {
			return fmt.Errorf("repository %s: duplicate name", repo.Name)
		}
		seen[repo.Name] = true

		if len(repo.VendorPrefixes) == 0 {
			return fmt.Errorf("repository %s: at least one vendor prefix is required", repo.Name)
		}

		switch strings.ToLower(repo.Type) {
		case "embedded":
			if repo.Path == "" {
				return fmt.Errorf("repository %s: path is required for embedded repositories", repo.Name)
			}
		case "local":
			if repo.Dir == "" {
				return fmt.Errorf("repository %s: dir is required for local repositories", repo.Name)
			}
		case "http":
			if err := validateRepositoryURI(repo.URI); err != nil {
				return fmt.Errorf("repository %s: %w", repo.Name, err)
			}
		case "store":
			if strings.EqualFold(c.Storage.Type, "none") {
				return fmt.Errorf("repository %s: store repositories require storage to be enabled", repo.Name)
			}
		default:
			return fmt.Errorf("repository %s: unsupported type %q", repo.Name, repo.Type)
		}
	}
	return nil
}

// validateRepositoryURI checks that an HTTP repository URI is absolute
func validateRepositoryURI(uri string) error {
	if strings.TrimSpace(uri) == "" {
		return fmt.Errorf("uri is required for http repositories")
	}
	parsed, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid uri %q: %w", uri, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("uri %q must use http or https", uri)
	}
	if parsed.Host == "" {
		return fmt.Errorf("uri %q has no host", uri)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseInt(value, 10, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
