// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ersonp/kin-core/internal/domain/kinship"
)

const (
	// DefaultConfigDir is the directory name for kin configuration.
	DefaultConfigDir = ".kin"
	// DefaultConfigFile is the default config file name.
	DefaultConfigFile = "config.yaml"
	// DefaultTreesFile is the default trees file name.
	DefaultTreesFile = "trees.yaml"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverSupabase = "supabase"
)

var (
	// reNonAlphanumeric matches characters that aren't alphanumeric or underscore.
	reNonAlphanumeric = regexp.MustCompile(`[^a-z0-9_]`)
	// reMultipleUnderscores matches consecutive underscores.
	reMultipleUnderscores = regexp.MustCompile(`_+`)
)

// Config holds static infrastructure configuration (read-only after init).
type Config struct {
	Store    StoreConfig    `yaml:"store,omitempty"`
	SQLite   SQLiteConfig   `yaml:"sqlite,omitempty"`
	Postgres PostgresConfig `yaml:"postgres,omitempty"`
	Supabase SupabaseConfig `yaml:"supabase,omitempty"`
	Engine   EngineConfig   `yaml:"engine,omitempty"`
	Server   ServerConfig   `yaml:"server,omitempty"`
	Logging  LoggingConfig  `yaml:"logging,omitempty"`
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string `yaml:"driver,omitempty"`
}

// SQLiteConfig holds configuration for the SQLite database.
type SQLiteConfig struct {
	// Path is the file path to the SQLite database. It is only accepted while
	// a single tree is configured; when empty each tree's path comes from
	// SQLitePathForTree.
	Path string `yaml:"path,omitempty"`
}

// PostgresConfig holds configuration for a Postgres database shared by all trees.
type PostgresConfig struct {
	URL      string `yaml:"url,omitempty"`
	MaxConns int32  `yaml:"max_conns,omitempty"`
}

// SupabaseConfig holds configuration for the Supabase backend.
type SupabaseConfig struct {
	URL string `yaml:"url,omitempty"`
	Key string `yaml:"key,omitempty"`
	// FailureThreshold is how many consecutive failures open the circuit breaker.
	FailureThreshold uint32 `yaml:"failure_threshold,omitempty"`
	// OpenTimeout is how long the breaker stays open before probing again.
	OpenTimeout time.Duration `yaml:"open_timeout,omitempty"`
}

// EngineConfig holds the relationship engine thresholds.
type EngineConfig struct {
	MinGenerationGap        int     `yaml:"min_generation_gap"`
	MaxGenerationGap        int     `yaml:"max_generation_gap"`
	MinParentGap            int     `yaml:"min_parent_gap"`
	MaxParentGap            int     `yaml:"max_parent_gap"`
	MaxSuggestions          int     `yaml:"max_suggestions"`
	MinConfidence           float64 `yaml:"min_confidence"`
	ReciprocalRetries       int     `yaml:"reciprocal_retries"`
	CascadeReciprocalDelete bool    `yaml:"cascade_reciprocal_delete"`
}

// ServerConfig holds configuration for the HTTP API.
type ServerConfig struct {
	Addr           string        `yaml:"addr,omitempty"`
	RateLimit      float64       `yaml:"rate_limit,omitempty"`
	Burst          int           `yaml:"burst,omitempty"`
	AllowedOrigins []string      `yaml:"allowed_origins,omitempty"`
	ReadTimeout    time.Duration `yaml:"read_timeout,omitempty"`
	WriteTimeout   time.Duration `yaml:"write_timeout,omitempty"`
}

// LoggingConfig holds configuration for the zap logger.
type LoggingConfig struct {
	Level  string `yaml:"level,omitempty"`
	Format string `yaml:"format,omitempty"`
}

// Default returns a Config with default values.
func Default() *Config {
	suggest := kinship.DefaultSuggestOptions()
	return &Config{
		Store: StoreConfig{
			Driver: DriverSQLite,
		},
		Postgres: PostgresConfig{
			MaxConns: 10,
		},
		Supabase: SupabaseConfig{
			FailureThreshold: 5,
			OpenTimeout:      30 * time.Second,
		},
		Engine: EngineConfig{
			MinGenerationGap:        kinship.DefaultMinGenerationGap,
			MaxGenerationGap:        kinship.DefaultMaxGenerationGap,
			MinParentGap:            suggest.MinParentGap,
			MaxParentGap:            suggest.MaxParentGap,
			MaxSuggestions:          suggest.MaxSuggestions,
			ReciprocalRetries:       2,
			CascadeReciprocalDelete: true,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			RateLimit:      20,
			Burst:          40,
			AllowedOrigins: []string{"*"},
			ReadTimeout:    15 * time.Second,
			WriteTimeout:   15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load loads configuration from the .kin directory in the given path.
func Load(basePath string) (*Config, error) {
	configFile := filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)

	data, err := os.ReadFile(configFile)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s (run 'kin init' first)", configFile)
	}
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Start with defaults
	cfg := Default()

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if driver := os.Getenv("KIN_STORE_DRIVER"); driver != "" {
		c.Store.Driver = driver
	}
	if url := os.Getenv("KIN_POSTGRES_URL"); url != "" {
		c.Postgres.URL = url
	}
	if url := os.Getenv("SUPABASE_URL"); url != "" && c.Supabase.URL == "" {
		c.Supabase.URL = url
	}
	if key := os.Getenv("SUPABASE_SERVICE_ROLE_KEY"); key != "" && c.Supabase.Key == "" {
		c.Supabase.Key = key
	}
	if level := os.Getenv("KIN_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Driver {
	case DriverSQLite:
	case DriverPostgres:
		if c.Postgres.URL == "" {
			errs = append(errs, errors.New("postgres.url is required for the postgres driver (or set KIN_POSTGRES_URL)"))
		}
	case DriverSupabase:
		if c.Supabase.URL == "" || c.Supabase.Key == "" {
			errs = append(errs, errors.New("supabase.url and supabase.key are required for the supabase driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q (valid: sqlite, postgres, supabase)", c.Store.Driver))
	}

	e := c.Engine
	if e.MinGenerationGap < 0 || e.MaxGenerationGap < 0 {
		errs = append(errs, errors.New("engine generation gaps must not be negative"))
	}
	if e.MaxGenerationGap > 0 && e.MaxGenerationGap < e.MinGenerationGap {
		errs = append(errs, errors.New("engine.max_generation_gap must not be below engine.min_generation_gap"))
	}
	if e.MinParentGap <= 0 || e.MaxParentGap < e.MinParentGap {
		errs = append(errs, errors.New("engine parent gaps must be positive and ordered"))
	}
	if e.MinConfidence < 0 || e.MinConfidence > 1 {
		errs = append(errs, errors.New("engine.min_confidence must be between 0 and 1"))
	}
	if e.ReciprocalRetries < 0 {
		errs = append(errs, errors.New("engine.reciprocal_retries must not be negative"))
	}

	return errors.Join(errs...)
}

// Policy returns the validation thresholds for the relationship validator.
func (e EngineConfig) Policy() kinship.Policy {
	return kinship.Policy{
		MinGenerationGap: e.MinGenerationGap,
		MaxGenerationGap: e.MaxGenerationGap,
	}
}

// SuggestOptions returns the suggestion engine settings.
func (e EngineConfig) SuggestOptions() kinship.SuggestOptions {
	return kinship.SuggestOptions{
		MinParentGap:   e.MinParentGap,
		MaxParentGap:   e.MaxParentGap,
		MaxSuggestions: e.MaxSuggestions,
		MinConfidence:  e.MinConfidence,
	}
}

// ConfigDir returns the path to the .kin config directory.
func ConfigDir(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir)
}

// ConfigFilePath returns the path to the config file.
func ConfigFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultConfigFile)
}

// TreesFilePath returns the path to the trees file.
func TreesFilePath(basePath string) string {
	return filepath.Join(basePath, DefaultConfigDir, DefaultTreesFile)
}

// SanitizeTreeName converts a tree name to a valid directory and key name.
func SanitizeTreeName(name string) string {
	// Convert to lowercase
	name = strings.ToLower(name)

	// Replace spaces and hyphens with underscores
	name = strings.ReplaceAll(name, " ", "_")
	name = strings.ReplaceAll(name, "-", "_")

	// Remove any characters that aren't alphanumeric or underscore
	name = reNonAlphanumeric.ReplaceAllString(name, "")

	// Remove consecutive underscores
	name = reMultipleUnderscores.ReplaceAllString(name, "_")

	// Trim leading/trailing underscores
	name = strings.Trim(name, "_")

	if name == "" {
		return "default"
	}

	return name
}

// SQLitePathForTree returns the SQLite database path for a given tree.
func SQLitePathForTree(basePath, treeName string) string {
	return filepath.Join(TreeDir(basePath, treeName), "kin.db")
}

// TreeDir returns the directory path for a given tree.
func TreeDir(basePath, treeName string) string {
	return filepath.Join(basePath, DefaultConfigDir, "trees", SanitizeTreeName(treeName))
}
