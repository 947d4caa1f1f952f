package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config represents the complete emingest configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI flags (highest priority)
//  2. Environment variables (EMINGEST_*, plus EM_DATA_DIR for output_dir)
//  3. Configuration file (YAML or TOML)
//  4. Default values (lowest priority)
//
// Store sections follow the same pattern throughout: a Type selector plus a
// map per implementation, decoded by the matching factory.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging" json:"logging"`

	// Source identifies the dataset to ingest and where to fetch it from
	Source SourceConfig `mapstructure:"source" yaml:"source" json:"source"`

	// OutputDir is where downloads, volumes and records are written
	OutputDir string `mapstructure:"output_dir" validate:"required" yaml:"output_dir" json:"output_dir" jsonschema:"description=Output directory (overridden by EM_DATA_DIR)"`

	// Ingest tunes the processing stage
	Ingest IngestConfig `mapstructure:"ingest" yaml:"ingest" json:"ingest"`

	// Storage selects where artifacts and records are persisted
	Storage StorageConfig `mapstructure:"storage" yaml:"storage" json:"storage"`

	// Index selects the record status index
	Index IndexConfig `mapstructure:"index" yaml:"index" json:"index"`

	// Metrics configures the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics" json:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level" json:"level" jsonschema:"enum=DEBUG,enum=INFO,enum=WARN,enum=ERROR"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format" json:"format" jsonschema:"enum=text,enum=json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output" json:"output"`
}

// SourceConfig describes the archive entry and its endpoints.
type SourceConfig struct {
	// Name is recorded as the source of every record
	Name string `mapstructure:"name" validate:"required" yaml:"name" json:"name"`

	// EntryID is the EMPIAR entry to ingest (digits only)
	EntryID string `mapstructure:"entry_id" validate:"required,numeric" yaml:"entry_id" json:"entry_id"`

	// APIBaseURL is the catalog endpoint; the entry URL is {api_base_url}/{entry_id}/
	APIBaseURL string `mapstructure:"api_base_url" validate:"required,url" yaml:"api_base_url" json:"api_base_url"`

	// FTPServer is the archive host, optionally with :port
	FTPServer string `mapstructure:"ftp_server" validate:"required,hostname_port|hostname" yaml:"ftp_server" json:"ftp_server"`

	// DataPath is the remote directory template; {entry_id} is substituted
	DataPath string `mapstructure:"data_path" validate:"required,startswith=/" yaml:"data_path" json:"data_path"`

	// RequestTimeout bounds a single catalog request and the FTP dial
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gt=0" yaml:"request_timeout" json:"request_timeout"`

	// RetryMax is the number of catalog retries (0 = single attempt)
	RetryMax int `mapstructure:"retry_max" validate:"gte=0" yaml:"retry_max" json:"retry_max"`

	// RequestsPerSecond throttles remote file retrievals (0 = unlimited)
	RequestsPerSecond uint `mapstructure:"requests_per_second" yaml:"requests_per_second" json:"requests_per_second"`
}

// IngestConfig tunes the processing stage.
type IngestConfig struct {
	// MaxWorkers bounds how many files are processed concurrently
	MaxWorkers int `mapstructure:"max_workers" validate:"gte=1" yaml:"max_workers" json:"max_workers"`

	// UniqueNames appends a random token to artifact names so two files
	// with the same base name in the same second never collide
	UniqueNames bool `mapstructure:"unique_names" yaml:"unique_names" json:"unique_names"`

	// Progress renders progress bars on stderr
	Progress bool `mapstructure:"progress" yaml:"progress" json:"progress"`
}

// StorageConfig selects the artifact store.
type StorageConfig struct {
	// Type specifies which content store implementation to use
	// Valid values: filesystem, memory, s3
	Type string `mapstructure:"type" validate:"required,oneof=filesystem memory s3" yaml:"type" json:"type" jsonschema:"enum=filesystem,enum=memory,enum=s3"`

	// S3 contains S3-specific configuration
	// Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3" yaml:"s3,omitempty" json:"s3,omitempty"`
}

// IndexConfig selects the record status index.
type IndexConfig struct {
	// Type specifies which index implementation to use
	// Valid values: memory, badger
	Type string `mapstructure:"type" validate:"required,oneof=memory badger" yaml:"type" json:"type" jsonschema:"enum=memory,enum=badger"`

	// Badger contains BadgerDB-specific configuration
	// Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger" yaml:"badger,omitempty" json:"badger,omitempty"`
}

// MetricsConfig controls the metrics endpoint.
type MetricsConfig struct {
	// Enabled starts the /metrics HTTP server
	Enabled bool `mapstructure:"enabled" yaml:"enabled" json:"enabled"`

	// Port is the metrics HTTP port
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port" json:"port"`
}

// Flag names bound by BindFlags.
const (
	FlagConfig   = "config"
	FlagEntryID  = "entry-id"
	FlagLogLevel = "log-level"
)

// BindFlags registers the command line overrides on fs.
func BindFlags(fs *pflag.FlagSet) {
	fs.String(FlagConfig, "", "path to config file (default $XDG_CONFIG_HOME/emingest/config.yaml)")
	fs.String(FlagEntryID, "", "EMPIAR entry to ingest (overrides source.entry_id)")
	fs.String(FlagLogLevel, "", "log level: DEBUG, INFO, WARN, ERROR (overrides logging.level)")
}

// Load loads configuration from file, environment, and defaults.
//
// Configuration precedence (highest to lowest):
//  1. Environment variables (EMINGEST_*, EM_DATA_DIR)
//  2. Configuration file
//  3. Default values
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	return load(configPath, nil)
}

// LoadWithFlags is Load with the flags registered by BindFlags layered on
// top. Only flags the user actually set take effect.
func LoadWithFlags(fs *pflag.FlagSet) (*Config, error) {
	configPath, err := fs.GetString(FlagConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to read --%s: %w", FlagConfig, err)
	}
	return load(configPath, fs)
}

func load(configPath string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Configure viper
	if err := setupViper(v, configPath, fs); err != nil {
		return nil, err
	}

	// Read configuration file if it exists
	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	// Unmarshal into config struct
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Apply defaults for any missing values
	ApplyDefaults(&cfg)

	// Validate configuration
	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables, flags and config
// file settings.
func setupViper(v *viper.Viper, configPath string, fs *pflag.FlagSet) error {
	// Environment variables use EMINGEST_ prefix and underscores
	// Example: EMINGEST_INGEST_MAX_WORKERS=8
	v.SetEnvPrefix("EMINGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// EM_DATA_DIR is the established name for the output directory.
	// AutomaticEnv only consults keys viper knows about, so bind the
	// remaining scalar keys explicitly to make env-only configs work.
	if err := v.BindEnv("output_dir", "EM_DATA_DIR", "EMINGEST_OUTPUT_DIR"); err != nil {
		return fmt.Errorf("failed to bind output_dir env: %w", err)
	}
	for _, key := range envKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind %s env: %w", key, err)
		}
	}

	if fs != nil {
		if err := v.BindPFlag("source.entry_id", fs.Lookup(FlagEntryID)); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", FlagEntryID, err)
		}
		if err := v.BindPFlag("logging.level", fs.Lookup(FlagLogLevel)); err != nil {
			return fmt.Errorf("failed to bind --%s: %w", FlagLogLevel, err)
		}
	}

	// Booleans that default to true cannot be told apart from an explicit
	// false after Unmarshal, so they are seeded here instead of ApplyDefaults.
	v.SetDefault("ingest.progress", true)

	// Configure config file search
	if configPath != "" {
		// Use explicitly specified config file
		v.SetConfigFile(configPath)
	} else {
		// Use default location: $XDG_CONFIG_HOME/emingest/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	return nil
}

// envKeys are the scalar keys settable from the environment alone.
var envKeys = []string{
	"logging.level",
	"logging.format",
	"logging.output",
	"source.name",
	"source.entry_id",
	"source.api_base_url",
	"source.ftp_server",
	"source.data_path",
	"source.request_timeout",
	"source.retry_max",
	"source.requests_per_second",
	"ingest.max_workers",
	"ingest.unique_names",
	"ingest.progress",
	"storage.type",
	"index.type",
	"metrics.enabled",
	"metrics.port",
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found is acceptable - use defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to current
// directory (.) if home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "emingest")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "emingest")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}
