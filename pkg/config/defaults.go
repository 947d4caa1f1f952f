package config

import (
	"path/filepath"
	"strings"
	"time"
)

// Defaults for the EBI EMPIAR archive.
const (
	DefaultSourceName   = "ebi"
	DefaultEntryID      = "11759"
	DefaultAPIBaseURL   = "https://www.ebi.ac.uk/empiar/api/entry"
	DefaultFTPServer    = "ftp.ebi.ac.uk"
	DefaultDataPath     = "/empiar/world_availability/{entry_id}/data/"
	DefaultOutputDir    = "./data/ebi"
	DefaultMaxWorkers   = 4
	DefaultMetricsPort  = 9090
	DefaultIndexDirName = ".index"
)

// ApplyDefaults sets default values for any unspecified configuration fields.
//
// This function is called after loading configuration from file and environment
// variables to fill in any missing values with sensible defaults.
//
// Default Strategy:
//   - Zero values (0, "", nil) are replaced with defaults
//   - Explicit values are preserved
//   - Booleans defaulting to true are seeded in setupViper
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applySourceDefaults(&cfg.Source)

	if cfg.OutputDir == "" {
		cfg.OutputDir = DefaultOutputDir
	}

	applyIngestDefaults(&cfg.Ingest)
	applyStorageDefaults(&cfg.Storage)
	applyIndexDefaults(&cfg.Index, cfg.OutputDir)
	applyMetricsDefaults(&cfg.Metrics)
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applySourceDefaults(cfg *SourceConfig) {
	if cfg.Name == "" {
		cfg.Name = DefaultSourceName
	}
	if cfg.EntryID == "" {
		cfg.EntryID = DefaultEntryID
	}
	if cfg.APIBaseURL == "" {
		cfg.APIBaseURL = DefaultAPIBaseURL
	}
	cfg.APIBaseURL = strings.TrimRight(cfg.APIBaseURL, "/")
	if cfg.FTPServer == "" {
		cfg.FTPServer = DefaultFTPServer
	}
	if cfg.DataPath == "" {
		cfg.DataPath = DefaultDataPath
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 30 * time.Second
	}
}

func applyIngestDefaults(cfg *IngestConfig) {
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Type == "" {
		cfg.Type = "filesystem"
	}
	if cfg.S3 == nil {
		cfg.S3 = make(map[string]any)
	}
}

// applyIndexDefaults places the badger database under the output directory
// unless a path is given.
func applyIndexDefaults(cfg *IndexConfig, outputDir string) {
	if cfg.Type == "" {
		cfg.Type = "memory"
	}
	if cfg.Badger == nil {
		cfg.Badger = make(map[string]any)
	}
	if cfg.Type == "badger" {
		if _, ok := cfg.Badger["path"]; !ok {
			cfg.Badger["path"] = filepath.Join(outputDir, DefaultIndexDirName)
		}
	}
}

func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}

// GetDefaultConfig returns a fully populated configuration with defaults.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Ingest: IngestConfig{Progress: true},
	}
	ApplyDefaults(cfg)
	return cfg
}
