package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// sectionComments are written above each top-level key of a generated file.
var sectionComments = map[string]string{
	"logging":    "Logging: level (DEBUG, INFO, WARN, ERROR), format (text, json), output (stdout, stderr, file path)",
	"source":     "Archive entry and endpoints. {entry_id} in data_path is replaced with entry_id.",
	"output_dir": "Where downloads, volumes and records are written. EM_DATA_DIR overrides this.",
	"ingest":     "Processing: max_workers bounds concurrent files; unique_names adds a random suffix to artifact names.",
	"storage":    "Artifact store: filesystem (under output_dir), memory, or s3 (see storage.s3).",
	"index":      "Record status index: memory, or badger for one that survives restarts.",
	"metrics":    "Prometheus endpoint served on :port/metrics while a run is active.",
}

// InitConfig writes a commented default configuration to the default
// location and returns its path. An existing file is kept unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a commented default configuration to path.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use force to overwrite)", path)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return err
	}

	if err := os.WriteFile(path, []byte(out), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg as YAML with a header and a comment
// above every top-level section.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}

	// doc is a mapping node: keys at even indices, values at odd.
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key := doc.Content[i]
		if c, ok := sectionComments[key.Value]; ok {
			key.HeadComment = c
		}
	}

	var buf bytes.Buffer
	buf.WriteString("# emingest Configuration File\n")
	buf.WriteString("#\n")
	buf.WriteString("# Environment variables override these values: EMINGEST_<SECTION>_<KEY>,\n")
	buf.WriteString("# e.g. EMINGEST_INGEST_MAX_WORKERS=8.\n\n")

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("failed to render config: %w", err)
	}

	return strings.TrimRight(buf.String(), "\n") + "\n", nil
}
