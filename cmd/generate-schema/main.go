package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/invopop/jsonschema"
	"github.com/marmos91/emingest/pkg/config"
	"github.com/marmos91/emingest/pkg/record"
)

type schemaTarget struct {
	file        string
	title       string
	description string
	value       any
}

func main() {
	outputDir := "."
	if len(os.Args) > 1 {
		outputDir = os.Args[1]
	}

	targets := []schemaTarget{
		{
			file:        "config.schema.json",
			title:       "emingest Configuration",
			description: "Configuration schema for the emingest ingestion tool",
			value:       &config.Config{},
		},
		{
			file:        "record.schema.json",
			title:       "emingest Metadata Record",
			description: "Sidecar metadata record written next to every converted volume",
			value:       &record.Record{},
		},
	}

	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true, // Inline all definitions for simplicity
	}

	for _, target := range targets {
		schema := reflector.Reflect(target.value)
		schema.Title = target.title
		schema.Description = target.description
		schema.Version = "1.0.0"

		schemaJSON, err := json.MarshalIndent(schema, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error marshaling %s: %v\n", target.file, err)
			os.Exit(1)
		}

		path := filepath.Join(outputDir, target.file)
		if err := os.WriteFile(path, schemaJSON, 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing schema file: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("JSON schema written to %s\n", path)
	}
}
