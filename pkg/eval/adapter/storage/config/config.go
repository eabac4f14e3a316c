package config

import (
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// StorageConfig holds configuration for a single storage connection.
type StorageConfig struct {
	Type            string `yaml:"type"`             // Type of storage ("local", "gcs", "hf").
	BucketName      string `yaml:"bucket_name"`      // Default bucket name for operations.
	CredentialsFile string `yaml:"credentials_file"` // Path to credentials file (e.g., service account key for GCS).
	BaseDir         string `yaml:"base_dir"`         // Base directory for local file system operations.
	Endpoint        string `yaml:"endpoint"`         // API endpoint override (HF Hub URL, GCS emulator).
	Token           string `yaml:"token"`            // Bearer token for the HF Hub.
	Revision        string `yaml:"revision"`         // Dataset revision for the HF Hub.
	Timeout         string `yaml:"timeout"`          // HTTP timeout as a duration string, e.g. "5m".
}

// DatasourcesConfig holds a map of named storage configurations.
type DatasourcesConfig map[string]StorageConfig

// Lookup decodes the storage connection called name from the raw "adapter" section.
func Lookup(adapterConfigs map[string]interface{}, name string) (StorageConfig, error) {
	var cfg StorageConfig
	storageSection, ok := adapterConfigs["storage"].(map[string]interface{})
	if !ok {
		return cfg, fmt.Errorf("invalid 'storage' configuration format: expected map[string]interface{}")
	}
	namedConfig, ok := storageSection[name]
	if !ok {
		return cfg, fmt.Errorf("storage configuration for name '%s' not found", name)
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		TagName:          "yaml",
		WeaklyTypedInput: true,
	})
	if err != nil {
		return cfg, fmt.Errorf("failed to create decoder for storage config '%s': %w", name, err)
	}
	if err := decoder.Decode(namedConfig); err != nil {
		return cfg, fmt.Errorf("failed to decode storage config for '%s': %w", name, err)
	}
	return cfg, nil
}
