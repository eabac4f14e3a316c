package config

// Package config provides structures and utilities for managing application configuration.

// EmbeddedConfig holds the content of the configuration file, typically passed from main.go.
type EmbeddedConfig []byte

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level is the logging level (e.g., "INFO", "DEBUG").
	Level string `yaml:"level"`
	// Format is "text" for console output or "json".
	Format string `yaml:"format"`
}

// SystemConfig holds system-wide settings.
type SystemConfig struct {
	// Timezone is used only for log display; all data is processed in UTC.
	Timezone string        `yaml:"timezone"`
	Logging  LoggingConfig `yaml:"logging"`
}

// DatasetConfig locates the remote PV dataset.
type DatasetConfig struct {
	// Path is the dataset address in the remote store, e.g. "datasets/openclimatefix/uk_pv".
	Path string `yaml:"path"`
	// StorageRef names the storage connection that serves the dataset.
	StorageRef string `yaml:"storage_ref"`
	// MetadataFile is the metadata object name relative to Path.
	MetadataFile string `yaml:"metadata_file"`
}

// CacheConfig names the local storage connection used as the download cache.
type CacheConfig struct {
	StorageRef string `yaml:"storage_ref"`
}

// TruthConfig holds the defaults for truth alignment.
type TruthConfig struct {
	// HorizonHours is the forecast horizon H; each testset row yields H+1 truth rows.
	HorizonHours int `yaml:"horizon_hours"`
	// FolderName selects the generation resolution folder ("30_minutely" or "5_minutely").
	FolderName string `yaml:"folder_name"`
}

// OutputConfig controls where results are written.
type OutputConfig struct {
	StorageRef  string `yaml:"storage_ref"`
	Prefix      string `yaml:"prefix"`
	Compression string `yaml:"compression"`
	// DBRef names the database connection for the results table. Empty disables the sink.
	DBRef string `yaml:"db_ref"`
}

// MetricsConfig controls the metrics recorder.
type MetricsConfig struct {
	// Exporter is "prometheus", "otlp" or "none".
	Exporter string `yaml:"exporter"`
	// Textfile is the Prometheus textfile written at the end of a run. Empty disables it.
	Textfile string `yaml:"textfile"`
	// Endpoint and Protocol configure the OTLP exporter.
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"`
}

// TracingConfig controls the OpenTelemetry tracer.
type TracingConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Protocol    string `yaml:"protocol"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name"`
}

// PVTruthConfig holds all configuration under the "pvtruth" top-level key.
type PVTruthConfig struct {
	System  SystemConfig  `yaml:"system"`
	Dataset DatasetConfig `yaml:"dataset"`
	Cache   CacheConfig   `yaml:"cache"`
	Truth   TruthConfig   `yaml:"truth"`
	Output  OutputConfig  `yaml:"output"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	// AdapterConfigs holds the raw "adapter" section: "storage" and "database" maps of named connections.
	// Adapter packages decode their own part with mapstructure.
	AdapterConfigs map[string]interface{} `yaml:"adapter"`
}

// Config is the root structure for the entire application configuration.
type Config struct {
	PVTruth PVTruthConfig `yaml:"pvtruth"`
	// EmbeddedConfig holds configuration loaded from an embedded source, not from YAML.
	EmbeddedConfig EmbeddedConfig `yaml:"-"`
}

// NewConfig returns a new instance of Config with default values.
func NewConfig() *Config {
	cfg := &Config{
		PVTruth: PVTruthConfig{
			System: SystemConfig{
				Timezone: "UTC",
				Logging:  LoggingConfig{Level: "INFO", Format: "text"},
			},
			Dataset: DatasetConfig{
				Path:         "datasets/openclimatefix/uk_pv",
				StorageRef:   "remote",
				MetadataFile: "metadata.csv",
			},
			Cache: CacheConfig{StorageRef: "cache"},
			Truth: TruthConfig{
				HorizonHours: 48,
				FolderName:   "30_minutely",
			},
			Output: OutputConfig{
				StorageRef:  "output",
				Compression: "SNAPPY",
			},
			Metrics: MetricsConfig{
				Exporter: "prometheus",
				Protocol: "http",
			},
			Tracing: TracingConfig{
				Protocol:    "http",
				ServiceName: "pvtruth",
			},
		},
	}

	cfg.PVTruth.AdapterConfigs = map[string]interface{}{}
	return cfg
}
