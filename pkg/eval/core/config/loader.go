package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/tigerroll/pvtruth/pkg/eval/core/domain/model"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"

	"go.uber.org/fx"
)

const moduleName = "config"

// ConfigParams defines the dependencies for NewConfigProvider.
type ConfigParams struct {
	fx.In
	EmbeddedConfig EmbeddedConfig
	Expander       EnvironmentExpander
	EnvFilePath    string `name:"envFilePath" optional:"true"`
}

// loadConfig builds the configuration in four layers: defaults, .env, embedded YAML
// (after placeholder expansion) and finally PVTRUTH_* environment variables.
func loadConfig(envFilePath string, embeddedConfig EmbeddedConfig, expander EnvironmentExpander) (*Config, error) {
	if envFilePath != "" {
		if err := godotenv.Load(envFilePath); err != nil {
			logger.Warnf(".env file (%s) not found or could not be loaded: %v", envFilePath, err)
		}
	} else {
		if err := godotenv.Load(); err != nil {
			logger.Debugf(".env file not found or could not be loaded: %v", err)
		}
	}

	if expander == nil {
		expander = NewOsEnvironmentExpander()
	}
	expanded, err := expander.Expand(embeddedConfig)
	if err != nil {
		return nil, exception.NewEvalError(moduleName, "failed to expand environment placeholders", err)
	}

	// YAML is decoded over the defaults so that keys absent from the file keep their
	// default while explicit zero values (e.g. horizon_hours: 0) still apply.
	cfg := NewConfig()
	if err := yaml.Unmarshal(expanded, cfg); err != nil {
		return nil, exception.NewEvalError(moduleName, "failed to unmarshal embedded config", err)
	}
	if cfg.PVTruth.AdapterConfigs == nil {
		cfg.PVTruth.AdapterConfigs = map[string]interface{}{}
	}

	if err := loadStructFromEnv(reflect.ValueOf(cfg).Elem(), ""); err != nil {
		return nil, exception.NewEvalError(moduleName, "failed to load config from environment variables", err)
	}
	loadAdapterConfigsFromEnv(cfg.PVTruth.AdapterConfigs, "PVTRUTH_ADAPTER_")
	cfg.EmbeddedConfig = embeddedConfig
	return cfg, nil
}

// LoadConfig loads configuration from the embedded YAML and the environment.
func LoadConfig(envFilePath string, embeddedConfig EmbeddedConfig) (*Config, error) {
	return loadConfig(envFilePath, embeddedConfig, nil)
}

// NewConfigProvider is an Fx provider that loads, validates and provides *Config.
// It also applies the configured log level and format.
func NewConfigProvider(params ConfigParams) (*Config, error) {
	cfg, err := loadConfig(params.EnvFilePath, params.EmbeddedConfig, params.Expander)
	if err != nil {
		return nil, err
	}

	logger.SetFormat(cfg.PVTruth.System.Logging.Format)
	logger.SetLogLevel(cfg.PVTruth.System.Logging.Level)
	logger.Infof("Log level set to: %s", cfg.PVTruth.System.Logging.Level)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings that would otherwise fail late in a run.
func (c *Config) Validate() error {
	t := c.PVTruth.Truth
	if t.HorizonHours < 0 {
		return exception.NewEvalErrorf(moduleName, "truth.horizon_hours must be >= 0, got %d", t.HorizonHours, exception.ErrInvalidConfiguration)
	}
	if _, err := model.ResolutionForFolder(t.FolderName); err != nil {
		return exception.NewEvalError(moduleName, "invalid truth.folder_name", err)
	}
	if c.PVTruth.Dataset.Path == "" {
		return exception.NewEvalError(moduleName, "dataset.path must not be empty", exception.ErrInvalidConfiguration)
	}
	switch strings.ToLower(c.PVTruth.Metrics.Exporter) {
	case "prometheus", "otlp", "none", "":
	default:
		return exception.NewEvalErrorf(moduleName, "unknown metrics.exporter %q", c.PVTruth.Metrics.Exporter, exception.ErrInvalidConfiguration)
	}
	return nil
}

// loadStructFromEnv recursively loads configuration values into a struct from environment variables.
// The variable name is the upper-cased chain of yaml tags, e.g. PVTRUTH_TRUTH_HORIZON_HOURS.
func loadStructFromEnv(val reflect.Value, prefix string) error {
	typ := val.Type()
	for i := 0; i < typ.NumField(); i++ {
		field := val.Field(i)
		fieldType := typ.Field(i)
		yamlTag := fieldType.Tag.Get("yaml")
		if yamlTag == "" || yamlTag == "-" {
			continue
		}
		envVarName := strings.ToUpper(prefix + yamlTag)

		if field.Kind() == reflect.Struct {
			if err := loadStructFromEnv(field, envVarName+"_"); err != nil {
				return err
			}
			continue
		}

		envValue, exists := os.LookupEnv(envVarName)
		if !exists {
			continue
		}
		if err := setField(field, envValue); err != nil {
			return fmt.Errorf("failed to set field '%s' from env var '%s': %w", fieldType.Name, envVarName, err)
		}
	}
	return nil
}

// loadAdapterConfigsFromEnv overrides keys of already-declared adapter connections.
//
// Example: PVTRUTH_ADAPTER_STORAGE_REMOTE_TOKEN=hf_xxx sets adapter.storage.remote.token.
// Connections that do not appear in the YAML are not created.
func loadAdapterConfigsFromEnv(adapters map[string]interface{}, prefix string) {
	for kind, section := range adapters {
		conns, ok := section.(map[string]interface{})
		if !ok {
			continue
		}
		for name, raw := range conns {
			fields, ok := raw.(map[string]interface{})
			if !ok {
				continue
			}
			connPrefix := strings.ToUpper(prefix + kind + "_" + name + "_")
			for _, env := range os.Environ() {
				key, value, found := strings.Cut(env, "=")
				if !found || !strings.HasPrefix(key, connPrefix) {
					continue
				}
				field := strings.ToLower(strings.TrimPrefix(key, connPrefix))
				if field == "" {
					continue
				}
				fields[field] = value
				logger.Debugf("adapter.%s.%s.%s overridden from %s", kind, name, field, key)
			}
		}
	}
}

// setField sets the value of a reflect.Value field based on its kind.
func setField(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		intValue, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(intValue)
	case reflect.Float64, reflect.Float32:
		floatValue, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(floatValue)
	case reflect.Bool:
		boolValue, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(boolValue)
	}
	return nil
}
