package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/pvtruth/pkg/eval/core/config"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"
)

const sampleYAML = `
pvtruth:
  system:
    logging:
      level: DEBUG
  dataset:
    path: datasets/openclimatefix/uk_pv
    storage_ref: remote
  truth:
    horizon_hours: 0
    folder_name: 5_minutely
  output:
    db_ref: results
  adapter:
    storage:
      remote:
        type: hf
        endpoint: ${PVTRUTH_TEST_HF_ENDPOINT}
      cache:
        type: local
        base_dir: data/pv
    database:
      results:
        type: sqlite
        database: results.db
`

func TestNewConfig_Defaults(t *testing.T) {
	cfg := config.NewConfig()

	assert.Equal(t, "UTC", cfg.PVTruth.System.Timezone)
	assert.Equal(t, "INFO", cfg.PVTruth.System.Logging.Level)
	assert.Equal(t, 48, cfg.PVTruth.Truth.HorizonHours)
	assert.Equal(t, "30_minutely", cfg.PVTruth.Truth.FolderName)
	assert.Equal(t, "datasets/openclimatefix/uk_pv", cfg.PVTruth.Dataset.Path)
	assert.Equal(t, "metadata.csv", cfg.PVTruth.Dataset.MetadataFile)
	assert.NotNil(t, cfg.PVTruth.AdapterConfigs)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfig_YAMLAndExpansion(t *testing.T) {
	t.Setenv("PVTRUTH_TEST_HF_ENDPOINT", "http://localhost:9999")

	cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.env"), config.EmbeddedConfig(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.PVTruth.System.Logging.Level)
	// Explicit zero from YAML overrides the default of 48.
	assert.Equal(t, 0, cfg.PVTruth.Truth.HorizonHours)
	assert.Equal(t, "5_minutely", cfg.PVTruth.Truth.FolderName)
	// Keys absent from YAML keep their defaults.
	assert.Equal(t, "cache", cfg.PVTruth.Cache.StorageRef)
	assert.Equal(t, "results", cfg.PVTruth.Output.DBRef)

	storage := cfg.PVTruth.AdapterConfigs["storage"].(map[string]interface{})
	remote := storage["remote"].(map[string]interface{})
	assert.Equal(t, "http://localhost:9999", remote["endpoint"])
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("PVTRUTH_TRUTH_HORIZON_HOURS", "6")
	t.Setenv("PVTRUTH_TRUTH_FOLDER_NAME", "30_minutely")
	t.Setenv("PVTRUTH_TRACING_ENABLED", "true")
	t.Setenv("PVTRUTH_ADAPTER_STORAGE_REMOTE_TOKEN", "hf_secret")

	cfg, err := config.LoadConfig(filepath.Join(t.TempDir(), "missing.env"), config.EmbeddedConfig(sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.PVTruth.Truth.HorizonHours)
	assert.Equal(t, "30_minutely", cfg.PVTruth.Truth.FolderName)
	assert.True(t, cfg.PVTruth.Tracing.Enabled)

	storage := cfg.PVTruth.AdapterConfigs["storage"].(map[string]interface{})
	assert.Equal(t, "hf_secret", storage["remote"].(map[string]interface{})["token"])
	_, created := storage["unknown"]
	assert.False(t, created)
}

func TestLoadConfig_EnvFile(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, "test.env")
	require.NoError(t, os.WriteFile(envFile, []byte("PVTRUTH_OUTPUT_PREFIX=from-dotenv\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("PVTRUTH_OUTPUT_PREFIX") })

	cfg, err := config.LoadConfig(envFile, config.EmbeddedConfig(sampleYAML))
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", cfg.PVTruth.Output.Prefix)
}

func TestLoadConfig_BadEnvValue(t *testing.T) {
	t.Setenv("PVTRUTH_TRUTH_HORIZON_HOURS", "forty-eight")

	_, err := config.LoadConfig("", config.EmbeddedConfig(sampleYAML))
	require.Error(t, err)
	var ee *exception.EvalError
	assert.ErrorAs(t, err, &ee)
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	_, err := config.LoadConfig("", config.EmbeddedConfig("pvtruth: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal embedded config")
}

func TestValidate(t *testing.T) {
	cfg := config.NewConfig()
	cfg.PVTruth.Truth.FolderName = "hourly"
	err := cfg.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, exception.ErrUnknownResolution)

	cfg = config.NewConfig()
	cfg.PVTruth.Truth.HorizonHours = -1
	err = cfg.Validate()
	require.Error(t, err)
	assert.True(t, exception.IsConfigurationError(err))

	cfg = config.NewConfig()
	cfg.PVTruth.Metrics.Exporter = "statsd"
	assert.Error(t, cfg.Validate())
}
