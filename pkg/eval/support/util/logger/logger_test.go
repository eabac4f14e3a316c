package logger_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]logger.LogLevel{
		"debug":   logger.LevelDebug,
		"INFO":    logger.LevelInfo,
		"Warning": logger.LevelWarn,
		"error":   logger.LevelError,
		"FATAL":   logger.LevelFatal,
	}
	for in, want := range cases {
		got, ok := logger.ParseLevel(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	got, ok := logger.ParseLevel("verbose")
	assert.False(t, ok)
	assert.Equal(t, logger.LevelInfo, got)
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	logger.SetFormat("json")
	t.Cleanup(func() {
		logger.SetLogLevel("INFO")
		logger.SetFormat("text")
	})

	logger.SetLogLevel("WARN")
	logger.Infof("hidden %d", 1)
	logger.Warnf("shown %d", 2)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	var rec map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "shown 2", rec["msg"])
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "pvtruth", rec["app"])
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger.SetOutput(&buf)
	t.Cleanup(func() { logger.SetLogLevel("INFO") })

	logger.SetLogLevel("loud")
	assert.Equal(t, logger.LevelInfo, logger.GetLogLevel())
	assert.Contains(t, buf.String(), "Defaulting to INFO")
}
