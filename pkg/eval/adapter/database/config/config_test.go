package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbconfig "github.com/tigerroll/pvtruth/pkg/eval/adapter/database/config"
)

func TestLookup(t *testing.T) {
	adapters := map[string]interface{}{
		"database": map[string]interface{}{
			"results": map[string]interface{}{
				"type":     "postgres",
				"host":     "db",
				"port":     "5432",
				"database": "truth",
				"pool": map[string]interface{}{
					"max_open_conns": 4,
				},
			},
		},
	}

	cfg, err := dbconfig.Lookup(adapters, "results")
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Type)
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, 4, cfg.Pool.MaxOpenConns)

	_, err = dbconfig.Lookup(adapters, "other")
	assert.Error(t, err)
	_, err = dbconfig.Lookup(map[string]interface{}{}, "results")
	assert.Error(t, err)
}
