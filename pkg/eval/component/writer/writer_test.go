package writer_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/reader"

	"github.com/tigerroll/pvtruth/pkg/eval/adapter/database"
	gormadapter "github.com/tigerroll/pvtruth/pkg/eval/adapter/database/gorm"
	"github.com/tigerroll/pvtruth/pkg/eval/adapter/database/gorm/sqlite"
	"github.com/tigerroll/pvtruth/pkg/eval/adapter/storage"
	localstorage "github.com/tigerroll/pvtruth/pkg/eval/adapter/storage/local"
	"github.com/tigerroll/pvtruth/pkg/eval/component/writer"
	"github.com/tigerroll/pvtruth/pkg/eval/core/config"
	"github.com/tigerroll/pvtruth/pkg/eval/core/domain/model"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"
)

func f(v float64) *float64 { return &v }

func newConfig(t *testing.T) (*config.Config, string) {
	t.Helper()
	outDir := t.TempDir()
	cfg := config.NewConfig()
	cfg.PVTruth.AdapterConfigs = map[string]interface{}{
		"storage": map[string]interface{}{
			"output": map[string]interface{}{"type": "local", "base_dir": outDir},
		},
		"database": map[string]interface{}{
			"results": map[string]interface{}{"type": "sqlite", "database": filepath.Join(t.TempDir(), "results.db")},
		},
	}
	return cfg, outDir
}

func newStorageResolver(cfg *config.Config) storage.StorageConnectionResolver {
	return storage.NewConnectionResolver(map[string]storage.StorageProvider{
		"local": localstorage.NewLocalProvider(cfg),
	}, cfg)
}

func truthRecords(runID string) []model.TruthRecord {
	return []model.TruthRecord{
		{RunID: runID, PVID: 42, Timestamp: 1672531200000, HorizonHour: 0, Value: f(0.1)},
		{RunID: runID, PVID: 42, Timestamp: 1672534800000, HorizonHour: 1, Value: nil},
	}
}

func readTruthParquet(t *testing.T, path string) []model.TruthRecord {
	t.Helper()
	pf, err := local.NewLocalFileReader(path)
	require.NoError(t, err)
	defer pf.Close()
	pr, err := reader.NewParquetReader(pf, new(model.TruthRecord), 1)
	require.NoError(t, err)
	defer pr.ReadStop()

	rows := make([]model.TruthRecord, int(pr.GetNumRows()))
	require.NoError(t, pr.Read(&rows))
	return rows
}

func TestParquetWriter_WritesOneFilePerPartition(t *testing.T) {
	ctx := context.Background()
	cfg, outDir := newConfig(t)

	w, err := writer.NewParquetWriter("truth", map[string]interface{}{
		"storageRef":      "output",
		"outputBaseDir":   "results/truth",
		"compressionType": "gzip",
	}, newStorageResolver(cfg), new(model.TruthRecord), func(r model.TruthRecord) (string, error) {
		return writer.RunPartition(r.RunID), nil
	})
	require.NoError(t, err)

	require.NoError(t, w.Open(ctx))
	require.NoError(t, w.Write(ctx, truthRecords("a")))
	require.NoError(t, w.Write(ctx, truthRecords("b")[:1]))
	require.NoError(t, w.Close(ctx))

	objects := w.WrittenObjects()
	require.Len(t, objects, 2)
	assert.Regexp(t, `^results/truth/run_id=a/data_\d{14}_[0-9a-f-]{8}\.parquet$`, objects[0])
	assert.Contains(t, objects[1], "run_id=b/")

	rows := readTruthParquet(t, filepath.Join(outDir, filepath.FromSlash(objects[0])))
	require.Len(t, rows, 2)
	assert.Equal(t, int64(42), rows[0].PVID)
	assert.Equal(t, int64(1672534800000), rows[1].Timestamp)
	require.NotNil(t, rows[0].Value)
	assert.InDelta(t, 0.1, *rows[0].Value, 1e-12)
	assert.Nil(t, rows[1].Value)

	rows = readTruthParquet(t, filepath.Join(outDir, filepath.FromSlash(objects[1])))
	assert.Len(t, rows, 1)
}

func TestParquetWriter_NothingBuffered(t *testing.T) {
	ctx := context.Background()
	cfg, _ := newConfig(t)
	w, err := writer.NewParquetWriter("empty", map[string]interface{}{
		"storageRef": "output", "outputBaseDir": "results/empty",
	}, newStorageResolver(cfg), new(model.MetadataRecord), func(model.MetadataRecord) (string, error) { return "", nil })
	require.NoError(t, err)

	require.NoError(t, w.Open(ctx))
	require.NoError(t, w.Close(ctx))
	assert.Empty(t, w.WrittenObjects())
}

func TestNewParquetWriter_InvalidProperties(t *testing.T) {
	cfg, _ := newConfig(t)
	resolver := newStorageResolver(cfg)
	key := func(model.TruthRecord) (string, error) { return "", nil }

	_, err := writer.NewParquetWriter("x", map[string]interface{}{"outputBaseDir": "a"}, resolver, new(model.TruthRecord), key)
	assert.True(t, exception.IsConfigurationError(err))

	_, err = writer.NewParquetWriter("x", map[string]interface{}{"storageRef": "output"}, resolver, new(model.TruthRecord), key)
	assert.True(t, exception.IsConfigurationError(err))

	_, err = writer.NewParquetWriter("x", map[string]interface{}{
		"storageRef": "output", "outputBaseDir": "a", "compressionType": "LZ77",
	}, resolver, new(model.TruthRecord), key)
	assert.True(t, exception.IsConfigurationError(err))
}

func TestTruthDatabaseWriter(t *testing.T) {
	ctx := context.Background()
	cfg, _ := newConfig(t)
	resolver := gormadapter.NewGormDBConnectionResolver(gormadapter.ResolverParams{
		DBProviders: []database.DBProvider{sqlite.NewProvider(cfg)},
		Cfg:         cfg,
	})
	t.Cleanup(func() { resolver.CloseAll() })

	w := writer.NewTruthDatabaseWriter("results", resolver, true)
	w.BatchSize = 1
	require.NoError(t, w.Open(ctx))
	require.NoError(t, w.Write(ctx, truthRecords("a")))
	require.NoError(t, w.Write(ctx, nil))
	require.NoError(t, w.Close(ctx))

	conn, err := resolver.ResolveDBConnection(ctx, "results")
	require.NoError(t, err)
	count, err := conn.Count(ctx, &model.TruthRecord{}, map[string]interface{}{"run_id": "a"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestTruthDatabaseWriter_UnknownConnection(t *testing.T) {
	cfg, _ := newConfig(t)
	resolver := gormadapter.NewGormDBConnectionResolver(gormadapter.ResolverParams{Cfg: cfg})

	w := writer.NewTruthDatabaseWriter("missing", resolver, false)
	assert.Error(t, w.Open(context.Background()))
	assert.Error(t, w.Write(context.Background(), truthRecords("a")))
}
