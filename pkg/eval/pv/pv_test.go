package pv_test

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageAdapter "github.com/tigerroll/pvtruth/pkg/eval/adapter/storage"
	storageConfig "github.com/tigerroll/pvtruth/pkg/eval/adapter/storage/config"
	"github.com/tigerroll/pvtruth/pkg/eval/adapter/storage/local"
	"github.com/tigerroll/pvtruth/pkg/eval/core/domain/model"
	"github.com/tigerroll/pvtruth/pkg/eval/infrastructure/cache"
	"github.com/tigerroll/pvtruth/pkg/eval/pv"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/testutil"
)

const datasetPath = "datasets/openclimatefix/uk_pv"

// recordingRemote counts every call that reaches the remote store.
type recordingRemote struct {
	storageAdapter.StorageConnection
	calls     int
	downloads int
}

func (r *recordingRemote) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	r.calls++
	r.downloads++
	return r.StorageConnection.Download(ctx, bucket, objectName)
}

func (r *recordingRemote) ListObjects(ctx context.Context, bucket, prefix string, fn func(string) error) error {
	r.calls++
	return r.StorageConnection.ListObjects(ctx, bucket, prefix, fn)
}

func (r *recordingRemote) Stat(ctx context.Context, bucket, objectName string) (storageAdapter.ObjectInfo, error) {
	r.calls++
	return r.StorageConnection.Stat(ctx, bucket, objectName)
}

type fixture struct {
	remote    *recordingRemote
	remoteDir string
	cacheDir  string
	cache     *cache.DatasetCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	remoteDir := filepath.Join(t.TempDir(), "mirror")
	cacheDir := filepath.Join(t.TempDir(), "pv")

	remoteConn, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: remoteDir}, "remote")
	require.NoError(t, err)
	cacheConn, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: cacheDir}, "cache")
	require.NoError(t, err)

	remote := &recordingRemote{StorageConnection: remoteConn}
	c, err := cache.NewDatasetCache(remote, cacheConn, datasetPath, nil)
	require.NoError(t, err)
	return &fixture{remote: remote, remoteDir: remoteDir, cacheDir: cacheDir, cache: c}
}

func (f *fixture) remotePath(rel string) string {
	return filepath.Join(f.remoteDir, filepath.FromSlash(datasetPath), filepath.FromSlash(rel))
}

func (f *fixture) writeRemote(t *testing.T, rel, content string) {
	t.Helper()
	p := f.remotePath(rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func gen(site int64, at string, wh *float64) testutil.GenerationRow {
	return testutil.GenerationRow{SiteID: site, Timestamp: ts(at), GenerationWh: wh}
}

func newAligner(f *fixture) *pv.TruthAligner {
	return pv.NewTruthAligner(f.cache, nil, nil, nil)
}

func TestAlign_EndToEnd(t *testing.T) {
	f := newFixture(t)
	testutil.WriteGenerationParquet(t, f.remotePath("30_minutely/2023/1.parquet"), []testutil.GenerationRow{
		gen(42, "2023-01-01T00:00:00Z", testutil.F(100)),
		gen(42, "2023-01-01T00:30:00Z", testutil.F(200)),
		gen(42, "2023-01-01T01:00:00Z", testutil.F(300)),
		gen(7, "2023-01-01T01:00:00Z", testutil.F(999)),
	})

	rows, err := newAligner(f).Align(context.Background(),
		[]model.TestsetRow{{SiteID: 42, Timestamp: ts("2023-01-01T00:00:00Z")}}, 1, model.Folder30Minutely)
	require.NoError(t, err)
	require.Len(t, rows, 2)

	assert.Equal(t, 0, rows[0].HorizonHour)
	assert.Equal(t, ts("2023-01-01T00:00:00Z"), rows[0].Timestamp)
	require.NotNil(t, rows[0].Value)
	assert.InDelta(t, 0.1, *rows[0].Value, 1e-12)

	assert.Equal(t, 1, rows[1].HorizonHour)
	assert.Equal(t, ts("2023-01-01T01:00:00Z"), rows[1].Timestamp)
	require.NotNil(t, rows[1].Value)
	assert.InDelta(t, 0.3, *rows[1].Value, 1e-12)

	for _, r := range rows {
		assert.Equal(t, int64(42), r.SiteID)
		assert.Equal(t, time.UTC, r.Timestamp.Location())
	}
}

func TestAlign_MissingRecordsStayMissing(t *testing.T) {
	f := newFixture(t)
	testutil.WriteGenerationParquet(t, f.remotePath("30_minutely/2023/1.parquet"), []testutil.GenerationRow{
		gen(42, "2023-01-01T00:00:00Z", nil),
		gen(42, "2023-01-01T02:00:00Z", testutil.F(0)),
	})

	rows, err := newAligner(f).Align(context.Background(),
		[]model.TestsetRow{{SiteID: 42, Timestamp: ts("2023-01-01T00:00:00Z")}}, 2, model.Folder30Minutely)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Nil(t, rows[0].Value, "null generation_Wh")
	assert.Nil(t, rows[1].Value, "no record at 01:00")
	require.NotNil(t, rows[2].Value, "zero is a value, not missing")
	assert.Equal(t, 0.0, *rows[2].Value)
}

func TestAlign_RowCountAndHorizonRange(t *testing.T) {
	f := newFixture(t)
	testutil.WriteGenerationParquet(t, f.remotePath("30_minutely/a.parquet"), []testutil.GenerationRow{
		gen(1, "2023-06-01T12:00:00Z", testutil.F(500)),
	})
	testutil.WriteGenerationParquet(t, f.remotePath("30_minutely/nested/b.parquet"), []testutil.GenerationRow{
		gen(2, "2023-06-03T15:30:00Z", testutil.F(1500)),
	})

	testset := []model.TestsetRow{
		{SiteID: 1, Timestamp: ts("2023-06-01T10:00:00Z")},
		{SiteID: 1, Timestamp: ts("2023-06-01T10:00:00Z")},
		{SiteID: 2, Timestamp: ts("2023-06-03T12:10:00Z")},
		{SiteID: 404, Timestamp: ts("2023-06-02T00:00:00Z")},
	}
	const horizon = 3
	rows, err := newAligner(f).Align(context.Background(), testset, horizon, model.Folder30Minutely)
	require.NoError(t, err)
	require.Len(t, rows, len(testset)*(horizon+1))

	for i, r := range rows {
		assert.GreaterOrEqual(t, r.HorizonHour, 0)
		assert.LessOrEqual(t, r.HorizonHour, horizon)
		assert.Equal(t, testset[i/(horizon+1)].SiteID, r.SiteID)
	}

	// Duplicated testset rows each get their own values.
	require.NotNil(t, rows[2].Value)
	require.NotNil(t, rows[6].Value)
	assert.InDelta(t, 0.5, *rows[2].Value, 1e-12)
	assert.InDelta(t, 0.5, *rows[6].Value, 1e-12)

	// 12:10 + 3h buckets to 15:00, so the 15:30 record is not joined.
	assert.Equal(t, ts("2023-06-03T15:00:00Z"), rows[11].Timestamp)
	assert.Nil(t, rows[11].Value)

	for _, r := range rows[12:] {
		assert.Nil(t, r.Value, "site without generation data")
	}
}

func TestAlign_LaterTestsetRowsJoin(t *testing.T) {
	f := newFixture(t)
	testutil.WriteGenerationParquet(t, f.remotePath("30_minutely/a.parquet"), []testutil.GenerationRow{
		gen(2, "2023-06-03T13:00:00Z", testutil.F(1500)),
	})

	rows, err := newAligner(f).Align(context.Background(), []model.TestsetRow{
		{SiteID: 1, Timestamp: ts("2023-06-01T10:00:00Z")},
		{SiteID: 2, Timestamp: ts("2023-06-03T12:10:00Z")},
	}, 1, model.Folder30Minutely)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	require.NotNil(t, rows[3].Value)
	assert.InDelta(t, 1.5, *rows[3].Value, 1e-12)
}

func TestAlign_BucketsToFolderResolution(t *testing.T) {
	records := []testutil.GenerationRow{
		gen(42, "2023-01-01T00:00:00Z", testutil.F(1000)),
		gen(42, "2023-01-01T00:05:00Z", testutil.F(2000)),
		gen(42, "2023-01-01T00:06:00Z", testutil.F(9000)),
	}
	testset := []model.TestsetRow{{SiteID: 42, Timestamp: ts("2023-01-01T00:07:00Z")}}

	f := newFixture(t)
	testutil.WriteGenerationParquet(t, f.remotePath("5_minutely/2023.parquet"), records)
	testutil.WriteGenerationParquet(t, f.remotePath("30_minutely/2023.parquet"), records)
	aligner := newAligner(f)

	rows, err := aligner.Align(context.Background(), testset, 0, model.Folder5Minutely)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ts("2023-01-01T00:05:00Z"), rows[0].Timestamp)
	require.NotNil(t, rows[0].Value)
	assert.InDelta(t, 2.0, *rows[0].Value, 1e-12, "earliest record in the bucket wins")

	rows, err = aligner.Align(context.Background(), testset, 0, model.Folder30Minutely)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ts("2023-01-01T00:00:00Z"), rows[0].Timestamp)
	require.NotNil(t, rows[0].Value)
	assert.InDelta(t, 1.0, *rows[0].Value, 1e-12)
}

func TestAlign_NormalisesToUTC(t *testing.T) {
	f := newFixture(t)
	testutil.WriteGenerationParquet(t, f.remotePath("30_minutely/a.parquet"), []testutil.GenerationRow{
		gen(42, "2023-01-01T00:00:00Z", testutil.F(100)),
	})
	cet := time.FixedZone("CET", 3600)

	rows, err := newAligner(f).Align(context.Background(), []model.TestsetRow{
		{SiteID: 42, Timestamp: time.Date(2023, 1, 1, 1, 0, 0, 0, cet)},
	}, 0, model.Folder30Minutely)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, ts("2023-01-01T00:00:00Z"), rows[0].Timestamp)
	assert.NotNil(t, rows[0].Value)
}

func TestAlign_UnknownFolderFailsBeforeIO(t *testing.T) {
	f := newFixture(t)
	testutil.WriteGenerationParquet(t, f.remotePath("hourly/a.parquet"), []testutil.GenerationRow{
		gen(42, "2023-01-01T00:00:00Z", testutil.F(100)),
	})

	_, err := newAligner(f).Align(context.Background(),
		[]model.TestsetRow{{SiteID: 42, Timestamp: ts("2023-01-01T00:00:00Z")}}, 1, "hourly")
	require.Error(t, err)
	assert.True(t, exception.IsConfigurationError(err))
	assert.True(t, errors.Is(err, exception.ErrUnknownResolution))
	assert.Zero(t, f.remote.calls)

	entries, err := os.ReadDir(f.cacheDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAlign_NegativeHorizon(t *testing.T) {
	f := newFixture(t)
	_, err := newAligner(f).Align(context.Background(),
		[]model.TestsetRow{{SiteID: 42, Timestamp: ts("2023-01-01T00:00:00Z")}}, -1, model.Folder30Minutely)
	assert.True(t, exception.IsConfigurationError(err))
	assert.Zero(t, f.remote.calls)
}

func TestAlign_EmptyTestset(t *testing.T) {
	f := newFixture(t)
	rows, err := newAligner(f).Align(context.Background(), nil, 48, model.Folder30Minutely)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Zero(t, f.remote.calls)
}

func TestAlign_NoUsableFiles(t *testing.T) {
	f := newFixture(t)
	f.writeRemote(t, "30_minutely/2023/empty.parquet", "")
	f.writeRemote(t, "30_minutely/README.md", "not data")

	_, err := newAligner(f).Align(context.Background(),
		[]model.TestsetRow{{SiteID: 42, Timestamp: ts("2023-01-01T00:00:00Z")}}, 1, model.Folder30Minutely)
	require.Error(t, err)
	assert.True(t, exception.IsNoData(err))
	assert.Contains(t, err.Error(), "30_minutely")
}

func TestAlign_MissingRemoteFolderPropagates(t *testing.T) {
	f := newFixture(t)
	_, err := newAligner(f).Align(context.Background(),
		[]model.TestsetRow{{SiteID: 42, Timestamp: ts("2023-01-01T00:00:00Z")}}, 1, model.Folder5Minutely)
	require.Error(t, err)
	assert.True(t, exception.IsNotFound(err))
}

func TestAlign_ReusesCachedFolder(t *testing.T) {
	f := newFixture(t)
	testutil.WriteGenerationParquet(t, f.remotePath("30_minutely/a.parquet"), []testutil.GenerationRow{
		gen(42, "2023-01-01T00:00:00Z", testutil.F(100)),
	})
	aligner := newAligner(f)
	testset := []model.TestsetRow{{SiteID: 42, Timestamp: ts("2023-01-01T00:00:00Z")}}

	_, err := aligner.Align(context.Background(), testset, 0, model.Folder30Minutely)
	require.NoError(t, err)
	downloads := f.remote.downloads
	assert.Equal(t, 1, downloads)

	require.NoError(t, os.RemoveAll(filepath.Join(f.remoteDir, "datasets")))
	rows, err := aligner.Align(context.Background(), testset, 0, model.Folder30Minutely)
	require.NoError(t, err)
	require.NotNil(t, rows[0].Value)
	assert.Equal(t, downloads, f.remote.downloads)
}

func TestScanFilter(t *testing.T) {
	res, err := model.ResolutionForFolder(model.Folder30Minutely)
	require.NoError(t, err)

	filter := pv.ScanFilter([]model.TestsetRow{
		{SiteID: 5, Timestamp: ts("2023-01-02T10:40:00Z")},
		{SiteID: 3, Timestamp: ts("2023-01-01T10:10:00Z")},
		{SiteID: 5, Timestamp: ts("2023-01-01T12:00:00Z")},
	}, 2, res)

	assert.Equal(t, []int64{3, 5}, filter.SiteIDs)
	assert.Equal(t, ts("2023-01-01T10:00:00Z"), filter.Start)
	assert.Equal(t, ts("2023-01-02T13:00:00Z"), filter.End)
	assert.True(t, filter.Matches(5, ts("2023-01-02T12:59:59Z")))
	assert.False(t, filter.Matches(5, ts("2023-01-02T13:00:00Z")))
}
