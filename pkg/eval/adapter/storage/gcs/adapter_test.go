package gcs_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storageAdapter "github.com/tigerroll/pvtruth/pkg/eval/adapter/storage"
	storageConfig "github.com/tigerroll/pvtruth/pkg/eval/adapter/storage/config"
	"github.com/tigerroll/pvtruth/pkg/eval/adapter/storage/gcs"
	"github.com/tigerroll/pvtruth/pkg/eval/adapter/storage/local"
	coreConfig "github.com/tigerroll/pvtruth/pkg/eval/core/config"
	"github.com/tigerroll/pvtruth/pkg/eval/infrastructure/cache"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"
)

const bucket = "uk-pv-mirror"

// fakeGCS serves the JSON API (metadata, listing, delete) and XML API (media) for one bucket.
type fakeGCS struct {
	mu      sync.Mutex
	objects map[string]string
}

func (f *fakeGCS) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	listPath := "/storage/v1/b/" + bucket + "/o"
	switch {
	case r.URL.Path == listPath:
		prefix := r.URL.Query().Get("prefix")
		var names []string
		for name := range f.objects {
			if strings.HasPrefix(name, prefix) {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		items := make([]map[string]interface{}, 0, len(names))
		for _, name := range names {
			items = append(items, f.resource(name))
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"kind": "storage#objects", "items": items})
	case strings.HasPrefix(r.URL.Path, listPath+"/"):
		name := strings.TrimPrefix(r.URL.Path, listPath+"/")
		content, ok := f.objects[name]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]interface{}{
				"error": map[string]interface{}{"code": 404, "message": "No such object: " + bucket + "/" + name},
			})
			return
		}
		switch {
		case r.Method == http.MethodDelete:
			delete(f.objects, name)
			w.WriteHeader(http.StatusNoContent)
		case r.URL.Query().Get("alt") == "media":
			io.WriteString(w, content)
		default:
			writeJSON(w, http.StatusOK, f.resource(name))
		}
	case strings.HasPrefix(r.URL.Path, "/"+bucket+"/"):
		content, ok := f.objects[strings.TrimPrefix(r.URL.Path, "/"+bucket+"/")]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Length", strconv.Itoa(len(content)))
		io.WriteString(w, content)
	default:
		http.NotFound(w, r)
	}
}

func (f *fakeGCS) resource(name string) map[string]interface{} {
	return map[string]interface{}{
		"kind":   "storage#object",
		"bucket": bucket,
		"name":   name,
		"size":   strconv.Itoa(len(f.objects[name])),
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func newFakeConnection(t *testing.T, objects map[string]string) (storageAdapter.StorageConnection, *fakeGCS) {
	t.Helper()
	fake := &fakeGCS{objects: objects}
	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	conn, err := gcs.NewGCSAdapter(storageConfig.StorageConfig{
		Type:       "gcs",
		BucketName: bucket,
		Endpoint:   srv.URL + "/storage/v1/",
	}, "mirror")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn, fake
}

func mirrorObjects() map[string]string {
	return map[string]string{
		"datasets/uk_pv/metadata.csv":               "ss_id,kWp\n42,3.2\n",
		"datasets/uk_pv/30_minutely/":               "",
		"datasets/uk_pv/30_minutely/2023/1.parquet": "PAR1-a",
		"datasets/uk_pv/30_minutely/2023/2.parquet": "PAR1-bb",
		"datasets/uk_pv/5_minutely/2023/1.parquet":  "PAR1-c",
	}
}

func TestNewGCSAdapter_RequiresBucket(t *testing.T) {
	_, err := gcs.NewGCSAdapter(storageConfig.StorageConfig{Type: "gcs"}, "mirror")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bucket_name")
}

func TestClientOptions(t *testing.T) {
	assert.Empty(t, gcs.ClientOptions(storageConfig.StorageConfig{}))
	// Emulator: endpoint plus anonymous access.
	assert.Len(t, gcs.ClientOptions(storageConfig.StorageConfig{Endpoint: "http://localhost:4443/storage/v1/"}), 2)
	assert.Len(t, gcs.ClientOptions(storageConfig.StorageConfig{Endpoint: "http://x", CredentialsFile: "key.json"}), 2)
	assert.Len(t, gcs.ClientOptions(storageConfig.StorageConfig{CredentialsFile: "key.json"}), 1)
}

func TestEmulatorConnection(t *testing.T) {
	conn, err := gcs.NewGCSAdapter(storageConfig.StorageConfig{
		Type:       "gcs",
		BucketName: "uk-pv-mirror",
		Endpoint:   "http://127.0.0.1:1/storage/v1/",
	}, "mirror")
	require.NoError(t, err)
	assert.Equal(t, "gcs", conn.Type())
	assert.Equal(t, "mirror", conn.Name())
	assert.NoError(t, conn.Close())
}

func TestProviderTypeMismatch(t *testing.T) {
	cfg := coreConfig.NewConfig()
	cfg.PVTruth.AdapterConfigs = map[string]interface{}{
		"storage": map[string]interface{}{
			"cache": map[string]interface{}{"type": "local", "base_dir": t.TempDir()},
		},
	}
	_, err := gcs.NewGCSProvider(cfg).GetConnection("cache")
	assert.ErrorContains(t, err, "type mismatch")
}

func TestDownload(t *testing.T) {
	ctx := context.Background()
	conn, _ := newFakeConnection(t, mirrorObjects())

	rc, err := conn.Download(ctx, "", "datasets/uk_pv/metadata.csv")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "ss_id,kWp\n42,3.2\n", string(data))

	_, err = conn.Download(ctx, "", "datasets/uk_pv/missing.csv")
	require.Error(t, err)
	assert.True(t, exception.IsNotFound(err))
}

func TestListObjectsSkipsFolderPlaceholders(t *testing.T) {
	conn, _ := newFakeConnection(t, mirrorObjects())

	var names []string
	require.NoError(t, conn.ListObjects(context.Background(), "", "datasets/uk_pv/30_minutely/", func(name string) error {
		names = append(names, name)
		return nil
	}))
	assert.Equal(t, []string{
		"datasets/uk_pv/30_minutely/2023/1.parquet",
		"datasets/uk_pv/30_minutely/2023/2.parquet",
	}, names)
}

func TestListObjectsStopsOnCallbackError(t *testing.T) {
	conn, _ := newFakeConnection(t, mirrorObjects())

	stop := assert.AnError
	calls := 0
	err := conn.ListObjects(context.Background(), "", "datasets/uk_pv/", func(string) error {
		calls++
		return stop
	})
	assert.ErrorIs(t, err, stop)
	assert.Equal(t, 1, calls)
}

func TestStat(t *testing.T) {
	ctx := context.Background()
	conn, _ := newFakeConnection(t, mirrorObjects())

	info, err := conn.Stat(ctx, "", "datasets/uk_pv/30_minutely/2023/2.parquet")
	require.NoError(t, err)
	assert.False(t, info.IsDir)
	assert.Equal(t, int64(len("PAR1-bb")), info.Size)

	// No object by this name, but objects below it.
	info, err = conn.Stat(ctx, "", "datasets/uk_pv/5_minutely")
	require.NoError(t, err)
	assert.True(t, info.IsDir)
	assert.Equal(t, "datasets/uk_pv/5_minutely", info.Name)

	_, err = conn.Stat(ctx, "", "datasets/uk_pv/hourly")
	require.Error(t, err)
	assert.True(t, exception.IsNotFound(err))
	assert.Contains(t, err.Error(), bucket)
}

func TestDeleteObject(t *testing.T) {
	ctx := context.Background()
	conn, fake := newFakeConnection(t, mirrorObjects())

	require.NoError(t, conn.DeleteObject(ctx, "", "datasets/uk_pv/metadata.csv"))
	assert.NotContains(t, fake.objects, "datasets/uk_pv/metadata.csv")

	assert.NoError(t, conn.DeleteObject(ctx, "", "datasets/uk_pv/metadata.csv"))
}

func TestMirrorFeedsDatasetCache(t *testing.T) {
	ctx := context.Background()
	remote, _ := newFakeConnection(t, mirrorObjects())
	cacheDir := t.TempDir()
	cacheConn, err := local.NewLocalAdapter(storageConfig.StorageConfig{Type: "local", BaseDir: cacheDir}, "cache")
	require.NoError(t, err)

	c, err := cache.NewDatasetCache(remote, cacheConn, "datasets/uk_pv", nil)
	require.NoError(t, err)

	require.NoError(t, c.EnsureTree(ctx, "30_minutely"))
	files, err := c.ParquetFiles(ctx, "30_minutely")
	require.NoError(t, err)
	require.Len(t, files, 2)
	data, err := os.ReadFile(filepath.Join(cacheDir, "30_minutely", "2023", "2.parquet"))
	require.NoError(t, err)
	assert.Equal(t, "PAR1-bb", string(data))

	p, err := c.EnsureFile(ctx, "metadata.csv")
	require.NoError(t, err)
	data, err = os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "ss_id,kWp\n42,3.2\n", string(data))

	err = c.EnsureTree(ctx, "hourly")
	require.Error(t, err)
	assert.True(t, exception.IsNotFound(err))
}
