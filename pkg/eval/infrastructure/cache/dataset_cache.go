// Package cache keeps a local copy of remote dataset files.
// Files and folders are downloaded once when missing and reused unconditionally afterwards.
package cache

import (
	"context"
	"io"
	"path"
	"sort"
	"strings"

	storageAdapter "github.com/tigerroll/pvtruth/pkg/eval/adapter/storage"
	"github.com/tigerroll/pvtruth/pkg/eval/core/metrics"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

const moduleName = "cache"

// DatasetCache mirrors parts of a remote dataset into a local storage connection.
// Object names in the cache are relative to the dataset root, e.g. "metadata.csv"
// or "30_minutely/2023/01.parquet".
type DatasetCache struct {
	remote      storageAdapter.StorageConnection
	local       storageAdapter.StorageConnection
	datasetPath string
	recorder    metrics.MetricRecorder
}

// NewDatasetCache creates a cache of datasetPath on remote, stored in local.
// local must implement storage.LocalPather.
func NewDatasetCache(remote, local storageAdapter.StorageConnection, datasetPath string, recorder metrics.MetricRecorder) (*DatasetCache, error) {
	if _, ok := local.(storageAdapter.LocalPather); !ok {
		return nil, exception.NewEvalErrorf(moduleName, "cache connection '%s' (type %s) does not expose local file paths", local.Name(), local.Type(), exception.ErrInvalidConfiguration)
	}
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	return &DatasetCache{
		remote:      remote,
		local:       local,
		datasetPath: strings.Trim(datasetPath, "/"),
		recorder:    recorder,
	}, nil
}

// EnsureFile makes sure rel is present in the cache and returns its local path.
// A missing or zero-byte cached file is (re)downloaded; any other cached file is reused.
func (c *DatasetCache) EnsureFile(ctx context.Context, rel string) (string, error) {
	info, err := c.local.Stat(ctx, "", rel)
	switch {
	case err == nil && !info.IsDir && info.Size > 0:
		logger.Debugf("Cache hit for '%s' (%d bytes).", rel, info.Size)
		c.recorder.RecordCacheLookup(ctx, rel, true)
	case err == nil && info.IsDir:
		return "", exception.NewEvalErrorf(moduleName, "cached '%s' is a directory, expected a file", rel)
	case err != nil && !exception.IsNotFound(err):
		return "", exception.NewEvalErrorf(moduleName, "failed to inspect cached '%s'", rel, err)
	default:
		c.recorder.RecordCacheLookup(ctx, rel, false)
		logger.Infof("Fetching '%s' from remote '%s' into cache.", c.remoteName(rel), c.remote.Name())
		if err := c.copyObject(ctx, c.remoteName(rel), rel); err != nil {
			return "", err
		}
	}
	return c.localPath(rel)
}

// EnsureTree makes sure folder exists in the cache, downloading the whole remote folder
// recursively when it does not. An existing folder is never repaired or refreshed.
func (c *DatasetCache) EnsureTree(ctx context.Context, folder string) error {
	folder = strings.Trim(folder, "/")
	info, err := c.local.Stat(ctx, "", folder)
	if err == nil {
		if !info.IsDir {
			return exception.NewEvalErrorf(moduleName, "cached '%s' is a file, expected a directory", folder)
		}
		logger.Debugf("Cache hit for folder '%s'.", folder)
		c.recorder.RecordCacheLookup(ctx, folder, true)
		return nil
	}
	if !exception.IsNotFound(err) {
		return exception.NewEvalErrorf(moduleName, "failed to inspect cached folder '%s'", folder, err)
	}
	c.recorder.RecordCacheLookup(ctx, folder, false)

	remotePrefix := c.remoteName(folder) + "/"
	var names []string
	if err := c.remote.ListObjects(ctx, "", remotePrefix, func(objectName string) error {
		names = append(names, objectName)
		return nil
	}); err != nil {
		return exception.NewEvalErrorf(moduleName, "failed to list remote folder '%s'", remotePrefix, err)
	}
	if len(names) == 0 {
		return exception.NewEvalErrorf(moduleName, "remote folder '%s' on '%s' is empty or missing", remotePrefix, c.remote.Name(), exception.ErrObjectNotFound)
	}

	sort.Strings(names)
	logger.Infof("Downloading %d objects of '%s' from remote '%s'.", len(names), remotePrefix, c.remote.Name())
	for i, name := range names {
		rel := strings.TrimPrefix(name, c.remoteRoot())
		if err := c.copyObject(ctx, name, rel); err != nil {
			return err
		}
		logger.Debugf("Downloaded %d/%d: %s", i+1, len(names), rel)
	}
	return nil
}

// ParquetFiles returns the local paths of all non-empty *.parquet files below folder,
// in lexical order. Zero-byte files are skipped with a warning.
func (c *DatasetCache) ParquetFiles(ctx context.Context, folder string) ([]string, error) {
	folder = strings.Trim(folder, "/")
	var rels []string
	err := c.local.ListObjects(ctx, "", folder+"/", func(objectName string) error {
		if !strings.HasSuffix(objectName, ".parquet") {
			return nil
		}
		info, err := c.local.Stat(ctx, "", objectName)
		if err != nil {
			return err
		}
		if info.Size == 0 {
			logger.Warnf("Skipping empty parquet file '%s'.", objectName)
			return nil
		}
		rels = append(rels, objectName)
		return nil
	})
	if err != nil {
		return nil, exception.NewEvalErrorf(moduleName, "failed to list cached folder '%s'", folder, err)
	}
	sort.Strings(rels)

	paths := make([]string, 0, len(rels))
	for _, rel := range rels {
		p, err := c.localPath(rel)
		if err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, nil
}

func (c *DatasetCache) copyObject(ctx context.Context, remoteName, rel string) error {
	rc, err := c.remote.Download(ctx, "", remoteName)
	if err != nil {
		return exception.NewEvalErrorf(moduleName, "failed to download '%s'", remoteName, err)
	}
	defer rc.Close()

	counter := &countingReader{r: rc}
	if err := c.local.Upload(ctx, "", rel, counter, ""); err != nil {
		return exception.NewEvalErrorf(moduleName, "failed to store '%s' in cache", rel, err)
	}
	c.recorder.RecordBytesDownloaded(ctx, counter.n)
	return nil
}

func (c *DatasetCache) localPath(rel string) (string, error) {
	p, err := c.local.(storageAdapter.LocalPather).LocalPath("", rel)
	if err != nil {
		return "", exception.NewEvalErrorf(moduleName, "failed to resolve cached '%s'", rel, err)
	}
	return p, nil
}

func (c *DatasetCache) remoteRoot() string {
	if c.datasetPath == "" {
		return ""
	}
	return c.datasetPath + "/"
}

func (c *DatasetCache) remoteName(rel string) string {
	return path.Join(c.datasetPath, rel)
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
