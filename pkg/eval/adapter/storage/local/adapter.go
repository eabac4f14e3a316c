// Package local provides a local file system implementation of the storage adapter interfaces.
// It backs the download cache and the output directory, and can also serve a
// dataset mirror on disk as the remote store.
package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	storageAdapter "github.com/tigerroll/pvtruth/pkg/eval/adapter/storage"
	storageConfig "github.com/tigerroll/pvtruth/pkg/eval/adapter/storage/config"
	coreConfig "github.com/tigerroll/pvtruth/pkg/eval/core/config"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

const (
	// ProviderType defines the type identifier for this local storage provider.
	ProviderType = "local"
)

// localAdapter implements the storage.StorageConnection interface for local file system operations.
type localAdapter struct {
	cfg  storageConfig.StorageConfig
	name string
}

var (
	_ storageAdapter.StorageConnection = (*localAdapter)(nil)
	_ storageAdapter.LocalPather       = (*localAdapter)(nil)
)

// NewLocalAdapter creates a new localAdapter instance.
// BaseDir must be set; it is created if it does not exist.
func NewLocalAdapter(cfg storageConfig.StorageConfig, name string) (storageAdapter.StorageConnection, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("local storage adapter '%s': BaseDir must be specified in configuration", name)
	}
	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("local storage adapter '%s': failed to stat BaseDir '%s': %w", name, cfg.BaseDir, err)
		}
		if err := os.MkdirAll(cfg.BaseDir, 0o755); err != nil {
			return nil, fmt.Errorf("local storage adapter '%s': failed to create BaseDir '%s': %w", name, cfg.BaseDir, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("local storage adapter '%s': BaseDir '%s' is not a directory", name, cfg.BaseDir)
	}

	return &localAdapter{
		cfg:  cfg,
		name: name,
	}, nil
}

// NewLocalProvider creates the provider for "local" connections.
func NewLocalProvider(cfg *coreConfig.Config) storageAdapter.StorageProvider {
	return storageAdapter.NewProvider(ProviderType, cfg, NewLocalAdapter)
}

// Close does nothing for the local file system adapter as it holds no special resources.
func (a *localAdapter) Close() error {
	logger.Debugf("Local storage adapter '%s' closed.", a.name)
	return nil
}

// Type returns the type of the adapter, which is "local".
func (a *localAdapter) Type() string {
	return ProviderType
}

// Name returns the name of this connection.
func (a *localAdapter) Name() string {
	return a.name
}

// Upload writes data to a temporary file next to the target and renames it into place,
// so an interrupted transfer never leaves a truncated object behind.
func (a *localAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return fmt.Errorf("failed to resolve path for upload: %w", err)
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create directory '%s': %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(fullPath)+".*.part")
	if err != nil {
		return fmt.Errorf("failed to create temporary file in '%s': %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := io.Copy(tmp, &ctxReader{ctx: ctx, r: data}); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write data to file '%s': %w", fullPath, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close file '%s': %w", tmpName, err)
	}
	if err := os.Rename(tmpName, fullPath); err != nil {
		return fmt.Errorf("failed to move '%s' to '%s': %w", tmpName, fullPath, err)
	}
	logger.Debugf("Uploaded data to '%s' (local adapter '%s').", fullPath, a.name)
	return nil
}

// Download opens the file behind objectName. The returned io.ReadCloser must be closed by the caller.
func (a *localAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path for download: %w", err)
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, exception.NewEvalErrorf("storage", "object '%s' not found (local adapter '%s')", objectName, a.name, exception.ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to open file '%s': %w", fullPath, err)
	}
	logger.Debugf("Opened '%s' for download (local adapter '%s').", fullPath, a.name)
	return file, nil
}

// ListObjects walks the tree below prefix and calls fn with each file's object name.
// Object names use forward slashes and are relative to BaseDir (and bucket, if set).
func (a *localAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	basePath, err := a.resolvePath(bucket, "")
	if err != nil {
		return fmt.Errorf("failed to resolve base path for listing: %w", err)
	}

	// Start the walk at the deepest directory implied by the prefix.
	root := basePath
	if dir := path.Dir(prefix); prefix != "" && dir != "." && dir != "/" {
		root = filepath.Join(basePath, filepath.FromSlash(dir))
	}
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}

	err = filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || isPartial(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(basePath, p)
		if err != nil {
			return fmt.Errorf("failed to get relative path for '%s' from '%s': %w", p, basePath, err)
		}
		objectName := filepath.ToSlash(rel)
		if !strings.HasPrefix(objectName, prefix) {
			return nil
		}
		return fn(objectName)
	})
	if err != nil {
		return fmt.Errorf("failed to list objects in '%s' with prefix '%s': %w", basePath, prefix, err)
	}
	logger.Debugf("Listed objects in '%s' with prefix '%s' (local adapter '%s').", basePath, prefix, a.name)
	return nil
}

// DeleteObject deletes the specified object. A missing object is not an error.
func (a *localAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return fmt.Errorf("failed to resolve path for delete: %w", err)
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			logger.Warnf("Attempted to delete non-existent object '%s' (local adapter '%s').", fullPath, a.name)
			return nil
		}
		return fmt.Errorf("failed to delete file '%s': %w", fullPath, err)
	}
	logger.Debugf("Deleted object '%s' (local adapter '%s').", fullPath, a.name)
	return nil
}

// Stat reports the size of a file or that objectName is a directory.
func (a *localAdapter) Stat(ctx context.Context, bucket, objectName string) (storageAdapter.ObjectInfo, error) {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return storageAdapter.ObjectInfo{}, fmt.Errorf("failed to resolve path for stat: %w", err)
	}
	info, err := os.Stat(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return storageAdapter.ObjectInfo{}, exception.NewEvalErrorf("storage", "object '%s' not found (local adapter '%s')", objectName, a.name, exception.ErrObjectNotFound)
		}
		return storageAdapter.ObjectInfo{}, fmt.Errorf("failed to stat '%s': %w", fullPath, err)
	}
	return storageAdapter.ObjectInfo{
		Name:  objectName,
		Size:  info.Size(),
		IsDir: info.IsDir(),
	}, nil
}

// LocalPath returns the file system path of objectName.
func (a *localAdapter) LocalPath(bucket, objectName string) (string, error) {
	return a.resolvePath(bucket, objectName)
}

// Config returns the storage configuration used by this adapter.
func (a *localAdapter) Config() storageConfig.StorageConfig {
	return a.cfg
}

// resolvePath resolves the full path of a file relative to BaseDir (and bucket).
// Paths escaping BaseDir are rejected.
func (a *localAdapter) resolvePath(bucket, objectName string) (string, error) {
	baseDir := a.cfg.BaseDir
	if bucket == "" {
		bucket = a.cfg.BucketName
	}

	fullPath := filepath.Join(baseDir, bucket, filepath.FromSlash(objectName))

	absBaseDir, err := filepath.Abs(baseDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for BaseDir '%s': %w", baseDir, err)
	}
	absFullPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", fullPath, err)
	}
	if absFullPath != absBaseDir && !strings.HasPrefix(absFullPath, absBaseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("resolved path '%s' is outside of BaseDir '%s'", fullPath, baseDir)
	}
	return fullPath, nil
}

func isPartial(name string) bool {
	return strings.HasPrefix(name, ".") && strings.HasSuffix(name, ".part")
}

// ctxReader stops a copy once ctx is cancelled.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *ctxReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
