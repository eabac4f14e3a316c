// Package gcs implements the storage adapter interfaces on Google Cloud Storage.
// It serves a GCS mirror of the PV dataset as the remote store and can receive run outputs.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	storageAdapter "github.com/tigerroll/pvtruth/pkg/eval/adapter/storage"
	storageConfig "github.com/tigerroll/pvtruth/pkg/eval/adapter/storage/config"
	coreConfig "github.com/tigerroll/pvtruth/pkg/eval/core/config"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

const (
	// ProviderType defines the type identifier for this provider.
	ProviderType = "gcs"
)

type gcsAdapter struct {
	cfg    storageConfig.StorageConfig
	name   string
	client *storage.Client
}

var _ storageAdapter.StorageConnection = (*gcsAdapter)(nil)

// ClientOptions converts the connection configuration into client options.
// An endpoint without credentials is treated as an unauthenticated emulator.
func ClientOptions(cfg storageConfig.StorageConfig) []option.ClientOption {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
		if cfg.CredentialsFile == "" {
			opts = append(opts, option.WithoutAuthentication())
		}
	}
	return opts
}

// NewGCSAdapter creates a GCS connection. BucketName is required.
func NewGCSAdapter(cfg storageConfig.StorageConfig, name string) (storageAdapter.StorageConnection, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("gcs storage adapter '%s': bucket_name must be specified in configuration", name)
	}
	client, err := storage.NewClient(context.Background(), ClientOptions(cfg)...)
	if err != nil {
		return nil, fmt.Errorf("gcs storage adapter '%s': failed to create client: %w", name, err)
	}
	return &gcsAdapter{cfg: cfg, name: name, client: client}, nil
}

// NewGCSProvider creates the provider for "gcs" connections.
func NewGCSProvider(cfg *coreConfig.Config) storageAdapter.StorageProvider {
	return storageAdapter.NewProvider(ProviderType, cfg, NewGCSAdapter)
}

func (a *gcsAdapter) Close() error {
	logger.Debugf("GCS storage adapter '%s' closed.", a.name)
	return a.client.Close()
}

func (a *gcsAdapter) Type() string { return ProviderType }

func (a *gcsAdapter) Name() string { return a.name }

func (a *gcsAdapter) bucket(bucket string) *storage.BucketHandle {
	if bucket == "" {
		bucket = a.cfg.BucketName
	}
	return a.client.Bucket(bucket)
}

// Upload writes data to the object. The object becomes visible only when the writer is closed.
func (a *gcsAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	w := a.bucket(bucket).Object(objectName).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, data); err != nil {
		w.Close()
		return fmt.Errorf("gcs storage adapter '%s': failed to upload '%s': %w", a.name, objectName, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs storage adapter '%s': failed to finalize '%s': %w", a.name, objectName, err)
	}
	logger.Debugf("Uploaded '%s' (gcs adapter '%s').", objectName, a.name)
	return nil
}

func (a *gcsAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	r, err := a.bucket(bucket).Object(objectName).NewReader(ctx)
	if err != nil {
		return nil, a.wrap(err, "download", objectName)
	}
	return r, nil
}

func (a *gcsAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	it := a.bucket(bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return a.wrap(err, "list", prefix)
		}
		// Folder placeholder objects end with a slash.
		if strings.HasSuffix(attrs.Name, "/") {
			continue
		}
		if err := fn(attrs.Name); err != nil {
			return err
		}
	}
}

func (a *gcsAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	err := a.bucket(bucket).Object(objectName).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		logger.Warnf("Attempted to delete non-existent object '%s' (gcs adapter '%s').", objectName, a.name)
		return nil
	}
	if err != nil {
		return a.wrap(err, "delete", objectName)
	}
	return nil
}

// Stat returns object attributes, or IsDir when objectName is a prefix of at least one object.
func (a *gcsAdapter) Stat(ctx context.Context, bucket, objectName string) (storageAdapter.ObjectInfo, error) {
	attrs, err := a.bucket(bucket).Object(objectName).Attrs(ctx)
	if err == nil {
		return storageAdapter.ObjectInfo{Name: attrs.Name, Size: attrs.Size}, nil
	}
	if !errors.Is(err, storage.ErrObjectNotExist) {
		return storageAdapter.ObjectInfo{}, a.wrap(err, "stat", objectName)
	}

	dirPrefix := strings.TrimSuffix(objectName, "/") + "/"
	it := a.bucket(bucket).Objects(ctx, &storage.Query{Prefix: dirPrefix})
	if _, err := it.Next(); err != nil {
		if errors.Is(err, iterator.Done) {
			return storageAdapter.ObjectInfo{}, a.wrap(storage.ErrObjectNotExist, "stat", objectName)
		}
		return storageAdapter.ObjectInfo{}, a.wrap(err, "stat", objectName)
	}
	return storageAdapter.ObjectInfo{Name: objectName, IsDir: true}, nil
}

func (a *gcsAdapter) wrap(err error, op, objectName string) error {
	if errors.Is(err, storage.ErrObjectNotExist) || errors.Is(err, storage.ErrBucketNotExist) {
		return exception.NewEvalErrorf("storage", "%s '%s': object not found in bucket '%s' (gcs adapter '%s')",
			op, objectName, a.cfg.BucketName, a.name, errors.Join(exception.ErrObjectNotFound, err))
	}
	return fmt.Errorf("gcs storage adapter '%s': %s '%s': %w", a.name, op, objectName, err)
}
