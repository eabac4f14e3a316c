// Package storage defines the common interfaces for the storage adapters.
// The remote dataset store, the local download cache and the output directory
// are all reached through a StorageConnection.
package storage

import (
	"context"
	"errors"
	"io"

	coreAdapter "github.com/tigerroll/pvtruth/pkg/eval/core/adapter"
)

// ErrReadOnly is returned by adapters that cannot write to their backend.
var ErrReadOnly = errors.New("storage is read-only")

// ObjectInfo describes an object or a directory-like prefix.
type ObjectInfo struct {
	Name  string
	Size  int64
	IsDir bool
}

// StorageExecutor defines generic storage operations.
type StorageExecutor interface {
	// Upload uploads data to the specified bucket and object name.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download returns a ReadCloser which must be closed by the caller.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects calls fn for every object below prefix, recursively.
	// Object names passed to fn are full names, usable with Download.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject deletes the specified object from the bucket.
	DeleteObject(ctx context.Context, bucket, objectName string) error
	// Stat describes objectName. Missing objects yield an error wrapping exception.ErrObjectNotFound.
	Stat(ctx context.Context, bucket, objectName string) (ObjectInfo, error)
}

// StorageConnection represents a generic data storage connection.
type StorageConnection interface {
	coreAdapter.ResourceConnection // Close(), Type(), Name()
	StorageExecutor
}

// LocalPather is implemented by connections whose objects are plain files,
// so that readers needing random access can open them directly.
type LocalPather interface {
	LocalPath(bucket, objectName string) (string, error)
}

// StorageProvider manages the acquisition and lifecycle of connections of one type.
type StorageProvider interface {
	// GetConnection retrieves the StorageConnection with the specified name, creating it on first use.
	GetConnection(name string) (StorageConnection, error)
	// CloseAll closes all connections managed by this provider.
	CloseAll() error
	// Type returns the storage type handled by this provider (e.g., "local", "gcs").
	Type() string
	// ForceReconnect closes and re-creates the named connection.
	ForceReconnect(name string) (StorageConnection, error)
}

// StorageConnectionResolver resolves storage connections by name across providers.
type StorageConnectionResolver interface {
	coreAdapter.ResourceConnectionResolver
	ResolveStorageConnection(ctx context.Context, name string) (StorageConnection, error)
}
