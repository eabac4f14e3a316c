package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/xitongsys/parquet-go/parquet"
	pqwriter "github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/pvtruth/pkg/eval/adapter/storage"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

// ParquetWriterConfig holds the configuration for ParquetWriter.
type ParquetWriterConfig struct {
	// StorageRef is the name of the storage connection to write to.
	StorageRef string `mapstructure:"storageRef"`
	// OutputBaseDir is the directory within the connection for exported files (e.g., "results/truth").
	OutputBaseDir string `mapstructure:"outputBaseDir"`
	// CompressionType is the compression type for Parquet files ("SNAPPY", "GZIP", "NONE").
	CompressionType string `mapstructure:"compressionType"`
}

// ParquetWriter buffers items by partition key and writes one Parquet file per partition on Close.
type ParquetWriter[T any] struct {
	name     string
	config   ParquetWriterConfig
	resolver storage.StorageConnectionResolver
	// itemPrototype is a pointer to a zero value of T, used for schema reflection.
	itemPrototype *T
	// partitionKeyFunc returns the Hive-style partition directory of an item (e.g., "run_id=...").
	partitionKeyFunc func(T) (string, error)

	storageConn   storage.StorageConnection
	bufferedItems map[string][]T
	totalBuffered int64
	written       []string
}

var _ ItemWriter[any] = (*ParquetWriter[any])(nil)

// NewParquetWriter creates a ParquetWriter from decoded properties.
func NewParquetWriter[T any](
	name string,
	properties map[string]interface{},
	resolver storage.StorageConnectionResolver,
	itemPrototype *T,
	partitionKeyFunc func(T) (string, error),
) (*ParquetWriter[T], error) {
	var config ParquetWriterConfig
	if err := mapstructure.Decode(properties, &config); err != nil {
		return nil, exception.NewEvalErrorf(moduleName, "failed to decode ParquetWriter properties for '%s'", name, err)
	}
	if config.StorageRef == "" {
		return nil, exception.NewEvalErrorf(moduleName, "ParquetWriter '%s' requires 'storageRef' property", name, exception.ErrInvalidConfiguration)
	}
	if config.OutputBaseDir == "" {
		return nil, exception.NewEvalErrorf(moduleName, "ParquetWriter '%s' requires 'outputBaseDir' property", name, exception.ErrInvalidConfiguration)
	}
	if config.CompressionType == "" {
		config.CompressionType = "SNAPPY"
	}
	if _, err := getCompressionCodec(config.CompressionType); err != nil {
		return nil, exception.NewEvalErrorf(moduleName, "ParquetWriter '%s': %v", name, err, exception.ErrInvalidConfiguration)
	}

	return &ParquetWriter[T]{
		name:             name,
		config:           config,
		resolver:         resolver,
		itemPrototype:    itemPrototype,
		partitionKeyFunc: partitionKeyFunc,
		bufferedItems:    make(map[string][]T),
	}, nil
}

// Open resolves the storage connection and clears the buffers.
func (w *ParquetWriter[T]) Open(ctx context.Context) error {
	conn, err := w.resolver.ResolveStorageConnection(ctx, w.config.StorageRef)
	if err != nil {
		return exception.NewEvalErrorf(moduleName, "failed to resolve storage connection '%s' for ParquetWriter '%s'", w.config.StorageRef, w.name, err)
	}
	w.storageConn = conn
	w.bufferedItems = make(map[string][]T)
	w.totalBuffered = 0
	w.written = nil

	logger.Debugf("ParquetWriter '%s' opened. Target storage: %s, base directory: %s", w.name, w.config.StorageRef, w.config.OutputBaseDir)
	return nil
}

// Write buffers items under their partition keys. Nothing is uploaded until Close.
func (w *ParquetWriter[T]) Write(ctx context.Context, items []T) error {
	for _, item := range items {
		partitionKey, err := w.partitionKeyFunc(item)
		if err != nil {
			return exception.NewEvalErrorf(moduleName, "failed to get partition key in ParquetWriter '%s'", w.name, err)
		}
		w.bufferedItems[partitionKey] = append(w.bufferedItems[partitionKey], item)
		w.totalBuffered++
	}
	logger.Debugf("ParquetWriter '%s' buffered %d items. Total buffered: %d.", w.name, len(items), w.totalBuffered)
	return nil
}

// Close writes every partition to a Parquet file and uploads it. Partition failures are
// collected and returned together; the storage connection stays open for its resolver.
func (w *ParquetWriter[T]) Close(ctx context.Context) error {
	if w.storageConn == nil {
		return exception.NewEvalErrorf(moduleName, "ParquetWriter '%s' closed before Open", w.name)
	}
	if w.totalBuffered == 0 {
		logger.Infof("ParquetWriter '%s': no records buffered, skipping Parquet file generation.", w.name)
		return nil
	}

	compressionCodec, _ := getCompressionCodec(w.config.CompressionType)

	keys := make([]string, 0, len(w.bufferedItems))
	for k := range w.bufferedItems {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var multiErr error
	for _, partitionKey := range keys {
		objectName, err := w.flushPartition(ctx, partitionKey, w.bufferedItems[partitionKey], compressionCodec)
		if err != nil {
			multiErr = multierror.Append(multiErr, err)
			continue
		}
		w.written = append(w.written, objectName)
	}

	w.bufferedItems = make(map[string][]T)
	w.totalBuffered = 0
	return multiErr
}

func (w *ParquetWriter[T]) flushPartition(ctx context.Context, partitionKey string, items []T, codec parquet.CompressionCodec) (objectName string, err error) {
	buf := new(bytes.Buffer)
	pw, err := pqwriter.NewParquetWriterFromWriter(buf, w.itemPrototype, 4)
	if err != nil {
		return "", exception.NewEvalErrorf(moduleName, "failed to create Parquet writer for partition '%s' in ParquetWriter '%s'", partitionKey, w.name, err)
	}
	pw.CompressionType = codec

	for _, item := range items {
		if err := pw.Write(item); err != nil {
			return "", exception.NewEvalErrorf(moduleName, "failed to write item for partition '%s' in ParquetWriter '%s'", partitionKey, w.name, err)
		}
	}

	// parquet-go panics on some schema mismatches during WriteStop.
	func() {
		defer func() {
			if r := recover(); r != nil {
				err = exception.NewEvalErrorf(moduleName, "Parquet writer panicked during WriteStop for partition '%s' in ParquetWriter '%s': %v", partitionKey, w.name, r)
			}
		}()
		if stopErr := pw.WriteStop(); stopErr != nil {
			err = exception.NewEvalErrorf(moduleName, "failed to stop Parquet writer for partition '%s' in ParquetWriter '%s'", partitionKey, w.name, stopErr)
		}
	}()
	if err != nil {
		return "", err
	}

	fileName := fmt.Sprintf("data_%s_%s.parquet", time.Now().UTC().Format("20060102150405"), uuid.NewString()[:8])
	objectName = path.Join(w.config.OutputBaseDir, partitionKey, fileName)

	logger.Debugf("ParquetWriter '%s': uploading %d bytes to %s/%s", w.name, buf.Len(), w.config.StorageRef, objectName)
	if err := w.storageConn.Upload(ctx, "", objectName, buf, "application/octet-stream"); err != nil {
		return "", exception.NewEvalErrorf(moduleName, "failed to upload Parquet file '%s' in ParquetWriter '%s'", objectName, w.name, err)
	}
	logger.Infof("ParquetWriter '%s': wrote %d rows to %s", w.name, len(items), objectName)
	return objectName, nil
}

// WrittenObjects returns the object names uploaded by the last Close.
func (w *ParquetWriter[T]) WrittenObjects() []string {
	return append([]string(nil), w.written...)
}

// getCompressionCodec returns the Parquet compression codec from a string.
func getCompressionCodec(compressionType string) (parquet.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return parquet.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return parquet.CompressionCodec_GZIP, nil
	case "NONE", "":
		return parquet.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}

// RunPartition partitions exported records by run id.
func RunPartition(runID string) string {
	return "run_id=" + runID
}
