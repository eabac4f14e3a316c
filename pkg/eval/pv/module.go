package pv

import (
	"context"

	"go.uber.org/fx"

	"github.com/tigerroll/pvtruth/pkg/eval/adapter/storage"
	"github.com/tigerroll/pvtruth/pkg/eval/component/reader"
	"github.com/tigerroll/pvtruth/pkg/eval/core/config"
	"github.com/tigerroll/pvtruth/pkg/eval/core/metrics"
	"github.com/tigerroll/pvtruth/pkg/eval/infrastructure/cache"
)

// CacheParams holds the dependencies of NewDatasetCache.
type CacheParams struct {
	fx.In
	Cfg      *config.Config
	Resolver storage.StorageConnectionResolver
	Recorder metrics.MetricRecorder
}

// NewDatasetCache resolves the dataset and cache connections named in the configuration.
func NewDatasetCache(p CacheParams) (*cache.DatasetCache, error) {
	ctx := context.Background()
	remote, err := p.Resolver.ResolveStorageConnection(ctx, p.Cfg.PVTruth.Dataset.StorageRef)
	if err != nil {
		return nil, err
	}
	local, err := p.Resolver.ResolveStorageConnection(ctx, p.Cfg.PVTruth.Cache.StorageRef)
	if err != nil {
		return nil, err
	}
	return cache.NewDatasetCache(remote, local, p.Cfg.PVTruth.Dataset.Path, p.Recorder)
}

// ComponentParams holds the dependencies of the fetcher and the aligner.
type ComponentParams struct {
	fx.In
	Cfg      *config.Config
	Cache    *cache.DatasetCache
	Recorder metrics.MetricRecorder
	Tracer   metrics.Tracer
}

// NewMetadataFetcherProvider builds the MetadataFetcher from configuration.
func NewMetadataFetcherProvider(p ComponentParams) *MetadataFetcher {
	return NewMetadataFetcher(p.Cache, p.Cfg.PVTruth.Dataset.MetadataFile, p.Recorder, p.Tracer)
}

// NewTruthAlignerProvider builds the TruthAligner.
func NewTruthAlignerProvider(p ComponentParams) *TruthAligner {
	return NewTruthAligner(p.Cache, reader.NewGenerationParquetReader(), p.Recorder, p.Tracer)
}

// Module provides the dataset cache, MetadataFetcher and TruthAligner.
var Module = fx.Options(
	fx.Provide(NewDatasetCache),
	fx.Provide(NewMetadataFetcherProvider),
	fx.Provide(NewTruthAlignerProvider),
)
