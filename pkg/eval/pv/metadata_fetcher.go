// Package pv retrieves PV ground truth for forecast evaluation points: site metadata
// joined onto a testset, and observed generation aligned per forecast horizon.
package pv

import (
	"context"
	"os"
	"time"

	"github.com/tigerroll/pvtruth/pkg/eval/component/reader"
	"github.com/tigerroll/pvtruth/pkg/eval/core/domain/model"
	"github.com/tigerroll/pvtruth/pkg/eval/core/metrics"
	"github.com/tigerroll/pvtruth/pkg/eval/infrastructure/cache"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

// MetadataFetcher joins site metadata onto testset rows.
type MetadataFetcher struct {
	cache        *cache.DatasetCache
	metadataFile string
	recorder     metrics.MetricRecorder
	tracer       metrics.Tracer
}

// NewMetadataFetcher creates a MetadataFetcher reading metadataFile through c.
// Nil recorder and tracer fall back to no-op implementations.
func NewMetadataFetcher(c *cache.DatasetCache, metadataFile string, recorder metrics.MetricRecorder, tracer metrics.Tracer) *MetadataFetcher {
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &MetadataFetcher{
		cache:        c,
		metadataFile: metadataFile,
		recorder:     recorder,
		tracer:       tracer,
	}
}

// Fetch returns one MetadataRow per testset row, in testset order. Sites missing from
// the metadata keep nil location and capacity.
func (f *MetadataFetcher) Fetch(ctx context.Context, testset []model.TestsetRow) ([]model.MetadataRow, error) {
	ctx, end := f.tracer.StartSpan(ctx, "metadata_fetch", map[string]interface{}{"testset_rows": len(testset)})
	defer end()
	start := time.Now()

	if len(testset) == 0 {
		return []model.MetadataRow{}, nil
	}

	sites, err := f.loadSites(ctx)
	if err != nil {
		f.tracer.RecordError(ctx, moduleName, err)
		return nil, err
	}

	rows := make([]model.MetadataRow, len(testset))
	unmatched := 0
	for i, t := range testset {
		rows[i] = model.MetadataRow{SiteID: t.SiteID, Timestamp: t.Timestamp.UTC()}
		site, ok := sites[t.SiteID]
		if !ok {
			unmatched++
			continue
		}
		rows[i].Latitude = site.Latitude
		rows[i].Longitude = site.Longitude
		rows[i].Capacity = site.Capacity
	}
	if unmatched > 0 {
		logger.Warnf("%d of %d testset rows have no site metadata.", unmatched, len(testset))
	}

	f.recorder.RecordDuration(ctx, "metadata_fetch", time.Since(start), nil)
	return rows, nil
}

func (f *MetadataFetcher) loadSites(ctx context.Context) (map[int64]model.SiteMetadata, error) {
	path, err := f.cache.EnsureFile(ctx, f.metadataFile)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, exception.NewEvalErrorf(moduleName, "failed to open cached metadata '%s'", path, err)
	}
	defer file.Close()

	sites, err := reader.ReadMetadata(file)
	if err != nil {
		return nil, exception.NewEvalErrorf(moduleName, "failed to read metadata '%s'", path, err)
	}
	logger.Debugf("Loaded metadata for %d sites.", len(sites))
	return sites, nil
}
