package pv

import (
	"context"
	"time"

	"github.com/tigerroll/pvtruth/pkg/eval/component/reader"
	"github.com/tigerroll/pvtruth/pkg/eval/core/domain/model"
	"github.com/tigerroll/pvtruth/pkg/eval/core/metrics"
	"github.com/tigerroll/pvtruth/pkg/eval/infrastructure/cache"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"
	"github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

const moduleName = "pv"

// whPerKWh converts generation_Wh to kWh.
const whPerKWh = 1000.0

// TruthAligner looks up observed generation for every testset row at horizons 0..H.
type TruthAligner struct {
	cache    *cache.DatasetCache
	scanner  *reader.GenerationParquetReader
	recorder metrics.MetricRecorder
	tracer   metrics.Tracer
}

// NewTruthAligner creates a TruthAligner over the generation folders of c.
func NewTruthAligner(c *cache.DatasetCache, scanner *reader.GenerationParquetReader, recorder metrics.MetricRecorder, tracer metrics.Tracer) *TruthAligner {
	if scanner == nil {
		scanner = reader.NewGenerationParquetReader()
	}
	if recorder == nil {
		recorder = metrics.NewNoOpMetricRecorder()
	}
	if tracer == nil {
		tracer = metrics.NewNoOpTracer()
	}
	return &TruthAligner{
		cache:    c,
		scanner:  scanner,
		recorder: recorder,
		tracer:   tracer,
	}
}

// bucketKey identifies a generation observation after bucketing.
type bucketKey struct {
	siteID int64
	bucket int64 // unix nanoseconds of the bucket start
}

// observation is the generation record chosen for a bucket.
type observation struct {
	raw time.Time
	wh  *float64
}

// Align returns len(testset)*(horizonHours+1) truth rows: for each testset row in order,
// horizons 0..horizonHours with timestamp floor(t + h hours) at the folder's resolution.
// Values are in kWh and nil where no generation record exists.
//
// An unknown folder fails before any I/O. An empty testset returns no rows without touching the cache.
func (a *TruthAligner) Align(ctx context.Context, testset []model.TestsetRow, horizonHours int, folder string) ([]model.TruthRow, error) {
	ctx, end := a.tracer.StartSpan(ctx, "truth_align", map[string]interface{}{
		"folder":        folder,
		"horizon_hours": horizonHours,
		"testset_rows":  len(testset),
	})
	defer end()
	start := time.Now()

	rows, err := a.align(ctx, testset, horizonHours, folder)
	if err != nil {
		a.tracer.RecordError(ctx, moduleName, err)
		return nil, err
	}
	a.recorder.RecordDuration(ctx, "truth_align", time.Since(start), map[string]string{"folder": folder})
	return rows, nil
}

func (a *TruthAligner) align(ctx context.Context, testset []model.TestsetRow, horizonHours int, folder string) ([]model.TruthRow, error) {
	res, err := model.ResolutionForFolder(folder)
	if err != nil {
		return nil, err
	}
	if horizonHours < 0 {
		return nil, exception.NewEvalErrorf(moduleName, "horizon hours must be >= 0, got %d", horizonHours, exception.ErrInvalidConfiguration)
	}
	if len(testset) == 0 {
		logger.Infof("Empty testset, nothing to align.")
		return []model.TruthRow{}, nil
	}

	if err := a.cache.EnsureTree(ctx, res.Folder); err != nil {
		return nil, err
	}
	files, err := a.cache.ParquetFiles(ctx, res.Folder)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, exception.NewEvalErrorf(moduleName, "no non-empty parquet files found in cached folder '%s'", res.Folder, exception.ErrNoData)
	}

	observations, err := a.loadGeneration(ctx, files, ScanFilter(testset, horizonHours, res), res)
	if err != nil {
		return nil, err
	}

	rows := make([]model.TruthRow, 0, len(testset)*(horizonHours+1))
	missing := 0
	for _, t := range testset {
		for h := 0; h <= horizonHours; h++ {
			ts := res.Floor(t.Timestamp.Add(time.Duration(h) * time.Hour))
			row := model.TruthRow{SiteID: t.SiteID, Timestamp: ts, HorizonHour: h}
			if obs, ok := observations[bucketKey{siteID: t.SiteID, bucket: ts.UnixNano()}]; ok && obs.wh != nil {
				kwh := *obs.wh / whPerKWh
				row.Value = &kwh
			} else {
				missing++
			}
			rows = append(rows, row)
		}
	}

	a.recorder.RecordTruthRows(ctx, res.Folder, len(rows), missing)
	logger.Infof("Aligned %d truth rows for %d testset rows (%s, horizon %dh); %d values missing.",
		len(rows), len(testset), res, horizonHours, missing)
	return rows, nil
}

// loadGeneration scans files and indexes matching records by (site, bucket). When several
// records fall into one bucket the earliest raw timestamp wins.
func (a *TruthAligner) loadGeneration(ctx context.Context, files []string, filter reader.GenerationFilter, res model.Resolution) (map[bucketKey]observation, error) {
	scanCtx, end := a.tracer.StartSpan(ctx, "parquet_scan", map[string]interface{}{"files": len(files)})
	defer end()
	start := time.Now()

	observations := make(map[bucketKey]observation)
	stats, err := a.scanner.Scan(scanCtx, files, filter, func(rec model.GenerationRecord) error {
		key := bucketKey{siteID: rec.SiteID, bucket: res.Floor(rec.Timestamp).UnixNano()}
		if prev, ok := observations[key]; ok && !rec.Timestamp.Before(prev.raw) {
			return nil
		}
		observations[key] = observation{raw: rec.Timestamp, wh: rec.GenerationWh}
		return nil
	})
	if err != nil {
		return nil, err
	}

	a.recorder.RecordFilesScanned(ctx, res.Folder, stats.FilesScanned, stats.FilesPruned)
	a.recorder.RecordRowsRead(ctx, res.Folder, stats.RowsRead, stats.RowsMatched)
	a.recorder.RecordDuration(ctx, "parquet_scan", time.Since(start), map[string]string{"folder": res.Folder})
	a.tracer.RecordEvent(scanCtx, "generation_scanned", map[string]interface{}{
		"files_scanned": stats.FilesScanned,
		"files_pruned":  stats.FilesPruned,
		"rows_matched":  stats.RowsMatched,
	})
	return observations, nil
}

// ScanFilter restricts a generation scan to the testset's sites and to the raw timestamps
// whose buckets any expanded row can join: [floor(min t), floor(max t + H) + step).
// The window runs to the latest testset row, not min t + H, so every row finds its generation.
func ScanFilter(testset []model.TestsetRow, horizonHours int, res model.Resolution) reader.GenerationFilter {
	if len(testset) == 0 {
		return reader.NewGenerationFilter(nil, time.Time{}, time.Time{})
	}
	ids := make([]int64, 0, len(testset))
	lo, hi := testset[0].Timestamp, testset[0].Timestamp
	for _, t := range testset {
		ids = append(ids, t.SiteID)
		if t.Timestamp.Before(lo) {
			lo = t.Timestamp
		}
		if t.Timestamp.After(hi) {
			hi = t.Timestamp
		}
	}
	horizon := time.Duration(horizonHours) * time.Hour
	return reader.NewGenerationFilter(ids, res.Floor(lo), res.Floor(hi.Add(horizon)).Add(res.Step))
}
