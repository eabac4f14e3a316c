package reader

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/common"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/types"

	model "github.com/tigerroll/pvtruth/pkg/eval/core/domain/model"
	exception "github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"
	logger "github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

// Column names of the generation parquet files.
const (
	ColumnSiteID       = "ss_id"
	ColumnTimestamp    = "datetime_GMT"
	ColumnGenerationWh = "generation_Wh"
)

const defaultBatchSize = 65536

// GenerationFilter selects generation records of a set of sites within [Start, End).
type GenerationFilter struct {
	SiteIDs []int64
	Start   time.Time
	End     time.Time
}

// NewGenerationFilter builds a filter over the distinct sites of ids.
func NewGenerationFilter(ids []int64, start, end time.Time) GenerationFilter {
	uniq := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			uniq = append(uniq, id)
		}
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })
	return GenerationFilter{SiteIDs: uniq, Start: start.UTC(), End: end.UTC()}
}

// containsSite reports whether id is selected. SiteIDs must be sorted.
func (f GenerationFilter) containsSite(id int64) bool {
	i := sort.Search(len(f.SiteIDs), func(i int) bool { return f.SiteIDs[i] >= id })
	return i < len(f.SiteIDs) && f.SiteIDs[i] == id
}

// overlapsSites reports whether any selected site lies in [lo, hi].
func (f GenerationFilter) overlapsSites(lo, hi int64) bool {
	i := sort.Search(len(f.SiteIDs), func(i int) bool { return f.SiteIDs[i] >= lo })
	return i < len(f.SiteIDs) && f.SiteIDs[i] <= hi
}

func (f GenerationFilter) overlapsWindow(lo, hi time.Time) bool {
	return !hi.Before(f.Start) && lo.Before(f.End)
}

// Matches applies the row predicate.
func (f GenerationFilter) Matches(id int64, ts time.Time) bool {
	return !ts.Before(f.Start) && ts.Before(f.End) && f.containsSite(id)
}

// ScanStats summarises a scan.
type ScanStats struct {
	FilesScanned int
	FilesPruned  int
	RowsRead     int
	RowsMatched  int
}

// GenerationParquetReader scans generation parquet files with a site and time predicate.
// Files whose row-group statistics rule out every selected site or the time window are
// skipped without reading any data page.
type GenerationParquetReader struct {
	BatchSize int64
}

// NewGenerationParquetReader creates a reader with the default batch size.
func NewGenerationParquetReader() *GenerationParquetReader {
	return &GenerationParquetReader{BatchSize: defaultBatchSize}
}

// Scan calls fn for each record of files that matches filter. Records with a null
// generation_Wh are passed on with a nil GenerationWh; rows with a null site id or
// timestamp are dropped.
func (r *GenerationParquetReader) Scan(ctx context.Context, files []string, filter GenerationFilter, fn func(model.GenerationRecord) error) (ScanStats, error) {
	var stats ScanStats
	if len(filter.SiteIDs) == 0 || !filter.Start.Before(filter.End) {
		stats.FilesPruned = len(files)
		return stats, nil
	}
	for _, file := range files {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		pruned, err := r.scanFile(ctx, file, filter, fn, &stats)
		if err != nil {
			return stats, exception.NewEvalErrorf(moduleName, "failed to scan '%s'", file, err)
		}
		if pruned {
			stats.FilesPruned++
		} else {
			stats.FilesScanned++
		}
	}
	logger.Debugf("Parquet scan: %d files read, %d pruned, %d rows read, %d matched.",
		stats.FilesScanned, stats.FilesPruned, stats.RowsRead, stats.RowsMatched)
	return stats, nil
}

// column is a resolved leaf column of an open file.
type column struct {
	path    string
	leaf    string
	element *parquet.SchemaElement
}

func resolveColumn(pr *reader.ParquetReader, name string) (column, error) {
	sh := pr.SchemaHandler
	exPath := common.PathToStr([]string{sh.GetRootExName(), name})
	inPath, err := sh.ConvertToInPathStr(exPath)
	if err != nil {
		return column{}, fmt.Errorf("column %q not found", name)
	}
	idx, ok := sh.MapIndex[inPath]
	if !ok {
		return column{}, fmt.Errorf("column %q not found", name)
	}
	parts := common.StrToPath(inPath)
	return column{path: exPath, leaf: parts[len(parts)-1], element: sh.SchemaElements[idx]}, nil
}

func (r *GenerationParquetReader) scanFile(ctx context.Context, file string, filter GenerationFilter, fn func(model.GenerationRecord) error, stats *ScanStats) (bool, error) {
	pf, err := local.NewLocalFileReader(file)
	if err != nil {
		return false, err
	}
	defer pf.Close()

	pr, err := reader.NewParquetColumnReader(pf, 1)
	if err != nil {
		return false, err
	}
	defer pr.ReadStop()

	idCol, err := resolveColumn(pr, ColumnSiteID)
	if err != nil {
		return false, err
	}
	tsCol, err := resolveColumn(pr, ColumnTimestamp)
	if err != nil {
		return false, err
	}
	whCol, err := resolveColumn(pr, ColumnGenerationWh)
	if err != nil {
		return false, err
	}
	toTime, err := timestampDecoder(tsCol.element)
	if err != nil {
		return false, err
	}

	if !anyRowGroupMatches(pr.Footer, idCol, tsCol, toTime, filter) {
		logger.Debugf("Pruned '%s' by row-group statistics.", file)
		return true, nil
	}

	batch := r.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	for remaining := pr.GetNumRows(); remaining > 0; remaining -= batch {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		n := batch
		if remaining < n {
			n = remaining
		}
		ids, _, _, err := pr.ReadColumnByPath(idCol.path, n)
		if err != nil {
			return false, err
		}
		tss, _, _, err := pr.ReadColumnByPath(tsCol.path, n)
		if err != nil {
			return false, err
		}
		whs, _, _, err := pr.ReadColumnByPath(whCol.path, n)
		if err != nil {
			return false, err
		}
		if len(ids) != len(tss) || len(ids) != len(whs) {
			return false, fmt.Errorf("column lengths differ (%d, %d, %d)", len(ids), len(tss), len(whs))
		}

		for i := range ids {
			stats.RowsRead++
			id, ok := toInt64(ids[i])
			if !ok || tss[i] == nil {
				continue
			}
			ts, err := toTime(tss[i])
			if err != nil {
				return false, err
			}
			if !filter.Matches(id, ts) {
				continue
			}
			stats.RowsMatched++
			rec := model.GenerationRecord{SiteID: id, Timestamp: ts}
			if wh, ok := toFloat64(whs[i]); ok {
				rec.GenerationWh = &wh
			}
			if err := fn(rec); err != nil {
				return false, err
			}
		}
	}
	return false, nil
}

// anyRowGroupMatches returns false only when statistics prove that no row group can
// contain a selected row. Missing or undecodable statistics count as a possible match.
func anyRowGroupMatches(footer *parquet.FileMetaData, idCol, tsCol column, toTime func(interface{}) (time.Time, error), filter GenerationFilter) bool {
	for _, rg := range footer.GetRowGroups() {
		if rg.GetNumRows() == 0 {
			continue
		}
		if rowGroupMayMatch(rg, idCol, tsCol, toTime, filter) {
			return true
		}
	}
	return false
}

func rowGroupMayMatch(rg *parquet.RowGroup, idCol, tsCol column, toTime func(interface{}) (time.Time, error), filter GenerationFilter) bool {
	if lo, hi, ok := int64Stats(chunkStats(rg, idCol.leaf), idCol.element.GetType()); ok {
		if !filter.overlapsSites(lo, hi) {
			return false
		}
	}
	if tsCol.element.GetType() == parquet.Type_INT64 {
		if lo, hi, ok := int64Stats(chunkStats(rg, tsCol.leaf), parquet.Type_INT64); ok {
			tlo, err1 := toTime(lo)
			thi, err2 := toTime(hi)
			if err1 == nil && err2 == nil && !filter.overlapsWindow(tlo, thi) {
				return false
			}
		}
	}
	return true
}

func chunkStats(rg *parquet.RowGroup, leaf string) *parquet.Statistics {
	for _, cc := range rg.GetColumns() {
		md := cc.GetMetaData()
		if md == nil {
			continue
		}
		p := md.GetPathInSchema()
		if len(p) > 0 && p[len(p)-1] == leaf {
			return md.GetStatistics()
		}
	}
	return nil
}

// int64Stats decodes plain-encoded INT32/INT64 min and max values.
func int64Stats(s *parquet.Statistics, t parquet.Type) (int64, int64, bool) {
	if s == nil {
		return 0, 0, false
	}
	lo, hi := s.GetMinValue(), s.GetMaxValue()
	if lo == nil || hi == nil {
		lo, hi = s.GetMin(), s.GetMax()
	}
	switch {
	case t == parquet.Type_INT64 && len(lo) == 8 && len(hi) == 8:
		return int64(binary.LittleEndian.Uint64(lo)), int64(binary.LittleEndian.Uint64(hi)), true
	case t == parquet.Type_INT32 && len(lo) == 4 && len(hi) == 4:
		return int64(int32(binary.LittleEndian.Uint32(lo))), int64(int32(binary.LittleEndian.Uint32(hi))), true
	}
	return 0, 0, false
}

// timestampDecoder picks the conversion for the physical and logical type of the
// timestamp column. Timestamps are returned in UTC whether or not the column is
// marked as adjusted to UTC.
func timestampDecoder(el *parquet.SchemaElement) (func(interface{}) (time.Time, error), error) {
	switch el.GetType() {
	case parquet.Type_INT96:
		return func(v interface{}) (time.Time, error) {
			s, ok := v.(string)
			if !ok || len(s) != 12 {
				return time.Time{}, fmt.Errorf("invalid INT96 timestamp %v", v)
			}
			return types.INT96ToTime(s).UTC(), nil
		}, nil
	case parquet.Type_INT64:
		conv := int64Converter(el)
		return func(v interface{}) (time.Time, error) {
			n, ok := toInt64(v)
			if !ok {
				return time.Time{}, fmt.Errorf("invalid INT64 timestamp %v", v)
			}
			return conv(n), nil
		}, nil
	}
	return nil, fmt.Errorf("unsupported type %s for column %q", el.GetType(), ColumnTimestamp)
}

func int64Converter(el *parquet.SchemaElement) func(int64) time.Time {
	if lt := el.GetLogicalType(); lt != nil && lt.IsSetTIMESTAMP() {
		unit := lt.GetTIMESTAMP().GetUnit()
		switch {
		case unit.IsSetMILLIS():
			return func(n int64) time.Time { return types.TIMESTAMP_MILLISToTime(n, true) }
		case unit.IsSetMICROS():
			return func(n int64) time.Time { return types.TIMESTAMP_MICROSToTime(n, true) }
		case unit.IsSetNANOS():
			return func(n int64) time.Time { return types.TIMESTAMP_NANOSToTime(n, true) }
		}
	}
	if el.IsSetConvertedType() {
		switch el.GetConvertedType() {
		case parquet.ConvertedType_TIMESTAMP_MILLIS:
			return func(n int64) time.Time { return types.TIMESTAMP_MILLISToTime(n, true) }
		case parquet.ConvertedType_TIMESTAMP_MICROS:
			return func(n int64) time.Time { return types.TIMESTAMP_MICROSToTime(n, true) }
		}
	}
	// Unannotated INT64: pandas writes nanoseconds.
	return func(n int64) time.Time { return types.TIMESTAMP_NANOSToTime(n, true) }
}

func toInt64(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	}
	return 0, false
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, !math.IsNaN(n)
	case float32:
		return float64(n), !math.IsNaN(float64(n))
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	}
	return 0, false
}
