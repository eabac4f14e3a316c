// Package reader decodes the inputs of a truth retrieval run: testset and
// metadata CSV files, and the generation parquet files of the dataset.
package reader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	model "github.com/tigerroll/pvtruth/pkg/eval/core/domain/model"
	exception "github.com/tigerroll/pvtruth/pkg/eval/support/util/exception"
	logger "github.com/tigerroll/pvtruth/pkg/eval/support/util/logger"
)

const moduleName = "reader"

// timestampLayouts are tried in order. Layouts without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04",
	"2006-01-02 15:04",
	"2006-01-02",
}

// ParseTimestamp parses s and returns it in UTC. Naive timestamps are taken to be UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised timestamp %q", s)
}

// columnIndex maps header names to positions, trimming whitespace and a UTF-8 BOM.
func columnIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		h = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if _, dup := idx[h]; !dup {
			idx[h] = i
		}
	}
	return idx
}

func requireColumns(idx map[string]int, names ...string) error {
	var missing []string
	for _, n := range names {
		if _, ok := idx[n]; !ok {
			missing = append(missing, n)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required column(s) %s", strings.Join(missing, ", "))
	}
	return nil
}

func field(record []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// ReadTestset reads a testset CSV with the columns "pv_id" and "timestamp".
// Other columns are ignored. Rows keep their order and duplicates are preserved.
func ReadTestset(r io.Reader) ([]model.TestsetRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, exception.NewEvalError(moduleName, "testset is empty, expected a header line", exception.ErrInvalidConfiguration)
		}
		return nil, exception.NewEvalError(moduleName, "failed to read testset header", err)
	}
	idx := columnIndex(header)
	if err := requireColumns(idx, "pv_id", "timestamp"); err != nil {
		return nil, exception.NewEvalError(moduleName, "invalid testset header", errors.Join(err, exception.ErrInvalidConfiguration))
	}

	var rows []model.TestsetRow
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, exception.NewEvalErrorf(moduleName, "failed to read testset line %d", line, err)
		}

		id, err := parseSiteID(field(record, idx, "pv_id"))
		if err != nil {
			return nil, exception.NewEvalErrorf(moduleName, "testset line %d: invalid pv_id", line, err)
		}
		ts, err := ParseTimestamp(field(record, idx, "timestamp"))
		if err != nil {
			return nil, exception.NewEvalErrorf(moduleName, "testset line %d: invalid timestamp", line, err)
		}
		rows = append(rows, model.TestsetRow{SiteID: id, Timestamp: ts})
	}
	logger.Debugf("Read %d testset rows.", len(rows))
	return rows, nil
}

// ReadMetadata reads the dataset's metadata.csv. "ss_id" is required; "latitude_rounded",
// "longitude_rounded" and "kWp" are optional and empty cells become nil. Other columns
// are ignored. When a site appears more than once the first row wins.
func ReadMetadata(r io.Reader) (map[int64]model.SiteMetadata, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, exception.NewEvalError(moduleName, "failed to read metadata header", err)
	}
	idx := columnIndex(header)
	if err := requireColumns(idx, "ss_id"); err != nil {
		return nil, exception.NewEvalError(moduleName, "invalid metadata header", err)
	}

	sites := make(map[int64]model.SiteMetadata)
	duplicates := 0
	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, exception.NewEvalErrorf(moduleName, "failed to read metadata line %d", line, err)
		}

		id, err := parseSiteID(field(record, idx, "ss_id"))
		if err != nil {
			return nil, exception.NewEvalErrorf(moduleName, "metadata line %d: invalid ss_id", line, err)
		}
		if _, seen := sites[id]; seen {
			duplicates++
			continue
		}

		site := model.SiteMetadata{SiteID: id}
		if site.Latitude, err = optionalFloat(field(record, idx, "latitude_rounded")); err != nil {
			return nil, exception.NewEvalErrorf(moduleName, "metadata line %d: invalid latitude_rounded", line, err)
		}
		if site.Longitude, err = optionalFloat(field(record, idx, "longitude_rounded")); err != nil {
			return nil, exception.NewEvalErrorf(moduleName, "metadata line %d: invalid longitude_rounded", line, err)
		}
		if site.Capacity, err = optionalFloat(field(record, idx, "kWp")); err != nil {
			return nil, exception.NewEvalErrorf(moduleName, "metadata line %d: invalid kWp", line, err)
		}
		sites[id] = site
	}
	if duplicates > 0 {
		logger.Warnf("metadata.csv has %d duplicate ss_id rows; the first occurrence of each site was kept.", duplicates)
	}
	logger.Debugf("Read metadata for %d sites.", len(sites))
	return sites, nil
}

// parseSiteID accepts integer ids, also when written as floats ("42.0").
func parseSiteID(s string) (int64, error) {
	if s == "" {
		return 0, errors.New("empty site id")
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, fmt.Errorf("site id %q is not an integer", s)
	}
	return int64(f), nil
}

func optionalFloat(s string) (*float64, error) {
	switch strings.ToLower(s) {
	case "", "nan", "null", "none":
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
