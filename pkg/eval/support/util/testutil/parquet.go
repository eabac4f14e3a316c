// Package testutil writes dataset fixtures for tests.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/writer"
)

// GenerationRow is one fixture row of a generation parquet file.
type GenerationRow struct {
	SiteID       int64
	Timestamp    time.Time
	GenerationWh *float64
}

// generationMicros mirrors the layout of the published dataset files.
type generationMicros struct {
	SSID         int64    `parquet:"name=ss_id,type=INT64"`
	DatetimeGMT  int64    `parquet:"name=datetime_GMT,type=INT64,logicaltype=TIMESTAMP,logicaltype.isadjustedtoutc=true,logicaltype.unit=MICROS"`
	GenerationWh *float64 `parquet:"name=generation_Wh,type=DOUBLE,repetitiontype=OPTIONAL"`
}

// generationMillis uses the legacy converted type annotation.
type generationMillis struct {
	SSID         int32    `parquet:"name=ss_id,type=INT32"`
	DatetimeGMT  int64    `parquet:"name=datetime_GMT,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
	GenerationWh *float64 `parquet:"name=generation_Wh,type=DOUBLE,repetitiontype=OPTIONAL"`
}

// F returns a pointer to v.
func F(v float64) *float64 { return &v }

// WriteGenerationParquet writes rows to path, one row group per group, with
// microsecond timestamps and INT64 site ids.
func WriteGenerationParquet(t testing.TB, path string, groups ...[]GenerationRow) {
	t.Helper()
	write(t, path, new(generationMicros), groups, func(r GenerationRow) interface{} {
		return generationMicros{SSID: r.SiteID, DatetimeGMT: r.Timestamp.UnixMicro(), GenerationWh: r.GenerationWh}
	})
}

// WriteLegacyGenerationParquet writes rows with millisecond timestamps and INT32 site ids.
func WriteLegacyGenerationParquet(t testing.TB, path string, groups ...[]GenerationRow) {
	t.Helper()
	write(t, path, new(generationMillis), groups, func(r GenerationRow) interface{} {
		return generationMillis{SSID: int32(r.SiteID), DatetimeGMT: r.Timestamp.UnixMilli(), GenerationWh: r.GenerationWh}
	})
}

func write(t testing.TB, path string, schema interface{}, groups [][]GenerationRow, conv func(GenerationRow) interface{}) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))

	fw, err := local.NewLocalFileWriter(path)
	require.NoError(t, err)
	pw, err := writer.NewParquetWriter(fw, schema, 1)
	require.NoError(t, err)

	for _, group := range groups {
		for _, r := range group {
			require.NoError(t, pw.Write(conv(r)))
		}
		require.NoError(t, pw.Flush(true))
	}
	require.NoError(t, pw.WriteStop())
	require.NoError(t, fw.Close())
}
