// Package model holds the rows exchanged between the pvtruth components
// and the records they are exported as.
package model

import (
	"time"
)

// TestsetRow is a forecast evaluation point: a site and the forecast issue time.
type TestsetRow struct {
	SiteID    int64
	Timestamp time.Time
}

// SiteMetadata is one row of the dataset's metadata.csv after renaming.
// Nil fields were empty in the source file.
type SiteMetadata struct {
	SiteID    int64
	Latitude  *float64
	Longitude *float64
	Capacity  *float64
}

// MetadataRow is a testset row joined with its site metadata.
// Latitude, Longitude and Capacity are nil when the site is unknown.
type MetadataRow struct {
	SiteID    int64
	Timestamp time.Time
	Latitude  *float64
	Longitude *float64
	Capacity  *float64
}

// GenerationRecord is one observation read from a generation parquet file.
type GenerationRecord struct {
	SiteID       int64
	Timestamp    time.Time
	GenerationWh *float64
}

// TruthRow is the observed generation for a testset row at one horizon.
// Timestamp is the bucketed time the value was looked up at; Value is in kWh
// and nil when no generation record matched.
type TruthRow struct {
	SiteID      int64
	Timestamp   time.Time
	Value       *float64
	HorizonHour int
}

// TruthRecord is the export form of TruthRow, written to parquet and to the results database.
type TruthRecord struct {
	ID          uint     `gorm:"column:id;primaryKey;autoIncrement"`
	RunID       string   `gorm:"column:run_id;index" parquet:"name=run_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	PVID        int64    `gorm:"column:pv_id" parquet:"name=pv_id,type=INT64"`
	Timestamp   int64    `gorm:"column:timestamp_ms" parquet:"name=timestamp,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
	HorizonHour int32    `gorm:"column:horizon_hour" parquet:"name=horizon_hour,type=INT32"`
	Value       *float64 `gorm:"column:value" parquet:"name=value,type=DOUBLE,repetitiontype=OPTIONAL"`
}

// TableName specifies the table name for TruthRecord.
func (TruthRecord) TableName() string {
	return "pv_truth"
}

// NewTruthRecord converts a TruthRow for export under the given run id.
func NewTruthRecord(runID string, row TruthRow) TruthRecord {
	return TruthRecord{
		RunID:       runID,
		PVID:        row.SiteID,
		Timestamp:   row.Timestamp.UTC().UnixMilli(),
		HorizonHour: int32(row.HorizonHour),
		Value:       row.Value,
	}
}

// MetadataRecord is the export form of MetadataRow.
type MetadataRecord struct {
	RunID     string   `parquet:"name=run_id,type=BYTE_ARRAY,convertedtype=UTF8"`
	PVID      int64    `parquet:"name=pv_id,type=INT64"`
	Timestamp int64    `parquet:"name=timestamp,type=INT64,convertedtype=TIMESTAMP_MILLIS"`
	Latitude  *float64 `parquet:"name=latitude,type=DOUBLE,repetitiontype=OPTIONAL"`
	Longitude *float64 `parquet:"name=longitude,type=DOUBLE,repetitiontype=OPTIONAL"`
	Capacity  *float64 `parquet:"name=capacity,type=DOUBLE,repetitiontype=OPTIONAL"`
}

// NewMetadataRecord converts a MetadataRow for export under the given run id.
func NewMetadataRecord(runID string, row MetadataRow) MetadataRecord {
	return MetadataRecord{
		RunID:     runID,
		PVID:      row.SiteID,
		Timestamp: row.Timestamp.UTC().UnixMilli(),
		Latitude:  row.Latitude,
		Longitude: row.Longitude,
		Capacity:  row.Capacity,
	}
}
