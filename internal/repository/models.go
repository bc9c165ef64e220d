// Package repository provides database abstraction for the triangulation
// engine's run bookkeeping: one record per run plus its leaf-level and
// consolidated results.
package repository

import (
	"database/sql/driver"
	"errors"
	"time"
)

// RunStatus tracks a run's lifecycle in the database, independent of the
// in-memory master.Result it eventually produces.
type RunStatus int

const (
	RunStatusPending RunStatus = iota
	RunStatusRunning
	RunStatusCompleted
	RunStatusFailed
)

// RunRecord represents the runs table: one row per triangulation run
// submitted to the engine.
type RunRecord struct {
	ID           int64      `gorm:"column:id;primaryKey;autoIncrement"`
	UUID         string     `gorm:"column:uuid;type:varchar(64);uniqueIndex"`
	Dimension    int        `gorm:"column:dimension"`
	ProcessCount int        `gorm:"column:process_count"`
	LeafCount    int        `gorm:"column:leaf_count"`
	Mode         string     `gorm:"column:mode;type:varchar(32)"`
	Status       RunStatus  `gorm:"column:status"`
	StatusInfo   string     `gorm:"column:status_info;type:text"`
	InputPath    string     `gorm:"column:input_path;type:varchar(512)"`
	OutputPath   string     `gorm:"column:output_path;type:varchar(512)"`
	CreateTime   time.Time  `gorm:"column:create_time;autoCreateTime"`
	BeginTime    *time.Time `gorm:"column:begin_time"`
	EndTime      *time.Time `gorm:"column:end_time"`
}

// TableName returns the table name for RunRecord.
func (RunRecord) TableName() string {
	return "runs"
}

// LeafResultRecord represents the leaf_results table: one row per leaf's
// serialized wire.LeafResult, stored out-of-band in object storage and
// indexed here by key.
type LeafResultRecord struct {
	ID         int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RunID      int64     `gorm:"column:run_id;index"`
	LeafID     int64     `gorm:"column:leaf_id"`
	CellCount  int64     `gorm:"column:cell_count"`
	OutputKey  string    `gorm:"column:output_key;type:varchar(512)"`
	CreateTime time.Time `gorm:"column:create_time;autoCreateTime"`
}

// TableName returns the table name for LeafResultRecord.
func (LeafResultRecord) TableName() string {
	return "leaf_results"
}

// SummaryRecord represents the consolidation_summaries table: the one row
// a run produces once every leaf result has been merged.
type SummaryRecord struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	RunID         int64     `gorm:"column:run_id;uniqueIndex"`
	LeafCount     int       `gorm:"column:leaf_count"`
	CellsKept     int       `gorm:"column:cells_kept"`
	CellsDropped  int       `gorm:"column:cells_dropped"`
	OutputKey     string    `gorm:"column:output_key;type:varchar(512)"`
	EngineVersion string    `gorm:"column:engine_version;type:varchar(32)"`
	CreateTime    time.Time `gorm:"column:create_time;autoCreateTime"`
}

// TableName returns the table name for SummaryRecord.
func (SummaryRecord) TableName() string {
	return "consolidation_summaries"
}

// JSONField is a custom type for handling JSON fields in GORM, used where
// a record needs to carry an opaque, schema-less blob (e.g. a run's
// decomposition config snapshot).
type JSONField []byte

// Value implements driver.Valuer interface.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner interface.
func (j *JSONField) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
		return nil
	case string:
		*j = []byte(v)
		return nil
	default:
		return errors.New("unsupported type for JSONField")
	}
}

// MarshalJSON implements json.Marshaler interface.
func (j JSONField) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (j *JSONField) UnmarshalJSON(data []byte) error {
	if data == nil || string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}
