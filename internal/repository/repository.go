package repository

import "context"

// RunRepository defines the interface for run bookkeeping.
type RunRepository interface {
	// CreateRun inserts a new run record.
	CreateRun(ctx context.Context, run *RunRecord) error

	// GetRunByID retrieves a run by its numeric id.
	GetRunByID(ctx context.Context, id int64) (*RunRecord, error)

	// GetRunByUUID retrieves a run by its UUID.
	GetRunByUUID(ctx context.Context, uuid string) (*RunRecord, error)

	// UpdateRunStatus updates a run's status.
	UpdateRunStatus(ctx context.Context, id int64, status RunStatus) error

	// UpdateRunStatusWithInfo updates a run's status with additional info.
	UpdateRunStatusWithInfo(ctx context.Context, id int64, status RunStatus, info string) error

	// LockRunForProcessing attempts to transition a pending run to running,
	// using a row lock to guard against two workers claiming the same run.
	LockRunForProcessing(ctx context.Context, id int64) (bool, error)
}

// LeafResultRepository defines the interface for per-leaf result
// bookkeeping.
type LeafResultRepository interface {
	// SaveLeafResult records one leaf's serialized output.
	SaveLeafResult(ctx context.Context, rec *LeafResultRecord) error

	// GetLeafResultsByRunID retrieves every leaf result recorded for a run.
	GetLeafResultsByRunID(ctx context.Context, runID int64) ([]LeafResultRecord, error)
}

// SummaryRepository defines the interface for consolidated-result
// bookkeeping.
type SummaryRepository interface {
	// SaveSummary records a run's consolidation summary.
	SaveSummary(ctx context.Context, rec *SummaryRecord) error

	// GetSummaryByRunID retrieves the consolidation summary for a run.
	GetSummaryByRunID(ctx context.Context, runID int64) (*SummaryRecord, error)

	// UpdateSummary updates an existing consolidation summary.
	UpdateSummary(ctx context.Context, rec *SummaryRecord) error
}
