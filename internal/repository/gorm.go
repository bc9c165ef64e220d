package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRunRepository implements RunRepository using GORM.
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository.
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// CreateRun inserts a new run record.
func (r *GormRunRepository) CreateRun(ctx context.Context, run *RunRecord) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

// GetRunByID retrieves a run by its numeric id.
func (r *GormRunRepository) GetRunByID(ctx context.Context, id int64) (*RunRecord, error) {
	var run RunRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("run not found: %d", id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// GetRunByUUID retrieves a run by its UUID.
func (r *GormRunRepository) GetRunByUUID(ctx context.Context, uuid string) (*RunRecord, error) {
	var run RunRecord
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("run not found: %s", uuid)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// UpdateRunStatus updates a run's status.
func (r *GormRunRepository) UpdateRunStatus(ctx context.Context, id int64, status RunStatus) error {
	result := r.db.WithContext(ctx).
		Model(&RunRecord{}).
		Where("id = ?", id).
		Update("status", status)

	if result.Error != nil {
		return fmt.Errorf("failed to update run status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("run not found: %d", id)
	}
	return nil
}

// UpdateRunStatusWithInfo updates a run's status with additional info.
func (r *GormRunRepository) UpdateRunStatusWithInfo(ctx context.Context, id int64, status RunStatus, info string) error {
	updates := map[string]interface{}{
		"status":      status,
		"status_info": info,
	}
	if status == RunStatusCompleted || status == RunStatusFailed {
		now := time.Now()
		updates["end_time"] = now
	}

	result := r.db.WithContext(ctx).
		Model(&RunRecord{}).
		Where("id = ?", id).
		Updates(updates)

	if result.Error != nil {
		return fmt.Errorf("failed to update run status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("run not found: %d", id)
	}
	return nil
}

// LockRunForProcessing attempts to lock a pending run and transition it to
// running, using FOR UPDATE to guard against two callers claiming the same
// run concurrently.
func (r *GormRunRepository) LockRunForProcessing(ctx context.Context, id int64) (bool, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var run RunRecord

		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ? AND status = ?", id, RunStatusPending).
			First(&run).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return gorm.ErrRecordNotFound
			}
			return err
		}

		now := time.Now()
		return tx.Model(&RunRecord{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"status":     RunStatusRunning,
				"begin_time": now,
			}).Error
	})

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to lock run: %w", err)
	}
	return true, nil
}

// GormLeafResultRepository implements LeafResultRepository using GORM.
type GormLeafResultRepository struct {
	db *gorm.DB
}

// NewGormLeafResultRepository creates a new GormLeafResultRepository.
func NewGormLeafResultRepository(db *gorm.DB) *GormLeafResultRepository {
	return &GormLeafResultRepository{db: db}
}

// SaveLeafResult records one leaf's serialized output.
func (r *GormLeafResultRepository) SaveLeafResult(ctx context.Context, rec *LeafResultRecord) error {
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to save leaf result: %w", err)
	}
	return nil
}

// GetLeafResultsByRunID retrieves every leaf result recorded for a run.
func (r *GormLeafResultRepository) GetLeafResultsByRunID(ctx context.Context, runID int64) ([]LeafResultRecord, error) {
	var records []LeafResultRecord
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).Order("leaf_id ASC").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query leaf results: %w", err)
	}
	return records, nil
}

// GormSummaryRepository implements SummaryRepository using GORM.
type GormSummaryRepository struct {
	db      *gorm.DB
	version string
}

// NewGormSummaryRepository creates a new GormSummaryRepository. version is
// stamped onto every summary this repository writes, so a persisted result
// can always be traced back to the engine build that produced it.
func NewGormSummaryRepository(db *gorm.DB, version string) *GormSummaryRepository {
	return &GormSummaryRepository{db: db, version: version}
}

// SaveSummary records a run's consolidation summary.
func (r *GormSummaryRepository) SaveSummary(ctx context.Context, rec *SummaryRecord) error {
	rec.EngineVersion = r.version
	if err := r.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("failed to save summary: %w", err)
	}
	return nil
}

// GetSummaryByRunID retrieves the consolidation summary for a run.
func (r *GormSummaryRepository) GetSummaryByRunID(ctx context.Context, runID int64) (*SummaryRecord, error) {
	var rec SummaryRecord
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).First(&rec).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("summary not found for run: %d", runID)
		}
		return nil, fmt.Errorf("failed to get summary: %w", err)
	}
	return &rec, nil
}

// UpdateSummary updates an existing consolidation summary.
func (r *GormSummaryRepository) UpdateSummary(ctx context.Context, rec *SummaryRecord) error {
	res := r.db.WithContext(ctx).
		Model(&SummaryRecord{}).
		Where("run_id = ?", rec.RunID).
		Updates(map[string]interface{}{
			"leaf_count":     rec.LeafCount,
			"cells_kept":     rec.CellsKept,
			"cells_dropped":  rec.CellsDropped,
			"output_key":     rec.OutputKey,
			"engine_version": r.version,
		})

	if res.Error != nil {
		return fmt.Errorf("failed to update summary: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("summary not found for run: %d", rec.RunID)
	}
	return nil
}
