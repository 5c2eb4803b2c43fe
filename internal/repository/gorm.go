package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// GormRunRepository implements RunRepository using GORM.
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository.
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// Migrate creates or updates the run-history tables.
func (r *GormRunRepository) Migrate() error {
	return r.db.AutoMigrate(&ScheduleRun{}, &NodeCost{})
}

// SaveRun stores a completed schedule run.
func (r *GormRunRepository) SaveRun(ctx context.Context, run *ScheduleRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("failed to save schedule run: %w", err)
	}
	return nil
}

// SaveNodeCosts stores the per-node costs of a run.
func (r *GormRunRepository) SaveNodeCosts(ctx context.Context, costs []*NodeCost) error {
	if len(costs) == 0 {
		return nil
	}
	if err := r.db.WithContext(ctx).Create(costs).Error; err != nil {
		return fmt.Errorf("failed to save node costs: %w", err)
	}
	return nil
}

// GetRun retrieves a run by its ID.
func (r *GormRunRepository) GetRun(ctx context.Context, id int64) (*ScheduleRun, error) {
	var run ScheduleRun
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&run).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("run not found: %d", id)
		}
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

// ListRuns retrieves the most recent runs for a policy.
func (r *GormRunRepository) ListRuns(ctx context.Context, policy string, limit int) ([]*ScheduleRun, error) {
	var runs []*ScheduleRun
	q := r.db.WithContext(ctx).Order("id DESC").Limit(limit)
	if policy != "" {
		q = q.Where("policy = ?", policy)
	}
	if err := q.Find(&runs).Error; err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	return runs, nil
}

// GetNodeCosts retrieves the per-node costs recorded for a run.
func (r *GormRunRepository) GetNodeCosts(ctx context.Context, runID int64) ([]*NodeCost, error) {
	var costs []*NodeCost
	err := r.db.WithContext(ctx).Where("run_id = ?", runID).Order("cost_ticks DESC").Find(&costs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get node costs: %w", err)
	}
	return costs, nil
}
