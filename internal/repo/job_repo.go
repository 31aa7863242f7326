// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// ExtractionJob model.
//
// All status changes go through TransitionJob, a compare-and-swap update
// that only matches rows still in one of the expected statuses. A late
// writer therefore affects zero rows and gets ErrStaleTransition instead of
// clobbering a terminal state.
package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/recipe-extraction-backend/internal/domain"
)

// CreateJob inserts a new job row.
func CreateJob(ctx context.Context, db *gorm.DB, j *domain.ExtractionJob) error {
	return db.WithContext(ctx).Omit(clause.Associations).Create(j).Error
}

// GetJob fetches a job by ID regardless of owner.
func GetJob(ctx context.Context, db *gorm.DB, id string) (*domain.ExtractionJob, error) {
	var j domain.ExtractionJob
	err := db.WithContext(ctx).Where("id = ?", id).First(&j).Error
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// GetJobForUser fetches a job by ID and owner, or ErrNotFound.
func GetJobForUser(ctx context.Context, db *gorm.DB, id, userID string) (*domain.ExtractionJob, error) {
	var j domain.ExtractionJob
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userID).
		First(&j).Error
	if err != nil {
		return nil, err
	}
	return &j, nil
}

// CountJobs returns the total number of jobs owned by userID.
func CountJobs(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.ExtractionJob{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListJobsPage returns a page of a user's jobs, newest first.
func ListJobsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.ExtractionJob, error) {
	var out []domain.ExtractionJob
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// TransitionJob moves a job from one of the allowed source statuses to to,
// applying extra column updates in the same statement. Every from->to pair
// must be a legal transition.
func TransitionJob(ctx context.Context, db *gorm.DB, id string, from []domain.JobStatus, to domain.JobStatus, updates map[string]any) error {
	if len(from) == 0 {
		return fmt.Errorf("transition %s: no source status", id)
	}
	for _, f := range from {
		if !domain.CanTransition(f, to) {
			return fmt.Errorf("illegal job transition %s -> %s", f, to)
		}
	}
	cols := map[string]any{"status": to}
	for k, v := range updates {
		cols[k] = v
	}
	if _, ok := cols["updated_at"]; !ok {
		cols["updated_at"] = time.Now().UTC()
	}
	res := db.WithContext(ctx).
		Model(&domain.ExtractionJob{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(cols)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// UpdateJobProgress records progress on a job that is still processing.
// Returns ErrStaleTransition when the job has already left processing.
func UpdateJobProgress(ctx context.Context, db *gorm.DB, id string, progress int, step string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.ExtractionJob{}).
		Where("id = ? AND status = ?", id, domain.StatusProcessing).
		Updates(map[string]any{"progress": progress, "current_step": step, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// ClaimJob marks a queued processing job as handed to the engine. It
// returns ErrStaleTransition when the job was already claimed or has left
// processing, so each processing entry reaches the engine at most once.
func ClaimJob(ctx context.Context, db *gorm.DB, id string, now time.Time) error {
	res := db.WithContext(ctx).
		Model(&domain.ExtractionJob{}).
		Where("id = ? AND status = ? AND current_step = ?", id, domain.StatusProcessing, domain.StepQueued).
		Updates(map[string]any{"current_step": domain.StepExtracting, "updated_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// ListStuckJobs returns processing jobs that started before cutoff.
func ListStuckJobs(ctx context.Context, db *gorm.DB, cutoff time.Time, limit int) ([]domain.ExtractionJob, error) {
	var out []domain.ExtractionJob
	err := db.WithContext(ctx).
		Where("status = ? AND started_at IS NOT NULL AND started_at < ?", domain.StatusProcessing, cutoff).
		Order("started_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

// IsNotFound reports whether err means the record is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
