// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// primarily for conditional responses (e.g., ETag generation) in the HTTP
// layer. Each function is context-aware and safe to call from services or
// handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/recipe-extraction-backend/internal/domain"
)

// JobsStats returns aggregate metadata for a user's extraction jobs: the
// total number of rows and the maximum UpdatedAt timestamp among those rows.
//
// When the user has no jobs, the returned count is 0 and maxUpdatedAt is nil.
func JobsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	return latestStats(ctx, db.Model(&domain.ExtractionJob{}), "updated_at", userID)
}

// TransactionsStats is the ledger counterpart of JobsStats, keyed on the
// newest created_at since transactions are append-only.
func TransactionsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxCreatedAt *time.Time, err error) {
	return latestStats(ctx, db.Model(&domain.CreditTransaction{}), "created_at", userID)
}

func latestStats(ctx context.Context, model *gorm.DB, column, userID string) (int64, *time.Time, error) {
	q := model.WithContext(ctx).Where("user_id = ?", userID)

	var count int64
	if err := q.Session(&gorm.Session{}).Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest timestamp (avoid MAX() -> TEXT in SQLite)
	var row struct {
		At time.Time
	}
	if err := q.Session(&gorm.Session{}).Select(column + " AS at").Order(column + " DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.At, nil
}
