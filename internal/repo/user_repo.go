package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/recipe-extraction-backend/internal/domain"
)

// EnsureUser returns the user row for id, inserting it with SignupAt=now if
// it does not exist yet. Concurrent first calls converge on one row.
func EnsureUser(ctx context.Context, db *gorm.DB, id string, now time.Time) (*domain.User, error) {
	u := &domain.User{ID: id, SignupAt: now, CreatedAt: now}
	if err := db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(u).Error; err != nil {
		return nil, err
	}
	return GetUser(ctx, db, id)
}

// GetUser fetches a user by ID or returns ErrNotFound.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &u, nil
}
