package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/recipe-extraction-backend/internal/domain"
)

// GetReferralCodeByUser returns the code owned by userID, or ErrNotFound.
func GetReferralCodeByUser(ctx context.Context, db *gorm.DB, userID string) (*domain.ReferralCode, error) {
	var c domain.ReferralCode
	if err := db.WithContext(ctx).Where("user_id = ?", userID).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// GetReferralCode looks a code up by its normalized text, or ErrNotFound.
func GetReferralCode(ctx context.Context, db *gorm.DB, code string) (*domain.ReferralCode, error) {
	var c domain.ReferralCode
	if err := db.WithContext(ctx).Where("code = ?", code).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateReferralCode inserts a code. Returns ErrDuplicate when either the
// owner already has a code or the text collides with another user's code.
func CreateReferralCode(ctx context.Context, db *gorm.DB, c *domain.ReferralCode) error {
	if err := db.WithContext(ctx).Omit(clause.Associations).Create(c).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// CreateRedemption inserts a redemption. Returns ErrDuplicate when the
// referee has already redeemed a code.
func CreateRedemption(ctx context.Context, db *gorm.DB, r *domain.ReferralRedemption) error {
	if err := db.WithContext(ctx).Omit(clause.Associations).Create(r).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// GetRedemptionByReferee returns the referee's redemption, or ErrNotFound.
func GetRedemptionByReferee(ctx context.Context, db *gorm.DB, refereeID string) (*domain.ReferralRedemption, error) {
	var r domain.ReferralRedemption
	if err := db.WithContext(ctx).Where("referee_id = ?", refereeID).First(&r).Error; err != nil {
		return nil, err
	}
	return &r, nil
}

// CountRedemptionsByReferrer returns how many referees used referrerID's code.
func CountRedemptionsByReferrer(ctx context.Context, db *gorm.DB, referrerID string) (int64, error) {
	var n int64
	err := db.WithContext(ctx).
		Model(&domain.ReferralRedemption{}).
		Where("referrer_id = ?", referrerID).
		Count(&n).Error
	return n, err
}
