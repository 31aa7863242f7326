// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides the ledger tables: balances, referral
// grants, reservations and the append-only transaction log.
//
// Functions taking a tx expect to run inside a caller-owned transaction;
// the Lock* helpers add SELECT ... FOR UPDATE where the dialect supports it.
package repo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/recipe-extraction-backend/internal/domain"
)

// CreateBalance inserts a fresh ledger head. created is false when a
// concurrent insert won and the row already existed.
func CreateBalance(ctx context.Context, tx *gorm.DB, b *domain.CreditBalance) (created bool, err error) {
	res := tx.WithContext(ctx).
		Omit(clause.Associations).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(b)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// LockBalance reads the balance row for update. Returns ErrNotFound when the
// user has no ledger head yet.
func LockBalance(ctx context.Context, tx *gorm.DB, userID string) (*domain.CreditBalance, error) {
	var b domain.CreditBalance
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&b).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &b, nil
}

// SaveBalance writes the mutable columns of a ledger head.
func SaveBalance(ctx context.Context, tx *gorm.DB, b *domain.CreditBalance) error {
	res := tx.WithContext(ctx).
		Model(&domain.CreditBalance{}).
		Where("user_id = ?", b.UserID).
		Updates(map[string]any{
			"standard_credits": b.StandardCredits,
			"referral_credits": b.ReferralCredits,
			"credits_reset_at": b.CreditsResetAt,
			"updated_at":       b.UpdatedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUsableGrants returns a user's non-expired grants with remaining
// credits, in drain order: soonest expiry first, then oldest, then id.
func ListUsableGrants(ctx context.Context, tx *gorm.DB, userID string, now time.Time) ([]domain.ReferralCreditGrant, error) {
	var out []domain.ReferralCreditGrant
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND remaining > 0 AND expires_at > ?", userID, now).
		Order("expires_at asc, created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// ListExpiredGrants returns a user's grants that still hold credits past
// their expiry.
func ListExpiredGrants(ctx context.Context, tx *gorm.DB, userID string, now time.Time) ([]domain.ReferralCreditGrant, error) {
	var out []domain.ReferralCreditGrant
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND remaining > 0 AND expires_at <= ?", userID, now).
		Order("expires_at asc, created_at asc, id asc").
		Find(&out).Error
	return out, err
}

// ListUsersWithExpiredGrants returns the distinct owners of expired grants
// that still hold credits.
func ListUsersWithExpiredGrants(ctx context.Context, db *gorm.DB, now time.Time) ([]string, error) {
	var ids []string
	err := db.WithContext(ctx).
		Model(&domain.ReferralCreditGrant{}).
		Where("remaining > 0 AND expires_at <= ?", now).
		Distinct().
		Order("user_id asc").
		Pluck("user_id", &ids).Error
	return ids, err
}

// SumUsableReferral totals remaining credits on a user's non-expired grants.
func SumUsableReferral(ctx context.Context, tx *gorm.DB, userID string, now time.Time) (int, error) {
	var total int64
	err := tx.WithContext(ctx).
		Model(&domain.ReferralCreditGrant{}).
		Where("user_id = ? AND remaining > 0 AND expires_at > ?", userID, now).
		Select("COALESCE(SUM(remaining), 0)").
		Scan(&total).Error
	return int(total), err
}

// LockGrant reads a single grant for update.
func LockGrant(ctx context.Context, tx *gorm.DB, id string) (*domain.ReferralCreditGrant, error) {
	var g domain.ReferralCreditGrant
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&g).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

// SetGrantRemaining overwrites a grant's remaining credits.
func SetGrantRemaining(ctx context.Context, tx *gorm.DB, id string, remaining int) error {
	res := tx.WithContext(ctx).
		Model(&domain.ReferralCreditGrant{}).
		Where("id = ?", id).
		Update("remaining", remaining)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateGrant inserts a referral grant.
func CreateGrant(ctx context.Context, tx *gorm.DB, g *domain.ReferralCreditGrant) error {
	return tx.WithContext(ctx).Omit(clause.Associations).Create(g).Error
}

// AppendTransactions inserts audit rows. It is a no-op for an empty batch.
func AppendTransactions(ctx context.Context, tx *gorm.DB, rows ...domain.CreditTransaction) error {
	if len(rows) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Omit(clause.Associations).Create(&rows).Error
}

// CountTransactions returns the number of audit rows for userID.
func CountTransactions(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.CreditTransaction{}).
		Where("user_id = ?", userID).
		Count(&total).Error
	return total, err
}

// ListTransactionsPage returns a page of audit rows, newest first.
func ListTransactionsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.CreditTransaction, error) {
	var out []domain.CreditTransaction
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at desc, id desc").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// CreateReservation inserts a reservation together with its debit rows.
func CreateReservation(ctx context.Context, tx *gorm.DB, r *domain.CreditReservation) error {
	return tx.WithContext(ctx).Omit("User").Create(r).Error
}

// LockReservation reads a reservation for update, with debits in draw order.
func LockReservation(ctx context.Context, tx *gorm.DB, id string) (*domain.CreditReservation, error) {
	var r domain.CreditReservation
	err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Preload("Debits", func(db *gorm.DB) *gorm.DB { return db.Order("seq asc") }).
		Where("id = ?", id).
		First(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// SettleReservation moves a held reservation to consumed or refunded.
// Returns ErrStaleTransition when the reservation is no longer held.
func SettleReservation(ctx context.Context, tx *gorm.DB, id string, to domain.ReservationStatus, now time.Time) error {
	res := tx.WithContext(ctx).
		Model(&domain.CreditReservation{}).
		Where("id = ? AND status = ?", id, domain.ReservationHeld).
		Updates(map[string]any{"status": to, "settled_at": now})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}
