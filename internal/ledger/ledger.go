// Package ledger implements the two-pool credit ledger.
//
// Every user has a standard pool, reset weekly on a Monday 00:00 UTC grid,
// and zero or more expiring referral grants. Extractions reserve credits
// before any work starts: the standard pool is drained first, then grants
// soonest-expiry first. A reservation is later either consumed (the work
// produced something) or refunded (the exact pools drawn are restored).
//
// All mutations run inside a database transaction that first locks the
// user's balance row, so concurrent reserves for the same user serialize
// and can never drive a pool negative. Every mutation appends a
// CreditTransaction row.
//
// Weekly resets and grant expiry are applied lazily whenever an account is
// read or mutated; ExpireGrants additionally sweeps every account in bulk.
package ledger

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/recipe-extraction-backend/internal/domain"
	"github.com/tbourn/recipe-extraction-backend/internal/observability"
	"github.com/tbourn/recipe-extraction-backend/internal/repo"
)

var (
	// ErrInsufficientCredits means the user's pools together hold fewer
	// credits than requested. Nothing was mutated.
	ErrInsufficientCredits = errors.New("insufficient credits")
	// ErrReservationNotFound means the reservation token is unknown.
	ErrReservationNotFound = errors.New("reservation not found")
	// ErrReservationConsumed means a refund targeted a consumed reservation.
	ErrReservationConsumed = errors.New("reservation already consumed")
	// ErrReservationRefunded means a consume targeted a refunded reservation.
	ErrReservationRefunded = errors.New("reservation already refunded")
)

// Ledger owns every write to balances, grants, reservations and the
// transaction log.
type Ledger struct {
	DB *gorm.DB
	// Now is the ledger clock. It must return UTC.
	Now func() time.Time
}

// New returns a Ledger using the wall clock.
func New(db *gorm.DB) *Ledger {
	return &Ledger{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

// Snapshot is a user's balance after lazy resets and expiry were applied.
type Snapshot struct {
	UserID          string                       `json:"user_id"`
	StandardCredits int                          `json:"standard_credits"`
	ReferralCredits int                          `json:"referral_credits"`
	Total           int                          `json:"total"`
	CreditsResetAt  time.Time                    `json:"credits_reset_at"`
	Grants          []domain.ReferralCreditGrant `json:"grants"`
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func (l *Ledger) span(ctx context.Context, name, userID string) (context.Context, trace.Span) {
	return otel.Tracer("ledger/Ledger").Start(ctx, name,
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
}

// Reserve takes amount credits from userID's pools and returns the
// reservation token. jobID, when non-empty, is recorded on the reservation
// and its transactions.
func (l *Ledger) Reserve(ctx context.Context, userID string, amount int, jobID string) (*domain.CreditReservation, error) {
	ctx, span := l.span(ctx, "Reserve", userID)
	defer span.End()

	var out *domain.CreditReservation
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r, err := l.ReserveTx(ctx, tx, userID, amount, jobID)
		out = r
		return err
	})
	if err != nil {
		if errors.Is(err, ErrInsufficientCredits) {
			observability.LedgerRejections.Inc()
		}
		return nil, err
	}
	for _, d := range out.Debits {
		observability.LedgerCredits.WithLabelValues("reserve", string(d.CreditType)).Add(float64(d.Amount))
	}
	return out, nil
}

// ReserveTx is Reserve inside a caller-owned transaction. On error the
// caller must roll back.
func (l *Ledger) ReserveTx(ctx context.Context, tx *gorm.DB, userID string, amount int, jobID string) (*domain.CreditReservation, error) {
	if amount <= 0 {
		return nil, errors.AssertionFailedf("reserve amount must be positive, got %d", amount)
	}
	now := l.now()

	acct, err := l.prepare(ctx, tx, userID, now)
	if err != nil {
		return nil, err
	}
	bal := acct.balance

	grants, err := repo.ListUsableGrants(ctx, tx, userID, now)
	if err != nil {
		return nil, err
	}
	available := bal.StandardCredits
	for _, g := range grants {
		available += g.Remaining
	}
	if available < amount {
		return nil, ErrInsufficientCredits
	}

	res := &domain.CreditReservation{
		ID:        uuid.NewString(),
		UserID:    userID,
		JobID:     optional(jobID),
		Amount:    amount,
		Status:    domain.ReservationHeld,
		CreatedAt: now,
	}
	var rows []domain.CreditTransaction
	need := amount
	seq := 1

	if take := min(need, bal.StandardCredits); take > 0 {
		bal.StandardCredits -= take
		need -= take
		res.Debits = append(res.Debits, domain.ReservationDebit{Seq: seq, CreditType: domain.CreditStandard, Amount: take})
		seq++
		rows = append(rows, l.entry(userID, -take, domain.CreditStandard, domain.ReasonExtraction, jobID, res.ID, nil, bal.StandardCredits, now))
	}

	referralTaken := 0
	var touched []string
	for i := range grants {
		if need == 0 {
			break
		}
		g := &grants[i]
		take := min(need, g.Remaining)
		g.Remaining -= take
		if g.Remaining < 0 {
			return nil, errors.AssertionFailedf("grant %s drained below zero", g.ID)
		}
		if err := repo.SetGrantRemaining(ctx, tx, g.ID, g.Remaining); err != nil {
			return nil, err
		}
		gid := g.ID
		res.Debits = append(res.Debits, domain.ReservationDebit{Seq: seq, CreditType: domain.CreditReferral, GrantID: &gid, Amount: take})
		seq++
		need -= take
		referralTaken += take
		touched = append(touched, gid)
	}
	if need != 0 {
		return nil, errors.AssertionFailedf("reserve of %d left %d undrawn", amount, need)
	}
	if referralTaken > 0 {
		bal.ReferralCredits -= referralTaken
		var grantRef *string
		if len(touched) == 1 {
			grantRef = &touched[0]
		}
		rows = append(rows, l.entry(userID, -referralTaken, domain.CreditReferral, domain.ReasonExtraction, jobID, res.ID, grantRef, bal.ReferralCredits, now))
	}

	bal.UpdatedAt = now
	if err := repo.SaveBalance(ctx, tx, bal); err != nil {
		return nil, err
	}
	if err := repo.CreateReservation(ctx, tx, res); err != nil {
		return nil, err
	}
	if err := repo.AppendTransactions(ctx, tx, rows...); err != nil {
		return nil, err
	}
	return res, nil
}

// Refund restores exactly the pools a held reservation drew from, in
// reverse draw order. Refunding an already refunded reservation is a no-op.
// Standard credits reserved before the latest weekly reset are not restored.
func (l *Ledger) Refund(ctx context.Context, reservationID string) error {
	ctx, span := otel.Tracer("ledger/Ledger").Start(ctx, "Refund",
		trace.WithAttributes(attribute.String("reservation.id", reservationID)),
	)
	defer span.End()

	return l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return l.RefundTx(ctx, tx, reservationID)
	})
}

// RefundTx is Refund inside a caller-owned transaction.
func (l *Ledger) RefundTx(ctx context.Context, tx *gorm.DB, reservationID string) error {
	res, err := repo.LockReservation(ctx, tx, reservationID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrReservationNotFound
	}
	if err != nil {
		return err
	}
	switch res.Status {
	case domain.ReservationRefunded:
		return nil
	case domain.ReservationConsumed:
		return ErrReservationConsumed
	}

	now := l.now()
	acct, err := l.prepare(ctx, tx, res.UserID, now)
	if err != nil {
		return err
	}
	bal := acct.balance
	jobID := deref(res.JobID)

	standard, referral, referralAll := 0, 0, 0
	var touched []string
	for i := len(res.Debits) - 1; i >= 0; i-- {
		d := res.Debits[i]
		switch d.CreditType {
		case domain.CreditStandard:
			standard += d.Amount
		case domain.CreditReferral:
			if d.GrantID == nil {
				return errors.AssertionFailedf("reservation %s: referral debit %d has no grant", res.ID, d.Seq)
			}
			g, err := repo.LockGrant(ctx, tx, *d.GrantID)
			if err != nil {
				return errors.Wrapf(err, "reservation %s: load grant %s", res.ID, *d.GrantID)
			}
			if g.Remaining+d.Amount > g.Amount {
				return errors.AssertionFailedf("refund would overfill grant %s: remaining %d + %d > amount %d",
					g.ID, g.Remaining, d.Amount, g.Amount)
			}
			g.Remaining += d.Amount
			if err := repo.SetGrantRemaining(ctx, tx, g.ID, g.Remaining); err != nil {
				return err
			}
			// Credits returned to an already expired grant are not usable.
			if g.Usable(now) {
				referral += d.Amount
			}
			referralAll += d.Amount
			touched = append(touched, g.ID)
		default:
			return errors.AssertionFailedf("reservation %s: unknown pool %q", res.ID, d.CreditType)
		}
	}

	// Standard credits drawn before the latest weekly reset are not restored:
	// that week's allowance has already been replaced by a fresh one.
	if standard > 0 && res.CreatedAt.Before(bal.CreditsResetAt.Add(-week)) {
		trace.SpanFromContext(ctx).SetAttributes(attribute.Int("refund.standard_forfeited", standard))
		standard = 0
	}

	var rows []domain.CreditTransaction
	if referralAll > 0 {
		bal.ReferralCredits += referral
		var grantRef *string
		if len(touched) == 1 {
			grantRef = &touched[0]
		}
		rows = append(rows, l.entry(res.UserID, referralAll, domain.CreditReferral, domain.ReasonRefund, jobID, res.ID, grantRef, bal.ReferralCredits, now))
		observability.LedgerCredits.WithLabelValues("refund", string(domain.CreditReferral)).Add(float64(referralAll))
	}
	if standard > 0 {
		bal.StandardCredits += standard
		rows = append(rows, l.entry(res.UserID, standard, domain.CreditStandard, domain.ReasonRefund, jobID, res.ID, nil, bal.StandardCredits, now))
		observability.LedgerCredits.WithLabelValues("refund", string(domain.CreditStandard)).Add(float64(standard))
	}

	bal.UpdatedAt = now
	if err := repo.SaveBalance(ctx, tx, bal); err != nil {
		return err
	}
	if err := repo.SettleReservation(ctx, tx, res.ID, domain.ReservationRefunded, now); err != nil {
		return err
	}
	return repo.AppendTransactions(ctx, tx, rows...)
}

// Consume marks a held reservation as spent. Consuming twice is a no-op.
func (l *Ledger) Consume(ctx context.Context, reservationID string) error {
	return l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return l.ConsumeTx(ctx, tx, reservationID)
	})
}

// ConsumeTx is Consume inside a caller-owned transaction.
func (l *Ledger) ConsumeTx(ctx context.Context, tx *gorm.DB, reservationID string) error {
	res, err := repo.LockReservation(ctx, tx, reservationID)
	if errors.Is(err, repo.ErrNotFound) {
		return ErrReservationNotFound
	}
	if err != nil {
		return err
	}
	switch res.Status {
	case domain.ReservationConsumed:
		return nil
	case domain.ReservationRefunded:
		return ErrReservationRefunded
	}
	return repo.SettleReservation(ctx, tx, res.ID, domain.ReservationConsumed, l.now())
}

// GrantTx mints a referral grant of amount credits expiring at expiresAt
// inside a caller-owned transaction.
func (l *Ledger) GrantTx(ctx context.Context, tx *gorm.DB, userID string, amount int, source domain.GrantSource, redemptionID string, expiresAt time.Time) (*domain.ReferralCreditGrant, error) {
	if amount <= 0 {
		return nil, errors.AssertionFailedf("grant amount must be positive, got %d", amount)
	}
	now := l.now()
	if !expiresAt.After(now) {
		return nil, errors.AssertionFailedf("grant already expired at %s", expiresAt)
	}

	acct, err := l.prepare(ctx, tx, userID, now)
	if err != nil {
		return nil, err
	}
	bal := acct.balance

	g := &domain.ReferralCreditGrant{
		ID:           uuid.NewString(),
		UserID:       userID,
		Amount:       amount,
		Remaining:    amount,
		Source:       source,
		RedemptionID: optional(redemptionID),
		ExpiresAt:    expiresAt.UTC(),
		CreatedAt:    now,
	}
	if err := repo.CreateGrant(ctx, tx, g); err != nil {
		return nil, err
	}
	bal.ReferralCredits += amount
	bal.UpdatedAt = now
	if err := repo.SaveBalance(ctx, tx, bal); err != nil {
		return nil, err
	}
	gid := g.ID
	row := l.entry(userID, amount, domain.CreditReferral, domain.ReasonReferralBonus, "", "", &gid, bal.ReferralCredits, now)
	if err := repo.AppendTransactions(ctx, tx, row); err != nil {
		return nil, err
	}
	observability.LedgerCredits.WithLabelValues("grant", string(domain.CreditReferral)).Add(float64(amount))
	return g, nil
}

// Balance applies any due reset and expiry for userID and returns the
// resulting snapshot, provisioning the account on first use.
func (l *Ledger) Balance(ctx context.Context, userID string) (*Snapshot, error) {
	ctx, span := l.span(ctx, "Balance", userID)
	defer span.End()

	var snap *Snapshot
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := l.now()
		acct, err := l.prepare(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		grants, err := repo.ListUsableGrants(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		b := acct.balance
		snap = &Snapshot{
			UserID:          userID,
			StandardCredits: b.StandardCredits,
			ReferralCredits: b.ReferralCredits,
			Total:           b.StandardCredits + b.ReferralCredits,
			CreditsResetAt:  b.CreditsResetAt,
			Grants:          grants,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// WeeklyReset applies a due weekly reset for userID. It reports whether a
// reset boundary had passed.
func (l *Ledger) WeeklyReset(ctx context.Context, userID string) (bool, error) {
	ctx, span := l.span(ctx, "WeeklyReset", userID)
	defer span.End()

	var reset bool
	err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acct, err := l.prepare(ctx, tx, userID, l.now())
		if err != nil {
			return err
		}
		reset = acct.reset
		return nil
	})
	return reset, err
}

// ExpireGrants zeroes every grant past its expiry that still holds credits,
// across all users, and returns how many grants were expired.
func (l *Ledger) ExpireGrants(ctx context.Context) (int, error) {
	ctx, span := otel.Tracer("ledger/Ledger").Start(ctx, "ExpireGrants")
	defer span.End()

	users, err := repo.ListUsersWithExpiredGrants(ctx, l.DB, l.now())
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, userID := range users {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		err := l.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			acct, err := l.prepare(ctx, tx, userID, l.now())
			if err != nil {
				return err
			}
			expired += acct.expired
			return nil
		})
		if err != nil {
			return expired, errors.Wrapf(err, "expire grants for %s", userID)
		}
	}
	span.SetAttributes(attribute.Int("grants.expired", expired))
	return expired, nil
}

// ListTransactions returns a page of userID's audit rows, newest first,
// and the total count.
func (l *Ledger) ListTransactions(ctx context.Context, userID string, offset, limit int) ([]domain.CreditTransaction, int64, error) {
	ctx, span := l.span(ctx, "ListTransactions", userID)
	defer span.End()

	total, err := repo.CountTransactions(ctx, l.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.CreditTransaction{}, 0, nil
	}
	items, err := repo.ListTransactionsPage(ctx, l.DB, userID, offset, limit)
	return items, total, err
}

func (l *Ledger) entry(userID string, amount int, ct domain.CreditType, reason domain.TxReason, jobID, reservationID string, grantID *string, after int, now time.Time) domain.CreditTransaction {
	return domain.CreditTransaction{
		ID:            uuid.NewString(),
		UserID:        userID,
		Amount:        amount,
		CreditType:    ct,
		Reason:        reason,
		JobID:         optional(jobID),
		ReservationID: optional(reservationID),
		GrantID:       grantID,
		BalanceAfter:  after,
		CreatedAt:     now,
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
