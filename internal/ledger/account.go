package ledger

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"gorm.io/gorm"

	"github.com/tbourn/recipe-extraction-backend/internal/domain"
	"github.com/tbourn/recipe-extraction-backend/internal/repo"
)

// account is a locked, up-to-date ledger head.
type account struct {
	balance *domain.CreditBalance
	reset   bool
	expired int
}

// prepare provisions userID on first use, locks the balance row and brings
// it up to date: a due weekly reset is applied, expired grants are zeroed
// and the referral cache is recomputed. Must run inside tx.
func (l *Ledger) prepare(ctx context.Context, tx *gorm.DB, userID string, now time.Time) (*account, error) {
	u, err := repo.EnsureUser(ctx, tx, userID, now)
	if err != nil {
		return nil, errors.Wrapf(err, "ensure user %s", userID)
	}

	bal, err := repo.LockBalance(ctx, tx, userID)
	if errors.Is(err, repo.ErrNotFound) {
		bal, err = l.open(ctx, tx, u, now)
	}
	if err != nil {
		return nil, err
	}
	acct := &account{balance: bal}

	if boundary, next, due := dueReset(bal.CreditsResetAt, now); due {
		if err := l.reset(ctx, tx, bal, Allowance(boundary, u.SignupAt), next, now); err != nil {
			return nil, err
		}
		acct.reset = true
	}

	n, err := l.expire(ctx, tx, userID, now)
	if err != nil {
		return nil, err
	}
	acct.expired = n

	usable, err := repo.SumUsableReferral(ctx, tx, userID, now)
	if err != nil {
		return nil, err
	}
	if usable != bal.ReferralCredits {
		bal.ReferralCredits = usable
		bal.UpdatedAt = now
		if err := repo.SaveBalance(ctx, tx, bal); err != nil {
			return nil, err
		}
	}
	return acct, nil
}

// open creates the ledger head for a new account with the first-week
// allowance and schedules the first reset on the grid.
func (l *Ledger) open(ctx context.Context, tx *gorm.DB, u *domain.User, now time.Time) (*domain.CreditBalance, error) {
	b := &domain.CreditBalance{
		UserID:          u.ID,
		StandardCredits: FirstWeekAllowance,
		CreditsResetAt:  NextReset(u.SignupAt),
		UpdatedAt:       now,
	}
	created, err := repo.CreateBalance(ctx, tx, b)
	if err != nil {
		return nil, err
	}
	if created {
		row := l.entry(u.ID, FirstWeekAllowance, domain.CreditStandard, domain.ReasonWeeklyReset, "", "", nil, FirstWeekAllowance, now)
		if err := repo.AppendTransactions(ctx, tx, row); err != nil {
			return nil, err
		}
	}
	return repo.LockBalance(ctx, tx, u.ID)
}

// reset sets the standard pool to tier and moves the next reset to next.
// A transaction is logged only when the pool actually changed.
func (l *Ledger) reset(ctx context.Context, tx *gorm.DB, bal *domain.CreditBalance, tier int, next, now time.Time) error {
	delta := tier - bal.StandardCredits
	bal.StandardCredits = tier
	bal.CreditsResetAt = next
	bal.UpdatedAt = now
	if err := repo.SaveBalance(ctx, tx, bal); err != nil {
		return err
	}
	if delta == 0 {
		return nil
	}
	row := l.entry(bal.UserID, delta, domain.CreditStandard, domain.ReasonWeeklyReset, "", "", nil, tier, now)
	return repo.AppendTransactions(ctx, tx, row)
}

// expire zeroes userID's expired grants that still hold credits and logs
// one expired transaction per grant.
func (l *Ledger) expire(ctx context.Context, tx *gorm.DB, userID string, now time.Time) (int, error) {
	grants, err := repo.ListExpiredGrants(ctx, tx, userID, now)
	if err != nil || len(grants) == 0 {
		return 0, err
	}
	usable, err := repo.SumUsableReferral(ctx, tx, userID, now)
	if err != nil {
		return 0, err
	}
	running := usable
	for _, g := range grants {
		running += g.Remaining
	}

	rows := make([]domain.CreditTransaction, 0, len(grants))
	for _, g := range grants {
		if err := repo.SetGrantRemaining(ctx, tx, g.ID, 0); err != nil {
			return 0, err
		}
		running -= g.Remaining
		gid := g.ID
		rows = append(rows, l.entry(userID, -g.Remaining, domain.CreditReferral, domain.ReasonExpired, "", "", &gid, running, now))
	}
	return len(grants), repo.AppendTransactions(ctx, tx, rows...)
}
