package services

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

// GrantExpirer zeroes expired referral grants in bulk.
type GrantExpirer interface {
	ExpireGrants(ctx context.Context) (int, error)
}

// StuckRecoverer fails jobs that stayed in processing for too long.
type StuckRecoverer interface {
	RecoverStuck(ctx context.Context, olderThan time.Duration) (int, error)
}

// Sweeper periodically runs the maintenance passes that keep balances and
// jobs honest between user requests. Lazy resets and expiry make it a
// promptness aid, not a correctness requirement.
type Sweeper struct {
	Ledger     GrantExpirer
	Jobs       StuckRecoverer
	Interval   time.Duration
	JobTimeout time.Duration
	Logger     zerolog.Logger
}

// SweepResult reports what one pass changed.
type SweepResult struct {
	GrantsExpired int
	JobsRecovered int
}

// Run sweeps once immediately and then every Interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.Logger.Info().Dur("interval", interval).Dur("job_timeout", s.JobTimeout).Msg("sweeper started")
	for {
		s.logPass(s.SweepOnce(ctx))
		select {
		case <-ctx.Done():
			s.Logger.Info().Msg("sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// SweepOnce runs both passes. A failure in one pass does not skip the other.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	var res SweepResult
	var firstErr error
	if s.Ledger != nil {
		n, err := s.Ledger.ExpireGrants(ctx)
		res.GrantsExpired = n
		if err != nil {
			firstErr = err
		}
	}
	if s.Jobs != nil && s.JobTimeout > 0 {
		n, err := s.Jobs.RecoverStuck(ctx, s.JobTimeout)
		res.JobsRecovered = n
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return res, firstErr
}

func (s *Sweeper) logPass(res SweepResult, err error) {
	if err != nil && ctxErr(err) {
		return
	}
	if err != nil {
		s.Logger.Error().Err(err).
			Int("grants_expired", res.GrantsExpired).
			Int("jobs_recovered", res.JobsRecovered).
			Msg("sweep failed")
		return
	}
	if res.GrantsExpired > 0 || res.JobsRecovered > 0 {
		s.Logger.Info().
			Int("grants_expired", res.GrantsExpired).
			Int("jobs_recovered", res.JobsRecovered).
			Msg("sweep done")
	}
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
