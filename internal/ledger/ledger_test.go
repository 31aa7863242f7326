package ledger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	crdb "github.com/cockroachdb/errors"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/recipe-extraction-backend/internal/domain"
	"github.com/tbourn/recipe-extraction-backend/internal/repo"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func newTestLedger(t *testing.T, start time.Time) (*Ledger, *fakeClock) {
	t.Helper()
	dsn := fmt.Sprintf("file:ledger_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	clock := &fakeClock{t: start}
	return &Ledger{DB: db, Now: clock.Now}, clock
}

// Monday 2025-01-06 10:00 UTC.
var signup = time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

func grant(t *testing.T, l *Ledger, userID string, amount int, expiresAt time.Time) *domain.ReferralCreditGrant {
	t.Helper()
	var g *domain.ReferralCreditGrant
	err := l.DB.Transaction(func(tx *gorm.DB) error {
		var err error
		g, err = l.GrantTx(context.Background(), tx, userID, amount, domain.GrantReferee, "", expiresAt)
		return err
	})
	if err != nil {
		t.Fatalf("GrantTx: %v", err)
	}
	return g
}

func balance(t *testing.T, l *Ledger, userID string) *Snapshot {
	t.Helper()
	s, err := l.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("Balance: %v", err)
	}
	return s
}

func grantRemaining(t *testing.T, l *Ledger, id string) int {
	t.Helper()
	var g domain.ReferralCreditGrant
	if err := l.DB.First(&g, "id = ?", id).Error; err != nil {
		t.Fatalf("load grant: %v", err)
	}
	return g.Remaining
}

func transactions(t *testing.T, l *Ledger, userID string) []domain.CreditTransaction {
	t.Helper()
	var rows []domain.CreditTransaction
	if err := l.DB.Where("user_id = ?", userID).Order("created_at asc").Find(&rows).Error; err != nil {
		t.Fatalf("load transactions: %v", err)
	}
	return rows
}

func sumByType(rows []domain.CreditTransaction, ct domain.CreditType) int {
	total := 0
	for _, r := range rows {
		if r.CreditType == ct {
			total += r.Amount
		}
	}
	return total
}

func TestNextReset(t *testing.T) {
	cases := []struct {
		in, want time.Time
	}{
		{time.Date(2025, 1, 8, 15, 0, 0, 0, time.UTC), time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)},  // Wednesday
		{time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC), time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)},  // Monday midnight
		{time.Date(2025, 1, 13, 9, 30, 0, 0, time.UTC), time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)}, // Monday morning
		{time.Date(2025, 1, 12, 23, 59, 0, 0, time.UTC), time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)}, // Sunday night
	}
	for _, c := range cases {
		if got := NextReset(c.in); !got.Equal(c.want) {
			t.Fatalf("NextReset(%v) = %v; want %v", c.in, got, c.want)
		}
	}
}

func TestAllowance(t *testing.T) {
	if got := Allowance(signup.Add(6*24*time.Hour), signup); got != FirstWeekAllowance {
		t.Fatalf("inside first week: got %d", got)
	}
	if got := Allowance(signup.Add(7*24*time.Hour), signup); got != WeeklyAllowance {
		t.Fatalf("after first week: got %d", got)
	}
}

func TestBalance_OpensAccountWithFirstWeekAllowance(t *testing.T) {
	l, _ := newTestLedger(t, signup)

	s := balance(t, l, "u1")
	if s.StandardCredits != 5 || s.ReferralCredits != 0 || s.Total != 5 {
		t.Fatalf("unexpected opening balance: %+v", s)
	}
	if !s.CreditsResetAt.Equal(time.Date(2025, 1, 13, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("first reset should be next Monday, got %v", s.CreditsResetAt)
	}
	rows := transactions(t, l, "u1")
	if len(rows) != 1 || rows[0].Reason != domain.ReasonWeeklyReset || rows[0].Amount != 5 || rows[0].BalanceAfter != 5 {
		t.Fatalf("expected one opening transaction, got %+v", rows)
	}

	// Reading again changes nothing.
	balance(t, l, "u1")
	if n := len(transactions(t, l, "u1")); n != 1 {
		t.Fatalf("second read logged transactions: %d", n)
	}
}

func TestReserve_DrainsStandardThenSoonestGrant(t *testing.T) {
	l, _ := newTestLedger(t, signup)
	ctx := context.Background()

	if _, err := l.Reserve(ctx, "u1", 4, ""); err != nil {
		t.Fatalf("Reserve 4: %v", err)
	}
	later := grant(t, l, "u1", 5, signup.Add(10*24*time.Hour))
	sooner := grant(t, l, "u1", 5, signup.Add(5*24*time.Hour))

	res, err := l.Reserve(ctx, "u1", 3, "job-1")
	if err != nil {
		t.Fatalf("Reserve 3: %v", err)
	}
	if len(res.Debits) != 2 {
		t.Fatalf("expected two debits, got %+v", res.Debits)
	}
	if res.Debits[0].CreditType != domain.CreditStandard || res.Debits[0].Amount != 1 {
		t.Fatalf("first debit should take the last standard credit: %+v", res.Debits[0])
	}
	if res.Debits[1].CreditType != domain.CreditReferral || *res.Debits[1].GrantID != sooner.ID || res.Debits[1].Amount != 2 {
		t.Fatalf("second debit should hit the soonest-expiring grant: %+v", res.Debits[1])
	}
	if got := grantRemaining(t, l, sooner.ID); got != 3 {
		t.Fatalf("sooner grant remaining = %d; want 3", got)
	}
	if got := grantRemaining(t, l, later.ID); got != 5 {
		t.Fatalf("later grant must be untouched, remaining = %d", got)
	}

	s := balance(t, l, "u1")
	if s.StandardCredits != 0 || s.ReferralCredits != 8 {
		t.Fatalf("unexpected balance: %+v", s)
	}

	rows := transactions(t, l, "u1")
	if sumByType(rows, domain.CreditStandard) != s.StandardCredits {
		t.Fatalf("standard audit sum %d != balance %d", sumByType(rows, domain.CreditStandard), s.StandardCredits)
	}
	if sumByType(rows, domain.CreditReferral) != s.ReferralCredits {
		t.Fatalf("referral audit sum %d != balance %d", sumByType(rows, domain.CreditReferral), s.ReferralCredits)
	}
	linked := 0
	for _, r := range rows {
		if r.Reason == domain.ReasonExtraction && r.JobID != nil && *r.JobID == "job-1" {
			linked++
		}
	}
	if linked != 2 {
		t.Fatalf("expected one extraction row per pool linked to job-1, got %d", linked)
	}
}

func TestReserve_ReferralOnlyWhenStandardEmpty(t *testing.T) {
	l, _ := newTestLedger(t, signup)
	ctx := context.Background()

	if _, err := l.Reserve(ctx, "u1", 5, ""); err != nil {
		t.Fatalf("drain standard: %v", err)
	}
	g := grant(t, l, "u1", 5, signup.Add(30*24*time.Hour))

	res, err := l.Reserve(ctx, "u1", 1, "")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if len(res.Debits) != 1 || res.Debits[0].CreditType != domain.CreditReferral {
		t.Fatalf("expected a single referral debit, got %+v", res.Debits)
	}
	if got := grantRemaining(t, l, g.ID); got != 4 {
		t.Fatalf("grant remaining = %d; want 4", got)
	}
	if s := balance(t, l, "u1"); s.StandardCredits != 0 || s.ReferralCredits != 4 {
		t.Fatalf("unexpected balance: %+v", s)
	}
}

func TestReserve_SingleReferralGrantAuditRow(t *testing.T) {
	l, _ := newTestLedger(t, signup)
	ctx := context.Background()

	if _, err := l.Reserve(ctx, "u1", FirstWeekAllowance, ""); err != nil {
		t.Fatalf("drain standard: %v", err)
	}
	g := grant(t, l, "u1", 2, signup.Add(10*24*time.Hour))
	before := len(transactions(t, l, "u1"))

	res, err := l.Reserve(ctx, "u1", 1, "job-7")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if got := grantRemaining(t, l, g.ID); got != 1 {
		t.Fatalf("grant remaining = %d; want 1", got)
	}

	rows := transactions(t, l, "u1")
	if len(rows)-before != 1 {
		t.Fatalf("reserve logged %d transactions; want 1", len(rows)-before)
	}
	var row *domain.CreditTransaction
	for i := range rows {
		if rows[i].ReservationID != nil && *rows[i].ReservationID == res.ID {
			row = &rows[i]
		}
	}
	if row == nil {
		t.Fatalf("no transaction linked to reservation %s", res.ID)
	}
	if row.CreditType != domain.CreditReferral || row.Amount != -1 || row.BalanceAfter != 1 || row.Reason != domain.ReasonExtraction {
		t.Fatalf("unexpected debit row: type=%s amount=%d after=%d reason=%s", row.CreditType, row.Amount, row.BalanceAfter, row.Reason)
	}
	if row.GrantID == nil || *row.GrantID != g.ID || row.JobID == nil || *row.JobID != "job-7" {
		t.Fatalf("debit row not linked to grant and job: %+v", row)
	}
}

func TestReserve_InsufficientMutatesNothing(t *testing.T) {
	l, _ := newTestLedger(t, signup)
	ctx := context.Background()

	if _, err := l.Reserve(ctx, "u1", 5, ""); err != nil {
		t.Fatalf("drain standard: %v", err)
	}
	before := len(transactions(t, l, "u1"))

	if _, err := l.Reserve(ctx, "u1", 1, ""); !errors.Is(err, ErrInsufficientCredits) {
		t.Fatalf("expected ErrInsufficientCredits, got %v", err)
	}
	if after := len(transactions(t, l, "u1")); after != before {
		t.Fatalf("failed reserve logged %d transactions", after-before)
	}
	var n int64
	l.DB.Model(&domain.CreditReservation{}).Where("user_id = ?", "u1").Count(&n)
	if n != 1 {
		t.Fatalf("failed reserve persisted a reservation: %d rows", n)
	}
}

func TestReserve_RejectsNonPositiveAmount(t *testing.T) {
	l, _ := newTestLedger(t, signup)
	_, err := l.Reserve(context.Background(), "u1", 0, "")
	if err == nil || !crdb.HasAssertionFailure(err) {
		t.Fatalf("expected assertion failure, got %v", err)
	}
}

func TestRefund_RestoresExactPoolsOnce(t *testing.T) {
	l, _ := newTestLedger(t, signup)
	ctx := context.Background()

	if _, err := l.Reserve(ctx, "u1", 4, ""); err != nil {
		t.Fatalf("Reserve 4: %v", err)
	}
	g := grant(t, l, "u1", 5, signup.Add(30*24*time.Hour))
	res, err := l.Reserve(ctx, "u1", 3, "job-1")
	if err != nil {
		t.Fatalf("Reserve 3: %v", err)
	}

	if err := l.Refund(ctx, res.ID); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	s := balance(t, l, "u1")
	if s.StandardCredits != 1 || s.ReferralCredits != 5 {
		t.Fatalf("refund did not restore pools: %+v", s)
	}
	if got := grantRemaining(t, l, g.ID); got != 5 {
		t.Fatalf("grant remaining = %d; want 5", got)
	}

	before := len(transactions(t, l, "u1"))
	if err := l.Refund(ctx, res.ID); err != nil {
		t.Fatalf("second Refund: %v", err)
	}
	if after := len(transactions(t, l, "u1")); after != before {
		t.Fatalf("second refund logged transactions")
	}
	if s := balance(t, l, "u1"); s.StandardCredits != 1 || s.ReferralCredits != 5 {
		t.Fatalf("second refund changed balance: %+v", s)
	}
	if err := l.Consume(ctx, res.ID); !errors.Is(err, ErrReservationRefunded) {
		t.Fatalf("expected ErrReservationRefunded, got %v", err)
	}
}

func TestRefund_StandardCreditFromBeforeResetIsNotRestored(t *testing.T) {
	l, clock := newTestLedger(t, signup)
	ctx := context.Background()
	balance(t, l, "u1")

	// Third week after signup: the weekly tier applies.
	clock.Set(time.Date(2025, 1, 21, 9, 0, 0, 0, time.UTC))
	if s := balance(t, l, "u1"); s.StandardCredits != WeeklyAllowance {
		t.Fatalf("setup: %+v", s)
	}

	stale, err := l.Reserve(ctx, "u1", 1, "job-old")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	fresh, err := l.Reserve(ctx, "u1", 1, "job-same-week")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	// A refund inside the same week restores the credit.
	if err := l.Refund(ctx, fresh.ID); err != nil {
		t.Fatalf("Refund same week: %v", err)
	}
	if s := balance(t, l, "u1"); s.StandardCredits != WeeklyAllowance-1 {
		t.Fatalf("same-week refund: %+v", s)
	}

	// Past the next boundary the pool is back at the tier and the old
	// week's credit does not stack on top of it.
	clock.Set(time.Date(2025, 1, 27, 0, 30, 0, 0, time.UTC))
	before := len(transactions(t, l, "u1"))
	if err := l.Refund(ctx, stale.ID); err != nil {
		t.Fatalf("Refund after reset: %v", err)
	}
	if s := balance(t, l, "u1"); s.StandardCredits != WeeklyAllowance {
		t.Fatalf("standard = %d; want the tier %d", s.StandardCredits, WeeklyAllowance)
	}
	rows := transactions(t, l, "u1")
	for _, r := range rows[before:] {
		if r.Reason == domain.ReasonRefund {
			t.Fatalf("forfeited credit was logged as a refund: %+v", r)
		}
	}
	if sumByType(rows, domain.CreditStandard) != WeeklyAllowance {
		t.Fatalf("standard audit sum = %d; want %d", sumByType(rows, domain.CreditStandard), WeeklyAllowance)
	}
	var r domain.CreditReservation
	l.DB.First(&r, "id = ?", stale.ID)
	if r.Status != domain.ReservationRefunded {
		t.Fatalf("reservation status = %s; want refunded", r.Status)
	}
}

func TestRefund_IntoExpiredGrantIsNotUsable(t *testing.T) {
	l, clock := newTestLedger(t, signup)
	ctx := context.Background()

	if _, err := l.Reserve(ctx, "u1", FirstWeekAllowance, ""); err != nil {
		t.Fatalf("drain standard: %v", err)
	}
	g := grant(t, l, "u1", 5, signup.Add(48*time.Hour))
	res, err := l.Reserve(ctx, "u1", 2, "")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	clock.Set(signup.Add(72 * time.Hour))
	if err := l.Refund(ctx, res.ID); err != nil {
		t.Fatalf("Refund: %v", err)
	}
	s := balance(t, l, "u1")
	if s.ReferralCredits != 0 || s.Total != 0 || len(s.Grants) != 0 {
		t.Fatalf("expired grant credits became usable: %+v", s)
	}
	if got := grantRemaining(t, l, g.ID); got != 0 {
		t.Fatalf("grant remaining = %d; want 0 after the expiry pass", got)
	}
	if sum := sumByType(transactions(t, l, "u1"), domain.CreditReferral); sum != 0 {
		t.Fatalf("referral audit sum = %d; want 0", sum)
	}
}

func TestConsume_IsIdempotentAndBlocksRefund(t *testing.T) {
	l, _ := newTestLedger(t, signup)
	ctx := context.Background()

	res, err := l.Reserve(ctx, "u1", 1, "")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := l.Consume(ctx, res.ID); err != nil {
		t.Fatalf("Consume: %v", err)
	}
	if err := l.Consume(ctx, res.ID); err != nil {
		t.Fatalf("second Consume: %v", err)
	}
	if err := l.Refund(ctx, res.ID); !errors.Is(err, ErrReservationConsumed) {
		t.Fatalf("expected ErrReservationConsumed, got %v", err)
	}
	if err := l.Refund(ctx, "missing"); !errors.Is(err, ErrReservationNotFound) {
		t.Fatalf("expected ErrReservationNotFound, got %v", err)
	}
	if s := balance(t, l, "u1"); s.StandardCredits != 4 {
		t.Fatalf("consumed credit should stay spent: %+v", s)
	}
}

func TestRefund_CorruptionIsAnAssertion(t *testing.T) {
	l, _ := newTestLedger(t, signup)
	ctx := context.Background()

	if _, err := l.Reserve(ctx, "u1", 5, ""); err != nil {
		t.Fatalf("drain standard: %v", err)
	}
	g := grant(t, l, "u1", 5, signup.Add(30*24*time.Hour))
	res, err := l.Reserve(ctx, "u1", 2, "")
	if err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	// Someone refilled the grant behind the ledger's back.
	if err := l.DB.Model(&domain.ReferralCreditGrant{}).Where("id = ?", g.ID).Update("remaining", 5).Error; err != nil {
		t.Fatalf("tamper: %v", err)
	}

	err = l.Refund(ctx, res.ID)
	if err == nil || !crdb.HasAssertionFailure(err) {
		t.Fatalf("expected assertion failure, got %v", err)
	}
	var r domain.CreditReservation
	l.DB.First(&r, "id = ?", res.ID)
	if r.Status != domain.ReservationHeld {
		t.Fatalf("failed refund must roll back, status = %s", r.Status)
	}
}

func TestWeeklyReset_LazyOnGrid(t *testing.T) {
	l, clock := newTestLedger(t, signup)
	ctx := context.Background()

	if _, err := l.Reserve(ctx, "u1", 5, ""); err != nil {
		t.Fatalf("drain standard: %v", err)
	}

	// First boundary (Mon 01-13 00:00) is still inside the first week.
	clock.Set(time.Date(2025, 1, 13, 1, 0, 0, 0, time.UTC))
	s := balance(t, l, "u1")
	if s.StandardCredits != 5 || !s.CreditsResetAt.Equal(time.Date(2025, 1, 20, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("first-week reset: %+v", s)
	}

	// Three weeks idle: one reset to the weekly tier, grid preserved.
	clock.Set(time.Date(2025, 2, 5, 12, 0, 0, 0, time.UTC))
	reset, err := l.WeeklyReset(ctx, "u1")
	if err != nil || !reset {
		t.Fatalf("WeeklyReset: reset=%v err=%v", reset, err)
	}
	s = balance(t, l, "u1")
	if s.StandardCredits != 3 || !s.CreditsResetAt.Equal(time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("weekly reset: %+v", s)
	}

	// Nothing due: no-op.
	if reset, _ := l.WeeklyReset(ctx, "u1"); reset {
		t.Fatalf("reset reported before the boundary")
	}

	// A reset that leaves the pool unchanged logs nothing.
	before := len(transactions(t, l, "u1"))
	clock.Set(time.Date(2025, 2, 10, 0, 0, 0, 0, time.UTC))
	balance(t, l, "u1")
	if after := len(transactions(t, l, "u1")); after != before {
		t.Fatalf("unchanged reset logged %d transactions", after-before)
	}

	rows := transactions(t, l, "u1")
	if sumByType(rows, domain.CreditStandard) != 3 {
		t.Fatalf("standard audit sum = %d; want 3", sumByType(rows, domain.CreditStandard))
	}
}

func TestExpireGrants_ZeroesAndLogs(t *testing.T) {
	l, clock := newTestLedger(t, signup)
	ctx := context.Background()

	g := grant(t, l, "u1", 5, signup.Add(24*time.Hour))
	keep := grant(t, l, "u2", 5, signup.Add(48*time.Hour))

	clock.Set(signup.Add(36 * time.Hour))
	n, err := l.ExpireGrants(ctx)
	if err != nil {
		t.Fatalf("ExpireGrants: %v", err)
	}
	if n != 1 {
		t.Fatalf("expired %d grants; want 1", n)
	}
	if got := grantRemaining(t, l, g.ID); got != 0 {
		t.Fatalf("expired grant remaining = %d", got)
	}
	if got := grantRemaining(t, l, keep.ID); got != 5 {
		t.Fatalf("active grant touched: remaining = %d", got)
	}

	rows := transactions(t, l, "u1")
	last := rows[len(rows)-1]
	if last.Reason != domain.ReasonExpired || last.Amount != -5 || last.BalanceAfter != 0 || last.GrantID == nil || *last.GrantID != g.ID {
		t.Fatalf("unexpected expiry row: %+v", last)
	}
	if s := balance(t, l, "u1"); s.ReferralCredits != 0 {
		t.Fatalf("referral cache not recomputed: %+v", s)
	}

	// Second sweep finds nothing.
	if n, err := l.ExpireGrants(ctx); err != nil || n != 0 {
		t.Fatalf("second sweep: n=%d err=%v", n, err)
	}
}

func TestReserve_ConcurrentSingleCredit(t *testing.T) {
	l, _ := newTestLedger(t, signup)
	ctx := context.Background()

	if _, err := l.Reserve(ctx, "u1", 4, ""); err != nil {
		t.Fatalf("leave one credit: %v", err)
	}

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejects   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Reserve(ctx, "u1", 1, "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrInsufficientCredits):
				rejects++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if successes != 1 || rejects != workers-1 {
		t.Fatalf("successes=%d rejects=%d; want 1 and %d", successes, rejects, workers-1)
	}
	if s := balance(t, l, "u1"); s.StandardCredits != 0 {
		t.Fatalf("balance went wrong: %+v", s)
	}
}

func TestReserve_ConcurrentOnPooledFileDB(t *testing.T) {
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, _ := db.DB()
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	clock := &fakeClock{t: signup}
	l := &Ledger{DB: db, Now: clock.Now}
	ctx := context.Background()
	balance(t, l, "u1")

	const workers = 12
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		rejects   int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := l.Reserve(ctx, "u1", 1, fmt.Sprintf("job-%d", i))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, ErrInsufficientCredits):
				rejects++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if successes != FirstWeekAllowance || rejects != workers-FirstWeekAllowance {
		t.Fatalf("successes=%d rejects=%d; want %d and %d", successes, rejects, FirstWeekAllowance, workers-FirstWeekAllowance)
	}
	if s := balance(t, l, "u1"); s.StandardCredits != 0 {
		t.Fatalf("pool went wrong: %+v", s)
	}
	var held int64
	db.Model(&domain.CreditReservation{}).Where("user_id = ?", "u1").Count(&held)
	if held != FirstWeekAllowance {
		t.Fatalf("reservations = %d; want %d", held, FirstWeekAllowance)
	}
	if sum := sumByType(transactions(t, l, "u1"), domain.CreditStandard); sum != 0 {
		t.Fatalf("standard audit sum = %d; want 0", sum)
	}
}

func TestListTransactions_Pages(t *testing.T) {
	l, _ := newTestLedger(t, signup)
	ctx := context.Background()

	items, total, err := l.ListTransactions(ctx, "nobody", 0, 10)
	if err != nil || total != 0 || len(items) != 0 {
		t.Fatalf("empty ledger: items=%v total=%d err=%v", items, total, err)
	}

	for i := 0; i < 3; i++ {
		if _, err := l.Reserve(ctx, "u1", 1, ""); err != nil {
			t.Fatalf("Reserve: %v", err)
		}
	}
	items, total, err = l.ListTransactions(ctx, "u1", 0, 2)
	if err != nil || total != 4 || len(items) != 2 {
		t.Fatalf("page: len=%d total=%d err=%v", len(items), total, err)
	}
}
