package services

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/tbourn/recipe-extraction-backend/internal/domain"
	"github.com/tbourn/recipe-extraction-backend/internal/ledger"
)

func newReferralHarness(t *testing.T) (*ReferralService, *ledger.Ledger, *fakeClock) {
	t.Helper()
	db := newServicesDB(t)
	clock := &fakeClock{t: t0}
	l := &ledger.Ledger{DB: db, Now: clock.Now}
	s := NewReferralService(db, l)
	s.Now = clock.Now
	return s, l, clock
}

var codeShape = regexp.MustCompile(`^[A-Z0-9]{8}$`)

func TestGenerateCode_IsStablePerUser(t *testing.T) {
	s, _, _ := newReferralHarness(t)
	ctx := context.Background()

	c1, err := s.GenerateCode(ctx, "ann")
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if !codeShape.MatchString(c1.Code) {
		t.Fatalf("code %q is not 8 uppercase alphanumerics", c1.Code)
	}
	c2, err := s.GenerateCode(ctx, "ann")
	if err != nil || c2.Code != c1.Code || c2.ID != c1.ID {
		t.Fatalf("second call minted a new code: %+v err=%v", c2, err)
	}
}

func TestGenerateCode_RetriesOnCollision(t *testing.T) {
	s, _, _ := newReferralHarness(t)
	ctx := context.Background()

	queue := []string{"AAAA1111", "AAAA1111", "BBBB2222"}
	s.NewCode = func() (string, error) {
		c := queue[0]
		queue = queue[1:]
		return c, nil
	}
	if c, err := s.GenerateCode(ctx, "ann"); err != nil || c.Code != "AAAA1111" {
		t.Fatalf("ann: %+v %v", c, err)
	}
	c, err := s.GenerateCode(ctx, "ben")
	if err != nil || c.Code != "BBBB2222" {
		t.Fatalf("ben should get the retried code: %+v %v", c, err)
	}

	s.NewCode = func() (string, error) { return "AAAA1111", nil }
	if _, err := s.GenerateCode(ctx, "cat"); err == nil {
		t.Fatalf("want error after exhausting attempts")
	}
}

func TestRedeem_GrantsBothSidesOnce(t *testing.T) {
	s, l, _ := newReferralHarness(t)
	ctx := context.Background()

	code, err := s.GenerateCode(ctx, "alice")
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}

	// Lowercase and padded input is accepted.
	red, err := s.Redeem(ctx, "bob", "  "+toLower(code.Code)+" ")
	if err != nil {
		t.Fatalf("Redeem: %v", err)
	}
	if red.ReferrerID != "alice" || red.RefereeID != "bob" {
		t.Fatalf("unexpected redemption: %+v", red)
	}

	if n := countRows(t, s.DB, &domain.ReferralRedemption{}, "referee_id = ?", "bob"); n != 1 {
		t.Fatalf("redemptions for bob = %d; want 1", n)
	}
	var grants []domain.ReferralCreditGrant
	if err := s.DB.Order("source").Find(&grants).Error; err != nil {
		t.Fatalf("load grants: %v", err)
	}
	if len(grants) != 2 {
		t.Fatalf("grants = %d; want 2", len(grants))
	}
	want := map[domain.GrantSource]string{domain.GrantReferee: "bob", domain.GrantReferrer: "alice"}
	for _, g := range grants {
		if g.UserID != want[g.Source] || g.Amount != 5 || g.Remaining != 5 {
			t.Fatalf("unexpected grant: %+v", g)
		}
		if !g.ExpiresAt.Equal(t0.Add(30 * 24 * time.Hour)) {
			t.Fatalf("grant expires at %s; want 30 days after redemption", g.ExpiresAt)
		}
		if g.RedemptionID == nil || *g.RedemptionID != red.RedemptionID {
			t.Fatalf("grant not linked to redemption: %+v", g)
		}
	}

	for _, user := range []string{"alice", "bob"} {
		snap, err := l.Balance(ctx, user)
		if err != nil {
			t.Fatalf("Balance(%s): %v", user, err)
		}
		if snap.StandardCredits != 5 || snap.ReferralCredits != 5 {
			t.Fatalf("%s balance = %+v", user, snap)
		}
	}
	if n := countRows(t, s.DB, &domain.CreditTransaction{}, "reason = ?", domain.ReasonReferralBonus); n != 2 {
		t.Fatalf("referral_bonus transactions = %d; want 2", n)
	}

	if _, err := s.Redeem(ctx, "bob", code.Code); !errors.Is(err, ErrAlreadyRedeemed) {
		t.Fatalf("second redeem: want ErrAlreadyRedeemed, got %v", err)
	}
	other, err := s.GenerateCode(ctx, "carol")
	if err != nil {
		t.Fatalf("GenerateCode carol: %v", err)
	}
	if _, err := s.Redeem(ctx, "bob", other.Code); !errors.Is(err, ErrAlreadyRedeemed) {
		t.Fatalf("redeem another code: want ErrAlreadyRedeemed, got %v", err)
	}
	if n := countRows(t, s.DB, &domain.ReferralCreditGrant{}, ""); n != 2 {
		t.Fatalf("failed redemptions must not mint grants, got %d", n)
	}
}

func TestRedeem_Rejections(t *testing.T) {
	s, _, _ := newReferralHarness(t)
	ctx := context.Background()

	code, err := s.GenerateCode(ctx, "alice")
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	if _, err := s.Redeem(ctx, "alice", code.Code); !errors.Is(err, ErrSelfReferral) {
		t.Fatalf("self: want ErrSelfReferral, got %v", err)
	}
	for _, bad := range []string{"", "SHORT", "ZZZZZZZZ", "TOOLONGCODE"} {
		if _, err := s.Redeem(ctx, "bob", bad); !errors.Is(err, ErrInvalidCode) {
			t.Fatalf("%q: want ErrInvalidCode, got %v", bad, err)
		}
	}
	// A rejected attempt does not use up the referee's one redemption.
	if _, err := s.Redeem(ctx, "bob", code.Code); err != nil {
		t.Fatalf("valid redeem after rejections: %v", err)
	}
}

func TestStatus_ReportsCodeRedemptionAndReferrals(t *testing.T) {
	s, _, clock := newReferralHarness(t)
	ctx := context.Background()

	st, err := s.Status(ctx, "alice")
	if err != nil || st.Code != "" || st.Redeemed || st.Referred != 0 {
		t.Fatalf("before any activity: %+v err=%v", st, err)
	}
	var n int64
	s.DB.Model(&domain.ReferralCode{}).Where("user_id = ?", "alice").Count(&n)
	if n != 0 {
		t.Fatalf("Status minted a code")
	}

	code, err := s.GenerateCode(ctx, "alice")
	if err != nil {
		t.Fatalf("GenerateCode: %v", err)
	}
	for _, u := range []string{"bob", "cat"} {
		if _, err := s.Redeem(ctx, u, code.Code); err != nil {
			t.Fatalf("Redeem(%s): %v", u, err)
		}
	}
	st, err = s.Status(ctx, "alice")
	if err != nil || st.Code != code.Code || st.Redeemed || st.Referred != 2 {
		t.Fatalf("alice: %+v err=%v", st, err)
	}
	st, err = s.Status(ctx, "bob")
	if err != nil || st.Code != "" || !st.Redeemed || st.RedeemedAt == nil || !st.RedeemedAt.Equal(clock.Now()) {
		t.Fatalf("bob: %+v err=%v", st, err)
	}
}

func TestReferralCreditsSpendAfterStandard(t *testing.T) {
	s, l, _ := newReferralHarness(t)
	ctx := context.Background()
	code, _ := s.GenerateCode(ctx, "alice")
	if _, err := s.Redeem(ctx, "bob", code.Code); err != nil {
		t.Fatalf("Redeem: %v", err)
	}

	for i := 0; i < 6; i++ {
		res, err := l.Reserve(ctx, "bob", 1, "")
		if err != nil {
			t.Fatalf("Reserve #%d: %v", i, err)
		}
		want := domain.CreditStandard
		if i == 5 {
			want = domain.CreditReferral
		}
		if res.Debits[0].CreditType != want {
			t.Fatalf("reserve #%d drew from %s; want %s", i, res.Debits[0].CreditType, want)
		}
	}
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 'a' - 'A'
		}
	}
	return string(b)
}
