package services

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/recipe-extraction-backend/internal/domain"
	"github.com/tbourn/recipe-extraction-backend/internal/ledger"
	"github.com/tbourn/recipe-extraction-backend/internal/observability"
	"github.com/tbourn/recipe-extraction-backend/internal/repo"
)

const (
	// ReferralCodeLength is the length of every minted code.
	ReferralCodeLength = 8
	// ReferralBonus is the credit amount granted to each side of a redemption.
	ReferralBonus = 5
	// ReferralGrantTTL is how long referral credits stay usable.
	ReferralGrantTTL = 30 * 24 * time.Hour

	codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeAttempts = 10
)

// Granter mints referral grants inside a caller-owned transaction.
type Granter interface {
	GrantTx(ctx context.Context, tx *gorm.DB, userID string, amount int, source domain.GrantSource, redemptionID string, expiresAt time.Time) (*domain.ReferralCreditGrant, error)
}

// Redemption is the result of a successful redeem.
type Redemption struct {
	RedemptionID  string                      `json:"redemption_id"`
	ReferrerID    string                      `json:"referrer_id"`
	RefereeID     string                      `json:"referee_id"`
	RefereeGrant  *domain.ReferralCreditGrant `json:"referee_grant"`
	ReferrerGrant *domain.ReferralCreditGrant `json:"-"`
}

// ReferralStatus summarizes a user's side of the referral program.
type ReferralStatus struct {
	// Code is the user's code, empty until GenerateCode mints one.
	Code string `json:"code,omitempty"`
	// Redeemed reports whether the user has already used someone's code.
	Redeemed   bool       `json:"redeemed"`
	RedeemedAt *time.Time `json:"redeemed_at,omitempty"`
	// Referred counts the users who redeemed this user's code.
	Referred int64 `json:"referred"`
}

// ReferralService issues referral codes and redeems them into credit grants.
type ReferralService struct {
	DB     *gorm.DB
	Ledger Granter
	// NewCode mints a candidate code. Defaults to a random 8-character code.
	NewCode func() (string, error)
	Now     func() time.Time
}

// NewReferralService returns a ReferralService using random codes and the
// wall clock.
func NewReferralService(db *gorm.DB, l *ledger.Ledger) *ReferralService {
	return &ReferralService{
		DB:      db,
		Ledger:  l,
		NewCode: randomCode,
		Now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *ReferralService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// GenerateCode returns userID's referral code, minting one on first call.
func (s *ReferralService) GenerateCode(ctx context.Context, userID string) (*domain.ReferralCode, error) {
	ctx, span := otel.Tracer("services/ReferralService").Start(ctx, "GenerateCode",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	if existing, err := repo.GetReferralCodeByUser(ctx, s.DB, userID); err == nil {
		return existing, nil
	} else if !repo.IsNotFound(err) {
		return nil, err
	}

	now := s.now()
	if _, err := repo.EnsureUser(ctx, s.DB, userID, now); err != nil {
		return nil, err
	}
	mint := s.NewCode
	if mint == nil {
		mint = randomCode
	}
	for attempt := 0; attempt < codeAttempts; attempt++ {
		text, err := mint()
		if err != nil {
			return nil, err
		}
		c := &domain.ReferralCode{ID: uuid.NewString(), UserID: userID, Code: text, CreatedAt: now}
		err = repo.CreateReferralCode(ctx, s.DB, c)
		if err == nil {
			return c, nil
		}
		if !errors.Is(err, repo.ErrDuplicate) {
			return nil, err
		}
		// Either the text collided or a concurrent call already gave this
		// user a code.
		if existing, gerr := repo.GetReferralCodeByUser(ctx, s.DB, userID); gerr == nil {
			return existing, nil
		}
	}
	return nil, errors.Newf("could not mint a unique referral code after %d attempts", codeAttempts)
}

// Redeem applies code for refereeID. Both the code owner and the referee
// receive a ReferralBonus grant expiring after ReferralGrantTTL. A user can
// redeem only once, ever.
func (s *ReferralService) Redeem(ctx context.Context, refereeID, code string) (*Redemption, error) {
	ctx, span := otel.Tracer("services/ReferralService").Start(ctx, "Redeem",
		trace.WithAttributes(attribute.String("user.id", refereeID)),
	)
	defer span.End()

	text := NormalizeCode(code)
	if len(text) != ReferralCodeLength {
		return nil, ErrInvalidCode
	}
	rc, err := repo.GetReferralCode(ctx, s.DB, text)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrInvalidCode
		}
		return nil, err
	}
	if rc.UserID == refereeID {
		return nil, ErrSelfReferral
	}

	now := s.now()
	expires := now.Add(ReferralGrantTTL)
	out := &Redemption{ReferrerID: rc.UserID, RefereeID: refereeID}
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := repo.EnsureUser(ctx, tx, refereeID, now); err != nil {
			return err
		}
		red := &domain.ReferralRedemption{
			ID:         uuid.NewString(),
			CodeID:     rc.ID,
			ReferrerID: rc.UserID,
			RefereeID:  refereeID,
			CreatedAt:  now,
		}
		if err := repo.CreateRedemption(ctx, tx, red); err != nil {
			if errors.Is(err, repo.ErrDuplicate) {
				return ErrAlreadyRedeemed
			}
			return err
		}
		out.RedemptionID = red.ID

		g, err := s.Ledger.GrantTx(ctx, tx, rc.UserID, ReferralBonus, domain.GrantReferrer, red.ID, expires)
		if err != nil {
			return errors.Wrap(err, "grant referrer bonus")
		}
		out.ReferrerGrant = g
		g, err = s.Ledger.GrantTx(ctx, tx, refereeID, ReferralBonus, domain.GrantReferee, red.ID, expires)
		if err != nil {
			return errors.Wrap(err, "grant referee bonus")
		}
		out.RefereeGrant = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	observability.ReferralRedemptions.Inc()
	return out, nil
}

// Status reports userID's code, whether they have redeemed one, and how
// many users redeemed theirs. It never mints a code.
func (s *ReferralService) Status(ctx context.Context, userID string) (*ReferralStatus, error) {
	ctx, span := otel.Tracer("services/ReferralService").Start(ctx, "Status",
		trace.WithAttributes(attribute.String("user.id", userID)),
	)
	defer span.End()

	out := &ReferralStatus{}
	rc, err := repo.GetReferralCodeByUser(ctx, s.DB, userID)
	switch {
	case err == nil:
		out.Code = rc.Code
		if out.Referred, err = repo.CountRedemptionsByReferrer(ctx, s.DB, userID); err != nil {
			return nil, err
		}
	case !repo.IsNotFound(err):
		return nil, err
	}

	red, err := repo.GetRedemptionByReferee(ctx, s.DB, userID)
	switch {
	case err == nil:
		out.Redeemed = true
		at := red.CreatedAt.UTC()
		out.RedeemedAt = &at
	case !repo.IsNotFound(err):
		return nil, err
	}
	return out, nil
}

// NormalizeCode canonicalizes user-entered code text.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// randomCode draws ReferralCodeLength symbols from codeAlphabet.
func randomCode() (string, error) {
	var b strings.Builder
	b.Grow(ReferralCodeLength)
	limit := big.NewInt(int64(len(codeAlphabet)))
	for i := 0; i < ReferralCodeLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", errors.Wrap(err, "read random")
		}
		b.WriteByte(codeAlphabet[n.Int64()])
	}
	return b.String(), nil
}
