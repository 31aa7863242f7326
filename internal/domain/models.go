// Package domain defines the persistence models for extraction jobs,
// recipes, the duplicate video index, the credit ledger and the referral
// program. These types are mapped with GORM and form the core data layer
// of the recipe extraction backend.
package domain

import (
	"time"

	"gorm.io/datatypes"
)

// User is the minimal account row every other table hangs off. Accounts are
// provisioned lazily the first time an identity touches the API.
//
// Fields:
//   - ID: opaque identity supplied by the auth layer (varchar(64)).
//   - SignupAt: anchors the first-week allowance tier.
//   - CreatedAt: timestamp managed by GORM.
type User struct {
	ID        string    `json:"id"         gorm:"type:varchar(64);primaryKey"`
	SignupAt  time.Time `json:"signup_at"  gorm:"not null"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName returns the database table name for User.
func (User) TableName() string { return "users" }

// CreditBalance is the per-user ledger head. StandardCredits is the weekly
// allowance pool; ReferralCredits is a denormalized cache of the usable
// remaining on non-expired grants and is recomputed after every mutation.
type CreditBalance struct {
	UserID          string    `json:"user_id"          gorm:"type:varchar(64);primaryKey"`
	StandardCredits int       `json:"standard_credits" gorm:"not null;default:0;check:chk_standard_nonneg,standard_credits >= 0"`
	ReferralCredits int       `json:"referral_credits" gorm:"not null;default:0;check:chk_referral_nonneg,referral_credits >= 0"`
	CreditsResetAt  time.Time `json:"credits_reset_at" gorm:"not null"`
	UpdatedAt       time.Time `json:"updated_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for CreditBalance.
func (CreditBalance) TableName() string { return "credit_balances" }

// ReferralCreditGrant is one expiring bucket of referral credits. Remaining
// is drained oldest-expiry first and never leaves [0, Amount].
type ReferralCreditGrant struct {
	ID           string      `json:"id"            gorm:"type:char(36);primaryKey"`
	UserID       string      `json:"user_id"       gorm:"type:varchar(64);not null;index:idx_grants_user_expiry,priority:1"`
	Amount       int         `json:"amount"        gorm:"not null;check:chk_grant_amount_pos,amount > 0"`
	Remaining    int         `json:"remaining"     gorm:"not null;check:chk_grant_remaining_range,remaining >= 0 AND remaining <= amount"`
	Source       GrantSource `json:"source"        gorm:"type:varchar(16);not null;check:chk_grant_source,source IN ('referrer','referee')"`
	RedemptionID *string     `json:"redemption_id,omitempty" gorm:"type:char(36);index"`
	ExpiresAt    time.Time   `json:"expires_at"    gorm:"not null;index:idx_grants_user_expiry,priority:2"`
	CreatedAt    time.Time   `json:"created_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ReferralCreditGrant.
func (ReferralCreditGrant) TableName() string { return "referral_credit_grants" }

// Usable reports whether the grant can still be drawn from at now.
func (g ReferralCreditGrant) Usable(now time.Time) bool {
	return g.Remaining > 0 && g.ExpiresAt.After(now)
}

// CreditTransaction is one append-only audit row. Amount is signed;
// BalanceAfter is the total of the affected pool after the change.
type CreditTransaction struct {
	ID            string     `json:"id"             gorm:"type:char(36);primaryKey"`
	UserID        string     `json:"user_id"        gorm:"type:varchar(64);not null;index:idx_tx_user_created,priority:1"`
	Amount        int        `json:"amount"         gorm:"not null"`
	CreditType    CreditType `json:"credit_type"    gorm:"type:varchar(16);not null;check:chk_tx_credit_type,credit_type IN ('standard','referral')"`
	Reason        TxReason   `json:"reason"         gorm:"type:varchar(32);not null;check:chk_tx_reason,reason IN ('weekly_reset','extraction','refund','referral_bonus','expired')"`
	JobID         *string    `json:"job_id,omitempty"         gorm:"type:char(36);index"`
	ReservationID *string    `json:"reservation_id,omitempty" gorm:"type:char(36);index"`
	GrantID       *string    `json:"grant_id,omitempty"       gorm:"type:char(36)"`
	BalanceAfter  int        `json:"balance_after"  gorm:"not null"`
	CreatedAt     time.Time  `json:"created_at"     gorm:"index:idx_tx_user_created,priority:2"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for CreditTransaction.
func (CreditTransaction) TableName() string { return "credit_transactions" }

// CreditReservation is the opaque token handed back by a reserve. It
// remembers exactly which pools were drained so a refund can restore them.
type CreditReservation struct {
	ID        string            `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string            `json:"user_id"    gorm:"type:varchar(64);not null;index"`
	JobID     *string           `json:"job_id,omitempty" gorm:"type:char(36);index"`
	Amount    int               `json:"amount"     gorm:"not null;check:chk_reservation_amount_pos,amount > 0"`
	Status    ReservationStatus `json:"status"     gorm:"type:varchar(16);not null;check:chk_reservation_status,status IN ('held','consumed','refunded')"`
	CreatedAt time.Time         `json:"created_at"`
	SettledAt *time.Time        `json:"settled_at,omitempty"`

	Debits []ReservationDebit `json:"debits" gorm:"foreignKey:ReservationID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
	User   User               `json:"-"      gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for CreditReservation.
func (CreditReservation) TableName() string { return "credit_reservations" }

// ReservationDebit records one pool drawn by a reservation, in draw order.
type ReservationDebit struct {
	ReservationID string     `json:"reservation_id" gorm:"type:char(36);primaryKey"`
	Seq           int        `json:"seq"            gorm:"primaryKey;autoIncrement:false"`
	CreditType    CreditType `json:"credit_type"    gorm:"type:varchar(16);not null"`
	GrantID       *string    `json:"grant_id,omitempty" gorm:"type:char(36)"`
	Amount        int        `json:"amount"         gorm:"not null;check:chk_debit_amount_pos,amount > 0"`
}

// TableName returns the database table name for ReservationDebit.
func (ReservationDebit) TableName() string { return "credit_reservation_debits" }

// ReferralCode is the single shareable code owned by a referrer.
type ReferralCode struct {
	ID        string    `json:"id"         gorm:"type:char(36);primaryKey"`
	UserID    string    `json:"user_id"    gorm:"type:varchar(64);not null;uniqueIndex:ux_referral_code_user"`
	Code      string    `json:"code"       gorm:"type:varchar(16);not null;uniqueIndex:ux_referral_code_code"`
	CreatedAt time.Time `json:"created_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ReferralCode.
func (ReferralCode) TableName() string { return "referral_codes" }

// ReferralRedemption links a referee to the code they redeemed. A referee
// can redeem at most once, enforced by ux_redemption_referee.
type ReferralRedemption struct {
	ID         string    `json:"id"          gorm:"type:char(36);primaryKey"`
	CodeID     string    `json:"code_id"     gorm:"type:char(36);not null;index"`
	ReferrerID string    `json:"referrer_id" gorm:"type:varchar(64);not null;index"`
	RefereeID  string    `json:"referee_id"  gorm:"type:varchar(64);not null;uniqueIndex:ux_redemption_referee"`
	CreatedAt  time.Time `json:"created_at"`

	ReferralCode ReferralCode `json:"-" gorm:"foreignKey:CodeID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ReferralRedemption.
func (ReferralRedemption) TableName() string { return "referral_redemptions" }

// Recipe is the structured result of a completed extraction. Recipes are
// created as private drafts owned by the requesting user.
type Recipe struct {
	ID          string                      `json:"id"          gorm:"type:char(36);primaryKey"`
	UserID      string                      `json:"user_id"     gorm:"type:varchar(64);not null;index:idx_user_recipes"`
	JobID       *string                     `json:"job_id,omitempty" gorm:"type:char(36);index"`
	Title       string                      `json:"title"       gorm:"type:varchar(255);not null"`
	Description string                      `json:"description" gorm:"type:text"`
	Ingredients datatypes.JSONSlice[string] `json:"ingredients"`
	Steps       datatypes.JSONSlice[string] `json:"steps"`
	Servings    *int                        `json:"servings,omitempty"`
	PrepMinutes *int                        `json:"prep_minutes,omitempty"`
	CookMinutes *int                        `json:"cook_minutes,omitempty"`
	SourceURL   *string                     `json:"source_url,omitempty" gorm:"type:text"`
	IsDraft     bool                        `json:"is_draft"    gorm:"not null;default:true"`
	IsPublic    bool                        `json:"is_public"   gorm:"not null;default:false"`
	CreatedAt   time.Time                   `json:"created_at"`
	UpdatedAt   time.Time                   `json:"updated_at"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for Recipe.
func (Recipe) TableName() string { return "recipes" }

// VideoSource maps a (platform, platform video id) pair to the one recipe
// extracted from it. The composite unique index is the arbiter of
// concurrent registrations.
type VideoSource struct {
	ID              string    `json:"id"                gorm:"type:char(36);primaryKey"`
	Platform        string    `json:"platform"          gorm:"type:varchar(32);not null;uniqueIndex:ux_video_platform_id,priority:1"`
	PlatformVideoID string    `json:"platform_video_id" gorm:"type:varchar(128);not null;uniqueIndex:ux_video_platform_id,priority:2"`
	RecipeID        string    `json:"recipe_id"         gorm:"type:char(36);not null;index"`
	CreatedAt       time.Time `json:"created_at"`

	Recipe Recipe `json:"-" gorm:"foreignKey:RecipeID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for VideoSource.
func (VideoSource) TableName() string { return "video_sources" }

// ExtractionJob is one user request to turn a source into a recipe.
//
// Fields:
//   - Status: lifecycle position, see CanTransition.
//   - RecipeID: set only when Status is completed.
//   - ExistingRecipeID: set only when Status is duplicate.
//   - ErrorMessage: set only when Status is failed.
//   - VideoDownloadURL / VideoMetadata: set when the engine asks for a
//     client-side download.
//   - TempVideoPath: set only while a resumed job is processing.
//   - ReservationID: the credit reservation backing this job.
type ExtractionJob struct {
	ID                    string                      `json:"id"           gorm:"type:char(36);primaryKey"`
	UserID                string                      `json:"user_id"      gorm:"type:varchar(64);not null;index:idx_user_jobs,priority:1"`
	SourceKind            SourceKind                  `json:"source_kind"  gorm:"type:varchar(16);not null;check:chk_job_source_kind,source_kind IN ('video','photo','voice','url','paste','link')"`
	Locators              datatypes.JSONSlice[string] `json:"locators"     gorm:"not null"`
	Status                JobStatus                   `json:"status"       gorm:"type:varchar(32);not null;index"`
	Progress              int                         `json:"progress"     gorm:"not null;default:0;check:chk_job_progress,progress >= 0 AND progress <= 100"`
	CurrentStep           string                      `json:"current_step" gorm:"type:varchar(64)"`
	RecipeID              *string                     `json:"recipe_id,omitempty"          gorm:"type:char(36)"`
	ExistingRecipeID      *string                     `json:"existing_recipe_id,omitempty" gorm:"type:char(36)"`
	ExistingRecipeVisible bool                        `json:"existing_recipe_visible"      gorm:"not null;default:false"`
	ErrorMessage          *string                     `json:"error_message,omitempty"      gorm:"type:text"`
	VideoPlatform         *string                     `json:"video_platform,omitempty"     gorm:"type:varchar(32)"`
	PlatformVideoID       *string                     `json:"platform_video_id,omitempty"  gorm:"type:varchar(128)"`
	VideoDownloadURL      *string                     `json:"video_download_url,omitempty" gorm:"type:text"`
	VideoMetadata         datatypes.JSON              `json:"video_metadata,omitempty"`
	TempVideoPath         *string                     `json:"-"            gorm:"type:text"`
	Resumed               bool                        `json:"resumed"      gorm:"not null;default:false"`
	ReservationID         string                      `json:"-"            gorm:"type:char(36);not null"`
	CreatedAt             time.Time                   `json:"created_at"   gorm:"index:idx_user_jobs,priority:2"`
	UpdatedAt             time.Time                   `json:"updated_at"`
	StartedAt             *time.Time                  `json:"started_at,omitempty"`
	CompletedAt           *time.Time                  `json:"completed_at,omitempty"`

	User User `json:"-" gorm:"foreignKey:UserID;references:ID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE"`
}

// TableName returns the database table name for ExtractionJob.
func (ExtractionJob) TableName() string { return "extraction_jobs" }

// HasVideoRef reports whether the job carries a platform video identity.
func (j ExtractionJob) HasVideoRef() bool {
	return j.VideoPlatform != nil && j.PlatformVideoID != nil
}

// Models lists every persisted type in migration order.
func Models() []any {
	return []any{
		&User{},
		&CreditBalance{},
		&ReferralCreditGrant{},
		&CreditTransaction{},
		&CreditReservation{},
		&ReservationDebit{},
		&ReferralCode{},
		&ReferralRedemption{},
		&Recipe{},
		&VideoSource{},
		&ExtractionJob{},
		&Idempotency{},
	}
}
