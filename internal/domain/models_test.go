package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite" // pure-Go SQLite (no CGO)
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newDomainDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:domain_%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)
	// Enforce FKs so cascades actually execute.
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := db.AutoMigrate(Models()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	t.Cleanup(func() {
		for i := len(Models()) - 1; i >= 0; i-- {
			_ = db.Migrator().DropTable(Models()[i])
		}
	})
	return db
}

func TestTableNames(t *testing.T) {
	cases := []struct {
		got, want string
	}{
		{User{}.TableName(), "users"},
		{CreditBalance{}.TableName(), "credit_balances"},
		{ReferralCreditGrant{}.TableName(), "referral_credit_grants"},
		{CreditTransaction{}.TableName(), "credit_transactions"},
		{CreditReservation{}.TableName(), "credit_reservations"},
		{ReservationDebit{}.TableName(), "credit_reservation_debits"},
		{ReferralCode{}.TableName(), "referral_codes"},
		{ReferralRedemption{}.TableName(), "referral_redemptions"},
		{Recipe{}.TableName(), "recipes"},
		{VideoSource{}.TableName(), "video_sources"},
		{ExtractionJob{}.TableName(), "extraction_jobs"},
	}
	for _, c := range cases {
		if c.got != c.want {
			t.Fatalf("TableName() = %q; want %q", c.got, c.want)
		}
	}
}

func TestMigrations_Indexes(t *testing.T) {
	db := newDomainDB(t)
	m := db.Migrator()

	for _, tbl := range Models() {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}
	if !m.HasIndex(&VideoSource{}, "ux_video_platform_id") {
		t.Fatalf("expected unique index ux_video_platform_id on video_sources")
	}
	if !m.HasIndex(&ReferralRedemption{}, "ux_redemption_referee") {
		t.Fatalf("expected unique index ux_redemption_referee on referral_redemptions")
	}
	if !m.HasIndex(&ReferralCode{}, "ux_referral_code_code") {
		t.Fatalf("expected unique index ux_referral_code_code on referral_codes")
	}
}

func TestConstraints_RejectInvalidRows(t *testing.T) {
	db := newDomainDB(t)
	now := time.Now().UTC()

	if err := db.Create(&User{ID: "u1", SignupAt: now}).Error; err != nil {
		t.Fatalf("insert user: %v", err)
	}

	if err := db.Create(&CreditBalance{UserID: "u1", StandardCredits: -1, CreditsResetAt: now}).Error; err == nil {
		t.Fatalf("expected negative standard credits to be rejected")
	}

	over := &ReferralCreditGrant{ID: "g1", UserID: "u1", Amount: 5, Remaining: 6, Source: GrantReferee, ExpiresAt: now}
	if err := db.Create(over).Error; err == nil {
		t.Fatalf("expected remaining > amount to be rejected")
	}

	badSource := &ReferralCreditGrant{ID: "g2", UserID: "u1", Amount: 5, Remaining: 5, Source: "gift", ExpiresAt: now}
	if err := db.Create(badSource).Error; err == nil {
		t.Fatalf("expected unknown grant source to be rejected")
	}

	job := &ExtractionJob{
		ID: "j1", UserID: "u1", SourceKind: SourceURL, Locators: []string{"https://x"},
		Status: StatusPending, Progress: 101, ReservationID: "r1",
	}
	if err := db.Create(job).Error; err == nil {
		t.Fatalf("expected progress > 100 to be rejected")
	}
}

func TestVideoSource_UniquePerPlatformID_AndCascade(t *testing.T) {
	db := newDomainDB(t)
	now := time.Now().UTC()

	if err := db.Create(&User{ID: "u1", SignupAt: now}).Error; err != nil {
		t.Fatalf("insert user: %v", err)
	}
	for _, id := range []string{"r1", "r2"} {
		if err := db.Create(&Recipe{ID: id, UserID: "u1", Title: "Soup"}).Error; err != nil {
			t.Fatalf("insert recipe %s: %v", id, err)
		}
	}

	if err := db.Create(&VideoSource{ID: "v1", Platform: "youtube", PlatformVideoID: "abc", RecipeID: "r1"}).Error; err != nil {
		t.Fatalf("insert video source: %v", err)
	}
	if err := db.Create(&VideoSource{ID: "v2", Platform: "youtube", PlatformVideoID: "abc", RecipeID: "r2"}).Error; err == nil {
		t.Fatalf("expected second registration of the same video to fail")
	}
	// Same id on another platform is a different video.
	if err := db.Create(&VideoSource{ID: "v3", Platform: "tiktok", PlatformVideoID: "abc", RecipeID: "r2"}).Error; err != nil {
		t.Fatalf("insert other platform: %v", err)
	}

	// Deleting the recipe removes its video source.
	if err := db.Delete(&Recipe{}, "id = ?", "r1").Error; err != nil {
		t.Fatalf("delete recipe: %v", err)
	}
	var n int64
	db.Model(&VideoSource{}).Where("recipe_id = ?", "r1").Count(&n)
	if n != 0 {
		t.Fatalf("expected video source to cascade, got %d rows", n)
	}
}

func TestGrantUsable(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		g    ReferralCreditGrant
		want bool
	}{
		{"active", ReferralCreditGrant{Remaining: 2, ExpiresAt: now.Add(time.Hour)}, true},
		{"drained", ReferralCreditGrant{Remaining: 0, ExpiresAt: now.Add(time.Hour)}, false},
		{"expired", ReferralCreditGrant{Remaining: 2, ExpiresAt: now.Add(-time.Hour)}, false},
		{"expires exactly now", ReferralCreditGrant{Remaining: 2, ExpiresAt: now}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.g.Usable(now); got != c.want {
				t.Fatalf("Usable() = %v; want %v", got, c.want)
			}
		})
	}
}
