package services

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/tbourn/recipe-extraction-backend/internal/domain"
	"github.com/tbourn/recipe-extraction-backend/internal/ledger"
	"github.com/tbourn/recipe-extraction-backend/internal/repo"
)

// Monday 2025-01-06 10:00 UTC.
var t0 = time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newServicesDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:services_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	db.Exec("PRAGMA foreign_keys=ON;")
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

// engineFunc adapts a function to ExtractionEngine and counts calls.
type engineFunc struct {
	calls atomic.Int32
	fn    func(ctx context.Context, req domain.ExtractionRequest) (domain.Outcome, error)
}

func (e *engineFunc) Extract(ctx context.Context, req domain.ExtractionRequest) (domain.Outcome, error) {
	e.calls.Add(1)
	return e.fn(ctx, req)
}

func engineReturning(out domain.Outcome) *engineFunc {
	return &engineFunc{fn: func(context.Context, domain.ExtractionRequest) (domain.Outcome, error) { return out, nil }}
}

// memStorage keeps uploads in memory and records deletions.
type memStorage struct {
	mu      sync.Mutex
	files   map[string][]byte
	deleted []string
}

func newMemStorage() *memStorage { return &memStorage{files: map[string][]byte{}} }

func (s *memStorage) SaveVideo(_ context.Context, jobID string, r io.Reader, filename string) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	path := "mem://jobs/" + jobID + "/" + filename
	s.mu.Lock()
	s.files[path] = b
	s.mu.Unlock()
	return path, nil
}

func (s *memStorage) Delete(_ context.Context, path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.files, path)
	s.deleted = append(s.deleted, path)
	return nil
}

func (s *memStorage) Deleted() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.deleted...)
}

// holdDispatcher records dispatched jobs without running them.
type holdDispatcher struct {
	mu  sync.Mutex
	ids []string
	err error
}

func (d *holdDispatcher) Dispatch(_ context.Context, jobID string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.ids = append(d.ids, jobID)
	return nil
}

type harness struct {
	db      *gorm.DB
	clock   *fakeClock
	ledger  *ledger.Ledger
	jobs    *JobManager
	storage *memStorage
}

// newPooledFileDB opens a file database the way the server does: a
// connection pool with immediate write transactions and a busy timeout.
func newPooledFileDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := repo.OpenSQLite(filepath.Join(t.TempDir(), "services.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func newHarness(t *testing.T, engine ExtractionEngine) *harness {
	t.Helper()
	return newHarnessOn(t, newServicesDB(t), engine)
}

func newHarnessOn(t *testing.T, db *gorm.DB, engine ExtractionEngine) *harness {
	t.Helper()
	clock := &fakeClock{t: t0}
	l := &ledger.Ledger{DB: db, Now: clock.Now}
	st := newMemStorage()
	m := NewJobManager(db, l, engine, st)
	m.Now = clock.Now
	return &harness{db: db, clock: clock, ledger: l, jobs: m, storage: st}
}

func (h *harness) total(t *testing.T, userID string) int {
	t.Helper()
	s, err := h.ledger.Balance(context.Background(), userID)
	if err != nil {
		t.Fatalf("Balance(%s): %v", userID, err)
	}
	return s.Total
}

func (h *harness) rawJob(t *testing.T, id string) *domain.ExtractionJob {
	t.Helper()
	j, err := repo.GetJob(context.Background(), h.db, id)
	if err != nil {
		t.Fatalf("GetJob(%s): %v", id, err)
	}
	return j
}

func (h *harness) reservationStatus(t *testing.T, id string) domain.ReservationStatus {
	t.Helper()
	var r domain.CreditReservation
	if err := h.db.Where("id = ?", id).First(&r).Error; err != nil {
		t.Fatalf("load reservation %s: %v", id, err)
	}
	return r.Status
}

func draft(title string) domain.RecipeDraft {
	return domain.RecipeDraft{
		Title:       title,
		Ingredients: []string{"200g spaghetti", " ", "2 eggs"},
		Steps:       []string{"Boil pasta.", "Mix eggs and cheese."},
	}
}

func videoInput(url string) CreateJobInput {
	return CreateJobInput{SourceKind: domain.SourceVideo, Locators: []string{url}}
}

func pasteInput(text string) CreateJobInput {
	return CreateJobInput{SourceKind: domain.SourcePaste, Locators: []string{text}}
}

func countRows(t *testing.T, db *gorm.DB, model any, where string, args ...any) int64 {
	t.Helper()
	var n int64
	q := db.Model(model)
	if strings.TrimSpace(where) != "" {
		q = q.Where(where, args...)
	}
	if err := q.Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}
