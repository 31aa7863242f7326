// Package services – JobManager
//
// This file implements the extraction job state machine. A job is created
// only after a credit has been reserved for it; from then on every outcome
// (duplicate video, engine result, cancellation, timeout) is recorded as a
// job status and settles the reservation in the same transaction as the
// status change. Status changes are compare-and-swap updates, so a late or
// repeated engine result for a job that already left processing is a no-op.
package services

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/recipe-extraction-backend/internal/domain"
	"github.com/tbourn/recipe-extraction-backend/internal/observability"
	"github.com/tbourn/recipe-extraction-backend/internal/platform"
	"github.com/tbourn/recipe-extraction-backend/internal/repo"
	"github.com/tbourn/recipe-extraction-backend/internal/utils"
)

const (
	// MaxLocators caps the number of sources a single job may carry.
	MaxLocators = 5
	// IdempotencyScopeCreateJob scopes Idempotency-Key records for job creation.
	IdempotencyScopeCreateJob = "extractions.create"

	jobCost          = 1
	stuckBatch       = 100
	defaultTimeout   = 2 * time.Minute
	defaultIdemTTL   = 24 * time.Hour
	defaultTitleMax  = 120
	defaultPageSize  = 20
	maxLocatorLength = 2048
)

// ExtractionEngine turns a job's sources into an outcome. Implementations
// must honour ctx's deadline.
type ExtractionEngine interface {
	Extract(ctx context.Context, req domain.ExtractionRequest) (domain.Outcome, error)
}

// TempStorage keeps client-uploaded videos until the resumed job ends.
type TempStorage interface {
	SaveVideo(ctx context.Context, jobID string, r io.Reader, filename string) (string, error)
	Delete(ctx context.Context, path string) error
}

// Dispatcher schedules Process for a job, usually on a worker pool.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string) error
}

// CreditLedger is the subset of the ledger the job manager settles with.
type CreditLedger interface {
	Reserve(ctx context.Context, userID string, amount int, jobID string) (*domain.CreditReservation, error)
	Refund(ctx context.Context, reservationID string) error
	RefundTx(ctx context.Context, tx *gorm.DB, reservationID string) error
	ConsumeTx(ctx context.Context, tx *gorm.DB, reservationID string) error
}

// CreateJobInput is a validated-at-the-edge request to start an extraction.
type CreateJobInput struct {
	SourceKind     domain.SourceKind
	Locators       []string
	IdempotencyKey string
}

// JobManager owns every write to extraction jobs.
type JobManager struct {
	DB         *gorm.DB
	Ledger     CreditLedger
	Index      *DuplicateIndex
	Engine     ExtractionEngine
	Storage    TempStorage
	Dispatcher Dispatcher

	// EngineTimeout bounds one engine call.
	EngineTimeout time.Duration
	// IdempotencyTTL is how long a create Idempotency-Key is remembered.
	IdempotencyTTL time.Duration

	// Draft title formatting.
	TitleLocale language.Tag
	TitleMaxLen int

	// Now is the job clock. It must return UTC.
	Now func() time.Time
}

// NewJobManager wires a JobManager with default timeouts. Dispatcher is
// left nil, in which case jobs are processed inline by the creating call.
func NewJobManager(db *gorm.DB, ledger CreditLedger, engine ExtractionEngine, storage TempStorage) *JobManager {
	return &JobManager{
		DB:             db,
		Ledger:         ledger,
		Index:          &DuplicateIndex{DB: db},
		Engine:         engine,
		Storage:        storage,
		EngineTimeout:  defaultTimeout,
		IdempotencyTTL: defaultIdemTTL,
		TitleLocale:    language.English,
		TitleMaxLen:    defaultTitleMax,
		Now:            func() time.Time { return time.Now().UTC() },
	}
}

func (m *JobManager) now() time.Time {
	if m.Now != nil {
		return m.Now().UTC()
	}
	return time.Now().UTC()
}

func (m *JobManager) span(ctx context.Context, name, jobID string) (context.Context, trace.Span) {
	return otel.Tracer("services/JobManager").Start(ctx, name,
		trace.WithAttributes(attribute.String("job.id", jobID)),
	)
}

// Create reserves a credit and starts a job for userID. The returned bool
// is true when an earlier job was replayed for the same idempotency key.
// ErrInsufficientCredits is returned without any job being created.
func (m *JobManager) Create(ctx context.Context, userID string, in CreateJobInput) (*domain.ExtractionJob, bool, error) {
	ctx, span := otel.Tracer("services/JobManager").Start(ctx, "Create",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("job.source_kind", string(in.SourceKind)),
		),
	)
	defer span.End()

	if !in.SourceKind.Valid() {
		return nil, false, ErrInvalidSourceKind
	}
	locators, err := normalizeLocators(in.Locators)
	if err != nil {
		return nil, false, err
	}
	key := strings.TrimSpace(in.IdempotencyKey)
	if key != "" {
		prev, err := m.replay(ctx, userID, key)
		if err == nil {
			return prev, true, nil
		}
		if !errors.Is(err, repo.ErrNotFound) {
			return nil, false, err
		}
	}

	now := m.now()
	job := &domain.ExtractionJob{
		ID:         uuid.NewString(),
		UserID:     userID,
		SourceKind: in.SourceKind,
		Locators:   datatypes.JSONSlice[string](locators),
		Status:     domain.StatusPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if in.SourceKind.MayReferenceVideo() {
		if ref, ok := platform.DetectAny(locators); ok {
			job.VideoPlatform = &ref.Platform
			job.PlatformVideoID = &ref.VideoID
		}
	}
	span.SetAttributes(attribute.String("job.id", job.ID))

	res, err := m.Ledger.Reserve(ctx, userID, jobCost, job.ID)
	if err != nil {
		return nil, false, err
	}
	job.ReservationID = res.ID

	var replayed bool
	err = m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.CreateJob(ctx, tx, job); err != nil {
			return err
		}
		if err := repo.TransitionJob(ctx, tx, job.ID,
			[]domain.JobStatus{domain.StatusPending}, domain.StatusProcessing,
			map[string]any{"started_at": now, "current_step": domain.StepQueued, "updated_at": now},
		); err != nil {
			return err
		}
		if key == "" {
			return nil
		}
		_, err := repo.CreateIdempotency(ctx, tx, userID, IdempotencyScopeCreateJob, key, job.ID, http.StatusCreated, now, m.idemTTL())
		if errors.Is(err, repo.ErrDuplicate) {
			replayed = true
		}
		return err
	})
	if err != nil {
		// The job never became visible; hand the credit back before
		// reporting anything to the caller.
		if rerr := m.Ledger.Refund(ctx, res.ID); rerr != nil {
			span.RecordError(rerr)
			return nil, false, errors.CombineErrors(err, rerr)
		}
		if replayed {
			prev, perr := m.replay(ctx, userID, key)
			if perr != nil {
				return nil, false, perr
			}
			return prev, true, nil
		}
		span.SetStatus(codes.Error, err.Error())
		return nil, false, errors.Wrap(err, "create extraction job")
	}
	observability.JobTransitions.WithLabelValues(string(domain.StatusProcessing)).Inc()

	job, err = repo.GetJob(ctx, m.DB, job.ID)
	if err != nil {
		return nil, false, err
	}
	if err := m.start(ctx, job); err != nil {
		return nil, false, err
	}
	out, err := m.reload(ctx, job.ID)
	return out, false, err
}

// replay returns the job recorded for key, or repo.ErrNotFound.
func (m *JobManager) replay(ctx context.Context, userID, key string) (*domain.ExtractionJob, error) {
	rec, err := repo.GetIdempotency(ctx, m.DB, userID, IdempotencyScopeCreateJob, key, m.now())
	if err != nil {
		return nil, err
	}
	job, err := repo.GetJobForUser(ctx, m.DB, rec.ResourceID, userID)
	if err != nil {
		return nil, err
	}
	return present(job), nil
}

// start runs the duplicate gate for a processing job and otherwise hands it
// to the dispatcher. Once the job exists, failures are recorded on it.
func (m *JobManager) start(ctx context.Context, job *domain.ExtractionJob) error {
	if job.HasVideoRef() {
		ref, err := m.Index.Lookup(ctx, *job.VideoPlatform, *job.PlatformVideoID)
		switch {
		case err == nil:
			observability.DuplicateHits.WithLabelValues("lookup").Inc()
			return m.settleQuiet(ctx, job, domain.Duplicate{RecipeID: ref.RecipeID, Visible: visibleTo(ref, job.UserID)})
		case !errors.Is(err, ErrNotIndexed):
			return m.settleQuiet(ctx, job, domain.Failed{Message: "duplicate check failed: " + err.Error()})
		}
	}

	if m.Dispatcher == nil {
		return m.Process(ctx, job.ID)
	}
	if err := m.Dispatcher.Dispatch(ctx, job.ID); err != nil {
		return m.settleQuiet(ctx, job, domain.Failed{Message: "could not queue extraction: " + err.Error()})
	}
	return nil
}

// Process calls the engine for a processing job and finalizes it with the
// result. Jobs that are not waiting for the engine are skipped.
func (m *JobManager) Process(ctx context.Context, jobID string) error {
	ctx, span := m.span(ctx, "Process", jobID)
	defer span.End()

	job, err := repo.GetJob(ctx, m.DB, jobID)
	if err != nil {
		if repo.IsNotFound(err) {
			return ErrJobNotFound
		}
		return err
	}
	if job.Status != domain.StatusProcessing {
		return nil
	}
	if err := repo.ClaimJob(ctx, m.DB, job.ID, m.now()); err != nil {
		if errors.Is(err, repo.ErrStaleTransition) {
			return nil
		}
		return err
	}

	req := domain.ExtractionRequest{
		JobID:      job.ID,
		UserID:     job.UserID,
		SourceKind: job.SourceKind,
		Locators:   []string(job.Locators),
	}
	if job.TempVideoPath != nil {
		req.LocalVideoPath = *job.TempVideoPath
	}

	timeout := m.engineTimeout()
	ectx, cancel := context.WithTimeout(ctx, timeout)
	out, err := m.Engine.Extract(ectx, req)
	deadline := errors.Is(ectx.Err(), context.DeadlineExceeded)
	cancel()

	if err != nil {
		span.RecordError(err)
		switch {
		case ctx.Err() != nil:
			// Shutdown: leave the job for stuck-job recovery.
			return ctx.Err()
		case deadline || errors.Is(err, context.DeadlineExceeded):
			out = domain.Failed{Message: fmt.Sprintf("extraction timed out after %s", timeout)}
		default:
			out = domain.Failed{Message: err.Error()}
		}
	} else if checked, verr := engineOutcome(out); verr != nil {
		out = domain.Failed{Message: verr.Error()}
	} else {
		out = checked
	}

	_, err = m.finalize(ctx, job, out)
	return err
}

// Finalize applies an engine-reported outcome to a job. An outcome for a
// job that already left processing is ignored and the current job is
// returned unchanged.
func (m *JobManager) Finalize(ctx context.Context, jobID string, out domain.Outcome) (*domain.ExtractionJob, error) {
	ctx, span := m.span(ctx, "Finalize", jobID)
	defer span.End()

	checked, err := engineOutcome(out)
	if err != nil {
		return nil, err
	}
	job, err := repo.GetJob(ctx, m.DB, jobID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return m.finalize(ctx, job, checked)
}

func (m *JobManager) finalize(ctx context.Context, job *domain.ExtractionJob, out domain.Outcome) (*domain.ExtractionJob, error) {
	if job.Status.IsTerminal() {
		return present(job), nil
	}
	var err error
	if c, ok := out.(domain.Completed); ok {
		err = m.complete(ctx, job, c.Draft)
	} else {
		err = m.settle(ctx, job, []domain.JobStatus{domain.StatusProcessing}, out)
	}
	if err != nil && !errors.Is(err, repo.ErrStaleTransition) {
		return nil, err
	}
	return m.reload(ctx, job.ID)
}

// settle moves job from one of from to out's status and settles the
// reservation in the same transaction. It returns repo.ErrStaleTransition
// when the job had already moved on.
func (m *JobManager) settle(ctx context.Context, job *domain.ExtractionJob, from []domain.JobStatus, out domain.Outcome) error {
	action, err := settlement(out)
	if err != nil {
		return err
	}
	to := out.Status()
	cols := outcomeColumns(out, m.now())
	if job.TempVideoPath != nil {
		cols["temp_video_path"] = nil
	}

	err = m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.TransitionJob(ctx, tx, job.ID, from, to, cols); err != nil {
			return err
		}
		return m.applyCredit(ctx, tx, job.ReservationID, action)
	})
	if err != nil {
		return err
	}
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("job.status", string(to)),
		attribute.String("job.credit", action.String()),
	)
	m.terminal(ctx, job, to)
	return nil
}

// settleQuiet is settle for callers that only care about hard failures.
func (m *JobManager) settleQuiet(ctx context.Context, job *domain.ExtractionJob, out domain.Outcome) error {
	err := m.settle(ctx, job, []domain.JobStatus{domain.StatusProcessing}, out)
	if errors.Is(err, repo.ErrStaleTransition) {
		return nil
	}
	return err
}

// complete materializes the draft recipe, registers the video and consumes
// the credit atomically. Losing the registration race turns the job into a
// duplicate of the winner's recipe instead.
func (m *JobManager) complete(ctx context.Context, job *domain.ExtractionJob, draft domain.RecipeDraft) error {
	now := m.now()
	recipe := m.draftRecipe(job, draft, now)

	cols := outcomeColumns(domain.Completed{Draft: draft}, now)
	cols["recipe_id"] = recipe.ID
	if job.TempVideoPath != nil {
		cols["temp_video_path"] = nil
	}

	err := m.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := repo.TransitionJob(ctx, tx, job.ID,
			[]domain.JobStatus{domain.StatusProcessing}, domain.StatusCompleted, cols,
		); err != nil {
			return err
		}
		if err := repo.CreateRecipe(ctx, tx, recipe); err != nil {
			return err
		}
		if job.HasVideoRef() {
			if err := m.Index.Register(ctx, tx, *job.VideoPlatform, *job.PlatformVideoID, recipe.ID, now); err != nil {
				return err
			}
		}
		return m.Ledger.ConsumeTx(ctx, tx, job.ReservationID)
	})
	switch {
	case err == nil:
		m.terminal(ctx, job, domain.StatusCompleted)
		return nil
	case errors.Is(err, ErrAlreadyRegistered):
		ref, lerr := m.Index.Lookup(ctx, *job.VideoPlatform, *job.PlatformVideoID)
		if lerr != nil {
			return m.settle(ctx, job, []domain.JobStatus{domain.StatusProcessing},
				domain.Failed{Message: "duplicate check failed: " + lerr.Error()})
		}
		observability.DuplicateHits.WithLabelValues("register").Inc()
		return m.settle(ctx, job, []domain.JobStatus{domain.StatusProcessing},
			domain.Duplicate{RecipeID: ref.RecipeID, Visible: visibleTo(ref, job.UserID)})
	default:
		return err
	}
}

// terminal runs the side effects owed after a committed status change.
func (m *JobManager) terminal(ctx context.Context, job *domain.ExtractionJob, to domain.JobStatus) {
	observability.JobTransitions.WithLabelValues(string(to)).Inc()
	if job.TempVideoPath != nil && m.Storage != nil {
		if err := m.Storage.Delete(ctx, *job.TempVideoPath); err != nil {
			trace.SpanFromContext(ctx).RecordError(err)
		}
	}
}

func (m *JobManager) draftRecipe(job *domain.ExtractionJob, d domain.RecipeDraft, now time.Time) *domain.Recipe {
	jobID := job.ID
	r := &domain.Recipe{
		ID:          uuid.NewString(),
		UserID:      job.UserID,
		JobID:       &jobID,
		Title:       m.formatTitle(d.Title),
		Description: strings.TrimSpace(d.Description),
		Ingredients: datatypes.JSONSlice[string](nonEmpty(d.Ingredients)),
		Steps:       datatypes.JSONSlice[string](nonEmpty(d.Steps)),
		Servings:    d.Servings,
		PrepMinutes: d.PrepMinutes,
		CookMinutes: d.CookMinutes,
		IsDraft:     true,
		IsPublic:    false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	src := strings.TrimSpace(d.SourceURL)
	if src == "" && job.SourceKind.MayReferenceVideo() && len(job.Locators) > 0 {
		src = job.Locators[0]
	}
	if src != "" {
		r.SourceURL = &src
	}
	return r
}

// formatTitle collapses whitespace, title-cases the words without lowering
// acronyms and clips to TitleMaxLen runes.
func (m *JobManager) formatTitle(raw string) string {
	t := whitespaceRE.ReplaceAllString(strings.TrimSpace(raw), " ")
	loc := m.TitleLocale
	if loc == language.Und {
		loc = language.English
	}
	t = cases.Title(loc, cases.NoLower).String(t)
	max := m.TitleMaxLen
	if max <= 0 {
		max = defaultTitleMax
	}
	if utf8.RuneCountInString(t) > max {
		t = strings.TrimSpace(string([]rune(t)[:max]))
	}
	return t
}

// Cancel stops a job the user owns. The credit is refunded; an engine call
// already in flight is not interrupted and its late result is ignored.
func (m *JobManager) Cancel(ctx context.Context, userID, jobID string) (*domain.ExtractionJob, error) {
	ctx, span := m.span(ctx, "Cancel", jobID)
	defer span.End()

	job, err := m.owned(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if !job.Status.Cancellable() {
		return nil, ErrJobNotCancellable
	}
	err = m.settle(ctx, job, []domain.JobStatus{domain.StatusPending, domain.StatusProcessing}, domain.Cancelled{})
	if errors.Is(err, repo.ErrStaleTransition) {
		return nil, ErrJobNotCancellable
	}
	if err != nil {
		return nil, err
	}
	return m.reload(ctx, job.ID)
}

// Resume accepts the client-downloaded video for a needs_client_download
// job and puts it back into processing. The temp file is removed when the
// resumed job reaches any terminal status.
func (m *JobManager) Resume(ctx context.Context, userID, jobID string, video io.Reader, filename string) (*domain.ExtractionJob, error) {
	ctx, span := m.span(ctx, "Resume", jobID)
	defer span.End()

	job, err := m.owned(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	if job.Status != domain.StatusNeedsClientDownload {
		return nil, ErrJobNotResumable
	}
	if m.Storage == nil {
		return nil, errors.AssertionFailedf("resume without temp storage")
	}

	cr := &countingReader{r: video}
	path, err := m.Storage.SaveVideo(ctx, job.ID, cr, filename)
	if err != nil {
		return nil, errors.Wrap(err, "store uploaded video")
	}
	if cr.n == 0 {
		_ = m.Storage.Delete(ctx, path)
		return nil, ErrEmptyUpload
	}

	now := m.now()
	err = repo.TransitionJob(ctx, m.DB, job.ID,
		[]domain.JobStatus{domain.StatusNeedsClientDownload}, domain.StatusProcessing,
		map[string]any{
			"temp_video_path": path,
			"resumed":         true,
			"started_at":      now,
			"completed_at":    nil,
			"progress":        0,
			"current_step":    domain.StepQueued,
			"updated_at":      now,
		},
	)
	if err != nil {
		_ = m.Storage.Delete(ctx, path)
		if errors.Is(err, repo.ErrStaleTransition) {
			return nil, ErrJobNotResumable
		}
		return nil, err
	}
	observability.UploadBytes.Observe(float64(cr.n))
	observability.JobTransitions.WithLabelValues(string(domain.StatusProcessing)).Inc()

	job, err = repo.GetJob(ctx, m.DB, job.ID)
	if err != nil {
		return nil, err
	}
	if err := m.start(ctx, job); err != nil {
		return nil, err
	}
	return m.reload(ctx, job.ID)
}

// UpdateProgress records engine progress. Updates for jobs that are no
// longer processing are ignored.
func (m *JobManager) UpdateProgress(ctx context.Context, jobID string, progress int, step string) error {
	progress = max(0, min(100, progress))
	step = strings.TrimSpace(step)
	if utf8.RuneCountInString(step) > 64 {
		step = string([]rune(step)[:64])
	}
	err := repo.UpdateJobProgress(ctx, m.DB, jobID, progress, step, m.now())
	if !errors.Is(err, repo.ErrStaleTransition) {
		return err
	}
	if _, gerr := repo.GetJob(ctx, m.DB, jobID); repo.IsNotFound(gerr) {
		return ErrJobNotFound
	}
	return nil
}

// RecoverStuck fails and refunds jobs that have been processing for longer
// than olderThan. It returns how many jobs were recovered.
func (m *JobManager) RecoverStuck(ctx context.Context, olderThan time.Duration) (int, error) {
	ctx, span := otel.Tracer("services/JobManager").Start(ctx, "RecoverStuck")
	defer span.End()

	cutoff := m.now().Add(-olderThan)
	msg := fmt.Sprintf("extraction timed out: no result after %s", olderThan)
	recovered := 0
	for {
		jobs, err := repo.ListStuckJobs(ctx, m.DB, cutoff, stuckBatch)
		if err != nil {
			return recovered, err
		}
		for i := range jobs {
			err := m.settle(ctx, &jobs[i], []domain.JobStatus{domain.StatusProcessing}, domain.Failed{Message: msg})
			if errors.Is(err, repo.ErrStaleTransition) {
				continue
			}
			if err != nil {
				return recovered, errors.Wrapf(err, "recover job %s", jobs[i].ID)
			}
			recovered++
		}
		if len(jobs) < stuckBatch {
			break
		}
	}
	span.SetAttributes(attribute.Int("jobs.recovered", recovered))
	return recovered, nil
}

// Get returns a job owned by userID.
func (m *JobManager) Get(ctx context.Context, userID, jobID string) (*domain.ExtractionJob, error) {
	job, err := m.owned(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	return present(job), nil
}

// GetRecipe returns a recipe the caller owns or one that is public. A
// duplicate job's existing_recipe_id resolves through here.
func (m *JobManager) GetRecipe(ctx context.Context, userID, recipeID string) (*domain.Recipe, error) {
	r, err := repo.GetRecipe(ctx, m.DB, recipeID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrRecipeNotFound
		}
		return nil, err
	}
	if r.UserID != userID && !r.IsPublic {
		return nil, ErrRecipeNotFound
	}
	return r, nil
}

// ListPage returns a page of userID's jobs, newest first, and the total.
func (m *JobManager) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.ExtractionJob, int64, error) {
	ctx, span := otel.Tracer("services/JobManager").Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	p := utils.Page{Number: page, Size: pageSize}.Clamp(defaultPageSize, 0)
	total, err := repo.CountJobs(ctx, m.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.ExtractionJob{}, 0, nil
	}
	items, err := repo.ListJobsPage(ctx, m.DB, userID, p.Offset(), p.Size)
	if err != nil {
		return nil, 0, err
	}
	for i := range items {
		present(&items[i])
	}
	return items, total, nil
}

func (m *JobManager) owned(ctx context.Context, userID, jobID string) (*domain.ExtractionJob, error) {
	job, err := repo.GetJobForUser(ctx, m.DB, jobID, userID)
	if err != nil {
		if repo.IsNotFound(err) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return job, nil
}

func (m *JobManager) reload(ctx context.Context, jobID string) (*domain.ExtractionJob, error) {
	job, err := repo.GetJob(ctx, m.DB, jobID)
	if err != nil {
		return nil, err
	}
	return present(job), nil
}

func (m *JobManager) engineTimeout() time.Duration {
	if m.EngineTimeout > 0 {
		return m.EngineTimeout
	}
	return defaultTimeout
}

func (m *JobManager) idemTTL() time.Duration {
	if m.IdempotencyTTL > 0 {
		return m.IdempotencyTTL
	}
	return defaultIdemTTL
}

// present hides a duplicate's recipe id from users who may not open it.
func present(job *domain.ExtractionJob) *domain.ExtractionJob {
	if job.Status == domain.StatusDuplicate && !job.ExistingRecipeVisible {
		job.ExistingRecipeID = nil
	}
	return job
}

// normalizeLocators trims and validates job sources.
func normalizeLocators(in []string) ([]string, error) {
	out := nonEmpty(in)
	if len(out) == 0 || len(out) > MaxLocators {
		return nil, ErrInvalidLocators
	}
	for _, l := range out {
		if len(l) > maxLocatorLength {
			return nil, ErrInvalidLocators
		}
	}
	return out, nil
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
