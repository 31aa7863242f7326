// Package handlers exposes the public REST API and the internal engine
// callbacks.
//
// Handlers are transport-thin: they validate input, call application services,
// and translate results into HTTP responses (including conditional responses).
// Service errors are mapped to status codes in one place, writeServiceError.
package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/recipe-extraction-backend/internal/domain"
	"github.com/tbourn/recipe-extraction-backend/internal/http/middleware"
	"github.com/tbourn/recipe-extraction-backend/internal/ledger"
	"github.com/tbourn/recipe-extraction-backend/internal/services"
	"github.com/tbourn/recipe-extraction-backend/internal/utils"
)

//
// Service contracts (context-aware)
//

// JobService is the user-facing side of the extraction job manager.
type JobService interface {
	// Create reserves a credit and starts a job. replayed is true when an
	// earlier job was returned for the same idempotency key.
	Create(ctx context.Context, userID string, in services.CreateJobInput) (job *domain.ExtractionJob, replayed bool, err error)
	Get(ctx context.Context, userID, jobID string) (*domain.ExtractionJob, error)
	ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.ExtractionJob, int64, error)
	Cancel(ctx context.Context, userID, jobID string) (*domain.ExtractionJob, error)
	// Resume stores a client-downloaded video and re-enters processing.
	Resume(ctx context.Context, userID, jobID string, video io.Reader, filename string) (*domain.ExtractionJob, error)
	GetRecipe(ctx context.Context, userID, recipeID string) (*domain.Recipe, error)
}

// CallbackService is the engine-facing side of the job manager.
type CallbackService interface {
	Finalize(ctx context.Context, jobID string, out domain.Outcome) (*domain.ExtractionJob, error)
	UpdateProgress(ctx context.Context, jobID string, progress int, step string) error
}

// CreditService reads a user's ledger.
type CreditService interface {
	Balance(ctx context.Context, userID string) (*ledger.Snapshot, error)
	ListTransactions(ctx context.Context, userID string, offset, limit int) ([]domain.CreditTransaction, int64, error)
}

// ReferralService runs the referral program.
type ReferralService interface {
	GenerateCode(ctx context.Context, userID string) (*domain.ReferralCode, error)
	Redeem(ctx context.Context, refereeID, code string) (*services.Redemption, error)
	Status(ctx context.Context, userID string) (*services.ReferralStatus, error)
}

//
// Handler wiring
//

// Handlers groups the HTTP endpoints. It depends on abstract service
// interfaces to keep transport concerns separate from business logic.
type Handlers struct {
	jobs      JobService
	callbacks CallbackService
	credits   CreditService
	referrals ReferralService

	// MaxUploadBytes caps a resume upload. Zero means no cap beyond the
	// router's body limit.
	MaxUploadBytes int64
	// UploadTimeout, when set, moves the connection's read and write
	// deadlines out for a resume upload.
	UploadTimeout time.Duration
}

// New constructs and returns a Handlers instance bound to the given services.
func New(jobs JobService, callbacks CallbackService, credits CreditService, referrals ReferralService) *Handlers {
	return &Handlers{jobs: jobs, callbacks: callbacks, credits: credits, referrals: referrals}
}

// userID returns the caller resolved by middleware.UserIdentity. Routes
// using it sit behind middleware.RequireUser.
func userID(c *gin.Context) string {
	return middleware.UserIDFrom(c)
}

//
// Shared DTOs and helpers
//

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

func newPagination(page, pageSize int, total int64) Pagination {
	totalPages := utils.TotalPages(total, pageSize)
	return Pagination{
		Page:       page,
		PageSize:   pageSize,
		Total:      total,
		TotalPages: totalPages,
		HasNext:    page < totalPages,
	}
}

// clampPagination parses and bounds page and page_size query params to sane
// defaults and limits, returning (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPageSize = 20
		maxPageSize     = 100
	)
	p := utils.ParsePage(c.Query("page"), c.Query("page_size"), defaultPageSize, maxPageSize)
	return p.Number, p.Size
}

// notModified sets a weak ETag built from (kind, user, count, newest
// timestamp) and reports whether the request's If-None-Match matched it.
func notModified(c *gin.Context, kind, uid string, count int64, newest *time.Time) bool {
	var ts int64
	if newest != nil {
		ts = newest.UnixNano()
	}
	etag := fmt.Sprintf(`W/"%s:%s:%d:%d"`, kind, uid, count, ts)
	c.Header("ETag", etag)
	if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
		c.Status(http.StatusNotModified)
		return true
	}
	return false
}

// writeServiceError maps service and ledger errors onto the error envelope.
// Anything unrecognised is a 500 through internalError.
func writeServiceError(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	switch {
	case errors.Is(err, services.ErrInvalidSourceKind),
		errors.Is(err, services.ErrInvalidLocators):
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
	case errors.Is(err, services.ErrInsufficientCredits):
		fail(c, http.StatusPaymentRequired, ErrCodeInsufficientCredits, "insufficient credits")
	case errors.Is(err, services.ErrJobNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "extraction not found")
	case errors.Is(err, services.ErrRecipeNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, "recipe not found")
	case errors.Is(err, services.ErrJobNotCancellable):
		fail(c, http.StatusConflict, ErrCodeNotCancellable, err.Error())
	case errors.Is(err, services.ErrJobNotResumable):
		fail(c, http.StatusConflict, ErrCodeNotResumable, err.Error())
	case errors.Is(err, services.ErrEmptyUpload):
		fail(c, http.StatusBadRequest, ErrCodeEmptyUpload, err.Error())
	case errors.Is(err, services.ErrInvalidOutcome):
		fail(c, http.StatusUnprocessableEntity, ErrCodeInvalidResult, err.Error())
	case errors.Is(err, services.ErrInvalidCode):
		fail(c, http.StatusNotFound, ErrCodeInvalidCode, err.Error())
	case errors.Is(err, services.ErrSelfReferral):
		fail(c, http.StatusBadRequest, ErrCodeSelfReferral, err.Error())
	case errors.Is(err, services.ErrAlreadyRedeemed):
		fail(c, http.StatusConflict, ErrCodeAlreadyRedeemed, err.Error())
	case errors.As(err, &tooLarge):
		fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "upload too large")
	case errors.Is(err, context.Canceled):
		// Client went away; nobody reads the response.
		c.Abort()
	default:
		internalError(c, ErrCodeInternal, err)
	}
}
