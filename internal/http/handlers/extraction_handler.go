// Extraction HTTP handlers.
//
// This file exposes REST endpoints for extraction jobs:
//   - POST   /extractions             (create, Idempotency-Key aware)
//   - GET    /extractions             (list, paginated, ETag support)
//   - GET    /extractions/{id}        (poll)
//   - POST   /extractions/{id}/cancel (cancel)
//   - POST   /extractions/{id}/video  (multipart upload resuming a job)
package handlers

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/tbourn/recipe-extraction-backend/internal/domain"
	"github.com/tbourn/recipe-extraction-backend/internal/http/middleware"
	"github.com/tbourn/recipe-extraction-backend/internal/repo"
	"github.com/tbourn/recipe-extraction-backend/internal/services"
)

// VideoFormField is the multipart field carrying a resume upload.
const VideoFormField = "video"

// CreateExtractionRequest is the JSON payload for starting an extraction.
type CreateExtractionRequest struct {
	// SourceKind is one of video, photo, voice, url, paste, link.
	SourceKind domain.SourceKind `json:"source_kind" binding:"required" example:"video"`
	// Locators are URLs, storage keys or pasted text; 1 to 5 entries.
	Locators []string `json:"locators" binding:"required" example:"https://www.tiktok.com/@chef/video/7301234567890123456"`
}

// ListExtractionsResponse wraps a page of jobs and pagination information.
type ListExtractionsResponse struct {
	Extractions []domain.ExtractionJob `json:"extractions"`
	Pagination  Pagination             `json:"pagination"`
}

// CreateExtraction godoc
// @ID          createExtraction
// @Summary     Start an extraction
// @Description Reserves one credit and starts a job. Replays with the same Idempotency-Key return the original job with 200.
// @Tags        Extractions
// @Accept      json
// @Produce     json
//
// @Param       X-User-ID        header  string  true  "User ID"  example(user123)
// @Param       Idempotency-Key  header  string  false "Idempotency key for safe retries"  example(7a8d9f4c-1b2a-4c3d-8e9f-0123456789ab)
// @Param       body             body    handlers.CreateExtractionRequest  true  "Extraction source"
//
// @Success     201  {object}  domain.ExtractionJob
// @Success     200  {object}  domain.ExtractionJob  "Replayed"
// @Failure     400  {object}  handlers.ErrorResponse  "Bad request"
// @Failure     402  {object}  handlers.ErrorResponse  "Insufficient credits"
// @Failure     500  {object}  handlers.ErrorResponse  "Internal error"
// @Router      /extractions [post]
func (h *Handlers) CreateExtraction(c *gin.Context) {
	var req CreateExtractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "invalid JSON body")
		return
	}
	key, _ := middleware.GetIdempotencyKey(c)

	job, replayed, err := h.jobs.Create(c.Request.Context(), userID(c), services.CreateJobInput{
		SourceKind:     domain.SourceKind(strings.ToLower(strings.TrimSpace(string(req.SourceKind)))),
		Locators:       req.Locators,
		IdempotencyKey: key,
	})
	if err != nil {
		writeServiceError(c, err)
		return
	}
	location := c.FullPath() + "/" + job.ID
	if replayed {
		c.Header("Location", location)
		c.Header("Idempotency-Replayed", "true")
		ok(c, http.StatusOK, job)
		return
	}
	created(c, location, job)
}

// ListExtractions godoc
// @ID          listExtractions
// @Summary     List extractions (paginated)
// @Description Returns a page of the user's jobs, newest first. Supports weak ETag via If-None-Match and may return 304.
// @Tags        Extractions
// @Produce     json
//
// @Param       X-User-ID      header  string  true  "User ID"                      example(user123)
// @Param       If-None-Match  header  string  false "Return 304 if ETag matches"   example(W/\"extractions:user123:3:1700000000\")
// @Param       page           query   int     false "Page number"                  minimum(1) default(1)
// @Param       page_size      query   int     false "Items per page"               minimum(1) maximum(100) default(20)
//
// @Success     200  {object} handlers.ListExtractionsResponse
// @Header      200  {string} ETag  "Weak ETag for current result"
// @Success     304  {string} string "Not Modified"
// @Failure     500  {object} handlers.ErrorResponse "Internal error"
// @Router      /extractions [get]
func (h *Handlers) ListExtractions(c *gin.Context) {
	ctx := c.Request.Context()
	uid := userID(c)
	page, pageSize := clampPagination(c)

	// ETag pre-check (best effort).
	if svc, ok := h.jobs.(*services.JobManager); ok && svc.DB != nil {
		if count, maxTS, err := repo.JobsStats(ctx, svc.DB, uid); err == nil {
			if notModified(c, "extractions", uid, count, maxTS) {
				return
			}
		}
	}

	items, total, err := h.jobs.ListPage(ctx, uid, page, pageSize)
	if err != nil {
		internalError(c, ErrCodeListFailed, err)
		return
	}
	ok(c, http.StatusOK, ListExtractionsResponse{
		Extractions: items,
		Pagination:  newPagination(page, pageSize, total),
	})
}

// GetExtraction godoc
// @ID          getExtraction
// @Summary     Get an extraction
// @Description Returns one job owned by the caller. Clients poll this until the status is terminal.
// @Tags        Extractions
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "User ID"         example(user123)
// @Param       id         path    string  true  "Job ID (UUID)"   format(uuid)
//
// @Success     200  {object} domain.ExtractionJob
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Router      /extractions/{id} [get]
func (h *Handlers) GetExtraction(c *gin.Context) {
	id, good := jobID(c)
	if !good {
		return
	}
	job, err := h.jobs.Get(c.Request.Context(), userID(c), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, job)
}

// CancelExtraction godoc
// @ID          cancelExtraction
// @Summary     Cancel an extraction
// @Description Cancels a pending or processing job and refunds its credit. A result arriving later is ignored.
// @Tags        Extractions
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "User ID"         example(user123)
// @Param       id         path    string  true  "Job ID (UUID)"   format(uuid)
//
// @Success     200  {object} domain.ExtractionJob
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Failure     409  {object} handlers.ErrorResponse "Already terminal"
// @Router      /extractions/{id}/cancel [post]
func (h *Handlers) CancelExtraction(c *gin.Context) {
	id, good := jobID(c)
	if !good {
		return
	}
	job, err := h.jobs.Cancel(c.Request.Context(), userID(c), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, job)
}

// UploadVideo godoc
// @ID          uploadExtractionVideo
// @Summary     Upload a video for a waiting extraction
// @Description Streams a client-downloaded video for a job in needs_client_download and resumes processing. No extra credit is charged.
// @Tags        Extractions
// @Accept      multipart/form-data
// @Produce     json
//
// @Param       X-User-ID  header    string  true  "User ID"         example(user123)
// @Param       id         path      string  true  "Job ID (UUID)"   format(uuid)
// @Param       video      formData  file    true  "Video file"
//
// @Success     202  {object} domain.ExtractionJob
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Failure     409  {object} handlers.ErrorResponse "Not waiting for a video"
// @Failure     413  {object} handlers.ErrorResponse "Upload too large"
// @Router      /extractions/{id}/video [post]
func (h *Handlers) UploadVideo(c *gin.Context) {
	id, good := jobID(c)
	if !good {
		return
	}
	if h.UploadTimeout > 0 {
		// Not every writer supports deadlines (tests, HTTP/2 shims); the
		// server timeouts then stay in force.
		rc := http.NewResponseController(c.Writer)
		deadline := time.Now().Add(h.UploadTimeout)
		_ = rc.SetReadDeadline(deadline)
		_ = rc.SetWriteDeadline(deadline)
	}
	if h.MaxUploadBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.MaxUploadBytes)
	}
	mr, err := c.Request.MultipartReader()
	if err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "multipart/form-data body required")
		return
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "missing "+VideoFormField+" file field")
			return
		}
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				writeServiceError(c, err)
				return
			}
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "malformed multipart body")
			return
		}
		if part.FormName() != VideoFormField {
			_ = part.Close()
			continue
		}
		job, err := h.jobs.Resume(c.Request.Context(), userID(c), id, part, part.FileName())
		_ = part.Close()
		if err != nil {
			writeServiceError(c, err)
			return
		}
		ok(c, http.StatusAccepted, job)
		return
	}
}

// jobID validates the :id path parameter, failing the request otherwise.
func jobID(c *gin.Context) (string, bool) {
	id := c.Param("id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "extraction id must be a UUID")
		return "", false
	}
	return id, true
}
