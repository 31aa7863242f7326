// Internal engine callbacks. Mounted behind middleware.InternalAuth.
//
//   - POST /internal/extractions/{id}/result
//   - POST /internal/extractions/{id}/progress
package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/recipe-extraction-backend/internal/engine"
)

// ProgressRequest reports how far the engine got.
type ProgressRequest struct {
	Progress *int   `json:"progress" binding:"required" example:"40"`
	Step     string `json:"step" example:"transcribing"`
}

// PostResult godoc
// @ID          postExtractionResult
// @Summary     Engine result callback
// @Description Applies an engine result to a processing job. Results for jobs that are no longer processing are accepted and ignored.
// @Tags        Internal
// @Accept      json
// @Produce     json
// @Security    InternalToken
// @Param       id    path  string         true  "Job ID (UUID)"  format(uuid)
// @Param       body  body  engine.Result  true  "Engine result"
// @Success     200  {object} domain.ExtractionJob
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Failure     422  {object} handlers.ErrorResponse "Invalid result"
// @Router      /internal/extractions/{id}/result [post]
func (h *Handlers) PostResult(c *gin.Context) {
	id, good := jobID(c)
	if !good {
		return
	}
	raw, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	out, err := engine.Decode(raw)
	if err != nil {
		fail(c, http.StatusUnprocessableEntity, ErrCodeInvalidResult, err.Error())
		return
	}
	job, err := h.callbacks.Finalize(c.Request.Context(), id, out)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, job)
}

// PostProgress godoc
// @ID          postExtractionProgress
// @Summary     Engine progress callback
// @Description Updates progress (clamped to 0..100) and the current step. Ignored unless the job is processing.
// @Tags        Internal
// @Accept      json
// @Security    InternalToken
// @Param       id    path  string                    true  "Job ID (UUID)"  format(uuid)
// @Param       body  body  handlers.ProgressRequest  true  "Progress"
// @Success     204  {string} string "No Content"
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Router      /internal/extractions/{id}/progress [post]
func (h *Handlers) PostProgress(c *gin.Context) {
	id, good := jobID(c)
	if !good {
		return
	}
	var req ProgressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "progress required")
		return
	}
	if err := h.callbacks.UpdateProgress(c.Request.Context(), id, *req.Progress, req.Step); err != nil {
		writeServiceError(c, err)
		return
	}
	noContent(c)
}
