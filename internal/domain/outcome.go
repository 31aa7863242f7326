package domain

import "encoding/json"

// RecipeDraft is the structured recipe an engine returns on success.
type RecipeDraft struct {
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Ingredients []string `json:"ingredients"`
	Steps       []string `json:"steps"`
	Servings    *int     `json:"servings,omitempty"`
	PrepMinutes *int     `json:"prep_minutes,omitempty"`
	CookMinutes *int     `json:"cook_minutes,omitempty"`
	SourceURL   string   `json:"source_url,omitempty"`
}

// Outcome is the closed set of ways a processing job can end. Each variant
// carries only the data meaningful for it. The unexported method keeps the
// set closed to this package.
type Outcome interface {
	Status() JobStatus
	outcome()
}

// Completed carries the extracted recipe.
type Completed struct{ Draft RecipeDraft }

// Duplicate points at the recipe already extracted from the same video.
type Duplicate struct {
	RecipeID string
	Visible  bool
}

// NotARecipe means the source was readable but held no recipe.
type NotARecipe struct{}

// WebsiteBlocked means the source site refused to serve content.
type WebsiteBlocked struct{}

// NeedsClientDownload asks the client to fetch the video and upload it.
type NeedsClientDownload struct {
	DownloadURL string
	Metadata    json.RawMessage
}

// Failed carries a human-readable reason. Message must be non-empty.
type Failed struct{ Message string }

// Cancelled is a user-requested stop.
type Cancelled struct{}

func (Completed) Status() JobStatus           { return StatusCompleted }
func (Duplicate) Status() JobStatus           { return StatusDuplicate }
func (NotARecipe) Status() JobStatus          { return StatusNotARecipe }
func (WebsiteBlocked) Status() JobStatus      { return StatusWebsiteBlocked }
func (NeedsClientDownload) Status() JobStatus { return StatusNeedsClientDownload }
func (Failed) Status() JobStatus              { return StatusFailed }
func (Cancelled) Status() JobStatus           { return StatusCancelled }

func (Completed) outcome()           {}
func (Duplicate) outcome()           {}
func (NotARecipe) outcome()          {}
func (WebsiteBlocked) outcome()      {}
func (NeedsClientDownload) outcome() {}
func (Failed) outcome()              {}
func (Cancelled) outcome()           {}

// ExtractionRequest is what a job hands to the extraction engine.
type ExtractionRequest struct {
	JobID      string     `json:"job_id"`
	UserID     string     `json:"user_id"`
	SourceKind SourceKind `json:"source_kind"`
	Locators   []string   `json:"locators"`
	// LocalVideoPath is set for resumed jobs whose video was uploaded.
	LocalVideoPath string `json:"local_video_path,omitempty"`
}
