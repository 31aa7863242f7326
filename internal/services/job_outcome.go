package services

import (
	"context"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tbourn/recipe-extraction-backend/internal/domain"
)

// creditAction is what happens to a job's reservation when it settles.
type creditAction int

const (
	creditHold creditAction = iota
	creditConsume
	creditRefund
)

func (a creditAction) String() string {
	switch a {
	case creditConsume:
		return "consume"
	case creditRefund:
		return "refund"
	default:
		return "hold"
	}
}

const defaultFailure = "extraction failed"

// settlement decides the reservation's fate for an outcome. Only a produced
// recipe is paid for; a pending client download keeps the credit held until
// the resumed job ends.
func settlement(out domain.Outcome) (creditAction, error) {
	switch out.(type) {
	case domain.Completed:
		return creditConsume, nil
	case domain.NeedsClientDownload:
		return creditHold, nil
	case domain.Duplicate, domain.NotARecipe, domain.WebsiteBlocked, domain.Failed, domain.Cancelled:
		return creditRefund, nil
	}
	return creditHold, errors.Wrapf(ErrInvalidOutcome, "%T", out)
}

// applyCredit settles reservationID inside tx according to action.
func (m *JobManager) applyCredit(ctx context.Context, tx *gorm.DB, reservationID string, action creditAction) error {
	switch action {
	case creditConsume:
		return m.Ledger.ConsumeTx(ctx, tx, reservationID)
	case creditRefund:
		return m.Ledger.RefundTx(ctx, tx, reservationID)
	}
	return nil
}

// outcomeColumns returns the job columns written when entering out's
// status. Every terminal write resets the fields owned by other outcomes
// so a resumed job never carries stale payload.
func outcomeColumns(out domain.Outcome, now time.Time) map[string]any {
	cols := map[string]any{
		"current_step":       string(out.Status()),
		"error_message":      nil,
		"existing_recipe_id": nil,
		"completed_at":       now,
		"updated_at":         now,
	}
	switch o := out.(type) {
	case domain.Completed:
		cols["progress"] = 100
	case domain.Duplicate:
		cols["existing_recipe_id"] = o.RecipeID
		cols["existing_recipe_visible"] = o.Visible
		cols["progress"] = 100
	case domain.NeedsClientDownload:
		cols["video_download_url"] = o.DownloadURL
		if len(o.Metadata) > 0 {
			cols["video_metadata"] = datatypes.JSON(o.Metadata)
		}
	case domain.Failed:
		msg := strings.TrimSpace(o.Message)
		if msg == "" {
			msg = defaultFailure
		}
		cols["error_message"] = msg
	}
	return cols
}

// engineOutcome checks an outcome reported by the engine. The engine may
// only report the five non-duplicate results; a Completed outcome without a
// usable recipe is downgraded to Failed.
func engineOutcome(out domain.Outcome) (domain.Outcome, error) {
	switch o := out.(type) {
	case nil:
		return nil, errors.Wrap(ErrInvalidOutcome, "missing outcome")
	case domain.Duplicate, domain.Cancelled:
		return nil, errors.Wrapf(ErrInvalidOutcome, "engine cannot report %s", out.Status())
	case domain.Completed:
		if strings.TrimSpace(o.Draft.Title) == "" {
			return domain.Failed{Message: "engine returned a recipe without a title"}, nil
		}
		if len(nonEmpty(o.Draft.Ingredients)) == 0 && len(nonEmpty(o.Draft.Steps)) == 0 {
			return domain.Failed{Message: "engine returned an empty recipe"}, nil
		}
	case domain.NeedsClientDownload:
		if strings.TrimSpace(o.DownloadURL) == "" {
			return domain.Failed{Message: "engine requested a client download without a URL"}, nil
		}
	}
	return out, nil
}

func nonEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
