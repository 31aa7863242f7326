package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/recipe-extraction-backend/internal/domain"
	"github.com/tbourn/recipe-extraction-backend/internal/repo"
)

// DuplicateIndex maps (platform, platform video id) to the single recipe
// extracted from that video. The unique index on video_sources decides
// concurrent registrations: exactly one wins.
type DuplicateIndex struct {
	DB *gorm.DB
}

// Lookup returns the recipe registered for the video, or ErrNotIndexed.
func (d *DuplicateIndex) Lookup(ctx context.Context, platform, videoID string) (*repo.RecipeRef, error) {
	ctx, span := otel.Tracer("services/DuplicateIndex").Start(ctx, "Lookup",
		trace.WithAttributes(
			attribute.String("video.platform", platform),
			attribute.String("video.id", videoID),
		),
	)
	defer span.End()

	ref, err := repo.FindVideoRecipe(ctx, d.DB, platform, videoID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrNotIndexed
	}
	if err != nil {
		return nil, err
	}
	return ref, nil
}

// Register records recipeID as the recipe for the video inside tx, stamped
// at now. It
// returns ErrAlreadyRegistered when another recipe won; on Postgres the
// caller's transaction is then unusable and must be rolled back.
func (d *DuplicateIndex) Register(ctx context.Context, tx *gorm.DB, platform, videoID, recipeID string, now time.Time) error {
	v := &domain.VideoSource{
		ID:              uuid.NewString(),
		Platform:        platform,
		PlatformVideoID: videoID,
		RecipeID:        recipeID,
		CreatedAt:       now.UTC(),
	}
	err := repo.CreateVideoSource(ctx, tx, v)
	if errors.Is(err, repo.ErrDuplicate) {
		return ErrAlreadyRegistered
	}
	return err
}

// visibleTo reports whether requester may open the referenced recipe.
func visibleTo(ref *repo.RecipeRef, requester string) bool {
	return ref.IsPublic || ref.OwnerID == requester
}
