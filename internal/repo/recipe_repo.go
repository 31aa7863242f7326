package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tbourn/recipe-extraction-backend/internal/domain"
)

// RecipeRef is the minimum needed to decide whether a recipe may be shown
// to a requester.
type RecipeRef struct {
	RecipeID string
	OwnerID  string
	IsPublic bool
}

// CreateRecipe inserts a recipe row.
func CreateRecipe(ctx context.Context, db *gorm.DB, r *domain.Recipe) error {
	return db.WithContext(ctx).Omit(clause.Associations).Create(r).Error
}

// GetRecipe fetches a recipe by ID or returns ErrNotFound.
func GetRecipe(ctx context.Context, db *gorm.DB, id string) (*domain.Recipe, error) {
	var r domain.Recipe
	err := db.WithContext(ctx).Where("id = ?", id).First(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CreateVideoSource registers a video against a recipe. Returns ErrDuplicate
// when the (platform, platform_video_id) pair is already taken.
func CreateVideoSource(ctx context.Context, db *gorm.DB, v *domain.VideoSource) error {
	if err := db.WithContext(ctx).Omit(clause.Associations).Create(v).Error; err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return err
	}
	return nil
}

// FindVideoRecipe resolves a video identity to the recipe registered for it.
func FindVideoRecipe(ctx context.Context, db *gorm.DB, platform, videoID string) (*RecipeRef, error) {
	var row struct {
		RecipeID string
		UserID   string
		IsPublic bool
	}
	err := db.WithContext(ctx).
		Table("video_sources AS v").
		Select("v.recipe_id AS recipe_id, r.user_id AS user_id, r.is_public AS is_public").
		Joins("JOIN recipes AS r ON r.id = v.recipe_id").
		Where("v.platform = ? AND v.platform_video_id = ?", platform, videoID).
		Limit(1).
		Scan(&row).Error
	if err != nil {
		return nil, err
	}
	if row.RecipeID == "" {
		return nil, ErrNotFound
	}
	return &RecipeRef{RecipeID: row.RecipeID, OwnerID: row.UserID, IsPublic: row.IsPublic}, nil
}
