package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/tbourn/recipe-extraction-backend/internal/domain"
)

func TestVideoSource_RegisterAndFind(t *testing.T) {
	db := newRepoDB(t)
	ctx := context.Background()
	seedUser(t, db, "owner")

	r1 := &domain.Recipe{ID: "r1", UserID: "owner", Title: "Ramen", IsDraft: true, IsPublic: true}
	r2 := &domain.Recipe{ID: "r2", UserID: "owner", Title: "Ramen again", IsDraft: true}
	for _, r := range []*domain.Recipe{r1, r2} {
		if err := CreateRecipe(ctx, db, r); err != nil {
			t.Fatalf("CreateRecipe: %v", err)
		}
	}

	if _, err := FindVideoRecipe(ctx, db, "youtube", "abc"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound before registration, got %v", err)
	}

	if err := CreateVideoSource(ctx, db, &domain.VideoSource{ID: "v1", Platform: "youtube", PlatformVideoID: "abc", RecipeID: "r1"}); err != nil {
		t.Fatalf("CreateVideoSource: %v", err)
	}
	err := CreateVideoSource(ctx, db, &domain.VideoSource{ID: "v2", Platform: "youtube", PlatformVideoID: "abc", RecipeID: "r2"})
	if !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	ref, err := FindVideoRecipe(ctx, db, "youtube", "abc")
	if err != nil {
		t.Fatalf("FindVideoRecipe: %v", err)
	}
	if ref.RecipeID != "r1" || ref.OwnerID != "owner" || !ref.IsPublic {
		t.Fatalf("unexpected ref: %+v", ref)
	}

	got, err := GetRecipe(ctx, db, "r2")
	if err != nil || got.Title != "Ramen again" || got.IsPublic {
		t.Fatalf("GetRecipe: %+v err=%v", got, err)
	}
}
