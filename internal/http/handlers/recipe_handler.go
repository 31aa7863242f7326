// Recipe HTTP handlers.
//
//   - GET /recipes/{recipe_id} (a recipe the caller owns, or a public one)
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GetRecipe godoc
// @ID          getRecipe
// @Summary     Get a recipe
// @Description Returns a recipe produced by one of the caller's extractions, or a public recipe referenced by a duplicate job's existing_recipe_id.
// @Tags        Recipes
// @Produce     json
//
// @Param       X-User-ID  header  string  true  "User ID"            example(user123)
// @Param       recipe_id  path    string  true  "Recipe ID (UUID)"   format(uuid)
//
// @Success     200  {object} domain.Recipe
// @Failure     400  {object} handlers.ErrorResponse "Bad request"
// @Failure     404  {object} handlers.ErrorResponse "Not found"
// @Router      /recipes/{recipe_id} [get]
func (h *Handlers) GetRecipe(c *gin.Context) {
	id := c.Param("recipe_id")
	if _, err := uuid.Parse(id); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "recipe id must be a UUID")
		return
	}
	r, err := h.jobs.GetRecipe(c.Request.Context(), userID(c), id)
	if err != nil {
		writeServiceError(c, err)
		return
	}
	ok(c, http.StatusOK, r)
}
