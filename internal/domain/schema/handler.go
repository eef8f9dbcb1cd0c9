package schema

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/avni/avni-server/internal/platform/auth"
	"github.com/avni/avni-server/pkg/pagination"
)

// Handler provides read-only REST endpoints over concepts.
type Handler struct {
	store    Store
	searcher ConceptSearcher
}

// NewHandler creates a new concept handler.
func NewHandler(store Store, searcher ConceptSearcher) *Handler {
	return &Handler{store: store, searcher: searcher}
}

// RegisterRoutes registers concept routes on the API group.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/concepts", auth.RequireRole("admin", "organisation-admin", "user"))
	g.GET("", h.SearchConcepts)
	g.GET("/:uuid", h.GetConcept)
}

// SearchConcepts handles GET /api/v1/concepts?name=...
func (h *Handler) SearchConcepts(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.searcher.SearchConcepts(c.Request().Context(), c.QueryParam("name"), pg.Limit, pg.Offset)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	if items == nil {
		items = []*Concept{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg.Limit, pg.Offset))
}

// GetConcept handles GET /api/v1/concepts/:uuid
func (h *Handler) GetConcept(c echo.Context) error {
	concept, err := h.store.ConceptByUUID(c.Request().Context(), c.Param("uuid"))
	if err != nil {
		if errors.Is(err, ErrConceptNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "concept not found")
		}
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, concept)
}
