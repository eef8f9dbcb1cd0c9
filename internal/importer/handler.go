package importer

import (
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/avni/avni-server/internal/domain/schema"
	"github.com/avni/avni-server/internal/platform/auth"
)

// Handler exposes CSV imports over HTTP.
type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("/import", auth.RequireRole("admin", "organisation-admin"))
	g.POST("/:formType", h.Import)
}

// Import handles POST /api/v1/import/:formType with a multipart "file".
// With ?format=errors the response is the error CSV instead of JSON.
func (h *Handler) Import(c echo.Context) error {
	formType, err := schema.ParseFormType(c.Param("formType"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	fh, err := c.FormFile("file")
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "multipart field 'file' is required")
	}
	f, err := fh.Open()
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	defer f.Close()

	res, err := h.svc.Import(c.Request().Context(), f, formType)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	if c.QueryParam("format") == "errors" {
		c.Response().Header().Set(echo.HeaderContentType, "text/csv")
		c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="errors.csv"`)
		c.Response().WriteHeader(http.StatusOK)
		_, _, err := WriteResults(res.Rows, res.Headers, io.Discard, c.Response())
		return err
	}
	return c.JSON(http.StatusOK, res)
}
