package exporter

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/avni/avni-server/internal/platform/auth"
)

// Handler exposes exports over HTTP.
type Handler struct {
	job    *Job
	logger zerolog.Logger
}

func NewHandler(job *Job, logger zerolog.Logger) *Handler {
	return &Handler{job: job, logger: logger.With().Str("component", "export-handler").Logger()}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/export", h.Export, auth.RequireRole("admin", "organisation-admin"))
}

// Export handles POST /api/v1/export. The body is an export definition; the
// response streams CSV.
func (h *Handler) Export(c echo.Context) error {
	var out ExportOutput
	if err := c.Bind(&out); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid export definition: "+err.Error())
	}
	if err := out.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	ctx := c.Request().Context()
	layout, err := h.job.Plan(ctx, out)
	if err != nil {
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}
	resp := c.Response()
	resp.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	resp.Header().Set(echo.HeaderContentDisposition, `attachment; filename="export.csv"`)
	resp.WriteHeader(http.StatusOK)
	if _, err := h.job.Write(ctx, out, layout, resp); err != nil {
		// Headers are already sent; the truncated body is all the client gets.
		h.logger.Error().Err(err).Msg("export stream aborted")
	}
	return nil
}
