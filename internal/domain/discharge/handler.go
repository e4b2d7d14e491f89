package discharge

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/icu/isbar/internal/domain/icucase"
	"github.com/icu/isbar/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleClinician))
	g.POST("/cases/:id/discharge-summary", h.RequestSummary)
}

func (h *Handler) RequestSummary(c echo.Context) error {
	id := strings.ToUpper(strings.TrimSpace(c.Param("id")))
	sum, err := h.svc.RequestSummary(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, sum)
}

func httpError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, ErrSummaryRequiresOutcome):
		return echo.NewHTTPError(http.StatusConflict, icucase.ErrorBody{
			Error: "summary_requires_outcome", Message: "set a final outcome before generating a summary",
		})
	case errors.Is(err, ErrSummaryNoData):
		return echo.NewHTTPError(http.StatusConflict, icucase.ErrorBody{
			Error: "summary_no_data", Message: ErrSummaryNoData.Error(),
		})
	case errors.Is(err, ErrGenerationNotConfigured):
		he := echo.NewHTTPError(http.StatusServiceUnavailable, icucase.ErrorBody{
			Error: "generation_not_configured", Message: ErrGenerationNotConfigured.Error(),
		})
		return he.SetInternal(err)
	case errors.Is(err, ErrGenerationFailed):
		he := echo.NewHTTPError(http.StatusBadGateway, icucase.ErrorBody{
			Error: "generation_failed", Message: ErrGenerationFailed.Error(),
		})
		return he.SetInternal(err)
	default:
		return icucase.HTTPError(err)
	}
}
