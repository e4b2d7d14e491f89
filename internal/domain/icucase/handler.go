package icucase

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/icu/isbar/internal/platform/auth"
	"github.com/icu/isbar/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole(auth.RoleClinician))

	g.POST("/cases", h.CreateCase)
	g.GET("/cases", h.ListCases)
	g.GET("/cases/:id", h.GetCase)
	g.PATCH("/cases/:id/status", h.SetStatus)
	g.PATCH("/cases/:id/disposition", h.SetDisposition)
	g.POST("/cases/:id/notes", h.AddClinicalNote)
	g.PUT("/cases/:id/progress/:careDay", h.UpsertDailyProgress)
	g.POST("/cases/:id/suggestions/:suggestionId/addressed", h.MarkSuggestionAddressed)
	g.GET("/rounding-sheet", h.RoundingSheet)
}

// ErrorBody is the JSON error envelope returned by every API route.
type ErrorBody struct {
	Error   string   `json:"error"`
	Message string   `json:"message"`
	Reasons []string `json:"reasons,omitempty"`
}

// HTTPError maps a domain error to an echo.HTTPError carrying an ErrorBody.
// Unrecognised errors become a 500 with the cause kept as the internal error.
func HTTPError(err error) *echo.HTTPError {
	var verr *ValidationError
	var derr *DeidBlockedError
	switch {
	case errors.As(err, &verr):
		return echo.NewHTTPError(http.StatusBadRequest, ErrorBody{Error: "validation_error", Message: verr.Error()})
	case errors.As(err, &derr):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, ErrorBody{
			Error:   "deid_blocked",
			Message: "remove identifiers and exact dates before saving",
			Reasons: derr.Reasons,
		})
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, ErrorBody{Error: "not_found", Message: err.Error()})
	case errors.Is(err, ErrInactiveCase):
		return echo.NewHTTPError(http.StatusConflict, ErrorBody{Error: "inactive_case", Message: err.Error()})
	case errors.Is(err, ErrCareDayConflict):
		return echo.NewHTTPError(http.StatusConflict, ErrorBody{Error: "care_day_conflict", Message: err.Error()})
	case errors.Is(err, ErrInvalidTransition):
		return echo.NewHTTPError(http.StatusConflict, ErrorBody{Error: "invalid_transition", Message: err.Error()})
	case errors.Is(err, ErrIdentifierExhausted):
		he := echo.NewHTTPError(http.StatusInternalServerError, ErrorBody{Error: "identifier_exhausted", Message: err.Error()})
		return he.SetInternal(err)
	default:
		he := echo.NewHTTPError(http.StatusInternalServerError, ErrorBody{Error: "internal_error", Message: "internal server error"})
		return he.SetInternal(err)
	}
}

func badRequest(msg string) *echo.HTTPError {
	return echo.NewHTTPError(http.StatusBadRequest, ErrorBody{Error: "bad_request", Message: msg})
}

func caseID(c echo.Context) string {
	return strings.ToUpper(strings.TrimSpace(c.Param("id")))
}

type createCaseRequest struct {
	Unit   Unit   `json:"unit"`
	Status Status `json:"status"`
}

func (h *Handler) CreateCase(c echo.Context) error {
	var req createCaseRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	pc, err := h.svc.CreateCase(c.Request().Context(), req.Unit, req.Status)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, pc)
}

func (h *Handler) ListCases(c echo.Context) error {
	w, err := pagination.Parse(c, defaultListLimit, maxListLimit)
	if err != nil {
		var perr *pagination.ParamError
		if errors.As(err, &perr) {
			return HTTPError(&ValidationError{Fields: []string{perr.Param}, Reason: "must be a non-negative integer"})
		}
		return HTTPError(err)
	}
	f := CaseFilter{
		Unit:   Unit(strings.ToUpper(c.QueryParam("unit"))),
		View:   View(strings.ToUpper(c.QueryParam("view"))),
		Limit:  w.Limit,
		Offset: w.Offset,
	}
	cases, total, err := h.svc.ListCases(c.Request().Context(), f)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewPage(cases, total, w))
}

func (h *Handler) GetCase(c echo.Context) error {
	detail, err := h.svc.GetCaseDetail(c.Request().Context(), caseID(c))
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, detail)
}

type statusRequest struct {
	Status Status `json:"status"`
}

func (h *Handler) SetStatus(c echo.Context) error {
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if err := h.svc.SetStatus(c.Request().Context(), caseID(c), req.Status); err != nil {
		return HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type dispositionRequest struct {
	Disposition Disposition `json:"disposition"`
}

func (h *Handler) SetDisposition(c echo.Context) error {
	var req dispositionRequest
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	if err := h.svc.SetDisposition(c.Request().Context(), caseID(c), req.Disposition); err != nil {
		return HTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) AddClinicalNote(c echo.Context) error {
	var req NoteInput
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	res, err := h.svc.AddClinicalNote(c.Request().Context(), caseID(c), req)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) UpsertDailyProgress(c echo.Context) error {
	careDay, err := strconv.Atoi(c.Param("careDay"))
	if err != nil {
		return HTTPError(&ValidationError{Fields: []string{"care_day"}, Reason: "must be an integer"})
	}
	var req ProgressInput
	if err := c.Bind(&req); err != nil {
		return badRequest("invalid request body")
	}
	p, err := h.svc.UpsertDailyProgress(c.Request().Context(), caseID(c), careDay, req)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) MarkSuggestionAddressed(c echo.Context) error {
	sid, err := uuid.Parse(c.Param("suggestionId"))
	if err != nil {
		return badRequest("invalid suggestion id")
	}
	changed, err := h.svc.MarkSuggestionAddressed(c.Request().Context(), caseID(c), sid)
	if err != nil {
		return HTTPError(err)
	}
	return c.JSON(http.StatusOK, map[string]bool{"changed": changed})
}

func (h *Handler) RoundingSheet(c echo.Context) error {
	unit := Unit(strings.ToUpper(c.QueryParam("unit")))
	entries, err := h.svc.RoundingSheet(c.Request().Context(), unit)
	if err != nil {
		return HTTPError(err)
	}
	if entries == nil {
		entries = []*RoundingEntry{}
	}
	return c.JSON(http.StatusOK, map[string]interface{}{
		"unit":    unit,
		"entries": entries,
	})
}
