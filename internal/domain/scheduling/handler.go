package scheduling

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/medagenda/medagenda/internal/platform/auth"
	"github.com/medagenda/medagenda/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	agenda := api.Group("/agenda")

	agenda.GET("/day/:providerId", h.ListDay)
	agenda.GET("/today", h.ListToday)
	agenda.GET("/range/:providerId", h.ListRange)
	agenda.GET("/search/specialty", h.SearchBySpecialty)
	agenda.GET("/search/name", h.SearchByName)
	agenda.GET("/client/:clientId", h.ListByClient)

	agenda.POST("/slots/:providerId", h.CreateSlot)
	agenda.DELETE("/slots/:id", h.DeleteSlot)
	agenda.PUT("/slots/:id/book", h.Book)
	agenda.PUT("/slots/:id/cancel", h.Cancel)
	agenda.PUT("/slots/:id/attended", h.MarkAttended)
	agenda.PUT("/slots/:id/paid", h.MarkPaid)
}

func (h *Handler) ListDay(c echo.Context) error {
	providerID, err := uuid.Parse(c.Param("providerId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid provider id")
	}
	slots, err := h.svc.ListDay(c.Request().Context(), caller(c), providerID, c.QueryParam("date"))
	if err != nil {
		return httpError(err)
	}
	return paginated(c, slots)
}

func (h *Handler) ListToday(c echo.Context) error {
	slots, err := h.svc.ListToday(c.Request().Context(), caller(c))
	if err != nil {
		return httpError(err)
	}
	return paginated(c, slots)
}

func (h *Handler) ListRange(c echo.Context) error {
	providerID, err := uuid.Parse(c.Param("providerId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid provider id")
	}
	slots, err := h.svc.ListRange(c.Request().Context(), caller(c), providerID,
		c.QueryParam("start"), c.QueryParam("end"))
	if err != nil {
		return httpError(err)
	}
	return paginated(c, slots)
}

func (h *Handler) SearchBySpecialty(c echo.Context) error {
	results, err := h.svc.SearchBySpecialty(c.Request().Context(), caller(c),
		c.QueryParam("specialty"), c.QueryParam("affiliation"), c.QueryParam("location"))
	if err != nil {
		return httpError(err)
	}
	return paginated(c, results)
}

func (h *Handler) SearchByName(c echo.Context) error {
	results, err := h.svc.SearchByName(c.Request().Context(), caller(c),
		c.QueryParam("name"), c.QueryParam("affiliation"))
	if err != nil {
		return httpError(err)
	}
	return paginated(c, results)
}

func (h *Handler) ListByClient(c echo.Context) error {
	clientID, err := uuid.Parse(c.Param("clientId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid client id")
	}
	slots, err := h.svc.ListByClient(c.Request().Context(), caller(c), clientID)
	if err != nil {
		return httpError(err)
	}
	return paginated(c, slots)
}

func (h *Handler) CreateSlot(c echo.Context) error {
	providerID, err := uuid.Parse(c.Param("providerId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid provider id")
	}
	var body struct {
		Value *float64 `json:"value"`
	}
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&body); err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, err.Error())
		}
	}
	slot, err := h.svc.CreateSlot(c.Request().Context(), caller(c), providerID,
		c.QueryParam("at"), body.Value)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, slot)
}

func (h *Handler) DeleteSlot(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	if err := h.svc.DeleteSlot(c.Request().Context(), caller(c), id); err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *Handler) Book(c echo.Context) error {
	return h.transition(c, h.svc.Book)
}

func (h *Handler) Cancel(c echo.Context) error {
	return h.transition(c, h.svc.Cancel)
}

func (h *Handler) MarkAttended(c echo.Context) error {
	return h.transition(c, h.svc.MarkAttended)
}

func (h *Handler) MarkPaid(c echo.Context) error {
	return h.transition(c, h.svc.MarkPaid)
}

func (h *Handler) transition(c echo.Context, fn func(context.Context, auth.Caller, uuid.UUID) (*Slot, error)) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	slot, err := fn(c.Request().Context(), caller(c), id)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, slot)
}

func caller(c echo.Context) auth.Caller {
	return auth.CallerFromContext(c.Request().Context())
}

// paginated wraps a full result set in the list envelope, returning only the
// requested window so limit/has_more describe the data actually sent.
func paginated[T any](c echo.Context, items []T) error {
	pg := pagination.FromContext(c)

	page := []T{}
	if pg.Offset < len(items) {
		page = items[pg.Offset:]
	}
	if pg.Limit < len(page) {
		page = page[:pg.Limit]
	}

	return c.JSON(http.StatusOK, pagination.NewResponse(page, len(items), pg.Limit, pg.Offset))
}

// httpError maps engine failures onto transport statuses. Anything outside
// the known taxonomy is a storage failure and reported as transient.
func httpError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidDate),
		errors.Is(err, ErrInvalidInstant),
		errors.Is(err, ErrInvalidRange),
		errors.Is(err, ErrMissingField):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		// No resource detail: forbidden must not reveal existence.
		return echo.NewHTTPError(http.StatusForbidden, "forbidden")
	case errors.Is(err, ErrSlotNotFound),
		errors.Is(err, ErrProviderNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrDuplicateSlot),
		errors.Is(err, ErrAlreadyBooked),
		errors.Is(err, ErrAlreadyOpen),
		errors.Is(err, ErrAlreadyAttended),
		errors.Is(err, ErrAlreadyPaid):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "storage unavailable")
	}
}
