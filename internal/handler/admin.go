package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/celestia-booking/internal/booking"
	"github.com/iliyamo/celestia-booking/internal/model"
)

const (
	defaultAdminLimit = 200
	maxAdminLimit     = 1000
)

// AdminHandler serves the reader's session management endpoints.  All
// routes run behind JWTAuth with the READER role.
type AdminHandler struct {
	Bookings  *booking.Service
	Lifecycle *booking.Lifecycle
	Log       *zap.Logger
}

func NewAdminHandler(bookings *booking.Service, lifecycle *booking.Lifecycle, log *zap.Logger) *AdminHandler {
	if bookings == nil || lifecycle == nil {
		panic("nil dependency passed to NewAdminHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &AdminHandler{Bookings: bookings, Lifecycle: lifecycle, Log: log}
}

// List handles GET /v1/admin/sessions.  Filters: status (comma list),
// from and to (date or RFC 3339, on start_at), client_id and limit.
func (h *AdminHandler) List(c echo.Context) error {
	statuses, err := parseStatuses(c.QueryParam("status"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	f := booking.SessionFilter{Statuses: statuses, Limit: defaultAdminLimit}

	loc := h.Bookings.Validator().Hours().Location
	if loc == nil {
		loc = time.UTC
	}
	if v := c.QueryParam("from"); v != "" {
		if f.From, err = parseInstant(v, loc, true); err != nil {
			return badRequest(c, "invalid from")
		}
	}
	if v := c.QueryParam("to"); v != "" {
		if f.To, err = parseInstant(v, loc, true); err != nil {
			return badRequest(c, "invalid to")
		}
	}
	if !f.From.IsZero() && !f.To.IsZero() && !f.From.Before(f.To) {
		return badRequest(c, "from must be before to")
	}
	if v := c.QueryParam("client_id"); v != "" {
		if f.ClientID, err = strconv.ParseUint(v, 10, 64); err != nil || f.ClientID == 0 {
			return badRequest(c, "invalid client_id")
		}
	}
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return badRequest(c, "invalid limit")
		}
		if n > maxAdminLimit {
			n = maxAdminLimit
		}
		f.Limit = n
	}

	out, err := h.Bookings.List(c.Request().Context(), f)
	if err != nil {
		return bookingError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": out})
}

type statusReq struct {
	Status   string `json:"status" validate:"required"`
	Override bool   `json:"override"`
}

// SetStatus handles PUT /v1/admin/sessions/:id/status.
func (h *AdminHandler) SetStatus(c echo.Context) error {
	var req statusReq
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	s, err := h.Lifecycle.SetStatus(c.Request().Context(), c.Param("id"), model.SessionStatus(req.Status), req.Override)
	if err != nil {
		return bookingError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, s)
}

type scheduleReq struct {
	StartAt time.Time  `json:"start_at"`
	EndAt   *time.Time `json:"end_at"`
}

// Reschedule handles PUT /v1/admin/sessions/:id/schedule.  end_at may be
// omitted and is then derived from the session's service.
func (h *AdminHandler) Reschedule(c echo.Context) error {
	var req scheduleReq
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.StartAt.IsZero() {
		return badRequest(c, "start_at is required")
	}
	ctx := c.Request().Context()
	end := req.EndAt
	if end == nil || end.IsZero() {
		current, err := h.Bookings.Get(ctx, c.Param("id"))
		if err != nil {
			return bookingError(c, h.Log, err)
		}
		e, err := endFor(h.Bookings.Validator(), current.ServiceType, req.StartAt, nil)
		if err != nil {
			return bookingError(c, h.Log, err)
		}
		end = &e
	}
	s, err := h.Lifecycle.Reschedule(ctx, c.Param("id"), req.StartAt, *end)
	if err != nil {
		return bookingError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, s)
}

type markPaidReq struct {
	PaymentRef string `json:"payment_ref" validate:"max=255"`
}

// MarkPaid handles POST /v1/admin/sessions/:id/mark-paid, for payments
// taken outside the checkout flow.  The body is optional.
func (h *AdminHandler) MarkPaid(c echo.Context) error {
	var req markPaidReq
	if c.Request().ContentLength != 0 {
		if err := bind(c, &req); err != nil {
			return badRequest(c, err.Error())
		}
	}
	s, err := h.Lifecycle.MarkPaid(c.Request().Context(), c.Param("id"), req.PaymentRef)
	if err != nil {
		return bookingError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, s)
}

// Delete handles DELETE /v1/admin/sessions/:id.
func (h *AdminHandler) Delete(c echo.Context) error {
	if err := h.Lifecycle.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return bookingError(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}
