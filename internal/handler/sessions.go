package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/celestia-booking/internal/booking"
	"github.com/iliyamo/celestia-booking/internal/model"
	"github.com/iliyamo/celestia-booking/internal/payment"
)

// SessionHandler serves the client side of booking: reserving a slot,
// listing and cancelling one's own sessions and starting checkout.  All
// routes run behind JWTAuth with the CLIENT role.
type SessionHandler struct {
	Bookings  *booking.Service
	Lifecycle *booking.Lifecycle
	Payments  payment.Gateway // nil: checkout disabled
	Log       *zap.Logger
}

// NewSessionHandler panics if a required dependency is nil.  payments
// may be nil when no payment provider is configured.
func NewSessionHandler(bookings *booking.Service, lifecycle *booking.Lifecycle, payments payment.Gateway, log *zap.Logger) *SessionHandler {
	if bookings == nil || lifecycle == nil {
		panic("nil dependency passed to NewSessionHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionHandler{Bookings: bookings, Lifecycle: lifecycle, Payments: payments, Log: log}
}

type reserveReq struct {
	ServiceType   string     `json:"service_type" validate:"required"`
	StartAt       time.Time  `json:"start_at"`
	EndAt         *time.Time `json:"end_at"`
	ClientMessage string     `json:"client_message" validate:"max=2000"`
}

// Reserve handles POST /v1/sessions.  end_at may be omitted, in which
// case it is derived from the service's duration.
func (h *SessionHandler) Reserve(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var req reserveReq
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	if req.StartAt.IsZero() {
		return badRequest(c, "start_at is required")
	}
	end, err := endFor(h.Bookings.Validator(), req.ServiceType, req.StartAt, req.EndAt)
	if err != nil {
		return bookingError(c, h.Log, err)
	}

	s, err := h.Bookings.Reserve(c.Request().Context(), booking.ReserveRequest{
		ClientID:      uid,
		ServiceType:   strings.TrimSpace(req.ServiceType),
		StartAt:       req.StartAt,
		EndAt:         end,
		ClientMessage: req.ClientMessage,
	})
	if err != nil {
		return bookingError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, s)
}

// ListMine handles GET /v1/sessions.  ?status= takes a comma-separated
// list of statuses.
func (h *SessionHandler) ListMine(c echo.Context) error {
	uid, err := currentUser(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	statuses, err := parseStatuses(c.QueryParam("status"))
	if err != nil {
		return badRequest(c, err.Error())
	}
	out, err := h.Bookings.List(c.Request().Context(), booking.SessionFilter{ClientID: uid, Statuses: statuses})
	if err != nil {
		return bookingError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"sessions": out})
}

// Get handles GET /v1/sessions/:id.
func (h *SessionHandler) Get(c echo.Context) error {
	s, err := h.owned(c)
	if err != nil {
		return err
	}
	if s == nil {
		return nil
	}
	return c.JSON(http.StatusOK, s)
}

// Cancel handles POST /v1/sessions/:id/cancel.  Sessions that already
// reached a final status cannot be cancelled.
func (h *SessionHandler) Cancel(c echo.Context) error {
	s, err := h.owned(c)
	if err != nil || s == nil {
		return err
	}
	out, err := h.Lifecycle.SetStatus(c.Request().Context(), s.ID, model.StatusCancelled, false)
	if err != nil {
		return bookingError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, out)
}

// Checkout handles POST /v1/sessions/:id/checkout.  It opens a payment
// page for a pending session and records the checkout id on it; the
// payment webhook later confirms the session.
func (h *SessionHandler) Checkout(c echo.Context) error {
	if h.Payments == nil {
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "payments_disabled"})
	}
	s, err := h.owned(c)
	if err != nil || s == nil {
		return err
	}
	if s.Status != model.StatusPendingPayment {
		return c.JSON(http.StatusConflict, echo.Map{
			"error":   string(booking.KindInvalidTransition),
			"message": "only sessions awaiting payment can be paid",
		})
	}
	name := s.ServiceType
	if svc, err := h.Bookings.Validator().Service(s.ServiceType); err == nil {
		name = svc.Name
	}

	ctx := c.Request().Context()
	co, err := h.Payments.CreateCheckout(ctx, *s, name)
	if err != nil {
		h.Log.Error("create checkout failed", zap.String("session_id", s.ID), zap.Error(err))
		return c.JSON(http.StatusBadGateway, echo.Map{"error": "payment provider unavailable"})
	}
	if _, err := h.Lifecycle.AttachPayment(ctx, s.ID, co.ID); err != nil {
		return bookingError(c, h.Log, err)
	}
	return c.JSON(http.StatusCreated, co)
}

// owned loads the session named by :id and checks that it belongs to
// the caller.  Another client's session is reported as not found.  A
// nil session with a nil error means the response has been written.
func (h *SessionHandler) owned(c echo.Context) (*model.Session, error) {
	uid, err := currentUser(c)
	if err != nil {
		return nil, c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	s, err := h.Bookings.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, bookingError(c, h.Log, err)
	}
	if s.ClientID != uid {
		return nil, c.JSON(http.StatusNotFound, echo.Map{"error": "session_not_found"})
	}
	return s, nil
}

// endFor returns the explicit end, or start plus the service duration.
func endFor(v *booking.Validator, serviceType string, start time.Time, end *time.Time) (time.Time, error) {
	if end != nil && !end.IsZero() {
		return *end, nil
	}
	svc, err := v.Service(strings.TrimSpace(serviceType))
	if err != nil {
		return time.Time{}, err
	}
	return start.Add(svc.Duration), nil
}

func parseStatuses(raw string) ([]model.SessionStatus, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var out []model.SessionStatus
	for _, part := range strings.Split(raw, ",") {
		st := model.SessionStatus(strings.ToLower(strings.TrimSpace(part)))
		if !st.Valid() {
			return nil, &statusError{value: part}
		}
		out = append(out, st)
	}
	return out, nil
}

type statusError struct{ value string }

func (e *statusError) Error() string {
	return "unknown status " + strings.TrimSpace(e.value)
}
