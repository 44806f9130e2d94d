package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/celestia-booking/internal/booking"
	"github.com/iliyamo/celestia-booking/internal/catalog"
)

// PublicHandler exposes the unauthenticated browse endpoints: the service
// catalog and the bookable slots of a day.
type PublicHandler struct {
	Bookings *booking.Service
	Catalog  *catalog.Catalog
	Log      *zap.Logger
}

func NewPublicHandler(bookings *booking.Service, cat *catalog.Catalog, log *zap.Logger) *PublicHandler {
	if bookings == nil || cat == nil {
		panic("nil dependency passed to NewPublicHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PublicHandler{Bookings: bookings, Catalog: cat, Log: log}
}

// Services handles GET /v1/services.
func (h *PublicHandler) Services(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"services": h.Catalog.List()})
}

// Availability handles GET /v1/availability?date=YYYY-MM-DD&service_type=.
// The date is a calendar date in the scheduling time zone; slots are
// returned in UTC.
func (h *PublicHandler) Availability(c echo.Context) error {
	serviceType := strings.TrimSpace(c.QueryParam("service_type"))
	if serviceType == "" {
		return badRequest(c, "service_type is required")
	}
	loc := h.Bookings.Validator().Hours().Location
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(dateLayout, c.QueryParam("date"), loc)
	if err != nil {
		return badRequest(c, "date must be YYYY-MM-DD")
	}

	slots, err := h.Bookings.Availability(c.Request().Context(), day, serviceType)
	if err != nil {
		return bookingError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"date":         day.Format(dateLayout),
		"service_type": serviceType,
		"time_zone":    loc.String(),
		"slots":        slots,
	})
}
