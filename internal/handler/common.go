package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/celestia-booking/internal/booking"
	"github.com/iliyamo/celestia-booking/internal/middleware"
)

// dateLayout is the calendar-date format accepted in query strings.
const dateLayout = "2006-01-02"

var errUnauthorized = errors.New("unauthorized")

// currentUser returns the authenticated user id set by JWTAuth.
func currentUser(c echo.Context) (uint64, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return 0, errUnauthorized
	}
	return id, nil
}

// bind decodes the request body into dst and runs the registered
// validator on it.  The returned message is safe to show to clients.
func bind(c echo.Context, dst interface{}) error {
	if err := c.Bind(dst); err != nil {
		return errors.New("invalid request body")
	}
	if err := c.Validate(dst); err != nil && !errors.Is(err, echo.ErrValidatorNotRegistered) {
		return err
	}
	return nil
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

// bookingError writes the HTTP response for an error returned by the
// booking core.  Rejections carry their kind so clients can react to
// them; infrastructure failures get a generic body.
func bookingError(c echo.Context, log *zap.Logger, err error) error {
	if kind, ok := booking.KindOf(err); ok {
		status := http.StatusBadRequest
		switch kind {
		case booking.KindSlotUnavailable, booking.KindInvalidTransition:
			status = http.StatusConflict
		}
		return c.JSON(status, echo.Map{"error": string(kind), "message": err.Error()})
	}
	switch {
	case errors.Is(err, booking.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "session_not_found"})
	case errors.Is(err, booking.ErrNoReaderAvailable):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"error":   "no_reader_available",
			"message": "bookings are not open right now",
		})
	case errors.Is(err, booking.ErrStoreUnavailable):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{
			"error":   "temporarily_unavailable",
			"message": "please try again in a moment",
		})
	}
	log.Error("unexpected booking error", zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}

// parseInstant accepts an RFC 3339 timestamp or, when dateOK, a bare
// date which is read as local midnight in loc.
func parseInstant(v string, loc *time.Location, dateOK bool) (time.Time, error) {
	v = strings.TrimSpace(v)
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	if dateOK {
		return time.ParseInLocation(dateLayout, v, loc)
	}
	return time.Time{}, errors.New("expected an RFC 3339 timestamp")
}
