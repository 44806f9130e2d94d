package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/celestia-booking/internal/booking"
	"github.com/iliyamo/celestia-booking/internal/model"
	"github.com/iliyamo/celestia-booking/internal/payment"
)

const maxWebhookBody = 64 << 10

// PaymentLookup finds the session a payment reference was attached to.
type PaymentLookup interface {
	FindByPaymentRef(ctx context.Context, ref string) (*model.Session, error)
}

// WebhookHandler confirms sessions when the payment provider reports a
// completed checkout.
type WebhookHandler struct {
	Payments  payment.Gateway
	Lifecycle *booking.Lifecycle
	Sessions  PaymentLookup
	Log       *zap.Logger
}

func NewWebhookHandler(payments payment.Gateway, lifecycle *booking.Lifecycle, sessions PaymentLookup, log *zap.Logger) *WebhookHandler {
	if payments == nil || lifecycle == nil || sessions == nil {
		panic("nil dependency passed to NewWebhookHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookHandler{Payments: payments, Lifecycle: lifecycle, Sessions: sessions, Log: log}
}

// Stripe handles POST /v1/webhooks/stripe.  Deliveries that cannot be
// applied (unknown session, session no longer payable) are acknowledged
// and logged so the provider stops retrying them; transient failures
// answer 503 so the delivery is retried.
func (h *WebhookHandler) Stripe(c echo.Context) error {
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return badRequest(c, "unreadable body")
	}
	done, err := h.Payments.ParseWebhook(payload, c.Request().Header.Get("Stripe-Signature"))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			h.Log.Warn("webhook signature rejected", zap.Error(err))
			return badRequest(c, "invalid signature")
		}
		h.Log.Warn("webhook payload rejected", zap.Error(err))
		return badRequest(c, "invalid payload")
	}
	if done == nil {
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}

	ctx := c.Request().Context()
	id := done.SessionID
	if id == "" {
		lctx, cancel := context.WithTimeout(ctx, h.Lifecycle.StoreTimeout())
		s, err := h.Sessions.FindByPaymentRef(lctx, done.PaymentRef)
		cancel()
		if err != nil {
			return h.unapplied(c, done, err)
		}
		id = s.ID
	}
	if _, err := h.Lifecycle.MarkPaid(ctx, id, done.PaymentRef); err != nil {
		return h.unapplied(c, done, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true})
}

func (h *WebhookHandler) unapplied(c echo.Context, done *payment.Completed, err error) error {
	fields := []zap.Field{
		zap.String("session_id", done.SessionID),
		zap.String("payment_ref", done.PaymentRef),
		zap.Error(err),
	}
	if booking.IsRejection(err) || errors.Is(err, booking.ErrSessionNotFound) {
		h.Log.Error("payment received for a session that cannot be confirmed", fields...)
		return c.JSON(http.StatusOK, echo.Map{"received": true})
	}
	h.Log.Warn("payment confirmation deferred", fields...)
	return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "temporarily_unavailable"})
}
