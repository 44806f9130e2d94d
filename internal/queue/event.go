// Package queue carries session events over RabbitMQ: the publisher used
// by the booking core, and the consumer that turns events into client
// notifications.
package queue

import (
	"time"

	"github.com/iliyamo/celestia-booking/internal/booking"
	"github.com/iliyamo/celestia-booking/internal/model"
)

// SessionEvent is the message body published for every session event.
// It carries enough for downstream consumers to notify the client
// without querying the primary database.
type SessionEvent struct {
	Event       string  `json:"event"`
	SessionID   string  `json:"session_id"`
	ClientID    uint64  `json:"client_id"`
	ReaderID    uint64  `json:"reader_id"`
	ServiceType string  `json:"service_type"`
	Status      string  `json:"status"`
	StartAt     string  `json:"start_at"`
	EndAt       string  `json:"end_at"`
	AmountCents uint32  `json:"amount_cents"`
	PaymentRef  *string `json:"payment_ref,omitempty"`
	OccurredAt  string  `json:"occurred_at"`
}

// NewSessionEvent snapshots s for kind.  Times are RFC 3339 in UTC.
func NewSessionEvent(kind booking.EventKind, s model.Session, at time.Time) SessionEvent {
	return SessionEvent{
		Event:       string(kind),
		SessionID:   s.ID,
		ClientID:    s.ClientID,
		ReaderID:    s.ReaderID,
		ServiceType: s.ServiceType,
		Status:      string(s.Status),
		StartAt:     s.StartAt.UTC().Format(time.RFC3339),
		EndAt:       s.EndAt.UTC().Format(time.RFC3339),
		AmountCents: s.AmountCents,
		PaymentRef:  s.PaymentRef,
		OccurredAt:  at.UTC().Format(time.RFC3339),
	}
}
