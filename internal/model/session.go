package model

import "time"

// SessionStatus is the lifecycle state of a booked reading session.
type SessionStatus string

const (
	StatusPendingPayment SessionStatus = "pending_payment"
	StatusConfirmed      SessionStatus = "confirmed"
	StatusCompleted      SessionStatus = "completed"
	StatusCancelled      SessionStatus = "cancelled"
	StatusDeclined       SessionStatus = "declined"
)

// AllStatuses lists every status in lifecycle order.
var AllStatuses = []SessionStatus{
	StatusPendingPayment,
	StatusConfirmed,
	StatusCompleted,
	StatusCancelled,
	StatusDeclined,
}

// BlockingStatuses are the statuses whose sessions occupy the reader's
// calendar.  Sessions in any other status no longer hold their slot.
var BlockingStatuses = []SessionStatus{StatusPendingPayment, StatusConfirmed}

// Valid reports whether s is one of the five known statuses.
func (s SessionStatus) Valid() bool {
	for _, v := range AllStatuses {
		if s == v {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition is expected from s.
func (s SessionStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusDeclined
}

// Blocking reports whether a session in status s reserves its interval.
func (s SessionStatus) Blocking() bool {
	return s == StatusPendingPayment || s == StatusConfirmed
}

// Session is a scheduled booking between a client and a reader.  It is
// not a login session.  All timestamps are UTC.
//
// Fields:
//  ID            – UUID generated at creation.
//  ClientID      – user who booked the session.
//  ReaderID      – reader conducting the session, resolved at creation.
//  ServiceType   – catalog key; fixes the duration.
//  StartAt/EndAt – half-open interval [StartAt, EndAt).
//  Status        – lifecycle state.
//  AmountCents   – price frozen at creation.
//  PaymentRef    – external payment reference (nullable).
//  ClientMessage – optional text written by the client at booking time.
type Session struct {
	ID            string        `json:"id"`             // sessions.id
	ClientID      uint64        `json:"client_id"`      // sessions.client_id
	ReaderID      uint64        `json:"reader_id"`      // sessions.reader_id
	ServiceType   string        `json:"service_type"`   // sessions.service_type
	StartAt       time.Time     `json:"start_at"`       // sessions.start_at
	EndAt         time.Time     `json:"end_at"`         // sessions.end_at
	Status        SessionStatus `json:"status"`         // sessions.status
	AmountCents   uint32        `json:"amount_cents"`   // sessions.amount_cents
	PaymentRef    *string       `json:"payment_ref"`    // sessions.payment_ref (nullable)
	ClientMessage *string       `json:"client_message"` // sessions.client_message (nullable)
	CreatedAt     time.Time     `json:"created_at"`     // sessions.created_at
	UpdatedAt     time.Time     `json:"updated_at"`     // sessions.updated_at
}

// Duration returns the length of the session's interval.
func (s Session) Duration() time.Duration { return s.EndAt.Sub(s.StartAt) }
