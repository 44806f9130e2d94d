package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/iliyamo/celestia-booking/internal/booking"
	"github.com/iliyamo/celestia-booking/internal/booking/bookingtest"
	"github.com/iliyamo/celestia-booking/internal/catalog"
	"github.com/iliyamo/celestia-booking/internal/handler"
	"github.com/iliyamo/celestia-booking/internal/middleware"
	"github.com/iliyamo/celestia-booking/internal/model"
	"github.com/iliyamo/celestia-booking/internal/payment"
	"github.com/iliyamo/celestia-booking/internal/utils"
)

const (
	readerID = uint64(7)
	clientID = uint64(100)
	otherID  = uint64(101)
)

var now = time.Date(2026, time.October, 16, 9, 0, 0, 0, time.UTC)

// at returns h:m on the given day of October 2026, UTC.  The 19th is a
// Monday.
func at(day, h, m int) time.Time {
	return time.Date(2026, time.October, day, h, m, 0, 0, time.UTC)
}

type env struct {
	e        *echo.Echo
	store    *bookingtest.Store
	events   *bookingtest.Recorder
	bookings *booking.Service
	life     *booking.Lifecycle
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ev := &env{
		e:      echo.New(),
		store:  bookingtest.NewStore(readerID),
		events: &bookingtest.Recorder{},
	}
	ev.e.Validator = utils.NewRequestValidator()
	opts := booking.Options{Now: func() time.Time { return now }}
	v := booking.NewValidator(booking.DefaultBusinessHours(), catalog.Default())
	ev.bookings = booking.NewService(ev.store, v, booking.StaticReader(readerID), ev.events, zap.NewNop(), opts)
	ev.life = booking.NewLifecycle(ev.store, v, ev.events, zap.NewNop(), opts)
	return ev
}

type call struct {
	method string
	target string
	body   string
	userID uint64
	role   string
	id     string
}

func (ev *env) serve(c call, h echo.HandlerFunc) *httptest.ResponseRecorder {
	var body io.Reader
	if c.body != "" {
		body = strings.NewReader(c.body)
	}
	req := httptest.NewRequest(c.method, c.target, body)
	if c.body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	ctx := ev.e.NewContext(req, rec)
	if c.id != "" {
		ctx.SetParamNames("id")
		ctx.SetParamValues(c.id)
	}
	if c.userID != 0 {
		middleware.SetIdentity(ctx, c.userID, c.role)
	}
	if err := h(ctx); err != nil {
		ev.e.HTTPErrorHandler(err, ctx)
	}
	return rec
}

func session(id string, client uint64, start time.Time, st model.SessionStatus) model.Session {
	return model.Session{
		ID:          id,
		ClientID:    client,
		ReaderID:    readerID,
		ServiceType: "tarot-reading",
		StartAt:     start,
		EndAt:       start.Add(time.Hour),
		Status:      st,
		AmountCents: 8500,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func errorKind(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	decode(t, rec, &body)
	return body.Error
}

// fakeGateway is a payment.Gateway that never talks to a provider.
type fakeGateway struct {
	mu        sync.Mutex
	checkouts []model.Session
	createErr error

	completed *payment.Completed
	parseErr  error
}

func (g *fakeGateway) CreateCheckout(_ context.Context, s model.Session, _ string) (payment.Checkout, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.createErr != nil {
		return payment.Checkout{}, g.createErr
	}
	g.checkouts = append(g.checkouts, s)
	return payment.Checkout{ID: "cs_test_" + s.ID, URL: "https://pay.example/" + s.ID}, nil
}

func (g *fakeGateway) ParseWebhook([]byte, string) (*payment.Completed, error) {
	return g.completed, g.parseErr
}

// refLookup resolves payment references against the in-memory store.
type refLookup struct{ store *bookingtest.Store }

func (l refLookup) FindByPaymentRef(_ context.Context, ref string) (*model.Session, error) {
	for _, s := range l.store.All() {
		if s.PaymentRef != nil && *s.PaymentRef == ref {
			found := s
			return &found, nil
		}
	}
	return nil, booking.ErrSessionNotFound
}

// lookupFunc adapts a function to handler.PaymentLookup.
type lookupFunc func(ctx context.Context, ref string) (*model.Session, error)

func (f lookupFunc) FindByPaymentRef(ctx context.Context, ref string) (*model.Session, error) {
	return f(ctx, ref)
}

// memNotes applies the same visibility rule as the SQL note store.  It
// counts calls made without a deadline.
type memNotes struct {
	mu        sync.Mutex
	notes     []model.SessionNote
	unbounded int
}

func (m *memNotes) track(ctx context.Context) {
	if _, ok := ctx.Deadline(); !ok {
		m.unbounded++
	}
}

func (m *memNotes) Create(ctx context.Context, n *model.SessionNote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.track(ctx)
	m.notes = append(m.notes, *n)
	return nil
}

func (m *memNotes) ListBySession(ctx context.Context, sessionID string, clientView bool) ([]model.SessionNote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.track(ctx)
	out := []model.SessionNote{}
	for _, n := range m.notes {
		if n.SessionID != sessionID {
			continue
		}
		if clientView && n.AuthorRole != model.RoleClient && !n.VisibleToClient {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

type pinger struct{ err error }

func (p pinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	ev := newEnv(t)

	rec := ev.serve(call{method: http.MethodGet, target: "/healthz"}, handler.Health(nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ev.serve(call{method: http.MethodGet, target: "/healthz"}, handler.Health(pinger{}))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ev.serve(call{method: http.MethodGet, target: "/healthz"}, handler.Health(pinger{err: errors.New("down")}))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestSessionHandler_Reserve(t *testing.T) {
	ev := newEnv(t)
	h := handler.NewSessionHandler(ev.bookings, ev.life, nil, zap.NewNop())
	post := func(body string) *httptest.ResponseRecorder {
		return ev.serve(call{method: http.MethodPost, target: "/v1/sessions", body: body, userID: clientID, role: model.RoleClient}, h.Reserve)
	}

	rec := post(`{"service_type":"general-purpose-reading","start_at":"2026-10-19T10:00:00Z","client_message":"career"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var s model.Session
	decode(t, rec, &s)
	assert.Equal(t, at(19, 10, 45), s.EndAt, "end_at is derived from the service duration")
	assert.Equal(t, clientID, s.ClientID)
	assert.Equal(t, readerID, s.ReaderID)
	assert.Equal(t, model.StatusPendingPayment, s.Status)
	assert.Equal(t, uint32(6500), s.AmountCents)

	t.Run("overlap is a conflict", func(t *testing.T) {
		rec := post(`{"service_type":"tarot-reading","start_at":"2026-10-19T10:30:00Z","end_at":"2026-10-19T11:30:00Z"}`)
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "slot_unavailable", errorKind(t, rec))
	})

	t.Run("touching boundary is free", func(t *testing.T) {
		rec := post(`{"service_type":"follow-up","start_at":"2026-10-19T10:45:00Z"}`)
		assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	})

	t.Run("rejections", func(t *testing.T) {
		tests := []struct {
			name string
			body string
			code int
			kind string
		}{
			{"missing service", `{"start_at":"2026-10-19T12:00:00Z"}`, http.StatusBadRequest, "service_type is required"},
			{"missing start", `{"service_type":"follow-up"}`, http.StatusBadRequest, "start_at is required"},
			{"malformed", `{"service_type":`, http.StatusBadRequest, "invalid request body"},
			{"unknown service", `{"service_type":"palmistry","start_at":"2026-10-19T12:00:00Z"}`, http.StatusBadRequest, "unknown_service"},
			{"saturday", `{"service_type":"follow-up","start_at":"2026-10-24T12:00:00Z"}`, http.StatusBadRequest, "outside_business_days"},
			{"before opening", `{"service_type":"tarot-reading","start_at":"2026-10-19T09:59:00Z"}`, http.StatusBadRequest, "before_opening"},
			{"after closing", `{"service_type":"tarot-reading","start_at":"2026-10-19T17:01:00Z"}`, http.StatusBadRequest, "after_closing"},
			{"wrong duration", `{"service_type":"tarot-reading","start_at":"2026-10-19T12:00:00Z","end_at":"2026-10-19T12:30:00Z"}`, http.StatusBadRequest, "duration_mismatch"},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				rec := post(tt.body)
				assert.Equal(t, tt.code, rec.Code)
				assert.Equal(t, tt.kind, errorKind(t, rec))
			})
		}
	})

	assert.Len(t, ev.store.All(), 2)
}

func TestSessionHandler_ReserveStoreFailure(t *testing.T) {
	ev := newEnv(t)
	ev.store.Fail = func(op string) error {
		if op == "Insert" {
			return errors.New("connection reset")
		}
		return nil
	}
	h := handler.NewSessionHandler(ev.bookings, ev.life, nil, zap.NewNop())

	rec := ev.serve(call{
		method: http.MethodPost, target: "/v1/sessions", userID: clientID, role: model.RoleClient,
		body: `{"service_type":"follow-up","start_at":"2026-10-19T12:00:00Z"}`,
	}, h.Reserve)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "temporarily_unavailable", errorKind(t, rec))
	assert.NotContains(t, rec.Body.String(), "connection reset")
}

func TestSessionHandler_Unauthenticated(t *testing.T) {
	ev := newEnv(t)
	h := handler.NewSessionHandler(ev.bookings, ev.life, nil, zap.NewNop())

	rec := ev.serve(call{method: http.MethodGet, target: "/v1/sessions"}, h.ListMine)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSessionHandler_OwnSessionsOnly(t *testing.T) {
	ev := newEnv(t)
	ev.store.Seed(
		session("mine", clientID, at(19, 10, 0), model.StatusPendingPayment),
		session("theirs", otherID, at(19, 12, 0), model.StatusConfirmed),
		session("old", clientID, at(20, 10, 0), model.StatusCancelled),
	)
	h := handler.NewSessionHandler(ev.bookings, ev.life, nil, zap.NewNop())

	rec := ev.serve(call{method: http.MethodGet, target: "/v1/sessions", userID: clientID, role: model.RoleClient}, h.ListMine)
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Sessions []model.Session `json:"sessions"`
	}
	decode(t, rec, &list)
	require.Len(t, list.Sessions, 2)
	assert.Equal(t, "mine", list.Sessions[0].ID)
	assert.Equal(t, "old", list.Sessions[1].ID)

	rec = ev.serve(call{method: http.MethodGet, target: "/v1/sessions?status=cancelled", userID: clientID, role: model.RoleClient}, h.ListMine)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &list)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, "old", list.Sessions[0].ID)

	rec = ev.serve(call{method: http.MethodGet, target: "/v1/sessions?status=lost", userID: clientID, role: model.RoleClient}, h.ListMine)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ev.serve(call{method: http.MethodGet, target: "/v1/sessions/mine", id: "mine", userID: clientID, role: model.RoleClient}, h.Get)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = ev.serve(call{method: http.MethodGet, target: "/v1/sessions/theirs", id: "theirs", userID: clientID, role: model.RoleClient}, h.Get)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ev.serve(call{method: http.MethodGet, target: "/v1/sessions/nope", id: "nope", userID: clientID, role: model.RoleClient}, h.Get)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "session_not_found", errorKind(t, rec))
}

func TestSessionHandler_Cancel(t *testing.T) {
	ev := newEnv(t)
	ev.store.Seed(
		session("pending", clientID, at(19, 10, 0), model.StatusPendingPayment),
		session("done", clientID, at(12, 10, 0), model.StatusCompleted),
		session("theirs", otherID, at(19, 12, 0), model.StatusConfirmed),
	)
	h := handler.NewSessionHandler(ev.bookings, ev.life, nil, zap.NewNop())
	cancel := func(id string) *httptest.ResponseRecorder {
		return ev.serve(call{method: http.MethodPost, target: "/v1/sessions/" + id + "/cancel", id: id, userID: clientID, role: model.RoleClient}, h.Cancel)
	}

	rec := cancel("pending")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var s model.Session
	decode(t, rec, &s)
	assert.Equal(t, model.StatusCancelled, s.Status)
	assert.Equal(t, []booking.EventKind{booking.EventStatusChanged}, ev.events.Kinds())

	rec = cancel("done")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", errorKind(t, rec))

	rec = cancel("theirs")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	stored, err := ev.store.GetByID(context.Background(), "theirs")
	require.NoError(t, err)
	assert.Equal(t, model.StatusConfirmed, stored.Status)
}

func TestSessionHandler_Checkout(t *testing.T) {
	ev := newEnv(t)
	ev.store.Seed(
		session("pending", clientID, at(19, 10, 0), model.StatusPendingPayment),
		session("paid", clientID, at(19, 12, 0), model.StatusConfirmed),
	)
	gw := &fakeGateway{}
	h := handler.NewSessionHandler(ev.bookings, ev.life, gw, zap.NewNop())
	checkout := func(id string) *httptest.ResponseRecorder {
		return ev.serve(call{method: http.MethodPost, target: "/v1/sessions/" + id + "/checkout", id: id, userID: clientID, role: model.RoleClient}, h.Checkout)
	}

	rec := checkout("pending")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var co payment.Checkout
	decode(t, rec, &co)
	assert.Equal(t, "cs_test_pending", co.ID)
	assert.Equal(t, "https://pay.example/pending", co.URL)

	stored, err := ev.store.GetByID(context.Background(), "pending")
	require.NoError(t, err)
	require.NotNil(t, stored.PaymentRef)
	assert.Equal(t, "cs_test_pending", *stored.PaymentRef)
	assert.Equal(t, model.StatusPendingPayment, stored.Status)

	rec = checkout("paid")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Len(t, gw.checkouts, 1)

	gw.createErr = errors.New("stripe down")
	ev.store.Seed(session("later", clientID, at(20, 10, 0), model.StatusPendingPayment))
	rec = checkout("later")
	assert.Equal(t, http.StatusBadGateway, rec.Code)

	disabled := handler.NewSessionHandler(ev.bookings, ev.life, nil, zap.NewNop())
	rec = ev.serve(call{method: http.MethodPost, target: "/v1/sessions/pending/checkout", id: "pending", userID: clientID, role: model.RoleClient}, disabled.Checkout)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "payments_disabled", errorKind(t, rec))
}

func TestPublicHandler(t *testing.T) {
	ev := newEnv(t)
	h := handler.NewPublicHandler(ev.bookings, catalog.Default(), zap.NewNop())

	rec := ev.serve(call{method: http.MethodGet, target: "/v1/services"}, h.Services)
	require.Equal(t, http.StatusOK, rec.Code)
	var services struct {
		Services []struct {
			Key             string `json:"key"`
			DurationMinutes int    `json:"duration_minutes"`
			PriceCents      uint32 `json:"price_cents"`
		} `json:"services"`
	}
	decode(t, rec, &services)
	require.Len(t, services.Services, 6)
	assert.Equal(t, "general-purpose-reading", services.Services[0].Key)
	assert.Equal(t, 45, services.Services[0].DurationMinutes)

	type availability struct {
		Date     string         `json:"date"`
		TimeZone string         `json:"time_zone"`
		Slots    []booking.Slot `json:"slots"`
	}

	rec = ev.serve(call{method: http.MethodGet, target: "/v1/availability?date=2026-10-19&service_type=tarot-reading"}, h.Availability)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var got availability
	decode(t, rec, &got)
	assert.Equal(t, "2026-10-19", got.Date)
	assert.Equal(t, "UTC", got.TimeZone)
	require.Len(t, got.Slots, 29)
	assert.Equal(t, at(19, 10, 0), got.Slots[0].StartAt)
	assert.Equal(t, at(19, 18, 0), got.Slots[28].EndAt)

	ev.store.Seed(session("busy", clientID, at(19, 13, 0), model.StatusConfirmed))
	rec = ev.serve(call{method: http.MethodGet, target: "/v1/availability?date=2026-10-19&service_type=tarot-reading"}, h.Availability)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &got)
	assert.Len(t, got.Slots, 22)

	rec = ev.serve(call{method: http.MethodGet, target: "/v1/availability?date=2026-10-24&service_type=tarot-reading"}, h.Availability)
	require.Equal(t, http.StatusOK, rec.Code)
	decode(t, rec, &got)
	assert.Empty(t, got.Slots)

	rec = ev.serve(call{method: http.MethodGet, target: "/v1/availability?date=19-10-2026&service_type=tarot-reading"}, h.Availability)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ev.serve(call{method: http.MethodGet, target: "/v1/availability?date=2026-10-19"}, h.Availability)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = ev.serve(call{method: http.MethodGet, target: "/v1/availability?date=2026-10-19&service_type=palmistry"}, h.Availability)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "unknown_service", errorKind(t, rec))
}

func TestAdminHandler_List(t *testing.T) {
	ev := newEnv(t)
	ev.store.Seed(
		session("a", clientID, at(19, 10, 0), model.StatusPendingPayment),
		session("b", otherID, at(20, 10, 0), model.StatusConfirmed),
		session("c", clientID, at(21, 10, 0), model.StatusCancelled),
	)
	h := handler.NewAdminHandler(ev.bookings, ev.life, zap.NewNop())
	list := func(query string) (int, []string) {
		rec := ev.serve(call{method: http.MethodGet, target: "/v1/admin/sessions" + query, userID: readerID, role: model.RoleReader}, h.List)
		if rec.Code != http.StatusOK {
			return rec.Code, nil
		}
		var body struct {
			Sessions []model.Session `json:"sessions"`
		}
		decode(t, rec, &body)
		ids := []string{}
		for _, s := range body.Sessions {
			ids = append(ids, s.ID)
		}
		return rec.Code, ids
	}

	tests := []struct {
		query string
		code  int
		ids   []string
	}{
		{"", http.StatusOK, []string{"a", "b", "c"}},
		{"?status=pending_payment,confirmed", http.StatusOK, []string{"a", "b"}},
		{"?client_id=100", http.StatusOK, []string{"a", "c"}},
		{"?from=2026-10-20", http.StatusOK, []string{"b", "c"}},
		{"?from=2026-10-20&to=2026-10-21", http.StatusOK, []string{"b"}},
		{"?to=2026-10-20T10:00:00Z", http.StatusOK, []string{"a"}},
		{"?limit=1", http.StatusOK, []string{"a"}},
		{"?status=gone", http.StatusBadRequest, nil},
		{"?from=tomorrow", http.StatusBadRequest, nil},
		{"?from=2026-10-21&to=2026-10-20", http.StatusBadRequest, nil},
		{"?client_id=x", http.StatusBadRequest, nil},
		{"?limit=0", http.StatusBadRequest, nil},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			code, ids := list(tt.query)
			assert.Equal(t, tt.code, code)
			assert.Equal(t, tt.ids, ids)
		})
	}
}

func TestAdminHandler_SetStatus(t *testing.T) {
	ev := newEnv(t)
	ev.store.Seed(
		session("s", clientID, at(19, 10, 0), model.StatusPendingPayment),
		session("gone", clientID, at(19, 12, 0), model.StatusCancelled),
		session("taker", otherID, at(19, 12, 30), model.StatusConfirmed),
	)
	h := handler.NewAdminHandler(ev.bookings, ev.life, zap.NewNop())
	put := func(id, body string) *httptest.ResponseRecorder {
		return ev.serve(call{method: http.MethodPut, target: "/v1/admin/sessions/" + id + "/status", id: id, body: body, userID: readerID, role: model.RoleReader}, h.SetStatus)
	}

	rec := put("s", `{"status":"confirmed"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, []booking.EventKind{booking.EventStatusChanged, booking.EventPaymentConfirmed}, ev.events.Kinds())

	rec = put("s", `{"status":"archived"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", errorKind(t, rec))

	rec = put("s", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = put("gone", `{"status":"pending_payment"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "invalid_transition", errorKind(t, rec))

	rec = put("gone", `{"status":"pending_payment","override":true}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_unavailable", errorKind(t, rec), "reinstating over another booking must fail")

	rec = put("missing", `{"status":"completed"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAdminHandler_Reschedule(t *testing.T) {
	ev := newEnv(t)
	ev.store.Seed(
		session("s", clientID, at(19, 10, 0), model.StatusConfirmed),
		session("other", otherID, at(19, 14, 0), model.StatusPendingPayment),
	)
	h := handler.NewAdminHandler(ev.bookings, ev.life, zap.NewNop())
	put := func(body string) *httptest.ResponseRecorder {
		return ev.serve(call{method: http.MethodPut, target: "/v1/admin/sessions/s/schedule", id: "s", body: body, userID: readerID, role: model.RoleReader}, h.Reschedule)
	}

	rec := put(`{"start_at":"2026-10-19T13:30:00Z"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "slot_unavailable", errorKind(t, rec))
	stored, err := ev.store.GetByID(context.Background(), "s")
	require.NoError(t, err)
	assert.Equal(t, at(19, 10, 0), stored.StartAt, "a rejected reschedule leaves the session untouched")

	rec = put(`{"start_at":"2026-10-19T15:00:00Z"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var s model.Session
	decode(t, rec, &s)
	assert.Equal(t, at(19, 15, 0), s.StartAt)
	assert.Equal(t, at(19, 16, 0), s.EndAt)

	rec = put(`{"start_at":"2026-10-19T17:30:00Z","end_at":"2026-10-19T18:30:00Z"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "after_closing", errorKind(t, rec))

	rec = put(`{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminHandler_MarkPaidAndDelete(t *testing.T) {
	ev := newEnv(t)
	ev.store.Seed(session("s", clientID, at(19, 10, 0), model.StatusPendingPayment))
	h := handler.NewAdminHandler(ev.bookings, ev.life, zap.NewNop())
	markPaid := func(body string) *httptest.ResponseRecorder {
		return ev.serve(call{method: http.MethodPost, target: "/v1/admin/sessions/s/mark-paid", id: "s", body: body, userID: readerID, role: model.RoleReader}, h.MarkPaid)
	}

	rec := markPaid("")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var s model.Session
	decode(t, rec, &s)
	assert.Equal(t, model.StatusConfirmed, s.Status)
	assert.Nil(t, s.PaymentRef)

	rec = markPaid(`{"payment_ref":"cash"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []booking.EventKind{booking.EventPaymentConfirmed}, ev.events.Kinds(), "a second mark-paid emits nothing")

	rec = ev.serve(call{method: http.MethodDelete, target: "/v1/admin/sessions/s", id: "s", userID: readerID, role: model.RoleReader}, h.Delete)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, ev.store.All())

	rec = ev.serve(call{method: http.MethodDelete, target: "/v1/admin/sessions/s", id: "s", userID: readerID, role: model.RoleReader}, h.Delete)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestNoteHandler(t *testing.T) {
	ev := newEnv(t)
	ev.store.Seed(session("s", clientID, at(19, 10, 0), model.StatusConfirmed))
	notes := &memNotes{}
	h := handler.NewNoteHandler(ev.bookings, notes, zap.NewNop())
	post := func(uid uint64, role, body string) *httptest.ResponseRecorder {
		return ev.serve(call{method: http.MethodPost, target: "/v1/sessions/s/notes", id: "s", body: body, userID: uid, role: role}, h.Create)
	}
	list := func(uid uint64, role string) []model.SessionNote {
		rec := ev.serve(call{method: http.MethodGet, target: "/v1/sessions/s/notes", id: "s", userID: uid, role: role}, h.List)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var body struct {
			Notes []model.SessionNote `json:"notes"`
		}
		decode(t, rec, &body)
		return body.Notes
	}

	rec := post(clientID, model.RoleClient, `{"content":"  my question  ","visible_to_client":false}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var n model.SessionNote
	decode(t, rec, &n)
	assert.Equal(t, "my question", n.Content)
	assert.Equal(t, model.RoleClient, n.AuthorRole)
	assert.True(t, n.VisibleToClient, "client notes are always visible to their author")

	require.Equal(t, http.StatusCreated, post(readerID, model.RoleReader, `{"content":"private prep"}`).Code)
	require.Equal(t, http.StatusCreated, post(readerID, model.RoleReader, `{"content":"shared summary","visible_to_client":true}`).Code)

	assert.Len(t, list(readerID, model.RoleReader), 3)
	clientView := list(clientID, model.RoleClient)
	require.Len(t, clientView, 2)
	assert.Equal(t, "my question", clientView[0].Content)
	assert.Equal(t, "shared summary", clientView[1].Content)

	rec = post(clientID, model.RoleClient, `{"content":"   "}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(otherID, model.RoleClient, `{"content":"peeking"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = ev.serve(call{method: http.MethodGet, target: "/v1/sessions/nope/notes", id: "nope", userID: readerID, role: model.RoleReader}, h.List)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	assert.Zero(t, notes.unbounded, "note store calls carry the store timeout")
}

func TestWebhookHandler(t *testing.T) {
	newHandler := func(ev *env, gw *fakeGateway) *handler.WebhookHandler {
		return handler.NewWebhookHandler(gw, ev.life, refLookup{ev.store}, zap.NewNop())
	}
	hook := func(ev *env, h *handler.WebhookHandler) *httptest.ResponseRecorder {
		return ev.serve(call{method: http.MethodPost, target: "/v1/webhooks/stripe", body: `{}`}, h.Stripe)
	}

	t.Run("confirms by session id", func(t *testing.T) {
		ev := newEnv(t)
		ev.store.Seed(session("s", clientID, at(19, 10, 0), model.StatusPendingPayment))
		gw := &fakeGateway{completed: &payment.Completed{SessionID: "s", PaymentRef: "cs_1"}}
		h := newHandler(ev, gw)

		require.Equal(t, http.StatusOK, hook(ev, h).Code)
		require.Equal(t, http.StatusOK, hook(ev, h).Code, "redelivery is acknowledged")

		stored, err := ev.store.GetByID(context.Background(), "s")
		require.NoError(t, err)
		assert.Equal(t, model.StatusConfirmed, stored.Status)
		require.NotNil(t, stored.PaymentRef)
		assert.Equal(t, "cs_1", *stored.PaymentRef)
		assert.Equal(t, []booking.EventKind{booking.EventPaymentConfirmed}, ev.events.Kinds())
	})

	t.Run("falls back to the payment reference", func(t *testing.T) {
		ev := newEnv(t)
		s := session("s", clientID, at(19, 10, 0), model.StatusPendingPayment)
		ref := "cs_2"
		s.PaymentRef = &ref
		ev.store.Seed(s)
		h := newHandler(ev, &fakeGateway{completed: &payment.Completed{PaymentRef: ref}})

		require.Equal(t, http.StatusOK, hook(ev, h).Code)
		stored, err := ev.store.GetByID(context.Background(), "s")
		require.NoError(t, err)
		assert.Equal(t, model.StatusConfirmed, stored.Status)
	})

	t.Run("cancelled session is acknowledged but not confirmed", func(t *testing.T) {
		ev := newEnv(t)
		ev.store.Seed(session("s", clientID, at(19, 10, 0), model.StatusCancelled))
		h := newHandler(ev, &fakeGateway{completed: &payment.Completed{SessionID: "s", PaymentRef: "cs_3"}})

		assert.Equal(t, http.StatusOK, hook(ev, h).Code)
		stored, err := ev.store.GetByID(context.Background(), "s")
		require.NoError(t, err)
		assert.Equal(t, model.StatusCancelled, stored.Status)
		assert.Empty(t, ev.events.Kinds())
	})

	t.Run("reference lookup is bounded by the store timeout", func(t *testing.T) {
		ev := newEnv(t)
		var remaining time.Duration
		lookup := lookupFunc(func(ctx context.Context, _ string) (*model.Session, error) {
			deadline, ok := ctx.Deadline()
			require.True(t, ok)
			remaining = time.Until(deadline)
			return nil, booking.ErrSessionNotFound
		})
		h := handler.NewWebhookHandler(&fakeGateway{completed: &payment.Completed{PaymentRef: "cs_5"}}, ev.life, lookup, zap.NewNop())

		assert.Equal(t, http.StatusOK, hook(ev, h).Code)
		assert.Greater(t, remaining, time.Duration(0))
		assert.LessOrEqual(t, remaining, ev.life.StoreTimeout())
	})

	t.Run("unknown reference is acknowledged", func(t *testing.T) {
		ev := newEnv(t)
		h := newHandler(ev, &fakeGateway{completed: &payment.Completed{PaymentRef: "cs_unknown"}})
		assert.Equal(t, http.StatusOK, hook(ev, h).Code)
	})

	t.Run("store failure asks for a retry", func(t *testing.T) {
		ev := newEnv(t)
		ev.store.Seed(session("s", clientID, at(19, 10, 0), model.StatusPendingPayment))
		ev.store.Fail = func(op string) error {
			if op == "WithReaderLock" {
				return errors.New("lock wait timeout")
			}
			return nil
		}
		h := newHandler(ev, &fakeGateway{completed: &payment.Completed{SessionID: "s", PaymentRef: "cs_4"}})
		assert.Equal(t, http.StatusServiceUnavailable, hook(ev, h).Code)
	})

	t.Run("ignored event", func(t *testing.T) {
		ev := newEnv(t)
		h := newHandler(ev, &fakeGateway{})
		assert.Equal(t, http.StatusOK, hook(ev, h).Code)
	})

	t.Run("bad signature", func(t *testing.T) {
		ev := newEnv(t)
		h := newHandler(ev, &fakeGateway{parseErr: payment.ErrInvalidSignature})
		rec := hook(ev, h)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
		assert.Equal(t, "invalid signature", errorKind(t, rec))
	})
}
