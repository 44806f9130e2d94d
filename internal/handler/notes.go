package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/celestia-booking/internal/booking"
	"github.com/iliyamo/celestia-booking/internal/middleware"
	"github.com/iliyamo/celestia-booking/internal/model"
)

// NoteStore persists session notes.
type NoteStore interface {
	Create(ctx context.Context, n *model.SessionNote) error
	ListBySession(ctx context.Context, sessionID string, clientView bool) ([]model.SessionNote, error)
}

// NoteHandler serves session notes to the session's client and to the
// reader.  Clients see their own notes and the reader notes shared with
// them; the reader sees everything.
type NoteHandler struct {
	Bookings *booking.Service
	Notes    NoteStore
	Log      *zap.Logger
}

func NewNoteHandler(bookings *booking.Service, notes NoteStore, log *zap.Logger) *NoteHandler {
	if bookings == nil || notes == nil {
		panic("nil dependency passed to NewNoteHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &NoteHandler{Bookings: bookings, Notes: notes, Log: log}
}

type noteReq struct {
	Content         string `json:"content" validate:"required,max=4000"`
	VisibleToClient bool   `json:"visible_to_client"`
}

// List handles GET /v1/sessions/:id/notes.
func (h *NoteHandler) List(c echo.Context) error {
	s, role, err := h.session(c)
	if err != nil || s == nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Bookings.StoreTimeout())
	defer cancel()
	out, err := h.Notes.ListBySession(ctx, s.ID, role == model.RoleClient)
	if err != nil {
		h.Log.Error("list notes failed", zap.String("session_id", s.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusOK, echo.Map{"notes": out})
}

// Create handles POST /v1/sessions/:id/notes.  visible_to_client only
// matters for reader notes; a client's note is always visible to them.
func (h *NoteHandler) Create(c echo.Context) error {
	s, role, err := h.session(c)
	if err != nil || s == nil {
		return err
	}
	var req noteReq
	if err := bind(c, &req); err != nil {
		return badRequest(c, err.Error())
	}
	content := strings.TrimSpace(req.Content)
	if content == "" {
		return badRequest(c, "content is required")
	}
	uid, _ := middleware.UserID(c)
	n := &model.SessionNote{
		ID:              uuid.NewString(),
		SessionID:       s.ID,
		AuthorID:        uid,
		AuthorRole:      role,
		Content:         content,
		VisibleToClient: role == model.RoleClient || req.VisibleToClient,
		CreatedAt:       time.Now().UTC().Truncate(time.Second),
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), h.Bookings.StoreTimeout())
	defer cancel()
	if err := h.Notes.Create(ctx, n); err != nil {
		h.Log.Error("create note failed", zap.String("session_id", s.ID), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	return c.JSON(http.StatusCreated, n)
}

// session loads :id and applies the visibility rule: the reader may
// open any session, a client only their own.  A nil session with a nil
// error means the response has been written.
func (h *NoteHandler) session(c echo.Context) (*model.Session, string, error) {
	uid, err := currentUser(c)
	if err != nil {
		return nil, "", c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	role := middleware.Role(c)
	s, err := h.Bookings.Get(c.Request().Context(), c.Param("id"))
	if err != nil {
		return nil, "", bookingError(c, h.Log, err)
	}
	switch role {
	case model.RoleReader:
	case model.RoleClient:
		if s.ClientID != uid {
			return nil, "", c.JSON(http.StatusNotFound, echo.Map{"error": "session_not_found"})
		}
	default:
		return nil, "", c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	}
	return s, role, nil
}
