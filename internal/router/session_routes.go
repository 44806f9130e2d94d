package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/celestia-booking/internal/handler"
	"github.com/iliyamo/celestia-booking/internal/middleware"
	"github.com/iliyamo/celestia-booking/internal/model"
)

// RegisterSessions registers the client booking endpoints under
// /v1/sessions.  Every route needs a valid JWT; booking routes need the
// CLIENT role while the notes routes are shared with the reader.  limit
// guards session creation.
func RegisterSessions(e *echo.Echo, h *handler.SessionHandler, n *handler.NoteHandler, jwtSecret string, limit echo.MiddlewareFunc) {
	g := e.Group("/v1/sessions", middleware.JWTAuth(jwtSecret))

	client := middleware.RequireRole(model.RoleClient)
	g.POST("", h.Reserve, client, limit)
	g.GET("", h.ListMine, client)
	g.GET("/:id", h.Get, client)
	g.POST("/:id/cancel", h.Cancel, client)
	g.POST("/:id/checkout", h.Checkout, client)

	either := middleware.RequireRole(model.RoleClient, model.RoleReader)
	g.GET("/:id/notes", n.List, either)
	g.POST("/:id/notes", n.Create, either)
}

// RegisterAdmin registers the reader's management endpoints under
// /v1/admin.  All routes require a valid JWT and the READER role.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleReader),
	)
	g.GET("/sessions", a.List)
	g.PUT("/sessions/:id/status", a.SetStatus)
	g.PUT("/sessions/:id/schedule", a.Reschedule)
	g.POST("/sessions/:id/mark-paid", a.MarkPaid)
	g.DELETE("/sessions/:id", a.Delete)
}
