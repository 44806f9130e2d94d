package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/celestia-booking/internal/handler"
	"github.com/iliyamo/celestia-booking/internal/middleware"
	"github.com/iliyamo/celestia-booking/internal/model"
)

// RegisterRoutes registers routes that do not require authentication and
// are not part of the versioned API.  Currently it exposes only a health
// check.
func RegisterRoutes(e *echo.Echo, health echo.HandlerFunc) {
	e.GET("/healthz", health)
}

// RegisterAuth registers the authentication endpoints.  register, login,
// refresh and logout live under /v1/auth without JWT; /v1/me requires a
// valid access token of either role.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)              // rotates the refresh token
	g.POST("/refresh-access", a.RefreshAccess) // keeps the refresh token
	g.POST("/logout", a.Logout)

	e.GET("/v1/me", a.Me,
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleClient, model.RoleReader))
}

// RegisterPublic registers the guest browse endpoints.  cache wraps the
// read-only responses.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, cache echo.MiddlewareFunc) {
	e.GET("/v1/services", p.Services, cache)
	e.GET("/v1/availability", p.Availability, cache)
}

// RegisterWebhooks registers the payment provider callbacks.  They are
// authenticated by signature, not by JWT.
func RegisterWebhooks(e *echo.Echo, w *handler.WebhookHandler) {
	e.POST("/v1/webhooks/stripe", w.Stripe)
}
