package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/iliyamo/celestia-booking/internal/config"
	"github.com/iliyamo/celestia-booking/internal/utils"
)

const secret = "s3cret"

func whoami(c echo.Context) error {
	id, ok := UserID(c)
	if !ok {
		return c.NoContent(http.StatusNoContent)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "role": Role(c)})
}

func TestJWTAuthAndRequireRole(t *testing.T) {
	e := echo.New()
	e.GET("/me", whoami, JWTAuth(secret), RequireRole("CLIENT"))

	client, err := utils.NewAccessToken(secret, 42, "CLIENT", 5)
	require.NoError(t, err)
	reader, err := utils.NewAccessToken(secret, 7, "READER", 5)
	require.NoError(t, err)
	forged, err := utils.NewAccessToken("other", 42, "CLIENT", 5)
	require.NoError(t, err)

	tests := []struct {
		name string
		auth string
		want int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + forged.Token, http.StatusUnauthorized},
		{"wrong role", "Bearer " + reader.Token, http.StatusForbidden},
		{"ok", "Bearer " + client.Token, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.auth != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.auth)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusOK {
				assert.JSONEq(t, `{"id":42,"role":"CLIENT"}`, rec.Body.String())
			}
		})
	}
}

func TestSubject(t *testing.T) {
	c := echo.New().NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	assert.Equal(t, "anon", subject(c))
	SetIdentity(c, 9, "CLIENT")
	assert.Equal(t, "9", subject(c))
}

func TestBuildRateKey(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/sessions", nil)
	req.Header.Set(echo.HeaderXRealIP, "203.0.113.9")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/sessions")
	SetIdentity(c, 12, "CLIENT")

	tests := []struct {
		strategy string
		want     string
	}{
		{"ip", "rl:ip:203.0.113.9"},
		{"user", "rl:user:12"},
		{"route", "rl:route:POST /v1/sessions"},
		{"user_route", "rl:user:12:route:POST /v1/sessions"},
		{"ip_user", "rl:ip:203.0.113.9:user:12"},
		{"", "rl:ip:203.0.113.9:user:12:route:POST /v1/sessions"},
	}
	for _, tt := range tests {
		cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: tt.strategy}
		assert.Equal(t, tt.want, buildRateKey(cfg, c), tt.strategy)
	}
}

func TestDisabledRedisMiddlewarePassThrough(t *testing.T) {
	e := echo.New()
	limit := NewTokenBucket(config.RateLimitConfig{Enabled: true}, nil, zap.NewNop())
	cache := NewRedisCache(config.CacheConfig{Enabled: true}, nil, zap.NewNop())
	e.GET("/x", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }, limit, cache)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"))
}

func TestCachePayloadRoundTrip(t *testing.T) {
	hdr := http.Header{}
	hdr.Set(echo.HeaderContentType, echo.MIMEApplicationJSONCharsetUTF8)
	raw, err := encodePayload(http.StatusOK, hdr, []byte(`{"slots":[]}`))
	require.NoError(t, err)

	status, gotHdr, body, ok := decodePayload(raw)
	require.True(t, ok)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, echo.MIMEApplicationJSONCharsetUTF8, gotHdr.Get(echo.HeaderContentType))
	assert.Equal(t, `{"slots":[]}`, string(body))

	_, _, _, ok = decodePayload(raw[:5])
	assert.False(t, ok)
}

func TestRequestLoggerLevels(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	e := echo.New()
	e.Use(RequestLogger(zap.New(core)))
	e.GET("/ok", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/bad", func(c echo.Context) error { return c.NoContent(http.StatusConflict) })
	e.GET("/boom", func(c echo.Context) error { return echo.NewHTTPError(http.StatusInternalServerError, "boom") })

	for _, p := range []string{"/ok", "/bad", "/boom"} {
		e.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, p, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, int64(http.StatusConflict), entries[1].ContextMap()["status"])
}
