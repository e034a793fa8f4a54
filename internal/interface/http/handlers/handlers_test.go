package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibecoding/vibe-academy/internal/application/validation"
	"github.com/vibecoding/vibe-academy/internal/domain/shared"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"field errors", &validation.FieldErrors{Fields: map[string]string{"email": "bad"}}, http.StatusBadRequest, CodeValidation},
		{"invalid input", fmt.Errorf("wrap: %w", shared.ErrInvalidDisplayName), http.StatusBadRequest, CodeBadRequest},
		{"not found", fmt.Errorf("wrap: %w", shared.ErrModuleNotFound), http.StatusNotFound, CodeNotFound},
		{"already registered", fmt.Errorf("join: %w", shared.ErrAlreadyRegistered), http.StatusConflict, CodeAlreadyRegistered},
		{"profile exists", shared.ErrProfileAlreadyExists, http.StatusConflict, CodeConflict},
		{"unauthorized", shared.ErrUnauthorized, http.StatusUnauthorized, CodeUnauthorized},
		{"forbidden", shared.ErrForbidden, http.StatusForbidden, CodeForbidden},
		{"rate limited", shared.ErrRateLimited, http.StatusTooManyRequests, CodeRateLimited},
		{"refresh failed", shared.ErrLeaderboardRefresh, http.StatusServiceUnavailable, CodeUnavailable},
		{"deadline", context.DeadlineExceeded, http.StatusServiceUnavailable, CodeUnavailable},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, apiErr := StatusFor(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, apiErr.Code)
		})
	}
}

func TestStatusFor_UsesDomainMessage(t *testing.T) {
	_, apiErr := StatusFor(fmt.Errorf("query: %w", shared.ErrChapterNotFound))
	assert.Equal(t, "chapter not found", apiErr.Message)

	_, apiErr = StatusFor(errors.New("pq: password authentication failed"))
	assert.Equal(t, "internal server error", apiErr.Message)
}

func TestRateLimiter(t *testing.T) {
	now := time.Unix(1000, 0)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	ok, _ := rl.Allow("1.2.3.4")
	assert.True(t, ok)
	ok, _ = rl.Allow("1.2.3.4")
	assert.True(t, ok)

	ok, wait := rl.Allow("1.2.3.4")
	assert.False(t, ok)
	assert.Equal(t, time.Minute, wait)

	ok, _ = rl.Allow("5.6.7.8")
	assert.True(t, ok)

	now = now.Add(time.Minute + time.Second)
	ok, _ = rl.Allow("1.2.3.4")
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	rl.Cleanup()
	assert.Empty(t, rl.requests)
}

func TestRateLimiterMiddleware_SetsRetryAfter(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	engine := gin.New()
	engine.Use(rl.Middleware())
	engine.GET("/", func(c *gin.Context) { OK(c, "hi") })

	first := httptest.NewRecorder()
	engine.ServeHTTP(first, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusOK, first.Code)

	second := httptest.NewRecorder()
	engine.ServeHTTP(second, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusTooManyRequests, second.Code)
	assert.NotEmpty(t, second.Header().Get("Retry-After"))
}

func TestAuthenticator(t *testing.T) {
	_, err := NewAuthenticator(AuthConfig{})
	require.Error(t, err)

	auth, err := NewAuthenticator(AuthConfig{Secret: "s3cret", Issuer: "academy"})
	require.NoError(t, err)

	userID := uuid.NewString()
	tok, err := auth.Issue(userID, time.Minute)
	require.NoError(t, err)

	got, err := auth.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, userID, got)

	auth.now = func() time.Time { return time.Now().Add(-time.Hour) }
	expired, err := auth.Issue(userID, time.Minute)
	require.NoError(t, err)
	_, err = auth.Verify(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	auth.now = time.Now
	notUser, err := auth.Issue("robot", time.Minute)
	require.NoError(t, err)
	_, err = auth.Verify(notUser)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestRequireAdmin(t *testing.T) {
	serve := func(token, header string) int {
		engine := gin.New()
		engine.POST("/", RequireAdmin(token), func(c *gin.Context) { c.Status(http.StatusNoContent) })
		req := httptest.NewRequest(http.MethodPost, "/", nil)
		if header != "" {
			req.Header.Set(HeaderAdminToken, header)
		}
		rec := httptest.NewRecorder()
		engine.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusForbidden, serve("", "anything"))
	assert.Equal(t, http.StatusUnauthorized, serve("secret", "wrong"))
	assert.Equal(t, http.StatusNoContent, serve("secret", "secret"))
}

func TestRequestIDMiddleware_KeepsClientID(t *testing.T) {
	engine := gin.New()
	engine.Use(RequestIDMiddleware(nil))
	engine.GET("/", func(c *gin.Context) { OK(c, RequestID(c)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderRequestID, "req-42")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)

	assert.Equal(t, "req-42", rec.Header().Get(HeaderRequestID))
	assert.Contains(t, rec.Body.String(), `"request_id":"req-42"`)
}

func TestRecoveryMiddleware(t *testing.T) {
	engine := gin.New()
	engine.Use(RecoveryMiddleware())
	engine.GET("/", func(c *gin.Context) { panic("boom") })

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), CodeInternal)
}

func TestHealthChecker(t *testing.T) {
	checker := NewHealthChecker("test")
	checker.AddCheck("postgres", func(context.Context) error { return nil })
	checker.AddCheck("redis", func(context.Context) error { return errors.New("connection refused") })

	status := checker.Check(context.Background())
	assert.False(t, status.Healthy)
	assert.True(t, status.Checks["postgres"].Healthy)
	assert.False(t, status.Checks["redis"].Healthy)
	assert.Equal(t, "failing checks: redis", status.Message)

	engine := gin.New()
	engine.GET("/ready", checker.Readiness)
	engine.GET("/health", checker.Liveness)

	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
