package http

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vibecoding/vibe-academy/internal/application/command"
	"github.com/vibecoding/vibe-academy/internal/application/query"
	"github.com/vibecoding/vibe-academy/internal/application/saga"
	"github.com/vibecoding/vibe-academy/internal/domain/course"
	"github.com/vibecoding/vibe-academy/internal/domain/profile"
	"github.com/vibecoding/vibe-academy/internal/infrastructure/messaging"
	"github.com/vibecoding/vibe-academy/internal/infrastructure/persistence/memory"
	"github.com/vibecoding/vibe-academy/internal/infrastructure/persistence/projections"
	"github.com/vibecoding/vibe-academy/internal/interface/http/handlers"
)

const adminToken = "admin-secret"

type harness struct {
	server   *Server
	auth     *handlers.Authenticator
	profiles *memory.ProfileRepository
	view     *projections.ProgressView
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	catalog := course.MustDefault()
	profiles := memory.NewProfileRepository()
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{AsyncMode: false})
	t.Cleanup(func() { _ = bus.Close() })

	view := projections.NewProgressView(profiles, nil)
	recommender := query.NewRecommendModulesHandler(nil, catalog, nil, time.Second)
	board := query.NewLeaderboardBoard(profiles, nil, bus, nil, query.DefaultLeaderboardBoardConfig())

	auth, err := handlers.NewAuthenticator(handlers.AuthConfig{Secret: "test-secret"})
	require.NoError(t, err)

	toggle := command.NewToggleChapterHandler(profiles, catalog, bus)

	cfg := DefaultConfig()
	cfg.Mode = gin.TestMode
	cfg.RateLimitPerMinute = 0
	cfg.AdminToken = adminToken
	cfg.StreamHeartbeat = time.Hour

	srv, err := NewServer(cfg, Dependencies{
		Catalog:            catalog,
		JoinEarlyAccess:    command.NewJoinEarlyAccessHandler(memory.NewEarlyAccessRepository(), bus),
		CompleteOnboarding: command.NewCompleteOnboardingHandler(profiles, recommender, bus),
		UpdateDisplayName:  command.NewUpdateDisplayNameHandler(profiles, bus),
		DeleteAccount:      command.NewDeleteAccountHandler(profiles, bus),
		ReconcileCoins:     command.NewReconcileCoinsHandler(profiles, catalog, bus, command.DefaultReconcileCoinsHandlerConfig()),
		ToggleChapter:      saga.NewChapterToggleSaga(toggle, view, catalog, view),
		RecommendModules:   recommender,
		Leaderboard:        board,
		GetProgress:        query.NewGetProgressHandler(profiles),
		GetDashboard:       query.NewGetDashboardHandler(profiles, catalog, board),
		GetModuleProgress:  query.NewGetModuleProgressHandler(profiles, catalog),
		Progress:           view,
		Auth:               auth,
	})
	require.NoError(t, err)

	return &harness{server: srv, auth: auth, profiles: profiles, view: view}
}

func (h *harness) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := h.auth.Issue(userID, time.Hour)
	require.NoError(t, err)
	return tok
}

type envelope struct {
	Success   bool               `json:"success"`
	Data      json.RawMessage    `json:"data"`
	Error     *handlers.APIError `json:"error"`
	RequestID string             `json:"request_id"`
}

func (h *harness) do(t *testing.T, method, path, token string, body any, headers ...string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	}
	return rec, env
}

var onboardingBody = map[string]any{
	"name":          "Ada",
	"experience":    map[string]int{"htmlCss": 2, "javascript": 2, "react": 1, "backend": 1},
	"vibecodeLevel": 1,
	"dreamProject":  "a portfolio site",
}

// ══════════════════════════════════════════════════════════════════════════════
// PUBLIC
// ══════════════════════════════════════════════════════════════════════════════

func TestCatalogRoutes(t *testing.T) {
	h := newHarness(t)

	rec, env := h.do(t, http.MethodGet, "/api/v1/catalog", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.Success)
	assert.NotEmpty(t, env.RequestID)

	var modules []moduleSummary
	require.NoError(t, json.Unmarshal(env.Data, &modules))
	require.NotEmpty(t, modules)
	assert.Equal(t, course.ModuleID("welcome"), modules[0].ID)

	rec, _ = h.do(t, http.MethodGet, "/api/v1/catalog/welcome", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, env = h.do(t, http.MethodGet, "/api/v1/catalog/welcome/chapters/setup", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var ch course.Chapter
	require.NoError(t, json.Unmarshal(env.Data, &ch))
	assert.Equal(t, 10, ch.Points)

	rec, env = h.do(t, http.MethodGet, "/api/v1/catalog/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, handlers.CodeNotFound, env.Error.Code)

	rec, _ = h.do(t, http.MethodGet, "/api/v1/catalog/welcome/chapters/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestJoinEarlyAccess(t *testing.T) {
	h := newHarness(t)
	body := map[string]string{"name": "Grace", "email": "grace@example.com"}

	rec, env := h.do(t, http.MethodPost, "/api/v1/early-access", "", body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res earlyAccessResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.NotEmpty(t, res.SignupID)

	rec, env = h.do(t, http.MethodPost, "/api/v1/early-access", "", body)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, handlers.CodeAlreadyRegistered, env.Error.Code)

	rec, env = h.do(t, http.MethodPost, "/api/v1/early-access", "", map[string]string{"name": "Grace", "email": "nope"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, handlers.CodeValidation, env.Error.Code)
	assert.Contains(t, env.Error.Details, "email")
}

func TestMalformedBody(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/early-access", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	h.server.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRecommendationsPreview(t *testing.T) {
	h := newHarness(t)

	rec, env := h.do(t, http.MethodPost, "/api/v1/recommendations", "", onboardingBody)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res struct {
		Modules []string `json:"modules"`
		Method  string   `json:"method"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.NotEmpty(t, res.Modules)
	assert.Equal(t, "fallback", res.Method)

	bad := map[string]any{"name": "Ada", "experience": map[string]int{"htmlCss": 9, "javascript": 1, "react": 1, "backend": 1}}
	rec, env = h.do(t, http.MethodPost, "/api/v1/recommendations", "", bad)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, env.Error.Details, "experience.htmlCss")
}

func TestLeaderboardLimitValidation(t *testing.T) {
	h := newHarness(t)

	rec, _ := h.do(t, http.MethodGet, "/api/v1/leaderboard?limit=abc", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(t, http.MethodGet, "/api/v1/leaderboard?limit=-1", "", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = h.do(t, http.MethodGet, "/api/v1/leaderboard", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

// ══════════════════════════════════════════════════════════════════════════════
// AUTHENTICATED
// ══════════════════════════════════════════════════════════════════════════════

func TestMeRequiresToken(t *testing.T) {
	h := newHarness(t)

	rec, env := h.do(t, http.MethodGet, "/api/v1/me/progress", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, handlers.CodeUnauthorized, env.Error.Code)

	rec, _ = h.do(t, http.MethodGet, "/api/v1/me/progress", "not-a-jwt", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	other, err := handlers.NewAuthenticator(handlers.AuthConfig{Secret: "other-secret"})
	require.NoError(t, err)
	forged, err := other.Issue(uuid.NewString(), time.Hour)
	require.NoError(t, err)
	rec, _ = h.do(t, http.MethodGet, "/api/v1/me/progress", forged, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLearnerJourney(t *testing.T) {
	h := newHarness(t)
	userID := uuid.NewString()
	tok := h.token(t, userID)

	// no profile yet: empty state
	rec, env := h.do(t, http.MethodGet, "/api/v1/me/progress", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var progress query.GetProgressResult
	require.NoError(t, json.Unmarshal(env.Data, &progress))
	assert.False(t, progress.HasProfile)

	rec, env = h.do(t, http.MethodPost, "/api/v1/me/onboarding", tok, onboardingBody)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var onboarded onboardingResponse
	require.NoError(t, json.Unmarshal(env.Data, &onboarded))
	assert.Equal(t, userID, onboarded.UserID)
	assert.NotEmpty(t, onboarded.Modules)

	rec, _ = h.do(t, http.MethodPost, "/api/v1/me/onboarding", tok, onboardingBody)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec, env = h.do(t, http.MethodPost, "/api/v1/me/modules/welcome/chapters/how-it-works/toggle", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var toggled toggleResponse
	require.NoError(t, json.Unmarshal(env.Data, &toggled))
	assert.True(t, toggled.Completed)
	assert.Equal(t, 10, toggled.VibeCoins)
	assert.Equal(t, 10, toggled.Delta)

	rec, _ = h.do(t, http.MethodPost, "/api/v1/me/modules/welcome/chapters/nope/toggle", tok, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = h.do(t, http.MethodGet, "/api/v1/me/modules/welcome", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var mp profile.ModuleProgress
	require.NoError(t, json.Unmarshal(env.Data, &mp))
	assert.Equal(t, 1, mp.CompletedCount)

	rec, env = h.do(t, http.MethodGet, "/api/v1/me/dashboard", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var dash query.DashboardSummary
	require.NoError(t, json.Unmarshal(env.Data, &dash))
	assert.True(t, dash.HasProfile)
	assert.Equal(t, 10, dash.VibeCoins)

	rec, env = h.do(t, http.MethodPost, "/api/v1/leaderboard/refresh", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var board query.ListTopUsersResult
	require.NoError(t, json.Unmarshal(env.Data, &board))
	require.Len(t, board.Entries, 1)
	assert.Equal(t, "Ada", board.Entries[0].Name)

	rec, env = h.do(t, http.MethodPatch, "/api/v1/me/profile", tok, map[string]string{"displayName": "Ada L."})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var renamed profileResponse
	require.NoError(t, json.Unmarshal(env.Data, &renamed))
	assert.Equal(t, "Ada L.", renamed.DisplayName)
	assert.True(t, renamed.Changed)

	rec, _ = h.do(t, http.MethodDelete, "/api/v1/me", tok, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, env = h.do(t, http.MethodGet, "/api/v1/me/progress", tok, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(env.Data, &progress))
	assert.False(t, progress.HasProfile)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN
// ══════════════════════════════════════════════════════════════════════════════

func TestAdminReconcile(t *testing.T) {
	h := newHarness(t)

	rec, _ := h.do(t, http.MethodPost, "/api/v1/admin/reconcile", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := h.do(t, http.MethodPost, "/api/v1/admin/reconcile", "", nil, handlers.HeaderAdminToken, adminToken)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res reconcileResponse
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Zero(t, res.Failed)
}

// ══════════════════════════════════════════════════════════════════════════════
// STREAM
// ══════════════════════════════════════════════════════════════════════════════

func readEvent(t *testing.T, r *bufio.Reader) profile.Progress {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			var p profile.Progress
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &p))
			return p
		}
	}
}

func TestProgressStream(t *testing.T) {
	h := newHarness(t)
	ts := httptest.NewServer(h.server.Handler())
	t.Cleanup(ts.Close)

	userID := uuid.NewString()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL+"/api/v1/me/progress/stream?token="+h.token(t, userID), nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	first := readEvent(t, reader)
	assert.Zero(t, first.VibeCoins)

	h.view.Apply(userID, profile.Progress{
		CompletedChapters: profile.NewCompletedChapters(map[string][]string{"welcome": {"setup"}}),
		VibeCoins:         10,
	})

	next := readEvent(t, reader)
	assert.Equal(t, 10, next.VibeCoins)
	assert.True(t, next.CompletedChapters.Has("welcome", "setup"))
}
