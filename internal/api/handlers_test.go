package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/config"
	"github.com/xkilldash9x/webpilot/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubStore struct {
	mu        sync.Mutex
	recs      map[string]*schemas.SessionRecord
	summaries []schemas.SessionSummary
	getErr    error
	listErr   error
}

func newStubStore() *stubStore {
	return &stubStore{recs: make(map[string]*schemas.SessionRecord)}
}

func (s *stubStore) SaveSession(_ context.Context, rec *schemas.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.ID] = rec
	return nil
}

func (s *stubStore) GetSession(_ context.Context, id string) (*schemas.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	rec, ok := s.recs[id]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	return rec, nil
}

func (s *stubStore) ListSessions(_ context.Context, limit int) ([]schemas.SessionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}
	if limit > 0 && limit < len(s.summaries) {
		return s.summaries[:limit], nil
	}
	return s.summaries, nil
}

func (s *stubStore) Close() error { return nil }

type apiHarness struct {
	router   *chi.Mux
	store    *stubStore
	service  *SessionService
	launcher *stubLauncher
}

func newAPIHarness(t *testing.T, maxSessions int64, authSecret string) *apiHarness {
	t.Helper()
	logger := zap.NewNop()
	launcher := &stubLauncher{}
	service := NewSessionService(launcher.start, maxSessions, logger)
	st := newStubStore()

	r := chi.NewRouter()
	NewHandlers(logger, service, st, authSecret).RegisterRoutes(r)

	return &apiHarness{router: r, store: st, service: service, launcher: launcher}
}

func (h *apiHarness) do(t *testing.T, method, target, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.router.ServeHTTP(rr, req)
	return rr
}

func decodeAPIResponse(t *testing.T, rr *httptest.ResponseRecorder) apiResponse {
	t.Helper()
	var resp apiResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp
}

const launchBody = `{"goal":"buy oat milk","start_url":"https://shop.example.com"}`

func TestHandleHealthCheck(t *testing.T) {
	h := newAPIHarness(t, 1, "")
	rr := h.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestHandleLaunchSession(t *testing.T) {
	h := newAPIHarness(t, 2, "")

	rr := h.do(t, http.MethodPost, "/api/sessions", launchBody, nil)
	require.Equal(t, http.StatusAccepted, rr.Code)

	resp := decodeAPIResponse(t, rr)
	assert.Equal(t, "success", resp.Status)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "run-1", data["id"])

	_, err := h.service.Wait(waitCtx(t), "run-1")
	require.NoError(t, err)
}

func TestHandleLaunchSession_Validation(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"missing goal", `{"start_url":"https://shop.example.com"}`, "goal is required"},
		{"blank goal", `{"goal":"   ","start_url":"https://shop.example.com"}`, "goal is required"},
		{"missing start url", `{"goal":"buy oat milk"}`, "start_url is required"},
		{"malformed body", `{"goal":`, "Invalid request body"},
	}

	h := newAPIHarness(t, 1, "")
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := h.do(t, http.MethodPost, "/api/sessions", tc.body, nil)
			assert.Equal(t, http.StatusBadRequest, rr.Code)
			resp := decodeAPIResponse(t, rr)
			assert.Equal(t, "error", resp.Status)
			assert.Contains(t, resp.Error, tc.wantErr)
		})
	}
}

func TestHandleLaunchSession_Busy(t *testing.T) {
	h := newAPIHarness(t, 1, "")
	h.launcher.block = make(chan struct{})

	rr := h.do(t, http.MethodPost, "/api/sessions", launchBody, nil)
	require.Equal(t, http.StatusAccepted, rr.Code)

	rr = h.do(t, http.MethodPost, "/api/sessions", launchBody, nil)
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	resp := decodeAPIResponse(t, rr)
	assert.Equal(t, "session limit reached", resp.Error)

	close(h.launcher.block)
	_, err := h.service.Wait(waitCtx(t), "run-1")
	require.NoError(t, err)
}

func TestHandleListSessions(t *testing.T) {
	h := newAPIHarness(t, 1, "")
	h.store.summaries = []schemas.SessionSummary{
		{ID: "s2", Goal: "check order status", Status: schemas.StatusCompleted, Steps: 4},
		{ID: "s1", Goal: "buy oat milk", Status: schemas.StatusMaxSteps, Steps: 20},
	}

	rr := h.do(t, http.MethodGet, "/api/sessions", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp := decodeAPIResponse(t, rr)
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(2), data["count"])
	sessions, ok := data["sessions"].([]interface{})
	require.True(t, ok)
	require.Len(t, sessions, 2)
	first, ok := sessions[0].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "s2", first["id"])

	rr = h.do(t, http.MethodGet, "/api/sessions?limit=1", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	resp = decodeAPIResponse(t, rr)
	data = resp.Data.(map[string]interface{})
	assert.Equal(t, float64(1), data["count"])
}

func TestHandleListSessions_BadLimit(t *testing.T) {
	h := newAPIHarness(t, 1, "")
	for _, limit := range []string{"banana", "-1"} {
		rr := h.do(t, http.MethodGet, "/api/sessions?limit="+limit, "", nil)
		assert.Equal(t, http.StatusBadRequest, rr.Code, "limit=%s", limit)
	}
}

func TestHandleListSessions_StoreError(t *testing.T) {
	h := newAPIHarness(t, 1, "")
	h.store.listErr = errors.New("connection refused")

	rr := h.do(t, http.MethodGet, "/api/sessions", "", nil)
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestHandleGetSession(t *testing.T) {
	t.Run("persisted record", func(t *testing.T) {
		h := newAPIHarness(t, 1, "")
		h.store.recs["done-1"] = &schemas.SessionRecord{
			ID:     "done-1",
			Goal:   "buy oat milk",
			Status: schemas.StatusCompleted,
			Steps:  3,
		}

		rr := h.do(t, http.MethodGet, "/api/sessions/done-1", "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		resp := decodeAPIResponse(t, rr)
		data, ok := resp.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "done-1", data["id"])
		assert.Equal(t, string(schemas.StatusCompleted), data["status"])
	})

	t.Run("running session not yet persisted", func(t *testing.T) {
		h := newAPIHarness(t, 1, "")
		h.launcher.block = make(chan struct{})

		rr := h.do(t, http.MethodPost, "/api/sessions", launchBody, nil)
		require.Equal(t, http.StatusAccepted, rr.Code)

		rr = h.do(t, http.MethodGet, "/api/sessions/run-1", "", nil)
		require.Equal(t, http.StatusOK, rr.Code)
		resp := decodeAPIResponse(t, rr)
		data, ok := resp.Data.(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "running", data["status"])
		assert.Equal(t, "buy oat milk", data["goal"])

		close(h.launcher.block)
		_, err := h.service.Wait(waitCtx(t), "run-1")
		require.NoError(t, err)
	})

	t.Run("unknown session", func(t *testing.T) {
		h := newAPIHarness(t, 1, "")
		rr := h.do(t, http.MethodGet, "/api/sessions/ghost", "", nil)
		assert.Equal(t, http.StatusNotFound, rr.Code)
		resp := decodeAPIResponse(t, rr)
		assert.Contains(t, resp.Error, "not found")
	})

	t.Run("store failure", func(t *testing.T) {
		h := newAPIHarness(t, 1, "")
		h.store.getErr = errors.New("disk on fire")
		rr := h.do(t, http.MethodGet, "/api/sessions/whatever", "", nil)
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

func TestHandleSessionEvents(t *testing.T) {
	h := newAPIHarness(t, 1, "")
	h.launcher.states = []agent.State{agent.StateNavigating}
	h.launcher.entries = []schemas.ActionRecord{{Step: 1, Kind: schemas.ActionClick, Success: true}}

	rr := h.do(t, http.MethodPost, "/api/sessions", launchBody, nil)
	require.Equal(t, http.StatusAccepted, rr.Code)
	_, err := h.service.Wait(waitCtx(t), "run-1")
	require.NoError(t, err)

	// The run is over, so the stream replays and closes without hanging the
	// request.
	rr = h.do(t, http.MethodGet, "/api/sessions/run-1/events", "", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	assert.True(t, rr.Flushed)

	body := rr.Body.String()
	assert.Contains(t, body, "event: state\n")
	assert.Contains(t, body, "event: step\n")
	assert.Contains(t, body, "event: done\n")
	assert.Contains(t, body, `"session_id":"run-1"`)
	assert.Contains(t, body, `"status":"completed"`)
}

func TestHandleSessionEvents_UnknownSession(t *testing.T) {
	h := newAPIHarness(t, 1, "")
	rr := h.do(t, http.MethodGet, "/api/sessions/ghost/events", "", nil)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func signToken(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestBearerAuth(t *testing.T) {
	const secret = "test-secret"
	h := newAPIHarness(t, 1, secret)

	t.Run("health check stays open", func(t *testing.T) {
		rr := h.do(t, http.MethodGet, "/healthz", "", nil)
		assert.Equal(t, http.StatusOK, rr.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		rr := h.do(t, http.MethodGet, "/api/sessions", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
		resp := decodeAPIResponse(t, rr)
		assert.Equal(t, "unauthorized", resp.Error)
	})

	t.Run("malformed header", func(t *testing.T) {
		rr := h.do(t, http.MethodGet, "/api/sessions", "", map[string]string{"Authorization": "Token abc"})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("token signed with wrong key", func(t *testing.T) {
		token := signToken(t, "other-secret", jwt.MapClaims{"sub": "tester"})
		rr := h.do(t, http.MethodGet, "/api/sessions", "", map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("expired token", func(t *testing.T) {
		token := signToken(t, secret, jwt.MapClaims{"sub": "tester", "exp": time.Now().Add(-time.Hour).Unix()})
		rr := h.do(t, http.MethodGet, "/api/sessions", "", map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token := signToken(t, secret, jwt.MapClaims{"sub": "tester", "exp": time.Now().Add(time.Hour).Unix()})
		rr := h.do(t, http.MethodGet, "/api/sessions", "", map[string]string{"Authorization": "Bearer " + token})
		assert.Equal(t, http.StatusOK, rr.Code)
	})
}

func TestNewServer_ServesRoutes(t *testing.T) {
	logger := zap.NewNop()
	service := NewSessionService((&stubLauncher{}).start, 1, logger)
	handlers := NewHandlers(logger, service, newStubStore(), "")
	srv := NewServer(config.ServerConfig{Addr: "127.0.0.1:0"}, logger, handlers)

	rr := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}

func TestServer_StartShutsDownOnCancel(t *testing.T) {
	logger := zap.NewNop()
	service := NewSessionService((&stubLauncher{}).start, 1, logger)
	handlers := NewHandlers(logger, service, newStubStore(), "")
	srv := NewServer(config.ServerConfig{Addr: "127.0.0.1:0", ShutdownTimeout: time.Second}, logger, handlers)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start(ctx) }()

	// Give the listener a moment to come up, then stop it.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
