package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LaunchRequest is the POST /api/sessions body.
type LaunchRequest struct {
	Goal     string `json:"goal"`
	StartURL string `json:"start_url"`
	MaxSteps int    `json:"max_steps,omitempty"`
}

type apiResponse struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
	Error  string      `json:"error,omitempty"`
}

// Handlers serves the session API on top of the session service and the
// configured store.
type Handlers struct {
	log     *zap.Logger
	service *SessionService
	store   schemas.SessionStore
	auth    func(http.Handler) http.Handler
}

// NewHandlers wires the HTTP layer. An empty authSecret leaves the API open.
func NewHandlers(logger *zap.Logger, service *SessionService, sessionStore schemas.SessionStore, authSecret string) *Handlers {
	h := &Handlers{
		log:     logger.Named("api.handlers"),
		service: service,
		store:   sessionStore,
	}
	if authSecret != "" {
		h.auth = BearerAuth(authSecret, logger)
	}
	return h
}

// RegisterRoutes sets up the routing for the session API.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	// Health check endpoint stays unauthenticated.
	r.Get("/healthz", h.HandleHealthCheck)

	r.Route("/api", func(r chi.Router) {
		if h.auth != nil {
			r.Use(h.auth)
		}
		r.Post("/sessions", h.HandleLaunchSession)
		r.Get("/sessions", h.HandleListSessions)
		r.Get("/sessions/{sessionID}", h.HandleGetSession)
		r.Get("/sessions/{sessionID}/events", h.HandleSessionEvents)
	})
}

func (h *Handlers) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) HandleLaunchSession(w http.ResponseWriter, r *http.Request) {
	var req LaunchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request body: %v", err))
		return
	}

	req.Goal = strings.TrimSpace(req.Goal)
	req.StartURL = strings.TrimSpace(req.StartURL)
	if req.Goal == "" {
		h.respondWithError(w, http.StatusBadRequest, "goal is required")
		return
	}
	if req.StartURL == "" {
		h.respondWithError(w, http.StatusBadRequest, "start_url is required")
		return
	}

	id, err := h.service.Launch(LaunchParams{
		Goal:     req.Goal,
		StartURL: req.StartURL,
		MaxSteps: req.MaxSteps,
	})
	if err != nil {
		if errors.Is(err, ErrBusy) {
			h.respondWithError(w, http.StatusTooManyRequests, ErrBusy.Error())
			return
		}
		h.log.Error("Failed to launch session.", zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, "Failed to start session.")
		return
	}

	h.respondWithSuccess(w, http.StatusAccepted, map[string]string{"id": id})
}

func (h *Handlers) HandleListSessions(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid limit: %q", raw))
			return
		}
		limit = parsed
	}

	summaries, err := h.store.ListSessions(r.Context(), limit)
	if err != nil {
		h.log.Error("Failed to list sessions.", zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, "Failed to list sessions.")
		return
	}

	h.respondWithSuccess(w, http.StatusOK, map[string]interface{}{
		"count":    len(summaries),
		"sessions": summaries,
	})
}

func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	rec, err := h.store.GetSession(r.Context(), id)
	if err == nil {
		h.respondWithSuccess(w, http.StatusOK, rec)
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		h.log.Error("Failed to load session.", zap.String("session_id", id), zap.Error(err))
		h.respondWithError(w, http.StatusInternalServerError, "Failed to load session.")
		return
	}

	// Not persisted yet; it may still be running on this server.
	if view, ok := h.service.View(id); ok {
		h.respondWithSuccess(w, http.StatusOK, view)
		return
	}
	h.respondWithError(w, http.StatusNotFound, fmt.Sprintf("session %s not found", id))
}

// HandleSessionEvents streams a session's step events as server-sent events.
// The stream replays from the beginning and ends with a "done" event.
func (h *Handlers) HandleSessionEvents(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "sessionID")

	events, cancel, err := h.service.Subscribe(id)
	if err != nil {
		h.respondWithError(w, http.StatusNotFound, fmt.Sprintf("session %s not found", id))
		return
	}
	defer cancel()

	flusher, ok := w.(http.Flusher)
	if !ok {
		h.respondWithError(w, http.StatusInternalServerError, "Streaming is not supported.")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				h.log.Error("Failed to encode event.", zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

// respondWithError sends a standardized JSON error response.
func (h *Handlers) respondWithError(w http.ResponseWriter, statusCode int, message string) {
	h.respond(w, statusCode, apiResponse{Status: "error", Error: message})
}

// respondWithSuccess sends a standardized JSON success response.
func (h *Handlers) respondWithSuccess(w http.ResponseWriter, statusCode int, data interface{}) {
	h.respond(w, statusCode, apiResponse{Status: "success", Data: data})
}

func (h *Handlers) respond(w http.ResponseWriter, statusCode int, resp apiResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.log.Error("Failed to encode response.", zap.Error(err))
	}
}
