package api

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/agent"
)

// ErrBusy reports that the concurrent-session limit is reached.
var ErrBusy = errors.New("session limit reached")

// ErrUnknownSession reports a session ID this server has not launched.
var ErrUnknownSession = errors.New("unknown session")

// LaunchParams is what a launch request needs: the goal, where to start, and
// an optional per-session step budget override.
type LaunchParams struct {
	Goal     string
	StartURL string
	MaxSteps int
}

// StartFunc builds one ready-to-run agent session. It returns the session ID
// and a run function that blocks until the session finishes. StartFunc itself
// must return promptly; browser acquisition and agent wiring happen inside.
type StartFunc func(ctx context.Context, params LaunchParams, observer agent.StepObserver) (string, func() (*schemas.SessionRecord, error), error)

// SessionView is the live projection of a session the store may not have
// persisted yet.
type SessionView struct {
	ID        string    `json:"id"`
	Goal      string    `json:"goal"`
	StartURL  string    `json:"start_url"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

type sessionState struct {
	id        string
	goal      string
	startURL  string
	startedAt time.Time
	hub       *eventHub
	done      chan struct{}
	record    *schemas.SessionRecord // set before done is closed
	runErr    error
}

// SessionService launches agent sessions on behalf of the HTTP front door and
// tracks them for status and event streaming. Concurrency is bounded by a
// weighted semaphore; a full server refuses new launches instead of queueing.
type SessionService struct {
	logger *zap.Logger
	start  StartFunc
	sem    *semaphore.Weighted

	// Launched runs outlive the launch request, so they run on this context,
	// not the request's.
	baseCtx context.Context

	mu       sync.RWMutex
	sessions map[string]*sessionState
}

func NewSessionService(start StartFunc, maxSessions int64, logger *zap.Logger) *SessionService {
	if maxSessions <= 0 {
		maxSessions = 4
	}
	return &SessionService{
		logger:   logger.Named("api.sessions"),
		start:    start,
		sem:      semaphore.NewWeighted(maxSessions),
		baseCtx:  context.Background(),
		sessions: make(map[string]*sessionState),
	}
}

// Launch starts one agent session and returns its ID without waiting for the
// run to finish.
func (s *SessionService) Launch(params LaunchParams) (string, error) {
	if !s.sem.TryAcquire(1) {
		return "", ErrBusy
	}

	hub := newEventHub()
	id, run, err := s.start(s.baseCtx, params, hub)
	if err != nil {
		s.sem.Release(1)
		return "", fmt.Errorf("starting session: %w", err)
	}

	hub.mu.Lock()
	hub.sessionID = id
	hub.mu.Unlock()

	st := &sessionState{
		id:        id,
		goal:      params.Goal,
		startURL:  params.StartURL,
		startedAt: time.Now().UTC(),
		hub:       hub,
		done:      make(chan struct{}),
	}

	s.mu.Lock()
	s.sessions[id] = st
	s.mu.Unlock()

	s.logger.Info("Session launched.",
		zap.String("session_id", id),
		zap.String("goal", params.Goal),
		zap.String("start_url", params.StartURL))

	go func() {
		defer s.sem.Release(1)

		rec, runErr := run()
		st.record = rec
		st.runErr = runErr
		close(st.done)
		hub.finish(rec, runErr)

		if runErr != nil {
			s.logger.Warn("Session finished with error.", zap.String("session_id", id), zap.Error(runErr))
			return
		}
		s.logger.Info("Session finished.", zap.String("session_id", id))
	}()

	return id, nil
}

// Subscribe attaches to a session's event stream. Finished sessions replay
// their history and close immediately.
func (s *SessionService) Subscribe(id string) (<-chan Event, func(), error) {
	s.mu.RLock()
	st, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("session %s: %w", id, ErrUnknownSession)
	}
	ch, cancel := st.hub.subscribe()
	return ch, cancel, nil
}

// View reports a session this server launched, whether or not the store has
// it yet.
func (s *SessionService) View(id string) (*SessionView, bool) {
	s.mu.RLock()
	st, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}

	view := &SessionView{
		ID:        st.id,
		Goal:      st.goal,
		StartURL:  st.startURL,
		Status:    "running",
		StartedAt: st.startedAt,
	}
	select {
	case <-st.done:
		if st.record != nil {
			view.Status = string(st.record.Status)
		} else {
			view.Status = string(schemas.StatusError)
		}
	default:
	}
	return view, true
}

// Wait blocks until the session finishes or the context is cancelled.
func (s *SessionService) Wait(ctx context.Context, id string) (*schemas.SessionRecord, error) {
	s.mu.RLock()
	st, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %s: %w", id, ErrUnknownSession)
	}

	select {
	case <-st.done:
		return st.record, st.runErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
