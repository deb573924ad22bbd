package api

import (
	"sync"
	"time"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/agent"
)

// Event is one server-sent event on a session's stream.
type Event struct {
	Type      string                `json:"type"` // "state", "step" or "done"
	SessionID string                `json:"session_id"`
	State     string                `json:"state,omitempty"`
	Entry     *schemas.ActionRecord `json:"entry,omitempty"`
	Status    string                `json:"status,omitempty"`
	Steps     int                   `json:"steps,omitempty"`
	Error     string                `json:"error,omitempty"`
	Timestamp string                `json:"timestamp"`
}

const subscriberBuffer = 64

// eventHub fans one session's step events out to any number of SSE
// subscribers. Events are retained so a subscriber arriving mid-run (or
// after the run) replays the full stream. The hub is the session's
// agent.StepObserver, so publishing must never block the step loop: slow
// subscribers lose events instead.
type eventHub struct {
	mu        sync.Mutex
	sessionID string
	subs      map[chan Event]struct{}
	history   []Event
	done      bool
}

func newEventHub() *eventHub {
	return &eventHub{subs: make(map[chan Event]struct{})}
}

var _ agent.StepObserver = (*eventHub)(nil)

func (h *eventHub) OnState(id string, state agent.State) {
	h.publish(Event{Type: "state", SessionID: id, State: string(state)})
}

func (h *eventHub) OnStep(id string, entry schemas.ActionRecord) {
	e := entry
	h.publish(Event{Type: "step", SessionID: id, Entry: &e})
}

// finish publishes the terminal event and closes every subscriber stream.
// Late subscribers still replay the retained history.
func (h *eventHub) finish(rec *schemas.SessionRecord, runErr error) {
	done := Event{Type: "done"}
	if rec != nil {
		done.SessionID = rec.ID
		done.Status = string(rec.Status)
		done.Steps = rec.Steps
	}
	if runErr != nil {
		done.Error = runErr.Error()
	}
	h.publish(done)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.done = true
	for ch := range h.subs {
		close(ch)
	}
	h.subs = make(map[chan Event]struct{})
}

func (h *eventHub) publish(ev Event) {
	ev.Timestamp = time.Now().UTC().Format(time.RFC3339)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.done {
		return
	}
	if ev.SessionID == "" {
		ev.SessionID = h.sessionID
	}
	h.history = append(h.history, ev)

	for ch := range h.subs {
		select {
		case ch <- ev:
		default:
			// Subscriber is not draining; drop rather than stall the run.
		}
	}
}

// subscribe returns a stream that replays the history and then follows the
// live run. The stream is closed when the session finishes. The returned
// cancel is idempotent and safe after the hub has finished.
func (h *eventHub) subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	buffer := subscriberBuffer
	if n := len(h.history) + 8; n > buffer {
		buffer = n
	}
	ch := make(chan Event, buffer)
	for _, ev := range h.history {
		ch <- ev
	}

	if h.done {
		close(ch)
		return ch, func() {}
	}

	h.subs[ch] = struct{}{}
	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if _, ok := h.subs[ch]; ok {
			delete(h.subs, ch)
			close(ch)
		}
	}
	return ch, cancel
}
