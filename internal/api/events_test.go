package api

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/agent"
)

// collectUntilClosed drains ch until the hub closes it, failing the test if
// the stream never ends.
func collectUntilClosed(t *testing.T, ch <-chan Event) []Event {
	t.Helper()
	var got []Event
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, open := <-ch:
			if !open {
				return got
			}
			got = append(got, ev)
		case <-deadline:
			t.Fatalf("event stream did not close, got %d events so far", len(got))
		}
	}
}

func finishedRecord(id string) *schemas.SessionRecord {
	return &schemas.SessionRecord{
		ID:     id,
		Goal:   "buy oat milk",
		Status: schemas.StatusCompleted,
		Steps:  2,
	}
}

func TestEventHub_LateSubscriberReplaysFullStream(t *testing.T) {
	hub := newEventHub()
	hub.mu.Lock()
	hub.sessionID = "sess-1"
	hub.mu.Unlock()

	hub.OnState("sess-1", agent.StateNavigating)
	hub.OnStep("sess-1", schemas.ActionRecord{Step: 1, Kind: schemas.ActionClick, ElementID: "e1", Success: true})
	hub.finish(finishedRecord("sess-1"), nil)

	ch, cancel := hub.subscribe()
	defer cancel()

	got := collectUntilClosed(t, ch)
	require.Len(t, got, 3)

	assert.Equal(t, "state", got[0].Type)
	assert.Equal(t, string(agent.StateNavigating), got[0].State)
	assert.Equal(t, "sess-1", got[0].SessionID)

	assert.Equal(t, "step", got[1].Type)
	require.NotNil(t, got[1].Entry)
	assert.Equal(t, schemas.ActionClick, got[1].Entry.Kind)
	assert.Equal(t, "e1", got[1].Entry.ElementID)

	assert.Equal(t, "done", got[2].Type)
	assert.Equal(t, string(schemas.StatusCompleted), got[2].Status)
	assert.Equal(t, 2, got[2].Steps)
	assert.Empty(t, got[2].Error)
}

func TestEventHub_LiveSubscriberFollowsRun(t *testing.T) {
	hub := newEventHub()

	ch, cancel := hub.subscribe()
	defer cancel()

	hub.OnState("sess-2", agent.StateDeciding)
	hub.finish(nil, errors.New("browser crashed"))

	got := collectUntilClosed(t, ch)
	require.Len(t, got, 2)
	assert.Equal(t, "state", got[0].Type)
	assert.Equal(t, "done", got[1].Type)
	assert.Equal(t, "browser crashed", got[1].Error)
}

func TestEventHub_SlowSubscriberLosesEventsNotTheRun(t *testing.T) {
	hub := newEventHub()

	ch, cancel := hub.subscribe()
	defer cancel()

	// Publish past the subscriber buffer without draining. The publisher is
	// the step loop, so it must never block.
	total := subscriberBuffer + 10
	published := make(chan struct{})
	go func() {
		defer close(published)
		for i := 0; i < total; i++ {
			hub.OnState("sess-3", agent.StateActing)
		}
		hub.finish(finishedRecord("sess-3"), nil)
	}()

	select {
	case <-published:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a slow subscriber")
	}

	got := collectUntilClosed(t, ch)
	assert.Len(t, got, subscriberBuffer)

	// A fresh subscriber still replays everything, including the events the
	// slow one lost and the terminal event.
	replay, replayCancel := hub.subscribe()
	defer replayCancel()
	all := collectUntilClosed(t, replay)
	require.Len(t, all, total+1)
	assert.Equal(t, "done", all[len(all)-1].Type)
}

func TestEventHub_CancelStopsDelivery(t *testing.T) {
	hub := newEventHub()

	ch, cancel := hub.subscribe()
	cancel()
	cancel() // idempotent

	_, open := <-ch
	assert.False(t, open)

	// Publishing after a cancelled subscription must not panic.
	hub.OnState("sess-4", agent.StateActing)
	hub.finish(finishedRecord("sess-4"), nil)
}

func TestEventHub_PublishAfterFinishIsDropped(t *testing.T) {
	hub := newEventHub()
	hub.finish(finishedRecord("sess-5"), nil)

	// A straggling observer callback after the terminal event.
	hub.OnState("sess-5", agent.StateTerminal)

	ch, cancel := hub.subscribe()
	defer cancel()
	got := collectUntilClosed(t, ch)
	require.Len(t, got, 1)
	assert.Equal(t, "done", got[0].Type)
}

func TestEventHub_StampsEvents(t *testing.T) {
	hub := newEventHub()
	hub.mu.Lock()
	hub.sessionID = "sess-6"
	hub.mu.Unlock()

	// Events published without an explicit session ID inherit the hub's.
	hub.publish(Event{Type: "state", State: string(agent.StateInit)})
	hub.finish(nil, nil)

	ch, cancel := hub.subscribe()
	defer cancel()
	got := collectUntilClosed(t, ch)
	require.Len(t, got, 2)
	assert.Equal(t, "sess-6", got[0].SessionID)

	_, err := time.Parse(time.RFC3339, got[0].Timestamp)
	assert.NoError(t, err, "timestamp should be RFC3339")
}
