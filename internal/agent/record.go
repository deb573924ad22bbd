package agent

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// uuidNewString is indirected for deterministic IDs in tests.
var uuidNewString = uuid.NewString

// NewSessionID returns a session identifier that sorts chronologically: a
// UTC timestamp prefix plus a short random suffix.
func NewSessionID() string {
	stamp := time.Now().UTC().Format("20060102T150405")
	return stamp + "-" + uuidNewString()[:8]
}

// Recorder accumulates the durable record of one run. It is safe for
// concurrent use so the serving layer can read progress while the step loop
// appends.
type Recorder struct {
	mu  sync.Mutex
	rec schemas.SessionRecord
}

func NewRecorder(id, goal, startURL string) *Recorder {
	return &Recorder{
		rec: schemas.SessionRecord{
			ID:        id,
			Goal:      goal,
			StartURL:  startURL,
			StartedAt: time.Now().UTC(),
		},
	}
}

// RecordAction appends the log entry for an executed action and folds its
// outcome into the session aggregates. Extract payloads merge key by key,
// later steps overwriting earlier ones, and the same applies to the output
// format and title hints.
func (r *Recorder) RecordAction(step int, action *schemas.Action, outcome *schemas.Outcome, url string) schemas.ActionRecord {
	entry := schemas.ActionRecord{
		Step:      step,
		Kind:      action.Kind,
		Reasoning: action.Reasoning,
		ElementID: action.ElementID,
		Params:    action.Params,
		URL:       url,
		Success:   outcome.Success,
		ErrorCode: outcome.ErrorCode,
		Timestamp: time.Now().UTC(),
	}
	if !outcome.Success {
		entry.Error = outcome.Message
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rec.Log = append(r.rec.Log, entry)
	if outcome.Success && len(outcome.Payload) > 0 {
		if r.rec.Extracted == nil {
			r.rec.Extracted = make(map[string]interface{}, len(outcome.Payload))
		}
		for k, v := range outcome.Payload {
			r.rec.Extracted[k] = v
		}
	}
	if action.OutputFormat != "" {
		r.rec.OutputFormat = action.OutputFormat
	}
	if action.OutputTitle != "" {
		r.rec.OutputTitle = action.OutputTitle
	}
	return entry
}

// RecordRejection appends a failed entry for a decision that never reached a
// handler, typically an unknown kind or a reference to an element that is no
// longer on the page. The raw decision's fields are preserved so the log
// shows what the model asked for.
func (r *Recorder) RecordRejection(step int, raw *schemas.RawDecision, cause error, url string) schemas.ActionRecord {
	entry := schemas.ActionRecord{
		Step:      step,
		URL:       url,
		Success:   false,
		ErrorCode: string(ErrCodeValidation),
		Error:     cause.Error(),
		Timestamp: time.Now().UTC(),
	}
	if raw != nil {
		entry.Kind = schemas.ActionKind(strings.ToLower(strings.TrimSpace(raw.Kind)))
		entry.Reasoning = raw.Reasoning
		entry.ElementID = raw.ElementID
		entry.Params = raw.Params
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.rec.Log = append(r.rec.Log, entry)
	return entry
}

// History returns a copy of the log so far.
func (r *Recorder) History() []schemas.ActionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]schemas.ActionRecord, len(r.rec.Log))
	copy(out, r.rec.Log)
	return out
}

// Len reports the number of recorded steps.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rec.Log)
}

// Snapshot returns a copy of the record as it stands, with Steps filled in.
func (r *Recorder) Snapshot() schemas.SessionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap := r.rec
	snap.Steps = len(r.rec.Log)
	snap.Log = make([]schemas.ActionRecord, len(r.rec.Log))
	copy(snap.Log, r.rec.Log)
	if len(r.rec.Extracted) > 0 {
		snap.Extracted = make(map[string]interface{}, len(r.rec.Extracted))
		for k, v := range r.rec.Extracted {
			snap.Extracted[k] = v
		}
	}
	return snap
}

// Finalize stamps the end time, recomputes the terminal status from the log,
// and returns the completed record. Status is always derived here so every
// exit path persists a consistent record.
func (r *Recorder) Finalize(maxSteps int, fatal error) *schemas.SessionRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rec.Steps = len(r.rec.Log)
	r.rec.FinishedAt = time.Now().UTC()
	r.rec.Status = deriveStatus(&r.rec, maxSteps, fatal)
	return &r.rec
}

// deriveStatus computes the terminal status from the last log entry and the
// step count. A fatal session error wins over everything else.
func deriveStatus(rec *schemas.SessionRecord, maxSteps int, fatal error) schemas.SessionStatus {
	if fatal != nil {
		return schemas.StatusError
	}
	last := rec.LastEntry()
	if last == nil {
		return schemas.StatusNoActions
	}
	switch {
	case last.Kind == schemas.ActionComplete && last.Success:
		return schemas.StatusCompleted
	case last.Kind == schemas.ActionTerminate && last.Success:
		return schemas.StatusTerminated
	case maxSteps > 0 && rec.Steps >= maxSteps:
		return schemas.StatusMaxSteps
	default:
		return schemas.StatusError
	}
}
