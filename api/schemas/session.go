package schemas

import "time"

// SessionStatus is the terminal status of a run. It is recomputed from the
// last log entry and step count at save time, never tracked independently.
type SessionStatus string

const (
	StatusCompleted  SessionStatus = "completed"
	StatusTerminated SessionStatus = "terminated"
	StatusError      SessionStatus = "error"
	StatusMaxSteps   SessionStatus = "max_steps_reached"
	StatusNoActions  SessionStatus = "no_actions"
)

// ActionRecord is one appended entry in a session's ordered action log.
type ActionRecord struct {
	Step      int                    `json:"step"`
	Kind      ActionKind             `json:"kind"`
	Reasoning string                 `json:"reasoning,omitempty"`
	ElementID string                 `json:"element_id,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty"`
	URL       string                 `json:"url,omitempty"`
	Success   bool                   `json:"success"`
	ErrorCode string                 `json:"error_code,omitempty"`
	Error     string                 `json:"error,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// SessionRecord is the durable record of one goal-driven run: every action
// attempted, its outcome, and the terminal status. Append-only during the
// run, written once at the end.
type SessionRecord struct {
	ID           string                 `json:"id"`
	Goal         string                 `json:"goal"`
	StartURL     string                 `json:"start_url"`
	Steps        int                    `json:"steps"`
	Status       SessionStatus          `json:"status"`
	Log          []ActionRecord         `json:"log"`
	Extracted    map[string]interface{} `json:"extracted,omitempty"`
	OutputFormat string                 `json:"output_format,omitempty"`
	OutputTitle  string                 `json:"output_title,omitempty"`
	StartedAt    time.Time              `json:"started_at"`
	FinishedAt   time.Time              `json:"finished_at"`
}

// Kinds returns the ordered action kinds of the log.
func (r *SessionRecord) Kinds() []ActionKind {
	kinds := make([]ActionKind, len(r.Log))
	for i, entry := range r.Log {
		kinds[i] = entry.Kind
	}
	return kinds
}

// LastEntry returns the final log entry, or nil for an empty log.
func (r *SessionRecord) LastEntry() *ActionRecord {
	if len(r.Log) == 0 {
		return nil
	}
	return &r.Log[len(r.Log)-1]
}
