package schemas

import (
	"context"
	"time"
)

// -- Store Interface --

// SessionStore defines a generic interface for persisting finished agent
// sessions. This abstraction keeps the application independent of the
// specific storage implementation (e.g., flat files, PostgreSQL).
type SessionStore interface {
	// SaveSession writes a complete session record. Saving the same ID twice
	// overwrites the earlier record.
	SaveSession(ctx context.Context, rec *SessionRecord) error
	// GetSession retrieves a single session record by its unique ID.
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	// ListSessions returns summaries of stored sessions, most recent first.
	// A limit of zero or less means no limit.
	ListSessions(ctx context.Context, limit int) ([]SessionSummary, error)
	// Close releases any resources held by the store.
	Close() error
}

// SessionSummary is the listing projection of a stored session record.
type SessionSummary struct {
	ID         string        `json:"id"`
	Goal       string        `json:"goal"`
	StartURL   string        `json:"start_url"`
	Status     SessionStatus `json:"status"`
	Steps      int           `json:"steps"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt time.Time     `json:"finished_at"`
}

// -- Browser Interface --

// Cookie is a browser cookie to be restored into a session before
// navigation, typically loaded from a credential vault.
type Cookie struct {
	Name     string `json:"name"`
	Value    string `json:"value"`
	Domain   string `json:"domain"`
	Path     string `json:"path,omitempty"`
	Secure   bool   `json:"secure,omitempty"`
	HTTPOnly bool   `json:"http_only,omitempty"`
}

// BrowserSession defines the interface for controlling a single browser tab.
// It provides navigation, element interaction, low-level pointer and keyboard
// input, and page state capture. Element operations address their target by a
// CSS selector that has already been resolved against the live page.
type BrowserSession interface {
	ID() string                                                             // Returns the unique ID of the session.
	Navigate(ctx context.Context, url string) error                         // Navigates the tab to a new URL and waits for it to settle.
	Reload(ctx context.Context) error                                       // Reloads the current page.
	NavigateBack(ctx context.Context) error                                 // Goes one entry back in the tab history.
	NavigateForward(ctx context.Context) error                              // Goes one entry forward in the tab history.
	CurrentURL(ctx context.Context) (string, error)                         // Returns the tab's current URL.
	CaptureState(ctx context.Context) (*PageState, error)                   // Extracts a fresh page summary and element table.
	Probe(ctx context.Context, selector string) (bool, error)               // Reports whether the selector matches a live element right now.
	ElementBox(ctx context.Context, selector string) (*BoundingBox, error)  // Returns the element's current bounding geometry.
	Click(ctx context.Context, selector string) error                       // Clicks the element.
	TypeText(ctx context.Context, selector, text string, clear bool) error  // Focuses the element and types text, optionally clearing it first.
	SelectOption(ctx context.Context, selector, value string) error         // Selects an option of a <select> element by value or label.
	Hover(ctx context.Context, selector string) error                       // Moves the pointer over the element.
	UploadFiles(ctx context.Context, selector string, paths []string) error // Attaches local files to a file input.
	PressKey(ctx context.Context, chord string) error                       // Presses a named key, optionally with modifiers (e.g. "ctrl+a").
	TypeActive(ctx context.Context, text string) error                      // Types text into whatever element currently holds focus.
	Scroll(ctx context.Context, direction string, pixels float64) error     // Scrolls the page up, down, top, or bottom.
	PointerMove(ctx context.Context, x, y float64) error                    // Moves the pointer to viewport coordinates.
	PointerClick(ctx context.Context, x, y float64) error                   // Clicks at viewport coordinates.
	Drag(ctx context.Context, fromX, fromY, toX, toY float64) error         // Drags the pointer between two points.
	Sleep(ctx context.Context, d time.Duration) error                       // Pauses, respecting context cancellation.
	RestoreCookies(ctx context.Context, cookies []Cookie) error             // Installs cookies into the browser before navigation.
	Close(ctx context.Context) error                                        // Closes the tab and releases its resources.
}

// -- Decision Provider Schemas & Interface --

// ActionUsage is one prompt-facing line of the action reference: the kind,
// its usage hint, and whether it must reference an element from the table.
type ActionUsage struct {
	Kind            ActionKind `json:"kind"`
	Usage           string     `json:"usage,omitempty"`
	RequiresElement bool       `json:"requires_element,omitempty"`
}

// DecisionRequest carries everything a model needs to choose the next action:
// the goal, the freshly observed page state, and the recent action history.
type DecisionRequest struct {
	Goal     string         `json:"goal"`
	State    *PageState     `json:"state"`
	History  []ActionRecord `json:"history"`
	Step     int            `json:"step"`
	MaxSteps int            `json:"max_steps"`
	Kinds    []ActionKind   `json:"kinds"`   // Action kinds the model is allowed to choose from.
	Actions  []ActionUsage  `json:"actions"` // Usage reference for the allowed kinds.
}

// DecisionProvider defines a standard interface for asking a language model
// what to do next, abstracting the specifics of the underlying backend
// (e.g., Gemini, OpenAI, a local Ollama endpoint).
type DecisionProvider interface {
	// Decide produces the model's next-action decision for the given request.
	Decide(ctx context.Context, req DecisionRequest) (*RawDecision, error)
	// Name identifies the backend, for logging and persistence.
	Name() string
	// Close cleans up any resources held by the provider (e.g., network connections, SDK resources).
	Close() error
}
