package agent

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// -- Browser Session Mock --

// MockBrowser implements the schemas.BrowserSession interface for testing.
type MockBrowser struct {
	mock.Mock
}

var _ schemas.BrowserSession = (*MockBrowser)(nil)

func (m *MockBrowser) ID() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockBrowser) Navigate(ctx context.Context, url string) error {
	args := m.Called(ctx, url)
	return args.Error(0)
}

func (m *MockBrowser) Reload(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBrowser) NavigateBack(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBrowser) NavigateForward(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockBrowser) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockBrowser) CaptureState(ctx context.Context) (*schemas.PageState, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.PageState), args.Error(1)
}

func (m *MockBrowser) Probe(ctx context.Context, selector string) (bool, error) {
	args := m.Called(ctx, selector)
	return args.Bool(0), args.Error(1)
}

func (m *MockBrowser) ElementBox(ctx context.Context, selector string) (*schemas.BoundingBox, error) {
	args := m.Called(ctx, selector)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.BoundingBox), args.Error(1)
}

func (m *MockBrowser) Click(ctx context.Context, selector string) error {
	args := m.Called(ctx, selector)
	return args.Error(0)
}

func (m *MockBrowser) TypeText(ctx context.Context, selector, text string, clear bool) error {
	args := m.Called(ctx, selector, text, clear)
	return args.Error(0)
}

func (m *MockBrowser) SelectOption(ctx context.Context, selector, value string) error {
	args := m.Called(ctx, selector, value)
	return args.Error(0)
}

func (m *MockBrowser) Hover(ctx context.Context, selector string) error {
	args := m.Called(ctx, selector)
	return args.Error(0)
}

func (m *MockBrowser) UploadFiles(ctx context.Context, selector string, paths []string) error {
	args := m.Called(ctx, selector, paths)
	return args.Error(0)
}

func (m *MockBrowser) PressKey(ctx context.Context, chord string) error {
	args := m.Called(ctx, chord)
	return args.Error(0)
}

func (m *MockBrowser) TypeActive(ctx context.Context, text string) error {
	args := m.Called(ctx, text)
	return args.Error(0)
}

func (m *MockBrowser) Scroll(ctx context.Context, direction string, pixels float64) error {
	args := m.Called(ctx, direction, pixels)
	return args.Error(0)
}

func (m *MockBrowser) PointerMove(ctx context.Context, x, y float64) error {
	args := m.Called(ctx, x, y)
	return args.Error(0)
}

func (m *MockBrowser) PointerClick(ctx context.Context, x, y float64) error {
	args := m.Called(ctx, x, y)
	return args.Error(0)
}

func (m *MockBrowser) Drag(ctx context.Context, fromX, fromY, toX, toY float64) error {
	args := m.Called(ctx, fromX, fromY, toX, toY)
	return args.Error(0)
}

func (m *MockBrowser) Sleep(ctx context.Context, d time.Duration) error {
	args := m.Called(ctx, d)
	return args.Error(0)
}

func (m *MockBrowser) RestoreCookies(ctx context.Context, cookies []schemas.Cookie) error {
	args := m.Called(ctx, cookies)
	return args.Error(0)
}

func (m *MockBrowser) Close(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// -- Decision Provider Mock --

// MockProvider implements the schemas.DecisionProvider interface for testing.
type MockProvider struct {
	mock.Mock
}

var _ schemas.DecisionProvider = (*MockProvider)(nil)

func (m *MockProvider) Decide(ctx context.Context, req schemas.DecisionRequest) (*schemas.RawDecision, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schemas.RawDecision), args.Error(1)
}

func (m *MockProvider) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockProvider) Close() error {
	args := m.Called()
	return args.Error(0)
}

// -- Session Store Fake --

// memStore is an in-memory SessionStore that keeps every record it is handed,
// so loop tests can assert on what got persisted.
type memStore struct {
	mu      sync.Mutex
	saved   map[string]*schemas.SessionRecord
	saveErr error
}

var _ schemas.SessionStore = (*memStore)(nil)

func newMemStore() *memStore {
	return &memStore{saved: make(map[string]*schemas.SessionRecord)}
}

func (s *memStore) SaveSession(ctx context.Context, rec *schemas.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	cp := *rec
	s.saved[rec.ID] = &cp
	return nil
}

func (s *memStore) GetSession(ctx context.Context, id string) (*schemas.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.saved[id]
	if !ok {
		return nil, context.Canceled
	}
	cp := *rec
	return &cp, nil
}

func (s *memStore) ListSessions(ctx context.Context, limit int) ([]schemas.SessionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schemas.SessionSummary, 0, len(s.saved))
	for _, rec := range s.saved {
		out = append(out, schemas.SessionSummary{ID: rec.ID, Goal: rec.Goal, Status: rec.Status, Steps: rec.Steps})
	}
	return out, nil
}

func (s *memStore) Close() error { return nil }

func (s *memStore) get(id string) *schemas.SessionRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saved[id]
}

// -- Step Observer Fake --

// recordingObserver captures every state transition and step callback.
type recordingObserver struct {
	mu      sync.Mutex
	states  []State
	entries []schemas.ActionRecord
}

func (o *recordingObserver) OnState(id string, state State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, state)
}

func (o *recordingObserver) OnStep(id string, entry schemas.ActionRecord) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.entries = append(o.entries, entry)
}

func (o *recordingObserver) seenStates() []State {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]State, len(o.states))
	copy(out, o.states)
	return out
}

// -- Shared Fixtures --

// singleButtonState is a minimal observed page with one clickable element.
func singleButtonState() *schemas.PageState {
	return &schemas.PageState{
		URL:     "https://shop.example/cart",
		Title:   "Cart",
		Summary: "Your cart\nCheckout",
		Elements: []schemas.ElementDescriptor{
			{
				ID:      "e1",
				Tag:     "button",
				Locator: "#checkout",
				Text:    "Checkout",
				Visible: true,
				Box:     &schemas.BoundingBox{X: 100, Y: 200, Width: 80, Height: 30},
			},
		},
		CapturedAt: time.Now().UTC(),
	}
}

func decision(kind, elementID, reasoning string) *schemas.RawDecision {
	return &schemas.RawDecision{Kind: kind, ElementID: elementID, Reasoning: reasoning}
}
