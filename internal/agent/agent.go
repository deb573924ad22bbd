package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// State names the phase the step loop is in, for observers and logs.
type State string

const (
	StateInit       State = "INIT"
	StateNavigating State = "NAVIGATING"
	StateAnalyzing  State = "ANALYZING"
	StateDeciding   State = "DECIDING"
	StateActing     State = "ACTING"
	StateTerminal   State = "TERMINAL"
)

// StepObserver receives progress callbacks from a running session. Both
// methods are invoked from the step-loop goroutine and must not block.
type StepObserver interface {
	OnState(id string, state State)
	OnStep(id string, entry schemas.ActionRecord)
}

// CredentialSource supplies cookies to restore before the first navigation.
type CredentialSource interface {
	CookiesFor(startURL, goal string) []schemas.Cookie
}

// Deps collects the collaborators a session needs. Registry defaults to the
// built-in action table; Store, Credentials and Observer are optional. A
// non-empty ID pins the session identifier, otherwise one is generated.
type Deps struct {
	ID          string
	Browser     schemas.BrowserSession
	Provider    schemas.DecisionProvider
	Store       schemas.SessionStore
	Registry    *Registry
	Credentials CredentialSource
	Observer    StepObserver
}

// Agent drives one browser session toward a natural-language goal. Each step
// observes the page, asks the provider for the next action, executes it, and
// appends the outcome to the session log, until a terminal action succeeds,
// the step budget runs out, or the session hits an unrecoverable error.
type Agent struct {
	id       string
	logger   *zap.Logger
	cfg      config.AgentConfig
	browser  schemas.BrowserSession
	provider schemas.DecisionProvider
	store    schemas.SessionStore
	registry *Registry
	creds    CredentialSource
	observer StepObserver
	parser   *Parser
	executor *Executor

	mu       sync.Mutex
	state    State
	recorder *Recorder
}

// New wires a fully-featured agent around an existing browser session.
func New(cfg config.AgentConfig, logger *zap.Logger, deps Deps) (*Agent, error) {
	if deps.Browser == nil {
		return nil, fmt.Errorf("agent requires a browser session")
	}
	if deps.Provider == nil {
		return nil, fmt.Errorf("agent requires a decision provider")
	}

	registry := deps.Registry
	if registry == nil {
		registry = NewRegistry()
	}

	id := deps.ID
	if id == "" {
		id = NewSessionID()
	}
	log := logger.With(zap.String("session_id", id))
	resolver := NewResolver(deps.Browser, log)

	return &Agent{
		id:       id,
		logger:   log,
		cfg:      cfg,
		browser:  deps.Browser,
		provider: deps.Provider,
		store:    deps.Store,
		registry: registry,
		creds:    deps.Credentials,
		observer: deps.Observer,
		parser:   NewParser(registry),
		executor: NewExecutor(log, registry, deps.Browser, resolver),
		state:    StateInit,
	}, nil
}

// SessionID returns the identifier the finished record will be stored under.
func (a *Agent) SessionID() string { return a.id }

// State returns the loop phase the session is currently in.
func (a *Agent) State() State {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// Snapshot returns a copy of the session record as it stands mid-run.
func (a *Agent) Snapshot() schemas.SessionRecord {
	a.mu.Lock()
	rec := a.recorder
	a.mu.Unlock()
	if rec == nil {
		return schemas.SessionRecord{ID: a.id}
	}
	return rec.Snapshot()
}

// Run executes the full session. Whatever path exits the loop, the browser
// session is released and the finished record is persisted before Run
// returns; the deferred block below is the single place both guarantees live.
func (a *Agent) Run(ctx context.Context, startURL, goal string) (record *schemas.SessionRecord, err error) {
	recorder := NewRecorder(a.id, goal, startURL)
	a.mu.Lock()
	a.recorder = recorder
	a.mu.Unlock()

	a.logger.Info("Starting session",
		zap.String("goal", goal),
		zap.String("start_url", startURL),
		zap.Int("max_steps", a.cfg.MaxSteps),
		zap.String("provider", a.provider.Name()))

	var fatal error
	defer func() {
		a.setState(StateTerminal)
		a.releaseBrowser()

		record = recorder.Finalize(a.cfg.MaxSteps, fatal)
		saveErr := a.persist(record)

		a.logger.Info("Session finished",
			zap.String("status", string(record.Status)),
			zap.Int("steps", record.Steps),
			zap.Duration("elapsed", record.FinishedAt.Sub(record.StartedAt)))

		if fatal != nil {
			err = fatal
		} else {
			err = saveErr
		}
	}()

	fatal = a.loop(ctx, recorder, startURL, goal)
	return record, err
}

// loop is the observe/decide/act cycle. It returns nil when the session
// ended normally and a fatal error when the session cannot continue.
func (a *Agent) loop(ctx context.Context, rec *Recorder, startURL, goal string) error {
	a.restoreCredentials(ctx, startURL, goal)

	a.setState(StateNavigating)
	if err := a.browser.Navigate(ctx, startURL); err != nil {
		return &SessionFatalError{Reason: fmt.Sprintf("initial navigation to %s failed", startURL), Err: err}
	}

	consecutiveFailures := 0
	for rec.Len() < a.cfg.MaxSteps {
		if err := ctx.Err(); err != nil {
			return &SessionFatalError{Reason: "session context cancelled", Err: err}
		}
		step := rec.Len() + 1

		a.setState(StateAnalyzing)
		state, err := a.browser.CaptureState(ctx)
		if err != nil {
			consecutiveFailures++
			a.logger.Warn("Page state capture failed",
				zap.Int("step", step),
				zap.Int("consecutive_failures", consecutiveFailures),
				zap.Error(err))
			if consecutiveFailures >= a.cfg.MaxConsecutiveFailures {
				return &SessionFatalError{Reason: "page state capture failed repeatedly", Err: err}
			}
			if derr := a.stepDelay(ctx); derr != nil {
				return derr
			}
			continue
		}

		a.setState(StateDeciding)
		raw, err := a.provider.Decide(ctx, schemas.DecisionRequest{
			Goal:     goal,
			State:    state,
			History:  rec.History(),
			Step:     step,
			MaxSteps: a.cfg.MaxSteps,
			Kinds:    a.registry.Kinds(),
			Actions:  a.registry.Usage(),
		})
		if err != nil {
			return &SessionFatalError{Reason: "decision provider failed", Err: err}
		}

		action, perr := a.parser.Parse(raw, state.ElementTable())
		if perr != nil {
			entry := rec.RecordRejection(step, raw, perr, state.URL)
			a.notifyStep(entry)
			consecutiveFailures++
			a.logger.Warn("Decision rejected",
				zap.Int("step", step),
				zap.Int("consecutive_failures", consecutiveFailures),
				zap.Error(perr))
			if consecutiveFailures >= a.cfg.MaxConsecutiveFailures {
				return &SessionFatalError{Reason: "too many consecutive failures", Err: perr}
			}
			if derr := a.stepDelay(ctx); derr != nil {
				return derr
			}
			continue
		}

		a.setState(StateActing)
		outcome := a.executor.Execute(ctx, action)
		entry := rec.RecordAction(step, action, outcome, state.URL)
		a.notifyStep(entry)

		if outcome.Success {
			consecutiveFailures = 0
			a.logger.Info("Step executed",
				zap.Int("step", step),
				zap.String("action", string(action.Kind)),
				zap.String("element", action.ElementID))
		} else {
			consecutiveFailures++
			a.logger.Warn("Step failed",
				zap.Int("step", step),
				zap.String("action", string(action.Kind)),
				zap.String("error_code", outcome.ErrorCode),
				zap.String("error", outcome.Message))
			if consecutiveFailures >= a.cfg.MaxConsecutiveFailures {
				return &SessionFatalError{
					Reason: "too many consecutive failures",
					Err:    fmt.Errorf("%s: %s", outcome.ErrorCode, outcome.Message),
				}
			}
		}

		if a.registry.IsTerminal(action.Kind) && outcome.Success {
			a.logger.Info("Terminal action reached",
				zap.String("action", string(action.Kind)),
				zap.String("reasoning", action.Reasoning))
			return nil
		}

		if derr := a.stepDelay(ctx); derr != nil {
			return derr
		}
	}

	a.logger.Info("Step budget exhausted", zap.Int("max_steps", a.cfg.MaxSteps))
	return nil
}

// restoreCredentials installs vault cookies before the first navigation.
// Failures are logged and ignored; a session without stored credentials is
// still worth running.
func (a *Agent) restoreCredentials(ctx context.Context, startURL, goal string) {
	if a.creds == nil {
		return
	}
	cookies := a.creds.CookiesFor(startURL, goal)
	if len(cookies) == 0 {
		return
	}
	if err := a.browser.RestoreCookies(ctx, cookies); err != nil {
		a.logger.Warn("Failed to restore stored cookies", zap.Int("cookies", len(cookies)), zap.Error(err))
		return
	}
	a.logger.Info("Restored stored cookies", zap.Int("cookies", len(cookies)))
}

// stepDelay paces the loop between steps, honoring cancellation.
func (a *Agent) stepDelay(ctx context.Context) error {
	if a.cfg.StepDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(a.cfg.StepDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return &SessionFatalError{Reason: "session context cancelled", Err: ctx.Err()}
	}
}

// releaseBrowser closes the tab on a fresh context so a cancelled run
// context cannot leak the browser.
func (a *Agent) releaseBrowser() {
	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.browser.Close(closeCtx); err != nil {
		a.logger.Warn("Browser session close failed", zap.Error(err))
	}
}

// persist writes the finished record on a fresh context, so cancellation of
// the run context cannot drop the session log.
func (a *Agent) persist(record *schemas.SessionRecord) error {
	if a.store == nil {
		return nil
	}
	saveCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := a.store.SaveSession(saveCtx, record); err != nil {
		a.logger.Error("Failed to persist session record", zap.Error(err))
		return fmt.Errorf("persisting session %s: %w", record.ID, err)
	}
	return nil
}

func (a *Agent) setState(s State) {
	a.mu.Lock()
	a.state = s
	a.mu.Unlock()
	if a.observer != nil {
		a.observer.OnState(a.id, s)
	}
}

func (a *Agent) notifyStep(entry schemas.ActionRecord) {
	if a.observer != nil {
		a.observer.OnStep(a.id, entry)
	}
}
