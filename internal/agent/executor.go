package agent

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
)

// actionHandler performs one action against the browser. A nil return is a
// successful outcome; an error becomes a classified failure outcome.
type actionHandler func(ctx context.Context, action *schemas.Action) error

// Executor dispatches parsed actions to their handlers and reports outcomes.
// Handler faults, including panics, become failure outcomes; execution never
// raises, so a single bad step cannot abort the session.
type Executor struct {
	logger   *zap.Logger
	registry *Registry
	browser  schemas.BrowserSession
	resolver *Resolver
	handlers map[schemas.ActionKind]actionHandler
}

func NewExecutor(logger *zap.Logger, registry *Registry, browser schemas.BrowserSession, resolver *Resolver) *Executor {
	e := &Executor{
		logger:   logger.Named("executor"),
		registry: registry,
		browser:  browser,
		resolver: resolver,
		handlers: make(map[schemas.ActionKind]actionHandler),
	}
	e.registerHandlers()
	return e
}

// registerHandlers wires each built-in action kind to its handler.
func (e *Executor) registerHandlers() {
	e.handlers[schemas.ActionClick] = e.handleClick
	e.handlers[schemas.ActionInputText] = e.handleInputText
	e.handlers[schemas.ActionSelectOption] = e.handleSelectOption
	e.handlers[schemas.ActionHover] = e.handleHover
	e.handlers[schemas.ActionUploadFile] = e.handleUploadFile
	e.handlers[schemas.ActionPointerClick] = e.handlePointerClick
	e.handlers[schemas.ActionPointerMove] = e.handlePointerMove
	e.handlers[schemas.ActionDrag] = e.handleDrag
	e.handlers[schemas.ActionKeyPress] = e.handleKeyPress
	e.handlers[schemas.ActionTypeText] = e.handleTypeText
	e.handlers[schemas.ActionScroll] = e.handleScroll
	e.handlers[schemas.ActionNavigate] = e.handleNavigate
	e.handlers[schemas.ActionReload] = e.handleReload
	e.handlers[schemas.ActionHistoryBack] = e.handleHistoryBack
	e.handlers[schemas.ActionHistoryForward] = e.handleHistoryForward
	e.handlers[schemas.ActionWait] = e.handleWait
	e.handlers[schemas.ActionExtract] = e.handleExtract
	e.handlers[schemas.ActionComplete] = e.handleNoop
	e.handlers[schemas.ActionTerminate] = e.handleNoop
}

// Execute runs one action and always returns an outcome. A kind without a
// handler yields a failure outcome naming the known kinds, and a panicking
// handler yields a failure outcome carrying the panic text.
func (e *Executor) Execute(ctx context.Context, action *schemas.Action) (outcome *schemas.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			e.logger.Error("Action handler panicked.",
				zap.String("action", string(action.Kind)),
				zap.Any("panic", rec),
			)
			outcome = schemas.FailureOutcome(
				string(ErrCodeExecutorPanic),
				fmt.Sprintf("handler for %q panicked: %v", action.Kind, rec),
			)
		}
	}()

	handler, ok := e.handlers[action.Kind]
	if !ok {
		return schemas.FailureOutcome(
			string(ErrCodeUnknownAction),
			fmt.Sprintf("no handler for action %q; known kinds: %s", action.Kind, joinKinds(e.registry.Kinds())),
		)
	}

	if err := handler(ctx, action); err != nil {
		code := classifyExecutionError(err)
		e.logger.Debug("Action failed.",
			zap.String("action", string(action.Kind)),
			zap.String("code", string(code)),
			zap.Error(err),
		)
		return schemas.FailureOutcome(string(code), err.Error())
	}

	out := schemas.SuccessOutcome(fmt.Sprintf("%s ok", action.Kind))
	if action.Kind == schemas.ActionExtract {
		out.Payload = action.Payload
	}
	return out
}

// resolveTarget turns the action's bound element into a live CSS selector.
func (e *Executor) resolveTarget(ctx context.Context, action *schemas.Action) (string, error) {
	if action.Element == nil {
		return "", &ValidationError{Field: "element", Message: fmt.Sprintf("action %q has no bound element", action.Kind)}
	}
	return e.resolver.Resolve(ctx, action.Element)
}

func joinKinds(kinds []schemas.ActionKind) string {
	parts := make([]string, len(kinds))
	for i, k := range kinds {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}
