package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// ProviderError wraps a backend failure with the provider's name and whether
// the call is worth retrying.
type ProviderError struct {
	Provider  string
	Retryable bool
	Err       error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// backendClient is the minimal surface a model backend exposes: one prompt
// exchange in, raw text out. The adapter owns everything around it.
type backendClient interface {
	generate(ctx context.Context, system, user string) (string, error)
}

// New is a factory that builds the configured decision provider.
func New(cfg config.ProviderConfig, logger *zap.Logger) (schemas.DecisionProvider, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	switch config.ProviderBackend(backend) {
	case config.BackendGemini:
		client, err := newGeminiBackend(cfg, logger)
		if err != nil {
			return nil, err
		}
		return newAdapter(string(config.BackendGemini), client, cfg, logger), nil
	case config.BackendOpenAI:
		client, err := newOpenAIBackend(cfg, logger)
		if err != nil {
			return nil, err
		}
		return newAdapter(string(config.BackendOpenAI), client, cfg, logger), nil
	case config.BackendOllama:
		client, err := newOllamaBackend(cfg, logger)
		if err != nil {
			return nil, err
		}
		return newAdapter(string(config.BackendOllama), client, cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown or unsupported provider backend: %q. Supported: [%s, %s, %s]",
			cfg.Backend, config.BackendGemini, config.BackendOpenAI, config.BackendOllama)
	}
}

// adapter turns a raw text backend into a DecisionProvider: it builds the
// prompts, parses the reply, retries transient failures with exponential
// backoff, and on exhaustion synthesizes a terminate decision carrying the
// error text, so the step loop always receives something it can execute.
type adapter struct {
	name    string
	backend backendClient
	cfg     config.ProviderConfig
	logger  *zap.Logger
	limiter *rate.Limiter
}

func newAdapter(name string, backend backendClient, cfg config.ProviderConfig, logger *zap.Logger) *adapter {
	var limiter *rate.Limiter
	if cfg.RequestsPerMinute > 0 {
		limiter = rate.NewLimiter(rate.Limit(float64(cfg.RequestsPerMinute)/60.0), 1)
	}
	return &adapter{
		name:    name,
		backend: backend,
		cfg:     cfg,
		logger:  logger.Named("provider." + name),
		limiter: limiter,
	}
}

func (a *adapter) Name() string { return a.name }

func (a *adapter) Close() error { return nil }

// Decide asks the backend for the next action. Transient backend failures
// and unparseable replies are retried until the backoff budget runs out;
// only context cancellation surfaces as an error.
func (a *adapter) Decide(ctx context.Context, req schemas.DecisionRequest) (*schemas.RawDecision, error) {
	system := buildSystemPrompt(req)
	user := buildUserPrompt(req, a.cfg.HistoryWindow)

	b := backoff.NewExponentialBackOff()
	b.MaxElapsedTime = a.cfg.RetryMaxElapsed
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = 2 * time.Minute
	}
	b.MaxInterval = a.cfg.RetryMaxInterval
	if b.MaxInterval <= 0 {
		b.MaxInterval = 30 * time.Second
	}

	var decision *schemas.RawDecision
	operation := func() error {
		if a.limiter != nil {
			if err := a.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		start := time.Now()
		text, err := a.backend.generate(ctx, system, user)
		if err != nil {
			var perr *ProviderError
			if errors.As(err, &perr) && !perr.Retryable {
				return backoff.Permanent(err)
			}
			a.logger.Warn("Decision request failed, retrying...", zap.Error(err))
			return err
		}

		parsed, perr := parseDecision(text)
		if perr != nil {
			// Malformed output is usually a one-off; ask again.
			a.logger.Warn("Model returned an unparseable decision, retrying...",
				zap.Error(perr),
				zap.Int("reply_chars", len(text)))
			return perr
		}

		a.logger.Debug("Decision received.",
			zap.String("action", parsed.Kind),
			zap.Duration("duration", time.Since(start)))
		decision = parsed
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(b, ctx)); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		a.logger.Error("Decision provider exhausted its retry budget.", zap.Error(err))
		return fallbackTerminate(a.name, err), nil
	}
	return decision, nil
}

// fallbackTerminate is the decision an exhausted provider hands the loop:
// terminate, with the failure spelled out in the reasoning so it lands in
// the session log.
func fallbackTerminate(name string, err error) *schemas.RawDecision {
	return &schemas.RawDecision{
		Kind:      string(schemas.ActionTerminate),
		Reasoning: fmt.Sprintf("decision provider gave up: %s: %v", name, err),
	}
}

// retryableStatus classifies HTTP status codes the way backends expect:
// throttling and server-side failures are transient, everything else is not.
func retryableStatus(code int) bool {
	switch code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// sniffRetryable is the fallback classification for backends that do not
// surface a typed error: look for the markers transient failures carry.
func sniffRetryable(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"429", "500", "502", "503", "504",
		"quota", "rate limit", "resource exhausted",
		"unavailable", "overloaded", "internal error",
		"timeout", "connection refused", "connection reset", "eof",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
