package browser

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/webpilot/api/schemas"
	"github.com/xkilldash9x/webpilot/internal/config"
)

// Session drives a single browser tab for the lifetime of one agent run.
type Session struct {
	id     string
	logger *zap.Logger
	cfg    config.BrowserConfig

	// ctx is the tab's chromedp context. Every action runs against it.
	ctx     context.Context
	cancel  context.CancelFunc
	watcher *netWatcher

	// onClose is executed exactly once when the session closes.
	onClose func()

	mu       sync.Mutex
	isClosed bool
}

var _ schemas.BrowserSession = (*Session)(nil)

// newSession creates the tab, enables the CDP domains the session relies on,
// and starts the network watcher.
func newSession(ctx, allocCtx context.Context, cfg config.BrowserConfig, logger *zap.Logger, id string, onClose func()) (*Session, error) {
	tabCtx, cancel := chromedp.NewContext(allocCtx)

	s := &Session{
		id:      id,
		logger:  logger.Named("session").With(zap.String("session_id", id)),
		cfg:     cfg,
		ctx:     tabCtx,
		cancel:  cancel,
		onClose: onClose,
	}

	// The listener must be registered before the first Run so no events from
	// the initial navigation are missed.
	s.watcher = newNetWatcher(tabCtx, s.logger)
	s.watcher.Start()

	// The first Run materializes the tab. Enabling the network domain feeds
	// the watcher and allows cookie installation.
	if err := s.runActions(ctx, network.Enable()); err != nil {
		s.watcher.Stop()
		cancel()
		return nil, fmt.Errorf("failed to initialize browser tab: %w", err)
	}

	return s, nil
}

// ID returns the unique identifier for the session.
func (s *Session) ID() string {
	return s.id
}

// Navigate loads a URL and waits for the page to settle.
func (s *Session) Navigate(ctx context.Context, url string) error {
	s.logger.Debug("Navigating.", zap.String("url", url))

	navCtx := ctx
	if s.cfg.NavigationTimeout > 0 {
		var cancel context.CancelFunc
		navCtx, cancel = context.WithTimeout(ctx, s.cfg.NavigationTimeout)
		defer cancel()
	}

	if err := s.runActions(navCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigation to %q failed: %w", url, err)
	}
	return s.settle(navCtx)
}

// Reload refreshes the current page and waits for it to settle.
func (s *Session) Reload(ctx context.Context) error {
	if err := s.runActions(ctx, chromedp.Reload()); err != nil {
		return fmt.Errorf("reload failed: %w", err)
	}
	return s.settle(ctx)
}

// NavigateBack goes one entry back in the tab history.
func (s *Session) NavigateBack(ctx context.Context) error {
	if err := s.runActions(ctx, chromedp.NavigateBack()); err != nil {
		return fmt.Errorf("history back failed: %w", err)
	}
	return s.settle(ctx)
}

// NavigateForward goes one entry forward in the tab history.
func (s *Session) NavigateForward(ctx context.Context) error {
	if err := s.runActions(ctx, chromedp.NavigateForward()); err != nil {
		return fmt.Errorf("history forward failed: %w", err)
	}
	return s.settle(ctx)
}

// CurrentURL returns the tab's current location.
func (s *Session) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := s.runActions(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("could not read location: %w", err)
	}
	return url, nil
}

// Title returns the current document title.
func (s *Session) Title(ctx context.Context) (string, error) {
	var title string
	if err := s.runActions(ctx, chromedp.Title(&title)); err != nil {
		return "", fmt.Errorf("could not read title: %w", err)
	}
	return title, nil
}

// Sleep pauses for the duration, respecting context cancellation.
func (s *Session) Sleep(ctx context.Context, d time.Duration) error {
	return s.runActions(ctx, chromedp.Sleep(d))
}

// RestoreCookies installs cookies into the browser. Meant to run before the
// first navigation so authenticated pages load directly.
func (s *Session) RestoreCookies(ctx context.Context, cookies []schemas.Cookie) error {
	if len(cookies) == 0 {
		return nil
	}

	params := make([]*network.CookieParam, 0, len(cookies))
	for _, c := range cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		params = append(params, &network.CookieParam{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     path,
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
		})
	}

	if err := s.runActions(ctx, network.SetCookies(params)); err != nil {
		return fmt.Errorf("failed to install %d cookies: %w", len(params), err)
	}
	s.logger.Debug("Restored cookies into session.", zap.Int("count", len(params)))
	return nil
}

// Close terminates the browser tab gracefully. Safe to call more than once.
func (s *Session) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.isClosed {
		s.mu.Unlock()
		return nil
	}
	s.isClosed = true
	s.mu.Unlock()

	s.logger.Debug("Closing browser session.")

	if s.watcher != nil {
		s.watcher.Stop()
	}

	// Ask Chrome to close the tab gracefully, but do not wait forever: a hung
	// renderer must not block the caller's shutdown path.
	done := make(chan struct{})
	go func() {
		chromedp.Cancel(s.ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("Timed out waiting for graceful tab close.")
	case <-ctx.Done():
	}

	if s.cancel != nil {
		s.cancel()
	}
	if s.onClose != nil {
		s.onClose()
	}
	return nil
}

// settle waits for the page to stabilize after a navigation or reload.
func (s *Session) settle(ctx context.Context) error {
	if err := s.stabilize(ctx, s.cfg.StabilizeQuiet); err != nil {
		return err
	}
	if s.cfg.PostLoadWait > 0 {
		return s.Sleep(ctx, s.cfg.PostLoadWait)
	}
	return nil
}

// stabilize waits for the page state to settle (DOM ready and network idle).
func (s *Session) stabilize(ctx context.Context, quietPeriod time.Duration) error {
	timeout := s.cfg.StabilizeTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	stabCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := s.runActions(stabCtx, chromedp.WaitReady("body", chromedp.ByQuery)); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.logger.Debug("WaitReady failed during stabilization.", zap.Error(err))
	}

	if s.watcher != nil {
		if err := s.watcher.WaitQuiet(stabCtx, quietPeriod); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Debug("Network idle wait failed during stabilization.", zap.Error(err))
		}
	}
	return nil
}

// evaluate runs a script in the page and unmarshals its result into out.
// Promises are awaited so IIFEs returning promises behave as expected.
func (s *Session) evaluate(ctx context.Context, script string, out interface{}) error {
	return s.runActions(ctx, chromedp.Evaluate(script, out, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
		return p.WithReturnByValue(true).WithAwaitPromise(true)
	}))
}

// runActions executes chromedp actions, ensuring they respect both the
// session lifetime (s.ctx) and the incoming request context (ctx).
func (s *Session) runActions(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(s.ctx, ctx)
	defer cancel()

	return chromedp.Run(runCtx, actions...)
}

// CombineContext creates a new context that is canceled when either parentCtx
// or secondaryCtx is canceled. Operations must respect both the session
// lifecycle and per-request deadlines.
func CombineContext(parentCtx, secondaryCtx context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(parentCtx)

	go func() {
		select {
		case <-secondaryCtx.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}
