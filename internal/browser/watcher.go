package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// netWatcher tracks in flight network requests for a single tab so the
// session can wait for the network to go quiet after navigations.
type netWatcher struct {
	logger *zap.Logger

	// The context for the browser tab this watcher is attached to.
	sessionCtx context.Context
	// A separate context for the listener goroutine so it can be stopped cleanly.
	listenerCtx    context.Context
	cancelListener context.CancelFunc

	inflight map[network.RequestID]bool
	lock     sync.RWMutex

	isStarted bool
}

func newNetWatcher(sessionCtx context.Context, logger *zap.Logger) *netWatcher {
	return &netWatcher{
		sessionCtx: sessionCtx,
		logger:     logger.Named("netwatch"),
		inflight:   make(map[network.RequestID]bool),
	}
}

// Start registers the CDP event listener. The network domain must be enabled
// on the session for events to arrive.
func (w *netWatcher) Start() {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.isStarted {
		return
	}

	// This context derives from the session, so if the tab dies, the listener dies.
	w.listenerCtx, w.cancelListener = context.WithCancel(w.sessionCtx)
	go w.listen()

	w.isStarted = true
}

// listen receives CDP network events and keeps the in flight set current.
func (w *netWatcher) listen() {
	chromedp.ListenTarget(w.listenerCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			w.lock.Lock()
			w.inflight[e.RequestID] = true
			w.lock.Unlock()
		case *network.EventLoadingFinished:
			w.lock.Lock()
			delete(w.inflight, e.RequestID)
			w.lock.Unlock()
		case *network.EventLoadingFailed:
			w.lock.Lock()
			delete(w.inflight, e.RequestID)
			w.lock.Unlock()
		}
	})
}

// Stop halts event collection.
func (w *netWatcher) Stop() {
	w.lock.Lock()
	defer w.lock.Unlock()

	if w.cancelListener != nil {
		w.cancelListener()
		w.cancelListener = nil
	}
	w.isStarted = false
}

// WaitQuiet is a dynamic wait that polls until there have been no in flight
// network requests for the specified duration.
func (w *netWatcher) WaitQuiet(ctx context.Context, quietPeriod time.Duration) error {
	if quietPeriod <= 0 {
		quietPeriod = 500 * time.Millisecond
	}

	// Check more frequently than the quiet period itself.
	ticker := time.NewTicker(quietPeriod / 2)
	defer ticker.Stop()

	lastActivity := time.Now()
	for {
		select {
		case <-ctx.Done():
			w.logger.Debug("WaitQuiet aborted due to context cancellation.", zap.Error(ctx.Err()))
			return ctx.Err()
		case <-ticker.C:
			w.lock.RLock()
			inflightCount := len(w.inflight)
			w.lock.RUnlock()

			if inflightCount > 0 {
				lastActivity = time.Now() // Reset the timer if there's activity.
			} else if time.Since(lastActivity) >= quietPeriod {
				return nil
			}
		}
	}
}
