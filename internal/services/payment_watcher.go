package services

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"gymdesk/internal/models"
)

// WatcherConfig sets the watcher cadence. Tests shrink the intervals.
type WatcherConfig struct {
	PollInterval time.Duration // gateway status poll cadence
	TickInterval time.Duration // countdown tick cadence
	SuccessGrace time.Duration // delay between paid and the completion callback
}

// DefaultWatcherConfig matches the payment view behavior: a 5s poll, a 1s
// countdown and a 2s grace before the success hand-off.
func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		PollInterval: 5 * time.Second,
		TickInterval: time.Second,
		SuccessGrace: 2 * time.Second,
	}
}

// StatusFunc asks for the authoritative state of a session.
type StatusFunc func(ctx context.Context) (models.SessionState, error)

type pollResult struct {
	state models.SessionState
	err   error
}

// SessionWatcher drives one payment session to a terminal state. It polls the
// status source at a fixed interval with at most one request in flight, while
// an independent countdown forces a locally-declared expiry when the session
// deadline passes. State transitions are arbitrated by terminality rank, so a
// stale poll response can never resurrect a created state, while a
// server-confirmed paid or failed still overrides a local expiry.
//
// Both tickers live in a single goroutine owned by the watcher; Stop or
// context cancellation tears them down, guaranteeing no timer outlives it.
type SessionWatcher struct {
	orderID   string
	expiresAt time.Time
	status    StatusFunc
	cfg       WatcherConfig

	mu           sync.Mutex
	state        models.SessionState
	remaining    int
	polling      bool
	onTransition func(models.SessionState)
	onDone       func(models.SessionState)

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewSessionWatcher builds a watcher for an order. Callbacks must be set
// before Start.
func NewSessionWatcher(orderID string, initial models.SessionState, expiresAt time.Time, status StatusFunc, cfg WatcherConfig) *SessionWatcher {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Second
	}
	return &SessionWatcher{
		orderID:   orderID,
		expiresAt: expiresAt,
		status:    status,
		cfg:       cfg,
		state:     initial,
		remaining: RemainingSeconds(expiresAt, time.Now()),
		stop:      make(chan struct{}),
		done:      make(chan struct{}),
	}
}

// OnTransition registers a callback fired on every accepted state change.
func (w *SessionWatcher) OnTransition(fn func(models.SessionState)) {
	w.mu.Lock()
	w.onTransition = fn
	w.mu.Unlock()
}

// OnDone registers the completion callback, fired once with the final state.
// It is not fired when the watcher is stopped before resolution.
func (w *SessionWatcher) OnDone(fn func(models.SessionState)) {
	w.mu.Lock()
	w.onDone = fn
	w.mu.Unlock()
}

// Start runs the watcher loop. Call at most once.
func (w *SessionWatcher) Start(ctx context.Context) {
	go w.run(ctx)
}

// Stop cancels the watcher. Safe to call multiple times.
func (w *SessionWatcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Done is closed once the watcher loop has exited.
func (w *SessionWatcher) Done() <-chan struct{} {
	return w.done
}

// Snapshot reports the current state, remaining seconds and whether a status
// request is in flight.
func (w *SessionWatcher) Snapshot() (models.SessionState, int, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state, w.remaining, w.polling
}

func (w *SessionWatcher) run(ctx context.Context) {
	defer close(w.done)

	// A deadline already in the past expires the session immediately.
	w.updateCountdown()

	poll := time.NewTicker(w.cfg.PollInterval)
	defer poll.Stop()
	tick := time.NewTicker(w.cfg.TickInterval)
	defer tick.Stop()

	results := make(chan pollResult, 1)
	inFlight := false

	for {
		// Exit only once no poll is outstanding, so an in-flight paid
		// response can still override a local expiry.
		if st := w.currentState(); st.Terminal() && !inFlight {
			w.finish(ctx, st)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		case <-tick.C:
			w.updateCountdown()
		case <-poll.C:
			if inFlight || w.currentState().Terminal() {
				continue
			}
			inFlight = true
			w.setPolling(true)
			go func() {
				state, err := w.status(ctx)
				results <- pollResult{state: state, err: err}
			}()
		case r := <-results:
			inFlight = false
			w.setPolling(false)
			if r.err != nil {
				// Transient; try again next tick.
				log.Printf("payment status poll failed for %s: %v", w.orderID, r.err)
				continue
			}
			w.applyState(r.state)
		}
	}
}

// finish delays the success hand-off briefly, then fires the completion
// callback. Stopping during the grace window suppresses it.
func (w *SessionWatcher) finish(ctx context.Context, final models.SessionState) {
	if final == models.SessionPaid && w.cfg.SuccessGrace > 0 {
		t := time.NewTimer(w.cfg.SuccessGrace)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return
		case <-w.stop:
			return
		}
	}

	w.mu.Lock()
	cb := w.onDone
	w.mu.Unlock()
	if cb != nil {
		cb(final)
	}
}

func (w *SessionWatcher) currentState() models.SessionState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *SessionWatcher) setPolling(v bool) {
	w.mu.Lock()
	w.polling = v
	w.mu.Unlock()
}

// updateCountdown recomputes remaining seconds from the wall clock. Hitting
// zero while the session is still created declares a local expiry.
func (w *SessionWatcher) updateCountdown() {
	rem := RemainingSeconds(w.expiresAt, time.Now())

	w.mu.Lock()
	w.remaining = rem
	state := w.state
	w.mu.Unlock()

	if rem == 0 && state == models.SessionCreated {
		w.applyState(models.SessionExpired)
	}
}

// applyState accepts an observed state only if it outranks the current one.
func (w *SessionWatcher) applyState(observed models.SessionState) {
	w.mu.Lock()
	if !observed.Supersedes(w.state) {
		w.mu.Unlock()
		return
	}
	w.state = observed
	cb := w.onTransition
	w.mu.Unlock()

	if cb != nil {
		cb(observed)
	}
}

// RemainingSeconds computes the countdown value: whole seconds until expiry,
// clamped at zero.
func RemainingSeconds(expiry, now time.Time) int {
	d := expiry.Sub(now)
	if d <= 0 {
		return 0
	}
	return int(d / time.Second)
}

// FormatRemaining renders a countdown as minutes:seconds with zero-padded
// seconds, e.g. 125 -> "2:05".
func FormatRemaining(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	return fmt.Sprintf("%d:%02d", seconds/60, seconds%60)
}
