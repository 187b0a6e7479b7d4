package services

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"gymdesk/internal/models"
)

func testWatcherConfig() WatcherConfig {
	return WatcherConfig{
		PollInterval: 10 * time.Millisecond,
		TickInterval: 5 * time.Millisecond,
		SuccessGrace: 20 * time.Millisecond,
	}
}

func waitDone(t *testing.T, w *SessionWatcher, timeout time.Duration) {
	t.Helper()
	select {
	case <-w.Done():
	case <-time.After(timeout):
		t.Fatal("watcher did not finish in time")
	}
}

func TestRemainingSeconds(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		expiry time.Time
		want   int
	}{
		{"two minutes ahead", now.Add(2 * time.Minute), 120},
		{"fractional second truncates", now.Add(1500 * time.Millisecond), 1},
		{"exactly now", now, 0},
		{"already past", now.Add(-time.Minute), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RemainingSeconds(tt.expiry, now); got != tt.want {
				t.Errorf("RemainingSeconds() = %d; want %d", got, tt.want)
			}
		})
	}
}

func TestFormatRemaining(t *testing.T) {
	tests := []struct {
		seconds int
		want    string
	}{
		{125, "2:05"},
		{600, "10:00"},
		{59, "0:59"},
		{60, "1:00"},
		{0, "0:00"},
		{-5, "0:00"},
	}

	for _, tt := range tests {
		if got := FormatRemaining(tt.seconds); got != tt.want {
			t.Errorf("FormatRemaining(%d) = %q; want %q", tt.seconds, got, tt.want)
		}
	}
}

func TestWatcherResolvesOnPaid(t *testing.T) {
	var polls int32
	status := func(ctx context.Context) (models.SessionState, error) {
		n := atomic.AddInt32(&polls, 1)
		if n < 3 {
			return models.SessionCreated, nil
		}
		return models.SessionPaid, nil
	}

	var mu sync.Mutex
	var transitions []models.SessionState
	var final models.SessionState

	w := NewSessionWatcher("order-1", models.SessionCreated, time.Now().Add(time.Minute), status, testWatcherConfig())
	w.OnTransition(func(s models.SessionState) {
		mu.Lock()
		transitions = append(transitions, s)
		mu.Unlock()
	})
	w.OnDone(func(s models.SessionState) {
		mu.Lock()
		final = s
		mu.Unlock()
	})
	w.Start(context.Background())
	waitDone(t, w, time.Second)

	mu.Lock()
	defer mu.Unlock()
	if final != models.SessionPaid {
		t.Errorf("final state = %q; want %q", final, models.SessionPaid)
	}
	if len(transitions) != 1 || transitions[0] != models.SessionPaid {
		t.Errorf("transitions = %v; want [paid]", transitions)
	}
	if got := atomic.LoadInt32(&polls); got != 3 {
		t.Errorf("poll count = %d; want 3", got)
	}
}

func TestWatcherExpiresLocally(t *testing.T) {
	// The status source never reports a terminal state; the countdown must
	// close the session at the deadline on its own.
	status := func(ctx context.Context) (models.SessionState, error) {
		return models.SessionCreated, nil
	}

	var mu sync.Mutex
	var final models.SessionState
	w := NewSessionWatcher("order-2", models.SessionCreated, time.Now().Add(30*time.Millisecond), status, testWatcherConfig())
	w.OnDone(func(s models.SessionState) {
		mu.Lock()
		final = s
		mu.Unlock()
	})
	w.Start(context.Background())
	waitDone(t, w, time.Second)

	mu.Lock()
	defer mu.Unlock()
	if final != models.SessionExpired {
		t.Errorf("final state = %q; want %q", final, models.SessionExpired)
	}
}

func TestWatcherSinglePollInFlight(t *testing.T) {
	// A slow status source must never be polled concurrently even though
	// several poll intervals elapse while it is outstanding.
	var inFlight int32
	var maxInFlight int32
	var calls int32
	status := func(ctx context.Context) (models.SessionState, error) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			prev := atomic.LoadInt32(&maxInFlight)
			if cur <= prev || atomic.CompareAndSwapInt32(&maxInFlight, prev, cur) {
				break
			}
		}
		time.Sleep(35 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
		if atomic.AddInt32(&calls, 1) >= 2 {
			return models.SessionPaid, nil
		}
		return models.SessionCreated, nil
	}

	cfg := testWatcherConfig()
	cfg.SuccessGrace = 0
	w := NewSessionWatcher("order-3", models.SessionCreated, time.Now().Add(time.Minute), status, cfg)
	w.Start(context.Background())
	waitDone(t, w, time.Second)

	if got := atomic.LoadInt32(&maxInFlight); got != 1 {
		t.Errorf("max concurrent polls = %d; want 1", got)
	}
}

func TestWatcherLatePaidOverridesLocalExpiry(t *testing.T) {
	// The deadline passes while a poll is outstanding. The late paid
	// response still wins over the locally-declared expiry.
	status := func(ctx context.Context) (models.SessionState, error) {
		time.Sleep(60 * time.Millisecond)
		return models.SessionPaid, nil
	}

	var mu sync.Mutex
	var final models.SessionState
	cfg := testWatcherConfig()
	cfg.SuccessGrace = 0
	w := NewSessionWatcher("order-4", models.SessionCreated, time.Now().Add(25*time.Millisecond), status, cfg)
	w.OnDone(func(s models.SessionState) {
		mu.Lock()
		final = s
		mu.Unlock()
	})
	w.Start(context.Background())
	waitDone(t, w, time.Second)

	mu.Lock()
	defer mu.Unlock()
	if final != models.SessionPaid {
		t.Errorf("final state = %q; want %q", final, models.SessionPaid)
	}
}

func TestWatcherSwallowsPollErrors(t *testing.T) {
	var calls int32
	status := func(ctx context.Context) (models.SessionState, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return "", context.DeadlineExceeded
		}
		return models.SessionPaid, nil
	}

	cfg := testWatcherConfig()
	cfg.SuccessGrace = 0
	w := NewSessionWatcher("order-5", models.SessionCreated, time.Now().Add(time.Minute), status, cfg)
	w.Start(context.Background())
	waitDone(t, w, time.Second)

	if st, _, _ := w.Snapshot(); st != models.SessionPaid {
		t.Errorf("state after recovered polls = %q; want %q", st, models.SessionPaid)
	}
}

func TestWatcherStop(t *testing.T) {
	done := make(chan struct{})
	status := func(ctx context.Context) (models.SessionState, error) {
		return models.SessionCreated, nil
	}

	w := NewSessionWatcher("order-6", models.SessionCreated, time.Now().Add(time.Minute), status, testWatcherConfig())
	w.OnDone(func(models.SessionState) { close(done) })
	w.Start(context.Background())

	w.Stop()
	w.Stop() // idempotent
	waitDone(t, w, time.Second)

	select {
	case <-done:
		t.Error("OnDone fired for a stopped watcher")
	default:
	}
}

func TestWatcherContextCancel(t *testing.T) {
	status := func(ctx context.Context) (models.SessionState, error) {
		return models.SessionCreated, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	w := NewSessionWatcher("order-7", models.SessionCreated, time.Now().Add(time.Minute), status, testWatcherConfig())
	w.Start(ctx)

	cancel()
	waitDone(t, w, time.Second)
}

func TestWatcherSuccessGraceDelaysCompletion(t *testing.T) {
	status := func(ctx context.Context) (models.SessionState, error) {
		return models.SessionPaid, nil
	}

	cfg := testWatcherConfig()
	cfg.SuccessGrace = 50 * time.Millisecond

	transitioned := make(chan time.Time, 1)
	completed := make(chan time.Time, 1)

	w := NewSessionWatcher("order-8", models.SessionCreated, time.Now().Add(time.Minute), status, cfg)
	w.OnTransition(func(models.SessionState) { transitioned <- time.Now() })
	w.OnDone(func(models.SessionState) { completed <- time.Now() })
	w.Start(context.Background())
	waitDone(t, w, time.Second)

	tAt := <-transitioned
	dAt := <-completed
	if gap := dAt.Sub(tAt); gap < cfg.SuccessGrace {
		t.Errorf("completion fired %v after transition; want at least %v", gap, cfg.SuccessGrace)
	}
}
