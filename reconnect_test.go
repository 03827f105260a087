package output

import (
	"context"
	"sync"
	"testing"
	"time"
)

// TestReconnectDelaysS5 checks the exact backoff delay sequence for a
// fixed retry_sec/exponent configuration.
func TestReconnectDelaysS5(t *testing.T) {
	r := NewReconnectController(ReconnectSettings{RetrySec: 2, Exponent: 1.5, MaxRetries: 3})

	want := []time.Duration{2000 * time.Millisecond, 3000 * time.Millisecond, 4500 * time.Millisecond}
	for n, w := range want {
		if got := r.NextDelay(n); got != w {
			t.Errorf("NextDelay(%d) = %v, want %v", n, got, w)
		}
	}
}

func TestReconnectDelayClampedTo15Minutes(t *testing.T) {
	r := NewReconnectController(ReconnectSettings{RetrySec: 600, Exponent: 10, MaxRetries: 10})
	if got := r.NextDelay(5); got != reconnectMaxDelay {
		t.Errorf("NextDelay(5) = %v, want the 15-minute clamp", got)
	}
}

// instantSleep fires immediately, letting the retry loop run to completion
// without real waiting.
func instantSleep(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func TestReconnectGivesUpAfterMaxRetries(t *testing.T) {
	r := NewReconnectController(ReconnectSettings{RetrySec: 1, Exponent: 1, MaxRetries: 3})
	r.sleep = instantSleep

	var mu sync.Mutex
	var retries []int
	gaveUp := make(chan struct{})

	r.Start(context.Background(),
		func(attempt int, timeoutSec int) {
			mu.Lock()
			retries = append(retries, attempt)
			mu.Unlock()
		},
		func() { close(gaveUp) },
	)

	select {
	case <-gaveUp:
	case <-time.After(2 * time.Second):
		t.Fatal("onGiveUp was never called")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(retries) != 3 {
		t.Fatalf("retries = %v, want 3 attempts before giving up", retries)
	}
	if r.Attempt() != 3 {
		t.Errorf("Attempt() = %d, want 3", r.Attempt())
	}
}

func TestReconnectCancelExitsSilently(t *testing.T) {
	r := NewReconnectController(ReconnectSettings{RetrySec: 1, Exponent: 1, MaxRetries: 5})

	r.sleep = func(d time.Duration) <-chan time.Time {
		return make(chan time.Time) // never fires; only ctx.Done() can unblock the select
	}

	var called bool
	r.Start(context.Background(),
		func(int, int) { called = true },
		func() { called = true },
	)

	r.Cancel()

	// Give the loop goroutine a moment to observe ctx.Done() and exit; its
	// select is racing ctx.Done() against a sleep channel that never fires.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		r.mu.Lock()
		running := r.running
		r.mu.Unlock()
		if !running {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	r.mu.Lock()
	running := r.running
	r.mu.Unlock()
	if running {
		t.Fatal("loop did not exit after Cancel")
	}
	if called {
		t.Fatal("onRetry/onGiveUp must not fire when cancelled before the sleep completes")
	}
}

func TestReconnectResetClearsAttempt(t *testing.T) {
	r := NewReconnectController(ReconnectSettings{RetrySec: 1, Exponent: 1, MaxRetries: 5})
	r.attempt = 3
	r.Reset()
	if r.Attempt() != 0 {
		t.Errorf("Attempt() after Reset = %d, want 0", r.Attempt())
	}
}
