package stream

import (
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestLifecycle(t *testing.T, cfg LifecycleConfig) (*Lifecycle, *httptest.ResponseRecorder) {
	t.Helper()
	rec := httptest.NewRecorder()
	w, err := NewWriter(rec)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	cfg.Writer = w
	return NewLifecycle(cfg), rec
}

func TestLifecycleNormalCompletion(t *testing.T) {
	lc, rec := newTestLifecycle(t, LifecycleConfig{
		InactivityTimeout: time.Second,
		KeepaliveInterval: time.Hour,
	})

	lc.Start()
	if lc.State() != StateStreaming {
		t.Fatalf("state after Start = %v", lc.State())
	}
	if err := lc.Send(map[string]string{"type": "chunk", "content": "hi"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	lc.Done()

	if lc.State() != StateDone {
		t.Errorf("state = %v, want done", lc.State())
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"content":"hi"`) {
		t.Errorf("chunk missing:\n%s", body)
	}
	if !strings.HasSuffix(body, "data: [DONE]\n\n") {
		t.Errorf("terminal marker missing:\n%s", body)
	}
}

func TestLifecycleSendBeforeStartFails(t *testing.T) {
	lc, _ := newTestLifecycle(t, LifecycleConfig{})
	if err := lc.Send("x"); !errors.Is(err, ErrTerminated) {
		t.Errorf("Send before Start = %v, want ErrTerminated", err)
	}
}

func TestLifecycleInactivityTimeout(t *testing.T) {
	timedOut := make(chan struct{})
	lc, rec := newTestLifecycle(t, LifecycleConfig{
		InactivityTimeout: 30 * time.Millisecond,
		KeepaliveInterval: time.Hour,
		OnTimeout:         func() { close(timedOut) },
	})

	lc.Start()
	lc.BeginActivity()
	select {
	case <-timedOut:
	case <-time.After(2 * time.Second):
		t.Fatal("inactivity timeout never fired")
	}

	if lc.State() != StateError {
		t.Errorf("state = %v, want error", lc.State())
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"type":"error"`) {
		t.Errorf("error event missing:\n%s", body)
	}
	if !strings.Contains(body, "data: [DONE]\n\n") {
		t.Errorf("terminal marker missing after timeout:\n%s", body)
	}
	if err := lc.Send("x"); !errors.Is(err, ErrTerminated) {
		t.Errorf("Send after timeout = %v, want ErrTerminated", err)
	}
}

func TestLifecycleTimerUnarmedUntilBeginActivity(t *testing.T) {
	timedOut := make(chan struct{})
	lc, rec := newTestLifecycle(t, LifecycleConfig{
		InactivityTimeout: 30 * time.Millisecond,
		KeepaliveInterval: time.Hour,
		OnTimeout:         func() { close(timedOut) },
	})

	// Started but not yet admitted: time spent waiting behind a
	// predecessor must not count against the inactivity timeout.
	lc.Start()
	time.Sleep(100 * time.Millisecond)
	if lc.State() != StateStreaming {
		t.Fatalf("state while waiting = %v, want streaming", lc.State())
	}
	if strings.Contains(rec.Body.String(), `"type":"error"`) {
		t.Fatalf("timed out before admission:\n%s", rec.Body.String())
	}

	lc.BeginActivity()
	select {
	case <-timedOut:
	case <-time.After(2 * time.Second):
		t.Fatal("inactivity timeout never fired after admission")
	}
	if lc.State() != StateError {
		t.Errorf("state = %v, want error", lc.State())
	}
}

func TestLifecycleSendResetsInactivity(t *testing.T) {
	lc, _ := newTestLifecycle(t, LifecycleConfig{
		InactivityTimeout: 80 * time.Millisecond,
		KeepaliveInterval: time.Hour,
	})

	lc.Start()
	// Keep sending below the timeout for longer than the timeout itself.
	for i := 0; i < 5; i++ {
		time.Sleep(30 * time.Millisecond)
		if err := lc.Send(map[string]string{"type": "chunk"}); err != nil {
			t.Fatalf("Send %d: %v (timer fired despite activity?)", i, err)
		}
	}
	lc.Done()
	if lc.State() != StateDone {
		t.Errorf("state = %v, want done", lc.State())
	}
}

func TestLifecycleKeepalives(t *testing.T) {
	lc, rec := newTestLifecycle(t, LifecycleConfig{
		InactivityTimeout: time.Second,
		KeepaliveInterval: 20 * time.Millisecond,
	})

	lc.Start()
	time.Sleep(70 * time.Millisecond)
	lc.Done()

	if n := strings.Count(rec.Body.String(), ": keepalive "); n < 2 {
		t.Errorf("expected at least 2 keepalives, got %d", n)
	}
	// Nothing may follow the terminal marker, keepalives included.
	if !strings.HasSuffix(rec.Body.String(), "data: [DONE]\n\n") {
		t.Errorf("output continued past the terminal marker:\n%s", rec.Body.String())
	}
}

func TestLifecycleExactlyOneTerminal(t *testing.T) {
	lc, rec := newTestLifecycle(t, LifecycleConfig{
		InactivityTimeout: time.Second,
		KeepaliveInterval: time.Hour,
	})
	lc.Start()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() { defer wg.Done(); lc.Done() }()
		wg.Add(1)
		go func() { defer wg.Done(); lc.Fail("boom") }()
	}
	wg.Wait()

	if n := strings.Count(rec.Body.String(), "[DONE]"); n != 1 {
		t.Errorf("terminal marker written %d times", n)
	}
	if !lc.State().Terminal() {
		t.Errorf("state = %v, want terminal", lc.State())
	}
}

func TestLifecycleAbortIsSilent(t *testing.T) {
	lc, rec := newTestLifecycle(t, LifecycleConfig{
		InactivityTimeout: time.Second,
		KeepaliveInterval: time.Hour,
	})
	lc.Start()
	if err := lc.Send(map[string]string{"type": "chunk"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	before := rec.Body.Len()

	lc.Abort()

	if lc.State() != StateAborted {
		t.Errorf("state = %v, want aborted", lc.State())
	}
	if rec.Body.Len() != before {
		t.Error("abort must not write to the wire")
	}
	// A late timer-driven failure after abort must stay a no-op.
	lc.Fail("late")
	if rec.Body.Len() != before {
		t.Error("terminal state changed output after abort")
	}
}
