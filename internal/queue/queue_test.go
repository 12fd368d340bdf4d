package queue

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEnqueueSerializesSameConversation(t *testing.T) {
	q := New(nil)

	var active, maxActive atomic.Int64
	var order []int
	var orderMu sync.Mutex

	task := func(n int) func(context.Context) error {
		return func(context.Context) error {
			if cur := active.Add(1); cur > maxActive.Load() {
				maxActive.Store(cur)
			}
			time.Sleep(10 * time.Millisecond)
			orderMu.Lock()
			order = append(order, n)
			orderMu.Unlock()
			active.Add(-1)
			return nil
		}
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		n := i
		go func() {
			defer wg.Done()
			// Stagger starts so enqueue order is deterministic.
			time.Sleep(time.Duration(n) * 2 * time.Millisecond)
			_ = q.Enqueue(context.Background(), "conv-1", task(n))
		}()
	}
	wg.Wait()

	if got := maxActive.Load(); got != 1 {
		t.Errorf("active windows overlapped: max concurrent = %d", got)
	}
	for i, n := range order {
		if n != i {
			t.Errorf("execution order = %v, want ascending", order)
			break
		}
	}
}

func TestEnqueueConcurrentAcrossConversations(t *testing.T) {
	q := New(nil)

	// Both tasks block until the other has started; this only completes if
	// different conversations actually run concurrently.
	aStarted := make(chan struct{})
	bStarted := make(chan struct{})

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_ = q.Enqueue(context.Background(), "conv-a", func(context.Context) error {
			close(aStarted)
			select {
			case <-bStarted:
				return nil
			case <-time.After(2 * time.Second):
				t.Error("conv-b never started while conv-a was running")
				return nil
			}
		})
	}()
	go func() {
		defer wg.Done()
		_ = q.Enqueue(context.Background(), "conv-b", func(context.Context) error {
			close(bStarted)
			select {
			case <-aStarted:
				return nil
			case <-time.After(2 * time.Second):
				t.Error("conv-a never started while conv-b was running")
				return nil
			}
		})
	}()
	wg.Wait()
}

func TestEnqueueAdvancesPastFailure(t *testing.T) {
	q := New(nil)

	boom := errors.New("boom")
	if err := q.Enqueue(context.Background(), "conv", func(context.Context) error { return boom }); !errors.Is(err, boom) {
		t.Fatalf("expected task error back, got %v", err)
	}

	ran := false
	if err := q.Enqueue(context.Background(), "conv", func(context.Context) error {
		ran = true
		return nil
	}); err != nil {
		t.Fatalf("Enqueue after failure: %v", err)
	}
	if !ran {
		t.Error("a failed task must not wedge the conversation")
	}
}

func TestEnqueueCleansUpBookkeeping(t *testing.T) {
	q := New(nil)

	var wg sync.WaitGroup
	for i := 0; i < 3; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = q.Enqueue(context.Background(), "conv", func(context.Context) error {
				time.Sleep(5 * time.Millisecond)
				return nil
			})
		}()
	}
	wg.Wait()

	if got := q.Conversations(); got != 0 {
		t.Errorf("bookkeeping entries remain after settlement: %d", got)
	}
	if got := q.Pending("conv"); got != 0 {
		t.Errorf("pending = %d after settlement", got)
	}
}

func TestEnqueueContextCanceledWhileWaiting(t *testing.T) {
	q := New(nil)

	release := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = q.Enqueue(context.Background(), "conv", func(context.Context) error {
			<-release
			return nil
		})
	}()

	// Give the first task time to occupy the conversation.
	time.Sleep(10 * time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := q.Enqueue(ctx, "conv", func(context.Context) error {
		t.Error("canceled task must never start")
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	// The abandoned slot must still settle so successors run.
	close(release)
	wg.Wait()
	ran := false
	if err := q.Enqueue(context.Background(), "conv", func(context.Context) error {
		ran = true
		return nil
	}); err != nil || !ran {
		t.Errorf("successor after abandoned slot: ran=%v err=%v", ran, err)
	}

	if got := q.Conversations(); got != 0 {
		t.Errorf("bookkeeping entries remain: %d", got)
	}
}
