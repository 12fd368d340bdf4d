// Package queue serializes work per conversation. At most one task per
// conversation id runs at a time, in enqueue order; tasks for different
// conversations run concurrently and independently.
package queue

import (
	"context"
	"sync"

	"github.com/wcallahan/searchai/internal/log"
)

// settled is a pre-closed channel used as the tail for a conversation with
// no task in flight.
var settled = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

type entry struct {
	// tail settles when the most recently enqueued task finishes, whether
	// it succeeded, failed, or panicked.
	tail    chan struct{}
	pending int
}

// Queue is the per-conversation send queue. The zero value is not usable;
// call New.
type Queue struct {
	mu            sync.Mutex
	conversations map[string]*entry
	logger        log.Logger
}

// New creates an empty queue.
func New(logger log.Logger) *Queue {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Queue{
		conversations: make(map[string]*entry),
		logger:        logger,
	}
}

// Enqueue runs task after every previously enqueued task for the same
// conversation has settled, and returns task's result. The chain advances on
// success and failure alike, so one failed send never wedges a conversation.
// If ctx ends while waiting for a predecessor, the task never starts and the
// context error is returned; the slot still settles so successors proceed.
//
// The conversation's bookkeeping entry is created on first use and removed
// when its pending count returns to zero.
func (q *Queue) Enqueue(ctx context.Context, conversationID string, task func(context.Context) error) error {
	q.mu.Lock()
	e, ok := q.conversations[conversationID]
	if !ok {
		e = &entry{tail: settled}
		q.conversations[conversationID] = e
	}
	predecessor := e.tail
	done := make(chan struct{})
	e.tail = done
	e.pending++
	q.mu.Unlock()

	defer func() {
		close(done)
		q.mu.Lock()
		e.pending--
		if e.pending == 0 {
			delete(q.conversations, conversationID)
		}
		q.mu.Unlock()
	}()

	select {
	case <-predecessor:
	case <-ctx.Done():
		q.logger.Debug("queued task abandoned before start",
			"conversation_id", conversationID, "error", ctx.Err())
		return ctx.Err()
	}

	return task(ctx)
}

// Pending returns the number of unfinished tasks for a conversation,
// including the running one. Zero means no entry exists.
func (q *Queue) Pending(conversationID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if e, ok := q.conversations[conversationID]; ok {
		return e.pending
	}
	return 0
}

// Conversations returns how many conversations currently have tasks pending.
func (q *Queue) Conversations() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.conversations)
}
