package queue

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
)

var ErrUnknownReceipt = errors.New("unknown receipt handle")

// MemoryQueue is an in-process MessageQueue with SQS-like visibility
// timeouts. It backs tests and single-process local runs.
type MemoryQueue struct {
	mu       sync.Mutex
	messages []*memoryMessage
	notify   chan struct{}
	now      func() time.Time
}

type memoryMessage struct {
	id           string
	body         string
	receipt      string
	invisibleTil time.Time
	receives     int
}

func NewMemoryQueue() *MemoryQueue {
	return &MemoryQueue{notify: make(chan struct{}, 1), now: time.Now}
}

// SetClock overrides the clock used for visibility timeouts.
func (q *MemoryQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

func (q *MemoryQueue) EnsureQueue(context.Context) error {
	return nil
}

func (q *MemoryQueue) Send(_ context.Context, body string) (string, error) {
	q.mu.Lock()
	id := uuid.NewString()
	q.messages = append(q.messages, &memoryMessage{id: id, body: body})
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
	return id, nil
}

// Receive returns up to MaxMessages visible messages, waiting up to WaitTime
// for at least one to arrive.
func (q *MemoryQueue) Receive(ctx context.Context, opts ReceiveOptions) ([]Message, error) {
	var deadline <-chan time.Time
	if opts.WaitTime > 0 {
		timer := time.NewTimer(opts.WaitTime)
		defer timer.Stop()
		deadline = timer.C
	}
	for {
		if batch := q.take(opts); len(batch) > 0 || deadline == nil {
			return batch, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline:
			return q.take(opts), nil
		case <-q.notify:
		}
	}
}

func (q *MemoryQueue) take(opts ReceiveOptions) []Message {
	limit := opts.MaxMessages
	if limit <= 0 {
		limit = 1
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var batch []Message
	for _, m := range q.messages {
		if len(batch) == limit {
			break
		}
		if now.Before(m.invisibleTil) {
			continue
		}
		m.receipt = uuid.NewString()
		m.invisibleTil = now.Add(opts.VisibilityTimeout)
		m.receives++
		batch = append(batch, Message{ID: m.id, Body: m.body, ReceiptHandle: m.receipt, ReceivedAt: now})
	}
	return batch
}

func (q *MemoryQueue) Delete(_ context.Context, receiptHandle string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, m := range q.messages {
		if m.receipt != "" && m.receipt == receiptHandle {
			q.messages = append(q.messages[:i], q.messages[i+1:]...)
			return nil
		}
	}
	return ErrUnknownReceipt
}

// Len reports messages not yet deleted, visible or not.
func (q *MemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.messages)
}

// Bodies returns the bodies of all undeleted messages in send order.
func (q *MemoryQueue) Bodies() []string {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]string, len(q.messages))
	for i, m := range q.messages {
		out[i] = m.body
	}
	return out
}
