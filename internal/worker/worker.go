// Package worker drains the vote queue into the durable vote store.
//
// Each loop moves Idle → Polling → Processing → Idle until its context is
// cancelled. Delivery is at-least-once: a message is deleted only after its
// VoteRecord is written, so a crash between the two produces a duplicate row.
// Malformed bodies are deleted without being written so they cannot loop.
package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/logger"
	"github.com/saxenaaman628/vote-pipeline/internal/errs"
	"github.com/saxenaaman628/vote-pipeline/internal/logging"
	"github.com/saxenaaman628/vote-pipeline/internal/models"
	"github.com/saxenaaman628/vote-pipeline/internal/queue"
)

type State int32

const (
	StateIdle State = iota
	StatePolling
	StateProcessing
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePolling:
		return "polling"
	case StateProcessing:
		return "processing"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// VoteWriter persists one vote event.
type VoteWriter interface {
	InsertVote(ctx context.Context, event models.VoteEvent, createdAt time.Time) (models.VoteRecord, error)
}

type Config struct {
	BatchSize         int
	WaitTime          time.Duration
	VisibilityTimeout time.Duration
	// PollInterval is the pause between batches.
	PollInterval time.Duration
	// ErrorBackoff is the pause after a failed receive.
	ErrorBackoff time.Duration
	// WriteTimeout bounds a single durable write or delete.
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.BatchSize <= 0 {
		c.BatchSize = 10
	}
	if c.WaitTime < 0 {
		c.WaitTime = 0
	}
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = 30 * time.Second
	}
	if c.ErrorBackoff <= 0 {
		c.ErrorBackoff = 5 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

// BatchResult counts what happened to one received batch.
type BatchResult struct {
	Received  int
	Persisted int
	Discarded int
	Failed    int
}

type Worker struct {
	name   string
	queue  queue.MessageQueue
	votes  VoteWriter
	cfg    Config
	logger *logger.Logger
	now    func() time.Time
	state  atomic.Int32
}

func New(name string, q queue.MessageQueue, votes VoteWriter, cfg Config, l *logger.Logger) *Worker {
	return &Worker{
		name:   name,
		queue:  q,
		votes:  votes,
		cfg:    cfg.withDefaults(),
		logger: logging.Resolve(l),
		now:    time.Now,
	}
}

func (w *Worker) State() State {
	return State(w.state.Load())
}

func (w *Worker) setState(s State) {
	w.state.Store(int32(s))
}

// Run loops until ctx is cancelled. Transient failures never end the loop.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Infof("event=vote_worker_started worker=%s batch_size=%d wait_time=%s visibility_timeout=%s",
		w.name, w.cfg.BatchSize, w.cfg.WaitTime, w.cfg.VisibilityTimeout)
	defer func() {
		w.setState(StateStopped)
		w.logger.Infof("event=vote_worker_stopped worker=%s", w.name)
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}
		_, err := w.RunOnce(ctx)
		pause := w.cfg.PollInterval
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Errorf("event=vote_worker_receive_failed worker=%s backoff=%s error=%v",
				w.name, w.cfg.ErrorBackoff, err)
			pause = w.cfg.ErrorBackoff
		}
		if !sleep(ctx, pause) {
			return nil
		}
	}
}

// RunOnce polls for one batch and processes it. The returned error is the
// receive error only; per-message failures are counted in the result.
func (w *Worker) RunOnce(ctx context.Context) (BatchResult, error) {
	w.setState(StatePolling)
	msgs, err := w.queue.Receive(ctx, queue.ReceiveOptions{
		MaxMessages:       w.cfg.BatchSize,
		WaitTime:          w.cfg.WaitTime,
		VisibilityTimeout: w.cfg.VisibilityTimeout,
	})
	if err != nil {
		w.setState(StateIdle)
		return BatchResult{}, err
	}

	result := BatchResult{Received: len(msgs)}
	if len(msgs) == 0 {
		w.setState(StateIdle)
		return result, nil
	}

	w.setState(StateProcessing)
	for _, msg := range msgs {
		switch err := w.handle(ctx, msg); {
		case err == nil:
			result.Persisted++
		case errors.Is(err, errs.ErrMalformedMessage):
			result.Discarded++
		default:
			result.Failed++
		}
	}
	w.setState(StateIdle)

	w.logger.Infof("event=vote_worker_batch_done worker=%s received=%d persisted=%d discarded=%d failed=%d",
		w.name, result.Received, result.Persisted, result.Discarded, result.Failed)
	return result, nil
}

// handle processes one message. A malformed body, or one the store rejects as
// malformed, is deleted and reported as ErrMalformedMessage. Any other error
// leaves the message for redelivery.
func (w *Worker) handle(ctx context.Context, msg queue.Message) error {
	if msg.ReceiptHandle == "" {
		w.logger.Warningf("event=vote_worker_message_without_receipt worker=%s message_id=%s", w.name, msg.ID)
		return errs.ErrMalformedMessage
	}

	event, err := decodeEvent(msg.Body)
	if err != nil {
		w.logger.Warningf("event=vote_worker_message_discarded worker=%s message_id=%s error=%v",
			w.name, msg.ID, err)
		if delErr := w.delete(ctx, msg); delErr != nil {
			return delErr
		}
		return err
	}

	arrived := msg.ReceivedAt
	if arrived.IsZero() {
		arrived = w.now()
	}

	writeCtx, cancel := context.WithTimeout(ctx, w.cfg.WriteTimeout)
	record, err := w.votes.InsertVote(writeCtx, event, createdAt(event, arrived))
	cancel()
	if errors.Is(err, errs.ErrMalformedMessage) {
		w.logger.Warningf("event=vote_worker_message_discarded worker=%s message_id=%s poll_id=%s error=%v",
			w.name, msg.ID, event.PollID, err)
		if delErr := w.delete(ctx, msg); delErr != nil {
			return delErr
		}
		return err
	}
	if err != nil {
		w.logger.Errorf("event=vote_worker_persist_failed worker=%s message_id=%s poll_id=%s error=%v",
			w.name, msg.ID, event.PollID, err)
		return err
	}

	if err := w.delete(ctx, msg); err != nil {
		return err
	}
	w.logger.Infof("event=vote_worker_vote_persisted worker=%s message_id=%s vote_id=%s user_id=%s participant_id=%s",
		w.name, msg.ID, record.ID, event.UserID, event.ParticipantID)
	return nil
}

func (w *Worker) delete(ctx context.Context, msg queue.Message) error {
	delCtx, cancel := context.WithTimeout(ctx, w.cfg.WriteTimeout)
	defer cancel()
	if err := w.queue.Delete(delCtx, msg.ReceiptHandle); err != nil {
		w.logger.Errorf("event=vote_worker_delete_failed worker=%s message_id=%s error=%v", w.name, msg.ID, err)
		return err
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
