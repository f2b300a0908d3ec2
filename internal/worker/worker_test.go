package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/saxenaaman628/vote-pipeline/internal/errs"
	"github.com/saxenaaman628/vote-pipeline/internal/logging"
	"github.com/saxenaaman628/vote-pipeline/internal/models"
	"github.com/saxenaaman628/vote-pipeline/internal/queue"
)

type fakeVotes struct {
	mu      sync.Mutex
	records []models.VoteRecord
	fail    error
}

func (f *fakeVotes) InsertVote(_ context.Context, event models.VoteEvent, at time.Time) (models.VoteRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return models.VoteRecord{}, f.fail
	}
	rec := models.VoteRecord{
		ID:            time.Now().String(),
		UserID:        event.UserID,
		ParticipantID: event.ParticipantID,
		PollID:        event.PollID,
		CreatedAt:     at,
	}
	f.records = append(f.records, rec)
	return rec, nil
}

func (f *fakeVotes) setFail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = err
}

func (f *fakeVotes) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

const (
	pollID       = "5f0c6a52-8d7e-4c1b-9a35-0f6f3c2d1e01"
	participantA = "a1e2c3d4-1111-4abc-8def-000000000001"
	participantB = "a1e2c3d4-2222-4abc-8def-000000000002"

	validBody = `{"userId":"voter-1","participantId":"` + participantA + `","pollId":"` + pollID + `","timestamp":"2026-03-01T12:00:00.000Z","ip":"10.0.0.1","userAgent":"test"}`
)

func newTestWorker(q queue.MessageQueue, votes VoteWriter) *Worker {
	return New("test", q, votes, Config{
		BatchSize:         10,
		VisibilityTimeout: 30 * time.Second,
		ErrorBackoff:      time.Millisecond,
	}, logging.Discard())
}

func TestWorker_RunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("persists then deletes", func(t *testing.T) {
		q := queue.NewMemoryQueue()
		votes := &fakeVotes{}
		_, _ = q.Send(ctx, validBody)

		res, err := newTestWorker(q, votes).RunOnce(ctx)
		if err != nil {
			t.Fatalf("run once: %v", err)
		}
		if res.Persisted != 1 || res.Received != 1 {
			t.Fatalf("unexpected result %+v", res)
		}
		if q.Len() != 0 {
			t.Errorf("expected message deleted, %d left", q.Len())
		}
		want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		if got := votes.records[0].CreatedAt; !got.Equal(want) {
			t.Errorf("expected createdAt from message timestamp %s, got %s", want, got)
		}
	})

	t.Run("malformed messages are discarded without stopping the batch", func(t *testing.T) {
		q := queue.NewMemoryQueue()
		votes := &fakeVotes{}
		for _, body := range []string{
			"not json",
			`{"participantId":"` + participantA + `","pollId":"` + pollID + `"}`,
			validBody,
			"",
			`{"userId":"voter-2","participantId":"","pollId":"` + pollID + `"}`,
			`{"userId":12345,"participantId":"` + participantB + `","pollId":"` + pollID + `"}`,
			`{"userId":"voter-3","participantId":"not-a-uuid","pollId":"also-not"}`,
		} {
			_, _ = q.Send(ctx, body)
		}

		res, err := newTestWorker(q, votes).RunOnce(ctx)
		if err != nil {
			t.Fatalf("run once: %v", err)
		}
		if res.Discarded != 5 || res.Persisted != 2 || res.Failed != 0 {
			t.Fatalf("unexpected result %+v", res)
		}
		if votes.count() != 2 {
			t.Fatalf("expected 2 records, got %d", votes.count())
		}
		if votes.records[1].UserID != "12345" {
			t.Errorf("expected numeric userId to decode as string, got %q", votes.records[1].UserID)
		}
		if q.Len() != 0 {
			t.Errorf("expected every message deleted, %d left", q.Len())
		}
	})

	t.Run("missing timestamp falls back to arrival time", func(t *testing.T) {
		q := queue.NewMemoryQueue()
		arrival := time.Date(2026, 5, 5, 5, 5, 5, 0, time.UTC)
		q.SetClock(func() time.Time { return arrival })
		votes := &fakeVotes{}
		_, _ = q.Send(ctx, `{"userId":"u","participantId":"`+participantA+`","pollId":"`+pollID+`"}`)

		if _, err := newTestWorker(q, votes).RunOnce(ctx); err != nil {
			t.Fatalf("run once: %v", err)
		}
		if got := votes.records[0].CreatedAt; !got.Equal(arrival) {
			t.Errorf("expected arrival time %s, got %s", arrival, got)
		}
	})

	t.Run("store failure leaves the message for redelivery", func(t *testing.T) {
		now := time.Unix(1_700_000_000, 0)
		q := queue.NewMemoryQueue()
		q.SetClock(func() time.Time { return now })
		votes := &fakeVotes{}
		votes.setFail(errors.New("connection refused"))
		_, _ = q.Send(ctx, validBody)
		w := newTestWorker(q, votes)

		res, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("run once: %v", err)
		}
		if res.Failed != 1 || q.Len() != 1 {
			t.Fatalf("expected failure with message kept, got %+v and %d left", res, q.Len())
		}

		res, _ = w.RunOnce(ctx)
		if res.Received != 0 {
			t.Fatalf("message should be invisible before the timeout, got %+v", res)
		}

		votes.setFail(nil)
		now = now.Add(31 * time.Second)
		res, _ = w.RunOnce(ctx)
		if res.Persisted != 1 || q.Len() != 0 {
			t.Fatalf("expected redelivered message to persist, got %+v and %d left", res, q.Len())
		}
	})

	t.Run("store-rejected values are discarded instead of redelivered", func(t *testing.T) {
		now := time.Unix(1_700_000_000, 0)
		q := queue.NewMemoryQueue()
		q.SetClock(func() time.Time { return now })
		votes := &fakeVotes{}
		votes.setFail(fmt.Errorf("%w: invalid input syntax for type uuid", errs.ErrMalformedMessage))
		_, _ = q.Send(ctx, validBody)
		w := newTestWorker(q, votes)

		res, err := w.RunOnce(ctx)
		if err != nil {
			t.Fatalf("run once: %v", err)
		}
		if res.Discarded != 1 || res.Failed != 0 {
			t.Fatalf("expected the message to be discarded, got %+v", res)
		}
		for i := 0; i < 3; i++ {
			now = now.Add(31 * time.Second)
			if res, _ := w.RunOnce(ctx); res.Received != 0 {
				t.Fatalf("message came back after %d visibility timeouts: %+v", i+1, res)
			}
		}
		if q.Len() != 0 {
			t.Errorf("expected queue empty, %d left", q.Len())
		}
	})

	t.Run("redelivered message produces a duplicate record", func(t *testing.T) {
		q := queue.NewMemoryQueue()
		votes := &fakeVotes{}
		_, _ = q.Send(ctx, validBody)
		_, _ = q.Send(ctx, validBody)

		res, err := newTestWorker(q, votes).RunOnce(ctx)
		if err != nil {
			t.Fatalf("run once: %v", err)
		}
		if res.Persisted != 2 || votes.count() != 2 {
			t.Fatalf("expected two records for the same event, got %+v / %d", res, votes.count())
		}
	})

	t.Run("state returns to idle", func(t *testing.T) {
		w := newTestWorker(queue.NewMemoryQueue(), &fakeVotes{})
		if _, err := w.RunOnce(ctx); err != nil {
			t.Fatalf("run once: %v", err)
		}
		if w.State() != StateIdle {
			t.Errorf("expected idle, got %s", w.State())
		}
	})
}

type flakyQueue struct {
	*queue.MemoryQueue
	mu       sync.Mutex
	failures int
	calls    int
}

func (f *flakyQueue) Receive(ctx context.Context, opts queue.ReceiveOptions) ([]queue.Message, error) {
	f.mu.Lock()
	f.calls++
	fail := f.calls <= f.failures
	f.mu.Unlock()
	if fail {
		return nil, errors.New("receive timeout")
	}
	return f.MemoryQueue.Receive(ctx, opts)
}

func TestWorker_RunSurvivesErrorsAndStopsOnCancel(t *testing.T) {
	q := &flakyQueue{MemoryQueue: queue.NewMemoryQueue(), failures: 3}
	votes := &fakeVotes{}
	_, _ = q.Send(context.Background(), validBody)
	w := New("test", q, votes, Config{
		BatchSize:    10,
		WaitTime:     10 * time.Millisecond,
		ErrorBackoff: time.Millisecond,
	}, logging.Discard())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for votes.count() == 0 {
		select {
		case <-deadline:
			cancel()
			t.Fatal("worker did not persist the message after receive errors")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("expected clean stop, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop after cancellation")
	}
	if w.State() != StateStopped {
		t.Errorf("expected stopped, got %s", w.State())
	}
}

func TestDecodeEvent(t *testing.T) {
	event, err := decodeEvent(`{"userId":" u ","participantId":"` + participantA + `","pollId":"` + pollID + `","recaptchaScore":0.7}`)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if event.UserID != "u" {
		t.Errorf("expected trimmed userId, got %q", event.UserID)
	}
	if event.RecaptchaScore == nil || *event.RecaptchaScore != 0.7 {
		t.Errorf("expected recaptchaScore 0.7, got %v", event.RecaptchaScore)
	}
	if _, err := decodeEvent(`[1,2,3]`); err == nil {
		t.Error("expected array body to be rejected")
	}

	for _, body := range []string{
		`{"userId":"u","participantId":"not-a-uuid","pollId":"also-not"}`,
		`{"userId":"u","participantId":"` + participantA + `","pollId":"poll-1"}`,
		`{"userId":"u","participantId":"part-1","pollId":"` + pollID + `"}`,
	} {
		if _, err := decodeEvent(body); !errors.Is(err, errs.ErrMalformedMessage) {
			t.Errorf("expected ErrMalformedMessage for %s, got %v", body, err)
		}
	}
}
