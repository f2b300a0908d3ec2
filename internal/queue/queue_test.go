package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/saxenaaman628/vote-pipeline/internal/logging"
	"github.com/saxenaaman628/vote-pipeline/internal/models"
)

func TestMemoryQueue_VisibilityTimeout(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	q := NewMemoryQueue()
	q.SetClock(func() time.Time { return now })

	_, _ = q.Send(ctx, "one")
	_, _ = q.Send(ctx, "two")
	opts := ReceiveOptions{MaxMessages: 10, VisibilityTimeout: 30 * time.Second}

	first, err := q.Receive(ctx, opts)
	if err != nil {
		t.Fatalf("receive: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(first))
	}

	t.Run("in-flight messages are hidden", func(t *testing.T) {
		again, _ := q.Receive(ctx, opts)
		if len(again) != 0 {
			t.Fatalf("expected no visible messages, got %d", len(again))
		}
	})

	t.Run("deleted messages are gone and the rest reappear", func(t *testing.T) {
		if err := q.Delete(ctx, first[0].ReceiptHandle); err != nil {
			t.Fatalf("delete: %v", err)
		}
		now = now.Add(31 * time.Second)
		again, _ := q.Receive(ctx, opts)
		if len(again) != 1 || again[0].Body != "two" {
			t.Fatalf("expected redelivery of \"two\", got %+v", again)
		}
		if err := q.Delete(ctx, first[1].ReceiptHandle); !errors.Is(err, ErrUnknownReceipt) {
			t.Fatalf("expected stale receipt to be rejected, got %v", err)
		}
	})
}

func TestMemoryQueue_LongPollWakesOnSend(t *testing.T) {
	q := NewMemoryQueue()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(1)
	var got []Message
	go func() {
		defer wg.Done()
		got, _ = q.Receive(ctx, ReceiveOptions{MaxMessages: 1, WaitTime: time.Second, VisibilityTimeout: time.Second})
	}()
	time.Sleep(20 * time.Millisecond)
	_, _ = q.Send(ctx, "late")
	wg.Wait()
	if len(got) != 1 || got[0].Body != "late" {
		t.Fatalf("expected the late message, got %+v", got)
	}
}

func TestPublisher_Publish(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue()
	p := NewPublisher(q, logging.Discard())
	score := 0.9

	event := models.VoteEvent{
		UserID:         "voter-1",
		ParticipantID:  "part-1",
		PollID:         "poll-1",
		Timestamp:      "2026-03-01T12:00:00Z",
		IP:             "10.0.0.1",
		UserAgent:      "test",
		RecaptchaScore: &score,
	}
	if err := p.Publish(ctx, event); err != nil {
		t.Fatalf("publish: %v", err)
	}
	bodies := q.Bodies()
	if len(bodies) != 1 {
		t.Fatalf("expected 1 message, got %d", len(bodies))
	}
	var decoded map[string]any
	if err := json.Unmarshal([]byte(bodies[0]), &decoded); err != nil {
		t.Fatalf("body is not json: %v", err)
	}
	for _, field := range []string{"userId", "participantId", "pollId", "timestamp", "ip", "userAgent", "recaptchaScore"} {
		if _, ok := decoded[field]; !ok {
			t.Errorf("expected field %q in %s", field, bodies[0])
		}
	}
}

type fakeSQS struct {
	mu          sync.Mutex
	exists      bool
	getCalls    int
	createCalls int
	sent        []string
	sendErr     error
}

func (f *fakeSQS) GetQueueUrl(_ context.Context, in *sqs.GetQueueUrlInput, _ ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	if !f.exists {
		return nil, &types.QueueDoesNotExist{Message: aws.String("missing")}
	}
	return &sqs.GetQueueUrlOutput{QueueUrl: aws.String("http://sqs.local/000000000000/" + aws.ToString(in.QueueName))}, nil
}

func (f *fakeSQS) CreateQueue(_ context.Context, in *sqs.CreateQueueInput, _ ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.exists = true
	return &sqs.CreateQueueOutput{QueueUrl: aws.String("http://sqs.local/000000000000/" + aws.ToString(in.QueueName))}, nil
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sent = append(f.sent, aws.ToString(in.MessageBody))
	return &sqs.SendMessageOutput{MessageId: aws.String("m-1")}, nil
}

func (f *fakeSQS) ReceiveMessage(context.Context, *sqs.ReceiveMessageInput, ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error) {
	return &sqs.ReceiveMessageOutput{Messages: []types.Message{{
		MessageId:     aws.String("m-1"),
		Body:          aws.String(`{"userId":"u"}`),
		ReceiptHandle: aws.String("r-1"),
	}}}, nil
}

func (f *fakeSQS) DeleteMessage(context.Context, *sqs.DeleteMessageInput, ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error) {
	return &sqs.DeleteMessageOutput{}, nil
}

func TestSQSQueue_EnsureQueueCreatesOnce(t *testing.T) {
	ctx := context.Background()
	fake := &fakeSQS{}
	q := NewSQSQueue(fake, "votes-queue", "")

	for i := 0; i < 3; i++ {
		if _, err := q.Send(ctx, "body"); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}
	if fake.createCalls != 1 {
		t.Errorf("expected one CreateQueue call, got %d", fake.createCalls)
	}
	if fake.getCalls != 1 {
		t.Errorf("expected the url to be cached after the first lookup, got %d lookups", fake.getCalls)
	}
	if len(fake.sent) != 3 {
		t.Errorf("expected 3 sends, got %d", len(fake.sent))
	}

	msgs, err := q.Receive(ctx, ReceiveOptions{MaxMessages: 10, WaitTime: 20 * time.Second})
	if err != nil || len(msgs) != 1 || msgs[0].ReceiptHandle != "r-1" {
		t.Fatalf("unexpected receive result %+v, %v", msgs, err)
	}
}

func TestSQSQueue_SendErrorIsReturned(t *testing.T) {
	fake := &fakeSQS{exists: true, sendErr: errors.New("broker down")}
	q := NewSQSQueue(fake, "votes-queue", "http://sqs.local/000000000000/votes-queue")
	if _, err := q.Send(context.Background(), "body"); err == nil {
		t.Fatal("expected send error")
	}
	if fake.getCalls != 0 {
		t.Errorf("configured url should skip lookup, got %d lookups", fake.getCalls)
	}
}
