// Package queue abstracts the at-least-once work queue that carries vote
// events from the API to the worker.
package queue

import (
	"context"
	"time"
)

type Message struct {
	ID            string
	Body          string
	ReceiptHandle string
	ReceivedAt    time.Time
}

type ReceiveOptions struct {
	MaxMessages       int
	WaitTime          time.Duration
	VisibilityTimeout time.Duration
}

// MessageQueue is what the publisher and worker need from a broker.
// A received message stays invisible to other receivers until its visibility
// timeout passes; deleting it with its receipt handle acknowledges it.
type MessageQueue interface {
	EnsureQueue(ctx context.Context) error
	Send(ctx context.Context, body string) (string, error)
	Receive(ctx context.Context, opts ReceiveOptions) ([]Message, error)
	Delete(ctx context.Context, receiptHandle string) error
}
