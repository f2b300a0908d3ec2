package queue

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/saxenaaman628/vote-pipeline/config"
)

// SQSAPI is the slice of the SQS client used here.
type SQSAPI interface {
	GetQueueUrl(ctx context.Context, in *sqs.GetQueueUrlInput, optFns ...func(*sqs.Options)) (*sqs.GetQueueUrlOutput, error)
	CreateQueue(ctx context.Context, in *sqs.CreateQueueInput, optFns ...func(*sqs.Options)) (*sqs.CreateQueueOutput, error)
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
}

// SQSQueue talks to one named queue. The URL is resolved lazily and cached;
// a failed resolution is retried on the next call.
type SQSQueue struct {
	client SQSAPI
	name   string
	url    atomic.Pointer[string]
}

// NewSQSClient builds an SQS client from config. SQS_ENDPOINT points it at
// localstack or another compatible endpoint.
func NewSQSClient(ctx context.Context, cfg config.Config) (*sqs.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.AWSRegion),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AWSAccessKeyID, cfg.AWSSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
		if cfg.SQSEndpoint != "" {
			o.BaseEndpoint = aws.String(cfg.SQSEndpoint)
		}
	}), nil
}

func NewSQSQueue(client SQSAPI, name, url string) *SQSQueue {
	q := &SQSQueue{client: client, name: name}
	if url != "" {
		q.url.Store(&url)
	}
	return q
}

// EnsureQueue resolves the queue URL, creating the queue when it does not
// exist. CreateQueue is idempotent for identical attributes, so concurrent
// callers racing here are harmless.
func (q *SQSQueue) EnsureQueue(ctx context.Context) error {
	_, err := q.queueURL(ctx)
	return err
}

func (q *SQSQueue) queueURL(ctx context.Context) (string, error) {
	if u := q.url.Load(); u != nil {
		return *u, nil
	}

	out, err := q.client.GetQueueUrl(ctx, &sqs.GetQueueUrlInput{QueueName: aws.String(q.name)})
	if err == nil {
		url := aws.ToString(out.QueueUrl)
		q.url.Store(&url)
		return url, nil
	}
	var missing *types.QueueDoesNotExist
	if !errors.As(err, &missing) {
		return "", fmt.Errorf("get queue url %s: %w", q.name, err)
	}

	created, err := q.client.CreateQueue(ctx, &sqs.CreateQueueInput{
		QueueName: aws.String(q.name),
		Attributes: map[string]string{
			"DelaySeconds":           "0",
			"MessageRetentionPeriod": "86400",
		},
	})
	if err != nil {
		return "", fmt.Errorf("create queue %s: %w", q.name, err)
	}
	url := aws.ToString(created.QueueUrl)
	q.url.Store(&url)
	return url, nil
}

func (q *SQSQueue) Send(ctx context.Context, body string) (string, error) {
	url, err := q.queueURL(ctx)
	if err != nil {
		return "", err
	}
	out, err := q.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(url),
		MessageBody: aws.String(body),
	})
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	return aws.ToString(out.MessageId), nil
}

func (q *SQSQueue) Receive(ctx context.Context, opts ReceiveOptions) ([]Message, error) {
	url, err := q.queueURL(ctx)
	if err != nil {
		return nil, err
	}
	out, err := q.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(url),
		MaxNumberOfMessages: int32(opts.MaxMessages),
		WaitTimeSeconds:     int32(opts.WaitTime / time.Second),
		VisibilityTimeout:   int32(opts.VisibilityTimeout / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("receive messages: %w", err)
	}

	now := time.Now()
	msgs := make([]Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, Message{
			ID:            aws.ToString(m.MessageId),
			Body:          aws.ToString(m.Body),
			ReceiptHandle: aws.ToString(m.ReceiptHandle),
			ReceivedAt:    now,
		})
	}
	return msgs, nil
}

func (q *SQSQueue) Delete(ctx context.Context, receiptHandle string) error {
	url, err := q.queueURL(ctx)
	if err != nil {
		return err
	}
	_, err = q.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(url),
		ReceiptHandle: aws.String(receiptHandle),
	})
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}
