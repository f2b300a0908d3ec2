package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/saxenaaman628/vote-pipeline/config"
	"github.com/saxenaaman628/vote-pipeline/internal/logging"
	"github.com/saxenaaman628/vote-pipeline/internal/queue"
	"github.com/saxenaaman628/vote-pipeline/internal/store"
	"github.com/saxenaaman628/vote-pipeline/internal/worker"
	"golang.org/x/sync/errgroup"
)

// Worker process entrypoint: load config, connect to Postgres and SQS, then
// run WORKER_CONCURRENCY independent consumer loops until SIGINT/SIGTERM.
func main() {
	config.LoadEnv()
	cfg, err := config.Load()
	l := logging.Init("vote-worker", err == nil && cfg.Verbose)
	if err != nil {
		l.Fatalf("event=config_invalid error=%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pg, err := store.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		l.Fatalf("event=postgres_connect_failed error=%v", err)
	}
	defer pg.Close()
	if err := pg.Migrate(ctx); err != nil {
		l.Fatalf("event=postgres_migrate_failed error=%v", err)
	}
	repo := store.NewRepository(pg.DB, l)

	sqsClient, err := queue.NewSQSClient(ctx, cfg)
	if err != nil {
		l.Fatalf("event=sqs_client_failed error=%v", err)
	}
	voteQueue := queue.NewSQSQueue(sqsClient, cfg.SQSQueueName, cfg.SQSQueueURL)
	if err := voteQueue.EnsureQueue(ctx); err != nil {
		// Receive resolves the queue again; the loops back off until it exists.
		l.Warningf("event=sqs_queue_unavailable queue=%s error=%v", cfg.SQSQueueName, err)
	}

	wcfg := worker.Config{
		BatchSize:         cfg.WorkerBatchSize,
		WaitTime:          cfg.WorkerWaitTime,
		VisibilityTimeout: cfg.WorkerVisibilityTimeout,
		PollInterval:      cfg.WorkerPollInterval,
		ErrorBackoff:      cfg.WorkerErrorBackoff,
	}

	l.Infof("event=worker_started queue=%s concurrency=%d batch_size=%d",
		cfg.SQSQueueName, cfg.WorkerConcurrency, cfg.WorkerBatchSize)

	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < cfg.WorkerConcurrency; i++ {
		w := worker.New(fmt.Sprintf("consumer-%d", i+1), voteQueue, repo, wcfg, l)
		g.Go(func() error { return w.Run(gctx) })
	}
	if err := g.Wait(); err != nil {
		l.Errorf("event=worker_stopped error=%v", err)
		os.Exit(1)
	}
	l.Info("event=worker_stopped")
}
