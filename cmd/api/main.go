package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/saxenaaman628/vote-pipeline/config"
	"github.com/saxenaaman628/vote-pipeline/internal/api"
	"github.com/saxenaaman628/vote-pipeline/internal/controller"
	"github.com/saxenaaman628/vote-pipeline/internal/logging"
	"github.com/saxenaaman628/vote-pipeline/internal/middleware"
	"github.com/saxenaaman628/vote-pipeline/internal/queue"
	"github.com/saxenaaman628/vote-pipeline/internal/ratelimit"
	"github.com/saxenaaman628/vote-pipeline/internal/redis"
	"github.com/saxenaaman628/vote-pipeline/internal/status"
	"github.com/saxenaaman628/vote-pipeline/internal/store"
	"github.com/saxenaaman628/vote-pipeline/internal/tally"
	"github.com/saxenaaman628/vote-pipeline/internal/votetoken"
	"github.com/saxenaaman628/vote-pipeline/internal/voting"
	"golang.org/x/sync/errgroup"
)

func main() {
	config.LoadEnv()
	cfg, err := config.Load()
	l := logging.Init("vote-api", err == nil && cfg.Verbose)
	if err != nil {
		l.Fatalf("event=config_invalid error=%v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rdb, err := redis.NewClient(ctx, cfg)
	if err != nil {
		l.Fatalf("event=redis_connect_failed error=%v", err)
	}
	defer rdb.Close()

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
		// Publishing retries EnsureQueue per event; counting does not depend on it.
		l.Warningf("event=sqs_queue_unavailable queue=%s error=%v", cfg.SQSQueueName, err)
	}

	counts := tally.NewStore(rdb, cfg.StoreTimeout, l)
	svc := voting.NewService(voting.Deps{
		VoterLimiter:   ratelimit.New(rdb, "rate_limit", cfg.VoteRateLimit, cfg.VoteRateWindow, ratelimit.WithTimeout(cfg.StoreTimeout)),
		Tokens:         votetoken.NewValidator(cfg.JWTSecret, cfg.VoteTokenTTL),
		Registry:       repo,
		Counter:        counts,
		Publisher:      queue.NewPublisher(voteQueue, l),
		PublishTimeout: cfg.PublishTimeout,
		Logger:         l,
	})

	captcha := middleware.Recaptcha(
		middleware.NewRecaptchaClient(cfg.RecaptchaSecret, cfg.RecaptchaVerifyURL, 3*time.Second),
		middleware.RecaptchaOptions{Required: cfg.RecaptchaRequired, MinScore: cfg.RecaptchaMinScore},
		l,
	)

	gin.SetMode(cfg.GinMode)
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	api.RegisterRoutes(r, api.Handlers{
		Votes:       controller.NewVoteController(svc, l),
		Polls:       controller.NewPollController(status.NewAggregator(repo, counts), l),
		IPRateLimit: middleware.IPRateLimit(ratelimit.New(rdb, "ratelimit", cfg.IPRateLimit, cfg.IPRateWindow, ratelimit.WithTimeout(cfg.StoreTimeout)), l),
		Recaptcha:   captcha,
	})

	srv := &http.Server{
		Addr:              normalizeAddr(cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		l.Infof("event=api_started addr=%s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		l.Errorf("event=api_stopped error=%v", err)
		os.Exit(1)
	}
	l.Info("event=api_stopped")
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
