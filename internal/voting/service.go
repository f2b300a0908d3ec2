// Package voting runs the synchronous half of vote ingestion: validate,
// throttle, count, then hand the event to the queue on a best-effort basis.
package voting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/logger"
	"github.com/google/uuid"
	"github.com/saxenaaman628/vote-pipeline/internal/errs"
	"github.com/saxenaaman628/vote-pipeline/internal/logging"
	"github.com/saxenaaman628/vote-pipeline/internal/models"
	"github.com/saxenaaman628/vote-pipeline/internal/ratelimit"
)

type RateLimiter interface {
	Check(ctx context.Context, subject string) (ratelimit.Result, error)
}

type TokenValidator interface {
	Validate(token, pollID, participantID, userID string) error
}

type PollRegistry interface {
	GetParticipant(ctx context.Context, pollID, participantID string) (models.Participant, error)
	GetPoll(ctx context.Context, pollID string) (models.Poll, error)
}

type VoteCounter interface {
	RecordVote(ctx context.Context, pollID, participantID string) (int64, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event models.VoteEvent) error
}

// RateLimitError carries the limiter state for 429 responses.
type RateLimitError struct {
	Result ratelimit.Result
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded: %d of %d", e.Result.Current, e.Result.Limit)
}

func (e *RateLimitError) Unwrap() error {
	return errs.ErrRateLimited
}

type Receipt struct {
	// VoterCount is the voter's post-increment counter in the current
	// rate-limit window, not the participant tally.
	VoterCount       int64
	ParticipantTally int64
	UserID           string
	Published        bool
}

type Service struct {
	voterLimiter   RateLimiter
	tokens         TokenValidator
	registry       PollRegistry
	counter        VoteCounter
	publisher      EventPublisher
	publishTimeout time.Duration
	logger         *logger.Logger
	now            func() time.Time
}

type Deps struct {
	VoterLimiter   RateLimiter
	Tokens         TokenValidator
	Registry       PollRegistry
	Counter        VoteCounter
	Publisher      EventPublisher
	PublishTimeout time.Duration
	Logger         *logger.Logger
	Now            func() time.Time
}

func NewService(d Deps) *Service {
	s := &Service{
		voterLimiter:   d.VoterLimiter,
		tokens:         d.Tokens,
		registry:       d.Registry,
		counter:        d.Counter,
		publisher:      d.Publisher,
		publishTimeout: d.PublishTimeout,
		logger:         logging.Resolve(d.Logger),
		now:            d.Now,
	}
	if s.publishTimeout <= 0 {
		s.publishTimeout = 2 * time.Second
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

// RegisterVote validates and counts one vote. Nothing is mutated until the
// request has passed field, token, registry and voter-limit checks. Once the
// tally increment succeeds the vote is accepted; a publish failure after
// that point is logged and does not change the result.
func (s *Service) RegisterVote(ctx context.Context, req models.VoteRequest) (Receipt, error) {
	req.ParticipantID = strings.TrimSpace(req.ParticipantID)
	req.PollID = strings.TrimSpace(req.PollID)
	if req.ParticipantID == "" || req.PollID == "" {
		return Receipt{}, fmt.Errorf("%w: participantId and pollId are required", errs.ErrValidation)
	}

	if err := s.tokens.Validate(req.VoteToken, req.PollID, req.ParticipantID, req.UserID); err != nil {
		s.logger.Warningf("event=vote_token_rejected poll_id=%s participant_id=%s error=%v",
			req.PollID, req.ParticipantID, err)
		return Receipt{}, err
	}

	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = "temp-user-" + uuid.NewString()
	}

	if _, err := s.registry.GetParticipant(ctx, req.PollID, req.ParticipantID); err != nil {
		return Receipt{}, err
	}
	poll, err := s.registry.GetPoll(ctx, req.PollID)
	if err != nil {
		return Receipt{}, err
	}
	now := s.now()
	if !poll.AcceptingVotes(now) {
		return Receipt{}, fmt.Errorf("poll %s: %w", poll.ID, errs.ErrInactivePoll)
	}

	limit, err := s.voterLimiter.Check(ctx, userID+":"+req.PollID)
	if err != nil {
		return Receipt{}, fmt.Errorf("%w: voter rate limit: %v", errs.ErrUnavailable, err)
	}
	if !limit.Allowed {
		return Receipt{}, &RateLimitError{Result: limit}
	}

	tally, err := s.counter.RecordVote(ctx, req.PollID, req.ParticipantID)
	if err != nil {
		s.logger.Errorf("event=vote_tally_failed poll_id=%s participant_id=%s error=%v",
			req.PollID, req.ParticipantID, err)
		return Receipt{}, err
	}

	receipt := Receipt{VoterCount: limit.Current, ParticipantTally: tally, UserID: userID}
	event := models.VoteEvent{
		UserID:         userID,
		ParticipantID:  req.ParticipantID,
		PollID:         req.PollID,
		Timestamp:      now.UTC().Format(time.RFC3339Nano),
		IP:             orUnknown(req.ClientIP),
		UserAgent:      orUnknown(req.UserAgent),
		RecaptchaScore: req.RecaptchaScore,
	}

	// The request may already be gone; the audit event should still go out.
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, event); err != nil {
		s.logger.Errorf("event=vote_publish_failed poll_id=%s participant_id=%s user_id=%s error=%v",
			req.PollID, req.ParticipantID, userID, err)
		return receipt, nil
	}
	receipt.Published = true
	return receipt, nil
}

func orUnknown(v string) string {
	if strings.TrimSpace(v) == "" {
		return "unknown"
	}
	return v
}
