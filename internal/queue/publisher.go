package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/logger"
	"github.com/saxenaaman628/vote-pipeline/internal/logging"
	"github.com/saxenaaman628/vote-pipeline/internal/models"
)

// Publisher puts vote events on the work queue. It returns every failure;
// deciding that a failed publish is tolerable is the caller's job.
type Publisher struct {
	queue  MessageQueue
	logger *logger.Logger
}

func NewPublisher(q MessageQueue, l *logger.Logger) *Publisher {
	return &Publisher{queue: q, logger: logging.Resolve(l)}
}

func (p *Publisher) Publish(ctx context.Context, event models.VoteEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal vote event: %w", err)
	}
	if err := p.queue.EnsureQueue(ctx); err != nil {
		return fmt.Errorf("ensure vote queue: %w", err)
	}
	id, err := p.queue.Send(ctx, string(body))
	if err != nil {
		return err
	}
	p.logger.Infof("event=vote_event_published message_id=%s poll_id=%s participant_id=%s",
		id, event.PollID, event.ParticipantID)
	return nil
}
