package worker

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/mapstructure"
	"github.com/saxenaaman628/vote-pipeline/internal/errs"
	"github.com/saxenaaman628/vote-pipeline/internal/models"
)

// decodeEvent parses an untrusted queue body. Loose typing is tolerated
// (a numeric userId becomes a string); missing identifiers are not, and poll
// and participant ids must be uuids because the votes table stores them so.
func decodeEvent(body string) (models.VoteEvent, error) {
	if strings.TrimSpace(body) == "" {
		return models.VoteEvent{}, fmt.Errorf("%w: empty body", errs.ErrMalformedMessage)
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(body), &raw); err != nil {
		return models.VoteEvent{}, fmt.Errorf("%w: %v", errs.ErrMalformedMessage, err)
	}

	var event models.VoteEvent
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &event,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return models.VoteEvent{}, fmt.Errorf("build decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return models.VoteEvent{}, fmt.Errorf("%w: %v", errs.ErrMalformedMessage, err)
	}

	event.UserID = strings.TrimSpace(event.UserID)
	event.ParticipantID = strings.TrimSpace(event.ParticipantID)
	event.PollID = strings.TrimSpace(event.PollID)
	if event.UserID == "" || event.ParticipantID == "" || event.PollID == "" {
		return models.VoteEvent{}, fmt.Errorf("%w: userId, participantId and pollId are required", errs.ErrMalformedMessage)
	}
	if _, err := uuid.Parse(event.PollID); err != nil {
		return models.VoteEvent{}, fmt.Errorf("%w: pollId %q is not a uuid", errs.ErrMalformedMessage, event.PollID)
	}
	if _, err := uuid.Parse(event.ParticipantID); err != nil {
		return models.VoteEvent{}, fmt.Errorf("%w: participantId %q is not a uuid", errs.ErrMalformedMessage, event.ParticipantID)
	}
	return event, nil
}

// createdAt picks the event timestamp, falling back to the arrival time when
// it is missing or unparseable.
func createdAt(event models.VoteEvent, arrived time.Time) time.Time {
	if event.Timestamp == "" {
		return arrived
	}
	if t, err := time.Parse(time.RFC3339Nano, event.Timestamp); err == nil {
		return t
	}
	return arrived
}
