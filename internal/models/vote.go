package models

import "time"

// VoteEvent is the queue message body published for every tallied vote.
// Field names are the wire format shared with the worker.
type VoteEvent struct {
	UserID         string   `json:"userId" mapstructure:"userId"`
	ParticipantID  string   `json:"participantId" mapstructure:"participantId"`
	PollID         string   `json:"pollId" mapstructure:"pollId"`
	Timestamp      string   `json:"timestamp,omitempty" mapstructure:"timestamp"`
	IP             string   `json:"ip,omitempty" mapstructure:"ip"`
	UserAgent      string   `json:"userAgent,omitempty" mapstructure:"userAgent"`
	RecaptchaScore *float64 `json:"recaptchaScore,omitempty" mapstructure:"recaptchaScore"`
}

// VoteRecord is an append-only audit row. Duplicates are possible under
// queue redelivery; counts come from the tally store, not from this table.
type VoteRecord struct {
	ID            string    `gorm:"column:id;primaryKey;type:uuid"`
	UserID        string    `gorm:"column:user_id;not null;index:idx_votes_user_poll,priority:1"`
	ParticipantID string    `gorm:"column:participant_id;type:uuid;not null;index:idx_votes_poll_participant,priority:2"`
	PollID        string    `gorm:"column:poll_id;type:uuid;not null;index:idx_votes_poll_participant,priority:1;index:idx_votes_user_poll,priority:2"`
	CreatedAt     time.Time `gorm:"column:created_at;index"`
	UpdatedAt     time.Time `gorm:"column:updated_at"`
}

func (VoteRecord) TableName() string {
	return "votes"
}

// VoteRequest is the ingestion input assembled by the HTTP layer.
type VoteRequest struct {
	UserID         string   `json:"userId"`
	ParticipantID  string   `json:"participantId"`
	PollID         string   `json:"pollId"`
	VoteToken      string   `json:"voteToken"`
	// RecaptchaScore comes from server-side captcha verification only.
	RecaptchaScore *float64 `json:"-"`
	ClientIP       string   `json:"-"`
	UserAgent      string   `json:"-"`
}
