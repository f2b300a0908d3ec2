package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/logger"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/saxenaaman628/vote-pipeline/internal/errs"
	"github.com/saxenaaman628/vote-pipeline/internal/logging"
	"github.com/saxenaaman628/vote-pipeline/internal/models"
	"gorm.io/gorm"
)

const (
	pgInvalidTextRepresentation = "22P02"
	pgUndefinedTable            = "42P01"
)

var participantOrder = func(tx *gorm.DB) *gorm.DB {
	return tx.Order("created_at ASC").Order("id ASC")
}

// Repository is the gorm-backed durable vote store and poll registry.
type Repository struct {
	db     *gorm.DB
	logger *logger.Logger
}

func NewRepository(db *gorm.DB, l *logger.Logger) *Repository {
	return &Repository{db: db, logger: logging.Resolve(l)}
}

// InsertVote appends one VoteRecord. It never updates existing rows, so a
// redelivered event produces a second row. Values Postgres rejects as
// malformed are reported as errs.ErrMalformedMessage, everything else as
// errs.ErrUnavailable.
func (r *Repository) InsertVote(ctx context.Context, event models.VoteEvent, createdAt time.Time) (models.VoteRecord, error) {
	row := models.VoteRecord{
		ID:            uuid.NewString(),
		UserID:        strings.TrimSpace(event.UserID),
		ParticipantID: strings.TrimSpace(event.ParticipantID),
		PollID:        strings.TrimSpace(event.PollID),
		CreatedAt:     createdAt.UTC(),
		UpdatedAt:     createdAt.UTC(),
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		wrapped := r.logError("vote_store_insert_failed", err,
			"user_id", row.UserID,
			"poll_id", row.PollID,
			"participant_id", row.ParticipantID,
		)
		// A row Postgres cannot parse will never insert; retrying it is pointless.
		if pgCode(err) == pgInvalidTextRepresentation {
			return models.VoteRecord{}, fmt.Errorf("%w: %v", errs.ErrMalformedMessage, err)
		}
		return models.VoteRecord{}, wrapped
	}
	return row, nil
}

func (r *Repository) GetPoll(ctx context.Context, pollID string) (models.Poll, error) {
	var poll models.Poll
	err := r.db.WithContext(ctx).
		Where("id = ?", strings.TrimSpace(pollID)).
		First(&poll).
		Error
	if err != nil {
		if isNotFound(err) {
			return models.Poll{}, fmt.Errorf("poll %s: %w", pollID, errs.ErrNotFound)
		}
		return models.Poll{}, r.logError("registry_get_poll_failed", err, "poll_id", pollID)
	}
	return poll, nil
}

func (r *Repository) GetParticipant(ctx context.Context, pollID, participantID string) (models.Participant, error) {
	var participant models.Participant
	err := r.db.WithContext(ctx).
		Where("id = ? AND poll_id = ?", strings.TrimSpace(participantID), strings.TrimSpace(pollID)).
		First(&participant).
		Error
	if err != nil {
		if isNotFound(err) {
			return models.Participant{}, fmt.Errorf("participant %s in poll %s: %w", participantID, pollID, errs.ErrNotFound)
		}
		return models.Participant{}, r.logError("registry_get_participant_failed", err,
			"poll_id", pollID,
			"participant_id", participantID,
		)
	}
	return participant, nil
}

// GetPollWithParticipants loads a poll and its participants in creation order.
// That order is the tie-break for equal counts in the status view.
func (r *Repository) GetPollWithParticipants(ctx context.Context, pollID string) (models.Poll, error) {
	var poll models.Poll
	err := r.db.WithContext(ctx).
		Preload("Participants", participantOrder).
		Where("id = ?", strings.TrimSpace(pollID)).
		First(&poll).
		Error
	if err != nil {
		if isNotFound(err) {
			return models.Poll{}, fmt.Errorf("poll %s: %w", pollID, errs.ErrNotFound)
		}
		return models.Poll{}, r.logError("registry_get_poll_with_participants_failed", err, "poll_id", pollID)
	}
	return poll, nil
}

// ListPolls pages through polls newest start date first.
func (r *Repository) ListPolls(ctx context.Context, page, limit int, activeOnly bool) ([]models.Poll, int64, error) {
	scoped := func() *gorm.DB {
		tx := r.db.WithContext(ctx).Model(&models.Poll{})
		if activeOnly {
			tx = tx.Where("is_active = ?", true)
		}
		return tx
	}

	var total int64
	if err := scoped().Count(&total).Error; err != nil {
		return nil, 0, r.logError("registry_count_polls_failed", err, "active_only", activeOnly)
	}

	var polls []models.Poll
	err := scoped().
		Preload("Participants", participantOrder).
		Order("start_date DESC").
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&polls).
		Error
	if err != nil {
		return nil, 0, r.logError("registry_list_polls_failed", err, "page", page, "limit", limit)
	}
	return polls, total, nil
}

// logError logs once at the adapter and returns err wrapped as unavailable.
func (r *Repository) logError(event string, err error, attrs ...any) error {
	var b strings.Builder
	fmt.Fprintf(&b, "event=%s layer=store error=%q", event, err.Error())
	for i := 0; i+1 < len(attrs); i += 2 {
		fmt.Fprintf(&b, " %v=%v", attrs[i], attrs[i+1])
	}
	switch code := pgCode(err); code {
	case "":
	case pgUndefinedTable:
		fmt.Fprintf(&b, " pg_code=%s hint=schema_not_migrated", code)
	default:
		fmt.Fprintf(&b, " pg_code=%s", code)
	}
	r.logger.Error(b.String())
	return fmt.Errorf("%w: %v", errs.ErrUnavailable, err)
}

// isNotFound treats malformed ids the same as missing rows: a non-uuid id
// cannot name an existing poll or participant.
func isNotFound(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return true
	}
	return pgCode(err) == pgInvalidTextRepresentation
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
