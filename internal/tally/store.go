// Package tally keeps live vote counters in Redis. Every write is a
// single-key INCR; readers tolerate the short skew between the participant,
// poll and global counters.
package tally

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/logger"
	"github.com/redis/go-redis/v9"
	"github.com/saxenaaman628/vote-pipeline/internal/errs"
	"github.com/saxenaaman628/vote-pipeline/internal/logging"
)

const GlobalTotalKey = "votes:total"

func ParticipantKey(pollID, participantID string) string {
	return fmt.Sprintf("vote:%s:%s", pollID, participantID)
}

func PollTotalKey(pollID string) string {
	return "votes:poll:" + pollID
}

// Client is the subset of the Redis client used by Store.
type Client interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

type Store struct {
	rdb     Client
	timeout time.Duration
	logger  *logger.Logger
}

func NewStore(rdb Client, timeout time.Duration, l *logger.Logger) *Store {
	if timeout <= 0 {
		timeout = 500 * time.Millisecond
	}
	return &Store{rdb: rdb, timeout: timeout, logger: logging.Resolve(l)}
}

// RecordVote increments the participant counter and then the poll and global
// totals. Only the participant increment decides the outcome: once it lands
// the vote is counted, and a failed total is logged rather than returned so
// the caller never retries into a double count.
func (s *Store) RecordVote(ctx context.Context, pollID, participantID string) (int64, error) {
	key := ParticipantKey(pollID, participantID)
	count, err := s.incr(ctx, key)
	if err != nil {
		return 0, fmt.Errorf("%w: incr %s: %v", errs.ErrUnavailable, key, err)
	}
	for _, total := range []string{PollTotalKey(pollID), GlobalTotalKey} {
		if _, err := s.incr(ctx, total); err != nil {
			s.logger.Errorf("event=tally_total_incr_failed key=%s poll_id=%s participant_id=%s error=%v",
				total, pollID, participantID, err)
		}
	}
	return count, nil
}

func (s *Store) ReadCount(ctx context.Context, pollID, participantID string) (int64, error) {
	return s.read(ctx, ParticipantKey(pollID, participantID))
}

func (s *Store) ReadPollTotal(ctx context.Context, pollID string) (int64, error) {
	return s.read(ctx, PollTotalKey(pollID))
}

func (s *Store) ReadGlobalTotal(ctx context.Context) (int64, error) {
	return s.read(ctx, GlobalTotalKey)
}

// ReadCounts returns the counters for participantIDs in order using one MGET.
func (s *Store) ReadCounts(ctx context.Context, pollID string, participantIDs []string) ([]int64, error) {
	counts := make([]int64, len(participantIDs))
	if len(participantIDs) == 0 {
		return counts, nil
	}
	keys := make([]string, len(participantIDs))
	for i, id := range participantIDs {
		keys[i] = ParticipantKey(pollID, id)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: mget poll %s: %v", errs.ErrUnavailable, pollID, err)
	}
	for i, raw := range values {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(str, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse counter %s: %w", keys[i], err)
		}
		counts[i] = n
	}
	return counts, nil
}

func (s *Store) incr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.rdb.Incr(ctx, key).Result()
}

func (s *Store) read(ctx context.Context, key string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	n, err := s.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: get %s: %v", errs.ErrUnavailable, key, err)
	}
	return n, nil
}
