// Package status projects live counters and poll metadata into ranked
// results. It never writes.
package status

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/saxenaaman628/vote-pipeline/internal/models"
)

// Registry supplies poll metadata with participants in a stable order.
type Registry interface {
	GetPollWithParticipants(ctx context.Context, pollID string) (models.Poll, error)
	ListPolls(ctx context.Context, page, limit int, activeOnly bool) ([]models.Poll, int64, error)
}

// CountReader reads live counters.
type CountReader interface {
	ReadCounts(ctx context.Context, pollID string, participantIDs []string) ([]int64, error)
	ReadPollTotal(ctx context.Context, pollID string) (int64, error)
}

type PollSummary struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	IsActive    bool       `json:"isActive"`
	StartDate   time.Time  `json:"startDate"`
	EndDate     *time.Time `json:"endDate,omitempty"`
}

type ParticipantResult struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ImageURL   string `json:"imageUrl,omitempty"`
	Votes      int64  `json:"votes"`
	Percentage *int   `json:"percentage,omitempty"`
}

type Status struct {
	Poll       PollSummary         `json:"poll"`
	Results    []ParticipantResult `json:"results"`
	TotalVotes int64               `json:"totalVotes"`
	UpdatedAt  time.Time           `json:"updatedAt"`
}

type Aggregator struct {
	registry Registry
	counts   CountReader
	now      func() time.Time
}

func NewAggregator(registry Registry, counts CountReader) *Aggregator {
	return &Aggregator{registry: registry, counts: counts, now: time.Now}
}

// GetStatus ranks participants by live count, highest first. Equal counts
// keep registry order. Percentages are attached only when the poll total is
// positive.
func (a *Aggregator) GetStatus(ctx context.Context, pollID string) (Status, error) {
	poll, err := a.registry.GetPollWithParticipants(ctx, pollID)
	if err != nil {
		return Status{}, err
	}

	ids := make([]string, len(poll.Participants))
	for i, p := range poll.Participants {
		ids[i] = p.ID
	}
	counts, err := a.counts.ReadCounts(ctx, poll.ID, ids)
	if err != nil {
		return Status{}, fmt.Errorf("read counts for poll %s: %w", poll.ID, err)
	}
	total, err := a.counts.ReadPollTotal(ctx, poll.ID)
	if err != nil {
		return Status{}, fmt.Errorf("read total for poll %s: %w", poll.ID, err)
	}

	results := make([]ParticipantResult, len(poll.Participants))
	for i, p := range poll.Participants {
		results[i] = ParticipantResult{
			ID:       p.ID,
			Name:     p.Name,
			ImageURL: p.ImageURL,
			Votes:    counts[i],
		}
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Votes > results[j].Votes
	})
	if total > 0 {
		for i := range results {
			pct := int(math.Round(float64(results[i].Votes) / float64(total) * 100))
			results[i].Percentage = &pct
		}
	}

	return Status{
		Poll:       summarize(poll),
		Results:    results,
		TotalVotes: total,
		UpdatedAt:  a.now().UTC(),
	}, nil
}

type ParticipantSummary struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	ImageURL string `json:"imageUrl,omitempty"`
}

type PollListing struct {
	PollSummary
	Participants      []ParticipantSummary `json:"participants"`
	ParticipantsCount int                  `json:"participantsCount"`
}

type PageMeta struct {
	CurrentPage  int   `json:"currentPage"`
	TotalPages   int   `json:"totalPages"`
	TotalItems   int64 `json:"totalItems"`
	ItemsPerPage int   `json:"itemsPerPage"`
	HasNextPage  bool  `json:"hasNextPage"`
	HasPrevPage  bool  `json:"hasPrevPage"`
}

type PollList struct {
	Polls     []PollListing `json:"polls"`
	Meta      PageMeta      `json:"meta"`
	UpdatedAt time.Time     `json:"updatedAt"`
}

// maxPageSize caps the limit a caller may ask ListPolls for.
const maxPageSize = 100

// ListPolls pages through polls with their participants. page and limit
// below 1 fall back to 1 and 10; limit above maxPageSize is clamped.
func (a *Aggregator) ListPolls(ctx context.Context, page, limit int, activeOnly bool) (PollList, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	polls, total, err := a.registry.ListPolls(ctx, page, limit, activeOnly)
	if err != nil {
		return PollList{}, err
	}

	listings := make([]PollListing, 0, len(polls))
	for _, poll := range polls {
		participants := make([]ParticipantSummary, 0, len(poll.Participants))
		for _, p := range poll.Participants {
			participants = append(participants, ParticipantSummary{ID: p.ID, Name: p.Name, ImageURL: p.ImageURL})
		}
		listings = append(listings, PollListing{
			PollSummary:       summarize(poll),
			Participants:      participants,
			ParticipantsCount: len(participants),
		})
	}

	totalPages := int((total + int64(limit) - 1) / int64(limit))
	return PollList{
		Polls: listings,
		Meta: PageMeta{
			CurrentPage:  page,
			TotalPages:   totalPages,
			TotalItems:   total,
			ItemsPerPage: limit,
			HasNextPage:  page < totalPages,
			HasPrevPage:  page > 1,
		},
		UpdatedAt: a.now().UTC(),
	}, nil
}

func summarize(poll models.Poll) PollSummary {
	return PollSummary{
		ID:          poll.ID,
		Name:        poll.Name,
		Description: poll.Description,
		IsActive:    poll.IsActive,
		StartDate:   poll.StartDate,
		EndDate:     poll.EndDate,
	}
}
