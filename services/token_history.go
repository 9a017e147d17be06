// services/token_history.go
package services

import (
	"fmt"
	"sort"
	"time"

	"token-pool-system/models"

	"gorm.io/gorm"
)

// TokenHistoryService reconstructs pool availability over time. The store
// keeps no event log; each row's three immutable timestamps (created_at,
// assigned_at, expires_at) are expanded into a deterministic event stream and
// replayed on every query.
type TokenHistoryService struct {
	DB *gorm.DB
}

func NewTokenHistoryService(db *gorm.DB) *TokenHistoryService {
	return &TokenHistoryService{DB: db}
}

const (
	eventCreated  = "created"
	eventAssigned = "assigned"
	eventExpired  = "expired"
)

type tokenEvent struct {
	Timestamp time.Time
	Type      string
	TokenID   uint
	Change    int // +1 entering the pool, -1 leaving it
}

// AvailabilitySample is one point of the reconstructed series.
type AvailabilitySample struct {
	Timestamp       time.Time `json:"timestamp"`
	AvailableTokens int       `json:"available_tokens"`
	Count           int       `json:"count"`
	EventType       string    `json:"event_type"`
	TokenID         uint      `json:"token_id"`
}

// historyRow is the projection fetched for reconstruction; the token payload
// itself is never needed here, so tombstoned rows contribute equally.
type historyRow struct {
	ID         uint
	CreatedAt  time.Time
	AssignedAt *time.Time
	ExpiresAt  time.Time
}

// AvailabilitySeries replays the pool's event stream and returns one sample
// per event inside [start, end]. groupBy "" keeps the raw event stream;
// "hour" or "day" keeps the last sample per bucket, truncated in loc.
//
// No lower bound on the fetch: a token created long before start may still
// expire inside the range, and the running count at start is seeded by
// summing every event before it.
func (s *TokenHistoryService) AvailabilitySeries(start, end time.Time, groupBy string, loc *time.Location) ([]AvailabilitySample, error) {
	var rows []historyRow
	if err := s.DB.Model(&models.IntegrityToken{}).
		Select("id", "created_at", "assigned_at", "expires_at").
		Where("created_at <= ?", end).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("fetch token history: %w", err)
	}

	events := synthesizeTokenEvents(rows)

	available := 0
	for _, ev := range events {
		if ev.Timestamp.Before(start) {
			available += ev.Change
		}
	}

	samples := make([]AvailabilitySample, 0, len(events))
	for _, ev := range events {
		if ev.Timestamp.Before(start) || ev.Timestamp.After(end) {
			continue
		}
		available += ev.Change
		// Clamped: reconstruction drift must not surface as a negative pool.
		count := available
		if count < 0 {
			count = 0
		}
		samples = append(samples, AvailabilitySample{
			Timestamp:       ev.Timestamp,
			AvailableTokens: count,
			Count:           count,
			EventType:       ev.Type,
			TokenID:         ev.TokenID,
		})
	}

	if groupBy == "hour" || groupBy == "day" {
		samples = bucketSamples(samples, groupBy, loc)
	}
	return samples, nil
}

// CreatedInRange backs groupBy=total: how many entries were deposited in
// [start, end).
func (s *TokenHistoryService) CreatedInRange(start, end time.Time) (int64, error) {
	var count int64
	err := s.DB.Model(&models.IntegrityToken{}).
		Where("created_at >= ? AND created_at < ?", start, end).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("count created tokens: %w", err)
	}
	return count, nil
}

// synthesizeTokenEvents expands each row into exactly two events: +1 at
// creation, and -1 at assignment (when it happened before expiry) or at
// expiry otherwise. Events are ordered by timestamp, ties broken by row id so
// replays are deterministic.
func synthesizeTokenEvents(rows []historyRow) []tokenEvent {
	events := make([]tokenEvent, 0, 2*len(rows))
	for _, row := range rows {
		events = append(events, tokenEvent{
			Timestamp: row.CreatedAt,
			Type:      eventCreated,
			TokenID:   row.ID,
			Change:    +1,
		})

		if row.AssignedAt != nil && row.AssignedAt.Before(row.ExpiresAt) {
			events = append(events, tokenEvent{
				Timestamp: *row.AssignedAt,
				Type:      eventAssigned,
				TokenID:   row.ID,
				Change:    -1,
			})
		} else {
			events = append(events, tokenEvent{
				Timestamp: row.ExpiresAt,
				Type:      eventExpired,
				TokenID:   row.ID,
				Change:    -1,
			})
		}
	}

	sort.Slice(events, func(i, j int) bool {
		if events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].TokenID < events[j].TokenID
		}
		return events[i].Timestamp.Before(events[j].Timestamp)
	})
	return events
}

// bucketSamples downsamples the event stream to one sample per hour/day
// bucket, keeping the last value observed in each bucket and stamping it with
// the bucket start.
func bucketSamples(samples []AvailabilitySample, groupBy string, loc *time.Location) []AvailabilitySample {
	out := make([]AvailabilitySample, 0, len(samples))
	for _, sample := range samples {
		bucket := truncateInLocation(sample.Timestamp, groupBy, loc)
		sample.Timestamp = bucket
		if n := len(out); n > 0 && out[n-1].Timestamp.Equal(bucket) {
			out[n-1] = sample
		} else {
			out = append(out, sample)
		}
	}
	return out
}

func truncateInLocation(t time.Time, groupBy string, loc *time.Location) time.Time {
	local := t.In(loc)
	if groupBy == "day" {
		return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	}
	return time.Date(local.Year(), local.Month(), local.Day(), local.Hour(), 0, 0, 0, loc)
}
