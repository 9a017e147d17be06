// services/token_sources.go
package services

import (
	"fmt"
	"time"

	"token-pool-system/models"

	"gorm.io/gorm"
)

const sourceHistoryLimit = 10

// TokenSourceService answers the admin dashboard's questions about which
// verifier instances are still depositing tokens.
type TokenSourceService struct {
	DB *gorm.DB
}

func NewTokenSourceService(db *gorm.DB) *TokenSourceService {
	return &TokenSourceService{DB: db}
}

type TokenSourceSummary struct {
	ID          string    `json:"id"`
	LastTokenAt time.Time `json:"lastTokenAt"`
	MinutesAgo  int       `json:"minutesAgo"`
	TokenCount  int64     `json:"tokenCount"`
}

// Sources aggregates deposits per non-empty source label, most recent first.
func (s *TokenSourceService) Sources() ([]TokenSourceSummary, error) {
	var rows []struct {
		Source      string
		LastTokenAt time.Time
		TokenCount  int64
	}
	err := s.DB.Model(&models.IntegrityToken{}).
		Select("source, MAX(created_at) AS last_token_at, COUNT(*) AS token_count").
		Where("source <> ''").
		Group("source").
		Order("last_token_at DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("aggregate token sources: %w", err)
	}

	now := time.Now()
	summaries := make([]TokenSourceSummary, 0, len(rows))
	for _, row := range rows {
		summaries = append(summaries, TokenSourceSummary{
			ID:          row.Source,
			LastTokenAt: row.LastTokenAt,
			MinutesAgo:  int(now.Sub(row.LastTokenAt).Minutes()),
			TokenCount:  row.TokenCount,
		})
	}
	return summaries, nil
}

type SourceDeposit struct {
	ID        uint      `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Token     string    `json:"token"`
}

// SourceHistory returns the last deposits for one source, newest first.
// Tombstoned rows show up with an empty token.
func (s *TokenSourceService) SourceHistory(source string) ([]SourceDeposit, error) {
	var rows []models.IntegrityToken
	err := s.DB.
		Select("id", "token", "created_at").
		Where("source = ?", source).
		Order("created_at DESC").
		Limit(sourceHistoryLimit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fetch source history: %w", err)
	}

	deposits := make([]SourceDeposit, 0, len(rows))
	for _, row := range rows {
		deposits = append(deposits, SourceDeposit{
			ID:        row.ID,
			Timestamp: row.CreatedAt,
			Token:     row.Token,
		})
	}
	return deposits, nil
}
