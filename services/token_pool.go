// services/token_pool.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"token-pool-system/models"

	"gorm.io/gorm"
)

// How many lost claim races to tolerate before reporting the pool empty.
// Each lost race means another claimer consumed the selected row, so with a
// finite pool the loop terminates long before this.
const maxClaimAttempts = 10

const statsLookahead = 10 * time.Minute

// TokenPoolService owns the shared token pool: deposits from verifier
// instances, exclusive per-user claims, and the point-in-time counters.
type TokenPoolService struct {
	DB *gorm.DB
}

func NewTokenPoolService(db *gorm.DB) *TokenPoolService {
	return &TokenPoolService{DB: db}
}

// Ingest stores a freshly verified token as an unassigned pool entry.
// Re-submitting a token that is already in the store fails with
// ErrTokenExists instead of duplicating the row.
func (s *TokenPoolService) Ingest(claims *VerifiedClaims, rawToken, source string) error {
	if rawToken == "" {
		return NewValidationError("Missing token")
	}

	var count int64
	if err := s.DB.Model(&models.IntegrityToken{}).
		Where("token = ?", rawToken).
		Count(&count).Error; err != nil {
		return fmt.Errorf("check for existing token: %w", err)
	}
	if count > 0 {
		return ErrTokenExists
	}

	// A token without an exp claim is treated as already expired rather than
	// granted forever.
	expiresAt := claims.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = time.Unix(0, 0)
	}

	entry := models.IntegrityToken{
		Token:      rawToken,
		Source:     source,
		ExpiresAt:  expiresAt,
		AssignedTo: "",
	}
	if err := s.DB.Create(&entry).Error; err != nil {
		// the partial unique index on live tokens catches deposits that
		// raced past the pre-check
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrTokenExists
		}
		return fmt.Errorf("store token: %w", err)
	}

	log.Printf("[TOKEN_POOL] New integrity token added (valid until %s): sub %s jti %s",
		expiresAt.Format(time.RFC3339), claims.Subject, claims.TokenID)
	return nil
}

// Claim hands out one live token for the given user. A user that already
// holds an unexpired assignment gets the same token back without a write;
// otherwise the earliest-expiring available entry is assigned atomically.
// Returns ErrNoTokensAvailable when the pool is drained.
func (s *TokenPoolService) Claim(userID, userAgent string) (string, error) {
	if userID == "" {
		return "", NewValidationError("Missing x-user-id header")
	}

	now := time.Now()

	// Drain near-expiry inventory first. The UPDATE is conditional on the row
	// still being unassigned AND on the user not already holding a live row,
	// so two requests for the same user racing past the lookup cannot each
	// assign a token. Losing either race just means re-reading state: the
	// lookup on the next pass finds the row the other request won.
	for attempt := 0; attempt < maxClaimAttempts; attempt++ {
		var existing models.IntegrityToken
		err := s.DB.
			Where("assigned_to = ? AND expires_at > ?", userID, now).
			First(&existing).Error
		if err == nil {
			log.Printf("[TOKEN_POOL] Using existing token for user %s", userID)
			return existing.Token, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("look up existing assignment: %w", err)
		}

		var candidate models.IntegrityToken
		err = s.DB.
			Where("assigned_to = '' AND expires_at > ?", now).
			Order("expires_at ASC, id ASC").
			First(&candidate).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNoTokensAvailable
		}
		if err != nil {
			return "", fmt.Errorf("select available token: %w", err)
		}

		res := s.DB.Model(&models.IntegrityToken{}).
			Where("id = ? AND assigned_to = ''"+
				" AND NOT EXISTS (SELECT 1 FROM integrity_tokens held"+
				" WHERE held.assigned_to = ? AND held.expires_at > ?)",
				candidate.ID, userID, now).
			Updates(map[string]interface{}{
				"assigned_to": userID,
				"assigned_at": now,
				"user_agent":  userAgent,
			})
		if res.Error != nil {
			return "", fmt.Errorf("assign token: %w", res.Error)
		}
		if res.RowsAffected == 1 {
			log.Printf("[TOKEN_POOL] Assigned new token to user %s", userID)
			return candidate.Token, nil
		}
	}

	return "", ErrNoTokensAvailable
}

// TokenStats is the point-in-time snapshot of pool state.
type TokenStats struct {
	TotalTokens                int64 `json:"total_tokens"`
	ExpiredUnassigned          int64 `json:"expired_unassigned"`
	ValidTokens                int64 `json:"valid_tokens"`
	AvailableTokens            int64 `json:"available_tokens"`
	AvailableTokensAfter10Mins int64 `json:"available_tokens_after_10_mins"`
	AssignedTokens             int64 `json:"assigned_tokens"`
}

// Stats computes the snapshot with independent count queries; purely derived,
// no side effects.
func (s *TokenPoolService) Stats() (*TokenStats, error) {
	now := time.Now()
	horizon := now.Add(statsLookahead)

	stats := &TokenStats{}
	counts := []struct {
		dest  *int64
		query *gorm.DB
	}{
		{&stats.TotalTokens, s.DB.Model(&models.IntegrityToken{})},
		{&stats.ExpiredUnassigned, s.DB.Model(&models.IntegrityToken{}).
			Where("assigned_to = '' AND expires_at < ?", now)},
		{&stats.ValidTokens, s.DB.Model(&models.IntegrityToken{}).
			Where("expires_at > ?", now)},
		{&stats.AvailableTokens, s.DB.Model(&models.IntegrityToken{}).
			Where("assigned_to = '' AND expires_at > ?", now)},
		{&stats.AvailableTokensAfter10Mins, s.DB.Model(&models.IntegrityToken{}).
			Where("assigned_to = '' AND expires_at > ?", horizon)},
		{&stats.AssignedTokens, s.DB.Model(&models.IntegrityToken{}).
			Where("assigned_to <> '' AND expires_at > ?", now)},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dest).Error; err != nil {
			return nil, fmt.Errorf("count tokens: %w", err)
		}
	}
	return stats, nil
}
