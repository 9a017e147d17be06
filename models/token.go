// models/token.go
package models

import (
	"time"
)

// IntegrityToken is one deposited App Check token in the shared pool.
//
// Lifecycle: created by ingest → claimed at most once (AssignedTo flips from
// "" to a user id, never back) → implicitly expired once ExpiresAt passes →
// eventually tombstoned by the reclaimer, which clears Token but leaves every
// other column in place so the availability history stays reconstructible.
type IntegrityToken struct {
	ID     uint   `json:"id" gorm:"primaryKey"`
	// Unique among live rows only; tombstones all share "" and are excluded
	// by the partial index predicate.
	Token  string `json:"token" gorm:"uniqueIndex:idx_integrity_tokens_token_live,where:token <> ''"`
	Source string `json:"source" gorm:"size:32;index"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at" gorm:"index"` // taken from the credential's exp claim, never recomputed

	// "" means unassigned. The pool at any instant is exactly the set of rows
	// with AssignedTo = '' and ExpiresAt in the future.
	AssignedTo string     `json:"assigned_to" gorm:"default:''"`
	AssignedAt *time.Time `json:"assigned_at"`
	UserAgent  string     `json:"user_agent"` // diagnostic UA captured at assignment
}
