// services/errors.go
package services

import (
	"errors"
	"fmt"
)

var (
	ErrTokenExists       = errors.New("token already exists")
	ErrNoTokensAvailable = errors.New("no tokens available")
	ErrConfigMissing     = errors.New("configuration not found")
)

// ValidationError marks a caller mistake. Handlers surface its message
// verbatim with a 400; it is never retried.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

type VerificationErrorKind string

const (
	VerificationExpired      VerificationErrorKind = "expired"
	VerificationBadSignature VerificationErrorKind = "bad_signature"
	VerificationClaimInvalid VerificationErrorKind = "claim_invalid"
	VerificationMalformed    VerificationErrorKind = "malformed"
)

// VerificationError is returned when the upstream credential verifier rejects
// a token. The underlying cause is kept for server-side logs; Message()
// returns the sanitized text shown to the caller.
type VerificationError struct {
	Kind  VerificationErrorKind
	cause error
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("token verification failed (%s): %v", e.Kind, e.cause)
}

func (e *VerificationError) Unwrap() error { return e.cause }

func (e *VerificationError) Message() string {
	switch e.Kind {
	case VerificationExpired:
		return "Token expired"
	case VerificationBadSignature:
		return "Invalid token signature"
	case VerificationClaimInvalid:
		return "Token claim validation failed"
	default:
		return "Invalid token"
	}
}
