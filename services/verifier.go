// services/verifier.go
package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/lestrrat-go/jwx/v2/jwk"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	// Firebase App Check JWKS URL
	firebaseJWKSURL = "https://firebaseappcheck.googleapis.com/v1/jwks"
	// Firebase App Check issuer
	firebaseIssuer = "https://firebaseappcheck.googleapis.com/860507348154"

	jwksRefreshInterval = 24 * time.Hour
)

// VerifiedClaims is the decoded payload of an accepted App Check token.
type VerifiedClaims struct {
	Subject   string
	TokenID   string
	IssuedAt  time.Time
	ExpiresAt time.Time // zero when the token carried no exp claim
}

// TokenVerifier validates an opaque credential string and returns its decoded
// claims, or a *VerificationError describing why it was rejected.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (*VerifiedClaims, error)
}

// AppCheckVerifier checks tokens against Firebase App Check's published keys.
type AppCheckVerifier struct {
	issuer string
	keySet func(ctx context.Context) (jwk.Set, error)
}

// NewAppCheckVerifier sets up a JWKS cache against the Firebase key endpoint.
// The key set refreshes in the background for the lifetime of ctx.
func NewAppCheckVerifier(ctx context.Context) (*AppCheckVerifier, error) {
	cache := jwk.NewCache(ctx)
	err := cache.Register(firebaseJWKSURL,
		jwk.WithMinRefreshInterval(jwksRefreshInterval),
		jwk.WithHTTPClient(&http.Client{Timeout: 10 * time.Second}),
	)
	if err != nil {
		return nil, fmt.Errorf("register JWKS endpoint: %w", err)
	}

	// Warm the cache so the first deposit doesn't pay the fetch. Not fatal:
	// the cache retries on first use if the endpoint is unreachable at boot.
	if _, err := cache.Refresh(ctx, firebaseJWKSURL); err != nil {
		log.Printf("⚠️  [VERIFIER] initial JWKS fetch failed, will retry on demand: %v", err)
	}

	return &AppCheckVerifier{
		issuer: firebaseIssuer,
		keySet: func(ctx context.Context) (jwk.Set, error) {
			return cache.Get(ctx, firebaseJWKSURL)
		},
	}, nil
}

// Verify validates the token's signature, issuer and expiry.
func (v *AppCheckVerifier) Verify(ctx context.Context, token string) (*VerifiedClaims, error) {
	if token == "" {
		return nil, NewValidationError("Token is required")
	}

	set, err := v.keySet(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch JWKS: %w", err)
	}

	parsed, err := jwt.Parse([]byte(token),
		jwt.WithKeySet(set),
		jwt.WithIssuer(v.issuer),
		jwt.WithValidate(true),
	)
	if err != nil {
		return nil, classifyVerificationError(token, err)
	}

	return &VerifiedClaims{
		Subject:   parsed.Subject(),
		TokenID:   parsed.JwtID(),
		IssuedAt:  parsed.IssuedAt(),
		ExpiresAt: parsed.Expiration(),
	}, nil
}

func classifyVerificationError(token string, err error) *VerificationError {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired()):
		return &VerificationError{Kind: VerificationExpired, cause: err}
	case jwt.IsValidationError(err):
		// signature checked out but a claim (issuer, nbf, ...) did not
		return &VerificationError{Kind: VerificationClaimInvalid, cause: err}
	}

	// Distinguish garbage input from a well-formed token signed by the wrong
	// key: the former fails even an unverified parse.
	if _, perr := jwt.Parse([]byte(token), jwt.WithVerify(false), jwt.WithValidate(false)); perr != nil {
		return &VerificationError{Kind: VerificationMalformed, cause: err}
	}
	return &VerificationError{Kind: VerificationBadSignature, cause: err}
}
