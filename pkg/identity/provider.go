package identity

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Factor kinds supported by the provider.
const (
	FactorKindTotp  = "totp"
	FactorKindEmail = "email"
)

// Factor lifecycle statuses.
const (
	FactorStatusUnverified = "unverified"
	FactorStatusVerified   = "verified"
)

// Common errors returned by identity providers.
var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrFactorNotFound    = errors.New("factor not found")
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrChallengeExpired  = errors.New("challenge expired")
	ErrInvalidCode       = errors.New("invalid passcode")
)

// Session identifies an authenticated base session issued by the provider.
// It is passed explicitly into every orchestrator call so the logic stays
// testable without a live provider.
type Session struct {
	ID        string    `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
}

// Factor represents one enrolled second factor for an account. Secret and
// URI are only populated for TOTP factors, and only on enrollment.
type Factor struct {
	ID        uuid.UUID `json:"id"`
	AccountID uuid.UUID `json:"account_id"`
	Kind      string    `json:"kind"`
	Status    string    `json:"status"`
	Secret    string    `json:"secret,omitempty"`
	URI       string    `json:"uri,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Challenge is a short-lived verification handle issued against a factor.
// A verify must reference the challenge it answers.
type Challenge struct {
	ID        uuid.UUID `json:"id"`
	FactorID  uuid.UUID `json:"factor_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Provider is the narrow interface the orchestrators use to talk to the
// identity provider. The provider is authoritative for TOTP factors, base
// session identity and the session's provider-side assurance marker.
type Provider interface {
	// EnrollTotp creates a new unverified TOTP factor and returns its
	// provisioning secret and otpauth URI.
	EnrollTotp(ctx context.Context, accountID uuid.UUID) (Factor, error)

	// ListFactors returns all factors enrolled for the account, without
	// secrets.
	ListFactors(ctx context.Context, accountID uuid.UUID) ([]Factor, error)

	// Unenroll deletes a factor.
	Unenroll(ctx context.Context, accountID, factorID uuid.UUID) error

	// CreateChallenge opens a new challenge against a factor.
	CreateChallenge(ctx context.Context, accountID, factorID uuid.UUID) (Challenge, error)

	// VerifyChallenge verifies a passcode against a specific challenge.
	// On success an unverified factor is promoted to verified and the
	// session's provider-side assurance marker is set.
	VerifyChallenge(ctx context.Context, session Session, factorID, challengeID uuid.UUID, passcode string) error

	// SessionElevated reports the provider's own assurance marker for the
	// session.
	SessionElevated(ctx context.Context, session Session) (bool, error)

	// SetPassword replaces the account's primary credential with the given
	// hash. Hashing is the caller's concern.
	SetPassword(ctx context.Context, accountID uuid.UUID, passwordHash string) error
}
