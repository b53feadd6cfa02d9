package otpcode

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrCodeNotFound = errors.New("one-time code not found")
)

// Code represents a stored one-time code. A code is live when it is neither
// consumed nor expired.
type Code struct {
	ID         uuid.UUID
	AccountID  uuid.UUID
	Code       string
	CreatedAt  time.Time
	ExpiresAt  time.Time
	ConsumedAt *time.Time
}

// CreateCodeParams represents parameters for persisting a new code.
type CreateCodeParams struct {
	AccountID uuid.UUID
	Code      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// CodeRepository defines the interface for one-time code storage. The
// repository also holds the per-session elevation markers written on a
// successful verify.
type CodeRepository interface {
	// CreateCode persists a new code for the account.
	CreateCode(ctx context.Context, params CreateCodeParams) (Code, error)

	// GetLatestCode returns the most recently created code for the
	// account, consumed or not. Used to derive the resend cooldown.
	GetLatestCode(ctx context.Context, accountID uuid.UUID) (Code, error)

	// ConsumeCode marks a code consumed at the given time.
	ConsumeCode(ctx context.Context, codeID uuid.UUID, consumedAt time.Time) error

	// InvalidateCodes marks all outstanding unconsumed codes for the
	// account as consumed.
	InvalidateCodes(ctx context.Context, accountID uuid.UUID, consumedAt time.Time) error

	// MarkSessionVerified records that the session passed an email code
	// challenge.
	MarkSessionVerified(ctx context.Context, accountID uuid.UUID, sessionID string, verifiedAt time.Time) error

	// IsSessionVerified reports whether the session holds a valid
	// elevation marker.
	IsSessionVerified(ctx context.Context, accountID uuid.UUID, sessionID string) (bool, error)
}
