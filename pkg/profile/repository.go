package profile

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Account roles form a small closed set; routing after step-up is keyed by
// them.
const (
	RolePlatformOwner = "platform_owner"
	RoleOrgAdmin      = "org_admin"
	RoleLearner       = "learner"
)

// MFA methods recordable on an account.
const (
	MfaMethodNone  = ""
	MfaMethodTotp  = "totp"
	MfaMethodEmail = "email"
)

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrInvalidMfaMethod = errors.New("invalid mfa method")
	ErrInvalidRole      = errors.New("invalid role")
)

// Account represents a user identity as read from the profile store.
type Account struct {
	ID        uuid.UUID `json:"id"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	OrgID     uuid.UUID `json:"org_id"`
	MfaMethod string    `json:"mfa_method"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateAccountParams represents parameters for creating an account record.
type CreateAccountParams struct {
	ID    uuid.UUID
	Email string
	Role  string
	OrgID uuid.UUID
}

// AccountRepository defines the interface for account profile operations.
type AccountRepository interface {
	GetAccount(ctx context.Context, id uuid.UUID) (Account, error)
	CreateAccount(ctx context.Context, params CreateAccountParams) (Account, error)
	SetMfaMethod(ctx context.Context, id uuid.UUID, method string) error
}

// ValidateRole checks if the given role is one of the closed role set.
func ValidateRole(role string) error {
	switch role {
	case RolePlatformOwner, RoleOrgAdmin, RoleLearner:
		return nil
	default:
		return ErrInvalidRole
	}
}

// ValidateMfaMethod checks if the given method is a valid MFA method.
func ValidateMfaMethod(method string) error {
	switch method {
	case MfaMethodNone, MfaMethodTotp, MfaMethodEmail:
		return nil
	default:
		return ErrInvalidMfaMethod
	}
}
