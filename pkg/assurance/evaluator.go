package assurance

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/tendant/stepup-mfa/pkg/identity"
	"github.com/tendant/stepup-mfa/pkg/otpcode"
	"github.com/tendant/stepup-mfa/pkg/profile"
	"golang.org/x/exp/slog"
)

// Level is the session's authentication assurance level.
type Level string

const (
	LevelBase     Level = "base"
	LevelElevated Level = "elevated"
)

var (
	// ErrStepUpRequired is returned when a sensitive operation is
	// attempted at base assurance by an account that has a verified
	// factor.
	ErrStepUpRequired = errors.New("step-up verification required")
)

// Evaluator is the single source of truth for whether a session is elevated
// enough. It is recomputed on every call, never cached client-side.
type Evaluator struct {
	provider identity.Provider
	codes    *otpcode.Service
	accounts profile.AccountRepository
}

// NewEvaluator creates a new assurance evaluator
func NewEvaluator(provider identity.Provider, codes *otpcode.Service, accounts profile.AccountRepository) *Evaluator {
	return &Evaluator{
		provider: provider,
		codes:    codes,
		accounts: accounts,
	}
}

// Evaluate computes the current assurance level for the session. On any
// provider or store error it fails closed: the level returned alongside the
// error is always LevelBase.
func (e *Evaluator) Evaluate(ctx context.Context, session identity.Session) (Level, error) {
	elevated, err := e.provider.SessionElevated(ctx, session)
	if err != nil {
		slog.Warn("Failed to read provider assurance marker, treating as base", "accountID", session.AccountID, "error", err)
		return LevelBase, fmt.Errorf("failed to read session assurance: %w", err)
	}
	if elevated {
		return LevelElevated, nil
	}

	verified, err := e.codes.CheckSession(ctx, session.AccountID, session.ID)
	if err != nil {
		slog.Warn("Failed to read email mfa session marker, treating as base", "accountID", session.AccountID, "error", err)
		return LevelBase, fmt.Errorf("failed to read email mfa session: %w", err)
	}
	if verified {
		return LevelElevated, nil
	}

	return LevelBase, nil
}

// HasVerifiedFactor reports whether the account has any verified second
// factor: a verified TOTP factor at the provider, or a completed email
// method recorded on the account.
func (e *Evaluator) HasVerifiedFactor(ctx context.Context, accountID uuid.UUID) (bool, error) {
	account, err := e.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("failed to get account: %w", err)
	}
	if account.MfaMethod == profile.MfaMethodEmail {
		return true, nil
	}

	factors, err := e.provider.ListFactors(ctx, accountID)
	if err != nil {
		return false, fmt.Errorf("failed to list factors: %w", err)
	}
	for _, f := range factors {
		if f.Kind == identity.FactorKindTotp && f.Status == identity.FactorStatusVerified {
			return true, nil
		}
	}
	return false, nil
}

// RequireElevated gates a sensitive mutation. An account with any verified
// factor must hold elevated assurance; an account with no factor passes at
// base.
func (e *Evaluator) RequireElevated(ctx context.Context, session identity.Session) error {
	hasFactor, err := e.HasVerifiedFactor(ctx, session.AccountID)
	if err != nil {
		// fail closed: unknown factor state blocks the mutation
		return fmt.Errorf("%w: %v", ErrStepUpRequired, err)
	}
	if !hasFactor {
		return nil
	}

	level, err := e.Evaluate(ctx, session)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrStepUpRequired, err)
	}
	if level != LevelElevated {
		return ErrStepUpRequired
	}
	return nil
}
