package enrollment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/tendant/stepup-mfa/pkg/identity"
	"github.com/tendant/stepup-mfa/pkg/otpcode"
	"github.com/tendant/stepup-mfa/pkg/profile"
)

var (
	// ErrInvalidCode is returned when the submitted passcode does not
	// verify. The factor state is untouched and the caller may retry.
	ErrInvalidCode = errors.New("invalid passcode")

	// ErrEnrollmentUnavailable is returned when the identity provider
	// cannot be reached. It is retryable and must never be read as "no
	// factor enrolled".
	ErrEnrollmentUnavailable = errors.New("enrollment temporarily unavailable")
)

// TotpProvisioning is the result of starting a TOTP enrollment. When
// AlreadyEnrolled is set the account already holds a verified TOTP factor
// and no new secret was issued.
type TotpProvisioning struct {
	FactorID        uuid.UUID `json:"factor_id"`
	Secret          string    `json:"secret,omitempty"`
	URI             string    `json:"uri,omitempty"`
	AlreadyEnrolled bool      `json:"already_enrolled"`
}

// Service drives the two enrollment flows to completion, binding exactly
// one verified second factor to an account.
type Service struct {
	provider identity.Provider
	accounts profile.AccountRepository
	codes    *otpcode.Service
}

// NewService creates a new enrollment service
func NewService(provider identity.Provider, accounts profile.AccountRepository, codes *otpcode.Service) *Service {
	return &Service{
		provider: provider,
		accounts: accounts,
		codes:    codes,
	}
}

// StartTotp begins a TOTP enrollment. A verified TOTP factor short-circuits
// to success without re-issuing a secret. Stale unverified factors from
// abandoned attempts are deleted first so retries cannot collide.
func (s *Service) StartTotp(ctx context.Context, accountID uuid.UUID) (TotpProvisioning, error) {
	factors, err := s.provider.ListFactors(ctx, accountID)
	if err != nil {
		slog.Error("Failed to list factors", "accountID", accountID, "error", err)
		return TotpProvisioning{}, fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}

	for _, f := range factors {
		if f.Kind == identity.FactorKindTotp && f.Status == identity.FactorStatusVerified {
			slog.Info("Account already has a verified totp factor, skipping enrollment", "accountID", accountID, "factorID", f.ID)
			return TotpProvisioning{FactorID: f.ID, AlreadyEnrolled: true}, nil
		}
	}

	// clean up abandoned attempts; a failed deletion is logged, not fatal
	for _, f := range factors {
		if f.Kind != identity.FactorKindTotp || f.Status != identity.FactorStatusUnverified {
			continue
		}
		if err := s.provider.Unenroll(ctx, accountID, f.ID); err != nil {
			slog.Warn("Failed to delete stale unverified factor", "accountID", accountID, "factorID", f.ID, "error", err)
		}
	}

	factor, err := s.provider.EnrollTotp(ctx, accountID)
	if err != nil {
		slog.Error("Failed to enroll totp factor", "accountID", accountID, "error", err)
		return TotpProvisioning{}, fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}

	return TotpProvisioning{
		FactorID: factor.ID,
		Secret:   factor.Secret,
		URI:      factor.URI,
	}, nil
}

// CompleteTotp verifies the submitted passcode against the pending factor.
// On success the factor is promoted and the account's MFA method is set to
// totp.
func (s *Service) CompleteTotp(ctx context.Context, session identity.Session, factorID uuid.UUID, passcode string) error {
	challenge, err := s.provider.CreateChallenge(ctx, session.AccountID, factorID)
	if err != nil {
		slog.Error("Failed to create enrollment challenge", "accountID", session.AccountID, "factorID", factorID, "error", err)
		return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}

	err = s.provider.VerifyChallenge(ctx, session, factorID, challenge.ID, passcode)
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCode) {
			return ErrInvalidCode
		}
		slog.Error("Failed to verify enrollment challenge", "accountID", session.AccountID, "factorID", factorID, "error", err)
		return fmt.Errorf("%w: %v", ErrEnrollmentUnavailable, err)
	}

	if err := s.accounts.SetMfaMethod(ctx, session.AccountID, profile.MfaMethodTotp); err != nil {
		slog.Error("Failed to record totp mfa method", "accountID", session.AccountID, "error", err)
		return fmt.Errorf("failed to record mfa method: %w", err)
	}

	slog.Info("Totp enrollment completed", "accountID", session.AccountID, "factorID", factorID)
	return nil
}

// StartEmail begins the email enrollment flow by resolving the account's
// destination address. No code is issued here; that is SendEmail's job.
func (s *Service) StartEmail(ctx context.Context, accountID uuid.UUID) (string, error) {
	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return "", fmt.Errorf("failed to get account: %w", err)
	}
	return account.Email, nil
}

// SendEmail issues the enrollment one-time code. Resends go through the
// same call and hit the code service's cooldown.
func (s *Service) SendEmail(ctx context.Context, accountID uuid.UUID) error {
	if _, err := s.accounts.GetAccount(ctx, accountID); err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}
	return s.codes.Send(ctx, accountID)
}

// CompleteEmail verifies the submitted one-time code and records email as
// the account's MFA method. No provider factor object is created for the
// email method.
func (s *Service) CompleteEmail(ctx context.Context, session identity.Session, code string) error {
	if err := s.codes.Verify(ctx, session.AccountID, session.ID, code); err != nil {
		return err
	}

	if err := s.accounts.SetMfaMethod(ctx, session.AccountID, profile.MfaMethodEmail); err != nil {
		slog.Error("Failed to record email mfa method", "accountID", session.AccountID, "error", err)
		return fmt.Errorf("failed to record mfa method: %w", err)
	}

	slog.Info("Email enrollment completed", "accountID", session.AccountID)
	return nil
}
