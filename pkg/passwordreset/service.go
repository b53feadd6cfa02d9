package passwordreset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tendant/stepup-mfa/pkg/assurance"
	"github.com/tendant/stepup-mfa/pkg/identity"
	"golang.org/x/crypto/bcrypt"
)

// ErrEmptyPassword is returned when the submitted password is blank.
var ErrEmptyPassword = errors.New("password cannot be empty")

// Service completes password resets for authenticated sessions. The
// mutation is refused at base assurance whenever the account holds a
// verified second factor.
type Service struct {
	provider  identity.Provider
	evaluator *assurance.Evaluator
}

// NewService creates a new password reset service
func NewService(provider identity.Provider, evaluator *assurance.Evaluator) *Service {
	return &Service{
		provider:  provider,
		evaluator: evaluator,
	}
}

// Reset hashes and writes the new primary credential for the session's own
// account, after the step-up gate passes.
func (s *Service) Reset(ctx context.Context, session identity.Session, newPassword string) error {
	if newPassword == "" {
		return ErrEmptyPassword
	}

	if err := s.evaluator.RequireElevated(ctx, session); err != nil {
		return err
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	if err := s.provider.SetPassword(ctx, session.AccountID, string(hashedPassword)); err != nil {
		slog.Error("Failed to update password", "accountID", session.AccountID, "error", err)
		return fmt.Errorf("failed to update password: %w", err)
	}

	slog.Info("Password reset completed", "accountID", session.AccountID)
	return nil
}
