package otpcode

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/stepup-mfa/pkg/notice"
	"github.com/tendant/stepup-mfa/pkg/notification"
	"github.com/tendant/stepup-mfa/pkg/profile"
)

const (
	CODE_LENGTH = 6

	defaultExpiry   = 5 * time.Minute
	defaultCooldown = 60 * time.Second
)

// Service generates, stores, expires and verifies mailed one-time codes. At
// most one live code exists per account; sends for the same account are
// serialized so concurrent requests cannot leave two live codes.
type Service struct {
	repo                CodeRepository
	accounts            profile.AccountRepository
	notificationManager *notification.NotificationManager

	expiry   time.Duration
	cooldown time.Duration
	now      func() time.Time
	generate func() (string, error)

	sendMu sync.Map // accountID -> *sync.Mutex
}

// ServiceOption defines configuration options
type ServiceOption func(*Service)

// WithExpiry sets the code expiration duration
func WithExpiry(expiry time.Duration) ServiceOption {
	return func(s *Service) {
		s.expiry = expiry
	}
}

// WithCooldown sets the resend cooldown duration
func WithCooldown(cooldown time.Duration) ServiceOption {
	return func(s *Service) {
		s.cooldown = cooldown
	}
}

// WithClock overrides the service clock, for tests
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) {
		s.now = now
	}
}

// WithCodeGenerator overrides the random code source, for tests
func WithCodeGenerator(generate func() (string, error)) ServiceOption {
	return func(s *Service) {
		s.generate = generate
	}
}

// NewService creates a new one-time code service
func NewService(repo CodeRepository, accounts profile.AccountRepository, notificationManager *notification.NotificationManager, opts ...ServiceOption) *Service {
	service := &Service{
		repo:                repo,
		accounts:            accounts,
		notificationManager: notificationManager,
		expiry:              defaultExpiry,
		cooldown:            defaultCooldown,
		now:                 time.Now,
	}
	service.generate = generateCode

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// generateCode generates a fixed-length numeric code from a
// cryptographically strong random source
func generateCode() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < CODE_LENGTH; i++ {
		max.Mul(max, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate code: %w", err)
	}
	return fmt.Sprintf("%0*d", CODE_LENGTH, n), nil
}

func (s *Service) accountLock(accountID uuid.UUID) *sync.Mutex {
	mu, _ := s.sendMu.LoadOrStore(accountID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Send issues a new code for the account and dispatches it by email. Any
// prior live code is invalidated before the new one becomes visible; the
// new code is fully persisted before Send returns.
func (s *Service) Send(ctx context.Context, accountID uuid.UUID) error {
	mu := s.accountLock(accountID)
	mu.Lock()
	defer mu.Unlock()

	now := s.now().UTC()

	latest, err := s.repo.GetLatestCode(ctx, accountID)
	if err != nil && !errors.Is(err, ErrCodeNotFound) {
		return fmt.Errorf("failed to check resend window: %w", err)
	}
	if err == nil {
		sinceLast := now.Sub(latest.CreatedAt)
		if sinceLast < s.cooldown {
			return &ResendTooSoonError{Remaining: s.cooldown - sinceLast}
		}
	}

	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		slog.Error("Failed to get account for code delivery", "accountID", accountID, "error", err)
		return fmt.Errorf("failed to get account: %w", err)
	}

	code, err := s.generate()
	if err != nil {
		return err
	}

	if err := s.repo.InvalidateCodes(ctx, accountID, now); err != nil {
		return fmt.Errorf("failed to invalidate prior codes: %w", err)
	}

	created, err := s.repo.CreateCode(ctx, CreateCodeParams{
		AccountID: accountID,
		Code:      code,
		CreatedAt: now,
		ExpiresAt: now.Add(s.expiry),
	})
	if err != nil {
		return fmt.Errorf("failed to create code: %w", err)
	}

	if err := s.sendCodeEmail(ctx, account.Email, code); err != nil {
		slog.Error("Failed to send one-time code email", "accountID", accountID, "error", err)
		return fmt.Errorf("failed to send code: %w", err)
	}

	slog.Info("One-time code issued", "accountID", accountID, "codeID", created.ID, "expiresAt", created.ExpiresAt)
	return nil
}

// Verify checks the submitted value against the account's live code. On a
// match the code is consumed and the session's elevation marker is
// recorded; a consumed or superseded code can never verify again.
func (s *Service) Verify(ctx context.Context, accountID uuid.UUID, sessionID, submitted string) error {
	now := s.now().UTC()

	code, err := s.repo.GetLatestCode(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return ErrNoActiveCode
		}
		return fmt.Errorf("failed to get code: %w", err)
	}
	if code.ConsumedAt != nil {
		return ErrNoActiveCode
	}
	if !now.Before(code.ExpiresAt) {
		// eagerly invalidate so no later code considers this one prior
		if err := s.repo.ConsumeCode(ctx, code.ID, now); err != nil {
			slog.Error("Failed to invalidate expired code", "codeID", code.ID, "error", err)
		}
		return ErrExpired
	}

	if subtle.ConstantTimeCompare([]byte(code.Code), []byte(submitted)) != 1 {
		return ErrMismatch
	}

	if err := s.repo.ConsumeCode(ctx, code.ID, now); err != nil {
		return fmt.Errorf("failed to consume code: %w", err)
	}
	if err := s.repo.MarkSessionVerified(ctx, accountID, sessionID, now); err != nil {
		return fmt.Errorf("failed to mark session verified: %w", err)
	}

	slog.Info("One-time code verified", "accountID", accountID, "codeID", code.ID)
	return nil
}

// CheckSession reports whether the session already passed an email code
// challenge, so repeated step-up prompts within the same session are
// skipped.
func (s *Service) CheckSession(ctx context.Context, accountID uuid.UUID, sessionID string) (bool, error) {
	return s.repo.IsSessionVerified(ctx, accountID, sessionID)
}

// SecondsUntilResend returns the remaining cooldown, zero when a send is
// allowed now. The countdown is a pure function of the stored timestamp.
func (s *Service) SecondsUntilResend(ctx context.Context, accountID uuid.UUID) (int, error) {
	latest, err := s.repo.GetLatestCode(ctx, accountID)
	if err != nil {
		if errors.Is(err, ErrCodeNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to get code: %w", err)
	}

	remaining := s.cooldown - s.now().UTC().Sub(latest.CreatedAt)
	if remaining <= 0 {
		return 0, nil
	}
	e := &ResendTooSoonError{Remaining: remaining}
	return e.RemainingSeconds(), nil
}

func (s *Service) sendCodeEmail(ctx context.Context, email, code string) error {
	data := map[string]string{
		"Passcode":      code,
		"ExpiryMinutes": fmt.Sprintf("%.0f", s.expiry.Minutes()),
	}
	return s.notificationManager.Send(notice.MfaCodeNotice, notification.NotificationData{
		To:   email,
		Data: data,
	})
}
