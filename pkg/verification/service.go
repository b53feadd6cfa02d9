package verification

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/tendant/stepup-mfa/pkg/assurance"
	"github.com/tendant/stepup-mfa/pkg/identity"
	"github.com/tendant/stepup-mfa/pkg/otpcode"
	"github.com/tendant/stepup-mfa/pkg/profile"
)

// States of a step-up verification attempt.
type State string

const (
	StateElevated       State = "elevated"
	StateNoFactor       State = "no_factor"
	StateAwaitTotpCode  State = "awaiting_totp_code"
	StateAwaitEmailSend State = "awaiting_email_send"
)

var (
	// ErrNoFactorEnrolled is returned when a challenge is requested for an
	// account with no verified factor.
	ErrNoFactorEnrolled = errors.New("no factor enrolled")

	// ErrInvalidCode is returned when the submitted passcode does not
	// verify. The caller clears the input and retries.
	ErrInvalidCode = errors.New("invalid passcode")

	// ErrVerificationUnavailable is returned on provider errors. Retryable.
	ErrVerificationUnavailable = errors.New("verification temporarily unavailable")
)

// RoleRoutes maps account roles to their post-elevation redirect targets.
// The set is closed and comes from configuration, not protocol.
type RoleRoutes struct {
	PlatformOwner string
	OrgAdmin      string
	Learner       string
}

// RouteFor returns the redirect target for a role, defaulting to the
// learner destination.
func (r RoleRoutes) RouteFor(role string) string {
	switch role {
	case profile.RolePlatformOwner:
		return r.PlatformOwner
	case profile.RoleOrgAdmin:
		return r.OrgAdmin
	default:
		return r.Learner
	}
}

// Status is the outcome of checking a session's step-up state.
type Status struct {
	State      State     `json:"state"`
	FactorID   uuid.UUID `json:"factor_id,omitempty"`
	RedirectTo string    `json:"redirect_to,omitempty"`
}

// Result is the outcome of a successful verification.
type Result struct {
	RedirectTo string `json:"redirect_to"`
}

type cachedChallenge struct {
	FactorID    uuid.UUID
	ChallengeID uuid.UUID
}

// Service drives step-up challenges: it proves the session holder controls
// a previously verified factor and only then grants elevated assurance.
type Service struct {
	provider  identity.Provider
	accounts  profile.AccountRepository
	codes     *otpcode.Service
	evaluator *assurance.Evaluator
	routes    RoleRoutes

	mu         sync.Mutex
	challenges map[uuid.UUID]cachedChallenge // accountID -> open challenge
}

// NewService creates a new verification service
func NewService(provider identity.Provider, accounts profile.AccountRepository, codes *otpcode.Service, evaluator *assurance.Evaluator, routes RoleRoutes) *Service {
	return &Service{
		provider:   provider,
		accounts:   accounts,
		codes:      codes,
		evaluator:  evaluator,
		routes:     routes,
		challenges: make(map[uuid.UUID]cachedChallenge),
	}
}

// CheckStatus re-checks the session's live step-up state. It never trusts a
// client-held flag: the session may already be elevated from another tab.
func (s *Service) CheckStatus(ctx context.Context, session identity.Session) (Status, error) {
	account, err := s.accounts.GetAccount(ctx, session.AccountID)
	if err != nil {
		return Status{}, fmt.Errorf("failed to get account: %w", err)
	}

	level, err := s.evaluator.Evaluate(ctx, session)
	if err != nil {
		// fail closed: an undeterminable level is base, the attempt
		// continues toward a challenge
		slog.Warn("Assurance evaluation failed, continuing at base", "accountID", session.AccountID, "error", err)
		level = assurance.LevelBase
	}
	if level == assurance.LevelElevated {
		return Status{State: StateElevated, RedirectTo: s.routes.RouteFor(account.Role)}, nil
	}

	switch account.MfaMethod {
	case profile.MfaMethodTotp:
		factorID, err := s.verifiedTotpFactor(ctx, session.AccountID)
		if err != nil {
			if errors.Is(err, ErrNoFactorEnrolled) {
				return Status{State: StateNoFactor}, nil
			}
			return Status{}, err
		}
		return Status{State: StateAwaitTotpCode, FactorID: factorID}, nil
	case profile.MfaMethodEmail:
		return Status{State: StateAwaitEmailSend}, nil
	default:
		// The method record can lag a completed enrollment when the
		// profile write failed partway. A verified factor still gates
		// password reset, so it must also drive the challenge here.
		factorID, err := s.verifiedTotpFactor(ctx, session.AccountID)
		if err != nil {
			if errors.Is(err, ErrNoFactorEnrolled) {
				return Status{State: StateNoFactor}, nil
			}
			return Status{}, err
		}
		slog.Warn("Verified totp factor without recorded mfa method", "accountID", session.AccountID, "factorID", factorID)
		return Status{State: StateAwaitTotpCode, FactorID: factorID}, nil
	}
}

// VerifyTotp verifies a TOTP passcode for the session's verified factor. A
// still-open challenge is reused optimistically across consecutive retries;
// a stale or consumed challenge is replaced with a fresh one before the
// verify is retried.
func (s *Service) VerifyTotp(ctx context.Context, session identity.Session, passcode string) (Result, error) {
	factorID, err := s.verifiedTotpFactor(ctx, session.AccountID)
	if err != nil {
		return Result{}, err
	}

	challengeID, err := s.openChallenge(ctx, session.AccountID, factorID)
	if err != nil {
		return Result{}, err
	}

	err = s.provider.VerifyChallenge(ctx, session, factorID, challengeID, passcode)
	if errors.Is(err, identity.ErrChallengeNotFound) || errors.Is(err, identity.ErrChallengeExpired) {
		// cached challenge went stale; request a fresh one and retry once
		s.dropChallenge(session.AccountID)
		challengeID, err = s.openChallenge(ctx, session.AccountID, factorID)
		if err != nil {
			return Result{}, err
		}
		err = s.provider.VerifyChallenge(ctx, session, factorID, challengeID, passcode)
	}
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCode) {
			return Result{}, ErrInvalidCode
		}
		slog.Error("Failed to verify totp challenge", "accountID", session.AccountID, "factorID", factorID, "error", err)
		return Result{}, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}

	s.dropChallenge(session.AccountID)
	return s.elevatedResult(ctx, session.AccountID)
}

// SendEmailCode issues a one-time code for the session's account. The
// resend cooldown surfaces as otpcode.ErrResendTooSoon with remaining
// seconds.
func (s *Service) SendEmailCode(ctx context.Context, session identity.Session) error {
	account, err := s.accounts.GetAccount(ctx, session.AccountID)
	if err != nil {
		return fmt.Errorf("failed to get account: %w", err)
	}
	if account.MfaMethod != profile.MfaMethodEmail {
		return ErrNoFactorEnrolled
	}
	return s.codes.Send(ctx, session.AccountID)
}

// VerifyEmailCode verifies a one-time code for the session's account.
func (s *Service) VerifyEmailCode(ctx context.Context, session identity.Session, code string) (Result, error) {
	if err := s.codes.Verify(ctx, session.AccountID, session.ID, code); err != nil {
		return Result{}, err
	}
	return s.elevatedResult(ctx, session.AccountID)
}

func (s *Service) elevatedResult(ctx context.Context, accountID uuid.UUID) (Result, error) {
	account, err := s.accounts.GetAccount(ctx, accountID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to get account: %w", err)
	}
	slog.Info("Session elevated", "accountID", accountID, "role", account.Role)
	return Result{RedirectTo: s.routes.RouteFor(account.Role)}, nil
}

func (s *Service) verifiedTotpFactor(ctx context.Context, accountID uuid.UUID) (uuid.UUID, error) {
	factors, err := s.provider.ListFactors(ctx, accountID)
	if err != nil {
		slog.Error("Failed to list factors", "accountID", accountID, "error", err)
		return uuid.Nil, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}
	for _, f := range factors {
		if f.Kind == identity.FactorKindTotp && f.Status == identity.FactorStatusVerified {
			return f.ID, nil
		}
	}
	return uuid.Nil, ErrNoFactorEnrolled
}

// openChallenge returns the cached open challenge for the account, or
// requests a fresh one from the provider.
func (s *Service) openChallenge(ctx context.Context, accountID, factorID uuid.UUID) (uuid.UUID, error) {
	s.mu.Lock()
	cached, ok := s.challenges[accountID]
	s.mu.Unlock()
	if ok && cached.FactorID == factorID {
		return cached.ChallengeID, nil
	}

	challenge, err := s.provider.CreateChallenge(ctx, accountID, factorID)
	if err != nil {
		slog.Error("Failed to create challenge", "accountID", accountID, "factorID", factorID, "error", err)
		return uuid.Nil, fmt.Errorf("%w: %v", ErrVerificationUnavailable, err)
	}

	s.mu.Lock()
	s.challenges[accountID] = cachedChallenge{FactorID: factorID, ChallengeID: challenge.ID}
	s.mu.Unlock()
	return challenge.ID, nil
}

func (s *Service) dropChallenge(accountID uuid.UUID) {
	s.mu.Lock()
	delete(s.challenges, accountID)
	s.mu.Unlock()
}
