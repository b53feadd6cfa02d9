package identity

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
)

const (
	TOTP_PERIOD = 30
	TOTP_SKEW   = 1

	challengeTTL = 5 * time.Minute
)

// InMemProvider is an in-memory identity provider used by tests and the
// inmem demo binary. TOTP enrollment and validation are backed by
// pquerna/otp; everything else lives in maps guarded by a single mutex.
type InMemProvider struct {
	mu         sync.RWMutex
	issuer     string
	factors    map[uuid.UUID]Factor            // factorID -> factor (secret retained internally)
	challenges map[uuid.UUID]Challenge         // challengeID -> challenge
	sessions   map[string]sessionState         // sessionID -> state
	passwords  map[uuid.UUID]string            // accountID -> password hash
	now        func() time.Time
}

type sessionState struct {
	AccountID uuid.UUID
	Elevated  bool
}

// NewInMemProvider creates a new in-memory identity provider. The issuer is
// used in provisioning URIs.
func NewInMemProvider(issuer string) *InMemProvider {
	return &InMemProvider{
		issuer:     issuer,
		factors:    make(map[uuid.UUID]Factor),
		challenges: make(map[uuid.UUID]Challenge),
		sessions:   make(map[string]sessionState),
		passwords:  make(map[uuid.UUID]string),
		now:        time.Now,
	}
}

// WithClock overrides the provider's clock, for tests.
func (p *InMemProvider) WithClock(now func() time.Time) *InMemProvider {
	p.now = now
	return p
}

// CreateSession registers a base session for an account and returns it.
func (p *InMemProvider) CreateSession(accountID uuid.UUID) Session {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := uuid.New().String()
	p.sessions[id] = sessionState{AccountID: accountID}
	return Session{ID: id, AccountID: accountID}
}

func (p *InMemProvider) EnrollTotp(ctx context.Context, accountID uuid.UUID) (Factor, error) {
	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      p.issuer,
		AccountName: accountID.String(),
	})
	if err != nil {
		slog.Error("Failed to generate totp secret", "accountID", accountID, "issuer", p.issuer, "error", err)
		return Factor{}, fmt.Errorf("failed to generate totp secret: %w", err)
	}

	factor := Factor{
		ID:        uuid.New(),
		AccountID: accountID,
		Kind:      FactorKindTotp,
		Status:    FactorStatusUnverified,
		Secret:    key.Secret(),
		URI:       key.URL(),
		CreatedAt: p.now().UTC(),
	}

	p.mu.Lock()
	p.factors[factor.ID] = factor
	p.mu.Unlock()

	slog.Info("Enrolled new totp factor", "accountID", accountID, "factorID", factor.ID)
	return factor, nil
}

func (p *InMemProvider) ListFactors(ctx context.Context, accountID uuid.UUID) ([]Factor, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	factors := []Factor{}
	for _, f := range p.factors {
		if f.AccountID != accountID {
			continue
		}
		// secrets never leave the factor store after enrollment
		f.Secret = ""
		f.URI = ""
		factors = append(factors, f)
	}
	return factors, nil
}

func (p *InMemProvider) Unenroll(ctx context.Context, accountID, factorID uuid.UUID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	factor, ok := p.factors[factorID]
	if !ok || factor.AccountID != accountID {
		return ErrFactorNotFound
	}
	delete(p.factors, factorID)
	return nil
}

func (p *InMemProvider) CreateChallenge(ctx context.Context, accountID, factorID uuid.UUID) (Challenge, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	factor, ok := p.factors[factorID]
	if !ok || factor.AccountID != accountID {
		return Challenge{}, ErrFactorNotFound
	}

	challenge := Challenge{
		ID:        uuid.New(),
		FactorID:  factorID,
		ExpiresAt: p.now().UTC().Add(challengeTTL),
	}
	p.challenges[challenge.ID] = challenge
	return challenge, nil
}

func (p *InMemProvider) VerifyChallenge(ctx context.Context, session Session, factorID, challengeID uuid.UUID, passcode string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	challenge, ok := p.challenges[challengeID]
	if !ok || challenge.FactorID != factorID {
		return ErrChallengeNotFound
	}
	if p.now().UTC().After(challenge.ExpiresAt) {
		delete(p.challenges, challengeID)
		return ErrChallengeExpired
	}

	factor, ok := p.factors[factorID]
	if !ok {
		return ErrFactorNotFound
	}

	valid, err := totp.ValidateCustom(passcode, factor.Secret, p.now().UTC(), totp.ValidateOpts{
		Period:    TOTP_PERIOD,
		Skew:      TOTP_SKEW,
		Digits:    otp.DigitsSix,
		Algorithm: otp.AlgorithmSHA1,
	})
	if err != nil {
		slog.Error("Failed to validate totp passcode", "factorID", factorID, "error", err)
		return fmt.Errorf("failed to validate totp passcode: %w", err)
	}
	if !valid {
		return ErrInvalidCode
	}

	// consume the challenge and promote the factor
	delete(p.challenges, challengeID)
	if factor.Status == FactorStatusUnverified {
		factor.Status = FactorStatusVerified
		p.factors[factorID] = factor
	}

	if state, ok := p.sessions[session.ID]; ok {
		state.Elevated = true
		p.sessions[session.ID] = state
	}
	return nil
}

func (p *InMemProvider) SessionElevated(ctx context.Context, session Session) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	state, ok := p.sessions[session.ID]
	if !ok {
		return false, ErrSessionNotFound
	}
	return state.Elevated, nil
}

func (p *InMemProvider) SetPassword(ctx context.Context, accountID uuid.UUID, passwordHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.passwords[accountID] = passwordHash
	return nil
}

// PasswordHash returns the stored credential hash, for tests.
func (p *InMemProvider) PasswordHash(accountID uuid.UUID) string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.passwords[accountID]
}
