package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xlzd/gotp"
)

func TestEnrollTotpIssuesProvisioning(t *testing.T) {
	provider := NewInMemProvider("stepup-test")
	accountID := uuid.New()

	factor, err := provider.EnrollTotp(context.Background(), accountID)
	require.NoError(t, err)

	assert.Equal(t, FactorKindTotp, factor.Kind)
	assert.Equal(t, FactorStatusUnverified, factor.Status)
	assert.NotEmpty(t, factor.Secret)
	assert.Contains(t, factor.URI, "otpauth://totp/")
	assert.Contains(t, factor.URI, factor.Secret)
}

func TestListFactorsStripsSecrets(t *testing.T) {
	provider := NewInMemProvider("stepup-test")
	accountID := uuid.New()
	ctx := context.Background()

	enrolled, err := provider.EnrollTotp(ctx, accountID)
	require.NoError(t, err)

	factors, err := provider.ListFactors(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, factors, 1)
	assert.Equal(t, enrolled.ID, factors[0].ID)
	assert.Empty(t, factors[0].Secret)
	assert.Empty(t, factors[0].URI)

	// Other accounts never see the factor
	factors, err = provider.ListFactors(ctx, uuid.New())
	require.NoError(t, err)
	assert.Empty(t, factors)
}

func TestVerifyChallengePromotesFactorAndElevatesSession(t *testing.T) {
	provider := NewInMemProvider("stepup-test")
	accountID := uuid.New()
	ctx := context.Background()

	session := provider.CreateSession(accountID)

	elevated, err := provider.SessionElevated(ctx, session)
	require.NoError(t, err)
	assert.False(t, elevated)

	factor, err := provider.EnrollTotp(ctx, accountID)
	require.NoError(t, err)

	challenge, err := provider.CreateChallenge(ctx, accountID, factor.ID)
	require.NoError(t, err)
	assert.Equal(t, factor.ID, challenge.FactorID)

	passcode := gotp.NewDefaultTOTP(factor.Secret).Now()
	err = provider.VerifyChallenge(ctx, session, factor.ID, challenge.ID, passcode)
	require.NoError(t, err)

	factors, err := provider.ListFactors(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, factors, 1)
	assert.Equal(t, FactorStatusVerified, factors[0].Status)

	elevated, err = provider.SessionElevated(ctx, session)
	require.NoError(t, err)
	assert.True(t, elevated)
}

func TestVerifyChallengeRejectsWrongPasscode(t *testing.T) {
	provider := NewInMemProvider("stepup-test")
	accountID := uuid.New()
	ctx := context.Background()

	session := provider.CreateSession(accountID)
	factor, err := provider.EnrollTotp(ctx, accountID)
	require.NoError(t, err)
	challenge, err := provider.CreateChallenge(ctx, accountID, factor.ID)
	require.NoError(t, err)

	err = provider.VerifyChallenge(ctx, session, factor.ID, challenge.ID, "000000")
	assert.ErrorIs(t, err, ErrInvalidCode)

	// factor stays unverified, session stays base
	factors, err := provider.ListFactors(ctx, accountID)
	require.NoError(t, err)
	require.Len(t, factors, 1)
	assert.Equal(t, FactorStatusUnverified, factors[0].Status)

	elevated, err := provider.SessionElevated(ctx, session)
	require.NoError(t, err)
	assert.False(t, elevated)
}

func TestVerifyChallengeExpired(t *testing.T) {
	now := time.Now()
	provider := NewInMemProvider("stepup-test").WithClock(func() time.Time { return now })
	accountID := uuid.New()
	ctx := context.Background()

	session := provider.CreateSession(accountID)
	factor, err := provider.EnrollTotp(ctx, accountID)
	require.NoError(t, err)
	challenge, err := provider.CreateChallenge(ctx, accountID, factor.ID)
	require.NoError(t, err)

	now = now.Add(challengeTTL + time.Second)

	passcode := gotp.NewDefaultTOTP(factor.Secret).Now()
	err = provider.VerifyChallenge(ctx, session, factor.ID, challenge.ID, passcode)
	assert.ErrorIs(t, err, ErrChallengeExpired)

	// the expired challenge is gone
	err = provider.VerifyChallenge(ctx, session, factor.ID, challenge.ID, passcode)
	assert.ErrorIs(t, err, ErrChallengeNotFound)
}

func TestUnenroll(t *testing.T) {
	provider := NewInMemProvider("stepup-test")
	accountID := uuid.New()
	ctx := context.Background()

	factor, err := provider.EnrollTotp(ctx, accountID)
	require.NoError(t, err)

	// wrong account cannot delete the factor
	err = provider.Unenroll(ctx, uuid.New(), factor.ID)
	assert.ErrorIs(t, err, ErrFactorNotFound)

	require.NoError(t, provider.Unenroll(ctx, accountID, factor.ID))

	factors, err := provider.ListFactors(ctx, accountID)
	require.NoError(t, err)
	assert.Empty(t, factors)
}

func TestSessionElevatedUnknownSession(t *testing.T) {
	provider := NewInMemProvider("stepup-test")

	_, err := provider.SessionElevated(context.Background(), Session{ID: "missing", AccountID: uuid.New()})
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSetPassword(t *testing.T) {
	provider := NewInMemProvider("stepup-test")
	accountID := uuid.New()

	require.NoError(t, provider.SetPassword(context.Background(), accountID, "hash-1"))
	assert.Equal(t, "hash-1", provider.PasswordHash(accountID))

	require.NoError(t, provider.SetPassword(context.Background(), accountID, "hash-2"))
	assert.Equal(t, "hash-2", provider.PasswordHash(accountID))
}
