package otpcode

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/stepup-mfa/pkg/notice"
	"github.com/tendant/stepup-mfa/pkg/notification"
	"github.com/tendant/stepup-mfa/pkg/profile"
)

type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time {
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func setupService(t *testing.T) (*Service, *notification.MockNotifier, *testClock, uuid.UUID) {
	t.Helper()

	accounts := profile.NewInMemoryAccountRepository()
	account, err := accounts.CreateAccount(context.Background(), profile.CreateAccountParams{
		Email: "learner@example.com",
		Role:  profile.RoleLearner,
	})
	require.NoError(t, err)

	mockNotifier := &notification.MockNotifier{}
	notificationManager, err := notice.NewNotificationManager(
		notice.WithNotifier(notification.EmailSystem, mockNotifier),
		notice.WithDefaultTemplates(),
	)
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	codes := []string{"111111", "222222", "333333"}
	i := 0
	service := NewService(NewInMemoryCodeRepository(), accounts, notificationManager,
		WithClock(clock.Now),
		WithCodeGenerator(func() (string, error) {
			code := codes[i%len(codes)]
			i++
			return code, nil
		}),
	)

	return service, mockNotifier, clock, account.ID
}

func TestSendDeliversCode(t *testing.T) {
	service, mockNotifier, _, accountID := setupService(t)
	ctx := context.Background()

	err := service.Send(ctx, accountID)
	require.NoError(t, err)

	sent := mockNotifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, "learner@example.com", sent[0].To)
	assert.Equal(t, "111111", sent[0].Data["Passcode"])
	assert.Equal(t, "5", sent[0].Data["ExpiryMinutes"])
}

func TestSendWithinCooldown(t *testing.T) {
	service, _, clock, accountID := setupService(t)
	ctx := context.Background()

	require.NoError(t, service.Send(ctx, accountID))

	clock.Advance(10 * time.Second)
	err := service.Send(ctx, accountID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResendTooSoon)

	var tooSoon *ResendTooSoonError
	require.ErrorAs(t, err, &tooSoon)
	assert.Equal(t, 50, tooSoon.RemainingSeconds())

	// the refused resend leaves the original code live
	require.NoError(t, service.Verify(ctx, accountID, "session-1", "111111"))
}

func TestSendAfterCooldownInvalidatesPriorCode(t *testing.T) {
	service, _, clock, accountID := setupService(t)
	ctx := context.Background()

	require.NoError(t, service.Send(ctx, accountID))

	clock.Advance(61 * time.Second)
	require.NoError(t, service.Send(ctx, accountID))

	// Superseded first code must not verify
	err := service.Verify(ctx, accountID, "session-1", "111111")
	assert.ErrorIs(t, err, ErrMismatch)

	// The latest code does
	require.NoError(t, service.Verify(ctx, accountID, "session-1", "222222"))
}

func TestVerifyConsumesCode(t *testing.T) {
	service, _, _, accountID := setupService(t)
	ctx := context.Background()

	require.NoError(t, service.Send(ctx, accountID))
	require.NoError(t, service.Verify(ctx, accountID, "session-1", "111111"))

	verified, err := service.CheckSession(ctx, accountID, "session-1")
	require.NoError(t, err)
	assert.True(t, verified)

	// Consume-once: the same code can never verify again
	err = service.Verify(ctx, accountID, "session-2", "111111")
	assert.ErrorIs(t, err, ErrNoActiveCode)

	verified, err = service.CheckSession(ctx, accountID, "session-2")
	require.NoError(t, err)
	assert.False(t, verified)
}

func TestVerifyMismatchKeepsCodeLive(t *testing.T) {
	service, _, _, accountID := setupService(t)
	ctx := context.Background()

	require.NoError(t, service.Send(ctx, accountID))

	err := service.Verify(ctx, accountID, "session-1", "999999")
	assert.ErrorIs(t, err, ErrMismatch)

	// A mismatch must not consume the live code
	require.NoError(t, service.Verify(ctx, accountID, "session-1", "111111"))
}

func TestVerifyExpiredCode(t *testing.T) {
	service, _, clock, accountID := setupService(t)
	ctx := context.Background()

	require.NoError(t, service.Send(ctx, accountID))

	clock.Advance(5*time.Minute + time.Second)

	// Exact match still fails after expiry
	err := service.Verify(ctx, accountID, "session-1", "111111")
	assert.ErrorIs(t, err, ErrExpired)

	// The expired code was eagerly invalidated
	err = service.Verify(ctx, accountID, "session-1", "111111")
	assert.ErrorIs(t, err, ErrNoActiveCode)
}

func TestVerifyWithoutCode(t *testing.T) {
	service, _, _, accountID := setupService(t)

	err := service.Verify(context.Background(), accountID, "session-1", "111111")
	assert.ErrorIs(t, err, ErrNoActiveCode)
}

func TestSecondsUntilResend(t *testing.T) {
	service, _, clock, accountID := setupService(t)
	ctx := context.Background()

	remaining, err := service.SecondsUntilResend(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)

	require.NoError(t, service.Send(ctx, accountID))

	remaining, err = service.SecondsUntilResend(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, 60, remaining)

	clock.Advance(45 * time.Second)
	remaining, err = service.SecondsUntilResend(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, 15, remaining)

	clock.Advance(15 * time.Second)
	remaining, err = service.SecondsUntilResend(ctx, accountID)
	require.NoError(t, err)
	assert.Equal(t, 0, remaining)
}

func TestGenerateCodeFormat(t *testing.T) {
	for i := 0; i < 100; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		require.Len(t, code, CODE_LENGTH)
		for _, ch := range code {
			assert.True(t, ch >= '0' && ch <= '9', "code must be numeric: %s", code)
		}
	}
}

func TestResendTooSoonErrorUnwraps(t *testing.T) {
	err := &ResendTooSoonError{Remaining: 1500 * time.Millisecond}
	assert.True(t, errors.Is(err, ErrResendTooSoon))
	assert.Equal(t, 2, err.RemainingSeconds())
}

func TestConcurrentSendsLeaveOneLiveCode(t *testing.T) {
	accounts := profile.NewInMemoryAccountRepository()
	account, err := accounts.CreateAccount(context.Background(), profile.CreateAccountParams{
		Email: "learner@example.com",
		Role:  profile.RoleLearner,
	})
	require.NoError(t, err)

	notificationManager, err := notice.NewNotificationManager(
		notice.WithNotifier(notification.EmailSystem, &notification.MockNotifier{}),
		notice.WithDefaultTemplates(),
	)
	require.NoError(t, err)

	repo := NewInMemoryCodeRepository()
	service := NewService(repo, accounts, notificationManager, WithCooldown(0))

	ctx := context.Background()
	for round := 0; round < 5; round++ {
		var wg sync.WaitGroup
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, service.Send(ctx, account.ID))
			}()
		}
		wg.Wait()

		live := 0
		repo.mu.RLock()
		for _, c := range repo.codes[account.ID] {
			if c.ConsumedAt == nil {
				live++
			}
		}
		repo.mu.RUnlock()
		require.Equal(t, 1, live, "round %d", round)
	}
}
