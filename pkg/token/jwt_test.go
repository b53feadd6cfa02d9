package token

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/stepup-mfa/pkg/identity"
)

func TestSessionTokenRoundTrip(t *testing.T) {
	service := NewJwtService("test-secret", "stepup-test", "stepup-test")
	session := identity.Session{ID: "sess-1", AccountID: uuid.New()}

	tokenStr, expiresAt, err := service.GenerateSessionToken(session, time.Hour)
	require.NoError(t, err)
	assert.NotEmpty(t, tokenStr)
	assert.True(t, expiresAt.After(time.Now()))

	req := httptest.NewRequest(http.MethodGet, "/mfa/status", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)

	got, err := service.SessionFromRequest(req)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, session.AccountID, got.AccountID)
}

func TestSessionFromRequestMissingHeader(t *testing.T) {
	service := NewJwtService("test-secret", "stepup-test", "stepup-test")

	req := httptest.NewRequest(http.MethodGet, "/mfa/status", nil)
	_, err := service.SessionFromRequest(req)
	assert.ErrorIs(t, err, ErrMissingToken)

	req.Header.Set("Authorization", "Basic abc")
	_, err = service.SessionFromRequest(req)
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestSessionFromRequestGarbageToken(t *testing.T) {
	service := NewJwtService("test-secret", "stepup-test", "stepup-test")

	req := httptest.NewRequest(http.MethodGet, "/mfa/status", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")

	_, err := service.SessionFromRequest(req)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSessionFromRequestWrongSecret(t *testing.T) {
	service := NewJwtService("test-secret", "stepup-test", "stepup-test")
	other := NewJwtService("other-secret", "stepup-test", "stepup-test")

	tokenStr, _, err := other.GenerateSessionToken(identity.Session{ID: "sess-1", AccountID: uuid.New()}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/mfa/status", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)

	_, err = service.SessionFromRequest(req)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestUnsignedTokenRejected(t *testing.T) {
	service := NewJwtService("test-secret", "stepup-test", "stepup-test")

	claims := jwt.MapClaims{
		"sub": uuid.New().String(),
		"iss": "stepup-test",
		"aud": "stepup-test",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	tokenStr, err := unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/mfa/status", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)

	_, err = service.SessionFromRequest(req)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestWrongIssuerOrAudienceRejected(t *testing.T) {
	service := NewJwtService("test-secret", "stepup-test", "stepup-test")
	session := identity.Session{ID: "sess-1", AccountID: uuid.New()}

	otherIssuer := NewJwtService("test-secret", "someone-else", "stepup-test")
	tokenStr, _, err := otherIssuer.GenerateSessionToken(session, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/mfa/status", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)
	_, err = service.SessionFromRequest(req)
	assert.ErrorIs(t, err, ErrInvalidToken)

	otherAudience := NewJwtService("test-secret", "stepup-test", "someone-else")
	tokenStr, _, err = otherAudience.GenerateSessionToken(session, time.Hour)
	require.NoError(t, err)

	req.Header.Set("Authorization", "Bearer "+tokenStr)
	_, err = service.SessionFromRequest(req)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestExpiredTokenRejected(t *testing.T) {
	service := NewJwtService("test-secret", "stepup-test", "stepup-test")

	tokenStr, _, err := service.GenerateSessionToken(identity.Session{ID: "sess-1", AccountID: uuid.New()}, -time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/mfa/status", nil)
	req.Header.Set("Authorization", "Bearer "+tokenStr)

	_, err = service.SessionFromRequest(req)
	assert.ErrorIs(t, err, ErrInvalidToken)
}
