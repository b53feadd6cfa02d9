package token

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/tendant/stepup-mfa/pkg/identity"
)

var (
	ErrMissingToken = errors.New("missing or invalid authorization header")
	ErrInvalidToken = errors.New("invalid access token")
)

// Claims struct for JWT claims
type Claims struct {
	CustomClaims map[string]interface{} `json:"custom_claims,omitempty"`
	jwt.RegisteredClaims
}

// JwtService parses and mints the bearer tokens that carry the provider's
// session identity. The subject is the account id; the session id rides in
// custom claims.
type JwtService struct {
	Secret   string
	Issuer   string
	Audience string
}

// NewJwtService creates a new JwtService
func NewJwtService(secret, issuer, audience string) *JwtService {
	return &JwtService{
		Secret:   secret,
		Issuer:   issuer,
		Audience: audience,
	}
}

// GenerateSessionToken creates a bearer token for a session.
func (s *JwtService) GenerateSessionToken(session identity.Session, expiry time.Duration) (string, time.Time, error) {
	claims := Claims{
		CustomClaims: map[string]interface{}{
			"session_id": session.ID,
		},
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().UTC().Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(time.Now().UTC()),
			NotBefore: jwt.NewNumericDate(time.Now().UTC().Add(-5 * time.Minute)),
			Issuer:    s.Issuer,
			Subject:   session.AccountID.String(),
			ID:        uuid.New().String(),
			Audience:  jwt.ClaimStrings{s.Audience},
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	ss, err := token.SignedString([]byte(s.Secret))
	if err != nil {
		slog.Error("Failed to sign JWT claim string!", "err", err)
		return "", time.Time{}, err
	}
	return ss, claims.ExpiresAt.Time, nil
}

// ParseToken parses and validates a token string
func (s *JwtService) ParseToken(tokenStr string) (*jwt.Token, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.Secret), nil
	},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(s.Issuer),
		jwt.WithAudience(s.Audience),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid {
		return nil, ErrInvalidToken
	}
	return token, nil
}

// SessionFromRequest extracts the caller's session from the Authorization
// bearer token. Handlers never accept a cross-account parameter; the
// session in the token is the only identity in play.
func (s *JwtService) SessionFromRequest(r *http.Request) (identity.Session, error) {
	authHeader := r.Header.Get("Authorization")
	if !strings.HasPrefix(authHeader, "Bearer ") {
		return identity.Session{}, ErrMissingToken
	}
	tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

	token, err := s.ParseToken(tokenStr)
	if err != nil {
		return identity.Session{}, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return identity.Session{}, ErrInvalidToken
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return identity.Session{}, ErrInvalidToken
	}
	accountID, err := uuid.Parse(subject)
	if err != nil {
		return identity.Session{}, fmt.Errorf("%w: invalid subject", ErrInvalidToken)
	}

	customClaims, ok := claims["custom_claims"].(map[string]interface{})
	if !ok {
		return identity.Session{}, fmt.Errorf("%w: invalid custom claims format", ErrInvalidToken)
	}
	sessionID, ok := customClaims["session_id"].(string)
	if !ok || sessionID == "" {
		return identity.Session{}, fmt.Errorf("%w: missing session_id in token", ErrInvalidToken)
	}

	return identity.Session{ID: sessionID, AccountID: accountID}, nil
}
