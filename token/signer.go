package token

import (
	"fmt"
	"strings"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jrsteele09/go-firm-dashboard/internal/errors"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

// Claims carried by the dashboard session cookie
type Claims struct {
	SessionID string `json:"sid"`
	Role      string `json:"role,omitempty"`
	jwtlib.RegisteredClaims
}

// Signer issues and verifies HS256 session tokens
type Signer struct {
	secret  []byte
	issuer  string
	ttl     time.Duration
	revoked RevokedChecker
}

// RevokedChecker is an interface for checking if a token has been revoked
type RevokedChecker interface {
	IsRevoked(jti string) bool
}

// NewSigner creates a signer. A nil revoked checker disables revocation checks.
func NewSigner(secret, issuer string, ttl time.Duration, revoked RevokedChecker) *Signer {
	return &Signer{
		secret:  []byte(secret),
		issuer:  issuer,
		ttl:     ttl,
		revoked: revoked,
	}
}

// Issue signs a token binding the cookie to a login session
func (s *Signer) Issue(sessionID, userID, role string) (string, *Claims, error) {
	now := NowTimeFunc()
	claims := &Claims{
		SessionID: sessionID,
		Role:      role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   userID,
			IssuedAt:  jwtlib.NewNumericDate(now),
			ExpiresAt: jwtlib.NewNumericDate(now.Add(s.ttl)),
			ID:        uuid.New().String(),
		},
	}

	signed, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", nil, fmt.Errorf("failed to sign session token: %w", err)
	}
	return signed, claims, nil
}

// Parse verifies signature, issuer, expiry and revocation
func (s *Signer) Parse(raw string) (*Claims, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, errors.ErrInvalidToken
	}

	claims := &Claims{}
	parsed, err := jwtlib.ParseWithClaims(raw, claims, s.verificationKey,
		jwtlib.WithIssuer(s.issuer),
		jwtlib.WithExpirationRequired(),
		jwtlib.WithTimeFunc(NowTimeFunc),
	)
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, errors.Wrapf(errors.ErrTokenExpired, "session token")
		}
		return nil, errors.Wrapf(errors.ErrInvalidToken, "session token: %v", err)
	}
	if !parsed.Valid || claims.SessionID == "" {
		return nil, errors.ErrInvalidToken
	}
	if s.revoked != nil && s.revoked.IsRevoked(claims.ID) {
		return nil, fmt.Errorf("session token: %w: %w", errors.ErrInvalidToken, errors.ErrTokenRevoked)
	}
	return claims, nil
}

func (s *Signer) verificationKey(t *jwtlib.Token) (any, error) {
	if _, ok := t.Method.(*jwtlib.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
	}
	return s.secret, nil
}
