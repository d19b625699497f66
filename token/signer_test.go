package token_test

import (
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/jrsteele09/go-firm-dashboard/internal/errors"
	"github.com/jrsteele09/go-firm-dashboard/token"
	"github.com/stretchr/testify/require"
)

func setNow(t *testing.T, now time.Time) {
	t.Helper()
	orig := token.NowTimeFunc
	token.NowTimeFunc = func() time.Time { return now }
	t.Cleanup(func() { token.NowTimeFunc = orig })
}

func TestIssueAndParse(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	setNow(t, now)
	s := token.NewSigner("test-secret", "firm-dashboard", 8*time.Hour, nil)

	raw, issued, err := s.Issue("sess-1", "user-1", "admin")
	require.NoError(t, err)
	require.NotEmpty(t, issued.ID)

	claims, err := s.Parse(raw)
	require.NoError(t, err)
	require.Equal(t, "sess-1", claims.SessionID)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "admin", claims.Role)
	require.Equal(t, "firm-dashboard", claims.Issuer)
	require.Equal(t, issued.ID, claims.ID)
	require.Equal(t, now.Add(8*time.Hour).Unix(), claims.ExpiresAt.Unix())
}

func TestParseRejects(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	setNow(t, now)
	s := token.NewSigner("test-secret", "firm-dashboard", time.Hour, nil)
	raw, _, err := s.Issue("sess-1", "user-1", "viewer")
	require.NoError(t, err)

	t.Run("empty", func(t *testing.T) {
		_, err := s.Parse("  ")
		require.ErrorIs(t, err, errors.ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := token.NewSigner("other-secret", "firm-dashboard", time.Hour, nil)
		_, err := other.Parse(raw)
		require.ErrorIs(t, err, errors.ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := token.NewSigner("test-secret", "someone-else", time.Hour, nil)
		_, err := other.Parse(raw)
		require.ErrorIs(t, err, errors.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		setNow(t, now.Add(2*time.Hour))
		_, err := s.Parse(raw)
		require.ErrorIs(t, err, errors.ErrTokenExpired)
	})

	t.Run("unsigned", func(t *testing.T) {
		unsigned, err := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, jwtlib.MapClaims{
			"sid": "sess-1", "iss": "firm-dashboard", "exp": now.Add(time.Hour).Unix(),
		}).SignedString(jwtlib.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = s.Parse(unsigned)
		require.ErrorIs(t, err, errors.ErrInvalidToken)
	})
}

func TestRevokedTokens(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	setNow(t, now)
	list := token.NewRevocationList()
	s := token.NewSigner("test-secret", "firm-dashboard", time.Hour, list)

	raw, claims, err := s.Issue("sess-1", "user-1", "editor")
	require.NoError(t, err)
	require.NoError(t, list.Revoke(claims.ID, claims.ExpiresAt.Time))
	require.NoError(t, list.Revoke("", claims.ExpiresAt.Time))
	require.True(t, list.IsRevoked(claims.ID))
	require.Equal(t, 1, list.Len())

	_, err = s.Parse(raw)
	require.ErrorIs(t, err, errors.ErrInvalidToken)
	require.ErrorIs(t, err, errors.ErrTokenRevoked)

	// Still within the token's lifetime
	require.Zero(t, list.Prune())
	require.True(t, list.IsRevoked(claims.ID))

	setNow(t, now.Add(2*time.Hour))
	require.Equal(t, 1, list.Prune())
	require.Zero(t, list.Len())
	require.False(t, list.IsRevoked(claims.ID))
}
