package loginsession

import (
	"context"
	"time"
)

type Session struct {
	ID string

	// Core identity
	UserID string
	Email  string
	Name   string
	Role   string

	// Upstream tokens, empty for local password sign-in
	RefreshToken string
	AccessToken  string
	IDToken      string

	// Session cookie token ID, revoked on sign-out
	TokenID string

	// Session management
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the session has passed its absolute lifetime
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

type Repo interface {
	Upsert(ctx context.Context, session Session) error
	Get(ctx context.Context, sessionID string) (Session, error)
	Delete(ctx context.Context, sessionID string) error
	// DeleteExpired removes sessions expired at now and returns their IDs
	DeleteExpired(ctx context.Context, now time.Time) ([]string, error)
	Close() error
}
