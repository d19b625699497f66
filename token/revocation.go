package token

import (
	"sync"
	"time"
)

// RevocationList holds the IDs of session tokens that were signed out before
// they expired. An entry only matters until its token's own expiry, after
// which the signature check rejects the token anyway.
type RevocationList struct {
	mu      sync.RWMutex
	entries map[string]time.Time // jti -> token expiry
}

var _ RevokedChecker = (*RevocationList)(nil)

func NewRevocationList() *RevocationList {
	return &RevocationList{entries: map[string]time.Time{}}
}

// Revoke denies jti until expiresAt. Tokens without an ID cannot be tracked.
func (l *RevocationList) Revoke(jti string, expiresAt time.Time) error {
	if jti == "" {
		return nil
	}
	l.mu.Lock()
	l.entries[jti] = expiresAt
	l.mu.Unlock()
	return nil
}

func (l *RevocationList) IsRevoked(jti string) bool {
	l.mu.RLock()
	_, found := l.entries[jti]
	l.mu.RUnlock()
	return found
}

// Prune forgets entries whose tokens have expired and reports how many went
func (l *RevocationList) Prune() int {
	cutoff := NowTimeFunc()

	l.mu.Lock()
	defer l.mu.Unlock()
	pruned := 0
	for jti, expiresAt := range l.entries {
		if expiresAt.Before(cutoff) {
			delete(l.entries, jti)
			pruned++
		}
	}
	return pruned
}

func (l *RevocationList) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
