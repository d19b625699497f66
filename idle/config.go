package idle

import (
	"errors"
	"fmt"
	"time"

	"github.com/jrsteele09/go-firm-dashboard/activity"
)

var (
	ErrInvalidConfig  = errors.New("invalid idle monitor configuration")
	ErrNoSession      = errors.New("no authenticated session")
	ErrAlreadyStarted = errors.New("idle monitor already started")
)

// Config holds the two-stage timeout settings
type Config struct {
	// IdleTimeout is the total idle time before forced sign-out (default: 15 minutes)
	IdleTimeout time.Duration

	// WarningLead is how long before IdleTimeout the warning appears (default: 2 minutes)
	WarningLead time.Duration

	// CountdownInterval is the resolution of the warning countdown (default: 1 second)
	CountdownInterval time.Duration

	// SignOutTimeout bounds the remote sign-out call (default: 10 seconds)
	SignOutTimeout time.Duration

	// EventTypes are the activity signals that reset the timers (default: all)
	EventTypes []activity.EventType
}

// DefaultConfig returns 15 minutes idle with a 2 minute warning
func DefaultConfig() Config {
	return Config{
		IdleTimeout:       15 * time.Minute,
		WarningLead:       2 * time.Minute,
		CountdownInterval: time.Second,
		SignOutTimeout:    10 * time.Second,
		EventTypes:        activity.DefaultEventTypes(),
	}
}

// Validate rejects a warning that would not meaningfully precede the logout
func (c Config) Validate() error {
	if c.IdleTimeout <= 0 {
		return fmt.Errorf("%w: idle timeout must be positive, got %s", ErrInvalidConfig, c.IdleTimeout)
	}
	if c.WarningLead <= 0 {
		return fmt.Errorf("%w: warning lead must be positive, got %s", ErrInvalidConfig, c.WarningLead)
	}
	if c.WarningLead >= c.IdleTimeout {
		return fmt.Errorf("%w: warning lead %s must be shorter than idle timeout %s", ErrInvalidConfig, c.WarningLead, c.IdleTimeout)
	}
	if c.CountdownInterval < 0 || c.SignOutTimeout < 0 {
		return fmt.Errorf("%w: intervals must not be negative", ErrInvalidConfig)
	}
	return nil
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.CountdownInterval == 0 {
		c.CountdownInterval = d.CountdownInterval
	}
	if c.SignOutTimeout == 0 {
		c.SignOutTimeout = d.SignOutTimeout
	}
	if len(c.EventTypes) == 0 {
		c.EventTypes = d.EventTypes
	}
	return c
}
