package config

import (
	"fmt"
	"time"
)

const (
	sessionFileEnvVar  = "SESSION_CONFIG_FILE"
	cookieSecretEnvVar = "SESSION_COOKIE_SECRET"

	defaultCookieSecret = "dev-only-cookie-secret"
)

type SessionConfig interface {
	GetIdleTimeout() time.Duration
	GetWarningLead() time.Duration
	GetCountdownInterval() time.Duration
	GetSignOutTimeout() time.Duration
	GetMaxSessionAge() time.Duration
	GetSessionSweepInterval() time.Duration
	GetCookieSecret() string
}

// Session holds the inactivity timeout settings and the login session lifetime
type Session struct {
	IdleTimeout       time.Duration
	WarningLead       time.Duration
	CountdownInterval time.Duration
	SignOutTimeout    time.Duration
	MaxSessionAge     time.Duration
	SweepInterval     time.Duration
	CookieSecret      string
}

var _ SessionConfig = Session{}

// DefaultSession signs users out after 15 idle minutes, warning them 2 minutes ahead
func DefaultSession() Session {
	return Session{
		IdleTimeout:       15 * time.Minute,
		WarningLead:       2 * time.Minute,
		CountdownInterval: time.Second,
		SignOutTimeout:    10 * time.Second,
		MaxSessionAge:     8 * time.Hour,
		SweepInterval:     5 * time.Minute,
		CookieSecret:      defaultCookieSecret,
	}
}

func sessionFromEnv() Session {
	d := DefaultSession()
	return Session{
		IdleTimeout:       GetEnvDuration("SESSION_IDLE_TIMEOUT", d.IdleTimeout),
		WarningLead:       GetEnvDuration("SESSION_WARNING_LEAD", d.WarningLead),
		CountdownInterval: GetEnvDuration("SESSION_COUNTDOWN_INTERVAL", d.CountdownInterval),
		SignOutTimeout:    GetEnvDuration("SESSION_SIGN_OUT_TIMEOUT", d.SignOutTimeout),
		MaxSessionAge:     GetEnvDuration("SESSION_MAX_AGE", d.MaxSessionAge),
		SweepInterval:     GetEnvDuration("SESSION_SWEEP_INTERVAL", d.SweepInterval),
		CookieSecret:      GetEnv(cookieSecretEnvVar, d.CookieSecret),
	}
}

// Validate rejects a warning that could never precede the logout and any
// interval that would stall a timer or ticker
func (s Session) Validate() error {
	if s.IdleTimeout <= 0 {
		return fmt.Errorf("idle timeout must be positive, got %s", s.IdleTimeout)
	}
	if s.WarningLead <= 0 {
		return fmt.Errorf("warning lead must be positive, got %s", s.WarningLead)
	}
	if s.WarningLead >= s.IdleTimeout {
		return fmt.Errorf("warning lead (%s) must be shorter than idle timeout (%s)", s.WarningLead, s.IdleTimeout)
	}
	if s.CountdownInterval <= 0 {
		return fmt.Errorf("countdown interval must be positive, got %s", s.CountdownInterval)
	}
	if s.SignOutTimeout <= 0 {
		return fmt.Errorf("sign-out timeout must be positive, got %s", s.SignOutTimeout)
	}
	if s.MaxSessionAge <= 0 {
		return fmt.Errorf("max session age must be positive, got %s", s.MaxSessionAge)
	}
	if s.SweepInterval <= 0 {
		return fmt.Errorf("sweep interval must be positive, got %s", s.SweepInterval)
	}
	return nil
}

func (s Session) GetIdleTimeout() time.Duration {
	return s.IdleTimeout
}

func (s Session) GetWarningLead() time.Duration {
	return s.WarningLead
}

func (s Session) GetCountdownInterval() time.Duration {
	return s.CountdownInterval
}

func (s Session) GetSignOutTimeout() time.Duration {
	return s.SignOutTimeout
}

func (s Session) GetMaxSessionAge() time.Duration {
	return s.MaxSessionAge
}

func (s Session) GetSessionSweepInterval() time.Duration {
	return s.SweepInterval
}

func (s Session) GetCookieSecret() string {
	return s.CookieSecret
}
