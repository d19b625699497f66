package idle

import (
	"context"
	"time"
)

// Phase is the monitor's position in the timeout cycle
type Phase int

const (
	PhaseStopped Phase = iota
	PhaseIdle
	PhaseWarning
	PhaseLoggedOut
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseWarning:
		return "warning"
	case PhaseLoggedOut:
		return "logged_out"
	default:
		return "stopped"
	}
}

// Session is the handle of the authenticated user being watched.
// A zero ID means nobody is signed in.
type Session struct {
	ID     string
	UserID string
	Email  string
}

func (s Session) IsZero() bool {
	return s.ID == ""
}

// State is what a page needs to render the expiry prompt
type State struct {
	Phase           Phase     `json:"-"`
	PhaseName       string    `json:"phase"`
	WarningVisible  bool      `json:"warningVisible"`
	RemainingMillis int64     `json:"remainingMillis"`
	LastActivityAt  time.Time `json:"lastActivityAt"`
}

// Terminator ends a session once it has idled out
type Terminator interface {
	// SignOut ends the session with the backend. A failure does not stop the redirect.
	SignOut(ctx context.Context, session Session) error

	// RedirectToLogin sends the user's browser to the login page
	RedirectToLogin(session Session)
}

// Observer is told about warning, countdown, reset and logout transitions.
// It is called outside the monitor's lock, one state at a time, in the order the
// transitions happened.
type Observer interface {
	SessionStateChanged(session Session, state State)
}
