// Package idle signs dashboard users out after a period without input.
//
// A Monitor watches one login session. It arms a warning timer at
// IdleTimeout-WarningLead and a logout timer at IdleTimeout; any qualifying
// activity, or an explicit ExtendSession, cancels both and starts the cycle
// again from the current time. Once the warning is showing, the remaining time
// counts down at CountdownInterval resolution. When the logout timer fires the
// Terminator signs the session out and the browser is redirected to the login
// page, even if the remote sign-out fails.
//
//	m, err := idle.NewMonitor(idle.DefaultConfig(), hub, terminator)
//	if err != nil {
//	    return err
//	}
//	if err := m.Start(session); err != nil {
//	    return err
//	}
//	defer m.Stop()
package idle

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/go-firm-dashboard/activity"
	"github.com/rs/zerolog/log"
)

// Option customises a Monitor
type Option func(*Monitor)

// WithClock replaces the wall clock, mostly for tests
func WithClock(c clockwork.Clock) Option {
	return func(m *Monitor) {
		m.clock = c
	}
}

// WithObserver registers the receiver of state changes
func WithObserver(o Observer) Option {
	return func(m *Monitor) {
		m.observer = o
	}
}

// Monitor is the inactivity state machine for a single session
type Monitor struct {
	cfg        Config
	source     activity.Source
	terminator Terminator
	clock      clockwork.Clock
	observer   Observer
	qualifying map[activity.EventType]struct{}

	mu             sync.Mutex
	session        Session
	phase          Phase
	generation     uint64 // bumped on every re-arm so in-flight callbacks from older timers bail out
	lastActivityAt time.Time
	logoutAt       time.Time

	// Pending handles, nil when not armed
	warningTimer  clockwork.Timer
	logoutTimer   clockwork.Timer
	countdownStop chan struct{}

	// Observer deliveries queued in transition order, drained by one goroutine at a time
	outbox     []notification
	delivering bool
}

type notification struct {
	session Session
	state   State
}

var _ activity.Handler = (*Monitor)(nil)

// NewMonitor validates cfg and returns a stopped monitor
func NewMonitor(cfg Config, source activity.Source, terminator Terminator, opts ...Option) (*Monitor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if source == nil {
		return nil, fmt.Errorf("%w: activity source is required", ErrInvalidConfig)
	}
	if terminator == nil {
		return nil, fmt.Errorf("%w: terminator is required", ErrInvalidConfig)
	}
	cfg = cfg.withDefaults()

	m := &Monitor{
		cfg:        cfg,
		source:     source,
		terminator: terminator,
		clock:      clockwork.NewRealClock(),
		qualifying: make(map[activity.EventType]struct{}, len(cfg.EventTypes)),
		phase:      PhaseStopped,
	}
	for _, t := range cfg.EventTypes {
		m.qualifying[t] = struct{}{}
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Start begins watching session. A monitor that was stopped or has logged
// out may be started again for a new sign-in.
func (m *Monitor) Start(session Session) error {
	if session.IsZero() {
		return ErrNoSession
	}
	now := m.clock.Now()

	m.mu.Lock()
	if m.runningLocked() {
		m.mu.Unlock()
		return ErrAlreadyStarted
	}
	m.session = session
	m.phase = PhaseIdle
	m.armLocked(now)
	m.source.Subscribe(m.cfg.EventTypes, m)
	m.queueLocked(session, m.stateLocked(now))
	m.mu.Unlock()

	log.Debug().Str("session_id", session.ID).Dur("idle_timeout", m.cfg.IdleTimeout).Msg("idle monitor started")
	m.flush()
	return nil
}

// HandleActivity resets the cycle for any qualifying event
func (m *Monitor) HandleActivity(e activity.Event) {
	if _, ok := m.qualifying[e.Type]; !ok {
		return
	}
	m.reset(string(e.Type))
}

// ExtendSession is the "stay signed in" button: identical to an activity event
func (m *Monitor) ExtendSession() {
	m.reset("extend")
}

// Stop cancels every pending timer and unsubscribes from the source.
// It is safe to call more than once, and on a monitor that never started.
func (m *Monitor) Stop() {
	m.mu.Lock()
	wasRunning := m.runningLocked()
	m.cancelLocked()
	m.generation++
	m.source.Unsubscribe(m.cfg.EventTypes, m)
	if m.phase != PhaseLoggedOut {
		m.phase = PhaseStopped
	}
	session := m.session
	m.mu.Unlock()

	if wasRunning {
		log.Debug().Str("session_id", session.ID).Msg("idle monitor stopped")
	}
}

// State returns the current observable state
func (m *Monitor) State() State {
	now := m.clock.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stateLocked(now)
}

// Session returns the session being watched
func (m *Monitor) Session() Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *Monitor) reset(reason string) {
	now := m.clock.Now()

	m.mu.Lock()
	if !m.runningLocked() {
		m.mu.Unlock()
		return
	}
	wasWarning := m.phase == PhaseWarning
	m.phase = PhaseIdle
	m.armLocked(now)
	session := m.session
	// Idle to idle resets are invisible to the page
	if wasWarning {
		m.queueLocked(session, m.stateLocked(now))
	}
	m.mu.Unlock()

	if wasWarning {
		log.Debug().Str("session_id", session.ID).Str("reason", reason).Msg("idle warning dismissed")
		m.flush()
	}
}

// armLocked cancels whatever is pending and schedules both callbacks from now
func (m *Monitor) armLocked(now time.Time) {
	m.cancelLocked()
	m.generation++
	gen := m.generation

	m.lastActivityAt = now
	m.logoutAt = now.Add(m.cfg.IdleTimeout)
	m.warningTimer = m.clock.AfterFunc(m.cfg.IdleTimeout-m.cfg.WarningLead, func() {
		m.fireWarning(gen)
	})
	m.logoutTimer = m.clock.AfterFunc(m.cfg.IdleTimeout, func() {
		m.fireLogout(gen)
	})
}

func (m *Monitor) cancelLocked() {
	if m.warningTimer != nil {
		m.warningTimer.Stop()
		m.warningTimer = nil
	}
	if m.logoutTimer != nil {
		m.logoutTimer.Stop()
		m.logoutTimer = nil
	}
	if m.countdownStop != nil {
		close(m.countdownStop)
		m.countdownStop = nil
	}
}

func (m *Monitor) fireWarning(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || m.phase != PhaseIdle {
		m.mu.Unlock()
		return
	}
	m.phase = PhaseWarning
	m.warningTimer = nil
	stop := make(chan struct{})
	m.countdownStop = stop
	session := m.session
	// Exactly WarningLead remains when the warning fires
	m.queueLocked(session, State{
		Phase:           PhaseWarning,
		PhaseName:       PhaseWarning.String(),
		WarningVisible:  true,
		RemainingMillis: m.cfg.WarningLead.Milliseconds(),
		LastActivityAt:  m.lastActivityAt,
	})
	m.mu.Unlock()

	log.Info().Str("session_id", session.ID).Dur("remaining", m.cfg.WarningLead).Msg("session idle, warning shown")
	go m.countdown(gen, stop)
	m.flush()
}

func (m *Monitor) countdown(gen uint64, stop <-chan struct{}) {
	ticker := m.clock.NewTicker(m.cfg.CountdownInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			now := m.clock.Now()
			m.mu.Lock()
			if gen != m.generation || m.phase != PhaseWarning {
				m.mu.Unlock()
				return
			}
			m.queueLocked(m.session, m.stateLocked(now))
			m.mu.Unlock()

			m.flush()
		}
	}
}

func (m *Monitor) fireLogout(gen uint64) {
	m.mu.Lock()
	if gen != m.generation || !m.runningLocked() {
		m.mu.Unlock()
		return
	}
	m.logoutTimer = nil // already fired
	m.cancelLocked()
	m.generation++
	m.phase = PhaseLoggedOut
	m.source.Unsubscribe(m.cfg.EventTypes, m)
	session := m.session
	m.queueLocked(session, State{
		Phase:          PhaseLoggedOut,
		PhaseName:      PhaseLoggedOut.String(),
		LastActivityAt: m.lastActivityAt,
	})
	m.mu.Unlock()

	log.Info().Str("session_id", session.ID).Str("user_id", session.UserID).Msg("session idle timeout, signing out")
	m.flush()

	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.SignOutTimeout)
	defer cancel()
	if err := m.terminator.SignOut(ctx, session); err != nil {
		// The local session is over regardless of what the backend says
		log.Err(err).Str("session_id", session.ID).Msg("idle sign-out failed, redirecting anyway")
	}
	m.terminator.RedirectToLogin(session)
}

func (m *Monitor) stateLocked(now time.Time) State {
	s := State{
		Phase:          m.phase,
		PhaseName:      m.phase.String(),
		WarningVisible: m.phase == PhaseWarning,
		LastActivityAt: m.lastActivityAt,
	}
	if m.phase == PhaseWarning {
		remaining := m.logoutAt.Sub(now)
		if remaining < 0 {
			remaining = 0
		}
		s.RemainingMillis = remaining.Milliseconds()
	}
	return s
}

func (m *Monitor) runningLocked() bool {
	return m.phase == PhaseIdle || m.phase == PhaseWarning
}

// queueLocked records a state change for the observer. It must be called in
// the same critical section as the transition so the queue order matches the
// order the transitions happened in.
func (m *Monitor) queueLocked(session Session, state State) {
	if m.observer == nil {
		return
	}
	m.outbox = append(m.outbox, notification{session: session, state: state})
}

// flush hands queued states to the observer outside the lock. If another
// goroutine is already delivering, it picks up whatever was queued here before
// it finishes, so a slow observer never sees a state after its successor and
// callers never wait on it.
func (m *Monitor) flush() {
	m.mu.Lock()
	if m.delivering {
		m.mu.Unlock()
		return
	}
	m.delivering = true
	for len(m.outbox) > 0 {
		batch := m.outbox
		m.outbox = nil
		m.mu.Unlock()
		for _, n := range batch {
			m.observer.SessionStateChanged(n.session, n.state)
		}
		m.mu.Lock()
	}
	m.delivering = false
	m.mu.Unlock()
}
