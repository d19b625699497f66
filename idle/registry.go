package idle

import (
	"context"
	"sync"

	"github.com/jrsteele09/go-firm-dashboard/activity"
)

// Watch pairs a login session with its activity hub and monitor
type Watch struct {
	Session Session
	Hub     *activity.Hub
	Monitor *Monitor
}

// Registry keeps one running monitor per signed-in session
type Registry struct {
	cfg        Config
	terminator Terminator
	opts       []Option

	mu      sync.Mutex
	watches map[string]*Watch
}

// NewRegistry validates cfg once so Watch can only fail on bad sessions.
// Observers passed in opts must not call back into the Registry.
func NewRegistry(cfg Config, terminator Terminator, opts ...Option) (*Registry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &Registry{
		cfg:     cfg,
		opts:    opts,
		watches: make(map[string]*Watch),
	}
	r.terminator = &releasingTerminator{next: terminator, registry: r}
	return r, nil
}

// Watch starts monitoring session, or returns the existing watch for its ID
func (r *Registry) Watch(session Session) (*Watch, error) {
	if session.IsZero() {
		return nil, ErrNoSession
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.watches[session.ID]; ok {
		if phase := w.Monitor.State().Phase; phase == PhaseIdle || phase == PhaseWarning {
			return w, nil
		}
		// Logged out but not yet released
		delete(r.watches, session.ID)
	}

	hub := activity.NewHub()
	m, err := NewMonitor(r.cfg, hub, r.terminator, r.opts...)
	if err != nil {
		return nil, err
	}
	if err := m.Start(session); err != nil {
		return nil, err
	}

	w := &Watch{Session: session, Hub: hub, Monitor: m}
	r.watches[session.ID] = w
	return w, nil
}

// Get returns the watch for a session ID
func (r *Registry) Get(sessionID string) (*Watch, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.watches[sessionID]
	return w, ok
}

// Release stops and forgets the session's monitor. Unknown IDs are ignored.
func (r *Registry) Release(sessionID string) {
	r.mu.Lock()
	w, ok := r.watches[sessionID]
	delete(r.watches, sessionID)
	r.mu.Unlock()

	if ok {
		w.Monitor.Stop()
	}
}

// Len returns the number of watched sessions
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.watches)
}

// Close stops every monitor
func (r *Registry) Close() {
	r.mu.Lock()
	watches := r.watches
	r.watches = make(map[string]*Watch)
	r.mu.Unlock()

	for _, w := range watches {
		w.Monitor.Stop()
	}
}

// releasingTerminator drops a session from the registry once it has been redirected
type releasingTerminator struct {
	next     Terminator
	registry *Registry
}

func (t *releasingTerminator) SignOut(ctx context.Context, session Session) error {
	return t.next.SignOut(ctx, session)
}

func (t *releasingTerminator) RedirectToLogin(session Session) {
	t.next.RedirectToLogin(session)
	t.registry.Release(session.ID)
}
