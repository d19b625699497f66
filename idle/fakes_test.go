package idle_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/go-firm-dashboard/activity"
	"github.com/jrsteele09/go-firm-dashboard/idle"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

type fakeTerminator struct {
	mu        sync.Mutex
	err       error
	signOuts  []idle.Session
	redirects []idle.Session
	calls     []string
}

func (f *fakeTerminator) SignOut(_ context.Context, s idle.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts = append(f.signOuts, s)
	f.calls = append(f.calls, "signout")
	return f.err
}

func (f *fakeTerminator) RedirectToLogin(s idle.Session) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.redirects = append(f.redirects, s)
	f.calls = append(f.calls, "redirect")
}

func (f *fakeTerminator) counts() (signOuts, redirects int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.signOuts), len(f.redirects)
}

func (f *fakeTerminator) order() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recordingObserver struct {
	mu     sync.Mutex
	states []idle.State
}

func (o *recordingObserver) SessionStateChanged(_ idle.Session, s idle.State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states = append(o.states, s)
}

func (o *recordingObserver) all() []idle.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]idle.State(nil), o.states...)
}

func (o *recordingObserver) last() (idle.State, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.states) == 0 {
		return idle.State{}, false
	}
	return o.states[len(o.states)-1], true
}

type testFixture struct {
	clock      *clockwork.FakeClock
	hub        *activity.Hub
	terminator *fakeTerminator
	observer   *recordingObserver
	monitor    *idle.Monitor
	session    idle.Session
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	f := &testFixture{
		clock:      clockwork.NewFakeClock(),
		hub:        activity.NewHub(),
		terminator: &fakeTerminator{},
		observer:   &recordingObserver{},
		session:    idle.Session{ID: "sess-1", UserID: "user-1", Email: "partner@firm.test"},
	}
	m, err := idle.NewMonitor(idle.DefaultConfig(), f.hub, f.terminator,
		idle.WithClock(f.clock), idle.WithObserver(f.observer))
	require.NoError(t, err)
	f.monitor = m
	t.Cleanup(m.Stop)
	return f
}

func (f *testFixture) activity(t activity.EventType) {
	f.hub.Publish(activity.Event{Type: t, At: f.clock.Now()})
}

func (f *testFixture) requirePhase(t *testing.T, want idle.Phase) {
	t.Helper()
	require.Eventually(t, func() bool {
		return f.monitor.State().Phase == want
	}, waitFor, tick, "expected phase %s, got %s", want, f.monitor.State().Phase)
}

// gatedObserver holds the first warning delivery until release is closed
type gatedObserver struct {
	recordingObserver
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newGatedObserver() *gatedObserver {
	return &gatedObserver{entered: make(chan struct{}), release: make(chan struct{})}
}

func (o *gatedObserver) SessionStateChanged(s idle.Session, state idle.State) {
	if state.Phase == idle.PhaseWarning {
		o.once.Do(func() {
			close(o.entered)
			<-o.release
		})
	}
	o.recordingObserver.SessionStateChanged(s, state)
}
