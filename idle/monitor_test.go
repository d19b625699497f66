package idle_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/go-firm-dashboard/activity"
	"github.com/jrsteele09/go-firm-dashboard/idle"
	"github.com/stretchr/testify/require"
)

func TestNewMonitorRejectsMisconfiguration(t *testing.T) {
	hub := activity.NewHub()
	term := &fakeTerminator{}

	t.Run("warning lead equal to timeout", func(t *testing.T) {
		cfg := idle.DefaultConfig()
		cfg.WarningLead = cfg.IdleTimeout
		_, err := idle.NewMonitor(cfg, hub, term)
		require.ErrorIs(t, err, idle.ErrInvalidConfig)
	})

	t.Run("warning lead longer than timeout", func(t *testing.T) {
		cfg := idle.Config{IdleTimeout: time.Minute, WarningLead: 2 * time.Minute}
		_, err := idle.NewMonitor(cfg, hub, term)
		require.ErrorIs(t, err, idle.ErrInvalidConfig)
	})

	t.Run("zero timeout", func(t *testing.T) {
		_, err := idle.NewMonitor(idle.Config{}, hub, term)
		require.ErrorIs(t, err, idle.ErrInvalidConfig)
	})

	t.Run("missing collaborators", func(t *testing.T) {
		_, err := idle.NewMonitor(idle.DefaultConfig(), nil, term)
		require.ErrorIs(t, err, idle.ErrInvalidConfig)
		_, err = idle.NewMonitor(idle.DefaultConfig(), hub, nil)
		require.ErrorIs(t, err, idle.ErrInvalidConfig)
	})

	t.Run("short lead accepted", func(t *testing.T) {
		cfg := idle.Config{IdleTimeout: time.Minute, WarningLead: 59 * time.Second}
		m, err := idle.NewMonitor(cfg, hub, term)
		require.NoError(t, err)
		require.Equal(t, idle.PhaseStopped, m.State().Phase)
	})
}

func TestStart(t *testing.T) {
	t.Run("requires a session", func(t *testing.T) {
		f := setupTestFixture(t)
		require.ErrorIs(t, f.monitor.Start(idle.Session{}), idle.ErrNoSession)
		require.Equal(t, 0, f.hub.Len())
	})

	t.Run("twice is an error", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.monitor.Start(f.session))
		require.ErrorIs(t, f.monitor.Start(f.session), idle.ErrAlreadyStarted)
	})

	t.Run("subscribes and reports idle", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.monitor.Start(f.session))

		require.Equal(t, len(activity.DefaultEventTypes()), f.hub.Len())
		state := f.monitor.State()
		require.Equal(t, idle.PhaseIdle, state.Phase)
		require.False(t, state.WarningVisible)
		require.Equal(t, f.clock.Now(), state.LastActivityAt)
		require.Equal(t, f.session, f.monitor.Session())
	})
}

func TestLogoutWithoutActivity(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.monitor.Start(f.session))

	f.clock.Advance(15 * time.Minute)
	require.Eventually(t, func() bool {
		_, redirects := f.terminator.counts()
		return redirects == 1
	}, waitFor, tick)

	signOuts, redirects := f.terminator.counts()
	require.Equal(t, 1, signOuts)
	require.Equal(t, 1, redirects)
	require.Equal(t, []string{"signout", "redirect"}, f.terminator.order())
	require.Equal(t, f.session, f.terminator.signOuts[0])
	require.Equal(t, idle.PhaseLoggedOut, f.monitor.State().Phase)
	require.Equal(t, 0, f.hub.Len())

	// Nothing is left armed
	f.clock.Advance(time.Hour)
	time.Sleep(20 * time.Millisecond)
	signOuts, _ = f.terminator.counts()
	require.Equal(t, 1, signOuts)
}

func TestWarningCountdownAndActivityReset(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.monitor.Start(f.session))

	f.clock.Advance(779 * time.Second)
	require.Equal(t, idle.PhaseIdle, f.monitor.State().Phase)

	// 780000ms: warning with two minutes left
	f.clock.Advance(time.Second)
	f.requirePhase(t, idle.PhaseWarning)
	require.Eventually(t, func() bool {
		s, ok := f.observer.last()
		return ok && s.WarningVisible && s.RemainingMillis == 120000
	}, waitFor, tick)

	// 840000ms: one minute left
	f.clock.Advance(time.Minute)
	state := f.monitor.State()
	require.True(t, state.WarningVisible)
	require.Equal(t, int64(60000), state.RemainingMillis)

	// 850000ms: activity hides the warning and re-arms
	f.clock.Advance(10 * time.Second)
	f.activity(activity.EventKeyDown)
	state = f.monitor.State()
	require.Equal(t, idle.PhaseIdle, state.Phase)
	require.False(t, state.WarningVisible)
	require.Equal(t, f.clock.Now(), state.LastActivityAt)
	require.Eventually(t, func() bool {
		s, ok := f.observer.last()
		return ok && s.Phase == idle.PhaseIdle && !s.WarningVisible
	}, waitFor, tick)

	// Original 900000ms deadline passes without a logout
	f.clock.Advance(60 * time.Second)
	time.Sleep(20 * time.Millisecond)
	signOuts, _ := f.terminator.counts()
	require.Equal(t, 0, signOuts)
	require.Equal(t, idle.PhaseIdle, f.monitor.State().Phase)

	// Next warning at 1630000ms
	f.clock.Advance(719 * time.Second)
	require.Equal(t, idle.PhaseIdle, f.monitor.State().Phase)
	f.clock.Advance(time.Second)
	f.requirePhase(t, idle.PhaseWarning)
	require.Equal(t, int64(120000), f.monitor.State().RemainingMillis)
}

func TestExtendSessionMatchesActivity(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.monitor.Start(f.session))

	f.clock.Advance(13 * time.Minute)
	f.requirePhase(t, idle.PhaseWarning)

	f.clock.Advance(30 * time.Second)
	f.monitor.ExtendSession()
	state := f.monitor.State()
	require.Equal(t, idle.PhaseIdle, state.Phase)
	require.Equal(t, f.clock.Now(), state.LastActivityAt)

	f.clock.Advance(13*time.Minute - time.Second)
	require.Equal(t, idle.PhaseIdle, f.monitor.State().Phase)
	f.clock.Advance(time.Second)
	f.requirePhase(t, idle.PhaseWarning)
}

func TestSlowObserverSeesResetAfterWarning(t *testing.T) {
	f := setupTestFixture(t)
	observer := newGatedObserver()
	m, err := idle.NewMonitor(idle.DefaultConfig(), f.hub, f.terminator,
		idle.WithClock(f.clock), idle.WithObserver(observer))
	require.NoError(t, err)
	t.Cleanup(m.Stop)

	var releaseOnce sync.Once
	release := func() { releaseOnce.Do(func() { close(observer.release) }) }
	t.Cleanup(release)

	require.NoError(t, m.Start(f.session))
	f.clock.Advance(13 * time.Minute)

	select {
	case <-observer.entered:
	case <-time.After(waitFor):
		t.Fatal("warning was never delivered")
	}

	// The warning is still being delivered when the user extends
	extended := make(chan struct{})
	go func() {
		m.ExtendSession()
		close(extended)
	}()
	select {
	case <-extended:
	case <-time.After(waitFor):
		t.Fatal("ExtendSession waited on the observer")
	}
	require.Equal(t, idle.PhaseIdle, m.State().Phase)

	release()
	require.Eventually(t, func() bool {
		return len(observer.all()) == 3
	}, waitFor, tick)

	states := observer.all()
	require.Equal(t, idle.PhaseIdle, states[0].Phase)
	require.Equal(t, idle.PhaseWarning, states[1].Phase)
	require.Equal(t, idle.PhaseIdle, states[2].Phase)
	require.False(t, states[2].WarningVisible)
	require.Zero(t, states[2].RemainingMillis)
}

func TestCountdownDecreasesEachInterval(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.monitor.Start(f.session))

	f.clock.Advance(13 * time.Minute)
	f.requirePhase(t, idle.PhaseWarning)
	// Logout timer plus the countdown ticker
	f.clock.BlockUntil(2)

	before := len(f.observer.all())
	for i := 1; i < 120; i++ {
		f.clock.Advance(time.Second)
		want := int64(120000 - i*1000)
		require.Eventually(t, func() bool {
			s, ok := f.observer.last()
			return ok && s.RemainingMillis == want
		}, waitFor, tick, "tick %d", i)
	}

	states := f.observer.all()[before-1:]
	for i := 1; i < len(states); i++ {
		require.Less(t, states[i].RemainingMillis, states[i-1].RemainingMillis)
		require.True(t, states[i].WarningVisible)
	}

	f.clock.Advance(time.Second)
	f.requirePhase(t, idle.PhaseLoggedOut)
	require.Eventually(t, func() bool {
		for _, s := range f.observer.all() {
			if s.Phase == idle.PhaseLoggedOut {
				return !s.WarningVisible && s.RemainingMillis == 0
			}
		}
		return false
	}, waitFor, tick)
}

func TestStop(t *testing.T) {
	t.Run("never started", func(t *testing.T) {
		f := setupTestFixture(t)
		f.monitor.Stop()
		f.monitor.Stop()
		require.Equal(t, idle.PhaseStopped, f.monitor.State().Phase)
	})

	t.Run("idempotent and cancels timers", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.monitor.Start(f.session))

		f.monitor.Stop()
		f.monitor.Stop()
		require.Equal(t, 0, f.hub.Len())

		f.clock.Advance(time.Hour)
		time.Sleep(20 * time.Millisecond)
		signOuts, redirects := f.terminator.counts()
		require.Zero(t, signOuts)
		require.Zero(t, redirects)
		require.Equal(t, idle.PhaseStopped, f.monitor.State().Phase)
	})

	t.Run("during warning", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.monitor.Start(f.session))
		f.clock.Advance(13 * time.Minute)
		f.requirePhase(t, idle.PhaseWarning)

		f.monitor.Stop()
		state := f.monitor.State()
		require.Equal(t, idle.PhaseStopped, state.Phase)
		require.False(t, state.WarningVisible)
	})

	t.Run("calls afterwards are ignored", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.monitor.Start(f.session))
		f.monitor.Stop()
		seen := len(f.observer.all())

		f.monitor.ExtendSession()
		f.monitor.HandleActivity(activity.Event{Type: activity.EventClick})
		require.Equal(t, idle.PhaseStopped, f.monitor.State().Phase)
		require.Len(t, f.observer.all(), seen)
	})

	t.Run("after logout keeps logged out", func(t *testing.T) {
		f := setupTestFixture(t)
		require.NoError(t, f.monitor.Start(f.session))
		f.clock.Advance(15 * time.Minute)
		f.requirePhase(t, idle.PhaseLoggedOut)

		f.monitor.Stop()
		require.Equal(t, idle.PhaseLoggedOut, f.monitor.State().Phase)
	})
}

func TestSignOutFailureStillRedirects(t *testing.T) {
	f := setupTestFixture(t)
	f.terminator.err = errors.New("revocation endpoint unreachable")
	require.NoError(t, f.monitor.Start(f.session))

	f.clock.Advance(15 * time.Minute)
	require.Eventually(t, func() bool {
		_, redirects := f.terminator.counts()
		return redirects == 1
	}, waitFor, tick)
	require.Equal(t, []string{"signout", "redirect"}, f.terminator.order())
	require.Equal(t, idle.PhaseLoggedOut, f.monitor.State().Phase)
}

func TestNonQualifyingEventsIgnored(t *testing.T) {
	f := setupTestFixture(t)
	cfg := idle.DefaultConfig()
	cfg.EventTypes = []activity.EventType{activity.EventKeyDown}
	m, err := idle.NewMonitor(cfg, f.hub, f.terminator, idle.WithClock(f.clock))
	require.NoError(t, err)
	t.Cleanup(m.Stop)
	require.NoError(t, m.Start(f.session))

	f.clock.Advance(time.Minute)
	started := m.State().LastActivityAt

	m.HandleActivity(activity.Event{Type: activity.EventPointerMove})
	f.activity(activity.EventScroll)
	require.Equal(t, started, m.State().LastActivityAt)

	f.activity(activity.EventKeyDown)
	require.Equal(t, f.clock.Now(), m.State().LastActivityAt)
}

func TestRestartAfterLogout(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.monitor.Start(f.session))
	f.clock.Advance(15 * time.Minute)
	require.Eventually(t, func() bool {
		_, redirects := f.terminator.counts()
		return redirects == 1
	}, waitFor, tick)

	next := idle.Session{ID: "sess-2", UserID: "user-1"}
	require.NoError(t, f.monitor.Start(next))
	require.Equal(t, idle.PhaseIdle, f.monitor.State().Phase)
	require.Equal(t, next, f.monitor.Session())
	require.Equal(t, len(activity.DefaultEventTypes()), f.hub.Len())
}
