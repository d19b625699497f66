package server

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// abandonedFlowAge is how long an unfinished OIDC sign-in is kept
const abandonedFlowAge = 10 * time.Minute

// RunSweeper removes login sessions past their absolute lifetime until ctx is done
func (s *Server) RunSweeper(ctx context.Context) {
	interval := s.config.GetSessionSweepInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Msg("session sweeper started")
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("session sweeper stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

// Sweep runs one pass of expired session and state cleanup
func (s *Server) Sweep(ctx context.Context) {
	now := NowTimeFunc()

	expired, err := s.repos.LoginSessions.DeleteExpired(ctx, now)
	if err != nil {
		log.Err(err).Msg("failed to sweep expired login sessions")
	}
	for _, id := range expired {
		s.monitors.Release(id)
		s.sockets.broadcastLogout(id, sessionExpiredLocation)
	}

	flows := s.repos.AuthState.DeleteBefore(now.Add(-abandonedFlowAge))
	tokens := s.revoked.Prune()

	if len(expired) > 0 || flows > 0 || tokens > 0 {
		log.Info().Int("sessions", len(expired)).Int("auth_flows", flows).Int("revoked_tokens", tokens).Msg("swept expired sessions")
	}
}
