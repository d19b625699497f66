package server

import (
	"context"
	stderrors "errors"

	"github.com/jrsteele09/go-firm-dashboard/idle"
	"github.com/jrsteele09/go-firm-dashboard/internal/errors"
	"github.com/rs/zerolog/log"
)

// sessionTerminator is how an idle monitor signs a user out
type sessionTerminator struct {
	server *Server
}

var _ idle.Terminator = (*sessionTerminator)(nil)

func (t *sessionTerminator) SignOut(ctx context.Context, session idle.Session) error {
	return t.server.endSession(ctx, session.ID)
}

func (t *sessionTerminator) RedirectToLogin(session idle.Session) {
	n := t.server.sockets.broadcastLogout(session.ID, sessionExpiredLocation)
	log.Info().Str("session_id", session.ID).Int("sockets", n).Msg("sent idle logout to browser")
}

// endSession revokes upstream tokens, deletes the login session and revokes
// the cookie token. The login session is deleted even when revocation fails.
func (s *Server) endSession(ctx context.Context, sessionID string) error {
	session, err := s.repos.LoginSessions.Get(ctx, sessionID)
	if errors.Is(err, errors.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return errors.Wrapf(err, "[Server endSession] load session %s", sessionID)
	}

	var errs []error
	if session.RefreshToken != "" || session.AccessToken != "" {
		errs = append(errs, s.revokeUpstreamTokens(ctx, session.RefreshToken, session.AccessToken))
	}

	if err := s.repos.LoginSessions.Delete(ctx, sessionID); err != nil {
		errs = append(errs, errors.Wrapf(err, "[Server endSession] delete session %s", sessionID))
	}
	if err := s.revoked.Revoke(session.TokenID, session.ExpiresAt); err != nil {
		errs = append(errs, err)
	}
	return stderrors.Join(errs...)
}

func (s *Server) revokeUpstreamTokens(ctx context.Context, refreshToken, accessToken string) error {
	client, err := s.getOidcClient(ctx)
	if err != nil {
		return errors.Wrapf(err, "[Server revokeUpstreamTokens]")
	}
	if client.RevocationEndpoint == "" {
		log.Warn().Msg("identity provider has no revocation endpoint, upstream tokens left to expire")
		return nil
	}

	var errs []error
	if refreshToken != "" {
		errs = append(errs, s.revokeToken(ctx, client, refreshToken, "refresh_token"))
	}
	if accessToken != "" {
		errs = append(errs, s.revokeToken(ctx, client, accessToken, "access_token"))
	}
	return stderrors.Join(errs...)
}
