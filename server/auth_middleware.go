package server

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jrsteele09/go-firm-dashboard/idle"
	"github.com/jrsteele09/go-firm-dashboard/internal/errors"
	"github.com/jrsteele09/go-firm-dashboard/server/loginsession"
	"github.com/jrsteele09/go-firm-dashboard/users"
	"github.com/rs/zerolog/log"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	// ContextKeyUserID stores the authenticated user ID
	ContextKeyUserID ContextKey = "user_id"
	// ContextKeySession stores the loginsession.Session
	ContextKeySession ContextKey = "session"
	// ContextKeyWatch stores the session's *idle.Watch
	ContextKeyWatch ContextKey = "watch"
)

// NowTimeFunc returns the current time. It can be overridden in tests.
var NowTimeFunc = time.Now

func loginSessionFromContext(ctx context.Context) (loginsession.Session, bool) {
	s, ok := ctx.Value(ContextKeySession).(loginsession.Session)
	return s, ok
}

func watchFromContext(ctx context.Context) (*idle.Watch, bool) {
	w, ok := ctx.Value(ContextKeyWatch).(*idle.Watch)
	return w, ok && w != nil
}

// RequireSessionAuth is middleware for routes that need a signed-in user.
// It does not count the request as activity; only the browser's input events do.
func (s *Server) RequireSessionAuth() func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			cookie, err := r.Cookie(loggedInSessionCookie)
			if err != nil || cookie.Value == "" {
				s.rejectSession(w, r, "Please sign in")
				return
			}

			claims, err := s.tokens.Parse(cookie.Value)
			if err != nil {
				msg := "Invalid session"
				// Revoked tokens belong to sessions that were signed out, often by the idle monitor
				if errors.Is(err, errors.ErrTokenExpired) || errors.Is(err, errors.ErrTokenRevoked) {
					msg = "Session expired"
				}
				s.ClearLoginSessionCookie(w, r)
				s.rejectSession(w, r, msg)
				return
			}

			session, err := s.repos.LoginSessions.Get(r.Context(), claims.SessionID)
			if err != nil {
				if !errors.Is(err, errors.ErrSessionNotFound) {
					log.Err(err).Str("session_id", claims.SessionID).Msg("failed to load login session")
				}
				// Signed out, possibly by the idle monitor
				s.monitors.Release(claims.SessionID)
				s.ClearLoginSessionCookie(w, r)
				s.rejectSession(w, r, "Session expired")
				return
			}

			if session.Expired(NowTimeFunc()) {
				s.monitors.Release(session.ID)
				if err := s.repos.LoginSessions.Delete(r.Context(), session.ID); err != nil {
					log.Err(err).Str("session_id", session.ID).Msg("failed to delete expired login session")
				}
				s.ClearLoginSessionCookie(w, r)
				s.rejectSession(w, r, "Session expired")
				return
			}

			// After a restart, sessions persisted in SQLite start a fresh idle cycle
			watch, err := s.monitors.Watch(idleSession(session))
			if err != nil {
				log.Err(err).Str("session_id", session.ID).Msg("failed to watch session")
				http.Error(w, "Internal server error", http.StatusInternalServerError)
				return
			}

			ctx := context.WithValue(r.Context(), ContextKeyUserID, session.UserID)
			ctx = context.WithValue(ctx, ContextKeySession, session)
			ctx = context.WithValue(ctx, ContextKeyWatch, watch)
			next(w, r.WithContext(ctx))
		}
	}
}

// RequireRole rejects users whose role does not grant at least role.
// Chain it after RequireSessionAuth.
func (s *Server) RequireRole(role users.Role) func(http.HandlerFunc) http.HandlerFunc {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			session, ok := loginSessionFromContext(r.Context())
			if !ok {
				s.rejectSession(w, r, "Please sign in")
				return
			}
			if !users.Role(session.Role).AtLeast(role) {
				log.Warn().Str("user_id", session.UserID).Str("role", session.Role).Str("required", string(role)).Msg("forbidden")
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next(w, r)
		}
	}
}

// rejectSession sends pages to the login screen and API callers a 401
func (s *Server) rejectSession(w http.ResponseWriter, r *http.Request, msg string) {
	if strings.HasPrefix(r.URL.Path, "/admin/session/") {
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"error":    msg,
			"location": RouteLogin + "?error=" + strings.ReplaceAll(msg, " ", "+"),
		})
		return
	}
	redirectWithError(w, r, RouteLogin, msg)
}

func idleSession(s loginsession.Session) idle.Session {
	return idle.Session{ID: s.ID, UserID: s.UserID, Email: s.Email}
}
