package server

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/jrsteele09/go-firm-dashboard/internal/errors"
	"github.com/jrsteele09/go-firm-dashboard/server/loginsession"
	"github.com/jrsteele09/go-firm-dashboard/users"
	"github.com/rs/zerolog/log"
)

// LoginPageData contains data for rendering the login page
type LoginPageData struct {
	AppName     string
	Error       string
	Email       string // Preserve email on error
	ReturnURL   string
	OIDCEnabled bool
}

// LoginPageUIHandler displays the login page (GET /login)
func (s *Server) LoginPageUIHandler() http.HandlerFunc {
	loginTmpl, err := ParseTemplate("login.html")
	if err != nil {
		panic("Failed to parse login template: " + err.Error())
	}

	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		data := LoginPageData{
			AppName:     s.config.GetAppName(),
			Error:       q.Get("error"),
			Email:       q.Get("email"),
			ReturnURL:   q.Get("return"),
			OIDCEnabled: s.config.GetOIDCEnabled(),
		}

		w.Header().Set("Content-Type", contentTypeHTML)
		w.Header().Set("Cache-Control", "no-store")
		if err := loginTmpl.Execute(w, data); err != nil {
			log.Err(err).Msg("Failed to render login template")
			http.Error(w, "Failed to render login page", http.StatusInternalServerError)
		}
	}
}

// LoginSubmissionHandler processes the local password form
func (s *Server) LoginSubmissionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, "Invalid form data", http.StatusBadRequest)
			return
		}

		email := strings.TrimSpace(r.FormValue("email"))
		password := r.FormValue("password")
		returnURL := r.FormValue("return")

		if email == "" || password == "" {
			s.renderLoginError(w, r, "Email and password are required", email)
			return
		}

		user, err := s.repos.Users.GetByEmail(r.Context(), email)
		if err != nil || !user.CheckPassword(password) {
			log.Info().Str("email", email).Msg("failed sign-in attempt")
			s.renderLoginError(w, r, "Invalid email or password", email)
			return
		}
		if user.Blocked {
			log.Warn().Str("user_id", user.ID).Msg("blocked user tried to sign in")
			s.renderLoginError(w, r, "Your account has been blocked", email)
			return
		}

		if err := s.startSession(w, r, user, loginsession.Session{}); err != nil {
			log.Err(err).Str("user_id", user.ID).Msg("failed to start session")
			s.renderLoginError(w, r, "Sign-in failed, please try again", email)
			return
		}
		redirectSuccess(w, r, safeReturnURL(returnURL))
	}
}

// startSession stores the login session, sets the cookie and starts the idle monitor.
// upstream carries OIDC tokens, empty for password sign-in.
func (s *Server) startSession(w http.ResponseWriter, r *http.Request, user *users.User, upstream loginsession.Session) error {
	now := NowTimeFunc()
	sessionID := generateRandomString(32)

	raw, claims, err := s.tokens.Issue(sessionID, user.ID, string(user.Role))
	if err != nil {
		return errors.Wrapf(err, "[Server startSession] issue token")
	}

	session := loginsession.Session{
		ID:           sessionID,
		UserID:       user.ID,
		Email:        user.Email,
		Name:         user.DisplayName(),
		Role:         string(user.Role),
		AccessToken:  upstream.AccessToken,
		RefreshToken: upstream.RefreshToken,
		IDToken:      upstream.IDToken,
		TokenID:      claims.ID,
		ExpiresAt:    claims.ExpiresAt.Time,
		CreatedAt:    now,
	}
	if err := s.repos.LoginSessions.Upsert(r.Context(), session); err != nil {
		return errors.Wrapf(err, "[Server startSession] store session")
	}
	if _, err := s.monitors.Watch(idleSession(session)); err != nil {
		_ = s.repos.LoginSessions.Delete(r.Context(), sessionID)
		return errors.Wrapf(err, "[Server startSession] watch session")
	}
	if err := s.repos.Users.SetLastLogin(r.Context(), user.ID, now); err != nil {
		log.Err(err).Str("user_id", user.ID).Msg("failed to record last login")
	}

	s.SetLoginSessionCookie(w, r, raw, int(s.config.GetMaxSessionAge().Seconds()))
	log.Info().Str("user_id", user.ID).Str("session_id", sessionID).Msg("user signed in")
	return nil
}

// LogoutHandler is the explicit sign-out link
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		redirect := func() {
			s.ClearLoginSessionCookie(w, r)
			redirectSuccess(w, r, RouteLogin)
		}

		cookie, err := r.Cookie(loggedInSessionCookie)
		if err != nil || cookie.Value == "" {
			redirect()
			return
		}

		claims, err := s.tokens.Parse(cookie.Value)
		if err != nil {
			redirect()
			return
		}

		// Stop the monitor first so it cannot fire a second sign-out
		s.monitors.Release(claims.SessionID)

		ctx, cancel := context.WithTimeout(r.Context(), s.config.GetSignOutTimeout())
		defer cancel()
		if err := s.endSession(ctx, claims.SessionID); err != nil {
			log.Err(err).Str("session_id", claims.SessionID).Msg("Logout: sign-out incomplete")
		}
		s.sockets.broadcastLogout(claims.SessionID, RouteLogin)

		log.Info().Str("session_id", claims.SessionID).Msg("user signed out")
		redirect()
	}
}

// renderLoginError redirects to login page with an error message
func (s *Server) renderLoginError(w http.ResponseWriter, r *http.Request, errorMsg, email string) {
	redirectURL := RouteLogin + "?error=" + url.QueryEscape(errorMsg)
	if email != "" {
		redirectURL += "&email=" + url.QueryEscape(email)
	}
	redirectSuccess(w, r, redirectURL)
}
