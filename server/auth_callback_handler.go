package server

import (
	"net/http"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-firm-dashboard/internal/errors"
	"github.com/jrsteele09/go-firm-dashboard/server/authflowrepo"
	"github.com/jrsteele09/go-firm-dashboard/server/loginsession"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// OIDCStartHandler sends the browser to the firm's identity provider
func (s *Server) OIDCStartHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		client, err := s.getOidcClient(r.Context())
		if err != nil {
			if !errors.Is(err, errors.ErrOIDCDisabled) {
				log.Err(err).Msg("OIDC start: provider unavailable")
			}
			redirectWithError(w, r, RouteLogin, "Single sign-on is not available")
			return
		}

		state := generateRandomString(24)
		nonce := generateRandomString(24)
		verifier := oauth2.GenerateVerifier()

		if err := s.repos.AuthState.Upsert(state, &authflowrepo.AuthFlowState{
			CodeVerifier: verifier,
			Nonce:        nonce,
			ReturnURL:    safeReturnURL(r.URL.Query().Get("return")),
			CreatedAt:    NowTimeFunc(),
		}); err != nil {
			log.Err(err).Msg("OIDC start: failed to store state")
			redirectWithError(w, r, RouteLogin, "Sign-in failed, please try again")
			return
		}
		s.SetAuthStateCookie(w, r, state)

		authURL := client.OAuth2Config.AuthCodeURL(state, oidc.Nonce(nonce), oauth2.S256ChallengeOption(verifier))
		http.Redirect(w, r, authURL, http.StatusFound)
	}
}

// OAuthCallbackHandler completes the OIDC code flow and starts a dashboard session
func (s *Server) OAuthCallbackHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		// r.FormValue works for both query params and POST form data
		state := r.FormValue("state")
		code := r.FormValue("code")

		if errorParam := r.FormValue("error"); errorParam != "" {
			log.Warn().Str("error", errorParam).Str("description", r.FormValue("error_description")).Msg("OIDC callback: provider returned an error")
			redirectWithError(w, r, RouteLogin, "Sign-in was cancelled or refused")
			return
		}
		if code == "" || state == "" {
			http.Error(w, "Missing code or state parameter", http.StatusBadRequest)
			return
		}

		// The state must come back to the browser that started the flow
		cookie, err := r.Cookie(authStateCookieName)
		if err != nil || cookie.Value != state {
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}
		authState, err := s.repos.AuthState.Take(state)
		if err != nil {
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}

		client, err := s.getOidcClient(r.Context())
		if err != nil {
			log.Err(err).Msg("OIDC callback: provider unavailable")
			redirectWithError(w, r, RouteLogin, "Single sign-on is not available")
			return
		}

		oauth2Token, err := client.OAuth2Config.Exchange(r.Context(), code, oauth2.VerifierOption(authState.CodeVerifier))
		if err != nil {
			log.Err(err).Msg("OIDC callback: token exchange failed")
			redirectWithError(w, r, RouteLogin, "Sign-in failed, please try again")
			return
		}

		rawIDToken, ok := oauth2Token.Extra("id_token").(string)
		if !ok {
			log.Error().Msg("OIDC callback: no id_token in response")
			redirectWithError(w, r, RouteLogin, "Sign-in failed, please try again")
			return
		}
		idToken, err := client.Verifier.Verify(r.Context(), rawIDToken)
		if err != nil {
			log.Err(err).Msg("OIDC callback: id token verification failed")
			redirectWithError(w, r, RouteLogin, "Sign-in failed, please try again")
			return
		}

		var claims struct {
			Nonce string `json:"nonce"`
			Sub   string `json:"sub"`
			Email string `json:"email"`
		}
		if err := idToken.Claims(&claims); err != nil {
			log.Err(err).Msg("OIDC callback: failed to extract claims")
			redirectWithError(w, r, RouteLogin, "Sign-in failed, please try again")
			return
		}
		if claims.Nonce != authState.Nonce {
			log.Warn().Err(errors.ErrInvalidNonce).Str("sub", claims.Sub).Msg("OIDC callback: nonce mismatch")
			http.Error(w, "Invalid nonce", http.StatusUnauthorized)
			return
		}

		// Roles live here, so only provisioned staff may sign in
		user, err := s.repos.Users.GetByEmail(r.Context(), claims.Email)
		if err != nil {
			log.Info().Str("email", claims.Email).Msg("OIDC callback: no dashboard account")
			redirectWithError(w, r, RouteLogin, "Your account does not have dashboard access")
			return
		}
		if user.Blocked {
			redirectWithError(w, r, RouteLogin, "Your account has been blocked")
			return
		}

		upstream := loginsession.Session{
			AccessToken:  oauth2Token.AccessToken,
			RefreshToken: oauth2Token.RefreshToken,
			IDToken:      rawIDToken,
		}
		if err := s.startSession(w, r, user, upstream); err != nil {
			log.Err(err).Str("user_id", user.ID).Msg("OIDC callback: failed to start session")
			redirectWithError(w, r, RouteLogin, "Sign-in failed, please try again")
			return
		}
		redirectSuccess(w, r, safeReturnURL(authState.ReturnURL))
	}
}
