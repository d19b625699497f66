package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/jrsteele09/go-firm-dashboard/internal/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
)

// revocationClient is the part of *http.Client used to revoke upstream tokens
type revocationClient interface {
	Do(req *http.Request) (*http.Response, error)
}

type oidcClient struct {
	Provider           *oidc.Provider
	OAuth2Config       *oauth2.Config
	Verifier           *oidc.IDTokenVerifier
	RevocationEndpoint string
}

// getOidcClient discovers the identity provider on first use
func (s *Server) getOidcClient(ctx context.Context) (*oidcClient, error) {
	if !s.config.GetOIDCEnabled() {
		return nil, errors.ErrOIDCDisabled
	}

	s.oidcLock.Lock()
	defer s.oidcLock.Unlock()
	if s.oidc != nil {
		return s.oidc, nil
	}

	provider, err := oidc.NewProvider(ctx, s.config.GetOIDCIssuer())
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}

	var metadata struct {
		RevocationEndpoint string `json:"revocation_endpoint"`
	}
	if err := provider.Claims(&metadata); err != nil {
		log.Err(err).Msg("failed to read OIDC provider metadata, token revocation disabled")
	}

	clientID := s.config.GetOIDCClientID()
	s.oidc = &oidcClient{
		Provider: provider,
		OAuth2Config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: s.config.GetOIDCClientSecret(),
			Endpoint:     provider.Endpoint(),
			RedirectURL:  strings.TrimSuffix(s.config.GetBaseURL(), "/") + RouteCallback,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email", oidc.ScopeOfflineAccess},
		},
		Verifier:           provider.Verifier(&oidc.Config{ClientID: clientID}),
		RevocationEndpoint: metadata.RevocationEndpoint,
	}
	return s.oidc, nil
}

// revokeToken asks the provider to revoke one token (RFC 7009)
func (s *Server) revokeToken(ctx context.Context, client *oidcClient, token, tokenTypeHint string) error {
	form := url.Values{}
	form.Set("token", token)
	form.Set("token_type_hint", tokenTypeHint)
	form.Set("client_id", client.OAuth2Config.ClientID)
	if client.OAuth2Config.ClientSecret != "" {
		form.Set("client_secret", client.OAuth2Config.ClientSecret)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, client.RevocationEndpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build revocation request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.revocation.Do(req)
	if err != nil {
		return fmt.Errorf("revoke %s: %w", tokenTypeHint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("revoke %s: unexpected status %d", tokenTypeHint, resp.StatusCode)
	}
	return nil
}
