package server_test

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/jrsteele09/go-firm-dashboard/idle"
	"github.com/jrsteele09/go-firm-dashboard/internal/config"
	"github.com/jrsteele09/go-firm-dashboard/server"
	"github.com/jrsteele09/go-firm-dashboard/server/authflowrepo"
	"github.com/jrsteele09/go-firm-dashboard/server/loginsession"
	"github.com/jrsteele09/go-firm-dashboard/users"
	"github.com/jrsteele09/go-firm-dashboard/users/memrepo"
	"github.com/stretchr/testify/require"
)

const (
	adminEmail    = "partner@firm.test"
	viewerEmail   = "clerk@firm.test"
	blockedEmail  = "former@firm.test"
	testPassword  = "Partner2024"
	waitFor       = 3 * time.Second
	tick          = 10 * time.Millisecond
	expiredTarget = "/login?error=Session+expired"
)

type testFixture struct {
	server   *server.Server
	clock    *clockwork.FakeClock
	users    *memrepo.UserRepo
	sessions *loginsession.InMemoryLoginSessionRepo
	flows    *authflowrepo.InMemoryRepo
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	t.Setenv("ENV", "DEV")
	t.Setenv("ALLOWED_ORIGINS", "")
	t.Setenv("ACTIVITY_RATE_LIMITING", "false")
	t.Setenv("SESSION_CONFIG_FILE", "")
	t.Setenv("SESSION_IDLE_TIMEOUT", "15m")
	t.Setenv("SESSION_WARNING_LEAD", "2m")
	t.Setenv("SESSION_COUNTDOWN_INTERVAL", "1s")
	t.Setenv("SESSION_MAX_AGE", "8h")
	t.Setenv("OIDC_ISSUER", "")
	t.Setenv("OIDC_CLIENT_ID", "")

	f := &testFixture{
		clock:    clockwork.NewFakeClock(),
		users:    memrepo.New(),
		sessions: loginsession.NewInMemoryLoginSessionRepo(),
		flows:    authflowrepo.NewInMemoryRepo(),
	}

	hash, err := users.HashPassword(testPassword)
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, f.users.Upsert(ctx, &users.User{Email: adminEmail, FirstName: "Pat", LastName: "Partner", Role: users.RoleAdmin, PasswordHash: hash}))
	require.NoError(t, f.users.Upsert(ctx, &users.User{Email: viewerEmail, FirstName: "Cam", LastName: "Clerk", Role: users.RoleViewer, PasswordHash: hash}))
	require.NoError(t, f.users.Upsert(ctx, &users.User{Email: blockedEmail, Role: users.RoleEditor, PasswordHash: hash, Blocked: true}))

	srv, err := server.New(config.New(), server.Repos{
		Users:         f.users,
		LoginSessions: f.sessions,
		AuthState:     f.flows,
	}, server.WithMonitorOptions(idle.WithClock(f.clock)))
	require.NoError(t, err)
	t.Cleanup(srv.Close)
	f.server = srv
	return f
}

func (f *testFixture) do(t *testing.T, req *http.Request, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	f.server.ServeHTTP(rec, req)
	return rec
}

func (f *testFixture) get(t *testing.T, path string, cookie *http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	return f.do(t, httptest.NewRequest(http.MethodGet, path, nil), cookie)
}

func (f *testFixture) postForm(t *testing.T, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(t, req, nil)
}

// login signs in with a password and returns the session cookie
func (f *testFixture) login(t *testing.T, email string) *http.Cookie {
	t.Helper()
	rec := f.postForm(t, server.RouteAuthLogin, url.Values{"email": {email}, "password": {testPassword}})
	require.Equal(t, http.StatusSeeOther, rec.Code)
	require.Equal(t, server.RouteAdminDashboard, rec.Header().Get("Location"))
	return sessionCookie(t, rec)
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	return findCookie(t, rec.Result().Cookies(), "loggedInSession")
}

func findCookie(t *testing.T, cookies []*http.Cookie, name string) *http.Cookie {
	t.Helper()
	for _, c := range cookies {
		if c.Name == name {
			return c
		}
	}
	require.Failf(t, "cookie not set", "no %s cookie", name)
	return nil
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) idle.State {
	t.Helper()
	var state idle.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &state))
	return state
}

// fakeIdentityProvider is just enough of an OIDC provider for discovery,
// code exchange and RFC 7009 revocation
type fakeIdentityProvider struct {
	*httptest.Server
	key *rsa.PrivateKey

	mu           sync.Mutex
	nonce        string
	email        string
	codeVerifier string
	revoked      []string
	revokeStatus int
}

const (
	idpClientID = "firm-dashboard"
	idpKeyID    = "test-key"
)

// newFakeIdentityProvider starts the provider and points the OIDC settings at it.
// Call it after setupTestFixture.
func newFakeIdentityProvider(t *testing.T) *fakeIdentityProvider {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	idp := &fakeIdentityProvider{key: key, revokeStatus: http.StatusOK}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /.well-known/openid-configuration", func(w http.ResponseWriter, r *http.Request) {
		base := idp.URL
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"issuer":                                base,
			"authorization_endpoint":                base + "/authorize",
			"token_endpoint":                        base + "/token",
			"jwks_uri":                              base + "/jwks",
			"revocation_endpoint":                   base + "/revoke",
			"id_token_signing_alg_values_supported": []string{"RS256"},
		})
	})
	mux.HandleFunc("GET /jwks", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"keys": []map[string]string{{
				"kty": "RSA",
				"kid": idpKeyID,
				"use": "sig",
				"alg": "RS256",
				"n":   base64.RawURLEncoding.EncodeToString(key.PublicKey.N.Bytes()),
				"e":   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.PublicKey.E)).Bytes()),
			}},
		})
	})
	mux.HandleFunc("POST /token", idp.tokenHandler)
	mux.HandleFunc("POST /revoke", func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		idp.mu.Lock()
		idp.revoked = append(idp.revoked, r.PostForm.Get("token_type_hint")+":"+r.PostForm.Get("token"))
		status := idp.revokeStatus
		idp.mu.Unlock()
		w.WriteHeader(status)
	})
	idp.Server = httptest.NewServer(mux)
	t.Cleanup(idp.Close)

	t.Setenv("OIDC_ISSUER", idp.URL)
	t.Setenv("OIDC_CLIENT_ID", idpClientID)
	t.Setenv("OIDC_CLIENT_SECRET", "s3cret")
	return idp
}

func (idp *fakeIdentityProvider) tokenHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	idp.mu.Lock()
	idp.codeVerifier = r.PostForm.Get("code_verifier")
	nonce, email := idp.nonce, idp.email
	idp.mu.Unlock()

	now := time.Now()
	idToken := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
		"iss":   idp.URL,
		"aud":   idpClientID,
		"sub":   "idp|" + email,
		"email": email,
		"nonce": nonce,
		"iat":   now.Unix(),
		"exp":   now.Add(time.Hour).Unix(),
	})
	idToken.Header["kid"] = idpKeyID
	signed, err := idToken.SignedString(idp.key)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  "upstream-access",
		"refresh_token": "upstream-refresh",
		"token_type":    "Bearer",
		"expires_in":    3600,
		"id_token":      signed,
	})
}

// signInAs makes the next code exchange return an ID token for email
func (idp *fakeIdentityProvider) signInAs(email, nonce string) {
	idp.mu.Lock()
	defer idp.mu.Unlock()
	idp.email = email
	idp.nonce = nonce
}

func (idp *fakeIdentityProvider) lastCodeVerifier() string {
	idp.mu.Lock()
	defer idp.mu.Unlock()
	return idp.codeVerifier
}

func (idp *fakeIdentityProvider) revocations() []string {
	idp.mu.Lock()
	defer idp.mu.Unlock()
	return append([]string(nil), idp.revoked...)
}

func (idp *fakeIdentityProvider) failRevocations() {
	idp.mu.Lock()
	defer idp.mu.Unlock()
	idp.revokeStatus = http.StatusInternalServerError
}
