package server

import (
	"fmt"
	"net/http"
	"strings"
	"sync"

	"github.com/jrsteele09/go-firm-dashboard/idle"
	"github.com/jrsteele09/go-firm-dashboard/internal/config"
	"github.com/jrsteele09/go-firm-dashboard/server/authflowrepo"
	"github.com/jrsteele09/go-firm-dashboard/server/loginsession"
	"github.com/jrsteele09/go-firm-dashboard/token"
	"github.com/jrsteele09/go-firm-dashboard/users"
	"github.com/rs/zerolog/log"
)

// Repos are the stores the server reads and writes
type Repos struct {
	Users         users.Repo
	LoginSessions loginsession.Repo
	AuthState     authflowrepo.Repo
}

type Server struct {
	env        string // Environment (e.g., "DEV", "PROD")
	mux        *http.ServeMux
	routes     []string
	config     config.Config
	repos      Repos
	tokens     *token.Signer
	revoked    *token.RevocationList
	monitors   *idle.Registry
	sockets    *socketHub
	revocation revocationClient

	monitorOpts []idle.Option

	oidcLock sync.Mutex
	oidc     *oidcClient
}

// Option customises a Server
type Option func(*Server)

// WithMonitorOptions passes extra options to every idle monitor, mostly a fake clock in tests
func WithMonitorOptions(opts ...idle.Option) Option {
	return func(s *Server) {
		s.monitorOpts = append(s.monitorOpts, opts...)
	}
}

// WithRevocationClient replaces the HTTP client used to revoke upstream tokens
func WithRevocationClient(c revocationClient) Option {
	return func(s *Server) {
		s.revocation = c
	}
}

func New(config config.Config, repos Repos, opts ...Option) (*Server, error) {
	revoked := token.NewRevocationList()
	s := &Server{
		env:        config.GetEnv(),
		mux:        http.NewServeMux(),
		config:     config,
		repos:      repos,
		revoked:    revoked,
		tokens:     token.NewSigner(config.GetCookieSecret(), config.GetAppName(), config.GetMaxSessionAge(), revoked),
		sockets:    newSocketHub(),
		revocation: http.DefaultClient,
	}
	for _, opt := range opts {
		opt(s)
	}

	monitorOpts := append([]idle.Option{idle.WithObserver(s.sockets)}, s.monitorOpts...)
	registry, err := idle.NewRegistry(idleConfig(config), &sessionTerminator{server: s}, monitorOpts...)
	if err != nil {
		return nil, fmt.Errorf("[Server New] failed to create idle monitor registry: %w", err)
	}
	s.monitors = registry

	s.initRoutes()
	s.logRoutes()

	return s, nil
}

func idleConfig(c config.SessionConfig) idle.Config {
	cfg := idle.DefaultConfig()
	cfg.IdleTimeout = c.GetIdleTimeout()
	cfg.WarningLead = c.GetWarningLead()
	cfg.CountdownInterval = c.GetCountdownInterval()
	cfg.SignOutTimeout = c.GetSignOutTimeout()
	return cfg
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// Monitors exposes the idle monitor registry
func (s *Server) Monitors() *idle.Registry {
	return s.monitors
}

// Close stops every idle monitor and drops open activity sockets
func (s *Server) Close() {
	s.monitors.Close()
	s.sockets.closeAll()
}

func (s *Server) RegisterRouteHandler(pattern string, handler http.Handler) {
	s.routes = append(s.routes, pattern)
	s.mux.Handle(pattern, handler)
}

func (s *Server) RegisterRouteFunc(pattern string, handler func(http.ResponseWriter, *http.Request)) {
	s.routes = append(s.routes, pattern)
	s.mux.HandleFunc(pattern, handler)
}

func (s *Server) logRoutes() {
	if s.env != "DEV" {
		return // Skip logging in non-development environments
	}
	for _, route := range s.routes {
		parts := strings.SplitN(route, " ", 2)

		if len(parts) > 1 {
			logRoute(parts[0], parts[1])
		} else {
			logRoute("", parts[0])
		}
	}
}

func logRoute(method, path string) {
	var displayMethod string
	paddedMethod := fmt.Sprintf(" %-7s", method)
	if color, ok := methodColors[method]; ok {
		displayMethod = color + paddedMethod + ResetColor
	} else {
		displayMethod = Gray + paddedMethod + ResetColor
	}
	log.Debug().Msgf("[%-19s] %s", displayMethod, path)
}

// Helper function to determine the scheme (http/https)
func getScheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if scheme := r.Header.Get("X-Forwarded-Proto"); scheme != "" {
		return scheme
	}
	return "http"
}
