package server

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/jrsteele09/go-firm-dashboard/internal/errors"
	"github.com/jrsteele09/go-firm-dashboard/users"
	"github.com/rs/zerolog/log"
)

// InitialiseSystem makes sure a break-glass administrator can always sign in
// with a password, even when the identity provider is down.
func (s *Server) InitialiseSystem(ctx context.Context) error {
	adminEmail := s.config.GetBootstrapAdminEmail()

	generatedPassword, err := s.createBootstrapAdmin(ctx, adminEmail, s.config.GetBootstrapAdminPassword())
	if err != nil {
		return fmt.Errorf("[Server InitialiseSystem] failed to bootstrap admin: %w", err)
	}

	if generatedPassword != "" {
		log.Info().
			Str("base_url", s.config.GetBaseURL()).
			Str("email", adminEmail).
			Str("password", generatedPassword).
			Msg("bootstrap administrator created, change this password after first sign-in")
	}
	return nil
}

// createBootstrapAdmin returns the password it set, or "" when an admin already exists
func (s *Server) createBootstrapAdmin(ctx context.Context, email, password string) (string, error) {
	existing, err := s.repos.Users.GetByEmail(ctx, email)
	if err == nil && existing.Role == users.RoleAdmin {
		log.Debug().Str("email", email).Msg("bootstrap administrator already exists")
		return "", nil
	}
	if err != nil && !errors.Is(err, errors.ErrUserNotFound) {
		return "", fmt.Errorf("[server createBootstrapAdmin] lookup failed: %w", err)
	}

	if password == "" {
		passwordBytes := make([]byte, 16)
		if _, err := rand.Read(passwordBytes); err != nil {
			return "", fmt.Errorf("[server createBootstrapAdmin] failed to generate password: %w", err)
		}
		password = base64.URLEncoding.EncodeToString(passwordBytes)
	}

	passwordHash, err := users.HashPassword(password)
	if err != nil {
		return "", fmt.Errorf("[server createBootstrapAdmin] failed to hash password: %w", err)
	}

	admin := &users.User{
		Email:                  email,
		PasswordHash:           passwordHash,
		FirstName:              "System",
		LastName:               "Administrator",
		Role:                   users.RoleAdmin,
		PasswordChangeRequired: true,
	}
	if existing != nil {
		admin.ID = existing.ID
	}

	if err := s.repos.Users.Upsert(ctx, admin); err != nil {
		return "", fmt.Errorf("[server createBootstrapAdmin] failed to create admin: %w", err)
	}
	return password, nil
}
