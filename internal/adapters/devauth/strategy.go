package devauth

// Package devauth provides a form-post login stand-in for local development.
// It bypasses real verification entirely, so the constructor refuses to build
// outside an explicitly non-production environment; the route never exists in
// a production process.

import (
	"context"
	"strings"

	domainauth "github.com/opetus/case-gateway/internal/domain/auth"
	apperrors "github.com/opetus/case-gateway/internal/errors"
	"github.com/opetus/case-gateway/internal/ports"
)

// LoginPath is where Begin sends the browser: the identity-picker form.
const LoginPath = "/auth/dev/login"

// Config controls the dev strategy.
type Config struct {
	// Environment is the deployment environment name. Anything that
	// normalizes to "production" (or empty) makes New fail.
	Environment string

	// Defaults prefill the login form.
	ExternalID string
	FirstName  string
	LastName   string
	Email      string
}

// Strategy implements ports.Strategy for local development.
type Strategy struct {
	cfg Config
}

var _ ports.Strategy = (*Strategy)(nil)

// New builds the dev strategy, failing closed for production environments.
func New(cfg Config) (*Strategy, error) {
	env := strings.ToLower(strings.TrimSpace(cfg.Environment))
	if env == "" || env == "production" || env == "prod" {
		return nil, apperrors.Configurationf(
			"devauth: refusing to enable dev login in environment %q", cfg.Environment)
	}
	return &Strategy{cfg: cfg}, nil
}

// Defaults returns the configured form prefill values.
func (s *Strategy) Defaults() (externalID, firstName, lastName, email string) {
	return s.cfg.ExternalID, s.cfg.FirstName, s.cfg.LastName, s.cfg.Email
}

// Begin sends the browser to the local login form instead of an IdP.
func (s *Strategy) Begin(_ context.Context, _ ports.BeginInput) (ports.BeginResult, error) {
	return ports.BeginResult{RedirectURL: LoginPath}, nil
}

// Authenticate accepts the identity submitted through the form, verbatim.
func (s *Strategy) Authenticate(_ context.Context, in ports.CallbackInput) (domainauth.Identity, error) {
	r := in.Request
	if err := r.ParseForm(); err != nil {
		return domainauth.Identity{}, apperrors.AuthenticationWrap("devauth: parse form", err)
	}

	externalID := strings.TrimSpace(r.FormValue("externalId"))
	if externalID == "" {
		return domainauth.Identity{}, apperrors.Authentication("devauth: externalId is required")
	}

	return domainauth.Identity{
		ExternalID: externalID,
		FirstName:  strings.TrimSpace(r.FormValue("firstName")),
		LastName:   strings.TrimSpace(r.FormValue("lastName")),
		Email:      strings.TrimSpace(r.FormValue("email")),
	}, nil
}
