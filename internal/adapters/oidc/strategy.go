package oidc

// Package oidc implements the OIDC/OAuth2 login strategy. AD FS deployments
// expose both SAML and OIDC endpoints; which one a deployment uses is a
// configuration choice, the rest of the gateway never special-cases it.

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/opetus/case-gateway/internal/domain/auth"
	apperrors "github.com/opetus/case-gateway/internal/errors"
	"github.com/opetus/case-gateway/internal/ports"
)

// Strategy implements ports.Strategy using OIDC/OAuth2.
type Strategy struct {
	config     *oauth2.Config
	httpClient *http.Client

	oidcProvider *gooidc.Provider
	verifier     *gooidc.IDTokenVerifier
}

var _ ports.Strategy = (*Strategy)(nil)

// Config holds configuration for the OIDC strategy.
type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	DiscoveryURL string
	HTTPClient   *http.Client // Optional, defaults to a 30s-timeout client
}

// New creates an OIDC strategy, fetching the discovery document once.
func New(cfg Config) (*Strategy, error) {
	if cfg.ClientID == "" {
		return nil, apperrors.Configuration("oidc: client id is required")
	}
	if cfg.ClientSecret == "" {
		return nil, apperrors.Configuration("oidc: client secret is required")
	}
	if cfg.RedirectURL == "" {
		return nil, apperrors.Configuration("oidc: redirect URL is required")
	}
	if cfg.DiscoveryURL == "" {
		return nil, apperrors.Configuration("oidc: discovery URL is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, httpClient)
	issuer := strings.TrimSuffix(cfg.DiscoveryURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	issuer = strings.TrimSuffix(issuer, ".well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	s := &Strategy{
		httpClient:   httpClient,
		oidcProvider: op,
		verifier:     op.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
	}
	s.config = &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       strings.Fields(cfg.Scope),
		Endpoint:     op.Endpoint(),
	}

	return s, nil
}

// Begin builds the authorization URL with fresh state and nonce. The caller
// persists both on the pre-login session for callback correlation.
func (s *Strategy) Begin(_ context.Context, _ ports.BeginInput) (ports.BeginResult, error) {
	state, err := generateRandomString(32)
	if err != nil {
		return ports.BeginResult{}, fmt.Errorf("generate state: %w", err)
	}
	nonce, err := generateRandomString(32)
	if err != nil {
		return ports.BeginResult{}, fmt.Errorf("generate nonce: %w", err)
	}

	authURL := s.config.AuthCodeURL(state,
		oauth2.SetAuthURLParam("nonce", nonce),
		oauth2.SetAuthURLParam("response_type", "code"),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)

	return ports.BeginResult{RedirectURL: authURL, State: state, Nonce: nonce}, nil
}

// Authenticate verifies the callback state against the pre-login session,
// exchanges the code, and verifies the id token (including the nonce).
func (s *Strategy) Authenticate(ctx context.Context, in ports.CallbackInput) (domainauth.Identity, error) {
	code := in.Request.URL.Query().Get("code")
	state := in.Request.URL.Query().Get("state")
	if code == "" {
		return domainauth.Identity{}, apperrors.Authentication("oidc: missing authorization code")
	}
	if state == "" || in.Session.LoginState == "" || state != in.Session.LoginState {
		return domainauth.Identity{}, apperrors.Authentication("oidc: state mismatch")
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
	token, err := s.config.Exchange(ctx, code)
	if err != nil {
		return domainauth.Identity{}, apperrors.AuthenticationWrap("oidc: exchange code", err)
	}

	fields, err := s.extractFromIDToken(ctx, token, in.Session.LoginNonce)
	if err != nil {
		return domainauth.Identity{}, apperrors.AuthenticationWrap("oidc: verify id_token", err)
	}

	if fields.externalID == "" || fields.email == "" {
		if fillErr := s.fillFromUserInfo(ctx, token.AccessToken, &fields); fillErr != nil {
			return domainauth.Identity{}, apperrors.AuthenticationWrap("oidc: fetch user info", fillErr)
		}
	}
	if fields.externalID == "" {
		return domainauth.Identity{}, apperrors.Authentication("oidc: token carries no subject")
	}

	return domainauth.Identity{
		ExternalID: fields.externalID,
		FirstName:  fields.givenName,
		LastName:   fields.familyName,
		Email:      fields.email,
	}, nil
}

// idFields keeps claim mapping small and testable.
type idFields struct {
	externalID string
	email      string
	givenName  string
	familyName string
}

// idTokenClaims is a superset of plain OIDC and AD FS claim shapes.
type idTokenClaims struct {
	Sub            string `json:"sub"`
	SamAccountName string `json:"samaccountname"`
	GivenName      string `json:"given_name"`
	FamilyName     string `json:"family_name"`
	FirstName      string `json:"firstname"`
	LastName       string `json:"lastname"`
	Email          string `json:"email"`
	Mail           string `json:"mail"`
	Nonce          string `json:"nonce"`
}

func (s *Strategy) extractFromIDToken(ctx context.Context, tok *oauth2.Token, expectedNonce string) (idFields, error) {
	var f idFields
	rawID, err := getIDTokenFromToken(tok)
	if err != nil {
		return f, err
	}
	idTok, err := s.verifier.Verify(ctx, rawID)
	if err != nil {
		return f, fmt.Errorf("verify id_token: %w", err)
	}
	var claims idTokenClaims
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return f, fmt.Errorf("parse id_token claims: %w", claimsErr)
	}
	if expectedNonce != "" && claims.Nonce != expectedNonce {
		return f, errors.New("invalid nonce")
	}
	return mapIDTokenClaims(claims), nil
}

func mapIDTokenClaims(c idTokenClaims) idFields {
	return idFields{
		externalID: firstNonEmpty(c.SamAccountName, c.Sub),
		email:      firstNonEmpty(c.Email, c.Mail),
		givenName:  firstNonEmpty(c.GivenName, c.FirstName),
		familyName: firstNonEmpty(c.FamilyName, c.LastName),
	}
}

// userInfo represents the payload of the OIDC userinfo endpoint.
type userInfo struct {
	Subject        string `json:"sub"`
	SamAccountName string `json:"samaccountname"`
	GivenName      string `json:"given_name"`
	FamilyName     string `json:"family_name"`
	Email          string `json:"email"`
	Mail           string `json:"mail"`
}

func (s *Strategy) fillFromUserInfo(ctx context.Context, accessToken string, f *idFields) error {
	ui, err := s.oidcProvider.UserInfo(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: accessToken}))
	if err != nil {
		return fmt.Errorf("fetch user info: %w", err)
	}
	var info userInfo
	if claimsErr := ui.Claims(&info); claimsErr != nil {
		return fmt.Errorf("decode user info: %w", claimsErr)
	}

	if f.externalID == "" {
		f.externalID = firstNonEmpty(info.SamAccountName, info.Subject)
	}
	if f.email == "" {
		f.email = firstNonEmpty(info.Email, info.Mail)
	}
	if f.givenName == "" {
		f.givenName = info.GivenName
	}
	if f.familyName == "" {
		f.familyName = info.FamilyName
	}
	return nil
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

// generateRandomString generates a cryptographically secure URL-safe random string of exact length.
func generateRandomString(length int) (string, error) {
	if length <= 0 {
		return "", nil
	}
	nBytes := (length*3 + 3) / 4
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	s := base64.RawURLEncoding.EncodeToString(b)
	for len(s) < length {
		extra := make([]byte, 1)
		if _, err := rand.Read(extra); err != nil {
			return "", err
		}
		s += base64.RawURLEncoding.EncodeToString(extra)
	}
	return s[:length], nil
}

func getIDTokenFromToken(tok *oauth2.Token) (string, error) {
	if tok == nil {
		return "", errors.New("nil token")
	}
	raw := tok.Extra("id_token")
	s, ok := raw.(string)
	if !ok || s == "" {
		return "", errors.New("missing id_token in token response")
	}
	return s, nil
}
