package auth

// Package auth contains domain-level types for authentication and sessions.
// It is pure and free of framework/adapter concerns.

import (
	"strings"
	"time"
)

// Identity represents the authenticated principal produced by a strategy.
// Strategies map provider-specific attributes into this shape; it is never
// built from unverified client input.
type Identity struct {
	ExternalID string // stable person identifier in the upstream service
	FirstName  string
	LastName   string
	Email      string

	// Provider metadata needed to correlate IdP-initiated single logout.
	// Empty for strategies without a single-logout channel.
	NameID       string
	SessionIndex string
}

// Session is the server-side record addressed by the opaque id carried in
// the browser cookie. A session is anonymous until a login stores an identity.
type Session struct {
	ID         string `json:"id"`
	ExternalID string `json:"external_id,omitempty"`
	FirstName  string `json:"first_name,omitempty"`
	LastName   string `json:"last_name,omitempty"`
	Email      string `json:"email,omitempty"`

	// SAML single-logout correlation metadata.
	NameID       string `json:"name_id,omitempty"`
	SessionIndex string `json:"session_index,omitempty"`

	// LogoutToken is set when an IdP-initiated logout request arrives for
	// this session and is consumed during the logout sequence.
	LogoutToken string `json:"logout_token,omitempty"`

	// RelayState is the validated post-login redirect target. It is
	// correlation data and survives session id regeneration.
	RelayState string `json:"relay_state,omitempty"`

	// LoginState and LoginNonce correlate an in-flight OIDC login.
	LoginState string `json:"login_state,omitempty"`
	LoginNonce string `json:"login_nonce,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Authenticated reports whether the session carries a verified identity.
func (s Session) Authenticated() bool { return s.ExternalID != "" }

// SingleLogoutKey returns the logout-token value correlating this session
// with an IdP-initiated logout, or "" when the session has no such metadata.
func (s Session) SingleLogoutKey() string {
	return FormatLogoutToken(s.NameID, s.SessionIndex)
}

// logoutTokenSeparator joins the name identifier and session index into a
// single correlation value. The separator is part of the wire format shared
// with the session store index.
const logoutTokenSeparator = ":::"

// FormatLogoutToken builds the single-logout correlation value for a SAML
// name identifier and session index. Returns "" when either part is missing.
func FormatLogoutToken(nameID, sessionIndex string) string {
	if nameID == "" || sessionIndex == "" {
		return ""
	}
	return nameID + logoutTokenSeparator + sessionIndex
}

// ParseLogoutToken splits a logout token back into its name identifier and
// session index. ok is false for values not produced by FormatLogoutToken.
func ParseLogoutToken(token string) (nameID, sessionIndex string, ok bool) {
	nameID, sessionIndex, ok = strings.Cut(token, logoutTokenSeparator)
	if !ok || nameID == "" || sessionIndex == "" {
		return "", "", false
	}
	return nameID, sessionIndex, true
}

// Profile is the current upstream view of a person referenced by a session.
type Profile struct {
	ExternalID string `json:"external_id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	Email      string `json:"email"`
}

// AuditAction categorizes entries in the login audit trail.
type AuditAction string

const (
	AuditLogin        AuditAction = "login"
	AuditLogout       AuditAction = "logout"
	AuditForcedLogout AuditAction = "forced_logout"
)

// AuditEvent is one row in the login audit trail.
type AuditEvent struct {
	Time       time.Time
	Action     AuditAction
	ExternalID string
	Strategy   string
	RemoteAddr string
}
