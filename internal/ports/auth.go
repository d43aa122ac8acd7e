package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"net/http"

	domainauth "github.com/opetus/case-gateway/internal/domain/auth"
)

// BeginInput carries inputs for initiating a login flow.
type BeginInput struct {
	// RelayState is the validated post-login redirect target.
	RelayState string
}

// BeginResult is the outcome of initiating a login flow. State and Nonce are
// only populated by strategies that correlate the callback that way (OIDC);
// the caller persists them on the pre-login session.
type BeginResult struct {
	RedirectURL string
	State       string
	Nonce       string
}

// CallbackInput groups what a strategy needs to consume a provider callback.
type CallbackInput struct {
	// Request is the inbound callback request (form post or query callback).
	Request *http.Request
	// Session is the pre-login session, carrying any State/Nonce stored at Begin.
	Session domainauth.Session
}

// Strategy verifies an inbound login and produces a verified identity.
// Implementations: SAML assertion consumer, OIDC code exchange, and a
// non-production dev stand-in. Callers never special-case which one ran.
type Strategy interface {
	// Begin starts the login flow and returns where to send the browser.
	Begin(ctx context.Context, in BeginInput) (BeginResult, error)

	// Authenticate consumes the provider callback and returns the verified
	// identity, or an authentication error.
	Authenticate(ctx context.Context, in CallbackInput) (domainauth.Identity, error)
}

// SessionStore persists sessions keyed by their opaque id, plus a secondary
// index of single-logout tokens. Implementations must be safe for concurrent
// use and provide per-key atomicity.
type SessionStore interface {
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Put(ctx context.Context, sess domainauth.Session) error

	// RegenerateID persists sess under a freshly generated id and removes the
	// record under the old id, returning the new session. The old id must not
	// resolve afterwards.
	RegenerateID(ctx context.Context, sess domainauth.Session) (domainauth.Session, error)

	Destroy(ctx context.Context, id string) error

	// RegisterLogoutToken records a pending single-logout token for a session.
	RegisterLogoutToken(ctx context.Context, token, sessionID string) error

	// ConsumeLogoutToken removes the token from the index and returns the
	// session id it was registered for. An absent token is a no-op and
	// returns "" with a nil error.
	ConsumeLogoutToken(ctx context.Context, token string) (string, error)
}

// TokenIssuer signs short-lived bearer tokens asserting a subject identity
// for calls the gateway makes to the upstream service.
type TokenIssuer interface {
	Issue(subject string) (string, error)
}

// ProfileResolver fetches the current upstream profile for a session's
// identity reference. A nil profile with a nil error means the identity no
// longer exists or is inactive.
type ProfileResolver interface {
	Resolve(ctx context.Context, externalID string) (*domainauth.Profile, error)
}

// AuditLog records login and logout events. Implementations must tolerate
// being called best-effort; failures are logged by callers, never escalated.
type AuditLog interface {
	Record(ctx context.Context, event domainauth.AuditEvent) error
}
