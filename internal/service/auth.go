package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	domainauth "github.com/opetus/case-gateway/internal/domain/auth"
	apperrors "github.com/opetus/case-gateway/internal/errors"
	"github.com/opetus/case-gateway/internal/ports"
)

// DefaultSessionTTL bounds how long an authenticated session lives without
// a new login.
const DefaultSessionTTL = 8 * time.Hour

// storeTimeout bounds individual session-store calls so a slow store cannot
// hold a request open indefinitely.
const storeTimeout = 2 * time.Second

// AuthServiceOptions groups dependencies for AuthService.
type AuthServiceOptions struct {
	Sessions   ports.SessionStore
	Resolver   ports.ProfileResolver
	Audit      ports.AuditLog // optional
	Logger     *slog.Logger
	SessionTTL time.Duration // default DefaultSessionTTL
	Now        func() time.Time
}

// AuthService is the session lifecycle controller: it owns login (verify →
// regenerate → persist), the ordered logout sequence, single-logout token
// registration, and the auth-status check with stale-identity forced logout.
type AuthService struct {
	sessions ports.SessionStore
	resolver ports.ProfileResolver
	audit    ports.AuditLog
	logger   *slog.Logger
	ttl      time.Duration
	now      func() time.Time
}

// NewAuthService constructs a new AuthService.
func NewAuthService(opts AuthServiceOptions) *AuthService {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	ttl := opts.SessionTTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &AuthService{
		sessions: opts.Sessions,
		resolver: opts.Resolver,
		audit:    opts.Audit,
		logger:   logger,
		ttl:      ttl,
		now:      now,
	}
}

// mutationContext detaches store mutations from the request context. A client
// disconnect must not abort a login or logout sequence halfway through.
func mutationContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
}

// NewAnonymousSession creates and persists a fresh anonymous session.
func (s *AuthService) NewAnonymousSession(ctx context.Context) (domainauth.Session, error) {
	now := s.now()
	sess := domainauth.Session{
		ID:        uuid.NewString(),
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}

	mctx, cancel := mutationContext(ctx)
	defer cancel()
	if err := s.sessions.Put(mctx, sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// SaveSession persists session state set outside the login/logout
// operations, such as relay state and login correlation values written
// before the IdP round trip.
func (s *AuthService) SaveSession(ctx context.Context, sess domainauth.Session) error {
	if sess.ExpiresAt.IsZero() {
		sess.ExpiresAt = s.now().Add(s.ttl)
	}
	mctx, cancel := mutationContext(ctx)
	defer cancel()
	if err := s.sessions.Put(mctx, sess); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// GetSession retrieves a session by id.
func (s *AuthService) GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error) {
	if sessionID == "" {
		return nil, errors.New("session id is required")
	}
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &sess, nil
}

// LoginInput carries a verified identity into the login operation.
type LoginInput struct {
	Session    domainauth.Session
	Identity   domainauth.Identity
	Strategy   string
	RemoteAddr string
}

// Login stores the verified identity on the session and regenerates the
// session id, so an attacker who fixated the pre-login id cannot inherit the
// authenticated session. Correlation data (relay state) set before login
// survives the regeneration. On error the user is NOT logged in and the
// caller must not point the cookie at the new id.
func (s *AuthService) Login(ctx context.Context, in LoginInput) (domainauth.Session, error) {
	if in.Identity.ExternalID == "" {
		return domainauth.Session{}, apperrors.Authentication("login: identity has no external id")
	}

	sess := in.Session
	sess.ExternalID = in.Identity.ExternalID
	sess.FirstName = in.Identity.FirstName
	sess.LastName = in.Identity.LastName
	sess.Email = in.Identity.Email
	sess.NameID = in.Identity.NameID
	sess.SessionIndex = in.Identity.SessionIndex
	// The in-flight login correlation is spent.
	sess.LoginState = ""
	sess.LoginNonce = ""
	now := s.now()
	sess.CreatedAt = now
	sess.ExpiresAt = now.Add(s.ttl)

	mctx, cancel := mutationContext(ctx)
	defer cancel()
	regenerated, err := s.sessions.RegenerateID(mctx, sess)
	if err != nil {
		return domainauth.Session{}, fmt.Errorf("persist login: %w", err)
	}

	s.recordAudit(ctx, domainauth.AuditEvent{
		Action:     domainauth.AuditLogin,
		ExternalID: regenerated.ExternalID,
		Strategy:   in.Strategy,
		RemoteAddr: in.RemoteAddr,
	})

	return regenerated, nil
}

// RegisterSingleLogout attaches a pending logout token to the session and
// registers it in the store's secondary index. Called when an IdP-initiated
// logout request arrives through the front channel.
func (s *AuthService) RegisterSingleLogout(ctx context.Context, sess domainauth.Session, nameID, sessionIndex string) (domainauth.Session, error) {
	token := domainauth.FormatLogoutToken(nameID, sessionIndex)
	if token == "" {
		return domainauth.Session{}, apperrors.Authentication("single logout: missing name id or session index")
	}

	sess.LogoutToken = token

	mctx, cancel := mutationContext(ctx)
	defer cancel()
	if err := s.sessions.Put(mctx, sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("store logout token on session: %w", err)
	}
	if err := s.sessions.RegisterLogoutToken(mctx, token, sess.ID); err != nil {
		return domainauth.Session{}, fmt.Errorf("register logout token: %w", err)
	}
	return sess, nil
}

// Logout invalidates the session. The caller has already cleared the cookie;
// every remaining step runs even when an earlier one fails, in a fixed
// order: read the pending logout token, regenerate to a fresh anonymous id,
// consume the token, destroy the record. The joined error is for logging
// only; the browser is unauthenticated regardless.
func (s *AuthService) Logout(ctx context.Context, sess domainauth.Session) error {
	err := s.teardown(ctx, sess)
	if sess.Authenticated() {
		s.recordAudit(ctx, domainauth.AuditEvent{
			Action:     domainauth.AuditLogout,
			ExternalID: sess.ExternalID,
		})
	}
	return err
}

func (s *AuthService) teardown(ctx context.Context, sess domainauth.Session) error {
	token := sess.LogoutToken

	mctx, cancel := mutationContext(ctx)
	defer cancel()

	var errs []error

	// Regenerate to a fresh anonymous id so the authenticated id dies even
	// if destroying the record below fails.
	anonymous := domainauth.Session{
		ID:        sess.ID,
		CreatedAt: s.now(),
		ExpiresAt: s.now().Add(s.ttl),
	}
	destroyID := sess.ID
	if fresh, err := s.sessions.RegenerateID(mctx, anonymous); err != nil {
		errs = append(errs, fmt.Errorf("regenerate on logout: %w", err))
	} else {
		destroyID = fresh.ID
	}

	if token != "" {
		if _, err := s.sessions.ConsumeLogoutToken(mctx, token); err != nil {
			errs = append(errs, fmt.Errorf("consume logout token: %w", err))
		}
	}

	if err := s.sessions.Destroy(mctx, destroyID); err != nil {
		errs = append(errs, fmt.Errorf("destroy session: %w", err))
	}

	return errors.Join(errs...)
}

// StatusResult is the outcome of an auth-status check.
type StatusResult struct {
	LoggedIn bool
	Profile  *domainauth.Profile
	// ForcedLogout is set when a stale identity caused the session to be
	// destroyed; the caller must clear the cookie.
	ForcedLogout bool
}

// Status decides whether a session that looks authenticated should still be
// treated as logged in. The identity is re-resolved against the upstream
// service; a deprovisioned identity forces a logout instead of reporting a
// stale authenticated status.
func (s *AuthService) Status(ctx context.Context, sessionID string) (StatusResult, error) {
	sess, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		// Unknown or expired session is simply "not logged in"; a store
		// failure is not, and must not masquerade as an anonymous user.
		if apperrors.HasCode(err, apperrors.ErrCodeNotFound) {
			return StatusResult{}, nil
		}
		return StatusResult{}, fmt.Errorf("load session: %w", err)
	}
	if !sess.Authenticated() {
		return StatusResult{}, nil
	}

	profile, err := s.resolver.Resolve(ctx, sess.ExternalID)
	if err != nil {
		return StatusResult{}, fmt.Errorf("resolve identity: %w", err)
	}
	if profile == nil {
		// Identity no longer exists upstream; the session must die.
		if logoutErr := s.teardown(ctx, sess); logoutErr != nil {
			s.logger.WarnContext(ctx, "forced logout incomplete", "error", logoutErr)
		}
		s.recordAudit(ctx, domainauth.AuditEvent{
			Action:     domainauth.AuditForcedLogout,
			ExternalID: sess.ExternalID,
		})
		return StatusResult{ForcedLogout: true}, nil
	}

	return StatusResult{LoggedIn: true, Profile: profile}, nil
}

// recordAudit writes an audit row best-effort; failures are logged, never
// escalated to the user.
func (s *AuthService) recordAudit(ctx context.Context, event domainauth.AuditEvent) {
	if s.audit == nil {
		return
	}
	event.Time = s.now()

	mctx, cancel := mutationContext(ctx)
	defer cancel()
	if err := s.audit.Record(mctx, event); err != nil {
		s.logger.WarnContext(ctx, "audit record failed",
			"action", string(event.Action), "error", err)
	}
}
