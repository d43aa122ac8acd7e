package httpx

import (
	"context"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	domainauth "github.com/opetus/case-gateway/internal/domain/auth"
	apperrors "github.com/opetus/case-gateway/internal/errors"
	"github.com/opetus/case-gateway/internal/ports"
	"github.com/opetus/case-gateway/internal/service"
)

// loginErrorPath is where failed logins land; the SPA reads the query flag.
const loginErrorPath = "/?loginError=true"

// AuthServiceInterface defines the interface for session lifecycle operations.
type AuthServiceInterface interface {
	NewAnonymousSession(ctx context.Context) (domainauth.Session, error)
	SaveSession(ctx context.Context, sess domainauth.Session) error
	GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error)
	Login(ctx context.Context, in service.LoginInput) (domainauth.Session, error)
	RegisterSingleLogout(ctx context.Context, sess domainauth.Session, nameID, sessionIndex string) (domainauth.Session, error)
	Logout(ctx context.Context, sess domainauth.Session) error
	Status(ctx context.Context, sessionID string) (service.StatusResult, error)
}

// AuthHandlers provides HTTP handlers for authentication operations.
type AuthHandlers struct {
	Svc  AuthServiceInterface
	SAML ports.Strategy
	OIDC ports.Strategy
	Dev  ports.Strategy
	// ParseSingleLogout extracts the IdP's logout request fields. Wired to
	// the SAML adapter; kept as a field so tests can stub it.
	ParseSingleLogout func(r *http.Request) (nameID, sessionIndex string, err error)

	CookieName   string
	CookieDomain string
	APIVersion   string
	Logger       *slog.Logger
}

func (h *AuthHandlers) logger() *slog.Logger {
	if h != nil && h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

func (h *AuthHandlers) cookieName() string {
	if h.CookieName != "" {
		return h.CookieName
	}
	return "session_id"
}

// SAMLLogin handles the SAML login initiation endpoint.
// GET /auth/saml/login?RelayState=<optional_redirect>.
func (h *AuthHandlers) SAMLLogin(w http.ResponseWriter, r *http.Request) {
	h.beginLogin(w, r, h.SAML, r.URL.Query().Get("RelayState"))
}

// SAMLCallback handles the IdP's assertion POST.
// POST /auth/saml/login/callback.
func (h *AuthHandlers) SAMLCallback(w http.ResponseWriter, r *http.Request) {
	h.completeLogin(w, r, h.SAML, "saml")
}

// OIDCLogin handles the OIDC login initiation endpoint.
// GET /auth/oidc/login?RelayState=<optional_redirect>.
func (h *AuthHandlers) OIDCLogin(w http.ResponseWriter, r *http.Request) {
	h.beginLogin(w, r, h.OIDC, r.URL.Query().Get("RelayState"))
}

// OIDCCallback handles the OIDC provider's redirect back.
// GET /auth/oidc/callback?code=<code>&state=<state>.
func (h *AuthHandlers) OIDCCallback(w http.ResponseWriter, r *http.Request) {
	h.completeLogin(w, r, h.OIDC, "oidc")
}

// beginLogin creates (or reuses) the pre-login session, stores the relay
// state and any provider correlation values on it, and redirects the
// browser to the identity provider.
func (h *AuthHandlers) beginLogin(w http.ResponseWriter, r *http.Request, strategy ports.Strategy, relayState string) {
	relayState = safeRedirectPath(relayState)

	sess := h.sessionOrNew(w, r)
	if sess == nil {
		return
	}

	result, err := strategy.Begin(r.Context(), ports.BeginInput{RelayState: relayState})
	if err != nil {
		h.logger().ErrorContext(r.Context(), "begin login failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_failed",
			Err:     err,
		})
		return
	}

	sess.RelayState = relayState
	sess.LoginState = result.State
	sess.LoginNonce = result.Nonce
	if err := h.Svc.SaveSession(r.Context(), *sess); err != nil {
		h.logger().ErrorContext(r.Context(), "save pre-login session failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "login_failed",
			Err:     err,
		})
		return
	}

	h.setSessionCookie(w, r, *sess)
	http.Redirect(w, r, result.RedirectURL, http.StatusFound)
}

// completeLogin verifies the provider response, logs the session in with a
// regenerated id, and redirects to the relay state. Any verification or
// store failure redirects to the login error flag without authenticating.
func (h *AuthHandlers) completeLogin(w http.ResponseWriter, r *http.Request, strategy ports.Strategy, strategyName string) {
	sess := h.sessionFromCookie(r)
	if sess == nil {
		// Callback without a live pre-login session. The login cannot be
		// correlated, so treat it as failed.
		h.logger().WarnContext(r.Context(), "login callback without session", "strategy", strategyName)
		http.Redirect(w, r, loginErrorPath, http.StatusFound)
		return
	}

	identity, err := strategy.Authenticate(r.Context(), ports.CallbackInput{Request: r, Session: *sess})
	if err != nil {
		h.logger().WarnContext(r.Context(), "authentication failed",
			"strategy", strategyName, "error", err)
		http.Redirect(w, r, loginErrorPath, http.StatusFound)
		return
	}

	logged, err := h.Svc.Login(r.Context(), service.LoginInput{
		Session:    *sess,
		Identity:   identity,
		Strategy:   strategyName,
		RemoteAddr: r.RemoteAddr,
	})
	if err != nil {
		// The cookie keeps pointing at the old, unauthenticated session.
		h.logger().ErrorContext(r.Context(), "login persist failed",
			"strategy", strategyName, "error", err)
		http.Redirect(w, r, loginErrorPath, http.StatusFound)
		return
	}

	h.setSessionCookie(w, r, logged)

	target := safeRedirectPath(r.FormValue("RelayState"))
	if target == "/" {
		target = safeRedirectPath(logged.RelayState)
	}
	http.Redirect(w, r, target, http.StatusFound)
}

// SingleLogout handles the IdP-initiated logout request arriving through the
// browser. POST /auth/saml/logout.
//
// The pending logout token is registered on the session and in the store's
// secondary index, then the browser is bounced through the regular logout
// endpoint so both paths share one teardown sequence.
func (h *AuthHandlers) SingleLogout(w http.ResponseWriter, r *http.Request) {
	if h.ParseSingleLogout == nil {
		http.NotFound(w, r)
		return
	}

	sess := h.sessionFromCookie(r)
	if sess == nil || !sess.Authenticated() {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	nameID, sessionIndex, err := h.ParseSingleLogout(r)
	if err != nil {
		h.logger().WarnContext(r.Context(), "single logout request rejected", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusBadRequest,
			ErrCode: "invalid_logout_request",
			Err:     err,
		})
		return
	}

	if _, err := h.Svc.RegisterSingleLogout(r.Context(), *sess, nameID, sessionIndex); err != nil {
		h.logger().ErrorContext(r.Context(), "register single logout failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "logout_failed",
			Err:     err,
		})
		return
	}

	http.Redirect(w, r, "/auth/logout", http.StatusSeeOther)
}

// Logout handles the logout endpoint. GET /auth/logout.
//
// The cookie is cleared before any session store work; whatever the store
// does afterwards, this browser is logged out.
func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionFromCookie(r)

	h.clearCookie(w, r, h.cookieName())

	if sess != nil {
		if err := h.Svc.Logout(r.Context(), *sess); err != nil {
			h.logger().WarnContext(r.Context(), "logout incomplete", "error", err)
		}
	}

	http.Redirect(w, r, "/", http.StatusFound)
}

// Status returns the current authentication status.
// GET /auth/status.
func (h *AuthHandlers) Status(w http.ResponseWriter, r *http.Request) {
	sessionCookie, err := r.Cookie(h.cookieName())
	if err != nil || sessionCookie.Value == "" {
		h.writeStatus(w, service.StatusResult{})
		return
	}

	result, err := h.Svc.Status(r.Context(), sessionCookie.Value)
	if err != nil {
		code := http.StatusBadGateway
		if !apperrors.HasCode(err, apperrors.ErrCodeUpstreamUnavailable) {
			code = http.StatusInternalServerError
		}
		h.logger().ErrorContext(r.Context(), "status check failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    code,
			ErrCode: string(apperrors.CodeOf(err)),
			Err:     errors.New("unable to determine authentication status"),
		})
		return
	}

	if result.ForcedLogout {
		h.clearCookie(w, r, h.cookieName())
	}
	h.writeStatus(w, result)
}

func (h *AuthHandlers) writeStatus(w http.ResponseWriter, result service.StatusResult) {
	body := map[string]any{
		"loggedIn":   result.LoggedIn,
		"apiVersion": h.APIVersion,
	}
	if result.LoggedIn && result.Profile != nil {
		body["user"] = map[string]any{
			"externalId": result.Profile.ExternalID,
			"firstName":  result.Profile.FirstName,
			"lastName":   result.Profile.LastName,
			"email":      result.Profile.Email,
		}
	}
	WriteJSON(w, http.StatusOK, body)
}

var devLoginTemplate = template.Must(template.New("devlogin").Parse(`<!DOCTYPE html>
<html>
<head><title>Developer Login</title></head>
<body>
<h1>Developer Login</h1>
<form method="post" action="/auth/dev/login">
  <input type="hidden" name="csrf_token" value="{{.CSRFToken}}">
  <label>External id <input name="externalId" value="{{.ExternalID}}"></label><br>
  <label>First name <input name="firstName" value="{{.FirstName}}"></label><br>
  <label>Last name <input name="lastName" value="{{.LastName}}"></label><br>
  <label>Email <input name="email" value="{{.Email}}"></label><br>
  <button type="submit">Log in</button>
</form>
</body>
</html>
`))

// DevLoginForm renders the stand-in identity picker.
// GET /auth/dev/login. Only routed outside production.
func (h *AuthHandlers) DevLoginForm(w http.ResponseWriter, r *http.Request) {
	defaults := devLoginDefaults(h.Dev)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	err := devLoginTemplate.Execute(w, map[string]string{
		"CSRFToken":  GetCSRFToken(r),
		"ExternalID": defaults.ExternalID,
		"FirstName":  defaults.FirstName,
		"LastName":   defaults.LastName,
		"Email":      defaults.Email,
	})
	if err != nil {
		h.logger().ErrorContext(r.Context(), "render dev login form failed", "error", err)
	}
}

// DevLogin handles the dev form submission.
// POST /auth/dev/login. Only routed outside production.
func (h *AuthHandlers) DevLogin(w http.ResponseWriter, r *http.Request) {
	sess := h.sessionOrNew(w, r)
	if sess == nil {
		return
	}

	identity, err := h.Dev.Authenticate(r.Context(), ports.CallbackInput{Request: r, Session: *sess})
	if err != nil {
		h.logger().WarnContext(r.Context(), "dev login rejected", "error", err)
		http.Redirect(w, r, loginErrorPath, http.StatusFound)
		return
	}

	logged, err := h.Svc.Login(r.Context(), service.LoginInput{
		Session:    *sess,
		Identity:   identity,
		Strategy:   "dev",
		RemoteAddr: r.RemoteAddr,
	})
	if err != nil {
		h.logger().ErrorContext(r.Context(), "dev login persist failed", "error", err)
		http.Redirect(w, r, loginErrorPath, http.StatusFound)
		return
	}

	h.setSessionCookie(w, r, logged)
	http.Redirect(w, r, safeRedirectPath(logged.RelayState), http.StatusFound)
}

// sessionFromCookie loads the session the request's cookie points at, or
// nil. Login and logout flows degrade the same way for a store failure as
// for a missing session, so the error is only logged here.
func (h *AuthHandlers) sessionFromCookie(r *http.Request) *domainauth.Session {
	sess, err := getSessionFromRequest(r, h.Svc, h.cookieName())
	if err != nil {
		h.logger().ErrorContext(r.Context(), "load session failed", "error", err)
		return nil
	}
	return sess
}

// sessionOrNew returns the request's session or creates a fresh anonymous
// one. On store failure it writes the error response and returns nil.
func (h *AuthHandlers) sessionOrNew(w http.ResponseWriter, r *http.Request) *domainauth.Session {
	if sess := h.sessionFromCookie(r); sess != nil {
		return sess
	}
	sess, err := h.Svc.NewAnonymousSession(r.Context())
	if err != nil {
		h.logger().ErrorContext(r.Context(), "create session failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "session_unavailable",
			Err:     err,
		})
		return nil
	}
	return &sess
}

// clearCookie clears a cookie by setting it to expire immediately.
// It mirrors key attributes (Secure, Path, Domain, SameSite) used when setting cookies
// to maximize compatibility across browsers during deletion.
func (h *AuthHandlers) clearCookie(w http.ResponseWriter, r *http.Request, name string) {
	isSecure := r.TLS != nil || isForwardedHTTPS(r)
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecure,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0).UTC(),
		SameSite: http.SameSiteLaxMode,
	})
}

// setSessionCookie writes the session cookie based on the session's expiry.
func (h *AuthHandlers) setSessionCookie(w http.ResponseWriter, r *http.Request, s domainauth.Session) {
	isSecure := r.TLS != nil || isForwardedHTTPS(r)
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookieName(),
		Value:    s.ID,
		Path:     "/",
		Domain:   h.CookieDomain,
		HttpOnly: true,
		Secure:   isSecure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(time.Until(s.ExpiresAt).Seconds()),
	})
}

// devLoginDefaults reads the preset identity off the dev strategy when it
// exposes one.
func devLoginDefaults(strategy ports.Strategy) domainauth.Identity {
	type defaulter interface {
		Defaults() (externalID, firstName, lastName, email string)
	}
	if d, ok := strategy.(defaulter); ok {
		externalID, firstName, lastName, email := d.Defaults()
		return domainauth.Identity{
			ExternalID: externalID,
			FirstName:  firstName,
			LastName:   lastName,
			Email:      email,
		}
	}
	return domainauth.Identity{}
}

// safeRedirectPath ensures the provided redirect is a same-origin relative path
// starting with "/" and not an absolute URL. Returns "/" when invalid.
func safeRedirectPath(candidate string) string {
	if candidate == "" {
		return "/"
	}
	u, err := url.Parse(candidate)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") {
		return "/"
	}
	// Reject scheme-relative references like //evil.example.
	if strings.HasPrefix(candidate, "//") {
		return "/"
	}
	return candidate
}
