package httpx

import (
	"log/slog"
	"net/http"

	"github.com/opetus/case-gateway/internal/ports"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Auth AuthServiceInterface
	SAML ports.Strategy
	OIDC ports.Strategy
	// Dev enables the non-production login stand-in. Leave nil in
	// production; the routes are then simply not registered and 404.
	Dev ports.Strategy
	// ParseSingleLogout decodes IdP logout requests; nil disables the
	// single-logout endpoint.
	ParseSingleLogout func(r *http.Request) (nameID, sessionIndex string, err error)

	Proxy *Proxy

	CookieName   string
	CookieDomain string
	APIVersion   string
	Logger       *slog.Logger
}

// NewRouter creates and configures the gateway's HTTP handler: auth routes,
// the health endpoint, and the gated reverse proxy under /api/, wrapped in
// recover, CSRF, and request-log middleware.
func NewRouter(services RouterServices) http.Handler {
	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cookieName := services.CookieName
	if cookieName == "" {
		cookieName = "session_id"
	}

	authHandlers := &AuthHandlers{
		Svc:               services.Auth,
		SAML:              services.SAML,
		OIDC:              services.OIDC,
		Dev:               services.Dev,
		ParseSingleLogout: services.ParseSingleLogout,
		CookieName:        cookieName,
		CookieDomain:      services.CookieDomain,
		APIVersion:        services.APIVersion,
		Logger:            logger,
	}

	mux := http.NewServeMux()

	mux.Handle("GET /health", http.HandlerFunc(healthHandler))
	mux.Handle("HEAD /health", http.HandlerFunc(healthHandler))

	if services.SAML != nil {
		mux.HandleFunc("GET /auth/saml/login", authHandlers.SAMLLogin)
		mux.HandleFunc("POST /auth/saml/login/callback", authHandlers.SAMLCallback)
		if services.ParseSingleLogout != nil {
			mux.HandleFunc("POST /auth/saml/logout", authHandlers.SingleLogout)
		}
	}
	if services.OIDC != nil {
		mux.HandleFunc("GET /auth/oidc/login", authHandlers.OIDCLogin)
		mux.HandleFunc("GET /auth/oidc/callback", authHandlers.OIDCCallback)
	}
	if services.Dev != nil {
		mux.HandleFunc("GET /auth/dev/login", authHandlers.DevLoginForm)
		mux.HandleFunc("POST /auth/dev/login", authHandlers.DevLogin)
	}

	mux.HandleFunc("GET /auth/status", authHandlers.Status)
	mux.HandleFunc("GET /auth/logout", authHandlers.Logout)

	if services.Proxy != nil {
		gate := RequireSession(services.Auth, cookieName)
		mux.Handle("/api/", gate(services.Proxy))
	}

	csrf := CSRFProtection(CSRFConfig{
		CookieDomain: services.CookieDomain,
		// The IdP posts to these from its own origin; they are verified by
		// signature, not by our CSRF token.
		ExemptPaths: []string{
			"/auth/saml/login/callback",
			"/auth/saml/logout",
		},
	})

	var handler http.Handler = mux
	handler = csrf(handler)
	handler = Recover(logger)(handler)
	handler = Logging(logger)(handler)
	return handler
}
