package httpx

import (
	"errors"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"

	apperrors "github.com/opetus/case-gateway/internal/errors"
	"github.com/opetus/case-gateway/internal/ports"
)

// ProxyConfig configures the upstream reverse proxy.
type ProxyConfig struct {
	// UpstreamURL is the base URL of the upstream service.
	UpstreamURL string
	// Issuer mints the bearer token attached to every forwarded request.
	Issuer ports.TokenIssuer
	// SystemSubject is used when a request reaches the proxy without a user
	// identity in context.
	SystemSubject string // default "system"
	Logger        *slog.Logger
}

// Proxy streams authorized API traffic to the upstream service, swapping the
// browser's cookie for a freshly minted bearer token. Method, path, query,
// and body pass through untouched.
type Proxy struct {
	proxy         *httputil.ReverseProxy
	issuer        ports.TokenIssuer
	systemSubject string
	logger        *slog.Logger
}

// NewProxy validates the upstream URL and builds the proxy.
func NewProxy(cfg ProxyConfig) (*Proxy, error) {
	if cfg.UpstreamURL == "" {
		return nil, apperrors.Configuration("proxy: upstream url is required")
	}
	if cfg.Issuer == nil {
		return nil, apperrors.Configuration("proxy: token issuer is required")
	}
	target, err := url.Parse(cfg.UpstreamURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, apperrors.Configurationf("proxy: invalid upstream url %q", cfg.UpstreamURL)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	systemSubject := cfg.SystemSubject
	if systemSubject == "" {
		systemSubject = "system"
	}

	rp := httputil.NewSingleHostReverseProxy(target)
	// Flush on every write so streamed upstream responses are not buffered.
	rp.FlushInterval = -1
	rp.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		logger.ErrorContext(r.Context(), "upstream proxy error",
			"path", r.URL.Path, "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusBadGateway,
			ErrCode: "upstream_unavailable",
			Err:     errors.New("upstream service unavailable"),
		})
	}

	return &Proxy{
		proxy:         rp,
		issuer:        cfg.Issuer,
		systemSubject: systemSubject,
		logger:        logger,
	}, nil
}

// ServeHTTP mints a token for the session identity (or the system identity)
// and forwards the request.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	subject := p.systemSubject
	if session, ok := GetSessionFromContext(r.Context()); ok && session.Authenticated() {
		subject = session.ExternalID
	}

	token, err := p.issuer.Issue(subject)
	if err != nil {
		p.logger.ErrorContext(r.Context(), "mint upstream token failed", "error", err)
		WriteError(w, ErrorParams{
			Code:    http.StatusInternalServerError,
			ErrCode: "token_issue_failed",
			Err:     errors.New("unable to authorize upstream request"),
		})
		return
	}

	// The upstream trusts the bearer token, never the browser's cookies.
	r.Header.Del("Cookie")
	r.Header.Set("Authorization", "Bearer "+token)

	p.proxy.ServeHTTP(w, r)
}
