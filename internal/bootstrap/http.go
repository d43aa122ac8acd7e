package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opetus/case-gateway/config"
	httpx "github.com/opetus/case-gateway/internal/http"
)

const shutdownTimeout = 10 * time.Second

// HTTPServerConfig contains configuration for the HTTP server.
type HTTPServerConfig struct {
	Config *config.AppConfig
	Auth   *AuthComponents
	Logger *slog.Logger
}

// BuildHandler assembles the gateway's HTTP handler.
func BuildHandler(cfg *HTTPServerConfig) (http.Handler, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	proxy, err := httpx.NewProxy(httpx.ProxyConfig{
		UpstreamURL:   cfg.Config.Upstream.BaseURL,
		Issuer:        cfg.Auth.Issuer,
		SystemSubject: cfg.Config.Upstream.SystemSubject,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	return httpx.NewRouter(httpx.RouterServices{
		Auth:              cfg.Auth.Service,
		SAML:              cfg.Auth.SAML,
		OIDC:              cfg.Auth.OIDC,
		Dev:               cfg.Auth.Dev,
		ParseSingleLogout: cfg.Auth.ParseSingleLogout,
		Proxy:             proxy,
		CookieName:        cfg.Config.Auth.CookieName,
		CookieDomain:      cfg.Config.HTTP.CookieDomain,
		APIVersion:        cfg.Config.HTTP.APIVersion,
		Logger:            logger,
	}), nil
}

// RunHTTPServer serves the handler until ctx is canceled, then shuts down
// gracefully.
func RunHTTPServer(ctx context.Context, cfg *HTTPServerConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	handler, err := BuildHandler(cfg)
	if err != nil {
		return err
	}

	addr := cfg.Config.HTTP.Addr
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			return serveErr
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
