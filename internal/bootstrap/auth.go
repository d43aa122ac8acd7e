package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/opetus/case-gateway/config"
	"github.com/opetus/case-gateway/internal/adapters/devauth"
	oidcadapter "github.com/opetus/case-gateway/internal/adapters/oidc"
	"github.com/opetus/case-gateway/internal/adapters/postgres"
	redisadapter "github.com/opetus/case-gateway/internal/adapters/redis"
	samladapter "github.com/opetus/case-gateway/internal/adapters/saml"
	apperrors "github.com/opetus/case-gateway/internal/errors"
	"github.com/opetus/case-gateway/internal/ports"
	"github.com/opetus/case-gateway/internal/service"
	"github.com/opetus/case-gateway/internal/token"
)

// AuthDeps contains the dependencies for building the auth components.
type AuthDeps struct {
	Config      *config.AppConfig
	RedisClient redis.UniversalClient
	AuditPool   *pgxpool.Pool // optional; nil disables auditing
	Logger      *slog.Logger
}

// AuthComponents groups everything the HTTP layer needs for auth.
type AuthComponents struct {
	Service  *service.AuthService
	Issuer   *token.Issuer
	Resolver *service.ProfileService

	SAML ports.Strategy
	OIDC ports.Strategy
	Dev  ports.Strategy
	// ParseSingleLogout is set when SAML is active.
	ParseSingleLogout func(r *http.Request) (nameID, sessionIndex string, err error)
}

// BuildAuth wires the session store, token issuer, identity resolver, audit
// trail, and the configured authentication strategy.
func BuildAuth(ctx context.Context, deps AuthDeps) (*AuthComponents, error) {
	cfg := deps.Config
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	issuer, err := buildIssuer(cfg.Token)
	if err != nil {
		return nil, err
	}

	resolver, err := service.NewProfileService(service.ResolverConfig{
		BaseURL:          cfg.Upstream.BaseURL,
		ProfilePath:      cfg.Upstream.ProfilePath,
		ActiveExpression: cfg.Upstream.ActiveExpression,
		SystemSubject:    cfg.Upstream.SystemSubject,
		Issuer:           issuer,
	})
	if err != nil {
		return nil, err
	}

	sessionStore := redisadapter.NewSessionStore(deps.RedisClient)

	var audit ports.AuditLog
	if deps.AuditPool != nil {
		repo := postgres.NewAuditRepo(deps.AuditPool)
		if err := repo.EnsureSchema(ctx); err != nil {
			return nil, fmt.Errorf("prepare audit schema: %w", err)
		}
		audit = repo
	}

	components := &AuthComponents{
		Issuer:   issuer,
		Resolver: resolver,
		Service: service.NewAuthService(service.AuthServiceOptions{
			Sessions:   sessionStore,
			Resolver:   resolver,
			Audit:      audit,
			Logger:     logger,
			SessionTTL: cfg.Auth.SessionTTL,
		}),
	}

	if err := buildStrategies(components, cfg, logger); err != nil {
		return nil, err
	}
	return components, nil
}

func buildStrategies(components *AuthComponents, cfg *config.AppConfig, logger *slog.Logger) error {
	switch cfg.Auth.Mode {
	case config.AuthModeSAML:
		strategy, err := buildSAMLStrategy(cfg)
		if err != nil {
			return err
		}
		components.SAML = strategy
		components.ParseSingleLogout = samladapter.ParseLogoutRequest

	case config.AuthModeOIDC:
		strategy, err := oidcadapter.New(oidcadapter.Config{
			ClientID:     cfg.Auth.OIDC.ClientID,
			ClientSecret: cfg.Auth.OIDC.ClientSecret,
			RedirectURL:  cfg.Auth.OIDC.RedirectURL,
			Scope:        cfg.Auth.OIDC.Scope,
			DiscoveryURL: cfg.Auth.OIDC.DiscoveryURL,
		})
		if err != nil {
			return err
		}
		components.OIDC = strategy

	case config.AuthModeDev:
		// Dev-only mode: no real provider, just the stand-in built below.

	default:
		return apperrors.Configurationf("unsupported auth mode %q", cfg.Auth.Mode)
	}

	// The dev strategy rides alongside the real one outside production; its
	// constructor refuses production environments.
	if cfg.Auth.Mode == config.AuthModeDev || cfg.IsDev() {
		dev, err := devauth.New(devauth.Config{
			Environment: cfg.Environment,
			ExternalID:  cfg.Auth.DevAuth.ExternalID,
			FirstName:   cfg.Auth.DevAuth.FirstName,
			LastName:    cfg.Auth.DevAuth.LastName,
			Email:       cfg.Auth.DevAuth.Email,
		})
		if err != nil {
			return err
		}
		components.Dev = dev
		logger.Info("dev login enabled", "environment", cfg.Environment)
	}

	return nil
}

func buildSAMLStrategy(cfg *config.AppConfig) (ports.Strategy, error) {
	samlCfg := cfg.Auth.SAML

	var metadata []byte
	if samlCfg.IdPMetadataPath != "" {
		data, err := os.ReadFile(samlCfg.IdPMetadataPath)
		if err != nil {
			return nil, fmt.Errorf("read idp metadata: %w", err)
		}
		metadata = data
	}

	callbackURL := samlCfg.CallbackURL
	if callbackURL == "" {
		callbackURL = strings.TrimRight(cfg.HTTP.BaseURL, "/") + "/auth/saml/login/callback"
	}

	var spKey, spCert []byte
	if samlCfg.SPKeyPath != "" {
		data, err := os.ReadFile(samlCfg.SPKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read sp key: %w", err)
		}
		spKey = data
	}
	if samlCfg.SPCertPath != "" {
		data, err := os.ReadFile(samlCfg.SPCertPath)
		if err != nil {
			return nil, fmt.Errorf("read sp certificate: %w", err)
		}
		spCert = data
	}

	return samladapter.New(samladapter.Config{
		IdPMetadataXML:              metadata,
		SPIssuer:                    samlCfg.SPIssuer,
		SPKeyPEM:                    spKey,
		SPCertPEM:                   spCert,
		AssertionConsumerServiceURL: callbackURL,
		AudienceURI:                 samlCfg.AudienceURI,
		ExternalIDAttribute:         samlCfg.ExternalIDAttribute,
		FirstNameAttribute:          samlCfg.FirstNameAttribute,
		LastNameAttribute:           samlCfg.LastNameAttribute,
		EmailAttribute:              samlCfg.EmailAttribute,
	})
}

func buildIssuer(cfg config.TokenConfig) (*token.Issuer, error) {
	keyPEM := []byte(cfg.PrivateKeyPEM)
	if len(keyPEM) == 0 && cfg.PrivateKeyPath != "" {
		data, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read signing key: %w", err)
		}
		keyPEM = data
	}

	return token.NewIssuer(token.Config{
		PrivateKeyPEM: keyPEM,
		KeyID:         cfg.KeyID,
		TTL:           cfg.TTL,
	})
}
