package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the authentication mode for the application.
type AuthMode string

const (
	// AuthModeSAML uses the SAML assertion consumer for authentication.
	AuthModeSAML AuthMode = "saml"
	// AuthModeOIDC uses OIDC for authentication.
	AuthModeOIDC AuthMode = "oidc"
	// AuthModeDev uses the dev login stand-in (non-production only).
	AuthModeDev AuthMode = "dev"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "saml", "oidc", "dev":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: saml, oidc, dev)", v)
	}
}

// SAMLConfig contains the SAML service provider configuration.
type SAMLConfig struct {
	// IdPMetadataPath points at the identity provider's metadata XML file.
	IdPMetadataPath string `env:"IDP_METADATA_PATH"`
	// SPIssuer is the service provider entity id presented to the IdP.
	SPIssuer string `env:"SP_ISSUER" envDefault:"case-gateway"`
	// CallbackURL is the absolute assertion consumer service URL.
	CallbackURL string `env:"CALLBACK_URL"`
	// AudienceURI defaults to SPIssuer when empty.
	AudienceURI string `env:"AUDIENCE_URI"`

	// SPKeyPath and SPCertPath point at the service provider's own keypair
	// for request signing. Unset leaves authn requests unsigned.
	SPKeyPath  string `env:"SP_KEY_PATH"`
	SPCertPath string `env:"SP_CERT_PATH"`

	// Assertion attribute names carrying the identity fields.
	ExternalIDAttribute string `env:"EXTERNAL_ID_ATTRIBUTE" envDefault:"employeeNumber"`
	FirstNameAttribute  string `env:"FIRST_NAME_ATTRIBUTE"  envDefault:"givenName"`
	LastNameAttribute   string `env:"LAST_NAME_ATTRIBUTE"   envDefault:"sn"`
	EmailAttribute      string `env:"EMAIL_ATTRIBUTE"       envDefault:"mail"`
}

// OIDCConfig contains the OIDC client configuration.
type OIDCConfig struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/oidc/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
}

// DevAuthConfig controls the dev login identity prefill.
// Used when AUTH_MODE=dev for development and testing.
type DevAuthConfig struct {
	ExternalID string `env:"EXTERNAL_ID" envDefault:"dev-user"`
	FirstName  string `env:"FIRST_NAME"  envDefault:"Dev"`
	LastName   string `env:"LAST_NAME"   envDefault:"User"`
	Email      string `env:"EMAIL"       envDefault:"dev@example.com"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which authentication strategy handles logins.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"saml"`

	// SAML configuration (used when Mode=saml).
	SAML SAMLConfig `envPrefix:"SAML_"`

	// OIDC configuration (used when Mode=oidc).
	OIDC OIDCConfig `envPrefix:"OIDC_"`

	// DevAuth configuration (used when Mode=dev).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// SessionTTL bounds how long an authenticated session lives.
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"8h"`

	// CookieName is the session cookie name.
	CookieName string `env:"SESSION_COOKIE_NAME" envDefault:"session_id"`
}

// Sanitize applies guardrails to auth configuration values.
func (a *AuthConfig) Sanitize() {
	if a.SessionTTL <= 0 {
		a.SessionTTL = 8 * time.Hour
	}
	if a.CookieName == "" {
		a.CookieName = "session_id"
	}
	if a.SAML.AudienceURI == "" {
		a.SAML.AudienceURI = a.SAML.SPIssuer
	}
}
