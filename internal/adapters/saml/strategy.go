package saml

// Package saml implements the SAML 2.0 assertion-consumer strategy. The
// gateway acts as a SAML service provider: Begin sends the browser to the
// IdP with the redirect binding, Authenticate consumes the POST-bound
// response and validates its signature against the IdP metadata.

import (
	"context"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"encoding/xml"

	saml2 "github.com/russellhaering/gosaml2"
	"github.com/russellhaering/gosaml2/types"
	dsig "github.com/russellhaering/goxmldsig"

	domainauth "github.com/opetus/case-gateway/internal/domain/auth"
	apperrors "github.com/opetus/case-gateway/internal/errors"
	"github.com/opetus/case-gateway/internal/ports"
)

// Default assertion attribute names, matching the AD federation mapping.
const (
	defaultExternalIDAttribute = "employeeNumber"
	defaultFirstNameAttribute  = "givenName"
	defaultLastNameAttribute   = "sn"
	defaultEmailAttribute      = "mail"
)

// Config holds the service-provider side configuration for the strategy.
type Config struct {
	// IdPMetadataXML is the IdP metadata document (entity id, SSO endpoint,
	// signing certificates).
	IdPMetadataXML []byte

	// SPIssuer is the entity id this gateway presents to the IdP.
	SPIssuer string
	// AssertionConsumerServiceURL is the absolute URL of the callback endpoint.
	AssertionConsumerServiceURL string
	// AudienceURI restricts which assertions this SP accepts. Defaults to SPIssuer.
	AudienceURI string

	// SPKeyPEM and SPCertPEM hold the service provider's own keypair,
	// used for request signing and assertion decryption. Both must be set
	// together; when absent, an ephemeral keypair is generated at startup
	// and authn requests stay unsigned.
	SPKeyPEM  []byte
	SPCertPEM []byte

	// Attribute names to pull the identity from. Defaults above.
	ExternalIDAttribute string
	FirstNameAttribute  string
	LastNameAttribute   string
	EmailAttribute      string
}

// spKeyStore holds the SP keypair for the dsig.X509KeyStore interface.
type spKeyStore struct {
	privateKey *rsa.PrivateKey
	certDER    []byte
}

func (ks *spKeyStore) GetKeyPair() (*rsa.PrivateKey, []byte, error) {
	return ks.privateKey, ks.certDER, nil
}

// loadSPKeyStore parses the configured SP keypair.
func loadSPKeyStore(keyPEM, certPEM []byte) (dsig.X509KeyStore, error) {
	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, apperrors.Configuration("saml: PEM decode of SP key failed")
	}
	key, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
	if err != nil {
		return nil, apperrors.Internal("saml: parse SP key", err)
	}
	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil {
		return nil, apperrors.Configuration("saml: PEM decode of SP certificate failed")
	}
	return &spKeyStore{privateKey: key, certDER: certBlock.Bytes}, nil
}

// Strategy implements ports.Strategy as a SAML service provider.
type Strategy struct {
	sp  *saml2.SAMLServiceProvider
	cfg Config
}

var _ ports.Strategy = (*Strategy)(nil)

// New parses the IdP metadata and builds the service provider.
func New(cfg Config) (*Strategy, error) {
	if len(cfg.IdPMetadataXML) == 0 {
		return nil, apperrors.Configuration("saml: IdP metadata is required")
	}
	if cfg.SPIssuer == "" {
		return nil, apperrors.Configuration("saml: SP issuer is required")
	}
	if cfg.AssertionConsumerServiceURL == "" {
		return nil, apperrors.Configuration("saml: assertion consumer service URL is required")
	}
	if cfg.AudienceURI == "" {
		cfg.AudienceURI = cfg.SPIssuer
	}
	if cfg.ExternalIDAttribute == "" {
		cfg.ExternalIDAttribute = defaultExternalIDAttribute
	}
	if cfg.FirstNameAttribute == "" {
		cfg.FirstNameAttribute = defaultFirstNameAttribute
	}
	if cfg.LastNameAttribute == "" {
		cfg.LastNameAttribute = defaultLastNameAttribute
	}
	if cfg.EmailAttribute == "" {
		cfg.EmailAttribute = defaultEmailAttribute
	}

	var metadata types.EntityDescriptor
	if err := xml.Unmarshal(cfg.IdPMetadataXML, &metadata); err != nil {
		return nil, apperrors.Internal("saml: unmarshal IdP metadata", err)
	}
	if metadata.IDPSSODescriptor == nil || len(metadata.IDPSSODescriptor.SingleSignOnServices) == 0 {
		return nil, apperrors.Configuration("saml: IdP metadata has no SSO endpoint")
	}

	certStore, err := certificateStore(&metadata)
	if err != nil {
		return nil, err
	}

	if (len(cfg.SPKeyPEM) == 0) != (len(cfg.SPCertPEM) == 0) {
		return nil, apperrors.Configuration("saml: SP key and certificate must be configured together")
	}

	var (
		keyStore dsig.X509KeyStore
		signReqs bool
	)
	if len(cfg.SPKeyPEM) > 0 {
		keyStore, err = loadSPKeyStore(cfg.SPKeyPEM, cfg.SPCertPEM)
		if err != nil {
			return nil, err
		}
		signReqs = true
	} else {
		// No SP keypair configured: requests stay unsigned and the signed,
		// audience-restricted response carries the trust. The ephemeral
		// keystore only satisfies the library's interface.
		keyStore = dsig.RandomKeyStoreForTest()
	}

	sp := &saml2.SAMLServiceProvider{
		IdentityProviderSSOURL:      metadata.IDPSSODescriptor.SingleSignOnServices[0].Location,
		IdentityProviderIssuer:      metadata.EntityID,
		ServiceProviderIssuer:       cfg.SPIssuer,
		AssertionConsumerServiceURL: cfg.AssertionConsumerServiceURL,
		AudienceURI:                 cfg.AudienceURI,
		IDPCertificateStore:         certStore,
		SignAuthnRequests:           signReqs,
		SPKeyStore:                  keyStore,
	}

	return &Strategy{sp: sp, cfg: cfg}, nil
}

// certificateStore collects the IdP signing certificates from metadata.
func certificateStore(metadata *types.EntityDescriptor) (*dsig.MemoryX509CertificateStore, error) {
	store := &dsig.MemoryX509CertificateStore{}
	for _, kd := range metadata.IDPSSODescriptor.KeyDescriptors {
		for _, b64Cert := range kd.KeyInfo.X509Data.X509Certificates {
			if b64Cert.Data == "" {
				return nil, apperrors.Configuration("saml: IdP metadata certificate is empty")
			}
			der, err := base64.StdEncoding.DecodeString(b64Cert.Data)
			if err != nil {
				return nil, apperrors.Internal("saml: decode IdP certificate", err)
			}
			cert, err := x509.ParseCertificate(der)
			if err != nil {
				return nil, apperrors.Internal("saml: parse IdP certificate", err)
			}
			store.Roots = append(store.Roots, cert)
		}
	}
	if len(store.Roots) == 0 {
		return nil, apperrors.Configuration("saml: IdP metadata has no signing certificates")
	}
	return store, nil
}

// Begin builds the redirect-binding URL carrying the relay state.
func (s *Strategy) Begin(_ context.Context, in ports.BeginInput) (ports.BeginResult, error) {
	authURL, err := s.sp.BuildAuthURL(in.RelayState)
	if err != nil {
		return ports.BeginResult{}, apperrors.Internal("saml: build auth URL", err)
	}
	return ports.BeginResult{RedirectURL: authURL}, nil
}

// Authenticate consumes a POST-bound SAML response. Signature, expiry, and
// audience failures all surface as authentication errors, never as 500s.
func (s *Strategy) Authenticate(_ context.Context, in ports.CallbackInput) (domainauth.Identity, error) {
	r := in.Request
	if err := r.ParseForm(); err != nil {
		return domainauth.Identity{}, apperrors.AuthenticationWrap("saml: parse callback form", err)
	}

	raw := r.FormValue("SAMLResponse")
	if raw == "" {
		return domainauth.Identity{}, apperrors.Authentication("saml: missing SAMLResponse")
	}

	info, err := s.sp.RetrieveAssertionInfo(raw)
	if err != nil {
		return domainauth.Identity{}, apperrors.AuthenticationWrap("saml: invalid assertion", err)
	}
	if info.WarningInfo.InvalidTime {
		return domainauth.Identity{}, apperrors.Authentication("saml: assertion outside validity window")
	}
	if info.WarningInfo.NotInAudience {
		return domainauth.Identity{}, apperrors.Authentication("saml: assertion not for this audience")
	}

	identity := domainauth.Identity{
		ExternalID:   info.Values.Get(s.cfg.ExternalIDAttribute),
		FirstName:    info.Values.Get(s.cfg.FirstNameAttribute),
		LastName:     info.Values.Get(s.cfg.LastNameAttribute),
		Email:        info.Values.Get(s.cfg.EmailAttribute),
		NameID:       info.NameID,
		SessionIndex: info.SessionIndex,
	}
	if identity.ExternalID == "" {
		// Some IdPs put the person identifier straight into the NameID.
		identity.ExternalID = info.NameID
	}
	if identity.ExternalID == "" {
		return domainauth.Identity{}, apperrors.Authenticationf(
			"saml: assertion carries no %s attribute and no NameID", s.cfg.ExternalIDAttribute)
	}

	return identity, nil
}
