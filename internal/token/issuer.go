package token

// Package token issues the short-lived bearer tokens the gateway attaches to
// upstream service calls.

import (
	"crypto/rsa"
	"time"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/opetus/case-gateway/internal/errors"
)

// DefaultTTL is the expiry horizon for issued tokens. Tokens are stateless;
// the short horizon bounds the blast radius of a leaked token.
const DefaultTTL = 48 * time.Hour

const issuerName = "case-gateway"

// Config holds configuration for the token issuer.
type Config struct {
	// PrivateKeyPEM is the PKCS#1 or PKCS#8 encoded RSA signing key.
	PrivateKeyPEM []byte
	// KeyID is published in the token header so the upstream service can
	// select the matching verification key without guessing.
	KeyID string
	// TTL is the expiry horizon; DefaultTTL when zero.
	TTL time.Duration

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Issuer signs RS256 bearer tokens asserting a subject identity. The signing
// key is parsed once at construction and read-only afterwards.
type Issuer struct {
	key   *rsa.PrivateKey
	keyID string
	ttl   time.Duration
	now   func() time.Time
}

// NewIssuer parses the signing key and returns a ready issuer.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.PrivateKeyPEM) == 0 {
		return nil, apperrors.Configuration("token issuer: signing key is required")
	}
	if cfg.KeyID == "" {
		return nil, apperrors.Configuration("token issuer: key id is required")
	}

	key, err := jwt.ParseRSAPrivateKeyFromPEM(cfg.PrivateKeyPEM)
	if err != nil {
		return nil, apperrors.Internal("token issuer: parse signing key", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Issuer{key: key, keyID: cfg.KeyID, ttl: ttl, now: now}, nil
}

// Issue signs a token asserting subject. Callers must never issue tokens for
// anonymous identities, so an empty subject fails with a configuration error.
func (i *Issuer) Issue(subject string) (string, error) {
	if subject == "" {
		return "", apperrors.Configuration("token issuer: subject is required")
	}

	now := i.now()
	claims := jwt.RegisteredClaims{
		Issuer:    issuerName,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = i.keyID

	signed, err := tok.SignedString(i.key)
	if err != nil {
		return "", apperrors.Internal("token issuer: sign", err)
	}
	return signed, nil
}

// PublicKey returns the verification half of the signing key. The upstream
// service holds this key; the gateway itself never re-checks issued tokens.
func (i *Issuer) PublicKey() *rsa.PublicKey {
	return &i.key.PublicKey
}
