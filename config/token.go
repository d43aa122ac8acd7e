package config

import "time"

// TokenConfig contains the RS256 signing configuration for upstream bearer
// tokens.
type TokenConfig struct {
	// PrivateKeyPath points at the PEM-encoded RSA signing key.
	PrivateKeyPath string `env:"PRIVATE_KEY_PATH"`
	// PrivateKeyPEM carries the key inline; takes precedence over the path.
	PrivateKeyPEM string `env:"PRIVATE_KEY_PEM"`
	// KeyID is published in the token header so the upstream can select the
	// matching public key.
	KeyID string `env:"KEY_ID"`
	// TTL is the token validity horizon.
	TTL time.Duration `env:"TTL" envDefault:"48h"`
}
