package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Authentication and session configuration
//   - database.go: Redis and audit database configuration
//   - http.go: HTTP server configuration
//   - token.go: Upstream token signing configuration
//   - upstream.go: Upstream service configuration
type AppConfig struct {
	// Environment names the deployment environment ("production",
	// "staging", "development", ...). It gates the dev login strategy.
	Environment string `env:"APP_ENV" envDefault:"production"`

	// Authentication configuration
	Auth AuthConfig

	// Redis session store and optional audit database configuration
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Postgres DBConfig    `envPrefix:"DB_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Token signing configuration
	Token TokenConfig `envPrefix:"TOKEN_"`

	// Upstream service configuration
	Upstream UpstreamConfig `envPrefix:"UPSTREAM_"`
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Environment = strings.ToLower(strings.TrimSpace(c.Environment))
	c.HTTP.Sanitize()
	c.Auth.Sanitize()
	c.Upstream.Sanitize()
	c.detectDevMode()
}

// IsDev reports whether the process runs outside production.
func (c *AppConfig) IsDev() bool {
	switch c.Environment {
	case "", "production", "prod":
		return false
	default:
		return true
	}
}

// detectDevMode checks NODE_ENV as a fallback environment signal, common in
// deployments migrated from frontend tooling. It only applies when APP_ENV
// itself was not set; Environment otherwise already carries its default.
func (c *AppConfig) detectDevMode() {
	if v := os.Getenv("APP_ENV"); v != "" {
		return
	}
	nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
	if nodeEnv == "development" || nodeEnv == "dev" {
		c.Environment = "development"
	}
}
