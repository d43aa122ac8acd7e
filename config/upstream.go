package config

// UpstreamConfig contains the upstream service configuration.
type UpstreamConfig struct {
	// BaseURL is the upstream service the gateway proxies to.
	BaseURL string `env:"BASE_URL" envDefault:"http://localhost:9000"`

	// ProfilePath is the collection path profiles are resolved under;
	// the external id is appended.
	ProfilePath string `env:"PROFILE_PATH" envDefault:"/api/employees/external"`

	// ActiveExpression is the JMESPath expression that pulls the
	// active-flag out of the upstream profile payload.
	ActiveExpression string `env:"ACTIVE_EXPRESSION" envDefault:"active"`

	// SystemSubject is the subject minted into system bearer tokens.
	SystemSubject string `env:"SYSTEM_SUBJECT" envDefault:"system"`
}

// Sanitize applies guardrails to upstream configuration values.
func (u *UpstreamConfig) Sanitize() {
	if u.SystemSubject == "" {
		u.SystemSubject = "system"
	}
	if u.ActiveExpression == "" {
		u.ActiveExpression = "active"
	}
}
