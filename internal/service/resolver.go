package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	jmespath "github.com/jmespath-community/go-jmespath"

	domainauth "github.com/opetus/case-gateway/internal/domain/auth"
	apperrors "github.com/opetus/case-gateway/internal/errors"
	"github.com/opetus/case-gateway/internal/ports"
)

// upstreamTimeout bounds a single profile lookup against the upstream
// service.
const upstreamTimeout = 10 * time.Second

// ResolverConfig configures a ProfileService.
type ResolverConfig struct {
	// BaseURL of the upstream service, e.g. http://cases-api:8080.
	BaseURL string
	// ProfilePath is the collection path the external id is appended to.
	ProfilePath string // default /api/employees/external
	// ActiveExpression is a JMESPath expression evaluated against the
	// upstream profile payload; a literal false marks the identity
	// inactive. An absent field counts as active.
	ActiveExpression string // default "active"
	// SystemSubject is the subject minted into the system bearer token.
	SystemSubject string // default "system"

	Issuer     ports.TokenIssuer
	HTTPClient *http.Client
}

// ProfileService resolves a session's bare identity reference into the
// current upstream profile. It always calls with a system token, never the
// user's, so a deprovisioned user cannot vouch for themselves.
type ProfileService struct {
	baseURL       string
	profilePath   string
	systemSubject string
	activeExpr    string
	issuer        ports.TokenIssuer
	client        *http.Client
}

// NewProfileService validates the config and compiles the active-flag
// expression once.
func NewProfileService(cfg ResolverConfig) (*ProfileService, error) {
	if cfg.BaseURL == "" {
		return nil, apperrors.Configuration("resolver: base url is required")
	}
	if cfg.Issuer == nil {
		return nil, apperrors.Configuration("resolver: token issuer is required")
	}
	profilePath := cfg.ProfilePath
	if profilePath == "" {
		profilePath = "/api/employees/external"
	}
	activeExpr := cfg.ActiveExpression
	if activeExpr == "" {
		activeExpr = "active"
	}
	if _, err := jmespath.Compile(activeExpr); err != nil {
		return nil, apperrors.Configurationf("resolver: invalid active expression %q: %v", activeExpr, err)
	}
	systemSubject := cfg.SystemSubject
	if systemSubject == "" {
		systemSubject = "system"
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: upstreamTimeout}
	}
	return &ProfileService{
		baseURL:       strings.TrimRight(cfg.BaseURL, "/"),
		profilePath:   "/" + strings.Trim(profilePath, "/"),
		systemSubject: systemSubject,
		activeExpr:    activeExpr,
		issuer:        cfg.Issuer,
		client:        client,
	}, nil
}

// upstreamProfile is the subset of the upstream payload the gateway cares
// about.
type upstreamProfile struct {
	ExternalID string `json:"externalId"`
	FirstName  string `json:"firstName"`
	LastName   string `json:"lastName"`
	Email      string `json:"email"`
}

// Resolve fetches the current profile for an external id. A nil profile with
// a nil error means the identity no longer exists or is inactive upstream;
// the caller must treat the session as dead.
func (p *ProfileService) Resolve(ctx context.Context, externalID string) (*domainauth.Profile, error) {
	if externalID == "" {
		return nil, nil
	}

	token, err := p.issuer.Issue(p.systemSubject)
	if err != nil {
		return nil, fmt.Errorf("mint system token: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, upstreamTimeout)
	defer cancel()

	reqURL := p.baseURL + p.profilePath + "/" + url.PathEscape(externalID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")

	res, err := p.client.Do(req)
	if err != nil {
		return nil, apperrors.Upstream(fmt.Sprintf("profile lookup for %q", externalID), err)
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusNotFound:
		io.Copy(io.Discard, res.Body)
		return nil, nil
	case res.StatusCode != http.StatusOK:
		io.Copy(io.Discard, res.Body)
		return nil, apperrors.Upstreamf("profile lookup for %q: upstream returned %d", externalID, res.StatusCode)
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, apperrors.Upstream(fmt.Sprintf("profile lookup for %q: read body", externalID), err)
	}

	var raw any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, apperrors.Upstream(fmt.Sprintf("profile lookup for %q: malformed payload", externalID), err)
	}
	if !p.isActive(raw) {
		return nil, nil
	}

	var up upstreamProfile
	if err := json.Unmarshal(body, &up); err != nil {
		return nil, apperrors.Upstream(fmt.Sprintf("profile lookup for %q: malformed payload", externalID), err)
	}
	profile := domainauth.Profile{
		ExternalID: up.ExternalID,
		FirstName:  up.FirstName,
		LastName:   up.LastName,
		Email:      up.Email,
	}
	if profile.ExternalID == "" {
		profile.ExternalID = externalID
	}
	return &profile, nil
}

// isActive evaluates the configured active-flag expression. Only an explicit
// false deactivates; payloads without the field stay active.
func (p *ProfileService) isActive(payload any) bool {
	result, err := jmespath.Search(p.activeExpr, payload)
	if err != nil {
		return true
	}
	if active, ok := result.(bool); ok {
		return active
	}
	return true
}
