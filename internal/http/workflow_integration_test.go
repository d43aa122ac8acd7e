package httpx

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opetus/case-gateway/internal/adapters/devauth"
	redisadapter "github.com/opetus/case-gateway/internal/adapters/redis"
	domainauth "github.com/opetus/case-gateway/internal/domain/auth"
	"github.com/opetus/case-gateway/internal/service"
)

// mapResolver resolves identities from a fixed map, standing in for the
// upstream profile endpoint.
type mapResolver struct {
	profiles map[string]*domainauth.Profile
}

func (m *mapResolver) Resolve(_ context.Context, externalID string) (*domainauth.Profile, error) {
	return m.profiles[externalID], nil
}

type testGateway struct {
	router   http.Handler
	resolver *mapResolver
	upstream *struct{ hits int }
}

func newTestGateway(t *testing.T) (*testGateway, *httptest.Server) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	store := redisadapter.NewSessionStore(client)

	resolver := &mapResolver{profiles: map[string]*domainauth.Profile{
		"E1": {ExternalID: "E1", FirstName: "A", LastName: "B", Email: "a@corp.test"},
	}}

	svc := service.NewAuthService(service.AuthServiceOptions{
		Sessions: store,
		Resolver: resolver,
	})

	dev, err := devauth.New(devauth.Config{
		Environment: "development",
		ExternalID:  "E1",
		FirstName:   "A",
		LastName:    "B",
		Email:       "a@corp.test",
	})
	require.NoError(t, err)

	hits := &struct{ hits int }{}
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.hits++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"cases":[]}`))
	}))
	t.Cleanup(upstream.Close)

	proxy, err := NewProxy(ProxyConfig{UpstreamURL: upstream.URL, Issuer: &stubIssuer{}})
	require.NoError(t, err)

	router := NewRouter(RouterServices{
		Auth:       svc,
		Dev:        dev,
		Proxy:      proxy,
		APIVersion: "1.4.2",
	})

	return &testGateway{router: router, resolver: resolver, upstream: hits}, upstream
}

// devLogin drives the dev form flow end to end and returns the cookies a
// browser would hold afterwards.
func devLogin(t *testing.T, gw *testGateway) []*http.Cookie {
	t.Helper()

	// First request establishes the CSRF cookie.
	formReq := httptest.NewRequest(http.MethodGet, "/auth/dev/login", nil)
	formRec := httptest.NewRecorder()
	gw.router.ServeHTTP(formRec, formReq)
	require.Equal(t, http.StatusOK, formRec.Code)
	csrf := findCookie(t, formRec.Result(), DefaultCSRFCookieName)
	require.NotNil(t, csrf)

	form := url.Values{
		"csrf_token": {csrf.Value},
		"externalId": {"E1"},
		"firstName":  {"A"},
		"lastName":   {"B"},
		"email":      {"a@corp.test"},
	}
	req := httptest.NewRequest(http.MethodPost, "/auth/dev/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(csrf)
	rec := httptest.NewRecorder()
	gw.router.ServeHTTP(rec, req)

	res := rec.Result()
	require.Equal(t, http.StatusFound, res.StatusCode)
	require.Equal(t, "/", res.Header.Get("Location"))

	session := findCookie(t, res, "session_id")
	require.NotNil(t, session, "successful login sets the session cookie")
	require.NotEmpty(t, session.Value)

	return []*http.Cookie{csrf, session}
}

func TestHealthEndpoint(t *testing.T) {
	gw, _ := newTestGateway(t)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	gw.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"UP"}`, rec.Body.String())
}

func TestDevLoginFlowIsIdentityPreserving(t *testing.T) {
	gw, _ := newTestGateway(t)
	cookies := devLogin(t, gw)

	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	gw.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"loggedIn":true`)
	assert.Contains(t, rec.Body.String(), `"externalId":"E1"`)
}

func TestPlantedSessionIDIsNotPromotedAtLogin(t *testing.T) {
	gw, _ := newTestGateway(t)

	formReq := httptest.NewRequest(http.MethodGet, "/auth/dev/login", nil)
	formRec := httptest.NewRecorder()
	gw.router.ServeHTTP(formRec, formReq)
	csrf := findCookie(t, formRec.Result(), DefaultCSRFCookieName)
	require.NotNil(t, csrf)

	form := url.Values{
		"csrf_token": {csrf.Value},
		"externalId": {"E1"},
		"firstName":  {"A"},
		"lastName":   {"B"},
		"email":      {"a@corp.test"},
	}
	req := httptest.NewRequest(http.MethodPost, "/auth/dev/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(csrf)
	// A session id an attacker planted in the browser before the login.
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "attacker-fixed-id"})
	rec := httptest.NewRecorder()
	gw.router.ServeHTTP(rec, req)

	res := rec.Result()
	require.Equal(t, http.StatusFound, res.StatusCode)
	session := findCookie(t, res, "session_id")
	require.NotNil(t, session)
	assert.NotEqual(t, "attacker-fixed-id", session.Value,
		"login must never promote a client-chosen id")

	// The planted id stays unauthenticated.
	apiReq := httptest.NewRequest(http.MethodGet, "/api/cases", nil)
	apiReq.AddCookie(&http.Cookie{Name: "session_id", Value: "attacker-fixed-id"})
	apiRec := httptest.NewRecorder()
	gw.router.ServeHTTP(apiRec, apiReq)
	assert.Equal(t, http.StatusUnauthorized, apiRec.Code)
	assert.Zero(t, gw.upstream.hits)
}

func TestGateRejectsAnonymousWithoutContactingUpstream(t *testing.T) {
	gw, _ := newTestGateway(t)

	req := httptest.NewRequest(http.MethodGet, "/api/cases", nil)
	rec := httptest.NewRecorder()
	gw.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "authentication_required")
	assert.Zero(t, gw.upstream.hits, "anonymous request must not reach the upstream")
}

func TestAuthenticatedRequestIsProxied(t *testing.T) {
	gw, _ := newTestGateway(t)
	cookies := devLogin(t, gw)

	req := httptest.NewRequest(http.MethodGet, "/api/cases", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	gw.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"cases":[]}`, rec.Body.String())
	assert.Equal(t, 1, gw.upstream.hits)
}

func TestLogoutInvalidatesSession(t *testing.T) {
	gw, _ := newTestGateway(t)
	cookies := devLogin(t, gw)

	logoutReq := httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
	for _, c := range cookies {
		logoutReq.AddCookie(c)
	}
	logoutRec := httptest.NewRecorder()
	gw.router.ServeHTTP(logoutRec, logoutReq)

	res := logoutRec.Result()
	assert.Equal(t, http.StatusFound, res.StatusCode)
	cleared := findCookie(t, res, "session_id")
	require.NotNil(t, cleared)
	assert.Equal(t, -1, cleared.MaxAge)

	// The old session id is dead, even if the browser replays it.
	apiReq := httptest.NewRequest(http.MethodGet, "/api/cases", nil)
	for _, c := range cookies {
		apiReq.AddCookie(c)
	}
	apiRec := httptest.NewRecorder()
	gw.router.ServeHTTP(apiRec, apiReq)
	assert.Equal(t, http.StatusUnauthorized, apiRec.Code)
}

func TestStaleIdentityForcesLogoutThroughStatus(t *testing.T) {
	gw, _ := newTestGateway(t)
	cookies := devLogin(t, gw)

	// Deprovision the identity upstream.
	delete(gw.resolver.profiles, "E1")

	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	gw.router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"loggedIn":false`)

	// Session destroyed: the same cookie no longer passes the gate.
	apiReq := httptest.NewRequest(http.MethodGet, "/api/cases", nil)
	for _, c := range cookies {
		apiReq.AddCookie(c)
	}
	apiRec := httptest.NewRecorder()
	gw.router.ServeHTTP(apiRec, apiReq)
	assert.Equal(t, http.StatusUnauthorized, apiRec.Code)
}

func TestDevRoutesAbsentWithoutStrategy(t *testing.T) {
	router := NewRouter(RouterServices{Auth: &stubAuthService{}})

	req := httptest.NewRequest(http.MethodGet, "/auth/dev/login", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
