package httpx

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/opetus/case-gateway/internal/domain/auth"
	apperrors "github.com/opetus/case-gateway/internal/errors"
	"github.com/opetus/case-gateway/internal/ports"
	"github.com/opetus/case-gateway/internal/service"
)

func upstreamErr() error {
	return apperrors.Upstreamf("upstream unavailable")
}

func authedSession(id, externalID string) *domainauth.Session {
	return &domainauth.Session{
		ID:         id,
		ExternalID: externalID,
		ExpiresAt:  time.Now().Add(time.Hour),
	}
}

func findCookie(t *testing.T, res *http.Response, name string) *http.Cookie {
	t.Helper()
	for _, c := range res.Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestSAMLLoginRedirectsToIdP(t *testing.T) {
	var saved domainauth.Session
	svc := &stubAuthService{
		NewAnonymousSessionFn: func(context.Context) (domainauth.Session, error) {
			return domainauth.Session{ID: "pre-login", ExpiresAt: time.Now().Add(time.Hour)}, nil
		},
		SaveSessionFn: func(_ context.Context, sess domainauth.Session) error {
			saved = sess
			return nil
		},
	}
	strategy := &stubStrategy{
		BeginFn: func(_ context.Context, in ports.BeginInput) (ports.BeginResult, error) {
			assert.Equal(t, "/cases/7", in.RelayState)
			return ports.BeginResult{RedirectURL: "https://idp.example/sso?SAMLRequest=abc"}, nil
		},
	}
	h := &AuthHandlers{Svc: svc, SAML: strategy}

	req := httptest.NewRequest(http.MethodGet, "/auth/saml/login?RelayState="+url.QueryEscape("/cases/7"), nil)
	rec := httptest.NewRecorder()
	h.SAMLLogin(rec, req)

	res := rec.Result()
	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "https://idp.example/sso?SAMLRequest=abc", res.Header.Get("Location"))
	assert.Equal(t, "/cases/7", saved.RelayState)

	cookie := findCookie(t, res, "session_id")
	require.NotNil(t, cookie)
	assert.Equal(t, "pre-login", cookie.Value)
	assert.True(t, cookie.HttpOnly)
}

func TestSAMLLoginRejectsAbsoluteRelayState(t *testing.T) {
	var saved domainauth.Session
	svc := &stubAuthService{
		SaveSessionFn: func(_ context.Context, sess domainauth.Session) error {
			saved = sess
			return nil
		},
	}
	h := &AuthHandlers{Svc: svc, SAML: &stubStrategy{}}

	req := httptest.NewRequest(http.MethodGet, "/auth/saml/login?RelayState="+url.QueryEscape("https://evil.example/"), nil)
	rec := httptest.NewRecorder()
	h.SAMLLogin(rec, req)

	assert.Equal(t, "/", saved.RelayState)
}

func TestCallbackSuccessRedirectsToRelayState(t *testing.T) {
	pre := &domainauth.Session{ID: "pre", RelayState: "/cases/7", ExpiresAt: time.Now().Add(time.Hour)}
	svc := &stubAuthService{
		GetSessionFn: func(_ context.Context, id string) (*domainauth.Session, error) {
			if id == "pre" {
				return pre, nil
			}
			return nil, errors.New("not found")
		},
		LoginFn: func(_ context.Context, in service.LoginInput) (domainauth.Session, error) {
			sess := in.Session
			sess.ID = "post"
			sess.ExternalID = in.Identity.ExternalID
			return sess, nil
		},
	}
	strategy := &stubStrategy{
		AuthenticateFn: func(_ context.Context, in ports.CallbackInput) (domainauth.Identity, error) {
			return domainauth.Identity{ExternalID: "E1"}, nil
		},
	}
	h := &AuthHandlers{Svc: svc, SAML: strategy}

	req := httptest.NewRequest(http.MethodPost, "/auth/saml/login/callback",
		strings.NewReader("SAMLResponse=zzz"))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "pre"})
	rec := httptest.NewRecorder()
	h.SAMLCallback(rec, req)

	res := rec.Result()
	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/cases/7", res.Header.Get("Location"))

	cookie := findCookie(t, res, "session_id")
	require.NotNil(t, cookie)
	assert.Equal(t, "post", cookie.Value, "cookie moves to the regenerated id")
}

func TestCallbackAuthFailureRedirectsToError(t *testing.T) {
	pre := &domainauth.Session{ID: "pre", ExpiresAt: time.Now().Add(time.Hour)}
	svc := &stubAuthService{
		GetSessionFn: func(_ context.Context, id string) (*domainauth.Session, error) {
			return pre, nil
		},
	}
	strategy := &stubStrategy{
		AuthenticateFn: func(context.Context, ports.CallbackInput) (domainauth.Identity, error) {
			return domainauth.Identity{}, errors.New("bad signature")
		},
	}
	h := &AuthHandlers{Svc: svc, SAML: strategy}

	req := httptest.NewRequest(http.MethodPost, "/auth/saml/login/callback", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "pre"})
	rec := httptest.NewRecorder()
	h.SAMLCallback(rec, req)

	res := rec.Result()
	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, loginErrorPath, res.Header.Get("Location"))
	assert.Nil(t, findCookie(t, res, "session_id"), "no cookie update on failed login")
}

func TestCallbackStoreFailureLeavesOldCookie(t *testing.T) {
	pre := &domainauth.Session{ID: "pre", ExpiresAt: time.Now().Add(time.Hour)}
	svc := &stubAuthService{
		GetSessionFn: func(_ context.Context, id string) (*domainauth.Session, error) {
			return pre, nil
		},
		LoginFn: func(context.Context, service.LoginInput) (domainauth.Session, error) {
			return domainauth.Session{}, errors.New("redis down")
		},
	}
	strategy := &stubStrategy{
		AuthenticateFn: func(context.Context, ports.CallbackInput) (domainauth.Identity, error) {
			return domainauth.Identity{ExternalID: "E1"}, nil
		},
	}
	h := &AuthHandlers{Svc: svc, SAML: strategy}

	req := httptest.NewRequest(http.MethodPost, "/auth/saml/login/callback", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "pre"})
	rec := httptest.NewRecorder()
	h.SAMLCallback(rec, req)

	res := rec.Result()
	assert.Equal(t, loginErrorPath, res.Header.Get("Location"))
	assert.Nil(t, findCookie(t, res, "session_id"))
}

func TestCallbackWithoutSessionFails(t *testing.T) {
	h := &AuthHandlers{Svc: &stubAuthService{}, SAML: &stubStrategy{}}

	req := httptest.NewRequest(http.MethodPost, "/auth/saml/login/callback", nil)
	rec := httptest.NewRecorder()
	h.SAMLCallback(rec, req)

	assert.Equal(t, loginErrorPath, rec.Result().Header.Get("Location"))
}

func TestLogoutClearsCookieEvenWhenStoreFails(t *testing.T) {
	svc := &stubAuthService{
		GetSessionFn: func(_ context.Context, id string) (*domainauth.Session, error) {
			return authedSession(id, "E1"), nil
		},
		LogoutFn: func(context.Context, domainauth.Session) error {
			return errors.New("redis down")
		},
	}
	h := &AuthHandlers{Svc: svc}

	req := httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "s1"})
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	res := rec.Result()
	assert.Equal(t, http.StatusFound, res.StatusCode)
	assert.Equal(t, "/", res.Header.Get("Location"))

	cookie := findCookie(t, res, "session_id")
	require.NotNil(t, cookie, "cookie cleared even though the store failed")
	assert.Empty(t, cookie.Value)
	assert.Equal(t, -1, cookie.MaxAge)
}

func TestLogoutWithoutCookie(t *testing.T) {
	h := &AuthHandlers{Svc: &stubAuthService{}}

	req := httptest.NewRequest(http.MethodGet, "/auth/logout", nil)
	rec := httptest.NewRecorder()
	h.Logout(rec, req)

	assert.Equal(t, http.StatusFound, rec.Result().StatusCode)
}

func TestSingleLogoutRegistersTokenAndBounces(t *testing.T) {
	var gotNameID, gotIndex string
	svc := &stubAuthService{
		GetSessionFn: func(_ context.Context, id string) (*domainauth.Session, error) {
			return authedSession(id, "E1"), nil
		},
		RegisterSingleLogoutFn: func(_ context.Context, sess domainauth.Session, nameID, sessionIndex string) (domainauth.Session, error) {
			gotNameID, gotIndex = nameID, sessionIndex
			return sess, nil
		},
	}
	h := &AuthHandlers{
		Svc: svc,
		ParseSingleLogout: func(*http.Request) (string, string, error) {
			return "user@corp", "idx-9", nil
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/saml/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "s1"})
	rec := httptest.NewRecorder()
	h.SingleLogout(rec, req)

	res := rec.Result()
	assert.Equal(t, http.StatusSeeOther, res.StatusCode)
	assert.Equal(t, "/auth/logout", res.Header.Get("Location"))
	assert.Equal(t, "user@corp", gotNameID)
	assert.Equal(t, "idx-9", gotIndex)
}

func TestSingleLogoutRejectsBadRequest(t *testing.T) {
	svc := &stubAuthService{
		GetSessionFn: func(_ context.Context, id string) (*domainauth.Session, error) {
			return authedSession(id, "E1"), nil
		},
	}
	h := &AuthHandlers{
		Svc: svc,
		ParseSingleLogout: func(*http.Request) (string, string, error) {
			return "", "", errors.New("no SAMLRequest")
		},
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/saml/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "s1"})
	rec := httptest.NewRecorder()
	h.SingleLogout(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Result().StatusCode)
}

func TestStatusAnonymous(t *testing.T) {
	h := &AuthHandlers{Svc: &stubAuthService{}, APIVersion: "1.4.2"}

	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	rec := httptest.NewRecorder()
	h.Status(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"loggedIn":false,"apiVersion":"1.4.2"}`, rec.Body.String())
}

func TestStatusLoggedIn(t *testing.T) {
	svc := &stubAuthService{
		StatusFn: func(_ context.Context, sessionID string) (service.StatusResult, error) {
			assert.Equal(t, "s1", sessionID)
			return service.StatusResult{
				LoggedIn: true,
				Profile:  &domainauth.Profile{ExternalID: "E1", FirstName: "A", LastName: "B", Email: "a@corp.test"},
			}, nil
		},
	}
	h := &AuthHandlers{Svc: svc, APIVersion: "1.4.2"}

	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "s1"})
	rec := httptest.NewRecorder()
	h.Status(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{
		"loggedIn": true,
		"apiVersion": "1.4.2",
		"user": {"externalId":"E1","firstName":"A","lastName":"B","email":"a@corp.test"}
	}`, rec.Body.String())
}

func TestStatusForcedLogoutClearsCookie(t *testing.T) {
	svc := &stubAuthService{
		StatusFn: func(context.Context, string) (service.StatusResult, error) {
			return service.StatusResult{ForcedLogout: true}, nil
		},
	}
	h := &AuthHandlers{Svc: svc}

	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "s1"})
	rec := httptest.NewRecorder()
	h.Status(rec, req)

	res := rec.Result()
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Contains(t, rec.Body.String(), `"loggedIn":false`)

	cookie := findCookie(t, res, "session_id")
	require.NotNil(t, cookie)
	assert.Equal(t, -1, cookie.MaxAge)
}

func TestStatusUpstreamFailureIs502(t *testing.T) {
	svc := &stubAuthService{
		StatusFn: func(context.Context, string) (service.StatusResult, error) {
			return service.StatusResult{}, upstreamErr()
		},
	}
	h := &AuthHandlers{Svc: svc}

	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "s1"})
	rec := httptest.NewRecorder()
	h.Status(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "upstream_unavailable")
}

func TestStatusSessionStoreFailureIs500(t *testing.T) {
	svc := &stubAuthService{
		StatusFn: func(context.Context, string) (service.StatusResult, error) {
			return service.StatusResult{}, apperrors.SessionStore("redis down", nil)
		},
	}
	h := &AuthHandlers{Svc: svc}

	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "s1"})
	rec := httptest.NewRecorder()
	h.Status(rec, req)

	// Never "loggedIn:false" while the store is down.
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "session_store")
	assert.NotContains(t, rec.Body.String(), "loggedIn")
}

func TestSafeRedirectPath(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "/"},
		{"/", "/"},
		{"/cases/7", "/cases/7"},
		{"/cases/7?tab=notes", "/cases/7?tab=notes"},
		{"https://evil.example/", "/"},
		{"//evil.example/", "/"},
		{"relative-no-slash", "/"},
		{"javascript:alert(1)", "/"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, safeRedirectPath(tc.in), "input %q", tc.in)
	}
}
