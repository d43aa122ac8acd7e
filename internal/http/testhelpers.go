package httpx

import (
	"context"

	domainauth "github.com/opetus/case-gateway/internal/domain/auth"
	apperrors "github.com/opetus/case-gateway/internal/errors"
	"github.com/opetus/case-gateway/internal/ports"
	"github.com/opetus/case-gateway/internal/service"
)

// stubAuthService is a hand-rolled AuthServiceInterface for handler tests.
// Each method delegates to an optional func field; unset fields return zero
// values so tests only wire what they exercise.
type stubAuthService struct {
	NewAnonymousSessionFn  func(ctx context.Context) (domainauth.Session, error)
	SaveSessionFn          func(ctx context.Context, sess domainauth.Session) error
	GetSessionFn           func(ctx context.Context, sessionID string) (*domainauth.Session, error)
	LoginFn                func(ctx context.Context, in service.LoginInput) (domainauth.Session, error)
	RegisterSingleLogoutFn func(ctx context.Context, sess domainauth.Session, nameID, sessionIndex string) (domainauth.Session, error)
	LogoutFn               func(ctx context.Context, sess domainauth.Session) error
	StatusFn               func(ctx context.Context, sessionID string) (service.StatusResult, error)
}

func (s *stubAuthService) NewAnonymousSession(ctx context.Context) (domainauth.Session, error) {
	if s.NewAnonymousSessionFn != nil {
		return s.NewAnonymousSessionFn(ctx)
	}
	return domainauth.Session{ID: "anon"}, nil
}

func (s *stubAuthService) SaveSession(ctx context.Context, sess domainauth.Session) error {
	if s.SaveSessionFn != nil {
		return s.SaveSessionFn(ctx, sess)
	}
	return nil
}

func (s *stubAuthService) GetSession(ctx context.Context, sessionID string) (*domainauth.Session, error) {
	if s.GetSessionFn != nil {
		return s.GetSessionFn(ctx, sessionID)
	}
	return nil, apperrors.NotFound("session not found: " + sessionID)
}

func (s *stubAuthService) Login(ctx context.Context, in service.LoginInput) (domainauth.Session, error) {
	if s.LoginFn != nil {
		return s.LoginFn(ctx, in)
	}
	return domainauth.Session{}, nil
}

func (s *stubAuthService) RegisterSingleLogout(ctx context.Context, sess domainauth.Session, nameID, sessionIndex string) (domainauth.Session, error) {
	if s.RegisterSingleLogoutFn != nil {
		return s.RegisterSingleLogoutFn(ctx, sess, nameID, sessionIndex)
	}
	return sess, nil
}

func (s *stubAuthService) Logout(ctx context.Context, sess domainauth.Session) error {
	if s.LogoutFn != nil {
		return s.LogoutFn(ctx, sess)
	}
	return nil
}

func (s *stubAuthService) Status(ctx context.Context, sessionID string) (service.StatusResult, error) {
	if s.StatusFn != nil {
		return s.StatusFn(ctx, sessionID)
	}
	return service.StatusResult{}, nil
}

// stubStrategy scripts Begin/Authenticate results for handler tests.
type stubStrategy struct {
	BeginFn        func(ctx context.Context, in ports.BeginInput) (ports.BeginResult, error)
	AuthenticateFn func(ctx context.Context, in ports.CallbackInput) (domainauth.Identity, error)
}

func (s *stubStrategy) Begin(ctx context.Context, in ports.BeginInput) (ports.BeginResult, error) {
	if s.BeginFn != nil {
		return s.BeginFn(ctx, in)
	}
	return ports.BeginResult{RedirectURL: "/idp"}, nil
}

func (s *stubStrategy) Authenticate(ctx context.Context, in ports.CallbackInput) (domainauth.Identity, error) {
	if s.AuthenticateFn != nil {
		return s.AuthenticateFn(ctx, in)
	}
	return domainauth.Identity{}, nil
}

// stubIssuer returns a fixed token for proxy tests.
type stubIssuer struct {
	token    string
	err      error
	subjects []string
}

func (s *stubIssuer) Issue(subject string) (string, error) {
	s.subjects = append(s.subjects, subject)
	if s.err != nil {
		return "", s.err
	}
	if s.token != "" {
		return s.token, nil
	}
	return "token-for-" + subject, nil
}
