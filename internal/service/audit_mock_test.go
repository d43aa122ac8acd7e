package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	domainauth "github.com/opetus/case-gateway/internal/domain/auth"
	"github.com/opetus/case-gateway/internal/mocks"
)

func TestLogin_RecordsAuditEvent(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	ctx := context.Background()
	store := mocks.NewMockSessionStore(ctrl)
	audit := mocks.NewMockAuditLog(ctrl)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc := NewAuthService(AuthServiceOptions{
		Sessions: store,
		Audit:    audit,
		Now:      func() time.Time { return now },
	})

	store.EXPECT().
		RegenerateID(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, sess domainauth.Session) (domainauth.Session, error) {
			sess.ID = "regenerated"
			return sess, nil
		})

	var recorded domainauth.AuditEvent
	audit.EXPECT().
		Record(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, event domainauth.AuditEvent) error {
			recorded = event
			return nil
		})

	_, err := svc.Login(ctx, LoginInput{
		Session:    domainauth.Session{ID: "pre-login"},
		Identity:   domainauth.Identity{ExternalID: "E42", FirstName: "Ada"},
		Strategy:   "saml",
		RemoteAddr: "198.51.100.7",
	})
	require.NoError(t, err)

	assert.Equal(t, domainauth.AuditLogin, recorded.Action)
	assert.Equal(t, "E42", recorded.ExternalID)
	assert.Equal(t, "saml", recorded.Strategy)
	assert.Equal(t, "198.51.100.7", recorded.RemoteAddr)
	assert.Equal(t, now, recorded.Time)
}

func TestLogin_SucceedsWhenAuditWriteFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockSessionStore(ctrl)
	audit := mocks.NewMockAuditLog(ctrl)
	svc := NewAuthService(AuthServiceOptions{Sessions: store, Audit: audit})

	store.EXPECT().
		RegenerateID(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, sess domainauth.Session) (domainauth.Session, error) {
			sess.ID = "regenerated"
			return sess, nil
		})
	audit.EXPECT().
		Record(gomock.Any(), gomock.Any()).
		Return(errors.New("audit db down"))

	logged, err := svc.Login(context.Background(), LoginInput{
		Session:  domainauth.Session{ID: "pre-login"},
		Identity: domainauth.Identity{ExternalID: "E42"},
		Strategy: "saml",
	})
	require.NoError(t, err)
	assert.Equal(t, "regenerated", logged.ID)
}

func TestStatus_ResolvesProfileThroughPort(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	store := mocks.NewMockSessionStore(ctrl)
	resolver := mocks.NewMockProfileResolver(ctrl)
	svc := NewAuthService(AuthServiceOptions{Sessions: store, Resolver: resolver})

	sess := domainauth.Session{ID: "sid", ExternalID: "E42"}
	store.EXPECT().Get(gomock.Any(), "sid").Return(sess, nil)
	resolver.EXPECT().
		Resolve(gomock.Any(), "E42").
		Return(&domainauth.Profile{ExternalID: "E42", FirstName: "Ada"}, nil)

	res, err := svc.Status(context.Background(), "sid")
	require.NoError(t, err)
	require.True(t, res.LoggedIn)
	assert.Equal(t, "Ada", res.Profile.FirstName)
}
