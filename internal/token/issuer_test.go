package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/opetus/case-gateway/internal/errors"
	"github.com/opetus/case-gateway/internal/testutil"
)

func testKeyPEM(t *testing.T) []byte {
	t.Helper()
	return testutil.RSAPrivateKeyPEM(t)
}

func newTestIssuer(t *testing.T, now func() time.Time) *Issuer {
	t.Helper()
	issuer, err := NewIssuer(Config{
		PrivateKeyPEM: testKeyPEM(t),
		KeyID:         "test-key-1",
		Now:           now,
	})
	require.NoError(t, err)
	return issuer
}

// verify decodes a token the way the upstream service would.
func verify(t *testing.T, issuer *Issuer, raw string, at time.Time) (*jwt.RegisteredClaims, error) {
	t.Helper()
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return issuer.PublicKey(), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithTimeFunc(func() time.Time { return at }),
	)
	return claims, err
}

func TestIssuer_RoundTrip(t *testing.T) {
	now := time.Now()
	issuer := newTestIssuer(t, func() time.Time { return now })

	raw, err := issuer.Issue("abc")
	require.NoError(t, err)

	// Valid immediately after issuance and carries the subject.
	claims, err := verify(t, issuer, raw, now.Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, "abc", claims.Subject)
	assert.Equal(t, "case-gateway", claims.Issuer)
}

func TestIssuer_KeyIDHeader(t *testing.T) {
	issuer := newTestIssuer(t, nil)

	raw, err := issuer.Issue("abc")
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(raw, &jwt.RegisteredClaims{})
	require.NoError(t, err)
	assert.Equal(t, "test-key-1", parsed.Header["kid"])
}

func TestIssuer_RejectedAfterExpiry(t *testing.T) {
	now := time.Now()
	issuer := newTestIssuer(t, func() time.Time { return now })

	raw, err := issuer.Issue("abc")
	require.NoError(t, err)

	_, err = verify(t, issuer, raw, now.Add(DefaultTTL+time.Minute))
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestIssuer_EmptySubject(t *testing.T) {
	issuer := newTestIssuer(t, nil)

	_, err := issuer.Issue("")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfiguration))
}

func TestNewIssuer_MissingKey(t *testing.T) {
	_, err := NewIssuer(Config{KeyID: "k1"})
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeConfiguration))
}
