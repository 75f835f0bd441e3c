package auth

import (
	"testing"
	"time"

	"itsm/internal/authz"
	pkgerrors "itsm/pkg/errors"

	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *TokenService {
	t.Helper()
	svc, err := NewTokenService(Config{Secret: "test-secret", Issuer: "itsm", AccessTTL: time.Hour})
	require.NoError(t, err)
	return svc
}

func TestIssueAndParseRoundTrip(t *testing.T) {
	svc := newTestService(t)
	token, err := svc.Issue(authz.Context{UserID: 42, EmployeeID: 9, Username: "ana", Role: "Técnico TI"})
	require.NoError(t, err)
	require.NotEmpty(t, token.AccessToken)

	ac, err := svc.Parse(token.AccessToken)
	require.NoError(t, err)
	require.Equal(t, int64(42), ac.UserID)
	require.Equal(t, int64(9), ac.EmployeeID)
	require.Equal(t, "Técnico TI", ac.Role)
	require.True(t, ac.Authenticated())
}

func TestParseExpiredToken(t *testing.T) {
	svc := newTestService(t)
	issuedAt := time.Date(2024, 1, 1, 8, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return issuedAt }
	token, err := svc.Issue(authz.Context{UserID: 1, Role: "admin"})
	require.NoError(t, err)

	svc.now = func() time.Time { return issuedAt.Add(2 * time.Hour) }
	_, err = svc.Parse(token.AccessToken)
	require.Equal(t, pkgerrors.TokenExpired, pkgerrors.GetCode(err))
}

func TestParseRejectsForeignTokens(t *testing.T) {
	svc := newTestService(t)
	other, err := NewTokenService(Config{Secret: "other-secret", Issuer: "itsm"})
	require.NoError(t, err)
	token, err := other.Issue(authz.Context{UserID: 1, Role: "admin"})
	require.NoError(t, err)

	_, err = svc.Parse(token.AccessToken)
	require.Equal(t, pkgerrors.TokenInvalid, pkgerrors.GetCode(err))

	wrongIssuer, err := NewTokenService(Config{Secret: "test-secret", Issuer: "elsewhere"})
	require.NoError(t, err)
	token, err = wrongIssuer.Issue(authz.Context{UserID: 1, Role: "admin"})
	require.NoError(t, err)
	_, err = svc.Parse(token.AccessToken)
	require.Equal(t, pkgerrors.TokenInvalid, pkgerrors.GetCode(err))

	_, err = svc.Parse("")
	require.Equal(t, pkgerrors.TokenInvalid, pkgerrors.GetCode(err))
	_, err = svc.Parse("not-a-jwt")
	require.Equal(t, pkgerrors.TokenInvalid, pkgerrors.GetCode(err))
}

func TestNewTokenServiceRequiresSecret(t *testing.T) {
	_, err := NewTokenService(Config{})
	require.Error(t, err)
}
