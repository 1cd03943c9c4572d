package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/traceboard/pkg/config"
)

func newAuthenticator(t *testing.T) *JWTAuthenticator {
	t.Helper()
	a, err := NewJWTAuthenticator(config.AuthConfig{Enabled: true, JWTSecret: "secret", TokenExpiry: time.Hour})
	require.NoError(t, err)
	return a
}

func TestAuthenticateCarriesTenant(t *testing.T) {
	a := newAuthenticator(t)
	token, err := a.IssueToken("tenant-1")
	require.NoError(t, err)

	r := httptest.NewRequest("POST", "/api/v1/analytics/timeseries", nil)
	r.Header.Set("Authorization", "Bearer "+token)
	ctx, err := a.Authenticate(r)
	require.NoError(t, err)

	tenant, err := ExtractTenantID(ctx)
	require.NoError(t, err)
	require.Equal(t, "tenant-1", tenant)
}

func TestAuthenticateRejects(t *testing.T) {
	a := newAuthenticator(t)
	other, err := NewJWTAuthenticator(config.AuthConfig{JWTSecret: "other", TokenExpiry: time.Hour})
	require.NoError(t, err)
	foreign, err := other.IssueToken("tenant-1")
	require.NoError(t, err)

	noTenant, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		TenantID:         "tenant-1",
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   error
	}{
		{"missing header", "", ErrMissingToken},
		{"not bearer", "Basic abc", ErrMissingToken},
		{"wrong secret", "Bearer " + foreign, ErrInvalidToken},
		{"no tenant claim", "Bearer " + noTenant, ErrInvalidToken},
		{"expired", "Bearer " + expired, ErrInvalidToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest("POST", "/", nil)
			if tt.header != "" {
				r.Header.Set("Authorization", tt.header)
			}
			_, err := a.Authenticate(r)
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExtractTenantIDMissing(t *testing.T) {
	_, err := ExtractTenantID(context.Background())
	require.ErrorIs(t, err, ErrMissingTenant)
}
