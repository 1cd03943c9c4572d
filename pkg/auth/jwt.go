package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/yourusername/traceboard/pkg/config"
)

var (
	ErrMissingToken  = errors.New("missing bearer token")
	ErrInvalidToken  = errors.New("invalid token")
	ErrMissingTenant = errors.New("no tenant in context")
)

type tenantKey struct{}

// Claims are the JWT claims of a tenant token
type Claims struct {
	TenantID string `json:"tenant_id"`
	jwt.RegisteredClaims
}

// JWTAuthenticator handles JWT authentication. Tokens are verified with
// HS256 and the shared secret, or RS256 and the public key when one is
// configured.
type JWTAuthenticator struct {
	config    config.AuthConfig
	publicKey *rsa.PublicKey
}

// NewJWTAuthenticator creates a new JWT authenticator
func NewJWTAuthenticator(cfg config.AuthConfig) (*JWTAuthenticator, error) {
	a := &JWTAuthenticator{config: cfg}
	if cfg.JWTPublicKeyPath != "" {
		pem, err := os.ReadFile(cfg.JWTPublicKeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read JWT public key: %w", err)
		}
		key, err := jwt.ParseRSAPublicKeyFromPEM(pem)
		if err != nil {
			return nil, fmt.Errorf("failed to parse JWT public key: %w", err)
		}
		a.publicKey = key
	}
	return a, nil
}

// Authenticate validates the bearer token of the request and returns a
// context carrying its tenant
func (j *JWTAuthenticator) Authenticate(r *http.Request) (context.Context, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return nil, ErrMissingToken
	}
	claims, err := j.ValidateToken(token)
	if err != nil {
		return nil, err
	}
	return WithTenantID(r.Context(), claims.TenantID), nil
}

// ValidateToken validates a JWT token string
func (j *JWTAuthenticator) ValidateToken(token string) (*Claims, error) {
	method := jwt.SigningMethodHS256.Alg()
	if j.publicKey != nil {
		method = jwt.SigningMethodRS256.Alg()
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if j.publicKey != nil {
			return j.publicKey, nil
		}
		return []byte(j.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{method}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.TenantID == "" {
		return nil, fmt.Errorf("%w: no tenant_id claim", ErrInvalidToken)
	}
	return claims, nil
}

// IssueToken signs an HS256 token for a tenant
func (j *JWTAuthenticator) IssueToken(tenantID string) (string, error) {
	if j.config.JWTSecret == "" {
		return "", errors.New("no JWT secret configured")
	}
	now := time.Now()
	claims := Claims{
		TenantID: tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tenantID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(j.config.TokenExpiry)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(j.config.JWTSecret))
}

// WithTenantID returns a context carrying the tenant ID
func WithTenantID(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// ExtractTenantID extracts the tenant ID from the request context
func ExtractTenantID(ctx context.Context) (string, error) {
	tenantID, ok := ctx.Value(tenantKey{}).(string)
	if !ok || tenantID == "" {
		return "", ErrMissingTenant
	}
	return tenantID, nil
}
