// internal/auth/jwt.go
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var jwtSecret []byte

// SetSecret sets the JWT signing key (from config).
func SetSecret(secret string) {
	jwtSecret = []byte(secret)
}

// Claims carries the opaque tenant key (an email address in practice) that
// scopes every request to one tenant's database.
type Claims struct {
	TenantKey string `json:"tenant_key"`
	jwt.RegisteredClaims
}

// GenerateToken creates a signed JWT for the given tenant. The onboarding
// service mints these; the gateway only validates them.
func GenerateToken(tenantKey string, ttl time.Duration) (string, error) {
	if len(jwtSecret) == 0 {
		return "", errors.New("JWT secret not set")
	}

	claims := Claims{
		TenantKey: tenantKey,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

// ValidateToken parses and verifies a JWT string.
func ValidateToken(tokenStr string) (*Claims, error) {
	if len(jwtSecret) == 0 {
		return nil, errors.New("JWT secret not set")
	}

	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return jwtSecret, nil
	})
	if err != nil || !token.Valid {
		return nil, errors.New("invalid or expired token")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || claims.TenantKey == "" {
		return nil, errors.New("invalid claims")
	}

	return claims, nil
}
