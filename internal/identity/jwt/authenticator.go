// Package jwt issues and validates the opaque session tokens as signed JWTs.
package jwt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/carify/identity-service/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Config contains token signing configuration.
type Config struct {
	SecretKey     string
	TokenDuration time.Duration
}

// Claims are the JWT claims carried by a session token.
type Claims struct {
	jwt.RegisteredClaims
	Role        domain.Role         `json:"role"`
	Permissions []domain.Permission `json:"perms"`
}

// Authenticator signs and validates session tokens.
type Authenticator struct {
	config Config
}

// NewAuthenticator creates a token authenticator.
func NewAuthenticator(config Config) *Authenticator {
	if config.TokenDuration == 0 {
		config.TokenDuration = 24 * time.Hour
	}
	return &Authenticator{config: config}
}

// GenerateToken issues a fresh token for the account. Every call produces a
// unique token (random jti), so two logins never share one.
func (a *Authenticator) GenerateToken(account *domain.Account) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   account.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(a.config.TokenDuration)),
		},
		Role:        account.Role,
		Permissions: account.Permissions.List(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(a.config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and verifies a token, returning the account ID, role
// and permission set it carries.
func (a *Authenticator) ValidateToken(_ context.Context, tokenString string) (string, domain.Role, domain.PermissionSet, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(a.config.SecretKey), nil
	})
	if err != nil || !token.Valid {
		return "", "", nil, errors.New("invalid token")
	}

	return claims.Subject, claims.Role, domain.NewPermissionSet(claims.Permissions...), nil
}
