// Package auth issues and verifies the HS256 bearer tokens that identify an
// actor to the HTTP API.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"taskhub/internal/lifecycle"
)

// ErrInvalidToken is returned for any token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Claims identify the caller. The subject is the user id.
type Claims struct {
	Tenant string `json:"tenant"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Actor converts verified claims into the lifecycle actor.
func (c *Claims) Actor() lifecycle.Actor {
	role := c.Role
	if role == "" {
		role = lifecycle.RoleOwner
	}
	return lifecycle.Actor{UserID: c.Subject, TenantID: c.Tenant, Role: role}
}

// Signer holds the shared HS256 secret.
type Signer struct {
	key []byte
	now func() time.Time
}

// NewSigner returns a signer for secret.
func NewSigner(secret string) (*Signer, error) {
	if secret == "" {
		return nil, fmt.Errorf("empty jwt secret")
	}
	return &Signer{key: []byte(secret), now: time.Now}, nil
}

// Issue mints a token for actor that expires after ttl.
func (s *Signer) Issue(actor lifecycle.Actor, ttl time.Duration) (string, error) {
	if actor.UserID == "" || actor.TenantID == "" {
		return "", fmt.Errorf("token needs a user and a tenant")
	}
	now := s.now()
	claims := &Claims{
		Tenant: actor.TenantID,
		Role:   actor.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   actor.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.key)
}

// Parse verifies tokenString and returns its claims.
func (s *Signer) Parse(tokenString string) (*Claims, error) {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	token, err := parser.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.key, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Subject == "" || claims.Tenant == "" {
		return nil, fmt.Errorf("%w: missing subject or tenant", ErrInvalidToken)
	}
	return claims, nil
}
