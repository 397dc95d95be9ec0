package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"rollcall/internal/model"
)

// Token is a signed session credential.
type Token struct {
	Value     string
	ExpiresAt time.Time
}

// Claims represents JWT payload.
type Claims struct {
	Subject string         `json:"id"`
	Role    model.RoleName `json:"role"`
	jwt.RegisteredClaims
}

// Signer issues and verifies HS256 session credentials with a shared secret.
type Signer struct {
	Key    string
	Issuer string
	TTL    time.Duration
}

// NewSigner builds a signer; ttl defaults to one hour.
func NewSigner(key, issuer string, ttl time.Duration) Signer {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return Signer{Key: key, Issuer: issuer, TTL: ttl}
}

// Issue signs a credential for the subject and role.
func (s Signer) Issue(subject string, role model.RoleName) (Token, error) {
	if subject == "" {
		return Token{}, errors.New("subject required")
	}
	now := time.Now()
	exp := now.Add(s.TTL)
	claims := Claims{
		Subject: subject,
		Role:    role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.Issuer,
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(exp),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.Key))
	if err != nil {
		return Token{}, err
	}
	return Token{Value: signed, ExpiresAt: exp}, nil
}

// Parse validates a token and returns its identity. Every failure wraps
// model.ErrInvalidCredential.
func (s Signer) Parse(tokenStr string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return []byte(s.Key), nil
	})
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", model.ErrInvalidCredential, err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, fmt.Errorf("%w: invalid token", model.ErrInvalidCredential)
	}
	if s.Issuer != "" && claims.Issuer != s.Issuer {
		return Identity{}, fmt.Errorf("%w: issuer mismatch", model.ErrInvalidCredential)
	}
	role, err := RoleFor(claims.Role)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", model.ErrInvalidCredential, err)
	}
	return Identity{SubjectID: claims.Subject, Role: role}, nil
}
