// Package token issues and reads the signed session tokens exchanged between
// the identity service and the storefront.
//
// Decode reads claims without checking the signature. The role it returns is
// informational only: anything authorization-sensitive must be re-checked by
// the identity service (see Issuer.Parse and the /validate endpoint).
package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ghassenk/jewelstore/internal/models"
)

var (
	ErrMalformed = errors.New("malformed token")
	ErrInvalid   = errors.New("invalid or expired token")
)

// Claims is the payload of a session token.
type Claims struct {
	UserID string      `json:"user_id"`
	Email  string      `json:"email"`
	Role   models.Role `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// EffectiveRole returns the role claim, defaulting to USER when absent.
func (c *Claims) EffectiveRole() models.Role {
	if c.Role == "" {
		return models.RoleUser
	}
	return c.Role
}

// Issuer signs and verifies HS256 session tokens.
type Issuer struct {
	secret []byte
	expiry time.Duration
	now    func() time.Time
}

// NewIssuer creates an Issuer for the given secret and token lifetime.
func NewIssuer(secret string, expiry time.Duration) *Issuer {
	return &Issuer{
		secret: []byte(secret),
		expiry: expiry,
		now:    time.Now,
	}
}

// WithClock returns a copy of the issuer that reads time from now.
func (i *Issuer) WithClock(now func() time.Time) *Issuer {
	cp := *i
	cp.now = now
	return &cp
}

// Expiry is the lifetime of issued tokens.
func (i *Issuer) Expiry() time.Duration {
	return i.expiry
}

// Issue signs a token for the user. The returned claims carry the token ID
// used for session bookkeeping and revocation.
func (i *Issuer) Issue(u *models.User) (string, *Claims, error) {
	now := i.now().UTC()
	claims := &Claims{
		UserID: u.ID,
		Email:  u.Email,
		Role:   u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.expiry)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return signed, claims, nil
}

// Parse verifies the signature and expiry of tokenStr.
func (i *Issuer) Parse(tokenStr string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)

	claims := &Claims{}
	tok, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return i.secret, nil
	})
	if err != nil || !tok.Valid {
		return nil, ErrInvalid
	}
	return claims, nil
}

// Decode reads the claims of tokenStr without verifying the signature.
func Decode(tokenStr string) (*Claims, error) {
	if tokenStr == "" {
		return nil, ErrMalformed
	}
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	return claims, nil
}

// DecodeRole returns the role claim of tokenStr without verifying it.
func DecodeRole(tokenStr string) (models.Role, error) {
	claims, err := Decode(tokenStr)
	if err != nil {
		return "", err
	}
	return claims.EffectiveRole(), nil
}
