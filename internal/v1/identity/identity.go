// Package identity issues and verifies the signed cookie that ties a lobby
// visitor to a room session. The server is both the issuer and the only
// audience, so tokens are HS256 with a shared secret rather than a JWKS
// round trip to an external provider.
package identity

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// CookieName is the cookie carrying the signed room identity.
const CookieName = "auth-cookie"

// DefaultTTL bounds a session identity. Long enough for any watch party,
// short enough that leaked cookies rot.
const DefaultTTL = 24 * time.Hour

const issuerName = "watchroom"

// Claims are the registered JWT claims; Subject carries the room identity
// the lobby minted.
type Claims struct {
	jwt.RegisteredClaims
}

// Issuer mints and verifies identity tokens with a shared secret.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// Option adjusts an Issuer at construction time.
type Option func(*Issuer)

// WithTTL overrides the token lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(i *Issuer) { i.ttl = ttl }
}

// WithClock replaces the wall clock for expiry tests.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// NewIssuer creates an Issuer from the shared secret. Short secrets are
// rejected; HS256 with a guessable key is no signature at all.
func NewIssuer(secret string, opts ...Option) (*Issuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("cookie secret must be at least 32 bytes (got %d)", len(secret))
	}
	i := &Issuer{
		secret: []byte(secret),
		ttl:    DefaultTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// Issue mints a signed token for the given subject. The subject is the
// stable identity string the room keys its UserID map on.
func (i *Issuer) Issue(subject string) (string, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuerName,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign identity token: %w", err)
	}
	return signed, nil
}

// Verify checks the token's signature and validity window and returns its
// subject. Any alteration, wrong algorithm, or expiry fails verification.
func (i *Issuer) Verify(raw string) (string, error) {
	token, err := jwt.ParseWithClaims(raw, &Claims{},
		func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return i.secret, nil
		},
		jwt.WithIssuer(issuerName),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return "", errors.New("token is invalid")
	}

	claims, ok := token.Claims.(*Claims)
	if !ok {
		return "", errors.New("failed to cast claims")
	}
	if claims.Subject == "" {
		return "", errors.New("token carries no subject")
	}
	return claims.Subject, nil
}
