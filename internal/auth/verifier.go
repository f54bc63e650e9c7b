// Package auth validates the bearer credential presented at connection time.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var ErrUnauthenticated = errors.New("unauthenticated")

// Identity is the result of a successful credential check. The display name
// is resolved separately from the user record, as the token only carries ids.
type Identity struct {
	UserID    string
	ExpiresAt time.Time
}

type Verifier struct {
	secret []byte
}

func NewVerifier(jwtSecret string) *Verifier {
	return &Verifier{secret: []byte(jwtSecret)}
}

// Verify parses and validates an HMAC-signed token and returns the bound
// identity. Missing, malformed, badly signed and already-expired tokens all
// fail with ErrUnauthenticated.
func (v *Verifier) Verify(tokenString string) (Identity, error) {
	if tokenString == "" {
		return Identity{}, fmt.Errorf("%w: missing token", ErrUnauthenticated)
	}

	token, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return v.secret, nil
	})
	if err != nil || !token.Valid {
		return Identity{}, fmt.Errorf("%w: %v", ErrUnauthenticated, err)
	}

	claims, ok := token.Claims.(*jwt.RegisteredClaims)
	if !ok || claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: token missing 'sub' claim", ErrUnauthenticated)
	}
	if claims.ExpiresAt == nil {
		return Identity{}, fmt.Errorf("%w: token missing 'exp' claim", ErrUnauthenticated)
	}

	return Identity{
		UserID:    claims.Subject,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}
