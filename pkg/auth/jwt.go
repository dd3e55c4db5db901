// Package auth mints and validates the identity tokens that carry a user onto
// a live connection. Identity is out-of-band for the wire protocol: the token
// rides the upgrade request, never a frame.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

type Claims struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	AppAdmin bool   `json:"app_admin"`
	jwt.RegisteredClaims
}

type contextKey string

// UserKey is the request-context key under which validated Claims are stored.
const UserKey contextKey = "user"

type Tokens struct {
	secret []byte
	ttl    time.Duration
}

func New(secret string, ttl time.Duration) *Tokens {
	return &Tokens{secret: []byte(secret), ttl: ttl}
}

// Generate creates a signed token for a staff identity. AppAdmin is the global
// capability that lets a user manage rooms they are not an admin of.
func (t *Tokens) Generate(userID, name string, appAdmin bool) (string, error) {
	claims := &Claims{
		UserID:   userID,
		Name:     name,
		AppAdmin: appAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(t.secret)
}

// Validate parses a token and returns its claims.
func (t *Tokens) Validate(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return t.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// FromHeader strips an optional "Bearer " prefix.
func FromHeader(header string) string {
	if len(header) > 7 && header[:7] == "Bearer " {
		return header[7:]
	}
	return header
}
