// Package auth issues and validates the short-lived signed tokens the
// server hands out: correlation tokens that bind a worker computation to
// the session that requested it, and the state parameter of the provider
// login redirect.
package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"musink/domain"
)

// CorrelationClaims is the data stored inside a correlation token.
// A worker echoes the token verbatim in its result frame; the server
// verifies the signature and routes the result to SessionCode.
type CorrelationClaims struct {
	SessionCode string `json:"session_code"`
	GroupID     int    `json:"group_id"`
	jwt.RegisteredClaims
}

// Correlator signs and verifies tokens with a single HMAC key.
type Correlator struct {
	key []byte
	ttl time.Duration
}

func NewCorrelator(key []byte, ttl time.Duration) *Correlator {
	return &Correlator{key: key, ttl: ttl}
}

// Issue creates a signed correlation token for a computation requested by
// the given session while it was in the given group.
func (c *Correlator) Issue(sessionCode string, groupID domain.GroupID) (string, error) {
	now := time.Now()
	claims := &CorrelationClaims{
		SessionCode: sessionCode,
		GroupID:     int(groupID),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    "musink",
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.key)
}

// Verify parses and validates the signature and expiration of a
// correlation token string.
func (c *Correlator) Verify(tokenString string) (*CorrelationClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &CorrelationClaims{}, func(token *jwt.Token) (interface{}, error) {
		return c.key, nil
	})
	if err != nil {
		return nil, err
	}
	if claims, ok := token.Claims.(*CorrelationClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, jwt.ErrSignatureInvalid
}

// State mints the signed state parameter embedded in the provider login
// redirect. It carries no identity, only an expiry and a unique id.
func (c *Correlator) State() (string, error) {
	now := time.Now()
	claims := jwt.RegisteredClaims{
		ID:        uuid.NewString(),
		ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		IssuedAt:  jwt.NewNumericDate(now),
		Issuer:    "musink",
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(c.key)
}

// VerifyState checks a state parameter returned by the provider redirect.
func (c *Correlator) VerifyState(state string) error {
	token, err := jwt.ParseWithClaims(state, &jwt.RegisteredClaims{}, func(token *jwt.Token) (interface{}, error) {
		return c.key, nil
	})
	if err != nil {
		return fmt.Errorf("invalid state parameter: %w", err)
	}
	if !token.Valid {
		return jwt.ErrSignatureInvalid
	}
	return nil
}
