// Package domain contains core concepts of the coordination engine.
// No runtime, network, or UI logic should be added here.
package domain

import "time"

// TokenBundle is the provider credential set attached to a session.
// It is opaque to the coordination engine: only the adapters interpret it.
type TokenBundle struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// Expired reports whether the access token needs a refresh before use.
func (t TokenBundle) Expired() bool {
	return !t.ExpiresAt.IsZero() && time.Now().After(t.ExpiresAt)
}

// Session binds a client's opaque code to its connection and provider
// token for the lifetime of the connection. The code is caller-supplied
// and untrusted; the only validation applied is non-emptiness.
type Session struct {
	Code    string
	Token   TokenBundle
	GroupID GroupID
}
