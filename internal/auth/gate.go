package auth

import (
	"crypto/subtle"
)

// Gate checks a submitted password against the single configured one.
// It issues no session or token; callers get a yes or no.
type Gate struct {
	password []byte
}

func NewGate(password string) *Gate {
	return &Gate{password: []byte(password)}
}

// Verify reports whether submitted equals the configured password byte for
// byte. No trimming or case folding is applied.
func (g *Gate) Verify(submitted string) bool {
	return subtle.ConstantTimeCompare(g.password, []byte(submitted)) == 1
}
