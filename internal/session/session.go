// Package session provides alerts.SessionStore implementations.
package session

import (
	"io"

	"alertsync/internal/alerts"
)

// Sealer protects session data at rest.
type Sealer interface {
	// Seal reads plaintext from r and writes sealed data to w.
	Seal(r io.Reader, w io.Writer) error
	// Open reads sealed data from r and writes plaintext to w.
	Open(r io.Reader, w io.Writer) error
}

// clone returns a deep copy so callers never share state with the store.
func clone(s *alerts.Session) *alerts.Session {
	if s == nil {
		return nil
	}
	c := *s
	if s.ExpiresAt != nil {
		t := *s.ExpiresAt
		c.ExpiresAt = &t
	}
	return &c
}
