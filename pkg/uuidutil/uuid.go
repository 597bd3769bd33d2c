// Package uuidutil generates identifiers for checkpoints, approval requests
// and lock holders.
package uuidutil

import "github.com/google/uuid"

// NewV4 generates a random UUID v4 string.
// Panics if the system random source fails (no recovery is possible, so we
// panic rather than return an error that would need handling everywhere).
func NewV4() string {
	u, err := uuid.NewRandom()
	if err != nil {
		panic("uuidutil: random source failed: " + err.Error())
	}
	return u.String()
}
