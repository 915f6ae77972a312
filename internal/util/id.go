package util

import (
	"crypto/rand"
	"encoding/hex"
)

// NewID returns a 24-character hex ID, used for job ids, queue consumer
// names and generated request ids.
func NewID() string {
	b := make([]byte, 12)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
