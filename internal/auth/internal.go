package auth

import (
	"crypto/subtle"
	"errors"
)

// ErrInternalOnly is returned when a caller without the internal secret
// reaches an internal-only operation.
var ErrInternalOnly = errors.New("internal callers only")

// InternalTokenHeader carries the shared internal secret on internal-only
// endpoints. These endpoints move money without payer-side authorization
// and must never be publicly reachable.
const InternalTokenHeader = "X-Internal-Token"

// InternalVerifier checks the shared internal secret in constant time.
type InternalVerifier struct {
	secret []byte
}

// NewInternalVerifier creates a verifier for the given secret.
func NewInternalVerifier(secret string) *InternalVerifier {
	return &InternalVerifier{secret: []byte(secret)}
}

// Verify reports whether the presented token matches the secret. An empty
// configured secret matches nothing.
func (v *InternalVerifier) Verify(token string) bool {
	if len(v.secret) == 0 || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare(v.secret, []byte(token)) == 1
}
