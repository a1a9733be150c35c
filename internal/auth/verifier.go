package auth

import (
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost is the bcrypt cost factor used for hashing admin secrets
const DefaultCost = bcrypt.DefaultCost

// Verifier checks the admin credential presented on privileged requests.
// It holds either a plaintext secret or a bcrypt hash of it; the hash wins
// when both are configured.
type Verifier struct {
	secret []byte
	hash   []byte
}

func NewVerifier(secret, hash string) *Verifier {
	v := &Verifier{}
	if secret != "" {
		v.secret = []byte(secret)
	}
	if hash != "" {
		v.hash = []byte(hash)
	}
	return v
}

// Configured reports whether any admin credential is set.
func (v *Verifier) Configured() bool {
	return v != nil && (len(v.secret) > 0 || len(v.hash) > 0)
}

func (v *Verifier) Verify(provided string) bool {
	if !v.Configured() || provided == "" {
		return false
	}
	if len(v.hash) > 0 {
		return bcrypt.CompareHashAndPassword(v.hash, []byte(provided)) == nil
	}
	return subtle.ConstantTimeCompare([]byte(provided), v.secret) == 1
}

// HashSecret generates a bcrypt hash suitable for http.admin_api_key_hash
func HashSecret(secret string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}
