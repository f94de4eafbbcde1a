// Package privacy keeps patient and account identifiers out of the logs.
package privacy

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// tokenLength is the number of hex characters kept from the digest
const tokenLength = 16

// Pseudonymizer maps identifiers to stable opaque tokens. The same input and
// key always give the same token, so log lines for one patient still group.
type Pseudonymizer struct {
	enabled bool
	key     []byte
}

// NewPseudonymizer returns a pseudonymizer keyed with key. An empty key falls
// back to a plain SHA-256 digest. A disabled pseudonymizer returns its input.
func NewPseudonymizer(enabled bool, key string) *Pseudonymizer {
	return &Pseudonymizer{enabled: enabled, key: []byte(key)}
}

// Enabled reports whether identifiers are rewritten
func (p *Pseudonymizer) Enabled() bool { return p != nil && p.enabled }

// Token returns the pseudonym for id. Empty ids stay empty.
func (p *Pseudonymizer) Token(id string) string {
	if !p.Enabled() || id == "" {
		return id
	}

	var sum []byte
	if len(p.key) == 0 {
		digest := sha256.Sum256([]byte(id))
		sum = digest[:]
	} else {
		mac := hmac.New(sha256.New, p.key)
		mac.Write([]byte(id))
		sum = mac.Sum(nil)
	}
	return "anon-" + hex.EncodeToString(sum)[:tokenLength]
}
