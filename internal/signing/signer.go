// Package signing produces and verifies HMAC-SHA256 signatures over the
// canonical form of signal requests.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"signal-relay/internal/common/errors"
)

// MinSecretLength is the minimum signing secret size in bytes (128 bits).
// Enforced at construction time, not per call.
const MinSecretLength = 16

// Signer computes request signatures for a single producer identity.
type Signer struct {
	secret []byte
}

// NewSigner creates a signer, rejecting secrets below the minimum length.
func NewSigner(secret []byte) (*Signer, error) {
	if len(secret) < MinSecretLength {
		return nil, errors.ConfigError(
			fmt.Sprintf("signing secret must be at least %d bytes", MinSecretLength))
	}
	s := &Signer{secret: make([]byte, len(secret))}
	copy(s.secret, secret)
	return s, nil
}

// Sign returns the base64-encoded HMAC-SHA256 of the canonical bytes.
// The output depends only on the secret and the input.
func (s *Signer) Sign(canonical []byte) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write(canonical)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}
