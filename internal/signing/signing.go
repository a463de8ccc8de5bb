// Package signing computes and checks HMAC-SHA256 signatures.
package signing

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Signer signs payloads with a fixed key.
type Signer struct {
	key []byte
}

// New returns a Signer keyed with secret. An empty secret is allowed here;
// callers substitute the configured fallback before construction.
func New(secret string) Signer {
	return Signer{key: []byte(secret)}
}

// Sign returns the lowercase hex HMAC-SHA256 of payload.
func (s Signer) Sign(payload []byte) string {
	return hex.EncodeToString(s.Sum(payload))
}

// Sum returns the raw HMAC-SHA256 of payload.
func (s Signer) Sum(payload []byte) []byte {
	mac := hmac.New(sha256.New, s.key)
	_, _ = mac.Write(payload)
	return mac.Sum(nil)
}

// Verify reports whether sigHex is the signature of payload. Only the exact
// form Sign produces is accepted: 64 lowercase hex characters. The decoded
// length is checked before the constant-time comparison.
func (s Signer) Verify(payload []byte, sigHex string) bool {
	if !isLowerHex(sigHex, 2*sha256.Size) {
		return false
	}
	got, err := hex.DecodeString(sigHex)
	if err != nil {
		return false
	}
	expected := s.Sum(payload)
	if len(got) != len(expected) {
		return false
	}
	return hmac.Equal(got, expected)
}

// SignatureHeader formats a body signature for the X-Signature header.
func (s Signer) SignatureHeader(body []byte) string {
	return "sha256=" + s.Sign(body)
}

func isLowerHex(s string, n int) bool {
	if len(s) != n {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}
