// Package cookie implements the signed cookie value format
// base64(json) + "." + hex(hmac) and the unlocked-set payload carried in it.
package cookie

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"chaptergate/internal/signing"
)

const sep = "."

// Codec mints and verifies signed values.
type Codec struct {
	signer signing.Signer
}

func NewCodec(signer signing.Signer) Codec {
	return Codec{signer: signer}
}

// MakeSignedValue serializes payload and appends its signature.
// It fails only for values encoding/json cannot marshal.
func (c Codec) MakeSignedValue(payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal signed payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data) + sep + c.signer.Sign(data), nil
}

// VerifySignedValue returns the JSON payload of token when its signature
// checks out. Any malformed, undecodable or tampered token yields ok=false.
func (c Codec) VerifySignedValue(token string) (json.RawMessage, bool) {
	encoded, sig, found := strings.Cut(token, sep)
	if !found || encoded == "" || sig == "" {
		return nil, false
	}
	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, false
	}
	if !json.Valid(data) {
		return nil, false
	}
	if !c.signer.Verify(data, sig) {
		return nil, false
	}
	return json.RawMessage(data), true
}

// Decode verifies token and unmarshals its payload into dst.
func (c Codec) Decode(token string, dst any) bool {
	raw, ok := c.VerifySignedValue(token)
	if !ok {
		return false
	}
	return json.Unmarshal(raw, dst) == nil
}
