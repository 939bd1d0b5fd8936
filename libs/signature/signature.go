// Package signature implements the HMAC-SHA256 request-signing primitive
// shared by the API-key verification path and by clients signing outbound
// requests. The digest covers the exact concatenation of method, path, nonce
// and body; there is no canonicalization beyond JSON serialization of
// non-textual bodies, so both sides must serialize identically.
package signature

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Sign computes the hex HMAC-SHA256 digest over method+path+nonce+body.
// String and []byte bodies are used verbatim; anything else is serialized
// as canonical JSON. A nil body contributes nothing to the digest.
func Sign(secret, method, path, nonce string, body any) (string, error) {
	payload, err := serializeBody(body)
	if err != nil {
		return "", err
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(method))
	mac.Write([]byte(path))
	mac.Write([]byte(nonce))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// Verify recomputes the digest and compares it against the presented
// signature in constant time.
func Verify(secret, sig, method, path, nonce string, body any) (bool, error) {
	expected, err := Sign(secret, method, path, nonce, body)
	if err != nil {
		return false, err
	}
	return hmac.Equal([]byte(expected), []byte(sig)), nil
}

func serializeBody(body any) ([]byte, error) {
	switch b := body.(type) {
	case nil:
		return nil, nil
	case string:
		return []byte(b), nil
	case []byte:
		return b, nil
	default:
		payload, err := json.Marshal(b)
		if err != nil {
			return nil, fmt.Errorf("serialize body: %w", err)
		}
		return payload, nil
	}
}
