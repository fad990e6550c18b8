package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

var (
	ErrMissingSignature = errors.New("webhook: missing signature")
	ErrInvalidSignature = errors.New("webhook: invalid signature")
)

// VerifySignature checks the provider's HMAC-SHA256 signature over the exact
// raw request bytes. Any re-serialization of the body before this check
// silently breaks verification, so callers must pass the bytes as read off
// the wire.
//
// The header value is lowercase hex, optionally prefixed "sha256=".
// Comparison is constant-time.
func VerifySignature(secret, signature string, body []byte) error {
	if signature == "" {
		return ErrMissingSignature
	}
	signature = strings.TrimPrefix(signature, "sha256=")

	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))

	if !hmac.Equal([]byte(expected), []byte(strings.ToLower(signature))) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign produces the signature value for body; used by tests and local tools.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
