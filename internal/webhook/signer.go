package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
)

// Sign computes the hex-encoded HMAC-SHA256 tag over the exact body bytes
// that will be transmitted. An empty secret means the subscriber opted out of
// signing and yields an empty signature; that is allowed, not an error.
//
// The signature must be computed over the same raw bytes that are sent.
// Re-serializing the payload between signing and sending breaks subscriber
// verification and is a caller bug.
func Sign(body []byte, secret string) string {
	if secret == "" {
		return ""
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received signature against the body and secret in
// constant time. Used by test receivers and onboarding tooling.
func VerifySignature(body []byte, secret, signature string) bool {
	want := Sign(body, secret)
	return hmac.Equal([]byte(want), []byte(signature))
}
