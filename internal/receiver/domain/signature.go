package domain

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// SignatureHeader carries the HMAC-SHA256 of the raw request body, keyed by
// the store's webhook secret, as "sha256=<hex>".
const SignatureHeader = "Ledgerbridge-Sig"

// Sign computes the expected header value for a body and secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	_, _ = mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a received header value against the raw body using
// a constant-time comparison.
func VerifySignature(secret string, body []byte, header string) bool {
	header = strings.TrimSpace(header)
	if !strings.HasPrefix(header, "sha256=") {
		return false
	}
	expected := Sign(secret, body)
	return hmac.Equal([]byte(header), []byte(expected))
}
