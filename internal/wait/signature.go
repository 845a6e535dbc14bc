package wait

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const signaturePrefix = "sha256="

// Sign computes the hex HMAC-SHA256 signature of payload, prefixed with the
// scheme tag carried in the signature header.
func Sign(payload, secret []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return signaturePrefix + hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks the signature header against the raw payload.
// The comparison is constant-time; a tampered payload or truncated signature
// never short-circuits early.
func VerifySignature(payload []byte, signatureHeader string, secret []byte) bool {
	if len(secret) == 0 || signatureHeader == "" {
		return false
	}

	provided := strings.TrimPrefix(signatureHeader, signaturePrefix)
	providedBytes, err := hex.DecodeString(provided)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return hmac.Equal(providedBytes, mac.Sum(nil))
}
