package channel

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"

	"salesbot_backend/platform/apperr"
)

// VerifyHMACSHA256 checks a "sha256=<hex>" signature over body.
func VerifyHMACSHA256(secret, signatureHeader string, body []byte) error {
	if secret == "" {
		return apperr.Unauthorized("signature secret is not configured")
	}
	sig := strings.TrimSpace(signatureHeader)
	if sig == "" {
		return apperr.Unauthorized("missing signature")
	}
	sig = strings.TrimPrefix(sig, "sha256=")
	provided, err := hex.DecodeString(sig)
	if err != nil {
		return apperr.Unauthorized("malformed signature")
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	if !hmac.Equal(provided, mac.Sum(nil)) {
		return apperr.Unauthorized("signature mismatch")
	}
	return nil
}

// SignHMACSHA256 returns the "sha256=<hex>" signature Meta would send.
func SignHMACSHA256(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// VerifySecretToken compares a shared-secret header in constant time.
func VerifySecretToken(expected, provided string) error {
	if expected == "" {
		return apperr.Unauthorized("secret token is not configured")
	}
	if provided == "" {
		return apperr.Unauthorized("missing secret token")
	}
	if subtle.ConstantTimeCompare([]byte(expected), []byte(provided)) != 1 {
		return apperr.Unauthorized("secret token mismatch")
	}
	return nil
}
