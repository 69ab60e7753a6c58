package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"strings"
)

// errVerification is deliberately generic. Callers respond 403 with no
// detail, so a probing client learns nothing about which check failed.
var errVerification = errors.New("webhook verification failed")

// verifySignature checks a GitHub-style "sha256=<hex>" HMAC-SHA256 header
// against the raw request body, in constant time.
func verifySignature(body []byte, header, secret string) error {
	if secret == "" || header == "" {
		return errVerification
	}

	hexSig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return errVerification
	}
	got, err := hex.DecodeString(hexSig)
	if err != nil {
		return errVerification
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	want := mac.Sum(nil)

	if subtle.ConstantTimeCompare(want, got) != 1 {
		return errVerification
	}
	return nil
}

// verifyToken compares a shared-token header in constant time.
func verifyToken(header, token string) error {
	if token == "" || header == "" {
		return errVerification
	}
	if subtle.ConstantTimeCompare([]byte(header), []byte(token)) != 1 {
		return errVerification
	}
	return nil
}

// signBody computes the "sha256=<hex>" signature for body, the counterpart
// of verifySignature for producing valid requests.
func signBody(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
