package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
)

const subscribeMode = "subscribe"

// VerifyChallenge validates the GET verification handshake. It succeeds iff
// mode is the subscribe verb and the token matches the pre-shared secret;
// on success the platform-supplied challenge is echoed back verbatim.
func VerifyChallenge(mode, token, challenge, expectedToken string) (string, bool) {
	if mode != subscribeMode || expectedToken == "" {
		return "", false
	}
	if subtle.ConstantTimeCompare([]byte(token), []byte(expectedToken)) != 1 {
		return "", false
	}
	return challenge, true
}

// SignatureResult classifies a POST body signature check.
type SignatureResult int

const (
	// SignatureValid: header present and HMAC matches.
	SignatureValid SignatureResult = iota
	// SignatureMissing: no header (or no secret configured). Platforms
	// vary in whether they sign feed vs. messaging deliveries, so this is
	// degraded trust, not a rejection.
	SignatureMissing
	// SignatureInvalid: header present but the HMAC does not match.
	SignatureInvalid
)

// VerifySignature checks the X-Hub-Signature-256 header against an
// HMAC-SHA256 of the raw body.
func VerifySignature(body []byte, header, secret string) SignatureResult {
	if secret == "" || header == "" {
		return SignatureMissing
	}
	provided, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return SignatureInvalid
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if !hmac.Equal([]byte(provided), []byte(expected)) {
		return SignatureInvalid
	}
	return SignatureValid
}
