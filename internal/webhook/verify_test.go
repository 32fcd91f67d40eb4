package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"testing"
)

func TestVerifyChallenge(t *testing.T) {
	cases := []struct {
		name     string
		mode     string
		token    string
		expected string
		wantOK   bool
	}{
		{"match", "subscribe", "s3cret", "s3cret", true},
		{"wrong token", "subscribe", "guess", "s3cret", false},
		{"wrong mode", "unsubscribe", "s3cret", "s3cret", false},
		{"no expected token configured", "subscribe", "s3cret", "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			echo, ok := VerifyChallenge(tc.mode, tc.token, "abc123", tc.expected)
			if ok != tc.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tc.wantOK)
			}
			if ok && echo != "abc123" {
				t.Errorf("echo = %q, want challenge back verbatim", echo)
			}
		})
	}
}

func sign(body []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	body := []byte(`{"object":"page"}`)
	secret := "app-secret"

	if got := VerifySignature(body, sign(body, secret), secret); got != SignatureValid {
		t.Errorf("valid signature classified as %v", got)
	}
	if got := VerifySignature(body, sign(body, "other"), secret); got != SignatureInvalid {
		t.Errorf("wrong-secret signature classified as %v", got)
	}
	if got := VerifySignature([]byte("tampered"), sign(body, secret), secret); got != SignatureInvalid {
		t.Errorf("tampered body classified as %v", got)
	}
	if got := VerifySignature(body, "md5=abc", secret); got != SignatureInvalid {
		t.Errorf("unknown scheme classified as %v", got)
	}
	if got := VerifySignature(body, "", secret); got != SignatureMissing {
		t.Errorf("absent header classified as %v", got)
	}
	if got := VerifySignature(body, sign(body, secret), ""); got != SignatureMissing {
		t.Errorf("no configured secret classified as %v", got)
	}
}
