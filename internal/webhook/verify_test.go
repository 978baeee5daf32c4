package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"testing"

	"github.com/zulandar/roundhouse/internal/cierr"
)

func sign(algo string, body []byte, secret string) string {
	switch algo {
	case "sha1":
		mac := hmac.New(sha1.New, []byte(secret))
		mac.Write(body)
		return "sha1=" + hex.EncodeToString(mac.Sum(nil))
	case "sha256":
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write(body)
		return "sha256=" + hex.EncodeToString(mac.Sum(nil))
	}
	return ""
}

func TestVerify_SharedSecret(t *testing.T) {
	if err := Verify([]byte(`{}`), "123", "123"); err != nil {
		t.Errorf("matching shared secret rejected: %v", err)
	}
	if err := Verify([]byte(`{}`), "321", "123"); !errors.Is(err, cierr.ErrAuth) {
		t.Errorf("mismatched shared secret = %v, want ErrAuth", err)
	}
}

func TestVerify_SHA1Header(t *testing.T) {
	body := []byte(`{}`)

	good := sign("sha1", body, "123")
	if err := Verify(body, good, "123"); err != nil {
		t.Errorf("valid sha1 signature rejected: %v", err)
	}

	if err := Verify(body, "sha1=abcdefgh", "123"); !errors.Is(err, cierr.ErrAuth) {
		t.Errorf("bogus sha1 signature = %v, want ErrAuth", err)
	}

	// Signature computed with the wrong secret.
	wrong := sign("sha1", body, "456")
	if err := Verify(body, wrong, "123"); !errors.Is(err, cierr.ErrAuth) {
		t.Errorf("wrong-secret sha1 signature = %v, want ErrAuth", err)
	}
}

func TestVerify_SHA256Header(t *testing.T) {
	body := []byte(`{"ref":"refs/heads/main"}`)

	good := sign("sha256", body, "topsecret")
	if err := Verify(body, good, "topsecret"); err != nil {
		t.Errorf("valid sha256 signature rejected: %v", err)
	}

	tampered := append([]byte{}, body...)
	tampered[0] = ' '
	if err := Verify(tampered, good, "topsecret"); !errors.Is(err, cierr.ErrAuth) {
		t.Errorf("signature over tampered body = %v, want ErrAuth", err)
	}
}

func TestVerify_UppercaseDigestAccepted(t *testing.T) {
	body := []byte(`{}`)
	mac := hmac.New(sha1.New, []byte("123"))
	mac.Write(body)
	upper := "sha1=" + hex.EncodeToString(mac.Sum(nil))
	upper = upper[:5] + toUpper(upper[5:])
	if err := Verify(body, upper, "123"); err != nil {
		t.Errorf("uppercase hex digest rejected: %v", err)
	}
}

func toUpper(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'a' && c <= 'f' {
			b[i] = c - 32
		}
	}
	return string(b)
}

func TestVerify_EmptySecret(t *testing.T) {
	if err := Verify([]byte(`{}`), "", ""); err != nil {
		t.Errorf("empty secret with empty signature rejected: %v", err)
	}
	if err := Verify([]byte(`{}`), "anything", ""); !errors.Is(err, cierr.ErrAuth) {
		t.Errorf("empty secret with supplied signature = %v, want ErrAuth", err)
	}
}

func TestVerify_MissingSignatureWithSecret(t *testing.T) {
	if err := Verify([]byte(`{}`), "", "123"); !errors.Is(err, cierr.ErrAuth) {
		t.Errorf("missing signature with configured secret = %v, want ErrAuth", err)
	}
}

func TestParsePush(t *testing.T) {
	push, err := ParsePush([]byte(`{"ref":"refs/heads/main","after":"abc123"}`))
	if err != nil {
		t.Fatalf("ParsePush: %v", err)
	}
	if push.Ref != "refs/heads/main" {
		t.Errorf("Ref = %q, want refs/heads/main", push.Ref)
	}
	if push.Commit != "abc123" {
		t.Errorf("Commit = %q, want abc123", push.Commit)
	}
}

func TestParsePush_Invalid(t *testing.T) {
	if _, err := ParsePush([]byte(`not json`)); !errors.Is(err, cierr.ErrValidation) {
		t.Errorf("bad JSON = %v, want ErrValidation", err)
	}
	if _, err := ParsePush([]byte(`{"zen":"ok"}`)); !errors.Is(err, cierr.ErrValidation) {
		t.Errorf("payload without ref = %v, want ErrValidation", err)
	}
}
