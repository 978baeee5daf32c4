// Package webhook authenticates and decodes inbound push notifications.
package webhook

import (
	"crypto/hmac"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"hash"
	"strings"

	"github.com/zulandar/roundhouse/internal/cierr"
)

// Verify checks a webhook request against the repository's configured
// secret. The supplied signature is either a GitHub-style HMAC header value
// ("sha1=..." or "sha256=..." over the raw body) or a raw shared secret
// (Gogs-style). An empty configured secret accepts only an empty supplied
// value. All comparisons are constant-time.
func Verify(body []byte, signature, secret string) error {
	if secret == "" {
		if signature == "" {
			return nil
		}
		return fmt.Errorf("webhook: signature supplied for repository without secret: %w", cierr.ErrAuth)
	}

	switch {
	case strings.HasPrefix(signature, "sha256="):
		return verifyHMAC(body, strings.TrimPrefix(signature, "sha256="), secret, sha256.New)
	case strings.HasPrefix(signature, "sha1="):
		return verifyHMAC(body, strings.TrimPrefix(signature, "sha1="), secret, sha1.New)
	default:
		if subtle.ConstantTimeCompare([]byte(signature), []byte(secret)) == 1 {
			return nil
		}
		return fmt.Errorf("webhook: shared secret mismatch: %w", cierr.ErrAuth)
	}
}

// verifyHMAC compares a hex HMAC digest of body against the supplied value.
func verifyHMAC(body []byte, supplied, secret string, algo func() hash.Hash) error {
	mac := hmac.New(algo, []byte(secret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	if hmac.Equal([]byte(expected), []byte(strings.ToLower(supplied))) {
		return nil
	}
	return fmt.Errorf("webhook: signature mismatch: %w", cierr.ErrAuth)
}
