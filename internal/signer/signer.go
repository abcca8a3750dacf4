// Package signer produces the signature carried in the Quill-Signature
// header: a wall-clock timestamp plus an HMAC-SHA256 of the exact request
// body bytes, keyed by the subscription's shared secret.
//
// Verification is a subscriber-side concern: recompute the HMAC over the
// exact bytes received and treat a stale timestamp as suspect. The test
// receiver under scripts/receiver shows one way to do it.
package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// Sign returns "t=<unix-seconds>,s=<hex hmac-sha256>" over body, or the
// empty string when the subscription has no secret configured.
func Sign(secret string, body []byte, now time.Time) string {
	if secret == "" {
		return ""
	}
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(body)
	return fmt.Sprintf("t=%d,s=%s", now.Unix(), hex.EncodeToString(h.Sum(nil)))
}
