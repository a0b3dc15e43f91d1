// Package auth validates the bearer tokens the relay admits sockets
// with (spec.md §3 "Token": opaque bearer string, 8-128 chars; strong
// mode additionally requires a restricted character set).
package auth

import (
	"encoding/hex"
	"regexp"

	"golang.org/x/crypto/blake2b"
)

var strongTokenPattern = regexp.MustCompile(`^[A-Za-z0-9._~-]{16,128}$`)

// Validate checks a token's length and, if enforceStrong is set, its
// character-class pattern. allowlist, when non-empty, additionally
// requires exact membership.
func Validate(token string, minLen, maxLen int, enforceStrong bool, allowlist []string) bool {
	if len(token) < minLen || len(token) > maxLen {
		return false
	}
	if enforceStrong && !strongTokenPattern.MatchString(token) {
		return false
	}
	if len(allowlist) > 0 && !contains(allowlist, token) {
		return false
	}
	return true
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

// Fingerprint returns a short, irreversible correlation id for a token
// suitable for log lines — tokens are bearer credentials and must never
// appear verbatim in logs.
func Fingerprint(token string) string {
	sum := blake2b.Sum256([]byte(token))
	return hex.EncodeToString(sum[:6])
}
