package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashAPIKey hashes the raw API key for identity matching against vendors
// that report keys by hash (OpenRouter).
func HashAPIKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// MaskKey returns the display prefix and suffix for a raw key.
func MaskKey(raw string) (prefix, suffix string) {
	raw = strings.TrimSpace(raw)
	if len(raw) <= 8 {
		return raw, ""
	}
	return raw[:8], raw[len(raw)-4:]
}
