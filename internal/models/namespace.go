package models

import (
	"crypto/sha256"
	"encoding/hex"
	"regexp"
)

// NamespacePrefix marks namespaces derived from a digest of the raw group id.
const NamespacePrefix = "grp_"

var namespacePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// NormalizeNamespace maps a client-supplied group id onto a graph namespace.
// Values made only of [A-Za-z0-9_-] are returned unchanged; anything else
// becomes "grp_" followed by the first 12 hex digits of its SHA-256 digest.
// The mapping is deterministic and idempotent since every output matches the
// pass-through pattern.
func NormalizeNamespace(raw string) string {
	if namespacePattern.MatchString(raw) {
		return raw
	}
	sum := sha256.Sum256([]byte(raw))
	return NamespacePrefix + hex.EncodeToString(sum[:])[:12]
}
