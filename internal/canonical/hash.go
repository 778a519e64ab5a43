package canonical

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// Digest returns the lowercase hex-encoded SHA-256 digest of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// SnippetHash computes the content address of a citation snippet:
// SHA-256 over the normalized snippet text and its source identifier.
// Equal (text, sourceID) pairs always produce the same hash, across
// processes and restarts. Both fields are length-prefixed so distinct
// pairs cannot collide by shifting bytes across the separator.
func SnippetHash(text, sourceID string) string {
	norm := Normalize(text)
	preimage := fmt.Sprintf("%d:%s|%d:%s", len(norm), norm, len(sourceID), sourceID)
	return Digest([]byte(preimage))
}

// Normalize trims surrounding whitespace and collapses internal whitespace
// runs to a single space. Case and punctuation are preserved: quoted evidence
// must stay verbatim, only incidental formatting differences are erased.
func Normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	inSpace := false
	for _, r := range strings.TrimSpace(text) {
		if unicode.IsSpace(r) {
			inSpace = true
			continue
		}
		if inSpace {
			b.WriteByte(' ')
			inSpace = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
