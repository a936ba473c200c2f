// Package fingerprint identifies highlights by their content so re-importing
// the same clippings file never creates duplicates.
package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"strings"
)

// Normalize joins a highlight's book title and text after cleaning each part.
// It trims whitespace, lowercases, collapses runs of whitespace and
// normalizes line endings.
func Normalize(title, text string) string {
	normalizePart := func(part string) string {
		p := strings.ReplaceAll(part, "\r\n", "\n")
		p = strings.ToLower(p)
		return strings.Join(strings.Fields(p), " ")
	}

	// Joined with a newline so "ab"+"c" and "a"+"bc" differ.
	return normalizePart(title) + "\n" + normalizePart(text)
}

// Of returns the SHA-256 of the normalized title and text as a hex string.
func Of(title, text string) string {
	sum := sha256.Sum256([]byte(Normalize(title, text)))
	return fmt.Sprintf("%x", sum)
}
