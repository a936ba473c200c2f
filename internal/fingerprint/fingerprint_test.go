package fingerprint

import (
	"crypto/sha256"
	"fmt"
	"testing"
)

func TestNormalize(t *testing.T) {
	expected := "walden\nsimplify, simplify."
	normalized := Normalize("  Walden \r\n", "Simplify,\r\n   SIMPLIFY.  ")

	if normalized != expected {
		t.Errorf("Expected normalized string to be '%s', but got '%s'", expected, normalized)
	}
}

func TestOf(t *testing.T) {
	t.Run("hashes the normalized form", func(t *testing.T) {
		expected := fmt.Sprintf("%x", sha256.Sum256([]byte("t\nx")))
		if got := Of("T", " x "); got != expected {
			t.Errorf("Expected hash '%s', but got '%s'", expected, got)
		}
	})

	t.Run("is deterministic", func(t *testing.T) {
		if Of("Book", "Text") != Of("Book", "Text") {
			t.Error("Expected identical highlights to hash the same")
		}
	})

	t.Run("ignores case and spacing", func(t *testing.T) {
		if Of("Walden", "Simplify, simplify.") != Of(" walden", "simplify,  Simplify.\n") {
			t.Error("Expected hashes to be the same after normalization, but they were different.")
		}
	})

	t.Run("same text in different books differs", func(t *testing.T) {
		if Of("Book A", "Text") == Of("Book B", "Text") {
			t.Error("Expected different books to produce different hashes")
		}
	})

	t.Run("field boundary matters", func(t *testing.T) {
		if Of("ab", "c") == Of("a", "bc") {
			t.Error("Expected field boundary to affect the hash")
		}
	})
}
