package util

import (
	"regexp"
	"testing"
)

func TestNewIDFormat(t *testing.T) {
	if got := NewID("doc"); !regexp.MustCompile(`^doc_[0-9a-f]{32}$`).MatchString(got) {
		t.Fatalf("NewID(doc) = %q", got)
	}
	if got := NewID(""); !regexp.MustCompile(`^[0-9a-f]{32}$`).MatchString(got) {
		t.Fatalf("NewID(\"\") = %q", got)
	}
}

func TestNewIDIsUniqueAndOrdered(t *testing.T) {
	prev := NewID("ver")
	seen := map[string]bool{prev: true}
	for i := 0; i < 1000; i++ {
		id := NewID("ver")
		if seen[id] {
			t.Fatalf("NewID repeated %q", id)
		}
		if id <= prev {
			t.Fatalf("NewID went backwards: %q after %q", id, prev)
		}
		seen[id] = true
		prev = id
	}
}
