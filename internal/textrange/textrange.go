// Package textrange holds the half-open range arithmetic shared by locks,
// versions and the edit guard. All ranges are [From, To): To is exclusive.
package textrange

import (
	"fmt"
	"strings"
)

type Range struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// FromPosition converts a stored (position, length) key into a range.
func FromPosition(position, length int) Range {
	return Range{From: position, To: position + length}
}

// Normalize orders the endpoints so From <= To.
func Normalize(from, to int) Range {
	if from > to {
		from, to = to, from
	}
	return Range{From: from, To: to}
}

func (r Range) Position() int { return r.From }
func (r Range) Length() int   { return r.To - r.From }
func (r Range) Empty() bool   { return r.From == r.To }

func (r Range) String() string {
	return fmt.Sprintf("[%d,%d)", r.From, r.To)
}

// Contains reports whether o lies fully inside r.
func (r Range) Contains(o Range) bool {
	return o.From >= r.From && o.To <= r.To
}

// Overlaps is the only intersection test in the system. Touching ranges do
// not overlap; an empty range acts as a point and overlaps a range that
// strictly surrounds it.
func Overlaps(a, b Range) bool {
	return !(a.To <= b.From || a.From >= b.To)
}

// ParagraphLocator is the structural model of the live buffer.
type ParagraphLocator interface {
	// ParagraphAt returns the bounds of the paragraph enclosing pos.
	ParagraphAt(pos int) Range
}

type TextReader interface {
	ParagraphLocator
	TextBetween(r Range) string
	Len() int
}

// Canonical maps a buffer selection to the range used as a lock or version
// key. A caret expands to its paragraph; a selection is used as-is.
func Canonical(from, to int, paragraphs ParagraphLocator) Range {
	if from == to {
		return paragraphs.ParagraphAt(from)
	}
	return Normalize(from, to)
}

// Relocate decides where a stored snapshot applies in the current buffer.
// When the text at the stored coordinates still matches the snapshot the
// stored range is returned with trusted=true; otherwise the paragraph around
// caret is used. This is a heuristic: concurrent edits that leave identical
// text at the old coordinates will still be trusted.
func Relocate(buf TextReader, stored Range, snapshot string, caret int) (target Range, trusted bool) {
	if stored.From >= 0 && stored.To <= buf.Len() && stored.From <= stored.To {
		current := buf.TextBetween(stored)
		if strings.TrimSpace(current) == strings.TrimSpace(snapshot) {
			return stored, true
		}
	}
	return buf.ParagraphAt(caret), false
}
