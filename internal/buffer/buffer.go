// Package buffer holds the paragraph-structured text models the lock and
// version layers reason about. Editor content is read as a Document in
// ProseMirror positions. Plain text is a Buffer whose positions are rune
// offsets and whose paragraphs are separated by a single '\n' that belongs to
// no paragraph.
package buffer

import (
	"fmt"
	"strings"

	"synkris/api/internal/textrange"
)

type Buffer struct {
	text       []rune
	paragraphs []textrange.Range
}

func New(text string) *Buffer {
	b := &Buffer{text: []rune(text)}
	b.reindex()
	return b
}

func FromParagraphs(paragraphs ...string) *Buffer {
	return New(strings.Join(paragraphs, "\n"))
}

func (b *Buffer) Len() int { return len(b.text) }

func (b *Buffer) String() string { return string(b.text) }

func (b *Buffer) Paragraphs() []textrange.Range {
	out := make([]textrange.Range, len(b.paragraphs))
	copy(out, b.paragraphs)
	return out
}

// ParagraphAt returns the paragraph whose bounds include pos. A position on a
// separator belongs to the paragraph it terminates. Out-of-range positions are
// clamped to the buffer.
func (b *Buffer) ParagraphAt(pos int) textrange.Range {
	if pos < 0 {
		pos = 0
	}
	if pos > len(b.text) {
		pos = len(b.text)
	}
	lo, hi := 0, len(b.paragraphs)-1
	for lo < hi {
		mid := (lo + hi) / 2
		if b.paragraphs[mid].To < pos {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return b.paragraphs[lo]
}

// TextBetween returns the text of r clamped to the buffer.
func (b *Buffer) TextBetween(r textrange.Range) string {
	from, to := b.clamp(r.From), b.clamp(r.To)
	if from >= to {
		return ""
	}
	return string(b.text[from:to])
}

// Replace swaps the runes in r for text.
func (b *Buffer) Replace(r textrange.Range, text string) error {
	if r.From < 0 || r.To > len(b.text) || r.From > r.To {
		return fmt.Errorf("replace %s: out of bounds for length %d", r, len(b.text))
	}
	insert := []rune(text)
	next := make([]rune, 0, len(b.text)-r.Length()+len(insert))
	next = append(next, b.text[:r.From]...)
	next = append(next, insert...)
	next = append(next, b.text[r.To:]...)
	b.text = next
	b.reindex()
	return nil
}

func (b *Buffer) Clone() *Buffer {
	text := make([]rune, len(b.text))
	copy(text, b.text)
	return &Buffer{text: text, paragraphs: b.Paragraphs()}
}

func (b *Buffer) clamp(pos int) int {
	if pos < 0 {
		return 0
	}
	if pos > len(b.text) {
		return len(b.text)
	}
	return pos
}

func (b *Buffer) reindex() {
	b.paragraphs = b.paragraphs[:0]
	start := 0
	for i, r := range b.text {
		if r == '\n' {
			b.paragraphs = append(b.paragraphs, textrange.Range{From: start, To: i})
			start = i + 1
		}
	}
	b.paragraphs = append(b.paragraphs, textrange.Range{From: start, To: len(b.text)})
}
