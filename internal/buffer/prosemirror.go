package buffer

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"unicode/utf16"

	"synkris/api/internal/textrange"
)

// Node is a ProseMirror JSON node as the editor stores it.
type Node struct {
	Type    string         `json:"type"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Content []Node         `json:"content,omitempty"`
	Text    string         `json:"text,omitempty"`
	Marks   []Mark         `json:"marks,omitempty"`
}

// Mark is inline formatting on a text node.
type Mark struct {
	Type  string         `json:"type"`
	Attrs map[string]any `json:"attrs,omitempty"`
}

// Text is a positioned, readable view of stored content.
type Text interface {
	textrange.TextReader
	Paragraphs() []textrange.Range
	String() string
}

// DecodeProseMirror parses raw JSON and requires a "doc" root.
func DecodeProseMirror(raw []byte) (Node, error) {
	var root Node
	if err := json.Unmarshal(raw, &root); err != nil {
		return Node{}, fmt.Errorf("decode prosemirror doc: %w", err)
	}
	if root.Type != "doc" {
		return Node{}, fmt.Errorf("decode prosemirror doc: root node is %q", root.Type)
	}
	return root, nil
}

// FromContent reads ProseMirror JSON as a Document in editor coordinates and
// anything else as a plain-text Buffer.
func FromContent(content string) Text {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "{") {
		if d, err := FromProseMirror([]byte(trimmed)); err == nil {
			return d
		}
	}
	return New(content)
}

// noText marks a position that carries no character: a surrogate's second
// unit or an inline leaf such as an image.
const noText rune = -1

var (
	textblockTypes = map[string]bool{"paragraph": true, "heading": true, "codeBlock": true}
	leafTypes      = map[string]bool{"hardBreak": true, "image": true, "horizontalRule": true}
)

// Document is a read-only view of a ProseMirror document addressed the way
// the editor addresses it: the doc content starts at 0, every non-leaf node
// adds one position for its opening and one for its closing token, leaves
// take one position and text takes its UTF-16 length. Paragraph ranges are
// the content of each textblock, so the first paragraph starts at 1.
type Document struct {
	size   int
	blocks []textblock
}

type textblock struct {
	from  int
	cells []rune // one entry per position inside the block
}

func (b textblock) span() textrange.Range {
	return textrange.Range{From: b.from, To: b.from + len(b.cells)}
}

func FromProseMirror(raw []byte) (*Document, error) {
	root, err := DecodeProseMirror(raw)
	if err != nil {
		return nil, err
	}
	d := &Document{}
	d.size = d.layout(root.Content, 0)
	return d, nil
}

// layout places content starting at pos and returns the position after it.
func (d *Document) layout(content []Node, pos int) int {
	for _, n := range content {
		pos += d.place(n, pos)
	}
	return pos
}

// place records textblocks inside n, which starts at pos, and returns its size.
func (d *Document) place(n Node, pos int) int {
	switch {
	case n.Type == "text":
		return utf16Len(n.Text)
	case leafTypes[n.Type]:
		return 1
	case isTextblock(n):
		block := textblock{from: pos + 1}
		appendCells(&block.cells, n.Content)
		d.blocks = append(d.blocks, block)
		return len(block.cells) + 2
	default:
		return d.layout(n.Content, pos+1) - pos + 1
	}
}

func isTextblock(n Node) bool {
	if textblockTypes[n.Type] {
		return true
	}
	for _, child := range n.Content {
		if child.Type == "text" || child.Type == "hardBreak" {
			return true
		}
	}
	return false
}

func appendCells(cells *[]rune, inline []Node) {
	for _, n := range inline {
		switch {
		case n.Type == "text":
			for _, r := range n.Text {
				*cells = append(*cells, r)
				if len(utf16.Encode([]rune{r})) == 2 {
					*cells = append(*cells, noText)
				}
			}
		case n.Type == "hardBreak":
			*cells = append(*cells, '\n')
		case leafTypes[n.Type] || len(n.Content) == 0:
			*cells = append(*cells, noText)
		default:
			*cells = append(*cells, noText)
			appendCells(cells, n.Content)
			*cells = append(*cells, noText)
		}
	}
}

func utf16Len(s string) int {
	n := 0
	for _, r := range s {
		if len(utf16.Encode([]rune{r})) == 2 {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// Len is the size of the doc content.
func (d *Document) Len() int { return d.size }

func (d *Document) Paragraphs() []textrange.Range {
	out := make([]textrange.Range, len(d.blocks))
	for i, b := range d.blocks {
		out[i] = b.span()
	}
	return out
}

// ParagraphAt returns the textblock whose content includes pos. A position on
// the structure between blocks belongs to the next block; past the last block
// it belongs to the last one. A document without textblocks yields [0,0).
func (d *Document) ParagraphAt(pos int) textrange.Range {
	if len(d.blocks) == 0 {
		return textrange.Range{}
	}
	i := sort.Search(len(d.blocks), func(i int) bool { return d.blocks[i].span().To >= pos })
	if i == len(d.blocks) {
		i--
	}
	return d.blocks[i].span()
}

// TextBetween returns the characters inside r, one line per textblock.
func (d *Document) TextBetween(r textrange.Range) string {
	var out strings.Builder
	wrote := false
	for _, b := range d.blocks {
		span := b.span()
		from, to := max(r.From, span.From), min(r.To, span.To)
		if from >= to {
			continue
		}
		if wrote {
			out.WriteByte('\n')
		}
		for _, c := range b.cells[from-b.from : to-b.from] {
			if c != noText {
				out.WriteRune(c)
			}
		}
		wrote = true
	}
	return out.String()
}

// String is the text of every textblock, one per line.
func (d *Document) String() string {
	lines := make([]string, len(d.blocks))
	for i, b := range d.blocks {
		lines[i] = d.TextBetween(b.span())
	}
	return strings.Join(lines, "\n")
}
