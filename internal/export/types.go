// Package export renders a document's content as HTML, PDF or DOCX.
package export

import (
	"errors"
	"time"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
	FormatDOCX Format = "docx"
)

// ParseFormat accepts the formats the export endpoint understands. An empty
// value means PDF.
func ParseFormat(value string) (Format, bool) {
	switch Format(value) {
	case "", FormatPDF:
		return FormatPDF, true
	case FormatHTML, FormatDOCX:
		return Format(value), true
	default:
		return "", false
	}
}

// Document is what gets exported. Content is the stored editor content:
// ProseMirror JSON, or plain text for documents created without an editor.
type Document struct {
	ID        string
	Title     string
	Content   string
	OwnerName string
	UpdatedAt time.Time
	Messages  []Message
}

// Message is a chat entry appended to the export when requested.
type Message struct {
	Author    string
	Body      string
	CreatedAt time.Time
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
	ErrUnsupportedFormat     = errors.New("unsupported export format")
)
