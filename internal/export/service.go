package export

import (
	"context"
	"fmt"
	"html"
	"html/template"
	"strings"
	"unicode"
	"unicode/utf8"

	"synkris/api/internal/buffer"
)

// Service provides document export functionality
type Service struct {
	chromePath string
}

// NewService creates an export service. chromePath may be empty, in which
// case chromium is looked up on PATH.
func NewService(chromePath string) *Service {
	return &Service{chromePath: chromePath}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, doc Document, format Format) (*Result, error) {
	data := TemplateData{
		Title:       firstNonBlank(doc.Title, "Untitled Document"),
		ContentHTML: template.HTML(ContentToHTML(doc.Content)),
		Author:      doc.OwnerName,
		UpdatedAt:   doc.UpdatedAt,
	}
	for _, m := range doc.Messages {
		data.Messages = append(data.Messages, TemplateMessage{Author: m.Author, Body: m.Body, CreatedAt: m.CreatedAt})
	}

	page, err := RenderDocumentHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch format {
	case FormatHTML:
		return &Result{
			Data:     []byte(page),
			Filename: sanitizeFilename(data.Title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}, nil
	case FormatPDF:
		return exportPDF(ctx, page, data.Title, s.chromePath)
	case FormatDOCX:
		return exportDOCX(ctx, page, data.Title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, format)
	}
}

// ContentToHTML renders stored content. Anything that is not a ProseMirror
// document is treated as plain text, one paragraph per line.
func ContentToHTML(content string) string {
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "{") {
		if root, err := buffer.DecodeProseMirror([]byte(trimmed)); err == nil {
			return RenderProseMirror(root)
		}
	}

	var b strings.Builder
	for _, line := range strings.Split(content, "\n") {
		fmt.Fprintf(&b, "<p>%s</p>\n", html.EscapeString(line))
	}
	return b.String()
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// sanitizeFilename keeps ASCII letters, digits, '-' and '_', turns spaces into
// '-' and caps the name at 50 bytes.
func sanitizeFilename(title string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r == ' ':
			return '-'
		case r < utf8.RuneSelf && (unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_'):
			return r
		}
		return -1
	}, title)
	name = name[:min(len(name), 50)]
	if name == "" {
		return "document"
	}
	return name
}
