package export

import (
	"bytes"
	"embed"
	"html/template"
	"time"
)

//go:embed templates/document.html
var templateFS embed.FS

var documentTemplate = template.Must(
	template.New("document.html").
		Funcs(template.FuncMap{
			"formatDate": func(t time.Time) string {
				if t.IsZero() {
					return ""
				}
				return t.UTC().Format("Jan 2, 2006 15:04 MST")
			},
		}).
		ParseFS(templateFS, "templates/document.html"),
)

// TemplateData holds data for document template rendering
type TemplateData struct {
	Title       string
	ContentHTML template.HTML
	Author      string
	UpdatedAt   time.Time
	Messages    []TemplateMessage
}

type TemplateMessage struct {
	Author    string
	Body      string
	CreatedAt time.Time
}

// RenderDocumentHTML renders the document template with provided data
func RenderDocumentHTML(data TemplateData) (string, error) {
	var buf bytes.Buffer
	if err := documentTemplate.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}
