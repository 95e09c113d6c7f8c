package export

import (
	"context"
	"errors"
	"html/template"
	"slices"
	"strings"
	"testing"
	"time"

	"synkris/api/internal/buffer"
)

func renderJSON(t *testing.T, raw string) string {
	t.Helper()
	root, err := buffer.DecodeProseMirror([]byte(raw))
	if err != nil {
		t.Fatalf("DecodeProseMirror() error = %v", err)
	}
	return RenderProseMirror(root)
}

func TestRenderProseMirror(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{
			name: "paragraph",
			doc:  `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"Hello world"}]}]}`,
			want: "<p>Hello world</p>\n",
		},
		{
			name: "heading level is clamped",
			doc:  `{"type":"doc","content":[{"type":"heading","attrs":{"level":9},"content":[{"type":"text","text":"Deep"}]}]}`,
			want: "<h6>Deep</h6>\n",
		},
		{
			name: "first mark is outermost",
			doc:  `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"both","marks":[{"type":"bold"},{"type":"italic"}]}]}]}`,
			want: "<p><strong><em>both</em></strong></p>\n",
		},
		{
			name: "nested list",
			doc:  `{"type":"doc","content":[{"type":"bulletList","content":[{"type":"listItem","content":[{"type":"paragraph","content":[{"type":"text","text":"Item 1"}]}]}]}]}`,
			want: "<ul><li><p>Item 1</p>\n</li>\n</ul>\n",
		},
		{
			name: "code block escapes once",
			doc:  `{"type":"doc","content":[{"type":"codeBlock","content":[{"type":"text","text":"if a < b {}"}]}]}`,
			want: "<pre><code>if a &lt; b {}</code></pre>\n",
		},
		{
			name: "checked task",
			doc:  `{"type":"doc","content":[{"type":"taskList","content":[{"type":"taskItem","attrs":{"checked":true},"content":[{"type":"paragraph","content":[{"type":"text","text":"ship"}]}]}]}]}`,
			want: `<ul class="tasks">` + "\n<li>&#9745; <p>ship</p>\n</li>\n</ul>\n",
		},
		{
			name: "unknown nodes render children",
			doc:  `{"type":"doc","content":[{"type":"callout","content":[{"type":"paragraph","content":[{"type":"text","text":"note","marks":[{"type":"sparkle"}]}]}]}]}`,
			want: "<p>note</p>\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := renderJSON(t, tt.doc); got != tt.want {
				t.Errorf("RenderProseMirror() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello-World"},
		{"My Document v1.2", "My-Document-v12"},
		{"Special!@#$%Chars", "SpecialChars"},
		{"", "document"},
		{"Résumé 2026", "Rsum-2026"},
		{"Very Long Title That Exceeds Fifty Characters Limit", "Very-Long-Title-That-Exceeds-Fifty-Characters-Limi"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := sanitizeFilename(tt.input)
			if result != tt.expected {
				t.Errorf("sanitizeFilename(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestPandocArgsCarryTitle(t *testing.T) {
	args := pandocArgs("Q3: Plan")
	if !slices.Contains(args, "--metadata=title:Q3: Plan") || args[len(args)-1] != "--output=-" {
		t.Fatalf("pandocArgs() = %v", args)
	}
}

func TestRenderDocumentHTML(t *testing.T) {
	data := TemplateData{
		Title:       "Test Document",
		ContentHTML: template.HTML("<p>This is the content.</p>"),
		Author:      "Test Author",
		UpdatedAt:   time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC),
		Messages: []TemplateMessage{
			{Author: "Bob", Body: "Looks <good>", CreatedAt: time.Date(2026, 3, 4, 11, 0, 0, 0, time.UTC)},
		},
	}

	html, err := RenderDocumentHTML(data)
	if err != nil {
		t.Fatalf("RenderDocumentHTML() error = %v", err)
	}

	for _, want := range []string{"Test Document", "Test Author", "Mar 4, 2026", "<p>This is the content.</p>", "Chat", "Looks &lt;good&gt;"} {
		if !strings.Contains(html, want) {
			t.Errorf("HTML missing %q", want)
		}
	}
	if strings.Contains(html, "&lt;p&gt;") {
		t.Error("HTML content was escaped - should be rendered as raw HTML")
	}
}

func TestRenderDocumentHTMLWithoutChat(t *testing.T) {
	html, err := RenderDocumentHTML(TemplateData{Title: "Solo"})
	if err != nil {
		t.Fatalf("RenderDocumentHTML() error = %v", err)
	}
	if strings.Contains(html, `class="chat"`) {
		t.Error("chat section rendered without messages")
	}
}

func TestContentToHTML(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{
			name:    "prosemirror json",
			content: `{"type":"doc","content":[{"type":"paragraph","content":[{"type":"text","text":"Hi"}]}]}`,
			want:    "<p>Hi</p>",
		},
		{name: "plain text escapes", content: "a < b\nsecond", want: "<p>a &lt; b</p>\n<p>second</p>"},
		{name: "json that is not a doc", content: `{"foo":1}`, want: "<p>{&#34;foo&#34;:1}</p>"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContentToHTML(tt.content); !strings.Contains(got, tt.want) {
				t.Errorf("ContentToHTML() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnsafeURLsAreDropped(t *testing.T) {
	got := renderJSON(t, `{"type":"doc","content":[{"type":"paragraph","content":[
		{"type":"text","text":"click","marks":[{"type":"link","attrs":{"href":" JavaScript:alert(1)"}}]},
		{"type":"image","attrs":{"src":"data:image/png;base64,AAAA","alt":"x"}},
		{"type":"text","text":"ok","marks":[{"type":"link","attrs":{"href":"https://synkris.test/a?b=1&c=2"}}]}
	]}]}`)
	if strings.Contains(got, "javascript") || strings.Contains(got, "<img") {
		t.Errorf("RenderProseMirror() kept an unsafe URL: %q", got)
	}
	if !strings.Contains(got, "click") || !strings.Contains(got, `<a href="https://synkris.test/a?b=1&amp;c=2">ok</a>`) {
		t.Errorf("RenderProseMirror() = %q", got)
	}
}

func TestParseFormat(t *testing.T) {
	for input, want := range map[string]Format{"": FormatPDF, "pdf": FormatPDF, "html": FormatHTML, "docx": FormatDOCX} {
		if got, ok := ParseFormat(input); !ok || got != want {
			t.Errorf("ParseFormat(%q) = %q, %v", input, got, ok)
		}
	}
	if _, ok := ParseFormat("odt"); ok {
		t.Error("ParseFormat(odt) should fail")
	}
}

func TestExportHTML(t *testing.T) {
	res, err := NewService("").Export(context.Background(), Document{
		Title:   "Quarterly Plan",
		Content: "line one",
	}, FormatHTML)
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if res.Filename != "Quarterly-Plan.html" || !strings.HasPrefix(res.MimeType, "text/html") {
		t.Fatalf("Export() = %s %s", res.Filename, res.MimeType)
	}
	if !strings.Contains(string(res.Data), "<p>line one</p>") {
		t.Fatalf("Export() body = %s", res.Data)
	}
}

func TestExportRejectsUnknownFormat(t *testing.T) {
	_, err := NewService("").Export(context.Background(), Document{Title: "x"}, Format("odt"))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("Export() error = %v, want ErrUnsupportedFormat", err)
	}
}
