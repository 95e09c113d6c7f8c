package export

import (
	"html"
	"strconv"
	"strings"

	"synkris/api/internal/buffer"
)

// Block nodes that map onto a single element wrapping their children.
var blockTags = map[string]string{
	"paragraph":   "p",
	"bulletList":  "ul",
	"orderedList": "ol",
	"listItem":    "li",
	"blockquote":  "blockquote",
	"table":       "table",
	"tableRow":    "tr",
	"tableCell":   "td",
	"tableHeader": "th",
}

var markTags = map[string]string{
	"bold":        "strong",
	"italic":      "em",
	"code":        "code",
	"strike":      "s",
	"underline":   "u",
	"highlight":   "mark",
	"subscript":   "sub",
	"superscript": "sup",
}

// RenderProseMirror renders a decoded editor document as HTML. Unknown node
// types render their children; unknown marks are ignored.
func RenderProseMirror(root buffer.Node) string {
	var b strings.Builder
	renderNode(&b, root)
	return b.String()
}

func renderNode(b *strings.Builder, n buffer.Node) {
	if tag, ok := blockTags[n.Type]; ok {
		b.WriteString("<" + tag + ">")
		renderChildren(b, n)
		b.WriteString("</" + tag + ">\n")
		return
	}

	switch n.Type {
	case "heading":
		level := "h" + strconv.Itoa(headingLevel(n))
		b.WriteString("<" + level + ">")
		renderChildren(b, n)
		b.WriteString("</" + level + ">\n")
	case "codeBlock":
		b.WriteString("<pre><code>")
		b.WriteString(html.EscapeString(plainText(n)))
		b.WriteString("</code></pre>\n")
	case "taskList":
		b.WriteString(`<ul class="tasks">` + "\n")
		renderChildren(b, n)
		b.WriteString("</ul>\n")
	case "taskItem":
		box := "&#9744;"
		if checked, _ := n.Attrs["checked"].(bool); checked {
			box = "&#9745;"
		}
		b.WriteString("<li>" + box + " ")
		renderChildren(b, n)
		b.WriteString("</li>\n")
	case "text":
		b.WriteString(renderText(n))
	case "hardBreak":
		b.WriteString("<br>")
	case "horizontalRule":
		b.WriteString("<hr>\n")
	case "image":
		src, _ := n.Attrs["src"].(string)
		alt, _ := n.Attrs["alt"].(string)
		if safeURL(src) {
			b.WriteString(`<img src="` + html.EscapeString(src) + `" alt="` + html.EscapeString(alt) + `">`)
		}
	default:
		renderChildren(b, n)
	}
}

func renderChildren(b *strings.Builder, n buffer.Node) {
	for _, child := range n.Content {
		renderNode(b, child)
	}
}

func headingLevel(n buffer.Node) int {
	level, ok := n.Attrs["level"].(float64)
	if !ok {
		return 1
	}
	return min(max(int(level), 1), 6)
}

func plainText(n buffer.Node) string {
	if n.Type == "text" {
		return n.Text
	}
	var b strings.Builder
	for _, child := range n.Content {
		b.WriteString(plainText(child))
	}
	return b.String()
}

// renderText wraps escaped text in its marks, first mark outermost.
func renderText(n buffer.Node) string {
	out := html.EscapeString(n.Text)
	if out == "" {
		return ""
	}
	for i := len(n.Marks) - 1; i >= 0; i-- {
		mark := n.Marks[i]
		if mark.Type == "link" {
			href, _ := mark.Attrs["href"].(string)
			if safeURL(href) {
				out = `<a href="` + html.EscapeString(href) + `">` + out + "</a>"
			}
			continue
		}
		if tag, ok := markTags[mark.Type]; ok {
			out = "<" + tag + ">" + out + "</" + tag + ">"
		}
	}
	return out
}

// safeURL rejects script and data URLs in links and images.
func safeURL(raw string) bool {
	u := strings.ToLower(strings.TrimSpace(raw))
	if u == "" {
		return false
	}
	for _, scheme := range []string{"javascript:", "data:", "vbscript:"} {
		if strings.HasPrefix(u, scheme) {
			return false
		}
	}
	return true
}
