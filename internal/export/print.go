package export

import (
	"html"
	"strings"

	"documedix/api/internal/document"
)

// RenderPrintHTML concatenates the category heading, section headings and
// item markup in document order. Empty headings are omitted. A file item
// shows its local preview, or its stored URL once hydrated; with neither it
// contributes nothing.
func RenderPrintHTML(categoryTitle string, sections []document.Section) string {
	var b strings.Builder
	if categoryTitle != "" {
		b.WriteString("<h1>" + html.EscapeString(categoryTitle) + "</h1>")
	}
	for _, s := range sections {
		if s.Title != "" {
			b.WriteString("<h2>" + html.EscapeString(s.Title) + "</h2>")
		}
		for _, it := range s.Items {
			switch v := it.(type) {
			case document.Content:
				b.WriteString(v.HTML)
			case document.File:
				if src := v.PreviewSource(); src != "" {
					b.WriteString(`<img src="` + html.EscapeString(src) + `" style="max-width:100%; height:auto;" /><br>`)
				}
			}
		}
	}
	return b.String()
}
