package export

import (
	"bytes"
	"embed"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var printTemplate *template.Template

func init() {
	contents, err := templateFS.ReadFile("templates/print.html")
	if err != nil {
		// Fallback to built-in template if file not found
		printTemplate = template.Must(template.New("print").Parse(fallbackTemplate))
		return
	}
	printTemplate = template.Must(template.New("print").Parse(string(contents)))
}

// PageData holds data for the print page template. Body is trusted markup
// produced by RenderPrintHTML.
type PageData struct {
	Title string
	Body  template.HTML
}

// PrintPage wraps rendered sections in a standalone printable page.
func PrintPage(title, body string) (string, error) {
	if title == "" {
		title = "Print"
	}
	var buf bytes.Buffer
	if err := printTemplate.Execute(&buf, PageData{Title: title, Body: template.HTML(body)}); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// fallbackTemplate is used if the embedded template fails to load
const fallbackTemplate = `<!DOCTYPE html>
<html>
<head>
  <meta charset="UTF-8">
  <title>{{.Title}}</title>
  <style>
    body { font-family: Arial, sans-serif; padding: 20px; }
    img { max-width: 100%; height: auto; }
    table { border-collapse: collapse; width: 100%; }
    td, th { border: 1px solid #000; padding: 4px; }
  </style>
</head>
<body>{{.Body}}</body>
</html>`
