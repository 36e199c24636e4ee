package export

import (
	"context"
	"html"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"

	"documedix/api/internal/document"
)

const (
	tableStyle = `border-collapse: collapse; width: 100%; border: 1px solid black;`
	cellStyle  = `border: 1px solid black; padding: 4px;`
	imgStyle   = `max-width:100%; height:auto;`
)

var (
	tableTag = regexp.MustCompile(`(?i)<table\b`)
	tdTag    = regexp.MustCompile(`(?i)<td\b`)
	thTag    = regexp.MustCompile(`(?i)<th\b`)
	imgTag   = regexp.MustCompile(`(?i)<img\b`)

	spanStyle = regexp.MustCompile(`(?i)(<span\b[^>]*?\sstyle\s*=\s*")([^"]*)(")`)
	colorDecl = regexp.MustCompile(`(?i)(^|;)(\s*)color\s*:\s*([^;"]+)`)
)

// WordRenderer builds the HTML handed to the DOCX converter.
type WordRenderer struct {
	ImageHeight int
	Workers     int
	Logger      *slog.Logger
}

func NewWordRenderer(imageHeight, workers int, logger *slog.Logger) *WordRenderer {
	if logger == nil {
		logger = slog.Default()
	}
	if imageHeight <= 0 {
		imageHeight = DefaultImageHeight
	}
	if workers <= 0 {
		workers = 4
	}
	return &WordRenderer{ImageHeight: imageHeight, Workers: workers, Logger: logger}
}

// Render returns a complete HTML document. Content markup gets inline
// table, cell and image styles, and span colors rewritten to hex. Only
// file items that still hold their local bytes are embedded; an image that
// fails to decode is logged and left out.
func (r *WordRenderer) Render(ctx context.Context, categoryTitle string, sections []document.Section) (string, error) {
	images, err := r.scaleImages(ctx, sections)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(`<html><head><meta charset="utf-8"></head><body>`)
	if categoryTitle != "" {
		b.WriteString("<h1>" + html.EscapeString(categoryTitle) + "</h1>")
	}
	for _, s := range sections {
		if s.Title != "" {
			b.WriteString(`<h2 style="color:black;">` + html.EscapeString(s.Title) + "</h2>")
		}
		for _, it := range s.Items {
			switch v := it.(type) {
			case document.Content:
				b.WriteString(StyleForWord(v.HTML))
			case document.File:
				if v.Source == nil {
					continue
				}
				if uri, ok := images[v.Source.ID]; ok {
					b.WriteString(`<img src="` + uri + `" alt="` + html.EscapeString(v.Name) + `" /><br>`)
				}
			}
		}
	}
	b.WriteString("</body></html>")
	return b.String(), nil
}

// scaleImages downscales every local file concurrently, keyed by blob id.
func (r *WordRenderer) scaleImages(ctx context.Context, sections []document.Section) (map[string]string, error) {
	var blobs []*document.Blob
	for _, s := range sections {
		for _, it := range s.Items {
			if f, ok := it.(document.File); ok && f.Source != nil {
				blobs = append(blobs, f.Source)
			}
		}
	}
	uris := make([]string, len(blobs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.Workers)
	for i, blob := range blobs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			scaled, err := Downscale(blob.Data, r.ImageHeight)
			if err != nil {
				r.Logger.Warn("word export: image skipped", "name", blob.Name, "err", err)
				return nil
			}
			uris[i] = pngDataURI(scaled)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string]string, len(blobs))
	for i, blob := range blobs {
		if uris[i] != "" {
			out[blob.ID] = uris[i]
		}
	}
	return out, nil
}

// StyleForWord injects the inline styles Word needs into content markup.
func StyleForWord(markup string) string {
	markup = tableTag.ReplaceAllString(markup, `<table style="`+tableStyle+`"`)
	markup = tdTag.ReplaceAllString(markup, `<td style="`+cellStyle+`"`)
	markup = thTag.ReplaceAllString(markup, `<th style="`+cellStyle+`"`)
	markup = imgTag.ReplaceAllString(markup, `<img style="`+imgStyle+`"`)
	return spanStyle.ReplaceAllStringFunc(markup, func(tag string) string {
		m := spanStyle.FindStringSubmatch(tag)
		return m[1] + rewriteColors(m[2]) + m[3]
	})
}

// rewriteColors replaces each color declaration that NormalizeColor
// understands; other declarations are kept as written.
func rewriteColors(style string) string {
	return colorDecl.ReplaceAllStringFunc(style, func(decl string) string {
		m := colorDecl.FindStringSubmatch(decl)
		value := strings.TrimSpace(m[3])
		hex, ok := NormalizeColor(value)
		if !ok {
			return decl
		}
		suffix := m[3][len(strings.TrimRight(m[3], " \t")):]
		return m[1] + m[2] + "color:#" + hex + suffix
	})
}
