package export

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"documedix/api/internal/document"
)

// Service renders a document snapshot into one of the export formats.
type Service struct {
	word   *WordRenderer
	docx   Converter
	pdf    PDFRenderer
	logger *slog.Logger
}

type Options struct {
	ImageHeight  int
	ImageWorkers int
	Converter    string
	PDF          PDFRenderer
}

func NewService(opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		word:   NewWordRenderer(opts.ImageHeight, opts.ImageWorkers, logger),
		docx:   NewConverter(opts.Converter),
		pdf:    opts.PDF,
		logger: logger,
	}
}

// Export renders doc. The Word file is named from the category table; the
// other formats reuse that name with their own extension.
func (s *Service) Export(ctx context.Context, doc document.Document, format Format) (*Result, error) {
	res, err := s.render(ctx, doc, format)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("document exported", "format", format, "filename", res.Filename, "bytes", len(res.Data))
	return res, nil
}

func (s *Service) render(ctx context.Context, doc document.Document, format Format) (*Result, error) {
	title := document.CategoryTitle(doc.Category)
	switch format {
	case FormatHTML, FormatPDF:
		page, err := PrintPage(title, RenderPrintHTML(title, doc.Sections))
		if err != nil {
			return nil, fmt.Errorf("render print page: %w", err)
		}
		if format == FormatHTML {
			return &Result{Data: []byte(page), Filename: exportName(doc.Category, ".html"), MimeType: MimeHTML}, nil
		}
		data, err := s.pdf.Render(ctx, page)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: exportName(doc.Category, ".pdf"), MimeType: MimePDF}, nil
	case FormatDOCX:
		html, err := s.word.Render(ctx, title, doc.Sections)
		if err != nil {
			return nil, fmt.Errorf("render word html: %w", err)
		}
		data, err := s.docx.Convert(ctx, html)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: document.ExportFileName(doc.Category), MimeType: MimeDOCX}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

func exportName(category int, ext string) string {
	base := document.ExportFileName(category)
	base = strings.TrimSuffix(base, ".docx")
	return sanitizeFilename(base) + ext
}
