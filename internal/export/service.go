package export

import (
	"context"
	"fmt"
	"html/template"
	"log"
	"time"

	"inkcheck/api/internal/correction"
)

// Archiver stores exported files.
type Archiver interface {
	PutExport(ctx context.Context, sessionID, filename, contentType string, data []byte) (string, error)
}

// PDFRenderer turns a complete HTML page into a PDF.
type PDFRenderer func(ctx context.Context, html string) ([]byte, error)

// Service provides document export functionality
type Service struct {
	archive Archiver
	pdf     PDFRenderer
}

type Option func(*Service)

func WithArchive(a Archiver) Option {
	return func(s *Service) { s.archive = a }
}

func WithPDFRenderer(r PDFRenderer) Option {
	return func(s *Service) { s.pdf = r }
}

func NewService(opts ...Option) *Service {
	s := &Service{pdf: renderPDF}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Export generates an export in the requested format. When an archive is
// configured the result is also uploaded; upload failures are logged.
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	if req.Doc == nil {
		return nil, fmt.Errorf("export: document is required")
	}
	exportedAt := req.ExportedAt
	if exportedAt.IsZero() {
		exportedAt = time.Now().UTC()
	}
	title := req.Title
	if title == "" {
		title = "Untitled"
	}

	page, err := RenderDocumentHTML(TemplateData{
		Title:       title,
		ContentHTML: template.HTML(RenderHTML(req.Doc, req.Overlays)),
		ExportedAt:  exportedAt,
		Corrections: correctionRows(req.Items),
	})
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	var result *Result
	switch req.Format {
	case FormatHTML, "":
		result = &Result{
			Data:     []byte(page),
			Filename: sanitizeFilename(title) + ".html",
			MimeType: "text/html; charset=utf-8",
		}
	case FormatPDF:
		data, err := s.pdf(ctx, page)
		if err != nil {
			return nil, err
		}
		result = &Result{
			Data:     data,
			Filename: sanitizeFilename(title) + ".pdf",
			MimeType: "application/pdf",
		}
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}

	if s.archive != nil && req.SessionID != "" {
		key, err := s.archive.PutExport(ctx, req.SessionID, result.Filename, result.MimeType, result.Data)
		if err != nil {
			log.Printf("export: archive %s failed: %v", result.Filename, err)
		} else {
			result.ObjectKey = key
		}
	}
	return result, nil
}

func correctionRows(items []correction.Item) []TemplateCorrection {
	rows := make([]TemplateCorrection, 0, len(items))
	for _, it := range items {
		if it.Result == correction.ResultIgnored {
			continue
		}
		row := TemplateCorrection{
			Original: it.OriginalText,
			Class:    it.Class().String(),
			Status:   "Pending",
			Color:    correction.ColorTypo,
		}
		if s, ok := it.Primary(); ok {
			row.Suggestion = s.Text
		}
		if it.Class() == correction.ClassSemantic {
			row.Color = correction.ColorSemantic
		}
		if it.Result == correction.ResultAccepted {
			row.Status = "Accepted"
			row.Color = correction.ColorAccepted
			if it.Accepted != nil {
				row.Original = it.Accepted.OriginalText
				row.Suggestion = it.Accepted.NewText
			}
		}
		rows = append(rows, row)
	}
	return rows
}
