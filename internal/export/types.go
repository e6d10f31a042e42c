// Package export renders correction sessions to HTML and PDF.
package export

import (
	"errors"
	"time"

	"inkcheck/api/internal/correction"
	"inkcheck/api/internal/pmdoc"
)

// Format represents the export output format
type Format string

const (
	FormatHTML Format = "html"
	FormatPDF  Format = "pdf"
)

// Request contains parameters for an export operation
type Request struct {
	SessionID string
	Title     string
	Format    Format
	Doc       *pmdoc.Node
	Items     []correction.Item
	Overlays  []correction.Overlay
	// ExportedAt defaults to now.
	ExportedAt time.Time
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
	// ObjectKey is set when the export was archived.
	ObjectKey string
}

var (
	ErrUnsupportedFormat = errors.New("export format unsupported")
	// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case "", FormatHTML:
		return FormatHTML, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", ErrUnsupportedFormat
	}
}
