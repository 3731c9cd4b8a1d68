// Package export renders a workspace to PNG, vector PDF, a printable report
// PDF and DOCX.
package export

import (
	"errors"
	"strings"
	"time"

	"pdfpro/api/internal/workspace"
)

// Format represents the export output format
type Format string

const (
	FormatPNG    Format = "png"
	FormatPDF    Format = "pdf"
	FormatReport Format = "report"
	FormatDOCX   Format = "docx"
)

// ParseFormat accepts a format name case-insensitively; empty means png.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatPNG, nil
	case FormatPNG, FormatPDF, FormatReport, FormatDOCX:
		return f, nil
	default:
		return "", ErrUnsupportedFormat
	}
}

// Request contains parameters for an export operation
type Request struct {
	Title  string
	Author string
	Format Format
	State  workspace.State
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

var (
	// ErrUnsupportedFormat indicates the requested format is unknown.
	ErrUnsupportedFormat = errors.New("export format unsupported")
	// ErrPDFDependencyMissing indicates report export runtime dependencies are unavailable.
	ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
	// ErrDOCXDependencyMissing indicates DOCX export runtime dependencies are unavailable.
	ErrDOCXDependencyMissing = errors.New("export docx dependency missing")
)

func stamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("Jan 2, 2006 15:04 MST")
}
