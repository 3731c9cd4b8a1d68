package export

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"html/template"
	"time"

	"github.com/rs/zerolog"

	"pdfpro/api/internal/render"
)

// Service provides workspace export functionality
type Service struct {
	compositor *render.Compositor
	fetch      render.Fetcher
	log        zerolog.Logger
	now        func() time.Time
}

// NewService creates a new export service. fetch supplies the raw bytes of
// image elements for the vector PDF; nil leaves images out of it.
func NewService(compositor *render.Compositor, fetch render.Fetcher, log zerolog.Logger) *Service {
	return &Service{
		compositor: compositor,
		fetch:      fetch,
		log:        log.With().Str("component", "export").Logger(),
		now:        time.Now,
	}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	title := req.Title
	if title == "" {
		title = "workspace"
	}

	switch req.Format {
	case FormatPNG, "":
		data, err := s.png(ctx, req)
		if err != nil {
			return nil, err
		}
		return &Result{Data: data, Filename: sanitizeFilename(title) + ".png", MimeType: "image/png"}, nil
	case FormatPDF:
		return exportVectorPDF(ctx, s.compositor, s.fetch, req.State.Layers, title, s.log)
	case FormatReport, FormatDOCX:
		html, err := s.reportHTML(ctx, req, title)
		if err != nil {
			return nil, err
		}
		if req.Format == FormatReport {
			return exportReportPDF(ctx, html, title)
		}
		return exportDOCX(ctx, html, title)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, req.Format)
	}
}

func (s *Service) png(ctx context.Context, req Request) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.compositor.EncodePNG(ctx, &buf, req.State.Layers); err != nil {
		return nil, fmt.Errorf("encode canvas png: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Service) reportHTML(ctx context.Context, req Request, title string) (string, error) {
	canvasPNG, err := s.png(ctx, req)
	if err != nil {
		return "", err
	}
	data := TemplateData{
		Title:       title,
		Author:      req.Author,
		GeneratedAt: stamp(s.now()),
		UpdatedAt:   stamp(req.State.UpdatedAt),
		CanvasURL:   template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(canvasPNG)),
		NoteGroups:  req.State.NoteGroups,
		Tasks:       req.State.Tasks,
	}
	for _, layer := range req.State.Layers {
		data.Layers = append(data.Layers, TemplateLayer{
			Name:     layer.Name,
			Elements: len(layer.Elements),
			Visible:  layer.Visible,
			Locked:   layer.Locked,
		})
	}
	html, err := RenderReportHTML(data)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return html, nil
}
