package export

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/jung-kurt/gofpdf"
	"github.com/rs/zerolog"

	"pdfpro/api/internal/canvas"
	"pdfpro/api/internal/render"
)

// exportVectorPDF draws visible layers as PDF vector primitives on a page the
// size of the canvas, one point per canvas pixel. Layers paint from the last
// index to the first, matching the compositor.
func exportVectorPDF(ctx context.Context, compositor *render.Compositor, fetch render.Fetcher, layers []canvas.Layer, title string, log zerolog.Logger) (*Result, error) {
	w, h := compositor.Size()
	pdf := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           gofpdf.SizeType{Wd: float64(w), Ht: float64(h)},
	})
	pdf.SetTitle(title, true)
	pdf.SetCreator("pdfpro", true)
	pdf.SetMargins(0, 0, 0)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()

	for i := len(layers) - 1; i >= 0; i-- {
		if !layers[i].Visible {
			continue
		}
		for _, el := range layers[i].Elements {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			drawElement(ctx, pdf, fetch, el, log)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}
	return &Result{
		Data:     buf.Bytes(),
		Filename: sanitizeFilename(title) + ".pdf",
		MimeType: "application/pdf",
	}, nil
}

func drawElement(ctx context.Context, pdf *gofpdf.Fpdf, fetch render.Fetcher, el canvas.Element, log zerolog.Logger) {
	if !el.Paintable() {
		return
	}
	col := render.ParseColor(el.Color)
	r, g, b := int(col.R*255+0.5), int(col.G*255+0.5), int(col.B*255+0.5)
	pdf.SetAlpha(col.A, "Normal")
	pdf.SetDrawColor(r, g, b)
	pdf.SetFillColor(r, g, b)
	pdf.SetLineCapStyle("round")
	pdf.SetLineJoinStyle("round")
	pdf.SetLineWidth(el.Size)

	switch s := el.Shape.(type) {
	case canvas.Path:
		pdf.MoveTo(s.Points[0].X, s.Points[0].Y)
		for _, p := range s.Points[1:] {
			pdf.LineTo(p.X, p.Y)
		}
		pdf.DrawPath("D")
	case canvas.Rect:
		pdf.Rect(s.X, s.Y, s.Width, s.Height, "F")
	case canvas.Circle:
		pdf.Circle(s.X, s.Y, s.Radius, "F")
	case canvas.Line:
		pdf.Line(s.From.X, s.From.Y, s.To.X, s.To.Y)
	case canvas.Image:
		if fetch == nil || s.Width <= 0 || s.Height <= 0 {
			return
		}
		data, err := embeddablePNG(ctx, fetch, s.Ref)
		if err != nil {
			log.Debug().Err(err).Str("element", el.ID).Msg("image left out of pdf")
			return
		}
		opts := gofpdf.ImageOptions{ImageType: "PNG"}
		pdf.RegisterImageOptionsReader(el.ID, opts, bytes.NewReader(data))
		pdf.ImageOptions(el.ID, s.X, s.Y, s.Width, s.Height, false, opts, 0, "")
	}
}

// embeddablePNG re-encodes any decodable image as PNG, which gofpdf always
// accepts.
func embeddablePNG(ctx context.Context, fetch render.Fetcher, ref string) ([]byte, error) {
	raw, err := fetch.Get(ctx, ref)
	if err != nil {
		return nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}
