// Package render rasterizes layer stacks with the gg software renderer.
package render

import (
	"context"
	"image"
	"image/draw"
	"image/png"
	"io"

	"github.com/gogpu/gg"
	"github.com/rs/zerolog"

	"pdfpro/api/internal/canvas"
)

// Compositor paints layers onto a fixed-size surface. Output depends only on
// the layers and on which images the cache holds.
type Compositor struct {
	width  int
	height int
	images *ImageCache
	log    zerolog.Logger
}

func NewCompositor(width, height int, images *ImageCache, log zerolog.Logger) *Compositor {
	if images == nil {
		images = NewImageCache(nil)
	}
	return &Compositor{width: width, height: height, images: images, log: log}
}

func (c *Compositor) Size() (int, int) { return c.width, c.height }

func (c *Compositor) Images() *ImageCache { return c.images }

// Composite clears the surface and paints visible layers from the last
// storage index to the first, so index 0 ends up on top. Images that are not
// decoded yet are skipped and requested from the cache.
func (c *Compositor) Composite(layers []canvas.Layer) *image.RGBA {
	dc := gg.NewContext(c.width, c.height)
	defer dc.Close()
	dc.Clear()

	for i := len(layers) - 1; i >= 0; i-- {
		layer := layers[i]
		if !layer.Visible {
			continue
		}
		for _, el := range layer.Elements {
			c.paint(dc, el)
		}
	}
	return toRGBA(dc.Image())
}

// Overlay renders a gesture preview on an otherwise transparent surface.
func (c *Compositor) Overlay(preview *canvas.Element) *image.RGBA {
	dc := gg.NewContext(c.width, c.height)
	defer dc.Close()
	dc.Clear()
	if preview != nil {
		c.paint(dc, *preview)
	}
	return toRGBA(dc.Image())
}

// Render waits for every image referenced by a visible layer before
// compositing. Images that fail to load are left out.
func (c *Compositor) Render(ctx context.Context, layers []canvas.Layer) (*image.RGBA, error) {
	for _, layer := range layers {
		if !layer.Visible {
			continue
		}
		for _, el := range layer.Elements {
			img, ok := el.Shape.(canvas.Image)
			if !ok || img.Ref == "" {
				continue
			}
			if _, err := c.images.Load(ctx, img.Ref); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				c.log.Debug().Err(err).Str("element", el.ID).Msg("image left out of render")
			}
		}
	}
	return c.Composite(layers), nil
}

// EncodePNG writes the fully loaded composite as PNG.
func (c *Compositor) EncodePNG(ctx context.Context, w io.Writer, layers []canvas.Layer) error {
	img, err := c.Render(ctx, layers)
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

func (c *Compositor) paint(dc *gg.Context, el canvas.Element) {
	if !el.Paintable() {
		return
	}
	col := ParseColor(el.Color)
	dc.SetRGBA(col.R, col.G, col.B, col.A)

	var err error
	switch s := el.Shape.(type) {
	case canvas.Path:
		dc.SetLineWidth(el.Size)
		dc.SetLineCap(gg.LineCapRound)
		dc.SetLineJoin(gg.LineJoinRound)
		dc.MoveTo(s.Points[0].X, s.Points[0].Y)
		for _, p := range s.Points[1:] {
			dc.LineTo(p.X, p.Y)
		}
		err = dc.Stroke()
	case canvas.Rect:
		dc.DrawRectangle(s.X, s.Y, s.Width, s.Height)
		err = dc.Fill()
	case canvas.Circle:
		dc.DrawCircle(s.X, s.Y, s.Radius)
		err = dc.Fill()
	case canvas.Line:
		dc.SetLineWidth(el.Size)
		dc.SetLineCap(gg.LineCapRound)
		dc.DrawLine(s.From.X, s.From.Y, s.To.X, s.To.Y)
		err = dc.Stroke()
	case canvas.Image:
		if s.Width <= 0 || s.Height <= 0 {
			return
		}
		buf, ok := c.images.Lookup(s.Ref)
		if !ok {
			return
		}
		dc.DrawImageEx(buf, gg.DrawImageOptions{
			X:         s.X,
			Y:         s.Y,
			DstWidth:  s.Width,
			DstHeight: s.Height,
			Opacity:   1,
		})
	}
	if err != nil {
		c.log.Debug().Err(err).Str("element", el.ID).Str("kind", string(el.Kind())).Msg("paint failed")
	}
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return rgba
	}
	out := image.NewRGBA(img.Bounds())
	draw.Draw(out, out.Bounds(), img, img.Bounds().Min, draw.Src)
	return out
}
