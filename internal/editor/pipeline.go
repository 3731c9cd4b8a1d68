package editor

import (
	"math"

	"pdfpro/api/internal/canvas"
)

// gesture is the in-flight pointer interaction between down and up.
type gesture struct {
	mode   Mode
	start  canvas.Point
	last   canvas.Point
	points []canvas.Point
}

// PointerDown starts a gesture. It is ignored in select mode and when the
// active layer is missing, locked or hidden.
func (e *Editor) PointerDown(p canvas.Point) bool {
	if e.tool.Mode == ModeSelect {
		return false
	}
	layer, ok := e.stack.ActiveLayer()
	if !ok || layer.Locked || !layer.Visible {
		e.log.Debug().Str("mode", string(e.tool.Mode)).Msg("pointer down ignored")
		return false
	}
	g := &gesture{mode: e.tool.Mode, start: p, last: p}
	if g.mode.stroke() {
		g.points = []canvas.Point{p}
	}
	e.gesture = g
	return true
}

// PointerMove extends the active gesture. It reports whether the preview
// changed.
func (e *Editor) PointerMove(p canvas.Point) bool {
	g := e.gesture
	if g == nil {
		return false
	}
	if g.mode.stroke() {
		g.points = append(g.points, p)
	}
	g.last = p
	return true
}

// PointerUp finishes the gesture and appends the resulting element to the
// active layer. Strokes keep only the points gathered on down and move;
// shapes span from the start to p. Degenerate shapes, a layer hidden
// mid-gesture and appends refused by the layer produce nothing and leave
// history untouched.
func (e *Editor) PointerUp(p canvas.Point) (canvas.Element, bool) {
	g := e.gesture
	if g == nil {
		return canvas.Element{}, false
	}
	e.gesture = nil

	if !g.mode.stroke() {
		g.last = p
	}

	shape, ok := g.shape()
	if !ok {
		return canvas.Element{}, false
	}
	if layer, ok := e.stack.ActiveLayer(); ok && !layer.Visible {
		e.log.Debug().Str("layer", layer.ID).Msg("gesture dropped on hidden layer")
		return canvas.Element{}, false
	}
	el := e.newElement(shape)
	if err := e.stack.AppendElement(e.stack.ActiveLayerID(), el); err != nil {
		e.log.Debug().Err(err).Str("kind", string(el.Kind())).Msg("gesture dropped")
		return canvas.Element{}, false
	}
	e.commit(ReasonEdit)
	return el, true
}

// PointerLeave abandons the gesture without producing an element.
func (e *Editor) PointerLeave() { e.CancelGesture() }

func (e *Editor) CancelGesture() bool {
	if e.gesture == nil {
		return false
	}
	e.gesture = nil
	return true
}

func (e *Editor) Drawing() bool { return e.gesture != nil }

// Preview returns the transient element for the gesture in progress.
func (e *Editor) Preview() *canvas.Element {
	g := e.gesture
	if g == nil {
		return nil
	}
	var shape canvas.Shape
	switch g.mode {
	case ModeBrush, ModeEraser:
		points := make([]canvas.Point, len(g.points))
		copy(points, g.points)
		shape = canvas.Path{Points: points}
	case ModeRect:
		shape = normalizedRect(g.start, g.last)
	case ModeCircle:
		shape = canvas.Circle{X: g.start.X, Y: g.start.Y, Radius: g.start.Dist(g.last)}
	case ModeLine:
		shape = canvas.Line{From: g.start, To: g.last}
	default:
		return nil
	}
	return &canvas.Element{Color: e.tool.strokeColor(), Size: e.tool.Size, Shape: shape}
}

func (g *gesture) shape() (canvas.Shape, bool) {
	switch g.mode {
	case ModeBrush, ModeEraser:
		if len(g.points) < 2 {
			return nil, false
		}
		return canvas.Path{Points: g.points}, true
	case ModeRect:
		r := normalizedRect(g.start, g.last)
		if r.Width == 0 || r.Height == 0 {
			return nil, false
		}
		return r, true
	case ModeCircle:
		radius := g.start.Dist(g.last)
		if radius == 0 {
			return nil, false
		}
		return canvas.Circle{X: g.start.X, Y: g.start.Y, Radius: radius}, true
	case ModeLine:
		if g.start == g.last {
			return nil, false
		}
		return canvas.Line{From: g.start, To: g.last}, true
	}
	return nil, false
}

func normalizedRect(a, b canvas.Point) canvas.Rect {
	return canvas.Rect{
		X:      math.Min(a.X, b.X),
		Y:      math.Min(a.Y, b.Y),
		Width:  math.Abs(b.X - a.X),
		Height: math.Abs(b.Y - a.Y),
	}
}
