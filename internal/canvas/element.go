// Package canvas holds the document model of the layered editor: vector
// elements, the layer stack and the undo/redo history.
package canvas

import (
	"math"
	"time"
)

// Kind names an element variant. The values match the wire format.
type Kind string

const (
	KindPath   Kind = "path"
	KindRect   Kind = "rect"
	KindCircle Kind = "circle"
	KindLine   Kind = "line"
	KindImage  Kind = "image"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Dist returns the Euclidean distance between p and q.
func (p Point) Dist(q Point) float64 {
	return math.Hypot(q.X-p.X, q.Y-p.Y)
}

// Shape is the geometry of an element. It is implemented only by the
// variants in this package.
type Shape interface {
	Kind() Kind
	cloneShape() Shape
}

// Path is a freehand stroke. It paints only with two or more points.
type Path struct {
	Points []Point
}

type Rect struct {
	X, Y, Width, Height float64
}

type Circle struct {
	X, Y, Radius float64
}

type Line struct {
	From, To Point
}

// Image is a raster drawn scaled into its box. Ref is either a data: URL or
// a resource locator understood by the image fetcher.
type Image struct {
	X, Y, Width, Height float64
	Ref                 string
}

func (Path) Kind() Kind   { return KindPath }
func (Rect) Kind() Kind   { return KindRect }
func (Circle) Kind() Kind { return KindCircle }
func (Line) Kind() Kind   { return KindLine }
func (Image) Kind() Kind  { return KindImage }

func (s Path) cloneShape() Shape {
	points := make([]Point, len(s.Points))
	copy(points, s.Points)
	return Path{Points: points}
}

func (s Rect) cloneShape() Shape   { return s }
func (s Circle) cloneShape() Shape { return s }
func (s Line) cloneShape() Shape   { return s }
func (s Image) cloneShape() Shape  { return s }

// Element is one drawn primitive. A nil Shape is allowed and paints nothing;
// it is what a stored record decodes to when its geometry is incomplete.
type Element struct {
	ID        string
	Color     string
	Size      float64
	CreatedAt time.Time
	Shape     Shape
}

// Kind returns the variant of the element, or "" when it has no geometry.
func (e Element) Kind() Kind {
	if e.Shape == nil {
		return ""
	}
	return e.Shape.Kind()
}

// Paintable reports whether the element carries enough geometry to be drawn.
func (e Element) Paintable() bool {
	switch s := e.Shape.(type) {
	case Path:
		return len(s.Points) >= 2
	case Rect, Circle, Line:
		return true
	case Image:
		return s.Ref != ""
	default:
		return false
	}
}

func (e Element) Clone() Element {
	out := e
	if e.Shape != nil {
		out.Shape = e.Shape.cloneShape()
	}
	return out
}

// Bounds returns the axis-aligned box covered by the element geometry,
// ignoring stroke width. ok is false for elements without geometry.
func (e Element) Bounds() (minX, minY, maxX, maxY float64, ok bool) {
	switch s := e.Shape.(type) {
	case Path:
		if len(s.Points) == 0 {
			return 0, 0, 0, 0, false
		}
		minX, minY = s.Points[0].X, s.Points[0].Y
		maxX, maxY = minX, minY
		for _, p := range s.Points[1:] {
			minX, maxX = math.Min(minX, p.X), math.Max(maxX, p.X)
			minY, maxY = math.Min(minY, p.Y), math.Max(maxY, p.Y)
		}
		return minX, minY, maxX, maxY, true
	case Rect:
		return s.X, s.Y, s.X + s.Width, s.Y + s.Height, true
	case Circle:
		return s.X - s.Radius, s.Y - s.Radius, s.X + s.Radius, s.Y + s.Radius, true
	case Line:
		return math.Min(s.From.X, s.To.X), math.Min(s.From.Y, s.To.Y),
			math.Max(s.From.X, s.To.X), math.Max(s.From.Y, s.To.Y), true
	case Image:
		return s.X, s.Y, s.X + s.Width, s.Y + s.Height, true
	default:
		return 0, 0, 0, 0, false
	}
}
