package canvas

import (
	"encoding/json"
	"time"
)

// elementRecord is the flat wire form shared with stored workspaces. Circle
// radius travels in width.
type elementRecord struct {
	ID        string   `json:"id"`
	Type      Kind     `json:"type"`
	Points    []Point  `json:"points,omitempty"`
	X         *float64 `json:"x,omitempty"`
	Y         *float64 `json:"y,omitempty"`
	Width     *float64 `json:"width,omitempty"`
	Height    *float64 `json:"height,omitempty"`
	Color     string   `json:"color"`
	Size      float64  `json:"size"`
	Timestamp int64    `json:"timestamp"`
	Data      string   `json:"data,omitempty"`
}

func (e Element) MarshalJSON() ([]byte, error) {
	rec := elementRecord{
		ID:    e.ID,
		Type:  e.Kind(),
		Color: e.Color,
		Size:  e.Size,
	}
	if !e.CreatedAt.IsZero() {
		rec.Timestamp = e.CreatedAt.UnixMilli()
	}

	switch s := e.Shape.(type) {
	case Path:
		rec.Points = s.Points
	case Rect:
		rec.X, rec.Y, rec.Width, rec.Height = &s.X, &s.Y, &s.Width, &s.Height
	case Circle:
		rec.X, rec.Y, rec.Width = &s.X, &s.Y, &s.Radius
	case Line:
		rec.Points = []Point{s.From, s.To}
	case Image:
		rec.X, rec.Y, rec.Width, rec.Height = &s.X, &s.Y, &s.Width, &s.Height
		rec.Data = s.Ref
	}
	return json.Marshal(rec)
}

// UnmarshalJSON never fails on incomplete geometry: the element keeps its
// identity and styling and gets a nil Shape.
func (e *Element) UnmarshalJSON(data []byte) error {
	var rec elementRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return err
	}

	*e = Element{
		ID:    rec.ID,
		Color: rec.Color,
		Size:  rec.Size,
	}
	if rec.Timestamp != 0 {
		e.CreatedAt = time.UnixMilli(rec.Timestamp).UTC()
	}

	switch rec.Type {
	case KindPath:
		if len(rec.Points) > 0 {
			e.Shape = Path{Points: rec.Points}
		}
	case KindRect:
		if rec.X != nil && rec.Y != nil && rec.Width != nil && rec.Height != nil {
			e.Shape = Rect{X: *rec.X, Y: *rec.Y, Width: *rec.Width, Height: *rec.Height}
		}
	case KindCircle:
		if rec.X != nil && rec.Y != nil && rec.Width != nil {
			e.Shape = Circle{X: *rec.X, Y: *rec.Y, Radius: *rec.Width}
		}
	case KindLine:
		if len(rec.Points) == 2 {
			e.Shape = Line{From: rec.Points[0], To: rec.Points[1]}
		}
	case KindImage:
		if rec.Data != "" && rec.X != nil && rec.Y != nil && rec.Width != nil && rec.Height != nil {
			e.Shape = Image{X: *rec.X, Y: *rec.Y, Width: *rec.Width, Height: *rec.Height, Ref: rec.Data}
		}
	}
	return nil
}
