package editor

import "fmt"

// Mode selects what pointer gestures produce.
type Mode string

const (
	ModeSelect Mode = "select"
	ModeBrush  Mode = "brush"
	ModeEraser Mode = "eraser"
	ModeRect   Mode = "rect"
	ModeCircle Mode = "circle"
	ModeLine   Mode = "line"
)

const (
	DefaultColor       = "#6366f1"
	DefaultSize        = 5.0
	DefaultEraserColor = "#ffffff"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeSelect, ModeBrush, ModeEraser, ModeRect, ModeCircle, ModeLine:
		return m, nil
	}
	return "", fmt.Errorf("%w: mode %q", ErrInvalidTool, s)
}

func (m Mode) stroke() bool { return m == ModeBrush || m == ModeEraser }

// Tool is the current drawing state. The eraser paints with EraserColor; it
// does not remove pixels.
type Tool struct {
	Mode        Mode    `json:"mode"`
	Color       string  `json:"color"`
	Size        float64 `json:"size"`
	EraserColor string  `json:"eraserColor"`
}

func DefaultTool() Tool {
	return Tool{
		Mode:        ModeBrush,
		Color:       DefaultColor,
		Size:        DefaultSize,
		EraserColor: DefaultEraserColor,
	}
}

func (t Tool) strokeColor() string {
	if t.Mode == ModeEraser {
		return t.EraserColor
	}
	return t.Color
}
