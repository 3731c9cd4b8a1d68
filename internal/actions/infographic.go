package actions

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"pdfpro/api/internal/canvas"
	"pdfpro/api/internal/workspace"
)

type Style string

const (
	StyleFlow       Style = "flow"
	StyleSteps      Style = "steps"
	StyleMindmap    Style = "mindmap"
	StyleComparison Style = "comparison"
)

type DataPoint struct {
	Label       string `json:"label"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

type infographicArgs struct {
	Topic      string      `json:"topic"`
	Style      Style       `json:"style"`
	DataPoints []DataPoint `json:"dataPoints"`
}

var palette = []string{"#6366f1", "#ec4899", "#14b8a6", "#f59e0b", "#8b5cf6", "#ef4444", "#22c55e", "#0ea5e9"}

const (
	connectorColor = "#a1a1aa"
	connectorSize  = 3
	layoutMargin   = 60
)

func (x *Executor) generateInfographic(env *Env, raw json.RawMessage) (result, error) {
	var args infographicArgs
	if err := decodeArgs(raw, &args); err != nil {
		return result{}, err
	}
	args.Topic = strings.TrimSpace(args.Topic)
	if args.Topic == "" {
		return result{}, invalid("topic is required")
	}
	if len(args.DataPoints) == 0 {
		return result{}, invalid("dataPoints must not be empty")
	}
	if args.Style == "" {
		args.Style = StyleFlow
	}

	var elements []canvas.Element
	switch args.Style {
	case StyleFlow:
		elements = x.chainLayout(args.DataPoints, false)
	case StyleSteps:
		elements = x.chainLayout(args.DataPoints, true)
	case StyleMindmap:
		elements = x.mindmapLayout(args.DataPoints)
	case StyleComparison:
		elements = x.comparisonLayout(args.DataPoints)
	default:
		return result{}, invalid("unknown style %q", args.Style)
	}

	name := "Visual: " + args.Topic
	layerID, err := env.Editor.InsertLayer(name, elements)
	if err != nil {
		return result{}, err
	}

	if env.Notes != nil {
		group := env.Notes.CreateGroup(name, workspace.NoteText)
		for _, p := range args.DataPoints {
			content := p.Label
			if p.Description != "" {
				content += ": " + p.Description
			}
			env.Notes.AddItem(group.ID, content)
		}
	}
	return result{
		summary: fmt.Sprintf("Created %s infographic for %s", args.Style, args.Topic),
		layerID: layerID,
	}, nil
}

func pointColor(p DataPoint, i int) string {
	if p.Color != "" {
		return p.Color
	}
	return palette[i%len(palette)]
}

// chainLayout places nodes left to right joined by connectors. Steps descend
// one row per node.
func (x *Executor) chainLayout(points []DataPoint, descend bool) []canvas.Element {
	n := float64(len(points))
	slot := (x.width - 2*layoutMargin) / n
	nodeW := math.Min(180, slot*0.7)
	nodeH := math.Min(100, nodeW*0.6)

	rowStep := 0.0
	top := x.height/2 - nodeH/2
	if descend && len(points) > 1 {
		rowStep = math.Min(nodeH, (x.height-2*layoutMargin-nodeH)/(n-1))
		top = layoutMargin
	}

	var out []canvas.Element
	var prev *canvas.Rect
	for i, p := range points {
		r := canvas.Rect{
			X:      layoutMargin + float64(i)*slot + (slot-nodeW)/2,
			Y:      top + float64(i)*rowStep,
			Width:  nodeW,
			Height: nodeH,
		}
		if prev != nil {
			out = append(out, canvas.Element{
				Color: connectorColor,
				Size:  connectorSize,
				Shape: canvas.Line{
					From: canvas.Point{X: prev.X + prev.Width, Y: prev.Y + prev.Height/2},
					To:   canvas.Point{X: r.X, Y: r.Y + r.Height/2},
				},
			})
		}
		out = append(out, canvas.Element{Color: pointColor(p, i), Size: 1, Shape: r})
		prev = &r
	}
	return out
}

// mindmapLayout puts the topic disc in the center and spreads the nodes on a
// ring around it, starting at twelve o'clock.
func (x *Executor) mindmapLayout(points []DataPoint) []canvas.Element {
	cx, cy := x.width/2, x.height/2
	ring := math.Min(x.width, x.height)/2 - layoutMargin - 40
	center := canvas.Element{Color: "#18181b", Size: 1, Shape: canvas.Circle{X: cx, Y: cy, Radius: 70}}

	var lines, nodes []canvas.Element
	for i, p := range points {
		angle := 2*math.Pi*float64(i)/float64(len(points)) - math.Pi/2
		nx, ny := cx+ring*math.Cos(angle), cy+ring*math.Sin(angle)
		lines = append(lines, canvas.Element{
			Color: connectorColor,
			Size:  connectorSize,
			Shape: canvas.Line{From: canvas.Point{X: cx, Y: cy}, To: canvas.Point{X: nx, Y: ny}},
		})
		nodes = append(nodes, canvas.Element{Color: pointColor(p, i), Size: 1, Shape: canvas.Circle{X: nx, Y: ny, Radius: 40}})
	}
	out := append(lines, center)
	return append(out, nodes...)
}

// comparisonLayout draws one column per point with dividers between them.
func (x *Executor) comparisonLayout(points []DataPoint) []canvas.Element {
	const gap = 24
	n := float64(len(points))
	colW := (x.width - 2*layoutMargin - gap*(n-1)) / n
	top := float64(layoutMargin + 40)
	height := x.height - top - layoutMargin

	var out []canvas.Element
	for i, p := range points {
		left := layoutMargin + float64(i)*(colW+gap)
		out = append(out,
			canvas.Element{Color: pointColor(p, i), Size: 1, Shape: canvas.Rect{X: left, Y: top, Width: colW, Height: 48}},
			canvas.Element{Color: "#f4f4f5", Size: 1, Shape: canvas.Rect{X: left, Y: top + 56, Width: colW, Height: height - 56}},
		)
		if i > 0 {
			dx := left - gap/2
			out = append(out, canvas.Element{
				Color: connectorColor,
				Size:  2,
				Shape: canvas.Line{From: canvas.Point{X: dx, Y: top}, To: canvas.Point{X: dx, Y: top + height}},
			})
		}
	}
	return out
}
