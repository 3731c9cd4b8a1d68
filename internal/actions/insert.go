package actions

import (
	"encoding/json"
	"fmt"
	"strings"

	"pdfpro/api/internal/canvas"
	"pdfpro/api/internal/workspace"
)

// EditorNotesTitle names the group that receives inserted text, since the
// canvas has no text primitive.
const EditorNotesTitle = "Editor Notes"

type insertArgs struct {
	Type    string `json:"type"`
	Content string `json:"content"`
	Style   struct {
		Color string `json:"color"`
	} `json:"style"`
}

func (x *Executor) insertElement(env *Env, raw json.RawMessage) (result, error) {
	var args insertArgs
	if err := decodeArgs(raw, &args); err != nil {
		return result{}, err
	}
	cx, cy := x.width/2, x.height/2

	var shape canvas.Shape
	switch canvas.Kind(args.Type) {
	case canvas.KindRect:
		shape = canvas.Rect{X: cx - 100, Y: cy - 60, Width: 200, Height: 120}
	case canvas.KindCircle:
		shape = canvas.Circle{X: cx, Y: cy, Radius: 60}
	case canvas.KindLine:
		shape = canvas.Line{From: canvas.Point{X: cx - 120, Y: cy}, To: canvas.Point{X: cx + 120, Y: cy}}
	case canvas.KindImage:
		ref := strings.TrimSpace(args.Content)
		if !isImageRef(ref) {
			return result{}, invalid("image content must be a data, blob or http url")
		}
		shape = canvas.Image{X: cx - 160, Y: cy - 120, Width: 320, Height: 240, Ref: ref}
	case "text":
		return insertText(env, args.Content)
	default:
		return result{}, invalid("unknown element type %q", args.Type)
	}

	el, err := env.Editor.InsertElement("", canvas.Element{Color: args.Style.Color, Shape: shape})
	if err != nil {
		return result{}, err
	}
	return result{
		summary: fmt.Sprintf("Inserted %s into the active layer", el.Kind()),
		layerID: env.Editor.ActiveLayerID(),
	}, nil
}

func insertText(env *Env, content string) (result, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return result{}, invalid("text content is required")
	}
	if env.Notes == nil {
		return result{}, fmt.Errorf("%w: notebook", ErrTargetNotFound)
	}
	group, ok := env.Notes.FindGroupByTitle(EditorNotesTitle)
	if !ok {
		group = env.Notes.CreateGroup(EditorNotesTitle, workspace.NoteText)
	}
	env.Notes.AddItem(group.ID, content)
	return result{summary: "Added text to " + EditorNotesTitle}, nil
}

func isImageRef(ref string) bool {
	for _, prefix := range []string{"data:image/", "blob://", "http://", "https://"} {
		if strings.HasPrefix(ref, prefix) {
			return true
		}
	}
	return false
}
