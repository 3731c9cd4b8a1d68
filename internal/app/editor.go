package app

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"
	"io"
	"net/http"
	"strings"
	"time"

	"pdfpro/api/internal/actions"
	"pdfpro/api/internal/canvas"
	"pdfpro/api/internal/editor"
	"pdfpro/api/internal/export"
	"pdfpro/api/internal/store"
	"pdfpro/api/internal/util"
	"pdfpro/api/internal/workspace"
)

const maxUploadBytes = 20 << 20

// WorkspaceView is what editing endpoints return: the persisted state plus
// the transient editor state a client needs to render its controls.
type WorkspaceView struct {
	State         workspace.State `json:"state"`
	Tool          editor.Tool     `json:"tool"`
	HistoryIndex  int             `json:"historyIndex"`
	HistoryLength int             `json:"historyLength"`
	CanUndo       bool            `json:"canUndo"`
	CanRedo       bool            `json:"canRedo"`
	Drawing       bool            `json:"drawing"`
}

func (ws *userWorkspace) view(ed *editor.Editor) WorkspaceView {
	return WorkspaceView{
		State:         ws.state(ed),
		Tool:          ed.Tool(),
		HistoryIndex:  ed.HistoryIndex(),
		HistoryLength: ed.HistoryLen(),
		CanUndo:       ed.CanUndo(),
		CanRedo:       ed.CanRedo(),
		Drawing:       ed.Drawing(),
	}
}

// edit runs fn and returns the resulting view.
func (s *Service) edit(ctx context.Context, userID string, fn func(*userWorkspace, *editor.Editor) error) (WorkspaceView, error) {
	var view WorkspaceView
	err := s.run(ctx, userID, func(ws *userWorkspace, ed *editor.Editor) error {
		if err := fn(ws, ed); err != nil {
			return err
		}
		view = ws.view(ed)
		return nil
	})
	return view, err
}

func (s *Service) Workspace(ctx context.Context, userID string) (WorkspaceView, error) {
	return s.edit(ctx, userID, func(*userWorkspace, *editor.Editor) error { return nil })
}

func (s *Service) AddLayer(ctx context.Context, userID, name string) (WorkspaceView, error) {
	return s.edit(ctx, userID, func(_ *userWorkspace, ed *editor.Editor) error {
		ed.AddLayer(strings.TrimSpace(name))
		return nil
	})
}

// LayerPatch carries the layer properties to change; nil fields are left
// alone.
type LayerPatch struct {
	Name    *string `json:"name"`
	Visible *bool   `json:"visible"`
	Locked  *bool   `json:"locked"`
}

func (s *Service) UpdateLayer(ctx context.Context, userID, layerID string, patch LayerPatch) (WorkspaceView, error) {
	if patch.Name != nil && strings.TrimSpace(*patch.Name) == "" {
		return WorkspaceView{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name cannot be empty", nil)
	}
	return s.edit(ctx, userID, func(_ *userWorkspace, ed *editor.Editor) error {
		if _, ok := ed.Layer(layerID); !ok {
			return layerNotFound(layerID)
		}
		if patch.Name != nil {
			ed.RenameLayer(layerID, strings.TrimSpace(*patch.Name))
		}
		if patch.Visible != nil {
			ed.SetLayerVisible(layerID, *patch.Visible)
		}
		if patch.Locked != nil {
			ed.SetLayerLocked(layerID, *patch.Locked)
		}
		return nil
	})
}

func (s *Service) RemoveLayer(ctx context.Context, userID, layerID string) (WorkspaceView, error) {
	return s.edit(ctx, userID, func(_ *userWorkspace, ed *editor.Editor) error {
		if !ed.RemoveLayer(layerID) {
			return layerNotFound(layerID)
		}
		return nil
	})
}

// MoveLayer moves a layer to a storage index; index 0 is the top layer.
func (s *Service) MoveLayer(ctx context.Context, userID, layerID string, index int) (WorkspaceView, error) {
	return s.edit(ctx, userID, func(_ *userWorkspace, ed *editor.Editor) error {
		if _, ok := ed.Layer(layerID); !ok {
			return layerNotFound(layerID)
		}
		ed.MoveLayer(layerID, index)
		return nil
	})
}

func (s *Service) ActivateLayer(ctx context.Context, userID, layerID string) (WorkspaceView, error) {
	return s.edit(ctx, userID, func(_ *userWorkspace, ed *editor.Editor) error {
		if _, ok := ed.Layer(layerID); !ok {
			return layerNotFound(layerID)
		}
		ed.SetActiveLayer(layerID)
		return nil
	})
}

type ToolPatch struct {
	Mode        string  `json:"mode"`
	Color       string  `json:"color"`
	Size        float64 `json:"size"`
	EraserColor string  `json:"eraserColor"`
}

func (s *Service) SetTool(ctx context.Context, userID string, patch ToolPatch) (editor.Tool, error) {
	var tool editor.Tool
	err := s.run(ctx, userID, func(_ *userWorkspace, ed *editor.Editor) error {
		next := ed.Tool()
		if patch.Mode != "" {
			mode, err := editor.ParseMode(patch.Mode)
			if err != nil {
				return err
			}
			next.Mode = mode
		}
		next.Color = patch.Color
		next.Size = patch.Size
		next.EraserColor = patch.EraserColor
		if err := ed.SetTool(next); err != nil {
			return err
		}
		tool = ed.Tool()
		return nil
	})
	return tool, err
}

const (
	PointerDown  = "down"
	PointerMove  = "move"
	PointerUp    = "up"
	PointerLeave = "leave"
)

type PointerInput struct {
	Type string  `json:"type"`
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
}

type PointerResult struct {
	Drawing bool            `json:"drawing"`
	Element *canvas.Element `json:"element,omitempty"`
	View    *WorkspaceView  `json:"workspace,omitempty"`
}

// Pointer feeds one pointer event into the gesture pipeline. The full view is
// returned only when a gesture produced an element.
func (s *Service) Pointer(ctx context.Context, userID string, in PointerInput) (PointerResult, error) {
	var out PointerResult
	p := canvas.Point{X: in.X, Y: in.Y}
	err := s.run(ctx, userID, func(ws *userWorkspace, ed *editor.Editor) error {
		switch in.Type {
		case PointerDown:
			ed.PointerDown(p)
		case PointerMove:
			ed.PointerMove(p)
		case PointerUp:
			if el, ok := ed.PointerUp(p); ok {
				out.Element = &el
				view := ws.view(ed)
				out.View = &view
			}
		case PointerLeave:
			ed.PointerLeave()
		default:
			return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "type must be down, move, up or leave", map[string]any{"type": in.Type})
		}
		out.Drawing = ed.Drawing()
		return nil
	})
	return out, err
}

func (s *Service) Undo(ctx context.Context, userID string) (WorkspaceView, error) {
	return s.edit(ctx, userID, func(_ *userWorkspace, ed *editor.Editor) error {
		ed.Undo()
		return nil
	})
}

func (s *Service) Redo(ctx context.Context, userID string) (WorkspaceView, error) {
	return s.edit(ctx, userID, func(_ *userWorkspace, ed *editor.Editor) error {
		ed.Redo()
		return nil
	})
}

func (s *Service) SetText(ctx context.Context, userID, text string) (WorkspaceView, error) {
	return s.edit(ctx, userID, func(_ *userWorkspace, ed *editor.Editor) error {
		ed.SetText(text)
		return nil
	})
}

type ActionResult struct {
	Outcome   actions.Outcome `json:"outcome"`
	Workspace WorkspaceView   `json:"workspace"`
}

// ExecuteAction runs a named agent action. Failed actions are still recorded
// in the task log, so the workspace is saved either way.
func (s *Service) ExecuteAction(ctx context.Context, userID, name string, args json.RawMessage) (ActionResult, error) {
	var out ActionResult
	err := s.run(ctx, userID, func(ws *userWorkspace, ed *editor.Editor) error {
		env := &actions.Env{Editor: ed, Notes: ws.notes, Tasks: ws.tasks}
		outcome, err := s.actions.Execute(ctx, env, name, args)
		ws.changed = true
		out.Outcome = outcome
		out.Workspace = ws.view(ed)
		return err
	})
	return out, err
}

type ImageUpload struct {
	ContentType string
	Data        []byte
	X, Y        float64
	// Width and Height default to the image size scaled to fit the canvas.
	Width, Height float64
}

type UploadResult struct {
	Image   ImageResponse  `json:"image"`
	Element canvas.Element `json:"element"`
	View    WorkspaceView  `json:"workspace"`
}

type ImageResponse struct {
	ID          string `json:"id"`
	Locator     string `json:"locator"`
	ContentType string `json:"contentType"`
	SizeBytes   int64  `json:"sizeBytes"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
	CreatedAt   string `json:"createdAt"`
}

func toImageResponse(img store.ImageRecord) ImageResponse {
	return ImageResponse{
		ID:          img.ID,
		Locator:     img.Locator,
		ContentType: img.ContentType,
		SizeBytes:   img.SizeBytes,
		Width:       img.Width,
		Height:      img.Height,
		CreatedAt:   img.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// UploadImage stores an image in object storage and places it on the active
// layer.
func (s *Service) UploadImage(ctx context.Context, userID string, up ImageUpload) (UploadResult, error) {
	if s.blobs == nil {
		return UploadResult{}, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "image storage is not configured", nil)
	}
	if len(up.Data) == 0 {
		return UploadResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "image is empty", nil)
	}
	if len(up.Data) > maxUploadBytes {
		return UploadResult{}, domainError(http.StatusRequestEntityTooLarge, "TOO_LARGE", "image exceeds 20 MiB", nil)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(up.Data))
	if err != nil {
		return UploadResult{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "unsupported image", map[string]any{"error": err.Error()})
	}
	contentType := up.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = "image/" + format
	}

	locator, err := s.blobs.Put(ctx, userID, contentType, up.Data)
	if err != nil {
		return UploadResult{}, err
	}
	rec, err := s.store.InsertImage(ctx, store.ImageRecord{
		ID:          util.NewID("img"),
		UserID:      userID,
		Locator:     locator,
		ContentType: contentType,
		SizeBytes:   int64(len(up.Data)),
		Width:       cfg.Width,
		Height:      cfg.Height,
	})
	if err != nil {
		return UploadResult{}, err
	}

	width, height := up.Width, up.Height
	if width <= 0 || height <= 0 {
		width, height = fitInto(float64(cfg.Width), float64(cfg.Height), float64(s.cfg.CanvasWidth), float64(s.cfg.CanvasHeight))
	}

	out := UploadResult{Image: toImageResponse(rec)}
	err = s.run(ctx, userID, func(ws *userWorkspace, ed *editor.Editor) error {
		el, err := ed.InsertElement("", canvas.Element{
			Shape: canvas.Image{X: up.X, Y: up.Y, Width: width, Height: height, Ref: locator},
		})
		if err != nil {
			return err
		}
		out.Element = el
		out.View = ws.view(ed)
		return nil
	})
	return out, err
}

func (s *Service) ListImages(ctx context.Context, userID string) ([]ImageResponse, error) {
	images, err := s.store.ListImages(ctx, userID)
	if err != nil {
		return nil, err
	}
	out := make([]ImageResponse, 0, len(images))
	for _, img := range images {
		out = append(out, toImageResponse(img))
	}
	return out, nil
}

// fitInto scales w×h down to fit inside maxW×maxH, keeping the aspect ratio.
func fitInto(w, h, maxW, maxH float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return maxW / 4, maxH / 4
	}
	scale := 1.0
	if maxW > 0 && w*scale > maxW {
		scale = maxW / w
	}
	if maxH > 0 && h*scale > maxH {
		scale = maxH / h
	}
	return w * scale, h * scale
}

// CompositePNG writes the flattened canvas. Image elements are awaited, so
// rendering happens off the loop on a copy of the layers.
func (s *Service) CompositePNG(ctx context.Context, userID string, w io.Writer) error {
	ws, layers, err := s.layers(ctx, userID)
	if err != nil {
		return err
	}
	return ws.compositor.EncodePNG(ctx, w, layers)
}

// OverlayPNG writes the preview surface of the gesture in progress.
func (s *Service) OverlayPNG(ctx context.Context, userID string, w io.Writer) error {
	var img image.Image
	err := s.run(ctx, userID, func(_ *userWorkspace, ed *editor.Editor) error {
		img = ed.Overlay()
		return nil
	})
	if err != nil {
		return err
	}
	return png.Encode(w, img)
}

func (s *Service) layers(ctx context.Context, userID string) (*userWorkspace, []canvas.Layer, error) {
	var (
		owner  *userWorkspace
		layers []canvas.Layer
	)
	err := s.run(ctx, userID, func(ws *userWorkspace, ed *editor.Editor) error {
		owner = ws
		layers = ed.Layers()
		return nil
	})
	return owner, layers, err
}

func (s *Service) snapshotState(ctx context.Context, userID string) (*userWorkspace, workspace.State, error) {
	var (
		owner *userWorkspace
		state workspace.State
	)
	err := s.run(ctx, userID, func(ws *userWorkspace, ed *editor.Editor) error {
		owner = ws
		state = ws.state(ed)
		return nil
	})
	return owner, state, err
}

func (s *Service) Export(ctx context.Context, session Session, format, title string) (*export.Result, error) {
	f, err := export.ParseFormat(format)
	if err != nil {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "format must be png, pdf, report or docx", map[string]any{"format": format})
	}
	ws, state, err := s.snapshotState(ctx, session.UserID)
	if err != nil {
		return nil, err
	}
	exporter := export.NewService(ws.compositor, ws.fetch, s.log)
	return exporter.Export(ctx, export.Request{
		Title:  title,
		Author: session.UserName,
		Format: f,
		State:  state,
	})
}

func layerNotFound(id string) error {
	return domainError(http.StatusNotFound, "NOT_FOUND", "layer not found", map[string]any{"layerId": id})
}

// mapEditorError turns model errors into domain errors.
func mapEditorError(err error) error {
	switch {
	case errors.Is(err, canvas.ErrLayerNotFound), errors.Is(err, canvas.ErrElementNotFound):
		return domainError(http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, canvas.ErrLayerLocked):
		return domainError(http.StatusConflict, "LAYER_LOCKED", "layer is locked", nil)
	case errors.Is(err, editor.ErrNoActiveLayer):
		return domainError(http.StatusConflict, "NO_ACTIVE_LAYER", "workspace has no active layer", nil)
	case errors.Is(err, editor.ErrInvalidTool), errors.Is(err, editor.ErrEmptyElement):
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, actions.ErrUnknownAction):
		return domainError(http.StatusNotFound, "UNKNOWN_ACTION", err.Error(), nil)
	case errors.Is(err, actions.ErrInvalidArguments):
		return domainError(http.StatusBadRequest, "INVALID_ARGUMENTS", err.Error(), nil)
	case errors.Is(err, actions.ErrTargetNotFound):
		return domainError(http.StatusNotFound, "NOT_FOUND", err.Error(), nil)
	case errors.Is(err, export.ErrUnsupportedFormat):
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
		return domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil)
	}
	return err
}
