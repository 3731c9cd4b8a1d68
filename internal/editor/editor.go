// Package editor holds the application state of one canvas document and
// turns pointer input and layer commands into committed history steps.
package editor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/rs/zerolog"

	"pdfpro/api/internal/canvas"
	"pdfpro/api/internal/render"
	"pdfpro/api/internal/util"
)

var (
	ErrNoActiveLayer = errors.New("no active layer")
	ErrInvalidTool   = errors.New("invalid tool")
	ErrEmptyElement  = errors.New("element has no paintable geometry")
)

// Reason says why a Change was emitted.
type Reason string

const (
	ReasonEdit    Reason = "edit"
	ReasonUndo    Reason = "undo"
	ReasonRedo    Reason = "redo"
	ReasonRestore Reason = "restore"
	ReasonImage   Reason = "image"
)

// Change is delivered to listeners after the document changed.
type Change struct {
	Reason        Reason `json:"reason"`
	HistoryIndex  int    `json:"historyIndex"`
	HistoryLen    int    `json:"historyLength"`
	ActiveLayerID string `json:"activeLayerId"`
}

type Config struct {
	Width        int
	Height       int
	HistoryLimit int
	EraserColor  string
}

// Editor is not safe for concurrent use. Run it behind a Loop when more than
// one goroutine needs it.
type Editor struct {
	stack      *canvas.Stack
	history    *canvas.History
	text       string
	tool       Tool
	gesture    *gesture
	compositor *render.Compositor
	listeners  []func(Change)

	now       func() time.Time
	elementID func() string
	stackOpts []canvas.StackOption
	log       zerolog.Logger
}

type Option func(*Editor)

func WithClock(now func() time.Time) Option {
	return func(e *Editor) { e.now = now }
}

func WithElementIDs(fn func() string) Option {
	return func(e *Editor) { e.elementID = fn }
}

func WithStackOptions(opts ...canvas.StackOption) Option {
	return func(e *Editor) { e.stackOpts = append(e.stackOpts, opts...) }
}

func WithLogger(log zerolog.Logger) Option {
	return func(e *Editor) { e.log = log }
}

// New returns an editor over an empty stack. The initial state is committed
// so history starts at index 0.
func New(cfg Config, compositor *render.Compositor, opts ...Option) *Editor {
	e := &Editor{
		tool:       DefaultTool(),
		compositor: compositor,
		now:        time.Now,
		elementID:  func() string { return util.NewID("el") },
		log:        zerolog.Nop(),
	}
	if cfg.EraserColor != "" {
		e.tool.EraserColor = cfg.EraserColor
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.compositor == nil {
		width, height := cfg.Width, cfg.Height
		if width <= 0 || height <= 0 {
			width, height = 1200, 800
		}
		e.compositor = render.NewCompositor(width, height, nil, e.log)
	}
	e.stack = canvas.NewStack(e.stackOpts...)
	e.history = canvas.NewHistory(cfg.HistoryLimit)
	e.history.Commit(e.snapshot())
	return e
}

// OnChange registers a listener. Listeners run synchronously on the editor
// goroutine and must not call back into the editor.
func (e *Editor) OnChange(fn func(Change)) {
	e.listeners = append(e.listeners, fn)
}

func (e *Editor) snapshot() canvas.Snapshot {
	return canvas.NewSnapshot(e.stack, e.text)
}

func (e *Editor) commit(reason Reason) {
	if !e.history.Commit(e.snapshot()) {
		return
	}
	e.notify(reason)
}

func (e *Editor) notify(reason Reason) {
	c := Change{
		Reason:        reason,
		HistoryIndex:  e.history.Index(),
		HistoryLen:    e.history.Len(),
		ActiveLayerID: e.stack.ActiveLayerID(),
	}
	for _, fn := range e.listeners {
		fn(c)
	}
}

func (e *Editor) newElement(shape canvas.Shape) canvas.Element {
	return canvas.Element{
		ID:        e.elementID(),
		Color:     e.tool.strokeColor(),
		Size:      e.tool.Size,
		CreatedAt: e.now().UTC(),
		Shape:     shape,
	}
}

// Layer commands. Each one commits only when it changed something.

func (e *Editor) AddLayer(name string) string {
	id := e.stack.AddLayer(name)
	e.commit(ReasonEdit)
	return id
}

func (e *Editor) RemoveLayer(id string) bool {
	return e.commitIf(e.stack.RemoveLayer(id))
}

func (e *Editor) SetLayerVisible(id string, visible bool) bool {
	layer, ok := e.stack.Layer(id)
	if !ok || layer.Visible == visible {
		return false
	}
	return e.commitIf(e.stack.SetVisible(id, visible))
}

func (e *Editor) SetLayerLocked(id string, locked bool) bool {
	layer, ok := e.stack.Layer(id)
	if !ok || layer.Locked == locked {
		return false
	}
	return e.commitIf(e.stack.SetLocked(id, locked))
}

func (e *Editor) RenameLayer(id, name string) bool {
	layer, ok := e.stack.Layer(id)
	if !ok || layer.Name == name {
		return false
	}
	return e.commitIf(e.stack.RenameLayer(id, name))
}

func (e *Editor) MoveLayer(id string, index int) bool {
	return e.commitIf(e.stack.MoveLayer(id, index))
}

func (e *Editor) SetActiveLayer(id string) bool {
	return e.commitIf(e.stack.SetActive(id))
}

func (e *Editor) commitIf(changed bool) bool {
	if changed {
		e.commit(ReasonEdit)
	}
	return changed
}

// InsertElement appends a ready-made element. An empty layerID targets the
// active layer. Missing ids and timestamps are filled in.
func (e *Editor) InsertElement(layerID string, el canvas.Element) (canvas.Element, error) {
	if layerID == "" {
		layerID = e.stack.ActiveLayerID()
		if layerID == "" {
			return canvas.Element{}, ErrNoActiveLayer
		}
	}
	if !el.Paintable() {
		return canvas.Element{}, ErrEmptyElement
	}
	e.fillElement(&el)
	if err := e.stack.AppendElement(layerID, el); err != nil {
		return canvas.Element{}, err
	}
	e.commit(ReasonEdit)
	return el, nil
}

// InsertLayer adds a layer filled with elements as a single history step.
func (e *Editor) InsertLayer(name string, elements []canvas.Element) (string, error) {
	id := e.stack.AddLayer(name)
	for _, el := range elements {
		if !el.Paintable() {
			continue
		}
		e.fillElement(&el)
		if err := e.stack.AppendElement(id, el); err != nil {
			return "", fmt.Errorf("insert layer %q: %w", name, err)
		}
	}
	e.commit(ReasonEdit)
	return id, nil
}

func (e *Editor) fillElement(el *canvas.Element) {
	if el.ID == "" {
		el.ID = e.elementID()
	}
	if el.CreatedAt.IsZero() {
		el.CreatedAt = e.now().UTC()
	}
	if el.Size <= 0 {
		el.Size = e.tool.Size
	}
	if el.Color == "" {
		el.Color = e.tool.Color
	}
}

func (e *Editor) RemoveElement(layerID, elementID string) error {
	if err := e.stack.RemoveElement(layerID, elementID); err != nil {
		return err
	}
	e.commit(ReasonEdit)
	return nil
}

// SetText replaces the rich-text content; it is part of every snapshot.
func (e *Editor) SetText(text string) bool {
	if text == e.text {
		return false
	}
	e.text = text
	e.commit(ReasonEdit)
	return true
}

func (e *Editor) Text() string { return e.text }

// Tool state is not part of history.

func (e *Editor) Tool() Tool { return e.tool }

func (e *Editor) SetMode(m Mode) error {
	if _, err := ParseMode(string(m)); err != nil {
		return err
	}
	if m != e.tool.Mode {
		e.gesture = nil
	}
	e.tool.Mode = m
	return nil
}

func (e *Editor) SetColor(color string) {
	if color != "" {
		e.tool.Color = color
	}
}

func (e *Editor) SetSize(size float64) error {
	if size <= 0 {
		return fmt.Errorf("%w: size must be positive", ErrInvalidTool)
	}
	e.tool.Size = size
	return nil
}

func (e *Editor) SetTool(t Tool) error {
	if err := e.SetMode(t.Mode); err != nil {
		return err
	}
	if t.Size != 0 {
		if err := e.SetSize(t.Size); err != nil {
			return err
		}
	}
	e.SetColor(t.Color)
	if t.EraserColor != "" {
		e.tool.EraserColor = t.EraserColor
	}
	return nil
}

// Undo restores the previous snapshot. Nothing is committed while it is
// applied.
func (e *Editor) Undo() bool {
	if !e.history.Undo(e.apply) {
		return false
	}
	e.notify(ReasonUndo)
	return true
}

func (e *Editor) Redo() bool {
	if !e.history.Redo(e.apply) {
		return false
	}
	e.notify(ReasonRedo)
	return true
}

func (e *Editor) apply(s canvas.Snapshot) {
	e.gesture = nil
	e.stack.Reset(s.Layers, s.ActiveLayerID)
	e.text = s.Text
}

// Restore loads persisted state and makes it the only history entry.
func (e *Editor) Restore(s canvas.Snapshot) {
	e.apply(s)
	e.history.Reset(e.snapshot())
	e.notify(ReasonRestore)
}

// ImageLoaded tells listeners a background image finished loading and the
// composite is stale.
func (e *Editor) ImageLoaded(ref string) {
	e.notify(ReasonImage)
}

// Read side.

func (e *Editor) Snapshot() canvas.Snapshot            { return e.snapshot() }
func (e *Editor) Layers() []canvas.Layer               { return e.stack.Layers() }
func (e *Editor) Layer(id string) (canvas.Layer, bool) { return e.stack.Layer(id) }
func (e *Editor) ActiveLayerID() string                { return e.stack.ActiveLayerID() }
func (e *Editor) HistoryIndex() int                    { return e.history.Index() }
func (e *Editor) HistoryLen() int                      { return e.history.Len() }
func (e *Editor) HistoryMode() canvas.Mode             { return e.history.Mode() }
func (e *Editor) CanUndo() bool                        { return e.history.CanUndo() }
func (e *Editor) CanRedo() bool                        { return e.history.CanRedo() }
func (e *Editor) Compositor() *render.Compositor       { return e.compositor }

func (e *Editor) Composite() *image.RGBA {
	return e.compositor.Composite(e.stack.View())
}

func (e *Editor) Overlay() *image.RGBA {
	return e.compositor.Overlay(e.Preview())
}

// EncodePNG waits for image elements to load and writes the composite.
// Callers running inside a Loop should copy Layers and render outside it.
func (e *Editor) EncodePNG(ctx context.Context, w io.Writer) error {
	return e.compositor.EncodePNG(ctx, w, e.stack.View())
}
