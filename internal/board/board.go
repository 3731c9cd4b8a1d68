// Package board is the desktop client: a fyne widget that drives an editor
// loop with the mouse and shows the composited canvas.
package board

import (
	"image"
	"image/color"
	"image/draw"
	"sync"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"
	"github.com/rs/zerolog"

	"pdfpro/api/internal/canvas"
	"pdfpro/api/internal/editor"
)

// Board shows the composite plus the gesture preview and forwards pointer
// input to the editor loop.
type Board struct {
	widget.BaseWidget

	loop          *editor.Loop
	width, height int
	log           zerolog.Logger

	// stale belongs to the loop goroutine.
	stale bool

	mu        sync.Mutex
	composite *image.RGBA
	overlay   *image.RGBA
	pressed   bool

	// refresh repaints from any goroutine.
	refresh func()
	// onChanged belongs to the loop goroutine.
	onChanged func(editor.Change)
}

var _ fyne.Widget = (*Board)(nil)
var _ fyne.Draggable = (*Board)(nil)
var _ desktop.Mouseable = (*Board)(nil)
var _ desktop.Hoverable = (*Board)(nil)

func NewBoard(ed *editor.Editor, log zerolog.Logger) *Board {
	width, height := ed.Compositor().Size()
	b := &Board{
		width:  width,
		height: height,
		log:    log.With().Str("component", "board").Logger(),
		stale:  true,
	}
	b.refresh = func() { fyne.Do(b.Refresh) }
	ed.OnChange(func(c editor.Change) {
		b.stale = true
		if c.Reason == editor.ReasonImage {
			go b.redraw()
		}
		if b.onChanged != nil {
			b.onChanged(c)
		}
	})
	b.loop = editor.NewLoop(ed)
	b.ExtendBaseWidget(b)
	b.redraw()
	return b
}

func (b *Board) Loop() *editor.Loop { return b.loop }

// SetOnChanged registers fn to run after every change. fn runs on the loop
// goroutine and must not call back into the editor.
func (b *Board) SetOnChanged(fn func(editor.Change)) {
	b.loop.Post(func(*editor.Editor) { b.onChanged = fn })
}

// Apply runs fn on the loop and repaints afterwards.
func (b *Board) Apply(fn func(*editor.Editor)) {
	b.loop.Post(func(ed *editor.Editor) {
		fn(ed)
		b.paint(ed)
	})
}

func (b *Board) redraw() {
	b.Apply(func(*editor.Editor) {})
}

// paint runs on the loop. The composite is only rebuilt after a change; the
// overlay is cheap and redrawn every time.
func (b *Board) paint(ed *editor.Editor) {
	overlay := ed.Overlay()
	var composite *image.RGBA
	if b.stale {
		composite = ed.Composite()
		b.stale = false
	}

	b.mu.Lock()
	b.overlay = overlay
	if composite != nil {
		b.composite = composite
	}
	b.mu.Unlock()
	b.refresh()
}

// Frame returns the canvas as the user sees it: the composite and the
// gesture preview over white paper.
func (b *Board) Frame() image.Image {
	frame := image.NewRGBA(image.Rect(0, 0, b.width, b.height))
	draw.Draw(frame, frame.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.composite != nil {
		draw.Draw(frame, frame.Bounds(), b.composite, image.Point{}, draw.Over)
	}
	if b.overlay != nil {
		draw.Draw(frame, frame.Bounds(), b.overlay, image.Point{}, draw.Over)
	}
	return frame
}

// toCanvas maps a widget position to canvas coordinates; the raster is
// stretched over the widget.
func (b *Board) toCanvas(pos fyne.Position) canvas.Point {
	size := b.Size()
	if size.Width <= 0 || size.Height <= 0 {
		return canvas.Point{X: float64(pos.X), Y: float64(pos.Y)}
	}
	return canvas.Point{
		X: float64(pos.X) * float64(b.width) / float64(size.Width),
		Y: float64(pos.Y) * float64(b.height) / float64(size.Height),
	}
}

func (b *Board) MouseDown(e *desktop.MouseEvent) {
	if e.Button != desktop.MouseButtonPrimary {
		return
	}
	p := b.toCanvas(e.Position)
	b.mu.Lock()
	b.pressed = true
	b.mu.Unlock()
	b.Apply(func(ed *editor.Editor) { ed.PointerDown(p) })
}

func (b *Board) MouseUp(e *desktop.MouseEvent) {
	if e.Button != desktop.MouseButtonPrimary {
		return
	}
	p := b.toCanvas(e.Position)
	b.mu.Lock()
	b.pressed = false
	b.mu.Unlock()
	b.Apply(func(ed *editor.Editor) {
		if el, ok := ed.PointerUp(p); ok {
			b.log.Debug().Str("kind", string(el.Kind())).Str("element", el.ID).Msg("element drawn")
		}
	})
}

func (b *Board) Dragged(e *fyne.DragEvent) {
	p := b.toCanvas(e.Position)
	b.Apply(func(ed *editor.Editor) { ed.PointerMove(p) })
}

func (b *Board) DragEnd() {}

func (b *Board) MouseIn(*desktop.MouseEvent) {}

func (b *Board) MouseMoved(e *desktop.MouseEvent) {
	b.mu.Lock()
	pressed := b.pressed
	b.mu.Unlock()
	if !pressed {
		return
	}
	p := b.toCanvas(e.Position)
	b.Apply(func(ed *editor.Editor) { ed.PointerMove(p) })
}

// MouseOut abandons the gesture in progress.
func (b *Board) MouseOut() {
	b.mu.Lock()
	b.pressed = false
	b.mu.Unlock()
	b.Apply(func(ed *editor.Editor) { ed.PointerLeave() })
}

func (b *Board) CreateRenderer() fyne.WidgetRenderer {
	raster := fynecanvas.NewRaster(func(int, int) image.Image { return b.Frame() })
	raster.ScaleMode = fynecanvas.ImageScaleSmooth
	return &boardRenderer{board: b, raster: raster}
}

type boardRenderer struct {
	board  *Board
	raster *fynecanvas.Raster
}

func (r *boardRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.raster}
}

func (r *boardRenderer) Layout(size fyne.Size) {
	r.raster.Resize(size)
}

func (r *boardRenderer) MinSize() fyne.Size {
	return fyne.NewSize(float32(r.board.width)/2, float32(r.board.height)/2)
}

func (r *boardRenderer) Refresh() {
	r.raster.Refresh()
}

func (r *boardRenderer) Destroy() {}
