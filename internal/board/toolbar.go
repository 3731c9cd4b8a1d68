package board

import (
	"context"
	"image/color"
	"time"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"pdfpro/api/internal/canvas"
	"pdfpro/api/internal/editor"
	"pdfpro/api/internal/render"
)

var palette = []string{"#000000", "#6366f1", "#ef4444", "#22c55e", "#3b82f6", "#eab308"}

var modes = []editor.Mode{
	editor.ModeBrush,
	editor.ModeEraser,
	editor.ModeRect,
	editor.ModeCircle,
	editor.ModeLine,
	editor.ModeSelect,
}

type colorSwatch struct {
	widget.BaseWidget
	hex      string
	OnTapped func(string)
}

func newColorSwatch(hex string, tapped func(string)) *colorSwatch {
	s := &colorSwatch{hex: hex, OnTapped: tapped}
	s.ExtendBaseWidget(s)
	return s
}

func (s *colorSwatch) CreateRenderer() fyne.WidgetRenderer {
	rect := fynecanvas.NewRectangle(render.ParseColor(s.hex).Color())
	rect.SetMinSize(fyne.NewSize(28, 28))

	border := fynecanvas.NewRectangle(color.Transparent)
	border.StrokeColor = color.Gray{Y: 150}
	border.StrokeWidth = 1

	return widget.NewSimpleRenderer(container.NewStack(rect, border))
}

func (s *colorSwatch) Tapped(*fyne.PointEvent) {
	if s.OnTapped != nil {
		s.OnTapped(s.hex)
	}
}

// layerControls tracks the active layer of the board in the toolbar.
type layerControls struct {
	board   *Board
	selects *widget.Select
	visible *widget.Check
	locked  *widget.Check
	ids     []string
	// syncing suppresses callbacks while the widgets are being updated.
	syncing bool
}

func newLayerControls(b *Board) *layerControls {
	lc := &layerControls{board: b}
	lc.selects = widget.NewSelect(nil, func(name string) {
		if lc.syncing {
			return
		}
		idx := lc.selects.SelectedIndex()
		if idx < 0 || idx >= len(lc.ids) {
			return
		}
		id := lc.ids[idx]
		b.Apply(func(ed *editor.Editor) { ed.SetActiveLayer(id) })
		lc.sync()
	})
	lc.visible = widget.NewCheck("Visible", func(on bool) {
		if lc.syncing {
			return
		}
		b.Apply(func(ed *editor.Editor) { ed.SetLayerVisible(ed.ActiveLayerID(), on) })
	})
	lc.locked = widget.NewCheck("Locked", func(on bool) {
		if lc.syncing {
			return
		}
		b.Apply(func(ed *editor.Editor) { ed.SetLayerLocked(ed.ActiveLayerID(), on) })
	})
	return lc
}

// sync reads the layer stack from the loop and updates the widgets. It must
// run on the fyne goroutine.
func (lc *layerControls) sync() {
	var layers []canvas.Layer
	var active string
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	err := lc.board.Loop().Do(ctx, func(ed *editor.Editor) error {
		layers = ed.Layers()
		active = ed.ActiveLayerID()
		return nil
	})
	if err != nil {
		return
	}

	lc.syncing = true
	defer func() { lc.syncing = false }()

	names := make([]string, len(layers))
	lc.ids = make([]string, len(layers))
	for i, layer := range layers {
		names[i] = layer.Name
		lc.ids[i] = layer.ID
	}
	lc.selects.SetOptions(names)
	for i, layer := range layers {
		if layer.ID != active {
			continue
		}
		lc.selects.SetSelectedIndex(i)
		lc.visible.SetChecked(layer.Visible)
		lc.locked.SetChecked(layer.Locked)
	}
}

func (lc *layerControls) object() fyne.CanvasObject {
	return container.NewHBox(
		widget.NewLabel("Layer:"),
		container.New(layout.NewGridWrapLayout(fyne.NewSize(140, 35)), lc.selects),
		lc.visible,
		lc.locked,
	)
}

// Actions are the toolbar entries that leave the board: files and the
// network.
type Actions struct {
	Save      func()
	ExportPNG func()
	ExportPDF func()
	Discover  func()
}

func newToolbar(b *Board, lc *layerControls, actions Actions) fyne.CanvasObject {
	tb := widget.NewToolbar(
		widget.NewToolbarAction(theme.ContentUndoIcon(), func() {
			b.Apply(func(ed *editor.Editor) { ed.Undo() })
			lc.sync()
		}),
		widget.NewToolbarAction(theme.ContentRedoIcon(), func() {
			b.Apply(func(ed *editor.Editor) { ed.Redo() })
			lc.sync()
		}),
		widget.NewToolbarAction(theme.ContentAddIcon(), func() {
			b.Apply(func(ed *editor.Editor) { ed.AddLayer("") })
			lc.sync()
		}),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.DocumentSaveIcon(), actions.Save),
		widget.NewToolbarAction(theme.FileImageIcon(), actions.ExportPNG),
		widget.NewToolbarAction(theme.DocumentPrintIcon(), actions.ExportPDF),
		widget.NewToolbarAction(theme.SearchIcon(), actions.Discover),
	)

	names := make([]string, len(modes))
	for i, m := range modes {
		names[i] = string(m)
	}
	modeSelect := widget.NewSelect(names, func(name string) {
		mode, err := editor.ParseMode(name)
		if err != nil {
			return
		}
		b.Apply(func(ed *editor.Editor) {
			if err := ed.SetMode(mode); err != nil {
				b.log.Warn().Err(err).Msg("set mode")
			}
		})
	})
	modeSelect.SetSelected(string(editor.ModeBrush))

	swatches := container.NewHBox()
	for _, hex := range palette {
		swatches.Add(newColorSwatch(hex, func(hex string) {
			b.Apply(func(ed *editor.Editor) { ed.SetColor(hex) })
		}))
	}

	sizeSlider := widget.NewSlider(1, 50)
	sizeSlider.SetValue(editor.DefaultSize)
	sizeSlider.OnChanged = func(v float64) {
		b.Apply(func(ed *editor.Editor) {
			if err := ed.SetSize(v); err != nil {
				b.log.Warn().Err(err).Float64("size", v).Msg("set size")
			}
		})
	}

	return container.NewVBox(
		container.NewHBox(
			tb,
			widget.NewSeparator(),
			widget.NewLabel("Tool:"),
			modeSelect,
			widget.NewSeparator(),
			swatches,
			widget.NewSeparator(),
			widget.NewLabel("Size:"),
			container.New(layout.NewGridWrapLayout(fyne.NewSize(150, 35)), sizeSlider),
			layout.NewSpacer(),
		),
		lc.object(),
	)
}
