package editor

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfpro/api/internal/canvas"
	"pdfpro/api/internal/render"
)

func newTestEditor(t *testing.T) *Editor {
	t.Helper()
	layerN, elementN := 0, 0
	fixed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return New(Config{Width: 100, Height: 100}, render.NewCompositor(100, 100, nil, nopLog),
		WithClock(func() time.Time { return fixed }),
		WithStackOptions(canvas.WithIDGenerator(func() string {
			layerN++
			return fmt.Sprintf("layer-%d", layerN)
		})),
		WithElementIDs(func() string {
			elementN++
			return fmt.Sprintf("el-%d", elementN)
		}),
	)
}

func TestNewEditorCommitsInitialSnapshot(t *testing.T) {
	e := newTestEditor(t)
	assert.Equal(t, 0, e.HistoryIndex())
	assert.Equal(t, 1, e.HistoryLen())
	assert.False(t, e.CanUndo())
	assert.Equal(t, DefaultTool(), e.Tool())
}

func TestRectangleGesture(t *testing.T) {
	e := newTestEditor(t)
	layerID := e.AddLayer("")
	require.NoError(t, e.SetMode(ModeRect))
	e.SetColor("red")
	require.NoError(t, e.SetSize(2))
	before := e.HistoryIndex()

	require.True(t, e.PointerDown(canvas.Point{X: 10, Y: 10}))
	require.True(t, e.PointerMove(canvas.Point{X: 30, Y: 25}))
	el, ok := e.PointerUp(canvas.Point{X: 50, Y: 40})
	require.True(t, ok)

	assert.Equal(t, before+1, e.HistoryIndex())
	assert.Equal(t, canvas.Rect{X: 10, Y: 10, Width: 40, Height: 30}, el.Shape)
	assert.Equal(t, "red", el.Color)
	assert.Equal(t, 2.0, el.Size)

	layer, _ := e.Layer(layerID)
	require.Len(t, layer.Elements, 1)
	assert.Equal(t, el, layer.Elements[0])
	assert.Nil(t, e.Preview())
}

func TestRectangleIsNormalized(t *testing.T) {
	e := newTestEditor(t)
	e.AddLayer("")
	require.NoError(t, e.SetMode(ModeRect))
	e.PointerDown(canvas.Point{X: 50, Y: 40})
	el, ok := e.PointerUp(canvas.Point{X: 10, Y: 10})
	require.True(t, ok)
	assert.Equal(t, canvas.Rect{X: 10, Y: 10, Width: 40, Height: 30}, el.Shape)
}

func TestSinglePointStrokeProducesNothing(t *testing.T) {
	e := newTestEditor(t)
	layerID := e.AddLayer("")
	before := e.HistoryIndex()

	require.True(t, e.PointerDown(canvas.Point{X: 5, Y: 5}))
	_, ok := e.PointerUp(canvas.Point{X: 5, Y: 5})
	assert.False(t, ok)

	layer, _ := e.Layer(layerID)
	assert.Empty(t, layer.Elements)
	assert.Equal(t, before, e.HistoryIndex())
}

func TestStrokeIgnoresUpPosition(t *testing.T) {
	e := newTestEditor(t)
	layerID := e.AddLayer("")
	before := e.HistoryIndex()

	require.True(t, e.PointerDown(canvas.Point{X: 1, Y: 1}))
	_, ok := e.PointerUp(canvas.Point{X: 40, Y: 40})
	assert.False(t, ok, "down then up without moves is a single point")

	layer, _ := e.Layer(layerID)
	assert.Empty(t, layer.Elements)
	assert.Equal(t, before, e.HistoryIndex())
}

func TestDegenerateShapesProduceNothing(t *testing.T) {
	cases := []struct {
		mode Mode
		up   canvas.Point
	}{
		{mode: ModeRect, up: canvas.Point{X: 10, Y: 50}},
		{mode: ModeCircle, up: canvas.Point{X: 10, Y: 10}},
		{mode: ModeLine, up: canvas.Point{X: 10, Y: 10}},
	}
	for _, tc := range cases {
		t.Run(string(tc.mode), func(t *testing.T) {
			e := newTestEditor(t)
			e.AddLayer("")
			require.NoError(t, e.SetMode(tc.mode))
			before := e.HistoryIndex()
			require.True(t, e.PointerDown(canvas.Point{X: 10, Y: 10}))
			_, ok := e.PointerUp(tc.up)
			assert.False(t, ok)
			assert.Equal(t, before, e.HistoryIndex())
		})
	}
}

func TestBrushStrokeCollectsPoints(t *testing.T) {
	e := newTestEditor(t)
	e.AddLayer("")
	e.PointerDown(canvas.Point{X: 1, Y: 1})
	e.PointerMove(canvas.Point{X: 2, Y: 2})

	preview := e.Preview()
	require.NotNil(t, preview)
	assert.Equal(t, canvas.Path{Points: []canvas.Point{{X: 1, Y: 1}, {X: 2, Y: 2}}}, preview.Shape)

	el, ok := e.PointerUp(canvas.Point{X: 3, Y: 3})
	require.True(t, ok)
	assert.Equal(t, canvas.Path{Points: []canvas.Point{{X: 1, Y: 1}, {X: 2, Y: 2}}}, el.Shape)
	assert.Equal(t, DefaultColor, el.Color)
}

func TestEraserPaintsEraseColor(t *testing.T) {
	e := newTestEditor(t)
	e.AddLayer("")
	require.NoError(t, e.SetMode(ModeEraser))
	e.PointerDown(canvas.Point{X: 1, Y: 1})
	e.PointerMove(canvas.Point{X: 9, Y: 9})
	el, ok := e.PointerUp(canvas.Point{X: 9, Y: 9})
	require.True(t, ok)
	assert.Equal(t, DefaultEraserColor, el.Color)
}

func TestCircleAndLinePreview(t *testing.T) {
	e := newTestEditor(t)
	e.AddLayer("")
	require.NoError(t, e.SetMode(ModeCircle))
	e.PointerDown(canvas.Point{X: 10, Y: 10})
	e.PointerMove(canvas.Point{X: 13, Y: 14})
	assert.Equal(t, canvas.Circle{X: 10, Y: 10, Radius: 5}, e.Preview().Shape)

	el, ok := e.PointerUp(canvas.Point{X: 13, Y: 14})
	require.True(t, ok)
	assert.Equal(t, canvas.Circle{X: 10, Y: 10, Radius: 5}, el.Shape)

	require.NoError(t, e.SetMode(ModeLine))
	e.PointerDown(canvas.Point{X: 0, Y: 0})
	e.PointerMove(canvas.Point{X: 4, Y: 4})
	assert.Equal(t, canvas.Line{From: canvas.Point{}, To: canvas.Point{X: 4, Y: 4}}, e.Preview().Shape)
}

func TestPointerIgnoredWithoutUsableLayer(t *testing.T) {
	e := newTestEditor(t)
	assert.False(t, e.PointerDown(canvas.Point{}), "no layers")

	id := e.AddLayer("")
	require.True(t, e.SetLayerLocked(id, true))
	assert.False(t, e.PointerDown(canvas.Point{}), "locked")

	require.True(t, e.SetLayerLocked(id, false))
	require.True(t, e.SetLayerVisible(id, false))
	assert.False(t, e.PointerDown(canvas.Point{}), "hidden")

	require.True(t, e.SetLayerVisible(id, true))
	require.NoError(t, e.SetMode(ModeSelect))
	assert.False(t, e.PointerDown(canvas.Point{}), "select mode")
	assert.False(t, e.PointerMove(canvas.Point{X: 1}))
}

func TestLockedMidGestureDropsElement(t *testing.T) {
	e := newTestEditor(t)
	id := e.AddLayer("")
	require.NoError(t, e.SetMode(ModeLine))
	require.True(t, e.PointerDown(canvas.Point{X: 0, Y: 0}))

	require.True(t, e.SetLayerLocked(id, true))
	before := e.HistoryIndex()
	_, ok := e.PointerUp(canvas.Point{X: 10, Y: 10})
	assert.False(t, ok)
	assert.Equal(t, before, e.HistoryIndex())

	layer, _ := e.Layer(id)
	assert.Empty(t, layer.Elements)
}

func TestHiddenMidGestureDropsElement(t *testing.T) {
	e := newTestEditor(t)
	id := e.AddLayer("")
	require.NoError(t, e.SetMode(ModeRect))
	require.True(t, e.PointerDown(canvas.Point{X: 0, Y: 0}))

	require.True(t, e.SetLayerVisible(id, false))
	before := e.HistoryIndex()
	_, ok := e.PointerUp(canvas.Point{X: 10, Y: 10})
	assert.False(t, ok)
	assert.Equal(t, before, e.HistoryIndex())
	assert.False(t, e.Drawing())

	layer, _ := e.Layer(id)
	assert.Empty(t, layer.Elements)
}

func TestPointerLeaveCancels(t *testing.T) {
	e := newTestEditor(t)
	e.AddLayer("")
	before := e.HistoryIndex()
	e.PointerDown(canvas.Point{X: 1, Y: 1})
	e.PointerMove(canvas.Point{X: 20, Y: 20})
	e.PointerLeave()

	assert.False(t, e.Drawing())
	assert.Nil(t, e.Preview())
	_, ok := e.PointerUp(canvas.Point{X: 30, Y: 30})
	assert.False(t, ok)
	assert.Equal(t, before, e.HistoryIndex())
}

func TestAddLayerTwiceScenario(t *testing.T) {
	e := newTestEditor(t)
	e.AddLayer("")
	second := e.AddLayer("")

	layers := e.Layers()
	require.Len(t, layers, 2)
	assert.Equal(t, second, layers[0].ID)
	assert.Equal(t, second, e.ActiveLayerID())
	assert.Equal(t, 2, e.HistoryIndex())
}

func TestUndoRedoRestoresTextAndLayers(t *testing.T) {
	e := newTestEditor(t)
	id := e.AddLayer("")
	require.True(t, e.SetText("<p>hello</p>"))
	require.True(t, e.RenameLayer(id, "Sketch"))

	require.True(t, e.Undo())
	layer, _ := e.Layer(id)
	assert.Equal(t, "Layer 1", layer.Name)
	assert.Equal(t, "<p>hello</p>", e.Text())

	require.True(t, e.Undo())
	assert.Equal(t, "", e.Text())

	require.True(t, e.Redo())
	require.True(t, e.Redo())
	layer, _ = e.Layer(id)
	assert.Equal(t, "Sketch", layer.Name)
	assert.False(t, e.Redo())
	assert.Equal(t, canvas.ModeIdle, e.HistoryMode())
}

func TestNoopCommandsDoNotCommit(t *testing.T) {
	e := newTestEditor(t)
	id := e.AddLayer("")
	before := e.HistoryIndex()

	assert.False(t, e.SetLayerVisible(id, true))
	assert.False(t, e.SetLayerLocked(id, false))
	assert.False(t, e.RenameLayer(id, "Layer 1"))
	assert.False(t, e.SetActiveLayer(id))
	assert.False(t, e.RemoveLayer("missing"))
	assert.False(t, e.MoveLayer(id, 0))
	assert.False(t, e.SetText(""))
	assert.Error(t, e.RemoveElement(id, "missing"))
	assert.Equal(t, before, e.HistoryIndex())
}

func TestInsertElement(t *testing.T) {
	e := newTestEditor(t)
	_, err := e.InsertElement("", canvas.Element{Shape: canvas.Rect{Width: 1, Height: 1}})
	require.ErrorIs(t, err, ErrNoActiveLayer)

	id := e.AddLayer("")
	el, err := e.InsertElement("", canvas.Element{Shape: canvas.Circle{X: 5, Y: 5, Radius: 3}})
	require.NoError(t, err)
	assert.Equal(t, "el-1", el.ID)
	assert.Equal(t, DefaultColor, el.Color)
	assert.False(t, el.CreatedAt.IsZero())

	_, err = e.InsertElement(id, canvas.Element{})
	require.ErrorIs(t, err, ErrEmptyElement)

	require.True(t, e.SetLayerLocked(id, true))
	before := e.HistoryIndex()
	_, err = e.InsertElement(id, canvas.Element{Shape: canvas.Rect{Width: 1, Height: 1}})
	require.ErrorIs(t, err, canvas.ErrLayerLocked)
	assert.Equal(t, before, e.HistoryIndex())
}

func TestInsertLayerIsOneStep(t *testing.T) {
	e := newTestEditor(t)
	before := e.HistoryIndex()
	id, err := e.InsertLayer("Visual: plan", []canvas.Element{
		{Color: "red", Shape: canvas.Rect{X: 1, Y: 1, Width: 5, Height: 5}},
		{Color: "blue", Shape: canvas.Line{To: canvas.Point{X: 3, Y: 3}}},
		{Color: "blue"},
	})
	require.NoError(t, err)
	assert.Equal(t, before+1, e.HistoryIndex())

	layer, _ := e.Layer(id)
	assert.Equal(t, "Visual: plan", layer.Name)
	assert.Len(t, layer.Elements, 2)

	require.True(t, e.Undo())
	assert.Empty(t, e.Layers())
}

func TestRestoreResetsHistory(t *testing.T) {
	e := newTestEditor(t)
	e.AddLayer("")
	e.AddLayer("")

	var changes []Change
	e.OnChange(func(c Change) { changes = append(changes, c) })

	e.Restore(canvas.Snapshot{
		Layers: []canvas.Layer{{ID: "base", Name: "Base Layer", Visible: true}},
		Text:   "restored",
	})
	assert.Equal(t, 0, e.HistoryIndex())
	assert.Equal(t, 1, e.HistoryLen())
	assert.Equal(t, "base", e.ActiveLayerID())
	assert.Equal(t, "restored", e.Text())
	require.Len(t, changes, 1)
	assert.Equal(t, ReasonRestore, changes[0].Reason)
}

func TestOnChangeFiresForCommitsAndReplays(t *testing.T) {
	e := newTestEditor(t)
	var reasons []Reason
	e.OnChange(func(c Change) { reasons = append(reasons, c.Reason) })

	e.AddLayer("")
	e.Undo()
	e.Redo()
	e.ImageLoaded("data:x")
	assert.Equal(t, []Reason{ReasonEdit, ReasonUndo, ReasonRedo, ReasonImage}, reasons)
}

func TestSetModeRejectsUnknown(t *testing.T) {
	e := newTestEditor(t)
	require.ErrorIs(t, e.SetMode("lasso"), ErrInvalidTool)
	require.ErrorIs(t, e.SetSize(0), ErrInvalidTool)
	assert.Equal(t, ModeBrush, e.Tool().Mode)
}
