package canvas

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshotWithText(text string) Snapshot {
	return Snapshot{Text: text}
}

func TestHistoryStartsEmpty(t *testing.T) {
	h := NewHistory(0)
	assert.Equal(t, -1, h.Index())
	assert.Equal(t, DefaultHistoryLimit, h.Limit())
	assert.False(t, h.Undo(nil))
	assert.False(t, h.Redo(nil))
	_, ok := h.Current()
	assert.False(t, ok)
}

func TestCommitPrunesRedoBranch(t *testing.T) {
	h := NewHistory(10)
	h.Commit(snapshotWithText("a"))
	h.Commit(snapshotWithText("b"))
	h.Commit(snapshotWithText("c"))

	require.True(t, h.Undo(nil))
	require.True(t, h.Undo(nil))
	assert.True(t, h.CanRedo())

	h.Commit(snapshotWithText("d"))
	assert.False(t, h.CanRedo())
	assert.False(t, h.Redo(nil))
	assert.Equal(t, 2, h.Len())

	cur, _ := h.Current()
	assert.Equal(t, "d", cur.Text)
}

func TestHistoryBound(t *testing.T) {
	h := NewHistory(5)
	for i := 0; i < 6; i++ {
		h.Commit(snapshotWithText(fmt.Sprint(i)))
	}
	require.Equal(t, 5, h.Len())
	assert.Equal(t, 4, h.Index())

	var seen []string
	for h.Undo(func(s Snapshot) { seen = append(seen, s.Text) }) {
	}
	assert.Equal(t, []string{"4", "3", "2", "1"}, seen, "snapshot 0 is evicted")
}

func TestCommitIgnoredWhileApplying(t *testing.T) {
	h := NewHistory(10)
	h.Commit(snapshotWithText("a"))
	h.Commit(snapshotWithText("b"))

	var committed bool
	require.True(t, h.Undo(func(s Snapshot) {
		assert.Equal(t, ModeApplying, h.Mode())
		committed = h.Commit(snapshotWithText("replay"))
	}))
	assert.False(t, committed)
	assert.Equal(t, ModeIdle, h.Mode())
	assert.Equal(t, 2, h.Len())
	assert.Equal(t, 0, h.Index())
}

func TestSnapshotsAreDeepCopies(t *testing.T) {
	s := NewStack(sequentialIDs())
	id := s.AddLayer("")
	require.NoError(t, s.AppendElement(id, Element{ID: "p", Shape: Path{Points: []Point{{1, 1}, {2, 2}}}}))

	h := NewHistory(10)
	h.Commit(NewSnapshot(s, ""))

	require.NoError(t, s.AppendElement(id, Element{ID: "q", Shape: Rect{Width: 2, Height: 2}}))
	s.RenameLayer(id, "renamed")

	stored, _ := h.Current()
	require.Len(t, stored.Layers, 1)
	assert.Len(t, stored.Layers[0].Elements, 1)
	assert.Equal(t, "Layer 1", stored.Layers[0].Name)

	stored.Layers[0].Elements[0].Shape.(Path).Points[0] = Point{X: 50}
	again, _ := h.Current()
	assert.Equal(t, Point{X: 1, Y: 1}, again.Layers[0].Elements[0].Shape.(Path).Points[0])
}

func TestUndoRedoRoundTrip(t *testing.T) {
	s := NewStack(sequentialIDs())
	h := NewHistory(DefaultHistoryLimit)
	h.Commit(NewSnapshot(s, ""))

	const n = 8
	for i := 0; i < n; i++ {
		if i%3 == 0 {
			s.AddLayer("")
		} else {
			el := Element{ID: fmt.Sprintf("e%d", i), Color: "red", Size: 2, Shape: Rect{X: float64(i), Width: 3, Height: 4}}
			require.NoError(t, s.AppendElement(s.ActiveLayerID(), el))
		}
		h.Commit(NewSnapshot(s, fmt.Sprintf("text-%d", i)))
	}
	final := NewSnapshot(s, fmt.Sprintf("text-%d", n-1))

	apply := func(snap Snapshot) { s.Reset(snap.Layers, snap.ActiveLayerID) }
	for i := 0; i < n; i++ {
		require.True(t, h.Undo(apply))
	}
	assert.Equal(t, 0, s.Len())
	for i := 0; i < n; i++ {
		require.True(t, h.Redo(apply))
	}

	assert.Equal(t, final.Layers, s.Layers())
	assert.Equal(t, final.ActiveLayerID, s.ActiveLayerID())
	cur, _ := h.Current()
	assert.Equal(t, final.Text, cur.Text)
}
