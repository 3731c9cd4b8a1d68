package canvas

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sequentialIDs() StackOption {
	n := 0
	return WithIDGenerator(func() string {
		n++
		return fmt.Sprintf("l%d", n)
	})
}

func TestAddLayerTwice(t *testing.T) {
	s := NewStack(sequentialIDs())
	first := s.AddLayer("")
	second := s.AddLayer("")

	require.Equal(t, 2, s.Len())
	assert.Equal(t, second, s.ActiveLayerID())

	layers := s.Layers()
	assert.Equal(t, second, layers[0].ID, "new layers go to the front")
	assert.Equal(t, first, layers[1].ID)
	for _, l := range layers {
		assert.True(t, l.Visible)
		assert.False(t, l.Locked)
		assert.Empty(t, l.Elements)
	}
	assert.Equal(t, "Layer 1", layers[1].Name)
	assert.Equal(t, "Layer 2", layers[0].Name)
}

func TestRemoveActiveLayerPromotesFront(t *testing.T) {
	s := NewStack(sequentialIDs())
	s.AddLayer("a")
	s.AddLayer("b")
	top := s.AddLayer("c")

	require.True(t, s.SetActive("l2"))
	require.True(t, s.RemoveLayer("l2"))
	assert.Equal(t, top, s.ActiveLayerID())

	assert.False(t, s.RemoveLayer("missing"))
	require.True(t, s.RemoveLayer("l1"))
	require.True(t, s.RemoveLayer(top))
	assert.Equal(t, "", s.ActiveLayerID())
	assert.Equal(t, 0, s.Len())
}

func TestActiveLayerAlwaysValid(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	s := NewStack(sequentialIDs())
	var ids []string

	for i := 0; i < 500; i++ {
		if len(ids) == 0 || rng.Intn(3) > 0 {
			ids = append(ids, s.AddLayer(""))
		} else {
			victim := rng.Intn(len(ids))
			s.RemoveLayer(ids[victim])
			ids = append(ids[:victim], ids[victim+1:]...)
		}

		active := s.ActiveLayerID()
		if s.Len() == 0 {
			require.Equal(t, "", active)
			continue
		}
		_, ok := s.Layer(active)
		require.True(t, ok, "active layer %q missing after step %d", active, i)
	}
}

func TestAppendElementToLockedLayer(t *testing.T) {
	s := NewStack(sequentialIDs())
	id := s.AddLayer("")
	require.True(t, s.SetLocked(id, true))

	err := s.AppendElement(id, Element{ID: "e1", Shape: Rect{Width: 1, Height: 1}})
	require.ErrorIs(t, err, ErrLayerLocked)

	layer, _ := s.Layer(id)
	assert.Empty(t, layer.Elements)

	require.ErrorIs(t, s.AppendElement("nope", Element{}), ErrLayerNotFound)
}

func TestFlagsOnUnknownLayerAreNoops(t *testing.T) {
	s := NewStack(sequentialIDs())
	s.AddLayer("")
	assert.False(t, s.SetVisible("x", false))
	assert.False(t, s.SetLocked("x", true))
	assert.False(t, s.RenameLayer("x", "y"))
	assert.False(t, s.MoveLayer("x", 0))
	assert.False(t, s.SetActive("x"))
}

func TestMoveLayer(t *testing.T) {
	s := NewStack(sequentialIDs())
	s.AddLayer("")
	s.AddLayer("")
	s.AddLayer("")
	// storage order: l3, l2, l1
	require.True(t, s.MoveLayer("l3", 10))
	var order []string
	for _, l := range s.Layers() {
		order = append(order, l.ID)
	}
	assert.Equal(t, []string{"l2", "l1", "l3"}, order)
	assert.Equal(t, "l3", s.ActiveLayerID())
}

func TestRemoveElement(t *testing.T) {
	s := NewStack(sequentialIDs())
	id := s.AddLayer("")
	require.NoError(t, s.AppendElement(id, Element{ID: "a", Shape: Circle{Radius: 2}}))
	require.NoError(t, s.AppendElement(id, Element{ID: "b", Shape: Circle{Radius: 3}}))

	require.NoError(t, s.RemoveElement(id, "a"))
	require.ErrorIs(t, s.RemoveElement(id, "a"), ErrElementNotFound)

	layer, _ := s.Layer(id)
	require.Len(t, layer.Elements, 1)
	assert.Equal(t, "b", layer.Elements[0].ID)
}

func TestLayersReturnsCopies(t *testing.T) {
	s := NewStack(sequentialIDs())
	id := s.AddLayer("")
	require.NoError(t, s.AppendElement(id, Element{ID: "p", Shape: Path{Points: []Point{{0, 0}, {1, 1}}}}))

	layers := s.Layers()
	layers[0].Elements[0].Shape.(Path).Points[0] = Point{X: 99, Y: 99}
	layers[0].Name = "changed"

	layer, _ := s.Layer(id)
	assert.Equal(t, Point{}, layer.Elements[0].Shape.(Path).Points[0])
	assert.NotEqual(t, "changed", layer.Name)
}

func TestResetCorrectsActiveLayer(t *testing.T) {
	s := NewStack()
	s.Reset([]Layer{{ID: "a", Visible: true}, {ID: "b", Visible: true}}, "gone")
	assert.Equal(t, "a", s.ActiveLayerID())

	s.Reset(nil, "a")
	assert.Equal(t, "", s.ActiveLayerID())
}

func TestClear(t *testing.T) {
	s := NewStack(sequentialIDs())
	s.AddLayer("")
	s.AddLayer("")
	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Equal(t, "", s.ActiveLayerID())
	_, ok := s.ActiveLayer()
	assert.False(t, ok)
}
