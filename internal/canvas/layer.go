package canvas

import (
	"errors"
	"fmt"

	"pdfpro/api/internal/util"
)

var (
	ErrLayerNotFound   = errors.New("layer not found")
	ErrLayerLocked     = errors.New("layer locked")
	ErrElementNotFound = errors.New("element not found")
)

// Layer is an ordered, named container of elements. Later elements paint on
// top of earlier ones.
type Layer struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Elements []Element `json:"elements"`
	Visible  bool      `json:"visible"`
	Locked   bool      `json:"locked"`
}

func (l Layer) Clone() Layer {
	out := l
	out.Elements = make([]Element, len(l.Elements))
	for i, el := range l.Elements {
		out.Elements[i] = el.Clone()
	}
	return out
}

func cloneLayers(layers []Layer) []Layer {
	out := make([]Layer, len(layers))
	for i, layer := range layers {
		out[i] = layer.Clone()
	}
	return out
}

// Stack is the ordered layer list of one document. Index 0 is the top layer:
// new layers are inserted there and it paints last.
//
// Stack is not safe for concurrent use; the editor loop owns it.
type Stack struct {
	layers   []Layer
	activeID string
	newID    func() string
}

type StackOption func(*Stack)

// WithIDGenerator replaces the uuid-based layer id source.
func WithIDGenerator(fn func() string) StackOption {
	return func(s *Stack) {
		s.newID = fn
	}
}

func NewStack(opts ...StackOption) *Stack {
	s := &Stack{
		newID: func() string { return util.NewID("layer") },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddLayer inserts an empty, visible, unlocked layer at the top of the stack
// and makes it active.
func (s *Stack) AddLayer(name string) string {
	if name == "" {
		name = fmt.Sprintf("Layer %d", len(s.layers)+1)
	}
	layer := Layer{
		ID:       s.newID(),
		Name:     name,
		Elements: []Element{},
		Visible:  true,
	}
	s.layers = append([]Layer{layer}, s.layers...)
	s.activeID = layer.ID
	return layer.ID
}

// RemoveLayer deletes a layer. When the active layer goes, the new front
// layer becomes active.
func (s *Stack) RemoveLayer(id string) bool {
	idx := s.index(id)
	if idx < 0 {
		return false
	}
	s.layers = append(s.layers[:idx], s.layers[idx+1:]...)
	if s.activeID == id {
		s.activeID = ""
		if len(s.layers) > 0 {
			s.activeID = s.layers[0].ID
		}
	}
	return true
}

func (s *Stack) SetVisible(id string, visible bool) bool {
	idx := s.index(id)
	if idx < 0 {
		return false
	}
	s.layers[idx].Visible = visible
	return true
}

func (s *Stack) SetLocked(id string, locked bool) bool {
	idx := s.index(id)
	if idx < 0 {
		return false
	}
	s.layers[idx].Locked = locked
	return true
}

func (s *Stack) RenameLayer(id, name string) bool {
	idx := s.index(id)
	if idx < 0 || name == "" {
		return false
	}
	s.layers[idx].Name = name
	return true
}

// MoveLayer moves a layer to a new storage index, clamped to the stack.
func (s *Stack) MoveLayer(id string, to int) bool {
	from := s.index(id)
	if from < 0 {
		return false
	}
	if to < 0 {
		to = 0
	}
	if to > len(s.layers)-1 {
		to = len(s.layers) - 1
	}
	if to == from {
		return false
	}
	layer := s.layers[from]
	s.layers = append(s.layers[:from], s.layers[from+1:]...)
	s.layers = append(s.layers[:to], append([]Layer{layer}, s.layers[to:]...)...)
	return true
}

func (s *Stack) SetActive(id string) bool {
	if s.index(id) < 0 || s.activeID == id {
		return false
	}
	s.activeID = id
	return true
}

func (s *Stack) AppendElement(layerID string, el Element) error {
	idx := s.index(layerID)
	if idx < 0 {
		return ErrLayerNotFound
	}
	if s.layers[idx].Locked {
		return ErrLayerLocked
	}
	s.layers[idx].Elements = append(s.layers[idx].Elements, el.Clone())
	return nil
}

func (s *Stack) RemoveElement(layerID, elementID string) error {
	idx := s.index(layerID)
	if idx < 0 {
		return ErrLayerNotFound
	}
	if s.layers[idx].Locked {
		return ErrLayerLocked
	}
	elements := s.layers[idx].Elements
	for i, el := range elements {
		if el.ID == elementID {
			s.layers[idx].Elements = append(elements[:i], elements[i+1:]...)
			return nil
		}
	}
	return ErrElementNotFound
}

// Clear removes every layer.
func (s *Stack) Clear() {
	s.layers = nil
	s.activeID = ""
}

// Reset replaces the whole stack. An active id that does not name a layer is
// corrected to the front layer.
func (s *Stack) Reset(layers []Layer, activeID string) {
	s.layers = cloneLayers(layers)
	s.activeID = activeID
	if s.index(activeID) < 0 {
		s.activeID = ""
		if len(s.layers) > 0 {
			s.activeID = s.layers[0].ID
		}
	}
}

// Layers returns a deep copy of the layers in storage order.
func (s *Stack) Layers() []Layer {
	return cloneLayers(s.layers)
}

// View returns the live layer slice for read-only traversal by the
// compositor. Callers must not retain or modify it.
func (s *Stack) View() []Layer {
	return s.layers
}

func (s *Stack) Layer(id string) (Layer, bool) {
	idx := s.index(id)
	if idx < 0 {
		return Layer{}, false
	}
	return s.layers[idx].Clone(), true
}

func (s *Stack) ActiveLayerID() string {
	return s.activeID
}

func (s *Stack) ActiveLayer() (Layer, bool) {
	return s.Layer(s.activeID)
}

func (s *Stack) Len() int {
	return len(s.layers)
}

func (s *Stack) Clone() *Stack {
	return &Stack{
		layers:   cloneLayers(s.layers),
		activeID: s.activeID,
		newID:    s.newID,
	}
}

func (s *Stack) index(id string) int {
	if id == "" {
		return -1
	}
	for i := range s.layers {
		if s.layers[i].ID == id {
			return i
		}
	}
	return -1
}
