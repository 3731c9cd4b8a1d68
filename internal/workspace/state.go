package workspace

import (
	"encoding/json"
	"fmt"
	"time"

	"pdfpro/api/internal/canvas"
)

const BaseLayerName = "Base Layer"

// State is the persisted workspace of one user: the canvas snapshot, notes
// and the task log.
type State struct {
	Layers        []canvas.Layer `json:"layers"`
	ActiveLayerID string         `json:"activeLayerId"`
	TextContent   string         `json:"textContent"`
	NoteGroups    []NoteGroup    `json:"noteGroups"`
	Tasks         []TaskMemory   `json:"tasks"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// Fresh returns the state of a brand-new workspace: one base layer and the
// default note groups.
func Fresh(layerID string, now time.Time) State {
	return State{
		Layers: []canvas.Layer{{
			ID:       layerID,
			Name:     BaseLayerName,
			Elements: []canvas.Element{},
			Visible:  true,
		}},
		ActiveLayerID: layerID,
		NoteGroups:    DefaultNoteGroups(now.UTC()),
		Tasks:         []TaskMemory{},
		UpdatedAt:     now.UTC(),
	}
}

func (s State) Snapshot() canvas.Snapshot {
	return canvas.Snapshot{
		Layers:        s.Layers,
		ActiveLayerID: s.ActiveLayerID,
		Text:          s.TextContent,
	}
}

// WithSnapshot returns a copy of s carrying the canvas part of snap.
func (s State) WithSnapshot(snap canvas.Snapshot) State {
	s.Layers = snap.Layers
	s.ActiveLayerID = snap.ActiveLayerID
	s.TextContent = snap.Text
	return s
}

func Encode(s State) ([]byte, error) {
	if s.Layers == nil {
		s.Layers = []canvas.Layer{}
	}
	if s.NoteGroups == nil {
		s.NoteGroups = []NoteGroup{}
	}
	if s.Tasks == nil {
		s.Tasks = []TaskMemory{}
	}
	return json.Marshal(s)
}

func Decode(raw []byte) (State, error) {
	var s State
	if err := json.Unmarshal(raw, &s); err != nil {
		return State{}, fmt.Errorf("decode workspace: %w", err)
	}
	return s, nil
}
