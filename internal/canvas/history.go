package canvas

// DefaultHistoryLimit is the number of snapshots kept when no limit is given.
const DefaultHistoryLimit = 50

// Snapshot is a point-in-time capture of the editor: layers, active layer
// and the serialized rich-text content.
type Snapshot struct {
	Layers        []Layer `json:"layers"`
	ActiveLayerID string  `json:"activeLayerId"`
	Text          string  `json:"textContent"`
}

// NewSnapshot captures a stack and its accompanying text.
func NewSnapshot(s *Stack, text string) Snapshot {
	return Snapshot{
		Layers:        s.Layers(),
		ActiveLayerID: s.ActiveLayerID(),
		Text:          text,
	}
}

func (s Snapshot) Clone() Snapshot {
	return Snapshot{
		Layers:        cloneLayers(s.Layers),
		ActiveLayerID: s.ActiveLayerID,
		Text:          s.Text,
	}
}

// Mode tells whether the history is replaying a snapshot.
type Mode int

const (
	ModeIdle Mode = iota
	ModeApplying
)

func (m Mode) String() string {
	if m == ModeApplying {
		return "applying"
	}
	return "idle"
}

// History is a bounded linear undo log with a cursor. New commits prune the
// redo branch; entries beyond the limit are dropped oldest first.
type History struct {
	entries []Snapshot
	cursor  int
	limit   int
	mode    Mode
}

func NewHistory(limit int) *History {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	return &History{cursor: -1, limit: limit}
}

// Commit records a snapshot. It is ignored while a snapshot is being applied
// so replaying history never writes history.
func (h *History) Commit(s Snapshot) bool {
	if h.mode == ModeApplying {
		return false
	}
	h.entries = append(h.entries[:h.cursor+1], s.Clone())
	if over := len(h.entries) - h.limit; over > 0 {
		h.entries = append([]Snapshot(nil), h.entries[over:]...)
	}
	h.cursor = len(h.entries) - 1
	return true
}

// Undo moves the cursor back one entry and hands that snapshot to apply.
func (h *History) Undo(apply func(Snapshot)) bool {
	if h.cursor <= 0 || h.mode == ModeApplying {
		return false
	}
	h.cursor--
	h.replay(h.entries[h.cursor], apply)
	return true
}

// Redo moves the cursor forward one entry and hands that snapshot to apply.
func (h *History) Redo(apply func(Snapshot)) bool {
	if h.cursor >= len(h.entries)-1 || h.mode == ModeApplying {
		return false
	}
	h.cursor++
	h.replay(h.entries[h.cursor], apply)
	return true
}

func (h *History) replay(s Snapshot, apply func(Snapshot)) {
	h.mode = ModeApplying
	defer func() { h.mode = ModeIdle }()
	if apply != nil {
		apply(s.Clone())
	}
}

// Reset drops every entry and records s as the only one.
func (h *History) Reset(s Snapshot) {
	h.entries = []Snapshot{s.Clone()}
	h.cursor = 0
	h.mode = ModeIdle
}

// Current returns a copy of the entry under the cursor.
func (h *History) Current() (Snapshot, bool) {
	if h.cursor < 0 {
		return Snapshot{}, false
	}
	return h.entries[h.cursor].Clone(), true
}

func (h *History) Index() int    { return h.cursor }
func (h *History) Len() int      { return len(h.entries) }
func (h *History) Limit() int    { return h.limit }
func (h *History) Mode() Mode    { return h.mode }
func (h *History) CanUndo() bool { return h.cursor > 0 }
func (h *History) CanRedo() bool { return h.cursor < len(h.entries)-1 }
