// Package workspace holds the per-user state persisted next to the canvas:
// note groups, the task log and the combined storage blob.
package workspace

import (
	"errors"
	"time"

	"pdfpro/api/internal/util"
)

var ErrInvalidNoteType = errors.New("invalid note group type")

type NoteType string

const (
	NoteText NoteType = "text"
	NoteTodo NoteType = "todo"
)

func ParseNoteType(s string) (NoteType, error) {
	switch NoteType(s) {
	case "", NoteText:
		return NoteText, nil
	case NoteTodo:
		return NoteTodo, nil
	}
	return "", ErrInvalidNoteType
}

type NoteItem struct {
	ID        string    `json:"id"`
	Content   string    `json:"content"`
	Completed bool      `json:"completed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type NoteGroup struct {
	ID        string     `json:"id"`
	Title     string     `json:"title"`
	Type      NoteType   `json:"type"`
	Items     []NoteItem `json:"items"`
	Timestamp time.Time  `json:"timestamp"`
}

func (g NoteGroup) Clone() NoteGroup {
	out := g
	out.Items = append([]NoteItem{}, g.Items...)
	return out
}

// Notebook is an ordered list of note groups. Operations on unknown ids are
// no-ops that report false.
type Notebook struct {
	Groups []NoteGroup `json:"noteGroups"`

	now   func() time.Time
	newID func(prefix string) string
}

type NotebookOption func(*Notebook)

func WithNotebookClock(now func() time.Time) NotebookOption {
	return func(n *Notebook) { n.now = now }
}

func WithNotebookIDs(fn func(prefix string) string) NotebookOption {
	return func(n *Notebook) { n.newID = fn }
}

func NewNotebook(groups []NoteGroup, opts ...NotebookOption) *Notebook {
	n := &Notebook{
		Groups: append([]NoteGroup{}, groups...),
		now:    time.Now,
		newID:  util.NewID,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Snapshot returns a deep copy of the groups.
func (n *Notebook) Snapshot() []NoteGroup {
	out := make([]NoteGroup, len(n.Groups))
	for i, g := range n.Groups {
		out[i] = g.Clone()
	}
	return out
}

// DefaultNoteGroups is what a new workspace starts with.
func DefaultNoteGroups(now time.Time) []NoteGroup {
	return []NoteGroup{
		{ID: util.NewID("grp"), Title: "Quick Notes", Type: NoteText, Items: []NoteItem{}, Timestamp: now},
		{ID: util.NewID("grp"), Title: "Daily Tasks", Type: NoteTodo, Items: []NoteItem{}, Timestamp: now},
	}
}

func (n *Notebook) CreateGroup(title string, typ NoteType) NoteGroup {
	if typ == "" {
		typ = NoteText
	}
	if title == "" {
		title = "New Collection"
	}
	g := NoteGroup{
		ID:        n.newID("grp"),
		Title:     title,
		Type:      typ,
		Items:     []NoteItem{},
		Timestamp: n.now().UTC(),
	}
	n.Groups = append(n.Groups, g)
	return g
}

func (n *Notebook) DeleteGroup(id string) bool {
	idx := n.group(id)
	if idx < 0 {
		return false
	}
	n.Groups = append(n.Groups[:idx], n.Groups[idx+1:]...)
	return true
}

func (n *Notebook) RenameGroup(id, title string) bool {
	idx := n.group(id)
	if idx < 0 || title == "" {
		return false
	}
	n.Groups[idx].Title = title
	n.Groups[idx].Timestamp = n.now().UTC()
	return true
}

// FindGroupByTitle returns the first group with the given title.
func (n *Notebook) FindGroupByTitle(title string) (NoteGroup, bool) {
	for _, g := range n.Groups {
		if g.Title == title {
			return g.Clone(), true
		}
	}
	return NoteGroup{}, false
}

func (n *Notebook) Group(id string) (NoteGroup, bool) {
	idx := n.group(id)
	if idx < 0 {
		return NoteGroup{}, false
	}
	return n.Groups[idx].Clone(), true
}

func (n *Notebook) AddItem(groupID, content string) (NoteItem, bool) {
	idx := n.group(groupID)
	if idx < 0 {
		return NoteItem{}, false
	}
	now := n.now().UTC()
	item := NoteItem{ID: n.newID("item"), Content: content, Timestamp: now}
	n.Groups[idx].Items = append(n.Groups[idx].Items, item)
	n.Groups[idx].Timestamp = now
	return item, true
}

func (n *Notebook) DeleteItem(groupID, itemID string) bool {
	gi, ii := n.item(groupID, itemID)
	if ii < 0 {
		return false
	}
	items := n.Groups[gi].Items
	n.Groups[gi].Items = append(items[:ii], items[ii+1:]...)
	n.Groups[gi].Timestamp = n.now().UTC()
	return true
}

func (n *Notebook) ToggleItem(groupID, itemID string) bool {
	gi, ii := n.item(groupID, itemID)
	if ii < 0 {
		return false
	}
	n.Groups[gi].Items[ii].Completed = !n.Groups[gi].Items[ii].Completed
	n.Groups[gi].Timestamp = n.now().UTC()
	return true
}

func (n *Notebook) UpdateItem(groupID, itemID, content string) bool {
	gi, ii := n.item(groupID, itemID)
	if ii < 0 {
		return false
	}
	n.Groups[gi].Items[ii].Content = content
	n.Groups[gi].Timestamp = n.now().UTC()
	return true
}

func (n *Notebook) group(id string) int {
	for i := range n.Groups {
		if n.Groups[i].ID == id {
			return i
		}
	}
	return -1
}

func (n *Notebook) item(groupID, itemID string) (int, int) {
	gi := n.group(groupID)
	if gi < 0 {
		return -1, -1
	}
	for i := range n.Groups[gi].Items {
		if n.Groups[gi].Items[i].ID == itemID {
			return gi, i
		}
	}
	return gi, -1
}
