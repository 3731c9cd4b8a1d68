package search

import (
	"context"
	"strings"

	"pdfpro/api/internal/workspace"
)

// ResultType identifies the kind of entity in a search result.
type ResultType string

const (
	ResultNoteGroup ResultType = "noteGroup"
	ResultNote      ResultType = "note"
	ResultLayer     ResultType = "layer"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type    ResultType `json:"type"`
	ID      string     `json:"id"`
	Title   string     `json:"title"`
	Snippet string     `json:"snippet"`
	GroupID string     `json:"groupId,omitempty"`
}

// Query describes a search request. Results never cross users.
type Query struct {
	UserID     string
	Text       string
	FilterType ResultType // empty = all types
	Limit      int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer keeps the index copy of a user's workspace current.
type Indexer interface {
	Healthy() bool
	ReplaceUser(userID string, notes []NoteRecord, layers []LayerRecord) error
}

// NoteRecord is the data we index for a note group or a note item.
type NoteRecord struct {
	ID         string `json:"id"`
	UserID     string `json:"userId"`
	Kind       string `json:"kind"`
	ItemID     string `json:"itemId,omitempty"`
	GroupID    string `json:"groupId"`
	GroupTitle string `json:"groupTitle"`
	Content    string `json:"content"`
}

// LayerRecord is the data we index for a canvas layer.
type LayerRecord struct {
	ID           string `json:"id"`
	UserID       string `json:"userId"`
	LayerID      string `json:"layerId"`
	Name         string `json:"name"`
	ElementCount int    `json:"elementCount"`
}

// RecordsFromState flattens the searchable parts of a workspace.
func RecordsFromState(userID string, s workspace.State) ([]NoteRecord, []LayerRecord) {
	notes := make([]NoteRecord, 0)
	for _, g := range s.NoteGroups {
		notes = append(notes, NoteRecord{
			ID:         docID(userID, g.ID),
			UserID:     userID,
			Kind:       string(ResultNoteGroup),
			GroupID:    g.ID,
			GroupTitle: g.Title,
		})
		for _, item := range g.Items {
			notes = append(notes, NoteRecord{
				ID:         docID(userID, item.ID),
				UserID:     userID,
				Kind:       string(ResultNote),
				ItemID:     item.ID,
				GroupID:    g.ID,
				GroupTitle: g.Title,
				Content:    item.Content,
			})
		}
	}

	layers := make([]LayerRecord, 0, len(s.Layers))
	for _, l := range s.Layers {
		layers = append(layers, LayerRecord{
			ID:           docID(userID, l.ID),
			UserID:       userID,
			LayerID:      l.ID,
			Name:         l.Name,
			ElementCount: len(l.Elements),
		})
	}
	return notes, layers
}

// docID scopes entity ids per user. Meilisearch ids allow only
// alphanumerics, hyphens and underscores.
func docID(userID, id string) string {
	clean := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, userID+"_"+id)
	return clean
}
