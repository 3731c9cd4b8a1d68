package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	meili "github.com/meilisearch/meilisearch-go"
	"github.com/rs/zerolog"
)

const (
	idxNotes  = "pdfpro_notes"
	idxLayers = "pdfpro_layers"
)

// Meili implements Searcher and Indexer via Meilisearch.
type Meili struct {
	client  meili.ServiceManager
	healthy atomic.Bool
	done    chan struct{}
	log     zerolog.Logger
}

// NewMeili creates a Meilisearch client and configures indexes. An
// unreachable server is not an error: the health loop keeps probing.
func NewMeili(url, apiKey string, log zerolog.Logger) *Meili {
	client := meili.New(url, meili.WithAPIKey(apiKey))

	m := &Meili{
		client: client,
		done:   make(chan struct{}),
		log:    log.With().Str("component", "meilisearch").Logger(),
	}

	if _, err := client.Health(); err != nil {
		m.log.Warn().Err(err).Str("url", url).Msg("meilisearch unavailable")
		m.healthy.Store(false)
	} else {
		m.healthy.Store(true)
		m.configureIndexes()
	}

	go m.healthLoop()
	return m
}

func (m *Meili) configureIndexes() {
	indexes := []struct {
		uid        string
		filterable []string
		searchable []string
	}{
		{
			uid:        idxNotes,
			filterable: []string{"userId", "kind", "groupId"},
			searchable: []string{"content", "groupTitle"},
		},
		{
			uid:        idxLayers,
			filterable: []string{"userId"},
			searchable: []string{"name"},
		},
	}

	for _, idx := range indexes {
		if _, err := m.client.CreateIndex(&meili.IndexConfig{
			Uid:        idx.uid,
			PrimaryKey: "id",
		}); err != nil {
			m.log.Debug().Err(err).Str("index", idx.uid).Msg("create index (may already exist)")
		}

		index := m.client.Index(idx.uid)
		filterable := make([]interface{}, len(idx.filterable))
		for i, v := range idx.filterable {
			filterable[i] = v
		}
		if _, err := index.UpdateFilterableAttributes(&filterable); err != nil {
			m.log.Warn().Err(err).Str("index", idx.uid).Msg("update filterable attributes")
		}
		if _, err := index.UpdateSearchableAttributes(&idx.searchable); err != nil {
			m.log.Warn().Err(err).Str("index", idx.uid).Msg("update searchable attributes")
		}
	}
}

func (m *Meili) healthLoop() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			_, err := m.client.Health()
			wasHealthy := m.healthy.Load()
			m.healthy.Store(err == nil)
			if err == nil && !wasHealthy {
				m.log.Info().Msg("meilisearch recovered, reconfiguring indexes")
				m.configureIndexes()
			}
		}
	}
}

// Close stops the background health monitor.
func (m *Meili) Close() {
	close(m.done)
}

// Healthy reports whether Meilisearch is reachable.
func (m *Meili) Healthy() bool {
	return m.healthy.Load()
}

// Search queries both indexes, restricted to the user, and merges results.
func (m *Meili) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if !m.healthy.Load() {
		return nil, 0, fmt.Errorf("meilisearch unhealthy")
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	limit := int64(q.Limit)
	if limit == 0 {
		limit = 20
	}

	var queries []*meili.SearchRequest
	for _, uid := range []string{idxNotes, idxLayers} {
		if q.FilterType != "" && !indexServes(uid, q.FilterType) {
			continue
		}
		filters := []string{fmt.Sprintf("userId = %q", q.UserID)}
		if uid == idxNotes && q.FilterType != "" {
			filters = append(filters, fmt.Sprintf("kind = %q", string(q.FilterType)))
		}
		queries = append(queries, &meili.SearchRequest{
			IndexUID:              uid,
			Query:                 q.Text,
			Limit:                 limit,
			Filter:                filters,
			AttributesToHighlight: []string{"*"},
			HighlightPreTag:       "<mark>",
			HighlightPostTag:      "</mark>",
		})
	}
	if len(queries) == 0 {
		return nil, 0, nil
	}

	resp, err := m.client.MultiSearch(&meili.MultiSearchRequest{Queries: queries})
	if err != nil {
		m.healthy.Store(false)
		return nil, 0, fmt.Errorf("meilisearch multi-search: %w", err)
	}

	var results []Result
	total := 0
	for _, sr := range resp.Results {
		total += int(sr.EstimatedTotalHits)
		for _, hit := range sr.Hits {
			results = append(results, hitToResult(hit, sr.IndexUID))
		}
	}
	return results, total, nil
}

func indexServes(uid string, t ResultType) bool {
	if uid == idxLayers {
		return t == ResultLayer
	}
	return t == ResultNote || t == ResultNoteGroup
}

func hitToResult(hit meili.Hit, uid string) Result {
	if uid == idxLayers {
		return Result{
			Type:  ResultLayer,
			ID:    decodeString(hit, "layerId"),
			Title: firstNonBlank(decodeFormattedString(hit, "name"), decodeString(hit, "name")),
		}
	}

	r := Result{
		Type:    ResultType(decodeString(hit, "kind")),
		GroupID: decodeString(hit, "groupId"),
		Title:   firstNonBlank(decodeFormattedString(hit, "groupTitle"), decodeString(hit, "groupTitle")),
		Snippet: firstNonBlank(decodeFormattedString(hit, "content"), decodeString(hit, "content")),
	}
	r.ID = firstNonBlank(decodeString(hit, "itemId"), r.GroupID)
	return r
}

func decodeString(hit meili.Hit, key string) string {
	raw, ok := hit[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return ""
}

func decodeFormattedString(hit meili.Hit, key string) string {
	raw, ok := hit["_formatted"]
	if !ok {
		return ""
	}
	var formatted map[string]json.RawMessage
	if err := json.Unmarshal(raw, &formatted); err != nil {
		return ""
	}
	var s string
	if err := json.Unmarshal(formatted[key], &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

// ReplaceUser swaps the user's indexed notes and layers for the given ones.
// Meilisearch applies tasks of one index in order, so the delete lands
// before the add.
func (m *Meili) ReplaceUser(userID string, notes []NoteRecord, layers []LayerRecord) error {
	filter := fmt.Sprintf("userId = %q", userID)
	if _, err := m.client.Index(idxNotes).DeleteDocumentsByFilter(filter, nil); err != nil {
		return fmt.Errorf("clear notes: %w", err)
	}
	if _, err := m.client.Index(idxLayers).DeleteDocumentsByFilter(filter, nil); err != nil {
		return fmt.Errorf("clear layers: %w", err)
	}
	if len(notes) > 0 {
		if _, err := m.client.Index(idxNotes).AddDocuments(notes, nil); err != nil {
			return fmt.Errorf("index notes: %w", err)
		}
	}
	if len(layers) > 0 {
		if _, err := m.client.Index(idxLayers).AddDocuments(layers, nil); err != nil {
			return fmt.Errorf("index layers: %w", err)
		}
	}
	return nil
}
