package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher over the stored workspace JSONB as a fallback.
type PgFTS struct {
	db *sql.DB
}

func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true: without Postgres nothing works anyway.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search expands the user's workspace into group, item and layer rows and
// ranks those matching plainto_tsquery. The GIN index on
// workspace_search_text rejects non-matching workspaces early.
func (p *PgFTS) Search(ctx context.Context, q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" || q.UserID == "" {
		return nil, 0, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}

	const tsQuery = "plainto_tsquery('simple', $2)"
	var subQueries []string
	if q.FilterType == "" || q.FilterType == ResultNoteGroup {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'noteGroup'::text AS type, g->>'id' AS id, g->>'title' AS title, ''::text AS snippet,
				g->>'id' AS group_id,
				ts_rank(to_tsvector('simple', coalesce(g->>'title', '')), %[1]s) AS rank
			FROM ws, jsonb_array_elements(COALESCE(ws.state->'noteGroups', '[]'::jsonb)) g
			WHERE to_tsvector('simple', coalesce(g->>'title', '')) @@ %[1]s`, tsQuery))
	}
	if q.FilterType == "" || q.FilterType == ResultNote {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'note'::text AS type, i->>'id' AS id, g->>'title' AS title,
				ts_headline('simple', coalesce(i->>'content', ''), %[1]s, 'MaxFragments=1,MaxWords=30') AS snippet,
				g->>'id' AS group_id,
				ts_rank(to_tsvector('simple', coalesce(i->>'content', '')), %[1]s) AS rank
			FROM ws,
				jsonb_array_elements(COALESCE(ws.state->'noteGroups', '[]'::jsonb)) g,
				jsonb_array_elements(COALESCE(g->'items', '[]'::jsonb)) i
			WHERE to_tsvector('simple', coalesce(i->>'content', '')) @@ %[1]s`, tsQuery))
	}
	if q.FilterType == "" || q.FilterType == ResultLayer {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'layer'::text AS type, l->>'id' AS id, l->>'name' AS title, ''::text AS snippet,
				''::text AS group_id,
				ts_rank(to_tsvector('simple', coalesce(l->>'name', '')), %[1]s) AS rank
			FROM ws, jsonb_array_elements(COALESCE(ws.state->'layers', '[]'::jsonb)) l
			WHERE to_tsvector('simple', coalesce(l->>'name', '')) @@ %[1]s`, tsQuery))
	}
	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	sql := fmt.Sprintf(`
		WITH ws AS (
			SELECT state FROM workspaces
			WHERE user_id = $1
				AND to_tsvector('simple', workspace_search_text(state)) @@ %s
		), hits AS (%s)
		SELECT type, id, title, snippet, group_id, count(*) OVER () AS total
		FROM hits
		ORDER BY rank DESC, title
		LIMIT %d`, tsQuery, strings.Join(subQueries, " UNION ALL "), limit)

	rows, err := p.db.QueryContext(ctx, sql, q.UserID, q.Text)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	total := 0
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.GroupID, &total); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}
	return results, total, rows.Err()
}
