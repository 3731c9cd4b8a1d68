package search

import (
	"context"

	"github.com/rs/zerolog"

	"pdfpro/api/internal/workspace"
)

// Service is the facade that tries the primary index first and falls back
// to Postgres full-text search.
type Service struct {
	primary  Searcher
	indexer  Indexer
	fallback Searcher
	log      zerolog.Logger
}

// NewService wires a primary index and a fallback. meili may be nil if
// Meilisearch is not configured.
func NewService(meili *Meili, pgfts *PgFTS, log zerolog.Logger) *Service {
	s := &Service{log: log}
	if meili != nil {
		s.primary, s.indexer = meili, meili
	}
	if pgfts != nil {
		s.fallback = pgfts
	}
	return s
}

// NewServiceWith is NewService over arbitrary implementations.
func NewServiceWith(primary Searcher, indexer Indexer, fallback Searcher, log zerolog.Logger) *Service {
	return &Service{primary: primary, indexer: indexer, fallback: fallback, log: log}
}

func (s *Service) Search(ctx context.Context, q Query) Response {
	if s.primary != nil && s.primary.Healthy() {
		results, total, err := s.primary.Search(ctx, q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.log.Warn().Err(err).Msg("primary search failed, falling back to pgfts")
	}

	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}
	results, total, err := s.fallback.Search(ctx, q)
	if err != nil {
		s.log.Error().Err(err).Msg("pgfts search failed")
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexWorkspace refreshes the user's index entries in the background.
func (s *Service) IndexWorkspace(userID string, state workspace.State) {
	if s.indexer == nil || !s.indexer.Healthy() {
		return
	}
	notes, layers := RecordsFromState(userID, state)
	go func() {
		if err := s.indexer.ReplaceUser(userID, notes, layers); err != nil {
			s.log.Warn().Err(err).Str("user", userID).Msg("index workspace")
		}
	}()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
