package search

import (
	"context"
	"log/slog"
	"sync"
)

// Index is a search backend that also accepts writes.
type Index interface {
	Searcher
	IndexDraft(d DraftRecord) error
	IndexDrafts(drafts []DraftRecord) error
	DeleteDraft(id string) error
}

// Service tries the index first and falls back to Postgres FTS.
type Service struct {
	index    Index
	fallback *PgFTS
	logger   *slog.Logger
	wg       sync.WaitGroup
}

// NewService creates a search service. index may be nil when Meilisearch
// is not configured.
func NewService(index Index, fallback *PgFTS, logger *slog.Logger) *Service {
	if m, ok := index.(*Meili); ok && m == nil {
		index = nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{index: index, fallback: fallback, logger: logger}
}

func (s *Service) Search(q Query) Response {
	if s.index != nil && s.index.Healthy() {
		results, total, err := s.index.Search(q)
		if err == nil {
			return Response{Results: nonNil(results), Total: total, Query: q.Text}
		}
		s.logger.Warn("index search failed, falling back to postgres", "err", err)
	}
	if s.fallback == nil {
		return Response{Results: []Result{}, Query: q.Text}
	}

	results, total, err := s.fallback.Search(q)
	if err != nil {
		s.logger.Error("pgfts search failed", "err", err)
		return Response{Results: []Result{}, Total: 0, Query: q.Text}
	}
	return Response{Results: nonNil(results), Total: total, Query: q.Text}
}

// IndexDraft pushes a draft in the background. Drafts that are no longer
// pending are removed instead.
func (s *Service) IndexDraft(d DraftRecord) {
	if s.index == nil || !s.index.Healthy() {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if d.Status != "pending_review" {
			if err := s.index.DeleteDraft(d.ID); err != nil {
				s.logger.Warn("delete draft from index", "draft_id", d.ID, "err", err)
			}
			return
		}
		if err := s.index.IndexDraft(d); err != nil {
			s.logger.Warn("index draft", "draft_id", d.ID, "err", err)
		}
	}()
}

// ReindexFromPG loads every pending draft from Postgres into the index.
func (s *Service) ReindexFromPG(ctx context.Context) {
	if s.index == nil || !s.index.Healthy() || s.fallback == nil {
		return
	}
	records, err := s.fallback.LoadPending(ctx)
	if err != nil {
		s.logger.Error("reindex load failed", "err", err)
		return
	}
	if err := s.index.IndexDrafts(records); err != nil {
		s.logger.Error("reindex drafts", "count", len(records), "err", err)
	}
}

// Wait blocks until background index writes finish.
func (s *Service) Wait() {
	s.wg.Wait()
}

func nonNil(r []Result) []Result {
	if r == nil {
		return []Result{}
	}
	return r
}
