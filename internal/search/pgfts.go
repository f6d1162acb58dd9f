package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"modelcards/api/internal/store"
)

// DraftSource is the slice of the draft store search reads from.
type DraftSource interface {
	SearchDrafts(ctx context.Context, query string, limit int) ([]store.Draft, error)
	ListDraftsByStatus(ctx context.Context, status store.DraftStatus, limit int) ([]store.Draft, error)
}

// PgFTS implements Searcher over the generated tsvector column of
// edit_drafts.
type PgFTS struct {
	source  DraftSource
	timeout time.Duration
}

func NewPgFTS(source DraftSource) *PgFTS {
	return &PgFTS{source: source, timeout: 5 * time.Second}
}

// Healthy always returns true; without Postgres nothing else works either.
func (p *PgFTS) Healthy() bool {
	return true
}

func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	drafts, err := p.source.SearchDrafts(ctx, strings.TrimSpace(q.Text), limit+offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts search: %w", err)
	}

	results := make([]Result, 0, len(drafts))
	for _, draft := range drafts {
		record := RecordFromDraft(draft)
		if q.FilterCompany != "" && !strings.EqualFold(record.Company, q.FilterCompany) {
			continue
		}
		results = append(results, resultFromRecord(record, ""))
	}
	total := len(results)
	if offset >= len(results) {
		return []Result{}, total, nil
	}
	return results[offset:], total, nil
}

// LoadPending returns every pending draft for a full reindex.
func (p *PgFTS) LoadPending(ctx context.Context) ([]DraftRecord, error) {
	drafts, err := p.source.ListDraftsByStatus(ctx, store.StatusPendingReview, 500)
	if err != nil {
		return nil, fmt.Errorf("load pending drafts: %w", err)
	}
	records := make([]DraftRecord, 0, len(drafts))
	for _, draft := range drafts {
		records = append(records, RecordFromDraft(draft))
	}
	return records, nil
}
