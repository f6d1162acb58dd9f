// Package search indexes submitted drafts for the reviewer queue.
package search

import (
	"time"

	"modelcards/api/internal/catalog"
	"modelcards/api/internal/store"
)

// Result is a single review-queue hit returned to the caller.
type Result struct {
	DraftID       string    `json:"draftId"`
	ProductID     string    `json:"productId"`
	ProductName   string    `json:"productName"`
	Company       string    `json:"company"`
	AuthorID      string    `json:"authorId"`
	Status        string    `json:"status"`
	Snippet       string    `json:"snippet"`
	ChangedFields []string  `json:"changedFields"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Query describes a search request.
type Query struct {
	Text          string
	FilterCompany string
	Limit         int
	Offset        int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}

// DraftRecord is the document stored in the drafts index.
type DraftRecord struct {
	ID            string   `json:"id"`
	ProductID     string   `json:"productId"`
	ProductName   string   `json:"productName"`
	Company       string   `json:"company"`
	AuthorID      string   `json:"authorId"`
	Status        string   `json:"status"`
	EditSummary   string   `json:"editSummary"`
	ChangedFields []string `json:"changedFields"`
	UpdatedAt     int64    `json:"updatedAt"`
}

// RecordFromDraft flattens a draft for indexing.
func RecordFromDraft(d store.Draft) DraftRecord {
	company, _ := d.DraftData["company"].(string)
	fields := d.ChangedFields
	if fields == nil {
		fields = []string{}
	}
	return DraftRecord{
		ID:            d.ID,
		ProductID:     d.ProductID,
		ProductName:   catalog.Name(d.DraftData),
		Company:       company,
		AuthorID:      d.AuthorID,
		Status:        string(d.Status),
		EditSummary:   d.EditSummary,
		ChangedFields: fields,
		UpdatedAt:     d.UpdatedAt.Unix(),
	}
}

func resultFromRecord(r DraftRecord, snippet string) Result {
	return Result{
		DraftID:       r.ID,
		ProductID:     r.ProductID,
		ProductName:   r.ProductName,
		Company:       r.Company,
		AuthorID:      r.AuthorID,
		Status:        r.Status,
		Snippet:       firstNonBlank(snippet, r.EditSummary),
		ChangedFields: r.ChangedFields,
		UpdatedAt:     time.Unix(r.UpdatedAt, 0).UTC(),
	}
}
