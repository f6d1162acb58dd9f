package store

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"golang.org/x/crypto/blake2b"

	"modelcards/api/internal/fieldpath"
)

type DraftStatus string

const (
	StatusDraft         DraftStatus = "draft"
	StatusPendingReview DraftStatus = "pending_review"
	StatusApproved      DraftStatus = "approved"
	StatusRejected      DraftStatus = "rejected"
	StatusApplied       DraftStatus = "applied"
)

// ActiveStatuses are the statuses of which at most one draft may exist per
// (product, author).
var ActiveStatuses = []DraftStatus{StatusDraft, StatusPendingReview, StatusRejected}

// ResumableStatuses are the statuses an author can reopen in an edit session.
var ResumableStatuses = []DraftStatus{StatusDraft, StatusRejected}

var (
	ErrNotFound      = errors.New("not found")
	ErrDraftConflict = errors.New("draft was modified concurrently")
	ErrInvalidStatus = errors.New("invalid draft status transition")
)

var transitions = map[DraftStatus][]DraftStatus{
	StatusDraft:         {StatusPendingReview},
	StatusPendingReview: {StatusApproved, StatusRejected},
	StatusRejected:      {StatusDraft, StatusPendingReview},
	StatusApproved:      {StatusApplied},
	StatusApplied:       nil,
}

// CanTransition reports whether a draft in status from may move to to.
// Re-asserting the current status is always allowed except for applied.
func CanTransition(from, to DraftStatus) bool {
	if from == to {
		return from != StatusApplied
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

func (s DraftStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

func (s DraftStatus) Active() bool {
	for _, status := range ActiveStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Draft is one author's change-set for one product.
type Draft struct {
	ID             string           `json:"id"`
	ProductID      string           `json:"productId"`
	AuthorID       string           `json:"authorId"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
	DraftData      fieldpath.Record `json:"draftData"`
	ChangedFields  []string         `json:"changedFields"`
	EditSummary    string           `json:"editSummary,omitempty"`
	Status         DraftStatus      `json:"status"`
	Version        int              `json:"version"`
	ChangeToken    string           `json:"changeToken"`
	ReviewedBy     string           `json:"reviewedBy,omitempty"`
	ReviewedAt     *time.Time       `json:"reviewedAt,omitempty"`
	ReviewFeedback string           `json:"reviewFeedback,omitempty"`
	PRURL          string           `json:"prUrl,omitempty"`
	SyncedAt       *time.Time       `json:"syncedAt,omitempty"`
}

// DraftPatch is a partial update. Nil fields are left untouched.
// ExpectedVersion guards against overwriting a concurrent save.
type DraftPatch struct {
	DraftData       fieldpath.Record
	ChangedFields   []string
	EditSummary     *string
	Status          *DraftStatus
	ExpectedVersion int
}

// DraftQuery selects drafts for one author and product, newest first.
type DraftQuery struct {
	ProductID string
	AuthorID  string
	Statuses  []DraftStatus
	Limit     int
}

// StatusExtra carries the optional metadata written with a status change.
type StatusExtra struct {
	EditSummary    *string
	ReviewedBy     string
	ReviewFeedback string
	PRURL          string
	SyncedAt       *time.Time
}

type ProductRow struct {
	ID          string
	Company     string
	Data        fieldpath.Record
	CertifiedAt *time.Time
	UpdatedAt   time.Time
}

// ChangeToken fingerprints draft data; equal data yields equal tokens.
func ChangeToken(data fieldpath.Record) string {
	if data == nil {
		data = fieldpath.Record{}
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return ""
	}
	sum := blake2b.Sum256(encoded)
	return hex.EncodeToString(sum[:])
}

func statusStrings(statuses []DraftStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, status := range statuses {
		out = append(out, string(status))
	}
	return out
}
