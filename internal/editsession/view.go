package editsession

import (
	"time"

	"modelcards/api/internal/fieldpath"
	"modelcards/api/internal/store"
)

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsActive() bool {
	return s.State().Active()
}

func (s *Session) IsSaving() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saving
}

func (s *Session) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Session) AuthorID() string {
	return s.opts.AuthorID
}

func (s *Session) ProductID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.productID
}

// Value reads path from the working copy.
func (s *Session) Value(path string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fieldpath.Get(s.working, path)
}

// OriginalValue reads path from the base record.
func (s *Session) OriginalValue(path string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fieldpath.Get(s.original, path)
}

// IsChanged reports whether path is in the current change-set.
func (s *Session) IsChanged(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fieldpath.Contains(s.changed, path)
}

func (s *Session) ChangedPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string{}, s.changed...)
}

func (s *Session) Working() fieldpath.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fieldpath.Clone(s.working)
}

func (s *Session) Original() fieldpath.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fieldpath.Clone(s.original)
}

// Draft returns a copy of the associated draft, or nil before the first save.
func (s *Session) Draft() *store.Draft {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneDraft(s.draft)
}

func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// Snapshot is a consistent read of the session for callers that render it.
type Snapshot struct {
	State        State            `json:"state"`
	ProductID    string           `json:"productId"`
	AuthorID     string           `json:"authorId"`
	Original     fieldpath.Record `json:"original,omitempty"`
	Working      fieldpath.Record `json:"working,omitempty"`
	ChangedPaths []string         `json:"changedPaths"`
	DraftID      string           `json:"draftId,omitempty"`
	DraftStatus  string           `json:"draftStatus,omitempty"`
	DraftVersion int              `json:"draftVersion,omitempty"`
	EditSummary  string           `json:"editSummary,omitempty"`
	IsSaving     bool             `json:"isSaving"`
	IsLoading    bool             `json:"isLoading"`
	LastActivity time.Time        `json:"lastActivity"`
	LastSavedAt  *time.Time       `json:"lastSavedAt,omitempty"`
	OtherEditors []string         `json:"otherEditors,omitempty"`
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:        s.state,
		ProductID:    s.productID,
		AuthorID:     s.opts.AuthorID,
		Original:     fieldpath.Clone(s.original),
		Working:      fieldpath.Clone(s.working),
		ChangedPaths: append([]string{}, s.changed...),
		IsSaving:     s.saving,
		IsLoading:    s.loading,
		LastActivity: s.lastActivity,
	}
	if s.draft != nil {
		snap.DraftID = s.draft.ID
		snap.DraftStatus = string(s.draft.Status)
		snap.DraftVersion = s.draft.Version
		snap.EditSummary = s.draft.EditSummary
		savedAt := s.draft.UpdatedAt
		snap.LastSavedAt = &savedAt
	}
	return snap
}
