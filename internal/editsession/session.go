// Package editsession coordinates one author's edit of one product: the
// working copy, its change-set against the base record, autosave and the
// hand-off of a submitted draft to review.
package editsession

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"modelcards/api/internal/fieldpath"
	"modelcards/api/internal/store"
	"modelcards/api/internal/util"
)

const (
	DefaultAutosaveDelay = 30 * time.Second
	DefaultSaveTimeout   = 15 * time.Second
)

type State string

const (
	StateInactive    State = "inactive"
	StateActiveClean State = "active_clean"
	StateActiveDirty State = "active_dirty"
	StateSubmitted   State = "submitted"
)

func (s State) Active() bool {
	return s == StateActiveClean || s == StateActiveDirty
}

// DraftStore is the persistence boundary for drafts.
type DraftStore interface {
	CreateDraft(ctx context.Context, draft store.Draft) (store.Draft, error)
	UpdateDraft(ctx context.Context, draftID string, patch store.DraftPatch) (store.Draft, error)
	FindDraft(ctx context.Context, q store.DraftQuery) (*store.Draft, error)
	SetDraftStatus(ctx context.Context, draftID string, status store.DraftStatus, extra store.StatusExtra) error
}

// Authorizer decides whether the session's author may edit product.
type Authorizer interface {
	CanEdit(product fieldpath.Record) bool
}

type AuthorizerFunc func(product fieldpath.Record) bool

func (f AuthorizerFunc) CanEdit(product fieldpath.Record) bool { return f(product) }

// ChangeSet is the artifact handed to review, export and approval
// consumers once a draft is submitted.
type ChangeSet struct {
	DraftID       string           `json:"draftId"`
	ProductID     string           `json:"productId"`
	AuthorID      string           `json:"authorId"`
	ChangedFields []string         `json:"changedFields"`
	DraftData     fieldpath.Record `json:"draftData"`
	Summary       string           `json:"summary"`
}

type SaveTrigger string

const (
	TriggerManual   SaveTrigger = "manual"
	TriggerAutosave SaveTrigger = "autosave"
	TriggerSubmit   SaveTrigger = "submit"
)

// SaveEvent describes one completed save attempt.
type SaveEvent struct {
	Trigger SaveTrigger
	DraftID string
	Created bool
	Err     error
}

type Options struct {
	AuthorID   string
	Store      DraftStore
	Authorizer Authorizer
	Notifier   Notifier
	Logger     *slog.Logger
	// AutosaveDelay is the idle time after the last edit before an autosave.
	// Zero means DefaultAutosaveDelay; a negative value disables autosave.
	AutosaveDelay time.Duration
	// SaveTimeout bounds autosave calls, which run without a caller context.
	SaveTimeout time.Duration
	OnSave      func(SaveEvent)
	OnSubmitted func(ChangeSet)
	Now         func() time.Time
}

type Session struct {
	opts Options
	log  *slog.Logger

	mu            sync.Mutex
	state         State
	productID     string
	original      fieldpath.Record
	working       fieldpath.Record
	changed       []string
	draft         *store.Draft
	saving        bool
	loading       bool
	revision      uint64
	savedRevision uint64
	// epoch advances on every enable and teardown so completions of
	// requests started under an earlier lifecycle are dropped.
	epoch        uint64
	timer        *time.Timer
	lastActivity time.Time
	// saveSlot admits one save at a time so each one starts from the
	// version the previous one wrote.
	saveSlot chan struct{}
}

func New(opts Options) *Session {
	if opts.Notifier == nil {
		opts.Notifier = NotifierFunc(func(Notification) {})
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.AutosaveDelay == 0 {
		opts.AutosaveDelay = DefaultAutosaveDelay
	}
	if opts.SaveTimeout <= 0 {
		opts.SaveTimeout = DefaultSaveTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	s := &Session{
		opts:     opts,
		log:      opts.Logger.With("author_id", opts.AuthorID),
		state:    StateInactive,
		saveSlot: make(chan struct{}, 1),
	}
	s.lastActivity = opts.Now()
	return s
}

// Enable starts editing product. The authorizer is consulted first; a
// denial is reported and leaves the session inactive.
func (s *Session) Enable(product fieldpath.Record) error {
	if s.opts.Authorizer == nil || !s.opts.Authorizer.CanEdit(product) {
		s.opts.Notifier.Notify(Notification{
			Level:   LevelError,
			Title:   "Permission denied",
			Message: ErrPermissionDenied.Error(),
		})
		return ErrPermissionDenied
	}
	productID, _ := product["id"].(string)
	if productID == "" {
		return ErrMissingProductID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopTimerLocked()
	s.epoch++
	s.state = StateActiveClean
	s.productID = productID
	s.original = fieldpath.Clone(product)
	s.working = fieldpath.Clone(product)
	s.changed = []string{}
	s.draft = nil
	s.saving = false
	s.loading = false
	s.revision = 0
	s.savedRevision = 0
	s.touchLocked()
	s.log.Info("edit mode enabled", "product_id", productID)
	return nil
}

// Disable drops all in-memory edit state. Persisted drafts are kept and
// in-flight requests complete on their own.
func (s *Session) Disable() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked(StateInactive)
}

func (s *Session) resetLocked(next State) {
	s.stopTimerLocked()
	s.epoch++
	s.state = next
	s.original = nil
	s.working = nil
	s.changed = nil
	s.draft = nil
	s.saving = false
	s.loading = false
	s.touchLocked()
}

// UpdateField writes value at path in the working copy and recomputes the
// change-set. It is a no-op while the session is not active.
func (s *Session) UpdateField(path string, value any) {
	normalized, err := fieldpath.Normalize(value)
	if err != nil {
		s.log.Warn("ignoring unencodable field value", "path", path, "err", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Active() || path == "" {
		return
	}
	s.working = fieldpath.Set(s.working, path, normalized)
	s.changed = fieldpath.Diff(s.original, s.working)
	s.revision++
	s.refreshStateLocked()
	s.touchLocked()
	s.scheduleAutosaveLocked()
}

// Discard resets the working copy to the base record. The session stays
// active and any associated draft is kept.
func (s *Session) Discard() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.state.Active() {
		return ErrNotActive
	}
	s.working = fieldpath.Clone(s.original)
	s.changed = []string{}
	s.revision++
	if s.draft == nil {
		s.savedRevision = s.revision
	}
	s.refreshStateLocked()
	s.touchLocked()
	s.scheduleAutosaveLocked()
	return nil
}

// refreshStateLocked derives clean/dirty from what has been persisted.
// Without a draft, a working copy equal to the base has nothing to save.
func (s *Session) refreshStateLocked() {
	if !s.state.Active() {
		return
	}
	dirty := s.revision != s.savedRevision
	if s.draft == nil && len(s.changed) == 0 {
		dirty = false
	}
	if dirty {
		s.state = StateActiveDirty
	} else {
		s.state = StateActiveClean
	}
}

// SaveDraft persists the working copy and change-set. The first save
// creates a draft; later saves update it. An empty summary keeps the
// stored one. Failures leave in-memory state unchanged.
func (s *Session) SaveDraft(ctx context.Context, summary string) (store.Draft, error) {
	return s.save(ctx, summary, TriggerManual)
}

type saveSnapshot struct {
	epoch     uint64
	revision  uint64
	productID string
	working   fieldpath.Record
	changed   []string
	draft     *store.Draft
}

func (s *Session) save(ctx context.Context, summary string, trigger SaveTrigger) (store.Draft, error) {
	if s.opts.AuthorID == "" {
		return store.Draft{}, ErrNoAuthor
	}

	select {
	case s.saveSlot <- struct{}{}:
	case <-ctx.Done():
		return store.Draft{}, ctx.Err()
	}
	defer func() { <-s.saveSlot }()

	s.mu.Lock()
	if !s.state.Active() {
		s.mu.Unlock()
		return store.Draft{}, ErrNotActive
	}
	snap := saveSnapshot{
		epoch:     s.epoch,
		revision:  s.revision,
		productID: s.productID,
		working:   fieldpath.Clone(s.working),
		changed:   append([]string{}, s.changed...),
		draft:     cloneDraft(s.draft),
	}
	s.saving = true
	if trigger != TriggerAutosave {
		s.stopTimerLocked()
	}
	s.mu.Unlock()

	saved, created, op, err := s.persist(ctx, snap, summary)

	s.mu.Lock()
	current := snap.epoch == s.epoch
	if current {
		s.saving = false
		if err == nil {
			s.draft = &saved
			s.savedRevision = snap.revision
			s.refreshStateLocked()
		}
		s.scheduleAutosaveLocked()
	}
	s.mu.Unlock()

	event := SaveEvent{Trigger: trigger, DraftID: saved.ID, Created: created, Err: err}
	if err != nil {
		perr := &PersistenceError{Op: op, Err: err}
		s.reportFailure(perr, snap.productID, draftID(snap.draft), "Could not save draft")
		event.Err = perr
		s.emitSave(event)
		return store.Draft{}, perr
	}
	s.emitSave(event)
	if trigger == TriggerManual {
		s.opts.Notifier.Notify(Notification{Level: LevelSuccess, Title: "Draft saved", Message: "Your changes have been saved as a draft."})
	}
	s.log.Debug("draft saved", "product_id", snap.productID, "draft_id", saved.ID, "trigger", string(trigger), "version", saved.Version)
	return saved, nil
}

func (s *Session) persist(ctx context.Context, snap saveSnapshot, summary string) (store.Draft, bool, string, error) {
	target := snap.draft
	if target == nil {
		// Another session of the same author may already hold a draft that
		// this one never loaded.
		existing, err := s.opts.Store.FindDraft(ctx, store.DraftQuery{
			ProductID: snap.productID,
			AuthorID:  s.opts.AuthorID,
			Statuses:  store.ActiveStatuses,
			Limit:     1,
		})
		if err != nil {
			return store.Draft{}, false, "find draft", err
		}
		if existing != nil && existing.Status == store.StatusPendingReview {
			return store.Draft{}, false, "create draft", ErrDraftPendingReview
		}
		target = existing
	}
	if target == nil {
		created, err := s.opts.Store.CreateDraft(ctx, store.Draft{
			ID:            util.NewID("drf"),
			ProductID:     snap.productID,
			AuthorID:      s.opts.AuthorID,
			DraftData:     snap.working,
			ChangedFields: snap.changed,
			EditSummary:   summary,
			Status:        store.StatusDraft,
		})
		return created, err == nil, "create draft", err
	}

	patch := store.DraftPatch{
		DraftData:       snap.working,
		ChangedFields:   snap.changed,
		ExpectedVersion: target.Version,
	}
	if summary != "" {
		patch.EditSummary = &summary
	}
	if target.Status == store.StatusRejected {
		reopened := store.StatusDraft
		patch.Status = &reopened
	}
	if snap.draft == nil {
		s.log.Info("adopting existing draft", "product_id", snap.productID, "draft_id", target.ID, "status", string(target.Status))
	}
	updated, err := s.opts.Store.UpdateDraft(ctx, target.ID, patch)
	return updated, false, "update draft", err
}

// LoadExistingDraft resumes the author's newest draft or rejected draft for
// productID. Finding none is not an error and leaves the working copy alone.
func (s *Session) LoadExistingDraft(ctx context.Context, productID string) (*store.Draft, error) {
	if s.opts.AuthorID == "" {
		return nil, ErrNoAuthor
	}
	s.mu.Lock()
	if !s.state.Active() {
		s.mu.Unlock()
		return nil, ErrNotActive
	}
	epoch := s.epoch
	s.loading = true
	s.mu.Unlock()

	found, err := s.opts.Store.FindDraft(ctx, store.DraftQuery{
		ProductID: productID,
		AuthorID:  s.opts.AuthorID,
		Statuses:  store.ResumableStatuses,
		Limit:     1,
	})

	if err != nil {
		s.mu.Lock()
		if epoch == s.epoch {
			s.loading = false
		}
		s.mu.Unlock()
		perr := &PersistenceError{Op: "load draft", Err: err}
		s.reportFailure(perr, productID, "", "Could not load draft")
		return nil, perr
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if epoch != s.epoch {
		return nil, nil
	}
	s.loading = false
	if found == nil || productID != s.productID {
		return nil, nil
	}

	s.stopTimerLocked()
	s.working = fieldpath.Clone(found.DraftData)
	if s.working == nil {
		s.working = fieldpath.Clone(s.original)
	}
	s.changed = append([]string{}, found.ChangedFields...)
	s.draft = cloneDraft(found)
	s.revision++
	s.savedRevision = s.revision
	s.refreshStateLocked()
	s.touchLocked()
	s.log.Info("resumed existing draft", "product_id", productID, "draft_id", found.ID, "status", string(found.Status))
	return cloneDraft(found), nil
}

// SubmitForReview saves pending changes if needed, then moves the draft to
// pending_review. On success the session closes and the change-set is
// handed to OnSubmitted; on failure it stays active.
func (s *Session) SubmitForReview(ctx context.Context, summary string) (ChangeSet, error) {
	summary = strings.TrimSpace(summary)
	if summary == "" {
		s.opts.Notifier.Notify(Notification{Level: LevelError, Title: "Summary required", Message: ErrSummaryRequired.Error()})
		return ChangeSet{}, ErrSummaryRequired
	}

	s.mu.Lock()
	if !s.state.Active() {
		s.mu.Unlock()
		return ChangeSet{}, ErrNotActive
	}
	needsSave := s.draft == nil || s.state == StateActiveDirty
	epoch := s.epoch
	s.stopTimerLocked()
	s.mu.Unlock()

	if needsSave {
		if _, err := s.save(ctx, summary, TriggerSubmit); err != nil {
			return ChangeSet{}, err
		}
	}

	s.mu.Lock()
	if epoch != s.epoch || !s.state.Active() || s.draft == nil {
		s.mu.Unlock()
		return ChangeSet{}, ErrNotActive
	}
	draft := cloneDraft(s.draft)
	changes := ChangeSet{
		DraftID:       draft.ID,
		ProductID:     s.productID,
		AuthorID:      s.opts.AuthorID,
		ChangedFields: append([]string{}, s.changed...),
		DraftData:     fieldpath.Clone(s.working),
		Summary:       summary,
	}
	s.mu.Unlock()

	var err error
	if !store.CanTransition(draft.Status, store.StatusPendingReview) {
		err = store.ErrInvalidStatus
	} else {
		err = s.opts.Store.SetDraftStatus(ctx, draft.ID, store.StatusPendingReview, store.StatusExtra{EditSummary: &summary})
	}
	if err != nil {
		perr := &PersistenceError{Op: "submit draft", Err: err}
		s.mu.Lock()
		if epoch == s.epoch {
			s.scheduleAutosaveLocked()
		}
		s.mu.Unlock()
		s.reportFailure(perr, changes.ProductID, draft.ID, "Could not submit for review")
		return ChangeSet{}, perr
	}

	s.mu.Lock()
	if epoch == s.epoch {
		s.resetLocked(StateSubmitted)
	}
	s.mu.Unlock()

	s.opts.Notifier.Notify(Notification{Level: LevelSuccess, Title: "Submitted for review", Message: "Your changes were sent to the review team."})
	s.log.Info("draft submitted for review", "product_id", changes.ProductID, "draft_id", changes.DraftID, "changed_fields", len(changes.ChangedFields))
	if s.opts.OnSubmitted != nil {
		s.opts.OnSubmitted(changes)
	}
	return changes, nil
}

func (s *Session) scheduleAutosaveLocked() {
	s.stopTimerLocked()
	if s.opts.AutosaveDelay < 0 || s.state != StateActiveDirty || s.saving {
		return
	}
	epoch := s.epoch
	s.timer = time.AfterFunc(s.opts.AutosaveDelay, func() { s.autosave(epoch) })
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Session) autosave(epoch uint64) {
	s.mu.Lock()
	ready := epoch == s.epoch && s.state == StateActiveDirty && !s.saving
	s.timer = nil
	s.mu.Unlock()
	if !ready {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.SaveTimeout)
	defer cancel()
	_, _ = s.save(ctx, "", TriggerAutosave)
}

func (s *Session) reportFailure(err *PersistenceError, productID, draftID, title string) {
	s.log.Error("draft persistence failed",
		"op", err.Op,
		"product_id", productID,
		"draft_id", draftID,
		"err", err.Err,
	)
	message := err.Err.Error()
	if errors.Is(err, store.ErrDraftConflict) {
		message = "This draft was changed in another window. Reload it before saving again."
	}
	if errors.Is(err, ErrDraftPendingReview) {
		message = "A draft of this product is already awaiting review. Wait for the review before editing again."
	}
	s.opts.Notifier.Notify(Notification{Level: LevelError, Title: title, Message: message})
}

func (s *Session) emitSave(event SaveEvent) {
	if s.opts.OnSave != nil {
		s.opts.OnSave(event)
	}
}

func (s *Session) touchLocked() {
	s.lastActivity = s.opts.Now()
}

func cloneDraft(d *store.Draft) *store.Draft {
	if d == nil {
		return nil
	}
	out := *d
	out.DraftData = fieldpath.Clone(d.DraftData)
	out.ChangedFields = append([]string{}, d.ChangedFields...)
	return &out
}

func draftID(d *store.Draft) string {
	if d == nil {
		return ""
	}
	return d.ID
}
