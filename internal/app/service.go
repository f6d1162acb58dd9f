package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"modelcards/api/internal/auth"
	"modelcards/api/internal/catalog"
	"modelcards/api/internal/config"
	"modelcards/api/internal/diffview"
	"modelcards/api/internal/editors"
	"modelcards/api/internal/editsession"
	"modelcards/api/internal/email"
	"modelcards/api/internal/export"
	"modelcards/api/internal/fieldpath"
	"modelcards/api/internal/gitrepo"
	"modelcards/api/internal/metrics"
	"modelcards/api/internal/rbac"
	"modelcards/api/internal/reviewstatus"
	"modelcards/api/internal/search"
	"modelcards/api/internal/store"
)

type dataStore interface {
	editsession.DraftStore
	GetDraft(ctx context.Context, draftID string) (store.Draft, error)
	GetProduct(ctx context.Context, productID string) (store.ProductRow, error)
	RecordSync(ctx context.Context, draftID, prURL string, syncedAt time.Time) error
	Ping(ctx context.Context) error
}

type gitService interface {
	EnsureProductRepo(productID string, baseline fieldpath.Record, author string) error
	MirrorDraft(productID, draftID string, data fieldpath.Record, author, message string) (gitrepo.CommitInfo, error)
}

type presenceStore interface {
	Touch(ctx context.Context, productID, authorID string) error
	Leave(ctx context.Context, productID, authorID string) error
	Editors(ctx context.Context, productID string) ([]string, error)
}

type reviewIndex interface {
	IndexDraft(d search.DraftRecord)
	Search(q search.Query) search.Response
}

type packetExporter interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type packetStore interface {
	Put(ctx context.Context, draftID string, result *export.Result) (string, error)
}

type reviewMailer interface {
	IsConfigured() bool
	SendReviewRequest(req email.ReviewRequest) error
}

// Deps are the collaborators of a Service. Only Store is required.
type Deps struct {
	Store    dataStore
	Git      gitService
	Presence presenceStore
	Search   reviewIndex
	Export   packetExporter
	Packets  packetStore
	Mailer   reviewMailer
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
}

type Service struct {
	cfg      config.Config
	store    dataStore
	git      gitService
	presence presenceStore
	search   reviewIndex
	export   packetExporter
	packets  packetStore
	mailer   reviewMailer
	metrics  *metrics.Metrics
	log      *slog.Logger
	now      func() time.Time

	mu       sync.Mutex
	sessions map[sessionKey]*sessionEntry

	background  sync.WaitGroup
	stopJanitor context.CancelFunc
}

type sessionKey struct {
	authorID  string
	productID string
}

type sessionEntry struct {
	session *editsession.Session
	notes   *noteBuffer
}

func New(cfg config.Config, deps Deps) *Service {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		store:    deps.Store,
		git:      deps.Git,
		presence: deps.Presence,
		search:   deps.Search,
		export:   deps.Export,
		packets:  deps.Packets,
		mailer:   deps.Mailer,
		metrics:  deps.Metrics,
		log:      logger,
		now:      time.Now,
		sessions: make(map[sessionKey]*sessionEntry),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) PrincipalFromToken(token string) (auth.Principal, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return auth.Principal{}, err
	}
	return claims.Principal(), nil
}

// EditView is what the API returns for an edit session.
type EditView struct {
	editsession.Snapshot
	Notifications []editsession.Notification `json:"notifications"`
}

// EnableEdit opens a fresh session for the principal on productID and
// resumes their open draft, if any.
func (s *Service) EnableEdit(ctx context.Context, p auth.Principal, productID string) (EditView, error) {
	row, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return EditView{}, err
	}
	company := row.Company
	if company == "" {
		company = productCompany(row.Data)
	}
	subject := rbac.Subject{Role: rbac.Normalize(p.Role), Company: p.Company, Verified: p.Verified}

	entry := s.newEntry(p.UserID, subject, company)
	if err := entry.session.Enable(row.Data); err != nil {
		return EditView{}, err
	}
	key := sessionKey{authorID: p.UserID, productID: productID}
	s.mu.Lock()
	if previous, ok := s.sessions[key]; ok {
		previous.session.Disable()
	}
	s.sessions[key] = entry
	active := len(s.sessions)
	s.mu.Unlock()
	s.setActiveSessions(active)

	if _, err := entry.session.LoadExistingDraft(ctx, productID); err != nil {
		s.log.Warn("could not resume draft", "product_id", productID, "author_id", p.UserID, "err", err)
	}
	s.touchPresence(ctx, productID, p.UserID)
	return s.view(ctx, entry), nil
}

// productCompany reads the owning company from a product record, falling
// back to the raw field when the record does not decode as a product.
func productCompany(data fieldpath.Record) string {
	if product, err := catalog.FromRecord(data); err == nil {
		return product.Company
	}
	company, _ := data["company"].(string)
	return company
}

func (s *Service) newEntry(authorID string, subject rbac.Subject, productCompany string) *sessionEntry {
	notes := &noteBuffer{}
	session := editsession.New(editsession.Options{
		AuthorID: authorID,
		Store:    s.store,
		Authorizer: editsession.AuthorizerFunc(func(fieldpath.Record) bool {
			return rbac.CanEditProduct(subject, productCompany)
		}),
		Notifier:      notes,
		Logger:        s.log,
		AutosaveDelay: s.cfg.AutosaveDelay,
		SaveTimeout:   s.cfg.SaveTimeout,
		OnSave:        s.recordSave,
		OnSubmitted:   s.handleSubmitted,
		Now:           s.now,
	})
	return &sessionEntry{session: session, notes: notes}
}

func (s *Service) EditSession(ctx context.Context, p auth.Principal, productID string) (EditView, error) {
	entry, err := s.lookup(p.UserID, productID)
	if err != nil {
		return EditView{}, err
	}
	return s.view(ctx, entry), nil
}

// UpdateFields applies ops in order. Ops before a failing one stay applied.
func (s *Service) UpdateFields(ctx context.Context, p auth.Principal, productID string, ops []editors.Op) (EditView, error) {
	entry, err := s.lookup(p.UserID, productID)
	if err != nil {
		return EditView{}, err
	}
	if !entry.session.IsActive() {
		return EditView{}, editsession.ErrNotActive
	}
	for i, op := range ops {
		if err := editors.Apply(entry.session, op); err != nil {
			return EditView{}, domainError(422, "VALIDATION_ERROR", err.Error(), map[string]any{"op": i, "path": op.Path})
		}
	}
	s.touchPresence(ctx, productID, p.UserID)
	return s.view(ctx, entry), nil
}

func (s *Service) DiscardEdit(ctx context.Context, p auth.Principal, productID string) (EditView, error) {
	entry, err := s.lookup(p.UserID, productID)
	if err != nil {
		return EditView{}, err
	}
	if err := entry.session.Discard(); err != nil {
		return EditView{}, err
	}
	return s.view(ctx, entry), nil
}

func (s *Service) SaveDraft(ctx context.Context, p auth.Principal, productID, summary string) (EditView, error) {
	entry, err := s.lookup(p.UserID, productID)
	if err != nil {
		return EditView{}, err
	}
	if _, err := entry.session.SaveDraft(ctx, strings.TrimSpace(summary)); err != nil {
		return EditView{}, err
	}
	return s.view(ctx, entry), nil
}

type SubmitResult struct {
	ChangeSet editsession.ChangeSet `json:"changeSet"`
	View      EditView              `json:"session"`
}

func (s *Service) SubmitForReview(ctx context.Context, p auth.Principal, productID, summary string) (SubmitResult, error) {
	entry, err := s.lookup(p.UserID, productID)
	if err != nil {
		return SubmitResult{}, err
	}
	changes, err := entry.session.SubmitForReview(ctx, summary)
	if s.metrics != nil && !errors.Is(err, editsession.ErrSummaryRequired) {
		s.metrics.RecordSubmission(err)
	}
	if err != nil {
		return SubmitResult{}, err
	}
	s.release(sessionKey{authorID: p.UserID, productID: productID}, entry)
	s.leavePresence(ctx, productID, p.UserID)
	return SubmitResult{ChangeSet: changes, View: s.view(ctx, entry)}, nil
}

// release drops a closed session from the registry unless a newer one has
// already replaced it.
func (s *Service) release(key sessionKey, entry *sessionEntry) {
	s.mu.Lock()
	if s.sessions[key] != entry {
		s.mu.Unlock()
		return
	}
	delete(s.sessions, key)
	active := len(s.sessions)
	s.mu.Unlock()
	s.setActiveSessions(active)
}

func (s *Service) DisableEdit(ctx context.Context, p auth.Principal, productID string) error {
	key := sessionKey{authorID: p.UserID, productID: productID}
	s.mu.Lock()
	entry, ok := s.sessions[key]
	delete(s.sessions, key)
	active := len(s.sessions)
	s.mu.Unlock()
	if !ok {
		return nil
	}
	entry.session.Disable()
	s.setActiveSessions(active)
	s.leavePresence(ctx, productID, p.UserID)
	return nil
}

// Diff reports the session's pending changes against the base record.
func (s *Service) Diff(_ context.Context, p auth.Principal, productID string) (diffview.Report, error) {
	entry, err := s.lookup(p.UserID, productID)
	if err != nil {
		return diffview.Report{}, err
	}
	snap := entry.session.Snapshot()
	return diffview.Build(snap.Original, snap.Working, snap.ChangedPaths), nil
}

type ReviewStatusView struct {
	ProductID string `json:"productId"`
	reviewstatus.Status
	Draft *reviewstatus.Badge `json:"draft,omitempty"`
}

// ReviewStatus evaluates the published record and, when the caller has an
// open draft for the product, its badge.
func (s *Service) ReviewStatus(ctx context.Context, p auth.Principal, productID string) (ReviewStatusView, error) {
	row, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return ReviewStatusView{}, err
	}
	view := ReviewStatusView{
		ProductID: productID,
		Status:    reviewstatus.Evaluate(reviewstatus.DeclaredDate(row.Data), row.CertifiedAt, s.now()),
	}
	draft, err := s.store.FindDraft(ctx, store.DraftQuery{
		ProductID: productID,
		AuthorID:  p.UserID,
		Statuses:  store.ActiveStatuses,
		Limit:     1,
	})
	if err != nil {
		s.log.Warn("draft lookup for review status failed", "product_id", productID, "err", err)
	} else if draft != nil {
		badge := reviewstatus.DraftBadge(draft.Status)
		view.Draft = &badge
	}
	return view, nil
}

// Packet renders the review packet for draftID. Reviewers can read any
// packet; authors only their own.
func (s *Service) Packet(ctx context.Context, p auth.Principal, draftID string, format export.Format) (*export.Result, error) {
	if s.export == nil {
		return nil, domainError(503, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}
	draft, err := s.store.GetDraft(ctx, draftID)
	if err != nil {
		return nil, err
	}
	if draft.AuthorID != p.UserID && !rbac.Can(rbac.Normalize(p.Role), rbac.ActionReview) {
		return nil, domainError(403, "FORBIDDEN", "Forbidden", nil)
	}
	return s.export.Export(ctx, export.Request{DraftID: draftID, Format: format})
}

// PublishPacket stores a rendered packet and returns a download link.
func (s *Service) PublishPacket(ctx context.Context, draftID string, result *export.Result) (string, error) {
	if s.packets == nil {
		return "", domainError(503, "STORAGE_UNAVAILABLE", "Packet storage is not configured", nil)
	}
	return s.packets.Put(ctx, draftID, result)
}

func (s *Service) SearchReviewQueue(p auth.Principal, q search.Query) (search.Response, error) {
	if !rbac.Can(rbac.Normalize(p.Role), rbac.ActionReview) {
		return search.Response{}, domainError(403, "FORBIDDEN", "Forbidden", nil)
	}
	if s.search == nil {
		return search.Response{Results: []search.Result{}, Query: q.Text}, nil
	}
	return s.search.Search(q), nil
}

// handleSubmitted fans the change-set out to the git mirror, the review
// queue and reviewer e-mail. It runs in the background; failures are
// logged and never undo the submission.
func (s *Service) handleSubmitted(changes editsession.ChangeSet) {
	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		s.mirrorDraft(ctx, changes)
		s.indexDraft(ctx, changes.DraftID)
		s.notifyReviewers(changes)
	}()
}

func (s *Service) mirrorDraft(ctx context.Context, changes editsession.ChangeSet) {
	if s.git == nil {
		return
	}
	row, err := s.store.GetProduct(ctx, changes.ProductID)
	if err != nil {
		s.log.Error("git mirror: load product", "product_id", changes.ProductID, "err", err)
		return
	}
	if err := s.git.EnsureProductRepo(changes.ProductID, row.Data, "modelcards"); err != nil {
		s.log.Error("git mirror: ensure repo", "product_id", changes.ProductID, "err", err)
		return
	}
	message := fmt.Sprintf("Submit %s: %s", changes.DraftID, changes.Summary)
	commit, err := s.git.MirrorDraft(changes.ProductID, changes.DraftID, changes.DraftData, changes.AuthorID, message)
	if err != nil {
		s.log.Error("git mirror: commit draft", "draft_id", changes.DraftID, "err", err)
		return
	}
	pointer := gitrepo.DraftBranch(changes.DraftID) + "@" + commit.Hash
	if err := s.store.RecordSync(ctx, changes.DraftID, pointer, commit.CreatedAt); err != nil {
		s.log.Error("git mirror: record sync", "draft_id", changes.DraftID, "err", err)
	}
}

func (s *Service) indexDraft(ctx context.Context, draftID string) {
	if s.search == nil {
		return
	}
	draft, err := s.store.GetDraft(ctx, draftID)
	if err != nil {
		s.log.Error("index draft: load", "draft_id", draftID, "err", err)
		return
	}
	s.search.IndexDraft(search.RecordFromDraft(draft))
}

func (s *Service) notifyReviewers(changes editsession.ChangeSet) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return
	}
	err := s.mailer.SendReviewRequest(email.ReviewRequest{
		ProductName:   catalog.Name(changes.DraftData),
		ProductID:     changes.ProductID,
		DraftID:       changes.DraftID,
		AuthorID:      changes.AuthorID,
		Summary:       changes.Summary,
		ChangedFields: changes.ChangedFields,
	})
	if err != nil {
		s.log.Error("notify reviewers", "draft_id", changes.DraftID, "err", err)
	}
}

func (s *Service) recordSave(event editsession.SaveEvent) {
	if s.metrics != nil {
		s.metrics.RecordSave(string(event.Trigger), event.Err)
	}
}

func (s *Service) lookup(authorID, productID string) (*sessionEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.sessions[sessionKey{authorID: authorID, productID: productID}]
	if !ok {
		return nil, editsession.ErrNotActive
	}
	return entry, nil
}

func (s *Service) view(ctx context.Context, entry *sessionEntry) EditView {
	snap := entry.session.Snapshot()
	if s.presence != nil && snap.ProductID != "" {
		ids, err := s.presence.Editors(ctx, snap.ProductID)
		if err != nil {
			s.log.Warn("presence lookup failed", "product_id", snap.ProductID, "err", err)
		}
		for _, id := range ids {
			if id != snap.AuthorID {
				snap.OtherEditors = append(snap.OtherEditors, id)
			}
		}
	}
	return EditView{Snapshot: snap, Notifications: entry.notes.drain()}
}

func (s *Service) touchPresence(ctx context.Context, productID, authorID string) {
	if s.presence == nil {
		return
	}
	if err := s.presence.Touch(ctx, productID, authorID); err != nil {
		s.log.Warn("presence touch failed", "product_id", productID, "err", err)
	}
}

func (s *Service) leavePresence(ctx context.Context, productID, authorID string) {
	if s.presence == nil {
		return
	}
	if err := s.presence.Leave(ctx, productID, authorID); err != nil {
		s.log.Warn("presence leave failed", "product_id", productID, "err", err)
	}
}

func (s *Service) setActiveSessions(n int) {
	if s.metrics != nil {
		s.metrics.SetActiveSessions(n)
	}
}

// ActiveSessions lists registered sessions as author/product pairs.
func (s *Service) ActiveSessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sessions))
	for key := range s.sessions {
		out = append(out, key.authorID+"/"+key.productID)
	}
	sort.Strings(out)
	return out
}

// StartJanitor disables sessions idle for longer than the configured TTL
// until ctx is done or Shutdown is called.
func (s *Service) StartJanitor(ctx context.Context) {
	ttl := s.cfg.SessionIdleTTL
	if ttl <= 0 {
		return
	}
	interval := ttl / 4
	if interval < time.Second {
		interval = time.Second
	}
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.stopJanitor = cancel
	s.mu.Unlock()

	s.background.Add(1)
	go func() {
		defer s.background.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.reapIdle(s.now())
			}
		}
	}()
}

func (s *Service) reapIdle(now time.Time) int {
	ttl := s.cfg.SessionIdleTTL
	s.mu.Lock()
	idle := make(map[sessionKey]*sessionEntry)
	for key, entry := range s.sessions {
		if now.Sub(entry.session.LastActivity()) >= ttl {
			idle[key] = entry
			delete(s.sessions, key)
		}
	}
	active := len(s.sessions)
	s.mu.Unlock()

	for key, entry := range idle {
		entry.session.Disable()
		s.leavePresence(context.Background(), key.productID, key.authorID)
		s.log.Info("idle edit session closed", "author_id", key.authorID, "product_id", key.productID)
	}
	if len(idle) > 0 {
		s.setActiveSessions(active)
	}
	return len(idle)
}

// Shutdown disables every session, which cancels pending autosaves, then
// waits for background work to finish or ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.stopJanitor != nil {
		s.stopJanitor()
	}
	entries := s.sessions
	s.sessions = make(map[sessionKey]*sessionEntry)
	s.mu.Unlock()

	for _, entry := range entries {
		entry.session.Disable()
	}
	s.setActiveSessions(0)

	done := make(chan struct{})
	go func() {
		s.background.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

const maxNotes = 20

// noteBuffer keeps the latest notifications until the next view drains
// them.
type noteBuffer struct {
	mu    sync.Mutex
	items []editsession.Notification
}

func (b *noteBuffer) Notify(n editsession.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, n)
	if len(b.items) > maxNotes {
		b.items = b.items[len(b.items)-maxNotes:]
	}
}

func (b *noteBuffer) drain() []editsession.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.items
	b.items = nil
	if out == nil {
		out = []editsession.Notification{}
	}
	return out
}
