package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"modelcards/api/internal/auth"
	"modelcards/api/internal/config"
	"modelcards/api/internal/editors"
	"modelcards/api/internal/editsession"
	"modelcards/api/internal/email"
	"modelcards/api/internal/export"
	"modelcards/api/internal/fieldpath"
	"modelcards/api/internal/gitrepo"
	"modelcards/api/internal/metrics"
	"modelcards/api/internal/search"
	"modelcards/api/internal/store"
)

// fakeStore keeps drafts in memory. Each xxxFn field overrides the
// corresponding method when set.
type fakeStore struct {
	mu       sync.Mutex
	products map[string]store.ProductRow
	drafts   map[string]store.Draft
	synced   map[string]string

	createDraftFn    func(context.Context, store.Draft) (store.Draft, error)
	updateDraftFn    func(context.Context, string, store.DraftPatch) (store.Draft, error)
	setDraftStatusFn func(context.Context, string, store.DraftStatus, store.StatusExtra) error
	pingFn           func(context.Context) error
}

func newFakeStore(products ...store.ProductRow) *fakeStore {
	fs := &fakeStore{
		products: make(map[string]store.ProductRow),
		drafts:   make(map[string]store.Draft),
		synced:   make(map[string]string),
	}
	for _, p := range products {
		fs.products[p.ID] = p
	}
	return fs
}

func (f *fakeStore) CreateDraft(ctx context.Context, d store.Draft) (store.Draft, error) {
	if f.createDraftFn != nil {
		return f.createDraftFn(ctx, d)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d.Version = 1
	d.UpdatedAt = time.Now()
	f.drafts[d.ID] = d
	return d, nil
}

func (f *fakeStore) UpdateDraft(ctx context.Context, id string, patch store.DraftPatch) (store.Draft, error) {
	if f.updateDraftFn != nil {
		return f.updateDraftFn(ctx, id, patch)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[id]
	if !ok {
		return store.Draft{}, store.ErrNotFound
	}
	if patch.ExpectedVersion != d.Version {
		return store.Draft{}, store.ErrDraftConflict
	}
	d.DraftData = patch.DraftData
	d.ChangedFields = patch.ChangedFields
	if patch.EditSummary != nil {
		d.EditSummary = *patch.EditSummary
	}
	if patch.Status != nil {
		d.Status = *patch.Status
	}
	d.Version++
	d.UpdatedAt = time.Now()
	f.drafts[id] = d
	return d, nil
}

func (f *fakeStore) FindDraft(_ context.Context, q store.DraftQuery) (*store.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var found *store.Draft
	for _, d := range f.drafts {
		if d.ProductID != q.ProductID || d.AuthorID != q.AuthorID {
			continue
		}
		for _, status := range q.Statuses {
			if d.Status == status && (found == nil || d.UpdatedAt.After(found.UpdatedAt)) {
				match := d
				found = &match
			}
		}
	}
	return found, nil
}

func (f *fakeStore) SetDraftStatus(ctx context.Context, id string, status store.DraftStatus, extra store.StatusExtra) error {
	if f.setDraftStatusFn != nil {
		return f.setDraftStatusFn(ctx, id, status, extra)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[id]
	if !ok {
		return store.ErrNotFound
	}
	d.Status = status
	if extra.EditSummary != nil {
		d.EditSummary = *extra.EditSummary
	}
	f.drafts[id] = d
	return nil
}

func (f *fakeStore) GetDraft(_ context.Context, id string) (store.Draft, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.drafts[id]
	if !ok {
		return store.Draft{}, store.ErrNotFound
	}
	return d, nil
}

func (f *fakeStore) GetProduct(_ context.Context, id string) (store.ProductRow, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.products[id]
	if !ok {
		return store.ProductRow{}, store.ErrNotFound
	}
	p.Data = fieldpath.Clone(p.Data)
	return p, nil
}

func (f *fakeStore) RecordSync(_ context.Context, id, prURL string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.synced[id] = prURL
	return nil
}

func (f *fakeStore) Ping(ctx context.Context) error {
	if f.pingFn != nil {
		return f.pingFn(ctx)
	}
	return nil
}

func (f *fakeStore) draftList() []store.Draft {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Draft, 0, len(f.drafts))
	for _, d := range f.drafts {
		out = append(out, d)
	}
	return out
}

type fakeGit struct {
	mu       sync.Mutex
	ensured  []string
	mirrored []string
	mirrorFn func(productID, draftID string) error
}

func (f *fakeGit) EnsureProductRepo(productID string, _ fieldpath.Record, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, productID)
	return nil
}

func (f *fakeGit) MirrorDraft(productID, draftID string, _ fieldpath.Record, _, _ string) (gitrepo.CommitInfo, error) {
	if f.mirrorFn != nil {
		if err := f.mirrorFn(productID, draftID); err != nil {
			return gitrepo.CommitInfo{}, err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mirrored = append(f.mirrored, draftID)
	return gitrepo.CommitInfo{Hash: "abc1234", CreatedAt: time.Now()}, nil
}

type fakePresence struct {
	mu      sync.Mutex
	editors map[string]map[string]bool
}

func newFakePresence() *fakePresence {
	return &fakePresence{editors: make(map[string]map[string]bool)}
}

func (f *fakePresence) Touch(_ context.Context, productID, authorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.editors[productID] == nil {
		f.editors[productID] = make(map[string]bool)
	}
	f.editors[productID][authorID] = true
	return nil
}

func (f *fakePresence) Leave(_ context.Context, productID, authorID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.editors[productID], authorID)
	return nil
}

func (f *fakePresence) Editors(_ context.Context, productID string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for id := range f.editors[productID] {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

type fakeIndex struct {
	mu      sync.Mutex
	indexed []search.DraftRecord
	results []search.Result
}

func (f *fakeIndex) IndexDraft(d search.DraftRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexed = append(f.indexed, d)
}

func (f *fakeIndex) Search(q search.Query) search.Response {
	return search.Response{Results: f.results, Total: len(f.results), Query: q.Text}
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []email.ReviewRequest
}

func (f *fakeMailer) IsConfigured() bool { return true }

func (f *fakeMailer) SendReviewRequest(req email.ReviewRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	return nil
}

type fakeExporter struct {
	exportFn func(context.Context, export.Request) (*export.Result, error)
}

func (f *fakeExporter) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	if f.exportFn != nil {
		return f.exportFn(ctx, req)
	}
	return &export.Result{Data: []byte("<html></html>"), Filename: req.DraftID + ".html", MimeType: "text/html; charset=utf-8"}, nil
}

const testSecret = "test-secret"

func testConfig() config.Config {
	return config.Config{
		JWTSecret:      testSecret,
		AutosaveDelay:  -1,
		SaveTimeout:    time.Second,
		SessionIdleTTL: time.Hour,
	}
}

func testProduct() store.ProductRow {
	return store.ProductRow{
		ID:      "p-1",
		Company: "Acme",
		Data: fieldpath.Record{
			"id":          "p-1",
			"name":        "Contour AI",
			"company":     "Acme",
			"description": "Auto-contouring",
			"modality":    []any{"CT"},
			"lastRevised": "2020-01-01",
		},
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testDeps struct {
	store    *fakeStore
	git      *fakeGit
	presence *fakePresence
	index    *fakeIndex
	mailer   *fakeMailer
	metrics  *metrics.Metrics
}

func newTestService(t *testing.T) (*Service, *testDeps) {
	t.Helper()
	deps := &testDeps{
		store:    newFakeStore(testProduct()),
		git:      &fakeGit{},
		presence: newFakePresence(),
		index:    &fakeIndex{},
		mailer:   &fakeMailer{},
		metrics:  metrics.New(),
	}
	svc := New(testConfig(), Deps{
		Store:    deps.store,
		Git:      deps.git,
		Presence: deps.presence,
		Search:   deps.index,
		Export:   &fakeExporter{},
		Mailer:   deps.mailer,
		Metrics:  deps.metrics,
		Logger:   discardLogger(),
	})
	t.Cleanup(func() { _ = svc.Shutdown(context.Background()) })
	return svc, deps
}

var (
	rep      = auth.Principal{UserID: "u-rep", Role: "company_rep", Company: "Acme", Verified: true}
	reviewer = auth.Principal{UserID: "u-rev", Role: "reviewer"}
	viewer   = auth.Principal{UserID: "u-view", Role: "viewer"}
)

func TestEnableEditDeniedForOtherCompany(t *testing.T) {
	svc, _ := newTestService(t)
	outsider := auth.Principal{UserID: "u-x", Role: "company_rep", Company: "Other", Verified: true}

	_, err := svc.EnableEdit(context.Background(), outsider, "p-1")
	assert.ErrorIs(t, err, editsession.ErrPermissionDenied)
	assert.Empty(t, svc.ActiveSessions())

	_, err = svc.EnableEdit(context.Background(), viewer, "p-1")
	assert.ErrorIs(t, err, editsession.ErrPermissionDenied)
}

func TestEnableEditReadsCompanyFromRecord(t *testing.T) {
	svc, deps := newTestService(t)
	deps.store.products["p-2"] = store.ProductRow{ID: "p-2", Data: fieldpath.Record{"id": "p-2", "name": "Dose AI", "company": "Acme"}}
	deps.store.products["p-3"] = store.ProductRow{ID: "p-3", Data: fieldpath.Record{
		"id":         "p-3",
		"company":    "Acme",
		"guidelines": []any{"ESTRO 2020 consensus"},
	}}

	_, err := svc.EnableEdit(context.Background(), rep, "p-2")
	require.NoError(t, err)
	_, err = svc.EnableEdit(context.Background(), rep, "p-3")
	require.NoError(t, err, "records that do not decode fall back to the raw company field")
	assert.Equal(t, []string{"u-rep/p-2", "u-rep/p-3"}, svc.ActiveSessions())
}

func TestEnableEditUnknownProduct(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.EnableEdit(context.Background(), rep, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEditLifecycleSubmitsAndFansOut(t *testing.T) {
	svc, deps := newTestService(t)
	ctx := context.Background()

	view, err := svc.EnableEdit(ctx, rep, "p-1")
	require.NoError(t, err)
	assert.Equal(t, editsession.StateActiveClean, view.State)
	assert.Equal(t, []string{"u-rep/p-1"}, svc.ActiveSessions())

	view, err = svc.UpdateFields(ctx, rep, "p-1", []editors.Op{
		{Path: "name", Value: "Contour AI 2"},
		{Op: editors.OpAppend, Path: "modality", Value: "MR"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"modality", "name"}, view.ChangedPaths)

	report, err := svc.Diff(ctx, rep, "p-1")
	require.NoError(t, err)
	assert.Len(t, report.Changes, 2)

	_, err = svc.SubmitForReview(ctx, rep, "p-1", "   ")
	assert.ErrorIs(t, err, editsession.ErrSummaryRequired)

	result, err := svc.SubmitForReview(ctx, rep, "p-1", "Rename and add MR")
	require.NoError(t, err)
	assert.Equal(t, editsession.StateSubmitted, result.View.State)
	assert.Equal(t, []string{"modality", "name"}, result.ChangeSet.ChangedFields)
	assert.Empty(t, svc.ActiveSessions())
	_, err = svc.EditSession(ctx, rep, "p-1")
	assert.ErrorIs(t, err, editsession.ErrNotActive)

	require.NoError(t, svc.Shutdown(ctx))

	drafts := deps.store.draftList()
	require.Len(t, drafts, 1)
	assert.Equal(t, store.StatusPendingReview, drafts[0].Status)
	assert.Equal(t, "Rename and add MR", drafts[0].EditSummary)

	assert.Equal(t, []string{drafts[0].ID}, deps.git.mirrored)
	assert.Equal(t, gitrepo.DraftBranch(drafts[0].ID)+"@abc1234", deps.store.synced[drafts[0].ID])
	require.Len(t, deps.index.indexed, 1)
	assert.Equal(t, "pending_review", deps.index.indexed[0].Status)
	require.Len(t, deps.mailer.sent, 1)
	assert.Equal(t, "Contour AI 2", deps.mailer.sent[0].ProductName)
	assert.Empty(t, deps.presence.editors["p-1"])
}

func TestMirrorFailureDoesNotUndoSubmission(t *testing.T) {
	svc, deps := newTestService(t)
	deps.git.mirrorFn = func(string, string) error { return errors.New("disk full") }
	ctx := context.Background()

	_, err := svc.EnableEdit(ctx, rep, "p-1")
	require.NoError(t, err)
	_, err = svc.UpdateFields(ctx, rep, "p-1", []editors.Op{{Path: "name", Value: "X"}})
	require.NoError(t, err)
	_, err = svc.SubmitForReview(ctx, rep, "p-1", "Rename")
	require.NoError(t, err)
	require.NoError(t, svc.Shutdown(ctx))

	drafts := deps.store.draftList()
	require.Len(t, drafts, 1)
	assert.Equal(t, store.StatusPendingReview, drafts[0].Status)
	assert.Empty(t, deps.store.synced)
	assert.Len(t, deps.index.indexed, 1)
}

func TestEnableResumesSavedDraft(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.EnableEdit(ctx, rep, "p-1")
	require.NoError(t, err)
	_, err = svc.UpdateFields(ctx, rep, "p-1", []editors.Op{{Path: "description", Value: "Updated"}})
	require.NoError(t, err)
	saved, err := svc.SaveDraft(ctx, rep, "p-1", "")
	require.NoError(t, err)
	require.NotEmpty(t, saved.DraftID)
	require.NotEmpty(t, saved.Notifications)
	assert.Equal(t, "Draft saved", saved.Notifications[0].Title)

	require.NoError(t, svc.DisableEdit(ctx, rep, "p-1"))
	_, err = svc.EditSession(ctx, rep, "p-1")
	assert.ErrorIs(t, err, editsession.ErrNotActive)

	view, err := svc.EnableEdit(ctx, rep, "p-1")
	require.NoError(t, err)
	assert.Equal(t, saved.DraftID, view.DraftID)
	assert.Equal(t, "Updated", view.Working["description"])
	assert.Equal(t, []string{"description"}, view.ChangedPaths)
}

func TestSaveConflictSurfacesAsPersistenceError(t *testing.T) {
	svc, deps := newTestService(t)
	ctx := context.Background()

	_, err := svc.EnableEdit(ctx, rep, "p-1")
	require.NoError(t, err)
	_, err = svc.UpdateFields(ctx, rep, "p-1", []editors.Op{{Path: "name", Value: "A"}})
	require.NoError(t, err)
	_, err = svc.SaveDraft(ctx, rep, "p-1", "")
	require.NoError(t, err)

	deps.store.updateDraftFn = func(context.Context, string, store.DraftPatch) (store.Draft, error) {
		return store.Draft{}, store.ErrDraftConflict
	}
	_, err = svc.UpdateFields(ctx, rep, "p-1", []editors.Op{{Path: "name", Value: "B"}})
	require.NoError(t, err)
	_, err = svc.SaveDraft(ctx, rep, "p-1", "")
	var perr *editsession.PersistenceError
	require.ErrorAs(t, err, &perr)
	assert.ErrorIs(t, err, store.ErrDraftConflict)

	view, err := svc.EditSession(ctx, rep, "p-1")
	require.NoError(t, err)
	assert.Equal(t, editsession.StateActiveDirty, view.State)
}

func TestSaveRefusedWhileDraftAwaitsReview(t *testing.T) {
	svc, deps := newTestService(t)
	ctx := context.Background()
	deps.store.drafts["drf-pending"] = store.Draft{
		ID:        "drf-pending",
		ProductID: "p-1",
		AuthorID:  rep.UserID,
		Status:    store.StatusPendingReview,
		Version:   2,
		UpdatedAt: time.Now(),
	}

	view, err := svc.EnableEdit(ctx, rep, "p-1")
	require.NoError(t, err)
	assert.Empty(t, view.DraftID, "a pending draft is not resumed")
	_, err = svc.UpdateFields(ctx, rep, "p-1", []editors.Op{{Path: "name", Value: "Second try"}})
	require.NoError(t, err)

	_, err = svc.SaveDraft(ctx, rep, "p-1", "")
	require.ErrorIs(t, err, editsession.ErrDraftPendingReview)
	status, code, _, _ := mapError(err)
	assert.Equal(t, 409, status)
	assert.Equal(t, "DRAFT_PENDING_REVIEW", code)

	_, err = svc.SubmitForReview(ctx, rep, "p-1", "Second try")
	require.ErrorIs(t, err, editsession.ErrDraftPendingReview)

	drafts := deps.store.draftList()
	require.Len(t, drafts, 1)
	assert.Equal(t, store.StatusPendingReview, drafts[0].Status)
	assert.Equal(t, 2, drafts[0].Version)
}

func TestSaveAdoptsDraftCreatedAfterEnable(t *testing.T) {
	svc, deps := newTestService(t)
	ctx := context.Background()

	_, err := svc.EnableEdit(ctx, rep, "p-1")
	require.NoError(t, err)
	deps.store.mu.Lock()
	deps.store.drafts["drf-other"] = store.Draft{
		ID:        "drf-other",
		ProductID: "p-1",
		AuthorID:  rep.UserID,
		Status:    store.StatusDraft,
		Version:   1,
		UpdatedAt: time.Now(),
	}
	deps.store.mu.Unlock()

	_, err = svc.UpdateFields(ctx, rep, "p-1", []editors.Op{{Path: "name", Value: "Merged"}})
	require.NoError(t, err)
	saved, err := svc.SaveDraft(ctx, rep, "p-1", "")
	require.NoError(t, err)
	assert.Equal(t, "drf-other", saved.DraftID)

	drafts := deps.store.draftList()
	require.Len(t, drafts, 1)
	assert.Equal(t, 2, drafts[0].Version)
	assert.Equal(t, "Merged", drafts[0].DraftData["name"])
}

func TestSubmitReleasesSessionGauge(t *testing.T) {
	svc, deps := newTestService(t)
	ctx := context.Background()
	gauge := func(n string) string {
		return "# HELP modelcards_active_edit_sessions Edit sessions currently enabled.\n" +
			"# TYPE modelcards_active_edit_sessions gauge\n" +
			"modelcards_active_edit_sessions " + n + "\n"
	}

	_, err := svc.EnableEdit(ctx, rep, "p-1")
	require.NoError(t, err)
	require.NoError(t, testutil.GatherAndCompare(deps.metrics.Registry(), strings.NewReader(gauge("1")), "modelcards_active_edit_sessions"))

	_, err = svc.UpdateFields(ctx, rep, "p-1", []editors.Op{{Path: "name", Value: "Renamed"}})
	require.NoError(t, err)
	_, err = svc.SubmitForReview(ctx, rep, "p-1", "Rename")
	require.NoError(t, err)

	assert.Empty(t, svc.ActiveSessions())
	require.NoError(t, testutil.GatherAndCompare(deps.metrics.Registry(), strings.NewReader(gauge("0")), "modelcards_active_edit_sessions"))
}

func TestUpdateFieldsRejectsBadOps(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.UpdateFields(ctx, rep, "p-1", []editors.Op{{Path: "name", Value: "A"}})
	assert.ErrorIs(t, err, editsession.ErrNotActive)

	_, err = svc.EnableEdit(ctx, rep, "p-1")
	require.NoError(t, err)
	_, err = svc.UpdateFields(ctx, rep, "p-1", []editors.Op{{Op: editors.OpRemove, Path: "modality", Index: 4}})
	var derr *DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "VALIDATION_ERROR", derr.Code)
}

func TestOtherEditorsComeFromPresence(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	other := auth.Principal{UserID: "u-rep2", Role: "company_rep", Company: "Acme", Verified: true}

	_, err := svc.EnableEdit(ctx, rep, "p-1")
	require.NoError(t, err)
	view, err := svc.EnableEdit(ctx, other, "p-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"u-rep"}, view.OtherEditors)

	require.NoError(t, svc.DisableEdit(ctx, rep, "p-1"))
	view, err = svc.EditSession(ctx, other, "p-1")
	require.NoError(t, err)
	assert.Empty(t, view.OtherEditors)
}

func TestReviewStatusIncludesDraftBadge(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	svc.now = func() time.Time { return time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC) }

	status, err := svc.ReviewStatus(ctx, rep, "p-1")
	require.NoError(t, err)
	assert.Equal(t, "2020-01-01", status.DeclaredDate)
	assert.Nil(t, status.Draft)

	_, err = svc.EnableEdit(ctx, rep, "p-1")
	require.NoError(t, err)
	_, err = svc.UpdateFields(ctx, rep, "p-1", []editors.Op{{Path: "name", Value: "A"}})
	require.NoError(t, err)
	_, err = svc.SaveDraft(ctx, rep, "p-1", "")
	require.NoError(t, err)

	status, err = svc.ReviewStatus(ctx, rep, "p-1")
	require.NoError(t, err)
	require.NotNil(t, status.Draft)
}

func TestPacketAccess(t *testing.T) {
	svc, deps := newTestService(t)
	ctx := context.Background()
	deps.store.drafts["drf-1"] = store.Draft{ID: "drf-1", ProductID: "p-1", AuthorID: "u-rep", Status: store.StatusPendingReview}

	_, err := svc.Packet(ctx, viewer, "drf-1", export.FormatHTML)
	var derr *DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 403, derr.Status)

	result, err := svc.Packet(ctx, rep, "drf-1", export.FormatHTML)
	require.NoError(t, err)
	assert.Equal(t, "drf-1.html", result.Filename)

	_, err = svc.Packet(ctx, reviewer, "drf-1", export.FormatHTML)
	require.NoError(t, err)

	_, err = svc.PublishPacket(ctx, "drf-1", result)
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "STORAGE_UNAVAILABLE", derr.Code)
}

func TestSearchReviewQueueRequiresReviewer(t *testing.T) {
	svc, deps := newTestService(t)
	deps.index.results = []search.Result{{DraftID: "drf-1"}}

	_, err := svc.SearchReviewQueue(rep, search.Query{Text: "contour"})
	var derr *DomainError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, 403, derr.Status)

	resp, err := svc.SearchReviewQueue(reviewer, search.Query{Text: "contour"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.Total)
	assert.Equal(t, "contour", resp.Query)
}

func TestReapIdleClosesStaleSessions(t *testing.T) {
	svc, deps := newTestService(t)
	ctx := context.Background()
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }

	_, err := svc.EnableEdit(ctx, rep, "p-1")
	require.NoError(t, err)

	assert.Equal(t, 0, svc.reapIdle(start.Add(30*time.Minute)))
	assert.Equal(t, 1, svc.reapIdle(start.Add(2*time.Hour)))
	assert.Empty(t, svc.ActiveSessions())
	assert.Empty(t, deps.presence.editors["p-1"])
}

func TestShutdownDisablesSessions(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.EnableEdit(ctx, rep, "p-1")
	require.NoError(t, err)
	svc.StartJanitor(ctx)

	require.NoError(t, svc.Shutdown(ctx))
	assert.Empty(t, svc.ActiveSessions())
}
