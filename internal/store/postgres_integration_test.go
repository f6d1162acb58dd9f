package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"modelcards/api/internal/fieldpath"
	"modelcards/api/internal/util"
)

func getTestDatabaseURL(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}
	url := os.Getenv("MODELCARDS_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("MODELCARDS_TEST_DATABASE_URL not set")
	}
	return url
}

func openTestStore(t *testing.T) *PostgresStore {
	t.Helper()
	url := getTestDatabaseURL(t)
	if err := ApplyMigrations(url, filepath.Join("..", "..", "db", "migrations")); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := Open(ctx, url)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresStore(db)
}

func TestDraftLifecycleIntegration(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	productID := util.NewID("prd")
	authorID := util.NewID("usr")
	if err := s.UpsertProduct(ctx, ProductRow{ID: productID, Company: "Acme RT", Data: fieldpath.Record{"id": productID, "name": "Foo"}}); err != nil {
		t.Fatalf("upsert product: %v", err)
	}

	created, err := s.CreateDraft(ctx, Draft{
		ID:            util.NewID("drf"),
		ProductID:     productID,
		AuthorID:      authorID,
		DraftData:     fieldpath.Record{"id": productID, "name": "Bar"},
		ChangedFields: []string{"name"},
		EditSummary:   "rename",
	})
	if err != nil {
		t.Fatalf("create draft: %v", err)
	}
	if created.Version != 1 || created.Status != StatusDraft {
		t.Fatalf("unexpected created draft: %+v", created)
	}

	found, err := s.FindDraft(ctx, DraftQuery{ProductID: productID, AuthorID: authorID, Statuses: ResumableStatuses})
	if err != nil || found == nil {
		t.Fatalf("find draft: %v %+v", err, found)
	}
	if found.DraftData["name"] != "Bar" || len(found.ChangedFields) != 1 || found.ChangedFields[0] != "name" {
		t.Fatalf("unexpected found draft: %+v", found)
	}

	updated, err := s.UpdateDraft(ctx, created.ID, DraftPatch{
		DraftData:       fieldpath.Record{"id": productID, "name": "Baz", "company": "B"},
		ChangedFields:   []string{"company", "name"},
		ExpectedVersion: created.Version,
	})
	if err != nil {
		t.Fatalf("update draft: %v", err)
	}
	if updated.Version != 2 || updated.EditSummary != "rename" || updated.ChangeToken == created.ChangeToken {
		t.Fatalf("unexpected updated draft: %+v", updated)
	}

	_, err = s.UpdateDraft(ctx, created.ID, DraftPatch{ChangedFields: []string{}, ExpectedVersion: created.Version})
	if !errors.Is(err, ErrDraftConflict) {
		t.Fatalf("expected draft conflict, got %v", err)
	}

	summary := "renamed product"
	if err := s.SetDraftStatus(ctx, created.ID, StatusPendingReview, StatusExtra{EditSummary: &summary}); err != nil {
		t.Fatalf("set status: %v", err)
	}
	queue, err := s.SearchDrafts(ctx, "Baz", 10)
	if err != nil {
		t.Fatalf("search drafts: %v", err)
	}
	if len(queue) == 0 || queue[0].ID != created.ID {
		t.Fatalf("expected submitted draft in search results, got %+v", queue)
	}

	resumable, err := s.FindDraft(ctx, DraftQuery{ProductID: productID, AuthorID: authorID, Statuses: ResumableStatuses})
	if err != nil {
		t.Fatalf("find resumable: %v", err)
	}
	if resumable != nil {
		t.Fatalf("pending draft must not be resumable, got %+v", resumable)
	}

	if err := s.SetDraftStatus(ctx, "missing", StatusApproved, StatusExtra{}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
