package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"modelcards/api/internal/fieldpath"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const draftColumns = `
	id, product_id, author_id, created_at, updated_at, draft_data::text,
	changed_fields::text, COALESCE(edit_summary, ''), status, version, change_token,
	COALESCE(reviewed_by, ''), reviewed_at, COALESCE(review_feedback, ''),
	COALESCE(pr_url, ''), synced_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDraft(row rowScanner) (Draft, error) {
	var (
		item     Draft
		dataRaw  string
		fields   []string
		status   string
		reviewed sql.NullTime
		synced   sql.NullTime
	)
	if err := row.Scan(
		&item.ID,
		&item.ProductID,
		&item.AuthorID,
		&item.CreatedAt,
		&item.UpdatedAt,
		&dataRaw,
		pq.Array(&fields),
		&item.EditSummary,
		&status,
		&item.Version,
		&item.ChangeToken,
		&item.ReviewedBy,
		&reviewed,
		&item.ReviewFeedback,
		&item.PRURL,
		&synced,
	); err != nil {
		return Draft{}, err
	}
	if err := json.Unmarshal([]byte(dataRaw), &item.DraftData); err != nil {
		return Draft{}, fmt.Errorf("decode draft_data for %s: %w", item.ID, err)
	}
	if fields == nil {
		fields = []string{}
	}
	item.ChangedFields = fields
	item.Status = DraftStatus(status)
	if reviewed.Valid {
		at := reviewed.Time
		item.ReviewedAt = &at
	}
	if synced.Valid {
		at := synced.Time
		item.SyncedAt = &at
	}
	return item, nil
}

func encodeDraftData(data fieldpath.Record) (string, error) {
	if data == nil {
		data = fieldpath.Record{}
	}
	encoded, err := json.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("encode draft_data: %w", err)
	}
	return string(encoded), nil
}

func changedFieldsArray(fields []string) any {
	if fields == nil {
		fields = []string{}
	}
	return pq.Array(fields)
}

// CreateDraft inserts a new draft at version 1. Status defaults to draft.
func (s *PostgresStore) CreateDraft(ctx context.Context, draft Draft) (Draft, error) {
	if draft.Status == "" {
		draft.Status = StatusDraft
	}
	if !draft.Status.Valid() {
		return Draft{}, fmt.Errorf("create draft: %w: %q", ErrInvalidStatus, draft.Status)
	}
	encoded, err := encodeDraftData(draft.DraftData)
	if err != nil {
		return Draft{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO edit_drafts (id, product_id, author_id, draft_data, changed_fields, edit_summary, status, version, change_token)
		VALUES ($1, $2, $3, $4::jsonb, $5::text::text[], NULLIF($6, ''), $7, 1, $8)
		RETURNING `+draftColumns,
		draft.ID,
		draft.ProductID,
		draft.AuthorID,
		encoded,
		changedFieldsArray(draft.ChangedFields),
		draft.EditSummary,
		string(draft.Status),
		ChangeToken(draft.DraftData),
	)
	created, err := scanDraft(row)
	if err != nil {
		return Draft{}, fmt.Errorf("create draft: %w", err)
	}
	return created, nil
}

// UpdateDraft applies patch if the stored version still equals
// patch.ExpectedVersion, bumping the version and change token. A stale
// version yields ErrDraftConflict and leaves the row untouched.
func (s *PostgresStore) UpdateDraft(ctx context.Context, draftID string, patch DraftPatch) (Draft, error) {
	sets := []string{"updated_at=NOW()", "version=version+1"}
	args := []any{draftID, patch.ExpectedVersion}
	next := func(value any) string {
		args = append(args, value)
		return fmt.Sprintf("$%d", len(args))
	}

	if patch.DraftData != nil {
		encoded, err := encodeDraftData(patch.DraftData)
		if err != nil {
			return Draft{}, err
		}
		sets = append(sets, "draft_data="+next(encoded)+"::jsonb")
		sets = append(sets, "change_token="+next(ChangeToken(patch.DraftData)))
	}
	if patch.ChangedFields != nil {
		sets = append(sets, "changed_fields="+next(changedFieldsArray(patch.ChangedFields))+"::text::text[]")
	}
	if patch.EditSummary != nil {
		sets = append(sets, "edit_summary=NULLIF("+next(*patch.EditSummary)+", '')")
	}
	if patch.Status != nil {
		sets = append(sets, "status="+next(string(*patch.Status)))
	}

	query := `UPDATE edit_drafts SET ` + strings.Join(sets, ", ") + `
		WHERE id=$1 AND version=$2
		RETURNING ` + draftColumns
	updated, err := scanDraft(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		if _, getErr := s.GetDraft(ctx, draftID); errors.Is(getErr, ErrNotFound) {
			return Draft{}, fmt.Errorf("update draft %s: %w", draftID, ErrNotFound)
		}
		return Draft{}, fmt.Errorf("update draft %s: %w", draftID, ErrDraftConflict)
	}
	if err != nil {
		return Draft{}, fmt.Errorf("update draft %s: %w", draftID, err)
	}
	return updated, nil
}

// FindDraft returns the most recently updated draft matching q, or nil.
func (s *PostgresStore) FindDraft(ctx context.Context, q DraftQuery) (*Draft, error) {
	q.Limit = 1
	items, err := s.FindDrafts(ctx, q)
	if err != nil {
		return nil, err
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (s *PostgresStore) FindDrafts(ctx context.Context, q DraftQuery) ([]Draft, error) {
	statuses := q.Statuses
	if len(statuses) == 0 {
		statuses = ActiveStatuses
	}
	limit := q.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+draftColumns+`
		FROM edit_drafts
		WHERE product_id=$1 AND author_id=$2 AND status = ANY($3::text::text[])
		ORDER BY updated_at DESC
		LIMIT $4
	`, q.ProductID, q.AuthorID, pq.Array(statusStrings(statuses)), limit)
	if err != nil {
		return nil, fmt.Errorf("find drafts: %w", err)
	}
	defer rows.Close()
	return collectDrafts(rows)
}

func collectDrafts(rows *sql.Rows) ([]Draft, error) {
	items := make([]Draft, 0)
	for rows.Next() {
		item, err := scanDraft(rows)
		if err != nil {
			return nil, fmt.Errorf("scan draft: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drafts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) GetDraft(ctx context.Context, draftID string) (Draft, error) {
	item, err := scanDraft(s.db.QueryRowContext(ctx, `
		SELECT `+draftColumns+`
		FROM edit_drafts
		WHERE id=$1
	`, draftID))
	if errors.Is(err, sql.ErrNoRows) {
		return Draft{}, ErrNotFound
	}
	if err != nil {
		return Draft{}, fmt.Errorf("get draft: %w", err)
	}
	return item, nil
}

// SetDraftStatus writes status unconditionally, together with any review
// metadata in extra. Moving to approved or rejected stamps reviewed_at.
func (s *PostgresStore) SetDraftStatus(ctx context.Context, draftID string, status DraftStatus, extra StatusExtra) error {
	if !status.Valid() {
		return fmt.Errorf("set draft status: %w: %q", ErrInvalidStatus, status)
	}
	var summary sql.NullString
	if extra.EditSummary != nil {
		summary = sql.NullString{String: *extra.EditSummary, Valid: true}
	}
	var syncedAt sql.NullTime
	if extra.SyncedAt != nil {
		syncedAt = sql.NullTime{Time: *extra.SyncedAt, Valid: true}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE edit_drafts
		SET status=$2,
			edit_summary=CASE WHEN $3::boolean THEN NULLIF($4, '') ELSE edit_summary END,
			reviewed_by=COALESCE(NULLIF($5, ''), reviewed_by),
			reviewed_at=CASE WHEN $2 IN ('approved', 'rejected') THEN NOW() ELSE reviewed_at END,
			review_feedback=COALESCE(NULLIF($6, ''), review_feedback),
			pr_url=COALESCE(NULLIF($7, ''), pr_url),
			synced_at=COALESCE($8, synced_at),
			updated_at=NOW()
		WHERE id=$1
	`, draftID, string(status), summary.Valid, summary.String, extra.ReviewedBy, extra.ReviewFeedback, extra.PRURL, syncedAt)
	if err != nil {
		return fmt.Errorf("set draft status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("set draft status %s: %w", draftID, ErrNotFound)
	}
	return nil
}

// RecordSync stores the external sync pointer without touching the status.
func (s *PostgresStore) RecordSync(ctx context.Context, draftID, prURL string, syncedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE edit_drafts SET pr_url=$2, synced_at=$3 WHERE id=$1
	`, draftID, prURL, syncedAt)
	if err != nil {
		return fmt.Errorf("record draft sync: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDraftsByStatus(ctx context.Context, status DraftStatus, limit int) ([]Draft, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+draftColumns+`
		FROM edit_drafts
		WHERE status=$1
		ORDER BY updated_at DESC
		LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list drafts by status: %w", err)
	}
	defer rows.Close()
	return collectDrafts(rows)
}

// SearchDrafts is the full-text fallback for the review queue. It ranks
// submitted drafts by the generated fts column.
func (s *PostgresStore) SearchDrafts(ctx context.Context, query string, limit int) ([]Draft, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+draftColumns+`
		FROM edit_drafts
		WHERE status='pending_review'
			AND ($1 = '' OR fts @@ websearch_to_tsquery('english', $1))
		ORDER BY ts_rank(fts, websearch_to_tsquery('english', $1)) DESC, updated_at DESC
		LIMIT $2
	`, strings.TrimSpace(query), limit)
	if err != nil {
		return nil, fmt.Errorf("search drafts: %w", err)
	}
	defer rows.Close()
	return collectDrafts(rows)
}

func (s *PostgresStore) GetProduct(ctx context.Context, productID string) (ProductRow, error) {
	var (
		item      ProductRow
		dataRaw   string
		certified sql.NullTime
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, company, data::text, certified_at, updated_at
		FROM products
		WHERE id=$1
	`, productID).Scan(&item.ID, &item.Company, &dataRaw, &certified, &item.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ProductRow{}, ErrNotFound
	}
	if err != nil {
		return ProductRow{}, fmt.Errorf("get product: %w", err)
	}
	if err := json.Unmarshal([]byte(dataRaw), &item.Data); err != nil {
		return ProductRow{}, fmt.Errorf("decode product %s: %w", productID, err)
	}
	if certified.Valid {
		at := certified.Time
		item.CertifiedAt = &at
	}
	return item, nil
}

func (s *PostgresStore) UpsertProduct(ctx context.Context, row ProductRow) error {
	encoded, err := json.Marshal(row.Data)
	if err != nil {
		return fmt.Errorf("encode product: %w", err)
	}
	var certified sql.NullTime
	if row.CertifiedAt != nil {
		certified = sql.NullTime{Time: *row.CertifiedAt, Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO products (id, data, company, certified_at)
		VALUES ($1, $2::jsonb, $3, $4)
		ON CONFLICT (id) DO UPDATE
		SET data=EXCLUDED.data, company=EXCLUDED.company, certified_at=EXCLUDED.certified_at, updated_at=NOW()
	`, row.ID, string(encoded), row.Company, certified)
	if err != nil {
		return fmt.Errorf("upsert product: %w", err)
	}
	return nil
}
