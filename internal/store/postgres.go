package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
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

// SaveDocument inserts or updates a document snapshot. An older version
// never overwrites a newer one.
func (s *PostgresStore) SaveDocument(ctx context.Context, doc Document) error {
	content := doc.Content
	if len(content) == 0 {
		content = json.RawMessage(`{"type":"doc"}`)
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO documents (id, title, content, canonical_text, version)
		VALUES ($1, $2, $3::jsonb, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET title=EXCLUDED.title,
			content=EXCLUDED.content,
			canonical_text=EXCLUDED.canonical_text,
			version=EXCLUDED.version,
			updated_at=NOW()
		WHERE documents.version <= EXCLUDED.version
	`, doc.ID, doc.Title, string(content), doc.CanonicalText, doc.Version)
	if err != nil {
		return fmt.Errorf("save document: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetDocument(ctx context.Context, id string) (Document, error) {
	var doc Document
	var content []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, content, canonical_text, version, created_at, updated_at
		FROM documents
		WHERE id=$1
	`, id).Scan(&doc.ID, &doc.Title, &content, &doc.CanonicalText, &doc.Version, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, fmt.Errorf("get document: %w", err)
	}
	doc.Content = json.RawMessage(content)
	return doc, nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, limit int) ([]DocumentSummary, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, version, updated_at
		FROM documents
		ORDER BY updated_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]DocumentSummary, 0)
	for rows.Next() {
		var item DocumentSummary
		if err := rows.Scan(&item.ID, &item.Title, &item.Version, &item.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return items, nil
}

// ListDocumentTexts returns id, title and canonical text of every document
// for search reindexing.
func (s *PostgresStore) ListDocumentTexts(ctx context.Context) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, canonical_text FROM documents ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list document texts: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		var item Document
		if err := rows.Scan(&item.ID, &item.Title, &item.CanonicalText); err != nil {
			return nil, fmt.Errorf("scan document text: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate document texts: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertRun(ctx context.Context, run AnalysisRun) error {
	status := run.Status
	if status == "" {
		status = RunRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO analysis_runs (id, document_id, status)
		VALUES ($1, $2, $3)
	`, run.ID, run.DocumentID, status)
	if err != nil {
		return fmt.Errorf("insert analysis run: %w", err)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, id, status string, itemCount int, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE analysis_runs
		SET status=$2, item_count=$3, error=$4, finished_at=NOW()
		WHERE id=$1 AND status='running'
	`, id, status, itemCount, errMsg)
	if err != nil {
		return fmt.Errorf("finish analysis run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, documentID string, limit int) ([]AnalysisRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, status, item_count, error, started_at, finished_at
		FROM analysis_runs
		WHERE document_id=$1
		ORDER BY started_at DESC
		LIMIT $2
	`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list analysis runs: %w", err)
	}
	defer rows.Close()

	items := make([]AnalysisRun, 0)
	for rows.Next() {
		var item AnalysisRun
		var finished sql.NullTime
		if err := rows.Scan(&item.ID, &item.DocumentID, &item.Status, &item.ItemCount, &item.Error, &item.StartedAt, &finished); err != nil {
			return nil, fmt.Errorf("scan analysis run: %w", err)
		}
		if finished.Valid {
			t := finished.Time
			item.FinishedAt = &t
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analysis runs: %w", err)
	}
	return items, nil
}

func (s *PostgresStore) InsertDecision(ctx context.Context, d Decision) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO correction_decisions (document_id, correction_id, run_id, outcome, original_text, new_text, class)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, d.DocumentID, d.CorrectionID, d.RunID, d.Outcome, d.OriginalText, d.NewText, d.Class)
	if err != nil {
		return fmt.Errorf("insert correction decision: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDecisions(ctx context.Context, documentID string, limit int) ([]Decision, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, correction_id, run_id, outcome, original_text, new_text, class, decided_at
		FROM correction_decisions
		WHERE document_id=$1
		ORDER BY decided_at DESC, id DESC
		LIMIT $2
	`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list correction decisions: %w", err)
	}
	defer rows.Close()

	items := make([]Decision, 0)
	for rows.Next() {
		var item Decision
		if err := rows.Scan(
			&item.ID,
			&item.DocumentID,
			&item.CorrectionID,
			&item.RunID,
			&item.Outcome,
			&item.OriginalText,
			&item.NewText,
			&item.Class,
			&item.DecidedAt,
		); err != nil {
			return nil, fmt.Errorf("scan correction decision: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate correction decisions: %w", err)
	}
	return items, nil
}

// PruneRuns deletes finished runs older than the cutoff.
func (s *PostgresStore) PruneRuns(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM analysis_runs WHERE finished_at IS NOT NULL AND finished_at < $1
	`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("prune analysis runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
