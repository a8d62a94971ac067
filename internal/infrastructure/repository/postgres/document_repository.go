package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/avdeenko/docqa/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082501)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id BIGSERIAL PRIMARY KEY,
	url TEXT NOT NULL UNIQUE,
	filename TEXT NOT NULL,
	status TEXT NOT NULL,
	error_message TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS passages (
	id TEXT PRIMARY KEY,
	document_id BIGINT NOT NULL REFERENCES documents(id),
	body TEXT NOT NULL,
	page INTEGER,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_passages_document_id ON passages(document_id);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Store registers a document by URL. Registering an existing URL keeps its id
// and replaces the filename, so repeated ingestion of the same source never
// forks identities.
func (r *DocumentRepository) Store(ctx context.Context, url, filename string) (int64, error) {
	var id int64
	err := r.db.QueryRowContext(ctx, `
INSERT INTO documents (url, filename, status)
VALUES ($1, $2, $3)
ON CONFLICT (url) DO UPDATE SET filename = EXCLUDED.filename, updated_at = now()
RETURNING id
`, url, filename, string(domain.StatusUploaded)).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store document: %w", err)
	}
	return id, nil
}

func (r *DocumentRepository) Lookup(ctx context.Context, url string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, url, filename, status, error_message, created_at, updated_at
FROM documents
WHERE url = $1
`, url)

	var doc domain.Document
	var status string
	err := row.Scan(&doc.ID, &doc.URL, &doc.Filename, &status, &doc.Error, &doc.CreatedAt, &doc.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "lookup document", fmt.Errorf("url %s", url))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}
	doc.Status = domain.DocumentStatus(status)
	return &doc, nil
}

func (r *DocumentRepository) UpdateStatus(ctx context.Context, id int64, status domain.DocumentStatus, errMessage string) error {
	_, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, error_message = $3, updated_at = $4
WHERE id = $1
`, id, string(status), errMessage, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("update document status: %w", err)
	}
	return nil
}

// StorePassages upserts the indexed chunks for audit and rebuilds. Passage
// ids repeat on re-ingestion, so conflicts replace the body in place.
func (r *DocumentRepository) StorePassages(ctx context.Context, passages []domain.Passage) error {
	if len(passages) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin passages tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stmt, err := tx.PrepareContext(ctx, `
INSERT INTO passages (id, document_id, body, page)
VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET body = EXCLUDED.body, page = EXCLUDED.page
`)
	if err != nil {
		return fmt.Errorf("prepare passage insert: %w", err)
	}
	defer stmt.Close()

	for _, p := range passages {
		if _, err := stmt.ExecContext(ctx, p.ID, p.DocID, p.Text, p.Page); err != nil {
			return fmt.Errorf("insert passage %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit passages tx: %w", err)
	}
	return nil
}
