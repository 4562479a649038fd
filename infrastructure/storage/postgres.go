package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/specforge/specforge/internal/domain"
	"github.com/specforge/specforge/internal/ports"
)

// DB is the subset of pgxpool.Pool the store needs. Taking the interface
// keeps the store testable without a live database.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Schema creates the store's tables. Documents are stored as JSONB with the
// listing columns lifted out for cheap summaries.
const Schema = `
CREATE TABLE IF NOT EXISTS documents (
	document_id TEXT PRIMARY KEY,
	doc_type    TEXT NOT NULL,
	title       TEXT NOT NULL DEFAULT '',
	version     TEXT NOT NULL DEFAULT '',
	body        JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	updated_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS documents_type_created_idx ON documents (doc_type, created_at DESC);
CREATE INDEX IF NOT EXISTS documents_related_brd_idx ON documents ((body->>'related_brd_id'));

CREATE TABLE IF NOT EXISTS document_history (
	entry_id    TEXT PRIMARY KEY,
	document_id TEXT NOT NULL,
	body        JSONB NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS document_history_doc_idx ON document_history (document_id, created_at);

CREATE TABLE IF NOT EXISTS validation_results (
	document_id TEXT PRIMARY KEY,
	body        JSONB NOT NULL
);
`

// PostgresStore persists documents as JSONB rows.
type PostgresStore struct {
	db DB
}

// NewPostgresStore builds a store over an existing connection source.
func NewPostgresStore(db DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Connect opens a pgx pool against dsn, verifies connectivity, applies the
// schema, and returns a ready store plus the pool for lifecycle management.
func Connect(ctx context.Context, dsn string) (*PostgresStore, *pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	cfg.MaxConns = 25

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, Schema); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("apply schema: %w", err)
	}
	return NewPostgresStore(pool), pool, nil
}

func (s *PostgresStore) SaveBRD(ctx context.Context, doc *domain.BRDDocument) error {
	return s.upsertDocument(ctx, doc.DocumentID, domain.DocumentTypeBRD, doc.Title, doc.Version, doc, doc.CreatedAt, doc.UpdatedAt)
}

func (s *PostgresStore) SavePRD(ctx context.Context, doc *domain.PRDDocument) error {
	return s.upsertDocument(ctx, doc.DocumentID, domain.DocumentTypePRD, doc.ProductName, doc.Version, doc, doc.CreatedAt, doc.UpdatedAt)
}

func (s *PostgresStore) upsertDocument(ctx context.Context, id string, docType domain.DocumentType, title, version string, body any, createdAt, updatedAt time.Time) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode document %s: %w", id, err)
	}

	const query = `
		INSERT INTO documents (document_id, doc_type, title, version, body, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (document_id) DO UPDATE
		SET title = EXCLUDED.title, version = EXCLUDED.version,
		    body = EXCLUDED.body, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.db.Exec(ctx, query, id, string(docType), title, version, raw, createdAt, updatedAt); err != nil {
		return fmt.Errorf("save document %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) GetBRD(ctx context.Context, documentID string) (*domain.BRDDocument, error) {
	var doc domain.BRDDocument
	if err := s.getDocument(ctx, documentID, domain.DocumentTypeBRD, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *PostgresStore) GetPRD(ctx context.Context, documentID string) (*domain.PRDDocument, error) {
	var doc domain.PRDDocument
	if err := s.getDocument(ctx, documentID, domain.DocumentTypePRD, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (s *PostgresStore) getDocument(ctx context.Context, id string, docType domain.DocumentType, out any) error {
	const query = `SELECT body FROM documents WHERE document_id = $1 AND doc_type = $2`

	var raw []byte
	err := s.db.QueryRow(ctx, query, id, string(docType)).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrDocumentNotFound
	}
	if err != nil {
		return fmt.Errorf("load document %s: %w", id, err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode document %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) ListDocuments(ctx context.Context, filter ports.ListFilter) ([]domain.DocumentSummary, error) {
	const query = `
		SELECT document_id, doc_type, title, version, created_at, updated_at
		FROM documents
		WHERE ($1 = '' OR doc_type = $1)
		ORDER BY created_at DESC
		LIMIT CASE WHEN $2 > 0 THEN $2 ELSE NULL END OFFSET $3
	`
	return s.querySummaries(ctx, query, string(filter.Type), filter.Limit, filter.Offset)
}

func (s *PostgresStore) SearchDocuments(ctx context.Context, filter ports.ListFilter) ([]domain.DocumentSummary, error) {
	const query = `
		SELECT document_id, doc_type, title, version, created_at, updated_at
		FROM documents
		WHERE ($1 = '' OR doc_type = $1) AND title ILIKE '%' || $4 || '%'
		ORDER BY created_at DESC
		LIMIT CASE WHEN $2 > 0 THEN $2 ELSE NULL END OFFSET $3
	`
	return s.querySummaries(ctx, query, string(filter.Type), filter.Limit, filter.Offset, filter.Query)
}

func (s *PostgresStore) querySummaries(ctx context.Context, query string, args ...any) ([]domain.DocumentSummary, error) {
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	defer rows.Close()

	var out []domain.DocumentSummary
	for rows.Next() {
		var sum domain.DocumentSummary
		var docType string
		if err := rows.Scan(&sum.DocumentID, &docType, &sum.Title, &sum.Version, &sum.CreatedAt, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan document summary: %w", err)
		}
		sum.Type = domain.DocumentType(docType)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("delete document %s: %w", documentID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrDocumentNotFound
	}

	if _, err := s.db.Exec(ctx, `DELETE FROM document_history WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete history for %s: %w", documentID, err)
	}
	if _, err := s.db.Exec(ctx, `DELETE FROM validation_results WHERE document_id = $1`, documentID); err != nil {
		return fmt.Errorf("delete validation for %s: %w", documentID, err)
	}
	return nil
}

func (s *PostgresStore) SaveHistory(ctx context.Context, entry domain.HistoryEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode history entry: %w", err)
	}

	const query = `
		INSERT INTO document_history (entry_id, document_id, body, created_at)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := s.db.Exec(ctx, query, entry.EntryID, entry.DocumentID, raw, entry.CreatedAt); err != nil {
		return fmt.Errorf("save history for %s: %w", entry.DocumentID, err)
	}
	return nil
}

func (s *PostgresStore) GetHistory(ctx context.Context, documentID string) ([]domain.HistoryEntry, error) {
	const query = `
		SELECT body FROM document_history
		WHERE document_id = $1
		ORDER BY created_at ASC
	`
	rows, err := s.db.Query(ctx, query, documentID)
	if err != nil {
		return nil, fmt.Errorf("query history for %s: %w", documentID, err)
	}
	defer rows.Close()

	var entries []domain.HistoryEntry
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		var entry domain.HistoryEntry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, fmt.Errorf("decode history entry: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return entries, nil
}

func (s *PostgresStore) SaveValidationResult(ctx context.Context, result domain.ValidationResult) error {
	raw, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("encode validation result: %w", err)
	}

	const query = `
		INSERT INTO validation_results (document_id, body)
		VALUES ($1, $2)
		ON CONFLICT (document_id) DO UPDATE SET body = EXCLUDED.body
	`
	if _, err := s.db.Exec(ctx, query, result.DocumentID, raw); err != nil {
		return fmt.Errorf("save validation for %s: %w", result.DocumentID, err)
	}
	return nil
}

func (s *PostgresStore) GetValidationResult(ctx context.Context, documentID string) (*domain.ValidationResult, error) {
	const query = `SELECT body FROM validation_results WHERE document_id = $1`

	var raw []byte
	err := s.db.QueryRow(ctx, query, documentID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrDocumentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load validation for %s: %w", documentID, err)
	}

	var result domain.ValidationResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode validation for %s: %w", documentID, err)
	}
	return &result, nil
}

func (s *PostgresStore) GetLinkedPRDs(ctx context.Context, brdID string) ([]*domain.PRDDocument, error) {
	const query = `
		SELECT body FROM documents
		WHERE doc_type = $1 AND body->>'related_brd_id' = $2
		ORDER BY created_at DESC
	`
	rows, err := s.db.Query(ctx, query, string(domain.DocumentTypePRD), brdID)
	if err != nil {
		return nil, fmt.Errorf("query linked PRDs for %s: %w", brdID, err)
	}
	defer rows.Close()

	var docs []*domain.PRDDocument
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan linked PRD: %w", err)
		}
		var doc domain.PRDDocument
		if err := json.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("decode linked PRD: %w", err)
		}
		docs = append(docs, &doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate linked PRDs: %w", err)
	}
	return docs, nil
}

var _ ports.DocumentRepository = (*PostgresStore)(nil)
