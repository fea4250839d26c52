package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/nylar/kensaku/internal/model"
	apperrors "github.com/nylar/kensaku/pkg/errors"
	"github.com/nylar/kensaku/pkg/postgres"
)

const schema = `
CREATE TABLE IF NOT EXISTS documents (
	id         BIGINT PRIMARY KEY,
	url        TEXT NOT NULL,
	title      TEXT NOT NULL,
	content    TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'PENDING',
	indexed_at TIMESTAMPTZ,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// PostgresStore persists documents in the documents table.
type PostgresStore struct {
	client *postgres.Client
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(client *postgres.Client) *PostgresStore {
	return &PostgresStore{client: client}
}

// EnsureSchema creates the documents table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.client.DB.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating documents table: %w", err)
	}
	return nil
}

func (s *PostgresStore) Put(ctx context.Context, doc model.Document) error {
	_, err := s.client.DB.ExecContext(ctx,
		`INSERT INTO documents (id, url, title, content, status) VALUES ($1, $2, $3, $4, $5)`,
		doc.ID(), doc.URL(), doc.Title(), doc.Content(), StatusPending,
	)
	if postgres.IsUniqueViolation(err) {
		return apperrors.Newf(apperrors.ErrDocumentExists, "id %d", doc.ID())
	}
	if err != nil {
		return fmt.Errorf("inserting document %d: %w", doc.ID(), err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id int) (model.Document, error) {
	var url, title, content string
	err := s.client.DB.QueryRowContext(ctx,
		`SELECT url, title, content FROM documents WHERE id = $1`, id,
	).Scan(&url, &title, &content)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Document{}, apperrors.Newf(apperrors.ErrDocumentNotFound, "id %d", id)
	}
	if err != nil {
		return model.Document{}, fmt.Errorf("querying document %d: %w", id, err)
	}
	return model.NewDocument(id, url, title, content), nil
}

func (s *PostgresStore) Delete(ctx context.Context, id int) error {
	res, err := s.client.DB.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting document %d: %w", id, err)
	}
	return requireRow(res, id)
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.client.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) MarkIndexed(ctx context.Context, id int, status string) error {
	res, err := s.client.DB.ExecContext(ctx,
		`UPDATE documents SET status = $1, indexed_at = NOW() WHERE id = $2`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("updating status of document %d: %w", id, err)
	}
	return requireRow(res, id)
}

func requireRow(res sql.Result, id int) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return apperrors.Newf(apperrors.ErrDocumentNotFound, "id %d", id)
	}
	return nil
}
