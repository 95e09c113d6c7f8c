package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

const versionColumns = `id, document_id, position, length, content, created_by, created_at`

func scanVersion(row rowScanner) (TextVersion, error) {
	var v TextVersion
	err := row.Scan(&v.ID, &v.DocumentID, &v.Position, &v.Length, &v.Content, &v.CreatedBy, &v.CreatedAt)
	return v, err
}

// InsertVersion appends a snapshot. created_at is taken from the caller so
// ordering follows the service clock.
func (s *PostgresStore) InsertVersion(ctx context.Context, v TextVersion) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO text_versions (id, document_id, position, length, content, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, v.ID, v.DocumentID, v.Position, v.Length, v.Content, v.CreatedBy, v.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert version: %w", err)
	}
	return nil
}

// ListVersionsByPosition returns snapshots at exactly position, newest first.
// limit <= 0 returns the whole history.
func (s *PostgresStore) ListVersionsByPosition(ctx context.Context, documentID string, position, limit int) ([]TextVersion, error) {
	query := `
		SELECT ` + versionColumns + `
		FROM text_versions
		WHERE document_id=$1 AND position=$2
		ORDER BY created_at DESC, id DESC`
	args := []any{documentID, position}
	if limit > 0 {
		query += ` LIMIT $3`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	items := make([]TextVersion, 0)
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan version: %w", err)
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

// LatestVersion returns nil when no snapshot exists at position.
func (s *PostgresStore) LatestVersion(ctx context.Context, documentID string, position int) (*TextVersion, error) {
	v, err := scanVersion(s.db.QueryRowContext(ctx, `
		SELECT `+versionColumns+`
		FROM text_versions
		WHERE document_id=$1 AND position=$2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, documentID, position))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest version: %w", err)
	}
	return &v, nil
}
