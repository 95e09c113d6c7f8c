package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"synkris/api/internal/rbac"
)

// ShareRole satisfies rbac.ShareLookup. A missing share is RoleNone.
func (s *PostgresStore) ShareRole(ctx context.Context, documentID, userID string) (rbac.Role, error) {
	var role string
	err := s.db.QueryRowContext(ctx, `SELECT role FROM document_shares WHERE document_id=$1 AND user_id=$2`, documentID, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.RoleNone, nil
	}
	if err != nil {
		return rbac.RoleNone, fmt.Errorf("read share role: %w", err)
	}
	return rbac.Role(role), nil
}

// UpsertShare creates the share or replaces the role on an existing
// (document, user) pair.
func (s *PostgresStore) UpsertShare(ctx context.Context, share Share) (Share, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO document_shares (id, document_id, user_id, email, role)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (document_id, user_id) DO UPDATE
			SET role=EXCLUDED.role,
				email=CASE WHEN EXCLUDED.email <> '' THEN EXCLUDED.email ELSE document_shares.email END,
				updated_at=NOW()
		RETURNING id, email, created_at, updated_at
	`, share.ID, share.DocumentID, share.UserID, share.Email, share.Role).Scan(&share.ID, &share.Email, &share.CreatedAt, &share.UpdatedAt)
	if err != nil {
		return Share{}, fmt.Errorf("upsert share: %w", err)
	}
	return share, nil
}

func (s *PostgresStore) DeleteShare(ctx context.Context, documentID, userID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM document_shares WHERE document_id=$1 AND user_id=$2`, documentID, userID)
	if err != nil {
		return false, fmt.Errorf("delete share: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete share rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListShares(ctx context.Context, documentID string) ([]ShareWithUser, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.document_id, s.user_id, s.email, s.role, s.created_at, s.updated_at,
			COALESCE(u.name, ''), COALESCE(u.picture_url, '')
		FROM document_shares s
		LEFT JOIN users u ON u.token_identifier = s.user_id
		WHERE s.document_id=$1
		ORDER BY s.created_at ASC, s.id ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list shares: %w", err)
	}
	defer rows.Close()

	items := make([]ShareWithUser, 0)
	for rows.Next() {
		var item ShareWithUser
		if err := rows.Scan(
			&item.ID,
			&item.DocumentID,
			&item.UserID,
			&item.Email,
			&item.Role,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.UserName,
			&item.PictureURL,
		); err != nil {
			return nil, fmt.Errorf("scan share: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *PostgresStore) ListSharedDocuments(ctx context.Context, userID string) ([]SharedDocument, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.title, d.owner_id, d.organization_id, d.content, d.created_at, d.updated_at, s.role, s.created_at
		FROM document_shares s
		JOIN documents d ON d.id = s.document_id
		WHERE s.user_id=$1
		ORDER BY s.created_at DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list shared documents: %w", err)
	}
	defer rows.Close()

	items := make([]SharedDocument, 0)
	for rows.Next() {
		var item SharedDocument
		if err := rows.Scan(
			&item.ID,
			&item.Title,
			&item.OwnerID,
			&item.OrganizationID,
			&item.Content,
			&item.CreatedAt,
			&item.UpdatedAt,
			&item.Role,
			&item.SharedAt,
		); err != nil {
			return nil, fmt.Errorf("scan shared document: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}
