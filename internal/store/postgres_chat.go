package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const messageColumns = `id, document_id, user_id, user_name, user_avatar, content, created_at`

func scanMessage(row rowScanner) (Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.DocumentID, &m.UserID, &m.UserName, &m.UserAvatar, &m.Content, &m.CreatedAt)
	return m, err
}

func (s *PostgresStore) InsertMessage(ctx context.Context, m Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, document_id, user_id, user_name, user_avatar, content, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, m.ID, m.DocumentID, m.UserID, m.UserName, m.UserAvatar, m.Content, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns the most recent limit messages in ascending time order.
func (s *PostgresStore) ListMessages(ctx context.Context, documentID string, limit int) ([]Message, error) {
	if limit <= 0 || limit > 500 {
		limit = 200
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+messageColumns+`
		FROM (
			SELECT `+messageColumns+`
			FROM messages
			WHERE document_id=$1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC
	`, documentID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	items := make([]Message, 0)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		items = append(items, m)
	}
	return items, rows.Err()
}

// GetMessage returns sql.ErrNoRows when the message does not exist.
func (s *PostgresStore) GetMessage(ctx context.Context, messageID string) (Message, error) {
	return scanMessage(s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID))
}

func (s *PostgresStore) DeleteMessage(ctx context.Context, messageID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id=$1`, messageID)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete message rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// GetReadMark returns the zero time when the viewer has never opened the chat.
func (s *PostgresStore) GetReadMark(ctx context.Context, documentID, userID string) (time.Time, error) {
	var lastReadAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(last_read_at) FROM chat_read_marks WHERE document_id=$1 AND user_id=$2
	`, documentID, userID).Scan(&lastReadAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("get read mark: %w", err)
	}
	if !lastReadAt.Valid {
		return time.Time{}, nil
	}
	return lastReadAt.Time, nil
}

// AdvanceReadMark moves the watermark forward only; an older value is ignored.
func (s *PostgresStore) AdvanceReadMark(ctx context.Context, documentID, userID string, at time.Time) (time.Time, error) {
	var lastReadAt time.Time
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO chat_read_marks (document_id, user_id, last_read_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (document_id, user_id) DO UPDATE
			SET last_read_at=GREATEST(chat_read_marks.last_read_at, EXCLUDED.last_read_at),
				updated_at=NOW()
		RETURNING last_read_at
	`, documentID, userID, at).Scan(&lastReadAt)
	if err != nil {
		return time.Time{}, fmt.Errorf("advance read mark: %w", err)
	}
	return lastReadAt, nil
}
