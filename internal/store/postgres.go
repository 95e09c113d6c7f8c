package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
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

// withTx runs fn inside a transaction, rolling back on error or panic.
func (s *PostgresStore) withTx(ctx context.Context, fn func(*sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()
	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

const userColumns = `id, token_identifier, subject, name, email, picture_url, organization_id, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var user User
	err := row.Scan(
		&user.ID,
		&user.TokenIdentifier,
		&user.Subject,
		&user.Name,
		&user.Email,
		&user.PictureURL,
		&user.OrganizationID,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	return user, err
}

func (s *PostgresStore) GetUserByTokenIdentifier(ctx context.Context, tokenIdentifier string) (User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE token_identifier=$1`, tokenIdentifier)
	return scanUser(row)
}

// FindUserByEmail returns nil when no account carries the email.
func (s *PostgresStore) FindUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+userColumns+`
		FROM users
		WHERE email=$1
		ORDER BY created_at ASC
		LIMIT 1
	`, strings.ToLower(strings.TrimSpace(email)))
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user by email: %w", err)
	}
	return &user, nil
}

// UpsertUser mirrors the identity provider's view of a user. The first time a
// token identifier is seen, shares addressed to "invite:<email>" are rebound
// to it; a placeholder is dropped when the user already holds a share on the
// same document. claimed counts rebound shares.
func (s *PostgresStore) UpsertUser(ctx context.Context, input User) (user User, created bool, claimed int, err error) {
	input.Email = strings.ToLower(strings.TrimSpace(input.Email))
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		existing, lookupErr := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE token_identifier=$1 FOR UPDATE`, input.TokenIdentifier))
		switch {
		case lookupErr == nil:
			updated, updateErr := scanUser(tx.QueryRowContext(ctx, `
				UPDATE users
				SET name=$2, email=$3, picture_url=$4, organization_id=$5, updated_at=NOW()
				WHERE id=$1
				RETURNING `+userColumns,
				existing.ID, input.Name, input.Email, input.PictureURL, input.OrganizationID,
			))
			if updateErr != nil {
				return fmt.Errorf("update user: %w", updateErr)
			}
			user = updated
			return nil
		case !errors.Is(lookupErr, sql.ErrNoRows):
			return fmt.Errorf("lookup user: %w", lookupErr)
		}

		inserted, insertErr := scanUser(tx.QueryRowContext(ctx, `
			INSERT INTO users (id, token_identifier, subject, name, email, picture_url, organization_id)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (token_identifier) DO NOTHING
			RETURNING `+userColumns,
			input.ID, input.TokenIdentifier, input.Subject, input.Name, input.Email, input.PictureURL, input.OrganizationID,
		))
		if errors.Is(insertErr, sql.ErrNoRows) {
			// a concurrent request inserted the row first and owns the claim
			raced, raceErr := scanUser(tx.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE token_identifier=$1`, input.TokenIdentifier))
			if raceErr != nil {
				return fmt.Errorf("reload user: %w", raceErr)
			}
			user = raced
			return nil
		}
		if insertErr != nil {
			return fmt.Errorf("insert user: %w", insertErr)
		}
		user = inserted
		created = true

		if input.Email == "" {
			return nil
		}
		placeholder := InvitePrefix + input.Email
		if _, dropErr := tx.ExecContext(ctx, `
			DELETE FROM document_shares p
			WHERE p.user_id=$1
				AND EXISTS (
					SELECT 1 FROM document_shares r
					WHERE r.document_id = p.document_id AND r.user_id = $2
				)
		`, placeholder, inserted.TokenIdentifier); dropErr != nil {
			return fmt.Errorf("drop duplicate invites: %w", dropErr)
		}
		result, claimErr := tx.ExecContext(ctx, `
			UPDATE document_shares
			SET user_id=$2, updated_at=NOW()
			WHERE user_id=$1
		`, placeholder, inserted.TokenIdentifier)
		if claimErr != nil {
			return fmt.Errorf("claim invites: %w", claimErr)
		}
		affected, _ := result.RowsAffected()
		claimed = int(affected)
		return nil
	})
	if err != nil {
		return User{}, false, 0, err
	}
	return user, created, claimed, nil
}

const documentColumns = `id, title, owner_id, organization_id, content, created_at, updated_at`

func scanDocument(row rowScanner) (Document, error) {
	var doc Document
	err := row.Scan(&doc.ID, &doc.Title, &doc.OwnerID, &doc.OrganizationID, &doc.Content, &doc.CreatedAt, &doc.UpdatedAt)
	return doc, err
}

func (s *PostgresStore) InsertDocument(ctx context.Context, doc Document) (Document, error) {
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO documents (id, title, owner_id, organization_id, content)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+documentColumns,
		doc.ID, doc.Title, doc.OwnerID, doc.OrganizationID, doc.Content,
	)
	inserted, err := scanDocument(row)
	if err != nil {
		return Document{}, fmt.Errorf("insert document: %w", err)
	}
	return inserted, nil
}

// GetDocument returns sql.ErrNoRows when the document does not exist.
func (s *PostgresStore) GetDocument(ctx context.Context, documentID string) (Document, error) {
	return scanDocument(s.db.QueryRowContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id=$1`, documentID))
}

func (s *PostgresStore) GetDocuments(ctx context.Context, documentIDs []string) ([]Document, error) {
	items := make([]Document, 0, len(documentIDs))
	if len(documentIDs) == 0 {
		return items, nil
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+documentColumns+` FROM documents WHERE id = ANY($1)`, documentIDs)
	if err != nil {
		return nil, fmt.Errorf("get documents: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, doc)
	}
	return items, rows.Err()
}

// ListDocuments lists an organization's documents when OrganizationID is set,
// otherwise the owner's.
func (s *PostgresStore) ListDocuments(ctx context.Context, filter DocumentListFilter) ([]Document, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	query := `SELECT ` + documentColumns + ` FROM documents WHERE owner_id=$1 ORDER BY updated_at DESC, id DESC LIMIT $2 OFFSET $3`
	scope := filter.OwnerID
	if filter.OrganizationID != "" {
		query = `SELECT ` + documentColumns + ` FROM documents WHERE organization_id=$1 ORDER BY updated_at DESC, id DESC LIMIT $2 OFFSET $3`
		scope = filter.OrganizationID
	}

	rows, err := s.db.QueryContext(ctx, query, scope, limit, max(filter.Offset, 0))
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	items := make([]Document, 0)
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		items = append(items, doc)
	}
	return items, rows.Err()
}

func (s *PostgresStore) UpdateDocumentTitle(ctx context.Context, documentID, title string) (Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx, `
		UPDATE documents SET title=$2, updated_at=NOW() WHERE id=$1 RETURNING `+documentColumns,
		documentID, title,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, err
		}
		return Document{}, fmt.Errorf("update document title: %w", err)
	}
	return doc, nil
}

func (s *PostgresStore) UpdateDocumentContent(ctx context.Context, documentID, content string) (Document, error) {
	doc, err := scanDocument(s.db.QueryRowContext(ctx, `
		UPDATE documents SET content=$2, updated_at=NOW() WHERE id=$1 RETURNING `+documentColumns,
		documentID, content,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Document{}, err
		}
		return Document{}, fmt.Errorf("update document content: %w", err)
	}
	return doc, nil
}

// DeleteDocument removes only the document row.
func (s *PostgresStore) DeleteDocument(ctx context.Context, documentID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM documents WHERE id=$1`, documentID)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete document rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
