package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"hash/fnv"
	"strconv"
)

type ToggleOutcome int

const (
	LockCreated ToggleOutcome = iota + 1
	LockRemoved
	LockHeldByOther
)

// LockToggle carries the lock that was created, removed, or that blocked the
// caller.
type LockToggle struct {
	Outcome ToggleOutcome
	Lock    Lock
}

const lockColumns = `id, document_id, position, length, locked_by, locked_at`

func scanLock(row rowScanner) (Lock, error) {
	var lock Lock
	err := row.Scan(&lock.ID, &lock.DocumentID, &lock.Position, &lock.Length, &lock.LockedBy, &lock.LockedAt)
	return lock, err
}

// lockKey maps (document, position) onto the int64 advisory lock space.
func lockKey(documentID string, position int) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("synkris:lock:" + documentID + ":" + strconv.Itoa(position)))
	return int64(h.Sum64())
}

// ToggleLock claims or releases the lock at (document, position) as one
// transaction. Concurrent toggles on the same key are serialised by a
// transaction-scoped advisory lock; the unique (document_id, position)
// constraint backs that up.
func (s *PostgresStore) ToggleLock(ctx context.Context, candidate Lock) (LockToggle, error) {
	var out LockToggle
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey(candidate.DocumentID, candidate.Position)); err != nil {
			return fmt.Errorf("acquire lock key: %w", err)
		}

		existing, err := scanLock(tx.QueryRowContext(ctx, `
			SELECT `+lockColumns+`
			FROM locked_paragraphs
			WHERE document_id=$1 AND position=$2
			FOR UPDATE
		`, candidate.DocumentID, candidate.Position))
		switch {
		case err == nil:
			if existing.LockedBy != candidate.LockedBy {
				out = LockToggle{Outcome: LockHeldByOther, Lock: existing}
				return nil
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM locked_paragraphs WHERE id=$1`, existing.ID); err != nil {
				return fmt.Errorf("delete lock: %w", err)
			}
			out = LockToggle{Outcome: LockRemoved, Lock: existing}
			return nil
		case !errors.Is(err, sql.ErrNoRows):
			return fmt.Errorf("read lock: %w", err)
		}

		inserted, err := scanLock(tx.QueryRowContext(ctx, `
			INSERT INTO locked_paragraphs (id, document_id, position, length, locked_by)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (document_id, position) DO NOTHING
			RETURNING `+lockColumns,
			candidate.ID, candidate.DocumentID, candidate.Position, candidate.Length, candidate.LockedBy,
		))
		if errors.Is(err, sql.ErrNoRows) {
			holder, reloadErr := scanLock(tx.QueryRowContext(ctx, `SELECT `+lockColumns+` FROM locked_paragraphs WHERE document_id=$1 AND position=$2`, candidate.DocumentID, candidate.Position))
			if reloadErr != nil {
				return fmt.Errorf("reload lock: %w", reloadErr)
			}
			out = LockToggle{Outcome: LockHeldByOther, Lock: holder}
			return nil
		}
		if err != nil {
			return fmt.Errorf("insert lock: %w", err)
		}
		out = LockToggle{Outcome: LockCreated, Lock: inserted}
		return nil
	})
	if err != nil {
		return LockToggle{}, err
	}
	return out, nil
}

// GetLock returns nil when nothing is locked at position.
func (s *PostgresStore) GetLock(ctx context.Context, documentID string, position int) (*Lock, error) {
	lock, err := scanLock(s.db.QueryRowContext(ctx, `SELECT `+lockColumns+` FROM locked_paragraphs WHERE document_id=$1 AND position=$2`, documentID, position))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get lock: %w", err)
	}
	return &lock, nil
}

// DeleteLockByID deletes one specific lock row so a lock re-created at the
// same position after a permission check is never removed by mistake.
func (s *PostgresStore) DeleteLockByID(ctx context.Context, lockID string) (bool, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM locked_paragraphs WHERE id=$1`, lockID)
	if err != nil {
		return false, fmt.Errorf("delete lock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete lock rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresStore) ListLocks(ctx context.Context, documentID string) ([]Lock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+lockColumns+`
		FROM locked_paragraphs
		WHERE document_id=$1
		ORDER BY position ASC
	`, documentID)
	if err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}
	defer rows.Close()

	items := make([]Lock, 0)
	for rows.Next() {
		lock, err := scanLock(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lock: %w", err)
		}
		items = append(items, lock)
	}
	return items, rows.Err()
}
