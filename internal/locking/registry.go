// Package locking is the single arbiter of who may mutate a paragraph. Each
// (document, position) pair is either unlocked or locked by exactly one user.
package locking

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"synkris/api/internal/guard"
	"synkris/api/internal/pubsub"
	"synkris/api/internal/store"
	"synkris/api/internal/textrange"
	"synkris/api/internal/util"
)

var (
	ErrLockConflict = errors.New("range is locked by another user")
	ErrNotLocked    = errors.New("no lock at position")
	ErrForbidden    = errors.New("only the lock holder or document owner may release")
	ErrInvalidRange = errors.New("position must be >= 0 and length >= 1")
)

// ConflictError carries the lock that blocked a toggle.
type ConflictError struct {
	Holder store.Lock
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("position %d of %s is locked by %s", e.Holder.Position, e.Holder.DocumentID, e.Holder.LockedBy)
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrLockConflict
}

type Store interface {
	ToggleLock(ctx context.Context, candidate store.Lock) (store.LockToggle, error)
	GetLock(ctx context.Context, documentID string, position int) (*store.Lock, error)
	DeleteLockByID(ctx context.Context, lockID string) (bool, error)
	ListLocks(ctx context.Context, documentID string) ([]store.Lock, error)
}

type Notifier interface {
	Publish(ctx context.Context, event pubsub.Event) error
}

type ToggleResult struct {
	Locked bool
	Lock   store.Lock
}

type Registry struct {
	store    Store
	notifier Notifier
	now      func() time.Time
}

// NewRegistry builds a registry. notifier may be nil.
func NewRegistry(s Store, notifier Notifier) *Registry {
	return &Registry{store: s, notifier: notifier, now: time.Now}
}

// Toggle claims the paragraph at position for caller, or releases it when the
// caller already holds it. A lock held by someone else fails immediately.
func (r *Registry) Toggle(ctx context.Context, documentID string, position, length int, caller string) (ToggleResult, error) {
	if position < 0 || length < 1 {
		return ToggleResult{}, ErrInvalidRange
	}

	res, err := r.store.ToggleLock(ctx, store.Lock{
		ID:         util.NewID("lck"),
		DocumentID: documentID,
		Position:   position,
		Length:     length,
		LockedBy:   caller,
	})
	if err != nil {
		return ToggleResult{}, fmt.Errorf("toggle lock: %w", err)
	}

	switch res.Outcome {
	case store.LockCreated:
		r.notify(ctx, documentID, caller)
		return ToggleResult{Locked: true, Lock: res.Lock}, nil
	case store.LockRemoved:
		r.notify(ctx, documentID, caller)
		return ToggleResult{Locked: false, Lock: res.Lock}, nil
	case store.LockHeldByOther:
		return ToggleResult{}, &ConflictError{Holder: res.Lock}
	default:
		return ToggleResult{}, fmt.Errorf("toggle lock: unexpected outcome %d", res.Outcome)
	}
}

// Release removes the lock at position. The holder and the document owner may
// release; nobody else.
func (r *Registry) Release(ctx context.Context, documentID string, position int, caller, documentOwnerID string) error {
	lock, err := r.store.GetLock(ctx, documentID, position)
	if err != nil {
		return fmt.Errorf("read lock: %w", err)
	}
	if lock == nil {
		return ErrNotLocked
	}
	if caller == "" || (lock.LockedBy != caller && documentOwnerID != caller) {
		return ErrForbidden
	}

	deleted, err := r.store.DeleteLockByID(ctx, lock.ID)
	if err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	if !deleted {
		// released concurrently between the read and the delete
		return ErrNotLocked
	}
	r.notify(ctx, documentID, caller)
	return nil
}

func (r *Registry) List(ctx context.Context, documentID string) ([]store.Lock, error) {
	locks, err := r.store.ListLocks(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list locks: %w", err)
	}
	return locks, nil
}

// IsLocked returns the lock at position, or nil when it is free.
func (r *Registry) IsLocked(ctx context.Context, documentID string, position int) (*store.Lock, error) {
	lock, err := r.store.GetLock(ctx, documentID, position)
	if err != nil {
		return nil, fmt.Errorf("read lock: %w", err)
	}
	return lock, nil
}

func (r *Registry) notify(ctx context.Context, documentID, actor string) {
	if r.notifier == nil {
		return
	}
	event := pubsub.Event{Kind: pubsub.KindLocks, DocumentID: documentID, Actor: actor, At: r.now().UTC()}
	if err := r.notifier.Publish(ctx, event); err != nil {
		log.Printf("publish lock change for %s: %v", documentID, err)
	}
}

// GuardLocks converts stored locks into the ranges the admission guard checks.
func GuardLocks(locks []store.Lock) []guard.Lock {
	out := make([]guard.Lock, 0, len(locks))
	for _, lock := range locks {
		out = append(out, guard.Lock{
			Range:    textrange.FromPosition(lock.Position, lock.Length),
			LockedBy: lock.LockedBy,
		})
	}
	return out
}
