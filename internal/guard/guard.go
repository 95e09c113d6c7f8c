// Package guard decides whether a pending edit may touch the shared buffer
// given the current lock set.
package guard

import (
	"fmt"

	"synkris/api/internal/textrange"
)

type Lock struct {
	Range    textrange.Range
	LockedBy string
}

// LockProvider is handed to the guard at construction. Implementations are
// immutable snapshots; a new provider is built whenever the lock set changes.
type LockProvider interface {
	CurrentLocks() []Lock
	CurrentUserID() string
}

type snapshotProvider struct {
	locks  []Lock
	userID string
}

func NewProvider(locks []Lock, userID string) LockProvider {
	copied := make([]Lock, len(locks))
	copy(copied, locks)
	return snapshotProvider{locks: copied, userID: userID}
}

func (p snapshotProvider) CurrentLocks() []Lock  { return p.locks }
func (p snapshotProvider) CurrentUserID() string { return p.userID }

// LockedRangeError reports the first foreign lock an edit ran into.
type LockedRangeError struct {
	Edit     textrange.Range
	Lock     textrange.Range
	LockedBy string
}

func (e *LockedRangeError) Error() string {
	return fmt.Sprintf("edit %s overlaps range %s locked by %s", e.Edit, e.Lock, e.LockedBy)
}

// Step is one text mutation inside a transaction: the range it replaces.
// Insertions are empty ranges at the insertion point.
type Step struct {
	Range textrange.Range
	Text  string
}

type Guard struct {
	provider LockProvider
}

func New(provider LockProvider) *Guard {
	return &Guard{provider: provider}
}

// Admit checks every step of a transaction before any of it is applied. One
// foreign overlap vetoes the whole transaction.
func (g *Guard) Admit(steps ...Step) error {
	userID := g.provider.CurrentUserID()
	locks := g.provider.CurrentLocks()
	for _, step := range steps {
		affected := textrange.Normalize(step.Range.From, step.Range.To)
		for _, lock := range locks {
			if lock.LockedBy == userID && userID != "" {
				continue
			}
			if textrange.Overlaps(affected, lock.Range) {
				return &LockedRangeError{Edit: affected, Lock: lock.Range, LockedBy: lock.LockedBy}
			}
		}
	}
	return nil
}

// ClampSelection never rejects. A selection that lies fully inside a foreign
// lock collapses to whichever lock boundary is nearer to its start.
func (g *Guard) ClampSelection(sel textrange.Range) textrange.Range {
	sel = textrange.Normalize(sel.From, sel.To)
	userID := g.provider.CurrentUserID()
	for _, lock := range g.provider.CurrentLocks() {
		if lock.LockedBy == userID && userID != "" {
			continue
		}
		if lock.Range.Empty() || !lock.Range.Contains(sel) {
			continue
		}
		if !textrange.Overlaps(sel, lock.Range) {
			// selection sits on the lock's edge
			continue
		}
		snap := lock.Range.To
		if sel.From-lock.Range.From <= lock.Range.To-sel.From {
			snap = lock.Range.From
		}
		return textrange.Range{From: snap, To: snap}
	}
	return sel
}
