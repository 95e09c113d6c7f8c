// Package editor is one user's view of a document: the text buffer, the lock
// set it is checked against, and the version capture that follows its edits.
package editor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"synkris/api/internal/buffer"
	"synkris/api/internal/guard"
	"synkris/api/internal/textrange"
	"synkris/api/internal/versiontrack"
)

type providerRef struct {
	provider guard.LockProvider
}

// Session serialises edits to its buffer. The lock provider is replaced, never
// mutated, whenever the lock set changes.
type Session struct {
	userID  string
	tracker *versiontrack.Tracker

	provider atomic.Pointer[providerRef]

	mu        sync.Mutex
	buf       *buffer.Buffer
	selection textrange.Range
}

// NewSession starts with no locks. tracker may be nil.
func NewSession(buf *buffer.Buffer, userID string, tracker *versiontrack.Tracker) *Session {
	if buf == nil {
		buf = buffer.New("")
	}
	s := &Session{userID: userID, tracker: tracker, buf: buf}
	s.provider.Store(&providerRef{provider: guard.NewProvider(nil, userID)})
	return s
}

func (s *Session) UserID() string { return s.userID }

func (s *Session) guard() *guard.Guard {
	return guard.New(s.provider.Load().provider)
}

// SetLocks installs a new lock set and re-clamps the current selection
// against it.
func (s *Session) SetLocks(locks []guard.Lock) {
	s.provider.Store(&providerRef{provider: guard.NewProvider(locks, s.userID)})

	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = s.guard().ClampSelection(s.selection)
}

func (s *Session) Locks() []guard.Lock {
	return s.provider.Load().provider.CurrentLocks()
}

// WatchLocks applies every lock set received on updates until ctx ends or the
// channel closes.
func (s *Session) WatchLocks(ctx context.Context, updates <-chan []guard.Lock) {
	for {
		select {
		case <-ctx.Done():
			return
		case locks, ok := <-updates:
			if !ok {
				return
			}
			s.SetLocks(locks)
		}
	}
}

// Apply runs a transaction against the buffer. The guard sees every step
// before any of them is applied; a veto or an out-of-range step leaves the
// buffer untouched. Steps are applied in order, each against the result of
// the previous one.
func (s *Session) Apply(steps ...guard.Step) error {
	if len(steps) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.guard().Admit(steps...); err != nil {
		return err
	}

	next := s.buf.Clone()
	caret := 0
	for _, step := range steps {
		r := textrange.Normalize(step.Range.From, step.Range.To)
		if err := next.Replace(r, step.Text); err != nil {
			return fmt.Errorf("apply step: %w", err)
		}
		caret = r.From + len([]rune(step.Text))
	}
	s.buf = next
	s.selection = textrange.Range{From: caret, To: caret}

	if s.tracker != nil {
		s.tracker.Observe(s.buf, caret)
	}
	return nil
}

// SetSelection records a selection change. It is never rejected, only
// clamped out of foreign locks, and returns the selection that was kept.
func (s *Session) SetSelection(sel textrange.Range) textrange.Range {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selection = s.guard().ClampSelection(sel)
	return s.selection
}

func (s *Session) Selection() textrange.Range {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selection
}

// LockTarget is the range a lock request at the current selection covers.
func (s *Session) LockTarget() textrange.Range {
	s.mu.Lock()
	defer s.mu.Unlock()
	return textrange.Canonical(s.selection.From, s.selection.To, s.buf)
}

func (s *Session) Text() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// Snapshot returns a copy of the buffer that later edits will not change.
func (s *Session) Snapshot() *buffer.Buffer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Clone()
}

// RestoreVersion writes a stored snapshot back into the buffer. The stored
// coordinates are used only if the text there still matches; otherwise the
// paragraph around caret is replaced. The write goes through admission like
// any other edit.
func (s *Session) RestoreVersion(position, length int, content string, caret int) (textrange.Range, bool, error) {
	s.mu.Lock()
	target, trusted := textrange.Relocate(s.buf, textrange.FromPosition(position, length), content, caret)
	s.mu.Unlock()

	if err := s.Apply(guard.Step{Range: target, Text: content}); err != nil {
		return target, trusted, err
	}
	return target, trusted, nil
}

// Close flushes pending version captures.
func (s *Session) Close(ctx context.Context) {
	if s.tracker != nil {
		s.tracker.Close(ctx)
	}
}
