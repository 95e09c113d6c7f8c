// Package versions stores immutable text snapshots keyed by the exact start
// position of the range they were taken from.
package versions

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"synkris/api/internal/store"
	"synkris/api/internal/util"
)

var ErrInvalidRange = errors.New("position and length must be >= 0")

type Store interface {
	InsertVersion(ctx context.Context, v store.TextVersion) error
	ListVersionsByPosition(ctx context.Context, documentID string, position, limit int) ([]store.TextVersion, error)
	LatestVersion(ctx context.Context, documentID string, position int) (*store.TextVersion, error)
}

// Service appends versions and reads them back newest first.
type Service struct {
	store Store
	now   func() time.Time

	mu   sync.Mutex
	last time.Time
}

func NewService(s Store) *Service {
	return &Service{store: s, now: time.Now}
}

// Save always appends. Timestamps issued by one Service never repeat or go
// backwards, so snapshots saved in quick succession keep their order.
func (s *Service) Save(ctx context.Context, documentID string, position, length int, content, author string) (store.TextVersion, error) {
	if position < 0 || length < 0 {
		return store.TextVersion{}, ErrInvalidRange
	}
	v := store.TextVersion{
		ID:         util.NewID("ver"),
		DocumentID: documentID,
		Position:   position,
		Length:     length,
		Content:    content,
		CreatedBy:  author,
		CreatedAt:  s.nextTimestamp(),
	}
	if err := s.store.InsertVersion(ctx, v); err != nil {
		return store.TextVersion{}, fmt.Errorf("insert version: %w", err)
	}
	return v, nil
}

// ByPosition lists versions saved at exactly position. Versions at other
// positions are not returned even when their ranges overlap.
func (s *Service) ByPosition(ctx context.Context, documentID string, position, limit int) ([]store.TextVersion, error) {
	if position < 0 {
		return nil, ErrInvalidRange
	}
	items, err := s.store.ListVersionsByPosition(ctx, documentID, position, limit)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	return items, nil
}

func (s *Service) Latest(ctx context.Context, documentID string, position int) (*store.TextVersion, error) {
	if position < 0 {
		return nil, ErrInvalidRange
	}
	v, err := s.store.LatestVersion(ctx, documentID, position)
	if err != nil {
		return nil, fmt.Errorf("latest version: %w", err)
	}
	return v, nil
}

// nextTimestamp is truncated to the microsecond precision Postgres keeps. It
// only orders saves made by this process; across instances the time-ordered
// id breaks ties.
func (s *Service) nextTimestamp() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	ts := s.now().UTC().Truncate(time.Microsecond)
	if !ts.After(s.last) {
		ts = s.last.Add(time.Microsecond)
	}
	s.last = ts
	return ts
}
