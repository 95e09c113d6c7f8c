package versions

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"synkris/api/internal/store"
)

type fakeStore struct {
	mu       sync.Mutex
	versions []store.TextVersion

	insertErr error
}

func (f *fakeStore) InsertVersion(_ context.Context, v store.TextVersion) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versions = append(f.versions, v)
	return nil
}

func (f *fakeStore) ListVersionsByPosition(_ context.Context, documentID string, position, limit int) ([]store.TextVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.TextVersion
	for _, v := range f.versions {
		if v.DocumentID == documentID && v.Position == position {
			out = append(out, v)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeStore) LatestVersion(ctx context.Context, documentID string, position int) (*store.TextVersion, error) {
	items, _ := f.ListVersionsByPosition(ctx, documentID, position, 1)
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func TestSaveOrdersNewestFirst(t *testing.T) {
	fs := &fakeStore{}
	svc := NewService(fs)
	base := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	tick := 0
	svc.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}
	ctx := context.Background()

	for _, content := range []string{"t1", "t2", "t3"} {
		if _, err := svc.Save(ctx, "doc_1", 40, 2, content, "alice"); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
	}

	items, err := svc.ByPosition(ctx, "doc_1", 40, 0)
	if err != nil {
		t.Fatalf("ByPosition() error = %v", err)
	}
	if len(items) != 3 || items[0].Content != "t3" || items[1].Content != "t2" || items[2].Content != "t1" {
		t.Fatalf("ByPosition() = %+v, want t3,t2,t1", items)
	}
	latest, err := svc.Latest(ctx, "doc_1", 40)
	if err != nil || latest == nil || latest.Content != "t3" {
		t.Fatalf("Latest() = %+v, %v", latest, err)
	}
}

func TestSaveTimestampsAreStrictlyIncreasing(t *testing.T) {
	fs := &fakeStore{}
	svc := NewService(fs)
	frozen := time.Date(2026, 4, 1, 10, 0, 0, 123456789, time.UTC)
	svc.now = func() time.Time { return frozen }

	var prev time.Time
	for i := 0; i < 5; i++ {
		v, err := svc.Save(context.Background(), "doc_1", 0, 1, "x", "alice")
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if v.CreatedAt.Nanosecond()%1000 != 0 {
			t.Fatalf("CreatedAt %v keeps sub-microsecond precision", v.CreatedAt)
		}
		if !v.CreatedAt.After(prev) {
			t.Fatalf("CreatedAt %v not after %v", v.CreatedAt, prev)
		}
		prev = v.CreatedAt
	}
}

func TestSavesFromSeparateInstancesTieBreakOnID(t *testing.T) {
	fs := &fakeStore{}
	frozen := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)
	first, second := NewService(fs), NewService(fs)
	first.now = func() time.Time { return frozen }
	second.now = func() time.Time { return frozen }
	ctx := context.Background()

	a, err := first.Save(ctx, "doc_1", 8, 5, "from a", "alice")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	b, err := second.Save(ctx, "doc_1", 8, 5, "from b", "bob")
	if err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		t.Fatalf("expected a timestamp tie, got %v and %v", a.CreatedAt, b.CreatedAt)
	}

	latest, err := first.Latest(ctx, "doc_1", 8)
	if err != nil || latest == nil || latest.ID != b.ID {
		t.Fatalf("Latest() = %+v, %v, want the later id %s", latest, err, b.ID)
	}
}

func TestExactPositionKeying(t *testing.T) {
	svc := NewService(&fakeStore{})
	ctx := context.Background()
	if _, err := svc.Save(ctx, "doc_1", 40, 20, "paragraph", "alice"); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	items, err := svc.ByPosition(ctx, "doc_1", 42, 0)
	if err != nil {
		t.Fatalf("ByPosition() error = %v", err)
	}
	if len(items) != 0 {
		t.Fatalf("ByPosition(42) = %+v, want none for overlapping range at 40", items)
	}
	latest, err := svc.Latest(ctx, "doc_1", 42)
	if err != nil || latest != nil {
		t.Fatalf("Latest(42) = %+v, %v; want nil", latest, err)
	}
}

func TestSaveValidation(t *testing.T) {
	svc := NewService(&fakeStore{})
	if _, err := svc.Save(context.Background(), "doc_1", -1, 3, "x", "alice"); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("Save() error = %v, want ErrInvalidRange", err)
	}
	if _, err := svc.Save(context.Background(), "doc_1", 0, -3, "x", "alice"); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("Save() error = %v, want ErrInvalidRange", err)
	}
	if _, err := svc.ByPosition(context.Background(), "doc_1", -5, 0); !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("ByPosition() error = %v, want ErrInvalidRange", err)
	}
}

func TestSaveWrapsStoreError(t *testing.T) {
	storeErr := errors.New("disk full")
	svc := NewService(&fakeStore{insertErr: storeErr})
	if _, err := svc.Save(context.Background(), "doc_1", 0, 1, "x", "alice"); !errors.Is(err, storeErr) {
		t.Fatalf("Save() error = %v, want wrapped %v", err, storeErr)
	}
}
