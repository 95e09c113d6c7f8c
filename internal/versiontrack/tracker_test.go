package versiontrack

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"synkris/api/internal/buffer"
	"synkris/api/internal/textrange"
)

type savedVersion struct {
	position int
	length   int
	content  string
}

type recordingSaver struct {
	mu    sync.Mutex
	saves []savedVersion
	err   error
	done  chan savedVersion
}

func (r *recordingSaver) SaveVersion(_ context.Context, position, length int, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	v := savedVersion{position: position, length: length, content: content}
	r.saves = append(r.saves, v)
	if r.done != nil {
		r.done <- v
	}
	return nil
}

func (r *recordingSaver) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.saves)
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestTracker(saver Saver, clock *fakeClock) *Tracker {
	return New(saver, Options{QuietPeriod: time.Hour, StaleAfter: 30 * time.Second, Now: clock.Now})
}

func TestObserveSchedulesAndFlushSaves(t *testing.T) {
	saver := &recordingSaver{}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	tracker := newTestTracker(saver, clock)
	buf := buffer.FromParagraphs("intro", "second paragraph")

	if !tracker.Observe(buf, 8) {
		t.Fatal("Observe() = false, want scheduled save")
	}
	if tracker.Pending() != 1 {
		t.Fatalf("Pending() = %d, want 1", tracker.Pending())
	}
	tracker.Flush(context.Background())

	if saver.count() != 1 {
		t.Fatalf("saves = %d, want 1", saver.count())
	}
	got := saver.saves[0]
	if got.position != 6 || got.length != 16 || got.content != "second paragraph" {
		t.Fatalf("saved %+v", got)
	}

	if tracker.Observe(buf, 8) {
		t.Fatal("unchanged paragraph inside staleness window should not schedule")
	}
}

func TestObserveChangedContentIsDue(t *testing.T) {
	saver := &recordingSaver{}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	tracker := newTestTracker(saver, clock)
	buf := buffer.New("draft")

	tracker.Observe(buf, 0)
	tracker.Flush(context.Background())

	if err := buf.Replace(textrange.Range{From: 5, To: 5}, " two"); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if !tracker.Observe(buf, 3) {
		t.Fatal("changed paragraph should schedule a save")
	}
	tracker.Flush(context.Background())
	if saver.count() != 2 || saver.saves[1].content != "draft two" {
		t.Fatalf("saves = %+v", saver.saves)
	}
}

func TestObserveForcesCheckpointWhenStale(t *testing.T) {
	saver := &recordingSaver{}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	tracker := newTestTracker(saver, clock)
	buf := buffer.New("steady text")

	tracker.Observe(buf, 0)
	tracker.Flush(context.Background())

	clock.Advance(29 * time.Second)
	if tracker.Observe(buf, 0) {
		t.Fatal("checkpoint is not stale yet")
	}
	clock.Advance(2 * time.Second)
	if !tracker.Observe(buf, 0) {
		t.Fatal("stale checkpoint should force a snapshot")
	}
	tracker.Flush(context.Background())
	if saver.count() != 2 {
		t.Fatalf("saves = %d, want 2", saver.count())
	}
}

func TestObserveIgnoresBlankParagraphs(t *testing.T) {
	tracker := newTestTracker(&recordingSaver{}, &fakeClock{now: time.Now()})
	if tracker.Observe(buffer.FromParagraphs("text", "   ", "more"), 6) {
		t.Fatal("blank paragraph should not schedule a save")
	}
}

func TestQuietPeriodDebouncesToLastContent(t *testing.T) {
	saver := &recordingSaver{done: make(chan savedVersion, 4)}
	tracker := New(saver, Options{QuietPeriod: 30 * time.Millisecond, StaleAfter: time.Minute})
	buf := buffer.New("a")

	for _, next := range []string{"b", "c", "d"} {
		tracker.Observe(buf, 0)
		if err := buf.Replace(textrange.Range{From: buf.Len(), To: buf.Len()}, next); err != nil {
			t.Fatalf("Replace() error = %v", err)
		}
	}
	tracker.Observe(buf, 0)

	select {
	case v := <-saver.done:
		if v.content != "abcd" {
			t.Fatalf("saved content = %q, want last observed text", v.content)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("debounced save never fired")
	}

	time.Sleep(100 * time.Millisecond)
	if saver.count() != 1 {
		t.Fatalf("saves = %d, want exactly one after debounce", saver.count())
	}
}

func TestSaveFailureKeepsParagraphDue(t *testing.T) {
	saver := &recordingSaver{err: errors.New("store unavailable")}
	var failedAt []int
	tracker := New(saver, Options{
		QuietPeriod: time.Hour,
		OnError:     func(position int, err error) { failedAt = append(failedAt, position) },
	})
	buf := buffer.New("content")

	tracker.Observe(buf, 0)
	tracker.Flush(context.Background())
	if len(failedAt) != 1 || failedAt[0] != 0 {
		t.Fatalf("OnError calls = %v", failedAt)
	}
	if !tracker.Observe(buf, 0) {
		t.Fatal("a failed save must not record a checkpoint")
	}
}

func TestCloseFlushesAndStopsObserving(t *testing.T) {
	saver := &recordingSaver{}
	tracker := New(saver, Options{QuietPeriod: time.Hour})
	buf := buffer.New("last words")

	tracker.Observe(buf, 0)
	tracker.Close(context.Background())
	if saver.count() != 1 {
		t.Fatalf("saves = %d, want pending save flushed on Close", saver.count())
	}
	if err := buf.Replace(textrange.Range{From: 0, To: 4}, "first"); err != nil {
		t.Fatalf("Replace() error = %v", err)
	}
	if tracker.Observe(buf, 0) {
		t.Fatal("closed tracker accepted an observation")
	}
}
