// Package versiontrack turns a stream of buffer updates into paragraph
// snapshots: debounced while text changes, forced when a checkpoint goes stale.
package versiontrack

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"synkris/api/internal/textrange"
)

const (
	DefaultQuietPeriod = 2 * time.Second
	DefaultStaleAfter  = 30 * time.Second
)

type Saver interface {
	SaveVersion(ctx context.Context, position, length int, content string) error
}

type SaverFunc func(ctx context.Context, position, length int, content string) error

func (f SaverFunc) SaveVersion(ctx context.Context, position, length int, content string) error {
	return f(ctx, position, length, content)
}

type Options struct {
	QuietPeriod time.Duration
	StaleAfter  time.Duration
	Now         func() time.Time
	OnError     func(position int, err error)
}

type checkpoint struct {
	content string
	at      time.Time
}

type pendingSave struct {
	rng     textrange.Range
	content string
	gen     uint64
	timer   *time.Timer
}

type Tracker struct {
	saver   Saver
	quiet   time.Duration
	stale   time.Duration
	now     func() time.Time
	onError func(int, error)

	saveMu  sync.Mutex
	mu      sync.Mutex
	gen     uint64
	closed  bool
	pending map[int]*pendingSave
	last    map[int]checkpoint
}

func New(saver Saver, opts Options) *Tracker {
	t := &Tracker{
		saver:   saver,
		quiet:   opts.QuietPeriod,
		stale:   opts.StaleAfter,
		now:     opts.Now,
		onError: opts.OnError,
		pending: make(map[int]*pendingSave),
		last:    make(map[int]checkpoint),
	}
	if t.quiet <= 0 {
		t.quiet = DefaultQuietPeriod
	}
	if t.stale <= 0 {
		t.stale = DefaultStaleAfter
	}
	if t.now == nil {
		t.now = time.Now
	}
	if t.onError == nil {
		t.onError = func(position int, err error) {
			log.Printf("version capture at position %d failed: %v", position, err)
		}
	}
	return t
}

// Observe inspects the paragraph under caret after a buffer update and
// (re)schedules a save for it when one is due. It reports whether a save is
// now pending for that paragraph.
func (t *Tracker) Observe(buf textrange.TextReader, caret int) bool {
	paragraph := buf.ParagraphAt(caret)
	content := buf.TextBetween(paragraph)
	if strings.TrimSpace(content) == "" {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed || !t.dueLocked(paragraph.From, content) {
		return false
	}

	t.gen++
	gen := t.gen
	position := paragraph.From
	if existing, ok := t.pending[position]; ok {
		existing.timer.Stop()
	}
	t.pending[position] = &pendingSave{
		rng:     paragraph,
		content: content,
		gen:     gen,
		timer: time.AfterFunc(t.quiet, func() {
			t.flushPosition(context.Background(), position, gen)
		}),
	}
	return true
}

// Pending reports how many paragraphs have a scheduled save.
func (t *Tracker) Pending() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Flush saves every pending snapshot immediately.
func (t *Tracker) Flush(ctx context.Context) {
	t.mu.Lock()
	positions := make([]int, 0, len(t.pending))
	for position := range t.pending {
		positions = append(positions, position)
	}
	t.mu.Unlock()

	for _, position := range positions {
		t.flushPosition(ctx, position, 0)
	}
}

// Close stops accepting observations and flushes what is pending.
func (t *Tracker) Close(ctx context.Context) {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.Flush(ctx)
}

// flushPosition saves the pending snapshot at position. gen guards against a
// superseded timer firing; zero matches any generation.
func (t *Tracker) flushPosition(ctx context.Context, position int, gen uint64) {
	t.saveMu.Lock()
	defer t.saveMu.Unlock()

	t.mu.Lock()
	p, ok := t.pending[position]
	if !ok || (gen != 0 && p.gen != gen) {
		t.mu.Unlock()
		return
	}
	delete(t.pending, position)
	p.timer.Stop()
	due := t.dueLocked(position, p.content)
	t.mu.Unlock()
	if !due {
		return
	}

	if err := t.saver.SaveVersion(ctx, p.rng.Position(), p.rng.Length(), p.content); err != nil {
		t.onError(position, err)
		return
	}

	t.mu.Lock()
	t.last[position] = checkpoint{content: p.content, at: t.now()}
	t.mu.Unlock()
}

func (t *Tracker) dueLocked(position int, content string) bool {
	last, ok := t.last[position]
	if !ok || last.content != content {
		return true
	}
	return t.now().Sub(last.at) >= t.stale
}
