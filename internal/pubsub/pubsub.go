// Package pubsub fans out "this document changed" signals so that lock
// streams and chat views can refetch state without polling.
package pubsub

import (
	"context"
	"sync"
	"time"
)

type Kind string

const (
	KindLocks    Kind = "locks"
	KindMessages Kind = "messages"
	KindDocument Kind = "document"
)

type Event struct {
	Kind       Kind      `json:"kind"`
	DocumentID string    `json:"documentId"`
	Actor      string    `json:"actor,omitempty"`
	At         time.Time `json:"at"`
}

type Broker interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(ctx context.Context, documentID string) (*Subscription, error)
	Close() error
}

// Subscription delivers events for one document until Close is called or the
// subscribing context ends.
type Subscription struct {
	C     <-chan Event
	once  sync.Once
	close func()

	// done ends the context watcher started by MemoryBroker.Subscribe.
	done     chan struct{}
	doneOnce sync.Once
}

func (s *Subscription) Close() {
	s.once.Do(s.close)
}

func (s *Subscription) stopWatcher() {
	s.doneOnce.Do(func() { close(s.done) })
}

const subscriberBuffer = 16

// MemoryBroker serves a single API process.
type MemoryBroker struct {
	mu     sync.Mutex
	subs   map[string]map[chan Event]*Subscription
	closed bool
}

func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[string]map[chan Event]*Subscription)}
}

// Publish never blocks; a subscriber whose buffer is full misses the event,
// which is safe because every event only means "refetch".
func (b *MemoryBroker) Publish(_ context.Context, event Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[event.DocumentID] {
		select {
		case ch <- event:
		default:
		}
	}
	return nil
}

func (b *MemoryBroker) Subscribe(ctx context.Context, documentID string) (*Subscription, error) {
	ch := make(chan Event, subscriberBuffer)
	sub := &Subscription{C: ch, done: make(chan struct{})}
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		sub.close = func() {}
		return sub, nil
	}
	if b.subs[documentID] == nil {
		b.subs[documentID] = make(map[chan Event]*Subscription)
	}
	b.subs[documentID][ch] = sub
	b.mu.Unlock()

	sub.close = func() {
		sub.stopWatcher()
		b.mu.Lock()
		defer b.mu.Unlock()
		if set, ok := b.subs[documentID]; ok {
			if _, ok := set[ch]; ok {
				delete(set, ch)
				close(ch)
			}
			if len(set) == 0 {
				delete(b.subs, documentID)
			}
		}
	}
	go func() {
		select {
		case <-ctx.Done():
			sub.Close()
		case <-sub.done:
		}
	}()
	return sub, nil
}

// Close ends every subscription and its context watcher.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	for documentID, set := range b.subs {
		for ch, sub := range set {
			close(ch)
			sub.stopWatcher()
		}
		delete(b.subs, documentID)
	}
	return nil
}
