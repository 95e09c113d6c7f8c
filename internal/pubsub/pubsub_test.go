package pubsub

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func receive(t *testing.T, sub *Subscription) Event {
	t.Helper()
	select {
	case event, ok := <-sub.C:
		if !ok {
			t.Fatal("subscription closed before an event arrived")
		}
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func assertNoEvent(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case event, ok := <-sub.C:
		if ok {
			t.Fatalf("unexpected event %+v", event)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBrokerDeliversPerDocument(t *testing.T) {
	b := NewMemoryBroker()
	defer b.Close()
	ctx := context.Background()

	docA, err := b.Subscribe(ctx, "doc_a")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer docA.Close()
	docB, err := b.Subscribe(ctx, "doc_b")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer docB.Close()

	if err := b.Publish(ctx, Event{Kind: KindLocks, DocumentID: "doc_a", Actor: "user-a"}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if got := receive(t, docA); got.Kind != KindLocks || got.Actor != "user-a" {
		t.Fatalf("received %+v", got)
	}
	assertNoEvent(t, docB)
}

func TestMemoryBrokerSubscriptionEndsWithContext(t *testing.T) {
	b := NewMemoryBroker()
	ctx, cancel := context.WithCancel(context.Background())
	sub, err := b.Subscribe(ctx, "doc_a")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	cancel()

	select {
	case _, ok := <-sub.C:
		if ok {
			t.Fatal("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not close after context cancel")
	}
	sub.Close()
	if err := b.Publish(context.Background(), Event{Kind: KindLocks, DocumentID: "doc_a"}); err != nil {
		t.Fatalf("Publish() after close error = %v", err)
	}
}

func TestMemoryBrokerCloseStopsWatchers(t *testing.T) {
	b := NewMemoryBroker()
	// a context that never ends, so only Close can release the watcher
	sub, err := b.Subscribe(context.Background(), "doc_a")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := b.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	select {
	case <-sub.done:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher still running after broker Close")
	}
	if _, ok := <-sub.C; ok {
		t.Fatal("expected closed channel after broker Close")
	}
	sub.Close()

	late, err := b.Subscribe(context.Background(), "doc_a")
	if err != nil {
		t.Fatalf("Subscribe() after Close error = %v", err)
	}
	if _, ok := <-late.C; ok {
		t.Fatal("subscription on a closed broker should be closed")
	}
	late.Close()
}

func TestMemoryBrokerPublishNeverBlocks(t *testing.T) {
	b := NewMemoryBroker()
	sub, err := b.Subscribe(context.Background(), "doc_a")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*4; i++ {
			_ = b.Publish(context.Background(), Event{Kind: KindMessages, DocumentID: "doc_a"})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a slow subscriber")
	}
}

func TestRedisBrokerRoundTrip(t *testing.T) {
	s := miniredis.RunT(t)
	b, err := NewRedisBroker("redis://" + s.Addr())
	if err != nil {
		t.Fatalf("NewRedisBroker() error = %v", err)
	}
	defer b.Close()

	ctx := context.Background()
	if err := b.Ping(ctx); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	sub, err := b.Subscribe(ctx, "doc_a")
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	defer sub.Close()

	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	if err := b.Publish(ctx, Event{Kind: KindLocks, DocumentID: "doc_a", Actor: "user-a", At: at}); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	got := receive(t, sub)
	if got.Kind != KindLocks || got.DocumentID != "doc_a" || !got.At.Equal(at) {
		t.Fatalf("received %+v", got)
	}
}

func TestRedisBrokerRejectsBadURL(t *testing.T) {
	if _, err := NewRedisBroker("not-a-url"); err == nil {
		t.Fatal("expected parse error")
	}
}
