package gitrepo

import (
	"errors"
	"fmt"
	"sync"
	"testing"
)

func TestCommitContentSkipsUnchangedSnapshots(t *testing.T) {
	svc := New(t.TempDir())
	initial := Content{Title: "Plan", Content: `{"type":"doc","content":[]}`}

	if err := svc.EnsureRepo("doc_1", initial, "Avery"); err != nil {
		t.Fatalf("EnsureRepo() error = %v", err)
	}
	if err := svc.EnsureRepo("doc_1", Content{Title: "ignored"}, "Avery"); err != nil {
		t.Fatalf("EnsureRepo() second call error = %v", err)
	}

	// Same structure, different whitespace.
	same := Content{Title: "Plan", Content: `{ "type": "doc", "content": [] }`}
	_, changed, err := svc.CommitContent("doc_1", same, "Avery", "Session ended")
	if err != nil {
		t.Fatalf("CommitContent() error = %v", err)
	}
	if changed {
		t.Fatal("re-serialised content should not produce a commit")
	}

	updated := Content{Title: "Plan v2", Content: initial.Content}
	info, changed, err := svc.CommitContent("doc_1", updated, "Avery Stone", "Rename")
	if err != nil || !changed {
		t.Fatalf("CommitContent() = %+v, %v, %v", info, changed, err)
	}
	if info.Author != "Avery Stone" || info.Message != "Rename" || len(info.ShortHash) != 7 {
		t.Fatalf("unexpected commit info %+v", info)
	}

	history, err := svc.History("doc_1", 10)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].Hash != info.Hash || history[1].Message != "Create document" {
		t.Fatalf("History() = %+v", history)
	}
}

func TestContentAtResolvesShortHash(t *testing.T) {
	svc := New(t.TempDir())
	if err := svc.EnsureRepo("doc_1", Content{Title: "A", Content: "one"}, "Avery"); err != nil {
		t.Fatalf("EnsureRepo() error = %v", err)
	}
	first, err := svc.History("doc_1", 1)
	if err != nil || len(first) != 1 {
		t.Fatalf("History() = %+v, %v", first, err)
	}
	if _, _, err := svc.CommitContent("doc_1", Content{Title: "A", Content: "two"}, "Avery", "Edit"); err != nil {
		t.Fatalf("CommitContent() error = %v", err)
	}

	got, info, err := svc.ContentAt("doc_1", first[0].ShortHash)
	if err != nil {
		t.Fatalf("ContentAt() error = %v", err)
	}
	if got.Content != "one" || info.Hash != first[0].Hash {
		t.Fatalf("ContentAt() = %+v, %+v", got, info)
	}
}

func TestMissingRepoHasNoHistory(t *testing.T) {
	svc := New(t.TempDir())
	if _, err := svc.History("doc_missing", 10); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("History() error = %v, want ErrNoHistory", err)
	}
	if _, _, err := svc.ContentAt("doc_missing", "abcdef1"); !errors.Is(err, ErrNoHistory) {
		t.Fatalf("ContentAt() error = %v, want ErrNoHistory", err)
	}
}

func TestCommitContentCreatesMissingRepo(t *testing.T) {
	svc := New(t.TempDir())
	_, changed, err := svc.CommitContent("doc_new", Content{Title: "T", Content: "x"}, "", "Session ended")
	if err != nil {
		t.Fatalf("CommitContent() error = %v", err)
	}
	if changed {
		t.Fatal("first snapshot is the creation commit")
	}
	history, err := svc.History("doc_new", 0)
	if err != nil || len(history) != 1 || history[0].Author != "Synkris" {
		t.Fatalf("History() = %+v, %v", history, err)
	}
}

func TestConcurrentCommitContent(t *testing.T) {
	svc := New(t.TempDir())
	if err := svc.EnsureRepo("doc_1", Content{Title: "Doc"}, "Avery"); err != nil {
		t.Fatalf("EnsureRepo() error = %v", err)
	}

	const writers = 12
	var wg sync.WaitGroup
	errCh := make(chan error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			next := Content{Title: "Doc", Content: fmt.Sprintf("body-%02d", idx)}
			if _, _, err := svc.CommitContent("doc_1", next, "Avery", fmt.Sprintf("Commit %02d", idx)); err != nil {
				errCh <- err
			}
		}(i)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		t.Fatalf("CommitContent() concurrent error = %v", err)
	}

	history, err := svc.History("doc_1", 100)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != writers+1 {
		t.Fatalf("expected %d commits, got %d", writers+1, len(history))
	}
}

func TestSanitizeEmail(t *testing.T) {
	cases := map[string]string{
		"Avery Stone": "Avery.Stone",
		"a_b-c":       "a.b.c",
		"!!!":         "user",
	}
	for in, want := range cases {
		if got := sanitizeEmail(in); got != want {
			t.Fatalf("sanitizeEmail(%q) = %q, want %q", in, got, want)
		}
	}
}
