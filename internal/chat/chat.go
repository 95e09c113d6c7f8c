// Package chat holds the message rules and the unread-count watermark that
// sit beside a document's chat panel.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"synkris/api/internal/store"
)

const MaxContentLength = 500

var ErrInvalidContent = errors.New("message content must be 1-500 characters")

// ValidateContent trims content and checks its length in characters.
func ValidateContent(content string) (string, error) {
	content = strings.TrimSpace(content)
	if content == "" || utf8.RuneCountInString(content) > MaxContentLength {
		return "", ErrInvalidContent
	}
	return content, nil
}

// Message is the part of a chat entry the unread count looks at.
type Message struct {
	SenderID  string
	Timestamp time.Time
}

func FromStore(messages []store.Message) []Message {
	out := make([]Message, len(messages))
	for i, m := range messages {
		out[i] = Message{SenderID: m.UserID, Timestamp: m.CreatedAt}
	}
	return out
}

// UnreadCount counts messages newer than the watermark that the viewer did
// not send.
func UnreadCount(watermark time.Time, messages []Message, viewerID string) int {
	n := 0
	for _, m := range messages {
		if m.Timestamp.After(watermark) && m.SenderID != viewerID {
			n++
		}
	}
	return n
}

// Watermark is the newest timestamp in messages, or the zero time.
func Watermark(messages []Message) time.Time {
	var max time.Time
	for _, m := range messages {
		if m.Timestamp.After(max) {
			max = m.Timestamp
		}
	}
	return max
}

// Advance never moves a watermark backwards.
func Advance(current, next time.Time) time.Time {
	if next.After(current) {
		return next
	}
	return current
}

type Store interface {
	ListMessages(ctx context.Context, documentID string, limit int) ([]store.Message, error)
	GetReadMark(ctx context.Context, documentID, userID string) (time.Time, error)
	AdvanceReadMark(ctx context.Context, documentID, userID string, at time.Time) (time.Time, error)
}

// Aggregator reads and persists per-viewer watermarks.
type Aggregator struct {
	store Store
	limit int
}

func NewAggregator(s Store) *Aggregator {
	return &Aggregator{store: s, limit: 500}
}

func (a *Aggregator) Unread(ctx context.Context, documentID, viewerID string) (int, error) {
	watermark, err := a.store.GetReadMark(ctx, documentID, viewerID)
	if err != nil {
		return 0, fmt.Errorf("read watermark: %w", err)
	}
	messages, err := a.store.ListMessages(ctx, documentID, a.limit)
	if err != nil {
		return 0, fmt.Errorf("list messages: %w", err)
	}
	return UnreadCount(watermark, FromStore(messages), viewerID), nil
}

// MarkRead advances the viewer's watermark to the newest message and returns
// the stored value. With no messages the watermark is left alone.
func (a *Aggregator) MarkRead(ctx context.Context, documentID, viewerID string) (time.Time, error) {
	messages, err := a.store.ListMessages(ctx, documentID, a.limit)
	if err != nil {
		return time.Time{}, fmt.Errorf("list messages: %w", err)
	}
	newest := Watermark(FromStore(messages))
	if newest.IsZero() {
		return a.store.GetReadMark(ctx, documentID, viewerID)
	}
	stored, err := a.store.AdvanceReadMark(ctx, documentID, viewerID, newest)
	if err != nil {
		return time.Time{}, fmt.Errorf("advance watermark: %w", err)
	}
	return stored, nil
}
