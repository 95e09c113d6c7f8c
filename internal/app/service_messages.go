package app

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"synkris/api/internal/chat"
	"synkris/api/internal/pubsub"
	"synkris/api/internal/rbac"
	"synkris/api/internal/store"
	"synkris/api/internal/util"
)

func messagePayload(m store.Message) map[string]any {
	return map[string]any{
		"id":         m.ID,
		"documentId": m.DocumentID,
		"userId":     m.UserID,
		"userName":   m.UserName,
		"userAvatar": nilIfEmpty(m.UserAvatar),
		"content":    m.Content,
		"timestamp":  m.CreatedAt,
	}
}

func (s *Service) SendMessage(ctx context.Context, session Session, documentID, content string) (map[string]any, error) {
	doc, _, err := s.requireRole(ctx, documentID, session, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	content, err = chat.ValidateContent(content)
	if err != nil {
		return nil, errValidation(err.Error())
	}
	message := store.Message{
		ID:         util.NewID("msg"),
		DocumentID: doc.ID,
		UserID:     session.TokenIdentifier,
		UserName:   firstNonBlank(session.Name, session.Email, "Anonymous"),
		UserAvatar: session.PictureURL,
		Content:    content,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := s.store.InsertMessage(ctx, message); err != nil {
		return nil, err
	}
	s.publish(ctx, pubsub.KindMessages, doc.ID, session.TokenIdentifier)
	return messagePayload(message), nil
}

func (s *Service) ListMessages(ctx context.Context, session Session, documentID string, limit int) ([]map[string]any, error) {
	doc, _, err := s.requireRole(ctx, documentID, session, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	messages, err := s.store.ListMessages(ctx, doc.ID, limit)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		items = append(items, messagePayload(m))
	}
	return items, nil
}

// DeleteMessage is only open to the message's author.
func (s *Service) DeleteMessage(ctx context.Context, session Session, documentID, messageID string) error {
	doc, _, err := s.requireRole(ctx, documentID, session, rbac.ActionRead)
	if err != nil {
		return err
	}
	message, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("Message not found")
		}
		return err
	}
	if message.DocumentID != doc.ID {
		return errNotFound("Message not found")
	}
	if message.UserID != session.TokenIdentifier {
		return errForbidden("Only the author can delete a message")
	}
	if err := s.store.DeleteMessage(ctx, message.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("Message not found")
		}
		return err
	}
	s.publish(ctx, pubsub.KindMessages, doc.ID, session.TokenIdentifier)
	return nil
}

func (s *Service) UnreadCount(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	doc, _, err := s.requireRole(ctx, documentID, session, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	count, err := s.chat.Unread(ctx, doc.ID, session.TokenIdentifier)
	if err != nil {
		return nil, err
	}
	return map[string]any{"documentId": doc.ID, "unread": count}, nil
}

func (s *Service) MarkMessagesRead(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	doc, _, err := s.requireRole(ctx, documentID, session, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	mark, err := s.chat.MarkRead(ctx, doc.ID, session.TokenIdentifier)
	if err != nil {
		return nil, err
	}
	var lastReadAt any
	if !mark.IsZero() {
		lastReadAt = mark
	}
	return map[string]any{"documentId": doc.ID, "lastReadAt": lastReadAt, "unread": 0}, nil
}
