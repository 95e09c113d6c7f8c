package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"synkris/api/internal/gitrepo"
	"synkris/api/internal/pubsub"
	"synkris/api/internal/rbac"
	"synkris/api/internal/search"
	"synkris/api/internal/store"
	"synkris/api/internal/util"
)

const (
	defaultDocumentTitle = "Untitled Document"
	removedDocumentTitle = "[Removed]"
	maxTitleLength       = 200
)

func documentPayload(doc store.Document, role rbac.Role) map[string]any {
	payload := map[string]any{
		"id":             doc.ID,
		"title":          doc.Title,
		"ownerId":        doc.OwnerID,
		"organizationId": nilIfEmpty(doc.OrganizationID),
		"createdAt":      doc.CreatedAt,
		"updatedAt":      doc.UpdatedAt,
	}
	if role != rbac.RoleNone {
		payload["role"] = role
	}
	return payload
}

func normalizeTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return defaultDocumentTitle, nil
	}
	if len([]rune(title)) > maxTitleLength {
		return "", errValidation(fmt.Sprintf("title must be at most %d characters", maxTitleLength))
	}
	return title, nil
}

func (s *Service) CreateDocument(ctx context.Context, session Session, title, content string) (map[string]any, error) {
	title, err := normalizeTitle(title)
	if err != nil {
		return nil, err
	}
	doc, err := s.store.InsertDocument(ctx, store.Document{
		ID:             util.NewID("doc"),
		Title:          title,
		OwnerID:        session.Subject,
		OrganizationID: session.OrganizationID,
		Content:        content,
	})
	if err != nil {
		return nil, err
	}

	if s.git != nil {
		if err := s.git.EnsureRepo(doc.ID, gitrepo.Content{Title: doc.Title, Content: doc.Content}, session.Name); err != nil {
			log.Printf("create history for %s: %v", doc.ID, err)
		}
	}
	if s.search != nil {
		s.search.IndexDocument(doc.ID, doc.Title, doc.OwnerID, doc.OrganizationID, doc.UpdatedAt)
	}
	return documentPayload(doc, rbac.RoleOwner), nil
}

// ListDocuments returns the caller's organization documents, or their own
// documents when they have no organization. A search term narrows the same
// scope by title.
func (s *Service) ListDocuments(ctx context.Context, session Session, term string, limit, offset int) (map[string]any, error) {
	term = strings.TrimSpace(term)
	if term != "" && s.search != nil {
		response := s.search.Search(ctx, search.Query{
			Text:           term,
			OwnerID:        session.Subject,
			OrganizationID: session.OrganizationID,
			Limit:          limit,
			Offset:         offset,
		})
		return map[string]any{"items": response.Results, "total": response.Total, "query": response.Query}, nil
	}

	docs, err := s.store.ListDocuments(ctx, store.DocumentListFilter{
		OwnerID:        session.Subject,
		OrganizationID: session.OrganizationID,
		Limit:          limit,
		Offset:         offset,
	})
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(docs))
	for _, doc := range docs {
		if term != "" && !strings.Contains(strings.ToLower(doc.Title), strings.ToLower(term)) {
			continue
		}
		role := rbac.Resolve(documentRef(doc), session.caller(), rbac.RoleNone)
		items = append(items, documentPayload(doc, role))
	}
	return map[string]any{"items": items, "total": len(items)}, nil
}

func (s *Service) SharedDocuments(ctx context.Context, session Session) ([]map[string]any, error) {
	shared, err := s.store.ListSharedDocuments(ctx, session.TokenIdentifier)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(shared))
	for _, item := range shared {
		payload := documentPayload(item.Document, rbac.Role(item.Role))
		payload["sharedAt"] = item.SharedAt
		items = append(items, payload)
	}
	return items, nil
}

func (s *Service) GetDocument(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	doc, role, err := s.requireRole(ctx, documentID, session, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	payload := documentPayload(doc, role)
	payload["content"] = doc.Content
	return payload, nil
}

// LookupDocuments resolves titles for a list of ids. Missing documents and
// documents the caller cannot read come back as "[Removed]" rather than
// failing the whole lookup.
func (s *Service) LookupDocuments(ctx context.Context, session Session, documentIDs []string) ([]map[string]any, error) {
	if len(documentIDs) > 100 {
		return nil, errValidation("at most 100 ids per lookup")
	}
	docs, err := s.store.GetDocuments(ctx, documentIDs)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]store.Document, len(docs))
	for _, doc := range docs {
		byID[doc.ID] = doc
	}

	items := make([]map[string]any, 0, len(documentIDs))
	for _, id := range documentIDs {
		doc, ok := byID[id]
		if !ok {
			items = append(items, map[string]any{"id": id, "title": removedDocumentTitle})
			continue
		}
		role, err := s.roles.ResolveRole(ctx, documentRef(doc), session.caller())
		if err != nil {
			return nil, err
		}
		if role == rbac.RoleNone {
			items = append(items, map[string]any{"id": id, "title": removedDocumentTitle})
			continue
		}
		items = append(items, map[string]any{"id": id, "title": doc.Title})
	}
	return items, nil
}

type DocumentUpdate struct {
	Title   *string `json:"title"`
	Content *string `json:"content"`
}

func (s *Service) UpdateDocument(ctx context.Context, session Session, documentID string, update DocumentUpdate) (map[string]any, error) {
	doc, role, err := s.requireRole(ctx, documentID, session, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	if update.Title == nil && update.Content == nil {
		return nil, errValidation("title or content is required")
	}

	titleChanged := false
	if update.Title != nil {
		title, err := normalizeTitle(*update.Title)
		if err != nil {
			return nil, err
		}
		if title != doc.Title {
			if doc, err = s.store.UpdateDocumentTitle(ctx, doc.ID, title); err != nil {
				return nil, err
			}
			titleChanged = true
		}
	}
	if update.Content != nil {
		if doc, err = s.store.UpdateDocumentContent(ctx, doc.ID, *update.Content); err != nil {
			return nil, err
		}
	}

	if titleChanged {
		if s.search != nil {
			s.search.IndexDocument(doc.ID, doc.Title, doc.OwnerID, doc.OrganizationID, doc.UpdatedAt)
		}
		if s.git != nil {
			if _, _, err := s.git.CommitContent(doc.ID, gitrepo.Content{Title: doc.Title, Content: doc.Content}, session.Name, "Rename document"); err != nil {
				log.Printf("record rename of %s: %v", doc.ID, err)
			}
		}
	}
	s.publish(ctx, pubsub.KindDocument, doc.ID, session.Subject)
	return documentPayload(doc, role), nil
}

// DeleteDocument removes the document row only. Shares, locks, versions and
// messages stay behind.
func (s *Service) DeleteDocument(ctx context.Context, session Session, documentID string) error {
	doc, _, err := s.requireRole(ctx, documentID, session, rbac.ActionDelete)
	if err != nil {
		return err
	}
	if err := s.store.DeleteDocument(ctx, doc.ID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return errNotFound("Document not found")
		}
		return err
	}
	if s.search != nil {
		s.search.DeleteDocument(doc.ID)
	}
	s.publish(ctx, pubsub.KindDocument, doc.ID, session.Subject)
	return nil
}

// AuthInfo reports the caller's effective role for the editor UI. It never
// fails on missing access; the role is simply "none".
func (s *Service) AuthInfo(ctx context.Context, session Session, documentID string) (map[string]any, error) {
	_, role, err := s.documentAccess(ctx, documentID, session)
	if err != nil {
		return nil, err
	}
	reported := rbac.AuthInfoRole(role)
	return map[string]any{
		"documentId":      documentID,
		"role":            roleName(reported),
		"userId":          session.Subject,
		"tokenIdentifier": session.TokenIdentifier,
		"canEdit":         rbac.EditorEquivalent(role),
		"canComment":      rbac.Can(role, rbac.ActionComment),
		"isOwner":         role == rbac.RoleOwner,
	}, nil
}

func roleName(role rbac.Role) string {
	if role == rbac.RoleNone {
		return "none"
	}
	return string(role)
}

func (s *Service) Me(session Session) map[string]any {
	return map[string]any{
		"id":              session.UserID,
		"subject":         session.Subject,
		"tokenIdentifier": session.TokenIdentifier,
		"name":            session.Name,
		"email":           session.Email,
		"pictureUrl":      session.PictureURL,
		"organizationId":  nilIfEmpty(session.OrganizationID),
	}
}

// GetUser exposes only what presence indicators need.
func (s *Service) GetUser(ctx context.Context, tokenIdentifier string) (map[string]any, error) {
	user, err := s.store.GetUserByTokenIdentifier(ctx, tokenIdentifier)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("User not found")
		}
		return nil, err
	}
	return map[string]any{
		"tokenIdentifier": user.TokenIdentifier,
		"name":            user.Name,
		"pictureUrl":      user.PictureURL,
		"updatedAt":       user.UpdatedAt.UTC().Format(time.RFC3339),
	}, nil
}
