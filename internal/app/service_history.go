package app

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"synkris/api/internal/blob"
	"synkris/api/internal/export"
	"synkris/api/internal/gitrepo"
	"synkris/api/internal/rbac"
)

func (s *Service) History(ctx context.Context, session Session, documentID string, limit int) (map[string]any, error) {
	doc, _, err := s.requireRole(ctx, documentID, session, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	commits := []gitrepo.CommitInfo{}
	if s.git != nil {
		items, err := s.git.History(doc.ID, limit)
		switch {
		case errors.Is(err, gitrepo.ErrNoHistory):
		case err != nil:
			return nil, err
		default:
			commits = items
		}
	}
	return map[string]any{"documentId": doc.ID, "commits": commits}, nil
}

func (s *Service) HistoryContent(ctx context.Context, session Session, documentID, hash string) (map[string]any, error) {
	doc, _, err := s.requireRole(ctx, documentID, session, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	if s.git == nil {
		return nil, errNotFound("Commit not found")
	}
	content, commit, err := s.git.ContentAt(doc.ID, hash)
	if err != nil {
		if !errors.Is(err, gitrepo.ErrNoHistory) {
			log.Printf("read %s at %s: %v", doc.ID, hash, err)
		}
		return nil, errNotFound("Commit not found")
	}
	return map[string]any{
		"documentId": doc.ID,
		"commit":     commit,
		"title":      content.Title,
		"content":    content.Content,
	}, nil
}

// ExportOutcome carries either the rendered bytes or, when object storage is
// configured, a presigned link to them.
type ExportOutcome struct {
	Result    *export.Result
	URL       string
	ExpiresAt time.Time
}

func (s *Service) ExportDocument(ctx context.Context, session Session, documentID string, format export.Format, includeChat bool) (ExportOutcome, error) {
	doc, role, err := s.requireRole(ctx, documentID, session, rbac.ActionRead)
	if err != nil {
		return ExportOutcome{}, err
	}
	if s.exporter == nil {
		return ExportOutcome{}, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", "Export is not configured", nil)
	}

	input := export.Document{
		ID:        doc.ID,
		Title:     doc.Title,
		Content:   doc.Content,
		UpdatedAt: doc.UpdatedAt,
	}
	if role == rbac.RoleOwner {
		input.OwnerName = session.Name
	}
	if includeChat {
		messages, err := s.store.ListMessages(ctx, doc.ID, 500)
		if err != nil {
			return ExportOutcome{}, err
		}
		for _, m := range messages {
			input.Messages = append(input.Messages, export.Message{Author: m.UserName, Body: m.Content, CreatedAt: m.CreatedAt})
		}
	}

	result, err := s.exporter.Export(ctx, input, format)
	if err != nil {
		switch {
		case errors.Is(err, export.ErrUnsupportedFormat):
			return ExportOutcome{}, errValidation("format must be html, pdf or docx")
		case errors.Is(err, export.ErrPDFDependencyMissing), errors.Is(err, export.ErrDOCXDependencyMissing):
			return ExportOutcome{}, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil)
		}
		return ExportOutcome{}, err
	}

	if s.blob == nil {
		return ExportOutcome{Result: result}, nil
	}
	key := blob.ExportKey(doc.ID, result.Filename, time.Now())
	if err := s.blob.Put(ctx, key, result.Data, result.MimeType, result.Filename); err != nil {
		log.Printf("store export %s: %v; returning inline", key, err)
		return ExportOutcome{Result: result}, nil
	}
	ttl := s.cfg.BlobPresignTTL
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	link, err := s.blob.PresignedURL(ctx, key, ttl)
	if err != nil {
		return ExportOutcome{}, err
	}
	return ExportOutcome{Result: result, URL: link, ExpiresAt: time.Now().Add(ttl)}, nil
}
