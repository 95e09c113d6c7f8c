package app

import (
	"context"
	"errors"

	"synkris/api/internal/rbac"
	"synkris/api/internal/store"
	"synkris/api/internal/versions"
)

func versionPayload(v store.TextVersion) map[string]any {
	return map[string]any{
		"id":         v.ID,
		"documentId": v.DocumentID,
		"position":   v.Position,
		"length":     v.Length,
		"content":    v.Content,
		"createdBy":  v.CreatedBy,
		"createdAt":  v.CreatedAt,
	}
}

func mapVersionError(err error) error {
	if errors.Is(err, versions.ErrInvalidRange) {
		return errValidation(err.Error())
	}
	return err
}

func (s *Service) SaveVersion(ctx context.Context, session Session, documentID string, position, length int, content string) (map[string]any, error) {
	doc, _, err := s.requireRole(ctx, documentID, session, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	v, err := s.versions.Save(ctx, doc.ID, position, length, content, session.Subject)
	if err != nil {
		return nil, mapVersionError(err)
	}
	return versionPayload(v), nil
}

func (s *Service) VersionsByPosition(ctx context.Context, session Session, documentID string, position, limit int) ([]map[string]any, error) {
	doc, _, err := s.requireRole(ctx, documentID, session, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	items, err := s.versions.ByPosition(ctx, doc.ID, position, limit)
	if err != nil {
		return nil, mapVersionError(err)
	}
	out := make([]map[string]any, 0, len(items))
	for _, v := range items {
		out = append(out, versionPayload(v))
	}
	return out, nil
}

// LatestVersion returns nil, not an error, when nothing was saved at position.
func (s *Service) LatestVersion(ctx context.Context, session Session, documentID string, position int) (map[string]any, error) {
	doc, _, err := s.requireRole(ctx, documentID, session, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	v, err := s.versions.Latest(ctx, doc.ID, position)
	if err != nil {
		return nil, mapVersionError(err)
	}
	if v == nil {
		return nil, nil
	}
	return versionPayload(*v), nil
}
