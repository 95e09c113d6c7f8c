package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"synkris/api/internal/auth"
	"synkris/api/internal/buffer"
	"synkris/api/internal/gitrepo"
	"synkris/api/internal/rbac"
	"synkris/api/internal/versiontrack"
)

// RealtimeAuth issues the token a client presents to the sync layer for one
// document room. Viewers get read access; every other role gets full access.
func (s *Service) RealtimeAuth(ctx context.Context, session Session, room string) (map[string]any, error) {
	room = strings.TrimSpace(room)
	if room == "" {
		return nil, errValidation("room is required")
	}
	doc, role, err := s.requireRole(ctx, room, session, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	access := auth.RoomAccessFull
	if role == rbac.RoleViewer {
		access = auth.RoomAccessRead
	}
	token, expiresAt, err := auth.IssueRoomToken([]byte(s.cfg.RealtimeSecret), session.Identity, doc.ID, access, s.cfg.RealtimeTokenTTL)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"token":     token,
		"room":      doc.ID,
		"access":    access,
		"expiresAt": expiresAt.Unix(),
	}, nil
}

func trackerKey(documentID, actor string) string {
	return documentID + "|" + actor
}

// tracker returns the version capture state for one actor on one document,
// creating it on first use.
func (s *Service) tracker(documentID, actor string) *versiontrack.Tracker {
	key := trackerKey(documentID, actor)
	s.trackerMu.Lock()
	defer s.trackerMu.Unlock()
	if t, ok := s.trackers[key]; ok {
		return t
	}
	saver := versiontrack.SaverFunc(func(ctx context.Context, position, length int, content string) error {
		_, err := s.versions.Save(ctx, documentID, position, length, content, actor)
		return err
	})
	t := versiontrack.New(saver, versiontrack.Options{
		QuietPeriod: s.cfg.VersionQuietPeriod,
		StaleAfter:  s.cfg.VersionStaleAfter,
	})
	s.trackers[key] = t
	return t
}

func (s *Service) releaseTracker(ctx context.Context, documentID, actor string) bool {
	key := trackerKey(documentID, actor)
	s.trackerMu.Lock()
	t, ok := s.trackers[key]
	delete(s.trackers, key)
	s.trackerMu.Unlock()
	if ok {
		t.Close(ctx)
	}
	return ok
}

// Close flushes every open version tracker.
func (s *Service) Close(ctx context.Context) {
	s.trackerMu.Lock()
	trackers := make([]*versiontrack.Tracker, 0, len(s.trackers))
	for key, t := range s.trackers {
		trackers = append(trackers, t)
		delete(s.trackers, key)
	}
	s.trackerMu.Unlock()
	for _, t := range trackers {
		t.Close(ctx)
	}
}

type SyncUpdate struct {
	DocumentID string `json:"documentId"`
	Actor      string `json:"actor"`
	Content    string `json:"content"`
	Caret      int    `json:"caret"`
}

// HandleSyncUpdate persists the content the sync layer reports after an edit
// and feeds the actor's caret paragraph to automatic version capture.
func (s *Service) HandleSyncUpdate(ctx context.Context, update SyncUpdate) (map[string]any, error) {
	documentID := strings.TrimSpace(update.DocumentID)
	actor := strings.TrimSpace(update.Actor)
	if documentID == "" {
		return nil, errValidation("documentId is required")
	}
	if actor == "" {
		return nil, errValidation("actor is required")
	}
	if update.Caret < 0 {
		return nil, errValidation("caret must be >= 0")
	}
	if _, err := s.store.UpdateDocumentContent(ctx, documentID, update.Content); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("Document not found")
		}
		return nil, err
	}
	pending := s.tracker(documentID, actor).Observe(buffer.FromContent(update.Content), update.Caret)
	return map[string]any{
		"ok":             true,
		"documentId":     documentID,
		"versionPending": pending,
	}, nil
}

type SyncSnapshot struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type SyncSessionEnded struct {
	SessionID   string        `json:"sessionId"`
	DocumentID  string        `json:"documentId"`
	Actor       string        `json:"actor"`
	ActorName   string        `json:"actorName"`
	UpdateCount int           `json:"updateCount"`
	Snapshot    *SyncSnapshot `json:"snapshot"`
}

// HandleSyncSessionEnded flushes the actor's pending version captures and
// records the final content in the document history. Replays of the same
// session id return the first response.
func (s *Service) HandleSyncSessionEnded(ctx context.Context, ended SyncSessionEnded) (map[string]any, error) {
	sessionID := strings.TrimSpace(ended.SessionID)
	if sessionID == "" {
		return nil, errValidation("sessionId is required")
	}
	documentID := strings.TrimSpace(ended.DocumentID)
	if documentID == "" {
		return nil, errValidation("documentId is required")
	}
	if cached, ok := s.lookupSyncSession(sessionID); ok {
		return clonePayload(cached), nil
	}

	flushed := false
	if actor := strings.TrimSpace(ended.Actor); actor != "" {
		flushed = s.releaseTracker(ctx, documentID, actor)
	}

	payload := map[string]any{
		"ok":             true,
		"sessionId":      sessionID,
		"documentId":     documentID,
		"flushCommit":    nil,
		"updateCount":    ended.UpdateCount,
		"versionFlushed": flushed,
	}
	if ended.Snapshot == nil {
		s.storeSyncSession(sessionID, payload)
		return clonePayload(payload), nil
	}

	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errNotFound("Document not found")
		}
		return nil, err
	}
	content := ended.Snapshot.Content
	if content == "" {
		content = doc.Content
	} else if content != doc.Content {
		if doc, err = s.store.UpdateDocumentContent(ctx, doc.ID, content); err != nil {
			return nil, err
		}
	}

	if s.git != nil {
		next := gitrepo.Content{Title: firstNonBlank(ended.Snapshot.Title, doc.Title), Content: content}
		author := firstNonBlank(ended.ActorName, ended.Actor, "Sync Gateway")
		commit, changed, err := s.git.CommitContent(doc.ID, next, author, fmt.Sprintf("Sync session flush (%d updates)", max(ended.UpdateCount, 1)))
		if err != nil {
			return nil, err
		}
		if changed {
			payload["flushCommit"] = commit.Hash
		}
	}
	s.storeSyncSession(sessionID, payload)
	return clonePayload(payload), nil
}

func (s *Service) lookupSyncSession(sessionID string) (map[string]any, bool) {
	now := time.Now()
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	for key, record := range s.syncSessions {
		if now.After(record.expiresAt) {
			delete(s.syncSessions, key)
		}
	}
	record, ok := s.syncSessions[sessionID]
	if !ok {
		return nil, false
	}
	return record.payload, true
}

func (s *Service) storeSyncSession(sessionID string, payload map[string]any) {
	s.syncMu.Lock()
	defer s.syncMu.Unlock()
	s.syncSessions[sessionID] = syncSessionRecord{
		expiresAt: time.Now().Add(s.syncSessionTTL),
		payload:   clonePayload(payload),
	}
}
