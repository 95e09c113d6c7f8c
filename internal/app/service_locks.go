package app

import (
	"context"
	"errors"
	"net/http"

	"synkris/api/internal/guard"
	"synkris/api/internal/locking"
	"synkris/api/internal/rbac"
	"synkris/api/internal/store"
	"synkris/api/internal/textrange"
)

func lockPayload(lock store.Lock) map[string]any {
	return map[string]any{
		"id":         lock.ID,
		"documentId": lock.DocumentID,
		"position":   lock.Position,
		"length":     lock.Length,
		"lockedBy":   lock.LockedBy,
		"lockedAt":   lock.LockedAt,
	}
}

func lockListPayload(locks []store.Lock) []map[string]any {
	items := make([]map[string]any, 0, len(locks))
	for _, lock := range locks {
		items = append(items, lockPayload(lock))
	}
	return items
}

// mapLockError turns registry sentinels into domain errors.
func mapLockError(err error) error {
	var conflict *locking.ConflictError
	switch {
	case errors.As(err, &conflict):
		return domainError(http.StatusConflict, codeLockConflict, "Range is locked by another user", lockPayload(conflict.Holder))
	case errors.Is(err, locking.ErrInvalidRange):
		return errValidation(err.Error())
	case errors.Is(err, locking.ErrNotLocked):
		return errNotFound("No lock at this position")
	case errors.Is(err, locking.ErrForbidden):
		return errForbidden("Only the lock holder or the document owner can unlock")
	default:
		return err
	}
}

func (s *Service) ToggleLock(ctx context.Context, session Session, documentID string, position, length int) (map[string]any, error) {
	doc, _, err := s.requireRole(ctx, documentID, session, rbac.ActionWrite)
	if err != nil {
		return nil, err
	}
	result, err := s.locks.Toggle(ctx, doc.ID, position, length, session.Subject)
	if err != nil {
		return nil, mapLockError(err)
	}
	return map[string]any{
		"locked": result.Locked,
		"lock":   lockPayload(result.Lock),
	}, nil
}

// ReleaseLock lets the holder or the document owner drop a lock outright.
// There is no role gate: a holder whose share was revoked can still release.
func (s *Service) ReleaseLock(ctx context.Context, session Session, documentID string, position int) error {
	doc, err := s.loadDocument(ctx, documentID)
	if err != nil {
		return err
	}
	if position < 0 {
		return errValidation(locking.ErrInvalidRange.Error())
	}
	if err := s.locks.Release(ctx, doc.ID, position, session.Subject, doc.OwnerID); err != nil {
		return mapLockError(err)
	}
	return nil
}

func (s *Service) ListLocks(ctx context.Context, session Session, documentID string) ([]store.Lock, error) {
	doc, _, err := s.requireRole(ctx, documentID, session, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	return s.locks.List(ctx, doc.ID)
}

func (s *Service) IsLocked(ctx context.Context, session Session, documentID string, position int) (map[string]any, error) {
	doc, _, err := s.requireRole(ctx, documentID, session, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	if position < 0 {
		return nil, errValidation(locking.ErrInvalidRange.Error())
	}
	lock, err := s.locks.IsLocked(ctx, doc.ID, position)
	if err != nil {
		return nil, err
	}
	if lock == nil {
		return map[string]any{"locked": false, "lock": nil}, nil
	}
	return map[string]any{"locked": true, "lock": lockPayload(*lock)}, nil
}

type AdmissionRequest struct {
	Steps     []AdmissionStep `json:"steps"`
	Selection *AdmissionStep  `json:"selection"`
}

type AdmissionStep struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// CheckAdmission runs the edit guard server-side against the current lock
// set, for clients that cannot hold a live lock feed. Selections are
// clamped, never rejected.
func (s *Service) CheckAdmission(ctx context.Context, session Session, documentID string, req AdmissionRequest) (map[string]any, error) {
	doc, _, err := s.requireRole(ctx, documentID, session, rbac.ActionRead)
	if err != nil {
		return nil, err
	}
	locks, err := s.locks.List(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	g := guard.New(guard.NewProvider(locking.GuardLocks(locks), session.Subject))

	payload := map[string]any{"allowed": true}
	if req.Selection != nil {
		clamped := g.ClampSelection(textrange.Normalize(req.Selection.From, req.Selection.To))
		payload["selection"] = map[string]any{"from": clamped.From, "to": clamped.To}
	}
	if len(req.Steps) == 0 {
		return payload, nil
	}

	steps := make([]guard.Step, 0, len(req.Steps))
	for _, step := range req.Steps {
		if step.From < 0 || step.To < 0 {
			return nil, errValidation("step positions must be >= 0")
		}
		steps = append(steps, guard.Step{Range: textrange.Normalize(step.From, step.To)})
	}
	if err := g.Admit(steps...); err != nil {
		var locked *guard.LockedRangeError
		if errors.As(err, &locked) {
			return nil, domainError(http.StatusLocked, codeLockedRange, "Edit touches a range locked by another user", map[string]any{
				"lockedBy": locked.LockedBy,
				"from":     locked.Lock.From,
				"to":       locked.Lock.To,
			})
		}
		return nil, err
	}
	return payload, nil
}
