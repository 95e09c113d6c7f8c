package app

import (
	"context"
	"fmt"
	"log"
	"net/mail"
	"strings"

	"synkris/api/internal/rbac"
	"synkris/api/internal/store"
	"synkris/api/internal/util"
)

func sharePayload(share store.ShareWithUser) map[string]any {
	return map[string]any{
		"id":         share.ID,
		"documentId": share.DocumentID,
		"userId":     share.UserID,
		"email":      share.Email,
		"role":       share.Role,
		"pending":    share.IsInvite(),
		"userName":   nilIfEmpty(share.UserName),
		"pictureUrl": nilIfEmpty(share.PictureURL),
		"createdAt":  share.CreatedAt,
	}
}

// requireOwner gates sharing operations. Callers without any access get
// Unauthorized like every other gate; everyone else who is not the owner gets
// Forbidden.
func (s *Service) requireOwner(ctx context.Context, documentID string, session Session) (store.Document, error) {
	doc, role, err := s.requireRole(ctx, documentID, session, rbac.ActionRead)
	if err != nil {
		return store.Document{}, err
	}
	if !rbac.Can(role, rbac.ActionManage) {
		return store.Document{}, errForbidden("Only the document owner can manage sharing")
	}
	return doc, nil
}

func normalizeEmail(value string) (string, error) {
	value = strings.ToLower(strings.TrimSpace(value))
	if value == "" {
		return "", errValidation("email is required")
	}
	addr, err := mail.ParseAddress(value)
	if err != nil || addr.Address != value {
		return "", errValidation("email is invalid")
	}
	return value, nil
}

// ShareDocument grants role to the account behind email. Unknown emails get an
// "invite:<email>" placeholder that is claimed on the invitee's first sign-in.
// Sharing again with the same person replaces the role.
func (s *Service) ShareDocument(ctx context.Context, session Session, documentID, emailAddress, roleValue string) (map[string]any, error) {
	doc, err := s.requireOwner(ctx, documentID, session)
	if err != nil {
		return nil, err
	}
	emailAddress, err = normalizeEmail(emailAddress)
	if err != nil {
		return nil, err
	}
	role, ok := rbac.ParseShareRole(roleValue)
	if !ok {
		return nil, errValidation("role must be viewer, commenter or editor")
	}
	if emailAddress == session.Email {
		return nil, errValidation("cannot share a document with yourself")
	}

	userID := store.InvitePrefix + emailAddress
	var invitee *store.User
	if invitee, err = s.store.FindUserByEmail(ctx, emailAddress); err != nil {
		return nil, err
	}
	if invitee != nil {
		if invitee.Subject == doc.OwnerID {
			return nil, errValidation("cannot share a document with its owner")
		}
		userID = invitee.TokenIdentifier
	}

	share, err := s.store.UpsertShare(ctx, store.Share{
		ID:         util.NewID("shr"),
		DocumentID: doc.ID,
		UserID:     userID,
		Email:      emailAddress,
		Role:       string(role),
	})
	if err != nil {
		return nil, err
	}

	s.sendInvite(emailAddress, session.Name, doc, role)

	withUser := store.ShareWithUser{Share: share}
	if invitee != nil {
		withUser.UserName = invitee.Name
		withUser.PictureURL = invitee.PictureURL
	}
	return sharePayload(withUser), nil
}

func (s *Service) sendInvite(to, inviter string, doc store.Document, role rbac.Role) {
	if s.mailer == nil || !s.mailer.IsConfigured() {
		return
	}
	link := fmt.Sprintf("%s/documents/%s", s.cfg.AppURL, doc.ID)
	go func() {
		if err := s.mailer.SendInvite(to, firstNonBlank(inviter, "A Synkris user"), doc.Title, string(role), link); err != nil {
			log.Printf("send invite for %s to %s: %v", doc.ID, to, err)
		}
	}()
}

func (s *Service) RemoveShare(ctx context.Context, session Session, documentID, userID string) error {
	doc, err := s.requireOwner(ctx, documentID, session)
	if err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errValidation("userId is required")
	}
	deleted, err := s.store.DeleteShare(ctx, doc.ID, userID)
	if err != nil {
		return err
	}
	if !deleted {
		return errNotFound("Share not found")
	}
	return nil
}

func (s *Service) GetShares(ctx context.Context, session Session, documentID string) ([]map[string]any, error) {
	doc, err := s.requireOwner(ctx, documentID, session)
	if err != nil {
		return nil, err
	}
	shares, err := s.store.ListShares(ctx, doc.ID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(shares))
	for _, share := range shares {
		items = append(items, sharePayload(share))
	}
	return items, nil
}

// LeaveDocument drops the caller's own share. Owners and organization members
// have nothing to leave.
func (s *Service) LeaveDocument(ctx context.Context, session Session, documentID string) error {
	doc, _, err := s.requireRole(ctx, documentID, session, rbac.ActionRead)
	if err != nil {
		return err
	}
	deleted, err := s.store.DeleteShare(ctx, doc.ID, session.TokenIdentifier)
	if err != nil {
		return err
	}
	if !deleted {
		return errNotFound("You have no share on this document")
	}
	return nil
}
