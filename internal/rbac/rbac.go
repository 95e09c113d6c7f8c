package rbac

import (
	"context"
	"strings"
)

type Role string
type Action string

const (
	RoleNone               Role = ""
	RoleViewer             Role = "viewer"
	RoleCommenter          Role = "commenter"
	RoleEditor             Role = "editor"
	RoleOrganizationMember Role = "organization_member"
	RoleOwner              Role = "owner"
)

const (
	ActionRead    Action = "read"
	ActionComment Action = "comment"
	ActionWrite   Action = "write"
	ActionManage  Action = "manage"
	ActionDelete  Action = "delete"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleOwner:
		return true
	case RoleOrganizationMember:
		return action != ActionManage
	case RoleEditor:
		return action == ActionRead || action == ActionComment || action == ActionWrite
	case RoleCommenter:
		return action == ActionRead || action == ActionComment
	case RoleViewer:
		return action == ActionRead
	default:
		return false
	}
}

// ParseShareRole accepts only the roles a share can carry.
func ParseShareRole(value string) (Role, bool) {
	switch role := Role(strings.ToLower(strings.TrimSpace(value))); role {
	case RoleViewer, RoleCommenter, RoleEditor:
		return role, true
	default:
		return RoleNone, false
	}
}

// EditorEquivalent reports whether role may mutate locks, versions and content.
func EditorEquivalent(role Role) bool {
	return Can(role, ActionWrite)
}

// AuthInfoRole is the role reported to clients: owner and organization members
// are presented as editors.
func AuthInfoRole(role Role) Role {
	switch role {
	case RoleOwner, RoleOrganizationMember:
		return RoleEditor
	default:
		return role
	}
}

type DocumentRef struct {
	ID             string
	OwnerID        string
	OrganizationID string
}

type Caller struct {
	Subject         string
	TokenIdentifier string
	OrganizationID  string
}

// Resolve applies the precedence owner > organization member > share role.
// shareRole is ignored when an earlier rule matches.
func Resolve(doc DocumentRef, caller Caller, shareRole Role) Role {
	if role, ok := implicitRole(doc, caller); ok {
		return role
	}
	if _, ok := ParseShareRole(string(shareRole)); ok {
		return shareRole
	}
	return RoleNone
}

func implicitRole(doc DocumentRef, caller Caller) (Role, bool) {
	if caller.Subject != "" && doc.OwnerID == caller.Subject {
		return RoleOwner, true
	}
	if doc.OrganizationID != "" && caller.OrganizationID != "" && doc.OrganizationID == caller.OrganizationID {
		return RoleOrganizationMember, true
	}
	return RoleNone, false
}

type ShareLookup interface {
	// ShareRole returns RoleNone without error when no share exists.
	ShareRole(ctx context.Context, documentID, userID string) (Role, error)
}

type Evaluator struct {
	shares ShareLookup
}

func NewEvaluator(shares ShareLookup) *Evaluator {
	return &Evaluator{shares: shares}
}

// ResolveRole only consults the share registry when ownership and organization
// checks fail. Lookup failures are returned; a missing share is RoleNone.
func (e *Evaluator) ResolveRole(ctx context.Context, doc DocumentRef, caller Caller) (Role, error) {
	if role, ok := implicitRole(doc, caller); ok {
		return role, nil
	}
	if caller.TokenIdentifier == "" {
		return RoleNone, nil
	}
	shareRole, err := e.shares.ShareRole(ctx, doc.ID, caller.TokenIdentifier)
	if err != nil {
		return RoleNone, err
	}
	return Resolve(doc, caller, shareRole), nil
}
