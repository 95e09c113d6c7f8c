package store

import "time"

// InvitePrefix marks share rows created for an email that has no account yet.
const InvitePrefix = "invite:"

type User struct {
	ID              string
	TokenIdentifier string
	Subject         string
	Name            string
	Email           string
	PictureURL      string
	OrganizationID  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type Document struct {
	ID             string
	Title          string
	OwnerID        string
	OrganizationID string
	Content        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

type Share struct {
	ID         string
	DocumentID string
	UserID     string
	Email      string
	Role       string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// IsInvite reports whether the share still points at an email placeholder.
func (s Share) IsInvite() bool {
	return len(s.UserID) > len(InvitePrefix) && s.UserID[:len(InvitePrefix)] == InvitePrefix
}

// ShareWithUser is a share joined with the account it resolves to, if any.
type ShareWithUser struct {
	Share
	UserName   string
	PictureURL string
}

// SharedDocument is a document reached through a share row.
type SharedDocument struct {
	Document
	Role     string
	SharedAt time.Time
}

type Lock struct {
	ID         string
	DocumentID string
	Position   int
	Length     int
	LockedBy   string
	LockedAt   time.Time
}

type TextVersion struct {
	ID         string
	DocumentID string
	Position   int
	Length     int
	Content    string
	CreatedBy  string
	CreatedAt  time.Time
}

type Message struct {
	ID         string
	DocumentID string
	UserID     string
	UserName   string
	UserAvatar string
	Content    string
	CreatedAt  time.Time
}

type ReadMark struct {
	DocumentID string
	UserID     string
	LastReadAt time.Time
}

// DocumentListFilter scopes listing to an organization or to one owner.
type DocumentListFilter struct {
	OwnerID        string
	OrganizationID string
	Limit          int
	Offset         int
}
