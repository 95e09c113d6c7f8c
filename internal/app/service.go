package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"synkris/api/internal/auth"
	"synkris/api/internal/chat"
	"synkris/api/internal/config"
	"synkris/api/internal/export"
	"synkris/api/internal/gitrepo"
	"synkris/api/internal/locking"
	"synkris/api/internal/pubsub"
	"synkris/api/internal/rbac"
	"synkris/api/internal/search"
	"synkris/api/internal/store"
	"synkris/api/internal/util"
	"synkris/api/internal/versions"
	"synkris/api/internal/versiontrack"
)

// Session is the authenticated caller of one request.
type Session struct {
	auth.Identity
	UserID string
}

func (s Session) caller() rbac.Caller {
	return rbac.Caller{
		Subject:         s.Subject,
		TokenIdentifier: s.TokenIdentifier,
		OrganizationID:  s.OrganizationID,
	}
}

type dataStore interface {
	Ping(context.Context) error

	UpsertUser(context.Context, store.User) (store.User, bool, int, error)
	GetUserByTokenIdentifier(context.Context, string) (store.User, error)
	FindUserByEmail(context.Context, string) (*store.User, error)

	InsertDocument(context.Context, store.Document) (store.Document, error)
	GetDocument(context.Context, string) (store.Document, error)
	GetDocuments(context.Context, []string) ([]store.Document, error)
	ListDocuments(context.Context, store.DocumentListFilter) ([]store.Document, error)
	UpdateDocumentTitle(context.Context, string, string) (store.Document, error)
	UpdateDocumentContent(context.Context, string, string) (store.Document, error)
	DeleteDocument(context.Context, string) error

	ShareRole(context.Context, string, string) (rbac.Role, error)
	UpsertShare(context.Context, store.Share) (store.Share, error)
	DeleteShare(context.Context, string, string) (bool, error)
	ListShares(context.Context, string) ([]store.ShareWithUser, error)
	ListSharedDocuments(context.Context, string) ([]store.SharedDocument, error)

	ToggleLock(context.Context, store.Lock) (store.LockToggle, error)
	GetLock(context.Context, string, int) (*store.Lock, error)
	DeleteLockByID(context.Context, string) (bool, error)
	ListLocks(context.Context, string) ([]store.Lock, error)

	InsertVersion(context.Context, store.TextVersion) error
	ListVersionsByPosition(context.Context, string, int, int) ([]store.TextVersion, error)
	LatestVersion(context.Context, string, int) (*store.TextVersion, error)

	InsertMessage(context.Context, store.Message) error
	ListMessages(context.Context, string, int) ([]store.Message, error)
	GetMessage(context.Context, string) (store.Message, error)
	DeleteMessage(context.Context, string) error
	GetReadMark(context.Context, string, string) (time.Time, error)
	AdvanceReadMark(context.Context, string, string, time.Time) (time.Time, error)
}

type gitService interface {
	EnsureRepo(string, gitrepo.Content, string) error
	CommitContent(string, gitrepo.Content, string, string) (gitrepo.CommitInfo, bool, error)
	History(string, int) ([]gitrepo.CommitInfo, error)
	ContentAt(string, string) (gitrepo.Content, gitrepo.CommitInfo, error)
}

type blobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType, filename string) error
	PresignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

type exporter interface {
	Export(ctx context.Context, doc export.Document, format export.Format) (*export.Result, error)
}

type inviteMailer interface {
	IsConfigured() bool
	SendInvite(to, inviterName, documentTitle, role, documentURL string) error
}

// Dependencies are the optional collaborators of a Service. Nil members
// disable the feature they back.
type Dependencies struct {
	Git      gitService
	Broker   pubsub.Broker
	Search   *search.Service
	Email    inviteMailer
	Exporter exporter
	Blob     blobStore
	Verifier *auth.Verifier
}

type syncSessionRecord struct {
	expiresAt time.Time
	payload   map[string]any
}

type Service struct {
	cfg      config.Config
	store    dataStore
	git      gitService
	broker   pubsub.Broker
	search   *search.Service
	mailer   inviteMailer
	exporter exporter
	blob     blobStore
	verifier *auth.Verifier

	roles    *rbac.Evaluator
	locks    *locking.Registry
	versions *versions.Service
	chat     *chat.Aggregator

	syncSessionTTL time.Duration
	syncMu         sync.Mutex
	syncSessions   map[string]syncSessionRecord

	trackerMu sync.Mutex
	trackers  map[string]*versiontrack.Tracker
}

func New(cfg config.Config, dataStore dataStore, deps Dependencies) *Service {
	broker := deps.Broker
	if broker == nil {
		broker = pubsub.NewMemoryBroker()
	}
	verifier := deps.Verifier
	if verifier == nil {
		verifier = auth.NewVerifier(cfg.IdentitySecret, cfg.IdentityIssuer, cfg.IdentityAudience)
	}
	return &Service{
		cfg:            cfg,
		store:          dataStore,
		git:            deps.Git,
		broker:         broker,
		search:         deps.Search,
		mailer:         deps.Email,
		exporter:       deps.Exporter,
		blob:           deps.Blob,
		verifier:       verifier,
		roles:          rbac.NewEvaluator(dataStore),
		locks:          locking.NewRegistry(dataStore, broker),
		versions:       versions.NewService(dataStore),
		chat:           chat.NewAggregator(dataStore),
		syncSessionTTL: 15 * time.Minute,
		syncSessions:   make(map[string]syncSessionRecord),
		trackers:       make(map[string]*versiontrack.Tracker),
	}
}

func (s *Service) SyncToken() string {
	return s.cfg.SyncToken
}

// Ping checks the health of service dependencies (database, etc.)
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Authenticate verifies an identity token and mirrors the user. The first
// sighting of an email claims the invites addressed to it.
func (s *Service) Authenticate(ctx context.Context, token string) (Session, error) {
	identity, err := s.verifier.Verify(token)
	if err != nil {
		return Session{}, err
	}
	user, created, claimed, err := s.store.UpsertUser(ctx, store.User{
		ID:              util.NewID("usr"),
		TokenIdentifier: identity.TokenIdentifier,
		Subject:         identity.Subject,
		Name:            identity.Name,
		Email:           identity.Email,
		PictureURL:      identity.PictureURL,
		OrganizationID:  identity.OrganizationID,
	})
	if err != nil {
		return Session{}, fmt.Errorf("mirror user: %w", err)
	}
	if created && claimed > 0 {
		log.Printf("user %s claimed %d pending invite(s)", identity.TokenIdentifier, claimed)
	}
	return Session{Identity: identity, UserID: user.ID}, nil
}

// documentAccess loads a document and the caller's role on it. A missing
// document is NotFound; role checks are left to the caller.
func (s *Service) documentAccess(ctx context.Context, documentID string, session Session) (store.Document, rbac.Role, error) {
	doc, err := s.loadDocument(ctx, documentID)
	if err != nil {
		return store.Document{}, rbac.RoleNone, err
	}
	role, err := s.roles.ResolveRole(ctx, documentRef(doc), session.caller())
	if err != nil {
		return store.Document{}, rbac.RoleNone, err
	}
	return doc, role, nil
}

func (s *Service) loadDocument(ctx context.Context, documentID string) (store.Document, error) {
	documentID = strings.TrimSpace(documentID)
	if documentID == "" {
		return store.Document{}, errValidation("document id is required")
	}
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.Document{}, errNotFound("Document not found")
		}
		return store.Document{}, fmt.Errorf("load document: %w", err)
	}
	return doc, nil
}

// requireRole is documentAccess plus the gate for action.
func (s *Service) requireRole(ctx context.Context, documentID string, session Session, action rbac.Action) (store.Document, rbac.Role, error) {
	doc, role, err := s.documentAccess(ctx, documentID, session)
	if err != nil {
		return store.Document{}, rbac.RoleNone, err
	}
	if !rbac.Can(role, action) {
		return store.Document{}, role, errUnauthorized()
	}
	return doc, role, nil
}

func documentRef(doc store.Document) rbac.DocumentRef {
	return rbac.DocumentRef{ID: doc.ID, OwnerID: doc.OwnerID, OrganizationID: doc.OrganizationID}
}

func (s *Service) publish(ctx context.Context, kind pubsub.Kind, documentID, actor string) {
	if err := s.broker.Publish(ctx, pubsub.Event{Kind: kind, DocumentID: documentID, Actor: actor, At: time.Now().UTC()}); err != nil {
		log.Printf("publish %s event for %s: %v", kind, documentID, err)
	}
}

func firstNonBlank(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func nilIfEmpty(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func clonePayload(input map[string]any) map[string]any {
	cloned := make(map[string]any, len(input))
	for key, value := range input {
		cloned[key] = value
	}
	return cloned
}
