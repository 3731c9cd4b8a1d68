package app

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"pdfpro/api/internal/actions"
	"pdfpro/api/internal/auth"
	"pdfpro/api/internal/blob"
	"pdfpro/api/internal/config"
	"pdfpro/api/internal/gitrepo"
	"pdfpro/api/internal/live"
	"pdfpro/api/internal/render"
	"pdfpro/api/internal/search"
	"pdfpro/api/internal/session"
	"pdfpro/api/internal/store"
	"pdfpro/api/internal/workspace"
)

type Session struct {
	Token     string
	UserID    string
	UserName  string
	JTI       string
	ExpiresAt time.Time
}

type dataStore interface {
	EnsureUserByName(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)
	SaveWorkspace(context.Context, string, []byte) (store.WorkspaceRecord, error)
	LoadWorkspace(context.Context, string) (store.WorkspaceRecord, error)
	InsertImage(context.Context, store.ImageRecord) (store.ImageRecord, error)
	ListImages(context.Context, string) ([]store.ImageRecord, error)
	ImageOwner(context.Context, string) (string, error)
	Ping(ctx context.Context) error
}

type draftStore interface {
	SaveDraft(context.Context, string, []byte, time.Duration) error
	LoadDraft(context.Context, string) (session.Draft, error)
	DeleteDraft(context.Context, string) error
	Ping(context.Context) error
}

type blobStore interface {
	Put(context.Context, string, string, []byte) (string, error)
	Get(context.Context, string) ([]byte, error)
	Ping(context.Context) error
}

type versionStore interface {
	Checkpoint(string, workspace.State, string, string) (gitrepo.CommitInfo, error)
	History(string, int) ([]gitrepo.CommitInfo, error)
	Load(string, string) (workspace.State, gitrepo.CommitInfo, error)
	Tag(string, string, string) error
}

type searchService interface {
	Search(context.Context, search.Query) search.Response
	IndexWorkspace(string, workspace.State)
}

type liveHub interface {
	ServeWS(http.ResponseWriter, *http.Request, string) error
	Broadcast(string, string, any)
	Close()
}

type Option func(*Service)

// WithDrafts enables the Redis draft cache.
func WithDrafts(d *session.RedisStore) Option {
	return func(s *Service) {
		if d != nil {
			s.drafts = d
		}
	}
}

// WithBlobs enables image uploads backed by object storage.
func WithBlobs(b *blob.Store) Option {
	return func(s *Service) {
		if b != nil {
			s.blobs = b
		}
	}
}

func WithSearch(svc *search.Service) Option {
	return func(s *Service) {
		if svc != nil {
			s.search = svc
		}
	}
}

func WithHub(h *live.Hub) Option {
	return func(s *Service) {
		if h != nil {
			s.hub = h
		}
	}
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *Service) { s.log = log }
}

type Service struct {
	cfg      config.Config
	store    dataStore
	drafts   draftStore
	blobs    blobStore
	versions versionStore
	search   searchService
	hub      liveHub
	issuer   *auth.Issuer
	actions  *actions.Executor
	remote   render.Fetcher
	log      zerolog.Logger
	now      func() time.Time

	mu         sync.Mutex
	workspaces map[string]*userWorkspace
	// retiring holds workspaces taken out of the map whose close has not
	// finished; a reopen waits for them.
	retiring map[string]*userWorkspace
	opening  singleflight.Group

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func New(cfg config.Config, dataStore *store.PostgresStore, versions *gitrepo.Service, opts ...Option) *Service {
	var vs versionStore
	if versions != nil {
		vs = versions
	}
	s := newService(cfg, dataStore, vs)
	for _, opt := range opts {
		opt(s)
	}
	s.actions = actions.NewExecutor(cfg.CanvasWidth, cfg.CanvasHeight, s.log)
	return s
}

func newService(cfg config.Config, ds dataStore, versions versionStore) *Service {
	return &Service{
		cfg:        cfg,
		store:      ds,
		versions:   versions,
		issuer:     auth.NewIssuer(cfg.JWTSecret, cfg.AccessTTL),
		actions:    actions.NewExecutor(cfg.CanvasWidth, cfg.CanvasHeight, zerolog.Nop()),
		remote:     render.HTTPFetcher{Client: &http.Client{Timeout: 15 * time.Second}},
		log:        zerolog.Nop(),
		now:        time.Now,
		workspaces: make(map[string]*userWorkspace),
		retiring:   make(map[string]*userWorkspace),
		stop:       make(chan struct{}),
	}
}

// Start runs the background flusher that writes dirty workspaces to
// Postgres and evicts idle ones.
func (s *Service) Start() {
	every := s.cfg.FlushEvery
	if every <= 0 {
		every = 10 * time.Second
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), every)
				s.flushDirty(ctx)
				s.evictIdle(ctx, s.now())
				cancel()
			}
		}
	}()
}

// Close stops the flusher, writes every open workspace to Postgres and
// disconnects live clients.
func (s *Service) Close(ctx context.Context) {
	s.stopOnce.Do(func() { close(s.stop) })
	s.wg.Wait()

	s.mu.Lock()
	open := make([]*userWorkspace, 0, len(s.workspaces))
	for userID, ws := range s.workspaces {
		open = append(open, ws)
		s.retiring[userID] = ws
	}
	s.workspaces = make(map[string]*userWorkspace)
	s.mu.Unlock()

	for _, ws := range open {
		s.closeWorkspace(ctx, ws)
	}
	if s.hub != nil {
		s.hub.Close()
	}
}

func (s *Service) Login(ctx context.Context, name string) (Session, error) {
	userName := strings.TrimSpace(name)
	if userName == "" {
		userName = "User"
	}

	user, err := s.store.EnsureUserByName(ctx, userName)
	if err != nil {
		return Session{}, err
	}

	token, claims, err := s.issuer.Issue(user.ID, user.DisplayName)
	if err != nil {
		return Session{}, err
	}
	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := s.issuer.Verify(token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Session{}, auth.ErrInvalidToken
		}
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session) error {
	if session.JTI == "" {
		return nil
	}
	return s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// Readiness reports the state of every backing service. Only the database is
// required; the others degrade features.
func (s *Service) Readiness(ctx context.Context) (bool, map[string]any) {
	checks := map[string]any{}
	ready := true

	check := func(name string, required bool, ping func(context.Context) error) {
		if err := ping(ctx); err != nil {
			checks[name] = map[string]any{"status": "error", "error": err.Error()}
			if required {
				ready = false
			}
			return
		}
		checks[name] = map[string]any{"status": "ok"}
	}

	check("database", true, s.store.Ping)
	if s.drafts != nil {
		check("redis", false, s.drafts.Ping)
	} else {
		checks["redis"] = map[string]any{"status": "disabled"}
	}
	if s.blobs != nil {
		check("objectStorage", false, s.blobs.Ping)
	} else {
		checks["objectStorage"] = map[string]any{"status": "disabled"}
	}
	return ready, checks
}

func (s *Service) ActionNames() []string {
	return s.actions.Names()
}
