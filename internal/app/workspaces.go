package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"pdfpro/api/internal/blob"
	"pdfpro/api/internal/editor"
	"pdfpro/api/internal/render"
	"pdfpro/api/internal/session"
	"pdfpro/api/internal/store"
	"pdfpro/api/internal/util"
	"pdfpro/api/internal/workspace"
)

var errImageNotOwned = errors.New("image belongs to another user")

var errWorkspaceClosing = errors.New("workspace closing")

// userWorkspace is one user's open document. The editor, notes, tasks and
// the changed flag belong to the loop goroutine; pending, lastUsed, seq and
// closing are guarded by mu. persistMu orders the draft writes.
type userWorkspace struct {
	userID     string
	loop       *editor.Loop
	compositor *render.Compositor
	fetch      render.Fetcher

	notes     *workspace.Notebook
	tasks     *workspace.TaskLog
	changed   bool
	updatedAt time.Time

	mu       sync.Mutex
	lastUsed time.Time
	pending  []byte
	seq      uint64
	closing  bool

	persistMu sync.Mutex
	persisted uint64
	retired   bool

	// closed is closed once closeWorkspace has finished.
	closed chan struct{}
}

// staged is one encoded change on its way from the loop to the caller.
type staged struct {
	seq   uint64
	raw   []byte
	state workspace.State
}

// opGate ties one loop op to the caller waiting for it. Once the caller
// stops waiting, an op that has not started yet is skipped, and one that is
// running is waited for. The closure's captured variables are therefore
// never written after run returns.
type opGate struct {
	mu        sync.Mutex
	abandoned bool
	done      bool
	err       error
	result    *staged
}

// close runs in the caller once Do has returned.
func (g *opGate) close() (res *staged, done bool, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.abandoned = true
	return g.result, g.done, g.err
}

// stage records raw for the next flush and returns its sequence number.
func (ws *userWorkspace) stage(raw []byte) uint64 {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	ws.pending = raw
	ws.seq++
	return ws.seq
}

// beginClose refuses further ops. Ops already queued see the flag when they
// start.
func (ws *userWorkspace) beginClose() {
	ws.mu.Lock()
	ws.closing = true
	ws.mu.Unlock()
}

func (ws *userWorkspace) isClosing() bool {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.closing
}

func (ws *userWorkspace) touch(now time.Time) {
	ws.mu.Lock()
	ws.lastUsed = now
	ws.mu.Unlock()
}

func (ws *userWorkspace) idleSince() time.Time {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	return ws.lastUsed
}

func (ws *userWorkspace) takePending() []byte {
	ws.mu.Lock()
	defer ws.mu.Unlock()
	raw := ws.pending
	ws.pending = nil
	return raw
}

// restorePending puts back a blob whose flush failed unless a newer one was
// staged meanwhile.
func (ws *userWorkspace) restorePending(raw []byte) {
	ws.mu.Lock()
	if ws.pending == nil {
		ws.pending = raw
	}
	ws.mu.Unlock()
}

// state captures the full workspace. It must run on the loop.
func (ws *userWorkspace) state(ed *editor.Editor) workspace.State {
	st := workspace.State{
		NoteGroups: ws.notes.Snapshot(),
		Tasks:      ws.tasks.Entries(),
		UpdatedAt:  ws.updatedAt,
	}
	return st.WithSnapshot(ed.Snapshot())
}

// workspace returns the open workspace of a user, loading it on first use.
// Concurrent first requests share one load.
func (s *Service) workspace(ctx context.Context, userID string) (*userWorkspace, error) {
	s.mu.Lock()
	ws, ok := s.workspaces[userID]
	s.mu.Unlock()
	if ok {
		return ws, nil
	}

	v, err, _ := s.opening.Do(userID, func() (any, error) {
		s.mu.Lock()
		if ws, ok := s.workspaces[userID]; ok {
			s.mu.Unlock()
			return ws, nil
		}
		old := s.retiring[userID]
		s.mu.Unlock()

		if old != nil {
			select {
			case <-old.closed:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		state, source, err := s.loadState(ctx, userID)
		if err != nil {
			return nil, err
		}
		ws := s.openWorkspace(userID, state)

		s.mu.Lock()
		s.workspaces[userID] = ws
		s.mu.Unlock()

		s.log.Info().
			Str("user_id", userID).
			Str("source", source).
			Int("layers", len(state.Layers)).
			Msg("workspace opened")
		return ws, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*userWorkspace), nil
}

// loadState tries the draft cache, then Postgres, then starts fresh.
func (s *Service) loadState(ctx context.Context, userID string) (workspace.State, string, error) {
	if s.drafts != nil {
		draft, err := s.drafts.LoadDraft(ctx, userID)
		switch {
		case err == nil:
			state, decodeErr := workspace.Decode(draft.State)
			if decodeErr == nil {
				return state, "draft", nil
			}
			s.log.Warn().Err(decodeErr).Str("user_id", userID).Msg("discarding unreadable draft")
		case errors.Is(err, session.ErrDraftNotFound):
		default:
			s.log.Warn().Err(err).Str("user_id", userID).Msg("draft cache unavailable")
		}
	}

	rec, err := s.store.LoadWorkspace(ctx, userID)
	switch {
	case err == nil:
		state, decodeErr := workspace.Decode(rec.State)
		if decodeErr != nil {
			return workspace.State{}, "", fmt.Errorf("load workspace %s: %w", userID, decodeErr)
		}
		return state, "database", nil
	case errors.Is(err, store.ErrNotFound):
		return workspace.Fresh(util.NewID("layer"), s.now()), "fresh", nil
	default:
		return workspace.State{}, "", err
	}
}

func (s *Service) openWorkspace(userID string, state workspace.State) *userWorkspace {
	log := s.log.With().Str("user_id", userID).Logger()
	fetch := s.fetcherFor(userID)
	cache := render.NewImageCache(fetch, render.WithCacheLogger(log))
	compositor := render.NewCompositor(s.cfg.CanvasWidth, s.cfg.CanvasHeight, cache, log)

	ed := editor.New(editor.Config{
		Width:        s.cfg.CanvasWidth,
		Height:       s.cfg.CanvasHeight,
		HistoryLimit: s.cfg.HistoryLimit,
		EraserColor:  s.cfg.EraserColor,
	}, compositor, editor.WithLogger(log), editor.WithClock(s.now))
	ed.Restore(state.Snapshot())

	ws := &userWorkspace{
		userID:     userID,
		compositor: compositor,
		fetch:      fetch,
		notes:      workspace.NewNotebook(state.NoteGroups),
		tasks:      workspace.NewTaskLog(state.Tasks, workspace.DefaultTaskLogLimit),
		updatedAt:  state.UpdatedAt,
		lastUsed:   s.now(),
		closed:     make(chan struct{}),
	}
	ed.OnChange(func(c editor.Change) {
		if c.Reason != editor.ReasonImage {
			ws.changed = true
		}
		if s.hub != nil {
			s.hub.Broadcast(userID, "change", c)
		}
	})
	ws.loop = editor.NewLoop(ed)
	return ws
}

// fetcherFor resolves image references for one user. Blob locators outside
// the user's prefix are served only when the image record says they own it.
func (s *Service) fetcherFor(userID string) render.Fetcher {
	fetch := render.SchemeFetcher{
		"http":  s.remote,
		"https": s.remote,
	}
	if s.blobs != nil {
		fetch[blob.Scheme] = render.FetcherFunc(func(ctx context.Context, ref string) ([]byte, error) {
			if !blob.OwnedBy(ref, userID) {
				owner, err := s.store.ImageOwner(ctx, ref)
				if err != nil || owner != userID {
					return nil, errImageNotOwned
				}
			}
			return s.blobs.Get(ctx, ref)
		})
	}
	return fetch
}

// run executes fn on the user's editor loop. When fn changed the workspace
// the new state is staged for Postgres, written to the draft cache and
// handed to the search index. When ctx ends first, fn either completed and
// its result is persisted and returned, or it never runs.
func (s *Service) run(ctx context.Context, userID string, fn func(*userWorkspace, *editor.Editor) error) error {
	ws, err := s.workspace(ctx, userID)
	if err != nil {
		return err
	}
	return s.runOn(ctx, ws, fn)
}

// runOn is run against a workspace the caller already holds. It may have
// been evicted since, in which case the op is refused.
func (s *Service) runOn(ctx context.Context, ws *userWorkspace, fn func(*userWorkspace, *editor.Editor) error) error {
	gate := &opGate{}
	err := ws.loop.Do(ctx, func(ed *editor.Editor) error {
		gate.mu.Lock()
		defer gate.mu.Unlock()
		if gate.abandoned {
			return context.Canceled
		}
		gate.err = s.apply(ws, ed, fn, gate)
		gate.done = true
		return gate.err
	})
	res, done, opErr := gate.close()
	ws.touch(s.now())
	if res != nil {
		s.persist(context.WithoutCancel(ctx), ws, res)
	}
	if done {
		err = opErr
	}
	if errors.Is(err, editor.ErrLoopClosed) || errors.Is(err, errWorkspaceClosing) {
		return domainError(http.StatusServiceUnavailable, "WORKSPACE_CLOSED", "workspace was closed, retry the request", nil)
	}
	return err
}

// apply runs fn on the loop and stages the new state when fn changed it.
func (s *Service) apply(ws *userWorkspace, ed *editor.Editor, fn func(*userWorkspace, *editor.Editor) error, gate *opGate) error {
	if ws.isClosing() {
		return errWorkspaceClosing
	}
	fnErr := fn(ws, ed)
	if !ws.changed {
		return fnErr
	}
	ws.changed = false
	ws.updatedAt = s.now().UTC()
	state := ws.state(ed)
	raw, err := workspace.Encode(state)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", ws.userID).Msg("encode workspace")
		return fnErr
	}
	gate.result = &staged{seq: ws.stage(raw), raw: raw, state: state}
	return fnErr
}

// persist writes a staged change to the draft cache, the search index and
// the live feed. A change overtaken by a newer one is skipped, and a
// workspace retired by closeWorkspace writes no more drafts.
func (s *Service) persist(ctx context.Context, ws *userWorkspace, res *staged) {
	ws.persistMu.Lock()
	defer ws.persistMu.Unlock()
	if res.seq <= ws.persisted {
		return
	}
	ws.persisted = res.seq

	if s.drafts != nil && !ws.retired {
		if err := s.drafts.SaveDraft(ctx, ws.userID, res.raw, s.cfg.DraftTTL); err != nil {
			s.log.Warn().Err(err).Str("user_id", ws.userID).Msg("save draft")
		}
	}
	if s.search != nil {
		s.search.IndexWorkspace(ws.userID, res.state)
	}
	if s.hub != nil {
		s.hub.Broadcast(ws.userID, "saved", map[string]any{"updatedAt": res.state.UpdatedAt})
	}
}

// flushDirty writes every staged workspace to Postgres.
func (s *Service) flushDirty(ctx context.Context) int {
	s.mu.Lock()
	open := make([]*userWorkspace, 0, len(s.workspaces))
	for _, ws := range s.workspaces {
		open = append(open, ws)
	}
	s.mu.Unlock()

	flushed := 0
	for _, ws := range open {
		if s.flush(ctx, ws) {
			flushed++
		}
	}
	return flushed
}

func (s *Service) flush(ctx context.Context, ws *userWorkspace) bool {
	raw := ws.takePending()
	if raw == nil {
		return false
	}
	rec, err := s.store.SaveWorkspace(ctx, ws.userID, raw)
	if err != nil {
		ws.restorePending(raw)
		s.log.Error().Err(err).Str("user_id", ws.userID).Msg("flush workspace")
		return false
	}
	s.log.Debug().Str("user_id", ws.userID).Int64("version", rec.Version).Msg("workspace flushed")
	return true
}

// evictIdle closes workspaces unused for longer than the idle limit.
func (s *Service) evictIdle(ctx context.Context, now time.Time) int {
	if s.cfg.IdleEvict <= 0 {
		return 0
	}

	var idle []*userWorkspace
	s.mu.Lock()
	for userID, ws := range s.workspaces {
		if now.Sub(ws.idleSince()) > s.cfg.IdleEvict {
			idle = append(idle, ws)
			delete(s.workspaces, userID)
			s.retiring[userID] = ws
		}
	}
	s.mu.Unlock()

	for _, ws := range idle {
		s.closeWorkspace(ctx, ws)
		s.log.Info().Str("user_id", ws.userID).Msg("workspace evicted")
	}
	return len(idle)
}

// closeWorkspace refuses new ops, drains the ones already running, stops
// the loop and flushes what it left behind. The draft is dropped once
// Postgres holds the state.
func (s *Service) closeWorkspace(ctx context.Context, ws *userWorkspace) {
	defer func() {
		s.mu.Lock()
		if s.retiring[ws.userID] == ws {
			delete(s.retiring, ws.userID)
		}
		s.mu.Unlock()
		close(ws.closed)
	}()
	ws.beginClose()
	_ = ws.loop.Do(context.WithoutCancel(ctx), func(*editor.Editor) error { return nil })
	ws.loop.Close()

	raw := ws.takePending()
	if raw != nil {
		if _, err := s.store.SaveWorkspace(ctx, ws.userID, raw); err != nil {
			s.log.Error().Err(err).Str("user_id", ws.userID).Msg("flush workspace on close")
			return
		}
	}

	ws.persistMu.Lock()
	defer ws.persistMu.Unlock()
	ws.retired = true
	if s.drafts != nil {
		if err := s.drafts.DeleteDraft(ctx, ws.userID); err != nil {
			s.log.Warn().Err(err).Str("user_id", ws.userID).Msg("delete draft")
		}
	}
}

// OpenWorkspaces reports how many editor loops are live.
func (s *Service) OpenWorkspaces() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.workspaces)
}
