package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"pdfpro/api/internal/editor"
	"pdfpro/api/internal/gitrepo"
	"pdfpro/api/internal/search"
	"pdfpro/api/internal/workspace"
)

const defaultVersionLimit = 50

func (s *Service) Versions(ctx context.Context, userID string, limit int) ([]gitrepo.CommitInfo, error) {
	if s.versions == nil {
		return []gitrepo.CommitInfo{}, nil
	}
	if limit <= 0 {
		limit = defaultVersionLimit
	}
	return s.versions.History(userID, limit)
}

type SaveVersionInput struct {
	Message string `json:"message"`
	Tag     string `json:"tag"`
}

// SaveVersion commits the current workspace to the user's version
// repository, optionally naming it with a tag.
func (s *Service) SaveVersion(ctx context.Context, session Session, in SaveVersionInput) (gitrepo.CommitInfo, error) {
	if s.versions == nil {
		return gitrepo.CommitInfo{}, domainError(http.StatusServiceUnavailable, "VERSIONS_UNAVAILABLE", "version storage is not configured", nil)
	}
	message := strings.TrimSpace(in.Message)
	if message == "" {
		message = "Checkpoint"
	}
	tag := strings.TrimSpace(in.Tag)
	if strings.ContainsAny(tag, " ~^:?*[\\") {
		return gitrepo.CommitInfo{}, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "tag contains invalid characters", map[string]any{"tag": tag})
	}

	_, state, err := s.snapshotState(ctx, session.UserID)
	if err != nil {
		return gitrepo.CommitInfo{}, err
	}
	info, err := s.versions.Checkpoint(session.UserID, state, session.UserName, message)
	if err != nil {
		return gitrepo.CommitInfo{}, err
	}
	if tag != "" {
		if err := s.versions.Tag(session.UserID, info.Hash, tag); err != nil {
			return gitrepo.CommitInfo{}, err
		}
		info.Tags = append(info.Tags, tag)
	}
	s.log.Info().Str("user_id", session.UserID).Str("hash", info.Hash).Str("tag", tag).Msg("version saved")
	return info, nil
}

// RestoreVersion loads a saved version into the editor. Canvas history is
// reset; the task log is kept and records the restore.
func (s *Service) RestoreVersion(ctx context.Context, userID, ref string) (WorkspaceView, error) {
	if s.versions == nil {
		return WorkspaceView{}, domainError(http.StatusServiceUnavailable, "VERSIONS_UNAVAILABLE", "version storage is not configured", nil)
	}
	state, info, err := s.versions.Load(userID, ref)
	if err != nil {
		if errors.Is(err, gitrepo.ErrNoRepo) {
			return WorkspaceView{}, domainError(http.StatusNotFound, "NOT_FOUND", "no versions saved", nil)
		}
		return WorkspaceView{}, domainError(http.StatusNotFound, "NOT_FOUND", "version not found", map[string]any{"version": ref})
	}

	return s.edit(ctx, userID, func(ws *userWorkspace, ed *editor.Editor) error {
		ed.Restore(state.Snapshot())
		ws.notes = workspace.NewNotebook(state.NoteGroups)
		ws.tasks.Add("restoreVersion", workspace.TaskCompleted, "Restored "+shortHash(info.Hash)+": "+info.Message, s.now())
		ws.changed = true
		return nil
	})
}

func shortHash(hash string) string {
	if len(hash) > 7 {
		return hash[:7]
	}
	return hash
}

func (s *Service) Search(ctx context.Context, userID, text string, kind search.ResultType, limit int) search.Response {
	text = strings.TrimSpace(text)
	if s.search == nil || text == "" {
		return search.Response{Results: []search.Result{}, Query: text}
	}
	return s.search.Search(ctx, search.Query{UserID: userID, Text: text, FilterType: kind, Limit: limit})
}

// ServeLive upgrades the request to the user's change feed.
func (s *Service) ServeLive(w http.ResponseWriter, r *http.Request, userID string) error {
	if s.hub == nil {
		return domainError(http.StatusServiceUnavailable, "LIVE_UNAVAILABLE", "live updates are disabled", nil)
	}
	return s.hub.ServeWS(w, r, userID)
}
