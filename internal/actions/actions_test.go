package actions

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pdfpro/api/internal/canvas"
	"pdfpro/api/internal/editor"
	"pdfpro/api/internal/render"
	"pdfpro/api/internal/workspace"
)

func newEnv(t *testing.T) *Env {
	t.Helper()
	ed := editor.New(editor.Config{Width: 1200, Height: 800}, render.NewCompositor(1200, 800, nil, zerolog.Nop()))
	ed.AddLayer("Base Layer")
	return &Env{
		Editor: ed,
		Notes:  workspace.NewNotebook(nil),
		Tasks:  workspace.NewTaskLog(nil, 0),
	}
}

func newExecutor() *Executor {
	return NewExecutor(1200, 800, zerolog.Nop(), WithClock(func() time.Time {
		return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	}))
}

func exec(t *testing.T, x *Executor, env *Env, name string, args any) (Outcome, error) {
	t.Helper()
	raw, err := json.Marshal(args)
	require.NoError(t, err)
	return x.Execute(context.Background(), env, name, raw)
}

func TestGenerateInfographicStyles(t *testing.T) {
	points := []map[string]string{
		{"label": "Plan", "color": "#ff0000", "description": "scope the work"},
		{"label": "Build"},
		{"label": "Ship", "description": "release"},
	}
	for _, style := range []string{"flow", "steps", "mindmap", "comparison"} {
		t.Run(style, func(t *testing.T) {
			env := newEnv(t)
			x := newExecutor()
			before := env.Editor.HistoryIndex()

			out, err := exec(t, x, env, GenerateInfographic, map[string]any{
				"topic": "Launch", "style": style, "dataPoints": points,
			})
			require.NoError(t, err)
			assert.Equal(t, before+1, env.Editor.HistoryIndex(), "one history step")

			layer, ok := env.Editor.Layer(out.LayerID)
			require.True(t, ok)
			assert.Equal(t, "Visual: Launch", layer.Name)
			assert.Equal(t, out.LayerID, env.Editor.ActiveLayerID())
			assert.GreaterOrEqual(t, len(layer.Elements), len(points))
			for _, el := range layer.Elements {
				assert.True(t, el.Paintable())
				minX, minY, maxX, maxY, _ := el.Bounds()
				assert.GreaterOrEqual(t, minX, 0.0)
				assert.GreaterOrEqual(t, minY, 0.0)
				assert.LessOrEqual(t, maxX, 1200.0)
				assert.LessOrEqual(t, maxY, 800.0)
			}

			group, ok := env.Notes.FindGroupByTitle("Visual: Launch")
			require.True(t, ok)
			require.Len(t, group.Items, 3)
			assert.Equal(t, "Plan: scope the work", group.Items[0].Content)
			assert.Equal(t, "Build", group.Items[1].Content)

			tasks := env.Tasks.Entries()
			require.Len(t, tasks, 1)
			assert.Equal(t, "Visualize", tasks[0].Command)
			assert.Equal(t, workspace.TaskCompleted, tasks[0].Status)
		})
	}
}

func TestGenerateInfographicValidation(t *testing.T) {
	env := newEnv(t)
	x := newExecutor()
	before := env.Editor.HistoryIndex()

	_, err := exec(t, x, env, GenerateInfographic, map[string]any{"topic": "", "dataPoints": []any{map[string]string{"label": "a"}}})
	require.ErrorIs(t, err, ErrInvalidArguments)
	_, err = exec(t, x, env, GenerateInfographic, map[string]any{"topic": "x"})
	require.ErrorIs(t, err, ErrInvalidArguments)
	_, err = exec(t, x, env, GenerateInfographic, map[string]any{"topic": "x", "style": "radar", "dataPoints": []any{map[string]string{"label": "a"}}})
	require.ErrorIs(t, err, ErrInvalidArguments)
	_, err = x.Execute(context.Background(), env, GenerateInfographic, json.RawMessage(`{"topic":`))
	require.ErrorIs(t, err, ErrInvalidArguments)

	assert.Equal(t, before, env.Editor.HistoryIndex())
	for _, task := range env.Tasks.Entries() {
		assert.Equal(t, workspace.TaskFailed, task.Status)
	}
}

func TestUnknownAction(t *testing.T) {
	env := newEnv(t)
	_, err := newExecutor().Execute(context.Background(), env, "convertFile", nil)
	require.ErrorIs(t, err, ErrUnknownAction)
	require.Equal(t, 1, env.Tasks.Len())
	assert.Equal(t, workspace.TaskFailed, env.Tasks.Entries()[0].Status)
}

func TestInsertElement(t *testing.T) {
	env := newEnv(t)
	x := newExecutor()

	_, err := exec(t, x, env, InsertElement, map[string]any{"type": "circle", "style": map[string]string{"color": "#00ff00"}})
	require.NoError(t, err)
	layer, _ := env.Editor.Layer(env.Editor.ActiveLayerID())
	require.Len(t, layer.Elements, 1)
	assert.Equal(t, canvas.Circle{X: 600, Y: 400, Radius: 60}, layer.Elements[0].Shape)
	assert.Equal(t, "#00ff00", layer.Elements[0].Color)

	_, err = exec(t, x, env, InsertElement, map[string]any{"type": "image", "content": "a cat"})
	require.ErrorIs(t, err, ErrInvalidArguments)

	_, err = exec(t, x, env, InsertElement, map[string]any{"type": "image", "content": "blob://images/u1/cat.png"})
	require.NoError(t, err)

	_, err = exec(t, x, env, InsertElement, map[string]any{"type": "text", "content": "hello board"})
	require.NoError(t, err)
	group, ok := env.Notes.FindGroupByTitle(EditorNotesTitle)
	require.True(t, ok)
	assert.Equal(t, "hello board", group.Items[0].Content)

	_, err = exec(t, x, env, InsertElement, map[string]any{"type": "hexagon"})
	require.ErrorIs(t, err, ErrInvalidArguments)
}

func TestInsertElementIntoLockedLayerFails(t *testing.T) {
	env := newEnv(t)
	require.True(t, env.Editor.SetLayerLocked(env.Editor.ActiveLayerID(), true))
	before := env.Editor.HistoryIndex()

	_, err := exec(t, newExecutor(), env, InsertElement, map[string]any{"type": "rect"})
	require.ErrorIs(t, err, canvas.ErrLayerLocked)
	assert.Equal(t, before, env.Editor.HistoryIndex())
}

func TestManageNotes(t *testing.T) {
	env := newEnv(t)
	x := newExecutor()

	_, err := exec(t, x, env, ManageNoteGroup, map[string]string{"action": "create", "title": "Errands", "type": "todo"})
	require.NoError(t, err)
	group, ok := env.Notes.FindGroupByTitle("Errands")
	require.True(t, ok)
	assert.Equal(t, workspace.NoteTodo, group.Type)

	_, err = exec(t, x, env, ManageNoteItem, map[string]string{"action": "add", "groupId": group.ID, "content": "post office"})
	require.NoError(t, err)
	group, _ = env.Notes.Group(group.ID)
	itemID := group.Items[0].ID

	_, err = exec(t, x, env, ManageNoteItem, map[string]string{"action": "toggle", "groupId": group.ID, "itemId": itemID})
	require.NoError(t, err)
	_, err = exec(t, x, env, ManageNoteItem, map[string]string{"action": "update", "groupId": group.ID, "itemId": itemID, "content": "bank"})
	require.NoError(t, err)
	group, _ = env.Notes.Group(group.ID)
	assert.True(t, group.Items[0].Completed)
	assert.Equal(t, "bank", group.Items[0].Content)

	_, err = exec(t, x, env, ManageNoteItem, map[string]string{"action": "delete", "groupId": group.ID, "itemId": "nope"})
	require.ErrorIs(t, err, ErrTargetNotFound)

	_, err = exec(t, x, env, ManageNoteGroup, map[string]string{"action": "rename", "groupId": group.ID, "title": "Chores"})
	require.NoError(t, err)
	_, err = exec(t, x, env, ManageNoteGroup, map[string]string{"action": "delete", "title": "Chores"})
	require.NoError(t, err)
	_, ok = env.Notes.Group(group.ID)
	assert.False(t, ok)

	_, err = exec(t, x, env, ManageNoteGroup, map[string]string{"action": "archive"})
	require.ErrorIs(t, err, ErrInvalidArguments)
	_, err = exec(t, x, env, ManageNoteGroup, map[string]string{"action": "create", "type": "kanban"})
	require.ErrorIs(t, err, ErrInvalidArguments)

	assert.Equal(t, 9, env.Tasks.Len())
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{InsertElement, GenerateInfographic, ManageNoteGroup, ManageNoteItem}, newExecutor().Names())
}
