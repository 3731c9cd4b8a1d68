// Package actions executes named commands against a workspace: generated
// infographic layers, inserted shapes and note management.
package actions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"pdfpro/api/internal/editor"
	"pdfpro/api/internal/workspace"
)

var (
	ErrUnknownAction    = errors.New("unknown action")
	ErrInvalidArguments = errors.New("invalid action arguments")
	ErrTargetNotFound   = errors.New("action target not found")
)

const (
	GenerateInfographic = "generateInfographic"
	InsertElement       = "editor_insertElement"
	ManageNoteGroup     = "manageNoteGroup"
	ManageNoteItem      = "manageNoteItem"
)

// Env is the state an action may touch. All of it belongs to the editor
// loop; Execute must run there.
type Env struct {
	Editor *editor.Editor
	Notes  *workspace.Notebook
	Tasks  *workspace.TaskLog
}

type Outcome struct {
	Action  string               `json:"action"`
	Summary string               `json:"summary"`
	LayerID string               `json:"layerId,omitempty"`
	Task    workspace.TaskMemory `json:"task"`
}

type result struct {
	summary string
	layerID string
}

type handler struct {
	label string
	run   func(env *Env, args json.RawMessage) (result, error)
}

type Executor struct {
	handlers map[string]handler
	width    float64
	height   float64
	now      func() time.Time
	log      zerolog.Logger
}

type Option func(*Executor)

func WithClock(now func() time.Time) Option {
	return func(x *Executor) { x.now = now }
}

// NewExecutor lays generated content out on a width x height canvas.
func NewExecutor(width, height int, log zerolog.Logger, opts ...Option) *Executor {
	x := &Executor{
		width:  float64(width),
		height: float64(height),
		now:    time.Now,
		log:    log,
	}
	x.handlers = map[string]handler{
		GenerateInfographic: {label: "Visualize", run: x.generateInfographic},
		InsertElement:       {label: "Editor", run: x.insertElement},
		ManageNoteGroup:     {label: "Notes", run: manageNoteGroup},
		ManageNoteItem:      {label: "Notes", run: manageNoteItem},
	}
	for _, opt := range opts {
		opt(x)
	}
	return x
}

func (x *Executor) Names() []string {
	names := make([]string, 0, len(x.handlers))
	for name := range x.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Execute runs one action and records its outcome in the task log, whether
// it succeeded or not.
func (x *Executor) Execute(ctx context.Context, env *Env, name string, args json.RawMessage) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{}, err
	}
	h, ok := x.handlers[name]
	if !ok {
		err := fmt.Errorf("%w: %s", ErrUnknownAction, name)
		x.record(env, name, workspace.TaskFailed, err.Error())
		return Outcome{Action: name}, err
	}
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}

	res, err := h.run(env, args)
	if err != nil {
		x.log.Warn().Err(err).Str("action", name).Msg("action failed")
		task := x.record(env, h.label, workspace.TaskFailed, err.Error())
		return Outcome{Action: name, Task: task}, err
	}
	task := x.record(env, h.label, workspace.TaskCompleted, res.summary)
	x.log.Info().Str("action", name).Str("summary", res.summary).Msg("action executed")
	return Outcome{Action: name, Summary: res.summary, LayerID: res.layerID, Task: task}, nil
}

func (x *Executor) record(env *Env, command string, status workspace.TaskStatus, summary string) workspace.TaskMemory {
	if env.Tasks == nil {
		return workspace.TaskMemory{}
	}
	return env.Tasks.Add(command, status, summary, x.now())
}

func decodeArgs(raw json.RawMessage, dst any) error {
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidArguments, err)
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArguments, fmt.Sprintf(format, args...))
}
