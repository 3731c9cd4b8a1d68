package actions

import (
	"encoding/json"
	"fmt"

	"pdfpro/api/internal/workspace"
)

type noteGroupArgs struct {
	Action  string `json:"action"`
	Title   string `json:"title"`
	Type    string `json:"type"`
	GroupID string `json:"groupId"`
}

type noteItemArgs struct {
	Action  string `json:"action"`
	GroupID string `json:"groupId"`
	ItemID  string `json:"itemId"`
	Content string `json:"content"`
}

func manageNoteGroup(env *Env, raw json.RawMessage) (result, error) {
	var args noteGroupArgs
	if err := decodeArgs(raw, &args); err != nil {
		return result{}, err
	}
	if env.Notes == nil {
		return result{}, fmt.Errorf("%w: notebook", ErrTargetNotFound)
	}

	switch args.Action {
	case "create":
		typ, err := workspace.ParseNoteType(args.Type)
		if err != nil {
			return result{}, invalid("%v", err)
		}
		g := env.Notes.CreateGroup(args.Title, typ)
		return result{summary: "Created group " + g.Title}, nil
	case "delete":
		id := args.GroupID
		if id == "" {
			if g, ok := env.Notes.FindGroupByTitle(args.Title); ok {
				id = g.ID
			}
		}
		if !env.Notes.DeleteGroup(id) {
			return result{}, groupNotFound(args.GroupID, args.Title)
		}
		return result{summary: "Deleted group " + args.Title}, nil
	case "rename":
		if args.Title == "" {
			return result{}, invalid("title is required")
		}
		if !env.Notes.RenameGroup(args.GroupID, args.Title) {
			return result{}, groupNotFound(args.GroupID, "")
		}
		return result{summary: "Renamed group to " + args.Title}, nil
	}
	return result{}, invalid("unknown group action %q", args.Action)
}

func manageNoteItem(env *Env, raw json.RawMessage) (result, error) {
	var args noteItemArgs
	if err := decodeArgs(raw, &args); err != nil {
		return result{}, err
	}
	if env.Notes == nil {
		return result{}, fmt.Errorf("%w: notebook", ErrTargetNotFound)
	}

	var ok bool
	switch args.Action {
	case "add":
		if args.Content == "" {
			return result{}, invalid("content is required")
		}
		_, ok = env.Notes.AddItem(args.GroupID, args.Content)
		if !ok {
			return result{}, groupNotFound(args.GroupID, "")
		}
		return result{summary: "Added note item"}, nil
	case "delete":
		ok = env.Notes.DeleteItem(args.GroupID, args.ItemID)
	case "toggle":
		ok = env.Notes.ToggleItem(args.GroupID, args.ItemID)
	case "update":
		ok = env.Notes.UpdateItem(args.GroupID, args.ItemID, args.Content)
	default:
		return result{}, invalid("unknown item action %q", args.Action)
	}
	if !ok {
		return result{}, fmt.Errorf("%w: item %q in group %q", ErrTargetNotFound, args.ItemID, args.GroupID)
	}
	return result{summary: fmt.Sprintf("Note item %s: %s", args.ItemID, args.Action)}, nil
}

func groupNotFound(id, title string) error {
	if id == "" {
		return fmt.Errorf("%w: group titled %q", ErrTargetNotFound, title)
	}
	return fmt.Errorf("%w: group %q", ErrTargetNotFound, id)
}
