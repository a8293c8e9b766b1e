package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"capset/internal/command"
	"capset/internal/format"
	"capset/internal/model"
)

var outputFormatter format.Formatter = format.JSONFormatter{}

func writeJSON(w io.Writer, payload any) error {
	return outputFormatter.Write(w, payload)
}

func writePlain(w io.Writer, format string, args ...any) error {
	_, err := fmt.Fprintf(w, format, args...)
	return err
}

type resultOutput struct {
	Op          string `json:"op"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
	Undoable    bool   `json:"undoable"`
	NoOp        bool   `json:"noop,omitempty"`
	NextUndo    string `json:"next_undo,omitempty"`
	NextRedo    string `json:"next_redo,omitempty"`
}

func (s *session) writeResult(res model.Result) error {
	out := resultOutput{
		Op:          res.Op,
		Type:        res.Type,
		Description: res.Description,
		Undoable:    res.Undoable == command.IsUndoable,
		NoOp:        res.NoOp,
	}
	if res.State != nil {
		out.NextUndo = res.State.NextUndo
		out.NextRedo = res.State.NextRedo
	}
	if s.jsonOutput {
		return writeJSON(s.out, out)
	}
	return writePlain(s.out, "%s\n", formatResultLine(out))
}

func formatResultLine(out resultOutput) string {
	switch {
	case out.NoOp:
		return "nothing to " + out.Op
	case out.Op == "undo":
		return "undone: " + out.Description
	case out.Op == "redo":
		return "redone: " + out.Description
	case !out.Undoable:
		return "no change: " + out.Description
	default:
		return "done: " + out.Description
	}
}

func writeCaptions(w io.Writer, captions []model.CaptionView) error {
	for _, caption := range captions {
		line := fmt.Sprintf("%s  %s", caption.ID, caption.Text)
		if len(caption.CategoryIDs) > 0 {
			line += fmt.Sprintf("  [%s]", strings.Join(caption.CategoryIDs, ", "))
		}
		if err := writePlain(w, "%s\n", line); err != nil {
			return err
		}
	}
	return nil
}

func writeImages(w io.Writer, images []model.ImageView, selection []string) error {
	selected := make(map[string]struct{}, len(selection))
	for _, id := range selection {
		selected[id] = struct{}{}
	}
	for _, image := range images {
		marker := " "
		if _, ok := selected[image.ID]; ok {
			marker = "*"
		}
		line := fmt.Sprintf("%s %s  %s  captions=%d", marker, image.ID, image.Path, len(image.CaptionIDs))
		if len(image.Tags) > 0 {
			line += " tags=" + strings.Join(image.Tags, ",")
		}
		if err := writePlain(w, "%s\n", line); err != nil {
			return err
		}
	}
	return nil
}

func writeStatus(w io.Writer, state *model.State) error {
	lines := []string{
		fmt.Sprintf("images: %d", len(state.Images)),
		fmt.Sprintf("captions: %d", len(state.Captions)),
		fmt.Sprintf("categories: %d", len(state.Categories)),
		fmt.Sprintf("tags: %d", len(state.Tags)),
		fmt.Sprintf("selected: %d", len(state.Selection)),
		fmt.Sprintf("problems: %d", len(state.Problems)),
		fmt.Sprintf("undo: %d", state.UndoDepth),
		fmt.Sprintf("redo: %d", state.RedoDepth),
	}
	if state.NextUndo != "" {
		lines = append(lines, fmt.Sprintf("next undo: %s", state.NextUndo))
	}
	if state.NextRedo != "" {
		lines = append(lines, fmt.Sprintf("next redo: %s", state.NextRedo))
	}
	return writePlain(w, "%s\n", strings.Join(lines, "\n"))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
