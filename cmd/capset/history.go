package main

import (
	"github.com/spf13/cobra"

	"capset/internal/model"
	"capset/internal/models"
)

func newUndoCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "undo",
		Short: "Undo the most recent change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app) error {
				res, err := a.model.Undo(cmd.Context()).Wait(cmd.Context())
				if err != nil {
					return err
				}
				return s.writeResult(res)
			})
		},
	}
}

func newRedoCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "redo",
		Short: "Redo the most recently undone change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app) error {
				res, err := a.model.Redo(cmd.Context()).Wait(cmd.Context())
				if err != nil {
					return err
				}
				return s.writeResult(res)
			})
		},
	}
}

type historyOutput struct {
	Undo []models.LedgerEntry `json:"undo"`
	Redo []models.LedgerEntry `json:"redo"`
}

func newHistoryCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List undo and redo history, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app) error {
				h, err := a.model.History(cmd.Context()).Wait(cmd.Context())
				if err != nil {
					return err
				}
				if s.jsonOutput {
					return writeJSON(s.out, historyOutput{Undo: h.Undo, Redo: h.Redo})
				}
				return writeHistory(s, h)
			})
		},
	}
}

func writeHistory(s *session, h model.History) error {
	if len(h.Undo) == 0 && len(h.Redo) == 0 {
		return writePlain(s.out, "no history\n")
	}
	for _, entry := range h.Redo {
		if err := writePlain(s.out, "redo  %s  %s\n", formatTime(entry.CreatedAt), entry.Description); err != nil {
			return err
		}
	}
	for _, entry := range h.Undo {
		if err := writePlain(s.out, "undo  %s  %s\n", formatTime(entry.CreatedAt), entry.Description); err != nil {
			return err
		}
	}
	return nil
}

func newCompactCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "compact",
		Short: "Discard all undo/redo history and delete unreferenced image blobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app) error {
				res, err := a.model.Compact(cmd.Context()).Wait(cmd.Context())
				if err != nil {
					return err
				}
				if s.jsonOutput {
					return writeJSON(s.out, res)
				}
				if err := writePlain(s.out, "removed %d undo and %d redo entries, %d blobs (%d bytes)\n",
					res.UndoEntries, res.RedoEntries, res.Blobs, res.BlobBytes); err != nil {
					return err
				}
				if res.StrayBlobs > 0 {
					return writePlain(s.out, "removed %d stray blob files\n", res.StrayBlobs)
				}
				return nil
			})
		},
	}
}
