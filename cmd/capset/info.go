package main

import "github.com/spf13/cobra"

type infoOutput struct {
	DBPath           string `json:"db_path"`
	BlobDir          string `json:"blob_dir"`
	SchemaVersion    int    `json:"schema_version"`
	AvailableVersion int    `json:"available_version"`
	Images           int    `json:"images"`
	Captions         int    `json:"captions"`
	Categories       int    `json:"categories"`
	Tags             int    `json:"tags"`
	UndoDepth        int    `json:"undo_depth"`
	RedoDepth        int    `json:"redo_depth"`
}

func newInfoCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show database and dataset info",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app) error {
				plan, err := a.store.MigrationPlan()
				if err != nil {
					return err
				}
				state := a.state()
				resp := infoOutput{
					DBPath:           s.cfg.DBPath,
					BlobDir:          s.cfg.BlobDir,
					SchemaVersion:    plan.CurrentVersion,
					AvailableVersion: plan.AvailableVersion,
					Images:           len(state.Images),
					Captions:         len(state.Captions),
					Categories:       len(state.Categories),
					Tags:             len(state.Tags),
					UndoDepth:        state.UndoDepth,
					RedoDepth:        state.RedoDepth,
				}

				if s.jsonOutput {
					return writeJSON(s.out, resp)
				}

				_ = writePlain(s.out, "db_path: %s\n", resp.DBPath)
				_ = writePlain(s.out, "blob_dir: %s\n", resp.BlobDir)
				_ = writePlain(s.out, "schema_version: %d\n", resp.SchemaVersion)
				_ = writePlain(s.out, "images: %d\n", resp.Images)
				_ = writePlain(s.out, "captions: %d\n", resp.Captions)
				_ = writePlain(s.out, "categories: %d\n", resp.Categories)
				_ = writePlain(s.out, "tags: %d\n", resp.Tags)
				_ = writePlain(s.out, "undo_depth: %d\n", resp.UndoDepth)
				return writePlain(s.out, "redo_depth: %d\n", resp.RedoDepth)
			})
		},
	}
}

