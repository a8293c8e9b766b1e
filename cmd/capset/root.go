package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"capset/internal/config"
)

func newRootCmd(cfg *config.Config, stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	s := &session{cfg: cfg, in: stdin, out: stdout, errOut: stderr}
	var logLevel string

	cmd := newCommandTree(s)
	cmd.Version = version
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		warning, err := configureLoggerForCLI(logOptions{w: stderr, json: s.jsonOutput}, logLevel, cfg.LogLevel)
		if err != nil {
			return err
		}
		if warning != "" {
			fmt.Fprintln(stderr, warning)
		}
		return nil
	}

	cmd.AddCommand(
		newShellCmd(s),
		newConfigCmd(s),
		newMigrateCmd(s),
	)
	return cmd
}

// newCommandTree builds the dataset commands bound to s. The shell builds a
// fresh tree for every line so flag values never leak between lines.
func newCommandTree(s *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "capset",
		Short:         "capset curates image caption datasets with persistent undo",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetOut(s.out)
	cmd.SetErr(s.errOut)
	cmd.PersistentFlags().BoolVar(&s.jsonOutput, "json", s.defaultJSON, "output JSON")

	cmd.AddCommand(
		newCaptionCmd(s),
		newCategoryCmd(s),
		newImageCmd(s),
		newTagCmd(s),
		newMetadataCmd(s),
		newSelectCmd(s),
		newStatusCmd(s),
		newUndoCmd(s),
		newRedoCmd(s),
		newHistoryCmd(s),
		newCompactCmd(s),
		newLoadCmd(s),
		newExportCmd(s),
		newValidateCmd(s),
		newInfoCmd(s),
	)
	return cmd
}
