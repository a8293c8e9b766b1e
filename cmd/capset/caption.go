package main

import (
	"github.com/spf13/cobra"

	"capset/internal/command"
)

func newCaptionCmd(s *session) *cobra.Command {
	captionCmd := &cobra.Command{
		Use:   "caption",
		Short: "Manage captions",
	}

	addCmd := &cobra.Command{
		Use:   "add <text> [<text>...]",
		Short: "Add captions; existing texts are skipped",
		Args:  requireAtLeastArgs(1, "caption text is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func() (*command.Command, error) {
				return command.NewAddCaptions(args...)
			})
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <id> [<id>...]",
		Short: "Remove captions and their links",
		Args:  requireAtLeastArgs(1, "caption id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func() (*command.Command, error) {
				return command.NewRemoveCaptions(args...)
			})
		},
	}

	modifyCmd := &cobra.Command{
		Use:   "modify <id> <text>",
		Short: "Change a caption's text",
		Args:  requireExactlyArgs(2, "caption id and text are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func() (*command.Command, error) {
				return command.NewModifyCaption(args[0], args[1])
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List captions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app) error {
				captions := a.state().Captions
				if s.jsonOutput {
					return writeJSON(s.out, captions)
				}
				return writeCaptions(s.out, captions)
			})
		},
	}

	captionCmd.AddCommand(addCmd, removeCmd, modifyCmd, listCmd)
	return captionCmd
}
