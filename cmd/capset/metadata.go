package main

import (
	"github.com/spf13/cobra"

	"capset/internal/command"
)

func newMetadataCmd(s *session) *cobra.Command {
	metadataCmd := &cobra.Command{
		Use:   "metadata",
		Short: "Manage dataset metadata",
	}

	setCmd := &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a metadata value; an empty value deletes the key",
		Args:  requireExactlyArgs(2, "key and value are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func() (*command.Command, error) {
				return command.NewSetMetadata(args[0], args[1])
			})
		},
	}

	unsetCmd := &cobra.Command{
		Use:   "unset <key>",
		Short: "Delete a metadata key",
		Args:  requireExactlyArgs(1, "key is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func() (*command.Command, error) {
				return command.NewSetMetadata(args[0], "")
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app) error {
				metadata := a.state().Metadata
				if s.jsonOutput {
					return writeJSON(s.out, metadata)
				}
				for _, entry := range metadata {
					if err := writePlain(s.out, "%s=%s\n", entry.Key, entry.Value); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	metadataCmd.AddCommand(setCmd, unsetCmd, listCmd)
	return metadataCmd
}

func newSelectCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "select [<image-id>...]",
		Short: "Replace the selection; no ids clears it",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func() (*command.Command, error) {
				return command.NewSelectImages(args...)
			})
		},
	}
}

func newStatusCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Summarize the dataset and history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app) error {
				state := a.state()
				if s.jsonOutput {
					return writeJSON(s.out, state)
				}
				return writeStatus(s.out, state)
			})
		},
	}
}
