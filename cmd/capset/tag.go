package main

import (
	"github.com/spf13/cobra"

	"capset/internal/command"
)

func newTagCmd(s *session) *cobra.Command {
	tagCmd := &cobra.Command{
		Use:   "tag",
		Short: "Manage image tags",
	}

	var addImages string
	addCmd := &cobra.Command{
		Use:   "add --images <id,id> <tag> [<tag>...]",
		Short: "Tag images",
		Args:  requireAtLeastArgs(1, "tag is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func() (*command.Command, error) {
				imageIDs, err := imageTargets(s, cmd, addImages)
				if err != nil {
					return nil, err
				}
				return command.NewAddTags(imageIDs, args)
			})
		},
	}
	addCmd.Flags().StringVar(&addImages, "images", "", "comma-separated image ids (default: selection)")

	var removeImages string
	removeCmd := &cobra.Command{
		Use:   "remove --images <id,id> <tag> [<tag>...]",
		Short: "Remove tags from images",
		Args:  requireAtLeastArgs(1, "tag is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func() (*command.Command, error) {
				imageIDs, err := imageTargets(s, cmd, removeImages)
				if err != nil {
					return nil, err
				}
				return command.NewRemoveTags(imageIDs, args)
			})
		},
	}
	removeCmd.Flags().StringVar(&removeImages, "images", "", "comma-separated image ids (default: selection)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List tags with image counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app) error {
				tags := a.state().Tags
				if s.jsonOutput {
					return writeJSON(s.out, tags)
				}
				for _, tag := range tags {
					if err := writePlain(s.out, "%s  %d\n", tag.Tag, tag.Images); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	tagCmd.AddCommand(addCmd, removeCmd, listCmd)
	return tagCmd
}
