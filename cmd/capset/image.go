package main

import (
	"errors"

	"github.com/spf13/cobra"

	"capset/internal/command"
)

func newImageCmd(s *session) *cobra.Command {
	imageCmd := &cobra.Command{
		Use:   "image",
		Short: "Manage images and their captions",
	}

	addCmd := &cobra.Command{
		Use:   "add <path> [<path>...]",
		Short: "Add image files; their bytes are stored in the blob store",
		Args:  requireAtLeastArgs(1, "image path is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func() (*command.Command, error) {
				return command.NewAddImages(args...)
			})
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <id> [<id>...]",
		Short: "Remove images with their captions links and tags",
		Args:  requireAtLeastArgs(1, "image id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func() (*command.Command, error) {
				return command.NewRemoveImages(args...)
			})
		},
	}

	var captionImages string
	captionCmd := &cobra.Command{
		Use:   "caption --images <id,id> <caption-id> [<caption-id>...]",
		Short: "Attach captions to images",
		Args:  requireAtLeastArgs(1, "caption id(s) are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func() (*command.Command, error) {
				imageIDs, err := imageTargets(s, cmd, captionImages)
				if err != nil {
					return nil, err
				}
				return command.NewCaptionImages(args, imageIDs)
			})
		},
	}
	captionCmd.Flags().StringVar(&captionImages, "images", "", "comma-separated image ids (default: selection)")

	var uncaptionImages string
	uncaptionCmd := &cobra.Command{
		Use:   "uncaption --images <id,id> <caption-id> [<caption-id>...]",
		Short: "Detach captions from images",
		Args:  requireAtLeastArgs(1, "caption id(s) are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func() (*command.Command, error) {
				imageIDs, err := imageTargets(s, cmd, uncaptionImages)
				if err != nil {
					return nil, err
				}
				return command.NewUncaptionImages(args, imageIDs)
			})
		},
	}
	uncaptionCmd.Flags().StringVar(&uncaptionImages, "images", "", "comma-separated image ids (default: selection)")

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List images; selected images are marked with *",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app) error {
				state := a.state()
				if s.jsonOutput {
					return writeJSON(s.out, state.Images)
				}
				return writeImages(s.out, state.Images, state.Selection)
			})
		},
	}

	imageCmd.AddCommand(addCmd, removeCmd, captionCmd, uncaptionCmd, listCmd)
	return imageCmd
}

// imageTargets returns the ids from an --images flag, or the current
// selection when the flag is empty.
func imageTargets(s *session, cmd *cobra.Command, flag string) ([]string, error) {
	if ids := splitCommaList(flag); len(ids) > 0 {
		return ids, nil
	}
	var selection []string
	err := s.withApp(cmd.Context(), func(a *app) error {
		selection = append(selection, a.state().Selection...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(selection) == 0 {
		return nil, errors.New("no images given and nothing selected; pass --images or run select first")
	}
	return selection, nil
}
