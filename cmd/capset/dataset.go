package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"capset/internal/command"
	"capset/internal/manifest"
)

func newLoadCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:     "load <manifest.yaml>",
		Aliases: []string{"import"},
		Short:   "Load a YAML dataset manifest as one undoable change",
		Args:    requireExactlyArgs(1, "manifest path is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func() (*command.Command, error) {
				ds, err := manifest.ReadFile(args[0])
				if err != nil {
					return nil, fmt.Errorf("%w: %w", command.ErrInvalidArgument, err)
				}
				return command.NewLoadDataset(args[0], ds)
			})
		},
	}
}

func newExportCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "export <manifest.yaml>",
		Short: "Write the dataset as a YAML manifest",
		Args:  requireExactlyArgs(1, "output path is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func() (*command.Command, error) {
				return command.NewExportDataset(args[0])
			})
		},
	}
}

func newValidateCmd(s *session) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Report images missing a caption from a required category",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app) error {
				c := command.NewValidateDataset()
				if _, err := a.execute(cmd.Context(), c); err != nil {
					return err
				}
				problems := c.Action().(*command.ValidateDataset).Problems
				if s.jsonOutput {
					return writeJSON(s.out, problems)
				}
				if len(problems) == 0 {
					return writePlain(s.out, "dataset is valid\n")
				}
				for _, p := range problems {
					if err := writePlain(s.out, "%s  %s  missing %q (%s)\n", p.ImageID, p.ImagePath, p.CategoryName, p.CategoryID); err != nil {
						return err
					}
				}
				return errValidationFailed{count: len(problems)}
			})
		},
	}
}

// errValidationFailed makes validate exit non-zero when problems exist.
type errValidationFailed struct {
	count int
}

func (e errValidationFailed) Error() string {
	return fmt.Sprintf("%d validation problems", e.count)
}
