package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"capset/internal/command"
	"capset/internal/models"
)

func newCategoryCmd(s *session) *cobra.Command {
	categoryCmd := &cobra.Command{
		Use:   "category",
		Short: "Manage categories and caption assignments",
	}

	var required bool
	addCmd := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a category",
		Args:  requireExactlyArgs(1, "category name is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func() (*command.Command, error) {
				return command.NewAddCategory(args[0], required)
			})
		},
	}
	addCmd.Flags().BoolVar(&required, "required", false, "every image must carry a caption of this category")

	removeCmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a category",
		Args:  requireExactlyArgs(1, "category id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func() (*command.Command, error) {
				return command.NewRemoveCategory(args[0])
			})
		},
	}

	modifyCmd := newCategoryModifyCmd(s)

	assignCmd := &cobra.Command{
		Use:   "assign <category-id> <caption-id> [<caption-id>...]",
		Short: "Assign captions to a category",
		Args:  requireAtLeastArgs(2, "category id and caption id(s) are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func() (*command.Command, error) {
				return command.NewAssignCaptions(args[0], args[1:]...)
			})
		},
	}

	unassignCmd := &cobra.Command{
		Use:   "unassign <category-id> <caption-id> [<caption-id>...]",
		Short: "Remove captions from a category",
		Args:  requireAtLeastArgs(2, "category id and caption id(s) are required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.runCommand(cmd, func() (*command.Command, error) {
				return command.NewUnassignCaptions(args[0], args[1:]...)
			})
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List categories",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app) error {
				categories := a.state().Categories
				if s.jsonOutput {
					return writeJSON(s.out, categories)
				}
				for _, category := range categories {
					suffix := ""
					if category.Required {
						suffix = " (required)"
					}
					if err := writePlain(s.out, "%s  %s%s\n", category.ID, category.Name, suffix); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	categoryCmd.AddCommand(addCmd, removeCmd, modifyCmd, assignCmd, unassignCmd, listCmd)
	return categoryCmd
}

func newCategoryModifyCmd(s *session) *cobra.Command {
	var name string
	var modifyRequired bool
	cmd := &cobra.Command{
		Use:   "modify <id>",
		Short: "Rename a category or change whether it is required",
		Args:  requireExactlyArgs(1, "category id is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app) error {
				current, ok := findCategory(a.state().Categories, args[0])
				if !ok {
					return fmt.Errorf("category %s: %w", args[0], command.ErrNotFound)
				}
				newName, newRequired := current.Name, current.Required
				if cmd.Flags().Changed("name") {
					newName = name
				}
				if cmd.Flags().Changed("required") {
					newRequired = modifyRequired
				}
				c, err := command.NewModifyCategory(current.ID, newName, newRequired)
				if err != nil {
					return err
				}
				res, err := a.execute(cmd.Context(), c)
				if err != nil {
					return err
				}
				return s.writeResult(res)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new category name")
	cmd.Flags().BoolVar(&modifyRequired, "required", false, "whether the category is required")
	return cmd
}

func findCategory(categories []models.Category, id string) (models.Category, bool) {
	for _, category := range categories {
		if category.ID == id {
			return category, true
		}
	}
	return models.Category{}, false
}
