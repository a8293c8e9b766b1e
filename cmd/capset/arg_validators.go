package main

import (
	"errors"
	"strings"

	"github.com/spf13/cobra"

	"capset/internal/command"
)

func requireAtLeastArgs(min int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) < min {
			return errors.New(message)
		}
		return nil
	}
}

func requireExactlyArgs(count int, message string) cobra.PositionalArgs {
	return func(_ *cobra.Command, args []string) error {
		if len(args) != count {
			return errors.New(message)
		}
		return nil
	}
}

func splitCommaList(value string) []string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// runCommand builds a command, runs it on the model and prints the result.
// Argument errors are returned before the dataset is opened.
func (s *session) runCommand(cmd *cobra.Command, build func() (*command.Command, error)) error {
	c, err := build()
	if err != nil {
		return err
	}
	return s.withApp(cmd.Context(), func(a *app) error {
		res, err := a.execute(cmd.Context(), c)
		if err != nil {
			return err
		}
		return s.writeResult(res)
	})
}
