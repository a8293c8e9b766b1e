package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-shellwords"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"capset/internal/model"
)

const metricPrefix = "capset_"

func newShellCmd(s *session) *cobra.Command {
	var prompt string

	cmd := &cobra.Command{
		Use:   "shell",
		Short: "Run dataset commands interactively against one open dataset",
		Long: `Reads one command per line, for example:

  caption add "a cat" "a dog"
  undo

Commands are queued on the dataset while progress and failures are printed
as they happen. Built-ins: metrics, exit, quit.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd.Context(), s.cfg, s.errOut, renderOptions{json: s.jsonOutput, failures: true})
			if err != nil {
				return err
			}
			s.app = a
			s.defaultJSON = s.jsonOutput
			defer func() {
				s.app = nil
				a.close()
			}()
			return runShell(cmd.Context(), s, a, prompt)
		},
	}

	cmd.Flags().StringVar(&prompt, "prompt", "capset> ", "prompt printed before each line")
	return cmd
}

func runShell(ctx context.Context, s *session, a *app, prompt string) error {
	parser := shellwords.NewParser()
	parser.ParseEnv = true

	scanner := bufio.NewScanner(s.in)
	for {
		if prompt != "" {
			_ = writePlain(s.out, "%s", prompt)
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		words, err := parser.Parse(line)
		if err != nil {
			a.printError(fmt.Errorf("parse line: %w", err))
			continue
		}
		if len(words) == 0 {
			continue
		}

		switch words[0] {
		case "exit", "quit":
			return nil
		case "metrics":
			if err := writeMetrics(s, a); err != nil {
				a.printError(err)
			}
			continue
		}

		tree := newCommandTree(s)
		tree.SetArgs(words)
		if err := tree.ExecuteContext(ctx); err != nil && !renderedAsEvent(err) {
			a.printError(err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// renderedAsEvent reports whether the model already published err as a
// failure event.
func renderedAsEvent(err error) bool {
	return model.CodeOf(err) != "" && !errors.Is(err, model.ErrClosed)
}

func (a *app) printError(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, line := range formatCLIError(err) {
		fmt.Fprintln(a.errOut, line)
	}
}

// writeMetrics prints the model's capset_* metric families in the
// Prometheus text format.
func writeMetrics(s *session, a *app) error {
	families, err := a.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, family := range families {
		if !strings.HasPrefix(family.GetName(), metricPrefix) {
			continue
		}
		if _, err := expfmt.MetricFamilyToText(s.out, family); err != nil {
			return err
		}
	}
	return nil
}
