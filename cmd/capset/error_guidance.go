package main

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"capset/internal/command"
	"capset/internal/model"
)

// maxItemLines bounds how many failed items are listed before eliding.
const maxItemLines = 10

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{"error: " + err.Error()}

	var modelErr *model.Error
	if errors.As(err, &modelErr) {
		lines[0] = fmt.Sprintf("error [%s]: %s", modelErr.Code, modelErr.Error())
		var batchErr *command.BatchError
		if errors.As(modelErr, &batchErr) {
			lines = append(lines, itemLines(batchErr)...)
		} else {
			lines = append(lines, attributeLines(modelErr.Attributes)...)
		}
		if modelErr.Remediation != "" {
			lines = append(lines, "hint: "+modelErr.Remediation)
		}
		if modelErr.Code == model.CodeStoreFailure {
			lines = append(lines, "hint: the database is set by db_path or CAPSET_DB; see: capset info")
		}
	}

	var validationErr errValidationFailed
	switch {
	case errors.As(err, &validationErr):
		lines = append(lines, "hint: caption the listed images or mark the category optional.")
	case errors.Is(err, model.ErrClosed):
		lines = append(lines, "hint: the dataset was closed while the command was queued; retry.")
	case errors.Is(err, context.DeadlineExceeded):
		lines = append(lines, "hint: the operation timed out; raise model.operation_timeout.")
	case modelErr != nil:
		// the remediation line covers it
	case errors.Is(err, command.ErrInvalidArgument):
		lines = append(lines, "hint: check the command arguments; run with --help for usage.")
	case errors.Is(err, command.ErrNotFound):
		lines = append(lines, "hint: list the dataset to find valid ids (caption list, category list, image list).")
	}
	return uniqueLines(lines)
}

func itemLines(batchErr *command.BatchError) []string {
	lines := make([]string, 0, len(batchErr.Failures)+1)
	for i, failure := range batchErr.Failures {
		if i == maxItemLines {
			lines = append(lines, fmt.Sprintf("  ... and %d more", len(batchErr.Failures)-maxItemLines))
			break
		}
		lines = append(lines, fmt.Sprintf("  %s: %v", failure.Item, failure.Err))
	}
	return lines
}

func attributeLines(attrs map[string]string) []string {
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, key := range keys {
		lines = append(lines, fmt.Sprintf("  %s=%s", key, attrs[key]))
	}
	return lines
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
