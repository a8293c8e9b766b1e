package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"capset/internal/command"
	"capset/internal/model"
)

func TestFormatCLIError_ModelErrorCarriesCodeAttributesAndHint(t *testing.T) {
	err := &model.Error{
		Code:        model.CodeNotFound,
		Op:          "execute",
		Message:     "caption cp-9: not found",
		Attributes:  map[string]string{"caption": "cp-9", "category": "ct-1"},
		Remediation: "list the dataset to find valid ids",
	}
	lines := formatCLIError(err)
	if lines[0] != "error [not_found]: execute: caption cp-9: not found" {
		t.Fatalf("unexpected first line %q", lines[0])
	}
	if !containsLine(lines, "  caption=cp-9") || !containsLine(lines, "  category=ct-1") {
		t.Fatalf("expected attribute lines, got %v", lines)
	}
	if !containsLine(lines, "hint: list the dataset to find valid ids") {
		t.Fatalf("expected remediation hint, got %v", lines)
	}
}

func TestFormatCLIError_BatchItemsAreListed(t *testing.T) {
	batchErr := &command.BatchError{
		Op:    "caption.remove",
		Total: 3,
		Failures: []command.ItemFailure{
			{Item: "cp-1", Err: command.ErrNotFound},
			{Item: "cp-2", Err: errors.New("disk full")},
		},
	}
	err := &model.Error{
		Code:        model.CodeItemFailures,
		Op:          "execute",
		Message:     batchErr.Error(),
		Remediation: "fix or drop the failing items and retry; nothing was changed",
		Cause:       batchErr,
	}
	lines := formatCLIError(err)
	if !containsLine(lines, "  cp-1: not found") || !containsLine(lines, "  cp-2: disk full") {
		t.Fatalf("expected per-item lines, got %v", lines)
	}
}

func TestFormatCLIError_StoreFailureGuidance(t *testing.T) {
	err := &model.Error{Code: model.CodeStoreFailure, Message: "database is locked"}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: the database is set by db_path or CAPSET_DB; see: capset info") {
		t.Fatalf("expected database guidance, got %v", lines)
	}
}

func TestFormatCLIError_TimeoutGuidance(t *testing.T) {
	err := &model.Error{Code: model.CodeCanceled, Message: "deadline", Cause: context.DeadlineExceeded}
	lines := formatCLIError(err)
	if !containsLine(lines, "hint: the operation timed out; raise model.operation_timeout.") {
		t.Fatalf("expected timeout guidance, got %v", lines)
	}
}

func TestFormatCLIError_PlainErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		hint string
	}{
		{
			name: "invalid argument",
			err:  fmt.Errorf("%w: at least one caption text is required", command.ErrInvalidArgument),
			hint: "hint: check the command arguments; run with --help for usage.",
		},
		{
			name: "not found",
			err:  fmt.Errorf("category %q: %w", "animal", command.ErrNotFound),
			hint: "hint: list the dataset to find valid ids (caption list, category list, image list).",
		},
		{
			name: "validation",
			err:  errValidationFailed{count: 2},
			hint: "hint: caption the listed images or mark the category optional.",
		},
		{
			name: "closed",
			err:  fmt.Errorf("execute: %w", model.ErrClosed),
			hint: "hint: the dataset was closed while the command was queued; retry.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lines := formatCLIError(tt.err)
			if !strings.HasPrefix(lines[0], "error: ") {
				t.Fatalf("expected error line, got %v", lines)
			}
			if !containsLine(lines, tt.hint) {
				t.Fatalf("expected %q, got %v", tt.hint, lines)
			}
		})
	}
}

func TestFormatCLIError_NilAndDuplicates(t *testing.T) {
	if lines := formatCLIError(nil); lines != nil {
		t.Fatalf("expected no lines for nil, got %v", lines)
	}
	got := uniqueLines([]string{"a", "", "b", "a"})
	if strings.Join(got, ",") != "a,b" {
		t.Fatalf("expected deduplicated lines, got %v", got)
	}
}

func containsLine(lines []string, expected string) bool {
	for _, line := range lines {
		if line == expected {
			return true
		}
	}
	return false
}
