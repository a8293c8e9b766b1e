package model

import (
	"context"
	"errors"
	"fmt"
	"maps"

	"capset/internal/command"
)

// ErrClosed is returned for operations submitted after Close.
var ErrClosed = errors.New("model is closed")

// Code classifies a failed operation.
type Code string

const (
	// Validation.
	CodeInvalidArgument Code = "invalid_argument"
	CodeNotFound        Code = "not_found"
	CodeConflict        Code = "conflict"
	CodeItemFailures    Code = "item_failures"

	// History.
	CodeLedgerDecode       Code = "ledger_decode"
	CodeUnknownCommandType Code = "unknown_command_type"

	// Internal/system.
	CodeStoreFailure Code = "store_failure"
	CodeExportFailed Code = "export_failed"
	CodeCanceled     Code = "canceled"
	CodeInternal     Code = "internal"
)

var remediations = map[Code]string{
	CodeInvalidArgument:    "check the command arguments and retry",
	CodeNotFound:           "list the dataset to find valid ids",
	CodeConflict:           "choose a name or text that is not already used",
	CodeItemFailures:       "fix or drop the failing items and retry; nothing was changed",
	CodeLedgerDecode:       "the history entry cannot be read by this version; run compact to discard history",
	CodeUnknownCommandType: "the history entry was written by a different version; run compact to discard history",
	CodeStoreFailure:       "check that the database file is writable and not locked by another process",
	CodeExportFailed:       "check that the export path is writable",
	CodeCanceled:           "the operation ran out of time; raise model.operation_timeout or retry",
}

// Error is the structured failure of a model operation. No durable change
// from the operation survives when it is returned.
type Error struct {
	Code        Code
	Op          string
	Message     string
	Attributes  map[string]string
	Remediation string
	Cause       error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// CodeOf returns the code of a model error, or "" when err is not one.
func CodeOf(err error) Code {
	var modelErr *Error
	if errors.As(err, &modelErr) {
		return modelErr.Code
	}
	return ""
}

func classify(op string, err error, attrs map[string]string) *Error {
	var modelErr *Error
	if errors.As(err, &modelErr) {
		return modelErr
	}

	code := codeFor(err)
	return &Error{
		Code:        code,
		Op:          op,
		Message:     err.Error(),
		Attributes:  maps.Clone(attrs),
		Remediation: remediations[code],
		Cause:       err,
	}
}

func codeFor(err error) Code {
	var batchErr *command.BatchError
	switch {
	case errors.As(err, &batchErr):
		return CodeItemFailures
	case errors.Is(err, command.ErrUnknownCommandType):
		return CodeUnknownCommandType
	case errors.Is(err, command.ErrLedgerDecode):
		return CodeLedgerDecode
	case errors.Is(err, command.ErrInvalidArgument):
		return CodeInvalidArgument
	case errors.Is(err, command.ErrNotFound):
		return CodeNotFound
	case errors.Is(err, command.ErrConflict):
		return CodeConflict
	case errors.Is(err, command.ErrExport):
		return CodeExportFailed
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCanceled
	case errors.Is(err, ErrClosed):
		return CodeInternal
	default:
		return CodeStoreFailure
	}
}
