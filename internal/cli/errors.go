// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// errors.go - Unified error handling for lingshu commands.
//
// Commands always return errors; Execute decides how to print them and
// which exit code to use.

package cli

import (
	"errors"
	"fmt"

	"github.com/jeranaias/lingshu-tui/internal/backend"
	"github.com/jeranaias/lingshu-tui/internal/config"
	"github.com/jeranaias/lingshu-tui/internal/model"
	"github.com/jeranaias/lingshu-tui/internal/storage"
	"github.com/jeranaias/lingshu-tui/internal/stream"
)

// =============================================================================
// EXIT CODES
// =============================================================================

const (
	// ExitSuccess indicates successful execution
	ExitSuccess = 0
	// ExitGeneralError indicates a general/unknown error
	ExitGeneralError = 1
	// ExitUsageError indicates invalid command usage or input
	ExitUsageError = 2
	// ExitConfigError indicates a configuration file or settings error
	ExitConfigError = 3
	// ExitNetworkError indicates the backend could not be reached or refused
	ExitNetworkError = 5
	// ExitNotFoundError indicates a session or message was not found
	ExitNotFoundError = 7
	// ExitAborted indicates the user stopped a generation
	ExitAborted = 130
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// CommandError represents a failed command with context.
type CommandError struct {
	Command string // e.g. "sessions"
	Action  string // e.g. "delete"
	Err     error
}

func (e *CommandError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s %s: %v", e.Command, e.Action, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// NewCommandError wraps err with the command that produced it.
func NewCommandError(command, action string, err error) error {
	if err == nil {
		return nil
	}
	return &CommandError{Command: command, Action: action, Err: err}
}

// ConfigError marks a failure to load, validate or save configuration.
type ConfigError struct {
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("configuration: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ErrAborted is returned when the user stops a reply from the command line.
var ErrAborted = errors.New("generation stopped")

// =============================================================================
// EXIT CODE MAPPING
// =============================================================================

// ExitCode maps an error to the process exit code.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}

	var cfgErr *ConfigError
	var cfgValidate config.ValidateErrors
	switch {
	case errors.Is(err, ErrAborted):
		return ExitAborted
	case errors.As(err, &cfgErr), errors.As(err, &cfgValidate):
		return ExitConfigError
	case errors.Is(err, storage.ErrSessionNotFound), errors.Is(err, storage.ErrMessageNotFound),
		errors.Is(err, storage.ErrRevisionNotFound):
		return ExitNotFoundError
	case model.IsValidationError(err):
		return ExitUsageError
	case backend.IsTransportError(err), stream.IsProtocolError(err):
		return ExitNetworkError
	default:
		return ExitGeneralError
	}
}

// errorTip suggests a next step for common failures.
func errorTip(err error) string {
	switch model.ValidationCodeOf(err) {
	case model.CodeNoModelLoaded:
		return "Load the model with: lingshu model load"
	case model.CodeAttachmentCount, model.CodeAttachmentSize, model.CodeAttachmentType:
		return "Check the image files passed with --image"
	}
	if errors.Is(err, storage.ErrSessionNotFound) {
		return "List chats with: lingshu sessions list"
	}
	if errors.Is(err, storage.ErrNoHistory) {
		return "Set storage.driver = \"sqlite\" in the config to keep chat history revisions"
	}
	if backend.IsTransportError(err) {
		return "Is the backend running? Check backend.url with: lingshu config get backend.url"
	}
	return ""
}
