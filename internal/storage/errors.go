// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
)

// =============================================================================
// SESSION ERRORS
// =============================================================================

// ErrSessionNotFound is returned when a session ID is not in the table.
var ErrSessionNotFound = &SessionError{Message: "session not found"}

// ErrMessageNotFound is returned when a message index is out of range.
var ErrMessageNotFound = &SessionError{Message: "message not found"}

// ErrRevisionNotFound is returned when an archived revision does not exist.
var ErrRevisionNotFound = &SessionError{Message: "revision not found"}

// ErrNoHistory is returned by history operations on backends that keep no
// previous revisions.
var ErrNoHistory = errors.New("storage: this backend keeps no history (use the sqlite driver)")

// ErrNotFound is returned by a Backend when a key has never been saved.
var ErrNotFound = errors.New("storage: key not found")

// SessionError represents a session-related error.
// It implements the error interface and can be compared using errors.Is.
type SessionError struct {
	Message string
	ID      string
}

// Error implements the error interface.
func (e *SessionError) Error() string {
	if e.ID == "" {
		return e.Message
	}
	return e.Message + ": " + e.ID
}

// Is implements errors.Is support; the ID is not compared.
func (e *SessionError) Is(target error) bool {
	t, ok := target.(*SessionError)
	if !ok {
		return false
	}
	return e.Message == t.Message
}

func sessionNotFound(id string) error {
	return &SessionError{Message: ErrSessionNotFound.Message, ID: id}
}

// =============================================================================
// STORAGE ERRORS
// =============================================================================

// StorageError reports a failed read or write of persisted state.
// The in-memory table is already updated when a write fails.
type StorageError struct {
	Op  string // "load", "save", "decode", "encode"
	Key string
	Err error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Key, e.Err)
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error {
	return e.Err
}

// IsStorageError reports whether err is or wraps a *StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// IsNotFound reports whether err means a missing session or message.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrMessageNotFound)
}
