// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorKind categorizes transport errors for handling.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConnection
	KindTimeout
	KindCancelled
	KindStatus
	KindRejected
	KindInvalidResponse
)

// String returns a short name for the kind.
func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindTimeout:
		return "timeout"
	case KindCancelled:
		return "cancelled"
	case KindStatus:
		return "status"
	case KindRejected:
		return "rejected"
	case KindInvalidResponse:
		return "invalid_response"
	default:
		return "unknown"
	}
}

// TransportError represents an HTTP-level or network failure.
type TransportError struct {
	Kind ErrorKind

	// Status is the HTTP status code, or 0 for network failures.
	Status int

	// ServerMessage is the backend's own explanation, when it sent one.
	ServerMessage string

	Message string
	Cause   error
}

func (e *TransportError) Error() string {
	msg := e.Message
	if e.ServerMessage != "" {
		msg = e.ServerMessage
	}
	if e.Status != 0 && e.Kind == KindStatus {
		msg = fmt.Sprintf("%s (HTTP %d)", msg, e.Status)
	}
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// Is matches transport errors by kind, and by status when the target has one.
func (e *TransportError) Is(target error) bool {
	t, ok := target.(*TransportError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Status == 0 || t.Status == e.Status
}

// Sentinel errors for easy checking.
var (
	ErrUnreachable = &TransportError{Kind: KindConnection, Message: "backend is not reachable"}
	ErrTimeout     = &TransportError{Kind: KindTimeout, Message: "request timed out"}
	ErrCancelled   = &TransportError{Kind: KindCancelled, Message: "request cancelled"}
)

// IsTransportError reports whether err is a TransportError.
func IsTransportError(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// IsCancelled reports whether err came from an explicit cancellation.
func IsCancelled(err error) bool {
	return errors.Is(err, ErrCancelled)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var te *TransportError
	if errors.As(err, &te) {
		return te.Status
	}
	return 0
}
