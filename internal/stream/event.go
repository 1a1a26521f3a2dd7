// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes the backend's server-sent event stream into typed
// protocol events.
package stream

import (
	"errors"
	"fmt"
)

// =============================================================================
// EVENT TYPES
// =============================================================================

// Kind tags the variant carried by an Event.
type Kind int

const (
	KindSessionBound Kind = iota + 1
	KindChunk
	KindDone
	KindError
)

// String returns the name of the kind.
func (k Kind) String() string {
	switch k {
	case KindSessionBound:
		return "session_bound"
	case KindChunk:
		return "chunk"
	case KindDone:
		return "done"
	case KindError:
		return "error"
	default:
		return "unknown"
	}
}

// Event is one protocol-level occurrence in a response stream.
// Only the field matching Kind is meaningful.
type Event struct {
	Kind Kind

	// CorrelationID is set for KindSessionBound.
	CorrelationID string

	// Text is set for KindChunk.
	Text string

	// Message is set for KindError.
	Message string
}

// SessionBound returns an event binding the stream to a correlation id.
func SessionBound(id string) Event {
	return Event{Kind: KindSessionBound, CorrelationID: id}
}

// Chunk returns a content increment event.
func Chunk(text string) Event {
	return Event{Kind: KindChunk, Text: text}
}

// Done returns the successful terminal event.
func Done() Event {
	return Event{Kind: KindDone}
}

// Failure returns the error terminal event.
func Failure(message string) Event {
	return Event{Kind: KindError, Message: message}
}

// IsTerminal reports whether no further events follow this one.
func (e Event) IsTerminal() bool {
	return e.Kind == KindDone || e.Kind == KindError
}

// =============================================================================
// PROTOCOL ERRORS
// =============================================================================

// Reason categorizes protocol errors.
type Reason int

const (
	// ReasonServer means the stream carried an error event.
	ReasonServer Reason = iota + 1

	// ReasonIncomplete means the stream ended without a terminal event.
	ReasonIncomplete
)

// ProtocolError represents a malformed, failed or incomplete stream.
type ProtocolError struct {
	Reason  Reason
	Message string

	// Partial is the text received before the failure. It is never committed.
	Partial string
}

func (e *ProtocolError) Error() string {
	switch e.Reason {
	case ReasonIncomplete:
		if e.Partial != "" {
			return fmt.Sprintf("incomplete response (%d chars received before the stream ended)", len(e.Partial))
		}
		return "incomplete response: the stream ended without completing"
	default:
		if e.Message == "" {
			return "server reported an error"
		}
		return e.Message
	}
}

// Is matches protocol errors by reason.
func (e *ProtocolError) Is(target error) bool {
	t, ok := target.(*ProtocolError)
	if !ok {
		return false
	}
	return t.Reason == e.Reason
}

// Sentinel errors for easy checking.
var (
	ErrIncomplete = &ProtocolError{Reason: ReasonIncomplete}
	ErrServer     = &ProtocolError{Reason: ReasonServer}
)

// IsProtocolError reports whether err is a ProtocolError.
func IsProtocolError(err error) bool {
	var pe *ProtocolError
	return errors.As(err, &pe)
}
