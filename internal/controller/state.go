// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"context"
	"io"
	"time"

	"github.com/jeranaias/lingshu-tui/internal/backend"
	"github.com/jeranaias/lingshu-tui/internal/model"
)

// =============================================================================
// GENERATION STATE
// =============================================================================

// State is the lifecycle position of the current generation.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCompleted
	StateAborted
	StateFailed
)

// String returns the name of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// InFlight reports whether the state belongs to a running generation.
func (s State) InFlight() bool {
	return s == StateSending || s == StateStreaming
}

// Terminal reports whether the state ends a generation.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateAborted || s == StateFailed
}

// =============================================================================
// APP STATE
// =============================================================================

// AppState is the backend and generation status shown in status bars.
type AppState struct {
	// Online is false when the last status call failed.
	Online bool

	ModelLoaded  bool
	Quantization string
	GPUAvailable bool
	GPUName      string

	// State is the current or most recent generation state.
	State State

	// InFlight is set while a generation is running.
	InFlight bool

	// Generating is the session the running generation belongs to.
	Generating string
}

// =============================================================================
// VIEW MODEL
// =============================================================================

// SessionView is everything a presenter needs to draw the active session.
type SessionView struct {
	// Session is a copy of the active session, or nil when there is none.
	Session *model.ChatSession

	// Pending is the ephemeral assistant reply while a generation for this
	// session streams. It is never part of Session.Messages.
	Pending *model.Message

	// Attachments are the images waiting for the next send.
	Attachments []model.Attachment

	App AppState
}

// Streaming reports whether the view shows a reply in progress.
func (v SessionView) Streaming() bool {
	return v.Pending != nil
}

// =============================================================================
// NOTICES
// =============================================================================

// Level is the severity of a notice.
type Level int

const (
	LevelInfo Level = iota
	LevelSuccess
	LevelWarn
	LevelError
)

// String returns the name of the level.
func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelSuccess:
		return "success"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Notice is a user-facing message about an action's outcome.
type Notice struct {
	Level   Level
	Message string
	Err     error
	Time    time.Time
}

// Blocking reports whether the notice must be acknowledged by the user.
// Info and success notices are only logged.
func (n Notice) Blocking() bool {
	return n.Level >= LevelWarn
}

// =============================================================================
// PORTS
// =============================================================================

// Presenter draws controller output. Methods may be called from the
// generation goroutine and must be safe for concurrent use.
type Presenter interface {
	Render(view SessionView)
	Notify(notice Notice)
}

// NopPresenter discards everything.
type NopPresenter struct{}

func (NopPresenter) Render(SessionView) {}
func (NopPresenter) Notify(Notice)      {}

// Transport is the subset of the backend client the controller uses.
type Transport interface {
	Status(ctx context.Context) (*backend.StatusResponse, error)
	LoadModel(ctx context.Context, quant model.Quantization) (*backend.LoadModelResponse, error)
	UnloadModel(ctx context.Context) (*backend.ActionResponse, error)
	ClearHistory(ctx context.Context, correlationID string) error
	Chat(h *backend.CancelHandle, req backend.ChatRequest) (*backend.ChatResponse, error)
	OpenStream(h *backend.CancelHandle, req backend.ChatRequest) (io.ReadCloser, error)
}

var _ Transport = (*backend.Client)(nil)

// =============================================================================
// RESULT
// =============================================================================

// Result describes how a generation ended.
type Result struct {
	State     State
	SessionID string

	// Message is the committed assistant message, or nil when nothing was
	// committed.
	Message *model.Message

	// CorrelationID is the id the backend bound the exchange to.
	CorrelationID string

	// Err is set for StateFailed.
	Err error

	Chunks     int
	FirstChunk time.Duration
	Elapsed    time.Duration
}
