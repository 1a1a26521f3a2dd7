// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"context"
	"sync"
)

// =============================================================================
// CANCELLATION HANDLE (THREAD-SAFE)
// =============================================================================

// CancelHandle is the cooperative cancellation token for one in-flight
// request. It is handed to OpenStream; cancelling it closes the connection.
//
// Cancel is idempotent and safe to call from any goroutine, including after
// the request has already finished.
type CancelHandle struct {
	mu        sync.Mutex
	ctx       context.Context
	cancel    context.CancelFunc
	cancelled bool
}

// NewCancelHandle derives a handle from parent. Cancelling parent also
// cancels the handle's context, but IsCancelled only reports explicit Cancel
// calls.
func NewCancelHandle(parent context.Context) *CancelHandle {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	return &CancelHandle{ctx: ctx, cancel: cancel}
}

// Context returns the context bound to the handle.
func (h *CancelHandle) Context() context.Context {
	return h.ctx
}

// Cancel requests cancellation. Safe to call multiple times.
func (h *CancelHandle) Cancel() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancelled {
		return
	}
	h.cancelled = true
	h.cancel()
}

// IsCancelled reports whether Cancel was called.
func (h *CancelHandle) IsCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

// Release frees the context without marking the handle cancelled.
// Call it once the request reached a terminal state.
func (h *CancelHandle) Release() {
	h.cancel()
}
