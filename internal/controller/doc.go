// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package controller drives conversations: it validates user actions,
// runs one generation at a time against the backend, folds stream events
// into an ephemeral reply and commits the outcome to the session store.
//
// # Generation lifecycle
//
//	Idle -> Sending -> Streaming -> Completed | Aborted | Failed
//
// Sending starts once a request is accepted. Streaming starts with the
// first response byte. Completed commits the reply and binds the backend
// correlation id. Aborted commits the partial reply followed by the abort
// marker, or nothing when no text arrived. Failed commits nothing and
// raises an error notice.
//
// Only one generation runs at a time across all sessions. A second send,
// regenerate or edit while one is in flight is rejected with
// model.ErrBusy before anything is mutated.
//
// # Usage
//
//	ctrl := controller.New(controller.Options{
//	    Store:     store,
//	    Transport: backend.NewClient(nil),
//	    Presenter: view,
//	    Stream:    true,
//	})
//	if err := ctrl.RefreshStatus(ctx); err != nil {
//	    return err
//	}
//	result, err := ctrl.Send(ctx, "Describe this X-ray")
//
// Send blocks until the generation reaches a terminal state. Stop may be
// called from any goroutine to abort it.
package controller
