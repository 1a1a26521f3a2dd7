// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// tui.go - Starts the full-screen chat.

package cli

import (
	"github.com/spf13/cobra"

	"github.com/jeranaias/lingshu-tui/internal/controller"
	"github.com/jeranaias/lingshu-tui/internal/export"
	"github.com/jeranaias/lingshu-tui/internal/ui/chat"
	"github.com/jeranaias/lingshu-tui/internal/ui/styles"
)

// runTUI opens the full-screen chat on the active session.
func (app *App) runTUI(cmd *cobra.Command, _ []string) error {
	if err := RequiresTTY("open the chat screen"); err != nil {
		return err
	}
	if !IsStdoutTTY() {
		return &TTYRequiredError{Operation: "draw the chat screen on redirected output"}
	}

	presenter := chat.NewPresenter()
	ctrl, closeStore, err := app.newController(presenter)
	if err != nil {
		return err
	}
	defer closeStore()

	for _, note := range ctrl.Store().LoadNotes() {
		presenter.Notify(controller.Notice{Level: controller.LevelWarn, Message: note})
	}

	cfg := app.Config
	opts := export.DefaultOptions()
	return chat.Run(cmd.Context(), chat.Options{
		Controller: ctrl,
		Presenter:  presenter,
		Theme:      styles.NewTheme(cfg.UI.Theme),
		Markdown:   cfg.UI.Markdown,
		Timestamps: cfg.UI.ShowTimestamps,
		Export:     opts,
	})
}
