// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package chat provides the full-screen chat interface.

The screen is a thin Bubble Tea front end over a controller.Controller:
the controller owns sessions, attachments and the in-flight generation,
and the screen draws whatever view the controller last rendered.

# Presenter (presenter.go)

Presenter implements controller.Presenter. The controller calls it from
generation goroutines; it parks the newest view and queued notices and a
pump goroutine forwards them into the program as ViewMsg and NoticeMsg.

# Model (model.go, update.go, view.go)

  - Enter sends the input, or runs it when it starts with /
  - Esc or Ctrl+C while a reply streams stops it; the partial reply is kept
  - Tab completes commands, chat ids, image paths and setting names
  - /preview opens a diff of an edit; Enter applies it and regenerates

# Usage

	presenter := chat.NewPresenter()
	ctrl := controller.New(controller.Options{
		Store:     store,
		Transport: client,
		Presenter: presenter,
		Stream:    true,
	})
	err := chat.Run(ctx, chat.Options{Controller: ctrl, Presenter: presenter})
*/
package chat
