// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// wire.go - Builds the store, transport and controller from the config.

package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/jeranaias/lingshu-tui/internal/attachment"
	"github.com/jeranaias/lingshu-tui/internal/backend"
	"github.com/jeranaias/lingshu-tui/internal/controller"
	"github.com/jeranaias/lingshu-tui/internal/logging"
	"github.com/jeranaias/lingshu-tui/internal/storage"
)

// watchDebounce collapses the burst of events one external save produces.
const watchDebounce = 500 * time.Millisecond

// sqliteFile is the database name inside the data directory.
const sqliteFile = "lingshu.db"

// openStore opens the session store with the configured driver.
func (app *App) openStore() (*storage.Store, error) {
	cfg := app.Config

	var be storage.Backend
	switch cfg.Storage.Driver {
	case "memory":
		be = storage.NewMemoryBackend()
	case "sqlite", "file":
		dir, err := cfg.DataDir()
		if err != nil {
			return nil, &ConfigError{Err: err}
		}
		if cfg.Storage.Driver == "sqlite" {
			be, err = storage.NewSQLiteBackend(filepath.Join(dir, sqliteFile))
		} else {
			be, err = storage.NewFileBackend(dir)
		}
		if err != nil {
			return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Driver, err)
		}
	default:
		return nil, &ConfigError{Err: fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)}
	}

	var debounce time.Duration
	if cfg.Storage.WatchExternal {
		debounce = watchDebounce
	}
	store, err := storage.Open(storage.Options{
		Backend:       be,
		TitleRunes:    cfg.Chat.TitleLength,
		WatchDebounce: debounce,
	})
	if err != nil {
		be.Close()
		return nil, err
	}
	for _, note := range store.LoadNotes() {
		logging.With("storage").Warn(note)
	}
	return store, nil
}

// newClient creates the backend client.
func (app *App) newClient() *backend.Client {
	cfg := app.Config
	return backend.NewClient(&backend.ClientConfig{
		BaseURL:     cfg.Backend.URL,
		Timeout:     cfg.Backend.Timeout(),
		LoadTimeout: cfg.Backend.LoadTimeout(),
		UserAgent:   "lingshu/" + Version,
	})
}

// newController wires a controller to p. The returned function closes the
// store.
func (app *App) newController(p controller.Presenter) (*controller.Controller, func(), error) {
	store, err := app.openStore()
	if err != nil {
		return nil, nil, err
	}
	cfg := app.Config
	ctrl := controller.New(controller.Options{
		Store:     store,
		Transport: app.newClient(),
		Presenter: p,
		Attachments: attachment.NewSet(attachment.Limits{
			MaxCount: cfg.Attachments.MaxCount,
			MaxBytes: cfg.Attachments.MaxBytes(),
		}),
		Stream:      cfg.Chat.Stream,
		AbortMarker: cfg.Chat.AbortMarker,
	})
	closeFn := func() {
		if err := store.Close(); err != nil {
			logging.With("storage").Warn("close store", "err", err)
		}
	}
	return ctrl, closeFn, nil
}
