// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage keeps chat sessions and generation settings for lingshu.
//
// The Store holds every session in memory and writes the whole session
// table through a Backend after each mutation. The in-memory copy is the
// source of truth while the process runs; a failed write is reported as a
// *StorageError but the change stays in effect.
//
// # Key Types
//
//   - Store: session table, active session and settings
//   - Backend: key/value document persistence
//   - FileBackend: one JSON file per key, atomic writes, external-write watch
//   - SQLiteBackend: documents in SQLite with a short revision history
//   - MemoryBackend: nothing persisted
//
// # Usage
//
//	backend, err := storage.NewFileBackend(dataDir)
//	store, err := storage.Open(storage.Options{Backend: backend})
//	sess, _ := store.CreateSession()
//	idx, err := store.AppendMessage(sess.ID, model.NewUserMessage("hi"))
//
// # Storage Location
//
// By default documents live in ~/.lingshu/data/ as chatSessions.json and
// generationSettings.json.
package storage
