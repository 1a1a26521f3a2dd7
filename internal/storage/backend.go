// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"sync"
)

// Storage keys.
const (
	KeySessions = "chatSessions"
	KeySettings = "generationSettings"
)

// =============================================================================
// BACKEND INTERFACE
// =============================================================================

// Backend is a key/value document store. Each key holds one JSON document
// that is always written whole.
type Backend interface {
	// Load returns the document for key, or ErrNotFound.
	Load(key string) ([]byte, error)

	// Save replaces the document for key.
	Save(key string, data []byte) error

	// Close releases resources held by the backend.
	Close() error
}

// =============================================================================
// MEMORY BACKEND
// =============================================================================

// MemoryBackend keeps documents in process memory. Nothing survives a restart.
type MemoryBackend struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryBackend creates an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{docs: make(map[string][]byte)}
}

// Load implements Backend.
func (m *MemoryBackend) Load(key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.docs[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), data...), nil
}

// Save implements Backend.
func (m *MemoryBackend) Save(key string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.docs[key] = append([]byte(nil), data...)
	return nil
}

// Close implements Backend.
func (m *MemoryBackend) Close() error {
	return nil
}
