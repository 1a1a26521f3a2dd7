// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"

	"github.com/jeranaias/lingshu-tui/internal/logging"
	"github.com/jeranaias/lingshu-tui/internal/util"
)

// =============================================================================
// FILE BACKEND
// =============================================================================

// FileBackend stores each key as <dir>/<key>.json, written atomically.
type FileBackend struct {
	dir    string
	logger *log.Logger

	mu      sync.Mutex
	written map[string][]byte // last bytes this process wrote, per key

	watcher *fsnotify.Watcher
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewFileBackend creates the directory if needed and returns a backend
// rooted there.
func NewFileBackend(dir string) (*FileBackend, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &FileBackend{
		dir:     dir,
		logger:  logging.With("storage"),
		written: make(map[string][]byte),
		ctx:     ctx,
		cancel:  cancel,
	}, nil
}

// Dir returns the directory the backend writes to.
func (f *FileBackend) Dir() string {
	return f.dir
}

// Path returns the file that holds key.
func (f *FileBackend) Path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

// Load implements Backend.
func (f *FileBackend) Load(key string) ([]byte, error) {
	data, err := os.ReadFile(f.Path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.written[key] = data
	f.mu.Unlock()
	return data, nil
}

// Save implements Backend.
func (f *FileBackend) Save(key string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := util.AtomicWriteFile(f.Path(key), data, 0600); err != nil {
		return err
	}
	f.written[key] = append([]byte(nil), data...)
	return nil
}

// Close stops the watcher, if any.
func (f *FileBackend) Close() error {
	f.cancel()
	var err error
	if f.watcher != nil {
		err = f.watcher.Close()
	}
	f.wg.Wait()
	return err
}

// =============================================================================
// EXTERNAL WRITE WATCH
// =============================================================================

// Watch reports writes to the backend's files made by someone else, such as
// a second client sharing the data dir. onChange is called with the key
// after changes settle for debounce. Writes made through Save are not
// reported.
func (f *FileBackend) Watch(debounce time.Duration, onChange func(key string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := w.Add(f.dir); err != nil {
		w.Close()
		return err
	}
	f.watcher = w

	f.wg.Add(1)
	go f.processEvents(debounce, onChange)
	return nil
}

func (f *FileBackend) processEvents(debounce time.Duration, onChange func(key string)) {
	defer f.wg.Done()

	pending := make(map[string]time.Time)
	ticker := time.NewTicker(debounce/2 + time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-f.ctx.Done():
			return

		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			key, ok := f.keyFor(event.Name)
			if !ok {
				continue
			}
			pending[key] = time.Now()

		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			f.logger.Debug("data dir watch error", "err", err)

		case now := <-ticker.C:
			for key, at := range pending {
				if now.Sub(at) < debounce {
					continue
				}
				delete(pending, key)
				if f.changedExternally(key) {
					onChange(key)
				}
			}
		}
	}
}

// keyFor maps a watched path back to its key. Temp files are skipped.
func (f *FileBackend) keyFor(path string) (string, bool) {
	name := filepath.Base(path)
	if strings.HasPrefix(name, ".") || filepath.Ext(name) != ".json" {
		return "", false
	}
	return strings.TrimSuffix(name, ".json"), true
}

func (f *FileBackend) changedExternally(key string) bool {
	data, err := os.ReadFile(f.Path(key))
	if err != nil {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return !bytes.Equal(data, f.written[key])
}
