// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package logging provides the process-wide structured logger.
//
// Every component asks for a prefixed sub-logger with With("component").
// Sub-loggers created before Configure keep writing to the old destination,
// so Configure should run before the rest of the application is wired.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

var (
	mu   sync.RWMutex
	root = newLogger(os.Stderr, log.InfoLevel)
)

// Options controls where and how much is logged.
type Options struct {
	// Level is one of debug, info, warn, error (default: info)
	Level string

	// File receives log output instead of stderr when set.
	File string

	// Quiet discards everything below error. Used for one-shot commands.
	Quiet bool
}

// Configure replaces the root logger. The returned closer releases the log
// file, if one was opened.
func Configure(opts Options) (io.Closer, error) {
	var output io.Writer = os.Stderr
	var closer io.Closer = nopCloser{}

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0700); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
		if err != nil {
			return nil, err
		}
		output = f
		closer = f
	}

	level := ParseLevel(opts.Level)
	if opts.Quiet && level < log.ErrorLevel {
		level = log.ErrorLevel
	}

	mu.Lock()
	root = newLogger(output, level)
	mu.Unlock()

	return closer, nil
}

// Default returns the root logger.
func Default() *log.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root
}

// With returns a sub-logger prefixed with the component name.
func With(component string) *log.Logger {
	return Default().WithPrefix(component)
}

// Discard returns a logger that drops everything. Handy in tests.
func Discard() *log.Logger {
	return log.New(io.Discard)
}

// ParseLevel converts a level name to a log level, defaulting to info.
func ParseLevel(level string) log.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return log.DebugLevel
	case "warn", "warning":
		return log.WarnLevel
	case "error":
		return log.ErrorLevel
	case "fatal":
		return log.FatalLevel
	default:
		return log.InfoLevel
	}
}

func newLogger(w io.Writer, level log.Level) *log.Logger {
	l := log.NewWithOptions(w, log.Options{
		Level:           level,
		ReportTimestamp: true,
		TimeFormat:      "15:04:05",
	})

	styles := log.DefaultStyles()
	styles.Keys["session"] = lipgloss.NewStyle().Foreground(lipgloss.Color("51"))
	styles.Keys["state"] = lipgloss.NewStyle().Foreground(lipgloss.Color("99"))
	styles.Keys["err"] = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	styles.Values["err"] = lipgloss.NewStyle().Bold(true)
	l.SetStyles(styles)

	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
