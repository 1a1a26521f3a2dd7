// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/charmbracelet/log"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]log.Level{
		"debug":   log.DebugLevel,
		"INFO":    log.InfoLevel,
		"warning": log.WarnLevel,
		"error":   log.ErrorLevel,
		"":        log.InfoLevel,
		"bogus":   log.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConfigure_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "lingshu.log")

	closer, err := Configure(Options{Level: "debug", File: path})
	if err != nil {
		t.Fatalf("Configure() error: %v", err)
	}
	t.Cleanup(func() {
		closer.Close()
		Configure(Options{})
	})

	With("test").Info("hello", "session", "s1")

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "hello") || !strings.Contains(string(data), "test") {
		t.Errorf("log file missing entry: %q", data)
	}
}

func TestConfigure_QuietRaisesLevel(t *testing.T) {
	closer, err := Configure(Options{Level: "debug", Quiet: true})
	if err != nil {
		t.Fatalf("Configure() error: %v", err)
	}
	t.Cleanup(func() {
		closer.Close()
		Configure(Options{})
	})

	if got := Default().GetLevel(); got != log.ErrorLevel {
		t.Errorf("level = %v, want error", got)
	}
}
