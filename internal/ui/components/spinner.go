// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// SPINNER
// =============================================================================

// Spinner animates the status bar while a generation runs. Frames are
// ASCII so they render in any terminal font.
type Spinner struct {
	spinner spinner.Model
	active  bool
}

// NewSpinner creates an idle spinner.
func NewSpinner() Spinner {
	s := spinner.New()
	s.Spinner = spinner.Spinner{
		Frames: []string{"|", "/", "-", "\\"},
		FPS:    time.Second / 10,
	}
	return Spinner{spinner: s}
}

// Start activates the spinner and returns its first tick.
func (s *Spinner) Start() tea.Cmd {
	if s.active {
		return nil
	}
	s.active = true
	return s.spinner.Tick
}

// Stop halts the animation; pending ticks are ignored.
func (s *Spinner) Stop() {
	s.active = false
}

// Active reports whether the spinner runs.
func (s Spinner) Active() bool {
	return s.active
}

// Update advances the frame on spinner ticks.
func (s Spinner) Update(msg tea.Msg) (Spinner, tea.Cmd) {
	if !s.active {
		return s, nil
	}
	var cmd tea.Cmd
	s.spinner, cmd = s.spinner.Update(msg)
	return s, cmd
}

// Frame returns the current frame, or "" when idle.
func (s Spinner) Frame() string {
	if !s.active {
		return ""
	}
	return s.spinner.View()
}
