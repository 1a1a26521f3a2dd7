// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/lingshu-tui/internal/controller"
	"github.com/jeranaias/lingshu-tui/internal/storage"
	"github.com/jeranaias/lingshu-tui/internal/ui/styles"
)

// =============================================================================
// HEADER COMPONENT
// =============================================================================

// Header is the top line: brand, session title and session position.
type Header struct {
	Title     string
	SessionID string
	Sessions  int
	Width     int
	theme     *styles.Theme
}

// NewHeader creates a header.
func NewHeader(theme *styles.Theme) *Header {
	return &Header{theme: theme, Width: 80}
}

// View renders the header padded to the full width.
func (h *Header) View() string {
	left := h.theme.HeaderBrand.Render("Lingshu") + " " + h.theme.HeaderTitle.Render(truncateRunes(h.Title, 48))

	var right string
	if h.SessionID != "" {
		right = fmt.Sprintf("%s  %d chat(s)", storage.ShortID(h.SessionID), h.Sessions)
	}
	right = lipgloss.NewStyle().Foreground(styles.TextMuted).Render(right)

	gap := h.Width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		return h.theme.Header.Width(h.Width).Render(left)
	}
	return h.theme.Header.Width(h.Width).Render(left + strings.Repeat(" ", gap) + right)
}

// =============================================================================
// STATUS BAR COMPONENT
// =============================================================================

// StatusBar is the bottom line: backend, model, generation state and the
// key hints that fit.
type StatusBar struct {
	App controller.AppState

	// Spinner is the current frame shown while a generation runs.
	Spinner string

	// Attachments is the number of images waiting for the next send.
	Attachments int

	Width int
	theme *styles.Theme
}

// NewStatusBar creates a status bar.
func NewStatusBar(theme *styles.Theme) *StatusBar {
	return &StatusBar{theme: theme, Width: 80}
}

// View renders the bar.
func (s *StatusBar) View() string {
	parts := []string{s.backend(), s.model()}
	if st := s.state(); st != "" {
		parts = append(parts, st)
	}
	if s.Attachments > 0 {
		parts = append(parts, s.theme.PendingImages.Render(fmt.Sprintf("%d image(s)", s.Attachments)))
	}
	left := strings.Join(parts, "  ")

	hints := s.hints()
	for len(hints) > 0 {
		right := strings.Join(hints, "  ")
		if lipgloss.Width(left)+lipgloss.Width(right)+4 <= s.Width {
			gap := s.Width - lipgloss.Width(left) - lipgloss.Width(right) - 2
			return s.theme.StatusBar.Width(s.Width).Render(left + strings.Repeat(" ", gap) + right)
		}
		hints = hints[:len(hints)-1]
	}
	return s.theme.StatusBar.Width(s.Width).Render(left)
}

func (s *StatusBar) backend() string {
	if s.App.Online {
		return s.theme.StatusOnline.Render(styles.StatusIndicators.Success + " online")
	}
	return s.theme.StatusOffline.Render(styles.StatusIndicators.Error + " offline")
}

func (s *StatusBar) model() string {
	if !s.App.ModelLoaded {
		return s.theme.StatusNoModel.Render("no model (/load)")
	}
	label := "model"
	if s.App.Quantization != "" {
		label += " " + s.App.Quantization
	}
	if s.App.GPUAvailable && s.App.GPUName != "" {
		label += " on " + truncateRunes(s.App.GPUName, 20)
	}
	return s.theme.StatusModel.Render(label)
}

func (s *StatusBar) state() string {
	if !s.App.InFlight {
		return ""
	}
	frame := s.Spinner
	if frame == "" {
		frame = styles.StatusIndicators.Active
	}
	return s.theme.StatusState.Render(frame + " " + s.App.State.String())
}

func (s *StatusBar) hints() []string {
	key := func(k, desc string) string {
		return s.theme.ShortcutKey.Render(k) + " " + s.theme.ShortcutDesc.Render(desc)
	}
	if s.App.InFlight {
		return []string{key("esc", "stop"), key("ctrl+c", "stop")}
	}
	return []string{key("enter", "send"), key("/help", "commands"), key("ctrl+n", "new"), key("ctrl+c", "quit")}
}
