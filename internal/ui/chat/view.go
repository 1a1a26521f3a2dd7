// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/lingshu-tui/internal/commands"
	"github.com/jeranaias/lingshu-tui/internal/ui/components"
)

// =============================================================================
// VIEW
// =============================================================================

// View renders the chat screen.
func (m Model) View() string {
	if !m.ready {
		return "Starting Lingshu..."
	}

	m.header.Width = m.width
	m.header.Sessions = m.sessions
	m.header.Title = "New chat"
	m.header.SessionID = ""
	if s := m.view.Session; s != nil {
		m.header.Title = s.DisplayTitle()
		m.header.SessionID = s.ID
	}

	m.statusBar.Width = m.width
	m.statusBar.App = m.view.App
	m.statusBar.Spinner = m.spinner.Frame()
	m.statusBar.Attachments = len(m.view.Attachments)

	body := m.viewport.View()
	if m.overlay != overlayNone {
		body = lipgloss.Place(m.width, m.viewport.Height, lipgloss.Center, lipgloss.Center, m.renderOverlay())
	}

	parts := []string{m.header.View(), body}
	if t := components.RenderToastStack(m.toasts.Toasts(), m.width); t != "" {
		parts = append(parts, t)
	}
	if p := m.popup.View(m.completion); p != "" {
		parts = append(parts, p)
	}
	parts = append(parts, m.input.View(), m.statusBar.View())

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (m Model) renderOverlay() string {
	if m.overlay == overlayEdit && m.preview != nil {
		return m.preview.View()
	}

	width := m.width - 8
	if width > 96 {
		width = 96
	}
	body := m.overlayBody
	lines := strings.Split(strings.TrimRight(body, "\n"), "\n")
	if max := m.viewport.Height - 6; max > 0 && len(lines) > max {
		lines = append(lines[:max-1], fmt.Sprintf("... %d more line(s)", len(lines)-max+1))
	}

	content := m.theme.OverlayTitle.Render(m.overlayTitle) + "\n" +
		strings.Join(lines, "\n") + "\n\n" +
		m.theme.ShortcutKey.Render("esc") + m.theme.ShortcutDesc.Render(" close")
	return m.theme.Overlay.Width(width).Render(content)
}

// helpText combines the key bindings with the command reference. A topic
// narrows it to one command or category.
func helpText(keys KeyMap, reg *commands.Registry, topic string) string {
	if topic != "" {
		return commands.HelpText(reg, topic)
	}

	var sb strings.Builder
	sb.WriteString("Keys\n")
	for _, group := range keys.FullHelp() {
		for _, b := range group {
			h := b.Help()
			fmt.Fprintf(&sb, "  %-12s %s\n", h.Key, h.Desc)
		}
	}
	sb.WriteString("\n")
	sb.WriteString(commands.HelpText(reg, ""))
	return sb.String()
}
