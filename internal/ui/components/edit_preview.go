// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/lingshu-tui/internal/diff"
	"github.com/jeranaias/lingshu-tui/internal/ui/styles"
)

// =============================================================================
// EDIT PREVIEW
// =============================================================================

// EditPreview shows how an edit changes a user message before the
// conversation is truncated and regenerated.
type EditPreview struct {
	// Index is the 0-based message index.
	Index int
	Old   string
	New   string

	// Dropped is the number of later messages the edit removes.
	Dropped int

	Width int
	theme *styles.Theme
}

// NewEditPreview creates a preview overlay.
func NewEditPreview(theme *styles.Theme, index int, old, new string, dropped int) *EditPreview {
	return &EditPreview{Index: index, Old: old, New: new, Dropped: dropped, Width: 80, theme: theme}
}

// View renders the overlay.
func (p *EditPreview) View() string {
	width := p.Width - 4
	if width < 30 {
		width = 30
	}

	d := diff.Compute(fmt.Sprintf("message #%d", p.Index+1), p.Old, p.New)

	var sb strings.Builder
	sb.WriteString(p.theme.OverlayTitle.Render(fmt.Sprintf("Edit message #%d (%s)", p.Index+1, d.Summary())))
	sb.WriteString("\n")

	if strings.Contains(p.Old, "\n") || strings.Contains(p.New, "\n") {
		sb.WriteString(p.renderHunks(d))
	} else {
		sb.WriteString(wrapText(p.renderInline(), width))
	}
	sb.WriteString("\n")

	if p.Dropped > 0 {
		sb.WriteString("\n")
		sb.WriteString(p.theme.WarningStyle.Render(fmt.Sprintf("%s %d later message(s) will be removed",
			styles.StatusIndicators.Warning, p.Dropped)))
		sb.WriteString("\n")
	}

	sb.WriteString("\n")
	sb.WriteString(p.theme.ShortcutKey.Render("enter"))
	sb.WriteString(p.theme.ShortcutDesc.Render(" apply and regenerate  "))
	sb.WriteString(p.theme.ShortcutKey.Render("esc"))
	sb.WriteString(p.theme.ShortcutDesc.Render(" cancel"))

	return p.theme.Overlay.Width(width).Render(sb.String())
}

// renderInline colors word-level changes of a single-line edit.
func (p *EditPreview) renderInline() string {
	var sb strings.Builder
	for _, seg := range diff.Segments(p.Old, p.New) {
		switch seg.Type {
		case diff.LineAdded:
			sb.WriteString(p.theme.DiffAdded.Render(seg.Text))
		case diff.LineRemoved:
			sb.WriteString(p.theme.DiffRemoved.Strikethrough(true).Render(seg.Text))
		default:
			sb.WriteString(seg.Text)
		}
	}
	return sb.String()
}

// renderHunks draws a multi-line edit as unified hunks.
func (p *EditPreview) renderHunks(d *diff.Diff) string {
	var lines []string
	for _, h := range d.Hunks {
		lines = append(lines, lipgloss.NewStyle().Foreground(styles.Cyan).Render(
			fmt.Sprintf("@@ -%d,%d +%d,%d @@", h.OldStart, h.OldCount, h.NewStart, h.NewCount)))
		for _, l := range h.Lines {
			text := l.Type.Prefix() + strings.TrimRight(l.Content, "\n")
			switch l.Type {
			case diff.LineAdded:
				text = p.theme.DiffAdded.Render(text)
			case diff.LineRemoved:
				text = p.theme.DiffRemoved.Render(text)
			}
			lines = append(lines, text)
		}
	}
	return strings.Join(lines, "\n")
}
