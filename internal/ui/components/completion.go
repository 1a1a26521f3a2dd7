// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/lingshu-tui/internal/commands"
	"github.com/jeranaias/lingshu-tui/internal/ui/styles"
)

// =============================================================================
// COMPLETION POPUP COMPONENT
// =============================================================================

// CompletionPopup draws the completion list above the input box. Selection
// state lives in commands.CompletionState; the popup only renders it.
type CompletionPopup struct {
	theme      *styles.Theme
	width      int
	maxVisible int
}

// NewCompletionPopup creates a popup.
func NewCompletionPopup(theme *styles.Theme) *CompletionPopup {
	return &CompletionPopup{theme: theme, width: 50, maxVisible: 8}
}

// SetWidth sets the popup width.
func (c *CompletionPopup) SetWidth(width int) {
	if width > 72 {
		width = 72
	}
	if width < 30 {
		width = 30
	}
	c.width = width
}

// View renders the popup for state, or "" when nothing is visible.
func (c *CompletionPopup) View(state *commands.CompletionState) string {
	if state == nil || !state.Visible || len(state.Completions) == 0 {
		return ""
	}

	start, end := visibleWindow(len(state.Completions), state.Selected, c.maxVisible)
	items := make([]string, 0, end-start+1)
	for i := start; i < end; i++ {
		items = append(items, c.renderItem(state.Completions[i], i == state.Selected))
	}
	if hidden := len(state.Completions) - (end - start); hidden > 0 {
		items = append(items, c.theme.CompletionDesc.Render(fmt.Sprintf("  %d more", hidden)))
	}

	return c.theme.CompletionPopup.Width(c.width).Render(strings.Join(items, "\n"))
}

func (c *CompletionPopup) renderItem(comp commands.Completion, selected bool) string {
	value := comp.Display
	if value == "" {
		value = comp.Value
	}
	value = truncateRunes(value, 24)

	descWidth := c.width - 30
	desc := ""
	if descWidth > 3 {
		desc = truncateRunes(comp.Description, descWidth)
	}

	indicator := "  "
	valueStyle := c.theme.CompletionItem
	if selected {
		indicator = "> "
		valueStyle = c.theme.CompletionSelected
	}

	return lipgloss.JoinHorizontal(lipgloss.Left,
		lipgloss.NewStyle().Foreground(styles.Cyan).Render(indicator),
		valueStyle.Width(26).Render(value),
		c.theme.CompletionDesc.Render(desc),
	)
}

// visibleWindow centers the selection in a window of at most max items.
func visibleWindow(n, selected, max int) (int, int) {
	if n <= max {
		return 0, n
	}
	start := selected - max/2
	if start < 0 {
		start = 0
	}
	end := start + max
	if end > n {
		end = n
		start = end - max
	}
	return start, end
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
