// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/lingshu-tui/internal/model"
	"github.com/jeranaias/lingshu-tui/internal/ui/styles"
)

// =============================================================================
// INPUT AREA COMPONENT
// =============================================================================

// DefaultMaxChars limits a single prompt.
const DefaultMaxChars = 8192

// InputArea is the prompt box with the images queued for the next send.
type InputArea struct {
	input    textinput.Model
	width    int
	maxChars int
	pending  []model.Attachment
	theme    *styles.Theme
}

// NewInputArea creates a focused-ready input.
func NewInputArea(theme *styles.Theme) *InputArea {
	ti := textinput.New()
	ti.Placeholder = "Ask about an image or type /help"
	ti.CharLimit = DefaultMaxChars
	ti.Prompt = "> "
	ti.PromptStyle = theme.InputPrompt
	ti.PlaceholderStyle = theme.InputPlaceholder
	ti.TextStyle = lipgloss.NewStyle().Foreground(styles.TextPrimary)
	ti.Cursor.Style = lipgloss.NewStyle().Foreground(styles.Cyan)

	return &InputArea{input: ti, width: 80, maxChars: DefaultMaxChars, theme: theme}
}

// Focus focuses the input.
func (i *InputArea) Focus() tea.Cmd {
	return i.input.Focus()
}

// Blur removes focus.
func (i *InputArea) Blur() {
	i.input.Blur()
}

// SetWidth sets the outer width.
func (i *InputArea) SetWidth(width int) {
	i.width = width
	inner := width - 8
	if inner < 20 {
		inner = 20
	}
	i.input.Width = inner
}

// SetPending sets the images shown above the prompt.
func (i *InputArea) SetPending(atts []model.Attachment) {
	i.pending = atts
}

// Value returns the text.
func (i *InputArea) Value() string {
	return i.input.Value()
}

// SetValue replaces the text and moves the cursor to the end.
func (i *InputArea) SetValue(v string) {
	i.input.SetValue(v)
	i.input.CursorEnd()
}

// Reset clears the text.
func (i *InputArea) Reset() {
	i.input.Reset()
}

// Position returns the cursor position.
func (i *InputArea) Position() int {
	return i.input.Position()
}

// Update forwards key input to the text field.
func (i *InputArea) Update(msg tea.Msg) (*InputArea, tea.Cmd) {
	var cmd tea.Cmd
	i.input, cmd = i.input.Update(msg)
	return i, cmd
}

// View renders the pending images line, the boxed prompt and, near the
// limit, a character counter.
func (i *InputArea) View() string {
	var lines []string
	if len(i.pending) > 0 {
		names := make([]string, len(i.pending))
		for n, a := range i.pending {
			names[n] = fmt.Sprintf("%d:%s", n+1, a.Name)
		}
		lines = append(lines, i.theme.PendingImages.Render(
			truncateRunes("[img] "+strings.Join(names, "  "), i.width-2)))
	}

	lines = append(lines, i.theme.InputContainer.Width(i.width-2).Render(i.input.View()))

	count := len([]rune(i.input.Value()))
	if count > i.maxChars*3/4 {
		style := i.theme.WarningStyle
		if count >= i.maxChars {
			style = i.theme.ErrorStyle
		}
		lines = append(lines, lipgloss.NewStyle().Width(i.width-2).Align(lipgloss.Right).
			Render(style.Render(fmt.Sprintf("%d/%d", count, i.maxChars))))
	}
	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}
