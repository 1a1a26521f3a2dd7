// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/lingshu-tui/internal/controller"
	"github.com/jeranaias/lingshu-tui/internal/ui/styles"
)

// =============================================================================
// TOAST TYPES
// =============================================================================

// DefaultToastDuration is how long info and success toasts stay up.
const DefaultToastDuration = 4 * time.Second

// Toast is one notice shown in the corner of the chat view. Warnings and
// errors are sticky: they stay until the user dismisses them.
type Toast struct {
	ID        int
	Level     controller.Level
	Message   string
	Detail    string
	CreatedAt time.Time
	Duration  time.Duration
}

// NewToast builds a toast for a controller notice.
func NewToast(n controller.Notice) Toast {
	t := Toast{
		Level:     n.Level,
		Message:   n.Message,
		CreatedAt: n.Time,
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if n.Err != nil && n.Err.Error() != n.Message {
		t.Detail = n.Err.Error()
	}
	if !n.Blocking() {
		t.Duration = DefaultToastDuration
	}
	return t
}

// Sticky reports whether the toast waits for the user.
func (t Toast) Sticky() bool {
	return t.Duration == 0
}

// IsExpired returns true once an auto-dismissing toast has run out.
func (t Toast) IsExpired(now time.Time) bool {
	return !t.Sticky() && now.Sub(t.CreatedAt) >= t.Duration
}

// =============================================================================
// TOAST MANAGER
// =============================================================================

// ToastManager holds the visible toasts, newest first.
type ToastManager struct {
	mu        sync.Mutex
	toasts    []Toast
	nextID    int
	maxToasts int
}

// NewToastManager creates an empty manager.
func NewToastManager() *ToastManager {
	return &ToastManager{nextID: 1, maxToasts: 4}
}

// Add pushes a toast and returns its id.
func (m *ToastManager) Add(t Toast) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == 0 {
		t.ID = m.nextID
		m.nextID++
	}
	m.toasts = append([]Toast{t}, m.toasts...)
	if len(m.toasts) > m.maxToasts {
		m.toasts = m.toasts[:m.maxToasts]
	}
	return t.ID
}

// AddNotice converts and pushes a controller notice.
func (m *ToastManager) AddNotice(n controller.Notice) int {
	return m.Add(NewToast(n))
}

// Tick drops expired toasts.
func (m *ToastManager) Tick(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	active := m.toasts[:0]
	for _, t := range m.toasts {
		if !t.IsExpired(now) {
			active = append(active, t)
		}
	}
	m.toasts = active
}

// DismissNewest removes the most recent toast. It reports whether one was
// removed.
func (m *ToastManager) DismissNewest() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.toasts) == 0 {
		return false
	}
	m.toasts = m.toasts[1:]
	return true
}

// HasSticky reports whether a toast is waiting to be acknowledged.
func (m *ToastManager) HasSticky() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, t := range m.toasts {
		if t.Sticky() {
			return true
		}
	}
	return false
}

// Toasts returns a copy of the visible toasts.
func (m *ToastManager) Toasts() []Toast {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Toast, len(m.toasts))
	copy(out, m.toasts)
	return out
}

// Len returns the number of visible toasts.
func (m *ToastManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.toasts)
}

// Clear removes every toast.
func (m *ToastManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.toasts = nil
}

// =============================================================================
// TOAST MESSAGES
// =============================================================================

// ToastTickMsg drives expiry.
type ToastTickMsg struct {
	Time time.Time
}

// ToastTickCmd ticks toasts every 250ms.
func ToastTickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return ToastTickMsg{Time: t}
	})
}

// =============================================================================
// TOAST RENDERING
// =============================================================================

// RenderToast draws a single toast.
func RenderToast(t Toast, width int) string {
	maxWidth := 60
	if width > 0 && width-8 < maxWidth {
		maxWidth = width - 8
	}
	if maxWidth < 24 {
		maxWidth = 24
	}

	color, icon := toastLook(t.Level)
	iconStyle := lipgloss.NewStyle().Foreground(color).Bold(true)
	textWidth := maxWidth - 6 - lipgloss.Width(icon)

	content := iconStyle.Render(icon+" ") +
		lipgloss.NewStyle().Foreground(styles.TextPrimary).Render(wrapText(t.Message, textWidth))
	if t.Detail != "" {
		content += "\n" + lipgloss.NewStyle().Foreground(styles.TextSecondary).Render(wrapText(t.Detail, maxWidth-4))
	}
	if t.Sticky() {
		content += "\n" + lipgloss.NewStyle().Foreground(styles.TextMuted).Italic(true).Render("[esc] Dismiss")
	}

	return lipgloss.NewStyle().
		Background(styles.SurfaceDim).
		BorderStyle(lipgloss.RoundedBorder()).
		BorderForeground(color).
		Padding(0, 1).
		MaxWidth(maxWidth).
		Render(content)
}

// RenderToastStack draws toasts stacked, newest at the bottom, right aligned.
func RenderToastStack(toasts []Toast, width int) string {
	if len(toasts) == 0 {
		return ""
	}
	rendered := make([]string, 0, len(toasts))
	for i := len(toasts) - 1; i >= 0; i-- {
		rendered = append(rendered, RenderToast(toasts[i], width))
	}
	stack := lipgloss.JoinVertical(lipgloss.Right, rendered...)
	if width > 0 {
		return lipgloss.PlaceHorizontal(width, lipgloss.Right, stack)
	}
	return stack
}

func toastLook(level controller.Level) (lipgloss.AdaptiveColor, string) {
	switch level {
	case controller.LevelError:
		return styles.Rose, styles.StatusIndicators.Error
	case controller.LevelWarn:
		return styles.Amber, styles.StatusIndicators.Warning
	case controller.LevelSuccess:
		return styles.Emerald, styles.StatusIndicators.Success
	default:
		return styles.Cyan, styles.StatusIndicators.Info
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// wrapText breaks text on word boundaries to fit width cells.
func wrapText(text string, width int) string {
	if width <= 0 || lipgloss.Width(text) <= width {
		return text
	}

	var lines []string
	for _, para := range strings.Split(text, "\n") {
		var line strings.Builder
		for _, word := range strings.Fields(para) {
			switch {
			case line.Len() == 0:
				line.WriteString(word)
			case lipgloss.Width(line.String())+1+lipgloss.Width(word) > width:
				lines = append(lines, line.String())
				line.Reset()
				line.WriteString(word)
			default:
				line.WriteString(" ")
				line.WriteString(word)
			}
		}
		lines = append(lines, line.String())
	}
	return strings.Join(lines, "\n")
}
