// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jeranaias/lingshu-tui/internal/model"
	"github.com/jeranaias/lingshu-tui/internal/ui/styles"
)

// =============================================================================
// MARKDOWN RENDERER
// =============================================================================

// Markdown renders assistant replies through glamour. Renderers are built
// lazily and cached per wrap width.
type Markdown struct {
	style string

	mu        sync.Mutex
	renderers map[int]*glamour.TermRenderer
}

// NewMarkdown creates a renderer using a glamour standard style
// ("dark", "light" or "notty").
func NewMarkdown(style string) *Markdown {
	return &Markdown{style: style, renderers: make(map[int]*glamour.TermRenderer)}
}

// Render formats text for the given width. It falls back to the raw text
// when glamour fails.
func (m *Markdown) Render(text string, width int) string {
	if m == nil || strings.TrimSpace(text) == "" {
		return text
	}
	r, err := m.renderer(width)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}

func (m *Markdown) renderer(width int) (*glamour.TermRenderer, error) {
	if width < 20 {
		width = 20
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if r, ok := m.renderers[width]; ok {
		return r, nil
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(m.style),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return nil, err
	}
	m.renderers[width] = r
	return r, nil
}

// =============================================================================
// MESSAGE BUBBLE COMPONENT
// =============================================================================

// MessageBubble draws one message of the transcript.
type MessageBubble struct {
	Message *model.Message

	// Number is the 1-based position shown next to the label. Zero hides it.
	Number int

	Width         int
	ShowTimestamp bool

	// Streaming marks the pending reply; it gets a cursor and skips
	// markdown so partial fences do not reflow on every chunk.
	Streaming bool

	Markdown *Markdown
	theme    *styles.Theme
}

// NewMessageBubble creates a bubble for msg.
func NewMessageBubble(msg *model.Message, theme *styles.Theme) *MessageBubble {
	if msg == nil {
		msg = &model.Message{}
	}
	return &MessageBubble{Message: msg, Width: 80, theme: theme}
}

// View renders the bubble.
func (b *MessageBubble) View() string {
	var sb strings.Builder
	sb.WriteString(b.header())
	sb.WriteString("\n")

	body := b.body()
	if len(b.Message.Attachments) > 0 {
		sb.WriteString(b.attachments())
		sb.WriteString("\n")
	}
	if body != "" {
		sb.WriteString(body)
	}
	return strings.TrimRight(sb.String(), "\n")
}

func (b *MessageBubble) header() string {
	var label string
	if b.Message.Role == model.RoleUser {
		label = b.theme.UserLabel.Render(b.Message.Role.DisplayName())
	} else {
		label = b.theme.AssistantLabel.Render(model.RoleAssistant.DisplayName())
	}

	parts := []string{label}
	if b.Number > 0 {
		parts = append(parts, b.theme.MessageIndex.Render(fmt.Sprintf("#%d", b.Number)))
	}
	if b.ShowTimestamp && !b.Message.Timestamp.IsZero() {
		parts = append(parts, b.theme.Timestamp.Render(b.Message.Timestamp.Format("15:04")))
	}
	return strings.Join(parts, " ")
}

func (b *MessageBubble) body() string {
	width := b.Width - 2
	content := b.Message.Content

	if b.Streaming {
		text := b.theme.MessageBody.Render(wrapText(content, width))
		return text + b.theme.PendingCursor.Render("_")
	}
	if b.Message.Role == model.RoleAssistant && b.Markdown != nil {
		return b.Markdown.Render(content, width)
	}
	return b.theme.MessageBody.Render(wrapText(content, width))
}

func (b *MessageBubble) attachments() string {
	lines := make([]string, 0, len(b.Message.Attachments))
	for _, a := range b.Message.Attachments {
		lines = append(lines, b.theme.AttachmentLine.Render(
			fmt.Sprintf("  [img] %s (%s)", a.Name, humanize.IBytes(uint64(a.Size)))))
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// RenderTranscript draws a whole session plus the pending reply, separated
// by blank lines. Message numbers are 1-based.
func RenderTranscript(sess *model.ChatSession, pending *model.Message, theme *styles.Theme, md *Markdown, width int, timestamps bool) string {
	var blocks []string
	if sess != nil {
		for i, msg := range sess.Messages {
			bubble := NewMessageBubble(msg, theme)
			bubble.Number = i + 1
			bubble.Width = width
			bubble.ShowTimestamp = timestamps
			bubble.Markdown = md
			blocks = append(blocks, bubble.View())
		}
	}
	if pending != nil {
		bubble := NewMessageBubble(pending, theme)
		bubble.Width = width
		bubble.Streaming = true
		blocks = append(blocks, bubble.View())
	}
	if len(blocks) == 0 {
		return lipgloss.NewStyle().Foreground(styles.TextMuted).Italic(true).
			Render("No messages yet. Type a question, or /attach an image first.")
	}
	return strings.Join(blocks, "\n\n")
}
