// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/lingshu-tui/internal/model"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports sessions as a Markdown transcript.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a new Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	return &MarkdownExporter{options: opts.withDefaults()}
}

// frontMatter is the YAML header of a Markdown export.
type frontMatter struct {
	Title         string `yaml:"title"`
	Session       string `yaml:"session"`
	CorrelationID string `yaml:"correlation_id,omitempty"`
	Date          string `yaml:"date"`
	Updated       string `yaml:"updated"`
	Messages      int    `yaml:"messages"`
	Exported      string `yaml:"exported"`
	Generator     string `yaml:"generator"`
}

// Export converts a session to Markdown. Empty sessions are rejected.
func (e *MarkdownExporter) Export(sess *model.ChatSession) ([]byte, error) {
	if sess == nil {
		return nil, ErrNilSession
	}
	if len(sess.Messages) == 0 {
		return nil, fmt.Errorf("session has no messages")
	}

	now := e.options.Now()
	var sb strings.Builder

	if e.options.IncludeMetadata {
		header, err := yaml.Marshal(frontMatter{
			Title:         sess.DisplayTitle(),
			Session:       sess.ID,
			CorrelationID: sess.CorrelationID,
			Date:          sess.CreatedAt.Format(time.RFC3339),
			Updated:       sess.UpdatedAt.Format(time.RFC3339),
			Messages:      len(sess.Messages),
			Exported:      now.Format(time.RFC3339),
			Generator:     Generator,
		})
		if err != nil {
			return nil, fmt.Errorf("front matter: %w", err)
		}
		sb.WriteString("---\n")
		sb.Write(header)
		sb.WriteString("---\n\n")
	}

	fmt.Fprintf(&sb, "# %s\n\n", escapeMarkdown(sess.DisplayTitle()))

	if e.options.IncludeMetadata {
		sb.WriteString("## Session Information\n\n")
		fmt.Fprintf(&sb, "- **Created**: %s\n", formatTimestamp(sess.CreatedAt))
		fmt.Fprintf(&sb, "- **Last Updated**: %s\n", formatTimestamp(sess.UpdatedAt))
		fmt.Fprintf(&sb, "- **Messages**: %d\n", len(sess.Messages))
		sb.WriteString("\n---\n\n")
	}

	sb.WriteString("## Conversation\n\n")

	for i, msg := range sess.Messages {
		label := roleLabel(msg.Role)
		if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
			fmt.Fprintf(&sb, "### %s <sub>%s</sub>\n\n", label, formatShortTimestamp(msg.Timestamp))
		} else {
			fmt.Fprintf(&sb, "### %s\n\n", label)
		}

		if len(msg.Attachments) > 0 {
			sb.WriteString(formatAttachments(msg.Attachments))
			sb.WriteString("\n")
		}

		sb.WriteString(strings.TrimSpace(msg.Content))
		sb.WriteString("\n\n")

		if i < len(sess.Messages)-1 {
			sb.WriteString("---\n\n")
		}
	}

	sb.WriteString("\n---\n\n")
	fmt.Fprintf(&sb, "*Exported from %s on %s*\n", Generator, now.Format("January 2, 2006 at 3:04 PM"))

	return []byte(sb.String()), nil
}

// FileExtension returns the file extension for Markdown.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// MimeType returns the MIME type for Markdown.
func (e *MarkdownExporter) MimeType() string {
	return "text/markdown"
}

// =============================================================================
// FORMATTING HELPERS
// =============================================================================

// roleLabel returns the heading label for a role.
func roleLabel(role model.Role) string {
	if role == "" {
		return "Unknown"
	}
	return role.DisplayName()
}

// formatAttachments lists attached images as a Markdown bullet list.
func formatAttachments(atts []model.Attachment) string {
	var sb strings.Builder
	for _, a := range atts {
		fmt.Fprintf(&sb, "- Image: `%s` (%s)\n", a.Name, humanize.IBytes(uint64(a.Size)))
	}
	return sb.String()
}

// escapeMarkdown escapes characters that would break a heading.
func escapeMarkdown(s string) string {
	r := strings.NewReplacer(
		"#", "\\#",
		"*", "\\*",
		"_", "\\_",
		"[", "\\[",
		"]", "\\]",
	)
	return r.Replace(s)
}
