// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/jeranaias/lingshu-tui/internal/util"
)

// DefaultTitleRunes is the title length used when none is configured.
const DefaultTitleRunes = 30

// =============================================================================
// CHAT SESSION
// =============================================================================

// ChatSession is one conversation thread: an ordered message log bound to a
// backend correlation id.
type ChatSession struct {
	ID    string `json:"id"`
	Title string `json:"title"`

	// TitleLocked is set once the user renames the session explicitly.
	TitleLocked bool `json:"title_locked,omitempty"`

	// CorrelationID binds the session to server-side context.
	// Empty until the first successful exchange.
	CorrelationID string `json:"correlation_id,omitempty"`

	Messages  []*Message `json:"messages"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// NewChatSession creates an empty session with a time-ordered ID.
func NewChatSession() *ChatSession {
	now := time.Now()
	return &ChatSession{
		ID:        NewSessionID(),
		Messages:  make([]*Message, 0),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// NewSessionID returns a creation-ordered identifier.
func NewSessionID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

// =============================================================================
// MESSAGE LOG
// =============================================================================

// Append adds msg at the end of the log, assigning its index.
// Returns the assigned index.
func (s *ChatSession) Append(msg *Message) int {
	msg.Index = len(s.Messages)
	if msg.Role == RoleAssistant {
		msg.Attachments = nil
	}
	s.Messages = append(s.Messages, msg)
	return msg.Index
}

// TruncateAfter drops every message whose index is greater than index.
// A negative index empties the log. Reports whether anything was removed.
func (s *ChatSession) TruncateAfter(index int) bool {
	keep := index + 1
	if keep < 0 {
		keep = 0
	}
	if keep >= len(s.Messages) {
		return false
	}
	for i := keep; i < len(s.Messages); i++ {
		s.Messages[i] = nil
	}
	s.Messages = s.Messages[:keep]
	return true
}

// MessageAt returns the message with the given index, or nil.
func (s *ChatSession) MessageAt(index int) *Message {
	if index < 0 || index >= len(s.Messages) {
		return nil
	}
	return s.Messages[index]
}

// LastMessage returns the last message in the log, or nil.
func (s *ChatSession) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return s.Messages[len(s.Messages)-1]
}

// LastUserMessage returns the most recent user message, or nil.
func (s *ChatSession) LastUserMessage() *Message {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == RoleUser {
			return s.Messages[i]
		}
	}
	return nil
}

// MessageCount returns the number of messages.
func (s *ChatSession) MessageCount() int {
	return len(s.Messages)
}

// IsEmpty reports whether the session has no messages.
func (s *ChatSession) IsEmpty() bool {
	return len(s.Messages) == 0
}

// Reindex rewrites every message index to match its position.
func (s *ChatSession) Reindex() {
	for i, msg := range s.Messages {
		msg.Index = i
	}
}

// Touch bumps UpdatedAt to now without letting it move backwards.
func (s *ChatSession) Touch(now time.Time) {
	if now.Before(s.UpdatedAt) {
		return
	}
	s.UpdatedAt = now
}

// =============================================================================
// TITLE MANAGEMENT
// =============================================================================

// RefreshTitle derives the title from the first user message unless the
// session was renamed explicitly.
func (s *ChatSession) RefreshTitle(maxRunes int) {
	if s.TitleLocked {
		return
	}
	for _, msg := range s.Messages {
		if msg.Role == RoleUser {
			s.Title = DeriveTitle(msg.Content, maxRunes)
			return
		}
	}
	s.Title = ""
}

// SetTitle renames the session and stops automatic titling.
func (s *ChatSession) SetTitle(title string) {
	s.Title = strings.TrimSpace(title)
	s.TitleLocked = s.Title != ""
}

// DisplayTitle returns the title or a placeholder.
func (s *ChatSession) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return "New chat"
}

// DeriveTitle turns message content into a single-line title of at most
// maxRunes runes.
func DeriveTitle(content string, maxRunes int) string {
	if maxRunes <= 0 {
		maxRunes = DefaultTitleRunes
	}
	content = norm.NFC.String(content)
	content = strings.Join(strings.Fields(content), " ")
	return util.TruncateRunes(content, maxRunes)
}

// =============================================================================
// SUMMARY
// =============================================================================

// Preview returns a short preview of the latest user message.
func (s *ChatSession) Preview() string {
	last := s.LastUserMessage()
	if last == nil {
		return "Empty chat"
	}
	return last.Preview(80)
}

// Summary returns lightweight metadata for listing.
func (s *ChatSession) Summary() SessionSummary {
	return SessionSummary{
		ID:            s.ID,
		Title:         s.DisplayTitle(),
		CorrelationID: s.CorrelationID,
		MessageCount:  len(s.Messages),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
		Preview:       s.Preview(),
	}
}

// SessionSummary holds lightweight metadata for listing.
type SessionSummary struct {
	ID            string    `json:"id"`
	Title         string    `json:"title"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	MessageCount  int       `json:"message_count"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	Preview       string    `json:"preview"`
}

// Clone creates a deep copy of the session.
func (s *ChatSession) Clone() *ChatSession {
	clone := *s
	clone.Messages = make([]*Message, len(s.Messages))
	for i, msg := range s.Messages {
		clone.Messages[i] = msg.Clone()
	}
	return &clone
}
