// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
package model

import (
	"strings"
	"time"

	"github.com/jeranaias/lingshu-tui/internal/util"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// String returns the string representation of the role.
func (r Role) String() string {
	return string(r)
}

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Lingshu"
	default:
		return string(r)
	}
}

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// =============================================================================
// ATTACHMENT TYPE
// =============================================================================

// Attachment is an image reference carried by a user message.
// Data holds the bytes read at validation time and is never persisted.
type Attachment struct {
	Name     string `json:"name"`
	Path     string `json:"path,omitempty"`
	MIMEType string `json:"mime_type"`
	Size     int64  `json:"size"`
	Data     []byte `json:"-"`
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Message represents a single turn in a chat session.
type Message struct {
	Role        Role         `json:"role"`
	Content     string       `json:"content"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`

	// Index is the position within the owning session's log.
	// Assigned by the session store; stable once assigned.
	Index int `json:"index"`
}

// NewMessage creates a new message stamped with the current time.
func NewMessage(role Role, content string) *Message {
	return &Message{
		Role:      role,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewUserMessage creates a new user message with optional attachments.
func NewUserMessage(content string, attachments ...Attachment) *Message {
	msg := NewMessage(RoleUser, content)
	if len(attachments) > 0 {
		msg.Attachments = append([]Attachment(nil), attachments...)
	}
	return msg
}

// NewAssistantMessage creates a new assistant message.
func NewAssistantMessage(content string) *Message {
	return NewMessage(RoleAssistant, content)
}

// IsUser reports whether the message was sent by the user.
func (m *Message) IsUser() bool {
	return m.Role == RoleUser
}

// IsAssistant reports whether the message came from the model.
func (m *Message) IsAssistant() bool {
	return m.Role == RoleAssistant
}

// HasAttachments reports whether the message carries images.
func (m *Message) HasAttachments() bool {
	return len(m.Attachments) > 0
}

// Preview returns a single-line preview of the content limited to maxRunes.
func (m *Message) Preview(maxRunes int) string {
	content := strings.Join(strings.Fields(m.Content), " ")
	return util.TruncateRunes(content, maxRunes)
}

// SameTurn reports whether two messages describe the same turn.
// Used to recognise a retried append.
func (m *Message) SameTurn(other *Message) bool {
	if m == nil || other == nil {
		return false
	}
	return m.Role == other.Role &&
		m.Content == other.Content &&
		m.Timestamp.Equal(other.Timestamp) &&
		len(m.Attachments) == len(other.Attachments)
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	c := *m
	if m.Attachments != nil {
		c.Attachments = make([]Attachment, len(m.Attachments))
		copy(c.Attachments, m.Attachments)
	}
	return &c
}
