// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"time"

	"github.com/jeranaias/lingshu-tui/internal/model"
)

// DocumentVersion is the version of the JSON and YAML export layout.
const DocumentVersion = 1

// =============================================================================
// EXPORT DOCUMENT
// =============================================================================

// Document is the layout shared by the JSON and YAML exporters.
type Document struct {
	Generator  string    `json:"generator" yaml:"generator"`
	Version    int       `json:"version" yaml:"version"`
	ExportedAt time.Time `json:"exported_at" yaml:"exported_at"`
	Session    Session   `json:"session" yaml:"session"`
}

// Session is an exported chat session.
type Session struct {
	ID            string    `json:"id" yaml:"id"`
	Title         string    `json:"title" yaml:"title"`
	CorrelationID string    `json:"correlation_id,omitempty" yaml:"correlation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" yaml:"updated_at"`
	Messages      []Message `json:"messages" yaml:"messages"`
}

// Message is an exported message.
type Message struct {
	Index       int          `json:"index" yaml:"index"`
	Role        string       `json:"role" yaml:"role"`
	Content     string       `json:"content" yaml:"content"`
	Timestamp   time.Time    `json:"timestamp" yaml:"timestamp"`
	Attachments []Attachment `json:"attachments,omitempty" yaml:"attachments,omitempty"`
}

// Attachment describes an image without its bytes.
type Attachment struct {
	Name     string `json:"name" yaml:"name"`
	MIMEType string `json:"mime_type,omitempty" yaml:"mime_type,omitempty"`
	Size     int64  `json:"size" yaml:"size"`
}

// NewDocument builds the export document for a session.
func NewDocument(sess *model.ChatSession, exportedAt time.Time) *Document {
	doc := &Document{
		Generator:  Generator,
		Version:    DocumentVersion,
		ExportedAt: exportedAt.UTC(),
		Session: Session{
			ID:            sess.ID,
			Title:         sess.DisplayTitle(),
			CorrelationID: sess.CorrelationID,
			CreatedAt:     sess.CreatedAt.UTC(),
			UpdatedAt:     sess.UpdatedAt.UTC(),
			Messages:      make([]Message, 0, len(sess.Messages)),
		},
	}

	for _, msg := range sess.Messages {
		m := Message{
			Index:     msg.Index,
			Role:      string(msg.Role),
			Content:   msg.Content,
			Timestamp: msg.Timestamp.UTC(),
		}
		for _, a := range msg.Attachments {
			m.Attachments = append(m.Attachments, Attachment{Name: a.Name, MIMEType: a.MIMEType, Size: a.Size})
		}
		doc.Session.Messages = append(doc.Session.Messages, m)
	}
	return doc
}
