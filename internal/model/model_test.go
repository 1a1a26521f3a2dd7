// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"strings"
	"testing"
	"time"
)

// =============================================================================
// SESSION LOG TESTS
// =============================================================================

func TestChatSession_AppendAssignsIndexes(t *testing.T) {
	s := NewChatSession()

	for i, content := range []string{"a", "b", "c"} {
		got := s.Append(NewUserMessage(content))
		if got != i {
			t.Errorf("Append(%q) index = %d, want %d", content, got, i)
		}
	}
	if s.MessageCount() != 3 {
		t.Errorf("MessageCount() = %d, want 3", s.MessageCount())
	}
}

func TestChatSession_AppendStripsAssistantAttachments(t *testing.T) {
	s := NewChatSession()
	msg := NewAssistantMessage("hello")
	msg.Attachments = []Attachment{{Name: "x.png"}}

	s.Append(msg)

	if s.LastMessage().HasAttachments() {
		t.Error("assistant message kept its attachments")
	}
}

func TestChatSession_TruncateAfter(t *testing.T) {
	tests := []struct {
		name    string
		index   int
		want    int
		removed bool
	}{
		{"middle", 1, 2, true},
		{"last", 3, 4, false},
		{"beyond", 10, 4, false},
		{"all", -1, 0, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := NewChatSession()
			for _, c := range []string{"q1", "a1", "q2", "a2"} {
				s.Append(NewUserMessage(c))
			}

			removed := s.TruncateAfter(tc.index)
			if removed != tc.removed {
				t.Errorf("TruncateAfter(%d) = %v, want %v", tc.index, removed, tc.removed)
			}
			if s.MessageCount() != tc.want {
				t.Errorf("MessageCount() = %d, want %d", s.MessageCount(), tc.want)
			}
			if idx := s.Append(NewUserMessage("next")); idx != tc.want {
				t.Errorf("Append after truncate = %d, want %d", idx, tc.want)
			}
		})
	}
}

func TestChatSession_Touch_Monotonic(t *testing.T) {
	s := NewChatSession()
	later := s.UpdatedAt.Add(time.Minute)
	s.Touch(later)
	s.Touch(later.Add(-time.Hour))

	if !s.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt moved backwards: %v", s.UpdatedAt)
	}
}

func TestChatSession_Clone_IsDeep(t *testing.T) {
	s := NewChatSession()
	s.Append(NewUserMessage("original", Attachment{Name: "a.png"}))

	c := s.Clone()
	c.Messages[0].Content = "changed"
	c.Messages[0].Attachments[0].Name = "b.png"

	if s.Messages[0].Content != "original" {
		t.Error("clone shares message content")
	}
	if s.Messages[0].Attachments[0].Name != "a.png" {
		t.Error("clone shares attachments")
	}
}

func TestNewSessionID_Ordered(t *testing.T) {
	a := NewSessionID()
	time.Sleep(2 * time.Millisecond)
	b := NewSessionID()
	if a >= b {
		t.Errorf("ids not creation ordered: %s >= %s", a, b)
	}
}

// =============================================================================
// TITLE TESTS
// =============================================================================

func TestDeriveTitle(t *testing.T) {
	tests := []struct {
		name    string
		content string
		max     int
		want    string
	}{
		{"short", "hi", 30, "hi"},
		{"newlines collapsed", "line one\nline two", 30, "line one line two"},
		{"truncated", strings.Repeat("x", 40), 10, "xxxxxxx..."},
		{"multibyte", "描述这张图片里的病灶位置", 6, "描述这..."},
		{"default length", strings.Repeat("y", 40), 0, strings.Repeat("y", 27) + "..."},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := DeriveTitle(tc.content, tc.max); got != tc.want {
				t.Errorf("DeriveTitle() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestChatSession_RefreshTitle_RespectsRename(t *testing.T) {
	s := NewChatSession()
	s.Append(NewUserMessage("first question"))
	s.RefreshTitle(30)
	if s.Title != "first question" {
		t.Fatalf("Title = %q", s.Title)
	}

	s.SetTitle("Radiology notes")
	s.RefreshTitle(30)
	if s.Title != "Radiology notes" {
		t.Errorf("renamed title overwritten: %q", s.Title)
	}
}

// =============================================================================
// GENERATION / VALIDATION TESTS
// =============================================================================

func TestParseQuantization(t *testing.T) {
	for _, in := range []string{"4bit", "8BIT", " standard ", "cpu"} {
		if _, err := ParseQuantization(in); err != nil {
			t.Errorf("ParseQuantization(%q) error: %v", in, err)
		}
	}

	_, err := ParseQuantization("2bit")
	if ValidationCodeOf(err) != CodeInvalidSetting {
		t.Errorf("ParseQuantization(2bit) code = %v, want invalid_setting", ValidationCodeOf(err))
	}
}

func TestValidationError_IsByCode(t *testing.T) {
	err := &ValidationError{Code: CodeBusy, Message: "custom text"}
	if !errors.Is(err, ErrBusy) {
		t.Error("errors.Is should match on code")
	}
	if errors.Is(err, ErrEmptyPrompt) {
		t.Error("errors.Is matched a different code")
	}
}
