// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/jeranaias/lingshu-tui/internal/model"
)

// SessionsVersion is the current version of the persisted session table.
//
// Version history:
//
//	0: bare JSON object keyed by session id, or a bare array of sessions
//	1: {"version": 1, "active_id": "...", "sessions": [...]}
const SessionsVersion = 1

// sessionTable is the persisted form of the store.
type sessionTable struct {
	Version  int                  `json:"version"`
	ActiveID string               `json:"active_id,omitempty"`
	Sessions []*model.ChatSession `json:"sessions"`
}

// decodeSessions parses any known version of the session table and
// normalises it. Problems that could be repaired are returned as notes.
func decodeSessions(data []byte, titleRunes int, now time.Time) (*sessionTable, []string, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return &sessionTable{Version: SessionsVersion}, nil, nil
	}

	var table *sessionTable
	var notes []string

	switch data[0] {
	case '[':
		var sessions []*model.ChatSession
		if err := json.Unmarshal(data, &sessions); err != nil {
			return nil, nil, err
		}
		table = &sessionTable{Sessions: sessions}
		notes = append(notes, "migrated session table from version 0 (array)")

	case '{':
		var peek map[string]json.RawMessage
		if err := json.Unmarshal(data, &peek); err != nil {
			return nil, nil, err
		}
		if _, ok := peek["version"]; ok {
			table = &sessionTable{}
			if err := json.Unmarshal(data, table); err != nil {
				return nil, nil, err
			}
			if table.Version > SessionsVersion {
				notes = append(notes, fmt.Sprintf("session table version %d is newer than %d; unknown fields are dropped on save", table.Version, SessionsVersion))
			}
			break
		}
		table = &sessionTable{}
		for id, raw := range peek {
			var s model.ChatSession
			if err := json.Unmarshal(raw, &s); err != nil {
				notes = append(notes, fmt.Sprintf("dropped unreadable session %s: %v", id, err))
				continue
			}
			if s.ID == "" {
				s.ID = id
			}
			table.Sessions = append(table.Sessions, &s)
		}
		notes = append(notes, "migrated session table from version 0 (map)")

	default:
		return nil, nil, fmt.Errorf("unexpected session table encoding")
	}

	table.Version = SessionsVersion
	notes = append(notes, normalize(table, titleRunes, now)...)
	return table, notes, nil
}

// normalize fills defaults and repairs inconsistencies left by older
// versions or hand edits.
func normalize(table *sessionTable, titleRunes int, now time.Time) []string {
	var notes []string
	seen := make(map[string]bool, len(table.Sessions))
	kept := table.Sessions[:0]

	for _, s := range table.Sessions {
		if s == nil {
			continue
		}
		if s.ID == "" {
			s.ID = model.NewSessionID()
			notes = append(notes, "assigned id to session without one")
		}
		if seen[s.ID] {
			notes = append(notes, "dropped duplicate session "+s.ID)
			continue
		}
		seen[s.ID] = true

		msgs := s.Messages[:0]
		for _, m := range s.Messages {
			if m == nil || !m.Role.Valid() {
				notes = append(notes, "dropped invalid message in session "+s.ID)
				continue
			}
			if m.IsAssistant() {
				m.Attachments = nil
			}
			msgs = append(msgs, m)
		}
		if msgs == nil {
			msgs = make([]*model.Message, 0)
		}
		s.Messages = msgs
		s.Reindex()

		if s.CreatedAt.IsZero() {
			s.CreatedAt = s.UpdatedAt
		}
		if s.CreatedAt.IsZero() {
			s.CreatedAt = now
		}
		if s.UpdatedAt.Before(s.CreatedAt) {
			s.UpdatedAt = s.CreatedAt
		}
		if s.Title == "" {
			s.RefreshTitle(titleRunes)
		}

		kept = append(kept, s)
	}
	table.Sessions = kept

	if table.ActiveID != "" && !seen[table.ActiveID] {
		table.ActiveID = ""
	}
	return notes
}

// encodeSessions serialises the table in the current version.
func encodeSessions(sessions []*model.ChatSession, activeID string) ([]byte, error) {
	return json.MarshalIndent(sessionTable{
		Version:  SessionsVersion,
		ActiveID: activeID,
		Sessions: sessions,
	}, "", "  ")
}

// sortSessions orders sessions most recently updated first; ties are broken
// by ID descending, which for time-ordered IDs is newest first.
func sortSessions(sessions []*model.ChatSession) {
	sort.SliceStable(sessions, func(i, j int) bool {
		a, b := sessions[i], sessions[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		return a.ID > b.ID
	})
}
