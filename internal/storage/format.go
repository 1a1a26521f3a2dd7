// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/jeranaias/lingshu-tui/internal/model"
	"github.com/jeranaias/lingshu-tui/internal/util"
)

// =============================================================================
// SESSION LIST FORMATTING
// =============================================================================

// FormatSessionList renders sessions as a plain-text table.
// activeID, when present in the list, is marked with '*'.
func FormatSessionList(sessions []model.SessionSummary, activeID string) string {
	if len(sessions) == 0 {
		return "No sessions found."
	}

	var sb strings.Builder
	sb.WriteString("  " + util.PadRight("ID", 10) + " " + util.PadRight("Updated", 16) + " " +
		util.PadRight("Msgs", 5) + " Title\n")
	sb.WriteString(strings.Repeat("-", 64) + "\n")

	for _, s := range sessions {
		marker := "  "
		if s.ID == activeID {
			marker = "* "
		}
		sb.WriteString(marker +
			util.PadRight(ShortID(s.ID), 10) + " " +
			util.PadRight(humanize.Time(s.UpdatedAt), 16) + " " +
			util.PadRight(strconv.Itoa(s.MessageCount), 5) + " " +
			util.TruncateWidth(s.Title, 40) + "\n")
	}
	return sb.String()
}

// ShortID returns the distinguishing tail of a time-ordered ID.
func ShortID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		return id[len(id)-8:]
	}
	return id
}
