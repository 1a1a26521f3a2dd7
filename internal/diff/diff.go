// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package diff

import (
	"fmt"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

// contextLines is how many unchanged lines surround each hunk.
const contextLines = 3

// =============================================================================
// LINE TYPES
// =============================================================================

// LineType is the kind of a diff line.
type LineType int

const (
	LineContext LineType = iota
	LineAdded
	LineRemoved
)

// String returns the name of the line type.
func (t LineType) String() string {
	switch t {
	case LineContext:
		return "context"
	case LineAdded:
		return "added"
	case LineRemoved:
		return "removed"
	default:
		return "unknown"
	}
}

// Prefix returns the unified diff marker for the line type.
func (t LineType) Prefix() string {
	switch t {
	case LineAdded:
		return "+"
	case LineRemoved:
		return "-"
	default:
		return " "
	}
}

// Line is one line of a diff. OldLine and NewLine are 1-based; zero means
// the line does not exist on that side.
type Line struct {
	Type    LineType
	Content string
	OldLine int
	NewLine int
}

// Hunk is a contiguous run of changes with surrounding context.
type Hunk struct {
	OldStart int
	OldCount int
	NewStart int
	NewCount int
	Lines    []Line
}

// Stats counts changed lines.
type Stats struct {
	Additions int
	Deletions int
}

// Diff is the line diff between two texts.
type Diff struct {
	Label string
	Old   string
	New   string
	Hunks []Hunk
	Stats Stats
}

// =============================================================================
// COMPUTATION
// =============================================================================

// Compute diffs old and new line by line.
func Compute(label, old, new string) *Diff {
	d := &Diff{Label: label, Old: old, New: new}

	lines := lineDiff(old, new)
	for _, l := range lines {
		switch l.Type {
		case LineAdded:
			d.Stats.Additions++
		case LineRemoved:
			d.Stats.Deletions++
		}
	}
	d.Hunks = group(lines)
	return d
}

// lineDiff runs diffmatchpatch in line mode and numbers the result.
func lineDiff(old, new string) []Line {
	dmp := diffmatchpatch.New()
	a, b, table := dmp.DiffLinesToChars(terminate(old), terminate(new))
	diffs := dmp.DiffCharsToLines(dmp.DiffMain(a, b, false), table)

	var (
		out              []Line
		oldLine, newLine int
	)
	for _, d := range diffs {
		for _, text := range splitLines(d.Text) {
			l := Line{Content: text}
			switch d.Type {
			case diffmatchpatch.DiffEqual:
				oldLine++
				newLine++
				l.Type, l.OldLine, l.NewLine = LineContext, oldLine, newLine
			case diffmatchpatch.DiffDelete:
				oldLine++
				l.Type, l.OldLine = LineRemoved, oldLine
			case diffmatchpatch.DiffInsert:
				newLine++
				l.Type, l.NewLine = LineAdded, newLine
			}
			out = append(out, l)
		}
	}
	return out
}

// terminate adds the final newline so a last line compares equal whether
// or not it had one.
func terminate(s string) string {
	if s == "" || strings.HasSuffix(s, "\n") {
		return s
	}
	return s + "\n"
}

// splitLines splits a run of lines, dropping the empty tail left by a
// final newline.
func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	lines := strings.Split(s, "\n")
	if lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

// group collects changed lines into hunks with up to contextLines of
// unchanged text on either side. Changes closer than twice that share a hunk.
func group(lines []Line) []Hunk {
	var (
		hunks []Hunk
		start = -1
		end   = -1
	)

	flush := func() {
		if start < 0 {
			return
		}
		from := max(0, start-contextLines)
		to := min(len(lines), end+contextLines+1)
		h := Hunk{Lines: append([]Line(nil), lines[from:to]...)}
		for _, l := range h.Lines {
			if l.OldLine > 0 {
				if h.OldStart == 0 {
					h.OldStart = l.OldLine
				}
				h.OldCount++
			}
			if l.NewLine > 0 {
				if h.NewStart == 0 {
					h.NewStart = l.NewLine
				}
				h.NewCount++
			}
		}
		hunks = append(hunks, h)
		start, end = -1, -1
	}

	for i, l := range lines {
		if l.Type == LineContext {
			continue
		}
		if start >= 0 && i-end > 2*contextLines {
			flush()
		}
		if start < 0 {
			start = i
		}
		end = i
	}
	flush()
	return hunks
}

// =============================================================================
// FORMATTING
// =============================================================================

// FormatUnified prints the diff in unified format.
func FormatUnified(d *Diff) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "--- a/%s\n", d.Label)
	fmt.Fprintf(&sb, "+++ b/%s\n", d.Label)

	for _, h := range d.Hunks {
		fmt.Fprintf(&sb, "@@ -%d,%d +%d,%d @@\n", h.OldStart, h.OldCount, h.NewStart, h.NewCount)
		for _, l := range h.Lines {
			sb.WriteString(l.Type.Prefix())
			sb.WriteString(l.Content)
			sb.WriteString("\n")
		}
	}
	return sb.String()
}

// Summary returns a short description such as "+2 -1".
func (d *Diff) Summary() string {
	if d.Stats.Additions == 0 && d.Stats.Deletions == 0 {
		return "no changes"
	}
	var parts []string
	if d.Stats.Additions > 0 {
		parts = append(parts, fmt.Sprintf("+%d", d.Stats.Additions))
	}
	if d.Stats.Deletions > 0 {
		parts = append(parts, fmt.Sprintf("-%d", d.Stats.Deletions))
	}
	return strings.Join(parts, " ")
}

// =============================================================================
// INLINE
// =============================================================================

// Segment is a run of text that was kept, inserted or deleted.
type Segment struct {
	Type LineType
	Text string
}

// Segments returns the character-level changes from old to new, cleaned up
// to human-friendly boundaries.
func Segments(old, new string) []Segment {
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(old, new, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	out := make([]Segment, 0, len(diffs))
	for _, d := range diffs {
		var t LineType
		switch d.Type {
		case diffmatchpatch.DiffInsert:
			t = LineAdded
		case diffmatchpatch.DiffDelete:
			t = LineRemoved
		}
		out = append(out, Segment{Type: t, Text: d.Text})
	}
	return out
}

// Inline renders the changes from old to new as plain text, with
// deletions in [-...-] and insertions in {+...+}.
func Inline(old, new string) string {
	if old == new {
		return old
	}
	var sb strings.Builder
	for _, s := range Segments(old, new) {
		switch s.Type {
		case LineAdded:
			sb.WriteString("{+" + s.Text + "+}")
		case LineRemoved:
			sb.WriteString("[-" + s.Text + "-]")
		default:
			sb.WriteString(s.Text)
		}
	}
	return sb.String()
}
