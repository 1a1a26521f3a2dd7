// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/jeranaias/lingshu-tui/internal/model"
	"github.com/jeranaias/lingshu-tui/internal/storage"
)

// =============================================================================
// COMPLETER
// =============================================================================

// Completer handles tab completion for commands and arguments.
type Completer struct {
	registry *Registry

	// SessionsFn returns saved sessions for session arguments.
	SessionsFn func() []model.SessionSummary

	// FilesFn overrides directory listing for file arguments.
	FilesFn func(prefix string) []string
}

// NewCompleter creates a new completer with the given registry.
func NewCompleter(registry *Registry) *Completer {
	return &Completer{
		registry: registry,
	}
}

// Complete returns completions for the given input at the cursor position.
func (c *Completer) Complete(input string, cursorPos int) []Completion {
	// If cursor is not at end, use the portion up to cursor
	if cursorPos < len(input) {
		input = input[:cursorPos]
	}

	input = strings.TrimLeft(input, " \t")

	if !strings.HasPrefix(input, "/") {
		return nil
	}

	name, rest := cutName(input)
	if rest == "" {
		return c.completeCommands(name)
	}

	cmd := c.registry.Get(name)
	if cmd == nil {
		return nil
	}

	// A trailing blank starts the next argument.
	args := splitArgs(rest, -1)
	if len(args) == 0 || strings.HasSuffix(rest, " ") || strings.HasSuffix(rest, "\t") {
		return c.completeArg(cmd, len(args), "")
	}
	return c.completeArg(cmd, len(args)-1, args[len(args)-1])
}

// Lines returns whole-line completions for line editors that replace the
// entire input, such as the REPL.
func (c *Completer) Lines(input string) []string {
	completions := c.Complete(input, len(input))
	if len(completions) == 0 {
		return nil
	}

	head := lineHead(input)
	lines := make([]string, len(completions))
	for i, comp := range completions {
		lines[i] = head + comp.Value
	}
	return lines
}

// lineHead returns input up to and including its last blank.
func lineHead(input string) string {
	if i := strings.LastIndexFunc(input, func(r rune) bool { return r == ' ' || r == '\t' }); i >= 0 {
		return input[:i+1]
	}
	return ""
}

// =============================================================================
// COMMAND COMPLETION
// =============================================================================

// completeCommands returns completions for command names.
func (c *Completer) completeCommands(partial string) []Completion {
	var completions []Completion

	partial = strings.ToLower(partial)

	for _, cmd := range c.registry.All() {
		if cmd.Hidden {
			continue
		}

		// Check main name
		if strings.HasPrefix(strings.ToLower(cmd.Name), partial) {
			score := calculateScore(cmd.Name, partial)
			completions = append(completions, Completion{
				Value:       cmd.Name,
				Display:     cmd.Name,
				Description: cmd.Description,
				Score:       score,
			})
		}

		// Check aliases
		for _, alias := range cmd.Aliases {
			if strings.HasPrefix(strings.ToLower(alias), partial) {
				score := calculateScore(alias, partial)
				completions = append(completions, Completion{
					Value:       alias,
					Display:     alias + " -> " + cmd.Name,
					Description: cmd.Description,
					Score:       score - 10, // Slightly lower score for aliases
				})
			}
		}
	}

	// Sort by score (descending), then alphabetically
	sortCompletions(completions)

	return completions
}

// =============================================================================
// ARGUMENT COMPLETION
// =============================================================================

// completeArg returns completions for a command argument. A trailing file
// argument repeats, as in "/attach a.png b.png".
func (c *Completer) completeArg(cmd *Command, argIndex int, partial string) []Completion {
	if n := len(cmd.Args); argIndex >= n && n > 0 && cmd.Args[n-1].Type == ArgTypeFile {
		argIndex = n - 1
	}
	if argIndex < 0 || argIndex >= len(cmd.Args) {
		return nil
	}

	arg := cmd.Args[argIndex]

	switch arg.Type {
	case ArgTypeSession:
		return c.completeSessions(partial)
	case ArgTypeFile:
		return c.completeFiles(partial)
	case ArgTypeEnum:
		return c.completeEnum(arg.Values, partial)
	default:
		return nil
	}
}

// completeSessions returns completions for session IDs.
func (c *Completer) completeSessions(partial string) []Completion {
	if c.SessionsFn == nil {
		return nil
	}

	sessions := c.SessionsFn()
	var completions []Completion

	partial = strings.ToLower(partial)

	for _, session := range sessions {
		short := storage.ShortID(session.ID)
		idMatch := strings.HasPrefix(short, partial) || strings.HasPrefix(session.ID, partial)
		titleMatch := strings.Contains(strings.ToLower(session.Title), partial)

		if idMatch || titleMatch {
			score := calculateScore(short, partial)
			if titleMatch && !idMatch {
				score -= 5
			}

			display := short
			if session.Title != "" {
				display = short + " - " + truncate(session.Title, 30)
			}

			completions = append(completions, Completion{
				Value:       short,
				Display:     display,
				Description: session.Preview,
				Score:       score,
			})
		}
	}

	sortCompletions(completions)
	return completions
}

// completeFiles returns completions for file paths.
func (c *Completer) completeFiles(partial string) []Completion {
	// Use custom function if provided
	if c.FilesFn != nil {
		paths := c.FilesFn(partial)
		return c.completeFromList(paths, partial)
	}

	// Default file completion
	return c.defaultFileCompletion(partial)
}

// defaultFileCompletion provides basic file path completion.
func (c *Completer) defaultFileCompletion(partial string) []Completion {
	var completions []Completion

	// Handle empty partial
	if partial == "" {
		partial = "."
	}

	// Get the directory and prefix
	dir := filepath.Dir(partial)
	prefix := filepath.Base(partial)
	if strings.HasSuffix(partial, string(os.PathSeparator)) {
		dir = partial
		prefix = ""
	}

	// Read directory
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}

	prefix = strings.ToLower(prefix)

	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasPrefix(strings.ToLower(name), prefix) {
			continue
		}

		// Skip hidden files unless partial starts with .
		if strings.HasPrefix(name, ".") && !strings.HasPrefix(prefix, ".") {
			continue
		}

		path := filepath.Join(dir, name)
		if entry.IsDir() {
			path += string(os.PathSeparator)
		}

		score := calculateScore(name, prefix)
		// Boost directories
		if entry.IsDir() {
			score += 5
		}

		desc := ""
		if info, err := entry.Info(); err == nil {
			if entry.IsDir() {
				desc = "directory"
			} else {
				desc = humanize.IBytes(uint64(info.Size()))
			}
		}

		completions = append(completions, Completion{
			Value:       path,
			Display:     name,
			Description: desc,
			Score:       score,
		})
	}

	sortCompletions(completions)

	// Limit results
	if len(completions) > 20 {
		completions = completions[:20]
	}

	return completions
}

// completeEnum returns completions for enum values.
func (c *Completer) completeEnum(values []string, partial string) []Completion {
	return c.completeFromList(values, partial)
}

// completeFromList returns completions from a list of strings.
func (c *Completer) completeFromList(values []string, partial string) []Completion {
	var completions []Completion

	partial = strings.ToLower(partial)

	for _, value := range values {
		if strings.HasPrefix(strings.ToLower(value), partial) {
			score := calculateScore(value, partial)
			completions = append(completions, Completion{
				Value:       value,
				Display:     value,
				Description: "",
				Score:       score,
			})
		}
	}

	sortCompletions(completions)
	return completions
}

// =============================================================================
// SCORING
// =============================================================================

// calculateScore calculates a match score for completion ranking.
// Higher score = better match.
func calculateScore(value, partial string) int {
	value = strings.ToLower(value)
	partial = strings.ToLower(partial)

	score := 100

	// Exact match
	if value == partial {
		return score + 100
	}

	// Prefix match bonus
	if strings.HasPrefix(value, partial) {
		score += 50
		// Bonus for shorter completions
		score += 20 - len(value)
	}

	// Length penalty
	score -= len(value) / 2

	return score
}

// sortCompletions sorts completions by score (descending), then alphabetically.
func sortCompletions(completions []Completion) {
	sort.Slice(completions, func(i, j int) bool {
		if completions[i].Score != completions[j].Score {
			return completions[i].Score > completions[j].Score
		}
		return completions[i].Value < completions[j].Value
	})
}

// truncate truncates a string to maxLen characters.
// Uses rune-based truncation to handle Unicode correctly.
func truncate(s string, maxLen int) string {
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen-3]) + "..."
}

// =============================================================================
// COMPLETION NAVIGATION
// =============================================================================

// CompletionState holds the state for navigating completions.
type CompletionState struct {
	// Original input before completion
	OriginalInput string

	// Current completions
	Completions []Completion

	// Selected index (-1 for none)
	Selected int

	// Visible indicates if completions should be shown
	Visible bool
}

// NewCompletionState creates a new completion state.
func NewCompletionState() *CompletionState {
	return &CompletionState{
		Selected: -1,
	}
}

// Update updates the completion state with new completions.
func (cs *CompletionState) Update(input string, completions []Completion) {
	cs.OriginalInput = input
	cs.Completions = completions
	cs.Selected = 0 // Changed from -1 to auto-select first
	cs.Visible = len(completions) > 0
}

// Next moves to the next completion.
func (cs *CompletionState) Next() {
	if len(cs.Completions) == 0 {
		return
	}
	cs.Selected = (cs.Selected + 1) % len(cs.Completions)
}

// Prev moves to the previous completion.
func (cs *CompletionState) Prev() {
	if len(cs.Completions) == 0 {
		return
	}
	cs.Selected--
	if cs.Selected < 0 {
		cs.Selected = len(cs.Completions) - 1
	}
}

// Accept returns the selected completion value, or empty if none selected.
func (cs *CompletionState) Accept() string {
	if cs.Selected < 0 || cs.Selected >= len(cs.Completions) {
		if len(cs.Completions) > 0 {
			return cs.Completions[0].Value
		}
		return ""
	}
	return cs.Completions[cs.Selected].Value
}

// Apply returns the original input with its last word replaced by the
// selected completion.
func (cs *CompletionState) Apply() string {
	value := cs.Accept()
	if value == "" {
		return cs.OriginalInput
	}
	return lineHead(cs.OriginalInput) + value
}

// Clear clears the completion state.
func (cs *CompletionState) Clear() {
	cs.OriginalInput = ""
	cs.Completions = nil
	cs.Selected = -1
	cs.Visible = false
}

// GetSelected returns the currently selected completion, or nil.
func (cs *CompletionState) GetSelected() *Completion {
	if cs.Selected < 0 || cs.Selected >= len(cs.Completions) {
		return nil
	}
	return &cs.Completions[cs.Selected]
}
