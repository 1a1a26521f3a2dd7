// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"fmt"
	"strings"
	"unicode"

	tea "github.com/charmbracelet/bubbletea"
)

// =============================================================================
// PARSER
// =============================================================================

// Line is a slash command split into its parts.
type Line struct {
	// Name is the command as typed, alias included (e.g. "/s").
	Name string

	// Command is the registered command, nil when Name is unknown.
	Command *Command

	// Args holds one entry per argument. A trailing free-text argument
	// such as the text of /edit keeps the rest of the line verbatim.
	Args []string
}

// Parser turns input lines into handler commands.
type Parser struct {
	registry *Registry
}

// NewParser creates a parser over registry.
func NewParser(registry *Registry) *Parser {
	return &Parser{registry: registry}
}

// Parse splits a slash command line. ok is false for chat text.
func (p *Parser) Parse(input string) (line Line, ok bool) {
	input = strings.TrimSpace(input)
	if !IsCommand(input) {
		return Line{}, false
	}

	name, rest := cutName(input)
	line = Line{Name: name, Command: p.registry.Get(name)}
	line.Args = splitArgs(rest, freeTextAt(line.Command))
	return line, true
}

// Dispatch parses input and returns the handler's command. Chat text
// yields nil; unknown commands and bad arguments yield an ErrorMsg.
func (p *Parser) Dispatch(ctx *Context, input string) tea.Cmd {
	line, ok := p.Parse(input)
	if !ok {
		return nil
	}
	if line.Command == nil {
		return func() tea.Msg {
			return ErrorMsg{
				Title:   "Unknown command",
				Message: fmt.Sprintf("%s is not a command", line.Name),
				Tip:     "Type /help to see available commands",
			}
		}
	}
	if err := ValidateArgs(line.Command, line.Args); err != nil {
		usage := line.Command.Usage
		return func() tea.Msg {
			return ErrorMsg{Title: "Invalid arguments", Message: err.Error(), Tip: "Usage: " + usage, Err: err}
		}
	}
	if line.Command.Handler == nil {
		return nil
	}
	return line.Command.Handler(ctx, line.Args)
}

// IsCommand reports whether input is a slash command rather than a message.
func IsCommand(input string) bool {
	return strings.HasPrefix(strings.TrimSpace(input), "/")
}

// =============================================================================
// TOKENIZER
// =============================================================================

// cutName splits "/name args..." at the first blank. rest keeps its
// leading blank so callers can tell "/set" from "/set ".
func cutName(input string) (name, rest string) {
	if i := strings.IndexFunc(input, unicode.IsSpace); i >= 0 {
		return input[:i], input[i:]
	}
	return input, ""
}

// freeTextAt returns the index of cmd's trailing free-text argument, or -1.
func freeTextAt(cmd *Command) int {
	if cmd == nil || len(cmd.Args) == 0 {
		return -1
	}
	last := len(cmd.Args) - 1
	if cmd.Args[last].Type != ArgTypeString {
		return -1
	}
	return last
}

// splitArgs splits s into arguments. From index freeAt on, the remainder
// is one argument taken as typed, so apostrophes in prose survive. A
// negative freeAt tokenizes everything.
func splitArgs(s string, freeAt int) []string {
	var args []string
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		if s == "" {
			return args
		}
		if len(args) == freeAt {
			return append(args, unquote(strings.TrimRightFunc(s, unicode.IsSpace)))
		}
		var tok string
		tok, s = nextToken(s)
		args = append(args, tok)
	}
}

// nextToken reads one argument off the front of s. Single or double quotes
// group words and are dropped. Inside quotes a backslash escapes the quote
// character or another backslash.
func nextToken(s string) (tok, rest string) {
	var b strings.Builder
	var quote rune
	escaped := false
	for i, r := range s {
		switch {
		case escaped:
			if r != quote && r != '\\' {
				b.WriteRune('\\')
			}
			b.WriteRune(r)
			escaped = false
		case quote != 0 && r == '\\':
			escaped = true
		case quote != 0 && r == quote:
			quote = 0
		case quote == 0 && (r == '"' || r == '\''):
			quote = r
		case quote == 0 && unicode.IsSpace(r):
			return b.String(), s[i:]
		default:
			b.WriteRune(r)
		}
	}
	if escaped {
		b.WriteRune('\\')
	}
	return b.String(), ""
}

// unquote strips one pair of matching outer quotes.
func unquote(s string) string {
	if len(s) >= 2 && (s[0] == '"' || s[0] == '\'') && s[len(s)-1] == s[0] {
		return s[1 : len(s)-1]
	}
	return s
}

// =============================================================================
// VALIDATION
// =============================================================================

// ArgError reports a missing or invalid slash command argument.
type ArgError struct {
	Command string
	Arg     string
	Got     string // empty when the argument is missing
	Allowed []string
}

func (e *ArgError) Error() string {
	if e.Got == "" {
		return fmt.Sprintf("%s needs <%s>", e.Command, e.Arg)
	}
	if len(e.Allowed) == 0 {
		return fmt.Sprintf("%s: %q is not a valid %s", e.Command, e.Got, e.Arg)
	}
	return fmt.Sprintf("%s: %q is not a valid %s, use one of %s",
		e.Command, e.Got, e.Arg, strings.Join(e.Allowed, ", "))
}

// ValidateArgs checks that cmd's required arguments are present and that
// enum values are known, ignoring case.
func ValidateArgs(cmd *Command, args []string) error {
	if cmd == nil {
		return nil
	}
	for i, def := range cmd.Args {
		if i >= len(args) {
			if def.Required {
				return &ArgError{Command: cmd.Name, Arg: def.Name}
			}
			continue
		}
		if def.Type == ArgTypeEnum && len(def.Values) > 0 && !containsFold(def.Values, args[i]) {
			return &ArgError{Command: cmd.Name, Arg: def.Name, Got: args[i], Allowed: def.Values}
		}
	}
	return nil
}

func containsFold(values []string, v string) bool {
	for _, candidate := range values {
		if strings.EqualFold(candidate, v) {
			return true
		}
	}
	return false
}
