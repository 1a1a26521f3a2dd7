// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package commands provides the slash commands shared by the TUI and the
// line-mode REPL.
//
// Handlers return a tea.Cmd. The TUI hands it to bubbletea; the REPL calls
// it directly and prints the resulting message.
//
// # Key Types
//
//   - Registry: command definitions and aliases
//   - Parser: splits input and dispatches to handlers
//   - Completer: tab completion for command names and arguments
//   - Context: the controller and options handlers act on
//
// # Usage
//
//	reg := commands.NewRegistry()
//	parser := commands.NewParser(reg)
//	if commands.IsCommand(input) {
//	    if cmd := parser.Dispatch(commands.NewContext(ctrl), input); cmd != nil {
//	        msg := cmd()
//	        // show msg
//	    }
//	}
package commands
