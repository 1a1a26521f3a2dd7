// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the lingshu command line.
//
// The root command starts the full-screen chat. The other commands talk to
// the same backend and the same local session store without the TUI:
//
//	lingshu                          full-screen chat (default)
//	lingshu chat                     line-oriented chat with history
//	lingshu ask "what is this" -i x.png
//	lingshu sessions list|show|rename|delete|clear|export|history|restore
//	lingshu status
//	lingshu model status|load|unload
//	lingshu settings show|set
//	lingshu config show|get|set|reset|path|keys
//	lingshu version
//
// Every command loads an optional .env file, then ~/.lingshu/config.toml,
// then LINGSHU_* environment overrides. Commands that print data accept
// --json and write a JSONResponse envelope to stdout.
package cli
