// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package diff describes changes between two versions of a message.
//
// Inline marks word-level changes within a short text, which is how an
// edit is previewed before a conversation is regenerated. Compute builds
// line hunks for longer texts and FormatUnified prints them in unified
// diff form.
//
//	fmt.Println(diff.Inline("What is a nodule?", "What is a lung nodule?"))
//	// What is a {+lung +}nodule?
package diff
