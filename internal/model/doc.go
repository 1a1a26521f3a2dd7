// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model contains the data structures for chat sessions and messages.
//
// This package defines the core domain types shared by the transport, storage
// and controller layers.
//
// # Key Types
//
//   - ChatSession: an ordered message log bound to a backend correlation id
//   - Message: a single user or assistant turn with optional image attachments
//   - GenerationConfig: sampling parameters passed through to the backend
//   - ValidationError: locally detected problems that never reach the backend
//
// # Usage
//
//	s := model.NewChatSession()
//	s.Append(model.NewUserMessage("describe this image"))
//	fmt.Println(s.DisplayTitle())
package model
