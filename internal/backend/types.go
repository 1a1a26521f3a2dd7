// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import "github.com/jeranaias/lingshu-tui/internal/model"

// Endpoint paths exposed by the backend.
const (
	EndpointStatus       = "/api/status"
	EndpointLoadModel    = "/api/load_model"
	EndpointUnloadModel  = "/api/unload_model"
	EndpointChat         = "/api/chat"
	EndpointChatStream   = "/api/chat_stream"
	EndpointClearHistory = "/api/clear_history"
)

// Multipart field names used by the chat endpoints.
const (
	FieldPrompt    = "prompt"
	FieldImages    = "images"
	FieldConfig    = "config"
	FieldSessionID = "session_id"
)

// =============================================================================
// STATUS
// =============================================================================

// StatusResponse reports what the backend has loaded.
type StatusResponse struct {
	ModelLoaded  bool   `json:"model_loaded"`
	Quantization string `json:"quantization,omitempty"`
	GPUAvailable bool   `json:"gpu_available,omitempty"`
	GPUName      string `json:"gpu_name,omitempty"`
}

// =============================================================================
// MODEL LIFECYCLE
// =============================================================================

// LoadModelRequest asks the backend to load the model.
type LoadModelRequest struct {
	Quantization model.Quantization `json:"quantization"`
}

// LoadModelResponse is returned by the load endpoint.
type LoadModelResponse struct {
	Success      bool   `json:"success"`
	Quantization string `json:"quantization,omitempty"`
	Error        string `json:"error,omitempty"`
}

// ActionResponse is the generic {success, error} reply.
type ActionResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// =============================================================================
// CHAT
// =============================================================================

// ChatRequest is the multipart payload for both chat endpoints.
type ChatRequest struct {
	Prompt string

	// Images are uploaded as repeated "images" file parts.
	Images []model.Attachment

	Config model.GenerationConfig

	// SessionID is the correlation id; omitted when empty.
	SessionID string
}

// ChatResponse is returned by the non-streaming chat endpoint.
type ChatResponse struct {
	Success   bool   `json:"success"`
	Response  string `json:"response"`
	SessionID string `json:"session_id,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ClearHistoryRequest asks the backend to drop server-side context.
// An empty SessionID clears everything.
type ClearHistoryRequest struct {
	SessionID string `json:"session_id,omitempty"`
}

// errorBody is the shape of error replies.
type errorBody struct {
	Error string `json:"error"`
}
