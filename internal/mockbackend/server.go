// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mockbackend implements an in-process stand-in for the Lingshu
// chat service. It serves the same endpoints with canned behaviour so the
// client can be developed and tested without a GPU.
package mockbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/jeranaias/lingshu-tui/internal/backend"
	"github.com/jeranaias/lingshu-tui/internal/model"
)

// =============================================================================
// TYPES
// =============================================================================

// Request records one chat call as the server saw it.
type Request struct {
	Endpoint  string
	Prompt    string
	Images    []string
	Config    model.GenerationConfig
	SessionID string
}

// Emitter writes one data payload to the stream and flushes it.
type Emitter func(payload map[string]any) error

// Script produces the stream for one request. The default script binds a
// session, echoes the prompt in word chunks and finishes with done.
type Script func(ctx context.Context, req Request, sessionID string, emit Emitter) error

// Option configures a Server.
type Option func(*Server)

// WithModelLoaded sets the initial model state.
func WithModelLoaded(loaded bool) Option {
	return func(s *Server) {
		s.loaded = loaded
		if loaded && s.quant == "" {
			s.quant = string(model.DefaultQuantization)
		}
	}
}

// WithScript replaces the streaming behaviour.
func WithScript(script Script) Option {
	return func(s *Server) {
		s.script = script
	}
}

// WithChunkDelay pauses between chunks of the default script.
func WithChunkDelay(d time.Duration) Option {
	return func(s *Server) {
		s.chunkDelay = d
	}
}

// WithGPU reports a GPU in status replies.
func WithGPU(name string) Option {
	return func(s *Server) {
		s.gpuName = name
	}
}

// =============================================================================
// SERVER
// =============================================================================

// Server is the fake backend. Its zero value is not usable; call New.
type Server struct {
	mu         sync.Mutex
	loaded     bool
	quant      string
	gpuName    string
	chunkDelay time.Duration
	script     Script
	histories  map[string][]string
	requests   []Request
	cleared    []string

	echo *echo.Echo
}

// New creates a server with the model unloaded unless configured otherwise.
func New(opts ...Option) *Server {
	s := &Server{
		histories: make(map[string][]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.script == nil {
		s.script = s.echoScript
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	s.RegisterRoutes(e)
	s.echo = e
	return s
}

// RegisterRoutes registers the backend endpoints on e.
func (s *Server) RegisterRoutes(e *echo.Echo) {
	e.GET(backend.EndpointStatus, s.handleStatus)
	e.POST(backend.EndpointLoadModel, s.handleLoad)
	e.POST(backend.EndpointUnloadModel, s.handleUnload)
	e.POST(backend.EndpointChat, s.handleChat)
	e.POST(backend.EndpointChatStream, s.handleChatStream)
	e.POST(backend.EndpointClearHistory, s.handleClearHistory)
}

// Handler returns the HTTP handler, suitable for httptest.NewServer.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on addr until ctx is cancelled.
func (s *Server) Start(ctx context.Context, addr string) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.echo.Start(addr)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.echo.Shutdown(shutdownCtx)
	}
}

// Requests returns every chat request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Cleared returns the session ids passed to clear_history ("" means all).
func (s *Server) Cleared() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cleared...)
}

// History returns the prompts the server remembers for a session.
func (s *Server) History(sessionID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.histories[sessionID]...)
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) handleStatus(c echo.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := backend.StatusResponse{
		ModelLoaded:  s.loaded,
		GPUAvailable: s.gpuName != "",
		GPUName:      s.gpuName,
	}
	if s.loaded {
		status.Quantization = s.quant
	}
	return c.JSON(http.StatusOK, status)
}

func (s *Server) handleLoad(c echo.Context) error {
	var req backend.LoadModelRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, backend.LoadModelResponse{Error: "invalid request body"})
	}
	quant, err := model.ParseQuantization(string(req.Quantization))
	if err != nil {
		return c.JSON(http.StatusBadRequest, backend.LoadModelResponse{Error: err.Error()})
	}

	s.mu.Lock()
	s.loaded = true
	s.quant = string(quant)
	s.mu.Unlock()

	return c.JSON(http.StatusOK, backend.LoadModelResponse{Success: true, Quantization: string(quant)})
}

func (s *Server) handleUnload(c echo.Context) error {
	s.mu.Lock()
	wasLoaded := s.loaded
	s.loaded = false
	s.quant = ""
	s.mu.Unlock()

	if !wasLoaded {
		return c.JSON(http.StatusOK, backend.ActionResponse{Success: true, Message: "model was not loaded"})
	}
	return c.JSON(http.StatusOK, backend.ActionResponse{Success: true, Message: "model unloaded"})
}

func (s *Server) handleClearHistory(c echo.Context) error {
	var req backend.ClearHistoryRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, backend.ActionResponse{Error: "invalid request body"})
	}

	s.mu.Lock()
	s.cleared = append(s.cleared, req.SessionID)
	if req.SessionID == "" {
		s.histories = make(map[string][]string)
	} else {
		delete(s.histories, req.SessionID)
	}
	s.mu.Unlock()

	return c.JSON(http.StatusOK, backend.ActionResponse{Success: true})
}

func (s *Server) handleChat(c echo.Context) error {
	req, sessionID, ok, err := s.parseChat(c, backend.EndpointChat)
	if !ok {
		return err
	}

	var parts []string
	emit := func(payload map[string]any) error {
		if chunk, ok := payload["chunk"].(string); ok {
			parts = append(parts, chunk)
		}
		return nil
	}
	if err := s.script(c.Request().Context(), req, sessionID, emit); err != nil {
		return c.JSON(http.StatusInternalServerError, backend.ChatResponse{Error: err.Error()})
	}

	return c.JSON(http.StatusOK, backend.ChatResponse{
		Success:   true,
		Response:  strings.Join(parts, ""),
		SessionID: sessionID,
	})
}

func (s *Server) handleChatStream(c echo.Context) error {
	req, sessionID, ok, err := s.parseChat(c, backend.EndpointChatStream)
	if !ok {
		return err
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set("Cache-Control", "no-cache")
	res.Header().Set("Connection", "keep-alive")
	res.WriteHeader(http.StatusOK)

	flusher, ok := res.Writer.(http.Flusher)
	if !ok {
		return fmt.Errorf("streaming not supported")
	}

	emit := func(payload map[string]any) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(res.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	if err := s.script(c.Request().Context(), req, sessionID, emit); err != nil {
		// The client may already be gone; report on a best-effort basis.
		_ = emit(map[string]any{"error": err.Error()})
	}
	return nil
}

// parseChat validates the multipart form shared by both chat endpoints.
// When ok is false the rejection has been written and err is the write error.
func (s *Server) parseChat(c echo.Context, endpoint string) (req Request, sessionID string, ok bool, err error) {
	req = Request{Endpoint: endpoint, Config: model.DefaultGenerationConfig()}

	s.mu.Lock()
	loaded := s.loaded
	s.mu.Unlock()
	if !loaded {
		return req, "", false, c.JSON(http.StatusBadRequest, backend.ChatResponse{Error: "model not loaded"})
	}

	req.Prompt = strings.TrimSpace(c.FormValue(backend.FieldPrompt))
	if req.Prompt == "" {
		return req, "", false, c.JSON(http.StatusBadRequest, backend.ChatResponse{Error: "prompt must not be empty"})
	}

	if raw := c.FormValue(backend.FieldConfig); raw != "" {
		if err := json.Unmarshal([]byte(raw), &req.Config); err != nil {
			return req, "", false, c.JSON(http.StatusBadRequest, backend.ChatResponse{Error: "invalid config"})
		}
	}

	if form, err := c.MultipartForm(); err == nil {
		for _, fh := range form.File[backend.FieldImages] {
			req.Images = append(req.Images, fh.Filename)
		}
	}

	req.SessionID = c.FormValue(backend.FieldSessionID)
	sessionID = req.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.histories[sessionID] = append(s.histories[sessionID], req.Prompt)
	s.mu.Unlock()

	return req, sessionID, true, nil
}

// echoScript is the default stream: bind, echo the prompt word by word, done.
func (s *Server) echoScript(ctx context.Context, req Request, sessionID string, emit Emitter) error {
	if err := emit(map[string]any{"session_id": sessionID}); err != nil {
		return err
	}

	reply := fmt.Sprintf("You said: %s", req.Prompt)
	if n := len(req.Images); n > 0 {
		reply += fmt.Sprintf(" (with %d image(s))", n)
	}

	for _, word := range strings.SplitAfter(reply, " ") {
		if s.chunkDelay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(s.chunkDelay):
			}
		}
		if err := emit(map[string]any{"chunk": word}); err != nil {
			return err
		}
	}

	return emit(map[string]any{"done": true})
}
