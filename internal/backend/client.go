// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package backend provides the HTTP client for the Lingshu chat service.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/lingshu-tui/internal/logging"
	"github.com/jeranaias/lingshu-tui/internal/model"
)

// maxErrorBody bounds how much of an error reply is read.
const maxErrorBody = 64 * 1024

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the backend client.
type ClientConfig struct {
	// BaseURL is the backend base URL (default: http://127.0.0.1:5000)
	BaseURL string

	// Timeout for simple request/response calls (default: 30s)
	Timeout time.Duration

	// LoadTimeout for model load/unload, which can take minutes (default: 10m)
	LoadTimeout time.Duration

	// UserAgent sent with every request.
	UserAgent string

	// Logger receives request diagnostics (default: logging.With("backend")).
	Logger *log.Logger
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		BaseURL:     "http://127.0.0.1:5000",
		Timeout:     30 * time.Second,
		LoadTimeout: 10 * time.Minute,
		UserAgent:   "lingshu-tui",
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client handles communication with the backend.
//
// Every call is a single attempt; nothing is retried. The Client is safe for
// concurrent use.
//
// Example:
//
//	client := backend.NewClient(nil)
//	status, err := client.Status(ctx)
//	if err != nil {
//	    return err
//	}
//	fmt.Println("model loaded:", status.ModelLoaded)
type Client struct {
	config     *ClientConfig
	httpClient *http.Client
	logger     *log.Logger
}

// NewClient creates a backend client. A nil config uses DefaultConfig.
func NewClient(config *ClientConfig) *Client {
	if config == nil {
		config = DefaultConfig()
	}

	// Fill in defaults for any zero values
	defaults := DefaultConfig()
	if config.BaseURL == "" {
		config.BaseURL = defaults.BaseURL
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")
	if config.Timeout == 0 {
		config.Timeout = defaults.Timeout
	}
	if config.LoadTimeout == 0 {
		config.LoadTimeout = defaults.LoadTimeout
	}
	if config.UserAgent == "" {
		config.UserAgent = defaults.UserAgent
	}

	logger := config.Logger
	if logger == nil {
		logger = logging.With("backend")
	}

	return &Client{
		config: config,
		// No client timeout: deadlines come from contexts so streams can
		// run as long as the model keeps generating.
		httpClient: &http.Client{},
		logger:     logger,
	}
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.config.BaseURL
}

// =============================================================================
// SIMPLE CALLS
// =============================================================================

// Send performs a JSON request/response call and returns the raw reply.
// A nil payload sends no body.
func (c *Client) Send(ctx context.Context, method, endpoint string, payload any) (json.RawMessage, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()
	return c.send(ctx, method, endpoint, payload)
}

func (c *Client) send(ctx context.Context, method, endpoint string, payload any) (json.RawMessage, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, &TransportError{Kind: KindInvalidResponse, Message: "failed to marshal request", Cause: err}
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+endpoint, body)
	if err != nil {
		return nil, &TransportError{Kind: KindConnection, Message: "failed to create request", Cause: err}
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.do(req, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, classify(err, nil)
	}
	if !json.Valid(data) {
		return nil, &TransportError{
			Kind:    KindInvalidResponse,
			Status:  resp.StatusCode,
			Message: "backend returned invalid JSON",
		}
	}
	return json.RawMessage(data), nil
}

// sendJSON performs a call and decodes the reply into out.
func (c *Client) sendJSON(ctx context.Context, method, endpoint string, payload, out any) error {
	raw, err := c.send(ctx, method, endpoint, payload)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &TransportError{Kind: KindInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	return nil
}

// Status reports whether a model is loaded and what hardware is in use.
func (c *Client) Status(ctx context.Context) (*StatusResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var out StatusResponse
	if err := c.sendJSON(ctx, http.MethodGet, EndpointStatus, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// LoadModel asks the backend to load the model with the given quantization.
func (c *Client) LoadModel(ctx context.Context, quant model.Quantization) (*LoadModelResponse, error) {
	if quant == "" {
		quant = model.DefaultQuantization
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.LoadTimeout)
	defer cancel()

	var out LoadModelResponse
	if err := c.sendJSON(ctx, http.MethodPost, EndpointLoadModel, LoadModelRequest{Quantization: quant}, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return &out, rejected(out.Error, "model load failed")
	}
	return &out, nil
}

// UnloadModel asks the backend to free the model.
func (c *Client) UnloadModel(ctx context.Context) (*ActionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.config.LoadTimeout)
	defer cancel()

	var out ActionResponse
	if err := c.sendJSON(ctx, http.MethodPost, EndpointUnloadModel, struct{}{}, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return &out, rejected(out.Error, "model unload failed")
	}
	return &out, nil
}

// ClearHistory drops the server-side context bound to correlationID.
// An empty correlationID clears every server-side conversation.
func (c *Client) ClearHistory(ctx context.Context, correlationID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	var out ActionResponse
	if err := c.sendJSON(ctx, http.MethodPost, EndpointClearHistory, ClearHistoryRequest{SessionID: correlationID}, &out); err != nil {
		return err
	}
	if !out.Success {
		return rejected(out.Error, "clearing history failed")
	}
	return nil
}

// =============================================================================
// CHAT
// =============================================================================

// Chat sends a prompt and waits for the complete answer. The handle's
// context bounds the call; cancelling it aborts the request.
func (c *Client) Chat(h *CancelHandle, req ChatRequest) (*ChatResponse, error) {
	httpReq, err := c.newChatRequest(h.Context(), EndpointChat, req)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(httpReq, h)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out ChatResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		if h.IsCancelled() {
			return nil, ErrCancelled
		}
		return nil, &TransportError{Kind: KindInvalidResponse, Message: "failed to decode response", Cause: err}
	}
	if !out.Success {
		return &out, rejected(out.Error, "chat request failed")
	}
	return &out, nil
}

// OpenStream starts a streaming chat call and returns the raw response body.
//
// Cancelling h closes the connection: pending and later reads fail with
// ErrCancelled and no further bytes are delivered. Any partially decoded
// state belongs to the caller. The caller must Close the returned body.
func (c *Client) OpenStream(h *CancelHandle, req ChatRequest) (io.ReadCloser, error) {
	httpReq, err := c.newChatRequest(h.Context(), EndpointChatStream, req)
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Accept", "text/event-stream")
	httpReq.Header.Set("Cache-Control", "no-cache")

	resp, err := c.do(httpReq, h)
	if err != nil {
		return nil, err
	}

	c.logger.Debug("stream opened", "endpoint", EndpointChatStream, "status", resp.StatusCode)
	return &streamBody{body: resp.Body, handle: h}, nil
}

func (c *Client) newChatRequest(ctx context.Context, endpoint string, req ChatRequest) (*http.Request, error) {
	body, contentType, err := encodeChatRequest(req)
	if err != nil {
		return nil, &TransportError{Kind: KindInvalidResponse, Message: "failed to encode request", Cause: err}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+endpoint, body)
	if err != nil {
		return nil, &TransportError{Kind: KindConnection, Message: "failed to create request", Cause: err}
	}
	httpReq.Header.Set("Content-Type", contentType)
	return httpReq, nil
}

// =============================================================================
// REQUEST EXECUTION
// =============================================================================

// do executes req and converts failures and non-2xx replies into
// TransportErrors. On success the caller owns resp.Body.
func (c *Client) do(req *http.Request, h *CancelHandle) (*http.Response, error) {
	req.Header.Set("User-Agent", c.config.UserAgent)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Debug("request failed", "method", req.Method, "path", req.URL.Path, "err", err)
		return nil, classify(err, h)
	}

	c.logger.Debug("request", "method", req.Method, "path", req.URL.Path,
		"status", resp.StatusCode, "elapsed", time.Since(start).Round(time.Millisecond))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, statusError(resp)
	}
	return resp, nil
}

// statusError builds the error for a non-2xx reply, keeping the server's
// message when the body carries one.
func statusError(resp *http.Response) error {
	te := &TransportError{
		Kind:    KindStatus,
		Status:  resp.StatusCode,
		Message: "request failed: " + resp.Status,
	}

	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body errorBody
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		te.ServerMessage = body.Error
	}
	return te
}

// classify maps low-level errors onto transport error kinds.
func classify(err error, h *CancelHandle) error {
	switch {
	case h != nil && h.IsCancelled():
		return ErrCancelled
	case errors.Is(err, context.DeadlineExceeded):
		return ErrTimeout
	case errors.Is(err, context.Canceled):
		return &TransportError{Kind: KindCancelled, Message: "request cancelled", Cause: err}
	default:
		return &TransportError{Kind: KindConnection, Message: "backend is not reachable", Cause: err}
	}
}

func rejected(serverMessage, fallback string) error {
	return &TransportError{
		Kind:          KindRejected,
		Status:        http.StatusOK,
		ServerMessage: serverMessage,
		Message:       fallback,
	}
}

// =============================================================================
// STREAM BODY
// =============================================================================

// streamBody guards the response body so nothing is delivered once the
// handle is cancelled.
type streamBody struct {
	body   io.ReadCloser
	handle *CancelHandle
}

func (s *streamBody) Read(p []byte) (int, error) {
	if s.handle.IsCancelled() {
		return 0, ErrCancelled
	}
	n, err := s.body.Read(p)
	if s.handle.IsCancelled() {
		return 0, ErrCancelled
	}
	if err != nil && !errors.Is(err, io.EOF) {
		return n, classify(err, s.handle)
	}
	return n, err
}

func (s *streamBody) Close() error {
	return s.body.Close()
}
