// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// output.go - JSON and text output helpers.
//
// With --json every command writes exactly one JSONResponse to stdout;
// human-readable messages go to stderr.

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jeranaias/lingshu-tui/internal/ui/styles"
)

// =============================================================================
// JSON RESPONSE
// =============================================================================

// JSONResponse is the envelope of --json output.
type JSONResponse struct {
	// Success indicates whether the command completed successfully
	Success bool `json:"success"`

	// Data contains the command-specific response data
	Data any `json:"data"`

	// Error contains the error message if Success is false, null otherwise
	Error *string `json:"error"`

	// Timestamp is the RFC 3339 time the response was generated
	Timestamp string `json:"timestamp"`

	// Command is the command that was executed
	Command string `json:"command,omitempty"`
}

// NewJSONResponse creates a successful response.
func NewJSONResponse(command string, data any) *JSONResponse {
	return &JSONResponse{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// NewJSONErrorResponse creates an error response.
func NewJSONErrorResponse(command string, err error) *JSONResponse {
	msg := err.Error()
	return &JSONResponse{
		Success:   false,
		Error:     &msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Command:   command,
	}
}

// Write encodes the response, indented, to w.
func (r *JSONResponse) Write(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// =============================================================================
// OUTPUT
// =============================================================================

// Output writes command results in text or JSON form.
type Output struct {
	Out  io.Writer
	Err  io.Writer
	JSON bool

	written *bool
}

// Result runs produce and prints its data as JSON, or lets text print it.
// In JSON mode a failure is also reported in the envelope.
func (o *Output) Result(command string, produce func() (any, error), text func(data any)) error {
	data, err := produce()
	if o.JSON {
		resp := NewJSONResponse(command, data)
		if err != nil {
			resp = NewJSONErrorResponse(command, err)
		}
		if werr := resp.Write(o.Out); werr != nil {
			return werr
		}
		if o.written != nil {
			*o.written = true
		}
		return err
	}
	if err != nil {
		return err
	}
	if text != nil {
		text(data)
	}
	return nil
}

// Printf writes formatted text to stdout.
func (o *Output) Printf(format string, args ...any) {
	fmt.Fprintf(o.Out, format, args...)
}

// Println writes a line to stdout.
func (o *Output) Println(args ...any) {
	fmt.Fprintln(o.Out, args...)
}

// Success reports a completed action on stdout, or on stderr in JSON mode.
func (o *Output) Success(format string, args ...any) {
	w := o.Out
	if o.JSON {
		w = o.Err
	}
	fmt.Fprintf(w, "%s %s\n", SuccessStyle.Render(styles.StatusIndicators.Success), fmt.Sprintf(format, args...))
}

// Warn writes a warning to stderr.
func (o *Output) Warn(format string, args ...any) {
	fmt.Fprintf(o.Err, "%s %s\n", WarningStyle.Render(styles.StatusIndicators.Warning), fmt.Sprintf(format, args...))
}

// Error writes an error and an optional tip to stderr.
func (o *Output) Error(err error) {
	fmt.Fprintf(o.Err, "%s %v\n", ErrorStyle.Render(styles.StatusIndicators.Error), err)
	if tip := errorTip(err); tip != "" {
		fmt.Fprintf(o.Err, "    %s\n", DimStyle.Render(tip))
	}
}
