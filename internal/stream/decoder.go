// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"encoding/json"
	"strconv"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/lingshu-tui/internal/logging"
	"github.com/jeranaias/lingshu-tui/internal/util"
)

// Field names carried by data payloads, checked in this order.
const (
	fieldSessionID = "session_id"
	fieldChunk     = "chunk"
	fieldDone      = "done"
	fieldError     = "error"
)

var dataPrefix = []byte("data: ")

// =============================================================================
// OPTIONS
// =============================================================================

type options struct {
	logger      *log.Logger
	readSize    int
	onFirstByte func()
}

// Option configures a Decoder or Reader.
type Option func(*options)

// WithLogger sets the logger used to report skipped payloads.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithReadSize sets how many bytes a Reader pulls per read (default 4 KiB).
func WithReadSize(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.readSize = n
		}
	}
}

// WithFirstByte registers a hook run once, when the first byte arrives.
func WithFirstByte(fn func()) Option {
	return func(o *options) {
		o.onFirstByte = fn
	}
}

func buildOptions(opts []Option) options {
	o := options{readSize: 4096}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.With("stream")
	}
	return o
}

// =============================================================================
// DECODER
// =============================================================================

// Decoder turns newline-delimited "data: {...}" records into Events.
//
// Bytes may arrive split at any boundary; the trailing incomplete line is
// held back until its newline arrives. After a terminal event the decoder
// ignores all further input.
//
// A Decoder is not safe for concurrent use.
type Decoder struct {
	buf        []byte
	terminated bool
	malformed  int
	logger     *log.Logger
}

// NewDecoder creates a decoder.
func NewDecoder(opts ...Option) *Decoder {
	o := buildOptions(opts)
	return &Decoder{logger: o.logger}
}

// Feed appends p to the buffer and returns the events decoded from every
// complete line, in arrival order.
func (d *Decoder) Feed(p []byte) []Event {
	if d.terminated {
		return nil
	}
	d.buf = append(d.buf, p...)

	var events []Event
	start := 0
	for !d.terminated {
		i := bytes.IndexByte(d.buf[start:], '\n')
		if i < 0 {
			break
		}
		line := d.buf[start : start+i]
		start += i + 1

		ev, ok := d.decodeLine(line)
		if !ok {
			continue
		}
		events = append(events, ev)
		if ev.IsTerminal() {
			d.terminated = true
		}
	}

	if d.terminated {
		d.buf = nil
		return events
	}

	n := copy(d.buf, d.buf[start:])
	d.buf = d.buf[:n]
	return events
}

// Terminated reports whether a terminal event has been emitted.
func (d *Decoder) Terminated() bool {
	return d.terminated
}

// Pending returns the number of buffered bytes waiting for a newline.
func (d *Decoder) Pending() int {
	return len(d.buf)
}

// Malformed returns how many data payloads were skipped as unparseable.
func (d *Decoder) Malformed() int {
	return d.malformed
}

// decodeLine converts one complete line. ok is false for lines that carry
// no event.
func (d *Decoder) decodeLine(line []byte) (Event, bool) {
	line = bytes.TrimSuffix(line, []byte("\r"))
	if !bytes.HasPrefix(line, dataPrefix) {
		return Event{}, false
	}
	payload := line[len(dataPrefix):]

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		d.malformed++
		d.logger.Warn("skipping malformed stream payload",
			"err", err,
			"payload", util.TruncateRunes(string(payload), 120))
		return Event{}, false
	}

	switch {
	case truthy(fields[fieldSessionID]):
		return SessionBound(text(fields[fieldSessionID])), true
	case truthy(fields[fieldChunk]):
		return Chunk(text(fields[fieldChunk])), true
	case truthy(fields[fieldDone]):
		return Done(), true
	case truthy(fields[fieldError]):
		return Failure(text(fields[fieldError])), true
	}

	d.logger.Debug("ignoring stream payload without known fields", "payload", util.TruncateRunes(string(payload), 120))
	return Event{}, false
}

// truthy reports whether a JSON value counts as present: empty strings,
// false, null and zero do not.
func truthy(raw json.RawMessage) bool {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return false
	}
	switch string(raw) {
	case "null", "false", `""`:
		return false
	}
	if c := raw[0]; c == '-' || (c >= '0' && c <= '9') {
		f, err := strconv.ParseFloat(string(raw), 64)
		return err != nil || f != 0
	}
	return true
}

// text renders a JSON value as display text. Strings are unquoted; anything
// else keeps its JSON form.
func text(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return string(bytes.TrimSpace(raw))
}
