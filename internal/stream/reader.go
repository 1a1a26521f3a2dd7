// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"
)

// =============================================================================
// STREAM READER
// =============================================================================

// Reader pulls bytes from an io.Reader and yields decoded events one at a
// time, preserving server order.
type Reader struct {
	src     io.Reader
	dec     *Decoder
	buf     []byte
	pending []Event
	err     error

	onFirstByte func()
	gotBytes    bool
}

// NewReader creates a reader over r.
func NewReader(r io.Reader, opts ...Option) *Reader {
	o := buildOptions(opts)
	return &Reader{
		src:         r,
		dec:         &Decoder{logger: o.logger},
		buf:         make([]byte, o.readSize),
		onFirstByte: o.onFirstByte,
	}
}

// Next returns the next event. After a terminal event, or when the source
// ends, it returns io.EOF. Read errors from the source are returned as is.
func (r *Reader) Next() (Event, error) {
	for {
		if len(r.pending) > 0 {
			ev := r.pending[0]
			r.pending = r.pending[1:]
			return ev, nil
		}
		if r.dec.Terminated() {
			return Event{}, io.EOF
		}
		if r.err != nil {
			return Event{}, r.err
		}

		n, err := r.src.Read(r.buf)
		if n > 0 {
			if !r.gotBytes {
				r.gotBytes = true
				if r.onFirstByte != nil {
					r.onFirstByte()
				}
			}
			r.pending = append(r.pending, r.dec.Feed(r.buf[:n])...)
		}
		if err != nil {
			r.err = err
		}
	}
}

// Terminated reports whether a terminal event was decoded.
func (r *Reader) Terminated() bool {
	return r.dec.Terminated()
}

// Process reads the stream and calls fn for each event, terminal events
// included. Blocks until a terminal event, the end of the source, a read
// error, or cancellation of ctx.
//
// A source that ends before any terminal event yields ErrIncomplete.
func (r *Reader) Process(ctx context.Context, fn func(Event)) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		ev, err := r.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				if r.Terminated() {
					return nil
				}
				return &ProtocolError{Reason: ReasonIncomplete}
			}
			return err
		}

		fn(ev)
	}
}

// =============================================================================
// ACCUMULATOR
// =============================================================================

// Accumulator folds events into the state of one in-flight response.
type Accumulator struct {
	content       strings.Builder
	correlationID string
	chunks        int
	terminal      Kind
	failure       string

	started    time.Time
	firstChunk time.Duration
}

// NewAccumulator creates an accumulator; timing starts now.
func NewAccumulator() *Accumulator {
	return &Accumulator{started: time.Now()}
}

// Add applies one event. Events after a terminal one are ignored.
func (a *Accumulator) Add(ev Event) {
	if a.terminal != 0 {
		return
	}
	switch ev.Kind {
	case KindSessionBound:
		a.correlationID = ev.CorrelationID
	case KindChunk:
		if a.chunks == 0 {
			a.firstChunk = time.Since(a.started)
		}
		a.chunks++
		a.content.WriteString(ev.Text)
	case KindDone:
		a.terminal = KindDone
	case KindError:
		a.terminal = KindError
		a.failure = ev.Message
	}
}

// Text returns the concatenated chunk text.
func (a *Accumulator) Text() string {
	return a.content.String()
}

// HasText reports whether any chunk text arrived.
func (a *Accumulator) HasText() bool {
	return a.content.Len() > 0
}

// CorrelationID returns the bound correlation id, if any.
func (a *Accumulator) CorrelationID() string {
	return a.correlationID
}

// Chunks returns the number of chunk events applied.
func (a *Accumulator) Chunks() int {
	return a.chunks
}

// Done reports whether the stream completed successfully.
func (a *Accumulator) Done() bool {
	return a.terminal == KindDone
}

// Terminated reports whether any terminal event was applied.
func (a *Accumulator) Terminated() bool {
	return a.terminal != 0
}

// Err returns the server-signalled failure, or nil.
func (a *Accumulator) Err() error {
	if a.terminal != KindError {
		return nil
	}
	return &ProtocolError{Reason: ReasonServer, Message: a.failure, Partial: a.Text()}
}

// TimeToFirstChunk returns the latency of the first chunk, or zero.
func (a *Accumulator) TimeToFirstChunk() time.Duration {
	return a.firstChunk
}

// Elapsed returns the time since the accumulator was created.
func (a *Accumulator) Elapsed() time.Duration {
	return time.Since(a.started)
}
