// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/lingshu-tui/internal/logging"
)

func newTestDecoder() *Decoder {
	return NewDecoder(WithLogger(logging.Discard()))
}

func feedAll(d *Decoder, parts ...string) []Event {
	var out []Event
	for _, p := range parts {
		out = append(out, d.Feed([]byte(p))...)
	}
	return out
}

// =============================================================================
// DECODER TESTS
// =============================================================================

func TestDecoder_BasicSequence(t *testing.T) {
	input := "data: {\"session_id\": \"s1\"}\n" +
		"data: {\"chunk\": \"Hel\"}\n" +
		"data: {\"chunk\": \"lo\"}\n" +
		"data: {\"done\": true}\n"

	events := feedAll(newTestDecoder(), input)

	want := []Event{SessionBound("s1"), Chunk("Hel"), Chunk("lo"), Done()}
	assert.Equal(t, want, events)
}

func TestDecoder_ConcatenationAndSingleTerminal(t *testing.T) {
	chunks := []string{"The ", "lesion ", "is ", "in the ", "left lobe", " 肺部", "."}

	var sb strings.Builder
	for _, c := range chunks {
		sb.WriteString("data: {\"chunk\": \"" + c + "\"}\n")
	}
	sb.WriteString("data: {\"done\": true}\n")
	// Anything after the terminal event must be ignored.
	sb.WriteString("data: {\"chunk\": \"late\"}\n")
	sb.WriteString("data: {\"error\": \"late\"}\n")

	events := feedAll(newTestDecoder(), sb.String())

	var text strings.Builder
	terminals := 0
	for i, ev := range events {
		switch {
		case ev.Kind == KindChunk:
			if terminals > 0 {
				t.Errorf("chunk after terminal at %d", i)
			}
			text.WriteString(ev.Text)
		case ev.IsTerminal():
			terminals++
		}
	}

	assert.Equal(t, strings.Join(chunks, ""), text.String())
	assert.Equal(t, 1, terminals)
	assert.True(t, events[len(events)-1].IsTerminal())
}

func TestDecoder_SplitAtEveryBoundary(t *testing.T) {
	line := "data: {\"chunk\": \"héllo wörld 你好\"}\n"
	whole := feedAll(newTestDecoder(), line, "data: {\"done\": true}\n")

	for cut := 0; cut <= len(line); cut++ {
		d := newTestDecoder()
		got := feedAll(d, line[:cut], line[cut:], "data: {\"done\": true}\n")
		if !assert.Equal(t, whole, got, "split at byte %d", cut) {
			return
		}
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	input := "data: {\"session_id\": \"abc\"}\ndata: {\"chunk\": \"x\"}\ndata: {\"error\": \"boom\"}\n"
	d := newTestDecoder()

	var events []Event
	for i := 0; i < len(input); i++ {
		events = append(events, d.Feed([]byte{input[i]})...)
	}

	assert.Equal(t, []Event{SessionBound("abc"), Chunk("x"), Failure("boom")}, events)
	assert.True(t, d.Terminated())
}

func TestDecoder_HoldsBackIncompleteLine(t *testing.T) {
	d := newTestDecoder()

	events := d.Feed([]byte("data: {\"chunk\": \"a\"}\ndata: {\"chu"))
	require.Len(t, events, 1)
	assert.Equal(t, len("data: {\"chu"), d.Pending())

	events = d.Feed([]byte("nk\": \"b\"}\n"))
	assert.Equal(t, []Event{Chunk("b")}, events)
	assert.Equal(t, 0, d.Pending())
}

func TestDecoder_MalformedPayloadSkipped(t *testing.T) {
	d := newTestDecoder()
	events := feedAll(d,
		"data: {\"chunk\": \"ok\"}\n",
		"data: {not json}\n",
		"data: {\"chunk\": \"still\"}\n",
		"data: {\"done\": true}\n",
	)

	assert.Equal(t, []Event{Chunk("ok"), Chunk("still"), Done()}, events)
	assert.Equal(t, 1, d.Malformed())
}

func TestDecoder_IgnoresOtherLines(t *testing.T) {
	events := feedAll(newTestDecoder(),
		": keep-alive\n",
		"event: message\n",
		"\n",
		"data:{\"chunk\": \"no space\"}\n",
		"data: {\"chunk\": \"crlf\"}\r\n",
		"data: {\"unrelated\": 1}\n",
	)

	assert.Equal(t, []Event{Chunk("crlf")}, events)
}

func TestDecoder_FieldPrecedenceAndTruthiness(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []Event
	}{
		{"session wins over chunk", `{"session_id": "s", "chunk": "c"}`, []Event{SessionBound("s")}},
		{"chunk wins over done", `{"chunk": "c", "done": true}`, []Event{Chunk("c")}},
		{"empty chunk falls through to done", `{"chunk": "", "done": true}`, []Event{Done()}},
		{"done false ignored", `{"done": false}`, nil},
		{"null session ignored", `{"session_id": null, "chunk": "c"}`, []Event{Chunk("c")}},
		{"numeric session id", `{"session_id": 42}`, []Event{SessionBound("42")}},
		{"zero done ignored", `{"done": 0}`, nil},
		{"error message", `{"error": "CUDA out of memory"}`, []Event{Failure("CUDA out of memory")}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := feedAll(newTestDecoder(), "data: "+tc.payload+"\n")
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestDecoder_NoTerminalWithoutNewline(t *testing.T) {
	d := newTestDecoder()
	events := d.Feed([]byte("data: {\"done\": true}"))

	assert.Empty(t, events)
	assert.False(t, d.Terminated())
}

// =============================================================================
// READER TESTS
// =============================================================================

func TestReader_OneByteReads(t *testing.T) {
	input := "data: {\"session_id\": \"s1\"}\ndata: {\"chunk\": \"Hel\"}\ndata: {\"chunk\": \"lo\"}\ndata: {\"done\": true}\n"

	firstByte := 0
	r := NewReader(iotest.OneByteReader(strings.NewReader(input)),
		WithLogger(logging.Discard()),
		WithFirstByte(func() { firstByte++ }))

	acc := NewAccumulator()
	err := r.Process(context.Background(), acc.Add)

	require.NoError(t, err)
	assert.Equal(t, 1, firstByte)
	assert.Equal(t, "Hello", acc.Text())
	assert.Equal(t, "s1", acc.CorrelationID())
	assert.True(t, acc.Done())
	assert.Equal(t, 2, acc.Chunks())
}

func TestReader_IncompleteStream(t *testing.T) {
	r := NewReader(strings.NewReader("data: {\"chunk\": \"partial\"}\n"), WithLogger(logging.Discard()))

	err := r.Process(context.Background(), func(Event) {})

	assert.True(t, errors.Is(err, ErrIncomplete), "got %v", err)
	assert.True(t, IsProtocolError(err))
}

func TestReader_ReadErrorSurfaces(t *testing.T) {
	boom := errors.New("connection reset")
	src := io.MultiReader(strings.NewReader("data: {\"chunk\": \"a\"}\n"), iotest.ErrReader(boom))
	r := NewReader(src, WithLogger(logging.Discard()))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, Chunk("a"), ev)

	_, err = r.Next()
	assert.ErrorIs(t, err, boom)
}

func TestReader_StopsAfterTerminal(t *testing.T) {
	r := NewReader(strings.NewReader("data: {\"error\": \"bad\"}\ndata: {\"chunk\": \"x\"}\n"), WithLogger(logging.Discard()))

	ev, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, KindError, ev.Kind)

	_, err = r.Next()
	assert.Equal(t, io.EOF, err)
}

func TestReader_ProcessHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := NewReader(strings.NewReader("data: {\"chunk\": \"a\"}\n"), WithLogger(logging.Discard()))
	err := r.Process(ctx, func(Event) { t.Error("callback after cancel") })

	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// ACCUMULATOR TESTS
// =============================================================================

func TestAccumulator_ServerError(t *testing.T) {
	acc := NewAccumulator()
	acc.Add(Chunk("par"))
	acc.Add(Failure("model crashed"))
	acc.Add(Chunk("ignored"))

	assert.Equal(t, "par", acc.Text())
	assert.False(t, acc.Done())
	assert.True(t, acc.Terminated())

	err := acc.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrServer)
	assert.Equal(t, "model crashed", err.Error())
}
