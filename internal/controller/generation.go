// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"errors"
	"io"
	"time"

	"github.com/jeranaias/lingshu-tui/internal/backend"
	"github.com/jeranaias/lingshu-tui/internal/model"
	"github.com/jeranaias/lingshu-tui/internal/storage"
	"github.com/jeranaias/lingshu-tui/internal/stream"
)

// =============================================================================
// GENERATION RUN
// =============================================================================

// run performs the request for a reserved generation and commits the
// outcome. It always releases the in-flight slot.
func (c *Controller) run(gen *generation, prompt string, images []model.Attachment, correlationID string) (*Result, error) {
	c.render()

	req := backend.ChatRequest{
		Prompt:    prompt,
		Images:    images,
		Config:    c.store.Settings().Generation(),
		SessionID: correlationID,
	}
	c.logger.Debug("generation started",
		"session", gen.sessionID, "stream", c.stream, "images", len(images), "correlation_id", correlationID)

	var res *Result
	if c.stream {
		res = c.runStream(gen, req)
	} else {
		res = c.runChat(gen, req)
	}
	res.SessionID = gen.sessionID

	c.commit(res)
	c.finish(gen, res.State)
	c.report(res)

	if res.State == StateFailed {
		return res, res.Err
	}
	return res, nil
}

// runStream consumes the streaming endpoint event by event.
func (c *Controller) runStream(gen *generation, req backend.ChatRequest) *Result {
	acc := stream.NewAccumulator()

	body, err := c.transport.OpenStream(gen.handle, req)
	if err != nil {
		if gen.handle.IsCancelled() {
			return outcome(StateAborted, acc, nil)
		}
		return outcome(StateFailed, acc, err)
	}
	defer body.Close()

	reader := stream.NewReader(body,
		stream.WithLogger(c.logger),
		stream.WithFirstByte(func() { c.setState(gen, StateStreaming) }),
	)

	for {
		if gen.handle.IsCancelled() {
			return outcome(StateAborted, acc, nil)
		}

		ev, err := reader.Next()
		if err != nil {
			switch {
			case gen.handle.IsCancelled() || backend.IsCancelled(err):
				return outcome(StateAborted, acc, nil)
			case errors.Is(err, io.EOF):
				return outcome(StateFailed, acc, &stream.ProtocolError{Reason: stream.ReasonIncomplete, Partial: acc.Text()})
			default:
				return outcome(StateFailed, acc, err)
			}
		}

		acc.Add(ev)
		switch ev.Kind {
		case stream.KindChunk:
			c.updateReply(gen, acc.Text())
		case stream.KindDone:
			return outcome(StateCompleted, acc, nil)
		case stream.KindError:
			return outcome(StateFailed, acc, acc.Err())
		}
	}
}

// runChat performs a single non-streaming request.
func (c *Controller) runChat(gen *generation, req backend.ChatRequest) *Result {
	started := time.Now()
	resp, err := c.transport.Chat(gen.handle, req)

	res := &Result{Elapsed: time.Since(started)}
	switch {
	case err != nil && (gen.handle.IsCancelled() || backend.IsCancelled(err)):
		res.State = StateAborted
	case err != nil:
		res.State = StateFailed
		res.Err = err
	default:
		res.State = StateCompleted
		res.CorrelationID = resp.SessionID
		res.Message = model.NewAssistantMessage(resp.Response)
	}
	return res
}

// outcome converts the accumulated stream into a Result. The message is
// the candidate to commit; commit decides what actually lands.
func outcome(state State, acc *stream.Accumulator, err error) *Result {
	res := &Result{
		State:      state,
		Err:        err,
		Chunks:     acc.Chunks(),
		FirstChunk: acc.TimeToFirstChunk(),
		Elapsed:    acc.Elapsed(),
	}
	if state == StateCompleted {
		res.CorrelationID = acc.CorrelationID()
	}
	if acc.HasText() && state != StateFailed {
		res.Message = model.NewAssistantMessage(acc.Text())
	}
	return res
}

// =============================================================================
// COMMIT
// =============================================================================

// commit writes the outcome into the store:
//
//	Completed: the reply, then the correlation id when one was bound
//	Aborted:   the partial reply plus the abort marker, if any text arrived
//	Failed:    nothing
func (c *Controller) commit(res *Result) {
	if res.State == StateFailed {
		res.Message = nil
		return
	}

	if res.Message != nil && res.Message.Content == "" {
		res.Message = nil
	}
	if res.Message != nil {
		if res.State == StateAborted {
			res.Message.Content += c.abortMarker
		}
		if _, err := c.store.AppendMessage(res.SessionID, res.Message); err != nil {
			if !c.commitFailed(res, err) {
				return
			}
		}
	}

	if res.State == StateCompleted && res.CorrelationID != "" {
		if err := c.store.SetCorrelationID(res.SessionID, res.CorrelationID); err != nil {
			c.commitFailed(res, err)
		}
	}
}

// commitFailed reports a failed store write. It returns true when the
// in-memory session took the change and committing may continue.
func (c *Controller) commitFailed(res *Result, err error) bool {
	if storage.IsStorageError(err) {
		c.warnStorage(err)
		return true
	}
	// The session was deleted underneath the generation.
	c.logger.Warn("generation result discarded", "session", res.SessionID, "err", err)
	res.Message = nil
	return false
}

// report logs the outcome and raises a notice for failures.
func (c *Controller) report(res *Result) {
	c.logger.Info("generation finished",
		"session", res.SessionID,
		"state", res.State,
		"chunks", res.Chunks,
		"first_chunk", res.FirstChunk.Round(time.Millisecond),
		"elapsed", res.Elapsed.Round(time.Millisecond),
	)

	switch res.State {
	case StateFailed:
		c.notify(Notice{Level: LevelError, Message: failureMessage(res.Err), Err: res.Err})
	case StateAborted:
		c.notify(Notice{Level: LevelInfo, Message: "generation stopped"})
	}
}

// failureMessage picks the headline for a failed generation.
func failureMessage(err error) string {
	switch {
	case errors.Is(err, stream.ErrIncomplete):
		return "the response ended unexpectedly"
	case stream.IsProtocolError(err):
		return "the model reported an error"
	case errors.Is(err, backend.ErrUnreachable):
		return "cannot reach the backend"
	case errors.Is(err, backend.ErrTimeout):
		return "the backend did not respond in time"
	default:
		return "generation failed"
	}
}
