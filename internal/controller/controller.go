// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/jeranaias/lingshu-tui/internal/attachment"
	"github.com/jeranaias/lingshu-tui/internal/backend"
	"github.com/jeranaias/lingshu-tui/internal/diff"
	"github.com/jeranaias/lingshu-tui/internal/logging"
	"github.com/jeranaias/lingshu-tui/internal/model"
	"github.com/jeranaias/lingshu-tui/internal/storage"
)

// DefaultAbortMarker is appended to a reply the user stopped.
const DefaultAbortMarker = "\n\n*[stopped]*"

// DefaultRenderInterval caps stream redraws at roughly 30 per second.
const DefaultRenderInterval = 33 * time.Millisecond

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures a Controller.
type Options struct {
	Store     *storage.Store
	Transport Transport

	// Presenter receives views and notices. Default: NopPresenter.
	Presenter Presenter

	// Attachments holds images for the next send. Default: a new set with
	// the default limits.
	Attachments *attachment.Set

	// Stream selects the streaming endpoint. When false the controller
	// waits for the whole reply.
	Stream bool

	// AbortMarker is appended to partial replies. Default: DefaultAbortMarker.
	AbortMarker string

	// RenderInterval is the minimum spacing of redraws while streaming.
	// Zero uses DefaultRenderInterval; a negative value redraws every chunk.
	RenderInterval time.Duration

	Logger *log.Logger
}

// =============================================================================
// CONTROLLER
// =============================================================================

// Controller coordinates the store, the transport and the presenter.
// All methods are safe for concurrent use.
type Controller struct {
	mu          sync.Mutex
	store       *storage.Store
	transport   Transport
	presenter   Presenter
	pending     *attachment.Set
	stream      bool
	abortMarker string
	logger      *log.Logger

	app      AppState
	inflight *generation
	redraw   *rate.Sometimes
}

// generation is the bookkeeping for the single in-flight request.
type generation struct {
	sessionID string
	handle    *backend.CancelHandle
	state     State
	reply     *model.Message
}

// New creates a controller. Store and Transport are required.
func New(opts Options) *Controller {
	if opts.Presenter == nil {
		opts.Presenter = NopPresenter{}
	}
	if opts.Attachments == nil {
		opts.Attachments = attachment.NewSet(attachment.DefaultLimits())
	}
	if opts.AbortMarker == "" {
		opts.AbortMarker = DefaultAbortMarker
	}
	if opts.Logger == nil {
		opts.Logger = logging.With("controller")
	}

	redraw := &rate.Sometimes{Interval: opts.RenderInterval}
	switch {
	case opts.RenderInterval == 0:
		redraw.Interval = DefaultRenderInterval
	case opts.RenderInterval < 0:
		redraw = &rate.Sometimes{Every: 1}
	}

	return &Controller{
		store:       opts.Store,
		transport:   opts.Transport,
		presenter:   opts.Presenter,
		pending:     opts.Attachments,
		stream:      opts.Stream,
		abortMarker: opts.AbortMarker,
		logger:      opts.Logger,
		redraw:      redraw,
	}
}

// =============================================================================
// QUERIES
// =============================================================================

// AppState returns a snapshot of backend and generation status.
func (c *Controller) AppState() AppState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.app
}

// View builds the view model for the active session.
func (c *Controller) View() SessionView {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() SessionView {
	view := SessionView{
		Session:     c.store.Active(),
		Attachments: c.pending.Items(),
		App:         c.app,
	}
	if g := c.inflight; g != nil && g.reply != nil && view.Session != nil && view.Session.ID == g.sessionID {
		view.Pending = g.reply.Clone()
	}
	return view
}

// Store returns the session store.
func (c *Controller) Store() *storage.Store {
	return c.store
}

// Attachments returns the images waiting for the next send.
func (c *Controller) Attachments() []model.Attachment {
	return c.pending.Items()
}

// Settings returns the stored generation settings.
func (c *Controller) Settings() storage.Settings {
	return c.store.Settings()
}

// =============================================================================
// CONVERSATION
// =============================================================================

// Send appends a user message with the pending attachments to the active
// session, creating one if needed, and generates a reply. It blocks until
// the generation ends.
//
// Rejections (empty prompt, busy, no model) return a *model.ValidationError
// and change nothing. Once the user message is recorded the pending
// attachments are consumed whatever the outcome. A failed generation returns its error alongside
// the result.
func (c *Controller) Send(ctx context.Context, prompt string) (*Result, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, model.ErrEmptyPrompt
	}

	gen, sess, err := c.begin(ctx, true)
	if err != nil {
		return nil, err
	}

	images := c.pending.Items()
	msg := model.NewUserMessage(prompt, images...)
	if _, err := c.store.AppendMessage(sess.ID, msg); err != nil {
		if !storage.IsStorageError(err) {
			c.abandon(gen)
			return nil, err
		}
		c.warnStorage(err)
	}
	c.pending.Take()

	return c.run(gen, prompt, images, sess.CorrelationID)
}

// Regenerate discards everything after the last user message of the active
// session and generates a new reply to it. Images are not re-sent.
func (c *Controller) Regenerate(ctx context.Context) (*Result, error) {
	gen, sess, err := c.begin(ctx, false)
	if err != nil {
		return nil, err
	}

	last := sess.LastUserMessage()
	if last == nil {
		c.abandon(gen)
		return nil, &model.ValidationError{Code: model.CodeNotEditable, Message: "nothing to regenerate"}
	}
	if err := c.store.TruncateAfter(sess.ID, last.Index); err != nil {
		if !storage.IsStorageError(err) {
			c.abandon(gen)
			return nil, err
		}
		c.warnStorage(err)
	}

	return c.run(gen, last.Content, nil, sess.CorrelationID)
}

// EditAndRegenerate rewrites the user message at index, drops every later
// message and generates a new reply under the session's existing
// correlation id. There is no undo.
func (c *Controller) EditAndRegenerate(ctx context.Context, index int, content string) (*Result, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, model.ErrEmptyPrompt
	}

	gen, sess, err := c.begin(ctx, false)
	if err != nil {
		return nil, err
	}

	msg := sess.MessageAt(index)
	if msg == nil || !msg.IsUser() {
		c.abandon(gen)
		return nil, &model.ValidationError{
			Code:    model.CodeNotEditable,
			Message: fmt.Sprintf("message #%d is not a user message", index+1),
		}
	}

	for _, step := range []func() error{
		func() error { return c.store.UpdateMessageContent(sess.ID, index, content) },
		func() error { return c.store.TruncateAfter(sess.ID, index) },
	} {
		if err := step(); err != nil {
			if !storage.IsStorageError(err) {
				c.abandon(gen)
				return nil, err
			}
			c.warnStorage(err)
		}
	}
	c.logger.Info("message edited", "session", sess.ID, "index", index, "dropped", sess.MessageCount()-index-1)

	return c.run(gen, content, nil, sess.CorrelationID)
}

// EditPreview describes how EditAndRegenerate would change the message at
// index in the active session.
func (c *Controller) EditPreview(index int, content string) (string, error) {
	sess := c.store.Active()
	if sess == nil {
		return "", storage.ErrSessionNotFound
	}
	msg := sess.MessageAt(index)
	if msg == nil || !msg.IsUser() {
		return "", &model.ValidationError{
			Code:    model.CodeNotEditable,
			Message: fmt.Sprintf("message #%d is not a user message", index+1),
		}
	}

	preview := diff.Inline(msg.Content, strings.TrimSpace(content))
	if dropped := sess.MessageCount() - index - 1; dropped > 0 {
		preview += fmt.Sprintf("\n(%d later message(s) will be removed)", dropped)
	}
	return preview, nil
}

// Stop aborts the running generation. It reports whether there was one.
// Safe to call at any time; repeated calls are harmless.
func (c *Controller) Stop() bool {
	c.mu.Lock()
	gen := c.inflight
	c.mu.Unlock()

	if gen == nil {
		return false
	}
	gen.handle.Cancel()
	c.logger.Debug("generation stop requested", "session", gen.sessionID)
	return true
}

// =============================================================================
// GENERATION BOOKKEEPING
// =============================================================================

// begin reserves the in-flight slot for the active session. When there is
// none, create decides between making one and rejecting.
func (c *Controller) begin(ctx context.Context, create bool) (*generation, *model.ChatSession, error) {
	c.mu.Lock()

	if c.inflight != nil {
		c.mu.Unlock()
		return nil, nil, model.ErrBusy
	}
	if !c.app.ModelLoaded {
		c.mu.Unlock()
		return nil, nil, model.ErrNoModelLoaded
	}

	var storageErr error
	sess := c.store.Active()
	if sess == nil && !create {
		c.mu.Unlock()
		return nil, nil, &model.ValidationError{Code: model.CodeNotEditable, Message: "no active session"}
	}
	if sess == nil {
		s, err := c.store.CreateSession()
		if err != nil && !storage.IsStorageError(err) {
			c.mu.Unlock()
			return nil, nil, err
		}
		sess, storageErr = s, err
	}

	gen := &generation{
		sessionID: sess.ID,
		handle:    backend.NewCancelHandle(ctx),
		state:     StateSending,
	}
	c.inflight = gen
	c.app.State = StateSending
	c.app.InFlight = true
	c.app.Generating = sess.ID
	c.mu.Unlock()

	if storageErr != nil {
		c.warnStorage(storageErr)
	}
	return gen, sess, nil
}

// abandon releases a reservation that never reached the backend.
func (c *Controller) abandon(gen *generation) {
	c.mu.Lock()
	if c.inflight == gen {
		c.inflight = nil
		c.app.State = StateIdle
		c.app.InFlight = false
		c.app.Generating = ""
	}
	c.mu.Unlock()
	gen.handle.Release()
	c.render()
}

// setState moves the generation forward and redraws.
func (c *Controller) setState(gen *generation, state State) {
	c.mu.Lock()
	if c.inflight != gen || gen.state == state {
		c.mu.Unlock()
		return
	}
	gen.state = state
	c.app.State = state
	c.mu.Unlock()
	c.render()
}

// updateReply replaces the ephemeral reply text.
func (c *Controller) updateReply(gen *generation, text string) {
	c.mu.Lock()
	if gen.reply == nil {
		gen.reply = model.NewAssistantMessage(text)
	} else {
		gen.reply.Content = text
	}
	c.mu.Unlock()
	c.redraw.Do(c.render)
}

// finish clears the in-flight slot with the terminal state.
func (c *Controller) finish(gen *generation, state State) {
	c.mu.Lock()
	if c.inflight == gen {
		c.inflight = nil
		c.app.State = state
		c.app.InFlight = false
		c.app.Generating = ""
	}
	gen.state = state
	gen.reply = nil
	c.mu.Unlock()
	gen.handle.Release()
	c.render()
}

// =============================================================================
// SESSIONS
// =============================================================================

// NewSession creates an empty session and makes it active.
func (c *Controller) NewSession() (*model.ChatSession, error) {
	sess, err := c.store.CreateSession()
	if err != nil {
		if !storage.IsStorageError(err) {
			return nil, err
		}
		c.warnStorage(err)
	}
	c.render()
	return sess, nil
}

// SelectSession makes the referenced session active. ref is an id, a
// unique prefix or a short id.
func (c *Controller) SelectSession(ref string) (*model.ChatSession, error) {
	sess, err := c.store.Resolve(ref)
	if err != nil {
		return nil, err
	}
	if err := c.store.SetActive(sess.ID); err != nil {
		if !storage.IsStorageError(err) {
			return nil, err
		}
		c.warnStorage(err)
	}
	c.render()
	return sess, nil
}

// RenameSession sets an explicit title. An empty title restores the
// derived one.
func (c *Controller) RenameSession(ref, title string) error {
	sess, err := c.store.Resolve(ref)
	if err != nil {
		return err
	}
	if err := c.store.Rename(sess.ID, strings.TrimSpace(title)); err != nil {
		if !storage.IsStorageError(err) {
			return err
		}
		c.warnStorage(err)
	}
	c.render()
	return nil
}

// DeleteSession removes a session and, best effort, its server-side
// history. The session with a running generation cannot be deleted.
func (c *Controller) DeleteSession(ctx context.Context, ref string) error {
	sess, err := c.store.Resolve(ref)
	if err != nil {
		if errors.Is(err, storage.ErrSessionNotFound) {
			return nil
		}
		return err
	}
	if c.generatingFor(sess.ID) {
		return model.ErrBusy
	}

	if err := c.store.DeleteSession(sess.ID); err != nil {
		if !storage.IsStorageError(err) {
			return err
		}
		c.warnStorage(err)
	}
	c.logger.Info("session deleted", "session", sess.ID)

	c.forgetRemote(ctx, sess.CorrelationID)
	c.render()
	return nil
}

// ClearSession drops every message of a session, unbinds it from the
// backend and, best effort, clears the server-side history.
func (c *Controller) ClearSession(ctx context.Context, ref string) error {
	sess, err := c.store.Resolve(ref)
	if err != nil {
		return err
	}
	if c.generatingFor(sess.ID) {
		return model.ErrBusy
	}

	previous, err := c.store.ClearMessages(sess.ID)
	if err != nil {
		if !storage.IsStorageError(err) {
			return err
		}
		c.warnStorage(err)
	}

	c.forgetRemote(ctx, previous)
	c.render()
	return nil
}

func (c *Controller) generatingFor(sessionID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight != nil && c.inflight.sessionID == sessionID
}

// forgetRemote asks the backend to drop a conversation. Failures are logged
// only; the local state is already gone.
func (c *Controller) forgetRemote(ctx context.Context, correlationID string) {
	if correlationID == "" {
		return
	}
	if err := c.transport.ClearHistory(ctx, correlationID); err != nil {
		c.logger.Warn("failed to clear server-side history", "correlation_id", correlationID, "err", err)
	}
}

// =============================================================================
// MODEL LIFECYCLE
// =============================================================================

// RefreshStatus polls the backend and updates AppState.
func (c *Controller) RefreshStatus(ctx context.Context) error {
	status, err := c.transport.Status(ctx)

	c.mu.Lock()
	if err != nil {
		c.app.Online = false
		c.app.ModelLoaded = false
	} else {
		c.app.Online = true
		c.app.ModelLoaded = status.ModelLoaded
		c.app.Quantization = status.Quantization
		c.app.GPUAvailable = status.GPUAvailable
		c.app.GPUName = status.GPUName
	}
	c.mu.Unlock()

	if err != nil {
		c.logger.Warn("backend status unavailable", "err", err)
	}
	c.render()
	return err
}

// LoadModel asks the backend to load the model with quant and remembers
// the choice in the generation settings.
func (c *Controller) LoadModel(ctx context.Context, quant model.Quantization) error {
	if c.busy() {
		return model.ErrBusy
	}

	c.notify(Notice{Level: LevelInfo, Message: "loading model (" + quant.Description() + ")"})
	resp, err := c.transport.LoadModel(ctx, quant)
	if err != nil {
		c.notify(Notice{Level: LevelError, Message: "failed to load model", Err: err})
		return err
	}

	loaded := quant
	if resp.Quantization != "" {
		loaded = model.Quantization(resp.Quantization)
	}
	c.mu.Lock()
	c.app.Online = true
	c.app.ModelLoaded = true
	c.app.Quantization = string(loaded)
	c.mu.Unlock()

	settings := c.store.Settings()
	if settings.Quantization != quant {
		settings.Quantization = quant
		if err := c.store.SaveSettings(settings); err != nil {
			c.warnStorage(err)
		}
	}

	c.notify(Notice{Level: LevelSuccess, Message: "model loaded (" + string(loaded) + ")"})
	c.render()
	return nil
}

// UnloadModel asks the backend to free the model.
func (c *Controller) UnloadModel(ctx context.Context) error {
	if c.busy() {
		return model.ErrBusy
	}

	if _, err := c.transport.UnloadModel(ctx); err != nil {
		c.notify(Notice{Level: LevelError, Message: "failed to unload model", Err: err})
		return err
	}

	c.mu.Lock()
	c.app.ModelLoaded = false
	c.app.Quantization = ""
	c.mu.Unlock()

	c.notify(Notice{Level: LevelSuccess, Message: "model unloaded"})
	c.render()
	return nil
}

func (c *Controller) busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight != nil
}

// =============================================================================
// ATTACHMENTS AND SETTINGS
// =============================================================================

// AddAttachments validates and queues image files for the next send. The
// batch is all-or-nothing.
func (c *Controller) AddAttachments(paths ...string) error {
	if err := c.pending.AddFiles(paths...); err != nil {
		return err
	}
	c.render()
	return nil
}

// AddAttachmentData queues an already-read image, such as a pasted one.
func (c *Controller) AddAttachmentData(name string, data []byte) error {
	a, err := attachment.FromBytes(name, data, c.pending.Limits())
	if err != nil {
		return err
	}
	if err := c.pending.Add(a); err != nil {
		return err
	}
	c.render()
	return nil
}

// RemoveAttachment drops the pending image at position i.
func (c *Controller) RemoveAttachment(i int) bool {
	ok := c.pending.Remove(i)
	if ok {
		c.render()
	}
	return ok
}

// ClearAttachments drops every pending image.
func (c *Controller) ClearAttachments() {
	c.pending.Clear()
	c.render()
}

// UpdateSettings validates and persists generation settings. They apply
// from the next request.
func (c *Controller) UpdateSettings(settings storage.Settings) error {
	if err := c.store.SaveSettings(settings); err != nil {
		if !storage.IsStorageError(err) {
			return err
		}
		c.warnStorage(err)
	}
	c.logger.Info("generation settings updated",
		"temperature", settings.Temperature, "max_tokens", settings.MaxTokens, "quantization", settings.Quantization)
	return nil
}

// =============================================================================
// OUTPUT
// =============================================================================

func (c *Controller) render() {
	c.presenter.Render(c.View())
}

// notify logs a notice and forwards blocking ones to the presenter.
func (c *Controller) notify(n Notice) {
	if n.Time.IsZero() {
		n.Time = time.Now()
	}

	switch n.Level {
	case LevelError:
		c.logger.Error(n.Message, "err", n.Err)
	case LevelWarn:
		c.logger.Warn(n.Message, "err", n.Err)
	default:
		c.logger.Info(n.Message)
	}

	if n.Blocking() {
		c.presenter.Notify(n)
	}
}

func (c *Controller) warnStorage(err error) {
	c.notify(Notice{Level: LevelWarn, Message: "could not save chat history", Err: err})
}
