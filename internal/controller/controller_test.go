// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package controller_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/lingshu-tui/internal/backend"
	"github.com/jeranaias/lingshu-tui/internal/controller"
	"github.com/jeranaias/lingshu-tui/internal/logging"
	"github.com/jeranaias/lingshu-tui/internal/mockbackend"
	"github.com/jeranaias/lingshu-tui/internal/model"
	"github.com/jeranaias/lingshu-tui/internal/storage"
	"github.com/jeranaias/lingshu-tui/internal/stream"
)

const marker = " [stopped]"

// =============================================================================
// HELPERS
// =============================================================================

// recorder is a Presenter that keeps everything it is given.
type recorder struct {
	mu      sync.Mutex
	views   []controller.SessionView
	notices []controller.Notice
}

func (r *recorder) Render(v controller.SessionView) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *recorder) Notify(n controller.Notice) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices = append(r.notices, n)
}

func (r *recorder) Notices() []controller.Notice {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]controller.Notice(nil), r.notices...)
}

// failingBackend accepts reads but refuses every write.
type failingBackend struct{}

func (failingBackend) Load(string) ([]byte, error) { return nil, storage.ErrNotFound }
func (failingBackend) Save(string, []byte) error   { return errors.New("disk full") }
func (failingBackend) Close() error                { return nil }

type harness struct {
	mock  *mockbackend.Server
	ctrl  *controller.Controller
	store *storage.Store
	view  *recorder
	url   string
	close func()
}

type harnessOption func(*controller.Options)

func nonStreaming(o *controller.Options) { o.Stream = false }

func withStoreBackend(b storage.Backend) harnessOption {
	return func(o *controller.Options) {
		store, err := storage.Open(storage.Options{Backend: b, Logger: logging.Discard()})
		if err != nil {
			panic(err)
		}
		o.Store = store
	}
}

func newHarness(t *testing.T, mockOpts []mockbackend.Option, opts ...harnessOption) *harness {
	t.Helper()

	mock := mockbackend.New(mockOpts...)
	server := httptest.NewServer(mock.Handler())
	t.Cleanup(server.Close)

	store, err := storage.Open(storage.Options{Logger: logging.Discard()})
	require.NoError(t, err)

	view := &recorder{}
	o := controller.Options{
		Store: store,
		Transport: backend.NewClient(&backend.ClientConfig{
			BaseURL: server.URL,
			Timeout: 5 * time.Second,
			Logger:  logging.Discard(),
		}),
		Presenter:      view,
		Stream:         true,
		AbortMarker:    marker,
		RenderInterval: -1,
		Logger:         logging.Discard(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	ctrl := controller.New(o)
	require.NoError(t, ctrl.RefreshStatus(context.Background()))

	return &harness{mock: mock, ctrl: ctrl, store: o.Store, view: view, url: server.URL, close: server.Close}
}

func loaded(extra ...mockbackend.Option) []mockbackend.Option {
	return append([]mockbackend.Option{mockbackend.WithModelLoaded(true)}, extra...)
}

// script binds cid, emits chunks and finishes.
func script(cid string, chunks ...string) mockbackend.Script {
	return func(ctx context.Context, req mockbackend.Request, sessionID string, emit mockbackend.Emitter) error {
		if cid != "" {
			if err := emit(map[string]any{"session_id": cid}); err != nil {
				return err
			}
		}
		for _, c := range chunks {
			if err := emit(map[string]any{"chunk": c}); err != nil {
				return err
			}
		}
		return emit(map[string]any{"done": true})
	}
}

// holding binds cid, emits chunks and then waits for the client to leave.
func holding(cid string, chunks ...string) mockbackend.Script {
	return func(ctx context.Context, req mockbackend.Request, sessionID string, emit mockbackend.Emitter) error {
		if cid != "" {
			if err := emit(map[string]any{"session_id": cid}); err != nil {
				return err
			}
		}
		for _, c := range chunks {
			if err := emit(map[string]any{"chunk": c}); err != nil {
				return err
			}
		}
		<-ctx.Done()
		return ctx.Err()
	}
}

type sendResult struct {
	res *controller.Result
	err error
}

func sendAsync(ctrl *controller.Controller, prompt string) <-chan sendResult {
	done := make(chan sendResult, 1)
	go func() {
		res, err := ctrl.Send(context.Background(), prompt)
		done <- sendResult{res, err}
	}()
	return done
}

func wait(t *testing.T, done <-chan sendResult) sendResult {
	t.Helper()
	select {
	case r := <-done:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("generation did not finish")
		return sendResult{}
	}
}

func pngBytes() []byte {
	return append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
}

// =============================================================================
// SEND
// =============================================================================

func TestSend_EndToEnd(t *testing.T) {
	h := newHarness(t, loaded(mockbackend.WithScript(script("s1", "Hel", "lo"))))
	ctx := context.Background()

	res, err := h.ctrl.Send(ctx, "hi")
	require.NoError(t, err)
	assert.Equal(t, controller.StateCompleted, res.State)
	assert.Equal(t, "s1", res.CorrelationID)
	assert.Equal(t, 2, res.Chunks)

	sess := h.store.Active()
	require.NotNil(t, sess)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, model.RoleUser, sess.Messages[0].Role)
	assert.Equal(t, "hi", sess.Messages[0].Content)
	assert.Equal(t, model.RoleAssistant, sess.Messages[1].Role)
	assert.Equal(t, "Hello", sess.Messages[1].Content)
	assert.Equal(t, 0, sess.Messages[0].Index)
	assert.Equal(t, 1, sess.Messages[1].Index)
	assert.Equal(t, "s1", sess.CorrelationID)
	assert.Equal(t, "hi", sess.Title)

	app := h.ctrl.AppState()
	assert.Equal(t, controller.StateCompleted, app.State)
	assert.False(t, app.InFlight)
	assert.Nil(t, h.ctrl.View().Pending)

	_, err = h.ctrl.Send(ctx, "again")
	require.NoError(t, err)

	reqs := h.mock.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[0].SessionID, "first exchange has no correlation id")
	assert.Equal(t, "s1", reqs[1].SessionID)
	assert.Equal(t, model.DefaultGenerationConfig(), reqs[0].Config)
}

func TestSend_RendersPendingReply(t *testing.T) {
	h := newHarness(t, loaded(mockbackend.WithScript(script("s1", "a", "b", "c"))))

	_, err := h.ctrl.Send(context.Background(), "go")
	require.NoError(t, err)

	h.view.mu.Lock()
	defer h.view.mu.Unlock()

	var pending []string
	for _, v := range h.view.views {
		if v.Pending != nil {
			pending = append(pending, v.Pending.Content)
		}
	}
	assert.Equal(t, []string{"a", "ab", "abc"}, pending)

	last := h.view.views[len(h.view.views)-1]
	assert.Nil(t, last.Pending)
	assert.Len(t, last.Session.Messages, 2)
}

func TestSend_Rejections(t *testing.T) {
	t.Run("empty prompt", func(t *testing.T) {
		h := newHarness(t, loaded())
		_, err := h.ctrl.Send(context.Background(), "   ")
		assert.ErrorIs(t, err, model.ErrEmptyPrompt)
		assert.Zero(t, h.store.Len())
	})

	t.Run("no model loaded", func(t *testing.T) {
		h := newHarness(t, nil)
		_, err := h.ctrl.Send(context.Background(), "hello")
		assert.ErrorIs(t, err, model.ErrNoModelLoaded)
		assert.Zero(t, h.store.Len())
		assert.Empty(t, h.mock.Requests())
	})
}

func TestSend_ConcurrentSendRejected(t *testing.T) {
	h := newHarness(t, loaded(mockbackend.WithScript(holding("s1", "thinking"))))

	done := sendAsync(h.ctrl, "first")
	require.Eventually(t, func() bool {
		return h.ctrl.AppState().State == controller.StateStreaming
	}, 5*time.Second, 5*time.Millisecond)

	before := h.store.Active()
	_, err := h.ctrl.Send(context.Background(), "second")
	assert.ErrorIs(t, err, model.ErrBusy)
	_, err = h.ctrl.Regenerate(context.Background())
	assert.ErrorIs(t, err, model.ErrBusy)
	_, err = h.ctrl.EditAndRegenerate(context.Background(), 0, "edited")
	assert.ErrorIs(t, err, model.ErrBusy)
	assert.ErrorIs(t, h.ctrl.DeleteSession(context.Background(), before.ID), model.ErrBusy)

	after := h.store.Active()
	assert.Equal(t, before.Messages, after.Messages, "rejected sends must not touch the store")
	assert.Len(t, h.mock.Requests(), 1)

	assert.True(t, h.ctrl.Stop())
	wait(t, done)
}

func TestSend_NonStreaming(t *testing.T) {
	h := newHarness(t, loaded(), nonStreaming)

	res, err := h.ctrl.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, controller.StateCompleted, res.State)
	assert.Equal(t, "You said: hi", res.Message.Content)

	sess := h.store.Active()
	require.Len(t, sess.Messages, 2)
	assert.NotEmpty(t, sess.CorrelationID)
	assert.Equal(t, backend.EndpointChat, h.mock.Requests()[0].Endpoint)
}

// =============================================================================
// ABORT
// =============================================================================

func TestStop_CommitsPartialTextWithMarker(t *testing.T) {
	h := newHarness(t, loaded(mockbackend.WithScript(holding("s1", "Hel", "lo"))))

	done := sendAsync(h.ctrl, "hi")
	require.Eventually(t, func() bool {
		v := h.ctrl.View()
		return v.Pending != nil && v.Pending.Content == "Hello"
	}, 5*time.Second, 5*time.Millisecond)

	assert.True(t, h.ctrl.Stop())
	h.ctrl.Stop()

	r := wait(t, done)
	require.NoError(t, r.err)
	assert.Equal(t, controller.StateAborted, r.res.State)

	sess := h.store.Active()
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "Hello"+marker, sess.Messages[1].Content)
	assert.Empty(t, sess.CorrelationID, "aborted exchanges are not bound")
	assert.False(t, h.ctrl.AppState().InFlight)
	assert.False(t, h.ctrl.Stop(), "nothing left to stop")
}

func TestStop_BeforeAnyTextCommitsNothing(t *testing.T) {
	h := newHarness(t, loaded(mockbackend.WithScript(holding("s1"))))

	done := sendAsync(h.ctrl, "hi")
	require.Eventually(t, func() bool {
		return h.ctrl.AppState().State == controller.StateStreaming
	}, 5*time.Second, 5*time.Millisecond)

	h.ctrl.Stop()
	r := wait(t, done)
	require.NoError(t, r.err)
	assert.Equal(t, controller.StateAborted, r.res.State)
	assert.Nil(t, r.res.Message)

	sess := h.store.Active()
	require.Len(t, sess.Messages, 1, "only the user message remains")
	assert.Equal(t, model.RoleUser, sess.Messages[0].Role)
	assert.Empty(t, sess.CorrelationID)
}

// =============================================================================
// FAILURES
// =============================================================================

func TestSend_Failures(t *testing.T) {
	tests := []struct {
		name    string
		script  mockbackend.Script
		wantErr error
	}{
		{
			name: "server error event",
			script: func(ctx context.Context, req mockbackend.Request, sid string, emit mockbackend.Emitter) error {
				_ = emit(map[string]any{"session_id": "s1"})
				_ = emit(map[string]any{"chunk": "par"})
				return emit(map[string]any{"error": "CUDA out of memory"})
			},
			wantErr: stream.ErrServer,
		},
		{
			name: "stream ends early",
			script: func(ctx context.Context, req mockbackend.Request, sid string, emit mockbackend.Emitter) error {
				return emit(map[string]any{"chunk": "par"})
			},
			wantErr: stream.ErrIncomplete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, loaded(mockbackend.WithScript(tt.script)))
			require.NoError(t, h.ctrl.AddAttachmentData("scan.png", pngBytes()))

			res, err := h.ctrl.Send(context.Background(), "hi")
			require.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, controller.StateFailed, res.State)
			assert.Nil(t, res.Message)

			sess := h.store.Active()
			require.Len(t, sess.Messages, 1, "failed replies are never committed")
			assert.Empty(t, sess.CorrelationID)
			assert.Empty(t, h.ctrl.Attachments(), "attachments are consumed even on failure")

			notices := h.view.Notices()
			require.NotEmpty(t, notices)
			assert.Equal(t, controller.LevelError, notices[len(notices)-1].Level)
			assert.Equal(t, controller.StateFailed, h.ctrl.AppState().State)
		})
	}
}

func TestSend_BackendUnreachable(t *testing.T) {
	h := newHarness(t, loaded())
	h.close()

	res, err := h.ctrl.Send(context.Background(), "hi")
	require.ErrorIs(t, err, backend.ErrUnreachable)
	assert.Equal(t, controller.StateFailed, res.State)
	assert.Len(t, h.store.Active().Messages, 1)
}

func TestSend_StorageFailureKeepsMemory(t *testing.T) {
	h := newHarness(t, loaded(mockbackend.WithScript(script("s1", "ok"))), withStoreBackend(failingBackend{}))

	res, err := h.ctrl.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, controller.StateCompleted, res.State)

	sess := h.store.Active()
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "s1", sess.CorrelationID)

	var warned bool
	for _, n := range h.view.Notices() {
		if n.Level == controller.LevelWarn && storage.IsStorageError(n.Err) {
			warned = true
		}
	}
	assert.True(t, warned, "storage failures surface as warnings")
}

func TestSend_StorageFailureKeepsConversationBound(t *testing.T) {
	h := newHarness(t, loaded(mockbackend.WithScript(script("s1", "ok"))), withStoreBackend(failingBackend{}))

	_, err := h.ctrl.Send(context.Background(), "first")
	require.NoError(t, err)
	assert.Equal(t, "s1", h.store.Active().CorrelationID)

	_, err = h.ctrl.Send(context.Background(), "second")
	require.NoError(t, err)

	reqs := h.mock.Requests()
	require.Len(t, reqs, 2)
	assert.Empty(t, reqs[0].SessionID)
	assert.Equal(t, "s1", reqs[1].SessionID, "the next turn continues the backend conversation")
}

// deletingPresenter removes the active session on the first storage
// warning, which lands between session creation and the user message
// append.
type deletingPresenter struct {
	recorder
	store   *storage.Store
	deleted bool
}

func (p *deletingPresenter) Notify(n controller.Notice) {
	p.recorder.Notify(n)
	if p.deleted || n.Level != controller.LevelWarn {
		return
	}
	if id := p.store.ActiveID(); id != "" {
		p.deleted = true
		_ = p.store.DeleteSession(id)
	}
}

func withDeletingPresenter(p *deletingPresenter) harnessOption {
	return func(o *controller.Options) {
		p.store = o.Store
		o.Presenter = p
	}
}

func TestSend_LostSessionKeepsAttachments(t *testing.T) {
	view := &deletingPresenter{}
	h := newHarness(t, loaded(), withStoreBackend(failingBackend{}), withDeletingPresenter(view))
	require.NoError(t, h.ctrl.AddAttachmentData("scan.png", pngBytes()))

	res, err := h.ctrl.Send(context.Background(), "what is this?")
	require.ErrorIs(t, err, storage.ErrSessionNotFound)
	assert.Nil(t, res)

	assert.Len(t, h.ctrl.Attachments(), 1, "attachments survive a message that was never recorded")
	assert.Empty(t, h.mock.Requests())
	assert.Equal(t, controller.StateIdle, h.ctrl.AppState().State)
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

func TestSend_ConsumesAttachments(t *testing.T) {
	h := newHarness(t, loaded())
	require.NoError(t, h.ctrl.AddAttachmentData("scan.png", pngBytes()))
	require.Len(t, h.ctrl.View().Attachments, 1)

	_, err := h.ctrl.Send(context.Background(), "what is this?")
	require.NoError(t, err)

	assert.Empty(t, h.ctrl.Attachments())
	req := h.mock.Requests()[0]
	assert.Equal(t, []string{"scan.png"}, req.Images)

	user := h.store.Active().Messages[0]
	require.Len(t, user.Attachments, 1)
	assert.Equal(t, "scan.png", user.Attachments[0].Name)
	assert.Nil(t, user.Attachments[0].Data, "image bytes are not stored")
	assert.Nil(t, h.store.Active().Messages[1].Attachments)
}

func TestAttachments_CapRejectsBatch(t *testing.T) {
	h := newHarness(t, loaded())
	for i := 0; i < 5; i++ {
		require.NoError(t, h.ctrl.AddAttachmentData("scan.png", pngBytes()))
	}

	err := h.ctrl.AddAttachmentData("extra.png", pngBytes())
	assert.Equal(t, model.CodeAttachmentCount, model.ValidationCodeOf(err))
	assert.Len(t, h.ctrl.Attachments(), 5)

	assert.True(t, h.ctrl.RemoveAttachment(0))
	assert.False(t, h.ctrl.RemoveAttachment(10))
	assert.Len(t, h.ctrl.Attachments(), 4)

	h.ctrl.ClearAttachments()
	assert.Empty(t, h.ctrl.Attachments())
}

// =============================================================================
// EDIT AND REGENERATE
// =============================================================================

func TestEditAndRegenerate(t *testing.T) {
	h := newHarness(t, loaded())
	ctx := context.Background()

	require.NoError(t, h.ctrl.AddAttachmentData("scan.png", pngBytes()))
	_, err := h.ctrl.Send(ctx, "first")
	require.NoError(t, err)
	_, err = h.ctrl.Send(ctx, "second")
	require.NoError(t, err)
	cid := h.store.Active().CorrelationID
	require.NotEmpty(t, cid)

	preview, err := h.ctrl.EditPreview(0, "first edited")
	require.NoError(t, err)
	assert.Contains(t, preview, "{+ edited+}")
	assert.Contains(t, preview, "3 later message(s)")

	_, err = h.ctrl.EditAndRegenerate(ctx, 1, "not mine")
	assert.Equal(t, model.CodeNotEditable, model.ValidationCodeOf(err))

	res, err := h.ctrl.EditAndRegenerate(ctx, 0, "first edited")
	require.NoError(t, err)
	assert.Equal(t, controller.StateCompleted, res.State)

	sess := h.store.Active()
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "first edited", sess.Messages[0].Content)
	assert.Equal(t, "You said: first edited", sess.Messages[1].Content)
	assert.Equal(t, 1, sess.Messages[1].Index)

	reqs := h.mock.Requests()
	last := reqs[len(reqs)-1]
	assert.Equal(t, cid, last.SessionID, "the existing correlation id is reused")
	assert.Empty(t, last.Images, "edits never re-send images")
}

func TestRegenerate(t *testing.T) {
	h := newHarness(t, loaded())
	ctx := context.Background()

	_, err := h.ctrl.Regenerate(ctx)
	assert.Equal(t, model.CodeNotEditable, model.ValidationCodeOf(err))
	assert.Zero(t, h.store.Len(), "a rejected regenerate creates nothing")

	_, err = h.ctrl.Send(ctx, "question")
	require.NoError(t, err)
	_, err = h.ctrl.Regenerate(ctx)
	require.NoError(t, err)

	sess := h.store.Active()
	require.Len(t, sess.Messages, 2)
	reqs := h.mock.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "question", reqs[1].Prompt)
}

// =============================================================================
// SESSIONS
// =============================================================================

func TestDeleteSession_ClearsRemoteHistory(t *testing.T) {
	h := newHarness(t, loaded())
	ctx := context.Background()

	_, err := h.ctrl.Send(ctx, "hi")
	require.NoError(t, err)
	sess := h.store.Active()

	require.NoError(t, h.ctrl.DeleteSession(ctx, sess.ID))
	assert.Zero(t, h.store.Len())
	assert.Equal(t, []string{sess.CorrelationID}, h.mock.Cleared())

	assert.NoError(t, h.ctrl.DeleteSession(ctx, sess.ID), "deleting twice is a no-op")
}

func TestClearSession(t *testing.T) {
	h := newHarness(t, loaded())
	ctx := context.Background()

	_, err := h.ctrl.Send(ctx, "hi")
	require.NoError(t, err)
	sess := h.store.Active()

	require.NoError(t, h.ctrl.ClearSession(ctx, sess.ID))
	cleared := h.store.Active()
	assert.Empty(t, cleared.Messages)
	assert.Empty(t, cleared.CorrelationID)
	assert.Equal(t, []string{sess.CorrelationID}, h.mock.Cleared())
}

func TestSessions_NewSelectRename(t *testing.T) {
	h := newHarness(t, loaded())

	first, err := h.ctrl.NewSession()
	require.NoError(t, err)
	second, err := h.ctrl.NewSession()
	require.NoError(t, err)
	assert.Equal(t, second.ID, h.store.ActiveID())

	short := strings.ReplaceAll(first.ID, "-", "")[24:]
	_, err = h.ctrl.SelectSession(short)
	require.NoError(t, err)
	assert.Equal(t, first.ID, h.store.ActiveID())

	require.NoError(t, h.ctrl.RenameSession(first.ID, "  Chest CT  "))
	got, err := h.store.Get(first.ID)
	require.NoError(t, err)
	assert.Equal(t, "Chest CT", got.Title)

	_, err = h.ctrl.SelectSession("does-not-exist")
	assert.ErrorIs(t, err, storage.ErrSessionNotFound)
}

// =============================================================================
// MODEL LIFECYCLE
// =============================================================================

func TestModelLifecycle(t *testing.T) {
	h := newHarness(t, []mockbackend.Option{mockbackend.WithGPU("RTX 4090")})
	ctx := context.Background()

	app := h.ctrl.AppState()
	assert.True(t, app.Online)
	assert.False(t, app.ModelLoaded)
	assert.Equal(t, "RTX 4090", app.GPUName)

	require.NoError(t, h.ctrl.LoadModel(ctx, model.Quant8Bit))
	app = h.ctrl.AppState()
	assert.True(t, app.ModelLoaded)
	assert.Equal(t, "8bit", app.Quantization)
	assert.Equal(t, model.Quant8Bit, h.ctrl.Settings().Quantization)

	_, err := h.ctrl.Send(ctx, "hello")
	require.NoError(t, err)

	require.NoError(t, h.ctrl.UnloadModel(ctx))
	assert.False(t, h.ctrl.AppState().ModelLoaded)

	_, err = h.ctrl.Send(ctx, "hello")
	assert.ErrorIs(t, err, model.ErrNoModelLoaded)
}

func TestRefreshStatus_Offline(t *testing.T) {
	h := newHarness(t, loaded())
	h.close()

	err := h.ctrl.RefreshStatus(context.Background())
	assert.Error(t, err)
	app := h.ctrl.AppState()
	assert.False(t, app.Online)
	assert.False(t, app.ModelLoaded)
}

func TestUpdateSettings(t *testing.T) {
	h := newHarness(t, loaded())

	settings := h.ctrl.Settings()
	settings.Temperature = 0.2
	settings.MaxTokens = 128
	require.NoError(t, h.ctrl.UpdateSettings(settings))

	_, err := h.ctrl.Send(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, model.GenerationConfig{Temperature: 0.2, MaxNewTokens: 128}, h.mock.Requests()[0].Config)

	settings.MaxTokens = 0
	assert.Equal(t, model.CodeInvalidSetting, model.ValidationCodeOf(h.ctrl.UpdateSettings(settings)))
}
