// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/lingshu-tui/internal/backend"
	"github.com/jeranaias/lingshu-tui/internal/commands"
	"github.com/jeranaias/lingshu-tui/internal/controller"
	"github.com/jeranaias/lingshu-tui/internal/export"
	"github.com/jeranaias/lingshu-tui/internal/logging"
	"github.com/jeranaias/lingshu-tui/internal/mockbackend"
	"github.com/jeranaias/lingshu-tui/internal/storage"
	"github.com/jeranaias/lingshu-tui/internal/ui/styles"
)

// =============================================================================
// TEST HARNESS
// =============================================================================

func newTestModel(t *testing.T, opts ...mockbackend.Option) (Model, *controller.Controller) {
	t.Helper()

	mock := mockbackend.New(append([]mockbackend.Option{mockbackend.WithModelLoaded(true)}, opts...)...)
	server := httptest.NewServer(mock.Handler())
	t.Cleanup(server.Close)

	store, err := storage.Open(storage.Options{Logger: logging.Discard()})
	require.NoError(t, err)

	ctrl := controller.New(controller.Options{
		Store: store,
		Transport: backend.NewClient(&backend.ClientConfig{
			BaseURL: server.URL,
			Timeout: 5 * time.Second,
			Logger:  logging.Discard(),
		}),
		Presenter:      NewPresenter(),
		Stream:         true,
		RenderInterval: -1,
		Logger:         logging.Discard(),
	})
	require.NoError(t, ctrl.RefreshStatus(context.Background()))

	m := New(Options{
		Controller: ctrl,
		Theme:      styles.NewTheme("dark"),
		Export:     &export.Options{OutputDir: t.TempDir()},
	})
	m = step(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m = step(t, m, ViewMsg{View: ctrl.View()})
	return m, ctrl
}

// step applies one message and returns the updated model.
func step(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

// press applies a key and runs the resulting command synchronously,
// feeding its message back into the model.
func press(t *testing.T, m Model, msg tea.KeyMsg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	if cmd == nil {
		return m
	}
	out := cmd()
	if _, ok := out.(tea.BatchMsg); ok || out == nil {
		return m
	}
	return step(t, m, out)
}

func typeText(t *testing.T, m Model, text string) Model {
	t.Helper()
	return step(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
}

var (
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	esc   = tea.KeyMsg{Type: tea.KeyEsc}
	tab   = tea.KeyMsg{Type: tea.KeyTab}
	f1    = tea.KeyMsg{Type: tea.KeyF1}
)

// =============================================================================
// PRESENTER TESTS
// =============================================================================

func TestPresenter_CollapsesViews(t *testing.T) {
	p := NewPresenter()

	first := controller.SessionView{App: controller.AppState{State: controller.StateSending}}
	second := controller.SessionView{App: controller.AppState{State: controller.StateStreaming}}
	p.Render(first)
	p.Render(second)
	p.Notify(controller.Notice{Level: controller.LevelError, Message: "boom"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan tea.Msg, 4)
	go p.Pump(ctx, func(msg tea.Msg) { got <- msg })

	var msgs []tea.Msg
	for len(msgs) < 2 {
		select {
		case msg := <-got:
			msgs = append(msgs, msg)
		case <-time.After(2 * time.Second):
			t.Fatal("presenter did not deliver")
		}
	}

	require.IsType(t, ViewMsg{}, msgs[0])
	assert.Equal(t, controller.StateStreaming, msgs[0].(ViewMsg).View.App.State)
	require.IsType(t, NoticeMsg{}, msgs[1])
	assert.Equal(t, "boom", msgs[1].(NoticeMsg).Notice.Message)

	select {
	case extra := <-got:
		t.Fatalf("unexpected message %T", extra)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPresenter_NeverBlocks(t *testing.T) {
	p := NewPresenter()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			p.Render(controller.SessionView{})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Render blocked without a pump")
	}
}

// =============================================================================
// MODEL TESTS
// =============================================================================

func TestModel_SendPrompt(t *testing.T) {
	m, ctrl := newTestModel(t)

	m = typeText(t, m, "what does this show")
	m = press(t, m, enter)

	assert.Empty(t, m.input.Value())
	sess := ctrl.Store().Active()
	require.NotNil(t, sess)
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "You said: what does this show", sess.Messages[1].Content)

	out := m.View()
	assert.Contains(t, out, "You said: what does this show")
	assert.Contains(t, out, "#2")
}

func TestModel_RejectedSendShowsError(t *testing.T) {
	m, _ := newTestModel(t, mockbackend.WithModelLoaded(false))

	m = typeText(t, m, "hello")
	m = press(t, m, enter)

	require.Equal(t, 1, m.toasts.Len())
	toast := m.toasts.Toasts()[0]
	assert.True(t, toast.Sticky())
	assert.Equal(t, "Load the model with /load", toast.Detail)

	m = press(t, m, esc)
	assert.Zero(t, m.toasts.Len())
}

func TestModel_Commands(t *testing.T) {
	m, ctrl := newTestModel(t)

	m = typeText(t, m, "/new")
	m = press(t, m, enter)
	assert.Equal(t, 1, ctrl.Store().Len())
	require.Equal(t, 1, m.toasts.Len())
	assert.Equal(t, "New chat", m.toasts.Toasts()[0].Message)

	m = typeText(t, m, "/bogus")
	m = press(t, m, enter)
	assert.Equal(t, "Unknown command: /bogus is not a command", m.toasts.Toasts()[0].Message)

	m = typeText(t, m, "/status")
	m = press(t, m, enter)
	assert.Equal(t, overlayText, m.overlay)
	assert.Contains(t, m.View(), "Backend:")

	m = press(t, m, esc)
	assert.Equal(t, overlayNone, m.overlay)
}

func TestModel_HelpOverlay(t *testing.T) {
	m, _ := newTestModel(t)

	m = press(t, m, f1)
	require.Equal(t, overlayHelp, m.overlay)
	assert.Contains(t, m.overlayBody, "Keys")
	assert.Contains(t, m.overlayBody, "/regen")

	m = press(t, m, esc)
	assert.Equal(t, overlayNone, m.overlay)
}

func TestModel_TabCompletion(t *testing.T) {
	m, _ := newTestModel(t)

	m = typeText(t, m, "/sta")
	m = press(t, m, tab)
	assert.Equal(t, "/status ", m.input.Value())
	assert.False(t, m.completion.Visible)

	m.input.Reset()
	m = typeText(t, m, "/re")
	m = press(t, m, tab)
	require.True(t, m.completion.Visible)
	first := m.completion.GetSelected().Value

	m = press(t, m, tab)
	assert.NotEqual(t, first, m.completion.GetSelected().Value)

	m = press(t, m, enter)
	assert.False(t, m.completion.Visible)
	assert.Contains(t, m.input.Value(), "/re")
}

func TestModel_EditPreview(t *testing.T) {
	m, ctrl := newTestModel(t)

	m = typeText(t, m, "is this normal")
	m = press(t, m, enter)

	m = typeText(t, m, "/preview 1 is this abnormal")
	m = press(t, m, enter)
	require.Equal(t, overlayEdit, m.overlay)
	assert.Contains(t, m.View(), "Edit message #1")
	assert.Contains(t, m.View(), "1 later message(s) will be removed")

	m = press(t, m, enter)
	assert.Equal(t, overlayNone, m.overlay)

	sess := ctrl.Store().Active()
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "is this abnormal", sess.Messages[0].Content)
	assert.Equal(t, "You said: is this abnormal", sess.Messages[1].Content)
}

func TestModel_StopWhileStreaming(t *testing.T) {
	m, ctrl := newTestModel(t, mockbackend.WithChunkDelay(100*time.Millisecond))

	m = typeText(t, m, "describe the image in detail please")
	next, cmd := m.Update(enter)
	m = next.(Model)
	require.NotNil(t, cmd)

	done := make(chan tea.Msg, 1)
	go func() { done <- cmd() }()

	require.Eventually(t, func() bool { return ctrl.AppState().InFlight }, 2*time.Second, 10*time.Millisecond)
	m = step(t, m, ViewMsg{View: ctrl.View()})
	assert.True(t, m.spinner.Active())

	m = step(t, m, esc)

	var msg tea.Msg
	select {
	case msg = <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("generation did not stop")
	}
	require.IsType(t, commands.GenerationDoneMsg{}, msg)
	res := msg.(commands.GenerationDoneMsg).Result
	require.NotNil(t, res)
	assert.Equal(t, controller.StateAborted, res.State)

	m = step(t, m, msg)
	assert.False(t, m.spinner.Active())
	assert.False(t, m.view.App.InFlight)
}

func TestModel_QuitWhenIdle(t *testing.T) {
	m, _ := newTestModel(t)
	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}
