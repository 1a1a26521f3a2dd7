// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/lingshu-tui/internal/backend"
	"github.com/jeranaias/lingshu-tui/internal/controller"
	"github.com/jeranaias/lingshu-tui/internal/export"
	"github.com/jeranaias/lingshu-tui/internal/logging"
	"github.com/jeranaias/lingshu-tui/internal/mockbackend"
	"github.com/jeranaias/lingshu-tui/internal/model"
	"github.com/jeranaias/lingshu-tui/internal/storage"
)

// =============================================================================
// PARSER TESTS
// =============================================================================

func TestIsCommand(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"/help", true},
		{"/switch 2", true},
		{"  /help", true},
		{"hello", false},
		{"hello /help", false},
		{"", false},
		{"/", true},
	}

	for _, tc := range tests {
		if got := IsCommand(tc.input); got != tc.want {
			t.Errorf("IsCommand(%q) = %v, want %v", tc.input, got, tc.want)
		}
	}
}

func TestSplitArgs(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		freeAt int
		want   []string
	}{
		{"simple", "a b c", -1, []string{"a", "b", "c"}},
		{"double quotes", `"hello world" x`, -1, []string{"hello world", "x"}},
		{"single quotes", `'it is' fine`, -1, []string{"it is", "fine"}},
		{"escaped quote", `"say \"hi\""`, -1, []string{`say "hi"`}},
		{"extra spaces", "  a   b  ", -1, []string{"a", "b"}},
		{"multibyte", `'胸部 CT' 影像`, -1, []string{"胸部 CT", "影像"}},
		{"empty", "", -1, nil},
		{"free text verbatim", ` 2 what's  the "mass"?`, 1, []string{"2", `what's  the "mass"?`}},
		{"free text unquoted", ` "Chest CT" `, 0, []string{"Chest CT"}},
		{"free text missing", " 2", 1, []string{"2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitArgs(tt.input, tt.freeAt))
		})
	}
}

func TestParser_Parse(t *testing.T) {
	p := NewParser(NewRegistry())

	_, ok := p.Parse("what is in this image?")
	assert.False(t, ok)

	line, ok := p.Parse("/s 3")
	require.True(t, ok)
	require.NotNil(t, line.Command)
	assert.Equal(t, "/s", line.Name)
	assert.Equal(t, "/switch", line.Command.Name)
	assert.Equal(t, []string{"3"}, line.Args)

	line, ok = p.Parse("/edit 1 isn't this  normal?")
	require.True(t, ok)
	assert.Equal(t, []string{"1", "isn't this  normal?"}, line.Args)

	line, ok = p.Parse("/bogus")
	assert.True(t, ok)
	assert.Nil(t, line.Command)
}

func TestValidateArgs(t *testing.T) {
	reg := NewRegistry()

	assert.NoError(t, ValidateArgs(reg.Get("/switch"), []string{"1"}))
	assert.NoError(t, ValidateArgs(reg.Get("/load"), nil))
	assert.NoError(t, ValidateArgs(reg.Get("/load"), []string{"8BIT"}))

	err := ValidateArgs(reg.Get("/switch"), nil)
	var argErr *ArgError
	require.ErrorAs(t, err, &argErr)
	assert.Equal(t, "session", argErr.Arg)
	assert.Equal(t, "/switch needs <session>", err.Error())

	err = ValidateArgs(reg.Get("/export"), []string{"html"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "md, json, yaml")
}

// =============================================================================
// REGISTRY TESTS
// =============================================================================

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	for _, alias := range []string{"/h", "/?", "/q", "/r", "/ls", "/rm"} {
		assert.NotNil(t, reg.Get(alias), alias)
	}
	assert.Same(t, reg.Get("/regen"), reg.Get("/retry"))

	all := reg.All()
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1].Name, all[i].Name)
	}

	known := map[string]bool{}
	for _, c := range Categories() {
		known[c] = true
	}
	for category, cmds := range reg.ByCategory() {
		assert.True(t, known[category], category)
		for _, cmd := range cmds {
			assert.NotEmpty(t, cmd.Description, cmd.Name)
			assert.NotNil(t, cmd.Handler, cmd.Name)
		}
	}
}

func TestDispatch_Rejections(t *testing.T) {
	p := NewParser(NewRegistry())

	msg := p.Dispatch(nil, "/bogus")()
	require.IsType(t, ErrorMsg{}, msg)
	assert.Equal(t, "Unknown command", msg.(ErrorMsg).Title)

	msg = p.Dispatch(nil, "/rename")()
	require.IsType(t, ErrorMsg{}, msg)
	assert.Equal(t, "Invalid arguments", msg.(ErrorMsg).Title)
	assert.Contains(t, msg.(ErrorMsg).Tip, "/rename <title>")

	assert.Nil(t, p.Dispatch(nil, "plain text"))
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestApplySetting(t *testing.T) {
	base := storage.DefaultSettings()

	tests := []struct {
		key, value string
		check      func(storage.Settings) bool
		wantErr    bool
	}{
		{"temperature", "0.2", func(s storage.Settings) bool { return s.Temperature == 0.2 }, false},
		{"temp", "1", func(s storage.Settings) bool { return s.Temperature == 1 }, false},
		{"max_tokens", "1024", func(s storage.Settings) bool { return s.MaxTokens == 1024 }, false},
		{"max-tokens", "64", func(s storage.Settings) bool { return s.MaxTokens == 64 }, false},
		{"quantization", "CPU", func(s storage.Settings) bool { return s.Quantization == model.QuantCPU }, false},
		{"temperature", "warm", nil, true},
		{"temperature", "-1", nil, true},
		{"max_tokens", "0", nil, true},
		{"quantization", "2bit", nil, true},
		{"colour", "blue", nil, true},
	}

	for _, tt := range tests {
		got, err := ApplySetting(base, tt.key, tt.value)
		if tt.wantErr {
			assert.Error(t, err, "%s=%s", tt.key, tt.value)
			assert.Equal(t, model.CodeInvalidSetting, model.ValidationCodeOf(err), "%s=%s", tt.key, tt.value)
			continue
		}
		require.NoError(t, err, "%s=%s", tt.key, tt.value)
		assert.True(t, tt.check(got), "%s=%s", tt.key, tt.value)
	}
}

func TestEditArgs(t *testing.T) {
	index, content, err := editArgs([]string{"3", "what", "about", "this"})
	require.NoError(t, err)
	assert.Equal(t, 2, index)
	assert.Equal(t, "what about this", content)

	_, _, err = editArgs([]string{"0", "x"})
	assert.Error(t, err)
	_, _, err = editArgs([]string{"two", "x"})
	assert.Error(t, err)
	_, _, err = editArgs([]string{"1"})
	assert.Error(t, err)
}

// =============================================================================
// HANDLER TESTS
// =============================================================================

type env struct {
	mock   *mockbackend.Server
	ctrl   *controller.Controller
	ctx    *Context
	parser *Parser
}

func newEnv(t *testing.T) *env {
	t.Helper()

	mock := mockbackend.New(mockbackend.WithModelLoaded(true))
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
		Stream:         true,
		RenderInterval: -1,
		Logger:         logging.Discard(),
	})
	require.NoError(t, ctrl.RefreshStatus(context.Background()))

	ctx := NewContext(ctrl)
	ctx.Export = &export.Options{OutputDir: t.TempDir()}
	return &env{mock: mock, ctrl: ctrl, ctx: ctx, parser: NewParser(NewRegistry())}
}

// run dispatches input and executes the resulting command synchronously.
func (e *env) run(t *testing.T, input string) tea.Msg {
	t.Helper()
	cmd := e.parser.Dispatch(e.ctx, input)
	if cmd == nil {
		return nil
	}
	return cmd()
}

func TestHandlers_Sessions(t *testing.T) {
	e := newEnv(t)

	msg := e.run(t, "/new")
	assert.Equal(t, NoticeMsg{Level: controller.LevelSuccess, Message: "New chat"}, msg)

	msg = e.run(t, "/sessions")
	require.IsType(t, SessionListMsg{}, msg)
	list := msg.(SessionListMsg)
	require.Len(t, list.Sessions, 1)
	assert.Equal(t, list.Sessions[0].ID, list.ActiveID)

	msg = e.run(t, `/rename "Knee MRI"`)
	assert.Equal(t, NoticeMsg{Level: controller.LevelSuccess, Message: `Renamed to "Knee MRI"`}, msg)
	assert.Equal(t, "Knee MRI", e.ctrl.Store().Active().Title)

	_, err := e.ctrl.NewSession()
	require.NoError(t, err)
	other := e.ctrl.Store().ActiveID()
	assert.NotEqual(t, list.ActiveID, other)

	msg = e.run(t, "/switch "+storage.ShortID(list.ActiveID))
	assert.Equal(t, NoticeMsg{Level: controller.LevelSuccess, Message: `Switched to "Knee MRI"`}, msg)
	assert.Equal(t, list.ActiveID, e.ctrl.Store().ActiveID())

	msg = e.run(t, "/switch nope")
	require.IsType(t, ErrorMsg{}, msg)
	assert.Equal(t, "List chats with /sessions", msg.(ErrorMsg).Tip)

	msg = e.run(t, "/delete "+other)
	assert.Equal(t, NoticeMsg{Level: controller.LevelSuccess, Message: "Chat deleted"}, msg)
	assert.Equal(t, 1, e.ctrl.Store().Len())

	msg = e.run(t, "/switch 1")
	require.IsType(t, NoticeMsg{}, msg)
	assert.Equal(t, list.ActiveID, e.ctrl.Store().ActiveID())
}

func TestHandlers_Conversation(t *testing.T) {
	e := newEnv(t)

	_, err := e.ctrl.Send(context.Background(), "hi")
	require.NoError(t, err)

	msg := e.run(t, "/regen")
	require.IsType(t, GenerationDoneMsg{}, msg)
	done := msg.(GenerationDoneMsg)
	require.NoError(t, done.Err)
	assert.Equal(t, controller.StateCompleted, done.Result.State)

	sess := e.ctrl.Store().Active()
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "You said: hi", sess.Messages[1].Content)

	msg = e.run(t, "/preview 1 hello there")
	require.IsType(t, EditPreviewMsg{}, msg)
	assert.Equal(t, 0, msg.(EditPreviewMsg).Index)
	assert.Contains(t, msg.(EditPreviewMsg).Preview, "{+")
	assert.Contains(t, msg.(EditPreviewMsg).Preview, "1 later message(s)")

	msg = e.run(t, "/edit 1 hello there")
	require.IsType(t, GenerationDoneMsg{}, msg)
	require.NoError(t, msg.(GenerationDoneMsg).Err)

	sess = e.ctrl.Store().Active()
	require.Len(t, sess.Messages, 2)
	assert.Equal(t, "hello there", sess.Messages[0].Content)
	assert.Equal(t, "You said: hello there", sess.Messages[1].Content)
	assert.Equal(t, "hello there", sess.Title, "the title follows the edited message")

	msg = e.run(t, "/edit 2 not mine")
	require.IsType(t, GenerationDoneMsg{}, msg)
	assert.Equal(t, model.CodeNotEditable, model.ValidationCodeOf(msg.(GenerationDoneMsg).Err))

	assert.Equal(t, NoticeMsg{Level: controller.LevelInfo, Message: "Nothing to stop"}, e.run(t, "/stop"))

	msg = e.run(t, "/export json")
	require.IsType(t, ExportCompleteMsg{}, msg)
	path := msg.(ExportCompleteMsg).Path
	assert.Equal(t, "json", msg.(ExportCompleteMsg).Format)
	assert.True(t, strings.HasPrefix(filepath.Base(path), "lingshu_hello_there_"), path)
	_, err = os.Stat(path)
	assert.NoError(t, err)

	msg = e.run(t, "/clear")
	assert.Equal(t, NoticeMsg{Level: controller.LevelSuccess, Message: "Chat cleared"}, msg)
	assert.True(t, e.ctrl.Store().Active().IsEmpty())
	assert.NotEmpty(t, e.mock.Cleared())

	assert.Equal(t, NoticeMsg{Level: controller.LevelInfo, Message: "Nothing to export"}, e.run(t, "/export"))
}

func TestHandlers_Model(t *testing.T) {
	e := newEnv(t)

	msg := e.run(t, "/load 8bit")
	require.IsType(t, NoticeMsg{}, msg)
	assert.Equal(t, controller.LevelSuccess, msg.(NoticeMsg).Level)
	assert.Equal(t, "8bit", e.ctrl.AppState().Quantization)

	msg = e.run(t, "/status")
	require.IsType(t, StatusMsg{}, msg)
	status := msg.(StatusMsg)
	assert.True(t, status.App.Online)
	assert.True(t, status.App.ModelLoaded)
	assert.Equal(t, model.Quant8Bit, status.Settings.Quantization)
	assert.Contains(t, status.String(), "Backend:     online")
	assert.Contains(t, status.String(), "Model:       loaded (8bit)")

	msg = e.run(t, "/set temperature 0.3")
	require.IsType(t, NoticeMsg{}, msg)
	assert.Equal(t, 0.3, e.ctrl.Settings().Temperature)

	msg = e.run(t, "/set max_tokens lots")
	require.IsType(t, ErrorMsg{}, msg)

	msg = e.run(t, "/unload")
	assert.Equal(t, NoticeMsg{Level: controller.LevelSuccess, Message: "Model unloaded"}, msg)
	assert.False(t, e.ctrl.AppState().ModelLoaded)

	msg = e.run(t, "/regen")
	require.IsType(t, GenerationDoneMsg{}, msg)
	assert.Error(t, msg.(GenerationDoneMsg).Err)
}

func TestHandlers_Attachments(t *testing.T) {
	e := newEnv(t)

	msg := e.run(t, "/attach "+filepath.Join(t.TempDir(), "missing.png"))
	require.IsType(t, ErrorMsg{}, msg)
	assert.Empty(t, e.ctrl.Attachments())

	require.NoError(t, e.ctrl.AddAttachmentData("a.png", pngBytes()))
	require.NoError(t, e.ctrl.AddAttachmentData("b.png", pngBytes()))

	msg = e.run(t, "/detach 1")
	assert.Equal(t, NoticeMsg{Level: controller.LevelSuccess, Message: "1 image(s) ready to send"}, msg)
	require.Len(t, e.ctrl.Attachments(), 1)
	assert.Equal(t, "b.png", e.ctrl.Attachments()[0].Name)

	msg = e.run(t, "/detach 5")
	require.IsType(t, ErrorMsg{}, msg)

	msg = e.run(t, "/detach")
	assert.Equal(t, NoticeMsg{Level: controller.LevelSuccess, Message: "Attachments cleared"}, msg)
	assert.Empty(t, e.ctrl.Attachments())
}

func TestHandlers_Quit(t *testing.T) {
	e := newEnv(t)
	assert.IsType(t, tea.QuitMsg{}, e.run(t, "/q"))
	assert.Equal(t, ShowHelpMsg{Topic: "edit"}, e.run(t, "/help edit"))
}

// pngBytes returns a minimal byte sequence that sniffs as image/png.
func pngBytes() []byte {
	return append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...)
}
