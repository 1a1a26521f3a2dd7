// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/lingshu-tui/internal/controller"
	"github.com/jeranaias/lingshu-tui/internal/export"
	"github.com/jeranaias/lingshu-tui/internal/model"
	"github.com/jeranaias/lingshu-tui/internal/storage"
)

// =============================================================================
// MESSAGE TYPES
// =============================================================================

// These messages are returned by command handlers for the front end to show.

// ShowHelpMsg triggers the help display.
type ShowHelpMsg struct {
	Topic string
}

// NoticeMsg reports the outcome of a command.
type NoticeMsg struct {
	Level   controller.Level
	Message string
}

// ErrorMsg reports a failed command.
type ErrorMsg struct {
	Title   string
	Message string
	Tip     string
	Err     error
}

// SessionListMsg contains the saved sessions, most recent first.
type SessionListMsg struct {
	Sessions []model.SessionSummary
	ActiveID string
}

// StatusMsg contains backend, model and settings state.
type StatusMsg struct {
	App         controller.AppState
	Settings    storage.Settings
	Attachments int
	Sessions    int
}

// String formats the status as aligned "key: value" lines.
func (m StatusMsg) String() string {
	backend := "offline"
	if m.App.Online {
		backend = "online"
	}
	loaded := "not loaded"
	if m.App.ModelLoaded {
		loaded = "loaded"
		if m.App.Quantization != "" {
			loaded += " (" + m.App.Quantization + ")"
		}
	}
	gpu := "none"
	if m.App.GPUAvailable {
		gpu = m.App.GPUName
		if gpu == "" {
			gpu = "available"
		}
	}

	rows := [][2]string{
		{"Backend", backend},
		{"Model", loaded},
		{"GPU", gpu},
		{"Generation", m.App.State.String()},
		{"Temperature", strconv.FormatFloat(m.Settings.Temperature, 'g', -1, 64)},
		{"Max tokens", strconv.Itoa(m.Settings.MaxTokens)},
		{"Load mode", string(m.Settings.Quantization)},
		{"Images", strconv.Itoa(m.Attachments)},
		{"Chats", strconv.Itoa(m.Sessions)},
	}
	var sb strings.Builder
	for _, r := range rows {
		fmt.Fprintf(&sb, "%-12s %s\n", r[0]+":", r[1])
	}
	return sb.String()
}

// EditPreviewMsg shows what an edit would change. Preview is plain text;
// Content is the proposed message for front ends that draw their own diff.
type EditPreviewMsg struct {
	Index   int
	Content string
	Preview string
}

// GenerationDoneMsg is returned when a command-started generation ends.
type GenerationDoneMsg struct {
	Result *controller.Result
	Err    error
}

// ExportCompleteMsg reports a written export.
type ExportCompleteMsg struct {
	Path   string
	Format string
}

func notice(level controller.Level, format string, args ...any) tea.Cmd {
	msg := fmt.Sprintf(format, args...)
	return func() tea.Msg {
		return NoticeMsg{Level: level, Message: msg}
	}
}

func failure(title string, err error) tea.Cmd {
	return func() tea.Msg {
		return NewErrorMsg(title, err)
	}
}

// NewErrorMsg builds an ErrorMsg with a tip for the common validation codes.
func NewErrorMsg(title string, err error) ErrorMsg {
	msg := ErrorMsg{Title: title, Message: err.Error(), Err: err}
	switch model.ValidationCodeOf(err) {
	case model.CodeNoModelLoaded:
		msg.Tip = "Load the model with /load"
	case model.CodeBusy:
		msg.Tip = "Wait for the reply or use /stop"
	case model.CodeAttachmentCount:
		msg.Tip = "Remove images with /detach"
	}
	if errors.Is(err, storage.ErrSessionNotFound) {
		msg.Tip = "List chats with /sessions"
	}
	return msg
}

func unavailable() tea.Cmd {
	return failure("Unavailable", errors.New("no chat controller is attached"))
}

// =============================================================================
// GENERAL
// =============================================================================

// HandleHelp shows help information.
func HandleHelp(ctx *Context, args []string) tea.Cmd {
	topic := ""
	if len(args) > 0 {
		topic = args[0]
	}
	return func() tea.Msg {
		return ShowHelpMsg{Topic: topic}
	}
}

// HandleQuit exits the application.
func HandleQuit(ctx *Context, args []string) tea.Cmd {
	return tea.Quit
}

// =============================================================================
// CONVERSATION
// =============================================================================

// HandleRegenerate regenerates the reply to the last user message.
func HandleRegenerate(ctx *Context, args []string) tea.Cmd {
	if ctx == nil || ctx.Controller == nil {
		return unavailable()
	}
	ctrl, base := ctx.Controller, ctx.base()
	return func() tea.Msg {
		res, err := ctrl.Regenerate(base)
		return GenerationDoneMsg{Result: res, Err: err}
	}
}

// HandleEdit replaces a user message and regenerates from it.
func HandleEdit(ctx *Context, args []string) tea.Cmd {
	if ctx == nil || ctx.Controller == nil {
		return unavailable()
	}
	index, content, err := editArgs(args)
	if err != nil {
		return failure("Cannot edit", err)
	}
	ctrl, base := ctx.Controller, ctx.base()
	return func() tea.Msg {
		res, err := ctrl.EditAndRegenerate(base, index, content)
		return GenerationDoneMsg{Result: res, Err: err}
	}
}

// HandlePreview shows the difference an edit would make.
func HandlePreview(ctx *Context, args []string) tea.Cmd {
	if ctx == nil || ctx.Controller == nil {
		return unavailable()
	}
	index, content, err := editArgs(args)
	if err != nil {
		return failure("Cannot preview", err)
	}
	preview, err := ctx.Controller.EditPreview(index, content)
	if err != nil {
		return failure("Cannot preview", err)
	}
	return func() tea.Msg {
		return EditPreviewMsg{Index: index, Content: strings.TrimSpace(content), Preview: preview}
	}
}

// editArgs converts "<number> <text...>" to a message index and content.
// Message numbers are 1-based as shown in the transcript.
func editArgs(args []string) (int, string, error) {
	if len(args) < 2 {
		return 0, "", errors.New("usage: /edit <index> <text>")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 1 {
		return 0, "", fmt.Errorf("invalid message number %q", args[0])
	}
	return n - 1, strings.Join(args[1:], " "), nil
}

// HandleStop aborts the running generation.
func HandleStop(ctx *Context, args []string) tea.Cmd {
	if ctx == nil || ctx.Controller == nil {
		return unavailable()
	}
	if !ctx.Controller.Stop() {
		return notice(controller.LevelInfo, "Nothing to stop")
	}
	return nil
}

// HandleClear drops the messages of the active session.
func HandleClear(ctx *Context, args []string) tea.Cmd {
	if ctx == nil || ctx.Controller == nil {
		return unavailable()
	}
	ctrl, base := ctx.Controller, ctx.base()
	return func() tea.Msg {
		active := ctrl.Store().ActiveID()
		if active == "" {
			return NoticeMsg{Level: controller.LevelInfo, Message: "Nothing to clear"}
		}
		if err := ctrl.ClearSession(base, active); err != nil {
			return NewErrorMsg("Cannot clear chat", err)
		}
		return NoticeMsg{Level: controller.LevelSuccess, Message: "Chat cleared"}
	}
}

// HandleExport writes the active session to a file.
func HandleExport(ctx *Context, args []string) tea.Cmd {
	if ctx == nil || ctx.Controller == nil {
		return unavailable()
	}

	format := "md"
	if len(args) > 0 {
		format = args[0]
	}
	opts := export.DefaultOptions()
	if ctx.Export != nil {
		copied := *ctx.Export
		opts = &copied
	}
	if len(args) > 1 {
		opts.OutputDir = args[1]
	}

	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		return func() tea.Msg {
			return ErrorMsg{
				Title:   "Invalid export format",
				Message: err.Error(),
				Tip:     "Supported formats: " + strings.Join(export.Formats(), ", "),
				Err:     err,
			}
		}
	}

	ctrl := ctx.Controller
	return func() tea.Msg {
		sess := ctrl.Store().Active()
		if sess == nil || sess.IsEmpty() {
			return NoticeMsg{Level: controller.LevelInfo, Message: "Nothing to export"}
		}
		path, err := export.ToFile(sess, exporter, opts)
		if err != nil {
			return NewErrorMsg("Export failed", err)
		}
		return ExportCompleteMsg{Path: path, Format: strings.TrimPrefix(exporter.FileExtension(), ".")}
	}
}

// =============================================================================
// SESSIONS
// =============================================================================

// HandleNew starts a new session.
func HandleNew(ctx *Context, args []string) tea.Cmd {
	if ctx == nil || ctx.Controller == nil {
		return unavailable()
	}
	ctrl := ctx.Controller
	return func() tea.Msg {
		if _, err := ctrl.NewSession(); err != nil {
			return NewErrorMsg("Cannot start a new chat", err)
		}
		return NoticeMsg{Level: controller.LevelSuccess, Message: "New chat"}
	}
}

// HandleSessions lists saved sessions.
func HandleSessions(ctx *Context, args []string) tea.Cmd {
	if ctx == nil || ctx.Controller == nil {
		return unavailable()
	}
	store := ctx.Controller.Store()
	return func() tea.Msg {
		return SessionListMsg{Sessions: store.Summaries(), ActiveID: store.ActiveID()}
	}
}

// HandleSwitch makes another session active.
func HandleSwitch(ctx *Context, args []string) tea.Cmd {
	if ctx == nil || ctx.Controller == nil {
		return unavailable()
	}
	ref := resolveRef(ctx.Controller.Store(), args[0])
	sess, err := ctx.Controller.SelectSession(ref)
	if err != nil {
		return failure("Cannot switch chat", err)
	}
	return notice(controller.LevelSuccess, "Switched to %q", sess.DisplayTitle())
}

// HandleRename renames the active session.
func HandleRename(ctx *Context, args []string) tea.Cmd {
	if ctx == nil || ctx.Controller == nil {
		return unavailable()
	}
	active := ctx.Controller.Store().ActiveID()
	if active == "" {
		return failure("Cannot rename chat", storage.ErrSessionNotFound)
	}
	title := strings.Join(args, " ")
	if err := ctx.Controller.RenameSession(active, title); err != nil {
		return failure("Cannot rename chat", err)
	}
	return notice(controller.LevelSuccess, "Renamed to %q", strings.TrimSpace(title))
}

// HandleDelete deletes a session, the active one by default.
func HandleDelete(ctx *Context, args []string) tea.Cmd {
	if ctx == nil || ctx.Controller == nil {
		return unavailable()
	}
	ctrl, base := ctx.Controller, ctx.base()

	ref := ctrl.Store().ActiveID()
	if len(args) > 0 {
		ref = resolveRef(ctrl.Store(), args[0])
	}
	if ref == "" {
		return notice(controller.LevelInfo, "Nothing to delete")
	}
	return func() tea.Msg {
		if err := ctrl.DeleteSession(base, ref); err != nil {
			return NewErrorMsg("Cannot delete chat", err)
		}
		return NoticeMsg{Level: controller.LevelSuccess, Message: "Chat deleted"}
	}
}

// resolveRef maps a 1-based list number from /sessions to a session id.
// Anything else is returned unchanged for the store to resolve.
func resolveRef(store *storage.Store, ref string) string {
	n, err := strconv.Atoi(ref)
	if err != nil {
		return ref
	}
	sums := store.Summaries()
	if n < 1 || n > len(sums) {
		return ref
	}
	return sums[n-1].ID
}

// =============================================================================
// ATTACHMENTS
// =============================================================================

// HandleAttach adds images to the pending set. The batch is all or nothing.
func HandleAttach(ctx *Context, args []string) tea.Cmd {
	if ctx == nil || ctx.Controller == nil {
		return unavailable()
	}
	if err := ctx.Controller.AddAttachments(args...); err != nil {
		return failure("Cannot attach", err)
	}
	return notice(controller.LevelSuccess, "%d image(s) ready to send", len(ctx.Controller.Attachments()))
}

// HandleDetach removes one pending image, or all of them.
func HandleDetach(ctx *Context, args []string) tea.Cmd {
	if ctx == nil || ctx.Controller == nil {
		return unavailable()
	}
	if len(args) == 0 || strings.EqualFold(args[0], "all") {
		ctx.Controller.ClearAttachments()
		return notice(controller.LevelSuccess, "Attachments cleared")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || !ctx.Controller.RemoveAttachment(n-1) {
		return failure("Cannot detach", fmt.Errorf("no pending image %q", args[0]))
	}
	return notice(controller.LevelSuccess, "%d image(s) ready to send", len(ctx.Controller.Attachments()))
}

// =============================================================================
// MODEL
// =============================================================================

// HandleLoad loads the model, with the stored quantization by default.
func HandleLoad(ctx *Context, args []string) tea.Cmd {
	if ctx == nil || ctx.Controller == nil {
		return unavailable()
	}
	quant := ctx.Controller.Settings().Quantization
	if len(args) > 0 {
		q, err := model.ParseQuantization(args[0])
		if err != nil {
			return failure("Cannot load model", err)
		}
		quant = q
	}
	ctrl, base := ctx.Controller, ctx.base()
	return func() tea.Msg {
		if err := ctrl.LoadModel(base, quant); err != nil {
			return NewErrorMsg("Cannot load model", err)
		}
		return NoticeMsg{Level: controller.LevelSuccess, Message: "Model loaded (" + quant.Description() + ")"}
	}
}

// HandleUnload unloads the model.
func HandleUnload(ctx *Context, args []string) tea.Cmd {
	if ctx == nil || ctx.Controller == nil {
		return unavailable()
	}
	ctrl, base := ctx.Controller, ctx.base()
	return func() tea.Msg {
		if err := ctrl.UnloadModel(base); err != nil {
			return NewErrorMsg("Cannot unload model", err)
		}
		return NoticeMsg{Level: controller.LevelSuccess, Message: "Model unloaded"}
	}
}

// HandleStatus refreshes and reports backend status.
func HandleStatus(ctx *Context, args []string) tea.Cmd {
	if ctx == nil || ctx.Controller == nil {
		return unavailable()
	}
	ctrl, base := ctx.Controller, ctx.base()
	return func() tea.Msg {
		// An offline backend is reported through AppState.Online.
		_ = ctrl.RefreshStatus(base)
		return StatusMsg{
			App:         ctrl.AppState(),
			Settings:    ctrl.Settings(),
			Attachments: len(ctrl.Attachments()),
			Sessions:    ctrl.Store().Len(),
		}
	}
}

// HandleSet changes one generation setting.
func HandleSet(ctx *Context, args []string) tea.Cmd {
	if ctx == nil || ctx.Controller == nil {
		return unavailable()
	}
	settings, err := ApplySetting(ctx.Controller.Settings(), args[0], strings.Join(args[1:], " "))
	if err != nil {
		return failure("Invalid setting", err)
	}
	if err := ctx.Controller.UpdateSettings(settings); err != nil {
		return failure("Invalid setting", err)
	}
	return notice(controller.LevelSuccess, "%s set to %s", args[0], strings.Join(args[1:], " "))
}

// SettingKeys lists the names accepted by ApplySetting.
func SettingKeys() []string {
	return []string{"temperature", "max_tokens", "quantization"}
}

// ApplySetting returns settings with key set to the parsed value.
// Range checks are left to Settings.Validate.
func ApplySetting(settings storage.Settings, key, value string) (storage.Settings, error) {
	value = strings.TrimSpace(value)
	switch strings.ToLower(strings.ReplaceAll(key, "-", "_")) {
	case "temperature", "temp":
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return settings, &model.ValidationError{Code: model.CodeInvalidSetting, Message: "temperature must be a number"}
		}
		settings.Temperature = f
	case "max_tokens", "maxtokens":
		n, err := strconv.Atoi(value)
		if err != nil {
			return settings, &model.ValidationError{Code: model.CodeInvalidSetting, Message: "max tokens must be an integer"}
		}
		settings.MaxTokens = n
	case "quantization", "quant":
		q, err := model.ParseQuantization(value)
		if err != nil {
			return settings, err
		}
		settings.Quantization = q
	default:
		return settings, &model.ValidationError{
			Code:    model.CodeInvalidSetting,
			Message: fmt.Sprintf("unknown setting %q (want %s)", key, strings.Join(SettingKeys(), ", ")),
		}
	}
	return settings, settings.Validate()
}
