// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/lingshu-tui/internal/commands"
	"github.com/jeranaias/lingshu-tui/internal/controller"
	"github.com/jeranaias/lingshu-tui/internal/export"
	"github.com/jeranaias/lingshu-tui/internal/ui/components"
	"github.com/jeranaias/lingshu-tui/internal/ui/styles"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures the chat screen.
type Options struct {
	Controller *controller.Controller

	// Presenter must be the presenter the controller was built with.
	Presenter *Presenter

	// Theme defaults to an auto-detected theme.
	Theme *styles.Theme

	// Markdown renders assistant replies through glamour.
	Markdown bool

	// Timestamps shows the send time next to each message.
	Timestamps bool

	// Export configures /export.
	Export *export.Options

	// Base bounds generations and backend calls started from the screen.
	Base context.Context
}

// =============================================================================
// OVERLAYS
// =============================================================================

type overlayKind int

const (
	overlayNone overlayKind = iota
	overlayHelp
	overlayText
	overlayEdit
)

// pendingEdit is the edit the preview overlay applies on enter.
type pendingEdit struct {
	index   int
	content string
}

// =============================================================================
// CHAT MODEL
// =============================================================================

// Model is the Bubble Tea model of the chat screen. It draws whatever the
// controller last rendered and turns key presses into controller calls.
type Model struct {
	ctrl     *controller.Controller
	registry *commands.Registry
	parser   *commands.Parser
	cmdCtx   *commands.Context
	base     context.Context

	completer  *commands.Completer
	completion *commands.CompletionState

	theme    *styles.Theme
	keys     KeyMap
	markdown *components.Markdown

	viewport   viewport.Model
	input      *components.InputArea
	popup      *components.CompletionPopup
	header     *components.Header
	statusBar  *components.StatusBar
	spinner    components.Spinner
	toasts     *components.ToastManager
	timestamps bool

	view     controller.SessionView
	sessions int

	overlay      overlayKind
	overlayTitle string
	overlayBody  string
	edit         *pendingEdit
	preview      *components.EditPreview

	width  int
	height int
	ready  bool
}

// New creates the chat model.
func New(opts Options) Model {
	theme := opts.Theme
	if theme == nil {
		theme = styles.NewTheme("auto")
	}
	base := opts.Base
	if base == nil {
		base = context.Background()
	}

	reg := commands.NewRegistry()
	cmdCtx := commands.NewContext(opts.Controller)
	cmdCtx.Base = base
	cmdCtx.Export = opts.Export

	completer := commands.NewCompleter(reg)
	if opts.Controller != nil {
		store := opts.Controller.Store()
		completer.SessionsFn = store.Summaries
	}

	var md *components.Markdown
	if opts.Markdown {
		md = components.NewMarkdown(theme.GlamourStyle())
	}

	m := Model{
		ctrl:       opts.Controller,
		registry:   reg,
		parser:     commands.NewParser(reg),
		cmdCtx:     cmdCtx,
		base:       base,
		completer:  completer,
		completion: commands.NewCompletionState(),
		theme:      theme,
		keys:       DefaultKeyMap(),
		markdown:   md,
		viewport:   viewport.New(80, 20),
		input:      components.NewInputArea(theme),
		popup:      components.NewCompletionPopup(theme),
		header:     components.NewHeader(theme),
		statusBar:  components.NewStatusBar(theme),
		spinner:    components.NewSpinner(),
		toasts:     components.NewToastManager(),
		timestamps: opts.Timestamps,
	}
	if m.ctrl != nil {
		m.view = m.ctrl.View()
		m.sessions = m.ctrl.Store().Len()
	}
	m.input.Focus()
	return m
}

// =============================================================================
// BUBBLE TEA INTERFACE
// =============================================================================

// Init checks the backend and starts the cursor and toast timers.
func (m Model) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, components.ToastTickCmd()}
	if m.ctrl != nil {
		ctrl, base := m.ctrl, m.base
		cmds = append(cmds, func() tea.Msg {
			if err := ctrl.RefreshStatus(base); err != nil {
				return NoticeMsg{Notice: controller.Notice{
					Level:   controller.LevelWarn,
					Message: "cannot reach the backend",
					Err:     err,
				}}
			}
			return ViewMsg{View: ctrl.View()}
		})
	}
	return tea.Batch(cmds...)
}

// =============================================================================
// RUN
// =============================================================================

// Run starts the full-screen chat and blocks until the user quits. A
// running generation is stopped on exit.
func Run(ctx context.Context, opts Options) error {
	if opts.Presenter == nil {
		opts.Presenter = NewPresenter()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	opts.Base = ctx

	prog := tea.NewProgram(New(opts),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion(),
		tea.WithContext(ctx),
	)
	opts.Presenter.Attach(ctx, prog)

	_, err := prog.Run()
	if opts.Controller != nil {
		opts.Controller.Stop()
	}
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
