// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/lingshu-tui/internal/commands"
	"github.com/jeranaias/lingshu-tui/internal/controller"
	"github.com/jeranaias/lingshu-tui/internal/storage"
	"github.com/jeranaias/lingshu-tui/internal/ui/components"
)

// =============================================================================
// UPDATE
// =============================================================================

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.ready = true
		m.theme.SetSize(msg.Width, msg.Height)
		m.layout(true)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case ViewMsg:
		return m, m.applyView(msg.View)

	case NoticeMsg:
		m.toasts.AddNotice(msg.Notice)
		m.layout(false)
		return m, nil

	case components.ToastTickMsg:
		before := m.toasts.Len()
		m.toasts.Tick(msg.Time)
		if m.toasts.Len() != before {
			m.layout(false)
		}
		return m, components.ToastTickCmd()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case commands.NoticeMsg:
		m.toasts.AddNotice(controller.Notice{Level: msg.Level, Message: msg.Message})
		return m, m.refresh()

	case commands.ErrorMsg:
		m.addError(msg)
		return m, m.refresh()

	case commands.ShowHelpMsg:
		m.openHelp(msg.Topic)
		return m, nil

	case commands.SessionListMsg:
		m.openText("Chats", storage.FormatSessionList(msg.Sessions, msg.ActiveID)+
			"\nSwitch with /switch <number|id>")
		return m, nil

	case commands.StatusMsg:
		m.openText("Status", msg.String())
		return m, m.refresh()

	case commands.EditPreviewMsg:
		m.openPreview(msg)
		return m, nil

	case commands.GenerationDoneMsg:
		// Failed generations were already reported by the controller.
		if msg.Result == nil && msg.Err != nil {
			m.addError(commands.NewErrorMsg("Cannot send", msg.Err))
		}
		return m, m.refresh()

	case commands.ExportCompleteMsg:
		m.toasts.AddNotice(controller.Notice{
			Level:   controller.LevelSuccess,
			Message: fmt.Sprintf("Exported %s to %s", msg.Format, msg.Path),
		})
		m.layout(false)
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	inFlight := m.view.App.InFlight

	// Stopping wins over everything, including overlays.
	if inFlight && key.Matches(msg, m.keys.Stop) {
		if m.ctrl != nil {
			m.ctrl.Stop()
		}
		return m, nil
	}
	if key.Matches(msg, m.keys.Quit) {
		return m, tea.Quit
	}

	if m.overlay != overlayNone {
		return m.handleOverlayKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Help):
		m.openHelp("")
		return m, nil

	case key.Matches(msg, m.keys.Dismiss):
		if m.completion.Visible {
			m.completion.Clear()
		} else {
			m.toasts.DismissNewest()
		}
		m.layout(false)
		return m, nil

	case key.Matches(msg, m.keys.Complete):
		m.complete(true)
		return m, nil

	case key.Matches(msg, m.keys.PrevComp):
		if m.completion.Visible {
			m.completion.Prev()
		}
		return m, nil

	case key.Matches(msg, m.keys.Submit):
		if m.completion.Visible {
			m.input.SetValue(m.completion.Apply() + " ")
			m.completion.Clear()
			m.layout(false)
			return m, nil
		}
		return m.submit()

	case key.Matches(msg, m.keys.NewChat):
		return m, m.run("/new")

	case key.Matches(msg, m.keys.Regen):
		return m, m.run("/regen")

	case key.Matches(msg, m.keys.Up):
		m.viewport.LineUp(1)
		return m, nil
	case key.Matches(msg, m.keys.Down):
		m.viewport.LineDown(1)
		return m, nil
	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil
	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	case key.Matches(msg, m.keys.Bottom):
		m.viewport.GotoBottom()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	if m.completion.Visible {
		m.complete(false)
	}
	return m, cmd
}

func (m Model) handleOverlayKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		if m.overlay == overlayEdit && m.edit != nil && m.ctrl != nil {
			edit := *m.edit
			m.closeOverlay()
			ctrl, base := m.ctrl, m.base
			return m, func() tea.Msg {
				res, err := ctrl.EditAndRegenerate(base, edit.index, edit.content)
				return commands.GenerationDoneMsg{Result: res, Err: err}
			}
		}
		m.closeOverlay()
	case "esc", "q":
		m.closeOverlay()
	case "up":
		m.viewport.LineUp(1)
	case "down":
		m.viewport.LineDown(1)
	}
	return m, nil
}

// =============================================================================
// ACTIONS
// =============================================================================

// submit sends the input as a prompt or runs it as a command.
func (m Model) submit() (tea.Model, tea.Cmd) {
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return m, nil
	}
	m.input.Reset()
	m.completion.Clear()
	m.viewport.GotoBottom()
	m.layout(false)

	if commands.IsCommand(text) {
		return m, m.run(text)
	}
	if m.ctrl == nil {
		return m, nil
	}

	ctrl, base := m.ctrl, m.base
	return m, func() tea.Msg {
		res, err := ctrl.Send(base, text)
		return commands.GenerationDoneMsg{Result: res, Err: err}
	}
}

// run dispatches a slash command line.
func (m Model) run(line string) tea.Cmd {
	return m.parser.Dispatch(m.cmdCtx, line)
}

// complete refreshes completions for the current input. With cycle set, a
// visible list advances instead, and a single match is applied at once.
func (m *Model) complete(cycle bool) {
	value := m.input.Value()
	if cycle && m.completion.Visible && m.completion.OriginalInput == value {
		m.completion.Next()
		return
	}

	comps := m.completer.Complete(value, m.input.Position())
	if cycle && len(comps) == 1 {
		m.completion.Update(value, comps)
		m.input.SetValue(m.completion.Apply() + " ")
		m.completion.Clear()
	} else {
		m.completion.Update(value, comps)
	}
	m.layout(false)
}

// applyView stores a controller view and keeps the transcript pinned to
// the bottom when the user has not scrolled away.
func (m *Model) applyView(v controller.SessionView) tea.Cmd {
	m.view = v
	if m.ctrl != nil {
		m.sessions = m.ctrl.Store().Len()
	}
	m.layout(true)

	if v.App.InFlight {
		return m.spinner.Start()
	}
	m.spinner.Stop()
	return nil
}

// refresh pulls a view straight from the controller. Command results can
// arrive before the presenter's copy of the same change.
func (m *Model) refresh() tea.Cmd {
	if m.ctrl == nil {
		m.layout(false)
		return nil
	}
	return m.applyView(m.ctrl.View())
}

func (m *Model) addError(e commands.ErrorMsg) {
	text := e.Title
	if e.Message != "" {
		text += ": " + e.Message
	}
	t := components.NewToast(controller.Notice{Level: controller.LevelError, Message: text})
	t.Detail = e.Tip
	m.toasts.Add(t)
}

// =============================================================================
// OVERLAYS
// =============================================================================

func (m *Model) openHelp(topic string) {
	m.overlay = overlayHelp
	m.overlayTitle = "Help"
	m.overlayBody = helpText(m.keys, m.registry, topic)
}

func (m *Model) openText(title, body string) {
	m.overlay = overlayText
	m.overlayTitle = title
	m.overlayBody = body
}

func (m *Model) openPreview(msg commands.EditPreviewMsg) {
	sess := m.view.Session
	if sess == nil {
		return
	}
	orig := sess.MessageAt(msg.Index)
	if orig == nil {
		return
	}
	m.preview = components.NewEditPreview(m.theme, msg.Index, orig.Content, msg.Content, sess.MessageCount()-msg.Index-1)
	m.preview.Width = m.width
	m.edit = &pendingEdit{index: msg.Index, content: msg.Content}
	m.overlay = overlayEdit
}

func (m *Model) closeOverlay() {
	m.overlay = overlayNone
	m.overlayTitle = ""
	m.overlayBody = ""
	m.edit = nil
	m.preview = nil
}

// =============================================================================
// LAYOUT
// =============================================================================

// layout sizes the transcript to the space the chrome leaves. With
// content set it also redraws the transcript.
func (m *Model) layout(content bool) {
	if !m.ready {
		return
	}
	atBottom := m.viewport.AtBottom()

	m.input.SetWidth(m.width)
	m.input.SetPending(m.view.Attachments)
	m.popup.SetWidth(m.width - 4)

	chrome := 2 + lipgloss.Height(m.input.View())
	if p := m.popup.View(m.completion); p != "" {
		chrome += lipgloss.Height(p)
	}
	if t := components.RenderToastStack(m.toasts.Toasts(), m.width); t != "" {
		chrome += lipgloss.Height(t)
	}

	height := m.height - chrome
	if height < 3 {
		height = 3
	}
	m.viewport.Width = m.width
	m.viewport.Height = height

	if content {
		m.viewport.SetContent(components.RenderTranscript(
			m.view.Session, m.view.Pending, m.theme, m.markdown, m.width-2, m.timestamps))
	}
	if atBottom || m.view.App.InFlight {
		m.viewport.GotoBottom()
	}
}
