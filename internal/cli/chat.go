// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// chat.go - Line-oriented chat with input history.
//
// Command: chat
// Short:   Chat on the command line without the full-screen UI
//
// Examples:
//   lingshu chat                  Continue the active chat
//   lingshu chat --new            Start a new chat
//   lingshu chat -s 3f2a9c1e      Continue a saved chat
//   lingshu chat -i scan.png      Attach an image to the first message
//
// Every slash command of the full-screen chat works here too. Ctrl+C stops
// a reply that is streaming; Ctrl+C or Ctrl+D at the prompt exits.

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/lingshu-tui/internal/commands"
	"github.com/jeranaias/lingshu-tui/internal/config"
	"github.com/jeranaias/lingshu-tui/internal/controller"
	"github.com/jeranaias/lingshu-tui/internal/export"
	"github.com/jeranaias/lingshu-tui/internal/storage"
	"github.com/jeranaias/lingshu-tui/internal/ui/styles"
)

// =============================================================================
// INPUT HISTORY
// =============================================================================

// ChatCLI provides line editing, history and tab completion.
type ChatCLI struct {
	line        *liner.State
	historyFile string
}

// NewChatCLI creates a line editor completing with complete.
func NewChatCLI(complete func(line string) []string) *ChatCLI {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	line.SetTabCompletionStyle(liner.TabPrints)
	if complete != nil {
		line.SetCompleter(complete)
	}

	configDir, err := config.ConfigDir()
	if err != nil {
		configDir = os.TempDir()
	}
	c := &ChatCLI{
		line:        line,
		historyFile: filepath.Join(configDir, "chat_history"),
	}
	c.LoadHistory()
	return c
}

// LoadHistory loads input history from file.
func (c *ChatCLI) LoadHistory() {
	if f, err := os.Open(c.historyFile); err == nil {
		c.line.ReadHistory(f)
		f.Close()
	}
}

// ReadInput reads a line with the given prompt.
func (c *ChatCLI) ReadInput(prompt string) (string, error) {
	input, err := c.line.Prompt(prompt)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		c.line.AppendHistory(input)
	}
	return input, nil
}

// SaveHistory persists input history with owner-only permissions.
func (c *ChatCLI) SaveHistory() {
	if err := os.MkdirAll(filepath.Dir(c.historyFile), 0700); err != nil {
		return
	}
	f, err := os.OpenFile(c.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return
	}
	defer f.Close()
	c.line.WriteHistory(f)
}

// Close saves history and restores the terminal.
func (c *ChatCLI) Close() {
	c.SaveHistory()
	c.line.Close()
}

// =============================================================================
// STREAM PRINTER
// =============================================================================

// streamPrinter is the controller presenter of the line-oriented commands.
// With live set it prints each reply as it streams; blocking notices go
// to errOut. With callerErrors set, error notices are left to the caller,
// which reports the returned error itself.
type streamPrinter struct {
	mu           sync.Mutex
	out          io.Writer
	errOut       io.Writer
	live         bool
	callerErrors bool
	printed      int
}

var _ controller.Presenter = (*streamPrinter)(nil)

func newStreamPrinter(out, errOut io.Writer, live bool) *streamPrinter {
	return &streamPrinter{out: out, errOut: errOut, live: live}
}

// Render prints the part of the pending reply not yet on screen.
func (p *streamPrinter) Render(view controller.SessionView) {
	if !p.live || view.Pending == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	content := view.Pending.Content
	if len(content) > p.printed {
		fmt.Fprint(p.out, content[p.printed:])
		p.printed = len(content)
	}
}

// Notify prints a notice on its own line.
func (p *streamPrinter) Notify(n controller.Notice) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.printed > 0 {
		fmt.Fprintln(p.out)
		p.printed = 0
	}
	if p.callerErrors && n.Level == controller.LevelError {
		return
	}
	text := n.Message
	if n.Err != nil && n.Err.Error() != n.Message {
		text += ": " + n.Err.Error()
	}
	indicator := WarningStyle.Render(styles.StatusIndicators.Warning)
	if n.Level == controller.LevelError {
		indicator = ErrorStyle.Render(styles.StatusIndicators.Error)
	}
	fmt.Fprintf(p.errOut, "%s %s\n", indicator, text)
}

// begin forgets the previous reply.
func (p *streamPrinter) begin() {
	p.mu.Lock()
	p.printed = 0
	p.mu.Unlock()
}

// finish prints whatever of the committed reply is not on screen yet,
// such as the abort marker, and ends the line. It reports whether the
// reply was printed.
func (p *streamPrinter) finish(content string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.live {
		return false
	}
	switch {
	case p.printed == 0 && content == "":
	case p.printed == 0:
		fmt.Fprintln(p.out, content)
	case p.printed <= len(content):
		fmt.Fprintln(p.out, content[p.printed:])
	default:
		fmt.Fprintln(p.out)
	}
	p.printed = 0
	return true
}

// =============================================================================
// CHAT COMMAND
// =============================================================================

type chatFlags struct {
	session string
	newChat bool
	images  []string
	raw     bool
}

func (app *App) chatCommand() *cobra.Command {
	var f chatFlags
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat on the command line without the full-screen UI",
		Example: `  lingshu chat
  lingshu chat --new -i scan.png
  lingshu chat -s 3f2a9c1e`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runChat(cmd.Context(), f)
		},
	}
	cmd.Flags().StringVarP(&f.session, "session", "s", "", "continue this chat (id, short id or title)")
	cmd.Flags().BoolVar(&f.newChat, "new", false, "start a new chat")
	cmd.Flags().StringSliceVarP(&f.images, "image", "i", nil, "attach an image to the first message (repeatable)")
	cmd.Flags().BoolVar(&f.raw, "raw", false, "print replies as plain text instead of rendered markdown")
	return cmd
}

// repl is one interactive chat.
type repl struct {
	app      *App
	ctrl     *controller.Controller
	printer  *streamPrinter
	registry *commands.Registry
	parser   *commands.Parser
	cmdCtx   *commands.Context
	out      *Output
	markdown bool
	width    int
}

func (app *App) runChat(ctx context.Context, f chatFlags) error {
	if err := RequiresTTY("chat"); err != nil {
		return err
	}

	markdown := app.Config.UI.Markdown && !f.raw && IsStdoutTTY()
	printer := newStreamPrinter(app.Stdout, app.Stderr, !markdown)
	ctrl, closeStore, err := app.newController(printer)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := ctrl.RefreshStatus(ctx); err != nil {
		app.out().Warn("cannot reach the backend at %s", app.Config.Backend.URL)
	}
	if err := prepareSession(ctrl, f.session, f.newChat); err != nil {
		return err
	}
	if len(f.images) > 0 {
		if err := ctrl.AddAttachments(f.images...); err != nil {
			return err
		}
	}

	reg := commands.NewRegistry()
	cmdCtx := commands.NewContext(ctrl)
	cmdCtx.Base = ctx
	cmdCtx.Export = export.DefaultOptions()

	r := &repl{
		app:      app,
		ctrl:     ctrl,
		printer:  printer,
		registry: reg,
		parser:   commands.NewParser(reg),
		cmdCtx:   cmdCtx,
		out:      &Output{Out: app.Stdout, Err: app.Stderr},
		markdown: markdown,
		width:    TerminalWidth(),
	}
	return r.run(ctx)
}

// prepareSession makes the requested chat active.
func prepareSession(ctrl *controller.Controller, ref string, fresh bool) error {
	switch {
	case fresh:
		_, err := ctrl.NewSession()
		return err
	case ref != "":
		_, err := ctrl.SelectSession(ref)
		return err
	}
	return nil
}

func (r *repl) run(ctx context.Context) error {
	completer := commands.NewCompleter(r.registry)
	completer.SessionsFn = r.ctrl.Store().Summaries
	input := NewChatCLI(completer.Lines)
	defer input.Close()

	// Ctrl+C outside the prompt stops the running reply.
	stop := stopOnInterrupt(r.ctrl)
	defer stop()

	r.welcome()
	for {
		line, err := input.ReadInput(PromptStyle.Render(r.prompt()))
		if err != nil {
			// Ctrl+C, Ctrl+D and closed input all end the chat.
			fmt.Fprintln(r.app.Stdout)
			if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		if ctx.Err() != nil {
			return nil
		}

		line = strings.TrimSpace(line)
		switch {
		case line == "":
			continue
		case strings.EqualFold(line, "exit"), strings.EqualFold(line, "quit"):
			return nil
		case commands.IsCommand(line):
			if r.dispatch(line) {
				return nil
			}
		default:
			r.printer.begin()
			res, err := r.ctrl.Send(ctx, line)
			r.finish(res, err)
		}
	}
}

// prompt shows how many images wait for the next message.
func (r *repl) prompt() string {
	if n := len(r.ctrl.Attachments()); n > 0 {
		return fmt.Sprintf("lingshu [%d img]> ", n)
	}
	return "lingshu> "
}

func (r *repl) welcome() {
	fmt.Fprintln(r.app.Stdout, TitleStyle.Render("lingshu chat"))
	app := r.ctrl.AppState()
	model := "no model loaded (/load)"
	if app.ModelLoaded {
		model = "model loaded (" + app.Quantization + ")"
	}
	fmt.Fprintf(r.app.Stdout, "%s %s\n", RenderStatus(app.Online), model)
	if sess := r.ctrl.Store().Active(); sess != nil {
		fmt.Fprintf(r.app.Stdout, "%s %s (%d messages)\n",
			DimStyle.Render("chat"), sess.DisplayTitle(), sess.MessageCount())
	}
	fmt.Fprintln(r.app.Stdout, DimStyle.Render("Type a message and press Enter. /help lists commands, Ctrl+D exits."))
	fmt.Fprintln(r.app.Stdout)
}

// dispatch runs a slash command and reports whether the chat should end.
func (r *repl) dispatch(line string) bool {
	cmd := r.parser.Dispatch(r.cmdCtx, line)
	if cmd == nil {
		return false
	}
	r.printer.begin()
	return r.handle(cmd())
}

// handle prints one command result.
func (r *repl) handle(msg tea.Msg) bool {
	switch msg := msg.(type) {
	case nil:
	case tea.QuitMsg:
		return true
	case tea.BatchMsg:
		for _, cmd := range msg {
			if cmd != nil && r.handle(cmd()) {
				return true
			}
		}
	case commands.NoticeMsg:
		if msg.Level >= controller.LevelWarn {
			r.out.Warn("%s", msg.Message)
		} else {
			r.out.Success("%s", msg.Message)
		}
	case commands.ErrorMsg:
		fmt.Fprintf(r.app.Stderr, "%s %s: %s\n", ErrorStyle.Render(styles.StatusIndicators.Error), msg.Title, msg.Message)
		if msg.Tip != "" {
			fmt.Fprintf(r.app.Stderr, "    %s\n", DimStyle.Render(msg.Tip))
		}
	case commands.ShowHelpMsg:
		fmt.Fprintln(r.app.Stdout, commands.HelpText(r.registry, msg.Topic))
		if msg.Topic == "" {
			fmt.Fprintln(r.app.Stdout, DimStyle.Render("Ctrl+C stops a reply. Ctrl+D exits."))
		}
	case commands.SessionListMsg:
		fmt.Fprint(r.app.Stdout, storage.FormatSessionList(msg.Sessions, msg.ActiveID))
	case commands.StatusMsg:
		fmt.Fprintln(r.app.Stdout, msg.String())
	case commands.EditPreviewMsg:
		fmt.Fprintln(r.app.Stdout, msg.Preview)
		fmt.Fprintln(r.app.Stdout, DimStyle.Render(fmt.Sprintf("Apply with /edit %d <text>", msg.Index+1)))
	case commands.GenerationDoneMsg:
		r.finish(msg.Result, msg.Err)
	case commands.ExportCompleteMsg:
		r.out.Success("Exported %s to %s", msg.Format, msg.Path)
	}
	return false
}

// finish prints the end of a generation. Failures were already reported
// through the printer.
func (r *repl) finish(res *controller.Result, err error) {
	if res == nil {
		if err != nil {
			r.out.Error(err)
		}
		return
	}
	if res.Message == nil {
		r.printer.finish("")
		if res.State == controller.StateAborted {
			r.out.Warn("stopped before any text arrived")
		}
		return
	}
	if r.printer.finish(res.Message.Content) {
		return
	}
	fmt.Fprintln(r.app.Stdout, renderMarkdown(res.Message.Content, r.width))
}
