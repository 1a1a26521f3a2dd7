// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// ask.go - One question, one answer.
//
// Command: ask [question]
// Short:   Ask a single question, optionally about images
//
// Examples:
//   lingshu ask "What does this X-ray show?" -i chest.png
//   lingshu ask -c "And the left lung?"         Continue the active chat
//   echo "Summarise the findings" | lingshu ask -s 3f2a9c1e
//   lingshu ask --json "hello"
//
// The question is read from stdin when no argument is given and stdin is
// a pipe. Ctrl+C stops the reply; the partial text is kept in the chat.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/lingshu-tui/internal/controller"
	"github.com/jeranaias/lingshu-tui/internal/model"
)

type askFlags struct {
	images    []string
	session   string
	continued bool
	load      bool
	raw       bool
	quiet     bool
}

// AskResult is the --json payload of ask.
type AskResult struct {
	SessionID     string `json:"session_id"`
	CorrelationID string `json:"correlation_id,omitempty"`
	State         string `json:"state"`
	Reply         string `json:"reply"`
	Images        int    `json:"images"`
}

func (app *App) askCommand() *cobra.Command {
	var f askFlags
	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a single question, optionally about images",
		Example: `  lingshu ask "What does this X-ray show?" -i chest.png
  lingshu ask -c "And the left lung?"
  echo "Summarise the findings" | lingshu ask -s 3f2a9c1e`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runAsk(cmd.Context(), f, args)
		},
	}
	flags := cmd.Flags()
	flags.StringSliceVarP(&f.images, "image", "i", nil, "attach an image (repeatable)")
	flags.StringVarP(&f.session, "session", "s", "", "ask in this chat (id, short id or title)")
	flags.BoolVarP(&f.continued, "continue", "c", false, "ask in the active chat instead of a new one")
	flags.BoolVar(&f.load, "load", false, "load the model first if it is not loaded")
	flags.BoolVar(&f.raw, "raw", false, "print the reply as plain text instead of rendered markdown")
	flags.BoolVarP(&f.quiet, "quiet", "q", false, "print only the reply")
	return cmd
}

func (app *App) runAsk(ctx context.Context, f askFlags, args []string) error {
	question, err := app.readQuestion(args)
	if err != nil {
		return err
	}

	out := app.out()
	markdown := !app.JSON && !f.raw && app.Config.UI.Markdown && IsStdoutTTY()
	printer := newStreamPrinter(app.Stdout, app.Stderr, !app.JSON && !markdown)
	printer.callerErrors = true

	ctrl, closeStore, err := app.newController(printer)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := ctrl.RefreshStatus(ctx); err != nil {
		return err
	}
	if f.load && !ctrl.AppState().ModelLoaded {
		quant := ctrl.Settings().Quantization
		if !f.quiet {
			fmt.Fprintf(app.Stderr, "%s loading model (%s)...\n", DimStyle.Render("[*]"), quant)
		}
		if err := ctrl.LoadModel(ctx, quant); err != nil {
			return err
		}
	}

	switch {
	case f.session != "":
		_, err = ctrl.SelectSession(f.session)
	case !f.continued || ctrl.Store().Active() == nil:
		_, err = ctrl.NewSession()
	}
	if err != nil {
		return err
	}
	if len(f.images) > 0 {
		if err := ctrl.AddAttachments(f.images...); err != nil {
			return err
		}
		if !f.quiet && !app.JSON {
			fmt.Fprintf(app.Stderr, "%s %d image(s) attached\n", DimStyle.Render("[+]"), len(f.images))
		}
	}

	stop := stopOnInterrupt(ctrl)
	defer stop()

	return out.Result("ask", func() (any, error) {
		res, err := ctrl.Send(ctx, question)
		if res == nil {
			return nil, err
		}
		data := AskResult{
			SessionID:     res.SessionID,
			CorrelationID: res.CorrelationID,
			State:         res.State.String(),
			Images:        len(f.images),
		}
		if res.Message != nil {
			data.Reply = res.Message.Content
		}
		if !app.JSON && res.State != controller.StateFailed {
			if !printer.finish(data.Reply) {
				fmt.Fprintln(app.Stdout, renderMarkdown(data.Reply, TerminalWidth()))
			}
		}
		if err == nil && res.State == controller.StateAborted {
			err = ErrAborted
		}
		return data, err
	}, nil)
}

// readQuestion joins the arguments, or reads stdin when there are none.
func (app *App) readQuestion(args []string) (string, error) {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" && !IsTTY() {
		data, err := io.ReadAll(app.Stdin)
		if err != nil {
			return "", fmt.Errorf("read question from stdin: %w", err)
		}
		question = strings.TrimSpace(string(data))
	}
	if question == "" {
		return "", fmt.Errorf("%w: usage: lingshu ask \"your question\"", model.ErrEmptyPrompt)
	}
	return question, nil
}

// stopOnInterrupt stops the running generation on Ctrl+C until the
// returned function is called.
func stopOnInterrupt(ctrl *controller.Controller) func() {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-sigCh:
				ctrl.Stop()
			case <-done:
				return
			}
		}
	}()
	return func() {
		signal.Stop(sigCh)
		close(done)
	}
}
