// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// session_cmd.go - Saved chat management.
//
// Command: sessions [subcommand]
// Short:   List, show, rename, clear, delete and export chats
// Aliases: session, s
//
// Subcommands:
//   list (default)          List saved chats, newest first
//   show <ref>              Print a chat transcript
//   rename <ref> <title>    Set a chat title ("" restores the derived one)
//   clear <ref>             Drop every message of a chat
//   delete <ref>            Delete a chat
//   export <ref>            Write a chat to md, json or yaml
//   history                 List archived copies of the chat list (sqlite)
//   restore <revision>      Bring back an archived copy (sqlite)
//
// A ref is a full id, an id prefix, a short id or an exact title.

package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/lingshu-tui/internal/controller"
	"github.com/jeranaias/lingshu-tui/internal/export"
	"github.com/jeranaias/lingshu-tui/internal/model"
	"github.com/jeranaias/lingshu-tui/internal/storage"
)

// SessionListResult is the --json payload of sessions list.
type SessionListResult struct {
	ActiveID string                 `json:"active_id,omitempty"`
	Count    int                    `json:"count"`
	Sessions []model.SessionSummary `json:"sessions"`
}

// ExportResult is the --json payload of sessions export.
type ExportResult struct {
	SessionID string `json:"session_id"`
	Format    string `json:"format"`
	Path      string `json:"path,omitempty"`
	Content   string `json:"content,omitempty"`
}

func (app *App) sessionsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session", "s"},
		Short:   "List, show, rename, clear, delete and export chats",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runSessionsList()
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:     "list",
			Aliases: []string{"ls"},
			Short:   "List saved chats, newest first",
			Args:    cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return app.runSessionsList()
			},
		},
		&cobra.Command{
			Use:   "show <ref>",
			Short: "Print a chat transcript",
			Args:  cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return app.runSessionShow(args[0])
			},
		},
		&cobra.Command{
			Use:   "rename <ref> <title...>",
			Short: "Set a chat title",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return app.runSessionRename(args[0], strings.Join(args[1:], " "))
			},
		},
		&cobra.Command{
			Use:   "clear <ref>",
			Short: "Drop every message of a chat",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.sessionAction("sessions clear", args[0], "Cleared", func(ctrl *controller.Controller, id string) error {
					return ctrl.ClearSession(cmd.Context(), id)
				})
			},
		},
		&cobra.Command{
			Use:     "delete <ref>",
			Aliases: []string{"rm"},
			Short:   "Delete a chat",
			Args:    cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.sessionAction("sessions delete", args[0], "Deleted", func(ctrl *controller.Controller, id string) error {
					return ctrl.DeleteSession(cmd.Context(), id)
				})
			},
		},
		app.sessionExportCommand(),
		&cobra.Command{
			Use:   "history",
			Short: "List archived copies of the chat list",
			Long:  "List archived copies of the chat list. Only the sqlite storage driver keeps them.",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return app.runSessionsHistory()
			},
		},
		&cobra.Command{
			Use:   "restore <revision>",
			Short: "Replace every chat with an archived copy",
			Long: "Replace every chat with an archived copy from sessions history. The\n" +
				"chats being replaced are archived too, so a restore can be undone.",
			Args: cobra.ExactArgs(1),
			RunE: func(_ *cobra.Command, args []string) error {
				return app.runSessionsRestore(args[0])
			},
		},
	)
	return cmd
}

// ===== LIST / SHOW =====

func (app *App) runSessionsList() error {
	store, err := app.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	return app.out().Result("sessions list", func() (any, error) {
		summaries := store.Summaries()
		return SessionListResult{
			ActiveID: store.ActiveID(),
			Count:    len(summaries),
			Sessions: summaries,
		}, nil
	}, func(data any) {
		res := data.(SessionListResult)
		fmt.Fprint(app.Stdout, storage.FormatSessionList(res.Sessions, res.ActiveID))
	})
}

func (app *App) runSessionShow(ref string) error {
	store, err := app.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	return app.out().Result("sessions show", func() (any, error) {
		return store.Resolve(ref)
	}, func(data any) {
		app.printTranscript(data.(*model.ChatSession))
	})
}

// printTranscript writes a session header followed by every message.
func (app *App) printTranscript(sess *model.ChatSession) {
	w := app.Stdout
	width := TerminalWidth()

	fmt.Fprintln(w, TitleStyle.Render(sess.DisplayTitle()))
	fmt.Fprintln(w, RenderLabel("ID")+ValueStyle.Render(sess.ID))
	fmt.Fprintln(w, RenderLabel("Messages")+ValueStyle.Render(fmt.Sprint(len(sess.Messages))))
	fmt.Fprintln(w, RenderLabel("Updated")+ValueStyle.Render(sess.UpdatedAt.Local().Format("2006-01-02 15:04")))
	fmt.Fprintln(w, RenderSeparator(width))

	if len(sess.Messages) == 0 {
		fmt.Fprintln(w, DimStyle.Render("(no messages)"))
		return
	}
	for i, msg := range sess.Messages {
		label := fmt.Sprintf("#%d %s", i+1, msg.Role.DisplayName())
		if msg.Role == model.RoleUser {
			fmt.Fprintln(w, UserStyle.Render(label))
			fmt.Fprintln(w, msg.Content)
			for _, att := range msg.Attachments {
				fmt.Fprintln(w, DimStyle.Render("  [img] "+att.Name))
			}
		} else {
			fmt.Fprintln(w, AssistantStyle.Render(label))
			fmt.Fprintln(w, renderMarkdown(msg.Content, width))
		}
		fmt.Fprintln(w)
	}
}

// ===== RENAME / CLEAR / DELETE =====

func (app *App) runSessionRename(ref, title string) error {
	ctrl, closeStore, err := app.newController(controller.NopPresenter{})
	if err != nil {
		return err
	}
	defer closeStore()

	return app.out().Result("sessions rename", func() (any, error) {
		sess, err := ctrl.Store().Resolve(ref)
		if err != nil {
			return nil, err
		}
		if err := ctrl.RenameSession(sess.ID, title); err != nil {
			return nil, err
		}
		renamed, err := ctrl.Store().Get(sess.ID)
		if err != nil {
			return nil, err
		}
		return renamed.Summary(), nil
	}, func(data any) {
		s := data.(model.SessionSummary)
		app.out().Success("Renamed %s to %q", storage.ShortID(s.ID), s.Title)
	})
}

// sessionAction resolves ref and runs fn against the resolved id.
func (app *App) sessionAction(command, ref, verb string, fn func(*controller.Controller, string) error) error {
	ctrl, closeStore, err := app.newController(controller.NopPresenter{})
	if err != nil {
		return err
	}
	defer closeStore()

	return app.out().Result(command, func() (any, error) {
		sess, err := ctrl.Store().Resolve(ref)
		if err != nil {
			return nil, err
		}
		summary := sess.Summary()
		if err := fn(ctrl, sess.ID); err != nil {
			return nil, err
		}
		return summary, nil
	}, func(data any) {
		s := data.(model.SessionSummary)
		app.out().Success("%s %s (%s)", verb, storage.ShortID(s.ID), s.Title)
	})
}

// ===== HISTORY / RESTORE =====

func (app *App) runSessionsHistory() error {
	store, err := app.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	return app.out().Result("sessions history", func() (any, error) {
		return store.History()
	}, func(data any) {
		revs := data.([]storage.SessionRevision)
		if len(revs) == 0 {
			fmt.Fprintln(app.Stdout, DimStyle.Render("No archived revisions yet."))
			return
		}
		for _, rev := range revs {
			fmt.Fprintf(app.Stdout, "%s  %s  %d chats, %d messages\n",
				ValueStyle.Render(fmt.Sprintf("%4d", rev.ID)),
				DimStyle.Render(rev.SavedAt.Local().Format("2006-01-02 15:04:05")),
				rev.Sessions, rev.Messages)
		}
	})
}

func (app *App) runSessionsRestore(arg string) error {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil || id <= 0 {
		return NewCommandError("sessions", "restore", &model.ValidationError{
			Code:    model.CodeUnknown,
			Message: fmt.Sprintf("revision must be a number from sessions history, got %q", arg),
		})
	}

	store, err := app.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	out := app.out()
	return out.Result("sessions restore", func() (any, error) {
		if err := store.Restore(id); err != nil {
			return nil, err
		}
		summaries := store.Summaries()
		return SessionListResult{ActiveID: store.ActiveID(), Count: len(summaries), Sessions: summaries}, nil
	}, func(data any) {
		res := data.(SessionListResult)
		out.Success("Restored revision %d (%d chats)", id, res.Count)
	})
}

// ===== EXPORT =====

func (app *App) sessionExportCommand() *cobra.Command {
	var (
		format   string
		outDir   string
		toStdout bool
	)
	cmd := &cobra.Command{
		Use:   "export <ref>",
		Short: "Write a chat to md, json or yaml",
		Example: `  lingshu sessions export 3f2a9c1e
  lingshu sessions export "Chest X-ray" --format json --out ./exports
  lingshu sessions export 3f2a9c1e --format yaml --stdout`,
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return app.runSessionExport(args[0], format, outDir, toStdout)
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&format, "format", "f", "md", "export format ("+strings.Join(export.Formats(), ", ")+")")
	flags.StringVarP(&outDir, "out", "o", ".", "directory to write into")
	flags.BoolVar(&toStdout, "stdout", false, "print the export instead of writing a file")
	return cmd
}

func (app *App) runSessionExport(ref, format, outDir string, toStdout bool) error {
	opts := export.DefaultOptions()
	opts.OutputDir = outDir
	opts.IncludeTimestamps = app.Config.UI.ShowTimestamps

	exporter, err := export.ForFormat(format, opts)
	if err != nil {
		return err
	}

	store, err := app.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	return app.out().Result("sessions export", func() (any, error) {
		sess, err := store.Resolve(ref)
		if err != nil {
			return nil, err
		}
		res := ExportResult{SessionID: sess.ID, Format: strings.TrimPrefix(exporter.FileExtension(), ".")}
		if toStdout {
			content, err := exporter.Export(sess)
			if err != nil {
				return nil, err
			}
			res.Content = string(content)
			return res, nil
		}
		res.Path, err = export.ToFile(sess, exporter, opts)
		return res, err
	}, func(data any) {
		res := data.(ExportResult)
		if toStdout {
			fmt.Fprint(app.Stdout, res.Content)
			return
		}
		app.out().Success("Exported to %s", res.Path)
	})
}
