// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// model_cmd.go - Backend status, model lifecycle and generation settings.
//
// Commands:
//   status                  Show backend, model and settings status
//   model status            Same as status
//   model load [mode]       Load the model (4bit, 8bit, standard, cpu)
//   model unload            Free the model
//   settings                Show generation settings
//   settings set <k> <v>    Change temperature, max_tokens or quantization

package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/lingshu-tui/internal/commands"
	"github.com/jeranaias/lingshu-tui/internal/controller"
	"github.com/jeranaias/lingshu-tui/internal/model"
	"github.com/jeranaias/lingshu-tui/internal/storage"
	"github.com/jeranaias/lingshu-tui/internal/ui/styles"
)

// StatusResult is the --json payload of status.
type StatusResult struct {
	BackendURL   string           `json:"backend_url"`
	Online       bool             `json:"online"`
	ModelLoaded  bool             `json:"model_loaded"`
	Quantization string           `json:"quantization,omitempty"`
	GPUAvailable bool             `json:"gpu_available"`
	GPUName      string           `json:"gpu_name,omitempty"`
	Settings     storage.Settings `json:"settings"`
	Sessions     int              `json:"sessions"`
	Error        string           `json:"error,omitempty"`
}

// ===== STATUS =====

func (app *App) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show backend, model and settings status",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runStatus(cmd.Context(), "status", false)
		},
	}
}

// runStatus reports the backend state. With strict set an unreachable
// backend is an error; otherwise it is reported as offline.
func (app *App) runStatus(ctx context.Context, command string, strict bool) error {
	ctrl, closeStore, err := app.newController(controller.NopPresenter{})
	if err != nil {
		return err
	}
	defer closeStore()

	return app.out().Result(command, func() (any, error) {
		refreshErr := ctrl.RefreshStatus(ctx)
		st := ctrl.AppState()
		res := StatusResult{
			BackendURL:   app.Config.Backend.URL,
			Online:       st.Online,
			ModelLoaded:  st.ModelLoaded,
			Quantization: st.Quantization,
			GPUAvailable: st.GPUAvailable,
			GPUName:      st.GPUName,
			Settings:     ctrl.Settings(),
			Sessions:     ctrl.Store().Len(),
		}
		if refreshErr != nil {
			res.Error = refreshErr.Error()
			if strict {
				return res, refreshErr
			}
		}
		return res, nil
	}, func(data any) {
		res := data.(StatusResult)
		fmt.Fprintln(app.Stdout, TitleStyle.Render("Lingshu"))
		fmt.Fprintln(app.Stdout, RenderLabel("URL")+ValueStyle.Render(res.BackendURL))
		fmt.Fprint(app.Stdout, commands.StatusMsg{
			App:         ctrl.AppState(),
			Settings:    res.Settings,
			Attachments: len(ctrl.Attachments()),
			Sessions:    res.Sessions,
		}.String())
		if res.Error != "" {
			app.out().Warn("backend unreachable: %s", res.Error)
		}
	})
}

// ===== MODEL =====

func (app *App) modelCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "model",
		Short: "Load, unload or inspect the model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return app.runStatus(cmd.Context(), "model status", true)
		},
	}

	quantNames := make([]string, 0, len(model.Quantizations()))
	for _, q := range model.Quantizations() {
		quantNames = append(quantNames, string(q))
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "status",
			Short: "Show whether the model is loaded",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return app.runStatus(cmd.Context(), "model status", true)
			},
		},
		&cobra.Command{
			Use:       "load [" + strings.Join(quantNames, "|") + "]",
			Short:     "Load the model",
			Long:      "Load the model. Without a mode the saved load mode is used.",
			Args:      cobra.MaximumNArgs(1),
			ValidArgs: quantNames,
			RunE: func(cmd *cobra.Command, args []string) error {
				return app.runModelLoad(cmd.Context(), args)
			},
		},
		&cobra.Command{
			Use:   "unload",
			Short: "Free the model",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return app.runModelUnload(cmd.Context())
			},
		},
	)
	return cmd
}

func (app *App) runModelLoad(ctx context.Context, args []string) error {
	printer := newStreamPrinter(app.Stdout, app.Stderr, false)
	printer.callerErrors = true
	ctrl, closeStore, err := app.newController(printer)
	if err != nil {
		return err
	}
	defer closeStore()

	quant := ctrl.Settings().Quantization
	if len(args) == 1 {
		if quant, err = model.ParseQuantization(args[0]); err != nil {
			return err
		}
	}

	out := app.out()
	if !app.JSON {
		fmt.Fprintf(app.Stderr, "%s loading model (%s), this can take a few minutes...\n",
			DimStyle.Render(styles.StatusIndicators.Info), quant.Description())
	}
	return out.Result("model load", func() (any, error) {
		if err := ctrl.LoadModel(ctx, quant); err != nil {
			return nil, NewCommandError("model", "load", err)
		}
		st := ctrl.AppState()
		return map[string]any{"loaded": st.ModelLoaded, "quantization": st.Quantization}, nil
	}, func(data any) {
		out.Success("Model loaded (%s)", data.(map[string]any)["quantization"])
	})
}

func (app *App) runModelUnload(ctx context.Context) error {
	printer := newStreamPrinter(app.Stdout, app.Stderr, false)
	printer.callerErrors = true
	ctrl, closeStore, err := app.newController(printer)
	if err != nil {
		return err
	}
	defer closeStore()

	out := app.out()
	return out.Result("model unload", func() (any, error) {
		if err := ctrl.UnloadModel(ctx); err != nil {
			return nil, NewCommandError("model", "unload", err)
		}
		return map[string]any{"loaded": false}, nil
	}, func(any) {
		out.Success("Model unloaded")
	})
}

// ===== SETTINGS =====

func (app *App) settingsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change generation settings",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return app.runSettingsShow()
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Show generation settings",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return app.runSettingsShow()
			},
		},
		&cobra.Command{
			Use:       "set <key> <value>",
			Short:     "Change a generation setting",
			Example:   "  lingshu settings set temperature 0.4\n  lingshu settings set quantization 8bit",
			Args:      cobra.MinimumNArgs(2),
			ValidArgs: commands.SettingKeys(),
			RunE: func(_ *cobra.Command, args []string) error {
				return app.runSettingsSet(args[0], strings.Join(args[1:], " "))
			},
		},
	)
	return cmd
}

func (app *App) runSettingsShow() error {
	store, err := app.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	return app.out().Result("settings", func() (any, error) {
		return store.Settings(), nil
	}, func(data any) {
		app.printSettings(data.(storage.Settings))
	})
}

func (app *App) runSettingsSet(key, value string) error {
	ctrl, closeStore, err := app.newController(controller.NopPresenter{})
	if err != nil {
		return err
	}
	defer closeStore()

	out := app.out()
	return out.Result("settings set", func() (any, error) {
		settings, err := commands.ApplySetting(ctrl.Settings(), key, value)
		if err != nil {
			return nil, err
		}
		if err := ctrl.UpdateSettings(settings); err != nil {
			return nil, err
		}
		return settings, nil
	}, func(data any) {
		out.Success("%s set to %s", key, value)
		app.printSettings(data.(storage.Settings))
	})
}

func (app *App) printSettings(s storage.Settings) {
	fmt.Fprintln(app.Stdout, RenderLabel("Temperature")+ValueStyle.Render(fmt.Sprintf("%g", s.Temperature)))
	fmt.Fprintln(app.Stdout, RenderLabel("Max tokens")+ValueStyle.Render(fmt.Sprint(s.MaxTokens)))
	fmt.Fprintln(app.Stdout, RenderLabel("Load mode")+ValueStyle.Render(string(s.Quantization)))
}
