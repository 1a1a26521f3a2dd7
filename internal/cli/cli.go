// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// cli.go - Root command, global flags and process setup.

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/jeranaias/lingshu-tui/internal/config"
	"github.com/jeranaias/lingshu-tui/internal/logging"
)

// Version information (set at build time)
var (
	Version   = "0.1.0"
	GitCommit = "unknown"
	BuildDate = "unknown"
)

// logToFile marks commands that own the terminal, so logs go to the log
// file instead of stderr.
const logToFile = "log-to-file"

// =============================================================================
// APP
// =============================================================================

// App holds global flags and the state shared by every command.
type App struct {
	ConfigPath string
	BackendURL string
	Driver     string
	JSON       bool
	Verbose    bool

	Config *config.Config

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	logCloser   io.Closer
	jsonWritten bool
}

// NewApp creates an App bound to the process's standard streams.
func NewApp() *App {
	return &App{
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// out returns an Output honouring --json.
func (app *App) out() *Output {
	return &Output{Out: app.Stdout, Err: app.Stderr, JSON: app.JSON, written: &app.jsonWritten}
}

// =============================================================================
// ROOT COMMAND
// =============================================================================

// RootCommand builds the command tree.
func (app *App) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "lingshu",
		Short: "Terminal client for the Lingshu multimodal chat backend",
		Long: `lingshu talks to a Lingshu backend: ask questions about images, stream
the answers and keep several conversations side by side.

Run without a command to open the full-screen chat.`,
		Annotations:       map[string]string{logToFile: "true"},
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: app.setup,
		PersistentPostRun: func(*cobra.Command, []string) { app.teardown() },
		RunE:              app.runTUI,
	}

	flags := root.PersistentFlags()
	flags.StringVar(&app.ConfigPath, "config", "", "config file (default ~/.lingshu/config.toml)")
	flags.StringVar(&app.BackendURL, "backend", "", "backend base URL (overrides backend.url)")
	flags.StringVar(&app.Driver, "storage", "", "session storage: file, sqlite or memory")
	flags.BoolVar(&app.JSON, "json", false, "write machine-readable JSON to stdout")
	flags.BoolVarP(&app.Verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(
		app.chatCommand(),
		app.askCommand(),
		app.sessionsCommand(),
		app.modelCommand(),
		app.statusCommand(),
		app.settingsCommand(),
		app.configCommand(),
		app.versionCommand(),
	)
	return root
}

// setup loads .env files and the config, then configures logging.
func (app *App) setup(cmd *cobra.Command, _ []string) error {
	loadDotEnv()

	var cfg *config.Config
	var err error
	if app.ConfigPath != "" {
		cfg, err = config.LoadFrom(app.ConfigPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return &ConfigError{Err: err}
	}
	if app.BackendURL != "" {
		cfg.Backend.URL = app.BackendURL
	}
	if app.Driver != "" {
		cfg.Storage.Driver = app.Driver
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Err: err}
	}
	app.Config = cfg

	opts := logging.Options{Level: cfg.Log.Level, Quiet: !app.Verbose}
	if app.Verbose {
		opts.Level = "debug"
	}
	if cmd.Annotations[logToFile] == "true" {
		file, err := cfg.LogFile()
		if err != nil {
			return &ConfigError{Err: err}
		}
		opts.File = file
		opts.Quiet = false
	} else if cfg.Log.File != "" {
		opts.File = cfg.Log.File
	}

	closer, err := logging.Configure(opts)
	if err != nil {
		return fmt.Errorf("open log: %w", err)
	}
	app.logCloser = closer
	logging.With("cli").Debug("starting", "command", cmd.CommandPath(), "version", Version)
	return nil
}

func (app *App) teardown() {
	if app.logCloser != nil {
		app.logCloser.Close()
		app.logCloser = nil
	}
}

// loadDotEnv loads ./.env and ~/.lingshu/.env when present. Variables that
// are already set win.
func loadDotEnv() {
	paths := []string{".env"}
	if dir, err := config.ConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, ".env"))
	}
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			logging.With("cli").Warn("ignoring unreadable env file", "path", path, "err", err)
		}
	}
}

// =============================================================================
// EXECUTE
// =============================================================================

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string) int {
	return NewApp().Execute(ctx, args)
}

// Execute runs args against a fresh command tree bound to the app's streams.
func (app *App) Execute(ctx context.Context, args []string) int {
	root := app.RootCommand()
	root.SetArgs(args)
	root.SetIn(app.Stdin)
	root.SetOut(app.Stdout)
	root.SetErr(app.Stderr)
	defer app.teardown()

	err := root.ExecuteContext(ctx)
	if err == nil {
		return ExitSuccess
	}
	// Errors already reported inside a JSON envelope are not repeated.
	if !app.jsonWritten {
		app.out().Error(err)
	}
	return ExitCode(err)
}

// =============================================================================
// VERSION
// =============================================================================

func (app *App) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := map[string]string{
				"version":    Version,
				"git_commit": GitCommit,
				"build_date": BuildDate,
				"go":         runtime.Version(),
				"platform":   runtime.GOOS + "/" + runtime.GOARCH,
			}
			return app.out().Result("version", func() (any, error) { return info, nil }, func(any) {
				fmt.Fprintf(app.Stdout, "lingshu %s (%s, built %s, %s %s)\n",
					Version, GitCommit, BuildDate, info["go"], info["platform"])
			})
		},
	}
}
