// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// config.go - Config command implementation.
//
// Command: config [subcommand]
// Short:   View and modify configuration
//
// Subcommands:
//   show (default)      Display the effective configuration
//   get <key>           Print one value
//   set <key> <value>   Set a value in the config file
//   reset               Write the default configuration
//   path                Show the config file path
//   keys                List every key
//
// Examples:
//   lingshu config
//   lingshu config show --json
//   lingshu config get backend.url
//   lingshu config set backend.url http://gpu-box:5000
//   lingshu config set chat.stream false
//   lingshu config set storage.driver sqlite
//
// Keys use dot notation (section.key). LINGSHU_<SECTION>_<KEY> environment
// variables override the file; set writes the file only.

package cli

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/jeranaias/lingshu-tui/internal/config"
)

// ConfigValue is the --json payload of config get and set.
type ConfigValue struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
	Path  string `json:"path,omitempty"`
}

func (app *App) configCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return app.runConfigShow()
		},
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Display the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return app.runConfigShow()
			},
		},
		&cobra.Command{
			Use:       "get <key>",
			Short:     "Print one configuration value",
			Args:      cobra.ExactArgs(1),
			ValidArgs: config.GetAllKeys(),
			RunE: func(_ *cobra.Command, args []string) error {
				return app.runConfigGet(args[0])
			},
		},
		&cobra.Command{
			Use:       "set <key> <value>",
			Short:     "Set a value in the config file",
			Args:      cobra.ExactArgs(2),
			ValidArgs: config.GetAllKeys(),
			RunE: func(_ *cobra.Command, args []string) error {
				return app.runConfigSet(args[0], args[1])
			},
		},
		&cobra.Command{
			Use:   "reset",
			Short: "Write the default configuration",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return app.runConfigReset()
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Show the config file path",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return app.runConfigPath()
			},
		},
		&cobra.Command{
			Use:   "keys",
			Short: "List every configuration key",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				return app.runConfigKeys()
			},
		},
	)
	return cmd
}

// configFile returns the file config commands read and write.
func (app *App) configFile() (string, error) {
	if app.ConfigPath != "" {
		return app.ConfigPath, nil
	}
	path, err := config.ConfigPath()
	if err != nil {
		return "", &ConfigError{Err: err}
	}
	return path, nil
}

func (app *App) runConfigShow() error {
	return app.out().Result("config show", func() (any, error) {
		return app.Config, nil
	}, func(any) {
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(app.Config); err != nil {
			app.out().Error(err)
			return
		}
		if path, err := app.configFile(); err == nil {
			fmt.Fprintln(app.Stdout, DimStyle.Render("# "+path))
		}
		fmt.Fprint(app.Stdout, buf.String())
	})
}

func (app *App) runConfigGet(key string) error {
	return app.out().Result("config get", func() (any, error) {
		v, err := app.Config.Get(key)
		if err != nil {
			return nil, &ConfigError{Err: err}
		}
		return ConfigValue{Key: key, Value: v}, nil
	}, func(data any) {
		fmt.Fprintln(app.Stdout, data.(ConfigValue).Value)
	})
}

// runConfigSet edits the file contents, not the effective config, so
// environment and flag overrides are not written back.
func (app *App) runConfigSet(key, value string) error {
	path, err := app.configFile()
	if err != nil {
		return err
	}

	out := app.out()
	return out.Result("config set", func() (any, error) {
		cfg, err := config.ReadFile(path)
		if err != nil {
			return nil, &ConfigError{Err: err}
		}
		if err := cfg.Set(key, value); err != nil {
			return nil, &ConfigError{Err: err}
		}
		cfg.SetDefaults()
		if err := cfg.Validate(); err != nil {
			return nil, &ConfigError{Err: err}
		}
		if err := config.SaveTo(cfg, path); err != nil {
			return nil, err
		}
		v, _ := cfg.Get(key)
		return ConfigValue{Key: key, Value: v, Path: path}, nil
	}, func(data any) {
		cv := data.(ConfigValue)
		out.Success("%s = %v", cv.Key, cv.Value)
	})
}

func (app *App) runConfigReset() error {
	path, err := app.configFile()
	if err != nil {
		return err
	}
	out := app.out()
	return out.Result("config reset", func() (any, error) {
		if err := config.SaveTo(config.Default(), path); err != nil {
			return nil, err
		}
		return map[string]string{"path": path}, nil
	}, func(any) {
		out.Success("Configuration reset (%s)", path)
	})
}

func (app *App) runConfigPath() error {
	path, err := app.configFile()
	if err != nil {
		return err
	}
	return app.out().Result("config path", func() (any, error) {
		return map[string]string{"path": path}, nil
	}, func(any) {
		fmt.Fprintln(app.Stdout, path)
	})
}

func (app *App) runConfigKeys() error {
	return app.out().Result("config keys", func() (any, error) {
		keys := config.GetAllKeys()
		sort.Strings(keys)
		return keys, nil
	}, func(data any) {
		for _, key := range data.([]string) {
			v, _ := app.Config.Get(key)
			fmt.Fprintf(app.Stdout, "%-28s %s\n", key, ValueStyle.Render(fmt.Sprint(v)))
		}
	})
}
