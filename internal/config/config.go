// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"

	"github.com/jeranaias/lingshu-tui/internal/util"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "LINGSHU_"

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete lingshu configuration.
type Config struct {
	// Backend is the Lingshu service
	Backend BackendConfig `toml:"backend" json:"backend" envPrefix:"BACKEND_"`

	// Storage controls where sessions and settings are kept
	Storage StorageConfig `toml:"storage" json:"storage" envPrefix:"STORAGE_"`

	// Chat controls conversation behaviour
	Chat ChatConfig `toml:"chat" json:"chat" envPrefix:"CHAT_"`

	// Attachments limits pending images
	Attachments AttachmentConfig `toml:"attachments" json:"attachments" envPrefix:"ATTACHMENTS_"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui" envPrefix:"UI_"`

	// Log configuration
	Log LogConfig `toml:"log" json:"log" envPrefix:"LOG_"`
}

// BackendConfig contains connection settings for the chat service.
type BackendConfig struct {
	// URL is the base URL of the service, e.g. http://127.0.0.1:5000
	URL string `toml:"url" json:"url" env:"URL"`
	// TimeoutSecs bounds ordinary requests (not streams)
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs" env:"TIMEOUT_SECS"`
	// LoadTimeoutSecs bounds model loading, which can take minutes
	LoadTimeoutSecs int `toml:"load_timeout_secs" json:"load_timeout_secs" env:"LOAD_TIMEOUT_SECS"`
}

// StorageConfig contains persistence settings.
type StorageConfig struct {
	// Driver is "file", "sqlite" or "memory"
	Driver string `toml:"driver" json:"driver" env:"DRIVER"`
	// DataDir holds the documents (empty = ~/.lingshu/data)
	DataDir string `toml:"data_dir" json:"data_dir" env:"DATA_DIR"`
	// WatchExternal warns when another process rewrites the data files
	WatchExternal bool `toml:"watch_external" json:"watch_external" env:"WATCH_EXTERNAL"`
}

// ChatConfig contains conversation settings.
type ChatConfig struct {
	// Stream uses the streaming endpoint; false waits for the whole reply
	Stream bool `toml:"stream" json:"stream" env:"STREAM"`
	// AbortMarker is appended to a reply the user stopped
	AbortMarker string `toml:"abort_marker" json:"abort_marker" env:"ABORT_MARKER"`
	// TitleLength is the maximum session title length in characters
	TitleLength int `toml:"title_length" json:"title_length" env:"TITLE_LENGTH"`
}

// AttachmentConfig contains image attachment limits.
type AttachmentConfig struct {
	// MaxCount is the number of images one message may carry
	MaxCount int `toml:"max_count" json:"max_count" env:"MAX_COUNT"`
	// MaxSizeMB is the per-image size limit in MiB
	MaxSizeMB int `toml:"max_size_mb" json:"max_size_mb" env:"MAX_SIZE_MB"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme" env:"THEME"`
	// Markdown renders assistant replies as markdown
	Markdown bool `toml:"markdown" json:"markdown" env:"MARKDOWN"`
	// ShowTimestamps prints the time next to each message
	ShowTimestamps bool `toml:"show_timestamps" json:"show_timestamps" env:"SHOW_TIMESTAMPS"`
}

// LogConfig contains logging configuration.
type LogConfig struct {
	// Level is "debug", "info", "warn" or "error"
	Level string `toml:"level" json:"level" env:"LEVEL"`
	// File receives log output (empty = ~/.lingshu/lingshu.log for the TUI,
	// stderr for other commands)
	File string `toml:"file" json:"file" env:"FILE"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Backend: BackendConfig{
			URL:             "http://127.0.0.1:5000",
			TimeoutSecs:     30,
			LoadTimeoutSecs: 600, // loading 4bit weights on first run is slow
		},

		Storage: StorageConfig{
			Driver:        "file",
			DataDir:       "",
			WatchExternal: true,
		},

		Chat: ChatConfig{
			Stream:      true,
			AbortMarker: "\n\n*[stopped]*",
			TitleLength: 30,
		},

		Attachments: AttachmentConfig{
			MaxCount:  5,
			MaxSizeMB: 16,
		},

		UI: UIConfig{
			Theme:          "dark",
			Markdown:       true,
			ShowTimestamps: false,
		},

		Log: LogConfig{
			Level: "info",
		},
	}
}

// Timeout returns the ordinary request timeout.
func (b BackendConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSecs) * time.Second
}

// LoadTimeout returns the model load timeout.
func (b BackendConfig) LoadTimeout() time.Duration {
	return time.Duration(b.LoadTimeoutSecs) * time.Second
}

// MaxBytes returns the per-image size limit in bytes.
func (a AttachmentConfig) MaxBytes() int64 {
	return int64(a.MaxSizeMB) << 20
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the lingshu configuration directory path.
// LINGSHU_HOME overrides the default ~/.lingshu.
func ConfigDir() (string, error) {
	if dir := os.Getenv(EnvPrefix + "HOME"); dir != "" {
		return dir, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".lingshu"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// DataDir returns the configured data directory or the default one.
func (c *Config) DataDir() (string, error) {
	if c.Storage.DataDir != "" {
		return expandHome(c.Storage.DataDir)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "data"), nil
}

// LogFile returns the configured log file or the default one.
func (c *Config) LogFile() (string, error) {
	if c.Log.File != "" {
		return expandHome(c.Log.File)
	}
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "lingshu.log"), nil
}

func expandHome(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads the default config file if it exists, then applies
// environment overrides, defaults and validation.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, err
	}
	return LoadFrom(path)
}

// LoadFrom reads the config at path. A missing file yields the defaults.
func LoadFrom(path string) (*Config, error) {
	cfg, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ReadFile decodes the file at path over the defaults, without
// environment overrides. A missing file yields the defaults.
func ReadFile(path string) (*Config, error) {
	cfg := Default()
	if _, statErr := os.Stat(path); statErr == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to decode TOML file %s: %w", path, err)
		}
	} else if !os.IsNotExist(statErr) {
		return nil, fmt.Errorf("failed to read config file: %w", statErr)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies LINGSHU_* environment variables, e.g.
// LINGSHU_BACKEND_URL, LINGSHU_CHAT_STREAM, LINGSHU_LOG_LEVEL.
// Unset variables leave the loaded values alone.
func (c *Config) ApplyEnvOverrides() error {
	if err := env.ParseWithOptions(c, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("parse environment: %w", err)
	}
	return nil
}

// SetDefaults fills zero values left by a partial file or environment.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Backend.URL == "" {
		c.Backend.URL = defaults.Backend.URL
	}
	c.Backend.URL = strings.TrimRight(c.Backend.URL, "/")
	if c.Backend.TimeoutSecs == 0 {
		c.Backend.TimeoutSecs = defaults.Backend.TimeoutSecs
	}
	if c.Backend.LoadTimeoutSecs == 0 {
		c.Backend.LoadTimeoutSecs = defaults.Backend.LoadTimeoutSecs
	}

	if c.Storage.Driver == "" {
		c.Storage.Driver = defaults.Storage.Driver
	}
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)

	if c.Chat.TitleLength == 0 {
		c.Chat.TitleLength = defaults.Chat.TitleLength
	}

	if c.Attachments.MaxCount == 0 {
		c.Attachments.MaxCount = defaults.Attachments.MaxCount
	}
	if c.Attachments.MaxSizeMB == 0 {
		c.Attachments.MaxSizeMB = defaults.Attachments.MaxSizeMB
	}

	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTo(cfg, path)
}

// SaveTo writes the configuration as TOML to path.
// SECURITY: Creates config files with 0600 permissions (owner read/write only).
func SaveTo(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# lingshu configuration file\n")
	buf.WriteString("# Environment variables LINGSHU_<SECTION>_<KEY> override these values\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	// RELIABILITY: Atomic write with fsync prevents data loss on crash
	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Backend
	if u, err := url.Parse(c.Backend.URL); err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, ValidationError{
			Field:   "backend.url",
			Message: fmt.Sprintf("invalid URL '%s', must be http(s)://host[:port]", c.Backend.URL),
		})
	}
	if c.Backend.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "backend.timeout_secs", Message: "must not be negative"})
	}
	if c.Backend.LoadTimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "backend.load_timeout_secs", Message: "must not be negative"})
	}

	// Storage
	validDrivers := map[string]bool{"file": true, "sqlite": true, "memory": true}
	if !validDrivers[c.Storage.Driver] {
		errs = append(errs, ValidationError{
			Field:   "storage.driver",
			Message: fmt.Sprintf("invalid driver '%s', must be one of: file, sqlite, memory", c.Storage.Driver),
		})
	}

	// Chat
	if c.Chat.TitleLength < 4 || c.Chat.TitleLength > 200 {
		errs = append(errs, ValidationError{Field: "chat.title_length", Message: "must be between 4 and 200"})
	}

	// Attachments
	if c.Attachments.MaxCount < 0 || c.Attachments.MaxCount > 20 {
		errs = append(errs, ValidationError{Field: "attachments.max_count", Message: "must be between 0 and 20"})
	}
	if c.Attachments.MaxSizeMB < 1 || c.Attachments.MaxSizeMB > 64 {
		errs = append(errs, ValidationError{Field: "attachments.max_size_mb", Message: "must be between 1 and 64"})
	}

	// UI
	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}

	// Log
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Log.Level)] {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation (e.g., "chat.stream").
func (c *Config) Get(key string) (interface{}, error) {
	field, err := c.lookup(key)
	if err != nil {
		return nil, err
	}
	return field.Interface(), nil
}

// Set sets a configuration value using dot notation. String values are
// converted to the field's type.
func (c *Config) Set(key string, value interface{}) error {
	field, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !field.CanSet() {
		return fmt.Errorf("cannot set field: %s", key)
	}
	return setFieldValue(field, value)
}

// lookup walks the struct by toml tag names.
func (c *Config) lookup(key string) (reflect.Value, error) {
	parts := strings.Split(key, ".")
	v := reflect.ValueOf(c).Elem()

	for i, part := range parts {
		field, ok := fieldByTag(v, part)
		if !ok {
			return reflect.Value{}, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}
		if i == len(parts)-1 {
			if field.Kind() == reflect.Struct {
				return reflect.Value{}, fmt.Errorf("'%s' is a section, not a value", key)
			}
			return field, nil
		}
		if field.Kind() != reflect.Struct {
			return reflect.Value{}, fmt.Errorf("field '%s' is not a section", strings.Join(parts[:i+1], "."))
		}
		v = field
	}
	return reflect.Value{}, fmt.Errorf("invalid key: %s", key)
}

func fieldByTag(v reflect.Value, name string) (reflect.Value, bool) {
	name = strings.ReplaceAll(strings.ToLower(name), "-", "_")
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		if t.Field(i).Tag.Get("toml") == name {
			return v.Field(i), true
		}
	}
	return reflect.Value{}, false
}

// setFieldValue sets a reflect.Value from an interface{} value with type conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Bool:
			boolVal, err := strconv.ParseBool(strings.ToLower(strVal))
			if err != nil {
				return fmt.Errorf("invalid boolean value: %v", err)
			}
			field.SetBool(boolVal)
			return nil
		}
	}

	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}
	if val.Type().ConvertibleTo(field.Type()) && val.Kind() != reflect.String {
		field.Set(val.Convert(field.Type()))
		return nil
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	var keys []string
	t := reflect.TypeOf(Config{})
	for i := 0; i < t.NumField(); i++ {
		section := t.Field(i)
		for j := 0; j < section.Type.NumField(); j++ {
			keys = append(keys, section.Tag.Get("toml")+"."+section.Type.Field(j).Tag.Get("toml"))
		}
	}
	return keys
}

// Clone creates a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}
