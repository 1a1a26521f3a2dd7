// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/jeranaias/lingshu-tui/internal/model"
	"github.com/jeranaias/lingshu-tui/internal/util"
)

// Generator identifies exports written by this program.
const Generator = "lingshu-tui"

// ErrNilSession is returned when there is nothing to export.
var ErrNilSession = errors.New("session is nil")

// =============================================================================
// EXPORT INTERFACE
// =============================================================================

// Exporter converts a session into one file format.
type Exporter interface {
	// Export renders the session.
	Export(sess *model.ChatSession) ([]byte, error)

	// FileExtension returns the extension including the dot.
	FileExtension() string

	// MimeType returns the MIME type of the output.
	MimeType() string
}

// =============================================================================
// EXPORT OPTIONS
// =============================================================================

// Options configures export behaviour.
type Options struct {
	// OutputDir is where ToFile writes. Default: current directory.
	OutputDir string

	// OpenAfterExport opens the file with the desktop's default application.
	OpenAfterExport bool

	// IncludeMetadata adds session details (Markdown front matter).
	IncludeMetadata bool

	// IncludeTimestamps adds per-message times (Markdown).
	IncludeTimestamps bool

	// Now stamps the export. Default: time.Now.
	Now func() time.Time
}

// DefaultOptions returns default export options.
func DefaultOptions() *Options {
	return &Options{
		OutputDir:         ".",
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		Now:               time.Now,
	}
}

func (o *Options) withDefaults() *Options {
	if o == nil {
		return DefaultOptions()
	}
	c := *o
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return &c
}

// =============================================================================
// FORMATS
// =============================================================================

// Formats lists the accepted format names.
func Formats() []string {
	return []string{"md", "json", "yaml"}
}

// ForFormat returns the exporter for a format name or file extension.
func ForFormat(format string, opts *Options) (Exporter, error) {
	switch strings.TrimPrefix(strings.ToLower(strings.TrimSpace(format)), ".") {
	case "md", "markdown":
		return NewMarkdownExporter(opts), nil
	case "json":
		return NewJSONExporter(opts), nil
	case "yaml", "yml":
		return NewYAMLExporter(opts), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q (want %s)", format, strings.Join(Formats(), ", "))
	}
}

// =============================================================================
// EXPORT FUNCTIONS
// =============================================================================

// ToFile exports a session into opts.OutputDir and returns the path written.
// The file name is derived from the title and the export time.
func ToFile(sess *model.ChatSession, exporter Exporter, opts *Options) (string, error) {
	opts = opts.withDefaults()
	if sess == nil {
		return "", ErrNilSession
	}

	content, err := exporter.Export(sess)
	if err != nil {
		return "", fmt.Errorf("export failed: %w", err)
	}

	filename := fmt.Sprintf("lingshu_%s_%s%s",
		sanitizeFilename(sess.DisplayTitle()),
		opts.Now().Format("20060102_150405"),
		exporter.FileExtension(),
	)
	path := filepath.Join(opts.OutputDir, filename)
	if err := WriteFile(path, content); err != nil {
		return "", err
	}

	if opts.OpenAfterExport {
		if err := openFile(path); err != nil {
			// Non-fatal: the file was written.
			return path, fmt.Errorf("exported to %s but could not open it: %w", path, err)
		}
	}
	return path, nil
}

// WriteFile writes exported content to an explicit path.
func WriteFile(path string, content []byte) error {
	if err := util.AtomicWriteFile(path, content, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// sanitizeFilename replaces characters that are invalid in file names on
// common platforms and bounds the length.
func sanitizeFilename(s string) string {
	const maxRunes = 50
	if runes := []rune(s); len(runes) > maxRunes {
		s = string(runes[:maxRunes])
	}

	var sb strings.Builder
	for _, r := range s {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r):
			sb.WriteRune('-')
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			sb.WriteRune('_')
		case r < 32 || r == 127:
			sb.WriteRune('-')
		default:
			sb.WriteRune(r)
		}
	}

	if sb.Len() == 0 {
		return "chat"
	}
	return sb.String()
}

// openFile opens a file in the default application for the OS.
func openFile(path string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", `""`, path)
	case "darwin":
		cmd = exec.Command("open", path)
	case "linux":
		cmd = exec.Command("xdg-open", path)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}

// formatTimestamp formats a timestamp for display.
func formatTimestamp(t time.Time) string {
	return t.Format("2006-01-02 15:04:05")
}

// formatShortTimestamp formats a timestamp for inline display.
func formatShortTimestamp(t time.Time) string {
	return t.Format("15:04:05")
}
