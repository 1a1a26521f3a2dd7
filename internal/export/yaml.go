// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"bytes"

	"gopkg.in/yaml.v3"

	"github.com/jeranaias/lingshu-tui/internal/model"
)

// =============================================================================
// YAML EXPORTER
// =============================================================================

// YAMLExporter writes the session Document as YAML.
type YAMLExporter struct {
	options *Options
}

// NewYAMLExporter creates a new YAML exporter.
func NewYAMLExporter(opts *Options) *YAMLExporter {
	return &YAMLExporter{options: opts.withDefaults()}
}

// Export converts a session to YAML.
func (e *YAMLExporter) Export(sess *model.ChatSession) ([]byte, error) {
	if sess == nil {
		return nil, ErrNilSession
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(NewDocument(sess, e.options.Now())); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FileExtension returns the file extension for YAML.
func (e *YAMLExporter) FileExtension() string {
	return ".yaml"
}

// MimeType returns the MIME type for YAML.
func (e *YAMLExporter) MimeType() string {
	return "application/yaml"
}
