// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package export writes chat sessions to files people can read or archive.
//
// # Supported Formats
//
//   - Markdown: human-readable transcript with a YAML front matter block
//   - JSON: the full session in a versioned document
//   - YAML: the same document as JSON, in YAML
//
// # Usage
//
//	exporter, err := export.ForFormat("md", nil)
//	if err != nil {
//	    return err
//	}
//	path, err := export.ToFile(session, exporter, &export.Options{OutputDir: "."})
//
// Image bytes are never part of a session, so exports list attachment names
// and sizes only.
package export
