// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/lingshu-tui/internal/model"
)

var exportTime = time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)

func testOptions(dir string) *Options {
	return &Options{
		OutputDir:         dir,
		IncludeMetadata:   true,
		IncludeTimestamps: true,
		Now:               func() time.Time { return exportTime },
	}
}

func testSession() *model.ChatSession {
	created := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	sess := &model.ChatSession{
		ID:            "0195501a-7c00-7000-8000-0000000000aa",
		Title:         "Chest X-ray: nodule?",
		CorrelationID: "s1",
		CreatedAt:     created,
		UpdatedAt:     created.Add(2 * time.Minute),
	}
	sess.Append(&model.Message{
		Role:      model.RoleUser,
		Content:   "Is there a nodule in the right upper lobe?",
		Timestamp: created,
		Attachments: []model.Attachment{
			{Name: "cxr.png", MIMEType: "image/png", Size: 2048},
		},
	})
	sess.Append(&model.Message{
		Role:      model.RoleAssistant,
		Content:   "A **9 mm** opacity is visible.\n\n```\nRUL: nodule\n```",
		Timestamp: created.Add(time.Minute),
	})
	return sess
}

func TestForFormat(t *testing.T) {
	tests := []struct {
		format string
		ext    string
	}{
		{"md", ".md"},
		{"Markdown", ".md"},
		{".json", ".json"},
		{"yml", ".yaml"},
		{"YAML", ".yaml"},
	}
	for _, tt := range tests {
		exp, err := ForFormat(tt.format, nil)
		require.NoError(t, err, tt.format)
		assert.Equal(t, tt.ext, exp.FileExtension(), tt.format)
	}

	_, err := ForFormat("html", nil)
	assert.Error(t, err)
}

func TestMarkdownExport(t *testing.T) {
	out, err := NewMarkdownExporter(testOptions("")).Export(testSession())
	require.NoError(t, err)
	text := string(out)

	assert.True(t, strings.HasPrefix(text, "---\n"))
	assert.Contains(t, text, "correlation_id: s1")
	assert.Contains(t, text, "# Chest X-ray: nodule?")
	assert.Contains(t, text, "### You <sub>09:00:00</sub>")
	assert.Contains(t, text, "### Lingshu <sub>09:01:00</sub>")
	assert.Contains(t, text, "- Image: `cxr.png` (2.0 KiB)")
	assert.Contains(t, text, "```\nRUL: nodule\n```")

	var fm frontMatter
	parts := strings.SplitN(text, "---\n", 3)
	require.Len(t, parts, 3)
	require.NoError(t, yaml.Unmarshal([]byte(parts[1]), &fm))
	assert.Equal(t, 2, fm.Messages)
	assert.Equal(t, Generator, fm.Generator)
	assert.Equal(t, "Chest X-ray: nodule?", fm.Title)
}

func TestMarkdownExport_Options(t *testing.T) {
	opts := testOptions("")
	opts.IncludeMetadata = false
	opts.IncludeTimestamps = false

	out, err := NewMarkdownExporter(opts).Export(testSession())
	require.NoError(t, err)
	text := string(out)

	assert.True(t, strings.HasPrefix(text, "# "))
	assert.NotContains(t, text, "Session Information")
	assert.Contains(t, text, "### You\n")
}

func TestMarkdownExport_Rejects(t *testing.T) {
	exp := NewMarkdownExporter(nil)

	_, err := exp.Export(nil)
	assert.ErrorIs(t, err, ErrNilSession)

	_, err = exp.Export(model.NewChatSession())
	assert.Error(t, err)
}

func TestJSONAndYAMLExport(t *testing.T) {
	sess := testSession()

	jsonOut, err := NewJSONExporter(testOptions("")).Export(sess)
	require.NoError(t, err)
	yamlOut, err := NewYAMLExporter(testOptions("")).Export(sess)
	require.NoError(t, err)

	var fromJSON, fromYAML Document
	require.NoError(t, json.Unmarshal(jsonOut, &fromJSON))
	require.NoError(t, yaml.Unmarshal(yamlOut, &fromYAML))

	for _, doc := range []Document{fromJSON, fromYAML} {
		assert.Equal(t, DocumentVersion, doc.Version)
		assert.Equal(t, Generator, doc.Generator)
		assert.True(t, exportTime.Equal(doc.ExportedAt))
		assert.Equal(t, sess.ID, doc.Session.ID)
		require.Len(t, doc.Session.Messages, 2)
		assert.Equal(t, "user", doc.Session.Messages[0].Role)
		assert.Equal(t, []Attachment{{Name: "cxr.png", MIMEType: "image/png", Size: 2048}}, doc.Session.Messages[0].Attachments)
		assert.Equal(t, sess.Messages[1].Content, doc.Session.Messages[1].Content)
	}

	assert.NotContains(t, string(jsonOut), "Data", "image bytes never leak into exports")
}

func TestToFile(t *testing.T) {
	dir := t.TempDir()
	exp, err := ForFormat("json", nil)
	require.NoError(t, err)

	path, err := ToFile(testSession(), exp, testOptions(dir))
	require.NoError(t, err)

	assert.Equal(t, dir, filepath.Dir(path))
	assert.Equal(t, "lingshu_Chest_X-ray-_nodule-_20250301_093000.json", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, json.Valid(data))

	_, err = ToFile(nil, exp, testOptions(dir))
	assert.ErrorIs(t, err, ErrNilSession)
}

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"simple", "simple"},
		{"a/b\\c:d", "a-b-c-d"},
		{"with spaces\tand tabs", "with_spaces_and_tabs"},
		{"", "chat"},
		{"胸部CT", "胸部CT"},
		{strings.Repeat("x", 80), strings.Repeat("x", 50)},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, sanitizeFilename(tt.in), tt.in)
	}
}
