// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package backend

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/textproto"
	"os"
	"path/filepath"
	"strings"

	"github.com/jeranaias/lingshu-tui/internal/model"
)

// encodeChatRequest renders req as a multipart form. The whole body is
// buffered so the request carries a Content-Length.
func encodeChatRequest(req ChatRequest) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	if err := w.WriteField(FieldPrompt, req.Prompt); err != nil {
		return nil, "", err
	}

	for i, img := range req.Images {
		if err := writeImage(w, img); err != nil {
			return nil, "", fmt.Errorf("image %d (%s): %w", i+1, img.Name, err)
		}
	}

	cfg, err := json.Marshal(req.Config)
	if err != nil {
		return nil, "", err
	}
	if err := w.WriteField(FieldConfig, string(cfg)); err != nil {
		return nil, "", err
	}

	if req.SessionID != "" {
		if err := w.WriteField(FieldSessionID, req.SessionID); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return &buf, w.FormDataContentType(), nil
}

func writeImage(w *multipart.Writer, img model.Attachment) error {
	data := img.Data
	if data == nil && img.Path != "" {
		var err error
		data, err = os.ReadFile(img.Path)
		if err != nil {
			return err
		}
	}

	name := img.Name
	if name == "" {
		name = filepath.Base(img.Path)
	}
	contentType := img.MIMEType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FieldImages, escapeQuotes(name)))
	h.Set("Content-Type", contentType)

	part, err := w.CreatePart(h)
	if err != nil {
		return err
	}
	_, err = part.Write(data)
	return err
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
