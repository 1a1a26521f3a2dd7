// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package attachment validates and collects the images sent with the next
// prompt.
package attachment

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dustin/go-humanize"

	"github.com/jeranaias/lingshu-tui/internal/model"
)

// Limits applied when nothing else is configured.
const (
	DefaultMaxCount = 5
	DefaultMaxBytes = 16 << 20
)

// AllowedExtensions lists the accepted image file extensions.
var AllowedExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".bmp", ".webp"}

// =============================================================================
// LIMITS
// =============================================================================

// Limits bounds the pending attachment set.
type Limits struct {
	MaxCount int
	MaxBytes int64
}

// DefaultLimits returns the limits the backend accepts.
func DefaultLimits() Limits {
	return Limits{MaxCount: DefaultMaxCount, MaxBytes: DefaultMaxBytes}
}

func (l Limits) withDefaults() Limits {
	if l.MaxCount <= 0 {
		l.MaxCount = DefaultMaxCount
	}
	if l.MaxBytes <= 0 {
		l.MaxBytes = DefaultMaxBytes
	}
	return l
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads and validates one image file.
func Load(path string, limits Limits) (model.Attachment, error) {
	limits = limits.withDefaults()
	name := filepath.Base(path)

	if !allowedExtension(name) {
		return model.Attachment{}, &model.ValidationError{
			Code:    model.CodeAttachmentType,
			Message: fmt.Sprintf("%s: unsupported file type (allowed: %s)", name, strings.Join(AllowedExtensions, ", ")),
		}
	}

	info, err := os.Stat(path)
	if err != nil {
		return model.Attachment{}, err
	}
	if info.IsDir() {
		return model.Attachment{}, &model.ValidationError{
			Code:    model.CodeAttachmentType,
			Message: name + ": is a directory",
		}
	}
	if info.Size() > limits.MaxBytes {
		return model.Attachment{}, sizeError(name, info.Size(), limits.MaxBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return model.Attachment{}, err
	}
	return FromBytes(name, data, limits)
}

// FromBytes validates in-memory image data.
func FromBytes(name string, data []byte, limits Limits) (model.Attachment, error) {
	limits = limits.withDefaults()

	if int64(len(data)) > limits.MaxBytes {
		return model.Attachment{}, sizeError(name, int64(len(data)), limits.MaxBytes)
	}

	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return model.Attachment{}, &model.ValidationError{
			Code:    model.CodeAttachmentType,
			Message: fmt.Sprintf("%s: not an image (detected %s)", name, mime),
		}
	}

	return model.Attachment{
		Name:     name,
		MIMEType: mime,
		Size:     int64(len(data)),
		Data:     data,
	}, nil
}

func allowedExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, allowed := range AllowedExtensions {
		if ext == allowed {
			return true
		}
	}
	return false
}

func sizeError(name string, size, max int64) error {
	return &model.ValidationError{
		Code: model.CodeAttachmentSize,
		Message: fmt.Sprintf("%s is %s, the limit is %s",
			name, humanize.IBytes(uint64(size)), humanize.IBytes(uint64(max))),
	}
}

// =============================================================================
// PENDING SET
// =============================================================================

// Set is the ordered collection of images waiting for the next send.
// Safe for concurrent use.
type Set struct {
	mu     sync.Mutex
	limits Limits
	items  []model.Attachment
}

// NewSet creates an empty set.
func NewSet(limits Limits) *Set {
	return &Set{limits: limits.withDefaults()}
}

// Limits returns the limits enforced by the set.
func (s *Set) Limits() Limits {
	return s.limits
}

// Add appends a batch. The batch is all-or-nothing: if it would exceed the
// count cap the set is left unchanged.
func (s *Set) Add(batch ...model.Attachment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items)+len(batch) > s.limits.MaxCount {
		return &model.ValidationError{
			Code: model.CodeAttachmentCount,
			Message: fmt.Sprintf("at most %d images per message (%d attached, %d added)",
				s.limits.MaxCount, len(s.items), len(batch)),
		}
	}
	for _, a := range batch {
		if a.Size > s.limits.MaxBytes {
			return sizeError(a.Name, a.Size, s.limits.MaxBytes)
		}
	}
	s.items = append(s.items, batch...)
	return nil
}

// AddFiles loads and adds files as one batch. Nothing is added if any file
// fails validation.
func (s *Set) AddFiles(paths ...string) error {
	if n := s.Len(); n+len(paths) > s.limits.MaxCount {
		return &model.ValidationError{
			Code: model.CodeAttachmentCount,
			Message: fmt.Sprintf("at most %d images per message (%d attached, %d added)",
				s.limits.MaxCount, n, len(paths)),
		}
	}

	batch := make([]model.Attachment, 0, len(paths))
	for _, p := range paths {
		a, err := Load(p, s.limits)
		if err != nil {
			return err
		}
		a.Path = p
		batch = append(batch, a)
	}
	return s.Add(batch...)
}

// Remove drops the attachment at position i.
func (s *Set) Remove(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i >= len(s.items) {
		return false
	}
	s.items = append(s.items[:i], s.items[i+1:]...)
	return true
}

// Items returns a copy of the pending attachments.
func (s *Set) Items() []model.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Attachment(nil), s.items...)
}

// Take returns the pending attachments and empties the set.
func (s *Set) Take() []model.Attachment {
	s.mu.Lock()
	defer s.mu.Unlock()
	items := s.items
	s.items = nil
	return items
}

// Clear empties the set.
func (s *Set) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}

// Len returns the number of pending attachments.
func (s *Set) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
