// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/lingshu-tui/internal/logging"
	"github.com/jeranaias/lingshu-tui/internal/model"
)

// stepClock advances one second per call so UpdatedAt ordering is stable.
type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func newStepClock() *stepClock {
	return &stepClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

// failingBackend accepts loads but rejects every save.
type failingBackend struct {
	*MemoryBackend
	saves int
}

func (f *failingBackend) Save(key string, data []byte) error {
	f.saves++
	return errors.New("disk full")
}

func newTestStore(t *testing.T, backend Backend) *Store {
	t.Helper()
	if backend == nil {
		backend = NewMemoryBackend()
	}
	s, err := Open(Options{
		Backend: backend,
		Clock:   newStepClock().Now,
		Logger:  logging.Discard(),
	})
	require.NoError(t, err)
	return s
}

func appendN(t *testing.T, s *Store, id string, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		role := model.RoleUser
		if i%2 == 1 {
			role = model.RoleAssistant
		}
		_, err := s.AppendMessage(id, model.NewMessage(role, "message"))
		require.NoError(t, err)
	}
}

// =============================================================================
// SESSION LIFECYCLE
// =============================================================================

func TestStore_CreateSessionBecomesActive(t *testing.T) {
	s := newTestStore(t, nil)

	sess, err := s.CreateSession()
	require.NoError(t, err)

	assert.True(t, sess.IsEmpty())
	assert.Empty(t, sess.CorrelationID)
	assert.Equal(t, sess.ID, s.ActiveID())
	assert.Equal(t, sess.ID, s.Active().ID)
	assert.Equal(t, 1, s.Len())
}

func TestStore_AppendAssignsIndexAndTitle(t *testing.T) {
	s := newTestStore(t, nil)
	sess, _ := s.CreateSession()

	user := model.NewUserMessage("hi")
	idx, err := s.AppendMessage(sess.ID, user)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, 0, user.Index)

	idx, err = s.AppendMessage(sess.ID, model.NewAssistantMessage("Hello"))
	require.NoError(t, err)
	assert.Equal(t, 1, idx)

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Title)
	require.Len(t, got.Messages, 2)
	assert.True(t, got.UpdatedAt.After(got.CreatedAt))
}

func TestStore_AppendStripsAttachmentBytes(t *testing.T) {
	s := newTestStore(t, nil)
	sess, _ := s.CreateSession()

	att := model.Attachment{Name: "scan.png", MIMEType: "image/png", Size: 3, Data: []byte("png")}
	_, err := s.AppendMessage(sess.ID, model.NewUserMessage("look", att))
	require.NoError(t, err)

	got, _ := s.Get(sess.ID)
	require.Len(t, got.Messages[0].Attachments, 1)
	assert.Equal(t, "scan.png", got.Messages[0].Attachments[0].Name)
	assert.Nil(t, got.Messages[0].Attachments[0].Data)
}

func TestStore_TruncateThenAppend(t *testing.T) {
	tests := []struct {
		name  string
		total int
		k     int
	}{
		{"middle", 5, 2},
		{"first", 4, 0},
		{"last is no-op", 3, 2},
		{"everything", 3, -1},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := newTestStore(t, nil)
			sess, _ := s.CreateSession()
			appendN(t, s, sess.ID, tc.total)

			require.NoError(t, s.TruncateAfter(sess.ID, tc.k))

			got, _ := s.Get(sess.ID)
			for _, m := range got.Messages {
				assert.LessOrEqual(t, m.Index, tc.k)
			}

			idx, err := s.AppendMessage(sess.ID, model.NewUserMessage("next"))
			require.NoError(t, err)
			assert.Equal(t, tc.k+1, idx)
		})
	}
}

func TestStore_AppendRetryIsIdempotent(t *testing.T) {
	s := newTestStore(t, nil)
	sess, _ := s.CreateSession()

	msg := model.NewUserMessage("once")
	first, err := s.AppendMessage(sess.ID, msg)
	require.NoError(t, err)
	second, err := s.AppendMessage(sess.ID, msg)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	got, _ := s.Get(sess.ID)
	assert.Len(t, got.Messages, 1)
}

func TestStore_PersistFailureKeepsMemory(t *testing.T) {
	backend := &failingBackend{MemoryBackend: NewMemoryBackend()}
	s := newTestStore(t, backend)

	sess, err := s.CreateSession()
	require.Error(t, err)
	require.NotNil(t, sess)

	idx, err := s.AppendMessage(sess.ID, model.NewUserMessage("still here"))
	assert.Equal(t, 0, idx)

	var se *StorageError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "save", se.Op)
	assert.Equal(t, KeySessions, se.Key)
	assert.True(t, IsStorageError(err))

	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "still here", got.Messages[0].Content)
	assert.Equal(t, 2, backend.saves)
}

func TestStore_ListSessionsOrder(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s, err := Open(Options{Clock: func() time.Time { return fixed }, Logger: logging.Discard()})
	require.NoError(t, err)

	a, _ := s.CreateSession()
	b, _ := s.CreateSession()
	c, _ := s.CreateSession()

	// Equal timestamps fall back to ID order, newest first.
	list := s.ListSessions()
	require.Len(t, list, 3)
	assert.Equal(t, []string{c.ID, b.ID, a.ID}, []string{list[0].ID, list[1].ID, list[2].ID})

	s2 := newTestStore(t, nil)
	x, _ := s2.CreateSession()
	y, _ := s2.CreateSession()
	_, err = s2.AppendMessage(x.ID, model.NewUserMessage("bump"))
	require.NoError(t, err)

	list = s2.ListSessions()
	assert.Equal(t, x.ID, list[0].ID)
	assert.Equal(t, y.ID, list[1].ID)
}

func TestStore_DeleteSession(t *testing.T) {
	s := newTestStore(t, nil)
	older, _ := s.CreateSession()
	newer, _ := s.CreateSession()
	active, _ := s.CreateSession()

	require.NoError(t, s.DeleteSession("missing"))
	assert.Equal(t, 3, s.Len())

	require.NoError(t, s.DeleteSession(active.ID))
	assert.Equal(t, newer.ID, s.ActiveID())

	require.NoError(t, s.DeleteSession(older.ID))
	assert.Equal(t, newer.ID, s.ActiveID())

	require.NoError(t, s.DeleteSession(newer.ID))
	assert.Empty(t, s.ActiveID())
	assert.Nil(t, s.Active())
}

func TestStore_Rename(t *testing.T) {
	s := newTestStore(t, nil)
	sess, _ := s.CreateSession()
	_, err := s.AppendMessage(sess.ID, model.NewUserMessage("chest x-ray question"))
	require.NoError(t, err)

	require.NoError(t, s.Rename(sess.ID, "  Radiology  "))
	require.NoError(t, s.UpdateMessageContent(sess.ID, 0, "something else"))

	got, _ := s.Get(sess.ID)
	assert.Equal(t, "Radiology", got.Title)
	assert.True(t, got.TitleLocked)

	require.NoError(t, s.Rename(sess.ID, ""))
	got, _ = s.Get(sess.ID)
	assert.Equal(t, "something else", got.Title)
	assert.False(t, got.TitleLocked)
}

func TestStore_RenameSameTitleIsNoop(t *testing.T) {
	s := newTestStore(t, nil)
	sess, _ := s.CreateSession()
	require.NoError(t, s.Rename(sess.ID, "Radiology"))
	before, _ := s.Get(sess.ID)

	require.NoError(t, s.Rename(sess.ID, " Radiology "))
	after, _ := s.Get(sess.ID)
	assert.Equal(t, before.UpdatedAt, after.UpdatedAt)

	other, _ := s.CreateSession()
	require.NoError(t, s.Rename(sess.ID, "Radiology"))
	assert.Equal(t, other.ID, s.ListSessions()[0].ID, "a repeated rename does not reorder the list")
}

func TestStore_SetCorrelationIDBumpsUpdatedAt(t *testing.T) {
	now := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	s, err := Open(Options{Clock: func() time.Time { return now }, Logger: logging.Discard()})
	require.NoError(t, err)
	sess, _ := s.CreateSession()

	now = now.Add(time.Minute)
	require.NoError(t, s.SetCorrelationID(sess.ID, "s1"))

	got, _ := s.Get(sess.ID)
	assert.Equal(t, sess.CreatedAt, got.CreatedAt)
	assert.Equal(t, now, got.UpdatedAt)

	now = now.Add(time.Minute)
	require.NoError(t, s.SetCorrelationID(sess.ID, "s1"))
	got, _ = s.Get(sess.ID)
	assert.Equal(t, now.Add(-time.Minute), got.UpdatedAt, "rebinding the same id changes nothing")
}

func TestStore_CorrelationAndClear(t *testing.T) {
	s := newTestStore(t, nil)
	sess, _ := s.CreateSession()
	appendN(t, s, sess.ID, 2)

	require.NoError(t, s.SetCorrelationID(sess.ID, "s1"))
	got, _ := s.Get(sess.ID)
	assert.Equal(t, "s1", got.CorrelationID)

	previous, err := s.ClearMessages(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "s1", previous)

	got, _ = s.Get(sess.ID)
	assert.True(t, got.IsEmpty())
	assert.Empty(t, got.CorrelationID)
	assert.Empty(t, got.Title)
}

func TestStore_MissingSession(t *testing.T) {
	s := newTestStore(t, nil)

	_, err := s.AppendMessage("nope", model.NewUserMessage("x"))
	assert.ErrorIs(t, err, ErrSessionNotFound)
	assert.True(t, IsNotFound(err))
	assert.ErrorIs(t, s.TruncateAfter("nope", 0), ErrSessionNotFound)
	assert.ErrorIs(t, s.SetCorrelationID("nope", "c"), ErrSessionNotFound)
	assert.ErrorIs(t, s.Rename("nope", "t"), ErrSessionNotFound)
	assert.ErrorIs(t, s.SetActive("nope"), ErrSessionNotFound)

	sess, _ := s.CreateSession()
	assert.ErrorIs(t, s.UpdateMessageContent(sess.ID, 4, "x"), ErrMessageNotFound)
}

func TestStore_Resolve(t *testing.T) {
	s := newTestStore(t, nil)
	sess, _ := s.CreateSession()

	got, err := s.Resolve(ShortID(sess.ID))
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)

	got, err = s.Resolve(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)

	_, err = s.Resolve("")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, s.Rename(sess.ID, "Chest X-ray"))
	got, err = s.Resolve("chest x-ray")
	require.NoError(t, err)
	assert.Equal(t, sess.ID, got.ID)

	other, _ := s.CreateSession()
	require.NoError(t, s.Rename(other.ID, "Chest X-ray"))
	_, err = s.Resolve("Chest X-ray")
	assert.ErrorIs(t, err, ErrSessionNotFound, "ambiguous titles match nothing")
}

// =============================================================================
// PERSISTENCE
// =============================================================================

func TestStore_ReopenRestoresState(t *testing.T) {
	backend, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	s := newTestStore(t, backend)
	first, _ := s.CreateSession()
	_, err = s.AppendMessage(first.ID, model.NewUserMessage("persist me"))
	require.NoError(t, err)
	require.NoError(t, s.SetCorrelationID(first.ID, "abc"))
	second, _ := s.CreateSession()

	reopened := newTestStore(t, backend)
	assert.Equal(t, 2, reopened.Len())
	assert.Equal(t, second.ID, reopened.ActiveID())

	got, err := reopened.Get(first.ID)
	require.NoError(t, err)
	assert.Equal(t, "persist me", got.Title)
	assert.Equal(t, "abc", got.CorrelationID)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, 0, got.Messages[0].Index)
}

func TestStore_CorruptDocumentSetAside(t *testing.T) {
	backend := NewMemoryBackend()
	require.NoError(t, backend.Save(KeySessions, []byte("{truncated")))

	s := newTestStore(t, backend)
	assert.Equal(t, 0, s.Len())

	notes := s.LoadNotes()
	require.NotEmpty(t, notes)
	assert.Contains(t, notes[0], "could not decode")

	backend.mu.RLock()
	defer backend.mu.RUnlock()
	found := false
	for key, data := range backend.docs {
		if key != KeySessions && string(data) == "{truncated" {
			found = true
		}
	}
	assert.True(t, found, "corrupt document should be kept under a backup key")
}

// =============================================================================
// SETTINGS
// =============================================================================

func TestStore_SettingsDefaults(t *testing.T) {
	s := newTestStore(t, nil)
	assert.Equal(t, DefaultSettings(), s.Settings())
	assert.Equal(t, model.DefaultGenerationConfig(), s.Settings().Generation())
}

func TestStore_SettingsRoundTrip(t *testing.T) {
	backend := NewMemoryBackend()
	s := newTestStore(t, backend)

	want := Settings{Temperature: 0.2, MaxTokens: 1024, Quantization: model.Quant8Bit}
	require.NoError(t, s.SaveSettings(want))

	assert.Equal(t, want, newTestStore(t, backend).Settings())
}

func TestStore_SettingsPartialRecord(t *testing.T) {
	tests := []struct {
		name   string
		stored string
		want   Settings
	}{
		{
			name:   "browser record without version",
			stored: `{"temperature": 1.1, "maxTokens": 256, "quantization": "cpu"}`,
			want:   Settings{Temperature: 1.1, MaxTokens: 256, Quantization: model.QuantCPU},
		},
		{
			name:   "temperature only",
			stored: `{"temperature": 0}`,
			want:   Settings{Temperature: 0, MaxTokens: model.DefaultMaxNewTokens, Quantization: model.DefaultQuantization},
		},
		{
			name:   "unknown quantization",
			stored: `{"version": 1, "quantization": "2bit"}`,
			want:   DefaultSettings(),
		},
		{
			name:   "invalid max tokens",
			stored: `{"maxTokens": -4}`,
			want:   DefaultSettings(),
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			backend := NewMemoryBackend()
			require.NoError(t, backend.Save(KeySettings, []byte(tc.stored)))
			assert.Equal(t, tc.want, newTestStore(t, backend).Settings())
		})
	}
}

func TestStore_SaveSettingsRejectsInvalid(t *testing.T) {
	s := newTestStore(t, nil)

	err := s.SaveSettings(Settings{Temperature: -1, MaxTokens: 10, Quantization: model.Quant4Bit})
	assert.ErrorIs(t, err, &model.ValidationError{Code: model.CodeInvalidSetting})
	assert.Equal(t, DefaultSettings(), s.Settings())
}

// =============================================================================
// HISTORY
// =============================================================================

func TestStore_HistoryAndRestore(t *testing.T) {
	b, err := NewSQLiteBackend(filepath.Join(t.TempDir(), "lingshu.db"))
	require.NoError(t, err)
	s := newTestStore(t, b)
	defer s.Close()

	sess, _ := s.CreateSession()
	_, err = s.AppendMessage(sess.ID, model.NewUserMessage("chest x-ray question"))
	require.NoError(t, err)
	require.NoError(t, s.DeleteSession(sess.ID))
	require.Zero(t, s.Len())

	revs, err := s.History()
	require.NoError(t, err)
	require.Len(t, revs, 2)
	assert.Equal(t, SessionRevision{ID: revs[0].ID, SavedAt: revs[0].SavedAt, Sessions: 1, Messages: 1}, revs[0])
	assert.Equal(t, 0, revs[1].Messages)

	require.NoError(t, s.Restore(revs[0].ID))
	got, err := s.Get(sess.ID)
	require.NoError(t, err)
	require.Len(t, got.Messages, 1)
	assert.Equal(t, "chest x-ray question", got.Messages[0].Content)
	assert.Equal(t, sess.ID, s.ActiveID())

	revs, err = s.History()
	require.NoError(t, err)
	require.Len(t, revs, 3)
	assert.Equal(t, 0, revs[0].Sessions, "the replaced table is archived")

	assert.ErrorIs(t, s.Restore(9999), ErrRevisionNotFound)
}

func TestStore_HistoryNeedsVersionedBackend(t *testing.T) {
	s := newTestStore(t, nil)

	_, err := s.History()
	assert.ErrorIs(t, err, ErrNoHistory)
	assert.ErrorIs(t, s.Restore(1), ErrNoHistory)
}
