// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package storage

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/jeranaias/lingshu-tui/internal/logging"
	"github.com/jeranaias/lingshu-tui/internal/model"
)

// =============================================================================
// OPTIONS
// =============================================================================

// Options configures a Store.
type Options struct {
	// Backend persists the documents. Default: in-memory.
	Backend Backend

	// TitleRunes limits derived titles. Default: model.DefaultTitleRunes.
	TitleRunes int

	// WatchDebounce enables the external-write warning on file backends
	// when non-zero.
	WatchDebounce time.Duration

	// Clock returns the current time. Default: time.Now.
	Clock func() time.Time

	Logger *log.Logger
}

// versionedBackend is implemented by backends that archive replaced
// documents.
type versionedBackend interface {
	History(key string) ([]Revision, error)
	Revision(key string, id int64) (Revision, error)
}

// externalWatcher is implemented by backends that can notice writes made by
// other processes.
type externalWatcher interface {
	Watch(debounce time.Duration, onChange func(key string)) error
}

// =============================================================================
// STORE
// =============================================================================

// Store owns every chat session and the generation settings. The in-memory
// table is authoritative; each mutation persists the whole table before it
// returns. Write failures are reported as *StorageError without undoing
// the mutation.
//
// All methods are safe for concurrent use. Returned sessions are copies.
type Store struct {
	mu         sync.Mutex
	backend    Backend
	sessions   map[string]*model.ChatSession
	activeID   string
	settings   Settings
	titleRunes int
	now        func() time.Time
	logger     *log.Logger
	notes      []string
}

// Open loads persisted state from the backend. Unreadable documents are
// set aside and replaced with empty state; the problems are available
// from LoadNotes.
func Open(opts Options) (*Store, error) {
	if opts.Backend == nil {
		opts.Backend = NewMemoryBackend()
	}
	if opts.TitleRunes <= 0 {
		opts.TitleRunes = model.DefaultTitleRunes
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = logging.With("storage")
	}

	s := &Store{
		backend:    opts.Backend,
		sessions:   make(map[string]*model.ChatSession),
		settings:   DefaultSettings(),
		titleRunes: opts.TitleRunes,
		now:        opts.Clock,
		logger:     opts.Logger,
	}

	if err := s.loadSessions(); err != nil {
		return nil, err
	}
	if err := s.loadSettings(); err != nil {
		return nil, err
	}

	if w, ok := opts.Backend.(externalWatcher); ok && opts.WatchDebounce > 0 {
		err := w.Watch(opts.WatchDebounce, func(key string) {
			s.logger.Warn("data file changed by another process; it will be overwritten on the next save", "key", key)
		})
		if err != nil {
			s.logger.Debug("external write watch unavailable", "err", err)
		}
	}

	return s, nil
}

func (s *Store) loadSessions() error {
	data, err := s.backend.Load(KeySessions)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return &StorageError{Op: "load", Key: KeySessions, Err: err}
	}

	table, notes, err := decodeSessions(data, s.titleRunes, s.now())
	if err != nil {
		s.setAside(KeySessions, data, err)
		return nil
	}
	for _, n := range notes {
		s.logger.Info(n)
	}
	s.notes = append(s.notes, notes...)

	for _, sess := range table.Sessions {
		s.sessions[sess.ID] = sess
	}
	s.activeID = table.ActiveID
	return nil
}

func (s *Store) loadSettings() error {
	data, err := s.backend.Load(KeySettings)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	if err != nil {
		return &StorageError{Op: "load", Key: KeySettings, Err: err}
	}

	settings, notes, err := decodeSettings(data)
	if err != nil {
		s.setAside(KeySettings, data, err)
		return nil
	}
	for _, n := range notes {
		s.logger.Warn(n)
	}
	s.notes = append(s.notes, notes...)
	s.settings = settings
	return nil
}

// setAside keeps an undecodable document under a backup key so the next
// save does not destroy it.
func (s *Store) setAside(key string, data []byte, cause error) {
	backup := key + ".corrupt-" + s.now().UTC().Format("20060102T150405")
	note := "could not decode " + key + " (" + cause.Error() + "); starting empty"
	if err := s.backend.Save(backup, data); err != nil {
		s.logger.Error("failed to back up unreadable document", "key", key, "err", err)
	} else {
		note += ", previous contents saved as " + backup
	}
	s.logger.Warn(note)
	s.notes = append(s.notes, note)
}

// LoadNotes returns the repairs and migrations applied while opening.
func (s *Store) LoadNotes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.notes...)
}

// Close releases the backend.
func (s *Store) Close() error {
	return s.backend.Close()
}

// =============================================================================
// QUERIES
// =============================================================================

// ListSessions returns every session, most recently updated first.
func (s *Store) ListSessions() []*model.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*model.ChatSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Clone())
	}
	sortSessions(out)
	return out
}

// Summaries returns listing metadata in ListSessions order.
func (s *Store) Summaries() []model.SessionSummary {
	sessions := s.ListSessions()
	out := make([]model.SessionSummary, len(sessions))
	for i, sess := range sessions {
		out[i] = sess.Summary()
	}
	return out
}

// Get returns a copy of the session with the given ID.
func (s *Store) Get(id string) (*model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, sessionNotFound(id)
	}
	return sess.Clone(), nil
}

// Resolve finds a session by exact ID, or by a unique prefix or short-ID
// suffix as printed by FormatSessionList, or else by an exact title.
func (s *Store) Resolve(ref string) (*model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[ref]; ok {
		return sess.Clone(), nil
	}
	compact := strings.ReplaceAll(ref, "-", "")
	var match *model.ChatSession
	for id, sess := range s.sessions {
		if compact == "" {
			break
		}
		if !strings.HasPrefix(id, ref) && !strings.HasSuffix(strings.ReplaceAll(id, "-", ""), compact) {
			continue
		}
		if match != nil {
			return nil, &SessionError{Message: "ambiguous session id", ID: ref}
		}
		match = sess
	}
	if match == nil {
		match = s.byTitleLocked(ref)
	}
	if match == nil {
		return nil, sessionNotFound(ref)
	}
	return match.Clone(), nil
}

// byTitleLocked returns the only session whose title equals ref, ignoring
// case. Ambiguous titles match nothing.
func (s *Store) byTitleLocked(ref string) *model.ChatSession {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil
	}
	var match *model.ChatSession
	for _, sess := range s.sessions {
		if !strings.EqualFold(sess.DisplayTitle(), ref) {
			continue
		}
		if match != nil {
			return nil
		}
		match = sess
	}
	return match
}

// Active returns a copy of the active session, or nil.
func (s *Store) Active() *model.ChatSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess, ok := s.sessions[s.activeID]; ok {
		return sess.Clone()
	}
	return nil
}

// ActiveID returns the active session's ID, or "".
func (s *Store) ActiveID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeID
}

// Len returns the number of sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// =============================================================================
// SESSION MUTATIONS
// =============================================================================

// CreateSession adds an empty session and makes it active. The session is
// returned even when persisting fails.
func (s *Store) CreateSession() (*model.ChatSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := model.NewChatSession()
	now := s.now()
	sess.CreatedAt = now
	sess.UpdatedAt = now

	s.sessions[sess.ID] = sess
	s.activeID = sess.ID
	return sess.Clone(), s.persistSessions()
}

// SetActive marks the session as the one shown and sent to.
func (s *Store) SetActive(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return sessionNotFound(id)
	}
	if s.activeID == id {
		return nil
	}
	s.activeID = id
	return s.persistSessions()
}

// AppendMessage adds msg to the end of the session's log and returns the
// index it was assigned. Appending a message equal to the current tail
// (same role, content and timestamp) is treated as a retry and returns
// the existing index.
func (s *Store) AppendMessage(id string, msg *model.Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return -1, sessionNotFound(id)
	}

	if tail := sess.LastMessage(); tail != nil && tail.SameTurn(msg) {
		msg.Index = tail.Index
		return tail.Index, s.persistSessions()
	}

	stored := msg.Clone()
	if stored.Timestamp.IsZero() {
		stored.Timestamp = s.now()
	}
	for i := range stored.Attachments {
		stored.Attachments[i].Data = nil
	}
	index := sess.Append(stored)
	msg.Index = index
	msg.Timestamp = stored.Timestamp

	sess.RefreshTitle(s.titleRunes)
	sess.Touch(s.now())
	return index, s.persistSessions()
}

// UpdateMessageContent rewrites the content of one message.
func (s *Store) UpdateMessageContent(id string, index int, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return sessionNotFound(id)
	}
	msg := sess.MessageAt(index)
	if msg == nil {
		return &SessionError{Message: ErrMessageNotFound.Message, ID: id}
	}
	if msg.Content == content {
		return nil
	}

	msg.Content = content
	sess.RefreshTitle(s.titleRunes)
	sess.Touch(s.now())
	return s.persistSessions()
}

// TruncateAfter drops every message with an index greater than index.
// A negative index empties the session.
func (s *Store) TruncateAfter(id string, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return sessionNotFound(id)
	}
	if !sess.TruncateAfter(index) {
		return nil
	}

	sess.RefreshTitle(s.titleRunes)
	sess.Touch(s.now())
	return s.persistSessions()
}

// SetCorrelationID binds the session to a backend conversation.
func (s *Store) SetCorrelationID(id, correlationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return sessionNotFound(id)
	}
	if sess.CorrelationID == correlationID {
		return nil
	}

	sess.CorrelationID = correlationID
	sess.Touch(s.now())
	return s.persistSessions()
}

// ClearMessages empties the session and unbinds it from the backend.
// Returns the correlation ID it had, so the caller can clear server-side
// history too.
func (s *Store) ClearMessages(id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return "", sessionNotFound(id)
	}
	previous := sess.CorrelationID
	if sess.IsEmpty() && previous == "" {
		return "", nil
	}

	sess.TruncateAfter(-1)
	sess.CorrelationID = ""
	sess.RefreshTitle(s.titleRunes)
	sess.Touch(s.now())
	return previous, s.persistSessions()
}

// Rename sets an explicit title. An empty title reverts to the derived one.
// Renaming to the current title changes nothing.
func (s *Store) Rename(id, title string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return sessionNotFound(id)
	}

	prevTitle, prevLocked := sess.Title, sess.TitleLocked
	sess.SetTitle(title)
	sess.RefreshTitle(s.titleRunes)
	if sess.Title == prevTitle && sess.TitleLocked == prevLocked {
		return nil
	}
	sess.Touch(s.now())
	return s.persistSessions()
}

// DeleteSession removes a session. Deleting an unknown ID does nothing.
// When the active session is deleted the most recent remaining one becomes
// active.
func (s *Store) DeleteSession(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; !ok {
		return nil
	}
	delete(s.sessions, id)

	if s.activeID == id {
		s.activeID = ""
		var newest *model.ChatSession
		for _, sess := range s.sessions {
			if newest == nil || sess.UpdatedAt.After(newest.UpdatedAt) ||
				(sess.UpdatedAt.Equal(newest.UpdatedAt) && sess.ID > newest.ID) {
				newest = sess
			}
		}
		if newest != nil {
			s.activeID = newest.ID
		}
	}
	return s.persistSessions()
}

// =============================================================================
// SETTINGS
// =============================================================================

// Settings returns the current generation settings.
func (s *Store) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// SaveSettings validates and stores new generation settings.
func (s *Store) SaveSettings(settings Settings) error {
	if err := settings.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings = settings
	data, err := encodeSettings(settings)
	if err != nil {
		return &StorageError{Op: "encode", Key: KeySettings, Err: err}
	}
	if err := s.backend.Save(KeySettings, data); err != nil {
		s.logger.Error("failed to save settings", "err", err)
		return &StorageError{Op: "save", Key: KeySettings, Err: err}
	}
	return nil
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// persistSessions writes the whole table. Caller holds s.mu.
func (s *Store) persistSessions() error {
	list := make([]*model.ChatSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		list = append(list, sess)
	}
	sortSessions(list)

	data, err := encodeSessions(list, s.activeID)
	if err != nil {
		return &StorageError{Op: "encode", Key: KeySessions, Err: err}
	}
	if err := s.backend.Save(KeySessions, data); err != nil {
		s.logger.Error("failed to save sessions", "err", err)
		return &StorageError{Op: "save", Key: KeySessions, Err: err}
	}
	return nil
}

// =============================================================================
// HISTORY
// =============================================================================

// SessionRevision describes one archived copy of the session table.
type SessionRevision struct {
	ID       int64     `json:"id"`
	SavedAt  time.Time `json:"saved_at"`
	Sessions int       `json:"sessions"`
	Messages int       `json:"messages"`
}

// History lists archived copies of the session table, newest first.
// Revisions that no longer decode are skipped.
func (s *Store) History() ([]SessionRevision, error) {
	vb, ok := s.backend.(versionedBackend)
	if !ok {
		return nil, ErrNoHistory
	}
	revs, err := vb.History(KeySessions)
	if err != nil {
		return nil, &StorageError{Op: "load", Key: KeySessions, Err: err}
	}

	out := make([]SessionRevision, 0, len(revs))
	for _, rev := range revs {
		table, _, err := decodeSessions(rev.Data, s.titleRunes, s.now())
		if err != nil {
			s.logger.Debug("skipping unreadable revision", "id", rev.ID, "err", err)
			continue
		}
		entry := SessionRevision{ID: rev.ID, SavedAt: rev.SavedAt, Sessions: len(table.Sessions)}
		for _, sess := range table.Sessions {
			entry.Messages += len(sess.Messages)
		}
		out = append(out, entry)
	}
	return out, nil
}

// Restore replaces every session with an archived copy. The table being
// replaced is archived in turn, so a restore can be undone the same way.
func (s *Store) Restore(id int64) error {
	vb, ok := s.backend.(versionedBackend)
	if !ok {
		return ErrNoHistory
	}
	rev, err := vb.Revision(KeySessions, id)
	if errors.Is(err, ErrNotFound) {
		return &SessionError{Message: ErrRevisionNotFound.Message, ID: strconv.FormatInt(id, 10)}
	}
	if err != nil {
		return &StorageError{Op: "load", Key: KeySessions, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	table, _, err := decodeSessions(rev.Data, s.titleRunes, s.now())
	if err != nil {
		return fmt.Errorf("revision %d is unreadable: %w", id, err)
	}
	s.sessions = make(map[string]*model.ChatSession, len(table.Sessions))
	for _, sess := range table.Sessions {
		s.sessions[sess.ID] = sess
	}
	s.activeID = table.ActiveID
	return s.persistSessions()
}
