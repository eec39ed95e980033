package store

import (
	"sort"
	"sync"
	"time"

	"github.com/ItsWendell/palot/internal/types"
)

// EntityStore is the canonical in-memory table of sessions, messages and
// parts. It is single-writer per batch but safe for concurrent writers
// (stream flushes and REST hydration funnel through Update). Entities are
// copy-on-write: a published pointer is never mutated, so readers holding a
// snapshot never observe a torn entity.
type EntityStore struct {
	mu sync.RWMutex

	version         uint64
	sessionVersions map[string]uint64

	sessions        map[string]*types.Session
	messages        map[string]*types.Message
	sessionMessages map[string][]string
	parts           map[string]*types.Part
	messageParts    map[string][]string
	permissions     map[string][]*types.Permission
	questions       map[string][]*types.Question

	placeholderSessions map[string]bool
	placeholderMessages map[string]bool
}

func NewEntityStore() *EntityStore {
	return &EntityStore{
		sessionVersions:     map[string]uint64{},
		sessions:            map[string]*types.Session{},
		messages:            map[string]*types.Message{},
		sessionMessages:     map[string][]string{},
		parts:               map[string]*types.Part{},
		messageParts:        map[string][]string{},
		permissions:         map[string][]*types.Permission{},
		questions:           map[string][]*types.Question{},
		placeholderSessions: map[string]bool{},
		placeholderMessages: map[string]bool{},
	}
}

// Tx is a write transaction. All mutations inside one Update call become
// visible to readers atomically, with a single version bump.
type Tx struct {
	s       *EntityStore
	touched map[string]bool
}

// Update runs fn under the write lock. fn must not block on I/O.
func (s *EntityStore) Update(fn func(tx *Tx)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &Tx{s: s, touched: map[string]bool{}}
	fn(tx)
	if len(tx.touched) == 0 {
		return
	}
	s.version++
	for id := range tx.touched {
		s.sessionVersions[id] = s.version
	}
}

func (tx *Tx) touch(sessionID string) {
	if sessionID != "" {
		tx.touched[sessionID] = true
	}
}

func (tx *Tx) ensureSession(id string) *types.Session {
	if sess, ok := tx.s.sessions[id]; ok {
		return sess
	}
	// Event order across the multiplexed stream is not parent-before-child;
	// unknown parents become placeholders instead of failed writes.
	sess := &types.Session{ID: id, Status: types.SessionStatusBusy}
	tx.s.sessions[id] = sess
	tx.s.placeholderSessions[id] = true
	return sess
}

func (tx *Tx) ensureMessage(id, sessionID string) *types.Message {
	if msg, ok := tx.s.messages[id]; ok {
		return msg
	}
	tx.ensureSession(sessionID)
	msg := &types.Message{ID: id, SessionID: sessionID}
	tx.s.messages[id] = msg
	tx.s.sessionMessages[sessionID] = append(tx.s.sessionMessages[sessionID], id)
	tx.s.placeholderMessages[id] = true
	return msg
}

func (tx *Tx) UpsertSession(info types.Session) {
	if info.ID == "" {
		return
	}
	existing, ok := tx.s.sessions[info.ID]
	if !ok {
		next := info
		tx.s.sessions[info.ID] = &next
		tx.touch(info.ID)
		return
	}
	next := *existing
	if info.ParentID != "" {
		next.ParentID = info.ParentID
	}
	if info.Directory != "" {
		next.Directory = info.Directory
	}
	if info.Title != "" {
		next.Title = info.Title
	}
	if info.Status != "" {
		next.Status = info.Status
	}
	if !info.CreatedAt.IsZero() {
		next.CreatedAt = info.CreatedAt
	}
	if !info.UpdatedAt.IsZero() {
		next.UpdatedAt = info.UpdatedAt
	}
	if info.LastError != "" {
		next.LastError = info.LastError
	}
	if info.Cost != 0 {
		next.Cost = info.Cost
	}
	if info.InputTokens != 0 {
		next.InputTokens = info.InputTokens
	}
	if info.OutputTokens != 0 {
		next.OutputTokens = info.OutputTokens
	}
	tx.s.sessions[info.ID] = &next
	delete(tx.s.placeholderSessions, info.ID)
	tx.touch(info.ID)
}

func (tx *Tx) SetSessionStatus(id string, status types.SessionStatus) {
	if id == "" || status == "" {
		return
	}
	existing := tx.ensureSession(id)
	if existing.Status == status {
		tx.touch(id)
		return
	}
	next := *existing
	next.Status = status
	next.UpdatedAt = time.Now()
	tx.s.sessions[id] = &next
	tx.touch(id)
}

func (tx *Tx) SetSessionError(id, message string) {
	if id == "" {
		return
	}
	existing := tx.ensureSession(id)
	next := *existing
	next.LastError = message
	next.UpdatedAt = time.Now()
	tx.s.sessions[id] = &next
	tx.touch(id)
}

func (tx *Tx) UpsertMessage(info types.Message) {
	if info.ID == "" {
		return
	}
	existing, ok := tx.s.messages[info.ID]
	if !ok {
		tx.ensureSession(info.SessionID)
		next := info
		tx.s.messages[info.ID] = &next
		tx.s.sessionMessages[info.SessionID] = append(tx.s.sessionMessages[info.SessionID], info.ID)
		tx.touch(info.SessionID)
		return
	}
	next := *existing
	if next.SessionID == "" {
		next.SessionID = info.SessionID
	}
	if next.Role == "" {
		next.Role = info.Role
	}
	if !info.CreatedAt.IsZero() {
		next.CreatedAt = info.CreatedAt
	}
	if info.CompletedAt != nil {
		next.CompletedAt = info.CompletedAt
	}
	if info.Error != "" {
		next.Error = info.Error
	}
	tx.s.messages[info.ID] = &next
	delete(tx.s.placeholderMessages, info.ID)
	tx.touch(next.SessionID)
}

// EnsurePart registers a part's identity without storing its content, so
// message enumeration includes the part (in insertion order) while its text
// still lives in the StreamBuffer. A no-op once the part is known.
func (tx *Tx) EnsurePart(info types.Part) {
	if info.ID == "" || info.MessageID == "" {
		return
	}
	if _, ok := tx.s.parts[info.ID]; ok {
		return
	}
	tx.ensureMessage(info.MessageID, info.SessionID)
	next := info
	next.Text = ""
	next.Revision = 0
	tx.s.parts[info.ID] = &next
	tx.s.messageParts[info.MessageID] = append(tx.s.messageParts[info.MessageID], info.ID)
	tx.touch(info.SessionID)
}

// BatchUpsertParts applies a set of part writes in one pass. Writes with a
// revision lower than the stored one are stale and ignored; tool states only
// move forward.
func (tx *Tx) BatchUpsertParts(parts []types.Part) {
	for i := range parts {
		tx.upsertPart(parts[i])
	}
}

func (tx *Tx) upsertPart(info types.Part) {
	if info.ID == "" || info.MessageID == "" {
		return
	}
	existing, ok := tx.s.parts[info.ID]
	if !ok {
		tx.ensureMessage(info.MessageID, info.SessionID)
		next := info
		tx.s.parts[info.ID] = &next
		tx.s.messageParts[info.MessageID] = append(tx.s.messageParts[info.MessageID], info.ID)
		tx.touch(info.SessionID)
		return
	}
	if info.Revision < existing.Revision {
		return
	}
	next := info
	if next.SessionID == "" {
		next.SessionID = existing.SessionID
	}
	next.ToolState = types.NextToolState(existing.ToolState, info.ToolState)
	tx.s.parts[info.ID] = &next
	tx.touch(next.SessionID)
}

func (tx *Tx) RemoveSession(id string) {
	if _, ok := tx.s.sessions[id]; !ok {
		return
	}
	for _, msgID := range tx.s.sessionMessages[id] {
		for _, partID := range tx.s.messageParts[msgID] {
			delete(tx.s.parts, partID)
		}
		delete(tx.s.messageParts, msgID)
		delete(tx.s.messages, msgID)
		delete(tx.s.placeholderMessages, msgID)
	}
	delete(tx.s.sessionMessages, id)
	delete(tx.s.sessions, id)
	delete(tx.s.placeholderSessions, id)
	delete(tx.s.permissions, id)
	delete(tx.s.questions, id)
	tx.touch(id)
}

func (tx *Tx) PutPermission(p types.Permission) {
	if p.ID == "" || p.SessionID == "" {
		return
	}
	tx.ensureSession(p.SessionID)
	list := tx.s.permissions[p.SessionID]
	next := make([]*types.Permission, 0, len(list)+1)
	replaced := false
	for _, existing := range list {
		if existing.ID == p.ID {
			entry := p
			next = append(next, &entry)
			replaced = true
			continue
		}
		next = append(next, existing)
	}
	if !replaced {
		entry := p
		next = append(next, &entry)
	}
	tx.s.permissions[p.SessionID] = next
	tx.touch(p.SessionID)
}

func (tx *Tx) ResolvePermission(sessionID, permissionID string) {
	list := tx.s.permissions[sessionID]
	next := make([]*types.Permission, 0, len(list))
	for _, existing := range list {
		if existing.ID == permissionID {
			continue
		}
		next = append(next, existing)
	}
	tx.s.permissions[sessionID] = next
	tx.touch(sessionID)
}

func (tx *Tx) PutQuestion(q types.Question) {
	if q.ID == "" || q.SessionID == "" {
		return
	}
	tx.ensureSession(q.SessionID)
	list := tx.s.questions[q.SessionID]
	next := make([]*types.Question, 0, len(list)+1)
	replaced := false
	for _, existing := range list {
		if existing.ID == q.ID {
			entry := q
			next = append(next, &entry)
			replaced = true
			continue
		}
		next = append(next, existing)
	}
	if !replaced {
		entry := q
		next = append(next, &entry)
	}
	tx.s.questions[q.SessionID] = next
	tx.touch(q.SessionID)
}

func (tx *Tx) ResolveQuestion(sessionID, questionID string) {
	list := tx.s.questions[sessionID]
	next := make([]*types.Question, 0, len(list))
	for _, existing := range list {
		if existing.ID == questionID {
			continue
		}
		next = append(next, existing)
	}
	tx.s.questions[sessionID] = next
	tx.touch(sessionID)
}

// Convenience wrappers for callers outside a batch (hydration, tests).

func (s *EntityStore) UpsertSession(info types.Session) {
	s.Update(func(tx *Tx) { tx.UpsertSession(info) })
}

func (s *EntityStore) UpsertMessage(info types.Message) {
	s.Update(func(tx *Tx) { tx.UpsertMessage(info) })
}

func (s *EntityStore) BatchUpsertParts(parts []types.Part) {
	s.Update(func(tx *Tx) { tx.BatchUpsertParts(parts) })
}

func (s *EntityStore) RemoveSession(id string) {
	s.Update(func(tx *Tx) { tx.RemoveSession(id) })
}

// Snapshot is a read-only view of the store. Accessors read the live tables
// under the read lock; entity pointers they return are immutable.
type Snapshot struct {
	s       *EntityStore
	version uint64
}

func (s *EntityStore) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{s: s, version: s.version}
}

func (v Snapshot) Version() uint64 {
	return v.version
}

// SessionVersion returns the store version at which the session (or any of
// its messages, parts or pending requests) last changed.
func (v Snapshot) SessionVersion(id string) uint64 {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.sessionVersions[id]
}

// SessionPlaceholder reports whether a session exists only because a child
// entity implied it; real session info has not arrived yet.
func (v Snapshot) SessionPlaceholder(id string) bool {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.placeholderSessions[id]
}

// MessagePlaceholder reports whether a message exists only because one of
// its parts arrived first.
func (v Snapshot) MessagePlaceholder(id string) bool {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.placeholderMessages[id]
}

func (v Snapshot) Session(id string) (*types.Session, bool) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	sess, ok := v.s.sessions[id]
	return sess, ok
}

func (v Snapshot) Sessions() []*types.Session {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	out := make([]*types.Session, 0, len(v.s.sessions))
	for _, sess := range v.s.sessions {
		out = append(out, sess)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (v Snapshot) Messages(sessionID string) []*types.Message {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	ids := v.s.sessionMessages[sessionID]
	out := make([]*types.Message, 0, len(ids))
	for _, id := range ids {
		if msg, ok := v.s.messages[id]; ok {
			out = append(out, msg)
		}
	}
	return out
}

func (v Snapshot) Part(id string) (*types.Part, bool) {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	part, ok := v.s.parts[id]
	return part, ok
}

func (v Snapshot) Parts(messageID string) []*types.Part {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	ids := v.s.messageParts[messageID]
	out := make([]*types.Part, 0, len(ids))
	for _, id := range ids {
		if part, ok := v.s.parts[id]; ok {
			out = append(out, part)
		}
	}
	return out
}

func (v Snapshot) Permissions(sessionID string) []*types.Permission {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.permissions[sessionID]
}

func (v Snapshot) Questions(sessionID string) []*types.Question {
	v.s.mu.RLock()
	defer v.s.mu.RUnlock()
	return v.s.questions[sessionID]
}
