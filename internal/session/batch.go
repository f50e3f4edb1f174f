package session

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	"github.com/autoforge/autoforge/internal/backlog"
)

// DefaultFlushThreshold is the number of pending updates after which
// UpdateItemStatus triggers an automatic FlushUpdates, bounding how much
// in-memory state could be lost to a crash between flushes.
const DefaultFlushThreshold = 20

// UpdateItemStatus records a status transition for id in memory, marks it
// dirty, and bumps the pending counter. Once pending reaches
// DefaultFlushThreshold the update is flushed immediately; otherwise it
// waits for an explicit FlushUpdates call (typically made by the
// orchestrator at natural boundaries: before dispatching the next ready
// item, and always before process exit).
func (s *Session) UpdateItemStatus(id string, status backlog.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	item, ok := s.backlog.Items[id]
	if !ok {
		return &backlog.NotFoundError{ID: id}
	}
	if !status.IsValid() {
		return &backlog.ValidationError{ID: id, Reason: fmt.Sprintf("invalid status %q", status)}
	}
	item.Status = status
	item.UpdatedAt = time.Now()
	s.dirty[id] = true
	s.pending++

	if s.pending >= DefaultFlushThreshold {
		return s.flushLocked()
	}
	return nil
}

// PendingCount reports how many dirty updates are waiting to be flushed.
func (s *Session) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pending
}

// FlushUpdates serializes the whole backlog document to tasks.json
// atomically. It writes the document on every call, including when no
// updates are pending, and it serializes concurrent callers on s.mu so only one writer is ever mid-write
// (the single-writer convention carried forward from
// internal/taskstore/local.go, generalized from per-file to
// per-aggregate-document writes).
func (s *Session) FlushUpdates() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushLocked()
}

func (s *Session) flushLocked() error {
	doc := document{
		SchemaVersion: SchemaVersion,
		Items:         s.backlog.Items,
		Children:      s.backlog.Children,
	}
	raw, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshaling tasks.json: %w", err)
	}
	if err := atomicWrite(filepath.Join(s.Dir, TasksFile), raw); err != nil {
		return err
	}
	s.dirty = make(map[string]bool)
	s.pending = 0
	return nil
}

// AddItem inserts a brand-new backlog item (used by the Architect agent
// while populating a freshly created session) and marks it dirty.
func (s *Session) AddItem(item *backlog.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backlog.Add(item); err != nil {
		return err
	}
	s.dirty[item.ID] = true
	s.pending++
	return nil
}

// Item returns a snapshot of one backlog item by id.
func (s *Session) Item(id string) (*backlog.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backlog.Get(id)
}
