// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package thread owns the persisted conversation collection and the
// current-thread pointer. Threads are materialized lazily: a "new chat"
// only produces an in-memory pending ID, and nothing reaches durable
// storage until the first message arrives.
package thread

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/agrichat/internal/model"
	"github.com/jeranaias/agrichat/internal/store"
	"github.com/jeranaias/agrichat/internal/util"
)

// ErrInvalidImport indicates an import payload that is not a JSON array
// of threads. The collection is left untouched.
var ErrInvalidImport = errors.New("import payload is not a thread array")

// =============================================================================
// THREAD STORE
// =============================================================================

// Store manages the thread collection. The current pointer moves through
// three states: no thread, a pending unmaterialized ID, and a materialized
// thread present in the collection. The pointer itself is deliberately not
// persisted; every session starts detached.
type Store struct {
	mu sync.Mutex
	kv *store.KV

	threads   []model.Thread // newest-first
	currentID string
	pending   bool // currentID exists only in memory, not in threads
}

// NewStore loads the persisted collection from kv. A corrupt or missing
// record starts an empty collection rather than failing the session.
func NewStore(kv *store.KV) (*Store, error) {
	s := &Store{kv: kv}

	data, found, err := kv.Get(store.KeyThreads)
	if err != nil {
		return nil, fmt.Errorf("failed to load threads: %w", err)
	}
	if found {
		if err := json.Unmarshal(data, &s.threads); err != nil {
			log.Printf("THREAD_LOAD_CORRUPT | error=%v", err)
			s.threads = nil
		}
	}
	return s, nil
}

// =============================================================================
// CURRENT POINTER
// =============================================================================

// CreatePending generates a fresh thread ID and makes it current without
// adding it to the collection.
func (s *Store) CreatePending() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := model.GenerateThreadID()
	s.currentID = id
	s.pending = true
	return id
}

// CurrentID returns the current thread ID, pending or materialized.
// The second return is false when no thread is current.
func (s *Store) CurrentID() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentID, s.currentID != ""
}

// Current returns a copy of the current thread if it is materialized.
func (s *Store) Current() (model.Thread, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.currentID == "" || s.pending {
		return model.Thread{}, false
	}
	if th := s.find(s.currentID); th != nil {
		return th.Clone(), true
	}
	return model.Thread{}, false
}

// SwitchTo makes the given thread current. Unknown IDs fail softly: the
// pointer is left unchanged and nil is returned.
func (s *Store) SwitchTo(id string) *model.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()

	th := s.find(id)
	if th == nil {
		return nil
	}
	s.currentID = id
	s.pending = false
	clone := th.Clone()
	return &clone
}

// ClearCurrent detaches the current pointer without deleting anything.
func (s *Store) ClearCurrent() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentID = ""
	s.pending = false
}

// =============================================================================
// MATERIALIZATION AND MUTATION
// =============================================================================

// UpdateMessages replaces the message list of the given thread,
// materializing it on its first non-empty update. An empty message list is
// a no-op: empty threads never reach the collection or durable storage.
func (s *Store) UpdateMessages(threadID string, messages []model.Message) {
	if len(messages) == 0 {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if th := s.find(threadID); th != nil {
		th.SetMessages(messages)
	} else {
		now := time.Now()
		th := model.Thread{ID: threadID, CreatedAt: now, UpdatedAt: now}
		th.SetMessages(messages)
		// Insert at head: newest conversations list first
		s.threads = append([]model.Thread{th}, s.threads...)
	}

	if s.currentID == threadID {
		s.pending = false
	}

	s.persistLocked()
}

// Delete removes a thread. When the deleted thread was current, the
// most-recently-updated remaining thread takes over; if none remain the
// store re-enters the pending-empty state with a brand-new ID. Returns
// the removed thread, or nil for an unknown ID.
func (s *Store) Delete(threadID string) *model.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i := range s.threads {
		if s.threads[i].ID == threadID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil
	}

	removed := s.threads[idx].Clone()
	s.threads = append(s.threads[:idx], s.threads[idx+1:]...)

	if s.currentID == threadID {
		if next := s.mostRecentLocked(); next != nil {
			s.currentID = next.ID
			s.pending = false
		} else {
			s.currentID = model.GenerateThreadID()
			s.pending = true
		}
	}

	s.persistLocked()
	return &removed
}

// =============================================================================
// LISTING AND SEARCH
// =============================================================================

// List returns copies of all threads, most recently updated first.
func (s *Store) List() []model.Thread {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]model.Thread, 0, len(s.threads))
	for i := range s.threads {
		out = append(out, s.threads[i].Clone())
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}

// Search returns threads whose title or any message content contains the
// query, case-insensitive. An empty query matches everything.
func (s *Store) Search(query string) []model.Thread {
	all := s.List()
	if query == "" {
		return all
	}

	query = strings.ToLower(query)
	var results []model.Thread
	for _, th := range all {
		if strings.Contains(strings.ToLower(th.Title), query) {
			results = append(results, th)
			continue
		}
		for _, msg := range th.Messages {
			if strings.Contains(strings.ToLower(msg.Content), query) {
				results = append(results, th)
				break
			}
		}
	}
	return results
}

// =============================================================================
// EXPORT AND IMPORT
// =============================================================================

// ExportAll serializes the full collection as a downloadable JSON
// document named with the current date.
func (s *Store) ExportAll() (string, []byte, error) {
	s.mu.Lock()
	threads := make([]model.Thread, len(s.threads))
	for i := range s.threads {
		threads[i] = s.threads[i].Clone()
	}
	s.mu.Unlock()

	data, err := json.MarshalIndent(threads, "", "  ")
	if err != nil {
		return "", nil, fmt.Errorf("failed to serialize threads: %w", err)
	}

	filename := "agrichat-threads-" + time.Now().Format("2006-01-02") + ".json"
	return filename, data, nil
}

// WriteExport writes the export document into dir and returns its path.
func (s *Store) WriteExport(dir string) (string, error) {
	filename, data, err := s.ExportAll()
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, filename)
	if err := util.AtomicWriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	return path, nil
}

// ExportMarkdown renders one thread as a Markdown transcript.
func (s *Store) ExportMarkdown(threadID string) (string, error) {
	s.mu.Lock()
	th := s.find(threadID)
	if th == nil {
		s.mu.Unlock()
		return "", fmt.Errorf("thread %q not found", threadID)
	}
	clone := th.Clone()
	s.mu.Unlock()

	var sb strings.Builder
	sb.WriteString("# " + clone.Title + "\n\n")
	sb.WriteString("Created: " + clone.CreatedAt.Format(time.RFC3339) + "\n\n")
	sb.WriteString("---\n\n")

	for _, msg := range clone.Messages {
		role := "**User**"
		if msg.Role == model.RoleAssistant {
			role = "**Assistant**"
		}
		sb.WriteString(role + " (" + msg.Timestamp.Format("15:04") + "):\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n\n---\n\n")
	}
	return sb.String(), nil
}

// ImportMerge validates data as a JSON thread array and prepends its
// contents to the collection. Malformed input returns ErrInvalidImport
// and leaves the collection unchanged. Unlike autosave, the import write
// is transactional and persist-first: a failed write leaves the in-memory
// collection and the stored record both untouched. Returns the imported
// count.
func (s *Store) ImportMerge(data []byte) (int, error) {
	var imported []model.Thread
	if err := json.Unmarshal(data, &imported); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	merged := make([]model.Thread, 0, len(imported)+len(s.threads))
	merged = append(merged, imported...)
	merged = append(merged, s.threads...)

	payload, err := json.Marshal(filterEmpty(merged))
	if err != nil {
		return 0, fmt.Errorf("failed to serialize threads: %w", err)
	}
	err = s.kv.Update(func(tx *store.Tx) error {
		return tx.Put(store.KeyThreads, payload)
	})
	if err != nil {
		return 0, fmt.Errorf("failed to persist import: %w", err)
	}

	s.threads = merged
	return len(imported), nil
}

// =============================================================================
// INTERNAL
// =============================================================================

// find returns a pointer into the collection, or nil. Caller holds mu.
func (s *Store) find(id string) *model.Thread {
	for i := range s.threads {
		if s.threads[i].ID == id {
			return &s.threads[i]
		}
	}
	return nil
}

// mostRecentLocked returns the most-recently-updated thread. Caller holds mu.
func (s *Store) mostRecentLocked() *model.Thread {
	var best *model.Thread
	for i := range s.threads {
		if best == nil || s.threads[i].UpdatedAt.After(best.UpdatedAt) {
			best = &s.threads[i]
		}
	}
	return best
}

// filterEmpty drops empty threads; only materialized content is persisted.
func filterEmpty(threads []model.Thread) []model.Thread {
	filtered := make([]model.Thread, 0, len(threads))
	for _, th := range threads {
		if !th.IsEmpty() {
			filtered = append(filtered, th)
		}
	}
	return filtered
}

// persistLocked writes the collection, filtering empty threads before every
// write. Autosave failures are logged, never surfaced: a failed write must
// not block the conversation. Caller holds mu.
func (s *Store) persistLocked() {
	data, err := json.Marshal(filterEmpty(s.threads))
	if err != nil {
		log.Printf("THREAD_PERSIST_FAILED | error=%v", err)
		return
	}
	if err := s.kv.Put(store.KeyThreads, data); err != nil {
		log.Printf("THREAD_PERSIST_FAILED | error=%v", err)
	}
}
