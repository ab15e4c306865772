// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package thread

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/agrichat/internal/model"
	"github.com/jeranaias/agrichat/internal/store"
)

func newTestStore(t *testing.T) (*Store, *store.KV) {
	t.Helper()
	kv, err := store.Open(filepath.Join(t.TempDir(), "agrichat.db"))
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })

	s, err := NewStore(kv)
	require.NoError(t, err)
	return s, kv
}

func userMsg(text string) model.Message {
	return model.NewMessage(model.RoleUser, []model.Part{model.NewTextPart(text)})
}

func persistedThreads(t *testing.T, kv *store.KV) []model.Thread {
	t.Helper()
	data, found, err := kv.Get(store.KeyThreads)
	require.NoError(t, err)
	if !found {
		return nil
	}
	var threads []model.Thread
	require.NoError(t, json.Unmarshal(data, &threads))
	return threads
}

func TestPendingThreadNeverPersisted(t *testing.T) {
	s, kv := newTestStore(t)

	id := s.CreatePending()
	require.NotEmpty(t, id)

	// Nothing durable yet
	require.Empty(t, persistedThreads(t, kv))
	_, materialized := s.Current()
	require.False(t, materialized)

	// Empty update is a no-op
	s.UpdateMessages(id, nil)
	require.Empty(t, persistedThreads(t, kv))

	// First real message materializes exactly one record
	s.UpdateMessages(id, []model.Message{userMsg("When should I sow wheat this season?")})
	persisted := persistedThreads(t, kv)
	require.Len(t, persisted, 1)
	require.Equal(t, id, persisted[0].ID)
	require.Equal(t, "When should I sow wheat this season?", persisted[0].Title)

	current, materialized := s.Current()
	require.True(t, materialized)
	require.Equal(t, id, current.ID)
}

func TestTitleTruncation(t *testing.T) {
	s, _ := newTestStore(t)

	id := s.CreatePending()
	long := strings.Repeat("w", 80)
	s.UpdateMessages(id, []model.Message{userMsg(long)})

	current, _ := s.Current()
	require.Equal(t, strings.Repeat("w", 50)+"...", current.Title)
}

func TestSwitchToUnknownFailsSoftly(t *testing.T) {
	s, _ := newTestStore(t)

	id := s.CreatePending()
	s.UpdateMessages(id, []model.Message{userMsg("hello")})

	require.Nil(t, s.SwitchTo("thr_does_not_exist"))
	// Pointer unchanged
	cur, ok := s.CurrentID()
	require.True(t, ok)
	require.Equal(t, id, cur)

	require.NotNil(t, s.SwitchTo(id))
}

func TestDeleteResolvesMostRecent(t *testing.T) {
	s, _ := newTestStore(t)

	first := s.CreatePending()
	s.UpdateMessages(first, []model.Message{userMsg("first")})
	second := s.CreatePending()
	s.UpdateMessages(second, []model.Message{userMsg("second")})

	// second is current and most recent; delete it
	removed := s.Delete(second)
	require.NotNil(t, removed)
	require.Equal(t, second, removed.ID)

	cur, ok := s.CurrentID()
	require.True(t, ok)
	require.Equal(t, first, cur)
	_, materialized := s.Current()
	require.True(t, materialized)
}

func TestDeleteOnlyThreadReentersPendingState(t *testing.T) {
	s, kv := newTestStore(t)

	id := s.CreatePending()
	s.UpdateMessages(id, []model.Message{userMsg("only thread")})

	removed := s.Delete(id)
	require.NotNil(t, removed)
	require.Empty(t, persistedThreads(t, kv))

	// Current is a fresh pending id, not the deleted one
	cur, ok := s.CurrentID()
	require.True(t, ok)
	require.NotEqual(t, id, cur)
	_, materialized := s.Current()
	require.False(t, materialized)

	// Next update materializes under the new id
	s.UpdateMessages(cur, []model.Message{userMsg("fresh start")})
	persisted := persistedThreads(t, kv)
	require.Len(t, persisted, 1)
	require.Equal(t, cur, persisted[0].ID)
}

func TestDeleteUnknownReturnsNil(t *testing.T) {
	s, _ := newTestStore(t)
	require.Nil(t, s.Delete("thr_missing"))
}

func TestImportMergeRejectsNonArray(t *testing.T) {
	s, kv := newTestStore(t)

	id := s.CreatePending()
	s.UpdateMessages(id, []model.Message{userMsg("existing")})

	n, err := s.ImportMerge([]byte(`{"not":"an array"}`))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidImport))
	require.Zero(t, n)

	// Collection untouched
	require.Len(t, persistedThreads(t, kv), 1)
	require.Len(t, s.List(), 1)
}

func TestImportMergePrepends(t *testing.T) {
	s, _ := newTestStore(t)

	id := s.CreatePending()
	s.UpdateMessages(id, []model.Message{userMsg("existing")})

	incoming := model.NewThread()
	incoming.SetMessages([]model.Message{userMsg("imported")})
	data, err := json.Marshal([]model.Thread{incoming})
	require.NoError(t, err)

	n, err := s.ImportMerge(data)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Len(t, s.List(), 2)
}

func TestPersistenceRoundtrip(t *testing.T) {
	s, kv := newTestStore(t)

	id := s.CreatePending()
	s.UpdateMessages(id, []model.Message{userMsg("persisted across restart")})

	// New store over the same kv sees the collection, but no current pointer
	reloaded, err := NewStore(kv)
	require.NoError(t, err)
	require.Len(t, reloaded.List(), 1)
	_, ok := reloaded.CurrentID()
	require.False(t, ok)
}

func TestExportAll(t *testing.T) {
	s, _ := newTestStore(t)

	id := s.CreatePending()
	s.UpdateMessages(id, []model.Message{userMsg("export me")})

	filename, data, err := s.ExportAll()
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(filename, "agrichat-threads-"))
	require.True(t, strings.HasSuffix(filename, ".json"))

	var exported []model.Thread
	require.NoError(t, json.Unmarshal(data, &exported))
	require.Len(t, exported, 1)
}

func TestWriteExport(t *testing.T) {
	s, _ := newTestStore(t)

	id := s.CreatePending()
	s.UpdateMessages(id, []model.Message{userMsg("to disk")})

	dir := t.TempDir()
	path, err := s.WriteExport(dir)
	require.NoError(t, err)
	require.Equal(t, dir, filepath.Dir(path))
}

func TestSearch(t *testing.T) {
	s, _ := newTestStore(t)

	a := s.CreatePending()
	s.UpdateMessages(a, []model.Message{userMsg("wheat price in Pune")})
	b := s.CreatePending()
	s.UpdateMessages(b, []model.Message{userMsg("tomato blight treatment")})

	require.Len(t, s.Search("wheat"), 1)
	require.Len(t, s.Search("TOMATO"), 1)
	require.Len(t, s.Search(""), 2)
	require.Empty(t, s.Search("sugarcane"))
}

func TestExportMarkdown(t *testing.T) {
	s, _ := newTestStore(t)

	id := s.CreatePending()
	s.UpdateMessages(id, []model.Message{
		userMsg("how much urea per acre?"),
		model.NewMessage(model.RoleAssistant, []model.Part{model.NewTextPart("Typically 50kg per acre for wheat.")}),
	})

	md, err := s.ExportMarkdown(id)
	require.NoError(t, err)
	require.Contains(t, md, "**User**")
	require.Contains(t, md, "**Assistant**")
	require.Contains(t, md, "urea per acre")

	_, err = s.ExportMarkdown("thr_missing")
	require.Error(t, err)
}

func TestImportMergeFailedWriteLeavesCollectionUntouched(t *testing.T) {
	s, kv := newTestStore(t)

	id := s.CreatePending()
	s.UpdateMessages(id, []model.Message{userMsg("keep me")})
	require.Len(t, s.List(), 1)

	incoming, err := json.Marshal([]model.Thread{
		{ID: "thr_imported", Title: "imported", Messages: []model.Message{userMsg("incoming")}},
	})
	require.NoError(t, err)

	// A dead store makes the transactional write fail before any
	// in-memory mutation.
	require.NoError(t, kv.Close())

	count, err := s.ImportMerge(incoming)
	require.Error(t, err)
	require.ErrorIs(t, err, store.ErrClosed)
	require.Zero(t, count)
	require.Len(t, s.List(), 1)
	require.Equal(t, "keep me", s.List()[0].Title)
}
