// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"crypto/rand"
	"encoding/hex"
	"time"

	"github.com/jeranaias/agrichat/internal/util"
)

// titleMaxRunes bounds the derived thread title.
const titleMaxRunes = 50

// =============================================================================
// THREAD
// =============================================================================

// Thread is one persisted conversation: an ordered message list plus
// derived metadata. A thread with zero messages must never reach durable
// storage; it exists only as an in-memory pending ID until its first message.
type Thread struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Messages  []Message `json:"messages"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NewThread creates an empty thread with a fresh ID. The caller decides
// when (and whether) it is ever persisted.
func NewThread() Thread {
	now := time.Now()
	return Thread{
		ID:        GenerateThreadID(),
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// GenerateThreadID creates a unique thread ID.
func GenerateThreadID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "thr_" + hex.EncodeToString(bytes)
}

// IsEmpty reports whether the thread has no messages.
func (t *Thread) IsEmpty() bool {
	return len(t.Messages) == 0
}

// SetMessages replaces the message list and refreshes the derived
// title and UpdatedAt.
func (t *Thread) SetMessages(messages []Message) {
	t.Messages = messages
	t.Title = DeriveTitle(messages)
	t.UpdatedAt = time.Now()
}

// DeriveTitle computes a thread title from the first message's content:
// the content itself when at most 50 runes, otherwise the first 50 runes
// followed by "...".
func DeriveTitle(messages []Message) string {
	if len(messages) == 0 {
		return ""
	}
	return util.TruncateWithEllipsis(messages[0].Content, titleMaxRunes)
}

// Clone returns a deep copy of the thread's message slice wrapper.
// Part payloads are shared; messages are append-only so this is safe.
func (t *Thread) Clone() Thread {
	clone := *t
	clone.Messages = make([]Message, len(t.Messages))
	copy(clone.Messages, t.Messages)
	return clone
}
