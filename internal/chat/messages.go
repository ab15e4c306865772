// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat drives one conversation turn end to end: it owns the
// active message list and its status machine, maps history into the chat
// backend's request shape, streams the tagged response through the
// decoder, and finalizes the assistant message.
package chat

import (
	"errors"
	"sync"

	"github.com/jeranaias/agrichat/internal/model"
)

// =============================================================================
// STATUS
// =============================================================================

// Status is the lifecycle of the active thread's in-flight turn.
type Status string

const (
	StatusIdle      Status = "idle"
	StatusSubmitted Status = "submitted"
	StatusStreaming Status = "streaming"
	StatusError     Status = "error"
)

// ErrTurnInFlight indicates a send was attempted while a turn was already
// outstanding. At most one turn per thread may be in flight; concurrent
// sends are rejected, never queued.
var ErrTurnInFlight = errors.New("a turn is already in flight")

// =============================================================================
// MESSAGE STORE
// =============================================================================

// MessageStore holds the active thread's message list, the turn status,
// and the live streaming state. The explicit status flag is the only
// cross-callback guard: network callbacks may interleave with UI events
// even though there is no parallelism in the caller.
type MessageStore struct {
	mu        sync.Mutex
	messages  []model.Message
	status    Status
	streaming model.StreamingState
}

// NewMessageStore creates an empty store in the idle state.
func NewMessageStore() *MessageStore {
	return &MessageStore{status: StatusIdle}
}

// Load replaces the message list, e.g. on thread switch. Resets streaming
// state and returns to idle.
func (m *MessageStore) Load(messages []model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.messages = make([]model.Message, len(messages))
	copy(m.messages, messages)
	m.status = StatusIdle
	m.streaming.Reset()
}

// Messages returns a copy of the message list.
func (m *MessageStore) Messages() []model.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]model.Message, len(m.messages))
	copy(out, m.messages)
	return out
}

// Append adds a message to the log. Messages are never mutated afterwards.
func (m *MessageStore) Append(msg model.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, msg)
}

// Status returns the current turn status.
func (m *MessageStore) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// BeginTurn transitions idle (or error) to submitted and resets the
// streaming state. Returns ErrTurnInFlight when a turn is outstanding.
func (m *MessageStore) BeginTurn() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.status == StatusSubmitted || m.status == StatusStreaming {
		return ErrTurnInFlight
	}
	m.status = StatusSubmitted
	m.streaming.Reset()
	return nil
}

// MarkStreaming records that the first response bytes are being consumed.
func (m *MessageStore) MarkStreaming() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = StatusStreaming
}

// MarkIdle converges the turn to its normal terminal state.
func (m *MessageStore) MarkIdle() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = StatusIdle
	m.streaming.Reset()
}

// MarkError converges the turn to its failure terminal state.
func (m *MessageStore) MarkError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = StatusError
	m.streaming.Reset()
}

// SetStreamingState publishes a live snapshot for UI consumption.
func (m *MessageStore) SetStreamingState(state model.StreamingState) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.streaming = state
}

// StreamingState returns the last published live snapshot.
func (m *MessageStore) StreamingState() model.StreamingState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streaming
}
