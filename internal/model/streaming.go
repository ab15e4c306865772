// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// =============================================================================
// STREAMING STATE
// =============================================================================

// ToolCallStatus tracks the lifecycle of one tool invocation within a turn.
type ToolCallStatus string

const (
	ToolCallPending   ToolCallStatus = "pending"
	ToolCallCompleted ToolCallStatus = "completed"
	ToolCallError     ToolCallStatus = "error"
)

// ToolCall records the backend agent invoking an external capability
// (weather lookup, market prices) and, once available, its result.
type ToolCall struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Args   map[string]any `json:"args"`
	Result any            `json:"result,omitempty"`
	Status ToolCallStatus `json:"status"`
}

// StreamingState is the ephemeral live-progress view of one in-flight
// assistant turn. It is reset at the start of every turn and folded into
// a final Message when the stream ends.
type StreamingState struct {
	CurrentStep   string     `json:"currentStep"`
	ToolCalls     []ToolCall `json:"toolCalls"`
	Reasoning     []string   `json:"reasoning,omitempty"`
	FinalResponse string     `json:"finalResponse"`
}

// FindToolCall returns a pointer into ToolCalls for the given ID, or nil.
// Correlation is strictly by ID; callers ignore unknown IDs.
func (s *StreamingState) FindToolCall(id string) *ToolCall {
	for i := range s.ToolCalls {
		if s.ToolCalls[i].ID == id {
			return &s.ToolCalls[i]
		}
	}
	return nil
}

// Reset clears the state for a new turn.
func (s *StreamingState) Reset() {
	*s = StreamingState{}
}
