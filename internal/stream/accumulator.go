// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"strings"

	"github.com/jeranaias/agrichat/internal/model"
)

// =============================================================================
// EVENT ACCUMULATOR
// =============================================================================

// Accumulator folds decoded events into the live StreamingState and, at the
// end of the turn, materializes the final assistant message. The graceful
// and aborted-with-partial-data paths share this single fold: whatever was
// applied before the stream ended is what Finalize assembles.
type Accumulator struct {
	state model.StreamingState
	// PERFORMANCE: strings.Builder avoids quadratic allocations
	finalResponse strings.Builder
	finished      bool
}

// NewAccumulator creates an empty accumulator for one turn.
func NewAccumulator() *Accumulator {
	return &Accumulator{}
}

// Apply folds one event into the state. Events referencing an unknown
// toolCallId are ignored.
func (a *Accumulator) Apply(ev Event) {
	switch e := ev.(type) {
	case StepStart:
		a.state.CurrentStep = "thinking"
	case ToolCallStart:
		a.state.CurrentStep = "calling " + e.ToolName
		a.state.ToolCalls = append(a.state.ToolCalls, model.ToolCall{
			ID:     e.ToolCallID,
			Name:   e.ToolName,
			Args:   map[string]any{},
			Status: model.ToolCallPending,
		})
	case ToolArgsDelta:
		// Partial argument JSON is never parsed, it only drives the indicator
		a.state.CurrentStep = "preparing request"
	case ToolArgs:
		if tc := a.state.FindToolCall(e.ToolCallID); tc != nil {
			tc.Args = e.Args
		}
	case ToolResult:
		if tc := a.state.FindToolCall(e.ToolCallID); tc != nil {
			tc.Result = e.Result
			tc.Status = model.ToolCallCompleted
		}
	case TextDelta:
		a.state.CurrentStep = "answering"
		a.finalResponse.WriteString(e.Text)
	case StepFinish:
		// Step boundary marker only
	case Finish:
		a.finished = true
	}
	a.state.FinalResponse = a.finalResponse.String()
}

// State returns a snapshot of the live streaming state for UI consumption.
func (a *Accumulator) State() model.StreamingState {
	snapshot := a.state
	snapshot.ToolCalls = make([]model.ToolCall, len(a.state.ToolCalls))
	copy(snapshot.ToolCalls, a.state.ToolCalls)
	return snapshot
}

// Finished reports whether the terminal marker arrived.
func (a *Accumulator) Finished() bool {
	return a.finished
}

// HasContent reports whether anything worth flushing was accumulated.
func (a *Accumulator) HasContent() bool {
	return a.finalResponse.Len() > 0 || len(a.state.ToolCalls) > 0
}

// Finalize assembles the assistant message from everything accumulated so
// far: each tool call contributes a tool-call part plus, once completed, a
// tool-result part, in call order; the response text follows as one text
// part.
func (a *Accumulator) Finalize() model.Message {
	var parts []model.Part
	for _, tc := range a.state.ToolCalls {
		parts = append(parts, model.NewToolCallPart(tc.Name, tc.Args, tc.ID))
		if tc.Status == model.ToolCallCompleted {
			parts = append(parts, model.NewToolResultPart(tc.Result, tc.ID))
		}
	}
	if a.finalResponse.Len() > 0 {
		parts = append(parts, model.NewTextPart(a.finalResponse.String()))
	}
	return model.NewMessage(model.RoleAssistant, parts)
}
