// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream decodes the chat backend's line-oriented tagged protocol
// into typed lifecycle events and folds those events into the final
// assistant message.
//
// Each complete line has the form "<tag>:<json-payload>". One turn emits,
// in order: step markers, tool-call lifecycle events correlated by
// toolCallId, incremental text deltas, and a terminal finish marker.
package stream

// Protocol tags as they appear on the wire.
const (
	tagStepStart     = "f"
	tagToolCallStart = "b"
	tagToolArgsDelta = "c"
	tagToolArgs      = "9"
	tagToolResult    = "a"
	tagTextDelta     = "0"
	tagStepFinish    = "e"
	tagFinish        = "d"
)

// Event is the closed union of decoded protocol events. Every tag maps to
// exactly one concrete type; an unhandled tag is a visible gap in the
// switch over this union, not a silent default branch.
type Event interface {
	isEvent()
}

// StepStart (tag "f") marks the beginning of a step within the turn.
type StepStart struct {
	MessageID string `json:"messageId"`
}

// ToolCallStart (tag "b") announces a new tool invocation.
type ToolCallStart struct {
	ToolCallID string `json:"toolCallId"`
	ToolName   string `json:"toolName"`
}

// ToolArgsDelta (tag "c") streams partial argument text for a tool call.
// The partial JSON is never parsed; it only drives the step indicator.
type ToolArgsDelta struct {
	ToolCallID    string `json:"toolCallId"`
	ArgsTextDelta string `json:"argsTextDelta"`
}

// ToolArgs (tag "9") delivers the complete argument object for a tool call.
type ToolArgs struct {
	ToolCallID string         `json:"toolCallId"`
	Args       map[string]any `json:"args"`
}

// ToolResult (tag "a") delivers a tool call's result.
type ToolResult struct {
	ToolCallID string `json:"toolCallId"`
	Result     any    `json:"result"`
}

// TextDelta (tag "0") is one incremental token of the final response text.
type TextDelta struct {
	Text string
}

// StepFinish (tag "e") marks a step boundary.
type StepFinish struct {
	FinishReason string `json:"finishReason"`
}

// Finish (tag "d") terminates the whole turn.
type Finish struct {
	FinishReason string `json:"finishReason"`
}

func (StepStart) isEvent()     {}
func (ToolCallStart) isEvent() {}
func (ToolArgsDelta) isEvent() {}
func (ToolArgs) isEvent()      {}
func (ToolResult) isEvent()    {}
func (TextDelta) isEvent()     {}
func (StepFinish) isEvent()    {}
func (Finish) isEvent()        {}
