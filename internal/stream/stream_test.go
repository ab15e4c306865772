// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/jeranaias/agrichat/internal/model"
)

// weatherTurn is the canonical single-tool turn used across tests.
const weatherTurn = `b:{"toolCallId":"1","toolName":"weatherTool"}
9:{"toolCallId":"1","args":{"location":"Mumbai"}}
a:{"toolCallId":"1","result":{"temp":30}}
0:"It is 30"
0:"°C in Mumbai."
d:{"finishReason":"stop"}
`

func foldAll(t *testing.T, events []Event) *Accumulator {
	t.Helper()
	acc := NewAccumulator()
	for _, ev := range events {
		acc.Apply(ev)
	}
	return acc
}

func TestParserDecodesWeatherTurn(t *testing.T) {
	p := NewParser()
	events := p.Feed([]byte(weatherTurn))

	if len(events) != 6 {
		t.Fatalf("decoded %d events, want 6", len(events))
	}

	start, ok := events[0].(ToolCallStart)
	if !ok || start.ToolCallID != "1" || start.ToolName != "weatherTool" {
		t.Errorf("event[0] = %#v, want ToolCallStart weatherTool", events[0])
	}
	if _, ok := events[5].(Finish); !ok {
		t.Errorf("event[5] = %#v, want Finish", events[5])
	}
}

func TestParserChunkSplitIdempotence(t *testing.T) {
	// Reference decoding: whole body in one feed
	ref := NewParser()
	refEvents := append(ref.Feed([]byte(weatherTurn)), ref.Flush()...)
	refState := foldAll(t, refEvents).State()

	// Split the same bytes at every possible boundary
	data := []byte(weatherTurn)
	for cut := 0; cut <= len(data); cut++ {
		p := NewParser()
		events := p.Feed(data[:cut])
		events = append(events, p.Feed(data[cut:])...)
		events = append(events, p.Flush()...)

		state := foldAll(t, events).State()
		if !reflect.DeepEqual(state, refState) {
			t.Fatalf("split at byte %d diverged:\n got  %#v\n want %#v", cut, state, refState)
		}
	}
}

func TestParserSkipsMalformedLines(t *testing.T) {
	body := "garbage without a known shape\n" +
		"b:{not valid json}\n" +
		"z:{\"what\":\"ever\"}\n" +
		"0:\"still here\"\n"

	p := NewParser()
	events := append(p.Feed([]byte(body)), p.Flush()...)

	if len(events) != 1 {
		t.Fatalf("decoded %d events, want only the valid text delta", len(events))
	}
	if td, ok := events[0].(TextDelta); !ok || td.Text != "still here" {
		t.Errorf("event = %#v, want TextDelta(still here)", events[0])
	}
}

func TestParserToleratesBlankLinesAndCR(t *testing.T) {
	body := "\r\n\n0:\"a\"\r\n\n0:\"b\"\n"

	p := NewParser()
	events := p.Feed([]byte(body))

	if len(events) != 2 {
		t.Fatalf("decoded %d events, want 2", len(events))
	}
}

func TestParserFlushHandlesUnterminatedFinalLine(t *testing.T) {
	p := NewParser()
	events := p.Feed([]byte("0:\"partial"))
	if len(events) != 0 {
		t.Fatalf("incomplete line must not decode, got %d events", len(events))
	}

	// Completing it in a later chunk works
	events = p.Feed([]byte(" token\"\n"))
	if len(events) != 1 || events[0].(TextDelta).Text != "partial token" {
		t.Fatalf("got %#v, want one TextDelta", events)
	}

	// A final line with no newline is decoded by Flush
	p.Feed([]byte(`d:{"finishReason":"stop"}`))
	flushed := p.Flush()
	if len(flushed) != 1 {
		t.Fatalf("Flush decoded %d events, want 1", len(flushed))
	}
	if _, ok := flushed[0].(Finish); !ok {
		t.Errorf("flushed = %#v, want Finish", flushed[0])
	}
}

func TestAccumulatorUnknownToolCallIDIgnored(t *testing.T) {
	acc := NewAccumulator()
	acc.Apply(ToolCallStart{ToolCallID: "1", ToolName: "weatherTool"})
	acc.Apply(ToolArgs{ToolCallID: "999", Args: map[string]any{"x": "y"}})
	acc.Apply(ToolResult{ToolCallID: "999", Result: "nope"})

	state := acc.State()
	if len(state.ToolCalls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(state.ToolCalls))
	}
	tc := state.ToolCalls[0]
	if tc.Status != model.ToolCallPending || len(tc.Args) != 0 || tc.Result != nil {
		t.Errorf("unknown-id events mutated the existing call: %#v", tc)
	}
}

func TestAccumulatorTextDeltasConcatenateInOrder(t *testing.T) {
	acc := NewAccumulator()
	for _, tok := range []string{"It ", "is ", "30°C ", "in ", "Mumbai."} {
		acc.Apply(TextDelta{Text: tok})
	}

	if got := acc.State().FinalResponse; got != "It is 30°C in Mumbai." {
		t.Errorf("FinalResponse = %q", got)
	}
}

func TestFinalizeOrdersPartsCallsThenText(t *testing.T) {
	p := NewParser()
	acc := foldAll(t, append(p.Feed([]byte(weatherTurn)), p.Flush()...))

	if !acc.Finished() {
		t.Error("terminal marker not observed")
	}

	msg := acc.Finalize()
	if msg.Role != model.RoleAssistant {
		t.Errorf("role = %q", msg.Role)
	}

	wantTypes := []model.PartType{model.PartToolCall, model.PartToolResult, model.PartText}
	if len(msg.Parts) != len(wantTypes) {
		t.Fatalf("parts = %d, want %d", len(msg.Parts), len(wantTypes))
	}
	for i, want := range wantTypes {
		if msg.Parts[i].Type != want {
			t.Errorf("part[%d].Type = %q, want %q", i, msg.Parts[i].Type, want)
		}
	}

	if msg.Parts[0].ToolName != "weatherTool" {
		t.Errorf("tool name = %q", msg.Parts[0].ToolName)
	}
	if msg.Parts[2].Text != "It is 30°C in Mumbai." {
		t.Errorf("text = %q", msg.Parts[2].Text)
	}
	if msg.Content != "It is 30°C in Mumbai." {
		t.Errorf("content = %q, want flattened text", msg.Content)
	}
}

func TestFinalizeAfterAbortKeepsPartialContent(t *testing.T) {
	acc := NewAccumulator()
	acc.Apply(ToolCallStart{ToolCallID: "1", ToolName: "priceTool"})
	acc.Apply(TextDelta{Text: "Wheat is trading at"})
	// No ToolResult, no Finish: the stream died mid-turn

	if !acc.HasContent() {
		t.Fatal("partial turn should report content")
	}

	msg := acc.Finalize()
	// Pending call contributes its tool-call part but no result part
	wantTypes := []model.PartType{model.PartToolCall, model.PartText}
	if len(msg.Parts) != len(wantTypes) {
		t.Fatalf("parts = %d, want %d", len(msg.Parts), len(wantTypes))
	}
	if msg.Content != "Wheat is trading at" {
		t.Errorf("content = %q", msg.Content)
	}
}

// failingReader yields its payload then a non-EOF error.
type failingReader struct {
	payload string
	done    bool
}

func (r *failingReader) Read(p []byte) (int, error) {
	if !r.done {
		r.done = true
		return copy(p, r.payload), nil
	}
	return 0, errors.New("connection reset")
}

func TestProcessDispatchesBeforeReadFailure(t *testing.T) {
	var events []Event
	err := Process(context.Background(), &failingReader{payload: "0:\"partial answer\"\n"}, func(ev Event) {
		events = append(events, ev)
	})

	if err == nil {
		t.Fatal("expected read error")
	}
	if len(events) != 1 {
		t.Fatalf("dispatched %d events before failure, want 1", len(events))
	}
}

func TestProcessReadsToEOF(t *testing.T) {
	var events []Event
	err := Process(context.Background(), strings.NewReader(weatherTurn), func(ev Event) {
		events = append(events, ev)
	})
	if err != nil {
		t.Fatalf("Process = %v", err)
	}
	if len(events) != 6 {
		t.Errorf("dispatched %d events, want 6", len(events))
	}
}
