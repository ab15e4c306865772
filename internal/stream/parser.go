// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
)

// =============================================================================
// LINE PARSER
// =============================================================================

// ErrUnknownTag indicates a line whose tag is not part of the protocol.
var ErrUnknownTag = errors.New("unknown stream tag")

// Parser decodes the tagged line protocol incrementally. It buffers a
// partial trailing line across Feed calls, so chunk boundaries may split
// a line anywhere without changing the decoded event sequence.
type Parser struct {
	partial bytes.Buffer
}

// NewParser creates a parser with an empty line buffer.
func NewParser() *Parser {
	return &Parser{}
}

// Feed consumes the next chunk of the response body and returns all
// events completed by it. Unparsable lines are logged and skipped; they
// never abort the stream.
func (p *Parser) Feed(chunk []byte) []Event {
	p.partial.Write(chunk)

	var events []Event
	for {
		data := p.partial.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := string(data[:idx])
		p.partial.Next(idx + 1)

		ev, err := parseLine(line)
		if err != nil {
			log.Printf("STREAM_PARSE_SKIP | error=%v", err)
			continue
		}
		if ev != nil {
			events = append(events, ev)
		}
	}
	return events
}

// Flush decodes any buffered trailing line. Call once at end of stream;
// the last line may legally arrive without a terminating newline.
func (p *Parser) Flush() []Event {
	if p.partial.Len() == 0 {
		return nil
	}
	line := p.partial.String()
	p.partial.Reset()

	ev, err := parseLine(line)
	if err != nil {
		log.Printf("STREAM_PARSE_SKIP | error=%v", err)
		return nil
	}
	if ev == nil {
		return nil
	}
	return []Event{ev}
}

// parseLine decodes one complete line. Blank lines yield (nil, nil).
func parseLine(line string) (Event, error) {
	line = strings.TrimRight(line, "\r")
	if strings.TrimSpace(line) == "" {
		return nil, nil
	}

	tag, payload, found := strings.Cut(line, ":")
	if !found {
		return nil, fmt.Errorf("malformed line %q", truncateForLog(line))
	}

	switch tag {
	case tagStepStart:
		var ev StepStart
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("bad %q payload: %w", tag, err)
		}
		return ev, nil
	case tagToolCallStart:
		var ev ToolCallStart
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("bad %q payload: %w", tag, err)
		}
		return ev, nil
	case tagToolArgsDelta:
		var ev ToolArgsDelta
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("bad %q payload: %w", tag, err)
		}
		return ev, nil
	case tagToolArgs:
		var ev ToolArgs
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("bad %q payload: %w", tag, err)
		}
		return ev, nil
	case tagToolResult:
		var ev ToolResult
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("bad %q payload: %w", tag, err)
		}
		return ev, nil
	case tagTextDelta:
		// Payload is a raw JSON string, not an object
		var text string
		if err := json.Unmarshal([]byte(payload), &text); err != nil {
			return nil, fmt.Errorf("bad %q payload: %w", tag, err)
		}
		return TextDelta{Text: text}, nil
	case tagStepFinish:
		var ev StepFinish
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("bad %q payload: %w", tag, err)
		}
		return ev, nil
	case tagFinish:
		var ev Finish
		if err := json.Unmarshal([]byte(payload), &ev); err != nil {
			return nil, fmt.Errorf("bad %q payload: %w", tag, err)
		}
		return ev, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTag, tag)
	}
}

// truncateForLog bounds log noise from very long malformed lines.
func truncateForLog(line string) string {
	if len(line) > 120 {
		return line[:120] + "..."
	}
	return line
}

// =============================================================================
// STREAM PROCESSING
// =============================================================================

// Process reads body to completion, dispatching every decoded event to fn
// in arrival order. A read failure is returned to the caller, which still
// owns whatever events were dispatched before the failure; trailing
// buffered data is flushed on both the EOF and failure paths.
func Process(ctx context.Context, body io.Reader, fn func(Event)) error {
	p := NewParser()
	buf := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		n, err := body.Read(buf)
		if n > 0 {
			for _, ev := range p.Feed(buf[:n]) {
				fn(ev)
			}
		}
		if err != nil {
			for _, ev := range p.Flush() {
				fn(ev)
			}
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("stream read failed: %w", err)
		}
	}
}
