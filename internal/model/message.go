// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
)

// =============================================================================
// ROLES
// =============================================================================

// Role identifies the author of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// =============================================================================
// MESSAGE PARTS
// =============================================================================

// PartType discriminates the variants of a message part.
type PartType string

const (
	PartText       PartType = "text"
	PartImage      PartType = "image"
	PartToolCall   PartType = "tool-call"
	PartToolResult PartType = "tool-result"
)

// Part is one element of a message's ordered part list. Exactly the fields
// for its Type are set; everything else stays zero and is omitted from JSON.
type Part struct {
	Type PartType `json:"type"`

	// PartText
	Text string `json:"text,omitempty"`

	// PartImage
	ImageData string `json:"imageData,omitempty"` // base64, no data-URI prefix
	ImageName string `json:"imageName,omitempty"`
	ImageType string `json:"imageType,omitempty"` // MIME type

	// PartToolCall
	ToolName   string         `json:"toolName,omitempty"`
	ToolArgs   map[string]any `json:"toolArgs,omitempty"`
	ToolCallID string         `json:"toolCallId,omitempty"`

	// PartToolResult
	ToolResult any `json:"toolResult,omitempty"`
}

// NewTextPart creates a text part.
func NewTextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// NewImagePart creates an image part from a staged attachment.
func NewImagePart(att ImageAttachment) Part {
	return Part{
		Type:      PartImage,
		ImageData: att.Data,
		ImageName: att.Name,
		ImageType: att.MIMEType,
	}
}

// NewToolCallPart creates a tool-call part.
func NewToolCallPart(name string, args map[string]any, callID string) Part {
	return Part{Type: PartToolCall, ToolName: name, ToolArgs: args, ToolCallID: callID}
}

// NewToolResultPart creates a tool-result part.
func NewToolResultPart(result any, callID string) Part {
	return Part{Type: PartToolResult, ToolResult: result, ToolCallID: callID}
}

// =============================================================================
// MESSAGE
// =============================================================================

// Message is one user or assistant turn. Content always carries a flattened
// text summary of the parts so history mapping and context hashing never
// need to walk the part list.
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Parts     []Part    `json:"parts,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage creates a message with a fresh ID, deriving Content from parts.
func NewMessage(role Role, parts []Part) Message {
	return Message{
		ID:        generateMessageID(),
		Role:      role,
		Content:   FlattenParts(parts),
		Parts:     parts,
		Timestamp: time.Now(),
	}
}

// FlattenParts joins the text of all text parts, in order.
// Non-text parts contribute nothing to the flattened summary.
func FlattenParts(parts []Part) string {
	var sb strings.Builder
	for _, p := range parts {
		if p.Type == PartText {
			sb.WriteString(p.Text)
		}
	}
	return sb.String()
}

// HasText reports whether the message carries non-whitespace text content.
func (m *Message) HasText() bool {
	return strings.TrimSpace(m.Content) != ""
}

// ImageParts returns the image parts of the message, in order.
func (m *Message) ImageParts() []Part {
	var imgs []Part
	for _, p := range m.Parts {
		if p.Type == PartImage {
			imgs = append(imgs, p)
		}
	}
	return imgs
}

// generateMessageID creates a unique message ID.
func generateMessageID() string {
	bytes := make([]byte, 8)
	rand.Read(bytes)
	return "msg_" + hex.EncodeToString(bytes)
}

// =============================================================================
// USER CONTEXT
// =============================================================================

// UserContext carries lightweight profile fields attached to outbound
// chat requests so answers can be localized. All fields are optional.
type UserContext struct {
	Name     string   `json:"name,omitempty"`
	Location string   `json:"location,omitempty"`
	Crops    []string `json:"crops,omitempty"`
}

// IsZero reports whether no profile field is set.
func (u UserContext) IsZero() bool {
	return u.Name == "" && u.Location == "" && len(u.Crops) == 0
}
