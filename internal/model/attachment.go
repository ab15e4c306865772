// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// MaxImageSize is the largest accepted attachment (decoded bytes).
const MaxImageSize = 10 * 1024 * 1024 // 10MB

var (
	// ErrNotAnImage indicates the attachment's MIME type is not image/*.
	ErrNotAnImage = errors.New("attachment is not an image")

	// ErrImageTooLarge indicates the attachment exceeds MaxImageSize.
	ErrImageTooLarge = errors.New("image exceeds maximum size")
)

// ImageAttachment is a staged image waiting to be sent with the next
// user message. Data is base64 without a data-URI prefix; Size is the
// decoded byte count used for the size limit.
type ImageAttachment struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Data     string `json:"data"`
	MIMEType string `json:"type"`
	Size     int64  `json:"size"`
}

// NewImageAttachment creates an attachment with a fresh correlation ID.
func NewImageAttachment(name, mimeType, data string, size int64) ImageAttachment {
	return ImageAttachment{
		ID:       uuid.New().String(),
		Name:     name,
		Data:     data,
		MIMEType: mimeType,
		Size:     size,
	}
}

// Validate rejects attachments that are not images or exceed the size cap.
func (a *ImageAttachment) Validate() error {
	if !strings.HasPrefix(a.MIMEType, "image/") {
		return fmt.Errorf("%w: %s (%s)", ErrNotAnImage, a.Name, a.MIMEType)
	}
	if a.Size > MaxImageSize {
		return fmt.Errorf("%w: %s (%d bytes)", ErrImageTooLarge, a.Name, a.Size)
	}
	return nil
}

// DataURI returns the attachment as a data URI for provider-neutral
// history mapping.
func (a *ImageAttachment) DataURI() string {
	return "data:" + a.MIMEType + ";base64," + a.Data
}
