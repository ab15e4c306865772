// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package images holds the staging area for image attachments waiting to
// be sent with the next user message. Staged images are single-use per
// turn: the send path snapshots them by value and clears the area, so a
// later clear can never lose images from an in-flight request.
package images

import (
	"encoding/base64"
	"sync"

	"github.com/jeranaias/agrichat/internal/model"
)

// StagingArea collects validated attachments for the next outgoing message.
type StagingArea struct {
	mu    sync.Mutex
	items []model.ImageAttachment
}

// NewStagingArea creates an empty staging area.
func NewStagingArea() *StagingArea {
	return &StagingArea{}
}

// Add validates and stages a raw image. Rejected attachments are reported
// to the caller and never enter the staged set.
func (a *StagingArea) Add(name, mimeType string, data []byte) (model.ImageAttachment, error) {
	att := model.NewImageAttachment(
		name,
		mimeType,
		base64.StdEncoding.EncodeToString(data),
		int64(len(data)),
	)
	if err := att.Validate(); err != nil {
		return model.ImageAttachment{}, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = append(a.items, att)
	return att, nil
}

// Snapshot returns a copy of the staged attachments. Mutating the returned
// slice or clearing the area afterwards does not affect the copy.
func (a *StagingArea) Snapshot() []model.ImageAttachment {
	a.mu.Lock()
	defer a.mu.Unlock()

	snapshot := make([]model.ImageAttachment, len(a.items))
	copy(snapshot, a.items)
	return snapshot
}

// Remove drops one staged attachment by ID.
func (a *StagingArea) Remove(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	for i := range a.items {
		if a.items[i].ID == id {
			a.items = append(a.items[:i], a.items[i+1:]...)
			return true
		}
	}
	return false
}

// Clear empties the staging area. Called after every send attempt and on
// thread switch or reset.
func (a *StagingArea) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items = nil
}

// Count returns the number of staged attachments.
func (a *StagingArea) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.items)
}
