// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package images

import (
	"bytes"
	"errors"
	"testing"

	"github.com/jeranaias/agrichat/internal/model"
)

func TestAddValidatesAttachments(t *testing.T) {
	tests := []struct {
		name    string
		mime    string
		size    int
		wantErr error
	}{
		{"jpeg accepted", "image/jpeg", 100, nil},
		{"png accepted", "image/png", 100, nil},
		{"pdf rejected", "application/pdf", 100, model.ErrNotAnImage},
		{"oversized rejected", "image/jpeg", model.MaxImageSize + 1, model.ErrImageTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := NewStagingArea()
			_, err := a.Add("leaf.jpg", tt.mime, bytes.Repeat([]byte{0xff}, tt.size))

			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Add = %v, want nil", err)
				}
				if a.Count() != 1 {
					t.Errorf("Count = %d, want 1", a.Count())
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Add = %v, want %v", err, tt.wantErr)
			}
			if a.Count() != 0 {
				t.Error("rejected attachment entered the staged set")
			}
		})
	}
}

func TestSnapshotSurvivesClear(t *testing.T) {
	a := NewStagingArea()
	if _, err := a.Add("leaf.jpg", "image/jpeg", []byte{1, 2, 3}); err != nil {
		t.Fatal(err)
	}

	snapshot := a.Snapshot()
	a.Clear()

	if a.Count() != 0 {
		t.Error("Clear left staged items")
	}
	if len(snapshot) != 1 || snapshot[0].Name != "leaf.jpg" {
		t.Error("snapshot lost its content after Clear")
	}
}

func TestRemove(t *testing.T) {
	a := NewStagingArea()
	att, _ := a.Add("leaf.jpg", "image/jpeg", []byte{1})
	a.Add("soil.png", "image/png", []byte{2})

	if !a.Remove(att.ID) {
		t.Fatal("Remove returned false for a staged id")
	}
	if a.Count() != 1 {
		t.Errorf("Count = %d, want 1", a.Count())
	}
	if a.Remove("missing") {
		t.Error("Remove returned true for an unknown id")
	}
}
