// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package model defines the core data types for agrichat: threads,
// messages and their typed parts, staged image attachments, and the
// ephemeral streaming state of an in-flight assistant turn.
//
// Messages are append-only once added to a thread. A thread's title is
// always derived from its first message and recomputed on every
// message-list change.
package model
