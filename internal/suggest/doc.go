// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package suggest derives "next question" suggestions from the running
// conversation. Generation is guarded by a context fingerprint, a call
// cooldown, and an in-flight flag; remote failures degrade to a
// deterministic multilingual keyword heuristic so the caller is never
// shown an empty state when any text exists to seed one.
package suggest
