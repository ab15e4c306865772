// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package server implements the suggestion backend HTTP API: a single
// POST endpoint that turns a trailing conversation window into 2-4
// follow-up questions, fronted by per-caller rate limiting, a global
// load-shed limiter, and a short-lived response cache.
package server
