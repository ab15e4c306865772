// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package util

// TruncateWithEllipsis returns s unchanged when it is at most maxRunes runes,
// otherwise the first maxRunes runes followed by "...".
// Rune-based so multi-byte scripts (Hindi, Marathi) are never split mid-character.
func TruncateWithEllipsis(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return string(runes[:maxRunes]) + "..."
}

// TruncateFront keeps the last maxRunes runes of s, prefixing "..." when
// content was dropped. Used where the newest content matters most.
func TruncateFront(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= maxRunes {
		return s
	}
	return "..." + string(runes[len(runes)-maxRunes:])
}
