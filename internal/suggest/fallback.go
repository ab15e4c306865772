// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package suggest

import (
	"strings"
	"unicode"

	"golang.org/x/text/language"
)

// =============================================================================
// HEURISTIC FALLBACK
// =============================================================================

// fallbackRule maps keywords in one locale to canned follow-up questions
// for one topic. Matching is plain case-insensitive substring search, so
// the table works identically for every script without a language engine.
type fallbackRule struct {
	topic       string
	locale      language.Tag
	keywords    []string
	suggestions []string
}

var fallbackTable = []fallbackRule{
	{
		topic:    "weather",
		locale:   language.English,
		keywords: []string{"weather", "rain", "temperature", "forecast", "humidity", "monsoon"},
		suggestions: []string{
			"Will it rain in my area this week?",
			"Is this a good time to spray given the weather?",
		},
	},
	{
		topic:    "weather",
		locale:   language.Hindi,
		keywords: []string{"मौसम", "बारिश", "तापमान"},
		suggestions: []string{
			"इस हफ्ते बारिश होगी क्या?",
			"मौसम के हिसाब से छिड़काव कब करें?",
		},
	},
	{
		topic:    "market",
		locale:   language.English,
		keywords: []string{"price", "rate", "market", "mandi", "sell", "msp"},
		suggestions: []string{
			"What is today's mandi price for my crop?",
			"Should I sell now or wait for better rates?",
		},
	},
	{
		topic:    "market",
		locale:   language.Hindi,
		keywords: []string{"भाव", "मंडी", "दाम", "कीमत"},
		suggestions: []string{
			"आज मंडी में भाव क्या है?",
			"अभी बेचूं या भाव बढ़ने का इंतज़ार करूं?",
		},
	},
	{
		topic:    "pest",
		locale:   language.English,
		keywords: []string{"pest", "disease", "insect", "fungus", "blight", "rust", "infestation"},
		suggestions: []string{
			"What pesticide works against this problem?",
			"How do I stop this from spreading to healthy plants?",
		},
	},
	{
		topic:    "pest",
		locale:   language.Hindi,
		keywords: []string{"कीट", "रोग", "बीमारी", "इल्ली"},
		suggestions: []string{
			"इस कीट के लिए कौन सी दवा डालें?",
			"बाकी फसल को कैसे बचाएं?",
		},
	},
	{
		topic:    "fertilizer",
		locale:   language.English,
		keywords: []string{"fertilizer", "urea", "manure", "nutrient", "compost", "dap"},
		suggestions: []string{
			"How much fertilizer should I apply per acre?",
			"When is the best time for the next dose?",
		},
	},
	{
		topic:    "fertilizer",
		locale:   language.Hindi,
		keywords: []string{"खाद", "उर्वरक", "यूरिया"},
		suggestions: []string{
			"प्रति एकड़ कितनी खाद डालनी चाहिए?",
			"अगली खुराक कब दें?",
		},
	},
	{
		topic:    "crop",
		locale:   language.English,
		keywords: []string{"crop", "sow", "harvest", "seed", "irrigat", "yield"},
		suggestions: []string{
			"How can I improve my yield this season?",
			"What should I watch for at this growth stage?",
		},
	},
	{
		topic:    "crop",
		locale:   language.Hindi,
		keywords: []string{"फसल", "बीज", "बुवाई", "सिंचाई", "कटाई"},
		suggestions: []string{
			"इस मौसम में पैदावार कैसे बढ़ाएं?",
			"अभी फसल में क्या ध्यान रखें?",
		},
	},
}

// genericSuggestions is the per-locale floor when nothing in the seed
// matches: the fallback must still yield 1-4 non-empty strings.
var genericSuggestions = map[language.Tag][]string{
	language.English: {
		"What should I do on my farm this week?",
		"How is the weather looking for farming?",
		"What are current market prices for major crops?",
	},
	language.Hindi: {
		"इस हफ्ते खेत में क्या करना चाहिए?",
		"खेती के लिए मौसम कैसा रहेगा?",
		"प्रमुख फसलों के मौजूदा भाव क्या हैं?",
	},
}

// DetectLocale infers the seed's locale from its script. Any Devanagari
// rune selects Hindi; everything else defaults to English.
func DetectLocale(seed string) language.Tag {
	for _, r := range seed {
		if unicode.Is(unicode.Devanagari, r) {
			return language.Hindi
		}
	}
	return language.English
}

// HeuristicSuggestions produces 1-4 deterministic follow-up questions from
// the given seed text, in the locale detected from the seed's script.
func HeuristicSuggestions(seed string) []string {
	return HeuristicSuggestionsLocale(seed, DetectLocale(seed))
}

// HeuristicSuggestionsLocale is HeuristicSuggestions with a caller-chosen
// locale. Rules in that locale match first, so their suggestions win the
// cap when a seed trips keywords in more than one language; rules in other
// locales still match after. The generic floor answers in the same locale.
// Output is stable for identical input.
func HeuristicSuggestionsLocale(seed string, loc language.Tag) []string {
	lowered := strings.ToLower(seed)

	var out []string
	seen := make(map[string]bool)
	add := func(s string) {
		if len(out) < maxQueries && !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}

	// Two passes over the table: the requested locale, then the rest.
	for _, matchLocale := range []bool{true, false} {
		for _, rule := range fallbackTable {
			if (rule.locale == loc) != matchLocale {
				continue
			}
			for _, kw := range rule.keywords {
				if strings.Contains(lowered, kw) {
					for _, s := range rule.suggestions {
						add(s)
					}
					break
				}
			}
		}
	}

	if len(out) == 0 {
		generic, ok := genericSuggestions[loc]
		if !ok {
			generic = genericSuggestions[language.English]
		}
		for _, s := range generic {
			add(s)
		}
	}
	return out
}
