// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package suggest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/agrichat/internal/config"
	"github.com/jeranaias/agrichat/internal/model"
	"github.com/jeranaias/agrichat/internal/store"
	"github.com/jeranaias/agrichat/internal/util"
)

const (
	// DefaultCooldown is the minimum interval between remote calls.
	DefaultCooldown = 8 * time.Second

	// DefaultStaleAfter is the age past which a stored result should be
	// regenerated proactively.
	DefaultStaleAfter = 10 * time.Minute

	// maxQueries caps the surfaced suggestion count.
	maxQueries = 4

	// requestWindowSize is how many trailing messages the backend sees.
	requestWindowSize = 6

	// hashWindowSize is how many trailing messages feed the context hash.
	hashWindowSize = 8

	// messageCharBudget bounds each forwarded message; truncation drops
	// the oldest content, keeping the newest.
	messageCharBudget = 500
)

// =============================================================================
// TYPES
// =============================================================================

// genState is the engine's explicit generation state.
type genState int

const (
	stateIdle genState = iota
	stateGenerating
)

// Record is the persisted suggestion slot. One global slot, not
// per-thread: switching threads can surface the previous thread's
// suggestions until regeneration (kept intentionally, see DESIGN.md).
type Record struct {
	Queries     []string  `json:"queries"`
	LastUpdated time.Time `json:"lastUpdated"`
	ContextHash string    `json:"contextHash"`
}

// Result is the outcome of one generation attempt. Fallback results carry
// the triggering error but are surfaced exactly like genuine ones.
type Result struct {
	Queries  []string
	Fallback bool
	Err      error
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine decides when to regenerate suggestions and runs the
// remote-then-heuristic degradation chain.
type Engine struct {
	mu       sync.Mutex
	state    genState
	lastCall time.Time
	lastHash string

	kv       *store.KV
	client   *Client
	cooldown time.Duration
	stale    time.Duration
	location string

	now func() time.Time // stubbed in tests
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithCooldown overrides the minimum interval between remote calls.
func WithCooldown(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.cooldown = d
		}
	}
}

// WithStaleAfter overrides the proactive regeneration horizon.
func WithStaleAfter(d time.Duration) EngineOption {
	return func(e *Engine) {
		if d > 0 {
			e.stale = d
		}
	}
}

// NewEngine creates an engine with default cooldown and staleness.
func NewEngine(kv *store.KV, client *Client, opts ...EngineOption) *Engine {
	e := &Engine{
		kv:       kv,
		client:   client,
		cooldown: DefaultCooldown,
		stale:    DefaultStaleAfter,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewEngineFromConfig builds a client and engine from the suggest section
// of the application config.
func NewEngineFromConfig(kv *store.KV, cfg config.SuggestConfig) *Engine {
	client := NewClient(cfg.BackendURL,
		WithMaxRetries(cfg.MaxRetries),
		WithRequestTimeout(time.Duration(cfg.TimeoutSecs)*time.Second),
	)
	return NewEngine(kv, client,
		WithCooldown(time.Duration(cfg.CooldownSecs)*time.Second),
		WithStaleAfter(time.Duration(cfg.StaleAfterMins)*time.Minute),
	)
}

// SetLocation attaches location context to backend calls.
func (e *Engine) SetLocation(location string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.location = location
}

// =============================================================================
// GENERATION
// =============================================================================

// MaybeGenerate runs a generation attempt behind the full guard set.
// Returns nil when a guard skipped the attempt.
func (e *Engine) MaybeGenerate(ctx context.Context, messages []model.Message) *Result {
	return e.generate(ctx, messages, false)
}

// ForceGenerate resets the cooldown and fingerprint guards and attempts a
// fresh generation. The concurrency guard still applies: two generations
// never run at once.
func (e *Engine) ForceGenerate(ctx context.Context, messages []model.Message) *Result {
	e.mu.Lock()
	e.lastCall = time.Time{}
	e.lastHash = ""
	e.mu.Unlock()
	return e.generate(ctx, messages, true)
}

// generate holds the guard clauses and the degradation chain.
func (e *Engine) generate(ctx context.Context, messages []model.Message, force bool) *Result {
	// Nothing to seed either the remote call or the heuristic
	if len(messages) == 0 {
		return nil
	}

	hash := ContextHash(messages)

	e.mu.Lock()
	if e.state == stateGenerating {
		e.mu.Unlock()
		return nil
	}
	if !force {
		if hash == e.lastHash {
			e.mu.Unlock()
			return nil
		}
		if e.now().Sub(e.lastCall) < e.cooldown {
			e.mu.Unlock()
			return nil
		}
		if !hasAssistantMessage(messages) {
			e.mu.Unlock()
			return nil
		}
	}
	// Mark in flight and update the guards optimistically so a concurrent
	// duplicate immediately sees "unchanged".
	e.state = stateGenerating
	e.lastCall = e.now()
	e.lastHash = hash
	location := e.location
	e.mu.Unlock()

	// The in-flight flag is always cleared, whatever happens below, so a
	// failure never wedges future generation.
	defer func() {
		e.mu.Lock()
		e.state = stateIdle
		e.mu.Unlock()
	}()

	res := &Result{}
	queries, err := e.client.Fetch(ctx, requestWindow(messages), location)
	if err == nil {
		queries = normalizeQueries(queries)
	}

	if err != nil || len(queries) == 0 {
		if err == nil {
			err = ErrNoUsableQueries
		}
		log.Printf("SUGGEST_FALLBACK | error=%v", err)
		res.Queries = HeuristicSuggestions(seedText(messages))
		res.Fallback = true
		res.Err = err
	} else {
		res.Queries = queries
	}

	e.persist(Record{Queries: res.Queries, LastUpdated: e.now(), ContextHash: hash})
	return res
}

// ShouldRegenerate is the pure staleness predicate: true when never
// generated, false within the cooldown, true past the staleness horizon.
func (e *Engine) ShouldRegenerate(lastUpdated time.Time) bool {
	if lastUpdated.IsZero() {
		return true
	}
	age := e.now().Sub(lastUpdated)
	if age < e.cooldown {
		return false
	}
	return age > e.stale
}

// LoadPersisted returns the stored suggestion slot, if any.
func (e *Engine) LoadPersisted() (Record, bool) {
	data, found, err := e.kv.Get(store.KeySuggestedQueries)
	if err != nil || !found {
		return Record{}, false
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		log.Printf("SUGGEST_LOAD_CORRUPT | error=%v", err)
		return Record{}, false
	}
	return rec, true
}

// =============================================================================
// HASHING AND WINDOWS
// =============================================================================

// ContextHash fingerprints the last 8 messages as "role:content" lines.
// Identical history always produces an identical hash.
func ContextHash(messages []model.Message) string {
	window := tail(messages, hashWindowSize)

	h := sha256.New()
	for i, msg := range window {
		if i > 0 {
			h.Write([]byte("\n"))
		}
		h.Write([]byte(string(msg.Role) + ":" + msg.Content))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// requestWindow maps the last 6 messages to the wire shape, truncating
// each from the front so the newest content survives the budget.
func requestWindow(messages []model.Message) []WireMessage {
	window := tail(messages, requestWindowSize)

	out := make([]WireMessage, 0, len(window))
	for _, msg := range window {
		out = append(out, WireMessage{
			Role:    string(msg.Role),
			Content: util.TruncateFront(msg.Content, messageCharBudget),
		})
	}
	return out
}

// seedText picks the text that feeds the heuristic fallback: the last
// message with any content, preferring the newest.
func seedText(messages []model.Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.TrimSpace(messages[i].Content) != "" {
			return messages[i].Content
		}
	}
	return ""
}

// =============================================================================
// INTERNAL
// =============================================================================

func hasAssistantMessage(messages []model.Message) bool {
	for _, msg := range messages {
		if msg.Role == model.RoleAssistant {
			return true
		}
	}
	return false
}

// normalizeQueries trims, drops empties, dedupes, and caps at maxQueries.
func normalizeQueries(queries []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, q := range queries {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] {
			continue
		}
		seen[q] = true
		out = append(out, q)
		if len(out) == maxQueries {
			break
		}
	}
	return out
}

// persist writes the global slot best-effort; a failed write only logs.
func (e *Engine) persist(rec Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		log.Printf("SUGGEST_PERSIST_FAILED | error=%v", err)
		return
	}
	if err := e.kv.Put(store.KeySuggestedQueries, data); err != nil {
		log.Printf("SUGGEST_PERSIST_FAILED | error=%v", err)
	}
}

// tail returns the last n elements of messages.
func tail(messages []model.Message, n int) []model.Message {
	if len(messages) > n {
		return messages[len(messages)-n:]
	}
	return messages
}
