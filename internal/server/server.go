// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/jeranaias/agrichat/internal/suggest"
)

const (
	// maxRequestBody bounds the inbound request size.
	maxRequestBody = 256 * 1024

	// minQueries and maxQueries clamp every successful response. A
	// generator that yields too few is padded from the heuristic table.
	minQueries = 2
	maxQueries = 4

	// DefaultCacheTTL is how long a cached response stays valid.
	DefaultCacheTTL = 5 * time.Minute

	// DefaultRateLimit is the per-caller request budget per minute.
	DefaultRateLimit = 10

	// DefaultGlobalRPS is the whole-process load-shed budget.
	DefaultGlobalRPS = 50
)

// =============================================================================
// SERVER
// =============================================================================

// Generator produces follow-up questions for a conversation window. The
// default generator is the shared keyword heuristic; deployments with a
// model behind them swap in their own.
type Generator func(messages []suggest.WireMessage, location string) []string

// Options configures a suggestion server.
type Options struct {
	RateLimit int           // per-caller requests per minute, 0 = DefaultRateLimit
	CacheTTL  time.Duration // 0 = DefaultCacheTTL
	GlobalRPS float64       // 0 = DefaultGlobalRPS
	Generator Generator     // nil = heuristic generator
}

// Server answers suggestion requests.
type Server struct {
	generate Generator
	cache    *queryCache
	limiter  *RateLimiter
	shed     *rate.Limiter
}

// New creates a Server with the given options.
func New(opts Options) *Server {
	if opts.RateLimit <= 0 {
		opts.RateLimit = DefaultRateLimit
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.GlobalRPS <= 0 {
		opts.GlobalRPS = DefaultGlobalRPS
	}
	if opts.Generator == nil {
		opts.Generator = heuristicGenerator
	}

	return &Server{
		generate: opts.Generator,
		cache:    newQueryCache(opts.CacheTTL),
		limiter:  NewRateLimiter(opts.RateLimit, time.Minute),
		shed:     rate.NewLimiter(rate.Limit(opts.GlobalRPS), int(opts.GlobalRPS)),
	}
}

// Close stops the background cleanup goroutines of the cache and rate
// limiter. Safe to call more than once.
func (s *Server) Close() {
	s.cache.close()
	s.limiter.Close()
}

// Handler returns the fully wired HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)

	limited := Chain(
		LoadShedMiddleware(s.shed),
		RateLimitMiddleware(s.limiter),
	)
	mux.Handle("/api/suggested-queries", limited(http.HandlerFunc(s.handleSuggestedQueries)))

	return Chain(
		RecoveryMiddleware(),
		LoggingMiddleware(log.Default()),
	)(mux)
}

// =============================================================================
// HANDLERS
// =============================================================================

// suggestionRequest mirrors the client's outbound body.
type suggestionRequest struct {
	Messages        []suggest.WireMessage `json:"messages"`
	LocationContext string                `json:"locationContext,omitempty"`
}

func (s *Server) handleSuggestedQueries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorResponse("method not allowed"))
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("failed to read request"))
		return
	}

	var req suggestionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse("malformed request body"))
		return
	}
	if len(req.Messages) == 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse("messages must not be empty"))
		return
	}

	key := cacheKey(req.Messages)
	if queries, found := s.cache.get(key); found {
		writeJSON(w, http.StatusOK, suggest.WireResponse{
			Success:          true,
			SuggestedQueries: queries,
			Cached:           true,
		})
		return
	}

	queries := clampQueries(s.generate(req.Messages, req.LocationContext), req.Messages)
	s.cache.put(key, queries)

	writeJSON(w, http.StatusOK, suggest.WireResponse{
		Success:          true,
		SuggestedQueries: queries,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// GENERATION HELPERS
// =============================================================================

// heuristicGenerator seeds the shared keyword table with the newest
// message that has any content.
func heuristicGenerator(messages []suggest.WireMessage, _ string) []string {
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.TrimSpace(messages[i].Content) != "" {
			return suggest.HeuristicSuggestions(messages[i].Content)
		}
	}
	return suggest.HeuristicSuggestions("")
}

// clampQueries trims, dedupes, and forces the result into [2,4] entries,
// padding from the heuristic table when the generator came up short.
func clampQueries(queries []string, messages []suggest.WireMessage) []string {
	out := make([]string, 0, maxQueries)
	seen := make(map[string]bool)
	add := func(q string) {
		q = strings.TrimSpace(q)
		if q == "" || seen[q] || len(out) == maxQueries {
			return
		}
		seen[q] = true
		out = append(out, q)
	}

	for _, q := range queries {
		add(q)
	}
	if len(out) < minQueries {
		for _, q := range heuristicGenerator(messages, "") {
			add(q)
		}
	}
	return out
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		log.Printf("RESPONSE_WRITE_FAILED | error=%v", err)
	}
}

func errorResponse(msg string) suggest.WireResponse {
	return suggest.WireResponse{Success: false, Error: msg}
}
