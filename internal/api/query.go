// Package api is the thin, out-of-scope query façade spec §6 describes:
// a thin HTTP layer over the core, kept minimal since exact transport is
// not part of the system's hard core.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/hivemind/internal/agent"
	ctxbuild "github.com/kalambet/hivemind/internal/context"
	"github.com/kalambet/hivemind/internal/herrors"
	"github.com/kalambet/hivemind/internal/retrieval"
)

const maxRequestBodySize = 1 << 20 // 1MB

// AppDeps wires the façade to the core services it fronts.
type AppDeps struct {
	Retriever      *retrieval.Retriever
	ContextBuilder *ctxbuild.Builder
	Loop           *agent.Loop
	Token          string
	SystemPrompt   string
	AgentOptions   agent.Options

	// Ready is polled by /health/ready; nil means always ready.
	Ready func(ctx context.Context) error
}

// NewHandler builds the router of spec §6's Query API. Health endpoints
// are unauthenticated so orchestrators can probe them without a token.
func NewHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)
	r.Get("/health/live", handleHealth)
	r.Get("/health/ready", handleReady(deps))

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))
		r.Post("/agent/query", handleAgentQuery(deps))
		r.Post("/memory/search", handleMemorySearch(deps))
		r.Get("/memory/stats", handleMemoryStats(deps))
		r.Get("/memory/recent", handleMemoryRecent(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func handleReady(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Ready != nil {
			if err := deps.Ready(r.Context()); err != nil {
				httpError(w, http.StatusServiceUnavailable, "api_error", "not ready: %v", err)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ready"}`))
	}
}

type agentQueryRequest struct {
	Query                string `json:"query"`
	UserID               string `json:"userId"`
	IncludeMemoryContext *bool  `json:"includeMemoryContext"`
}

type agentQueryResponse struct {
	Response   string     `json:"response"`
	DurationMs int64      `json:"durationMs"`
	Steps      []stepView `json:"steps"`
	ToolsUsed  []string   `json:"toolsUsed,omitempty"`
}

type stepView struct {
	Kind   string `json:"kind"`
	Text   string `json:"text,omitempty"`
	Tool   string `json:"tool,omitempty"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

func handleAgentQuery(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req agentQueryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}
		includeMemory := true
		if req.IncludeMemoryContext != nil {
			includeMemory = *req.IncludeMemoryContext
		}

		start := time.Now()

		systemPrompt := deps.SystemPrompt

		if includeMemory {
			built, err := deps.ContextBuilder.Build(r.Context(), req.Query, nil, ctxbuild.Options{SystemPrompt: deps.SystemPrompt})
			if err != nil {
				mapErrorToHTTP(w, err, "building context")
				return
			}
			systemPrompt = built.SystemPrompt
			if built.KnowledgeContext != "" {
				systemPrompt = systemPrompt + "\n\n" + built.KnowledgeContext
			}
		}

		answer, steps, err := deps.Loop.Run(r.Context(), systemPrompt, req.Query, nil, deps.AgentOptions)
		if err != nil {
			mapErrorToHTTP(w, err, "running agent")
			return
		}

		resp := agentQueryResponse{
			Response:   answer,
			DurationMs: time.Since(start).Milliseconds(),
			Steps:      make([]stepView, 0, len(steps)),
		}
		seenTools := map[string]bool{}
		for _, s := range steps {
			view := stepView{Kind: string(s.Kind), Text: s.Text}
			if s.ToolCall != nil {
				view.Tool = s.ToolCall.Name
				if !seenTools[s.ToolCall.Name] {
					seenTools[s.ToolCall.Name] = true
					resp.ToolsUsed = append(resp.ToolsUsed, s.ToolCall.Name)
				}
			}
			if s.ToolResult != nil {
				view.Result = s.ToolResult.Result
				view.Error = s.ToolResult.Error
			}
			resp.Steps = append(resp.Steps, view)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

type memorySearchRequest struct {
	Query         string   `json:"query"`
	Limit         int      `json:"limit"`
	MinSimilarity float64  `json:"minSimilarity"`
	SourceTypes   []string `json:"sourceTypes"`
}

type memorySearchResult struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	Similarity float64        `json:"similarity"`
	SourceType string         `json:"sourceType"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"createdAt"`
}

type memorySearchResponse struct {
	Results    []memorySearchResult `json:"results"`
	Total      int                  `json:"total"`
	DurationMs int64                `json:"durationMs"`
}

func handleMemorySearch(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req memorySearchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
			return
		}

		start := time.Now()
		result, err := deps.Retriever.Search(r.Context(), req.Query, retrieval.Options{
			TopK:          req.Limit,
			MinSimilarity: req.MinSimilarity,
			SourceTypes:   req.SourceTypes,
		})
		if err != nil {
			mapErrorToHTTP(w, err, "searching memory")
			return
		}

		resp := memorySearchResponse{
			Results:    make([]memorySearchResult, 0, len(result.Chunks)),
			Total:      result.TotalResults,
			DurationMs: time.Since(start).Milliseconds(),
		}
		for _, c := range result.Chunks {
			resp.Results = append(resp.Results, memorySearchResult{
				ID:         c.Chunk.ID,
				Content:    c.Chunk.Content,
				Similarity: c.Similarity,
				SourceType: c.Chunk.SourceType,
				Metadata:   c.Chunk.Metadata,
				CreatedAt:  c.Chunk.CreatedAt,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func handleMemoryStats(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Retriever.Stats()
		if err != nil {
			mapErrorToHTTP(w, err, "reading memory stats")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"total":    stats.Total,
			"byTier":   stats.ByTier,
			"bySource": stats.BySource,
		})
	}
}

type memoryRecentEntry struct {
	ID         string         `json:"id"`
	Content    string         `json:"content"`
	SourceType string         `json:"sourceType"`
	Metadata   map[string]any `json:"metadata"`
	CreatedAt  time.Time      `json:"createdAt"`
}

func handleMemoryRecent(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sourceType := r.URL.Query().Get("sourceType")
		limit := parseIntParam(r, "limit", 20, 100)

		chunks, err := deps.Retriever.GetRecent(sourceType, limit)
		if err != nil {
			mapErrorToHTTP(w, err, "listing recent memory")
			return
		}

		out := make([]memoryRecentEntry, 0, len(chunks))
		for _, c := range chunks {
			out = append(out, memoryRecentEntry{
				ID:         c.ID,
				Content:    c.Content,
				SourceType: c.SourceType,
				Metadata:   c.Metadata,
				CreatedAt:  c.CreatedAt,
			})
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

// mapErrorToHTTP applies spec §7's kind -> HTTP category mapping.
func mapErrorToHTTP(w http.ResponseWriter, err error, action string) {
	switch {
	case herrors.OfKind(err, herrors.KindValidation):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%s: %v", action, err)
	case herrors.OfKind(err, herrors.KindNotFound):
		httpError(w, http.StatusNotFound, "not_found", "%s: %v", action, err)
	case herrors.OfKind(err, herrors.KindRateLimited):
		httpError(w, http.StatusTooManyRequests, "rate_limited", "%s: %v", action, err)
	case herrors.OfKind(err, herrors.KindUpstream), herrors.OfKind(err, herrors.KindTimeout), herrors.OfKind(err, herrors.KindTransient):
		httpError(w, http.StatusServiceUnavailable, "api_error", "%s: %v", action, err)
	case herrors.OfKind(err, herrors.KindUnauthenticated):
		httpError(w, http.StatusUnauthorized, "authentication_error", "%s: %v", action, err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%s: %v", action, err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}
