package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/wcallahan/searchai/internal/enhance"
	"github.com/wcallahan/searchai/internal/observability"
	"github.com/wcallahan/searchai/internal/search"
)

// handleSearch runs an enhanced search without generation: the query goes
// through the rule engine, the provider results are merged with any injected
// results, and the combined list comes back as JSON.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	if query == "" {
		writeError(w, s.logger, http.StatusBadRequest, "query parameter q is required")
		return
	}
	maxResults := 0
	if raw := r.URL.Query().Get("n"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 50 {
			writeError(w, s.logger, http.StatusBadRequest, "n must be an integer between 1 and 50")
			return
		}
		maxResults = n
	}

	ctx, span := observability.StartSpan(r.Context(), "search")
	defer span.End()

	enh := s.cfg.Engine.Apply(query, enhance.AllOptions())

	resp, err := s.cfg.Search.Search(ctx, enh.Query, maxResults)
	if err != nil {
		// The pipeline degrades to injected results alone rather than
		// failing the request.
		s.logger.Error("search provider failed",
			"query", truncateForLog(enh.Query), "error", err)
		resp = &search.Response{Results: []search.Result{}, SearchMethod: search.MethodNone}
	}

	merged := search.Merge(enh.InjectedResults, resp.Results, enh.PriorityURLs)

	writeJSON(w, s.logger, http.StatusOK, map[string]any{
		"query":          query,
		"enhancedQuery":  enh.Query,
		"matchedRules":   enh.MatchedRules,
		"results":        merged,
		"hasRealResults": resp.HasRealResults,
		"searchMethod":   resp.SearchMethod,
	})
}

func truncateForLog(s string) string {
	const max = 120
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
