package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/wcallahan/searchai/internal/config"
	"github.com/wcallahan/searchai/internal/enhance"
	"github.com/wcallahan/searchai/internal/log"
	"github.com/wcallahan/searchai/internal/search"
)

// searchOutput is the one-shot search result printed to stdout.
type searchOutput struct {
	Query         string          `json:"query"`
	EnhancedQuery string          `json:"enhancedQuery"`
	MatchedRules  []string        `json:"matchedRules"`
	Results       []search.Result `json:"results"`
	SearchMethod  string          `json:"searchMethod"`
}

func runSearch(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: searchai search <query>")
		return 2
	}
	query := strings.Join(args, " ")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load configuration:", err)
		return 1
	}
	logger := log.New(log.Config{Level: slog.LevelWarn})

	engine, err := enhance.NewEngine(enhance.EngineConfig{Logger: logger})
	if err != nil {
		fmt.Fprintln(os.Stderr, "rule engine:", err)
		return 1
	}
	client, err := search.NewClient(search.ClientConfig{
		APIKey:     cfg.Search.APIKey,
		BaseURL:    cfg.Search.BaseURL,
		MaxResults: cfg.Search.MaxResults,
		Timeout:    time.Duration(cfg.Search.TimeoutMs) * time.Millisecond,
		Logger:     logger,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "search client:", err)
		return 1
	}

	ctx := context.Background()
	enhanced := engine.Apply(query, enhance.AllOptions())

	resp, err := client.Search(ctx, enhanced.Query, cfg.Search.MaxResults)
	if err != nil {
		logger.Warn("search provider failed", "error", err)
		resp = &search.Response{SearchMethod: search.MethodNone}
	}
	merged := search.Merge(enhanced.InjectedResults, resp.Results, enhanced.PriorityURLs)

	out := searchOutput{
		Query:         query,
		EnhancedQuery: enhanced.Query,
		MatchedRules:  enhanced.MatchedRules,
		Results:       merged,
		SearchMethod:  resp.SearchMethod,
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, "encode results:", err)
		return 1
	}
	return 0
}
