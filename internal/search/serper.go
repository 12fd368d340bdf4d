package search

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/wcallahan/searchai/internal/log"
	"github.com/wcallahan/searchai/internal/retry"
)

// ErrNoAPIKey indicates the search provider was never configured. Callers
// treat this as a degraded-but-valid state, not a failure.
var ErrNoAPIKey = errors.New("search: no API key configured")

// ClientConfig configures the search provider client.
type ClientConfig struct {
	APIKey     string
	BaseURL    string
	MaxResults int
	Timeout    time.Duration
	Logger     log.Logger
}

func (c *ClientConfig) validate() error {
	if c.BaseURL == "" {
		return errors.New("search: base URL is required")
	}
	if c.MaxResults <= 0 {
		c.MaxResults = 10
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	return nil
}

// Client queries the Serper web search API.
type Client struct {
	cfg        ClientConfig
	httpClient *http.Client
	retryCfg   retry.Config
	logger     log.Logger
}

// NewClient creates a search client. A client without an API key is valid;
// its Search returns an empty degraded response.
func NewClient(cfg ClientConfig) (*Client, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		retryCfg:   retry.DefaultConfig(),
		logger:     cfg.Logger,
	}, nil
}

type serperRequest struct {
	Query string `json:"q"`
	Num   int    `json:"num"`
}

type serperResponse struct {
	Organic []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"organic"`
}

// Search runs a web search for query, returning up to maxResults results.
// A non-positive maxResults falls back to the configured default. Without an
// API key the returned response is empty with SearchMethod set to MethodNone
// and no error, so an unconfigured deployment degrades instead of failing.
func (c *Client) Search(ctx context.Context, query string, maxResults int) (*Response, error) {
	if c.cfg.APIKey == "" {
		c.logger.Debug("search skipped, no API key configured")
		return &Response{Results: []Result{}, SearchMethod: MethodNone}, nil
	}
	if maxResults <= 0 || maxResults > c.cfg.MaxResults {
		maxResults = c.cfg.MaxResults
	}

	results, err := retry.Do(ctx, c.retryCfg, c.logger, "serper search",
		func(ctx context.Context) ([]Result, error) {
			return c.search(ctx, query, maxResults)
		})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	return &Response{
		Results:        results,
		HasRealResults: len(results) > 0,
		SearchMethod:   MethodSerper,
	}, nil
}

func (c *Client) search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	body, err := json.Marshal(serperRequest{Query: query, Num: maxResults})
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("X-API-KEY", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("serper returned %d: %s", resp.StatusCode, msg)
	}

	var parsed serperResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	results := make([]Result, 0, len(parsed.Organic))
	for i, item := range parsed.Organic {
		if i >= maxResults {
			break
		}
		results = append(results, Result{
			Title:          item.Title,
			URL:            item.Link,
			Snippet:        item.Snippet,
			RelevanceScore: rankScore(i),
		})
	}
	return results, nil
}

// rankScore derives a relevance score from a result's position: the first
// result scores 1.0 and each following position loses 0.1, floored at 0.1.
func rankScore(rank int) float64 {
	score := 1.0 - 0.1*float64(rank)
	if score < 0.1 {
		score = 0.1
	}
	return score
}
