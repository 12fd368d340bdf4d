package generate

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/wcallahan/searchai/internal/log"
)

// StatusError is a non-2xx reply from a generation provider. It carries the
// status and a truncated body so the fallback path can log cause.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider returned %d: %s", e.Status, e.Body)
}

// OpenRouterConfig configures the primary streaming provider.
type OpenRouterConfig struct {
	APIKey  string
	BaseURL string
	Model   string

	// Timeout bounds the whole request wall-clock, independent of the
	// per-chunk inactivity timeout applied downstream.
	Timeout time.Duration

	// RequestsPerSecond throttles outbound calls. Zero means 2 rps.
	RequestsPerSecond float64

	Logger log.Logger
}

func (c *OpenRouterConfig) validate() error {
	if c.APIKey == "" {
		return errors.New("generate: OpenRouter API key is required")
	}
	if c.BaseURL == "" {
		c.BaseURL = "https://openrouter.ai/api/v1"
	}
	if c.Model == "" {
		return errors.New("generate: OpenRouter model is required")
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 2
	}
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	return nil
}

// OpenRouter streams chat completions from an OpenRouter-compatible API.
type OpenRouter struct {
	cfg        OpenRouterConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     log.Logger
}

// NewOpenRouter creates the primary streaming provider.
func NewOpenRouter(cfg OpenRouterConfig) (*OpenRouter, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &OpenRouter{
		cfg: cfg,
		// No client-level timeout: the stream outlives any single-response
		// budget. The per-request context carries the wall-clock bound.
		httpClient: &http.Client{},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1),
		logger:     cfg.Logger,
	}, nil
}

// Model returns the configured model identifier.
func (p *OpenRouter) Model() string { return p.cfg.Model }

type chatCompletionRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

type chatCompletionDelta struct {
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			Reasoning string `json:"reasoning"`
		} `json:"delta"`
	} `json:"choices"`
}

// Stream issues a streaming chat completion and calls emit once per parsed
// delta, in arrival order. It returns once the provider sends its [DONE]
// marker or the stream ends. A non-2xx response is returned as *StatusError.
// Malformed payload lines are logged and skipped, never fatal. An error from
// emit aborts the read loop and is returned as-is.
func (p *OpenRouter) Stream(ctx context.Context, req Request, emit func(Delta) error) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	body, err := json.Marshal(chatCompletionRequest{
		Model:    p.cfg.Model,
		Messages: messages(req),
		Stream:   true,
	})
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	url := strings.TrimSuffix(p.cfg.BaseURL, "/") + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Status: resp.StatusCode, Body: string(msg)}
	}

	return p.readStream(ctx, resp.Body, emit)
}

func (p *OpenRouter) readStream(ctx context.Context, body io.Reader, emit func(Delta) error) error {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		lineNo++
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			return nil
		}

		var delta chatCompletionDelta
		if err := json.Unmarshal([]byte(payload), &delta); err != nil {
			p.logger.Warn("malformed stream payload skipped",
				"line", lineNo,
				"payload", truncateBytes(payload, 200),
				"error", err)
			continue
		}
		if len(delta.Choices) == 0 {
			continue
		}
		d := Delta{
			Content:   delta.Choices[0].Delta.Content,
			Reasoning: delta.Choices[0].Delta.Reasoning,
		}
		if d.Content == "" && d.Reasoning == "" {
			continue
		}
		if err := emit(d); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read stream: %w", err)
	}
	// Natural EOF without [DONE] is treated as a completed stream.
	return nil
}
