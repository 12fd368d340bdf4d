package generate

import (
	"context"
	"errors"
	"strings"

	"github.com/wcallahan/searchai/internal/log"
	"github.com/wcallahan/searchai/internal/search"
)

// StreamProvider is the primary path: deltas arrive incrementally.
type StreamProvider interface {
	Stream(ctx context.Context, req Request, emit func(Delta) error) error
	Model() string
}

// CompletionProvider is the secondary path: one complete answer per call.
type CompletionProvider interface {
	Generate(ctx context.Context, req Request) (string, error)
	Model() string
}

// Outcome summarizes a finished generation for persistence and logging.
type Outcome struct {
	Provider  string
	Model     string
	Content   string
	Reasoning string
	Chunks    int

	// Degraded is true when the answer came from the local fallback or the
	// empty-stream substitute rather than a provider.
	Degraded bool
}

// Chain runs the provider fallback chain. Providers are optional; a chain
// with neither provider still answers every request via the local fallback.
type Chain struct {
	primary   StreamProvider
	secondary CompletionProvider
	logger    log.Logger
}

// ChainConfig configures the provider chain. Primary and Secondary may be
// nil when their credentials are not configured.
type ChainConfig struct {
	Primary   StreamProvider
	Secondary CompletionProvider
	Logger    log.Logger
}

// NewChain creates a provider chain.
func NewChain(cfg ChainConfig) *Chain {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	return &Chain{primary: cfg.Primary, secondary: cfg.Secondary, logger: cfg.Logger}
}

// sinkError marks a failure of the caller's emit function, which means the
// client is gone. It aborts the chain instead of advancing it.
type sinkError struct{ err error }

func (e *sinkError) Error() string { return "emit: " + e.err.Error() }
func (e *sinkError) Unwrap() error { return e.err }

// Generate answers the request, trying each provider in order and emitting
// chunk events through emit in arrival order with monotonically increasing
// chunk numbers. Provider failures advance the chain and are never surfaced;
// the only error returns are context cancellation and emit failures, both of
// which mean the caller is gone. On success the returned Outcome carries the
// accumulated totals for persistence.
func (c *Chain) Generate(ctx context.Context, req Request, emit func(Chunk) error) (*Outcome, error) {
	// Empty array on the wire, never null.
	results := req.SearchResults
	if results == nil {
		results = []search.Result{}
	}
	sources := req.Sources()
	chunkNo := 0

	send := func(provider, model, content, reasoning string) error {
		chunkNo++
		return emit(Chunk{
			Type:          TypeChunk,
			Content:       content,
			Reasoning:     reasoning,
			SearchResults: results,
			Sources:       sources,
			Provider:      provider,
			Model:         model,
			ChunkNumber:   chunkNo,
		})
	}

	if c.primary != nil {
		outcome, err := c.streamPrimary(ctx, req, send)
		if err == nil {
			return outcome, nil
		}
		var sink *sinkError
		if errors.As(err, &sink) {
			return nil, sink.err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("primary provider failed, advancing chain",
			"provider", ProviderOpenRouter,
			"model", c.primary.Model(),
			"error", errSummary(err))
	}

	if c.secondary != nil {
		answer, err := c.secondary.Generate(ctx, req)
		if err == nil {
			if err := send(ProviderGemini, c.secondary.Model(), answer, ""); err != nil {
				return nil, err
			}
			return &Outcome{
				Provider: ProviderGemini,
				Model:    c.secondary.Model(),
				Content:  answer,
				Chunks:   chunkNo,
			}, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.Warn("secondary provider failed, advancing chain",
			"provider", ProviderGemini,
			"model", c.secondary.Model(),
			"error", errSummary(err))
	}

	answer := ComposeFallback(req)
	if err := send(ProviderFallback, "", answer, ""); err != nil {
		return nil, err
	}
	return &Outcome{
		Provider: ProviderFallback,
		Content:  answer,
		Chunks:   chunkNo,
		Degraded: true,
	}, nil
}

// streamPrimary runs the primary provider, forwarding one chunk per delta.
// A stream that completes without visible content gets a substitute message
// so the caller never sees an empty answer.
func (c *Chain) streamPrimary(ctx context.Context, req Request, send func(provider, model, content, reasoning string) error) (*Outcome, error) {
	var content, reasoning strings.Builder
	chunks := 0

	err := c.primary.Stream(ctx, req, func(d Delta) error {
		content.WriteString(d.Content)
		reasoning.WriteString(d.Reasoning)
		chunks++
		if err := send(ProviderOpenRouter, c.primary.Model(), d.Content, d.Reasoning); err != nil {
			return &sinkError{err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(content.String()) == "" {
		substitute := ComposeFallback(req)
		if err := send(ProviderFallback, "", substitute, ""); err != nil {
			return nil, &sinkError{err: err}
		}
		return &Outcome{
			Provider: ProviderFallback,
			Content:  substitute,
			Chunks:   chunks + 1,
			Degraded: true,
		}, nil
	}

	return &Outcome{
		Provider:  ProviderOpenRouter,
		Model:     c.primary.Model(),
		Content:   content.String(),
		Reasoning: reasoning.String(),
		Chunks:    chunks,
	}, nil
}

// errSummary truncates provider error text for logging.
func errSummary(err error) string {
	return truncateBytes(err.Error(), 300)
}
