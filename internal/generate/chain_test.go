package generate

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/wcallahan/searchai/internal/search"
)

type fakeStream struct {
	deltas []Delta
	err    error
	calls  int
}

func (f *fakeStream) Model() string { return "fake-stream-model" }

func (f *fakeStream) Stream(ctx context.Context, req Request, emit func(Delta) error) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	for _, d := range f.deltas {
		if err := emit(d); err != nil {
			return err
		}
	}
	return nil
}

type fakeCompletion struct {
	answer string
	err    error
	calls  int
}

func (f *fakeCompletion) Model() string { return "fake-completion-model" }

func (f *fakeCompletion) Generate(ctx context.Context, req Request) (string, error) {
	f.calls++
	return f.answer, f.err
}

func collect(t *testing.T, chain *Chain, req Request) ([]Chunk, *Outcome) {
	t.Helper()
	var chunks []Chunk
	outcome, err := chain.Generate(context.Background(), req, func(c Chunk) error {
		chunks = append(chunks, c)
		return nil
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	return chunks, outcome
}

func TestChainPrimarySuccess(t *testing.T) {
	primary := &fakeStream{deltas: []Delta{
		{Content: "Hello"},
		{Content: " world", Reasoning: "step"},
	}}
	secondary := &fakeCompletion{answer: "unused"}
	chain := NewChain(ChainConfig{Primary: primary, Secondary: secondary})

	results := []search.Result{{Title: "T", URL: "https://a.com"}}
	chunks, outcome := collect(t, chain, Request{UserMessage: "hi", SearchResults: results})

	if secondary.calls != 0 {
		t.Error("secondary must not run when primary succeeds")
	}
	if len(chunks) != 2 {
		t.Fatalf("expected 2 chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if c.ChunkNumber != i+1 {
			t.Errorf("chunk %d has number %d", i, c.ChunkNumber)
		}
		if c.Type != TypeChunk {
			t.Errorf("chunk type = %q", c.Type)
		}
		if c.Provider != ProviderOpenRouter {
			t.Errorf("chunk provider = %q", c.Provider)
		}
		if len(c.SearchResults) != 1 || len(c.Sources) != 1 {
			t.Error("chunks must echo search results and sources")
		}
	}
	if chunks[0].Content != "Hello" || chunks[1].Content != " world" {
		t.Error("chunks must carry increments, not totals")
	}

	if outcome.Content != "Hello world" || outcome.Reasoning != "step" {
		t.Errorf("outcome totals wrong: %+v", outcome)
	}
	if outcome.Provider != ProviderOpenRouter || outcome.Degraded {
		t.Errorf("outcome metadata wrong: %+v", outcome)
	}
}

func TestChunkWireFieldsAlwaysPresent(t *testing.T) {
	// The chunk payload carries every field on every frame, empty or not.
	// Only error is conditional; it appears on error events alone.
	primary := &fakeStream{deltas: []Delta{{Content: "hi"}}}
	chain := NewChain(ChainConfig{Primary: primary})

	chunks, _ := collect(t, chain, Request{UserMessage: "q"})
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}

	raw, err := json.Marshal(chunks[0])
	if err != nil {
		t.Fatalf("marshal chunk: %v", err)
	}
	for _, key := range []string{
		`"type"`, `"content"`, `"reasoning"`, `"searchResults"`,
		`"sources"`, `"provider"`, `"model"`, `"chunkNumber"`,
	} {
		if !strings.Contains(string(raw), key) {
			t.Errorf("chunk payload missing %s: %s", key, raw)
		}
	}
	if strings.Contains(string(raw), `"error"`) {
		t.Errorf("error field present on a non-error chunk: %s", raw)
	}
	if !strings.Contains(string(raw), `"searchResults":[]`) ||
		!strings.Contains(string(raw), `"sources":[]`) {
		t.Errorf("empty result fields must be empty arrays, not null: %s", raw)
	}
}

func TestChainAdvancesToSecondary(t *testing.T) {
	primary := &fakeStream{err: &StatusError{Status: 500, Body: "boom"}}
	secondary := &fakeCompletion{answer: "complete answer"}
	chain := NewChain(ChainConfig{Primary: primary, Secondary: secondary})

	chunks, outcome := collect(t, chain, Request{UserMessage: "hi"})

	if len(chunks) != 1 {
		t.Fatalf("expected a single terminal chunk, got %d", len(chunks))
	}
	if chunks[0].Content != "complete answer" || chunks[0].Provider != ProviderGemini {
		t.Errorf("chunk = %+v", chunks[0])
	}
	if chunks[0].ChunkNumber != 1 {
		t.Errorf("chunk number = %d, want 1", chunks[0].ChunkNumber)
	}
	if outcome.Provider != ProviderGemini || outcome.Degraded {
		t.Errorf("outcome = %+v", outcome)
	}
}

func TestChainFallbackTotality(t *testing.T) {
	tests := []struct {
		name  string
		chain *Chain
	}{
		{"both providers fail", NewChain(ChainConfig{
			Primary:   &fakeStream{err: errors.New("primary down")},
			Secondary: &fakeCompletion{err: errors.New("secondary down")},
		})},
		{"no providers configured", NewChain(ChainConfig{})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, outcome := collect(t, tt.chain, Request{
				UserMessage:   "question",
				SearchResults: []search.Result{{Title: "T", URL: "https://a.com", Snippet: "s"}},
			})

			if len(chunks) != 1 {
				t.Fatalf("expected one fallback chunk, got %d", len(chunks))
			}
			if chunks[0].Content == "" {
				t.Error("fallback answer must be non-empty")
			}
			if chunks[0].Provider != ProviderFallback {
				t.Errorf("provider = %q", chunks[0].Provider)
			}
			if !outcome.Degraded {
				t.Error("fallback outcome must be marked degraded")
			}
		})
	}
}

func TestChainEmptyStreamGuard(t *testing.T) {
	// A primary stream that completes with only whitespace must be replaced
	// by a graceful substitute, never an empty answer.
	primary := &fakeStream{deltas: []Delta{{Content: "  \n"}}}
	chain := NewChain(ChainConfig{Primary: primary})

	chunks, outcome := collect(t, chain, Request{
		UserMessage:   "question",
		SearchResults: []search.Result{{Title: "T", URL: "https://a.com", Snippet: "s"}},
	})

	last := chunks[len(chunks)-1]
	if last.Content == "" || !strings.Contains(last.Content, "https://a.com") {
		t.Errorf("substitute chunk = %+v", last)
	}
	if !outcome.Degraded {
		t.Error("empty-stream outcome must be marked degraded")
	}
}

func TestChainAbortDoesNotAdvance(t *testing.T) {
	primary := &fakeStream{deltas: []Delta{{Content: "a"}, {Content: "b"}}}
	secondary := &fakeCompletion{answer: "unused"}
	chain := NewChain(ChainConfig{Primary: primary, Secondary: secondary})

	clientGone := errors.New("connection closed")
	_, err := chain.Generate(context.Background(), Request{UserMessage: "hi"},
		func(Chunk) error { return clientGone })

	if !errors.Is(err, clientGone) {
		t.Fatalf("expected the emit error back, got %v", err)
	}
	if secondary.calls != 0 {
		t.Error("a dead client must abort the chain, not advance it")
	}
}

func TestChainContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	primary := &fakeStream{err: context.Canceled}
	secondary := &fakeCompletion{answer: "unused"}
	chain := NewChain(ChainConfig{Primary: primary, Secondary: secondary})

	_, err := chain.Generate(ctx, Request{UserMessage: "hi"}, func(Chunk) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if secondary.calls != 0 {
		t.Error("cancellation must not advance the chain")
	}
}

func TestComposeFallback(t *testing.T) {
	withResults := ComposeFallback(Request{
		UserMessage: "q",
		SearchResults: []search.Result{
			{Title: "First", URL: "https://a.com", Snippet: "sa"},
			{Title: "Second", URL: "https://b.com", Snippet: "sb"},
			{Title: "Third", URL: "https://c.com", Snippet: "sc"},
			{Title: "Fourth", URL: "https://d.com", Snippet: "sd"},
		},
	})
	for _, want := range []string{"First", "https://a.com", "Third"} {
		if !strings.Contains(withResults, want) {
			t.Errorf("fallback missing %q:\n%s", want, withResults)
		}
	}
	if strings.Contains(withResults, "Fourth") {
		t.Error("fallback must cap the listed results")
	}

	withoutResults := ComposeFallback(Request{UserMessage: "rare question"})
	if !strings.Contains(withoutResults, "rare+question") {
		t.Errorf("manual-search fallback must reference the question:\n%s", withoutResults)
	}

	// Determinism.
	if again := ComposeFallback(Request{UserMessage: "rare question"}); again != withoutResults {
		t.Error("fallback must be deterministic")
	}
}
