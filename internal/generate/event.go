// Package generate produces streamed answers for enhanced questions. It
// implements the provider chain: an OpenRouter-compatible streaming provider
// first, a Gemini non-streaming provider second, and a deterministic local
// composition that never fails last. Whatever happens upstream, the caller
// always receives a complete sequence of chunk events.
package generate

import "github.com/wcallahan/searchai/internal/search"

// Chunk event types.
const (
	TypeChunk = "chunk"
	TypeError = "error"
)

// Provider identifiers reported in chunk events.
const (
	ProviderOpenRouter = "openrouter"
	ProviderGemini     = "gemini"
	ProviderFallback   = "fallback"
)

// Source is a cited source shown alongside the answer.
type Source struct {
	Title string `json:"title"`
	URL   string `json:"url"`
}

// Chunk is one application-level stream event. Content and Reasoning carry
// the increment since the previous chunk, never the running total.
// ChunkNumber starts at 1 and increases by one per chunk within a stream.
type Chunk struct {
	Type          string          `json:"type"`
	Content       string          `json:"content"`
	Reasoning     string          `json:"reasoning"`
	SearchResults []search.Result `json:"searchResults"`
	Sources       []Source        `json:"sources"`
	Provider      string          `json:"provider"`
	Model         string          `json:"model"`
	ChunkNumber   int             `json:"chunkNumber"`
	Error         string          `json:"error,omitempty"`
}

// Delta is one increment parsed from the primary provider's raw stream.
type Delta struct {
	Content   string
	Reasoning string
}

// Message is one turn of conversation history.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is everything one generation needs. It is scoped to a single
// invocation and never shared across conversations.
type Request struct {
	ConversationID   string
	UserMessage      string
	SystemPromptBase string

	// SystemPromptAddition and Context come from matched enhancement rules.
	SystemPromptAddition string
	Context              string

	History       []Message
	SearchResults []search.Result
	SourceURLs    []string
}

// Sources derives the cited source list from the request's search results.
func (r Request) Sources() []Source {
	if len(r.SearchResults) == 0 {
		return []Source{}
	}
	sources := make([]Source, 0, len(r.SearchResults))
	for _, res := range r.SearchResults {
		sources = append(sources, Source{Title: res.Title, URL: res.URL})
	}
	return sources
}
