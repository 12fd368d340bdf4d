package generate

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/wcallahan/searchai/internal/log"
)

// GeminiConfig configures the secondary, non-streaming provider.
type GeminiConfig struct {
	APIKey  string
	Model   string
	Timeout time.Duration
	Logger  log.Logger
}

func (c *GeminiConfig) validate() error {
	if c.APIKey == "" {
		return errors.New("generate: Gemini API key is required")
	}
	if c.Model == "" {
		c.Model = "gemini-2.5-flash"
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	return nil
}

// Gemini produces complete answers in a single call. It runs when the
// primary provider fails or has no credential.
type Gemini struct {
	cfg    GeminiConfig
	client *genai.Client
	logger log.Logger
}

// NewGemini creates the secondary provider.
func NewGemini(ctx context.Context, cfg GeminiConfig) (*Gemini, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: cfg.APIKey})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &Gemini{cfg: cfg, client: client, logger: cfg.Logger}, nil
}

// Model returns the configured model identifier.
func (g *Gemini) Model() string { return g.cfg.Model }

// Generate returns one complete answer for the request. The same system
// prompt as the primary path applies, but history is flattened into a single
// user turn since this path runs single-shot.
func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	contents := []*genai.Content{
		genai.NewContentFromText(singleTurnPrompt(req), genai.RoleUser),
	}
	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model, contents, &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(systemPrompt(req), genai.RoleUser),
	})
	if err != nil {
		return "", fmt.Errorf("gemini generate: %w", err)
	}

	answer := strings.TrimSpace(resp.Text())
	if answer == "" {
		return "", errors.New("gemini returned an empty answer")
	}
	return answer, nil
}

// singleTurnPrompt folds recent history into the user turn so the secondary
// provider keeps conversational context without a multi-turn call.
func singleTurnPrompt(req Request) string {
	if len(req.History) == 0 {
		return userPrompt(req)
	}
	var b strings.Builder
	b.WriteString("Conversation so far:\n")
	for _, m := range req.History {
		fmt.Fprintf(&b, "%s: %s\n", m.Role, m.Content)
	}
	b.WriteString("\n")
	b.WriteString(userPrompt(req))
	return b.String()
}
