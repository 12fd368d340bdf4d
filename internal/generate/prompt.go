package generate

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// maxSourceContentBytes bounds the per-source content included in the user
// turn so a handful of long pages cannot blow the prompt budget.
const maxSourceContentBytes = 1500

// maxPromptSources caps how many results are spelled out in the prompt.
const maxPromptSources = 5

const defaultSystemPrompt = "You are SearchAI, a helpful assistant that answers " +
	"questions using current web search results. Be accurate and concise. If " +
	"the provided sources do not answer the question, say so instead of guessing."

const citationInstruction = "Cite your sources inline using [n] markers that " +
	"refer to the numbered sources provided with the question, and do not " +
	"invent sources that were not provided."

// systemPrompt assembles the full system prompt: the base, any rule-appended
// additions, and the citation-format instruction, in that order.
func systemPrompt(req Request) string {
	base := req.SystemPromptBase
	if base == "" {
		base = defaultSystemPrompt
	}
	parts := []string{base}
	if req.SystemPromptAddition != "" {
		parts = append(parts, req.SystemPromptAddition)
	}
	parts = append(parts, citationInstruction)
	return strings.Join(parts, "\n\n")
}

// userPrompt renders the current user turn with the retrieved context
// appended inline. Each source's content is truncated to
// maxSourceContentBytes; a source with no scraped content falls back to its
// snippet.
func userPrompt(req Request) string {
	var b strings.Builder
	b.WriteString(req.UserMessage)

	if req.Context != "" {
		b.WriteString("\n\nAdditional context:\n")
		b.WriteString(req.Context)
	}

	if len(req.SearchResults) > 0 {
		b.WriteString("\n\nWeb search results:\n")
		for i, r := range req.SearchResults {
			if i >= maxPromptSources {
				break
			}
			body := r.Content
			if body == "" {
				body = r.Snippet
			}
			fmt.Fprintf(&b, "\n[%d] %s\n%s\n%s\n", i+1, r.Title, r.URL, truncateBytes(body, maxSourceContentBytes))
		}
	}

	return b.String()
}

// messages builds the full message list for a chat-completion call: system
// prompt, prior history, then the current user turn with inline context.
func messages(req Request) []Message {
	msgs := make([]Message, 0, len(req.History)+2)
	msgs = append(msgs, Message{Role: "system", Content: systemPrompt(req)})
	msgs = append(msgs, req.History...)
	msgs = append(msgs, Message{Role: "user", Content: userPrompt(req)})
	return msgs
}

// truncateBytes cuts s to at most n bytes without splitting a UTF-8
// sequence.
func truncateBytes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
