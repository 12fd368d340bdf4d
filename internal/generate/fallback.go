package generate

import (
	"fmt"
	"net/url"
	"strings"
)

// maxFallbackResults is how many results the composed answer lists.
const maxFallbackResults = 3

// ComposeFallback builds a deterministic answer from whatever the pipeline
// already has. It makes no network calls and cannot fail, so it is always
// the last link of the provider chain. With search results it lists the top
// few with a disclaimer; without, it suggests manual searches for the
// original question.
func ComposeFallback(req Request) string {
	var b strings.Builder

	if len(req.SearchResults) > 0 {
		b.WriteString("I wasn't able to generate a full answer right now, but here are the most relevant results I found:\n")
		for i, r := range req.SearchResults {
			if i >= maxFallbackResults {
				break
			}
			fmt.Fprintf(&b, "\n%d. **%s**\n", i+1, r.Title)
			if r.Snippet != "" {
				fmt.Fprintf(&b, "   %s\n", r.Snippet)
			}
			fmt.Fprintf(&b, "   %s\n", r.URL)
		}
		b.WriteString("\nPlease try again in a moment for a complete answer.")
		return b.String()
	}

	query := url.QueryEscape(req.UserMessage)
	b.WriteString("I'm unable to generate an answer right now. You can search for this yourself:\n")
	fmt.Fprintf(&b, "\n- https://www.google.com/search?q=%s\n", query)
	fmt.Fprintf(&b, "- https://duckduckgo.com/?q=%s\n", query)
	b.WriteString("\nPlease try again in a moment.")
	return b.String()
}
