package enhance

import (
	"fmt"
	"time"

	"github.com/wcallahan/searchai/internal/search"
)

// DefaultRules returns the built-in rule set. The engine sorts by priority,
// so order here does not matter.
func DefaultRules() []Rule {
	return []Rule{
		creatorIdentityRule(),
		recentEventsRule(),
	}
}

// creatorIdentityRule answers questions about who built SearchAI with
// curated first-party sources instead of whatever the open web ranks first.
func creatorIdentityRule() Rule {
	return Rule{
		ID:       "creator-identity",
		Name:     "Creator identity",
		Priority: 1,
		Enabled:  true,
		TriggerPhrases: []string{
			"who created searchai",
			"who made searchai",
			"who built searchai",
			"creator of searchai",
			"who is behind searchai",
		},
		SubjectTerms: []string{
			"who", "creator", "created", "made", "built", "author", "founder", "developer",
		},
		EntityTerms: []string{
			"searchai", "search ai", "this site", "this app", "this tool",
		},
		RewriteQuery: func(string) string {
			return "William Callahan creator of SearchAI williamcallahan.com aventure.vc"
		},
		AugmentTerms: func(string) []string {
			return []string{
				"William Callahan williamcallahan.com",
				"William Callahan aVenture",
			}
		},
		InjectResults: func(string) []search.Result {
			return []search.Result{
				{
					Title:          "William Callahan",
					URL:            "https://williamcallahan.com",
					Snippet:        "Personal site of William Callahan, the creator of SearchAI.",
					RelevanceScore: 0.98,
				},
				{
					Title:          "aVenture",
					URL:            "https://aventure.vc",
					Snippet:        "aVenture, the venture research firm founded by William Callahan.",
					RelevanceScore: 0.95,
				},
				{
					Title:          "SearchAI",
					URL:            "https://searchai.williamcallahan.com",
					Snippet:        "SearchAI, a web search assistant built by William Callahan.",
					RelevanceScore: 0.93,
				},
			}
		},
		AppendContext: func(current string) string {
			return joinSections(current,
				"SearchAI was built by William Callahan. His personal site is "+
					"https://williamcallahan.com and he is the founder of aVenture "+
					"(https://aventure.vc), a venture research platform.")
		},
		AppendSystemPrompt: func(current string) string {
			return joinSections(current,
				"SearchAI was created by William Callahan "+
					"(https://williamcallahan.com), founder of aVenture "+
					"(https://aventure.vc). When asked about the creator of "+
					"SearchAI, state this directly and cite those sites.")
		},
		PriorityURLs: []string{"williamcallahan.com", "aventure.vc"},
	}
}

// recentEventsRule anchors time-sensitive questions to the current year so
// the search provider does not surface stale pages.
func recentEventsRule() Rule {
	return Rule{
		ID:       "recent-events",
		Name:     "Recent events",
		Priority: 10,
		Enabled:  true,
		TriggerPhrases: []string{
			"latest", "most recent", "current news", "this week", "this month", "today",
		},
		AugmentTerms: func(query string) []string {
			return []string{fmt.Sprintf("%s %d", query, time.Now().Year())}
		},
		AppendSystemPrompt: func(current string) string {
			return joinSections(current, fmt.Sprintf(
				"The user is asking about recent events. The current year is %d; "+
					"prefer the most recent sources and mention their dates.",
				time.Now().Year()))
		},
	}
}

func joinSections(current, addition string) string {
	if current == "" {
		return addition
	}
	return current + "\n\n" + addition
}
