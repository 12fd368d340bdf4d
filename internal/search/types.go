// Package search provides web search access, result merging, and the URL
// normalization used for result identity.
//
// Results come from two places: the external search provider and the
// enhancement rules' injected results. Merge combines both, deduplicating by
// normalized URL and honoring rule-supplied priority URLs.
package search

// DefaultRelevance is the score assumed for results that carry none.
const DefaultRelevance = 0.5

// Result is a single web search result.
//
// Identity for deduplication purposes is NormalizeURL(URL); two results with
// the same normalized URL are the same result even if the raw URLs differ.
type Result struct {
	Title          string  `json:"title"`
	URL            string  `json:"url"`
	Snippet        string  `json:"snippet"`
	RelevanceScore float64 `json:"relevanceScore,omitempty"`
	FullTitle      string  `json:"fullTitle,omitempty"`
	Content        string  `json:"content,omitempty"`
	Summary        string  `json:"summary,omitempty"`
}

// Score returns the effective relevance score. A zero score means the source
// never assigned one and defaults to DefaultRelevance.
func (r Result) Score() float64 {
	if r.RelevanceScore <= 0 {
		return DefaultRelevance
	}
	return r.RelevanceScore
}

// Search method identifiers reported to the caller so degraded responses are
// machine-distinguishable from full-quality ones.
const (
	MethodSerper = "serper"
	MethodNone   = "none"
)

// Response is the outcome of one search call.
type Response struct {
	Results []Result `json:"results"`

	// HasRealResults is false when the provider failed or was not configured
	// and the result set is empty or synthetic.
	HasRealResults bool `json:"hasRealResults"`

	// SearchMethod names the provider that produced the results.
	SearchMethod string `json:"searchMethod"`
}
