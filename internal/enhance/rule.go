// Package enhance rewrites incoming questions before they reach search and
// generation. A static, priority-ordered rule set matches on the question
// text; each matching rule contributes query rewrites, extra search terms,
// injected results, context, system prompt additions, and priority URLs,
// folded in priority order into a single Enhancement.
package enhance

import (
	"strings"

	"github.com/wcallahan/searchai/internal/search"
)

// Rule is one enhancement rule. Rules are immutable after registration; the
// active set is process-wide configuration built once at startup.
//
// A rule matches when any trigger phrase appears in the question, or when at
// least one subject term AND at least one entity term both appear. All
// matching is case-insensitive substring matching. A rule with no trigger
// phrases and no term pairs never matches.
//
// Every transformer is optional. A transformer receives the accumulator's
// current value, not the original input, so lower-priority rules compose on
// top of higher-priority ones. Transformers are pure functions over strings
// and slices; a panicking transformer is a programming error and propagates.
type Rule struct {
	ID          string
	Name        string
	Description string

	// Priority orders application; lower values run first.
	Priority int
	Enabled  bool

	TriggerPhrases []string
	SubjectTerms   []string
	EntityTerms    []string

	// RewriteQuery replaces the outgoing search query.
	RewriteQuery func(query string) string

	// AugmentTerms returns additional standalone search terms derived from
	// the current query.
	AugmentTerms func(query string) []string

	// InjectResults returns curated results merged ahead of provider
	// results.
	InjectResults func(query string) []search.Result

	// AppendContext extends the retrieved-content context given to the
	// generation prompt.
	AppendContext func(current string) string

	// AppendSystemPrompt extends the system prompt addition.
	AppendSystemPrompt func(current string) string

	// PriorityURLs float matching results to the top of the merged list.
	PriorityURLs []string
}

// Matches reports whether the rule applies to the given question text.
func (r Rule) Matches(text string) bool {
	lower := strings.ToLower(text)

	for _, phrase := range r.TriggerPhrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return true
		}
	}

	return containsAny(lower, r.SubjectTerms) && containsAny(lower, r.EntityTerms)
}

func containsAny(lower string, terms []string) bool {
	for _, term := range terms {
		if term != "" && strings.Contains(lower, strings.ToLower(term)) {
			return true
		}
	}
	return false
}

// Options toggles individual transformation kinds. A disabled toggle skips
// that transformer on every rule, even when the rule defines one.
type Options struct {
	RewriteQuery        bool
	AugmentTerms        bool
	InjectResults       bool
	BuildContext        bool
	AugmentSystemPrompt bool
}

// AllOptions enables every transformation kind.
func AllOptions() Options {
	return Options{
		RewriteQuery:        true,
		AugmentTerms:        true,
		InjectResults:       true,
		BuildContext:        true,
		AugmentSystemPrompt: true,
	}
}

// Enhancement is the accumulated effect of every matched rule on one
// question. It is built fresh per request and never persisted.
type Enhancement struct {
	// Query is the search query after all rewrites. It starts as the raw
	// question and only changes when a matched rule rewrites it.
	Query string

	// MatchedRules lists the IDs of matched rules in priority order.
	MatchedRules []string

	// SearchTerms are additional standalone queries to run besides Query,
	// deduplicated in first-seen order.
	SearchTerms []string

	// InjectedResults are curated results merged ahead of provider results.
	InjectedResults []search.Result

	// Context is extra retrieved-content context for the generation prompt.
	Context string

	// SystemPromptAddition is appended to the generation system prompt.
	SystemPromptAddition string

	// PriorityURLs are deduplicated in first-seen order.
	PriorityURLs []string
}
