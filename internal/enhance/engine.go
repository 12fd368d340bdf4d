package enhance

import (
	"errors"
	"sort"
	"strings"

	"github.com/wcallahan/searchai/internal/log"
)

// Engine applies the loaded rule set to incoming questions. The rule set is
// read-only after construction, so concurrent Apply calls need no locking.
type Engine struct {
	rules  []Rule
	logger log.Logger
}

// EngineConfig configures the rule engine.
type EngineConfig struct {
	// Rules is the full rule set, enabled or not. Nil means DefaultRules.
	Rules  []Rule
	Logger log.Logger
}

// NewEngine creates a rule engine. Rules are validated and sorted once here
// so Apply never has to.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if cfg.Rules == nil {
		cfg.Rules = DefaultRules()
	}
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}

	seen := make(map[string]bool, len(cfg.Rules))
	for _, r := range cfg.Rules {
		if r.ID == "" {
			return nil, errors.New("enhance: rule with empty ID")
		}
		if seen[r.ID] {
			return nil, errors.New("enhance: duplicate rule ID " + r.ID)
		}
		seen[r.ID] = true
	}

	// Sort a copy so the caller's slice stays untouched and concurrent
	// Apply calls share one immutable ordered set.
	rules := make([]Rule, len(cfg.Rules))
	copy(rules, cfg.Rules)
	sort.SliceStable(rules, func(i, j int) bool { return rules[i].Priority < rules[j].Priority })

	return &Engine{rules: rules, logger: cfg.Logger}, nil
}

// Apply matches the question against every enabled rule in ascending
// priority order and folds each match's transformers into the result. Each
// transformer sees the accumulator's current value, so later rules compose
// on earlier rules' output. Matching itself always uses the raw question.
//
// Empty or whitespace-only input matches no rule. With no matches the result
// is the question unchanged and everything else empty.
func (e *Engine) Apply(question string, opts Options) *Enhancement {
	acc := &Enhancement{Query: question}
	if strings.TrimSpace(question) == "" {
		return acc
	}

	for _, rule := range e.rules {
		if !rule.Enabled || !rule.Matches(question) {
			continue
		}
		acc.MatchedRules = append(acc.MatchedRules, rule.ID)

		if opts.RewriteQuery && rule.RewriteQuery != nil {
			acc.Query = rule.RewriteQuery(acc.Query)
		}
		if opts.AugmentTerms && rule.AugmentTerms != nil {
			acc.SearchTerms = append(acc.SearchTerms, rule.AugmentTerms(acc.Query)...)
		}
		if opts.InjectResults && rule.InjectResults != nil {
			acc.InjectedResults = append(acc.InjectedResults, rule.InjectResults(acc.Query)...)
		}
		if opts.BuildContext && rule.AppendContext != nil {
			acc.Context = rule.AppendContext(acc.Context)
		}
		if opts.AugmentSystemPrompt && rule.AppendSystemPrompt != nil {
			acc.SystemPromptAddition = rule.AppendSystemPrompt(acc.SystemPromptAddition)
		}
		if opts.InjectResults {
			acc.PriorityURLs = append(acc.PriorityURLs, rule.PriorityURLs...)
		}
	}

	acc.SearchTerms = dedupe(acc.SearchTerms)
	acc.PriorityURLs = dedupe(acc.PriorityURLs)

	if len(acc.MatchedRules) > 0 {
		e.logger.Debug("enhancement rules applied",
			"rules", acc.MatchedRules,
			"injected_results", len(acc.InjectedResults),
			"extra_terms", len(acc.SearchTerms))
	}
	return acc
}

// dedupe removes duplicates case-insensitively, preserving first-seen order.
func dedupe(values []string) []string {
	if len(values) < 2 {
		return values
	}
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}
