package search

import (
	"sort"
	"strings"
)

// Merge combines rule-injected results with provider results into a single
// deduplicated list.
//
// Injected results are considered before provider results, so on a score tie
// the injected version of a page wins. Within the map, a later duplicate
// replaces an earlier one only when its effective score is strictly higher;
// the result keeps the position of its first appearance either way.
//
// When priorityURLs is non-empty and more than one result survives, results
// whose URL contains any priority URL are stably sorted ahead of the rest,
// and each partition is ordered by descending effective score. With no
// priority URLs the first-appearance order is preserved. Merging is
// idempotent: merging a merged list with nothing changes nothing.
func Merge(injected, provider []Result, priorityURLs []string) []Result {
	index := make(map[string]int, len(injected)+len(provider))
	merged := make([]Result, 0, len(injected)+len(provider))

	for _, r := range append(append([]Result{}, injected...), provider...) {
		key := NormalizeURL(r.URL)
		if pos, ok := index[key]; ok {
			if r.Score() > merged[pos].Score() {
				merged[pos] = r
			}
			continue
		}
		index[key] = len(merged)
		merged = append(merged, r)
	}

	if len(priorityURLs) > 0 && len(merged) > 1 {
		sort.SliceStable(merged, func(i, j int) bool {
			pi, pj := isPriority(merged[i].URL, priorityURLs), isPriority(merged[j].URL, priorityURLs)
			if pi != pj {
				return pi
			}
			return merged[i].Score() > merged[j].Score()
		})
	}

	return merged
}

func isPriority(rawURL string, priorityURLs []string) bool {
	lower := strings.ToLower(rawURL)
	for _, p := range priorityURLs {
		if p != "" && strings.Contains(lower, strings.ToLower(p)) {
			return true
		}
	}
	return false
}
