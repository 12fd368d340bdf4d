package search

import (
	"net/url"
	"strings"
)

// Query parameters that identify the visitor rather than the document.
// Stripping them keeps the same page from appearing twice in merged results.
var trackingParams = map[string]bool{
	"utm_source":   true,
	"utm_medium":   true,
	"utm_campaign": true,
	"utm_term":     true,
	"utm_content":  true,
	"fbclid":       true,
	"gclid":        true,
	"ref":          true,
}

// NormalizeURL reduces a URL to its identity form for deduplication:
// lowercased host with any "www." prefix and default port removed, the path
// without a trailing slash, and the query without tracking parameters. The
// scheme and fragment do not participate, so the http and https forms of a
// page collide as intended.
//
// Inputs that do not parse are returned lowercased and trimmed so that
// malformed duplicates still collide with each other.
func NormalizeURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return strings.ToLower(raw)
	}

	host := strings.ToLower(u.Hostname())
	host = strings.TrimPrefix(host, "www.")
	if port := u.Port(); port != "" && port != "80" && port != "443" {
		host += ":" + port
	}

	path := u.Path
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	if path == "/" {
		path = ""
	}

	normalized := host + path

	if u.RawQuery != "" {
		q := u.Query()
		for param := range q {
			if trackingParams[strings.ToLower(param)] {
				q.Del(param)
			}
		}
		if encoded := q.Encode(); encoded != "" {
			normalized += "?" + encoded
		}
	}

	return normalized
}
