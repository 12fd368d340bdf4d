package search

import "testing"

func TestNormalizeURL(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "https://example.com/path", "example.com/path"},
		{"uppercase host", "https://Example.COM/path", "example.com/path"},
		{"www prefix", "http://www.example.com/path", "example.com/path"},
		{"trailing slash", "https://example.com/path/", "example.com/path"},
		{"root slash", "https://example.com/", "example.com"},
		{"default https port", "https://example.com:443/path", "example.com/path"},
		{"default http port", "http://example.com:80/path", "example.com/path"},
		{"custom port kept", "https://example.com:8443/path", "example.com:8443/path"},
		{"fragment dropped", "https://example.com/path#section", "example.com/path"},
		{"tracking params dropped", "https://example.com/path?utm_source=x&utm_medium=y", "example.com/path"},
		{"real params kept", "https://example.com/search?q=go", "example.com/search?q=go"},
		{"mixed params", "https://example.com/p?q=go&fbclid=abc", "example.com/p?q=go"},
		{"no scheme", "Example.com/path", "example.com/path"},
		{"whitespace", "  https://example.com/path  ", "example.com/path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeURL(tt.raw); got != tt.want {
				t.Errorf("NormalizeURL(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestNormalizeURLCollisions(t *testing.T) {
	// The http and https forms of the same page must collide.
	a := NormalizeURL("https://Example.com/path/")
	b := NormalizeURL("http://www.example.com/path")
	if a != b {
		t.Errorf("expected collision, got %q vs %q", a, b)
	}
}
