package scrape

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/wcallahan/searchai/internal/search"
)

const articleHTML = `<!DOCTYPE html>
<html><head><title>Go Concurrency</title></head><body>
<article>
<h1>Go Concurrency Patterns</h1>
<p>Goroutines are lightweight threads managed by the Go runtime. They make it
practical to structure a program as a set of independently executing
functions, and starting thousands of them is routine in production servers.</p>
<p>Channels connect goroutines and carry values between them. Combined with
the select statement they give programs a way to coordinate work without
explicit locks, which keeps most concurrent Go code free of shared mutable
state.</p>
<p>The sync package covers the remaining cases where a mutex or wait group is
the clearer tool, and the race detector catches the mistakes that slip
through code review anyway.</p>
</article>
</body></html>`

func TestEnrichFillsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	s, err := New(Config{MaxSources: 3, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results := []search.Result{{Title: "Go Concurrency", URL: srv.URL + "/article", Snippet: "snippet"}}
	enriched := s.Enrich(results)

	if enriched[0].Content == "" {
		t.Fatal("expected content to be extracted")
	}
	if !strings.Contains(enriched[0].Content, "Goroutines are lightweight threads") {
		t.Errorf("content missing article text: %q", enriched[0].Content[:min(120, len(enriched[0].Content))])
	}
	if enriched[0].Snippet != "snippet" {
		t.Error("snippet must survive enrichment")
	}
}

func TestEnrichDegradesPerURL(t *testing.T) {
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer good.Close()
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer bad.Close()

	s, err := New(Config{MaxSources: 3, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results := []search.Result{
		{URL: bad.URL + "/missing", Snippet: "keep me"},
		{URL: good.URL + "/article", Snippet: "other"},
		{URL: "not a url", Snippet: "also keep"},
	}
	enriched := s.Enrich(results)

	if enriched[0].Content != "" {
		t.Error("failed fetch must not produce content")
	}
	if enriched[0].Snippet != "keep me" {
		t.Error("failed fetch must keep the snippet")
	}
	if enriched[1].Content == "" {
		t.Error("healthy URL should still be enriched when a sibling fails")
	}
	if enriched[2].Content != "" {
		t.Error("unparseable URL must be skipped")
	}
}

func TestEnrichRespectsMaxSources(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/robots.txt" {
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	s, err := New(Config{MaxSources: 2, Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	results := []search.Result{
		{URL: srv.URL + "/a"},
		{URL: srv.URL + "/b"},
		{URL: srv.URL + "/c"},
	}
	enriched := s.Enrich(results)

	if got := hits.Load(); got != 2 {
		t.Errorf("expected 2 page fetches, got %d", got)
	}
	if enriched[2].Content != "" {
		t.Error("result past MaxSources must not be scraped")
	}
}

func TestEnrichDisabled(t *testing.T) {
	s, err := New(Config{MaxSources: 0})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	results := []search.Result{{URL: "https://example.com"}}
	if enriched := s.Enrich(results); enriched[0].Content != "" {
		t.Error("MaxSources=0 must disable scraping")
	}
}

func TestExtractParagraphFallback(t *testing.T) {
	// A page with paragraphs but no article structure readability accepts.
	page := []byte(`<html><body>
<div><p>First short paragraph.</p></div>
<div><p>Second short paragraph.</p></div>
</body></html>`)

	got := extractParagraphs(page)
	if !strings.Contains(got, "First short paragraph.") || !strings.Contains(got, "Second short paragraph.") {
		t.Errorf("paragraph fallback output: %q", got)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hello", 10); got != "hello" {
		t.Errorf("short string changed: %q", got)
	}
	if got := truncate("hello", 3); got != "hel" {
		t.Errorf("truncate = %q, want hel", got)
	}
	// Multibyte runes must not be split.
	s := "héllo"
	got := truncate(s, 2)
	if got != "h" {
		t.Errorf("truncate split a rune: %q", got)
	}
}
