// Package scrape fetches search result pages and extracts their readable
// text so the generation prompt can quote sources instead of snippets.
package scrape

import (
	"bytes"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"github.com/wcallahan/searchai/internal/log"
	"github.com/wcallahan/searchai/internal/search"
)

// maxContentBytes bounds the extracted text kept per page. Prompt assembly
// truncates far below this; the cap only protects memory on pathological
// pages.
const maxContentBytes = 16 * 1024

// minReadableLength is the extracted-text length under which the
// readability output is considered a failed extraction and the paragraph
// fallback runs instead.
const minReadableLength = 200

const userAgent = "SearchAI/1.0 (+https://searchai.williamcallahan.com)"

// Config configures the scraper.
type Config struct {
	// Parallelism caps concurrent fetches across all domains.
	Parallelism int

	// Delay is the politeness delay between requests to the same domain.
	Delay time.Duration

	// Timeout bounds each individual page fetch.
	Timeout time.Duration

	// MaxSources is how many results get scraped per question; the rest
	// keep their snippets. Zero disables scraping entirely.
	MaxSources int

	Logger log.Logger
}

func (c *Config) validate() error {
	if c.Parallelism <= 0 {
		c.Parallelism = 2
	}
	if c.Delay < 0 {
		c.Delay = 0
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxSources < 0 {
		c.MaxSources = 0
	}
	if c.Logger == nil {
		c.Logger = log.NewNop()
	}
	return nil
}

// Scraper enriches search results with extracted page content.
type Scraper struct {
	cfg    Config
	logger log.Logger
}

// New creates a scraper.
func New(cfg Config) (*Scraper, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Scraper{cfg: cfg, logger: cfg.Logger}, nil
}

// Enrich fetches up to MaxSources of the given results and fills in their
// Content with extracted page text. Failures degrade per URL: a result whose
// page cannot be fetched or parsed keeps its snippet and loses nothing.
// The input slice is returned with content filled in place.
func (s *Scraper) Enrich(results []search.Result) []search.Result {
	limit := s.cfg.MaxSources
	if limit == 0 || len(results) == 0 {
		return results
	}
	if limit > len(results) {
		limit = len(results)
	}

	c := colly.NewCollector(
		colly.Async(true),
		colly.UserAgent(userAgent),
	)
	c.SetRequestTimeout(s.cfg.Timeout)
	if err := c.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: s.cfg.Parallelism,
		Delay:       s.cfg.Delay,
	}); err != nil {
		s.logger.Warn("scrape limit rule rejected", "error", err)
		return results
	}

	var mu sync.Mutex

	c.OnResponse(func(r *colly.Response) {
		idx, err := strconv.Atoi(r.Ctx.Get("idx"))
		if err != nil || idx < 0 || idx >= len(results) {
			return
		}
		content := extract(r.Body, r.Request.URL)
		if content == "" {
			s.logger.Debug("no readable content", "url", r.Request.URL.String())
			return
		}
		mu.Lock()
		results[idx].Content = content
		mu.Unlock()
	})

	c.OnError(func(r *colly.Response, err error) {
		s.logger.Debug("scrape failed", "url", r.Request.URL.String(), "error", err)
	})

	for i := 0; i < limit; i++ {
		u := results[i].URL
		if !scrapable(u) {
			continue
		}
		cctx := colly.NewContext()
		cctx.Put("idx", strconv.Itoa(i))
		if err := c.Request("GET", u, nil, cctx, nil); err != nil {
			s.logger.Debug("scrape request rejected", "url", u, "error", err)
		}
	}
	c.Wait()

	return results
}

func scrapable(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// extract pulls readable text from an HTML body. Readability handles normal
// article pages; when it yields nothing usable, the paragraph fallback
// concatenates <p> text instead. Either way the output is capped at
// maxContentBytes.
func extract(body []byte, pageURL *url.URL) string {
	article, err := readability.FromReader(bytes.NewReader(body), pageURL)
	text := ""
	if err == nil {
		text = strings.TrimSpace(article.TextContent)
	}
	if len(text) < minReadableLength {
		if fallback := extractParagraphs(body); len(fallback) > len(text) {
			text = fallback
		}
	}
	return truncate(text, maxContentBytes)
}

func extractParagraphs(body []byte) string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return ""
	}
	var parts []string
	doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
		if text := strings.TrimSpace(sel.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n\n")
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
