// Package websearch queries DuckDuckGo's HTML endpoint for fallback evidence.
package websearch

import (
	"context"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/liliang-cn/synergereader/internal/domain"
	"go.uber.org/zap"
)

const (
	// DefaultEndpoint is the no-JavaScript DuckDuckGo search page
	DefaultEndpoint = "https://html.duckduckgo.com/html/"
	defaultLimit    = 3
	maxBodyBytes    = 2 << 20
	userAgent       = "Mozilla/5.0 (compatible; SynergeReader/1.0)"
)

// resultPatterns are tried in order until one matches. Each names the groups
// url and title, and optionally snippet.
var resultPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?s)<a[^>]*class="result__a"[^>]*href="(?P<url>[^"]+)"[^>]*>(?P<title>.*?)</a>.*?<a[^>]*class="result__snippet"[^>]*>(?P<snippet>.*?)</a>`),
	regexp.MustCompile(`(?s)<a[^>]*href="(?P<url>[^"]+)"[^>]*class="result__a"[^>]*>(?P<title>.*?)</a>`),
	regexp.MustCompile(`(?s)<h2[^>]*class="result__title"[^>]*>\s*<a[^>]*href="(?P<url>[^"]+)"[^>]*>(?P<title>.*?)</a>`),
	regexp.MustCompile(`(?s)<a[^>]*href=['"](?P<url>[^'"]+)['"][^>]*class=['"]result-link['"][^>]*>(?P<title>.*?)</a>`),
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]+>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// Client searches DuckDuckGo. Search never fails: any problem yields
// placeholder results.
type Client struct {
	endpoint string
	client   *http.Client
	logger   *zap.Logger
}

// NewClient creates a search client with a per-request timeout
func NewClient(endpoint string, timeout time.Duration, logger *zap.Logger) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// Search returns at most limit results for query, never an empty slice
func (c *Client) Search(ctx context.Context, query string, limit int) []domain.WebResult {
	if limit <= 0 {
		limit = defaultLimit
	}

	results, err := c.search(ctx, query, limit)
	if err != nil {
		c.logger.Warn("Web search failed, using placeholder results",
			zap.String("query", query),
			zap.Error(err),
		)
		return Placeholders(query, limit)
	}
	return results
}

func (c *Client) search(ctx context.Context, query string, limit int) ([]domain.WebResult, error) {
	form := url.Values{"q": {query}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &domain.TransportError{Backend: "search", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &domain.TransportError{Backend: "search", Status: resp.StatusCode, Err: fmt.Errorf("%s", resp.Status)}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, &domain.TransportError{Backend: "search", Err: err}
	}

	results := ParseResults(string(body), limit)
	if len(results) == 0 {
		return nil, &domain.DecodeError{Source: "search", Err: fmt.Errorf("no result pattern matched")}
	}
	return results, nil
}

// ParseResults extracts up to limit results from a DuckDuckGo HTML page. It
// uses the first pattern that yields any result.
func ParseResults(body string, limit int) []domain.WebResult {
	for _, re := range resultPatterns {
		matches := re.FindAllStringSubmatch(body, -1)
		if len(matches) == 0 {
			continue
		}

		urlIdx, titleIdx, snippetIdx := re.SubexpIndex("url"), re.SubexpIndex("title"), re.SubexpIndex("snippet")

		var results []domain.WebResult
		for _, m := range matches {
			link := resolveURL(m[urlIdx])
			title := cleanText(m[titleIdx])
			if link == "" || title == "" {
				continue
			}

			r := domain.WebResult{Title: title, URL: link}
			if snippetIdx >= 0 {
				r.Snippet = cleanText(m[snippetIdx])
			}
			results = append(results, r)
			if len(results) == limit {
				break
			}
		}
		if len(results) > 0 {
			return results
		}
	}
	return nil
}

// resolveURL unwraps DuckDuckGo redirect links and drops ad links
func resolveURL(raw string) string {
	raw = html.UnescapeString(strings.TrimSpace(raw))
	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	if strings.HasSuffix(u.Host, "duckduckgo.com") {
		if target := u.Query().Get("uddg"); target != "" {
			return target
		}
		if strings.HasPrefix(u.Path, "/y.js") {
			return ""
		}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}

func cleanText(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}

// Placeholders fabricates limit deterministic results that point at a search
// page for query, so a web citation list is never empty.
func Placeholders(query string, limit int) []domain.WebResult {
	if limit <= 0 {
		limit = defaultLimit
	}
	searchURL := "https://duckduckgo.com/?q=" + url.QueryEscape(query)

	results := make([]domain.WebResult, limit)
	for i := range results {
		results[i] = domain.WebResult{
			Title:   fmt.Sprintf("Search result %d for: %s", i+1, query),
			URL:     fmt.Sprintf("%s&ia=web&p=%d", searchURL, i+1),
			Snippet: fmt.Sprintf("Live web results for %q were unavailable; see the linked search page for current information.", query),
		}
	}
	return results
}
