package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	webUserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 14_7_2) AppleWebKit/537.36"
	maxRedirects = 5
)

var (
	scriptRe = regexp.MustCompile(`(?is)<script[\s\S]*?</script>`)
	styleRe  = regexp.MustCompile(`(?is)<style[\s\S]*?</style>`)
	tagRe    = regexp.MustCompile(`<[^>]+>`)
	spaceRe  = regexp.MustCompile(`[ \t]+`)
	blankRe  = regexp.MustCompile(`\n{3,}`)
	titleRe  = regexp.MustCompile(`(?is)<title[^>]*>([\s\S]*?)</title>`)
)

func stripTags(s string) string {
	s = scriptRe.ReplaceAllString(s, "")
	s = styleRe.ReplaceAllString(s, "")
	s = tagRe.ReplaceAllString(s, "")
	return strings.TrimSpace(htmlUnescape(s))
}

func htmlUnescape(s string) string {
	replacer := strings.NewReplacer(
		"&amp;", "&", "&lt;", "<", "&gt;", ">",
		"&quot;", `"`, "&#39;", "'", "&nbsp;", " ",
	)
	return replacer.Replace(s)
}

func normalizeWhitespace(s string) string {
	s = spaceRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(blankRe.ReplaceAllString(s, "\n\n"))
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("only http/https allowed, got %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing domain")
	}
	return nil
}

func newWebClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			return nil
		},
	}
}

// WebSearchTool queries a SearXNG instance when one is configured and falls
// back to the DuckDuckGo instant-answer API otherwise. Failures are returned
// as tool output text, not as errors, so the reasoning loop can react.
type WebSearchTool struct {
	searxngURL string
	maxResults int
	client     *http.Client
}

// NewWebSearchTool builds the search tool. searxngURL may be empty.
func NewWebSearchTool(searxngURL string, maxResults int) *WebSearchTool {
	if maxResults < 1 || maxResults > 10 {
		maxResults = 5
	}
	return &WebSearchTool{
		searxngURL: strings.TrimRight(searxngURL, "/"),
		maxResults: maxResults,
		client:     newWebClient(10 * time.Second),
	}
}

func (t *WebSearchTool) Name() string { return "web_search" }

func (t *WebSearchTool) Description() string {
	return "Search the web for information. Returns titles, URLs, and snippets."
}

func (t *WebSearchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"query": map[string]any{"type": "string", "description": "Search query"},
			"count": map[string]any{
				"type":        "integer",
				"description": "Number of results to return (default 5, max 10)",
				"minimum":     1,
				"maximum":     10,
			},
		},
		"required": []string{"query"},
	}
}

func (t *WebSearchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	query, err := stringArg(args, "query")
	if err != nil {
		return "", err
	}
	n := intArg(args, "count", t.maxResults)
	if n < 1 {
		n = 1
	}
	if n > 10 {
		n = 10
	}

	if t.searxngURL != "" {
		return t.searchSearxng(ctx, query, n)
	}
	return t.searchDuckDuckGo(ctx, query, n)
}

type searxngResponse struct {
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

func (t *WebSearchTool) searchSearxng(ctx context.Context, query string, n int) (string, error) {
	endpoint := fmt.Sprintf("%s/search?q=%s&format=json&pageno=1", t.searxngURL, url.QueryEscape(query))

	body, err := t.get(ctx, endpoint)
	if err != nil {
		return fmt.Sprintf("Error: SearXNG connection failed - %v", err), nil
	}

	var decoded searxngResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Sprintf("Error: invalid SearXNG response - %v", err), nil
	}

	results := decoded.Results
	if len(results) > n {
		results = results[:n]
	}
	if len(results) == 0 {
		return "No results for: " + query, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Results for: %s (via SearXNG)\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "\n%d. %s\n   %s", i+1, r.Title, r.URL)
		if snippet := stripTags(r.Content); snippet != "" {
			fmt.Fprintf(&sb, "\n   %s", snippet)
		}
	}
	return sb.String(), nil
}

type duckDuckGoResponse struct {
	AbstractText string `json:"AbstractText"`
	Results      []struct {
		Title    string `json:"Title"`
		FirstURL string `json:"FirstURL"`
		Text     string `json:"Text"`
	} `json:"Results"`
	RelatedTopics []struct {
		Text     string `json:"Text"`
		FirstURL string `json:"FirstURL"`
	} `json:"RelatedTopics"`
}

func (t *WebSearchTool) searchDuckDuckGo(ctx context.Context, query string, n int) (string, error) {
	endpoint := fmt.Sprintf("https://api.duckduckgo.com/?q=%s&format=json&no_html=1", url.QueryEscape(query))

	body, err := t.get(ctx, endpoint)
	if err != nil {
		return fmt.Sprintf("Error: DuckDuckGo connection failed - %v", err), nil
	}

	var decoded duckDuckGoResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return fmt.Sprintf("Error: invalid DuckDuckGo response - %v", err), nil
	}

	type result struct{ title, url, content string }
	var results []result

	if decoded.AbstractText != "" {
		results = append(results, result{title: "Instant Answer", content: decoded.AbstractText})
	}
	for _, r := range decoded.Results {
		results = append(results, result{title: r.Title, url: r.FirstURL, content: r.Text})
	}
	for _, r := range decoded.RelatedTopics {
		if r.FirstURL != "" {
			results = append(results, result{title: r.Text, url: r.FirstURL})
		}
	}
	if len(results) > n {
		results = results[:n]
	}
	if len(results) == 0 {
		return "No results for: " + query, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Results for: %s (via DuckDuckGo)\n", query)
	for i, r := range results {
		fmt.Fprintf(&sb, "\n%d. %s\n   %s", i+1, r.title, r.url)
		if r.content != "" {
			fmt.Fprintf(&sb, "\n   %s", r.content)
		}
	}
	return sb.String(), nil
}

func (t *WebSearchTool) get(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, 4<<20))
}

// WebFetchTool fetches a URL and extracts readable text. The result is a
// JSON object string describing the fetch, mirroring the tool contract's
// structured payload option.
type WebFetchTool struct {
	maxChars int
	client   *http.Client
}

// NewWebFetchTool builds the fetch tool. maxChars caps extracted text length.
func NewWebFetchTool(maxChars int) *WebFetchTool {
	if maxChars < 100 {
		maxChars = 50000
	}
	return &WebFetchTool{
		maxChars: maxChars,
		client:   newWebClient(30 * time.Second),
	}
}

func (t *WebFetchTool) Name() string { return "web_fetch" }

func (t *WebFetchTool) Description() string {
	return "Fetch a URL and extract readable text content."
}

func (t *WebFetchTool) Parameters() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"url":      map[string]any{"type": "string", "description": "URL to fetch"},
			"maxChars": map[string]any{"type": "integer", "minimum": 100},
		},
		"required": []string{"url"},
	}
}

type fetchResult struct {
	URL       string `json:"url"`
	FinalURL  string `json:"finalUrl,omitempty"`
	Status    int    `json:"status,omitempty"`
	Extractor string `json:"extractor,omitempty"`
	Truncated bool   `json:"truncated"`
	Length    int    `json:"length"`
	Text      string `json:"text,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (t *WebFetchTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	rawURL, err := stringArg(args, "url")
	if err != nil {
		return "", err
	}
	maxChars := intArg(args, "maxChars", t.maxChars)
	if maxChars < 100 {
		maxChars = t.maxChars
	}

	if err := validateURL(rawURL); err != nil {
		return encodeFetchResult(fetchResult{URL: rawURL, Error: "URL validation failed: " + err.Error()}), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return encodeFetchResult(fetchResult{URL: rawURL, Error: err.Error()}), nil
	}
	req.Header.Set("User-Agent", webUserAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		return encodeFetchResult(fetchResult{URL: rawURL, Error: err.Error()}), nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return encodeFetchResult(fetchResult{URL: rawURL, Error: err.Error()}), nil
	}

	text, extractor := extractText(body, resp.Header.Get("Content-Type"))

	// maxChars counts characters, and a byte cut could split a rune.
	runes := []rune(text)
	truncated := len(runes) > maxChars
	if truncated {
		text = string(runes[:maxChars])
	}

	return encodeFetchResult(fetchResult{
		URL:       rawURL,
		FinalURL:  resp.Request.URL.String(),
		Status:    resp.StatusCode,
		Extractor: extractor,
		Truncated: truncated,
		Length:    utf8.RuneCountInString(text),
		Text:      text,
	}), nil
}

func extractText(body []byte, contentType string) (text, extractor string) {
	raw := string(body)

	switch {
	case strings.Contains(contentType, "application/json"):
		var v any
		if err := json.Unmarshal(body, &v); err == nil {
			if pretty, err := json.MarshalIndent(v, "", "  "); err == nil {
				return string(pretty), "json"
			}
		}
		return raw, "raw"

	case strings.Contains(contentType, "text/html") || looksLikeHTML(raw):
		content := normalizeWhitespace(stripTags(raw))
		if m := titleRe.FindStringSubmatch(raw); m != nil {
			if title := strings.TrimSpace(m[1]); title != "" {
				content = "# " + title + "\n\n" + content
			}
		}
		return content, "html"

	default:
		return raw, "raw"
	}
}

func looksLikeHTML(s string) bool {
	head := strings.ToLower(strings.TrimSpace(s))
	if len(head) > 256 {
		head = head[:256]
	}
	return strings.HasPrefix(head, "<!doctype") || strings.HasPrefix(head, "<html")
}

func encodeFetchResult(r fetchResult) string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"url":%q,"error":"encode failure"}`, r.URL)
	}
	return string(data)
}
