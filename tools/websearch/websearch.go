// Package websearch exposes web search as the web_search agent tool,
// backed by the Brave Search API with readable-content extraction.
package websearch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/go-shiori/go-readability"

	sentinel "github.com/key-r-code/drexel-sentinel"
)

// maxResults caps how many search hits are fetched and returned.
const maxResults = 3

// maxPageChars caps the extracted text per page kept in the tool output.
const maxPageChars = 4000

var braveBaseURL = "https://api.search.brave.com/res/v1/web/search"

// Tool performs web searches via the Brave API.
type Tool struct {
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures a websearch Tool.
type Option func(*Tool)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Tool) { t.httpClient = c }
}

// WithLogger sets a structured logger for the tool.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tool) { t.logger = l }
}

// New creates a websearch Tool. Requires a Brave API key.
func New(apiKey string, opts ...Option) *Tool {
	t := &Tool{
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     slog.New(discardHandler{}),
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

type searchResult struct {
	Title   string
	URL     string
	Snippet string
	Content string // extracted page text, may be empty
}

func (t *Tool) Definitions() []sentinel.ToolDefinition {
	return []sentinel.ToolDefinition{{
		Name:        "web_search",
		Description: "Search the web for current information. Use for campus news, deadlines, events, or anything not covered by course documents.",
		Parameters:  json.RawMessage(`{"type":"object","properties":{"query":{"type":"string","description":"Search query optimized for search engines"}},"required":["query"]}`),
	}}
}

func (t *Tool) Execute(ctx context.Context, _ string, args json.RawMessage) (sentinel.ToolResult, error) {
	var params struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return sentinel.ToolResult{Error: "invalid args: " + err.Error()}, nil
	}
	if strings.TrimSpace(params.Query) == "" {
		return sentinel.ToolResult{Error: "query is required"}, nil
	}

	content, err := t.Search(ctx, params.Query)
	if err != nil {
		return sentinel.ToolResult{Error: err.Error()}, nil
	}
	return sentinel.ToolResult{Content: content}, nil
}

// Search runs a Brave query, extracts readable text from the top hits
// concurrently, and formats the results for the model.
func (t *Tool) Search(ctx context.Context, query string) (string, error) {
	results, err := t.braveSearch(ctx, query)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return fmt.Sprintf("No results found for %q.", query), nil
	}

	t.fetchAndExtract(ctx, results)
	return formatResults(results), nil
}

func (t *Tool) braveSearch(ctx context.Context, query string) ([]*searchResult, error) {
	u := fmt.Sprintf("%s?q=%s&count=%d", braveBaseURL, url.QueryEscape(query), maxResults)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Subscription-Token", t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("brave search error: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("brave API %d: %s", resp.StatusCode, string(body))
	}

	var data struct {
		Web struct {
			Results []struct {
				Title       string `json:"title"`
				URL         string `json:"url"`
				Description string `json:"description"`
			} `json:"results"`
		} `json:"web"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("brave parse error: %w", err)
	}

	var results []*searchResult
	for _, r := range data.Web.Results {
		results = append(results, &searchResult{Title: r.Title, URL: r.URL, Snippet: r.Description})
		if len(results) == maxResults {
			break
		}
	}
	t.logger.Debug("websearch: brave results", "query", query, "count", len(results))
	return results, nil
}

// fetchAndExtract pulls each result page concurrently and extracts its
// readable text. Failures leave Content empty; the snippet still carries
// the result.
func (t *Tool) fetchAndExtract(ctx context.Context, results []*searchResult) {
	var wg sync.WaitGroup
	for _, r := range results {
		wg.Add(1)
		go func(res *searchResult) {
			defer wg.Done()
			fetchCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
			defer cancel()

			req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, res.URL, nil)
			if err != nil {
				return
			}
			req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; SentinelBot/1.0)")

			resp, err := t.httpClient.Do(req)
			if err != nil {
				t.logger.Debug("websearch: fetch failed", "url", res.URL, "error", err)
				return
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				return
			}

			body, err := io.ReadAll(io.LimitReader(resp.Body, 512<<10))
			if err != nil {
				return
			}

			parsedURL, _ := url.Parse(res.URL)
			article, err := readability.FromReader(strings.NewReader(string(body)), parsedURL)
			if err != nil || article.TextContent == "" {
				return
			}
			text := strings.TrimSpace(article.TextContent)
			if len(text) > maxPageChars {
				text = text[:maxPageChars]
			}
			res.Content = text
		}(r)
	}
	wg.Wait()
}

func formatResults(results []*searchResult) string {
	var out strings.Builder
	for i, r := range results {
		if i > 0 {
			out.WriteString("\n\n")
		}
		fmt.Fprintf(&out, "[%d] %s\n%s\n", i+1, r.Title, r.URL)
		if r.Content != "" {
			out.WriteString(r.Content)
		} else {
			out.WriteString(r.Snippet)
		}
	}
	return out.String()
}
