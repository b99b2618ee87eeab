package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/fin-agent/backend/pkg/logger"
)

// Client performs web searches used to discover ticker symbols when a query
// names companies or sectors without explicit symbols.
type Client struct {
	serpAPIKey string
	maxResults int
	httpClient *http.Client
}

type SearchResult struct {
	Title   string
	URL     string
	Snippet string
}

func NewClient(serpAPIKey string, maxResults int, timeoutSec int) *Client {
	if maxResults == 0 {
		maxResults = 3
	}
	timeout := time.Duration(timeoutSec) * time.Second
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		serpAPIKey: serpAPIKey,
		maxResults: maxResults,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Search runs the query and returns ranked results. The answer box, when
// present, is preferred over organic results since it usually carries the
// symbol directly.
func (c *Client) Search(ctx context.Context, query string) ([]SearchResult, error) {
	logger.Info("Performing web search", zap.String("query", query))

	if c.serpAPIKey == "" {
		return nil, fmt.Errorf("search capability not configured")
	}

	params := url.Values{}
	params.Add("engine", "google")
	params.Add("q", query)
	params.Add("api_key", c.serpAPIKey)
	params.Add("num", fmt.Sprintf("%d", c.maxResults))

	req, err := http.NewRequestWithContext(ctx, "GET",
		fmt.Sprintf("https://serpapi.com/search?%s", params.Encode()), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("search returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var searchResp struct {
		AnswerBox struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
			Answer  string `json:"answer"`
		} `json:"answer_box"`
		OrganicResults []struct {
			Title   string `json:"title"`
			Link    string `json:"link"`
			Snippet string `json:"snippet"`
		} `json:"organic_results"`
	}

	if err := json.Unmarshal(body, &searchResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if searchResp.AnswerBox.Title != "" || searchResp.AnswerBox.Answer != "" {
		snippet := searchResp.AnswerBox.Snippet
		if snippet == "" {
			snippet = searchResp.AnswerBox.Answer
		}
		result := SearchResult{
			Title:   searchResp.AnswerBox.Title,
			URL:     searchResp.AnswerBox.Link,
			Snippet: snippet,
		}
		logger.Info("Web search answered from answer box")
		return []SearchResult{result}, nil
	}

	results := make([]SearchResult, 0, len(searchResp.OrganicResults))
	for i, r := range searchResp.OrganicResults {
		if i >= c.maxResults {
			break
		}
		results = append(results, SearchResult{
			Title:   r.Title,
			URL:     r.Link,
			Snippet: r.Snippet,
		})
	}

	results = c.enrichThinResults(ctx, results)

	logger.Info("Web search completed", zap.Int("results", len(results)))

	return results, nil
}

// Snippets shorter than this together rarely carry a ticker symbol.
const thinResultChars = 200

// enrichThinResults scrapes the top result page when the snippets alone are
// too thin for symbol extraction. Scrape failures leave the results as-is.
func (c *Client) enrichThinResults(ctx context.Context, results []SearchResult) []SearchResult {
	if len(results) == 0 || len(ResultText(results)) >= thinResultChars {
		return results
	}
	if results[0].URL == "" {
		return results
	}

	page, err := c.ScrapePage(ctx, results[0].URL)
	if err != nil {
		logger.Warn("Failed to scrape thin search result", zap.Error(err))
		return results
	}
	if page != "" {
		results[0].Snippet = strings.TrimSpace(results[0].Snippet + "\n" + page)
	}

	return results
}

// ResultText flattens results into the text blob handed to the symbol
// extraction prompt.
func ResultText(results []SearchResult) string {
	var b strings.Builder
	for _, r := range results {
		b.WriteString(r.Title)
		b.WriteString("\n")
		b.WriteString(r.Snippet)
		b.WriteString("\n\n")
	}
	return strings.TrimSpace(b.String())
}

// ScrapePage fetches one result page and returns its visible text, used when
// snippets alone are too thin to carry a symbol.
func (c *Client) ScrapePage(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	doc.Find("script, style, nav, footer, header").Remove()
	text := strings.TrimSpace(doc.Find("body").Text())

	if len(text) > 5000 {
		text = text[:5000]
	}

	return text, nil
}
