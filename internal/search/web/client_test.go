package web

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResultText(t *testing.T) {
	results := []SearchResult{
		{Title: "Apple Inc (AAPL)", Snippet: "AAPL trades on NASDAQ."},
		{Title: "Microsoft (MSFT)", Snippet: "MSFT quote and news."},
	}

	text := ResultText(results)

	assert.Equal(t, "Apple Inc (AAPL)\nAAPL trades on NASDAQ.\n\nMicrosoft (MSFT)\nMSFT quote and news.", text)
	assert.Empty(t, ResultText(nil))
}

func TestSearchRequiresAPIKey(t *testing.T) {
	c := NewClient("", 3, 1)

	_, err := c.Search(context.Background(), "semiconductor tickers")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not configured")
}

func TestEnrichThinResultsScrapesTopResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html><body><p>NVIDIA Corporation trades as NVDA on NASDAQ.</p></body></html>`))
	}))
	defer server.Close()

	c := NewClient("key", 3, 5)
	results := c.enrichThinResults(context.Background(), []SearchResult{
		{Title: "Chip stocks", URL: server.URL, Snippet: "Top semiconductor names."},
	})

	require.Len(t, results, 1)
	assert.Contains(t, results[0].Snippet, "Top semiconductor names.")
	assert.Contains(t, results[0].Snippet, "trades as NVDA")
}

func TestEnrichThinResultsSkipsRichSnippets(t *testing.T) {
	var scraped bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		scraped = true
		w.Write([]byte("<html><body>page</body></html>"))
	}))
	defer server.Close()

	rich := SearchResult{
		Title:   "Semiconductor sector overview",
		URL:     server.URL,
		Snippet: strings.Repeat("NVDA AMD AVGO TSM INTC MU QCOM and peers lead the sector. ", 5),
	}

	c := NewClient("key", 3, 5)
	results := c.enrichThinResults(context.Background(), []SearchResult{rich})

	assert.Equal(t, rich.Snippet, results[0].Snippet)
	assert.False(t, scraped, "rich snippets should not trigger a page fetch")
}

func TestScrapePageStripsChrome(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`<html><body>
			<nav>site nav</nav>
			<script>track()</script>
			<p>NVDA is the ticker for NVIDIA.</p>
			<footer>legal</footer>
		</body></html>`))
	}))
	defer server.Close()

	c := NewClient("key", 3, 5)
	text, err := c.ScrapePage(context.Background(), server.URL)
	require.NoError(t, err)

	assert.Contains(t, text, "NVDA is the ticker for NVIDIA.")
	assert.NotContains(t, text, "site nav")
	assert.NotContains(t, text, "track()")
	assert.NotContains(t, text, "legal")
}
