package intent

import (
	"context"
	"encoding/json"
	"strings"

	"go.uber.org/zap"

	"github.com/fin-agent/backend/internal/llm"
	"github.com/fin-agent/backend/internal/metrics"
	"github.com/fin-agent/backend/internal/search/web"
	"github.com/fin-agent/backend/internal/storage/models"
	"github.com/fin-agent/backend/pkg/logger"
)

// Completer is the slice of the LLM client the extractor needs.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Searcher discovers tickers on the web when none are named explicitly.
type Searcher interface {
	Search(ctx context.Context, query string) ([]web.SearchResult, error)
}

// Extractor turns a free-text financial question into a QueryIntent. Every
// capability call is independently fault-isolated: a failure degrades that
// one field to its documented fallback, never the whole extraction.
type Extractor struct {
	llmClient Completer
	searcher  Searcher
}

func NewExtractor(llmClient Completer, searcher Searcher) *Extractor {
	return &Extractor{
		llmClient: llmClient,
		searcher:  searcher,
	}
}

// Extract never fails: the worst case is an intent with the raw query, no
// tickers, type OTHER, and the default time frame.
func (e *Extractor) Extract(ctx context.Context, query string) *models.QueryIntent {
	enhanced := e.Enhance(ctx, query)

	tickers := e.extractExplicitTickers(ctx, enhanced)
	if len(tickers) == 0 {
		tickers = e.searchForTickers(ctx, enhanced)
	}

	intent := &models.QueryIntent{
		OriginalQuery: query,
		EnhancedQuery: enhanced,
		Tickers:       tickers,
		QueryType:     e.classify(ctx, enhanced),
		TimeFrame:     e.extractTimeFrame(ctx, enhanced),
	}

	logger.Info("Query intent extracted",
		zap.Strings("tickers", intent.Tickers),
		zap.String("query_type", string(intent.QueryType)),
	)

	return intent
}

// Enhance rewrites the query to be more specific, resolving vague relative
// time references. Falls back to the raw query unmodified on any failure.
func (e *Extractor) Enhance(ctx context.Context, query string) string {
	systemPrompt := `You are a financial query enhancement assistant. Your task is to:
1. Make vague financial queries more specific and detailed
2. Preserve all information from the original query
3. Add specificity around timeframes if they're vague (e.g., "past weeks" -> "past 2 weeks")
4. DO NOT invent information not implied in the original query
5. Return ONLY the enhanced query text with no additional explanation`

	resp, err := e.llmClient.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   "Enhance this financial query: " + query,
		Temperature:  0.1,
		MaxTokens:    200,
	})
	if err != nil {
		logger.Warn("Query enhancement failed, using original", zap.Error(err))
		return query
	}

	enhanced := strings.TrimSpace(resp.Content)
	if enhanced == "" {
		return query
	}

	logger.Debug("Query enhanced",
		zap.String("original", query),
		zap.String("enhanced", enhanced),
	)

	return enhanced
}

func (e *Extractor) extractExplicitTickers(ctx context.Context, query string) []string {
	systemPrompt := `Extract all stock ticker symbols mentioned in the text.
Return ONLY a JSON array of ticker symbols without any explanation.
If no tickers are found, return an empty array.
Example: ["AAPL", "MSFT", "GOOGL"]`

	resp, err := e.llmClient.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   query,
		Temperature:  0.1,
		MaxTokens:    100,
	})
	if err != nil {
		logger.Warn("Explicit ticker extraction failed", zap.Error(err))
		return nil
	}

	return parseTickerArray(resp.Content)
}

// searchForTickers is the fallback path: formulate a search query, run it,
// then extract symbols from the results. Any sub-step failing yields an
// empty list, not an error.
func (e *Extractor) searchForTickers(ctx context.Context, query string) []string {
	if e.searcher == nil {
		return nil
	}

	metrics.TickerSearchFallback.Inc()

	systemPrompt := `Convert this financial query into a search query specifically designed to find
stock ticker symbols for the companies or sector mentioned. If a sector is
mentioned, search for that sector's index constituents.
Do not add any new information to the query.
Return ONLY the search query with no additional text.`

	resp, err := e.llmClient.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   query,
		Temperature:  0.5,
		MaxTokens:    100,
	})
	if err != nil {
		logger.Warn("Search query formulation failed", zap.Error(err))
		return nil
	}

	searchQuery := strings.TrimSpace(resp.Content)
	results, err := e.searcher.Search(ctx, searchQuery)
	if err != nil || len(results) == 0 {
		logger.Warn("Ticker web search returned nothing", zap.Error(err))
		return nil
	}

	extractPrompt := `Extract all stock ticker symbols from this search result text.
Return ONLY a JSON array of ticker symbols without any explanation.
If no tickers are found, return an empty array.`

	resp, err = e.llmClient.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: extractPrompt,
		UserPrompt:   web.ResultText(results),
		Temperature:  0.1,
		MaxTokens:    100,
	})
	if err != nil {
		logger.Warn("Ticker extraction from search results failed", zap.Error(err))
		return nil
	}

	return parseTickerArray(resp.Content)
}

func (e *Extractor) classify(ctx context.Context, query string) models.QueryType {
	systemPrompt := `Categorize this financial query into exactly ONE of these types:
- PRICE_CHECK: Queries about current or historical prices
- PERFORMANCE_ANALYSIS: Queries about performance over time
- COMPARISON: Queries comparing multiple stocks
- NEWS: Queries about recent news or events
- FUNDAMENTALS: Queries about financial fundamentals
- PREDICTION: Queries about future performance
- OTHER: Any other type of query

Return ONLY the category name with no explanation.`

	resp, err := e.llmClient.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   query,
		Temperature:  0.1,
		MaxTokens:    20,
	})
	if err != nil {
		logger.Warn("Query classification failed", zap.Error(err))
		return models.QueryTypeOther
	}

	label := models.QueryType(strings.ToUpper(strings.TrimSpace(resp.Content)))
	switch label {
	case models.QueryTypePriceCheck, models.QueryTypePerformance,
		models.QueryTypeComparison, models.QueryTypeNews,
		models.QueryTypeFundamentals, models.QueryTypePrediction:
		return label
	}
	return models.QueryTypeOther
}

func (e *Extractor) extractTimeFrame(ctx context.Context, query string) models.TimeFrame {
	systemPrompt := `Determine how many days, weeks, months or years the query refers to and
return the time frame in number of days as JSON:
{"period_type": "relative", "start_date": null, "end_date": null, "relative_period": 30}
Return ONLY the JSON with no additional text.`

	resp, err := e.llmClient.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   query,
		Temperature:  0.1,
		MaxTokens:    150,
	})
	if err != nil {
		logger.Warn("Time frame extraction failed", zap.Error(err))
		return models.DefaultTimeFrame()
	}

	var tf models.TimeFrame
	if err := json.Unmarshal([]byte(extractJSON(resp.Content, '{', '}')), &tf); err != nil {
		logger.Debug("Time frame output not parseable, using default",
			zap.String("output", resp.Content))
		return models.DefaultTimeFrame()
	}

	if tf.PeriodType == "" {
		tf.PeriodType = "none"
	}

	return tf
}

// parseTickerArray defensively parses a JSON array of symbols out of model
// output. Malformed output is an empty list, not an error.
func parseTickerArray(content string) []string {
	var symbols []string
	if err := json.Unmarshal([]byte(extractJSON(content, '[', ']')), &symbols); err != nil {
		logger.Debug("Ticker output not parseable", zap.String("output", content))
		return nil
	}

	seen := make(map[string]bool, len(symbols))
	var tickers []string
	for _, s := range symbols {
		ticker := strings.ToUpper(strings.TrimSpace(s))
		if ticker == "" || seen[ticker] {
			continue
		}
		seen[ticker] = true
		tickers = append(tickers, ticker)
	}

	return tickers
}

// extractJSON trims model chatter around a JSON value by slicing between the
// outermost delimiters.
func extractJSON(content string, open, close byte) string {
	start := strings.IndexByte(content, open)
	end := strings.LastIndexByte(content, close)
	if start == -1 || end == -1 || end < start {
		return content
	}
	return content[start : end+1]
}
