package producers

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/fin-agent/backend/internal/llm"
	"github.com/fin-agent/backend/internal/storage/models"
	"github.com/fin-agent/backend/pkg/logger"
)

// TechnicalProducer summarizes a ticker's recent daily bars into an analysis
// narrative. The indicator arithmetic here is deliberately shallow; the
// narrative depth comes from the text-generation capability.
type TechnicalProducer struct {
	llmClient  *llm.Client
	window     string
	httpClient *http.Client
}

func NewTechnicalProducer(llmClient *llm.Client, cfg Config) *TechnicalProducer {
	timeout := time.Duration(cfg.TimeoutSec) * time.Second
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	window := cfg.TechnicalWindow
	if window == "" {
		window = "60d"
	}

	return &TechnicalProducer{
		llmClient:  llmClient,
		window:     window,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (p *TechnicalProducer) Name() string { return "technical" }

func (p *TechnicalProducer) Produce(ctx context.Context, ticker string) (models.Document, error) {
	bars, err := p.fetchDailyBars(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("%w: technical %s: %v", models.ErrProducer, ticker, err)
	}

	days := windowDays(p.window)
	if len(bars) > days {
		bars = bars[len(bars)-days:]
	}
	if len(bars) == 0 {
		return nil, fmt.Errorf("%w: technical %s: no price history", models.ErrProducer, ticker)
	}

	summary := summarizeBars(ticker, bars)

	analysis := summary
	resp, err := p.llmClient.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: "You are an expert technical analyst. Write a dense, factual technical analysis from the price and volume summary provided. Reference concrete values and dates. No disclaimers.",
		UserPrompt:   fmt.Sprintf("Technical summary for %s over the last %s:\n\n%s", ticker, p.window, summary),
		Temperature:  0.3,
		MaxTokens:    800,
	})
	if err != nil {
		// Degraded mode: the raw summary still carries the numbers.
		logger.Warn("Technical narrative generation failed, indexing raw summary",
			zap.String("ticker", ticker), zap.Error(err))
	} else {
		analysis = resp.Content
	}

	return models.TechnicalDocument{
		Ticker:    ticker,
		Frequency: p.window,
		Analysis:  analysis,
	}, nil
}

type dailyBar struct {
	date   string
	open   float64
	high   float64
	low    float64
	close  float64
	volume float64
}

// fetchDailyBars pulls daily OHLCV history as CSV from the Stooq quote
// endpoint.
func (p *TechnicalProducer) fetchDailyBars(ctx context.Context, ticker string) ([]dailyBar, error) {
	symbol := strings.ToLower(ticker) + ".us"
	url := fmt.Sprintf("https://stooq.com/q/d/l/?s=%s&i=d", symbol)

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("price endpoint returned status %d", resp.StatusCode)
	}

	reader := csv.NewReader(resp.Body)
	reader.FieldsPerRecord = -1

	var bars []dailyBar
	first := true
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse price CSV: %w", err)
		}
		if first {
			first = false
			continue
		}
		if len(row) < 6 {
			continue
		}

		bar := dailyBar{date: row[0]}
		bar.open, _ = strconv.ParseFloat(row[1], 64)
		bar.high, _ = strconv.ParseFloat(row[2], 64)
		bar.low, _ = strconv.ParseFloat(row[3], 64)
		bar.close, _ = strconv.ParseFloat(row[4], 64)
		bar.volume, _ = strconv.ParseFloat(row[5], 64)
		bars = append(bars, bar)
	}

	return bars, nil
}

// summarizeBars formats the window into the factual summary handed to the
// narrative prompt: endpoints, range, simple averages, and recent closes.
func summarizeBars(ticker string, bars []dailyBar) string {
	first := bars[0]
	last := bars[len(bars)-1]

	high := bars[0].high
	low := bars[0].low
	var volumeSum, closeSum float64
	for _, b := range bars {
		if b.high > high {
			high = b.high
		}
		if b.low < low {
			low = b.low
		}
		volumeSum += b.volume
		closeSum += b.close
	}

	change := 0.0
	if first.close != 0 {
		change = (last.close - first.close) / first.close * 100
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s daily bars %s to %s (%d sessions)\n", ticker, first.date, last.date, len(bars))
	fmt.Fprintf(&b, "Close: %.2f -> %.2f (%+.2f%%)\n", first.close, last.close, change)
	fmt.Fprintf(&b, "Period high %.2f, low %.2f\n", high, low)
	fmt.Fprintf(&b, "Average close %.2f, average volume %.0f\n", closeSum/float64(len(bars)), volumeSum/float64(len(bars)))

	b.WriteString("Recent closes:\n")
	tail := bars
	if len(tail) > 10 {
		tail = tail[len(tail)-10:]
	}
	for _, bar := range tail {
		fmt.Fprintf(&b, "%s close %.2f volume %.0f\n", bar.date, bar.close, bar.volume)
	}

	return b.String()
}

// windowDays parses windows like "30d" or "6m" into a day count, defaulting
// to 60.
func windowDays(window string) int {
	window = strings.ToLower(strings.TrimSpace(window))
	if window == "" {
		return 60
	}

	unit := window[len(window)-1]
	n, err := strconv.Atoi(window[:len(window)-1])
	if err != nil || n <= 0 {
		return 60
	}

	switch unit {
	case 'd':
		return n
	case 'w':
		return n * 7
	case 'm':
		return n * 30
	case 'y':
		return n * 365
	default:
		return 60
	}
}
