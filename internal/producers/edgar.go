package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fin-agent/backend/pkg/logger"
)

// edgarClient wraps the SEC EDGAR endpoints shared by the fundamental and
// filing producers: ticker-to-CIK resolution, company facts, and filing
// submissions. The ticker map is fetched once and cached for the process
// lifetime.
type edgarClient struct {
	userAgent  string
	httpClient *http.Client

	mu   sync.Mutex
	ciks map[string]string
}

func newEdgarClient(userAgent string, timeoutSec int) *edgarClient {
	timeout := time.Duration(timeoutSec) * time.Second
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &edgarClient{
		userAgent:  userAgent,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (e *edgarClient) get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Accept-Encoding", "identity")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, fmt.Errorf("edgar returned status %d for %s", resp.StatusCode, url)
	}

	return io.ReadAll(resp.Body)
}

// resolveCIK maps a ticker symbol to its zero-padded ten-digit CIK.
func (e *edgarClient) resolveCIK(ctx context.Context, ticker string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.ciks == nil {
		body, err := e.get(ctx, "https://www.sec.gov/files/company_tickers.json")
		if err != nil {
			return "", fmt.Errorf("failed to load ticker map: %w", err)
		}

		var entries map[string]struct {
			CIK    int    `json:"cik_str"`
			Ticker string `json:"ticker"`
		}
		if err := json.Unmarshal(body, &entries); err != nil {
			return "", fmt.Errorf("failed to parse ticker map: %w", err)
		}

		e.ciks = make(map[string]string, len(entries))
		for _, entry := range entries {
			e.ciks[strings.ToUpper(entry.Ticker)] = fmt.Sprintf("%010d", entry.CIK)
		}

		logger.Debug("EDGAR ticker map loaded", zap.Int("entries", len(e.ciks)))
	}

	cik, ok := e.ciks[strings.ToUpper(ticker)]
	if !ok {
		return "", fmt.Errorf("ticker %s not found in EDGAR registry", ticker)
	}
	return cik, nil
}
