package producers

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/fin-agent/backend/internal/llm"
	"github.com/fin-agent/backend/internal/storage/models"
)

// FundamentalProducer builds a fundamental-statement document from EDGAR
// company facts: formatted statement excerpts plus an LLM analysis narrative.
type FundamentalProducer struct {
	llmClient *llm.Client
	edgar     *edgarClient
}

func NewFundamentalProducer(llmClient *llm.Client, cfg Config) *FundamentalProducer {
	return &FundamentalProducer{
		llmClient: llmClient,
		edgar:     newEdgarClient(cfg.EdgarUserAgent, cfg.TimeoutSec),
	}
}

func (p *FundamentalProducer) Name() string { return "fundamental" }

// Concepts pulled per statement, in presentation order.
var (
	cashFlowConcepts = []string{
		"NetCashProvidedByUsedInOperatingActivities",
		"NetCashProvidedByUsedInInvestingActivities",
		"NetCashProvidedByUsedInFinancingActivities",
		"PaymentsToAcquirePropertyPlantAndEquipment",
		"PaymentsOfDividends",
	}
	incomeConcepts = []string{
		"Revenues",
		"RevenueFromContractWithCustomerExcludingAssessedTax",
		"GrossProfit",
		"OperatingIncomeLoss",
		"NetIncomeLoss",
	}
	balanceConcepts = []string{
		"Assets",
		"Liabilities",
		"StockholdersEquity",
		"CashAndCashEquivalentsAtCarryingValue",
		"LongTermDebtNoncurrent",
	}
)

func (p *FundamentalProducer) Produce(ctx context.Context, ticker string) (models.Document, error) {
	cik, err := p.edgar.resolveCIK(ctx, ticker)
	if err != nil {
		return nil, fmt.Errorf("%w: fundamental %s: %v", models.ErrProducer, ticker, err)
	}

	body, err := p.edgar.get(ctx,
		fmt.Sprintf("https://data.sec.gov/api/xbrl/companyfacts/CIK%s.json", cik))
	if err != nil {
		return nil, fmt.Errorf("%w: fundamental %s: %v", models.ErrProducer, ticker, err)
	}

	facts, err := parseCompanyFacts(body)
	if err != nil {
		return nil, fmt.Errorf("%w: fundamental %s: %v", models.ErrProducer, ticker, err)
	}

	cashFlow := formatStatement(facts, cashFlowConcepts)
	income := formatStatement(facts, incomeConcepts)
	balance := formatStatement(facts, balanceConcepts)

	if cashFlow == "" && income == "" && balance == "" {
		return nil, fmt.Errorf("%w: fundamental %s: no statement data", models.ErrProducer, ticker)
	}

	analysis, err := p.analyze(ctx, ticker, cashFlow, income, balance)
	if err != nil {
		return nil, fmt.Errorf("%w: fundamental %s: %v", models.ErrProducer, ticker, err)
	}

	return models.FundamentalDocument{
		Ticker:          ticker,
		CashFlowData:    cashFlow,
		IncomeStatement: income,
		BalanceSheet:    balance,
		Analysis:        analysis,
	}, nil
}

func (p *FundamentalProducer) analyze(ctx context.Context, ticker, cashFlow, income, balance string) (string, error) {
	systemPrompt := "You are an expert financial analyst specializing in corporate financial statement analysis."

	userPrompt := fmt.Sprintf(`Analyze the following financial data for %s and provide a comprehensive analysis covering:

1. CASH FLOW ANALYSIS: operating, investing and financing flows, free cash flow trends, capital allocation.
2. PROFITABILITY ANALYSIS: revenue growth, margins, year-over-year trends.
3. BALANCE SHEET STRENGTH: liquidity, leverage, working capital.
4. FINANCIAL HEALTH INDICATORS: key ratios, red flags, strengths.
5. FORWARD OUTLOOK: risks and opportunities implied by the trends.

**Cash Flow Statement:**
%s

**Income Statement:**
%s

**Balance Sheet:**
%s`, ticker, cashFlow, income, balance)

	resp, err := p.llmClient.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.3,
		MaxTokens:    1200,
	})
	if err != nil {
		return "", err
	}

	return resp.Content, nil
}

// annualValue is one fiscal-year observation of a concept.
type annualValue struct {
	fiscalYear int
	value      float64
}

type companyFacts map[string][]annualValue

// parseCompanyFacts extracts annual USD observations for us-gaap concepts,
// keeping the latest filing per fiscal year.
func parseCompanyFacts(body []byte) (companyFacts, error) {
	var raw struct {
		Facts struct {
			USGAAP map[string]struct {
				Units map[string][]struct {
					FY   int     `json:"fy"`
					FP   string  `json:"fp"`
					Form string  `json:"form"`
					Val  float64 `json:"val"`
				} `json:"units"`
			} `json:"us-gaap"`
		} `json:"facts"`
	}

	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse company facts: %w", err)
	}

	facts := make(companyFacts)
	for concept, data := range raw.Facts.USGAAP {
		byYear := make(map[int]float64)
		for _, obs := range data.Units["USD"] {
			if obs.FP != "FY" || obs.FY == 0 {
				continue
			}
			byYear[obs.FY] = obs.Val
		}
		if len(byYear) == 0 {
			continue
		}

		years := make([]int, 0, len(byYear))
		for y := range byYear {
			years = append(years, y)
		}
		sort.Ints(years)

		// Last four fiscal years are enough context for the narrative.
		if len(years) > 4 {
			years = years[len(years)-4:]
		}

		values := make([]annualValue, 0, len(years))
		for _, y := range years {
			values = append(values, annualValue{fiscalYear: y, value: byYear[y]})
		}
		facts[concept] = values
	}

	return facts, nil
}

func formatStatement(facts companyFacts, concepts []string) string {
	var b strings.Builder
	for _, concept := range concepts {
		values, ok := facts[concept]
		if !ok {
			continue
		}
		b.WriteString(concept + ":")
		for _, v := range values {
			fmt.Fprintf(&b, " FY%d=%.0f", v.fiscalYear, v.value)
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}
