package models

import "time"

// Source identifies which pipeline produced a chunk. The values double as
// the citation vocabulary ([TICKER-SOURCE]) in generated answers.
type Source string

const (
	SourceFiling      Source = "sec_filing"
	SourceTechnical   Source = "technical_analysis"
	SourceFundamental Source = "fundamental_analysis"
)

// Document is the tagged union of the three producer outputs. The chunker
// dispatches on the concrete type, never on field presence.
type Document interface {
	DocTicker() string
	DocSource() Source
}

type TechnicalDocument struct {
	Ticker    string
	Frequency string
	Analysis  string
}

func (d TechnicalDocument) DocTicker() string { return d.Ticker }
func (d TechnicalDocument) DocSource() Source { return SourceTechnical }

type FundamentalDocument struct {
	Ticker          string
	CashFlowData    string
	IncomeStatement string
	BalanceSheet    string
	Analysis        string
}

func (d FundamentalDocument) DocTicker() string { return d.Ticker }
func (d FundamentalDocument) DocSource() Source { return SourceFundamental }

// FilingSection is one labeled item of a regulatory filing, in document order.
type FilingSection struct {
	Label string
	Text  string
}

type FilingDocument struct {
	Ticker          string
	FormType        string
	AccessionNumber string
	FilingDate      string
	Sections        []FilingSection
}

func (d FilingDocument) DocTicker() string { return d.Ticker }
func (d FilingDocument) DocSource() Source { return SourceFiling }

// Chunk is the atomic indexed unit: a bounded span of text plus provenance.
// Immutable once created.
type Chunk struct {
	Text      string `json:"text"`
	Source    Source `json:"source"`
	Ticker    string `json:"ticker"`
	Section   string `json:"section,omitempty"`
	Frequency string `json:"frequency,omitempty"`
}

// ProvenanceLabel is the grouping key used for context assembly and
// citations: ticker + filing section when present, ticker + source otherwise.
func (c Chunk) ProvenanceLabel() string {
	if c.Section != "" {
		return c.Ticker + " - " + c.Section
	}
	return c.Ticker + " - " + string(c.Source)
}

type QueryType string

const (
	QueryTypePriceCheck   QueryType = "PRICE_CHECK"
	QueryTypePerformance  QueryType = "PERFORMANCE_ANALYSIS"
	QueryTypeComparison   QueryType = "COMPARISON"
	QueryTypeNews         QueryType = "NEWS"
	QueryTypeFundamentals QueryType = "FUNDAMENTALS"
	QueryTypePrediction   QueryType = "PREDICTION"
	QueryTypeOther        QueryType = "OTHER"
)

// TimeFrame describes the time window implied by a query, in days.
type TimeFrame struct {
	PeriodType     string  `json:"period_type"`
	StartDate      *string `json:"start_date"`
	EndDate        *string `json:"end_date"`
	RelativePeriod *int    `json:"relative_period"`
}

// DefaultTimeFrame is the documented fallback when time-frame extraction
// fails or yields nothing parseable.
func DefaultTimeFrame() TimeFrame {
	return TimeFrame{PeriodType: "none"}
}

// QueryIntent is produced once per user query and immutable afterwards.
type QueryIntent struct {
	OriginalQuery string
	EnhancedQuery string
	Tickers       []string
	QueryType     QueryType
	TimeFrame     TimeFrame
}

// SourceRef is a deduplicated (ticker, source) pair present in retrieved
// context, used for citation cross-checking.
type SourceRef struct {
	Ticker string `json:"ticker"`
	Source Source `json:"source"`
}

// ParsedAnswer is the best-effort structured view of a generated answer.
// Nil when the completion did not match the requested four-part shape.
type ParsedAnswer struct {
	Answer     string `json:"answer"`
	Reasoning  string `json:"reasoning"`
	Citations  string `json:"citations"`
	Confidence string `json:"confidence"`
}

// AnswerRecord is the terminal result of one query. It is always returned,
// never raised: failures populate Error and leave AnswerText empty.
type AnswerRecord struct {
	ID            string        `json:"id"`
	Question      string        `json:"question"`
	QueryType     QueryType     `json:"query_type,omitempty"`
	AnswerText    string        `json:"answer"`
	Parsed        *ParsedAnswer `json:"parsed,omitempty"`
	ContextChunks []Chunk       `json:"context_chunks"`
	Sources       []SourceRef   `json:"sources"`
	Error         string        `json:"error,omitempty"`
	LatencyMS     int           `json:"latency_ms"`
}

// QueryRecord is the audit row persisted for each handled query.
type QueryRecord struct {
	ID         string
	QueryText  string
	Tickers    []string
	QueryType  string
	Response   string
	Confidence string
	ChunkCount int
	LatencyMS  int
	CreatedAt  time.Time
}

// IndexedDocument is the persisted record of one produced document.
type IndexedDocument struct {
	ID         string
	Ticker     string
	Source     Source
	Summary    string
	ChunkCount int
	CreatedAt  time.Time
}
