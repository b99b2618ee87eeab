package ingestion

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fin-agent/backend/internal/storage/models"
)

func repeatSentences(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteString("Revenue grew ten percent year over year while margins held steady. ")
	}
	return b.String()
}

func TestChunkDocumentDeterministic(t *testing.T) {
	doc := models.FundamentalDocument{
		Ticker:   "T",
		Analysis: repeatSentences(40),
	}
	cfg := DefaultChunkerConfig()

	first := ChunkDocument(doc, cfg)
	second := ChunkDocument(doc, cfg)

	require.Equal(t, first, second)
}

func TestChunkDocumentFundamentalTagging(t *testing.T) {
	doc := models.FundamentalDocument{
		Ticker:       "T",
		CashFlowData: "OperatingCashFlow: FY2024=1000",
		Analysis:     "Revenue up 10% with free cash flow expanding across the period.",
	}

	chunks := ChunkDocument(doc, DefaultChunkerConfig())

	require.NotEmpty(t, chunks)
	for _, c := range chunks {
		assert.Equal(t, models.SourceFundamental, c.Source)
		assert.Equal(t, "T", c.Ticker)
		assert.Empty(t, c.Section)
	}
}

func TestChunkDocumentFilingSections(t *testing.T) {
	doc := models.FilingDocument{
		Ticker:   "AAPL",
		FormType: "10-K",
		Sections: []models.FilingSection{
			{Label: "ITEM 1A", Text: repeatSentences(20)},
			{Label: "ITEM 7", Text: repeatSentences(20)},
		},
	}

	chunks := ChunkDocument(doc, DefaultChunkerConfig())
	require.NotEmpty(t, chunks)

	labels := make(map[string]bool)
	for _, c := range chunks {
		assert.Equal(t, models.SourceFiling, c.Source)
		assert.Equal(t, "AAPL", c.Ticker)
		labels[c.Section] = true
	}
	assert.True(t, labels["ITEM 1A"])
	assert.True(t, labels["ITEM 7"])
}

func TestChunkDocumentTechnicalFrequency(t *testing.T) {
	doc := models.TechnicalDocument{
		Ticker:    "MSFT",
		Frequency: "60d",
		Analysis:  "RSI at 62 with MACD crossing above the signal line on rising volume.",
	}

	chunks := ChunkDocument(doc, DefaultChunkerConfig())
	require.Len(t, chunks, 1)
	assert.Equal(t, models.SourceTechnical, chunks[0].Source)
	assert.Equal(t, "60d", chunks[0].Frequency)
}

func TestChunkDocumentEmptyFieldsYieldNothing(t *testing.T) {
	assert.Empty(t, ChunkDocument(models.TechnicalDocument{Ticker: "T"}, DefaultChunkerConfig()))
	assert.Empty(t, ChunkDocument(models.FundamentalDocument{Ticker: "T", Analysis: "   "}, DefaultChunkerConfig()))
	assert.Empty(t, ChunkDocument(models.FilingDocument{Ticker: "T"}, DefaultChunkerConfig()))
}

func TestSplitTextRespectsSizeBound(t *testing.T) {
	pieces := SplitText(repeatSentences(50), 500, 50)

	require.Greater(t, len(pieces), 1)
	for _, p := range pieces {
		assert.LessOrEqual(t, len(p), 500)
		assert.NotEmpty(t, strings.TrimSpace(p))
	}
}

// sharedBoundary reports how many characters the start of next shares with
// the end of prev.
func sharedBoundary(prev, next string) int {
	limit := len(prev)
	if len(next) < limit {
		limit = len(next)
	}
	for n := limit; n > 0; n-- {
		if strings.HasSuffix(prev, next[:n]) {
			return n
		}
	}
	return 0
}

func TestSplitTextOverlapCarriesContext(t *testing.T) {
	// Distinct sentences, each longer than the overlap budget, so the
	// carried context must come from a character tail rather than a whole
	// trailing sentence.
	var b strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "Sentence number %02d reports that quarterly revenue advanced once more this period. ", i)
	}

	pieces := SplitText(b.String(), 500, 50)
	require.Greater(t, len(pieces), 1)

	for i := 1; i < len(pieces); i++ {
		assert.NotEqual(t, pieces[i-1], pieces[i])
		assert.GreaterOrEqual(t, sharedBoundary(pieces[i-1], pieces[i]), 50,
			"chunks %d and %d share no boundary context", i-1, i)
	}
}

func TestSplitTextOverlapRetainsWholeShortUnits(t *testing.T) {
	// Sentences shorter than the overlap budget are carried whole.
	var b strings.Builder
	for i := 0; i < 40; i++ {
		fmt.Fprintf(&b, "Margin item %02d held steady this year. ", i)
	}

	pieces := SplitText(b.String(), 500, 50)
	require.Greater(t, len(pieces), 1)

	for i := 1; i < len(pieces); i++ {
		assert.Greater(t, sharedBoundary(pieces[i-1], pieces[i]), 0)
	}
}

func TestSplitTextShortInputSingleChunk(t *testing.T) {
	pieces := SplitText("One short paragraph.", 500, 50)
	require.Len(t, pieces, 1)
	assert.Equal(t, "One short paragraph.", pieces[0])
}

func TestSplitTextHardCutsLongWord(t *testing.T) {
	word := strings.Repeat("x", 1200)

	// Without overlap the cuts partition the word exactly.
	pieces := SplitText(word, 500, 0)
	require.NotEmpty(t, pieces)
	assert.Equal(t, len(word), len(strings.Join(pieces, "")))

	// With overlap the size bound still holds on every piece.
	pieces = SplitText(word, 500, 50)
	require.NotEmpty(t, pieces)
	for _, p := range pieces {
		assert.LessOrEqual(t, len(p), 500)
	}
}

func TestSplitTextEmpty(t *testing.T) {
	assert.Nil(t, SplitText("", 500, 50))
	assert.Nil(t, SplitText("  \n\n  ", 500, 50))
}
