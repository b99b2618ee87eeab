package answer

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fin-agent/backend/internal/llm"
	"github.com/fin-agent/backend/internal/storage/models"
)

const fourPartAnswer = `Answer: AAPL is trending up.
Reasoning: RSI at 62 with rising volume.
Citations: [AAPL-TECHNICAL_ANALYSIS]
Confidence Level: High`

// fixedCompleter returns the same content for enhancement and generation, or
// an error for both.
type fixedCompleter struct {
	content string
	err     error
}

func (c *fixedCompleter) Complete(context.Context, llm.CompletionRequest) (*llm.CompletionResponse, error) {
	if c.err != nil {
		return nil, c.err
	}
	return &llm.CompletionResponse{Content: c.content}, nil
}

type fixedRetriever struct {
	chunks []models.Chunk
	err    error
}

func (r *fixedRetriever) Search(context.Context, string, int) ([]models.Chunk, error) {
	return r.chunks, r.err
}

func (r *fixedRetriever) Len() int { return len(r.chunks) }

func techChunk(ticker, text string) models.Chunk {
	return models.Chunk{Text: text, Source: models.SourceTechnical, Ticker: ticker, Frequency: "60d"}
}

func TestAnswerSuccess(t *testing.T) {
	engine := NewEngine(&fixedCompleter{content: fourPartAnswer}, DefaultConfig())
	retriever := &fixedRetriever{chunks: []models.Chunk{
		techChunk("AAPL", "RSI at 62."),
		techChunk("AAPL", "MACD above signal."),
	}}

	record := engine.Answer(context.Background(), "How is AAPL doing?", retriever)

	require.NotNil(t, record)
	assert.Empty(t, record.Error)
	assert.NotEmpty(t, record.ID)
	assert.Equal(t, "How is AAPL doing?", record.Question)
	assert.Equal(t, fourPartAnswer, record.AnswerText)
	require.NotNil(t, record.Parsed)
	assert.Equal(t, "High", record.Parsed.Confidence)
	assert.Equal(t, []models.SourceRef{
		{Ticker: "AAPL", Source: models.SourceTechnical},
	}, record.Sources)
}

func TestAnswerEmptyIndex(t *testing.T) {
	engine := NewEngine(&fixedCompleter{content: fourPartAnswer}, DefaultConfig())

	record := engine.Answer(context.Background(), "anything", &fixedRetriever{})

	require.NotNil(t, record)
	assert.Equal(t, "no relevant context found", record.Error)
	assert.Empty(t, record.AnswerText)
	assert.Equal(t, "anything", record.Question)
}

func TestAnswerRetrievalFailure(t *testing.T) {
	engine := NewEngine(&fixedCompleter{content: fourPartAnswer}, DefaultConfig())
	retriever := &fixedRetriever{err: errors.New("index unavailable")}

	record := engine.Answer(context.Background(), "q", retriever)

	require.NotNil(t, record)
	assert.Contains(t, record.Error, "retrieval failed")
	assert.Contains(t, record.Error, "index unavailable")
}

func TestAnswerGenerationFailure(t *testing.T) {
	engine := NewEngine(&fixedCompleter{err: errors.New("model overloaded")}, DefaultConfig())
	retriever := &fixedRetriever{chunks: []models.Chunk{techChunk("AAPL", "RSI at 62.")}}

	record := engine.Answer(context.Background(), "q", retriever)

	require.NotNil(t, record)
	assert.Contains(t, record.Error, "generation failed")
	assert.Equal(t, "q", record.Question)
	// The retrieved context is still reported for diagnosis.
	assert.Len(t, record.ContextChunks, 1)
}

func TestAnswerUnparseableCompletionKeepsRawText(t *testing.T) {
	engine := NewEngine(&fixedCompleter{content: "just some prose"}, DefaultConfig())
	retriever := &fixedRetriever{chunks: []models.Chunk{techChunk("AAPL", "RSI at 62.")}}

	record := engine.Answer(context.Background(), "q", retriever)

	assert.Empty(t, record.Error)
	assert.Equal(t, "just some prose", record.AnswerText)
	assert.Nil(t, record.Parsed)
}

func TestFormatContextGroupsAndCaps(t *testing.T) {
	engine := NewEngine(nil, Config{TopK: 10, PerSourceCap: 2, ContextBudget: 3000})

	chunks := []models.Chunk{
		techChunk("AAPL", "tech one"),
		{Text: "fund one", Source: models.SourceFundamental, Ticker: "AAPL"},
		techChunk("AAPL", "tech two"),
		techChunk("AAPL", "tech three"),
	}

	out := engine.formatContext(chunks)

	assert.Contains(t, out, "=== TECHNICAL_ANALYSIS CONTEXT ===")
	assert.Contains(t, out, "=== FUNDAMENTAL_ANALYSIS CONTEXT ===")
	assert.Contains(t, out, "tech one")
	assert.Contains(t, out, "tech two")
	assert.NotContains(t, out, "tech three", "per-source cap exceeded")
	// First-occurrence source ordering.
	assert.Less(t, strings.Index(out, "TECHNICAL"), strings.Index(out, "FUNDAMENTAL"))
}

func TestFormatContextNeverExceedsBudget(t *testing.T) {
	engine := NewEngine(nil, Config{TopK: 10, PerSourceCap: 3, ContextBudget: 300})

	big := strings.Repeat("x", 200)
	chunks := []models.Chunk{
		techChunk("AAPL", big),
		techChunk("AAPL", big),
		techChunk("AAPL", big),
	}

	out := engine.formatContext(chunks)

	assert.LessOrEqual(t, len(out), 300)
	// The first entry fits whole; the rest are dropped whole, never truncated.
	assert.Equal(t, 1, strings.Count(out, big))
}

func TestCollectSourcesDedupesInOrder(t *testing.T) {
	chunks := []models.Chunk{
		techChunk("AAPL", "a"),
		{Text: "b", Source: models.SourceFiling, Ticker: "AAPL"},
		techChunk("AAPL", "c"),
		techChunk("MSFT", "d"),
	}

	refs := collectSources(chunks)

	assert.Equal(t, []models.SourceRef{
		{Ticker: "AAPL", Source: models.SourceTechnical},
		{Ticker: "AAPL", Source: models.SourceFiling},
		{Ticker: "MSFT", Source: models.SourceTechnical},
	}, refs)
}
