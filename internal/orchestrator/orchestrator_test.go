package orchestrator

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fin-agent/backend/internal/answer"
	"github.com/fin-agent/backend/internal/ingestion"
	"github.com/fin-agent/backend/internal/intent"
	"github.com/fin-agent/backend/internal/llm"
	"github.com/fin-agent/backend/internal/producers"
	"github.com/fin-agent/backend/internal/storage/models"
)

const cannedAnswer = `Answer: TST looks strong.
Reasoning: Price momentum is positive across the window.
Citations: [TST-TECHNICAL_ANALYSIS]
Confidence Level: Medium`

// pipelineCompleter scripts intent extraction and answer generation by
// matching markers in the system prompt.
type pipelineCompleter struct{}

func (pipelineCompleter) Complete(_ context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	switch {
	case strings.Contains(req.SystemPrompt, "enhancement assistant"):
		return &llm.CompletionResponse{Content: "How has TST performed recently?"}, nil
	case strings.Contains(req.SystemPrompt, "ticker symbols mentioned"):
		return &llm.CompletionResponse{Content: `["TST"]`}, nil
	case strings.Contains(req.SystemPrompt, "Categorize"):
		return &llm.CompletionResponse{Content: "PERFORMANCE_ANALYSIS"}, nil
	case strings.Contains(req.SystemPrompt, "number of days"):
		return &llm.CompletionResponse{Content: `{"period_type": "relative", "relative_period": 30}`}, nil
	case strings.Contains(req.SystemPrompt, "cites sources"):
		return &llm.CompletionResponse{Content: cannedAnswer}, nil
	}
	return &llm.CompletionResponse{Content: ""}, nil
}

// sumEmbedder derives a fixed-dimension vector from text bytes so search
// works without a real model.
type sumEmbedder struct{ dim int }

func (e sumEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	for i, b := range []byte(text) {
		vec[i%e.dim] += float32(b) / 255
	}
	return vec, nil
}

func (e sumEmbedder) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.GenerateEmbedding(ctx, t)
	}
	return out, nil
}

type stubProducer struct {
	name string
	doc  models.Document
	err  error
}

func (p stubProducer) Name() string { return p.name }

func (p stubProducer) Produce(context.Context, string) (models.Document, error) {
	return p.doc, p.err
}

func newTestOrchestrator(prods []producers.Producer, cfg Config) *Orchestrator {
	completer := pipelineCompleter{}
	return New(
		intent.NewExtractor(completer, nil),
		prods,
		ingestion.NewProcessor(nil, ingestion.DefaultChunkerConfig()),
		answer.NewEngine(completer, answer.DefaultConfig()),
		sumEmbedder{dim: 8},
		cfg,
	)
}

func TestRunEndToEnd(t *testing.T) {
	prods := []producers.Producer{
		stubProducer{name: "technical", doc: models.TechnicalDocument{
			Ticker:    "TST",
			Frequency: "60d",
			Analysis:  "Price rose steadily with volume confirming the uptrend.",
		}},
	}

	orch := newTestOrchestrator(prods, Config{MaxConcurrentIngestions: 2, EmbeddingDim: 8})
	record := orch.Run(context.Background(), "How is TST doing?")

	require.NotNil(t, record)
	assert.Empty(t, record.Error)
	assert.Equal(t, cannedAnswer, record.AnswerText)
	assert.Equal(t, models.QueryTypePerformance, record.QueryType)
	require.NotEmpty(t, record.Sources)
	assert.Equal(t, models.SourceRef{Ticker: "TST", Source: models.SourceTechnical}, record.Sources[0])
}

func TestRunToleratesProducerFailure(t *testing.T) {
	prods := []producers.Producer{
		stubProducer{name: "fundamental", err: errors.New("edgar unavailable")},
		stubProducer{name: "technical", doc: models.TechnicalDocument{
			Ticker:    "TST",
			Frequency: "60d",
			Analysis:  "Momentum indicators remain constructive on rising volume.",
		}},
	}

	orch := newTestOrchestrator(prods, Config{MaxConcurrentIngestions: 2, EmbeddingDim: 8})
	record := orch.Run(context.Background(), "How is TST doing?")

	assert.Empty(t, record.Error)
	assert.NotEmpty(t, record.ContextChunks)
}

func TestRunAllProducersFailingAnswersEmptyIndex(t *testing.T) {
	prods := []producers.Producer{
		stubProducer{name: "technical", err: errors.New("feed down")},
	}

	orch := newTestOrchestrator(prods, Config{MaxConcurrentIngestions: 2, EmbeddingDim: 8})
	record := orch.Run(context.Background(), "How is TST doing?")

	require.NotNil(t, record)
	assert.Equal(t, "no relevant context found", record.Error)
}

func TestRunPersistsIndexArtifacts(t *testing.T) {
	dir := t.TempDir()
	cfg := Config{
		MaxConcurrentIngestions: 2,
		EmbeddingDim:            8,
		VectorPath:              filepath.Join(dir, "financial.vec"),
		MetaPath:                filepath.Join(dir, "financial_meta.json"),
	}

	prods := []producers.Producer{
		stubProducer{name: "technical", doc: models.TechnicalDocument{
			Ticker:    "TST",
			Frequency: "60d",
			Analysis:  "Price rose steadily with volume confirming the uptrend.",
		}},
	}

	orch := newTestOrchestrator(prods, cfg)
	record := orch.Run(context.Background(), "How is TST doing?")
	require.Empty(t, record.Error)

	assert.FileExists(t, cfg.VectorPath)
	assert.FileExists(t, cfg.MetaPath)
}
