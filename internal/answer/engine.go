package answer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fin-agent/backend/internal/llm"
	"github.com/fin-agent/backend/internal/storage/models"
	"github.com/fin-agent/backend/pkg/logger"
)

// Completer is the slice of the LLM client the engine needs.
type Completer interface {
	Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Retriever is the slice of the embedding index the engine needs.
type Retriever interface {
	Search(ctx context.Context, query string, topK int) ([]models.Chunk, error)
	Len() int
}

type Config struct {
	TopK          int
	PerSourceCap  int
	ContextBudget int
}

func DefaultConfig() Config {
	return Config{
		TopK:          5,
		PerSourceCap:  3,
		ContextBudget: 3000,
	}
}

// Engine answers a question against a populated index: enhance, retrieve,
// assemble a budgeted source-grouped context, generate a cited four-part
// answer. Failures never escape this boundary; they come back as an
// AnswerRecord carrying the reason and the original question.
type Engine struct {
	llmClient Completer
	cfg       Config
}

func NewEngine(llmClient Completer, cfg Config) *Engine {
	if cfg.TopK == 0 {
		cfg.TopK = 5
	}
	if cfg.PerSourceCap == 0 {
		cfg.PerSourceCap = 3
	}
	if cfg.ContextBudget == 0 {
		cfg.ContextBudget = 3000
	}

	return &Engine{
		llmClient: llmClient,
		cfg:       cfg,
	}
}

func (e *Engine) Answer(ctx context.Context, question string, index Retriever) *models.AnswerRecord {
	start := time.Now()

	record := &models.AnswerRecord{
		ID:       uuid.New().String(),
		Question: question,
	}

	enhanced := e.enhanceQuestion(ctx, question)

	chunks, err := index.Search(ctx, enhanced, e.cfg.TopK)
	if err != nil {
		logger.Error("Context retrieval failed", zap.Error(err))
		record.Error = fmt.Sprintf("retrieval failed: %v", err)
		record.LatencyMS = int(time.Since(start).Milliseconds())
		return record
	}

	record.ContextChunks = chunks
	record.Sources = collectSources(chunks)

	if len(chunks) == 0 {
		record.Error = "no relevant context found"
		record.LatencyMS = int(time.Since(start).Milliseconds())
		return record
	}

	context := e.formatContext(chunks)

	generated, err := e.generate(ctx, question, context)
	if err != nil {
		logger.Error("Answer generation failed", zap.Error(err))
		record.Error = fmt.Sprintf("generation failed: %v", err)
		record.LatencyMS = int(time.Since(start).Milliseconds())
		return record
	}

	// The raw completion is the answer of record; the parsed view is
	// best-effort and its absence is not an error.
	record.AnswerText = generated
	if parsed, err := ParseAnswer(generated); err == nil {
		record.Parsed = parsed
	} else {
		logger.Debug("Answer did not match the four-part shape, keeping raw text",
			zap.Error(err))
	}

	record.LatencyMS = int(time.Since(start).Milliseconds())

	logger.Info("Question answered",
		zap.String("id", record.ID),
		zap.Int("context_chunks", len(chunks)),
		zap.Int("latency_ms", record.LatencyMS),
	)

	return record
}

// enhanceQuestion expands the question with financial terminology before
// retrieval. Falls back to the unmodified question on any failure.
func (e *Engine) enhanceQuestion(ctx context.Context, question string) string {
	systemPrompt := "You are a financial search query optimizer."

	userPrompt := fmt.Sprintf(`Original query: %s

You are a financial research expert. Expand the query into a more comprehensive version suitable for deep financial analysis.

Context:
- We have full technical analysis data, including trend indicators (MACD, EMA, ADX, Aroon), momentum indicators (RSI, AO, Williams %%R, ROC, Stochastic), volume-based indicators (OBV, CMF, MFI), and volatility measures (ATR, custom volatility).
- We also have fundamental analysis data including full cash flow statements, income statements, and balance sheets.
- We have the latest annual report broken into labeled items.

Rewrite the query to:
1. Use relevant financial and technical terminology based on the available indicators
2. Add analytical depth, mentioning metrics or trends that might be relevant
3. Specify date or numerical ranges if implied
4. Include alternative phrasings of the question

Return ONLY the enhanced version of the query. Do not add commentary or explanation.`, question)

	resp, err := e.llmClient.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.3,
		MaxTokens:    200,
	})
	if err != nil {
		logger.Warn("Question enhancement failed, using original", zap.Error(err))
		return question
	}

	enhanced := strings.TrimSpace(resp.Content)
	if enhanced == "" {
		return question
	}
	return enhanced
}

// formatContext groups retrieved chunks by source kind in first-occurrence
// order, caps entries per source, and assembles headers plus entries without
// ever exceeding the character budget. Entries that would overflow the
// budget are dropped whole so attribution is never cut mid-chunk.
func (e *Engine) formatContext(chunks []models.Chunk) string {
	type group struct {
		source  models.Source
		entries []string
	}

	var groups []*group
	bySource := make(map[models.Source]*group)

	for _, chunk := range chunks {
		g, ok := bySource[chunk.Source]
		if !ok {
			g = &group{source: chunk.Source}
			bySource[chunk.Source] = g
			groups = append(groups, g)
		}
		if len(g.entries) >= e.cfg.PerSourceCap {
			continue
		}
		g.entries = append(g.entries,
			fmt.Sprintf("[%s]: %s", strings.ToUpper(chunk.ProvenanceLabel()), chunk.Text))
	}

	var b strings.Builder
	for _, g := range groups {
		header := fmt.Sprintf("=== %s CONTEXT ===", strings.ToUpper(string(g.source)))
		if !appendWithinBudget(&b, header, e.cfg.ContextBudget) {
			break
		}
		for _, entry := range g.entries {
			if !appendWithinBudget(&b, entry, e.cfg.ContextBudget) {
				break
			}
		}
	}

	return b.String()
}

func appendWithinBudget(b *strings.Builder, piece string, budget int) bool {
	sep := 0
	if b.Len() > 0 {
		sep = 2
	}
	if b.Len()+sep+len(piece) > budget {
		return false
	}
	if sep > 0 {
		b.WriteString("\n\n")
	}
	b.WriteString(piece)
	return true
}

func (e *Engine) generate(ctx context.Context, question, context string) (string, error) {
	systemPrompt := "You are a meticulous financial analyst that cites sources."

	userPrompt := fmt.Sprintf(`You are a financial analysis assistant providing sharp, evidence-based insights.

Using the financial and technical data provided below, answer the question with clear reasoning. Prioritize direct, insightful responses over generic commentary.

Context:
%s

Question:
%s

Your response must include exactly these four labeled parts:
1. Answer - A concise, well-supported answer to the question.
2. Reasoning - Brief explanation referencing specific trends or data (e.g., RSI, MACD, volume vs average volume).
3. Citations - Use [Ticker-Source] to reference data points (e.g., [AMZN-TECHNICAL_ANALYSIS]).
4. Confidence Level - High / Medium / Low.`, context, question)

	resp, err := e.llmClient.Complete(ctx, llm.CompletionRequest{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		Temperature:  0.5,
		MaxTokens:    1024,
	})
	if err != nil {
		return "", err
	}

	return resp.Content, nil
}

// collectSources deduplicates the (ticker, source) pairs present in the
// retrieved context, preserving retrieval order.
func collectSources(chunks []models.Chunk) []models.SourceRef {
	seen := make(map[models.SourceRef]bool, len(chunks))
	var refs []models.SourceRef
	for _, c := range chunks {
		ref := models.SourceRef{Ticker: c.Ticker, Source: c.Source}
		if seen[ref] {
			continue
		}
		seen[ref] = true
		refs = append(refs, ref)
	}
	return refs
}
