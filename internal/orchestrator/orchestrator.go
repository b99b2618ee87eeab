package orchestrator

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fin-agent/backend/internal/answer"
	"github.com/fin-agent/backend/internal/ingestion"
	"github.com/fin-agent/backend/internal/intent"
	"github.com/fin-agent/backend/internal/metrics"
	"github.com/fin-agent/backend/internal/producers"
	"github.com/fin-agent/backend/internal/storage/models"
	"github.com/fin-agent/backend/internal/vector/flatindex"
	"github.com/fin-agent/backend/pkg/logger"
)

type Config struct {
	// MaxConcurrentIngestions bounds the worker pool across ticker×producer
	// tasks. Each task is network-bound, so a small pool is enough.
	MaxConcurrentIngestions int
	// VectorPath and MetaPath are the paired index artifacts written after
	// ingestion.
	VectorPath string
	MetaPath   string
	// EmbeddingDim is the output size of the embedding model.
	EmbeddingDim int
}

func DefaultConfig() Config {
	return Config{
		MaxConcurrentIngestions: 4,
		VectorPath:              "./data/financial.vec",
		MetaPath:                "./data/financial_meta.json",
		EmbeddingDim:            1536,
	}
}

// Orchestrator wires the full pipeline for one query: intent extraction,
// per-ticker ingestion into a fresh index, then retrieval-augmented
// answering. The index handle is created here and passed explicitly; there
// is no process-wide index state.
type Orchestrator struct {
	extractor *intent.Extractor
	producers []producers.Producer
	processor *ingestion.Processor
	engine    *answer.Engine
	embedder  flatindex.Embedder
	cfg       Config
}

func New(
	extractor *intent.Extractor,
	prods []producers.Producer,
	processor *ingestion.Processor,
	engine *answer.Engine,
	embedder flatindex.Embedder,
	cfg Config,
) *Orchestrator {
	if cfg.MaxConcurrentIngestions <= 0 {
		cfg.MaxConcurrentIngestions = 4
	}

	return &Orchestrator{
		extractor: extractor,
		producers: prods,
		processor: processor,
		engine:    engine,
		embedder:  embedder,
		cfg:       cfg,
	}
}

// Run answers one free-text query end to end. Per-ticker and per-producer
// failures are logged and skipped; the answer step runs against whatever the
// ingestion batch managed to index. Run never returns an error: terminal
// failures come back inside the AnswerRecord.
func (o *Orchestrator) Run(ctx context.Context, query string) *models.AnswerRecord {
	start := time.Now()

	queryIntent := o.extractor.Extract(ctx, query)
	metrics.TickersResolved.Observe(float64(len(queryIntent.Tickers)))

	index := flatindex.New(o.embedder, o.cfg.EmbeddingDim)

	if len(queryIntent.Tickers) == 0 {
		logger.Warn("No tickers resolved, answering against empty index",
			zap.String("query", query))
	} else {
		o.ingestTickers(ctx, queryIntent.Tickers, index)
		o.persistIndex(index)
	}

	record := o.engine.Answer(ctx, query, index)
	record.QueryType = queryIntent.QueryType
	metrics.RetrievedChunks.Observe(float64(len(record.ContextChunks)))

	status := "ok"
	if record.Error != "" {
		status = "error"
	}
	metrics.QueryTotal.WithLabelValues(status).Inc()
	metrics.QueryDuration.WithLabelValues(string(queryIntent.QueryType)).
		Observe(time.Since(start).Seconds())

	return record
}

// ingestTickers fans ticker×producer tasks out over a bounded pool. The
// index serializes its own writes, so tasks only share the semaphore.
func (o *Orchestrator) ingestTickers(ctx context.Context, tickers []string, index *flatindex.Index) {
	sem := make(chan struct{}, o.cfg.MaxConcurrentIngestions)
	var wg sync.WaitGroup

	for _, ticker := range tickers {
		for _, producer := range o.producers {
			wg.Add(1)
			go func(ticker string, producer producers.Producer) {
				defer wg.Done()

				sem <- struct{}{}
				defer func() { <-sem }()

				o.ingestOne(ctx, ticker, producer, index)
			}(ticker, producer)
		}
	}

	wg.Wait()

	logger.Info("Ingestion batch finished",
		zap.Strings("tickers", tickers),
		zap.Int("indexed_chunks", index.Len()),
	)
}

func (o *Orchestrator) ingestOne(ctx context.Context, ticker string, producer producers.Producer, index *flatindex.Index) {
	doc, err := producer.Produce(ctx, ticker)
	if err != nil {
		metrics.ProducerFailures.WithLabelValues(producer.Name()).Inc()
		logger.Warn("Producer failed, skipping",
			zap.String("ticker", ticker),
			zap.String("producer", producer.Name()),
			zap.Error(err),
		)
		return
	}

	if err := o.processor.ProcessDocument(ctx, doc, index); err != nil {
		logger.Warn("Failed to process document, skipping",
			zap.String("ticker", ticker),
			zap.String("producer", producer.Name()),
			zap.Error(err),
		)
	}
}

func (o *Orchestrator) persistIndex(index *flatindex.Index) {
	if o.cfg.VectorPath == "" || o.cfg.MetaPath == "" || index.Len() == 0 {
		return
	}
	if err := index.Persist(o.cfg.VectorPath, o.cfg.MetaPath); err != nil {
		logger.Warn("Failed to persist index artifacts", zap.Error(err))
	}
}
