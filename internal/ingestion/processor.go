package ingestion

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/fin-agent/backend/internal/metrics"
	"github.com/fin-agent/backend/internal/storage/models"
	"github.com/fin-agent/backend/internal/storage/sqlite"
	"github.com/fin-agent/backend/internal/vector/flatindex"
	"github.com/fin-agent/backend/pkg/logger"
	"github.com/fin-agent/backend/pkg/utils"
)

// Processor turns one produced document into indexed chunks: chunk, embed,
// append to the index, and record the audit rows.
type Processor struct {
	db         *sqlite.Client
	chunkerCfg ChunkerConfig
}

func NewProcessor(db *sqlite.Client, chunkerCfg ChunkerConfig) *Processor {
	if chunkerCfg.Size == 0 {
		chunkerCfg = DefaultChunkerConfig()
	}

	return &Processor{
		db:         db,
		chunkerCfg: chunkerCfg,
	}
}

// ProcessDocument chunks doc and appends the chunks to index. The index
// handle is passed in by the caller; the processor holds no index state.
func (p *Processor) ProcessDocument(ctx context.Context, doc models.Document, index *flatindex.Index) error {
	chunks := ChunkDocument(doc, p.chunkerCfg)
	if len(chunks) == 0 {
		logger.Warn("Document produced no chunks",
			zap.String("ticker", doc.DocTicker()),
			zap.String("source", string(doc.DocSource())),
		)
		return nil
	}

	if err := index.Add(ctx, chunks); err != nil {
		return fmt.Errorf("failed to index chunks for %s/%s: %w",
			doc.DocTicker(), doc.DocSource(), err)
	}

	metrics.DocumentsIndexed.WithLabelValues(string(doc.DocSource())).Inc()
	metrics.ChunksIndexed.Add(float64(len(chunks)))

	p.recordAudit(doc, chunks)

	logger.Info("Document processed",
		zap.String("ticker", doc.DocTicker()),
		zap.String("source", string(doc.DocSource())),
		zap.Int("chunks", len(chunks)),
	)

	return nil
}

// recordAudit persists the document and chunk rows. Audit failures are
// logged, never propagated: the index, not SQLite, is the source of truth
// for retrieval.
func (p *Processor) recordAudit(doc models.Document, chunks []models.Chunk) {
	if p.db == nil {
		return
	}

	docID := utils.HashString(doc.DocTicker() + ":" + string(doc.DocSource()))

	summary := chunks[0].Text
	if len(summary) > 300 {
		summary = summary[:300]
	}

	err := p.db.InsertDocument(&models.IndexedDocument{
		ID:         docID,
		Ticker:     doc.DocTicker(),
		Source:     doc.DocSource(),
		Summary:    summary,
		ChunkCount: len(chunks),
		CreatedAt:  time.Now(),
	})
	if err != nil {
		logger.Warn("Failed to record document", zap.Error(err))
		return
	}

	for i, chunk := range chunks {
		if err := p.db.InsertChunk(docID, i, chunk); err != nil {
			logger.Warn("Failed to record chunk", zap.Error(err))
			return
		}
	}
}
