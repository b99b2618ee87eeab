package llm

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fin-agent/backend/internal/cache/redis"
	"github.com/fin-agent/backend/internal/metrics"
	"github.com/fin-agent/backend/pkg/logger"
	"github.com/fin-agent/backend/pkg/utils"
)

const embeddingCacheTTL = 24 * time.Hour

// CachedEmbedder fronts the client's embedding calls with the redis cache,
// keyed by text hash. Identical chunk text across queries (the same filing
// section, the same statement line) skips the embedding round trip. Cache
// failures are misses, never errors.
type CachedEmbedder struct {
	client *Client
	cache  *redis.Client
}

func NewCachedEmbedder(client *Client, cache *redis.Client) *CachedEmbedder {
	return &CachedEmbedder{
		client: client,
		cache:  cache,
	}
}

func (e *CachedEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	hash := utils.HashString(text)

	if cached, hit, err := e.cache.GetEmbedding(ctx, hash); err == nil && hit {
		metrics.CacheHits.WithLabelValues("embedding").Inc()
		return cached, nil
	}
	metrics.CacheMisses.WithLabelValues("embedding").Inc()

	embedding, err := e.client.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}

	if err := e.cache.SetEmbedding(ctx, hash, embedding, embeddingCacheTTL); err != nil {
		logger.Warn("Failed to cache embedding", zap.Error(err))
	}

	return embedding, nil
}

func (e *CachedEmbedder) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))

	// Partition into cached and uncached, keeping input order for the
	// batch call.
	var missing []string
	var missingIdx []int
	for i, text := range texts {
		hash := utils.HashString(text)
		if cached, hit, err := e.cache.GetEmbedding(ctx, hash); err == nil && hit {
			metrics.CacheHits.WithLabelValues("embedding").Inc()
			results[i] = cached
			continue
		}
		metrics.CacheMisses.WithLabelValues("embedding").Inc()
		missing = append(missing, text)
		missingIdx = append(missingIdx, i)
	}

	if len(missing) > 0 {
		embeddings, err := e.client.GenerateBatchEmbeddings(ctx, missing)
		if err != nil {
			return nil, err
		}

		for j, embedding := range embeddings {
			i := missingIdx[j]
			results[i] = embedding
			if err := e.cache.SetEmbedding(ctx, utils.HashString(texts[i]), embedding, embeddingCacheTTL); err != nil {
				logger.Warn("Failed to cache embedding", zap.Error(err))
			}
		}
	}

	return results, nil
}
