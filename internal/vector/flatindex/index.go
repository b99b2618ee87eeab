package flatindex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/fin-agent/backend/internal/storage/models"
	"github.com/fin-agent/backend/pkg/logger"
)

// Embedder is the single embedding capability bound to an index. One index
// instance uses exactly one embedder for both Add and Search; mixing
// embedding spaces silently breaks ranking, so the binding happens at
// construction and never changes.
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Index is a flat exhaustive nearest-neighbor index over chunk embeddings.
// Distance is squared Euclidean (L2), identical for Add and Search. Vectors
// and chunk metadata are two parallel slices: position i in one always
// corresponds to position i in the other, after every mutation and after
// reload from disk.
//
// Exhaustive scan is deliberate: a handful of tickers produces hundreds to
// low thousands of entries, where correctness and simplicity beat
// approximate-index tuning.
type Index struct {
	embedder Embedder
	dim      int

	mu      sync.RWMutex
	vectors [][]float32
	meta    []models.Chunk
}

func New(embedder Embedder, dim int) *Index {
	return &Index{
		embedder: embedder,
		dim:      dim,
	}
}

// Len reports the number of indexed entries.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.vectors)
}

// Add embeds the chunks in one batch and appends (vector, chunk) pairs.
// Embedding order matches chunk order within the call. On any failure the
// index is left untouched: both stores grow by len(chunks) or neither does.
func (idx *Index) Add(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	embeddings, err := idx.embedder.GenerateBatchEmbeddings(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: %v", models.ErrEmbedding, err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("%w: got %d embeddings for %d chunks",
			models.ErrEmbedding, len(embeddings), len(chunks))
	}
	for i, vec := range embeddings {
		if len(vec) != idx.dim {
			return fmt.Errorf("%w: embedding %d has dimension %d, want %d",
				models.ErrEmbedding, i, len(vec), idx.dim)
		}
	}

	idx.mu.Lock()
	idx.vectors = append(idx.vectors, embeddings...)
	idx.meta = append(idx.meta, chunks...)
	idx.mu.Unlock()

	logger.Debug("Chunks indexed",
		zap.Int("added", len(chunks)),
		zap.Int("total", idx.Len()),
	)

	return nil
}

// Search embeds the query with the index's embedder and returns up to topK
// chunks ordered nearest-first by squared L2 distance. Fewer than topK are
// returned when the index is smaller; an empty index yields an empty result.
func (idx *Index) Search(ctx context.Context, query string, topK int) ([]models.Chunk, error) {
	if topK <= 0 {
		return nil, nil
	}

	if idx.Len() == 0 {
		return []models.Chunk{}, nil
	}

	queryVec, err := idx.embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrEmbedding, err)
	}
	if len(queryVec) != idx.dim {
		return nil, fmt.Errorf("%w: query embedding has dimension %d, want %d",
			models.ErrEmbedding, len(queryVec), idx.dim)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	type scored struct {
		pos  int
		dist float32
	}

	scores := make([]scored, len(idx.vectors))
	for i, vec := range idx.vectors {
		scores[i] = scored{pos: i, dist: squaredL2(queryVec, vec)}
	}

	// Ties break on insertion position so rankings reproduce exactly.
	sort.SliceStable(scores, func(a, b int) bool {
		if scores[a].dist != scores[b].dist {
			return scores[a].dist < scores[b].dist
		}
		return scores[a].pos < scores[b].pos
	})

	if topK > len(scores) {
		topK = len(scores)
	}

	results := make([]models.Chunk, topK)
	for i := 0; i < topK; i++ {
		results[i] = idx.meta[scores[i].pos]
	}

	return results, nil
}

func squaredL2(a, b []float32) float32 {
	var sum float32
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return sum
}
