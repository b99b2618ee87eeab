package flatindex

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fin-agent/backend/internal/storage/models"
)

// planeEmbedder maps known texts to fixed 3-dimensional vectors so distances
// in tests are hand-checkable. Unknown texts embed to the origin.
type planeEmbedder struct {
	vecs map[string][]float32
	err  error
}

func (e *planeEmbedder) GenerateEmbedding(_ context.Context, text string) ([]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	if v, ok := e.vecs[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 0}, nil
}

func (e *planeEmbedder) GenerateBatchEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	if e.err != nil {
		return nil, e.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.GenerateEmbedding(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func chunk(text string) models.Chunk {
	return models.Chunk{Text: text, Source: models.SourceTechnical, Ticker: "T"}
}

func TestSearchNearestFirst(t *testing.T) {
	emb := &planeEmbedder{vecs: map[string][]float32{
		"near":  {1, 0, 0},
		"mid":   {3, 0, 0},
		"far":   {9, 0, 0},
		"query": {0, 0, 0},
	}}
	idx := New(emb, 3)

	err := idx.Add(context.Background(), []models.Chunk{
		chunk("far"), chunk("near"), chunk("mid"),
	})
	require.NoError(t, err)

	got, err := idx.Search(context.Background(), "query", 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "near", got[0].Text)
	assert.Equal(t, "mid", got[1].Text)
	assert.Equal(t, "far", got[2].Text)
}

func TestSearchTopKBounds(t *testing.T) {
	emb := &planeEmbedder{vecs: map[string][]float32{}}
	idx := New(emb, 3)
	require.NoError(t, idx.Add(context.Background(), []models.Chunk{
		chunk("a"), chunk("b"),
	}))

	got, err := idx.Search(context.Background(), "q", 10)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = idx.Search(context.Background(), "q", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestSearchEmptyIndex(t *testing.T) {
	idx := New(&planeEmbedder{}, 3)

	got, err := idx.Search(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSearchTieBreaksOnInsertionOrder(t *testing.T) {
	emb := &planeEmbedder{vecs: map[string][]float32{
		"first":  {1, 0, 0},
		"second": {1, 0, 0},
	}}
	idx := New(emb, 3)
	require.NoError(t, idx.Add(context.Background(), []models.Chunk{
		chunk("first"), chunk("second"),
	}))

	got, err := idx.Search(context.Background(), "q", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "first", got[0].Text)
	assert.Equal(t, "second", got[1].Text)
}

func TestAddFailureLeavesIndexUntouched(t *testing.T) {
	boom := errors.New("provider down")
	emb := &planeEmbedder{err: boom}
	idx := New(emb, 3)

	err := idx.Add(context.Background(), []models.Chunk{chunk("a")})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrEmbedding)
	assert.Equal(t, 0, idx.Len())

	emb.err = nil
	require.NoError(t, idx.Add(context.Background(), []models.Chunk{chunk("a")}))
	assert.Equal(t, 1, idx.Len())
}

func TestAddRejectsDimensionMismatch(t *testing.T) {
	emb := &planeEmbedder{vecs: map[string][]float32{
		"short": {1, 0},
	}}
	idx := New(emb, 3)

	err := idx.Add(context.Background(), []models.Chunk{chunk("short")})
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrEmbedding)
	assert.Equal(t, 0, idx.Len())
}

func TestSearchRejectsDimensionMismatch(t *testing.T) {
	emb := &planeEmbedder{vecs: map[string][]float32{
		"a":     {1, 0, 0},
		"query": {1, 0, 0, 0, 0},
	}}
	idx := New(emb, 3)
	require.NoError(t, idx.Add(context.Background(), []models.Chunk{chunk("a")}))

	_, err := idx.Search(context.Background(), "query", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrEmbedding)
}

func TestConcurrentAddKeepsParity(t *testing.T) {
	emb := &planeEmbedder{vecs: map[string][]float32{}}
	idx := New(emb, 3)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				_ = idx.Add(context.Background(), []models.Chunk{
					chunk(fmt.Sprintf("g%d-%d", g, i)),
				})
			}
		}(g)
	}
	wg.Wait()

	assert.Equal(t, 200, idx.Len())
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	assert.Equal(t, len(idx.vectors), len(idx.meta))
}

func TestPersistLoadRoundTrip(t *testing.T) {
	emb := &planeEmbedder{vecs: map[string][]float32{
		"near":  {1, 0, 0},
		"far":   {5, 5, 5},
		"query": {0, 0, 0},
	}}
	idx := New(emb, 3)
	require.NoError(t, idx.Add(context.Background(), []models.Chunk{
		chunk("far"), chunk("near"),
	}))

	dir := t.TempDir()
	vecPath := filepath.Join(dir, "vectors.bin")
	metaPath := filepath.Join(dir, "meta.json")
	require.NoError(t, idx.Persist(vecPath, metaPath))

	loaded, err := Load(emb, 3, vecPath, metaPath)
	require.NoError(t, err)
	assert.Equal(t, idx.Len(), loaded.Len())

	want, err := idx.Search(context.Background(), "query", 2)
	require.NoError(t, err)
	got, err := loaded.Search(context.Background(), "query", 2)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestLoadMissingArtifacts(t *testing.T) {
	dir := t.TempDir()
	vecPath := filepath.Join(dir, "vectors.bin")
	metaPath := filepath.Join(dir, "meta.json")

	_, err := Load(&planeEmbedder{}, 3, vecPath, metaPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrIndexState)

	// Vector artifact alone is still an unusable pair.
	emb := &planeEmbedder{vecs: map[string][]float32{}}
	idx := New(emb, 3)
	require.NoError(t, idx.Add(context.Background(), []models.Chunk{chunk("a")}))
	require.NoError(t, idx.Persist(vecPath, filepath.Join(dir, "other.json")))

	_, err = Load(emb, 3, vecPath, metaPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrIndexState)
}

func TestLoadDimensionMismatch(t *testing.T) {
	emb := &planeEmbedder{vecs: map[string][]float32{}}
	idx := New(emb, 3)
	require.NoError(t, idx.Add(context.Background(), []models.Chunk{chunk("a")}))

	dir := t.TempDir()
	vecPath := filepath.Join(dir, "vectors.bin")
	metaPath := filepath.Join(dir, "meta.json")
	require.NoError(t, idx.Persist(vecPath, metaPath))

	_, err := Load(emb, 4, vecPath, metaPath)
	require.Error(t, err)
	assert.ErrorIs(t, err, models.ErrIndexState)
}
