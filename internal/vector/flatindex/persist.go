package flatindex

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/fin-agent/backend/internal/storage/models"
	"github.com/fin-agent/backend/pkg/logger"
)

// The vector artifact is a little-endian stream: uint32 dimension, uint32
// entry count, then count*dimension float32 values. Chunk metadata is a JSON
// array in a sibling file. The two artifacts are always written together and
// loaded together.

// Persist writes the vector artifact and the metadata artifact. The snapshot
// is taken under one read lock so both files describe the same index state.
func (idx *Index) Persist(vectorPath, metaPath string) error {
	idx.mu.RLock()
	vectors := make([][]float32, len(idx.vectors))
	copy(vectors, idx.vectors)
	meta := make([]models.Chunk, len(idx.meta))
	copy(meta, idx.meta)
	idx.mu.RUnlock()

	if err := writeVectors(vectorPath, idx.dim, vectors); err != nil {
		return fmt.Errorf("failed to write vector store: %w", err)
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}
	if err := os.WriteFile(metaPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write metadata store: %w", err)
	}

	logger.Info("Index persisted",
		zap.String("vector_path", vectorPath),
		zap.String("meta_path", metaPath),
		zap.Int("entries", len(vectors)),
	)

	return nil
}

// Load rebuilds an index from persisted artifacts, binding it to the given
// embedder. A missing artifact or an entry-count mismatch between the two
// stores is an ErrIndexState: the pair is unusable.
func Load(embedder Embedder, dim int, vectorPath, metaPath string) (*Index, error) {
	vecDim, vectors, err := readVectors(vectorPath)
	if err != nil {
		return nil, fmt.Errorf("%w: vector store %s: %v", models.ErrIndexState, vectorPath, err)
	}
	if vecDim != dim {
		return nil, fmt.Errorf("%w: vector store has dimension %d, want %d",
			models.ErrIndexState, vecDim, dim)
	}

	data, err := os.ReadFile(metaPath)
	if err != nil {
		return nil, fmt.Errorf("%w: metadata store %s: %v", models.ErrIndexState, metaPath, err)
	}

	var meta []models.Chunk
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: metadata store %s: %v", models.ErrIndexState, metaPath, err)
	}

	if len(vectors) != len(meta) {
		return nil, fmt.Errorf("%w: %d vectors but %d metadata entries",
			models.ErrIndexState, len(vectors), len(meta))
	}

	idx := New(embedder, dim)
	idx.vectors = vectors
	idx.meta = meta

	logger.Info("Index loaded",
		zap.String("vector_path", vectorPath),
		zap.Int("entries", len(vectors)),
	)

	return idx, nil
}

func writeVectors(path string, dim int, vectors [][]float32) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	w := bufio.NewWriter(file)

	if err := binary.Write(w, binary.LittleEndian, uint32(dim)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(len(vectors))); err != nil {
		return err
	}
	for _, vec := range vectors {
		if err := binary.Write(w, binary.LittleEndian, vec); err != nil {
			return err
		}
	}

	return w.Flush()
}

func readVectors(path string) (int, [][]float32, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, nil, err
	}
	defer file.Close()

	r := bufio.NewReader(file)

	var dim, count uint32
	if err := binary.Read(r, binary.LittleEndian, &dim); err != nil {
		return 0, nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return 0, nil, fmt.Errorf("failed to read header: %w", err)
	}

	vectors := make([][]float32, count)
	for i := range vectors {
		vec := make([]float32, dim)
		if err := binary.Read(r, binary.LittleEndian, vec); err != nil {
			return 0, nil, fmt.Errorf("failed to read vector %d: %w", i, err)
		}
		vectors[i] = vec
	}

	return int(dim), vectors, nil
}
