package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math"
	"os"

	"github.com/hyperjump/imgdedup/pkg/utils"
)

// MockEmbedder is a deterministic provider for tests and dry runs. The vector
// is derived from a hash of the file bytes, so identical files embed
// identically and distinct files are nearly orthogonal.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 1280
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns the embedding for the file at path.
func (e *MockEmbedder) Embed(path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return e.embedBytes(data), nil
}

func (e *MockEmbedder) embedBytes(data []byte) []float32 {
	sum := sha256.Sum256(data)
	seed := binary.LittleEndian.Uint64(sum[:8])
	emb := make([]float32, e.dimensions)
	for i := range emb {
		emb[i] = float32(math.Sin(float64(seed%100003)*float64(i+1) + float64(sum[i%len(sum)])))
	}
	utils.NormalizeL2(emb)
	return emb
}

// EmbedBatch calls Embed for each path.
func (e *MockEmbedder) EmbedBatch(ctx context.Context, paths []string) ([][]float32, error) {
	embeddings := make([][]float32, len(paths))
	for i, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		emb, err := e.Embed(path)
		if err != nil {
			return nil, fmt.Errorf("embed %s: %w", path, err)
		}
		embeddings[i] = emb
	}
	return embeddings, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
