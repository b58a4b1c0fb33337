package embedding

import (
	"context"
	"image"
	"math"

	"github.com/hyperjump/pawmatch/pkg/utils"
)

// mockThumb is the side length of the thumbnail the mock projects from.
const mockThumb = 8

// MockEmbedder is a deterministic embedder for tests and for running without a model.
// It projects a small normalized thumbnail of the image onto fixed sinusoidal directions,
// so identical images get identical vectors and similar images get nearby ones.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder returns an embedder that produces deterministic embeddings of the given dimensions.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 512
	}
	return &MockEmbedder{dimensions: dimensions}
}

// Embed returns a unit vector derived from the image pixels.
func (e *MockEmbedder) Embed(ctx context.Context, img image.Image) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	thumb := Preprocess(img, mockThumb)
	emb := make([]float32, e.dimensions)
	for i := range emb {
		var sum float64
		for j, v := range thumb {
			sum += float64(v) * math.Sin(float64((i+1)*(j+1)))
		}
		emb[i] = float32(sum)
	}
	utils.NormalizeL2(emb)
	return emb, nil
}

// Dimensions returns the embedding dimension.
func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

// Name identifies the backend.
func (e *MockEmbedder) Name() string {
	return "mock"
}

// Close is a no-op for MockEmbedder.
func (e *MockEmbedder) Close() error {
	return nil
}
