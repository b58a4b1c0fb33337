// Package embedding maps images into the vector space of the reference corpus.
package embedding

import (
	"context"
	"image"
)

// Embedder produces one vector per image. Implementations are deterministic
// within a process and always return Dimensions() values.
type Embedder interface {
	Embed(ctx context.Context, img image.Image) ([]float32, error)
	Dimensions() int
	Name() string
	Close() error
}
