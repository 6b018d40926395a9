package embedder

import "context"

// Embedder turns text into fixed-dimension vectors. Embedding the empty
// string is defined and reproducible. EmbedMany must return the same
// vectors as calling Embed once per text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	Model() string
}
