package retriever

import (
	"context"

	"github.com/w-h-a/recommender/embedder"
)

type Option func(*Options)

type Options struct {
	Embedder embedder.Embedder
	// ParallelThreshold is the candidate count from which scoring is split
	// across workers.
	ParallelThreshold int
	ChunkSize         int
	Context           context.Context
}

func WithEmbedder(e embedder.Embedder) Option {
	return func(o *Options) {
		o.Embedder = e
	}
}

func WithParallelThreshold(n int) Option {
	return func(o *Options) {
		o.ParallelThreshold = n
	}
}

func WithChunkSize(n int) Option {
	return func(o *Options) {
		o.ChunkSize = n
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		ParallelThreshold: 4096,
		ChunkSize:         1024,
		Context:           context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
