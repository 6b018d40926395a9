package google

import (
	"context"

	"github.com/w-h-a/recommender/embedder"
	"google.golang.org/api/option"
)

type clientOptionsKey struct{}

func WithClientOptions(opts ...option.ClientOption) embedder.Option {
	return func(o *embedder.Options) {
		o.Context = context.WithValue(o.Context, clientOptionsKey{}, opts)
	}
}

func ClientOptionsFrom(ctx context.Context) []option.ClientOption {
	opts, _ := ctx.Value(clientOptionsKey{}).([]option.ClientOption)
	return opts
}
