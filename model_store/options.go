package modelstore

import (
	"context"
	"time"
)

type Option func(*Options)

type Options struct {
	Clock   func() time.Time
	Context context.Context
}

func WithClock(clock func() time.Time) Option {
	return func(o *Options) {
		o.Clock = clock
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Clock:   time.Now,
		Context: context.Background(),
	}

	for _, fn := range opts {
		fn(&options)
	}

	return options
}
