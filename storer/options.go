package storer

import (
	"context"

	"github.com/w-h-a/recommender/record"
)

type Option func(*Options)

type Options struct {
	Location string
	Schema   record.Schema
	Context  context.Context
}

func WithLocation(loc string) Option {
	return func(o *Options) {
		o.Location = loc
	}
}

func WithSchema(schema record.Schema) Option {
	return func(o *Options) {
		o.Schema = schema
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		Schema:  record.Movies,
		Context: context.Background(),
	}
	for _, opt := range opts {
		opt(&options)
	}
	return options
}
