package rater

import (
	"context"
	"fmt"

	"github.com/w-h-a/recommender/embedder"
	modelstore "github.com/w-h-a/recommender/model_store"
	"github.com/w-h-a/recommender/record"
)

type Option func(*Options)

type Options struct {
	// Backbone is the shared encoder whose embedding forms the frozen part
	// of the feature vector.
	Backbone   embedder.Embedder
	Store      *modelstore.Store
	FieldOrder []string
	Context    context.Context
}

func WithBackbone(e embedder.Embedder) Option {
	return func(o *Options) {
		o.Backbone = e
	}
}

func WithStore(s *modelstore.Store) Option {
	return func(o *Options) {
		o.Store = s
	}
}

func WithFieldOrder(order []string) Option {
	return func(o *Options) {
		o.FieldOrder = order
	}
}

func NewOptions(opts ...Option) Options {
	options := Options{
		FieldOrder: record.Movies.FeatureOrder(),
		Context:    context.Background(),
	}

	for _, fn := range opts {
		fn(&options)
	}

	return options
}

// TrainConfig holds every knob of a training run. Nothing is inferred
// from the data.
type TrainConfig struct {
	Epochs            int     `json:"epochs"`
	BatchSize         int     `json:"batch_size"`
	WarmupSteps       int     `json:"warmup_steps"`
	WeightDecay       float64 `json:"weight_decay"`
	LearningRate      float64 `json:"learning_rate"`
	MaxSequenceLength int     `json:"max_sequence_length"`
	MinExamples       int     `json:"min_examples"`
	Seed              uint64  `json:"seed"`
}

func DefaultTrainConfig() TrainConfig {
	return TrainConfig{
		Epochs:            10,
		BatchSize:         8,
		WarmupSteps:       10,
		WeightDecay:       0.01,
		LearningRate:      0.5,
		MaxSequenceLength: 512,
		MinExamples:       3,
		Seed:              42,
	}
}

func (c TrainConfig) Validate() error {
	switch {
	case c.Epochs <= 0:
		return fmt.Errorf("%w: epochs must be positive", ErrInvalidConfig)
	case c.BatchSize <= 0:
		return fmt.Errorf("%w: batch size must be positive", ErrInvalidConfig)
	case c.WarmupSteps < 0:
		return fmt.Errorf("%w: warmup steps must not be negative", ErrInvalidConfig)
	case c.WeightDecay < 0:
		return fmt.Errorf("%w: weight decay must not be negative", ErrInvalidConfig)
	case c.LearningRate <= 0:
		return fmt.Errorf("%w: learning rate must be positive", ErrInvalidConfig)
	case c.MaxSequenceLength < 2:
		return fmt.Errorf("%w: max sequence length must leave room for one token", ErrInvalidConfig)
	case c.MinExamples < 1:
		return fmt.Errorf("%w: min examples must be at least 1", ErrInvalidConfig)
	}
	return nil
}
