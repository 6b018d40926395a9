package rater

import (
	"context"

	modelstore "github.com/w-h-a/recommender/model_store"
	"github.com/w-h-a/recommender/record"
)

// Rater learns a scalar rating from serialized record text.
type Rater interface {
	// Train fits a new model on every record carrying a numeric label and
	// publishes it as the only current version.
	Train(ctx context.Context, records []record.Record, cfg TrainConfig) (modelstore.Version, error)
	// Predict rates a partial record with the current model. The result
	// is not clamped to any rating scale.
	Predict(ctx context.Context, partial record.Record) (float64, error)
}
