package storer

import (
	"context"

	"github.com/w-h-a/recommender/record"
)

// Storer is the tabular record store. Records come back in store order,
// each with its persisted embedding or nil when the row has none yet.
type Storer interface {
	ReadAll(ctx context.Context) ([]record.Record, error)
	WriteEmbedding(ctx context.Context, id string, vector []float32) error
	AppendRecord(ctx context.Context, rec record.Record) error
}
