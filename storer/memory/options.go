package memory

import (
	"context"

	"github.com/w-h-a/recommender/record"
	"github.com/w-h-a/recommender/storer"
)

type recordsKey struct{}

// WithRecords seeds the store with rows in the given order.
func WithRecords(records ...record.Record) storer.Option {
	return func(o *storer.Options) {
		o.Context = context.WithValue(o.Context, recordsKey{}, records)
	}
}

func RecordsFrom(ctx context.Context) []record.Record {
	records, _ := ctx.Value(recordsKey{}).([]record.Record)
	return records
}
