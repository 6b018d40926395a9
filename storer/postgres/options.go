package postgres

import (
	"context"

	"github.com/w-h-a/recommender/storer"
)

const defaultTable = "movies"

type tableKey struct{}

func WithTable(table string) storer.Option {
	return func(o *storer.Options) {
		o.Context = context.WithValue(o.Context, tableKey{}, table)
	}
}

func TableFrom(ctx context.Context) string {
	table, ok := ctx.Value(tableKey{}).(string)
	if !ok || len(table) == 0 {
		return defaultTable
	}
	return table
}
