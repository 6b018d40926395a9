package sheets

import (
	"context"

	"github.com/w-h-a/recommender/storer"
	"google.golang.org/api/option"
)

const defaultSheetName = "movies_list"

type sheetNameKey struct{}

func WithSheetName(name string) storer.Option {
	return func(o *storer.Options) {
		o.Context = context.WithValue(o.Context, sheetNameKey{}, name)
	}
}

func SheetNameFrom(ctx context.Context) string {
	name, ok := ctx.Value(sheetNameKey{}).(string)
	if !ok || len(name) == 0 {
		return defaultSheetName
	}
	return name
}

type credentialsFileKey struct{}

// WithCredentialsFile points at a service account key file.
func WithCredentialsFile(path string) storer.Option {
	return func(o *storer.Options) {
		o.Context = context.WithValue(o.Context, credentialsFileKey{}, path)
	}
}

func CredentialsFileFrom(ctx context.Context) string {
	path, _ := ctx.Value(credentialsFileKey{}).(string)
	return path
}

type clientOptionsKey struct{}

func WithClientOptions(opts ...option.ClientOption) storer.Option {
	return func(o *storer.Options) {
		o.Context = context.WithValue(o.Context, clientOptionsKey{}, opts)
	}
}

func ClientOptionsFrom(ctx context.Context) []option.ClientOption {
	opts, _ := ctx.Value(clientOptionsKey{}).([]option.ClientOption)
	return opts
}
