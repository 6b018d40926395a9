package recommender

import (
	"context"

	"github.com/w-h-a/recommender/embedder"
	"github.com/w-h-a/recommender/internal/service/recommender"
	modelstore "github.com/w-h-a/recommender/model_store"
	"github.com/w-h-a/recommender/rater"
	"github.com/w-h-a/recommender/record"
	"github.com/w-h-a/recommender/retriever"
	"github.com/w-h-a/recommender/storer"
)

type (
	EmbedReport = recommender.EmbedReport
	Match       = recommender.Match
	Assessment  = recommender.Assessment
)

type Recommender struct {
	service *recommender.Service
	schema  record.Schema
}

// Schema is the schema records passed to this recommender must use.
func (r *Recommender) Schema() record.Schema {
	return r.schema
}

func (r *Recommender) EmbedAndStore(ctx context.Context, rec record.Record) ([]float32, error) {
	return r.service.EmbedAndStore(ctx, rec)
}

func (r *Recommender) EmbedMissing(ctx context.Context) (EmbedReport, error) {
	return r.service.EmbedMissing(ctx)
}

func (r *Recommender) Query(ctx context.Context, text string, k int) ([]Match, error) {
	return r.service.Query(ctx, text, k)
}

func (r *Recommender) Train(ctx context.Context, cfg rater.TrainConfig) (modelstore.Version, error) {
	return r.service.Train(ctx, cfg)
}

func (r *Recommender) Predict(ctx context.Context, partial record.Record) (float64, error) {
	return r.service.Predict(ctx, partial)
}

func (r *Recommender) Assess(ctx context.Context, partial record.Record) (Assessment, error) {
	return r.service.Assess(ctx, partial)
}

func (r *Recommender) AddRecord(ctx context.Context, rec record.Record) (record.Record, error) {
	return r.service.AddRecord(ctx, rec)
}

func (r *Recommender) Close() error {
	return nil
}

func New(
	store storer.Storer,
	encoder embedder.Embedder,
	retriever retriever.Retriever,
	rater rater.Rater,
	schema record.Schema,
) *Recommender {
	service := recommender.New(
		store,
		encoder,
		retriever,
		rater,
		schema,
	)

	r := &Recommender{
		service: service,
		schema:  schema,
	}

	return r
}

// Round2 rounds a rating to two decimals for display.
func Round2(v float64) float64 {
	return recommender.Round2(v)
}
