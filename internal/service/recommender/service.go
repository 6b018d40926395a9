package recommender

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/w-h-a/recommender/embedder"
	modelstore "github.com/w-h-a/recommender/model_store"
	"github.com/w-h-a/recommender/rater"
	"github.com/w-h-a/recommender/record"
	"github.com/w-h-a/recommender/retriever"
	"github.com/w-h-a/recommender/serializer"
	"github.com/w-h-a/recommender/storer"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/w-h-a/recommender/internal/service/recommender"

// EmbedReport summarises one pass over the rows lacking an embedding.
type EmbedReport struct {
	Processed int `json:"processed"`
	Embedded  int `json:"embedded"`
	Failed    int `json:"failed"`
}

type Match struct {
	Record record.Record
	Score  float64
}

type Assessment struct {
	Rating  float64
	Reviews []string
}

type Service struct {
	store     storer.Storer
	encoder   embedder.Embedder
	retriever retriever.Retriever
	rater     rater.Rater
	schema    record.Schema
	order     []string
	tracer    trace.Tracer
}

// EmbedAndStore embeds the full serialization of rec and writes the vector
// back under the record's id.
func (s *Service) EmbedAndStore(ctx context.Context, rec record.Record) ([]float32, error) {
	ctx, span := s.tracer.Start(ctx, "recommender.embed_and_store", trace.WithAttributes(
		attribute.String("record.id", rec.ID()),
	))
	defer span.End()

	vec, err := s.embed(ctx, rec)
	if err != nil {
		return nil, fail(span, err)
	}

	if err := s.store.WriteEmbedding(ctx, rec.ID(), vec); err != nil {
		return nil, fail(span, err)
	}

	return vec, nil
}

// EmbedMissing embeds every stored record without a vector. A failure on
// one record is logged and counted and does not stop the others.
func (s *Service) EmbedMissing(ctx context.Context) (EmbedReport, error) {
	ctx, span := s.tracer.Start(ctx, "recommender.embed_missing")
	defer span.End()

	records, err := s.store.ReadAll(ctx)
	if err != nil {
		return EmbedReport{}, fail(span, err)
	}

	report := EmbedReport{}

	for _, rec := range records {
		if rec.Embedding != nil {
			continue
		}

		report.Processed++

		if _, err := s.EmbedAndStore(ctx, rec); err != nil {
			report.Failed++
			slog.ErrorContext(ctx, "failed to embed record", "id", rec.ID(), "error", err)
			continue
		}

		report.Embedded++
	}

	span.SetAttributes(
		attribute.Int("embed.processed", report.Processed),
		attribute.Int("embed.embedded", report.Embedded),
		attribute.Int("embed.failed", report.Failed),
	)

	slog.InfoContext(ctx, "embedded missing records", "processed", report.Processed, "embedded", report.Embedded, "failed", report.Failed)

	return report, nil
}

// Query ranks stored records against free text. Records without an
// embedding are not candidates. An empty store yields no matches.
func (s *Service) Query(ctx context.Context, text string, k int) ([]Match, error) {
	ctx, span := s.tracer.Start(ctx, "recommender.query", trace.WithAttributes(
		attribute.Int("query.k", k),
	))
	defer span.End()

	if k < 0 {
		return nil, fail(span, retriever.ErrInvalidK)
	}

	records, err := s.store.ReadAll(ctx)
	if err != nil {
		return nil, fail(span, err)
	}

	candidates := make([]retriever.Candidate, 0, len(records))
	for i, rec := range records {
		if rec.Embedding == nil {
			continue
		}
		candidates = append(candidates, retriever.Candidate{
			Ref:    strconv.Itoa(i),
			Vector: rec.Embedding,
		})
	}

	span.SetAttributes(attribute.Int("query.candidates", len(candidates)))

	ranking, err := s.retriever.TopK(ctx, strings.ToLower(text), candidates, k)
	if err != nil {
		return nil, fail(span, err)
	}

	matches := make([]Match, 0, ranking.Len())
	for _, res := range ranking.Results {
		i, err := strconv.Atoi(res.Ref)
		if err != nil {
			return nil, fail(span, fmt.Errorf("unexpected candidate reference %q: %w", res.Ref, err))
		}
		matches = append(matches, Match{Record: records[i], Score: res.Score})
	}

	return matches, nil
}

// Train fits the rating model on every labeled record in the store.
func (s *Service) Train(ctx context.Context, cfg rater.TrainConfig) (modelstore.Version, error) {
	ctx, span := s.tracer.Start(ctx, "recommender.train")
	defer span.End()

	records, err := s.store.ReadAll(ctx)
	if err != nil {
		return 0, fail(span, err)
	}

	span.SetAttributes(attribute.Int("train.records", len(records)))

	version, err := s.rater.Train(ctx, records, cfg)
	if err != nil {
		return 0, fail(span, err)
	}

	span.SetAttributes(attribute.String("model.version", version.String()))

	return version, nil
}

// Predict returns the raw, unclamped model output for a partial record.
func (s *Service) Predict(ctx context.Context, partial record.Record) (float64, error) {
	ctx, span := s.tracer.Start(ctx, "recommender.predict", trace.WithAttributes(
		attribute.Int("predict.fields", len(partial.Present())),
	))
	defer span.End()

	rating, err := s.rater.Predict(ctx, partial)
	if err != nil {
		return 0, fail(span, err)
	}

	return rating, nil
}

// Assess predicts a rating rounded to two decimals and collects the
// reviews of stored records rated within one point below it.
func (s *Service) Assess(ctx context.Context, partial record.Record) (Assessment, error) {
	ctx, span := s.tracer.Start(ctx, "recommender.assess")
	defer span.End()

	rating, err := s.Predict(ctx, partial)
	if err != nil {
		return Assessment{}, fail(span, err)
	}

	rounded := Round2(rating)

	records, err := s.store.ReadAll(ctx)
	if err != nil {
		return Assessment{}, fail(span, err)
	}

	reviews := []string{}
	for _, rec := range records {
		label, err := rec.Label()
		if err != nil {
			continue
		}
		if label < rounded-1 || label > rounded {
			continue
		}
		review := rec.Get(record.FieldReview)
		if review.IsEmpty() {
			continue
		}
		reviews = append(reviews, review.String())
	}

	span.SetAttributes(attribute.Int("assess.reviews", len(reviews)))

	return Assessment{Rating: rounded, Reviews: reviews}, nil
}

// AddRecord validates a rated, reviewed record, gives it a fresh id,
// embeds it and appends it to the store.
func (s *Service) AddRecord(ctx context.Context, rec record.Record) (record.Record, error) {
	ctx, span := s.tracer.Start(ctx, "recommender.add_record")
	defer span.End()

	if _, err := rec.Label(); err != nil {
		return record.Record{}, fail(span, fmt.Errorf("%w: %q is required: %v", ErrInvalidRecord, s.schema.Label(), err))
	}

	if rec.Get(record.FieldReview).IsEmpty() {
		return record.Record{}, fail(span, fmt.Errorf("%w: %q is required", ErrInvalidRecord, record.FieldReview))
	}

	rec = rec.Clone()

	if err := rec.SetText(s.schema.Identifier(), uuid.New().String()); err != nil {
		return record.Record{}, fail(span, err)
	}

	span.SetAttributes(attribute.String("record.id", rec.ID()))

	vec, err := s.embed(ctx, rec)
	if err != nil {
		return record.Record{}, fail(span, err)
	}

	rec.Embedding = vec

	if err := s.store.AppendRecord(ctx, rec); err != nil {
		return record.Record{}, fail(span, err)
	}

	slog.InfoContext(ctx, "added record", "id", rec.ID())

	return rec, nil
}

func (s *Service) embed(ctx context.Context, rec record.Record) ([]float32, error) {
	vec, err := s.encoder.Embed(ctx, serializer.Serialize(rec, s.order, serializer.Full))
	if err != nil {
		return nil, embedder.Wrap(s.encoder.Model(), err)
	}

	if dim := s.encoder.Dimension(); len(vec) != dim {
		return nil, &retriever.DimensionMismatchError{Ref: rec.ID(), Expected: dim, Actual: len(vec)}
	}

	return vec, nil
}

// Round2 is the display rounding applied to ratings at the boundary.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

func New(
	store storer.Storer,
	encoder embedder.Embedder,
	retriever retriever.Retriever,
	rater rater.Rater,
	schema record.Schema,
) *Service {
	return &Service{
		store:     store,
		encoder:   encoder,
		retriever: retriever,
		rater:     rater,
		schema:    schema,
		order:     schema.FeatureOrder(),
		tracer:    otel.Tracer(tracerName),
	}
}
