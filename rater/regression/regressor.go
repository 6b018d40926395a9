package regression

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/w-h-a/recommender/embedder"
	modelstore "github.com/w-h-a/recommender/model_store"
	"github.com/w-h-a/recommender/rater"
	"github.com/w-h-a/recommender/record"
	"github.com/w-h-a/recommender/retriever"
	"github.com/w-h-a/recommender/serializer"
)

type regressionRater struct {
	options rater.Options
	// serialises training runs; readers are never blocked by it
	trainMtx sync.Mutex
}

func (r *regressionRater) Train(ctx context.Context, records []record.Record, cfg rater.TrainConfig) (modelstore.Version, error) {
	if err := cfg.Validate(); err != nil {
		return 0, err
	}

	texts := []string{}
	labels := []float64{}

	for _, rec := range records {
		label, err := rec.Label()
		if errors.Is(err, record.ErrLabelAbsent) {
			continue
		}
		if err != nil {
			slog.WarnContext(ctx, "excluding record with unreadable label", "id", rec.ID(), "error", err)
			continue
		}

		texts = append(texts, serializer.Serialize(rec, r.options.FieldOrder, serializer.Full))
		labels = append(labels, label)
	}

	if len(texts) < cfg.MinExamples {
		return 0, &rater.InsufficientDataError{Have: len(texts), Need: cfg.MinExamples}
	}

	r.trainMtx.Lock()
	defer r.trainMtx.Unlock()

	tokenizer, err := fitTokenizer(texts, cfg.MaxSequenceLength)
	if err != nil {
		return 0, err
	}

	embeddings, err := r.options.Backbone.EmbedMany(ctx, texts)
	if err != nil {
		return 0, embedder.Wrap(r.options.Backbone.Model(), err)
	}

	dim := r.options.Backbone.Dimension()

	xs := make([]features, len(texts))
	for i, text := range texts {
		if len(embeddings[i]) != dim {
			return 0, &retriever.DimensionMismatchError{Ref: fmt.Sprintf("training example %d", i), Expected: dim, Actual: len(embeddings[i])}
		}
		xs[i] = newFeatures(tokenizer, text, embeddings[i])
	}

	head, err := fit(ctx, xs, labels, tokenizer.Size(), dim, cfg)
	if err != nil {
		return 0, err
	}

	head.BackboneModel = r.options.Backbone.Model()
	head.BackboneDimension = dim
	head.FieldOrder = slices.Clone(r.options.FieldOrder)
	head.Examples = len(texts)

	weights, err := json.Marshal(head)
	if err != nil {
		return 0, fmt.Errorf("failed to encode weights: %w", err)
	}

	tok, err := json.Marshal(tokenizer)
	if err != nil {
		return 0, fmt.Errorf("failed to encode tokenizer: %w", err)
	}

	version, err := r.options.Store.Publish(ctx, weights, tok)
	if err != nil {
		return 0, fmt.Errorf("failed to publish model: %w", err)
	}

	slog.InfoContext(ctx, "trained rating model",
		"version", version.String(),
		"examples", len(texts),
		"excluded", len(records)-len(texts),
		"vocabulary", tokenizer.Size(),
		"backbone", head.BackboneModel,
	)

	return version, nil
}

func (r *regressionRater) Predict(ctx context.Context, partial record.Record) (float64, error) {
	artifact, err := r.options.Store.Load(ctx)
	if errors.Is(err, modelstore.ErrNotFound) {
		return 0, &rater.ModelNotFoundError{Dir: r.options.Store.Dir()}
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load model: %w", err)
	}

	head := &Head{}
	if err := json.Unmarshal(artifact.Weights, head); err != nil {
		return 0, fmt.Errorf("failed to decode weights of %s: %w", artifact.Version, err)
	}

	tokenizer := &Tokenizer{}
	if err := json.Unmarshal(artifact.Tokenizer, tokenizer); err != nil {
		return 0, fmt.Errorf("failed to decode tokenizer of %s: %w", artifact.Version, err)
	}

	if err := tokenizer.init(); err != nil {
		return 0, fmt.Errorf("model %s: %w", artifact.Version, err)
	}

	if err := head.validate(tokenizer); err != nil {
		return 0, fmt.Errorf("model %s: %w", artifact.Version, err)
	}

	order := head.FieldOrder
	if len(order) == 0 {
		order = r.options.FieldOrder
	}

	text := serializer.Serialize(partial, order, serializer.Sparse)

	embedding, err := r.options.Backbone.Embed(ctx, text)
	if err != nil {
		return 0, embedder.Wrap(r.options.Backbone.Model(), err)
	}

	if len(embedding) != head.BackboneDimension {
		return 0, &retriever.DimensionMismatchError{Ref: "model " + artifact.Version.String(), Expected: head.BackboneDimension, Actual: len(embedding)}
	}

	if model := r.options.Backbone.Model(); model != head.BackboneModel {
		slog.WarnContext(ctx, "backbone differs from the one the model was trained with", "trained", head.BackboneModel, "current", model)
	}

	return head.Forward(newFeatures(tokenizer, text, embedding)), nil
}

func NewRater(opts ...rater.Option) rater.Rater {
	options := rater.NewOptions(opts...)

	if options.Backbone == nil {
		detail := "a backbone embedder is required"
		slog.ErrorContext(options.Context, detail)
		panic(detail)
	}

	if options.Store == nil {
		detail := "a model store is required"
		slog.ErrorContext(options.Context, detail)
		panic(detail)
	}

	return &regressionRater{
		options: options,
	}
}
