package recommender

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/w-h-a/recommender/embedder"
	"github.com/w-h-a/recommender/embedder/hashing"
	modelstore "github.com/w-h-a/recommender/model_store"
	"github.com/w-h-a/recommender/rater"
	"github.com/w-h-a/recommender/rater/regression"
	"github.com/w-h-a/recommender/record"
	"github.com/w-h-a/recommender/retriever"
	"github.com/w-h-a/recommender/retriever/cosine"
	"github.com/w-h-a/recommender/storer"
	"github.com/w-h-a/recommender/storer/memory"
)

var errBoom = errors.New("boom")

// flakyEmbedder fails on any text containing "broken".
type flakyEmbedder struct {
	embedder.Embedder
}

func (e *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "broken") {
		return nil, errBoom
	}
	return e.Embedder.Embed(ctx, text)
}

type brokenStorer struct {
	storer.Storer
}

func (s *brokenStorer) ReadAll(ctx context.Context) ([]record.Record, error) {
	return nil, &storer.StoreReadError{Store: "broken", Err: errBoom}
}

type fixedRater struct {
	rating float64
	err    error
}

func (r *fixedRater) Train(ctx context.Context, records []record.Record, cfg rater.TrainConfig) (modelstore.Version, error) {
	return 0, r.err
}

func (r *fixedRater) Predict(ctx context.Context, partial record.Record) (float64, error) {
	return r.rating, r.err
}

func movie(t *testing.T, fields map[string]string) record.Record {
	t.Helper()
	rec := record.New(record.Movies)
	for name, raw := range fields {
		require.NoError(t, rec.SetText(name, raw))
	}
	return rec
}

func catalogue(t *testing.T) []record.Record {
	return []record.Record{
		movie(t, map[string]string{
			record.FieldID:          "1",
			record.FieldName:        "Grey Monsoon",
			record.FieldGenre:       "Drama",
			record.FieldDescription: "a clerk waits out a long monsoon",
			record.FieldReview:      "dragged on forever",
			record.FieldRating:      "2",
		}),
		movie(t, map[string]string{
			record.FieldID:          "2",
			record.FieldName:        "Second Platform",
			record.FieldGenre:       "Romance",
			record.FieldDescription: "a commuter meets a stranger on a train",
			record.FieldReview:      "sweet enough",
			record.FieldRating:      "4.5",
		}),
		movie(t, map[string]string{
			record.FieldID:          "3",
			record.FieldName:        "Silver Heist",
			record.FieldGenre:       "Thriller",
			record.FieldDescription: "a heist across the rooftops of mumbai",
			record.FieldReview:      "fine for a weekend",
			record.FieldRating:      "5",
		}),
		movie(t, map[string]string{
			record.FieldID:          "4",
			record.FieldName:        "Desert Song",
			record.FieldGenre:       "Musical",
			record.FieldDescription: "a singer crosses the desert on a camel",
			record.FieldReview:      "loved every minute",
			record.FieldRating:      "8",
		}),
	}
}

type fixture struct {
	svc     *Service
	store   storer.Storer
	encoder embedder.Embedder
}

func newFixture(t *testing.T, r rater.Rater, records ...record.Record) fixture {
	t.Helper()

	encoder := &flakyEmbedder{Embedder: hashing.NewEmbedder(embedder.WithDimension(1024))}
	store := memory.NewStorer(memory.WithRecords(records...))

	if r == nil {
		r = regression.NewRater(
			rater.WithBackbone(encoder),
			rater.WithStore(modelstore.NewStore(filepath.Join(t.TempDir(), "model"))),
		)
	}

	svc := New(
		store,
		encoder,
		cosine.NewRetriever(retriever.WithEmbedder(encoder)),
		r,
		record.Movies,
	)

	return fixture{svc: svc, store: store, encoder: encoder}
}

func TestEmbedMissing(t *testing.T) {
	ctx := context.Background()
	records := catalogue(t)

	broken := movie(t, map[string]string{
		record.FieldID:   "5",
		record.FieldName: "broken reel",
	})

	embedded := records[0].Clone()
	embedded.Embedding = make([]float32, 1024)
	embedded.Embedding[0] = 1

	f := newFixture(t, nil, embedded, records[1], broken, records[3])

	report, err := f.svc.EmbedMissing(ctx)
	require.NoError(t, err)
	assert.Equal(t, EmbedReport{Processed: 3, Embedded: 2, Failed: 1}, report)

	stored, err := f.store.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 4)

	// already embedded rows are left alone
	assert.Equal(t, embedded.Embedding, stored[0].Embedding)
	assert.Len(t, stored[1].Embedding, 1024)
	assert.Nil(t, stored[2].Embedding)
	assert.Len(t, stored[3].Embedding, 1024)

	report, err = f.svc.EmbedMissing(ctx)
	require.NoError(t, err)
	assert.Equal(t, EmbedReport{Processed: 1, Embedded: 0, Failed: 1}, report)
}

func TestEmbedMissing_EmptyStore(t *testing.T) {
	f := newFixture(t, nil)

	report, err := f.svc.EmbedMissing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, EmbedReport{}, report)
}

func TestEmbedAndStore(t *testing.T) {
	ctx := context.Background()
	records := catalogue(t)
	f := newFixture(t, nil, records...)

	vec, err := f.svc.EmbedAndStore(ctx, records[1])
	require.NoError(t, err)
	assert.Len(t, vec, 1024)

	stored, err := f.store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Equal(t, vec, stored[1].Embedding)

	ghost := movie(t, map[string]string{record.FieldID: "ghost", record.FieldName: "ghost"})
	_, err = f.svc.EmbedAndStore(ctx, ghost)
	assert.ErrorIs(t, err, storer.ErrRecordNotFound)

	_, err = f.svc.EmbedAndStore(ctx, movie(t, map[string]string{record.FieldID: "1", record.FieldName: "broken"}))
	var encErr *embedder.EncodingError
	assert.ErrorAs(t, err, &encErr)
	assert.ErrorIs(t, err, errBoom)
}

func TestQuery(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, catalogue(t)...)

	_, err := f.svc.EmbedMissing(ctx)
	require.NoError(t, err)

	matches, err := f.svc.Query(ctx, "A SINGER crosses the DESERT on a camel", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	assert.Equal(t, "4", matches[0].Record.ID())
	assert.Equal(t, "Desert Song", matches[0].Record.Get(record.FieldName).String())
	assert.GreaterOrEqual(t, matches[0].Score, matches[1].Score)
	assert.LessOrEqual(t, matches[0].Score, 1.0)

	all, err := f.svc.Query(ctx, "heist", 10)
	require.NoError(t, err)
	assert.Len(t, all, 4)

	none, err := f.svc.Query(ctx, "heist", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestQuery_SkipsUnembedded(t *testing.T) {
	ctx := context.Background()
	records := catalogue(t)
	f := newFixture(t, nil, records...)

	_, err := f.svc.EmbedAndStore(ctx, records[2])
	require.NoError(t, err)

	matches, err := f.svc.Query(ctx, "anything", 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "3", matches[0].Record.ID())
}

func TestQuery_EmptyStore(t *testing.T) {
	f := newFixture(t, nil)

	matches, err := f.svc.Query(context.Background(), "anything", 3)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestQuery_Errors(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, catalogue(t)...)

	_, err := f.svc.Query(ctx, "anything", -1)
	assert.ErrorIs(t, err, retriever.ErrInvalidK)

	f.svc.store = &brokenStorer{}
	_, err = f.svc.Query(ctx, "anything", 1)
	var rerr *storer.StoreReadError
	assert.ErrorAs(t, err, &rerr)
}

func TestQuery_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	rec := catalogue(t)[0]
	rec.Embedding = []float32{1, 0, 0}
	f := newFixture(t, nil, rec)

	_, err := f.svc.Query(ctx, "anything", 1)
	var dm *retriever.DimensionMismatchError
	assert.ErrorAs(t, err, &dm)
}

func TestTrainPredict(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, catalogue(t)...)

	_, err := f.svc.Predict(ctx, catalogue(t)[0])
	var mnf *rater.ModelNotFoundError
	assert.ErrorAs(t, err, &mnf)

	version, err := f.svc.Train(ctx, rater.DefaultTrainConfig())
	require.NoError(t, err)
	assert.Equal(t, modelstore.Version(1), version)

	partial := movie(t, map[string]string{record.FieldName: "Desert Song", record.FieldGenre: "Musical"})
	rating, err := f.svc.Predict(ctx, partial)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(rating))
}

func TestTrain_ReadError(t *testing.T) {
	f := newFixture(t, nil)
	f.svc.store = &brokenStorer{}

	_, err := f.svc.Train(context.Background(), rater.DefaultTrainConfig())
	assert.ErrorIs(t, err, errBoom)
}

func TestAssess(t *testing.T) {
	ctx := context.Background()
	unrated := movie(t, map[string]string{
		record.FieldID:     "9",
		record.FieldReview: "no score given",
	})
	f := newFixture(t, &fixedRater{rating: 5.004}, append(catalogue(t), unrated)...)

	a, err := f.svc.Assess(ctx, movie(t, map[string]string{record.FieldName: "anything"}))
	require.NoError(t, err)
	assert.Equal(t, 5.0, a.Rating)
	assert.Equal(t, []string{"sweet enough", "fine for a weekend"}, a.Reviews)
}

func TestAssess_SkipsNonFiniteRatings(t *testing.T) {
	ctx := context.Background()
	records := []record.Record{
		movie(t, map[string]string{record.FieldID: "1", record.FieldReview: "nan review", record.FieldRating: "NaN"}),
		movie(t, map[string]string{record.FieldID: "2", record.FieldReview: "low review", record.FieldRating: "1"}),
		movie(t, map[string]string{record.FieldID: "3", record.FieldReview: "inf review", record.FieldRating: "Inf"}),
		movie(t, map[string]string{record.FieldID: "4", record.FieldReview: "close review", record.FieldRating: "7.5"}),
	}
	f := newFixture(t, &fixedRater{rating: 8}, records...)

	a, err := f.svc.Assess(ctx, movie(t, nil))
	require.NoError(t, err)
	assert.Equal(t, 8.0, a.Rating)
	assert.Equal(t, []string{"close review"}, a.Reviews)
}

func TestAssess_NoNeighbours(t *testing.T) {
	f := newFixture(t, &fixedRater{rating: 12.3456}, catalogue(t)...)

	a, err := f.svc.Assess(context.Background(), movie(t, nil))
	require.NoError(t, err)
	assert.Equal(t, 12.35, a.Rating)
	assert.NotNil(t, a.Reviews)
	assert.Empty(t, a.Reviews)
}

func TestAssess_PredictError(t *testing.T) {
	f := newFixture(t, &fixedRater{err: &rater.ModelNotFoundError{}}, catalogue(t)...)

	_, err := f.svc.Assess(context.Background(), movie(t, nil))
	var mnf *rater.ModelNotFoundError
	assert.ErrorAs(t, err, &mnf)
}

func TestAddRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil, catalogue(t)...)

	rec := movie(t, map[string]string{
		record.FieldID:     "caller-chosen",
		record.FieldName:   "Monsoon Wedding",
		record.FieldYear:   "2001",
		record.FieldReview: "joyful",
		record.FieldRating: "7.5",
	})

	added, err := f.svc.AddRecord(ctx, rec)
	require.NoError(t, err)
	assert.NotEqual(t, "caller-chosen", added.ID())
	assert.Len(t, added.ID(), 36)
	assert.Len(t, added.Embedding, 1024)

	// the caller's record is untouched
	assert.Equal(t, "caller-chosen", rec.ID())

	stored, err := f.store.ReadAll(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 5)

	last := stored[4]
	assert.Equal(t, added.ID(), last.ID())
	assert.Equal(t, added.Embedding, last.Embedding)
	assert.Equal(t, "Monsoon Wedding", last.Get(record.FieldName).String())

	budget, ok := last.Get(record.FieldBudget).Float()
	assert.True(t, ok)
	assert.Equal(t, 0.0, budget)

	matches, err := f.svc.Query(ctx, "monsoon wedding", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, added.ID(), matches[0].Record.ID())
}

func TestAddRecord_Invalid(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	tests := map[string]map[string]string{
		"missing rating":     {record.FieldName: "x", record.FieldReview: "good"},
		"non-numeric rating": {record.FieldName: "x", record.FieldReview: "good", record.FieldRating: "great"},
		"missing review":     {record.FieldName: "x", record.FieldRating: "6"},
		"blank review":       {record.FieldName: "x", record.FieldRating: "6", record.FieldReview: "   "},
		"NaN rating":         {record.FieldName: "x", record.FieldReview: "good", record.FieldRating: "NaN"},
		"infinite rating":    {record.FieldName: "x", record.FieldReview: "good", record.FieldRating: "Inf"},
	}

	for name, fields := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.AddRecord(ctx, movie(t, fields))
			assert.ErrorIs(t, err, ErrInvalidRecord)
		})
	}

	stored, err := f.store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestAddRecord_EmbedFailureStoresNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)

	_, err := f.svc.AddRecord(ctx, movie(t, map[string]string{
		record.FieldName:   "broken",
		record.FieldReview: "fine",
		record.FieldRating: "5",
	}))
	assert.ErrorIs(t, err, errBoom)
	stored, err := f.store.ReadAll(ctx)
	require.NoError(t, err)
	assert.Empty(t, stored)
}

func TestRound2(t *testing.T) {
	tests := map[float64]float64{
		5.004:  5.0,
		5.006:  5.01,
		-1.234: -1.23,
		7:      7,
	}

	for in, want := range tests {
		assert.InDelta(t, want, Round2(in), 1e-9, "%v", in)
	}
}
