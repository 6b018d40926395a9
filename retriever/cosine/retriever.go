package cosine

import (
	"context"
	"sort"

	"github.com/w-h-a/recommender/embedder"
	"github.com/w-h-a/recommender/retriever"
	"golang.org/x/sync/errgroup"
)

type cosineRetriever struct {
	options retriever.Options
}

func (r *cosineRetriever) TopK(ctx context.Context, query string, candidates []retriever.Candidate, k int) (retriever.Ranking, error) {
	if k < 0 {
		return retriever.Ranking{}, retriever.ErrInvalidK
	}

	if len(candidates) == 0 {
		return retriever.Ranking{Results: []retriever.Result{}}, nil
	}

	vec, err := r.options.Embedder.Embed(ctx, query)
	if err != nil {
		return retriever.Ranking{}, embedder.Wrap(r.options.Embedder.Model(), err)
	}

	dim := r.options.Embedder.Dimension()
	if len(vec) != dim {
		return retriever.Ranking{}, &retriever.DimensionMismatchError{Ref: "query", Expected: dim, Actual: len(vec)}
	}

	for _, c := range candidates {
		if len(c.Vector) != dim {
			return retriever.Ranking{}, &retriever.DimensionMismatchError{Ref: c.Ref, Expected: dim, Actual: len(c.Vector)}
		}
	}

	scores, err := r.score(ctx, vec, candidates)
	if err != nil {
		return retriever.Ranking{}, err
	}

	results := make([]retriever.Result, len(candidates))
	for i, c := range candidates {
		results[i] = retriever.Result{Ref: c.Ref, Index: i, Score: scores[i]}
	}

	// stable: equal scores keep candidate order
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if len(results) > k {
		results = results[:k]
	}

	for i := range results {
		results[i].Score = retriever.Round4(results[i].Score)
	}

	return retriever.Ranking{Results: results}, nil
}

func (r *cosineRetriever) score(ctx context.Context, query []float32, candidates []retriever.Candidate) ([]float64, error) {
	scores := make([]float64, len(candidates))
	queryNorm := retriever.Norm(query)

	if len(candidates) < r.options.ParallelThreshold {
		for i, c := range candidates {
			scores[i] = retriever.CosineWithNorm(query, queryNorm, c.Vector)
		}
		return scores, nil
	}

	g, ctx := errgroup.WithContext(ctx)

	for start := 0; start < len(candidates); start += r.options.ChunkSize {
		end := min(start+r.options.ChunkSize, len(candidates))
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				scores[i] = retriever.CosineWithNorm(query, queryNorm, candidates[i].Vector)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return scores, nil
}

func NewRetriever(opts ...retriever.Option) retriever.Retriever {
	options := retriever.NewOptions(opts...)

	if options.Embedder == nil {
		panic("embedder is required")
	}

	if options.ChunkSize <= 0 {
		options.ChunkSize = 1024
	}

	return &cosineRetriever{
		options: options,
	}
}
