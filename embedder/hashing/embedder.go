// Package hashing is a local encoder that projects unigram and bigram
// features into a fixed number of signed buckets. It needs no network and
// is fully deterministic.
package hashing

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strings"
	"unicode"

	"github.com/cespare/xxhash/v2"
	"github.com/w-h-a/recommender/embedder"
	"golang.org/x/sync/errgroup"
)

const (
	defaultDimension = 384
	clsFeature       = "[CLS]"
)

type hashingEmbedder struct {
	options embedder.Options
	dim     int
	model   string
}

func (e *hashingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return e.encode(text), nil
}

func (e *hashingEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(ctx, text)
			if err != nil {
				return err
			}
			vecs[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return vecs, nil
}

func (e *hashingEmbedder) Dimension() int {
	return e.dim
}

func (e *hashingEmbedder) Model() string {
	return e.model
}

func (e *hashingEmbedder) encode(text string) []float32 {
	features := []string{clsFeature}
	tokens := Tokenize(text)
	for i, tok := range tokens {
		features = append(features, "u:"+tok)
		if i > 0 {
			features = append(features, "b:"+tokens[i-1]+" "+tok)
		}
	}

	// first-occurrence order keeps the float accumulation order fixed
	counts := make(map[string]int, len(features))
	unique := make([]string, 0, len(features))
	for _, f := range features {
		if counts[f] == 0 {
			unique = append(unique, f)
		}
		counts[f]++
	}

	acc := make([]float64, e.dim)
	for _, f := range unique {
		h := xxhash.Sum64String(f)
		idx := h % uint64(e.dim)
		weight := 1 + math.Log(float64(counts[f]))
		if h>>63 == 1 {
			weight = -weight
		}
		acc[idx] += weight
	}

	var norm float64
	for _, v := range acc {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	vec := make([]float32, e.dim)
	if norm == 0 {
		return vec
	}
	for i, v := range acc {
		vec[i] = float32(v / norm)
	}

	return vec
}

// Tokenize lower-cases text and splits it on anything that is not a
// letter or a digit.
func Tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func NewEmbedder(opts ...embedder.Option) embedder.Embedder {
	options := embedder.NewOptions(opts...)

	dim := options.Dimension
	if dim <= 0 {
		dim = defaultDimension
	}

	model := options.Model
	if len(model) == 0 {
		model = fmt.Sprintf("hashing-%d", dim)
	}

	return &hashingEmbedder{
		options: options,
		dim:     dim,
		model:   model,
	}
}
