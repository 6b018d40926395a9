package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/sashabaranov/go-openai"
	"github.com/w-h-a/recommender/embedder"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const defaultModel = "text-embedding-3-small"

// the API rejects empty input, so the empty string is sent as a single
// space, which is itself a stable input
const emptyInput = " "

type openAIEmbedder struct {
	options embedder.Options
	client  *openai.Client
}

func (e *openAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (e *openAIEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += e.options.BatchSize {
		end := min(start+e.options.BatchSize, len(texts))

		batch := make([]string, 0, end-start)
		for _, t := range texts[start:end] {
			if len(t) == 0 {
				t = emptyInput
			}
			batch = append(batch, t)
		}

		rsp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input:      batch,
			Model:      openai.EmbeddingModel(e.options.Model),
			Dimensions: e.options.Dimension,
		})
		if err != nil {
			return nil, embedder.Wrap(e.options.Model, err)
		}

		if len(rsp.Data) != len(batch) {
			return nil, embedder.Wrap(e.options.Model, fmt.Errorf("expected %d embeddings from OpenAI, got %d", len(batch), len(rsp.Data)))
		}

		sort.SliceStable(rsp.Data, func(i, j int) bool {
			return rsp.Data[i].Index < rsp.Data[j].Index
		})

		for _, d := range rsp.Data {
			if len(d.Embedding) == 0 {
				return nil, embedder.Wrap(e.options.Model, errors.New("no response from OpenAI"))
			}
			if len(d.Embedding) != e.options.Dimension {
				return nil, embedder.Wrap(e.options.Model, fmt.Errorf("expected dimension %d, got %d", e.options.Dimension, len(d.Embedding)))
			}
			vecs = append(vecs, d.Embedding)
		}
	}

	return vecs, nil
}

func (e *openAIEmbedder) Dimension() int {
	return e.options.Dimension
}

func (e *openAIEmbedder) Model() string {
	return e.options.Model
}

func NewEmbedder(opts ...embedder.Option) embedder.Embedder {
	options := embedder.NewOptions(opts...)

	if len(options.Model) == 0 {
		options.Model = defaultModel
	}

	if options.Dimension <= 0 {
		options.Dimension = 1536
	}

	if options.BatchSize <= 0 {
		options.BatchSize = 64
	}

	e := &openAIEmbedder{
		options: options,
	}

	config := openai.DefaultConfig(options.ApiKey)
	if baseURL, ok := BaseURLFrom(options.Context); ok {
		config.BaseURL = baseURL
	}

	config.HTTPClient = &http.Client{
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	e.client = openai.NewClientWithConfig(config)

	return e
}
