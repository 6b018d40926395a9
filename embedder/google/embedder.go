package google

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"github.com/w-h-a/recommender/embedder"
	genaiopt "google.golang.org/api/option"
)

const defaultModel = "text-embedding-004"

// empty content is rejected upstream; a single space stands in for it
const emptyInput = " "

func content(text string) genai.Text {
	if len(text) == 0 {
		return genai.Text(emptyInput)
	}
	return genai.Text(text)
}

type googleEmbedder struct {
	options embedder.Options
	client  *genai.Client
}

func (e *googleEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	model := e.client.EmbeddingModel(e.options.Model)
	rsp, err := model.EmbedContent(ctx, content(text))
	if err != nil {
		return nil, embedder.Wrap(e.options.Model, err)
	}

	if rsp == nil || rsp.Embedding == nil || len(rsp.Embedding.Values) == 0 {
		return nil, embedder.Wrap(e.options.Model, errors.New("no response from Google"))
	}

	if len(rsp.Embedding.Values) != e.options.Dimension {
		return nil, embedder.Wrap(e.options.Model, fmt.Errorf("expected dimension %d, got %d", e.options.Dimension, len(rsp.Embedding.Values)))
	}

	return rsp.Embedding.Values, nil
}

func (e *googleEmbedder) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	model := e.client.EmbeddingModel(e.options.Model)
	vecs := make([][]float32, 0, len(texts))

	for start := 0; start < len(texts); start += e.options.BatchSize {
		end := min(start+e.options.BatchSize, len(texts))

		batch := model.NewBatch()
		for _, t := range texts[start:end] {
			batch.AddContent(content(t))
		}

		rsp, err := model.BatchEmbedContents(ctx, batch)
		if err != nil {
			return nil, embedder.Wrap(e.options.Model, err)
		}

		if rsp == nil || len(rsp.Embeddings) != end-start {
			return nil, embedder.Wrap(e.options.Model, errors.New("incomplete batch response from Google"))
		}

		for _, emb := range rsp.Embeddings {
			if emb == nil || len(emb.Values) != e.options.Dimension {
				return nil, embedder.Wrap(e.options.Model, errors.New("malformed embedding in batch response from Google"))
			}
			vecs = append(vecs, emb.Values)
		}
	}

	return vecs, nil
}

func (e *googleEmbedder) Dimension() int {
	return e.options.Dimension
}

func (e *googleEmbedder) Model() string {
	return e.options.Model
}

func NewEmbedder(opts ...embedder.Option) embedder.Embedder {
	options := embedder.NewOptions(opts...)

	if len(options.Model) == 0 {
		options.Model = defaultModel
	}

	if options.Dimension <= 0 {
		options.Dimension = 768
	}

	if options.BatchSize <= 0 || options.BatchSize > 100 {
		options.BatchSize = 100
	}

	e := &googleEmbedder{
		options: options,
	}

	clientOpts := []genaiopt.ClientOption{genaiopt.WithAPIKey(options.ApiKey)}
	clientOpts = append(clientOpts, ClientOptionsFrom(options.Context)...)

	client, err := genai.NewClient(context.Background(), clientOpts...)
	if err != nil {
		detail := "failed to create google embedder client"
		slog.ErrorContext(context.Background(), detail, "error", err)
		panic(detail)
	}

	e.client = client

	return e
}
