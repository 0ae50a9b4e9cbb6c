package embeddings

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/fabfab/stakeholder-rag/errs"
)

type openAIEmbedder struct {
	client    *openai.Client
	model     string
	dimension int
}

func NewOpenAIEmbedder(opts Options) Embedder {
	cfg := openai.DefaultConfig(opts.OpenAIAPIKey)
	if opts.OpenAIBaseURL != "" {
		cfg.BaseURL = opts.OpenAIBaseURL
	}

	return &openAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     opts.Model,
		dimension: opts.Dimension,
	}
}

func (e *openAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, errs.Service("openai embeddings", fmt.Errorf("create openai embeddings: %w", err))
	}
	if len(resp.Data) != len(texts) {
		return nil, errs.Service("openai embeddings", fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data)))
	}

	results := make([][]float32, len(texts))
	for _, datum := range resp.Data {
		if e.dimension > 0 && len(datum.Embedding) != e.dimension {
			return nil, errs.Service("openai embeddings", fmt.Errorf("openai embedding dimension mismatch: expected %d, got %d", e.dimension, len(datum.Embedding)))
		}
		if datum.Index < 0 || datum.Index >= len(results) {
			return nil, errs.Service("openai embeddings", fmt.Errorf("embedding index %d out of range", datum.Index))
		}
		results[datum.Index] = datum.Embedding
	}

	return results, nil
}
