// Package embedgateway wraps an OpenAI-compatible embeddings endpoint used
// by the feedback store to turn canonical feedback text into vectors.
package embedgateway

import (
	"context"

	"github.com/coralrun/agentfsm/pkg/models"
	openai "github.com/sashabaranov/go-openai"
)

const defaultBatchSize = 2048

// Gateway embeds batches of text, validating returned dimension against the
// coordinates' declared vector_dim.
type Gateway struct {
	client    *openai.Client
	coords    models.EmbeddingModelCoordinates
	batchSize int
}

// New builds a Gateway for the given embedding model coordinates.
func New(coords models.EmbeddingModelCoordinates) *Gateway {
	config := openai.DefaultConfig(coords.APIKey)
	if coords.BaseURL != "" {
		config.BaseURL = coords.BaseURL
	}
	batchSize := coords.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &Gateway{
		client:    openai.NewClientWithConfig(config),
		coords:    coords,
		batchSize: batchSize,
	}
}

// Embed embeds a single text.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, &RequestError{Cause: errNoEmbeddingReturned}
	}
	return vectors[0], nil
}

// EmbedBatch embeds a batch of texts, chunking at the provider's batch
// limit and validating every returned vector's dimension.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.batchSize {
		end := start + g.batchSize
		if end > len(texts) {
			end = len(texts)
		}

		chunk, err := g.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		results = append(results, chunk...)
	}
	return results, nil
}

func (g *Gateway) embedChunk(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := g.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(g.coords.Model),
	})
	if err != nil {
		return nil, &RequestError{Cause: err}
	}

	results := make([][]float32, len(resp.Data))
	for _, data := range resp.Data {
		if g.coords.VectorDim > 0 && len(data.Embedding) != g.coords.VectorDim {
			return nil, &DimensionMismatch{
				Model:    g.coords.Model,
				Expected: g.coords.VectorDim,
				Got:      len(data.Embedding),
			}
		}
		results[data.Index] = data.Embedding
	}
	return results, nil
}
