package openai

import (
	"context"
	"fmt"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"
)

// Embedder implements search.Embedder with the embeddings API.
type Embedder struct {
	client    *goopenai.Client
	model     goopenai.EmbeddingModel
	dimension int
	name      string
}

// NewEmbedder uses text-embedding-ada-002 unless model is set. For Azure,
// cfg.Deployment names the embedding deployment.
func NewEmbedder(cfg Config, model string) *Embedder {
	m := goopenai.AdaEmbeddingV2
	if model != "" {
		m = goopenai.EmbeddingModel(model)
	}
	name := APITypeOpenAI
	if strings.EqualFold(cfg.APIType, APITypeAzure) {
		name = APITypeAzure
	}
	return &Embedder{
		client:    goopenai.NewClientWithConfig(cfg.ClientConfig()),
		model:     m,
		dimension: 1536,
		name:      name,
	}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: []string{text},
		Model: e.model,
	})
	if err != nil {
		return nil, mapError(e.name, fmt.Errorf("create embeddings: %w", err))
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	embedding := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		embedding[i] = float32(v)
	}
	return embedding, nil
}

// Dimension returns the vector size of the default model.
func (e *Embedder) Dimension() int {
	return e.dimension
}
