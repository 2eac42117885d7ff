package extract

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/imagesieve/imagesieve/internal/feature"
)

const openAIEmbeddingModel = openai.EmbeddingModelTextEmbedding3Small

// OpenAIEmbedder computes text embeddings through the OpenAI API. It is a
// fallback for text queries when no local embedding server is running; image
// and text vectors from different models do not live in the same space, so
// mixing providers within one corpus gives meaningless scores.
type OpenAIEmbedder struct {
	client *openai.Client
}

func NewOpenAIEmbedder(apiKey string) *OpenAIEmbedder {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAIEmbedder{client: &client}
}

func (e *OpenAIEmbedder) Name() string {
	return openAIEmbeddingModel
}

// Text computes the embedding of a text query, normalized.
func (e *OpenAIEmbedder) Text(ctx context.Context, text string) (feature.Vector, error) {
	resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(text),
		},
		Model: openAIEmbeddingModel,
	})
	if err != nil {
		return nil, fmt.Errorf("OpenAI API error: %w", err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("no embedding from OpenAI")
	}

	vec := make(feature.Vector, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		vec[i] = float32(v)
	}
	return vec.Normalize(), nil
}
