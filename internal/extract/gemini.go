package extract

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/imagesieve/imagesieve/internal/feature"
)

const geminiEmbeddingModel = "gemini-embedding-001"

// GeminiEmbedder computes text embeddings through the Gemini API. Same
// caveat as the OpenAI embedder: vectors are only comparable against a
// corpus embedded with the same model.
type GeminiEmbedder struct {
	client *genai.Client
}

func NewGeminiEmbedder(ctx context.Context, apiKey string) (*GeminiEmbedder, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiEmbedder{client: client}, nil
}

func (e *GeminiEmbedder) Name() string {
	return geminiEmbeddingModel
}

// Text computes the embedding of a text query, normalized.
func (e *GeminiEmbedder) Text(ctx context.Context, text string) (feature.Vector, error) {
	resp, err := e.client.Models.EmbedContent(ctx, geminiEmbeddingModel, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("gemini API error: %w", err)
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, errors.New("no embedding from Gemini")
	}

	return feature.Vector(resp.Embeddings[0].Values).Normalize(), nil
}
