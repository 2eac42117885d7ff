package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"strings"

	"github.com/imagesieve/imagesieve/internal/feature"
)

const defaultEmbedURL = "http://localhost:8000"

// EmbedClient talks to a local CLIP embedding server. The server exposes
// /embed/image (multipart upload) and /embed/text (JSON body) and returns
// the raw embedding plus model metadata.
type EmbedClient struct {
	baseURL string
	client  *http.Client
}

// NewEmbedClient creates a client for the embedding server at baseURL,
// defaulting to localhost when empty.
func NewEmbedClient(baseURL string) *EmbedClient {
	if baseURL == "" {
		baseURL = defaultEmbedURL
	}
	return &EmbedClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{},
	}
}

type embedResponse struct {
	Dim       int       `json:"dim"`
	Embedding []float32 `json:"embedding"`
	Model     string    `json:"model"`
}

// Image computes the embedding for raw image bytes. The result is
// normalized so downstream cosine scoring reduces to a dot product.
func (c *EmbedClient) Image(ctx context.Context, imageData []byte) (feature.Vector, error) {
	body, err := c.postMultipartImage(ctx, "/embed/image", imageData)
	if err != nil {
		return nil, err
	}
	return parseEmbedding(body)
}

// ImageFile reads the file at path and computes its embedding.
func (c *EmbedClient) ImageFile(ctx context.Context, path string) (feature.Vector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return c.Image(ctx, data)
}

// Text computes the CLIP embedding of a text query, normalized.
func (c *EmbedClient) Text(ctx context.Context, text string) (feature.Vector, error) {
	reqBody, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embed/text", bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return parseEmbedding(body)
}

// ExtractFunc adapts the client to the feature store's extractor shape.
func (c *EmbedClient) ExtractFunc(ctx context.Context) feature.ExtractFunc {
	return func(path string) (feature.Value, error) {
		return c.ImageFile(ctx, path)
	}
}

func parseEmbedding(body []byte) (feature.Vector, error) {
	var embResp embedResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	if len(embResp.Embedding) == 0 {
		return nil, errors.New("empty embedding returned")
	}
	return feature.Vector(embResp.Embedding).Normalize(), nil
}

// postMultipartImage uploads the image as a multipart form to endpoint.
// The part carries an explicit Content-Type from magic byte detection.
func (c *EmbedClient) postMultipartImage(ctx context.Context, endpoint string, imageData []byte) ([]byte, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="file"; filename="image"`)
	h.Set("Content-Type", detectMIMEType(imageData))
	part, err := writer.CreatePart(h)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}

	if _, err := part.Write(imageData); err != nil {
		return nil, fmt.Errorf("failed to write image data: %w", err)
	}

	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, &buf)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(body))
	}

	return body, nil
}

// detectMIMEType detects the image MIME type from magic bytes.
func detectMIMEType(data []byte) string {
	if len(data) < 8 {
		return "application/octet-stream"
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return "image/jpeg"
	}
	// PNG: 89 50 4E 47
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return "image/png"
	}
	// GIF: 47 49 46 38
	if data[0] == 0x47 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x38 {
		return "image/gif"
	}
	// WebP: RIFF....WEBP
	if len(data) >= 12 && data[0] == 0x52 && data[1] == 0x49 && data[2] == 0x46 && data[3] == 0x46 &&
		data[8] == 0x57 && data[9] == 0x45 && data[10] == 0x42 && data[11] == 0x50 {
		return "image/webp"
	}
	return "application/octet-stream"
}
