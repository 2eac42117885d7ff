package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/imagesieve/imagesieve/internal/config"
	"github.com/imagesieve/imagesieve/internal/engine"
	"github.com/imagesieve/imagesieve/internal/feature"
	"github.com/imagesieve/imagesieve/internal/metric"
)

type stubEmbedder struct {
	vec feature.Vector
	err error
}

func (s *stubEmbedder) Text(ctx context.Context, text string) (feature.Vector, error) {
	return s.vec, s.err
}

func testCorpus() *engine.Corpus {
	c := &engine.Corpus{}
	for i := range 5 {
		angle := float64(i) * 0.3
		c.Files = append(c.Files, fmt.Sprintf("file%d.png", i))
		c.Features = append(c.Features, feature.Vector{
			float32(math.Cos(angle)), float32(math.Sin(angle)),
		})
	}
	return c
}

func testServer(t *testing.T, deps Deps) *Server {
	t.Helper()
	if deps.Corpus == nil {
		deps.Corpus = testCorpus()
	}
	if deps.Metric == nil {
		deps.Metric = metric.NewEmbedding()
	}
	return NewServer(config.Load(), "localhost", 0, deps)
}

func postJSON(t *testing.T, s *Server, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	s := testServer(t, Deps{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status ok, got %q", body["status"])
	}
}

func TestSearch_VectorQuery(t *testing.T) {
	s := testServer(t, Deps{})

	rec := postJSON(t, s, "/api/v1/search", map[string]any{
		"positive": [][]float32{{1, 0}},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Matches []engine.Match `json:"matches"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if len(resp.Matches) != 5 {
		t.Fatalf("expected 5 ranked matches, got %d", len(resp.Matches))
	}
	if resp.Matches[0].Path != "file0.png" {
		t.Errorf("expected file0.png first, got %s", resp.Matches[0].Path)
	}
}

func TestSearch_TextQuery(t *testing.T) {
	s := testServer(t, Deps{
		Embedder: &stubEmbedder{vec: feature.Vector{1, 0}},
	})

	rec := postJSON(t, s, "/api/v1/search", map[string]any{
		"text":         "a cat",
		"closest_only": true,
		"threshold":    0.9,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Matches []engine.Match `json:"matches"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	// Text mode loosens the threshold to 0.3, letting nearby files through
	for _, m := range resp.Matches {
		if m.Score <= 0.3 {
			t.Errorf("%s scored %f, below the loosened threshold", m.Path, m.Score)
		}
	}
}

func TestSearch_MixedTextAndVectorKeepsThreshold(t *testing.T) {
	s := testServer(t, Deps{
		Embedder: &stubEmbedder{vec: feature.Vector{1, 0}},
	})

	// A query image alongside the prompt: the text loosening must not apply
	rec := postJSON(t, s, "/api/v1/search", map[string]any{
		"text":         "a cat",
		"positive":     [][]float32{{1, 0}},
		"closest_only": true,
		"threshold":    0.9,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Matches []engine.Match `json:"matches"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	// Only file0 (1.0) and file1 (cos 0.3 ≈ 0.955) clear 0.9; a loosened
	// threshold of 0.3 would admit all five
	if len(resp.Matches) != 2 {
		t.Fatalf("expected 2 matches above 0.9, got %d: %v", len(resp.Matches), resp.Matches)
	}
	for _, m := range resp.Matches {
		if m.Score <= 0.9 {
			t.Errorf("%s scored %f, below the strict threshold", m.Path, m.Score)
		}
	}
}

func TestSearch_TextWithoutEmbedder(t *testing.T) {
	s := testServer(t, Deps{})

	rec := postJSON(t, s, "/api/v1/search", map[string]any{"text": "a cat"})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestSearch_EmbedderFailure(t *testing.T) {
	s := testServer(t, Deps{
		Embedder: &stubEmbedder{err: errors.New("connection refused")},
	})

	rec := postJSON(t, s, "/api/v1/search", map[string]any{"text": "a cat"})
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}

func TestSearch_NoQueryVectors(t *testing.T) {
	s := testServer(t, Deps{})

	rec := postJSON(t, s, "/api/v1/search", map[string]any{})
	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404 for a query without vectors, got %d", rec.Code)
	}
}

func TestSearch_InvalidBody(t *testing.T) {
	s := testServer(t, Deps{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/search", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestGroup_RunsConfiguredPipeline(t *testing.T) {
	called := false
	s := testServer(t, Deps{
		Group: func(ctx context.Context) (*engine.Result, error) {
			called = true
			return &engine.Result{
				FileGroups: map[int]map[string]float64{
					0: {"a.png": 1.0, "b.png": 0.99},
				},
				Duplicates: [][2]string{{"a.png", "b.png"}},
			}, nil
		},
	})

	rec := postJSON(t, s, "/api/v1/group", map[string]any{})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !called {
		t.Fatal("expected the group pipeline to run")
	}

	var resp struct {
		Groups     map[string]map[string]float64 `json:"groups"`
		Duplicates [][2]string                   `json:"duplicates"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid JSON response: %v", err)
	}
	if len(resp.Groups) != 1 || len(resp.Groups["0"]) != 2 {
		t.Errorf("unexpected groups: %v", resp.Groups)
	}
	if len(resp.Duplicates) != 1 {
		t.Errorf("unexpected duplicates: %v", resp.Duplicates)
	}
}

func TestGroup_NotConfigured(t *testing.T) {
	s := testServer(t, Deps{})

	rec := postJSON(t, s, "/api/v1/group", map[string]any{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestGroup_PipelineError(t *testing.T) {
	s := testServer(t, Deps{
		Group: func(ctx context.Context) (*engine.Result, error) {
			return nil, errors.New("corpus directory missing")
		},
	})

	rec := postJSON(t, s, "/api/v1/group", map[string]any{})
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", rec.Code)
	}
}
