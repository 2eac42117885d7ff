package web

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"github.com/imagesieve/imagesieve/internal/engine"
	"github.com/imagesieve/imagesieve/internal/feature"
	"github.com/imagesieve/imagesieve/internal/metric"
)

const errInvalidRequestBody = "invalid request body"

// TextEmbedder turns a text query into a vector comparable against the
// corpus embeddings.
type TextEmbedder interface {
	Text(ctx context.Context, text string) (feature.Vector, error)
}

// Deps carries everything the handlers need. Group runs the configured
// grouping pipeline; it is a closure so the handler stays ignorant of
// checkpoint blobs and scanner choice.
type Deps struct {
	Corpus   *engine.Corpus
	Metric   metric.Metric
	Embedder TextEmbedder
	Group    func(ctx context.Context) (*engine.Result, error)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// SearchHandler answers similarity queries against the in-memory corpus.
type SearchHandler struct {
	deps Deps
}

func NewSearchHandler(deps Deps) *SearchHandler {
	return &SearchHandler{deps: deps}
}

type searchRequest struct {
	Text        string      `json:"text,omitempty"`
	Positive    [][]float32 `json:"positive,omitempty"`
	Negative    [][]float32 `json:"negative,omitempty"`
	Threshold   float64     `json:"threshold,omitempty"`
	MaxResults  int         `json:"max_results,omitempty"`
	ClosestOnly bool        `json:"closest_only,omitempty"`
}

type searchResponse struct {
	Matches []engine.Match `json:"matches"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return
	}

	var positive, negative []feature.Value
	for _, v := range req.Positive {
		positive = append(positive, feature.Vector(v).Normalize())
	}
	for _, v := range req.Negative {
		negative = append(negative, feature.Vector(v).Normalize())
	}

	textOnly := false
	if req.Text != "" {
		if h.deps.Embedder == nil {
			respondError(w, http.StatusBadRequest, "text queries are not configured")
			return
		}
		vec, err := h.deps.Embedder.Text(r.Context(), req.Text)
		if err != nil {
			log.Printf("text embedding failed: %v", err)
			respondError(w, http.StatusBadGateway, "text embedding failed")
			return
		}
		// The loosened threshold applies only when the prompt is the sole
		// positive term
		textOnly = len(positive) == 0
		positive = append(positive, vec)
	}

	matches, err := engine.MatchQuery(h.deps.Corpus, h.deps.Metric, positive, negative, engine.QueryOptions{
		Threshold:   req.Threshold,
		TextOnly:    textOnly,
		MaxResults:  req.MaxResults,
		ClosestOnly: req.ClosestOnly,
	})
	if errors.Is(err, engine.ErrNoResults) {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		log.Printf("search failed: %v", err)
		respondError(w, http.StatusInternalServerError, "search failed")
		return
	}

	respondJSON(w, http.StatusOK, searchResponse{Matches: matches})
}

// GroupHandler runs the grouping pipeline over the configured corpus.
type GroupHandler struct {
	deps Deps
}

func NewGroupHandler(deps Deps) *GroupHandler {
	return &GroupHandler{deps: deps}
}

type groupResponse struct {
	Groups     map[int]map[string]float64 `json:"groups"`
	Duplicates [][2]string                `json:"duplicates"`
}

func (h *GroupHandler) Group(w http.ResponseWriter, r *http.Request) {
	if h.deps.Group == nil {
		respondError(w, http.StatusBadRequest, "grouping is not configured")
		return
	}

	result, err := h.deps.Group(r.Context())
	if err != nil {
		log.Printf("grouping failed: %v", err)
		respondError(w, http.StatusInternalServerError, "grouping failed")
		return
	}

	respondJSON(w, http.StatusOK, groupResponse{
		Groups:     result.FileGroups,
		Duplicates: result.Duplicates,
	})
}
