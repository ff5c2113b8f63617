package comparison

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	contractSvc "carelane/internal/domain/services/contract"
)

// Embedder is re-exported so wiring code can select a provider without
// reaching into the domain services package.
type Embedder = contractSvc.Embedder

// CohereEmbedder produces embeddings through the Cohere embed API.
type CohereEmbedder struct {
	http  *resty.Client
	model string
}

// NewCohereEmbedder creates a new Cohere embeddings client.
func NewCohereEmbedder(apiKey, model string) (*CohereEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("cohere API key is required")
	}
	return &CohereEmbedder{
		http: resty.New().
			SetBaseURL("https://api.cohere.com").
			SetAuthToken(apiKey).
			SetTimeout(30 * time.Second),
		model: model,
	}, nil
}

type embedRequest struct {
	Texts     []string `json:"texts"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns the embedding for a single text.
func (e *CohereEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	var out embedResponse
	resp, err := e.http.R().
		SetContext(ctx).
		SetBody(embedRequest{
			Texts:     []string{text},
			Model:     e.model,
			InputType: "search_document",
		}).
		SetResult(&out).
		Post("/v1/embed")
	if err != nil {
		return nil, fmt.Errorf("cohere embed: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("cohere embed: %s: %s", resp.Status(), resp.String())
	}
	if len(out.Embeddings) == 0 {
		return nil, fmt.Errorf("cohere embed: empty response")
	}
	return out.Embeddings[0], nil
}

// LocalEmbedder is a deterministic hashed bag-of-words embedder for
// development and tests: no API key, identical text always maps to the
// identical vector.
type LocalEmbedder struct {
	dim int
}

// NewLocalEmbedder creates a local embedder with the given dimension.
func NewLocalEmbedder(dim int) *LocalEmbedder {
	if dim <= 0 {
		dim = 256
	}
	return &LocalEmbedder{dim: dim}
}

// Embed hashes tokens into buckets and L2-normalizes the result.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vec := make([]float32, e.dim)
	for _, tok := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		h.Write([]byte(strings.Trim(tok, ".,;:!?()\"'")))
		vec[int(h.Sum32())%e.dim]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec, nil
}

var _ contractSvc.Embedder = (*CohereEmbedder)(nil)
var _ contractSvc.Embedder = (*LocalEmbedder)(nil)
