package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"convograph/internal/observability"
)

// Embedder turns text into a vector for the vector adapter's auto-embed
// contract. It is a distinct, narrower surface than Adapter because
// embeddings run against a different remote model/host than chat completions.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

type embeddingRequest struct {
	Input          []string `json:"input"`
	Model          string   `json:"model"`
	EncodingFormat string   `json:"encoding_format"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

// HTTPEmbedder calls an OpenAI-compatible embeddings endpoint over raw HTTP.
type HTTPEmbedder struct {
	Host   string
	Model  string
	APIKey string
	Client *http.Client
}

// NewHTTPEmbedder constructs an embedder against an OpenAI-compatible host.
func NewHTTPEmbedder(host, model, apiKey string) *HTTPEmbedder {
	return &HTTPEmbedder{
		Host:   host,
		Model:  model,
		APIKey: apiKey,
		Client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{
		Input:          []string{text},
		Model:          e.Model,
		EncodingFormat: "float",
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.Host, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.APIKey)
	}

	log := observability.LoggerWithTrace(ctx)
	resp, err := e.Client.Do(req)
	if err != nil {
		log.Error().Err(err).Str("host", e.Host).Msg("embedding_request_error")
		return nil, fmt.Errorf("embedding request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding endpoint returned status %d", resp.StatusCode)
	}

	var parsed embeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return nil, fmt.Errorf("embedding response contained no vectors")
	}
	return parsed.Data[0].Embedding, nil
}

var _ Embedder = (*HTTPEmbedder)(nil)
