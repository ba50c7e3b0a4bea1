package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/blavejr/craveconnect/logging"
)

// SimpleModel selects the local hashing embedder, which needs no Ollama.
const SimpleModel = "simple"

// SimpleEmbeddingDimension is the vector length produced by SimpleModel.
const SimpleEmbeddingDimension = 128

// handle embedding generation via Ollama
type Embedder struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Client  *http.Client
}

func NewEmbedder(baseURL, model string, timeout time.Duration) *Embedder {
	return &Embedder{
		BaseURL: baseURL,
		Model:   model,
		Timeout: timeout,
		Client:  &http.Client{},
	}
}

type OllamaEmbedRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type OllamaEmbedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// Embed returns ErrEmptyText for blank input without calling the provider;
// every provider failure is wrapped in ErrEmbeddingFailed.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if e.Model == SimpleModel {
		return e.generateSimpleEmbedding(text), nil
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	jsonData, err := json.Marshal(OllamaEmbedRequest{Model: e.Model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to marshal request: %v", ErrEmbeddingFailed, err)
	}

	url := fmt.Sprintf("%s/api/embeddings", e.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to call Ollama API: %v", ErrEmbeddingFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: ollama API error (status %d): %s", ErrEmbeddingFailed, resp.StatusCode, string(body))
	}

	var embedResp OllamaEmbedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode response: %v", ErrEmbeddingFailed, err)
	}
	if len(embedResp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: received empty embedding from ollama", ErrEmbeddingFailed)
	}

	return embedResp.Embedding, nil
}

// generateSimpleEmbedding creates a lightweight embedding using word frequency
func (e *Embedder) generateSimpleEmbedding(text string) []float32 {
	words := strings.Fields(strings.ToLower(text))
	embedding := make([]float32, SimpleEmbeddingDimension)

	wordCounts := make(map[string]int)
	for _, word := range words {
		word = strings.Trim(word, ".,!?;:\"'()[]{}")
		if len(word) > 0 {
			wordCounts[word]++
		}
	}

	for word, count := range wordCounts {
		hash := 0
		for _, char := range word {
			hash = hash*31 + int(char)
		}
		pos := (hash & 0x7FFFFFFF) % SimpleEmbeddingDimension
		embedding[pos] += float32(count) / float32(len(words))
	}

	var norm float64
	for _, val := range embedding {
		norm += float64(val) * float64(val)
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for i := range embedding {
			embedding[i] = float32(float64(embedding[i]) / norm)
		}
	}

	return embedding
}

// EmbedBatch embeds texts in order. The Ollama endpoint takes one prompt per
// call, so API mode walks the batch sequentially.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	log := logging.Ctx(ctx)
	log.Info().Int("count", len(texts)).Str("model", e.Model).Msg("starting batch embedding generation")
	startTime := time.Now()

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailed, err)
		}

		embedding, err := e.Embed(ctx, text)
		if err != nil {
			log.Error().Err(err).Int("index", i).Msg("failed to generate embedding")
			return nil, fmt.Errorf("failed to generate embedding for item %d: %w", i, err)
		}
		embeddings[i] = embedding

		if e.Model != SimpleModel && (i+1)%5 == 0 {
			log.Debug().Int("done", i+1).Int("total", len(texts)).Msg("embedding progress")
		}
	}

	log.Info().
		Int("count", len(texts)).
		Dur("duration", time.Since(startTime)).
		Msg("batch embeddings generated")
	return embeddings, nil
}

// Dimension reports the vector length for the local model, or fallback for
// Ollama models whose size is fixed by configuration.
func (e *Embedder) Dimension(fallback int) int {
	if e.Model == SimpleModel {
		return SimpleEmbeddingDimension
	}
	return fallback
}

func (e *Embedder) TestConnection(ctx context.Context) error {
	// simple mode, runs locally
	if e.Model == SimpleModel {
		return nil
	}
	return pingOllama(ctx, e.Client, e.BaseURL)
}

func pingOllama(ctx context.Context, client *http.Client, baseURL string) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/api/tags", baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to connect to Ollama: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama API returned status %d", resp.StatusCode)
	}
	return nil
}
