package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/blavejr/craveconnect/logging"
)

// errCallerGone marks failures caused by the caller's own context ending,
// which say nothing about the health of Ollama.
var errCallerGone = errors.New("caller context done")

// handle LLM text generation via Ollama
type Generator struct {
	BaseURL string
	Model   string
	Timeout time.Duration
	Client  *http.Client
	breaker *gobreaker.CircuitBreaker[string]
}

type GeneratorConfig struct {
	BaseURL string
	Model   string
	// Timeout bounds a single completion call
	Timeout time.Duration
	// BreakerFailures consecutive failures open the breaker for BreakerTimeout
	BreakerFailures int
	BreakerTimeout  time.Duration
}

// create a new generator client
func NewGenerator(cfg GeneratorConfig) *Generator {
	failures := cfg.BreakerFailures
	if failures < 1 {
		failures = 1
	}
	settings := gobreaker.Settings{
		Name:        "ollama-generate",
		MaxRequests: 1,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(failures)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, errCallerGone)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("circuit breaker state changed")
		},
	}

	return &Generator{
		BaseURL: cfg.BaseURL,
		Model:   cfg.Model,
		Timeout: cfg.Timeout,
		Client:  &http.Client{},
		breaker: gobreaker.NewCircuitBreaker[string](settings),
	}
}

// request to Ollama generation API
type OllamaGenerateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Stream bool   `json:"stream"`
}

// response from Ollama generation API
type OllamaGenerateResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
}

// Complete sends one non-streaming prompt. Timeouts, transport errors, empty
// answers and an open breaker all come back wrapped in ErrCompletionFailed.
func (g *Generator) Complete(ctx context.Context, prompt string) (string, error) {
	text, err := g.breaker.Execute(func() (string, error) {
		text, err := g.generate(ctx, prompt)
		if err != nil && ctx.Err() != nil {
			// the per-call timeout lives on a child context, so it still counts
			return "", fmt.Errorf("%w: %v", errCallerGone, err)
		}
		return text, err
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}
	return text, nil
}

func (g *Generator) generate(ctx context.Context, prompt string) (string, error) {
	if g.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.Timeout)
		defer cancel()
	}

	jsonData, err := json.Marshal(OllamaGenerateRequest{Model: g.Model, Prompt: prompt, Stream: false})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := fmt.Sprintf("%s/api/generate", g.BaseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(jsonData))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.Client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call Ollama API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ollama API error (status %d): %s", resp.StatusCode, string(body))
	}

	var genResp OllamaGenerateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if strings.TrimSpace(genResp.Response) == "" {
		return "", fmt.Errorf("received empty response from Ollama")
	}

	return strings.TrimSpace(genResp.Response), nil
}

// BreakerState is exposed on the health endpoint.
func (g *Generator) BreakerState() string {
	return g.breaker.State().String()
}

func (g *Generator) TestConnection(ctx context.Context) error {
	return pingOllama(ctx, g.Client, g.BaseURL)
}
