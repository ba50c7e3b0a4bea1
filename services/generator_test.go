package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGenerator(url string, failures int) *Generator {
	return NewGenerator(GeneratorConfig{
		BaseURL:         url,
		Model:           "llama3.2",
		Timeout:         time.Second,
		BreakerFailures: failures,
		BreakerTimeout:  time.Minute,
	})
}

func TestGeneratorComplete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/generate", r.URL.Path)
		var req OllamaGenerateRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.False(t, req.Stream)
		assert.Equal(t, "llama3.2", req.Model)

		_ = json.NewEncoder(w).Encode(OllamaGenerateResponse{Response: "  REFINED_QUERY: tacos\n", Done: true})
	}))
	defer srv.Close()

	text, err := newTestGenerator(srv.URL, 3).Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "REFINED_QUERY: tacos", text)
}

func TestGeneratorEmptyResponseFails(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(OllamaGenerateResponse{Response: "   ", Done: true})
	}))
	defer srv.Close()

	_, err := newTestGenerator(srv.URL, 3).Complete(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrCompletionFailed)
}

func TestGeneratorBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := newTestGenerator(srv.URL, 2)
	assert.Equal(t, "closed", g.BreakerState())

	for i := 0; i < 2; i++ {
		_, err := g.Complete(context.Background(), "hello")
		assert.ErrorIs(t, err, ErrCompletionFailed)
	}
	assert.Equal(t, "open", g.BreakerState())

	_, err := g.Complete(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrCompletionFailed)
	assert.Equal(t, int32(2), hits.Load())
}

func TestGeneratorTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	g := newTestGenerator(srv.URL, 5)
	g.Timeout = 20 * time.Millisecond

	start := time.Now()
	_, err := g.Complete(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrCompletionFailed)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGeneratorCallerCancellationDoesNotTripBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(OllamaGenerateResponse{Response: "ok", Done: true})
	}))
	defer srv.Close()

	g := newTestGenerator(srv.URL, 2)
	cancelled, cancel := context.WithCancel(context.Background())
	cancel()

	for i := 0; i < 5; i++ {
		_, err := g.Complete(cancelled, "hello")
		assert.ErrorIs(t, err, ErrCompletionFailed)
	}
	assert.Equal(t, "closed", g.BreakerState())

	text, err := g.Complete(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
}

func TestGeneratorTimeoutTripsBreaker(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer srv.Close()

	g := newTestGenerator(srv.URL, 1)
	g.Timeout = 20 * time.Millisecond

	_, err := g.Complete(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrCompletionFailed)
	assert.Equal(t, "open", g.BreakerState())
}
