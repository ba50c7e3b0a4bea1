package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"TOP_K", "CONFIDENCE_THRESHOLD", "MAX_REFINE_ITERATIONS", "HEALTH_KEYWORDS", "VECTOR_BACKEND", "ENVIRONMENT", "LOG_FORMAT"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, 5, cfg.TopK)
	assert.Equal(t, 6, cfg.OverfetchFactor)
	assert.InDelta(t, 0.9, cfg.ConfidenceThreshold, 1e-9)
	assert.Equal(t, 5, cfg.MaxRefineIterations)
	assert.Equal(t, VectorBackendMongo, cfg.VectorBackend)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Contains(t, cfg.HealthKeywords, "healthy")
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout)
	require.NoError(t, cfg.Validate())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("TOP_K", "8")
	t.Setenv("CONFIDENCE_THRESHOLD", "0.75")
	t.Setenv("HEALTH_KEYWORDS", " vegan , low-carb ,,")
	t.Setenv("LLM_TIMEOUT", "2s")
	t.Setenv("VECTOR_BACKEND", "QDRANT")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("LOG_FORMAT", "")

	cfg := Load()

	assert.Equal(t, 8, cfg.TopK)
	assert.InDelta(t, 0.75, cfg.ConfidenceThreshold, 1e-9)
	assert.Equal(t, []string{"vegan", "low-carb"}, cfg.HealthKeywords)
	assert.Equal(t, 2*time.Second, cfg.LLMTimeout)
	assert.Equal(t, VectorBackendQdrant, cfg.VectorBackend)
	assert.Equal(t, "json", cfg.LogFormat)
	require.NoError(t, cfg.Validate())
}

func TestLoadClampsPipelineSettings(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
		check func(t *testing.T, cfg *Config)
	}{
		{"iterations above cap", "MAX_REFINE_ITERATIONS", "100", func(t *testing.T, cfg *Config) {
			assert.Equal(t, 10, cfg.MaxRefineIterations)
		}},
		{"iterations below one", "MAX_REFINE_ITERATIONS", "0", func(t *testing.T, cfg *Config) {
			assert.Equal(t, 1, cfg.MaxRefineIterations)
		}},
		{"threshold out of range", "CONFIDENCE_THRESHOLD", "1.5", func(t *testing.T, cfg *Config) {
			assert.InDelta(t, 0.9, cfg.ConfidenceThreshold, 1e-9)
		}},
		{"overfetch below one", "OVERFETCH_FACTOR", "-3", func(t *testing.T, cfg *Config) {
			assert.Equal(t, 1, cfg.OverfetchFactor)
		}},
		{"unparsable int falls back", "TOP_K", "many", func(t *testing.T, cfg *Config) {
			assert.Equal(t, 5, cfg.TopK)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			tt.check(t, Load())
		})
	}
}

func TestValidateRejectsUnknownBackend(t *testing.T) {
	cfg := Load()
	cfg.VectorBackend = "pinecone"
	assert.Error(t, cfg.Validate())
}
