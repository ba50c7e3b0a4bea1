package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// vector search backends
const (
	VectorBackendMongo  = "mongo"
	VectorBackendQdrant = "qdrant"
)

// upper bound for the refinement loop, regardless of what the env asks for
const maxRefineIterationsCap = 10

var defaultHealthKeywords = []string{
	"health", "healthy", "nutritious", "diet", "calorie", "fresh", "light", "wont be too much",
}

type Config struct {
	MongoURI      string
	MongoDatabase string

	OllamaURL        string // "http://localhost:11434"
	OllamaEmbedModel string
	OllamaLLMModel   string
	LLMTimeout       time.Duration
	EmbeddingTimeout time.Duration

	// circuit breaker around the completion endpoint
	LLMBreakerFailures int
	LLMBreakerTimeout  time.Duration

	VectorBackend      string
	QdrantHost         string
	QdrantPort         int
	QdrantAPIKey       string
	QdrantCollection   string
	EmbeddingDimension int

	Port        string
	Environment string
	LogLevel    string
	LogFormat   string

	// Recommendation pipeline
	TopK                 int
	MaxTopK              int
	OverfetchFactor      int
	ConfidenceThreshold  float64
	MaxRefineIterations  int
	HealthKeywords       []string
	MetadataLookupBatch  int
	EvaluationDataset    string
	EvaluationReportPath string
}

func Load() *Config {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	getEnv := func(key, defaultValue string) string {
		if value := os.Getenv(key); value != "" {
			return value
		}
		return defaultValue
	}

	getEnvInt := func(key string, defaultValue int) int {
		valueStr := os.Getenv(key)
		if valueStr == "" {
			return defaultValue
		}
		value, err := strconv.Atoi(valueStr)
		if err != nil {
			return defaultValue
		}
		return value
	}

	getEnvFloat := func(key string, defaultValue float64) float64 {
		valueStr := os.Getenv(key)
		if valueStr == "" {
			return defaultValue
		}
		value, err := strconv.ParseFloat(valueStr, 64)
		if err != nil {
			return defaultValue
		}
		return value
	}

	getEnvDuration := func(key string, defaultValue time.Duration) time.Duration {
		valueStr := os.Getenv(key)
		if valueStr == "" {
			return defaultValue
		}
		value, err := time.ParseDuration(valueStr)
		if err != nil {
			return defaultValue
		}
		return value
	}

	getEnvList := func(key string, defaultValue []string) []string {
		valueStr := os.Getenv(key)
		if valueStr == "" {
			return defaultValue
		}
		var out []string
		for _, part := range strings.Split(valueStr, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
		if len(out) == 0 {
			return defaultValue
		}
		return out
	}

	cfg := &Config{
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "craveconnect"),

		// Ollama
		OllamaURL:        getEnv("OLLAMA_URL", "http://localhost:11434"),
		OllamaEmbedModel: getEnv("OLLAMA_EMBEDDING_MODEL", "nomic-embed-text"),
		OllamaLLMModel:   getEnv("OLLAMA_LLM_MODEL", "llama3.2:3b"),
		LLMTimeout:       getEnvDuration("LLM_TIMEOUT", 30*time.Second),
		EmbeddingTimeout: getEnvDuration("EMBEDDING_TIMEOUT", 15*time.Second),

		LLMBreakerFailures: getEnvInt("LLM_BREAKER_FAILURES", 5),
		LLMBreakerTimeout:  getEnvDuration("LLM_BREAKER_TIMEOUT", 30*time.Second),

		// Vector search
		VectorBackend:      strings.ToLower(getEnv("VECTOR_BACKEND", VectorBackendMongo)),
		QdrantHost:         getEnv("QDRANT_HOST", "localhost"),
		QdrantPort:         getEnvInt("QDRANT_PORT", 6334),
		QdrantAPIKey:       getEnv("QDRANT_API_KEY", ""),
		QdrantCollection:   getEnv("QDRANT_COLLECTION", "menu_items"),
		EmbeddingDimension: getEnvInt("EMBEDDING_DIMENSION", 768),

		// Application settings
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", ""),

		// Recommendation pipeline
		TopK:                 getEnvInt("TOP_K", 5),
		MaxTopK:              getEnvInt("MAX_TOP_K", 50),
		OverfetchFactor:      getEnvInt("OVERFETCH_FACTOR", 6),
		ConfidenceThreshold:  getEnvFloat("CONFIDENCE_THRESHOLD", 0.9),
		MaxRefineIterations:  getEnvInt("MAX_REFINE_ITERATIONS", 5),
		HealthKeywords:       getEnvList("HEALTH_KEYWORDS", defaultHealthKeywords),
		MetadataLookupBatch:  getEnvInt("METADATA_LOOKUP_BATCH", 16),
		EvaluationDataset:    getEnv("EVALUATION_DATASET", "evaluation/dataset.json"),
		EvaluationReportPath: getEnv("EVALUATION_REPORT", "evaluation/results/baseline.json"),
	}

	if cfg.LogFormat == "" {
		cfg.LogFormat = "console"
		if cfg.IsProduction() {
			cfg.LogFormat = "json"
		}
	}

	cfg.normalize()
	return cfg
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// normalize pulls out-of-range pipeline settings back into their valid ranges.
func (c *Config) normalize() {
	if c.TopK < 1 {
		c.TopK = 1
	}
	if c.MaxTopK < c.TopK {
		c.MaxTopK = c.TopK
	}
	if c.OverfetchFactor < 1 {
		c.OverfetchFactor = 1
	}
	if c.MaxRefineIterations < 1 {
		c.MaxRefineIterations = 1
	}
	if c.MaxRefineIterations > maxRefineIterationsCap {
		c.MaxRefineIterations = maxRefineIterationsCap
	}
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		c.ConfidenceThreshold = 0.9
	}
	if c.MetadataLookupBatch < 1 {
		c.MetadataLookupBatch = 1
	}
	if c.LLMBreakerFailures < 1 {
		c.LLMBreakerFailures = 1
	}
}

// Validate reports settings that cannot be repaired by normalize.
func (c *Config) Validate() error {
	switch c.VectorBackend {
	case VectorBackendMongo, VectorBackendQdrant:
	default:
		return fmt.Errorf("unknown VECTOR_BACKEND %q (want %q or %q)", c.VectorBackend, VectorBackendMongo, VectorBackendQdrant)
	}
	if c.VectorBackend == VectorBackendQdrant && c.EmbeddingDimension <= 0 {
		return fmt.Errorf("EMBEDDING_DIMENSION must be positive for the qdrant backend")
	}
	if c.LLMTimeout <= 0 || c.EmbeddingTimeout <= 0 {
		return fmt.Errorf("LLM_TIMEOUT and EMBEDDING_TIMEOUT must be positive")
	}
	return nil
}
