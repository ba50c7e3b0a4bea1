package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/blavejr/craveconnect/config"
	"github.com/blavejr/craveconnect/controllers"
	"github.com/blavejr/craveconnect/evaluation"
	"github.com/blavejr/craveconnect/logging"
	"github.com/blavejr/craveconnect/services"
	"github.com/blavejr/craveconnect/storage"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "evaluate" {
		// usage: go run . evaluate [dataset.json]
		runEvaluation()
		return
	}

	runServer()
}

// app holds the wired dependencies shared by the server and evaluation modes.
type app struct {
	cfg          *config.Config
	store        *storage.MongoStore
	qdrant       *storage.QdrantIndex
	generator    *services.Generator
	orchestrator *services.RecommendationOrchestrator
	indexer      *services.MenuIndexer
}

func setup() *app {
	cfg := config.Load()
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if err := cfg.Validate(); err != nil {
		logging.Fatal().Err(err).Msg("invalid configuration")
	}

	store, err := storage.NewMongoStore(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to connect to MongoDB")
	}
	if err := store.EnsureIndexes(context.Background()); err != nil {
		logging.Warn().Err(err).Msg("index creation skipped")
	}

	embedder := services.NewEmbedder(cfg.OllamaURL, cfg.OllamaEmbedModel, cfg.EmbeddingTimeout)
	generator := services.NewGenerator(services.GeneratorConfig{
		BaseURL:         cfg.OllamaURL,
		Model:           cfg.OllamaLLMModel,
		Timeout:         cfg.LLMTimeout,
		BreakerFailures: cfg.LLMBreakerFailures,
		BreakerTimeout:  cfg.LLMBreakerTimeout,
	})

	ctx := context.Background()
	if err := embedder.TestConnection(ctx); err != nil {
		logging.Warn().Err(err).Msg("Ollama embedder connection test failed")
	} else {
		logging.Info().Str("model", cfg.OllamaEmbedModel).Msg("connected to Ollama embeddings")
	}
	if err := generator.TestConnection(ctx); err != nil {
		logging.Warn().Err(err).Msg("Ollama generator connection test failed")
	} else {
		logging.Info().Str("model", cfg.OllamaLLMModel).Msg("connected to Ollama LLM")
	}

	a := &app{cfg: cfg, store: store, generator: generator}

	var vectors services.VectorStore = store
	var vectorIndexer services.VectorIndexer
	if cfg.VectorBackend == config.VectorBackendQdrant {
		index, err := storage.NewQdrantIndex(cfg, embedder.Dimension(cfg.EmbeddingDimension))
		if err != nil {
			logging.Fatal().Err(err).Msg("failed to connect to Qdrant")
		}
		if err := index.EnsureCollection(ctx); err != nil {
			logging.Fatal().Err(err).Msg("failed to prepare Qdrant collection")
		}
		a.qdrant = index
		vectors, vectorIndexer = index, index
	}

	a.orchestrator = services.NewRecommendationOrchestrator(
		services.NewQueryRefiner(generator, services.RefinerConfig{
			Threshold:     cfg.ConfidenceThreshold,
			MaxIterations: cfg.MaxRefineIterations,
		}),
		embedder,
		services.NewCandidateRetriever(vectors, store, cfg.MetadataLookupBatch),
		services.NewSemanticReranker(generator, ""),
		services.NewPersonalizationScorer(services.TagsDisqualify),
		services.NewHealthAttributeAnalyzer(generator, cfg.HealthKeywords, ""),
		store,
		services.OrchestratorConfig{
			DefaultTopK:     cfg.TopK,
			OverfetchFactor: cfg.OverfetchFactor,
		},
	)
	a.indexer = services.NewMenuIndexer(embedder, store, vectorIndexer, cfg.OllamaEmbedModel)
	return a
}

func (a *app) close() {
	if a.qdrant != nil {
		_ = a.qdrant.Close()
	}
	_ = a.store.Close()
}

func runServer() {
	a := setup()
	defer a.close()
	cfg := a.cfg

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), controllers.RequestID(), controllers.RequestLogger())

	recommendationController := controllers.NewRecommendationController(cfg, controllers.Dependencies{
		Recommender: a.orchestrator,
		Indexer:     a.indexer,
		Recorder:    a.store,
		Stats:       a.store,
		Store:       a.store,
		LLM:         a.generator,
	})

	router.GET("/health", recommendationController.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.POST("/recommend", recommendationController.Recommend)
		api.POST("/queries/resolve", recommendationController.ResolveQuery)
		api.POST("/menu-items", recommendationController.IndexMenuItems)
	}

	addr := fmt.Sprintf(":%s", cfg.Port)
	logging.Info().
		Str("addr", addr).
		Str("mongo_database", cfg.MongoDatabase).
		Str("ollama", cfg.OllamaURL).
		Str("vector_backend", cfg.VectorBackend).
		Str("environment", cfg.Environment).
		Msg("recommendation server starting")

	if err := router.Run(addr); err != nil {
		logging.Fatal().Err(err).Msg("failed to start server")
	}
}

func runEvaluation() {
	a := setup()
	defer a.close()
	cfg := a.cfg

	datasetPath := cfg.EvaluationDataset
	if len(os.Args) > 2 {
		datasetPath = os.Args[2]
	}

	cases, err := evaluation.LoadDataset(datasetPath)
	if err != nil {
		logging.Fatal().Err(err).Msg("failed to load dataset")
	}
	logging.Info().Int("cases", len(cases)).Str("dataset", datasetPath).Msg("loaded evaluation dataset")

	ctx := logging.ContextWithRequestID(context.Background(), "evaluation-"+time.Now().Format("20060102150405"))
	report := evaluation.NewEvaluator(cfg, a.orchestrator).Evaluate(ctx, cases)
	evaluation.PrintSummary(report)

	if err := evaluation.SaveReport(report, cfg.EvaluationReportPath); err != nil {
		logging.Fatal().Err(err).Msg("failed to save report")
	}
	logging.Info().Str("report", cfg.EvaluationReportPath).Msg("evaluation complete")
}
