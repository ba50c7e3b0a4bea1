package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/blavejr/craveconnect/config"
	"github.com/blavejr/craveconnect/logging"
	"github.com/blavejr/craveconnect/models"
	"github.com/blavejr/craveconnect/services"
)

// number of restaurants listed in debug info
const debugRestaurantLimit = 10

type Recommender interface {
	Run(ctx context.Context, req services.RecommendationRequest) models.RecommendationResult
}

type Indexer interface {
	Index(ctx context.Context, items []models.MenuItem) ([]models.MenuItem, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type BreakerReporter interface {
	BreakerState() string
}

// Dependencies of the controller. Recorder, Stats, Store and LLM may be nil.
type Dependencies struct {
	Recommender Recommender
	Indexer     Indexer
	Recorder    services.QueryRecorder
	Stats       services.CatalogStats
	Store       Pinger
	LLM         BreakerReporter
}

type RecommendationController struct {
	config *config.Config
	deps   Dependencies
}

func NewRecommendationController(cfg *config.Config, deps Dependencies) *RecommendationController {
	return &RecommendationController{config: cfg, deps: deps}
}

// Recommend runs the LLM-rerank pipeline. Pipeline degradations still answer 200.
// A user_id in the body is ignored; personalized results come from ResolveQuery.
func (rc *RecommendationController) Recommend(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.RecommendationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}

	topK := rc.topK(req.TopK)
	logging.Ctx(ctx).Info().Str("query", req.Query).Int("top_k", topK).Msg("recommendation request")

	result := rc.deps.Recommender.Run(ctx, services.RecommendationRequest{
		Query:    req.Query,
		TopK:     topK,
		Strategy: models.StrategyRerank,
	})

	if rc.deps.Stats != nil {
		counts, err := rc.deps.Stats.RestaurantMenuCounts(ctx, debugRestaurantLimit)
		if err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("failed to load catalogue stats for debug info")
		} else {
			result.DebugInfo = &models.DebugInfo{CuisinesAvailable: counts}
		}
	}

	c.JSON(http.StatusOK, result)
}

// ResolveQuery runs the personalization pipeline for a user and logs the
// query with its recommendations.
func (rc *RecommendationController) ResolveQuery(c *gin.Context) {
	ctx := c.Request.Context()

	var req models.ResolveQueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query is required"})
		return
	}
	if strings.TrimSpace(req.UserID) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "user_id is required"})
		return
	}

	topK := rc.topK(req.TopK)
	logging.Ctx(ctx).Info().Str("query", req.Query).Str("user_id", req.UserID).Int("top_k", topK).Msg("query resolution request")

	result := rc.deps.Recommender.Run(ctx, services.RecommendationRequest{
		Query:    req.Query,
		UserID:   req.UserID,
		TopK:     topK,
		MinScore: req.MinScore,
		Strategy: models.StrategyPersonalize,
	})

	rc.record(ctx, req.UserID, result)
	c.JSON(http.StatusOK, result)
}

// IndexMenuItems embeds and stores a batch of menu items.
func (rc *RecommendationController) IndexMenuItems(c *gin.Context) {
	startTime := time.Now()
	ctx := c.Request.Context()

	var req models.IndexMenuItemsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	items, err := rc.deps.Indexer.Index(ctx, req.Items)
	if err != nil {
		logging.Ctx(ctx).Error().Err(err).Int("items", len(req.Items)).Msg("menu indexing failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to index menu items"})
		return
	}

	c.JSON(http.StatusOK, models.IndexMenuItemsResponse{
		Indexed:          len(items),
		Model:            rc.config.OllamaEmbedModel,
		ProcessingTimeMs: time.Since(startTime).Milliseconds(),
		Status:           "success",
	})
}

func (rc *RecommendationController) Health(c *gin.Context) {
	status, code := "healthy", http.StatusOK
	if rc.deps.Store != nil {
		if err := rc.deps.Store.Ping(c.Request.Context()); err != nil {
			logging.Ctx(c.Request.Context()).Warn().Err(err).Msg("health check: store unreachable")
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
	}
	body := gin.H{
		"status":  status,
		"service": "craveconnect",
	}
	if rc.deps.LLM != nil {
		body["llm_breaker"] = rc.deps.LLM.BreakerState()
	}
	c.JSON(code, body)
}

func (rc *RecommendationController) topK(requested int) int {
	if requested <= 0 {
		return rc.config.TopK
	}
	if requested > rc.config.MaxTopK {
		return rc.config.MaxTopK
	}
	return requested
}

// record never fails the request; the query log is best effort.
func (rc *RecommendationController) record(ctx context.Context, userID string, result models.RecommendationResult) {
	if rc.deps.Recorder == nil {
		return
	}
	now := time.Now().UTC()
	query := models.QueryRecord{
		ID:           uuid.NewString(),
		UserID:       userID,
		QueryText:    result.OriginalQuery,
		RefinedQuery: result.RefinedQuery,
		Confidence:   result.Confidence,
		Method:       result.ProcessingInfo.Method,
		CreatedAt:    now,
	}
	recs := make([]models.RecommendationRecord, len(result.Recommendations))
	for i, item := range result.Recommendations {
		recs[i] = models.RecommendationRecord{
			ID:              uuid.NewString(),
			QueryID:         query.ID,
			MenuItemID:      item.ItemID,
			ConfidenceScore: item.RankScore(),
			Rank:            i + 1,
			CreatedAt:       now,
		}
	}
	if err := rc.deps.Recorder.RecordQuery(ctx, query, recs); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Msg("failed to record query")
	}
}
