package models

import (
	"time"
)

// Candidate is a menu item surfaced for one request. It is created from a
// vector hit, scored in place by the later stages and dropped once the
// response is written.
type Candidate struct {
	ItemID         string   `json:"id"`
	Name           string   `json:"name"`
	Description    string   `json:"description"`
	Price          float64  `json:"price"`
	RestaurantID   string   `json:"restaurant_id"`
	RestaurantName string   `json:"restaurant_name,omitempty"`
	Category       string   `json:"category,omitempty"`
	Tags           []string `json:"tags,omitempty"`
	Allergens      []string `json:"allergens,omitempty"`
	Cuisine        string   `json:"cuisine,omitempty"`
	SpiceLevel     string   `json:"spice_level,omitempty"`

	// LLMScore and HealthScore hold the raw 0..100 model judgements.
	SimilarityScore      float64  `json:"similarity_score"`
	LLMScore             *float64 `json:"llm_score,omitempty"`
	CombinedScore        *float64 `json:"combined_score,omitempty"`
	HealthScore          *float64 `json:"health_score,omitempty"`
	PersonalizationBoost *float64 `json:"personalization_boost,omitempty"`
}

// RankScore is the score the candidate is currently ordered by.
func (c Candidate) RankScore() float64 {
	if c.CombinedScore != nil {
		return *c.CombinedScore
	}
	return c.SimilarityScore
}

// NewCandidate builds a similarity-only candidate from catalogue metadata.
func NewCandidate(item MenuItem, similarity float64) Candidate {
	return Candidate{
		ItemID:          item.ID,
		Name:            item.Name,
		Description:     item.Description,
		Price:           item.Price,
		RestaurantID:    item.RestaurantID,
		RestaurantName:  item.RestaurantName,
		Category:        item.Category,
		Tags:            item.Tags,
		Allergens:       item.Allergens,
		Cuisine:         item.Meta.Cuisine,
		SpiceLevel:      item.Meta.SpiceLevel,
		SimilarityScore: similarity,
	}
}

// Float returns a pointer to v, for the optional score fields.
func Float(v float64) *float64 {
	return &v
}

// Strategy selects the final-stage scoring of the pipeline.
type Strategy string

const (
	StrategyRerank      Strategy = "llm_rerank"
	StrategyPersonalize Strategy = "personalization"
)

type RecommendationRequest struct {
	Query string `json:"query" binding:"required"`
	// UserID is accepted for compatibility and ignored: the rerank strategy
	// does not personalize. Use ResolveQueryRequest for per-user results.
	UserID string `json:"user_id,omitempty"`
	TopK   int    `json:"top_k,omitempty"`
}

type ResolveQueryRequest struct {
	Query  string `json:"query" binding:"required"`
	UserID string `json:"user_id" binding:"required"`
	TopK   int    `json:"top_k,omitempty"`
	// MinScore keeps only items whose personalized score reaches it
	MinScore *float64 `json:"min_score,omitempty"`
}

type RecommendationResult struct {
	OriginalQuery   string         `json:"original_query"`
	RefinedQuery    string         `json:"refined_query"`
	Confidence      float64        `json:"confidence"`
	Recommendations []Candidate    `json:"recommendations"`
	ProcessingInfo  ProcessingInfo `json:"processing_info"`
	DebugInfo       *DebugInfo     `json:"debug_info,omitempty"`
}

type ProcessingInfo struct {
	Error             string   `json:"error,omitempty"`
	Method            string   `json:"method"`
	RefineIterations  int      `json:"refine_iterations"`
	CandidatesFetched int      `json:"candidates_fetched"`
	HealthAnalyzed    bool     `json:"health_analyzed"`
	Notes             []string `json:"notes,omitempty"`
	ProcessingTimeMs  int64    `json:"processing_time_ms"`
	RequestID         string   `json:"request_id,omitempty"`
}

type DebugInfo struct {
	CuisinesAvailable []RestaurantMenuCount `json:"cuisines_available"`
}

// QueryRecord is the persisted log entry for a resolved query.
type QueryRecord struct {
	ID           string    `bson:"_id" json:"id"`
	UserID       string    `bson:"user_id" json:"user_id"`
	QueryText    string    `bson:"query_text" json:"query_text"`
	RefinedQuery string    `bson:"refined_query" json:"refined_query"`
	Confidence   float64   `bson:"confidence" json:"confidence"`
	Method       string    `bson:"method" json:"method"`
	CreatedAt    time.Time `bson:"created_at" json:"created_at"`
}

// RecommendationRecord links a query to one recommended item.
type RecommendationRecord struct {
	ID              string    `bson:"_id" json:"id"`
	QueryID         string    `bson:"query_id" json:"query_id"`
	MenuItemID      string    `bson:"menu_item_id" json:"menu_item_id"`
	ConfidenceScore float64   `bson:"confidence_score" json:"confidence_score"`
	Rank            int       `bson:"rank" json:"rank"`
	CreatedAt       time.Time `bson:"created_at" json:"created_at"`
}

// VectorHit is one nearest-neighbour result; Similarity is in [0,1].
type VectorHit struct {
	ItemID     string
	Similarity float64
}
