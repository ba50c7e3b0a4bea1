package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/blavejr/craveconnect/logging"
	"github.com/blavejr/craveconnect/metrics"
	"github.com/blavejr/craveconnect/models"
)

// State is threaded through the pipeline; every stage returns an updated copy.
type State struct {
	Strategy      models.Strategy
	OriginalQuery string
	UserID        string
	TopK          int
	MinScore      *float64

	RefinedQuery     string
	Confidence       float64
	RefineIterations int
	Vector           []float32
	Fetched          int
	Candidates       []models.Candidate
	Profile          *models.UserProfile
	HealthAnalyzed   bool

	Errors []string
	Notes  []string
	// Halted stops the remaining stages; the response carries no items
	Halted bool
}

func (s State) withError(stage string, err error) State {
	s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", stage, err))
	return s
}

func (s State) withNote(note string) State {
	s.Notes = append(s.Notes, note)
	return s
}

// Stage is one step of the pipeline.
type Stage struct {
	Name string
	Run  func(ctx context.Context, s State) State
}

type RecommendationRequest struct {
	Query    string
	UserID   string
	TopK     int
	MinScore *float64
	Strategy models.Strategy
}

type OrchestratorConfig struct {
	DefaultTopK     int
	OverfetchFactor int
}

// RecommendationOrchestrator runs refine, embed, retrieve, rerank or
// personalize, health and truncate in order. It holds no per-request state
// and is shared by all requests.
type RecommendationOrchestrator struct {
	refiner      *QueryRefiner
	embedder     EmbeddingProvider
	retriever    *CandidateRetriever
	reranker     *SemanticReranker
	personalizer *PersonalizationScorer
	health       *HealthAttributeAnalyzer
	profiles     UserProfileLookup
	cfg          OrchestratorConfig
}

func NewRecommendationOrchestrator(
	refiner *QueryRefiner,
	embedder EmbeddingProvider,
	retriever *CandidateRetriever,
	reranker *SemanticReranker,
	personalizer *PersonalizationScorer,
	health *HealthAttributeAnalyzer,
	profiles UserProfileLookup,
	cfg OrchestratorConfig,
) *RecommendationOrchestrator {
	if cfg.DefaultTopK < 1 {
		cfg.DefaultTopK = 5
	}
	if cfg.OverfetchFactor < 1 {
		cfg.OverfetchFactor = 1
	}
	return &RecommendationOrchestrator{
		refiner:      refiner,
		embedder:     embedder,
		retriever:    retriever,
		reranker:     reranker,
		personalizer: personalizer,
		health:       health,
		profiles:     profiles,
		cfg:          cfg,
	}
}

// Stages lists the pipeline for a strategy.
func (o *RecommendationOrchestrator) Stages(strategy models.Strategy) []Stage {
	scoring := Stage{Name: "rerank", Run: o.rerank}
	if strategy == models.StrategyPersonalize {
		scoring = Stage{Name: "personalize", Run: o.personalize}
	}
	return []Stage{
		{Name: "refine", Run: o.refine},
		{Name: "embed", Run: o.embed},
		{Name: "retrieve", Run: o.retrieve},
		scoring,
		{Name: "health", Run: o.analyzeHealth},
		{Name: "truncate", Run: o.truncate},
	}
}

// Run never fails: degradations are reported in processing_info.
func (o *RecommendationOrchestrator) Run(ctx context.Context, req RecommendationRequest) models.RecommendationResult {
	start := time.Now()
	log := logging.Ctx(ctx)

	if req.Strategy == "" {
		req.Strategy = models.StrategyRerank
	}
	if req.TopK < 1 {
		req.TopK = o.cfg.DefaultTopK
	}

	state := State{
		Strategy:      req.Strategy,
		OriginalQuery: req.Query,
		UserID:        req.UserID,
		TopK:          req.TopK,
		MinScore:      req.MinScore,
		RefinedQuery:  req.Query,
	}

	for _, stage := range o.Stages(req.Strategy) {
		if state.Halted {
			break
		}
		stageStart := time.Now()
		state = stage.Run(ctx, state)
		metrics.RecordStage(stage.Name, stageStart)
		log.Debug().
			Str("stage", stage.Name).
			Int("candidates", len(state.Candidates)).
			Dur("duration", time.Since(stageStart)).
			Msg("stage completed")
	}

	if state.Halted {
		state.Candidates = []models.Candidate{}
	}
	metrics.ResultSize.WithLabelValues(string(req.Strategy)).Observe(float64(len(state.Candidates)))

	result := models.RecommendationResult{
		OriginalQuery:   state.OriginalQuery,
		RefinedQuery:    state.RefinedQuery,
		Confidence:      state.Confidence,
		Recommendations: state.Candidates,
		ProcessingInfo: models.ProcessingInfo{
			Error:             strings.Join(state.Errors, "; "),
			Method:            string(state.Strategy),
			RefineIterations:  state.RefineIterations,
			CandidatesFetched: state.Fetched,
			HealthAnalyzed:    state.HealthAnalyzed,
			Notes:             state.Notes,
			ProcessingTimeMs:  time.Since(start).Milliseconds(),
			RequestID:         logging.RequestIDFromContext(ctx),
		},
	}

	log.Info().
		Str("strategy", string(state.Strategy)).
		Int("results", len(result.Recommendations)).
		Int("errors", len(state.Errors)).
		Dur("duration", time.Since(start)).
		Msg("recommendation pipeline finished")
	return result
}

func (o *RecommendationOrchestrator) refine(ctx context.Context, s State) State {
	res := o.refiner.Refine(ctx, s.OriginalQuery)
	s.RefinedQuery = res.Query
	s.Confidence = res.Confidence
	s.RefineIterations = res.Iterations
	if res.Err != nil {
		s = s.withError("refine", res.Err)
	}
	return s
}

func (o *RecommendationOrchestrator) embed(ctx context.Context, s State) State {
	vector, err := o.embedder.Embed(ctx, s.RefinedQuery)
	if err != nil {
		metrics.RecordDegradation("embed", "unavailable")
		s = s.withError("embed", err)
		s.Halted = true
		return s
	}
	s.Vector = vector
	return s
}

func (o *RecommendationOrchestrator) retrieve(ctx context.Context, s State) State {
	candidates, err := o.retriever.Retrieve(ctx, s.Vector, s.TopK*o.cfg.OverfetchFactor)
	if err != nil {
		if errors.Is(err, ErrVectorStoreUnavailable) {
			metrics.RecordDegradation("retrieve", "vector_store_unavailable")
			s = s.withError("retrieve", err)
			s.Halted = true
			return s
		}
		s = s.withError("retrieve", err)
	}
	s.Candidates = candidates
	s.Fetched = len(candidates)
	if len(candidates) == 0 {
		s = s.withNote("no matching menu items")
	}
	return s
}

func (o *RecommendationOrchestrator) rerank(ctx context.Context, s State) State {
	reranked, err := o.reranker.Rerank(ctx, s.RefinedQuery, s.Candidates)
	if err != nil {
		s = s.withError("rerank", err)
	}
	s.Candidates = reranked
	return s
}

func (o *RecommendationOrchestrator) personalize(ctx context.Context, s State) State {
	if s.UserID != "" && o.profiles != nil {
		profile, err := o.profiles.GetUserProfile(ctx, s.UserID)
		if err != nil {
			// allergies are unknown, so no candidate can be shown safely
			metrics.RecordDegradation("personalize", "profile_unavailable")
			s = s.withError("personalize", fmt.Errorf("user profile lookup: %w", err))
			s.Halted = true
			return s
		}
		if profile == nil {
			s = s.withNote("no preferences stored for user")
		}
		s.Profile = profile
	}

	before := len(s.Candidates)
	scored := o.personalizer.Apply(s.Candidates, s.Profile)
	if s.MinScore != nil {
		kept := scored[:0]
		for _, c := range scored {
			if c.RankScore() >= *s.MinScore {
				kept = append(kept, c)
			}
		}
		scored = kept
	}
	if before > 0 && len(scored) == 0 {
		s = s.withNote("no suitable candidates")
	}
	s.Candidates = scored
	return s
}

func (o *RecommendationOrchestrator) analyzeHealth(ctx context.Context, s State) State {
	if o.health == nil || len(s.Candidates) == 0 || !o.health.Triggered(s.OriginalQuery, s.RefinedQuery) {
		return s
	}
	analyzed, err := o.health.Analyze(ctx, s.Candidates)
	if err != nil {
		return s.withError("health", err)
	}
	s.Candidates = analyzed
	s.HealthAnalyzed = true
	return s
}

// truncate enforces the output invariants: one item per dish name, at most top_k.
func (o *RecommendationOrchestrator) truncate(_ context.Context, s State) State {
	out := dedupeByName(append([]models.Candidate(nil), s.Candidates...))
	if len(out) > s.TopK {
		out = out[:s.TopK]
	}
	s.Candidates = out
	return s
}
