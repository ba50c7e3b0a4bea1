package services

import (
	"context"
	"strconv"
	"strings"

	"github.com/blavejr/craveconnect/logging"
	"github.com/blavejr/craveconnect/metrics"
)

// FailOpenConfidence is reported when the LLM cannot be reached during
// refinement: the raw query goes forward as if no refinement were needed.
// This treats "refinement failed" the same as "fully confident".
const FailOpenConfidence = 1.0

const (
	refinedQueryPrefix = "REFINED_QUERY:"
	confidencePrefix   = "CONFIDENCE:"
)

// DefaultColdPrompt placeholders: {query}.
const DefaultColdPrompt = `You are an AI assistant for a food recommendation system.
Rewrite the user's food craving into a clear, specific description that can be used for semantic search.

Examples:
- "I want something sweet" -> "Sweet dessert with rich flavors and satisfying texture"
- "Need spicy food" -> "Spicy dishes with bold flavors and aromatic spices"

User Query: {query}

Also give an honest confidence score between 0 and 1 that your rewrite captures the user's intent.

Format your response exactly like this:
REFINED_QUERY: [your refined query]
CONFIDENCE: [0.0-1.0]
`

// DefaultWarmPrompt placeholders: {query}, {current_query}, {current_confidence}.
const DefaultWarmPrompt = `You are an AI assistant for a food recommendation system.
A food query still needs improvement.

Original User Query: {query}
Current Refined Query: {current_query}
Current Confidence Score: {current_confidence}

Make the query more specific for semantic food search: add flavor details, texture preferences and dish types where appropriate.
Give an honest confidence score between 0 and 1 (1.0 = certain, 0.5 = main intent captured, 0.0 = guesswork).

Format your response exactly like this:
REFINED_QUERY: [your refined query]
CONFIDENCE: [0.0-1.0]
`

type RefinerConfig struct {
	Threshold     float64
	MaxIterations int
	ColdPrompt    string
	WarmPrompt    string
}

type RefineResult struct {
	Query      string
	Confidence float64
	Iterations int
	// Err is set when the fail-open path was taken
	Err error
}

// QueryRefiner rewrites a raw craving until the model reports enough confidence.
type QueryRefiner struct {
	llm ChatCompletionProvider
	cfg RefinerConfig
}

func NewQueryRefiner(llm ChatCompletionProvider, cfg RefinerConfig) *QueryRefiner {
	if cfg.MaxIterations < 1 {
		cfg.MaxIterations = 1
	}
	if cfg.ColdPrompt == "" {
		cfg.ColdPrompt = DefaultColdPrompt
	}
	if cfg.WarmPrompt == "" {
		cfg.WarmPrompt = DefaultWarmPrompt
	}
	return &QueryRefiner{llm: llm, cfg: cfg}
}

// Refine makes between 1 and MaxIterations completion calls. A missing or
// unparsable field keeps the previous iteration's value.
func (r *QueryRefiner) Refine(ctx context.Context, raw string) RefineResult {
	log := logging.Ctx(ctx)
	current, confidence := raw, 0.0

	for iteration := 1; iteration <= r.cfg.MaxIterations; iteration++ {
		prompt := r.prompt(iteration, raw, current, confidence)

		text, err := r.llm.Complete(ctx, prompt)
		if err != nil {
			metrics.RecordLLMCall("refine", "error")
			metrics.RecordDegradation("refine", "fail_open")
			log.Warn().Err(err).Int("iteration", iteration).Msg("query refinement failed, using raw query")
			return RefineResult{Query: raw, Confidence: FailOpenConfidence, Iterations: iteration, Err: err}
		}
		metrics.RecordLLMCall("refine", "ok")

		refined, conf := parseRefinement(text)
		if refined != "" {
			current = refined
		}
		if conf > 0 {
			confidence = conf
		}

		log.Debug().
			Int("iteration", iteration).
			Str("refined_query", current).
			Float64("confidence", confidence).
			Msg("refinement iteration")

		if confidence >= r.cfg.Threshold {
			log.Info().Int("iterations", iteration).Float64("confidence", confidence).Msg("query refinement reached threshold")
			metrics.RefineIterations.Observe(float64(iteration))
			return RefineResult{Query: current, Confidence: confidence, Iterations: iteration}
		}
	}

	metrics.RefineIterations.Observe(float64(r.cfg.MaxIterations))
	return RefineResult{Query: current, Confidence: confidence, Iterations: r.cfg.MaxIterations}
}

func (r *QueryRefiner) prompt(iteration int, raw, current string, confidence float64) string {
	if iteration == 1 {
		return strings.NewReplacer("{query}", raw).Replace(r.cfg.ColdPrompt)
	}
	return strings.NewReplacer(
		"{query}", raw,
		"{current_query}", current,
		"{current_confidence}", strconv.FormatFloat(confidence, 'f', 2, 64),
	).Replace(r.cfg.WarmPrompt)
}

// parseRefinement returns "" and 0 for fields it cannot read.
func parseRefinement(text string) (string, float64) {
	var refined string
	var confidence float64
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, refinedQueryPrefix):
			refined = strings.TrimSpace(strings.TrimPrefix(line, refinedQueryPrefix))
		case strings.HasPrefix(line, confidencePrefix):
			v, err := strconv.ParseFloat(strings.TrimSpace(strings.TrimPrefix(line, confidencePrefix)), 64)
			if err == nil {
				confidence = clamp(v, 0, 1)
			}
		}
	}
	return refined, confidence
}
