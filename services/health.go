package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/blavejr/craveconnect/logging"
	"github.com/blavejr/craveconnect/metrics"
	"github.com/blavejr/craveconnect/models"
)

// NeutralHealthScore is given to items the model leaves unscored.
const NeutralHealthScore = 50.0

// DefaultHealthPrompt placeholders: {items}.
const DefaultHealthPrompt = `For each food item, evaluate its health value on a scale of 0-100 where:
- 100 = extremely healthy (e.g. fresh salad with lean protein)
- 70 = moderately healthy (e.g. grilled chicken sandwich)
- 50 = neutral
- 30 = somewhat unhealthy (e.g. pizza)
- 0 = very unhealthy (e.g. deep-fried food with heavy sauce)

Items:
{items}
Respond ONLY with a JSON array, no other text:
[{"id": "item_id_1", "health_score": 75}, {"id": "item_id_2", "health_score": 30}]
`

// HealthAttributeAnalyzer re-weights results toward healthier dishes when the
// query asks for it.
type HealthAttributeAnalyzer struct {
	llm      ChatCompletionProvider
	keywords []string
	prompt   string
}

func NewHealthAttributeAnalyzer(llm ChatCompletionProvider, keywords []string, prompt string) *HealthAttributeAnalyzer {
	if prompt == "" {
		prompt = DefaultHealthPrompt
	}
	lowered := make([]string, 0, len(keywords))
	for _, k := range keywords {
		if k = normalizeTerm(k); k != "" {
			lowered = append(lowered, k)
		}
	}
	return &HealthAttributeAnalyzer{llm: llm, keywords: lowered, prompt: prompt}
}

// Triggered reports whether any text contains a health keyword.
func (h *HealthAttributeAnalyzer) Triggered(texts ...string) bool {
	for _, text := range texts {
		text = strings.ToLower(text)
		for _, k := range h.keywords {
			if strings.Contains(text, k) {
				return true
			}
		}
	}
	return false
}

// Analyze scores every candidate in one call and re-sorts by
// 0.3*similarity + 0.7*health/100. On any failure the input order is
// returned untouched together with the error.
func (h *HealthAttributeAnalyzer) Analyze(ctx context.Context, candidates []models.Candidate) ([]models.Candidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}
	log := logging.Ctx(ctx)

	text, err := h.llm.Complete(ctx, h.buildPrompt(candidates))
	if err != nil {
		metrics.RecordLLMCall("health", "error")
		metrics.RecordDegradation("health", "completion_failed")
		log.Warn().Err(err).Msg("health analysis failed, keeping prior order")
		return candidates, err
	}

	scores, err := parseScores(text, "health_score")
	if err != nil {
		metrics.RecordLLMCall("health", "unparsable")
		metrics.RecordDegradation("health", "unparsable")
		log.Warn().Err(err).Msg("health response unparsable, keeping prior order")
		return candidates, err
	}
	metrics.RecordLLMCall("health", "ok")

	out := make([]models.Candidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		score, ok := scores[out[i].ItemID]
		if !ok {
			score = NeutralHealthScore
		}
		out[i].HealthScore = models.Float(score)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return HealthWeightedScore(out[i]) > HealthWeightedScore(out[j])
	})

	log.Info().Int("items", len(out)).Int("scored", len(scores)).Msg("health analysis reordered results")
	return out, nil
}

// HealthWeightedScore uses the raw similarity, not the reranked score.
func HealthWeightedScore(c models.Candidate) float64 {
	health := NeutralHealthScore
	if c.HealthScore != nil {
		health = *c.HealthScore
	}
	return CombinedScore(c.SimilarityScore, health)
}

func (h *HealthAttributeAnalyzer) buildPrompt(candidates []models.Candidate) string {
	var sb strings.Builder
	for _, c := range candidates {
		fmt.Fprintf(&sb, "- ID: %s, Name: %s, Description: %s\n", c.ItemID, c.Name, c.Description)
	}
	return strings.NewReplacer("{items}", sb.String()).Replace(h.prompt)
}
