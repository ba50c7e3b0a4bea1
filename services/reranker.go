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

// Fusion weights for vector similarity against a 0..100 model score.
const (
	SimilarityWeight = 0.3
	LLMWeight        = 0.7
)

// DefaultRerankPrompt placeholders: {query}, {dishes}.
const DefaultRerankPrompt = `You are re-ranking food dish recommendations by how precisely they match a user's query.
Give each dish a match score from 0-100:
- 100 = perfect match for every aspect of the query
- 50 = satisfies some key aspects
- 0 = completely irrelevant

User Query: "{query}"

Dishes to evaluate:
{dishes}
Ranking factors, most important first:
1. HEALTH ALIGNMENT - if the query mentions health, nutrition or diet, penalize fried or sugary dishes and favour fresh ingredients and lean proteins
2. CUISINE TYPE MATCH
3. FLAVOR PROFILE MATCH
4. DIETARY RESTRICTIONS - compliance with restrictions the query mentions

Respond ONLY with a JSON array of dish ids and scores, no other text:
[{"id": "abc123", "score": 85}, {"id": "def456", "score": 40}]
`

// CombinedScore fuses a similarity in [0,1] with a model score in [0,100].
func CombinedScore(similarity, modelScore float64) float64 {
	return SimilarityWeight*similarity + LLMWeight*(modelScore/100)
}

// SemanticReranker rescores candidates with one completion call.
type SemanticReranker struct {
	llm    ChatCompletionProvider
	prompt string
}

func NewSemanticReranker(llm ChatCompletionProvider, prompt string) *SemanticReranker {
	if prompt == "" {
		prompt = DefaultRerankPrompt
	}
	return &SemanticReranker{llm: llm, prompt: prompt}
}

// Rerank always returns usable candidates. When the completion fails or cannot
// be parsed the input order is kept with combined_score = similarity_score and
// the error is returned alongside. On success the result is sorted by
// combined_score and deduplicated by name.
func (r *SemanticReranker) Rerank(ctx context.Context, query string, candidates []models.Candidate) ([]models.Candidate, error) {
	if len(candidates) == 0 {
		return candidates, nil
	}
	log := logging.Ctx(ctx)

	text, err := r.llm.Complete(ctx, r.buildPrompt(query, candidates))
	if err != nil {
		metrics.RecordLLMCall("rerank", "error")
		metrics.RecordDegradation("rerank", "completion_failed")
		log.Warn().Err(err).Msg("rerank completion failed, keeping similarity order")
		return similarityOnly(candidates), err
	}

	scores, err := parseScores(text, "score")
	if err != nil {
		metrics.RecordLLMCall("rerank", "unparsable")
		metrics.RecordDegradation("rerank", "unparsable")
		log.Warn().Err(err).Msg("rerank response unparsable, keeping similarity order")
		return similarityOnly(candidates), err
	}
	metrics.RecordLLMCall("rerank", "ok")

	out := make([]models.Candidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		if score, ok := scores[out[i].ItemID]; ok {
			out[i].LLMScore = models.Float(score)
			out[i].CombinedScore = models.Float(CombinedScore(out[i].SimilarityScore, score))
		} else {
			out[i].CombinedScore = models.Float(out[i].SimilarityScore)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RankScore() > out[j].RankScore()
	})
	out = dedupeByName(out)

	log.Debug().Int("scored", len(scores)).Int("returned", len(out)).Msg("rerank complete")
	return out, nil
}

func (r *SemanticReranker) buildPrompt(query string, candidates []models.Candidate) string {
	var sb strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&sb, "%d. ID: %s, Name: %s, Description: %s, Category: %s\n\n",
			i+1, c.ItemID, c.Name, c.Description, c.Category)
	}
	return strings.NewReplacer("{query}", query, "{dishes}", sb.String()).Replace(r.prompt)
}

func similarityOnly(candidates []models.Candidate) []models.Candidate {
	out := make([]models.Candidate, len(candidates))
	copy(out, candidates)
	for i := range out {
		out[i].LLMScore = nil
		out[i].CombinedScore = models.Float(out[i].SimilarityScore)
	}
	return out
}

// dedupeByName keeps the first candidate per case-insensitive name, so callers
// sort before calling it.
func dedupeByName(candidates []models.Candidate) []models.Candidate {
	seen := make(map[string]struct{}, len(candidates))
	out := candidates[:0]
	for _, c := range candidates {
		key := strings.ToLower(strings.TrimSpace(c.Name))
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, c)
	}
	return out
}
