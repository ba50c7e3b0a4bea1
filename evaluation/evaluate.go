package evaluation

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"github.com/blavejr/craveconnect/config"
	"github.com/blavejr/craveconnect/logging"
	"github.com/blavejr/craveconnect/models"
	"github.com/blavejr/craveconnect/services"
)

// Case is one craving in the evaluation dataset. A result is relevant when its
// name or description mentions a keyword, or its id is listed as expected.
type Case struct {
	ID                 int             `json:"id"`
	Query              string          `json:"query"`
	UserID             string          `json:"user_id,omitempty"`
	Strategy           models.Strategy `json:"strategy,omitempty"`
	RelevantKeywords   []string        `json:"relevant_keywords"`
	ExpectedItemIDs    []string        `json:"expected_item_ids,omitempty"`
	ForbiddenAllergens []string        `json:"forbidden_allergens,omitempty"`
	Notes              string          `json:"notes,omitempty"`
}

type EvaluationResult struct {
	CaseID             int      `json:"case_id"`
	Query              string   `json:"query"`
	RefinedQuery       string   `json:"refined_query"`
	Confidence         float64  `json:"confidence"`
	Returned           int      `json:"returned"`
	RelevantReturned   int      `json:"relevant_returned"`
	ExpectedFound      int      `json:"expected_found"`
	AllergenViolations int      `json:"allergen_violations"`
	ResponseTimeMs     int64    `json:"response_time_ms"`
	KeywordsFound      []string `json:"keywords_found"`
	PipelineError      string   `json:"pipeline_error,omitempty"`
	Success            bool     `json:"success"`
	FScore             float64  `json:"f_score"`
}

type Metrics struct {
	TotalCases         int            `json:"total_cases"`
	SuccessfulCases    int            `json:"successful_cases"`
	HitRate            float64        `json:"hit_rate"`
	AvgResponseTime    float64        `json:"avg_response_time_ms"`
	AvgReturned        float64        `json:"avg_returned"`
	AvgRelevant        float64        `json:"avg_relevant"`
	AvgFScore          float64        `json:"avg_f_score"`
	AllergenViolations int            `json:"allergen_violations"`
	DegradedCases      int            `json:"degraded_cases"`
	Timestamp          string         `json:"timestamp"`
	Configuration      map[string]any `json:"configuration"`
}

type EvaluationReport struct {
	Metrics Metrics            `json:"metrics"`
	Results []EvaluationResult `json:"results"`
}

type Pipeline interface {
	Run(ctx context.Context, req services.RecommendationRequest) models.RecommendationResult
}

type Evaluator struct {
	config   *config.Config
	pipeline Pipeline
}

func NewEvaluator(cfg *config.Config, pipeline Pipeline) *Evaluator {
	return &Evaluator{config: cfg, pipeline: pipeline}
}

func LoadDataset(path string) ([]Case, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}

	var cases []Case
	if err := json.Unmarshal(data, &cases); err != nil {
		return nil, fmt.Errorf("failed to parse dataset: %w", err)
	}
	return cases, nil
}

func (e *Evaluator) Evaluate(ctx context.Context, cases []Case) *EvaluationReport {
	results := make([]EvaluationResult, 0, len(cases))
	log := logging.Ctx(ctx)
	log.Info().Int("cases", len(cases)).Msg("starting evaluation")

	for i, c := range cases {
		strategy := c.Strategy
		if strategy == "" {
			strategy = models.StrategyRerank
		}

		startTime := time.Now()
		out := e.pipeline.Run(ctx, services.RecommendationRequest{
			Query:    c.Query,
			UserID:   c.UserID,
			TopK:     e.config.TopK,
			Strategy: strategy,
		})
		result := Score(c, out)
		result.ResponseTimeMs = time.Since(startTime).Milliseconds()
		results = append(results, result)

		log.Info().
			Int("case", i+1).
			Str("query", c.Query).
			Int("relevant", result.RelevantReturned).
			Int("returned", result.Returned).
			Float64("f_score", result.FScore).
			Int64("ms", result.ResponseTimeMs).
			Msg("case evaluated")
	}

	return &EvaluationReport{
		Metrics: summarize(results, map[string]any{
			"top_k":                 e.config.TopK,
			"overfetch_factor":      e.config.OverfetchFactor,
			"confidence_threshold":  e.config.ConfidenceThreshold,
			"max_refine_iterations": e.config.MaxRefineIterations,
			"vector_backend":        e.config.VectorBackend,
			"embed_model":           e.config.OllamaEmbedModel,
			"llm_model":             e.config.OllamaLLMModel,
		}),
		Results: results,
	}
}

// Score judges one pipeline result against its case.
func Score(c Case, out models.RecommendationResult) EvaluationResult {
	result := EvaluationResult{
		CaseID:        c.ID,
		Query:         c.Query,
		RefinedQuery:  out.RefinedQuery,
		Confidence:    out.Confidence,
		Returned:      len(out.Recommendations),
		KeywordsFound: []string{},
		PipelineError: out.ProcessingInfo.Error,
	}

	expected := make(map[string]struct{}, len(c.ExpectedItemIDs))
	for _, id := range c.ExpectedItemIDs {
		expected[id] = struct{}{}
	}

	found := make(map[string]struct{})
	for _, item := range out.Recommendations {
		text := item.Name + " " + item.Description
		relevant := false
		for _, keyword := range c.RelevantKeywords {
			if containsKeyword(text, keyword) {
				relevant = true
				if _, seen := found[keyword]; !seen {
					found[keyword] = struct{}{}
					result.KeywordsFound = append(result.KeywordsFound, keyword)
				}
			}
		}
		if _, ok := expected[item.ItemID]; ok {
			relevant = true
			result.ExpectedFound++
		}
		if relevant {
			result.RelevantReturned++
		}
		for _, allergen := range item.Allergens {
			for _, forbidden := range c.ForbiddenAllergens {
				if strings.EqualFold(strings.TrimSpace(allergen), strings.TrimSpace(forbidden)) {
					result.AllergenViolations++
				}
			}
		}
	}

	result.Success = result.RelevantReturned > 0 && result.AllergenViolations == 0

	precision := 0.0
	if result.Returned > 0 {
		precision = float64(result.RelevantReturned) / float64(result.Returned)
	}
	recall := 0.0
	switch {
	case len(c.ExpectedItemIDs) > 0:
		recall = float64(result.ExpectedFound) / float64(len(c.ExpectedItemIDs))
	case len(c.RelevantKeywords) > 0:
		recall = float64(len(result.KeywordsFound)) / float64(len(c.RelevantKeywords))
	}
	result.FScore = CalculateFScore(precision, recall)
	return result
}

func summarize(results []EvaluationResult, configuration map[string]any) Metrics {
	m := Metrics{
		TotalCases:    len(results),
		Timestamp:     time.Now().Format(time.RFC3339),
		Configuration: configuration,
	}
	if len(results) == 0 {
		return m
	}

	var totalTime int64
	var totalReturned, totalRelevant int
	var totalFScore float64
	for _, r := range results {
		totalTime += r.ResponseTimeMs
		totalReturned += r.Returned
		totalRelevant += r.RelevantReturned
		totalFScore += r.FScore
		m.AllergenViolations += r.AllergenViolations
		if r.Success {
			m.SuccessfulCases++
		}
		if r.PipelineError != "" {
			m.DegradedCases++
		}
	}

	n := float64(len(results))
	m.HitRate = float64(m.SuccessfulCases) / n
	m.AvgResponseTime = float64(totalTime) / n
	m.AvgReturned = float64(totalReturned) / n
	m.AvgRelevant = float64(totalRelevant) / n
	m.AvgFScore = totalFScore / n
	return m
}

// check if text contains keyword (case-insensitive)
func containsKeyword(text, keyword string) bool {
	return strings.Contains(strings.ToLower(text), strings.ToLower(keyword))
}

// CalculateFScore is the harmonic mean of precision and recall.
// Higher is better (1.0 = perfect, 0.0 = worst)
func CalculateFScore(precision, recall float64) float64 {
	if precision+recall == 0 {
		return 0
	}
	return 2 * (precision * recall) / (precision + recall)
}

// save the evaluation report to a JSON file
func SaveReport(report *EvaluationReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create report directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	return nil
}

// print a summary of the evaluation results
func PrintSummary(report *EvaluationReport) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("EVALUATION SUMMARY")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Total Cases:          %d\n", report.Metrics.TotalCases)
	fmt.Printf("Successful Cases:     %d\n", report.Metrics.SuccessfulCases)
	fmt.Printf("Hit Rate:             %.2f%%\n", report.Metrics.HitRate*100)
	fmt.Printf("Avg F-Score:          %.3f\n", report.Metrics.AvgFScore)
	fmt.Printf("Avg Response Time:    %.0f ms\n", report.Metrics.AvgResponseTime)
	fmt.Printf("Avg Returned:         %.1f\n", report.Metrics.AvgReturned)
	fmt.Printf("Avg Relevant:         %.1f\n", report.Metrics.AvgRelevant)
	fmt.Printf("Allergen Violations:  %d\n", report.Metrics.AllergenViolations)
	fmt.Printf("Degraded Cases:       %d\n", report.Metrics.DegradedCases)
	fmt.Println(strings.Repeat("=", 60))

	fmt.Println("\nConfiguration:")
	for key, value := range report.Metrics.Configuration {
		fmt.Printf("  %s: %v\n", key, value)
	}
	fmt.Println(strings.Repeat("=", 60) + "\n")
}
