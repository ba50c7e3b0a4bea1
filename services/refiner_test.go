package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRefiner(llm ChatCompletionProvider, maxIterations int) *QueryRefiner {
	return NewQueryRefiner(llm, RefinerConfig{Threshold: 0.9, MaxIterations: maxIterations})
}

func TestRefineStopsWhenConfident(t *testing.T) {
	llm := newScriptedLLM()
	llm.refine = []string{"REFINED_QUERY: Sweet dessert with rich flavors\nCONFIDENCE: 0.95"}

	res := newTestRefiner(llm, 5).Refine(context.Background(), "I want something sweet")

	assert.Equal(t, "Sweet dessert with rich flavors", res.Query)
	assert.InDelta(t, 0.95, res.Confidence, 1e-9)
	assert.Equal(t, 1, res.Iterations)
	assert.Equal(t, 1, llm.count("refine"))
	assert.NoError(t, res.Err)
}

func TestRefineRespectsIterationCap(t *testing.T) {
	llm := newScriptedLLM()
	llm.refine = []string{"REFINED_QUERY: spicy noodles\nCONFIDENCE: 0.5"}

	res := newTestRefiner(llm, 3).Refine(context.Background(), "noodles")

	assert.Equal(t, 3, res.Iterations)
	assert.Equal(t, 3, llm.count("refine"))
	assert.InDelta(t, 0.5, res.Confidence, 1e-9)
}

func TestRefineWarmPromptCarriesCurrentQuery(t *testing.T) {
	var prompts []string
	llm := &recordingLLM{answers: []string{
		"REFINED_QUERY: spicy food\nCONFIDENCE: 0.4",
		"REFINED_QUERY: spicy Sichuan noodles with chili oil\nCONFIDENCE: 0.92",
	}, prompts: &prompts}

	res := newTestRefiner(llm, 5).Refine(context.Background(), "spicy")

	require.Len(t, prompts, 2)
	assert.NotContains(t, prompts[0], "Current Refined Query")
	assert.Contains(t, prompts[1], "Current Refined Query: spicy food")
	assert.Contains(t, prompts[1], "Current Confidence Score: 0.40")
	assert.Equal(t, "spicy Sichuan noodles with chili oil", res.Query)
	assert.Equal(t, 2, res.Iterations)
}

func TestRefineKeepsPreviousValuesOnMissingFields(t *testing.T) {
	llm := newScriptedLLM()
	llm.refine = []string{
		"REFINED_QUERY: warm soup\nCONFIDENCE: 0.6",
		"I think the user wants soup",
		"REFINED_QUERY: hearty vegetable soup\nCONFIDENCE: not-a-number",
	}

	res := newTestRefiner(llm, 3).Refine(context.Background(), "soup")

	assert.Equal(t, "hearty vegetable soup", res.Query)
	assert.InDelta(t, 0.6, res.Confidence, 1e-9)
}

func TestRefineFailsOpenOnLLMError(t *testing.T) {
	llm := newScriptedLLM()
	llm.err = errors.New("connection refused")

	res := newTestRefiner(llm, 5).Refine(context.Background(), "tacos")

	assert.Equal(t, "tacos", res.Query)
	assert.Equal(t, FailOpenConfidence, res.Confidence)
	assert.Equal(t, 1, res.Iterations)
	assert.Error(t, res.Err)
}

func TestRefineConfidenceAlwaysInRange(t *testing.T) {
	answers := []string{
		"REFINED_QUERY: x\nCONFIDENCE: 7",
		"REFINED_QUERY: x\nCONFIDENCE: -3",
		"REFINED_QUERY: x\nCONFIDENCE: 0.3",
		"",
	}
	for _, answer := range answers {
		llm := newScriptedLLM()
		llm.refine = []string{answer}
		res := newTestRefiner(llm, 4).Refine(context.Background(), "food")
		assert.GreaterOrEqual(t, res.Confidence, 0.0, answer)
		assert.LessOrEqual(t, res.Confidence, 1.0, answer)
		assert.GreaterOrEqual(t, res.Iterations, 1)
		assert.LessOrEqual(t, res.Iterations, 4)
	}
}

func TestParseRefinementTrimsIndentedLines(t *testing.T) {
	refined, conf := parseRefinement("  REFINED_QUERY:  crispy fried chicken  \n  CONFIDENCE: 0.81 ")
	assert.Equal(t, "crispy fried chicken", refined)
	assert.InDelta(t, 0.81, conf, 1e-9)
}

type recordingLLM struct {
	answers []string
	prompts *[]string
}

func (r *recordingLLM) Complete(_ context.Context, prompt string) (string, error) {
	*r.prompts = append(*r.prompts, prompt)
	i := len(*r.prompts) - 1
	if i >= len(r.answers) {
		return r.answers[len(r.answers)-1], nil
	}
	if strings.TrimSpace(r.answers[i]) == "" {
		return "", errors.New("empty")
	}
	return r.answers[i], nil
}
