package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blavejr/craveconnect/models"
)

func set(values ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(values))
	for _, v := range values {
		out[v] = struct{}{}
	}
	return out
}

func TestAllergenIsHardFilter(t *testing.T) {
	candidates := candidatesFor("Satay Skewers", "Garden Salad")
	candidates[0].Allergens = []string{"Peanuts"}
	candidates[0].SimilarityScore = 0.99

	profile := &models.UserProfile{
		Allergies:       []string{"peanuts"},
		FavoriteItemIDs: set(candidates[0].ItemID),
	}

	out := NewPersonalizationScorer(nil).Apply(candidates, profile)
	require.Len(t, out, 1)
	assert.Equal(t, "Garden Salad", out[0].Name)
}

func TestDietaryRestrictionTagDisqualifiesByDefault(t *testing.T) {
	c := candidatesFor("Tofu Bowl")[0]
	c.Tags = []string{"vegan"}
	profile := &models.UserProfile{DietaryRestrictions: []string{"Vegan"}}

	assert.False(t, NewPersonalizationScorer(nil).IsSuitable(c, profile))
}

func TestDietaryPredicateIsSwappable(t *testing.T) {
	c := candidatesFor("Tofu Bowl")[0]
	c.Tags = []string{"vegan"}
	profile := &models.UserProfile{DietaryRestrictions: []string{"vegan"}}

	never := func([]string, []string) bool { return false }
	scorer := NewPersonalizationScorer(never)

	assert.True(t, scorer.IsSuitable(c, profile))
	assert.InDelta(t, RestrictionBoost, scorer.Boost(c, profile), 1e-12)
}

func TestBoostWeights(t *testing.T) {
	base := candidatesFor("Chicken Tikka")[0]
	base.Cuisine = "Indian"
	base.SpiceLevel = models.SpiceHigh

	tests := []struct {
		name     string
		profile  *models.UserProfile
		expected float64
	}{
		{"no signals", &models.UserProfile{}, 0},
		{"cuisine", &models.UserProfile{PreferredCuisines: []string{"indian"}}, CuisineBoost},
		{"spice", &models.UserProfile{SpiceTolerance: "high"}, SpiceBoost},
		{"favorite", &models.UserProfile{FavoriteItemIDs: set(base.ItemID)}, FavoriteBoost},
		{"ordered by id", &models.UserProfile{OrderedItemIDs: set(base.ItemID)}, OrderedBoost},
		{"ordered by name", &models.UserProfile{OrderedItemNames: set("chicken tikka")}, OrderedBoost},
		{"all", &models.UserProfile{
			PreferredCuisines: []string{"Indian"},
			SpiceTolerance:    models.SpiceHigh,
			FavoriteItemIDs:   set(base.ItemID),
			OrderedItemNames:  set("chicken tikka"),
		}, CuisineBoost + SpiceBoost + FavoriteBoost + OrderedBoost},
	}

	scorer := NewPersonalizationScorer(nil)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, scorer.Boost(base, tt.profile), 1e-12)
		})
	}
}

func TestApplyRanksBySimilarityPlusBoost(t *testing.T) {
	candidates := candidatesFor("Fish Tacos", "Beef Burrito", "Quesadilla")
	// similarities 0.9, 0.85, 0.8
	profile := &models.UserProfile{FavoriteItemIDs: set(candidates[2].ItemID)}

	out := NewPersonalizationScorer(nil).Apply(candidates, profile)
	require.Len(t, out, 3)
	assert.Equal(t, "Quesadilla", out[0].Name)
	assert.InDelta(t, 0.8+FavoriteBoost, *out[0].CombinedScore, 1e-12)
	assert.InDelta(t, FavoriteBoost, *out[0].PersonalizationBoost, 1e-12)
	assert.Equal(t, "Fish Tacos", out[1].Name)
}

func TestApplyWithoutProfileKeepsSimilarityOrder(t *testing.T) {
	candidates := candidatesFor("A", "B")
	out := NewPersonalizationScorer(nil).Apply(candidates, nil)
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].Name)
	assert.Equal(t, out[0].SimilarityScore, *out[0].CombinedScore)
}
