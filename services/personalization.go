package services

import (
	"sort"
	"strings"

	"github.com/blavejr/craveconnect/models"
)

// Additive personalization weights.
const (
	CuisineBoost     = 0.2
	RestrictionBoost = 0.1
	SpiceBoost       = 0.1
	FavoriteBoost    = 0.3
	OrderedBoost     = 0.1
)

// DietaryPredicate decides whether an item's tags rule it out for a user's
// dietary restrictions.
type DietaryPredicate func(itemTags, restrictions []string) bool

// TagsDisqualify treats any tag that names a restriction as disqualifying:
// an item tagged "vegan" is unsuitable for a "vegan" restriction. This is the
// historical behaviour; swap in a compliance predicate to invert it.
func TagsDisqualify(itemTags, restrictions []string) bool {
	return intersects(itemTags, restrictions)
}

// PersonalizationScorer ranks candidates from a user's stored preferences.
type PersonalizationScorer struct {
	dietary DietaryPredicate
}

func NewPersonalizationScorer(dietary DietaryPredicate) *PersonalizationScorer {
	if dietary == nil {
		dietary = TagsDisqualify
	}
	return &PersonalizationScorer{dietary: dietary}
}

// IsSuitable is a hard filter on allergens and dietary restrictions.
func (s *PersonalizationScorer) IsSuitable(c models.Candidate, profile *models.UserProfile) bool {
	if profile == nil {
		return true
	}
	if intersects(c.Allergens, profile.Allergies) {
		return false
	}
	return !s.dietary(c.Tags, profile.DietaryRestrictions)
}

func (s *PersonalizationScorer) Boost(c models.Candidate, profile *models.UserProfile) float64 {
	if profile == nil {
		return 0
	}
	var boost float64
	if c.Cuisine != "" && contains(profile.PreferredCuisines, c.Cuisine) {
		boost += CuisineBoost
	}
	if intersects(c.Tags, profile.DietaryRestrictions) {
		boost += RestrictionBoost
	}
	if c.SpiceLevel != "" && strings.EqualFold(c.SpiceLevel, profile.SpiceTolerance) {
		boost += SpiceBoost
	}
	if _, ok := profile.FavoriteItemIDs[c.ItemID]; ok {
		boost += FavoriteBoost
	}
	if previouslyOrdered(c, profile) {
		boost += OrderedBoost
	}
	return boost
}

// Apply drops unsuitable candidates, scores the rest as similarity + boost and
// sorts descending. A nil profile scores on similarity alone.
func (s *PersonalizationScorer) Apply(candidates []models.Candidate, profile *models.UserProfile) []models.Candidate {
	out := make([]models.Candidate, 0, len(candidates))
	for _, c := range candidates {
		if !s.IsSuitable(c, profile) {
			continue
		}
		boost := s.Boost(c, profile)
		c.PersonalizationBoost = models.Float(boost)
		c.CombinedScore = models.Float(c.SimilarityScore + boost)
		out = append(out, c)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].RankScore() > out[j].RankScore()
	})
	return out
}

func previouslyOrdered(c models.Candidate, profile *models.UserProfile) bool {
	if _, ok := profile.OrderedItemIDs[c.ItemID]; ok {
		return true
	}
	_, ok := profile.OrderedItemNames[normalizeTerm(c.Name)]
	return ok
}

func normalizeTerm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func contains(list []string, value string) bool {
	value = normalizeTerm(value)
	for _, v := range list {
		if normalizeTerm(v) == value {
			return true
		}
	}
	return false
}

func intersects(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(b))
	for _, v := range b {
		set[normalizeTerm(v)] = struct{}{}
	}
	for _, v := range a {
		if _, ok := set[normalizeTerm(v)]; ok {
			return true
		}
	}
	return false
}
