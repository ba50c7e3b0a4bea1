package services

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/blavejr/craveconnect/models"
)

// scriptedLLM routes prompts by kind and counts calls per kind.
type scriptedLLM struct {
	mu     sync.Mutex
	calls  map[string]int
	refine []string
	rerank func(prompt string) (string, error)
	health func(prompt string) (string, error)
	err    error
}

func newScriptedLLM() *scriptedLLM {
	return &scriptedLLM{calls: map[string]int{}}
}

func promptKind(prompt string) string {
	switch {
	case strings.Contains(prompt, "REFINED_QUERY"):
		return "refine"
	case strings.Contains(prompt, "health_score"):
		return "health"
	default:
		return "rerank"
	}
}

func (l *scriptedLLM) Complete(_ context.Context, prompt string) (string, error) {
	l.mu.Lock()
	kind := promptKind(prompt)
	l.calls[kind]++
	n := l.calls[kind]
	l.mu.Unlock()

	if l.err != nil {
		return "", l.err
	}
	switch kind {
	case "refine":
		if len(l.refine) == 0 {
			return "", errors.New("no scripted refinement")
		}
		if n > len(l.refine) {
			return l.refine[len(l.refine)-1], nil
		}
		return l.refine[n-1], nil
	case "health":
		if l.health == nil {
			return "[]", nil
		}
		return l.health(prompt)
	default:
		if l.rerank == nil {
			return "[]", nil
		}
		return l.rerank(prompt)
	}
}

func (l *scriptedLLM) count(kind string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls[kind]
}

type fakeEmbedder struct {
	err   error
	calls int
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	f.calls++
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	if f.err != nil {
		return nil, f.err
	}
	return []float32{0.1, 0.2, 0.3}, nil
}

type fakeVectorStore struct {
	hits      []models.VectorHit
	err       error
	requested int
}

func (f *fakeVectorStore) TopK(_ context.Context, _ []float32, k int) ([]models.VectorHit, error) {
	f.requested = k
	if f.err != nil {
		return nil, f.err
	}
	if len(f.hits) > k {
		return f.hits[:k], nil
	}
	return f.hits, nil
}

type fakeLookup struct {
	mu    sync.Mutex
	items map[string]models.MenuItem
	// ids in a batch containing failID make the whole batch fail
	failID string
	calls  int
}

func (f *fakeLookup) GetMenuItemsByIDs(_ context.Context, ids []string) (map[string]models.MenuItem, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	out := map[string]models.MenuItem{}
	for _, id := range ids {
		if f.failID != "" && id == f.failID {
			return nil, errors.New("lookup timeout")
		}
		if item, ok := f.items[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

type fakeProfiles struct {
	profile *models.UserProfile
	err     error
}

func (f *fakeProfiles) GetUserProfile(context.Context, string) (*models.UserProfile, error) {
	return f.profile, f.err
}

// catalogue builds items and descending-similarity hits from names.
func catalogue(names ...string) (map[string]models.MenuItem, []models.VectorHit) {
	items := make(map[string]models.MenuItem, len(names))
	hits := make([]models.VectorHit, 0, len(names))
	for i, name := range names {
		id := "item-" + string(rune('a'+i))
		items[id] = models.MenuItem{
			ID:           id,
			RestaurantID: "rest-1",
			Name:         name,
			Description:  name + " from the kitchen",
			Price:        10,
			IsActive:     true,
		}
		hits = append(hits, models.VectorHit{ItemID: id, Similarity: 0.9 - float64(i)*0.05})
	}
	return items, hits
}

func candidatesFor(names ...string) []models.Candidate {
	items, hits := catalogue(names...)
	out := make([]models.Candidate, len(hits))
	for i, hit := range hits {
		out[i] = models.NewCandidate(items[hit.ItemID], hit.Similarity)
	}
	return out
}
