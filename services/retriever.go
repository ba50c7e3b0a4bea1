package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/blavejr/craveconnect/logging"
	"github.com/blavejr/craveconnect/metrics"
	"github.com/blavejr/craveconnect/models"
)

// maximum metadata batches in flight for one request
const maxLookupConcurrency = 4

// CandidateRetriever finds the menu items closest to a query vector
// 1. asking the vector store for the overfetched top-k ids
// 2. loading item metadata for those ids in concurrent batches
// 3. returning candidates in similarity order, similarity score only
type CandidateRetriever struct {
	store     VectorStore
	lookup    MenuItemLookup
	batchSize int
}

func NewCandidateRetriever(store VectorStore, lookup MenuItemLookup, batchSize int) *CandidateRetriever {
	if batchSize < 1 {
		batchSize = 1
	}
	return &CandidateRetriever{store: store, lookup: lookup, batchSize: batchSize}
}

// Retrieve fails with ErrVectorStoreUnavailable only when the search itself
// fails. Ids whose metadata cannot be loaded are dropped; if a whole batch
// failed the candidates come back together with ErrMetadataLookupPartial.
func (r *CandidateRetriever) Retrieve(ctx context.Context, vector []float32, k int) ([]models.Candidate, error) {
	log := logging.Ctx(ctx)

	hits, err := r.store.TopK(ctx, vector, k)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrVectorStoreUnavailable, err)
	}
	if len(hits) == 0 {
		return []models.Candidate{}, nil
	}

	items, lookupErr := r.loadMetadata(ctx, hits)

	candidates := make([]models.Candidate, 0, len(hits))
	dropped := 0
	for _, hit := range hits {
		item, ok := items[hit.ItemID]
		if !ok {
			dropped++
			continue
		}
		candidates = append(candidates, models.NewCandidate(item, hit.Similarity))
	}

	if dropped > 0 {
		metrics.MetadataDropped.Add(float64(dropped))
		log.Debug().Int("dropped", dropped).Int("hits", len(hits)).Msg("dropped vector hits without metadata")
	}
	return candidates, lookupErr
}

func (r *CandidateRetriever) loadMetadata(ctx context.Context, hits []models.VectorHit) (map[string]models.MenuItem, error) {
	ids := make([]string, len(hits))
	for i, hit := range hits {
		ids[i] = hit.ItemID
	}

	var (
		mu       sync.Mutex
		items    = make(map[string]models.MenuItem, len(ids))
		failures []error
	)

	// batches fail independently, so the group never cancels its siblings
	var g errgroup.Group
	g.SetLimit(maxLookupConcurrency)
	for start := 0; start < len(ids); start += r.batchSize {
		batch := ids[start:min(start+r.batchSize, len(ids))]
		g.Go(func() error {
			found, err := r.lookup.GetMenuItemsByIDs(ctx, batch)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				failures = append(failures, err)
				return nil
			}
			for id, item := range found {
				items[id] = item
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) > 0 {
		logging.Ctx(ctx).Warn().Err(errors.Join(failures...)).Int("failed_batches", len(failures)).Msg("menu item lookup partially failed")
		return items, fmt.Errorf("%w: %d batch(es) failed: %v", ErrMetadataLookupPartial, len(failures), failures[0])
	}
	return items, nil
}
