package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blavejr/craveconnect/models"
)

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"length mismatch", []float32{1, 0}, []float32{1, 0, 0}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.expected, cosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}

func TestCosineToSimilarityClamps(t *testing.T) {
	assert.Equal(t, 0.0, CosineToSimilarity(-0.4))
	assert.Equal(t, 1.0, CosineToSimilarity(1.0000001))
	assert.Equal(t, 0.42, CosineToSimilarity(0.42))
}

func TestTopHitsSortsAndLimits(t *testing.T) {
	hits := []models.VectorHit{
		{ItemID: "a", Similarity: 0.2},
		{ItemID: "b", Similarity: 0.9},
		{ItemID: "c", Similarity: 0.5},
	}
	top := topHits(hits, 2)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].ItemID)
	assert.Equal(t, "c", top[1].ItemID)

	assert.NotNil(t, topHits(nil, 3))
}

func TestPointIDIsDeterministic(t *testing.T) {
	assert.Equal(t, PointID("item-1"), PointID("item-1"))
	assert.NotEqual(t, PointID("item-1"), PointID("item-2"))
	assert.Len(t, PointID("item-1"), 36)
}

type fakeQdrant struct {
	collections []string
	created     *qdrant.CreateCollection
	upserts     []*qdrant.UpsertPoints
	query       *qdrant.QueryPoints
	points      []*qdrant.ScoredPoint
	err         error
}

func (f *fakeQdrant) ListCollections(context.Context) ([]string, error) {
	return f.collections, f.err
}

func (f *fakeQdrant) CreateCollection(_ context.Context, req *qdrant.CreateCollection) error {
	f.created = req
	return f.err
}

func (f *fakeQdrant) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.upserts = append(f.upserts, req)
	return &qdrant.UpdateResult{}, f.err
}

func (f *fakeQdrant) Query(_ context.Context, req *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error) {
	f.query = req
	return f.points, f.err
}

func (f *fakeQdrant) Close() error { return nil }

func TestQdrantEnsureCollection(t *testing.T) {
	api := &fakeQdrant{collections: []string{"other"}}
	idx := newQdrantIndex(api, "menu_items", 3)

	require.NoError(t, idx.EnsureCollection(context.Background()))
	require.NotNil(t, api.created)
	assert.Equal(t, "menu_items", api.created.CollectionName)

	api = &fakeQdrant{collections: []string{"menu_items"}}
	idx = newQdrantIndex(api, "menu_items", 3)
	require.NoError(t, idx.EnsureCollection(context.Background()))
	assert.Nil(t, api.created)
}

func TestQdrantUpsert(t *testing.T) {
	api := &fakeQdrant{}
	idx := newQdrantIndex(api, "menu_items", 2)

	items := []models.MenuItem{
		{ID: "a", RestaurantID: "r1", Embedding: []float32{0.1, 0.2}},
		{ID: "b", RestaurantID: "r1", Embedding: []float32{0.3, 0.4}},
	}
	require.NoError(t, idx.Upsert(context.Background(), items))
	require.Len(t, api.upserts, 1)
	require.Len(t, api.upserts[0].Points, 2)
	assert.Equal(t, PointID("a"), api.upserts[0].Points[0].GetId().GetUuid())
	assert.Equal(t, "a", api.upserts[0].Points[0].GetPayload()[payloadMenuItemID].GetStringValue())
}

func TestQdrantUpsertRejectsWrongDimension(t *testing.T) {
	idx := newQdrantIndex(&fakeQdrant{}, "menu_items", 3)
	err := idx.Upsert(context.Background(), []models.MenuItem{{ID: "a", Embedding: []float32{1}}})
	assert.Error(t, err)
}

func TestQdrantTopK(t *testing.T) {
	api := &fakeQdrant{points: []*qdrant.ScoredPoint{
		{Score: 0.91, Payload: qdrant.NewValueMap(map[string]any{payloadMenuItemID: "a"})},
		{Score: 0.40, Payload: qdrant.NewValueMap(map[string]any{payloadMenuItemID: "b"})},
		{Score: 0.30},
	}}
	idx := newQdrantIndex(api, "menu_items", 2)

	hits, err := idx.TopK(context.Background(), []float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].ItemID)
	assert.InDelta(t, 0.91, hits[0].Similarity, 1e-6)
	assert.Equal(t, uint64(5), api.query.GetLimit())
}

func TestQdrantTopKError(t *testing.T) {
	idx := newQdrantIndex(&fakeQdrant{err: errors.New("connection refused")}, "menu_items", 2)
	_, err := idx.TopK(context.Background(), []float32{1, 0}, 5)
	assert.ErrorContains(t, err, "connection refused")
}
