package storage

import (
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"

	"github.com/blavejr/craveconnect/config"
	"github.com/blavejr/craveconnect/logging"
	"github.com/blavejr/craveconnect/models"
)

const (
	payloadMenuItemID   = "menu_item_id"
	payloadRestaurantID = "restaurant_id"
	upsertBatchSize     = 100
)

// menu item ids are free-form strings; point ids must be uuids or integers
var pointNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("craveconnect/menu_items"))

// qdrantAPI is the part of *qdrant.Client the index uses.
type qdrantAPI interface {
	ListCollections(ctx context.Context) ([]string, error)
	CreateCollection(ctx context.Context, request *qdrant.CreateCollection) error
	Upsert(ctx context.Context, request *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Query(ctx context.Context, request *qdrant.QueryPoints) ([]*qdrant.ScoredPoint, error)
	Close() error
}

// QdrantIndex serves vector search from a Qdrant collection using cosine distance.
type QdrantIndex struct {
	api        qdrantAPI
	collection string
	dimension  int
}

func NewQdrantIndex(cfg *config.Config, dimension int) (*QdrantIndex, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.QdrantHost,
		Port:   cfg.QdrantPort,
		APIKey: cfg.QdrantAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize qdrant client: %w", err)
	}
	logging.Info().Str("host", cfg.QdrantHost).Int("port", cfg.QdrantPort).Msg("connected to Qdrant")
	return newQdrantIndex(client, cfg.QdrantCollection, dimension), nil
}

func newQdrantIndex(api qdrantAPI, collection string, dimension int) *QdrantIndex {
	return &QdrantIndex{api: api, collection: collection, dimension: dimension}
}

func (q *QdrantIndex) Close() error {
	return q.api.Close()
}

// EnsureCollection creates the collection when it does not exist yet.
func (q *QdrantIndex) EnsureCollection(ctx context.Context) error {
	collections, err := q.api.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list qdrant collections: %w", err)
	}
	if slices.Contains(collections, q.collection) {
		return nil
	}

	err = q.api.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: q.collection,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(q.dimension),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create qdrant collection %q: %w", q.collection, err)
	}
	logging.Info().Str("collection", q.collection).Int("dimension", q.dimension).Msg("created qdrant collection")
	return nil
}

// Upsert writes one point per item, keyed by a uuid derived from the item id.
func (q *QdrantIndex) Upsert(ctx context.Context, items []models.MenuItem) error {
	for start := 0; start < len(items); start += upsertBatchSize {
		batch := items[start:min(start+upsertBatchSize, len(items))]

		points := make([]*qdrant.PointStruct, 0, len(batch))
		for _, item := range batch {
			if len(item.Embedding) != q.dimension {
				return fmt.Errorf("menu item %s has %d dimensions, collection expects %d", item.ID, len(item.Embedding), q.dimension)
			}
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewID(PointID(item.ID)),
				Vectors: qdrant.NewVectors(item.Embedding...),
				Payload: qdrant.NewValueMap(map[string]any{
					payloadMenuItemID:   item.ID,
					payloadRestaurantID: item.RestaurantID,
				}),
			})
		}

		wait := true
		if _, err := q.api.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: q.collection,
			Points:         points,
			Wait:           &wait,
		}); err != nil {
			return fmt.Errorf("qdrant upsert failed at [%d:%d]: %w", start, start+len(batch), err)
		}
	}
	return nil
}

func (q *QdrantIndex) TopK(ctx context.Context, vector []float32, k int) ([]models.VectorHit, error) {
	if k < 1 {
		return []models.VectorHit{}, nil
	}
	limit := uint64(k)
	resp, err := q.api.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.collection,
		Query:          qdrant.NewQuery(vector...),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("qdrant query failed: %w", err)
	}
	return scoredPointsToHits(resp), nil
}

// PointID is the deterministic qdrant point id for a menu item id.
func PointID(menuItemID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(menuItemID)).String()
}

// points without a menu_item_id payload are skipped
func scoredPointsToHits(points []*qdrant.ScoredPoint) []models.VectorHit {
	hits := make([]models.VectorHit, 0, len(points))
	for _, p := range points {
		id := p.GetPayload()[payloadMenuItemID].GetStringValue()
		if id == "" {
			continue
		}
		hits = append(hits, models.VectorHit{
			ItemID:     id,
			Similarity: CosineToSimilarity(float64(p.GetScore())),
		})
	}
	return hits
}
