package storage

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/blavejr/craveconnect/config"
	"github.com/blavejr/craveconnect/logging"
	"github.com/blavejr/craveconnect/models"
)

// Collection names.
const (
	MenuItemsCollection       = "menu_items"
	PreferencesCollection     = "user_preferences"
	FavoritesCollection       = "favorites"
	OrdersCollection          = "orders"
	QueriesCollection         = "queries"
	RecommendationsCollection = "recommendations"
)

// MongoStore handles MongoDB operations: the menu catalogue, user profiles,
// the query log and a brute-force cosine vector search.
type MongoStore struct {
	client   *mongo.Client
	database *mongo.Database
	menu     *mongo.Collection
}

func NewMongoStore(cfg *config.Config) (*MongoStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	database := client.Database(cfg.MongoDatabase)
	logging.Info().Str("database", cfg.MongoDatabase).Msg("connected to MongoDB")

	return &MongoStore{
		client:   client,
		database: database,
		menu:     database.Collection(MenuItemsCollection),
	}, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

// EnsureIndexes creates the lookup indexes the pipeline queries on.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	indexes := map[string][]mongo.IndexModel{
		MenuItemsCollection: {
			{Keys: bson.D{{Key: "is_active", Value: 1}}},
			{Keys: bson.D{{Key: "restaurant_id", Value: 1}}},
		},
		PreferencesCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		},
		FavoritesCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}}},
		},
		OrdersCollection: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}},
		},
		RecommendationsCollection: {
			{Keys: bson.D{{Key: "query_id", Value: 1}}},
		},
	}

	for name, specs := range indexes {
		if _, err := s.database.Collection(name).Indexes().CreateMany(ctx, specs); err != nil {
			return fmt.Errorf("failed to create indexes on %s: %w", name, err)
		}
	}
	logging.Info().Int("collections", len(indexes)).Msg("MongoDB indexes ensured")
	return nil
}

// UpsertMenuItems replaces each item by id, inserting when absent.
func (s *MongoStore) UpsertMenuItems(ctx context.Context, items []models.MenuItem) error {
	if len(items) == 0 {
		return fmt.Errorf("no menu items to store")
	}
	startTime := time.Now()

	writes := make([]mongo.WriteModel, len(items))
	for i, item := range items {
		writes[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": item.ID}).
			SetReplacement(item).
			SetUpsert(true)
	}

	if _, err := s.menu.BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false)); err != nil {
		return fmt.Errorf("failed to upsert menu items: %w", err)
	}

	logging.Ctx(ctx).Debug().Int("items", len(items)).Dur("duration", time.Since(startTime)).Msg("menu items upserted")
	return nil
}

// GetMenuItemsByIDs returns active items keyed by id. Missing or inactive ids
// are absent from the map.
func (s *MongoStore) GetMenuItemsByIDs(ctx context.Context, ids []string) (map[string]models.MenuItem, error) {
	filter := bson.M{"_id": bson.M{"$in": ids}, "is_active": true}
	cursor, err := s.menu.Find(ctx, filter, options.Find().SetProjection(bson.M{"embedding": 0}))
	if err != nil {
		return nil, fmt.Errorf("failed to find menu items: %w", err)
	}
	defer cursor.Close(ctx)

	var items []models.MenuItem
	if err := cursor.All(ctx, &items); err != nil {
		return nil, fmt.Errorf("failed to decode menu items: %w", err)
	}

	out := make(map[string]models.MenuItem, len(items))
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}

// TopK scores every active item embedding against the query with cosine
// similarity. Adequate for catalogues that fit a single scan; the qdrant
// backend covers larger ones.
func (s *MongoStore) TopK(ctx context.Context, vector []float32, k int) ([]models.VectorHit, error) {
	if k < 1 {
		return []models.VectorHit{}, nil
	}

	filter := bson.M{"is_active": true, "embedding": bson.M{"$exists": true}}
	cursor, err := s.menu.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1, "embedding": 1}))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch menu embeddings: %w", err)
	}
	defer cursor.Close(ctx)

	var hits []models.VectorHit
	for cursor.Next(ctx) {
		var doc struct {
			ID        string    `bson:"_id"`
			Embedding []float32 `bson:"embedding"`
		}
		if err := cursor.Decode(&doc); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Msg("failed to decode menu embedding")
			continue
		}
		if len(doc.Embedding) != len(vector) {
			continue
		}
		hits = append(hits, models.VectorHit{
			ItemID:     doc.ID,
			Similarity: CosineToSimilarity(cosineSimilarity(vector, doc.Embedding)),
		})
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}

	return topHits(hits, k), nil
}

// RestaurantMenuCounts returns active item counts per restaurant, largest first.
func (s *MongoStore) RestaurantMenuCounts(ctx context.Context, limit int) ([]models.RestaurantMenuCount, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "is_active", Value: true}}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$restaurant_name"},
			{Key: "menu_count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		bson.D{{Key: "$sort", Value: bson.D{{Key: "menu_count", Value: -1}}}},
		bson.D{{Key: "$limit", Value: limit}},
	}

	cursor, err := s.menu.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate menu counts: %w", err)
	}
	defer cursor.Close(ctx)

	var counts []models.RestaurantMenuCount
	if err := cursor.All(ctx, &counts); err != nil {
		return nil, fmt.Errorf("failed to decode menu counts: %w", err)
	}
	return counts, nil
}

func topHits(hits []models.VectorHit, k int) []models.VectorHit {
	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].Similarity > hits[j].Similarity
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	if hits == nil {
		hits = []models.VectorHit{}
	}
	return hits
}

// CosineToSimilarity maps a cosine value onto [0,1]; opposed vectors score 0.
func CosineToSimilarity(cos float64) float64 {
	return math.Max(0, math.Min(1, cos))
}

// calculate cosine similarity between two vectors
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}
