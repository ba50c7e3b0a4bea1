package services

import (
	"context"

	"github.com/blavejr/craveconnect/models"
)

// EmbeddingProvider turns text into a fixed-length vector.
type EmbeddingProvider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ChatCompletionProvider is the single prompt-in, text-out capability used for
// refinement, reranking and health scoring.
type ChatCompletionProvider interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// VectorStore returns the k nearest menu items, ordered by similarity descending.
type VectorStore interface {
	TopK(ctx context.Context, vector []float32, k int) ([]models.VectorHit, error)
}

// VectorIndexer receives item vectors when an external index is in use.
type VectorIndexer interface {
	Upsert(ctx context.Context, items []models.MenuItem) error
}

// MenuItemLookup returns the items it could find; unknown ids are simply absent.
type MenuItemLookup interface {
	GetMenuItemsByIDs(ctx context.Context, ids []string) (map[string]models.MenuItem, error)
}

// UserProfileLookup returns nil with no error when the user has no profile.
type UserProfileLookup interface {
	GetUserProfile(ctx context.Context, userID string) (*models.UserProfile, error)
}

type QueryRecorder interface {
	RecordQuery(ctx context.Context, query models.QueryRecord, recs []models.RecommendationRecord) error
}

type CatalogStats interface {
	RestaurantMenuCounts(ctx context.Context, limit int) ([]models.RestaurantMenuCount, error)
}

type MenuItemWriter interface {
	UpsertMenuItems(ctx context.Context, items []models.MenuItem) error
}
