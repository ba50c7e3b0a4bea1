package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/blavejr/craveconnect/logging"
	"github.com/blavejr/craveconnect/models"
)

type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// MenuIndexer embeds menu items and stores them with their vectors. Indexing
// an existing id replaces the item and regenerates its embedding.
type MenuIndexer struct {
	embedder BatchEmbedder
	writer   MenuItemWriter
	// vectors is nil when the catalogue store also serves vector search
	vectors VectorIndexer
	model   string
}

func NewMenuIndexer(embedder BatchEmbedder, writer MenuItemWriter, vectors VectorIndexer, model string) *MenuIndexer {
	return &MenuIndexer{embedder: embedder, writer: writer, vectors: vectors, model: model}
}

// Index returns the stored items, with ids assigned where the input had none.
func (ix *MenuIndexer) Index(ctx context.Context, items []models.MenuItem) ([]models.MenuItem, error) {
	if len(items) == 0 {
		return nil, nil
	}
	log := logging.Ctx(ctx)
	start := time.Now()

	texts := make([]string, len(items))
	for i := range items {
		if items[i].ID == "" {
			items[i].ID = uuid.NewString()
		}
		texts[i] = EmbeddingText(items[i])
	}

	embeddings, err := ix.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed menu items: %w", err)
	}

	now := time.Now().UTC()
	for i := range items {
		items[i].Embedding = embeddings[i]
		items[i].EmbeddingModel = ix.model
		items[i].IsActive = true
		items[i].UpdatedAt = now
	}

	if err := ix.writer.UpsertMenuItems(ctx, items); err != nil {
		return nil, fmt.Errorf("failed to store menu items: %w", err)
	}
	if ix.vectors != nil {
		if err := ix.vectors.Upsert(ctx, items); err != nil {
			return nil, fmt.Errorf("failed to upsert menu item vectors: %w", err)
		}
	}

	log.Info().Int("items", len(items)).Dur("duration", time.Since(start)).Msg("menu items indexed")
	return items, nil
}

// EmbeddingText is the text a menu item is embedded from.
func EmbeddingText(item models.MenuItem) string {
	parts := []string{item.Name, item.Description, item.Category}
	if item.Meta.Cuisine != "" {
		parts = append(parts, item.Meta.Cuisine)
	}
	parts = append(parts, item.Tags...)

	nonEmpty := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			nonEmpty = append(nonEmpty, p)
		}
	}
	return strings.Join(nonEmpty, ". ")
}
